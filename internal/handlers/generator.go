package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/koios/iconforge/internal/bundle"
	"github.com/koios/iconforge/internal/imaging"
	"github.com/koios/iconforge/pkg/models"
	"go.uber.org/zap"
)

const generationEventType = "generation_completed"

// EventPublisher receives an event after every successful generation
type EventPublisher interface {
	PublishGenerationEvent(ctx context.Context, event *models.GenerationEvent) error
}

// Generator runs a request through validation, inspection and assembly
type Generator struct {
	assembler *bundle.Assembler
	validator *Validator
	publisher EventPublisher
	minSide   int
	timeout   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewGenerator creates a generator. minSide is the smallest source side that
// does not trigger a resolution warning; a zero timeout disables the deadline.
func NewGenerator(assembler *bundle.Assembler, validator *Validator, minSide int, timeout time.Duration, logger *zap.Logger) *Generator {
	return &Generator{
		assembler: assembler,
		validator: validator,
		minSide:   minSide,
		timeout:   timeout,
		logger:    logger,
		now:       time.Now,
	}
}

// WithPublisher enables generation events
func (g *Generator) WithPublisher(p EventPublisher) *Generator {
	g.publisher = p
	return g
}

// Catalog returns the catalog requests are validated against
func (g *Generator) Catalog() *models.Catalog {
	return g.assembler.Catalog()
}

// Validator returns the request validator
func (g *Generator) Validator() *Validator {
	return g.validator
}

// Handle processes a generation request
func (g *Generator) Handle(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResult, error) {
	started := g.now()

	if _, err := g.validator.ValidateRequest(req); err != nil {
		g.logger.Debug("Rejected generation request", zap.Error(err))
		return nil, err
	}

	info, err := imaging.Inspect(req.SourceImage)
	if err != nil {
		g.logger.Warn("Unreadable source image", zap.Error(err))
		return nil, err
	}

	var warnings []string
	if warning := imaging.ResolutionWarning(info, g.minSide); warning != "" {
		warnings = append(warnings, warning)
	}

	id := uuid.NewString()
	g.logger.Info("Processing generation request",
		zap.String("generation_id", id),
		zap.Strings("platforms", req.PlatformIDs),
		zap.String("source_format", info.Format),
		zap.Int("source_width", info.Width),
		zap.Int("source_height", info.Height),
		zap.Int("expected_files", g.Catalog().TotalSizeCount(req.PlatformIDs)))

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	archive, err := g.assembler.Assemble(ctx, req.SourceImage, req.PlatformIDs)
	if err != nil {
		g.logger.Error("Generation failed",
			zap.String("generation_id", id),
			zap.Strings("platforms", req.PlatformIDs),
			zap.Error(err))
		return nil, fmt.Errorf("failed to assemble archive: %w", err)
	}

	finished := g.now()
	result := &models.GenerationResult{
		ID:             id,
		ArchiveBytes:   archive.Data,
		TotalFileCount: archive.FileCount,
		Warnings:       warnings,
		Filename:       bundle.ArchiveFilename(req.PlatformIDs, finished),
		Cached:         archive.Cached,
	}

	g.logger.Info("Generation completed",
		zap.String("generation_id", id),
		zap.Int("file_count", archive.FileCount),
		zap.Int("archive_bytes", len(archive.Data)),
		zap.Bool("cached", archive.Cached),
		zap.Duration("duration", finished.Sub(started)))

	if g.publisher != nil {
		event := &models.GenerationEvent{
			Type:         generationEventType,
			ID:           id,
			PlatformIDs:  req.PlatformIDs,
			FileCount:    archive.FileCount,
			ArchiveBytes: len(archive.Data),
			SourceFormat: info.Format,
			SourceWidth:  info.Width,
			SourceHeight: info.Height,
			Cached:       archive.Cached,
			DurationMS:   finished.Sub(started).Milliseconds(),
			ProcessedAt:  finished.UTC(),
		}
		if err := g.publisher.PublishGenerationEvent(ctx, event); err != nil {
			g.logger.Warn("Failed to publish generation event",
				zap.String("generation_id", id),
				zap.Error(err))
		}
	}

	return result, nil
}
