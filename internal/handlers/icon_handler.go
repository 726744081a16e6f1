package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/koios/iconforge/internal/bundle"
	"github.com/koios/iconforge/internal/imaging"
	"github.com/koios/iconforge/pkg/models"
	"go.uber.org/zap"
)

const (
	serviceName    = "iconforge"
	serviceVersion = "1.0.0"

	headerIconCount    = "X-Icon-Count"
	headerPlatforms    = "X-Platforms"
	headerWarning      = "X-Warning"
	headerGenerationID = "X-Generation-ID"

	// multipart framing and the platforms field on top of the file itself
	multipartOverhead = 1 << 20

	msgUnreadableImage  = "Unable to read image file. The file may be corrupted or in an unsupported format."
	msgGenerationFailed = "Failed to generate icons. Please try again with a different image."
	msgInvalidForm      = "Invalid multipart form data"

	cacheCheckTimeout = 2 * time.Second
)

// CacheChecker reports the health of the archive cache
type CacheChecker interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (int64, error)
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// IconHandler serves the icon generation API
type IconHandler struct {
	generator *Generator
	cache     CacheChecker
	logger    *zap.Logger
}

// NewIconHandler creates a new icon handler
func NewIconHandler(generator *Generator, logger *zap.Logger) *IconHandler {
	return &IconHandler{
		generator: generator,
		logger:    logger,
	}
}

// WithCacheCheck makes /health report the archive cache status
func (h *IconHandler) WithCacheCheck(cache CacheChecker) *IconHandler {
	h.cache = cache
	return h
}

// RegisterRoutes registers the health and generation routes
func (h *IconHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
	r.Get("/api/generate-icons", h.handleInfo)
	r.Post("/api/generate-icons", h.handleGenerate)
	r.Options("/api/generate-icons", h.handlePreflight)
}

// handleHealth handles GET /health - returns service health status. An
// unreachable cache degrades the status but generation keeps working.
func (h *IconHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":    "healthy",
		"service":   serviceName,
		"version":   serviceVersion,
		"platforms": len(h.generator.Catalog().IDs()),
		"cache":     "disabled",
	}

	if h.cache != nil {
		ctx, cancel := context.WithTimeout(r.Context(), cacheCheckTimeout)
		defer cancel()

		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn("Archive cache unreachable", zap.Error(err))
			resp["status"] = "degraded"
			resp["cache"] = "unavailable"
		} else {
			resp["cache"] = "ok"
			if count, err := h.cache.Stats(ctx); err == nil {
				resp["cachedArchives"] = count
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleInfo handles GET /api/generate-icons - describes the API and lists platforms
func (h *IconHandler) handleInfo(w http.ResponseWriter, r *http.Request) {
	maxFileSize := humanize.IBytes(uint64(h.generator.Validator().MaxBytes()))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    serviceName,
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"POST /api/generate-icons": map[string]interface{}{
				"description": "Generate app icons from an uploaded image",
				"contentType": "multipart/form-data",
				"parameters": map[string]string{
					"file":      fmt.Sprintf("Image file (%s) - max %s", supportedFormatNames, maxFileSize),
					"platforms": "JSON array of platform IDs",
				},
				"response": "ZIP file containing all generated icons",
			},
		},
		"supportedFormats": SupportedMimeTypes,
		"maxFileSize":      maxFileSize,
		"platforms":        h.generator.Catalog().Summaries(),
	})
}

// handlePreflight handles OPTIONS /api/generate-icons
func (h *IconHandler) handlePreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.WriteHeader(http.StatusNoContent)
}

// handleGenerate handles POST /api/generate-icons - returns the icon archive
func (h *IconHandler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	maxBytes := h.generator.Validator().MaxBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+multipartOverhead)

	req, err := h.parseRequest(r, maxBytes)
	if err != nil {
		h.writeError(w, err)
		return
	}

	result, err := h.generator.Handle(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(result.ArchiveBytes)))
	w.Header().Set(headerIconCount, strconv.Itoa(result.TotalFileCount))
	w.Header().Set(headerPlatforms, strings.Join(req.PlatformIDs, ","))
	w.Header().Set(headerGenerationID, result.ID)
	if len(result.Warnings) > 0 {
		w.Header().Set(headerWarning, strings.Join(result.Warnings, " "))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(result.ArchiveBytes); err != nil {
		h.logger.Warn("Failed to write archive response",
			zap.String("generation_id", result.ID),
			zap.Error(err))
	}
}

// parseRequest reads the file and platforms fields of a multipart upload
func (h *IconHandler) parseRequest(r *http.Request, maxBytes int64) (*models.GenerationRequest, error) {
	if err := r.ParseMultipartForm(maxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, &ValidationError{
				Field:   "file",
				Message: fmt.Sprintf("File size exceeds %s limit.", humanize.IBytes(uint64(maxBytes))),
				Code:    CodeFileTooLarge,
			}
		}
		if !errors.Is(err, http.ErrNotMultipart) {
			return nil, &ValidationError{Field: "file", Message: msgInvalidForm, Code: "invalid_form"}
		}
	}

	req := &models.GenerationRequest{}

	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		// Read one byte past the limit so oversize uploads still fail validation
		data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}
		req.SourceImage = data
		req.MimeType = header.Header.Get("Content-Type")
		req.DeclaredSize = header.Size
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return nil, missingFile()
	default:
		return nil, &ValidationError{Field: "file", Message: msgInvalidForm, Code: "invalid_form"}
	}

	ids, err := ParsePlatforms(r.FormValue("platforms"))
	if err != nil {
		return nil, err
	}
	req.PlatformIDs = ids

	return req, nil
}

// writeError maps core errors to a status and a client-safe message
func (h *IconHandler) writeError(w http.ResponseWriter, err error) {
	var (
		validationErr *ValidationError
		decodeErr     *imaging.DecodeError
		unknownErr    *bundle.UnknownPlatformError
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: validationErr.Message, Code: validationErr.Code})
	case errors.As(err, &decodeErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msgUnreadableImage, Code: "invalid_image"})
	case errors.As(err, &unknownErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: unknownErr.Error(), Code: CodeUnknownPlatform})
	default:
		h.logger.Error("Icon generation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: msgGenerationFailed, Code: "processing_failed"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
