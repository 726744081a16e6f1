// Package bundle assembles resized icons for a set of platforms into a
// single zip archive.
package bundle

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"context"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/koios/iconforge/internal/imaging"
	"github.com/koios/iconforge/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Resizer renders one size of an already decoded image into PNG bytes
type Resizer interface {
	Submit(ctx context.Context, img image.Image, size models.IconSize) ([]byte, error)
}

// Cache stores finished archives keyed by source and platform list
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte) error
}

// Archive is the result of one assembly
type Archive struct {
	Data      []byte
	Paths     []string
	FileCount int
	Cached    bool
}

type entryKind int

const (
	entryPNG entryKind = iota
	entryLegacyIcon
	entryManifest
)

// entry is one planned archive file
type entry struct {
	kind     entryKind
	path     string
	size     models.IconSize
	platform *models.Platform
}

func (e entry) label() string {
	switch e.kind {
	case entryLegacyIcon:
		return models.LegacyIconFileName
	case entryManifest:
		return models.ManifestFileName
	default:
		return e.size.Name
	}
}

// Assembler turns a source image and platform ids into a zip archive
type Assembler struct {
	catalog   *models.Catalog
	resizer   Resizer
	cache     Cache
	maxPixels int64
	logger    *zap.Logger
	now       func() time.Time
}

// NewAssembler creates an assembler over catalog that renders through resizer
func NewAssembler(catalog *models.Catalog, resizer Resizer, logger *zap.Logger) *Assembler {
	return &Assembler{
		catalog:   catalog,
		resizer:   resizer,
		maxPixels: imaging.DefaultMaxSourcePixels,
		logger:    logger,
		now:       time.Now,
	}
}

// WithCache enables archive caching
func (a *Assembler) WithCache(cache Cache) *Assembler {
	a.cache = cache
	return a
}

// WithMaxSourcePixels overrides the largest source raster, in pixels, the
// assembler will decode
func (a *Assembler) WithMaxSourcePixels(n int64) *Assembler {
	a.maxPixels = n
	return a
}

// Catalog returns the catalog the assembler reads from
func (a *Assembler) Catalog() *models.Catalog {
	return a.catalog
}

// Assemble renders every size of the requested platforms, de-duplicating
// entries shared across platforms in favor of the first platform listed,
// and packs the result into a maximally compressed zip. Any failure aborts
// the whole archive.
//
// Errors are typed: *UnknownPlatformError for an id missing from the
// catalog, *imaging.DecodeError when the source cannot be decoded or exceeds
// the pixel limit, and *ProcessingFailedError naming the entry that failed
// to render or the archive itself. A canceled ctx returns ctx.Err().
func (a *Assembler) Assemble(ctx context.Context, src []byte, ids []string) (*Archive, error) {
	platforms, err := a.resolve(ids)
	if err != nil {
		return nil, err
	}

	plan := planEntries(platforms)

	var cacheKey string
	if a.cache != nil {
		cacheKey = CacheKey(src, ids)
		if archive, ok := a.fromCache(ctx, cacheKey, plan); ok {
			return archive, nil
		}
	}

	img, format, err := imaging.DecodeLimited(src, a.maxPixels)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("Assembling icon archive",
		zap.Strings("platforms", ids),
		zap.String("source_format", format),
		zap.Int("entries", len(plan)))

	contents, err := a.render(ctx, img, plan)
	if err != nil {
		return nil, err
	}

	data, err := a.writeZip(plan, contents)
	if err != nil {
		return nil, &ProcessingFailedError{Name: "archive", Err: err}
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, cacheKey, data); err != nil {
			a.logger.Warn("Failed to cache archive", zap.Error(err))
		}
	}

	return &Archive{
		Data:      data,
		Paths:     planPaths(plan),
		FileCount: len(plan),
	}, nil
}

func (a *Assembler) resolve(ids []string) ([]*models.Platform, error) {
	platforms := make([]*models.Platform, 0, len(ids))
	for _, id := range ids {
		p, ok := a.catalog.GetPlatform(id)
		if !ok {
			return nil, &UnknownPlatformError{ID: id, Valid: a.catalog.IDs()}
		}
		platforms = append(platforms, p)
	}
	return platforms, nil
}

// planEntries walks platforms in order and keeps the first occurrence of
// every de-duplication key and extra file path
func planEntries(platforms []*models.Platform) []entry {
	var plan []entry
	seenSizes := make(map[models.SizeKey]struct{})
	seenExtras := make(map[string]struct{})

	addExtra := func(kind entryKind, p *models.Platform, name string) {
		path := models.JoinFolder(p.Folder(), name)
		if _, dup := seenExtras[path]; dup {
			return
		}
		seenExtras[path] = struct{}{}
		plan = append(plan, entry{kind: kind, path: path, platform: p})
	}

	for _, p := range platforms {
		for _, size := range p.Sizes {
			if _, dup := seenSizes[size.Key()]; dup {
				continue
			}
			seenSizes[size.Key()] = struct{}{}
			plan = append(plan, entry{kind: entryPNG, path: size.Path(), size: size, platform: p})
		}

		if p.GenerateIco {
			addExtra(entryLegacyIcon, p, models.LegacyIconFileName)
		}
		if p.GenerateManifest {
			addExtra(entryManifest, p, models.ManifestFileName)
		}
	}

	return plan
}

func planPaths(plan []entry) []string {
	paths := make([]string, len(plan))
	for i, e := range plan {
		paths[i] = e.path
	}
	return paths
}

// render produces the bytes of every planned entry. Sizes are fanned out
// to the resizer; the first error cancels the rest.
func (a *Assembler) render(ctx context.Context, img image.Image, plan []entry) ([][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contents := make([][]byte, len(plan))
	g, gctx := errgroup.WithContext(ctx)

	for i, e := range plan {
		i, e := i, e
		g.Go(func() error {
			var (
				data []byte
				err  error
			)
			switch e.kind {
			case entryPNG:
				data, err = a.resizer.Submit(gctx, img, e.size)
			case entryLegacyIcon:
				data, err = imaging.EncodeLegacyContainerImage(img)
			case entryManifest:
				data, err = BuildManifest(e.platform)
			}
			if err != nil {
				return &ProcessingFailedError{Name: e.label(), Err: err}
			}
			contents[i] = data
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.logger.Error("Icon rendering failed", zap.Error(err))
		return nil, err
	}

	return contents, nil
}

func (a *Assembler) writeZip(plan []entry, contents [][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestCompression)
	})

	modified := a.now()
	for i, e := range plan {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     e.path,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", e.path, err)
		}
		if _, err := w.Write(contents[i]); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", e.path, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return buf.Bytes(), nil
}

func (a *Assembler) fromCache(ctx context.Context, key string, plan []entry) (*Archive, bool) {
	data, found, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.Warn("Archive cache lookup failed", zap.Error(err))
		return nil, false
	}
	if !found {
		return nil, false
	}

	a.logger.Debug("Archive cache hit", zap.Int("bytes", len(data)))
	return &Archive{
		Data:      data,
		Paths:     planPaths(plan),
		FileCount: len(plan),
		Cached:    true,
	}, true
}
