// Package imaging turns uploaded source images into resized PNG renditions
// and legacy multi-resolution .ico containers.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Import for image format support
	_ "image/png"  // Import for image format support
	"math"

	"github.com/gabriel-vasile/mimetype"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	_ "golang.org/x/image/webp" // Import for image format support
)

const (
	svgMimeType = "image/svg+xml"

	// SVG sources are rasterized so their long side lands in this range
	// before they go through the regular resize path.
	svgMinRasterSide = 1024
	svgMaxRasterSide = 4096
)

// DefaultMaxSourcePixels caps the width*height of a raster source before
// its pixels are allocated
const DefaultMaxSourcePixels int64 = 0x3FFF * 0x3FFF

// DecodeError reports source bytes that cannot be parsed as a supported image
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("failed to decode image: %v", e.Err)
	}
	return fmt.Sprintf("failed to decode %s image: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ImageInfo contains metadata about a source image
type ImageInfo struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Format   string `json:"format"`
	MimeType string `json:"mime_type"`
}

// DetectMimeType sniffs the content type of data
func DetectMimeType(data []byte) string {
	return mimetype.Detect(data).String()
}

func isSVG(data []byte) bool {
	return mimetype.Detect(data).Is(svgMimeType)
}

// Decode parses src as PNG, JPEG, WEBP or SVG and returns the image and its
// format name, rejecting rasters larger than DefaultMaxSourcePixels
func Decode(src []byte) (image.Image, string, error) {
	return DecodeLimited(src, DefaultMaxSourcePixels)
}

// DecodeLimited is Decode with an explicit pixel limit. The header is read
// first so an oversized raster fails before any pixel buffer exists.
func DecodeLimited(src []byte, maxPixels int64) (image.Image, string, error) {
	if len(src) == 0 {
		return nil, "", &DecodeError{Err: fmt.Errorf("empty input")}
	}

	if isSVG(src) {
		img, err := decodeSVG(src)
		if err != nil {
			return nil, "svg", err
		}
		return img, "svg", nil
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, format, &DecodeError{Format: format, Err: err}
	}
	if err := CheckPixelLimit(cfg.Width, cfg.Height, format, maxPixels); err != nil {
		return nil, format, err
	}

	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, format, &DecodeError{Format: format, Err: err}
	}

	if img.Bounds().Empty() {
		return nil, format, &DecodeError{Format: format, Err: fmt.Errorf("image has no pixels")}
	}

	return img, format, nil
}

// Inspect extracts the natural dimensions and format of src without decoding pixel data
func Inspect(src []byte) (ImageInfo, error) {
	if len(src) == 0 {
		return ImageInfo{}, &DecodeError{Err: fmt.Errorf("empty input")}
	}

	if isSVG(src) {
		icon, err := oksvg.ReadIconStream(bytes.NewReader(src))
		if err != nil {
			return ImageInfo{}, &DecodeError{Format: "svg", Err: err}
		}
		return ImageInfo{
			Width:    int(math.Round(icon.ViewBox.W)),
			Height:   int(math.Round(icon.ViewBox.H)),
			Format:   "svg",
			MimeType: svgMimeType,
		}, nil
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return ImageInfo{}, &DecodeError{Format: format, Err: err}
	}

	return ImageInfo{
		Width:    cfg.Width,
		Height:   cfg.Height,
		Format:   format,
		MimeType: formatToMimeType(format),
	}, nil
}

// CheckPixelLimit returns a DecodeError when a width x height raster holds
// more than maxPixels pixels. A non-positive maxPixels disables the check.
func CheckPixelLimit(width, height int, format string, maxPixels int64) error {
	if maxPixels <= 0 {
		return nil
	}
	if int64(width)*int64(height) > maxPixels {
		return &DecodeError{
			Format: format,
			Err:    fmt.Errorf("image is %dx%d, exceeds the %d pixel limit", width, height, maxPixels),
		}
	}
	return nil
}

// ResolutionWarning returns an advisory message when the source is smaller
// than minSide in either dimension, or an empty string otherwise
func ResolutionWarning(info ImageInfo, minSide int) string {
	if info.Width >= minSide && info.Height >= minSide {
		return ""
	}
	return fmt.Sprintf("Note: Your image is %dx%d. For best quality, we recommend at least %dx%d pixels.",
		info.Width, info.Height, minSide, minSide)
}

func decodeSVG(src []byte) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(src))
	if err != nil {
		return nil, &DecodeError{Format: "svg", Err: err}
	}

	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 {
		return nil, &DecodeError{Format: "svg", Err: fmt.Errorf("invalid viewBox %gx%g", w, h)}
	}

	scale := 1.0
	if long := math.Max(w, h); long < svgMinRasterSide {
		scale = svgMinRasterSide / long
	} else if long > svgMaxRasterSide {
		scale = svgMaxRasterSide / long
	}

	outW := max(1, int(math.Round(w*scale)))
	outH := max(1, int(math.Round(h*scale)))

	icon.SetTarget(0, 0, float64(outW), float64(outH))

	img := image.NewRGBA(image.Rect(0, 0, outW, outH))
	scanner := rasterx.NewScannerGV(outW, outH, img, img.Bounds())
	raster := rasterx.NewDasher(outW, outH, scanner)
	icon.Draw(raster, 1.0)

	return img, nil
}

// formatToMimeType converts an image format name to a MIME type
func formatToMimeType(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "jpeg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "svg":
		return svgMimeType
	default:
		return "image/" + format
	}
}
