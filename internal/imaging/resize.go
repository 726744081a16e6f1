package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/koios/iconforge/pkg/models"
	"golang.org/x/image/draw"
)

var pngEncoder = png.Encoder{CompressionLevel: png.BestCompression}

// Resize decodes src and renders it into a width x height PNG. Square
// targets use contain-and-pad unless fit is FitBanner; every other target
// uses cover-and-crop. Content is always centered.
func Resize(src []byte, width, height int, fit models.FitHint) ([]byte, error) {
	img, _, err := Decode(src)
	if err != nil {
		return nil, err
	}
	return ResizeImage(img, width, height, fit)
}

// ResizeImage renders an already decoded image and encodes it as PNG
func ResizeImage(img image.Image, width, height int, fit models.FitHint) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	return EncodePNG(Render(img, width, height, fit))
}

// Render scales img into a new width x height canvas following the fit policy
func Render(img image.Image, width, height int, fit models.FitHint) *image.RGBA {
	if width == height && fit != models.FitBanner {
		return renderContain(img, width, height)
	}
	return renderCover(img, width, height)
}

// EncodePNG encodes img losslessly at the highest compression level
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := pngEncoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// renderContain fits the whole source inside the box and leaves the rest
// fully transparent
func renderContain(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	sb := img.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	scale := math.Min(float64(width)/sw, float64(height)/sh)

	dw := clamp(int(math.Round(sw*scale)), 1, width)
	dh := clamp(int(math.Round(sh*scale)), 1, height)
	x0 := (width - dw) / 2
	y0 := (height - dh) / 2

	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+dw, y0+dh), img, sb, draw.Src, nil)
	return dst
}

// renderCover fills the whole box and crops the overflowing source edges
func renderCover(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	sb := img.Bounds()
	sw, sh := float64(sb.Dx()), float64(sb.Dy())
	scale := math.Max(float64(width)/sw, float64(height)/sh)

	cw := clamp(int(math.Round(float64(width)/scale)), 1, sb.Dx())
	ch := clamp(int(math.Round(float64(height)/scale)), 1, sb.Dy())
	x0 := sb.Min.X + (sb.Dx()-cw)/2
	y0 := sb.Min.Y + (sb.Dy()-ch)/2

	draw.CatmullRom.Scale(dst, dst.Bounds(), img, image.Rect(x0, y0, x0+cw, y0+ch), draw.Src, nil)
	return dst
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
