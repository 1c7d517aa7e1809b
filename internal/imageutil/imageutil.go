// Package imageutil validates and resizes page images before they are sent
// to the extraction service.
package imageutil

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/spherical/slide-pipeline/internal/domain"
)

// maxPixels bounds decoded image size.
const maxPixels = 100_000_000

// Validate decodes data and checks its structure. It returns the decoded
// image so callers do not decode twice.
func Validate(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", domain.ValidationError("image is empty", nil)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", domain.ValidationError("image header is unreadable", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, "", domain.ValidationError(fmt.Sprintf("image has invalid size %dx%d", cfg.Width, cfg.Height), nil)
	}
	if cfg.Width*cfg.Height > maxPixels {
		return nil, "", domain.ValidationError(fmt.Sprintf("image is too large: %dx%d", cfg.Width, cfg.Height), nil)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", domain.ValidationError("image data is corrupt", err)
	}

	b := img.Bounds()
	if b.Dx() != cfg.Width || b.Dy() != cfg.Height {
		return nil, "", domain.ValidationError("decoded image size does not match header", nil)
	}

	return img, format, nil
}

// Downscale returns img scaled to at most maxWidth pixels wide, keeping the
// aspect ratio. Images already within bounds are returned unchanged.
func Downscale(img image.Image, maxWidth int) image.Image {
	b := img.Bounds()
	if maxWidth <= 0 || b.Dx() <= maxWidth {
		return img
	}

	height := b.Dy() * maxWidth / b.Dx()
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// PrepareForTransmission validates data, downscales it to maxWidth and
// re-encodes it as PNG.
func PrepareForTransmission(data []byte, maxWidth int) ([]byte, error) {
	img, format, err := Validate(data)
	if err != nil {
		return nil, err
	}

	if format == "png" && img.Bounds().Dx() <= maxWidth {
		return data, nil
	}

	return EncodePNG(Downscale(img, maxWidth))
}
