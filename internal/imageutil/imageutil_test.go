package imageutil

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/slide-pipeline/internal/domain"
)

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	return img
}

func pngBytes(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestValidate(t *testing.T) {
	data := pngBytes(t, solid(40, 20))

	img, format, err := Validate(data)
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.Equal(t, 40, img.Bounds().Dx())
}

func TestValidate_Invalid(t *testing.T) {
	data := pngBytes(t, solid(40, 20))

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"garbage", []byte("definitely not an image")},
		{"truncated", data[:len(data)/2]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Validate(tt.data)
			require.Error(t, err)
			assert.True(t, domain.IsValidation(err))
		})
	}
}

func TestDownscale(t *testing.T) {
	img := solid(400, 200)

	out := Downscale(img, 100)
	assert.Equal(t, 100, out.Bounds().Dx())
	assert.Equal(t, 50, out.Bounds().Dy())

	same := Downscale(img, 1000)
	assert.Equal(t, img, same)
}

func TestPrepareForTransmission(t *testing.T) {
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, solid(300, 100), nil))

	out, err := PrepareForTransmission(jpg.Bytes(), 150)
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 150, decoded.Bounds().Dx())
	assert.Equal(t, 50, decoded.Bounds().Dy())

	small := pngBytes(t, solid(50, 50))
	out, err = PrepareForTransmission(small, 150)
	require.NoError(t, err)
	assert.Equal(t, small, out)
}
