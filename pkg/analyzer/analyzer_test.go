package analyzer

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/print-sizer/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Fill with a gradient pattern
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r := uint8((x * 255) / width)
			g := uint8((y * 255) / height)
			b := uint8(128)
			img.Set(x, y, color.RGBA{r, g, b, 255})
		}
	}

	return img
}

func encodeTestImage(t testing.TB, width, height int, format imaging.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, createTestImage(width, height), format))
	return buf.Bytes()
}

const testSVG = `<?xml version="1.0" encoding="UTF-8"?>
<svg xmlns="http://www.w3.org/2000/svg" width="200" height="100" viewBox="0 0 200 100">
  <rect x="0" y="0" width="100" height="100" fill="#ff0000"/>
  <rect x="100" y="0" width="100" height="100" fill="#0000ff"/>
</svg>`

func reasons(t *testing.T, err error) []string {
	t.Helper()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	return verr.Reasons
}

func TestNew(t *testing.T) {
	analyzer := New()
	require.NotNil(t, analyzer)
	assert.Equal(t, int64(MaxFileSize), analyzer.config.MaxFileSize)
	assert.Equal(t, []string{"jpeg", "png", "svg"}, analyzer.config.SupportedFormats)
}

func TestNewWithConfig(t *testing.T) {
	analyzer := NewWithConfig(Config{
		SupportedFormats: []string{"png"},
		MinImageSize:     200,
	})
	require.NotNil(t, analyzer)
	assert.Equal(t, 200, analyzer.config.MinImageSize)
	// an unset limit falls back to the default
	assert.Equal(t, int64(MaxFileSize), analyzer.config.MaxFileSize)
}

func TestLoadBytesRaster(t *testing.T) {
	analyzer := New()

	src, err := analyzer.LoadBytes(encodeTestImage(t, 400, 300, imaging.PNG), "photo.png")
	require.NoError(t, err)
	assert.Equal(t, "png", src.Format())
	assert.Equal(t, "photo.png", src.Name())
	assert.Equal(t, image.Rect(0, 0, 400, 300), src.Bounds())

	src, err = analyzer.LoadBytes(encodeTestImage(t, 120, 80, imaging.JPEG), "photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "jpeg", src.Format())
	assert.Equal(t, image.Rect(0, 0, 120, 80), src.Image().Bounds())
}

func TestLoadBytesSVG(t *testing.T) {
	src, err := New().LoadBytes([]byte(testSVG), "drawing.svg")
	require.NoError(t, err)
	assert.Equal(t, "svg", src.Format())
	assert.Equal(t, image.Rect(0, 0, 200, 100), src.Bounds())

	// left half red, right half blue
	r, _, b, _ := src.Image().At(50, 50).RGBA()
	assert.Greater(t, r, b)
	r, _, b, _ = src.Image().At(150, 50).RGBA()
	assert.Greater(t, b, r)
}

func TestSVGDrawRegion(t *testing.T) {
	src, err := New().LoadBytes([]byte(testSVG), "drawing.svg")
	require.NoError(t, err)

	drawer, ok := src.(Drawer)
	require.True(t, ok, "svg sources render regions directly")

	// the right half of the drawing at twice its native size
	img, err := drawer.DrawRegion(types.CropRegion{X: 100, Y: 0, Width: 100, Height: 100}, 200, 200)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 200), img.Bounds())
	r, _, b, _ := img.At(100, 100).RGBA()
	assert.Greater(t, b, r)

	_, err = drawer.DrawRegion(types.CropRegion{}, 10, 10)
	assert.Error(t, err)
}

func TestLoadBytesRejects(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		data   []byte
		file   string
		want   []string
	}{
		{"empty", DefaultConfig(), nil, "empty.png", []string{ReasonEmpty}},
		{"not an image", DefaultConfig(), []byte("just some text"), "notes.txt", []string{ReasonNotImage, ReasonUnsupported}},
		{"too large", Config{MaxFileSize: 16, SupportedFormats: []string{"png"}, MinImageSize: 1}, encodeTestImage(t, 10, 10, imaging.PNG), "big.png", []string{ReasonTooLarge}},
		{"unsupported", Config{SupportedFormats: []string{"png"}, MinImageSize: 1}, encodeTestImage(t, 10, 10, imaging.JPEG), "photo.jpg", []string{ReasonUnsupported}},
		{"gif", DefaultConfig(), encodeTestImage(t, 10, 10, imaging.GIF), "anim.gif", []string{ReasonUnsupported}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithConfig(tt.config).LoadBytes(tt.data, tt.file)
			require.Error(t, err)
			assert.True(t, IsValidationError(err))
			assert.Equal(t, tt.want, reasons(t, err))
		})
	}
}

func TestLoadBytesTooSmall(t *testing.T) {
	analyzer := NewWithConfig(Config{SupportedFormats: []string{"png"}, MinImageSize: 100})
	_, err := analyzer.LoadBytes(encodeTestImage(t, 50, 50, imaging.PNG), "small.png")
	require.Error(t, err)
	assert.Contains(t, reasons(t, err)[0], ReasonTooSmall)
}

func TestLoadAndLoadFile(t *testing.T) {
	data := encodeTestImage(t, 64, 48, imaging.PNG)

	src, err := New().Load(bytes.NewReader(data), "upload.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 64, 48), src.Bounds())

	path := filepath.Join(t.TempDir(), "disk.png")
	require.NoError(t, os.WriteFile(path, data, 0644))
	src, err = New().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "disk.png", src.Name())

	small := NewWithConfig(Config{MaxFileSize: 10, SupportedFormats: []string{"png"}, MinImageSize: 1})
	_, err = small.LoadFile(path)
	assert.True(t, IsValidationError(err))

	_, err = New().LoadFile(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
	assert.False(t, IsValidationError(err))
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, "png", DetectFormat(encodeTestImage(t, 4, 4, imaging.PNG), "x"))
	assert.Equal(t, "jpeg", DetectFormat(encodeTestImage(t, 4, 4, imaging.JPEG), "x"))
	assert.Equal(t, "svg", DetectFormat([]byte(testSVG), "x"))
	assert.Equal(t, "", DetectFormat([]byte("plain"), "plain.txt"))
}

func TestNewSourceNormalizesOrigin(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 20, 110, 70))
	src := NewSource("shifted", img)
	assert.Equal(t, image.Rect(0, 0, 100, 50), src.Bounds())
	assert.Equal(t, "raster", src.Format())

	plain := createTestImage(10, 10)
	assert.Same(t, plain, NewSource("plain", plain).Image())
}

func TestGetImageInfo(t *testing.T) {
	analyzer := New()
	img := createTestImage(400, 300)

	info := analyzer.GetImageInfo(img)

	assert.Equal(t, 400, info.Width)
	assert.Equal(t, 300, info.Height)
	assert.Equal(t, float64(400)/float64(300), info.AspectRatio)
	assert.Equal(t, 120000, info.Area)
}

func TestValidateImage(t *testing.T) {
	analyzer := NewWithConfig(Config{SupportedFormats: []string{"png"}, MinImageSize: 100})

	// Valid image
	assert.NoError(t, analyzer.ValidateImage(createTestImage(200, 200)))

	// Invalid image (too small)
	err := analyzer.ValidateImage(createTestImage(50, 50))
	assert.True(t, IsValidationError(err))
}

func TestIsFormatSupported(t *testing.T) {
	analyzer := New()

	for _, format := range []string{"jpg", "jpeg", "png", "svg", "JPG", "JPEG", "PNG"} {
		assert.True(t, analyzer.isFormatSupported(format), format)
	}

	for _, format := range []string{"gif", "bmp", "tiff", "webp"} {
		assert.False(t, analyzer.isFormatSupported(format), format)
	}
}

func BenchmarkGetImageInfo(b *testing.B) {
	analyzer := New()
	img := createTestImage(1920, 1080)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		analyzer.GetImageInfo(img)
	}
}

func BenchmarkLoadBytes(b *testing.B) {
	analyzer := New()
	data := encodeTestImage(b, 1920, 1080, imaging.JPEG)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		analyzer.LoadBytes(data, "bench.jpg")
	}
}
