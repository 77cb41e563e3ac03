package processing

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/print-sizer/pkg/analyzer"
	"github.com/menta2k/print-sizer/pkg/dpi"
	"github.com/menta2k/print-sizer/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))

	// Create a pattern with a bright subject in the center
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}

	return img
}

func solidImage(width, height int, c color.Color) image.Image {
	return imaging.New(width, height, c)
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, format, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, "jpeg", format)
	return img
}

func assertColorNear(t *testing.T, want color.NRGBA, got color.Color, tolerance int) {
	t.Helper()
	c := color.NRGBAModel.Convert(got).(color.NRGBA)
	near := func(a, b uint8) bool {
		d := int(a) - int(b)
		return d >= -tolerance && d <= tolerance
	}
	assert.True(t, near(want.R, c.R) && near(want.G, c.G) && near(want.B, c.B),
		"want %v, got %v", want, c)
}

func testDims(w, h int) types.PixelDimensions {
	return types.PixelDimensions{Width: w, Height: h, Label: "test", AspectRatio: float64(w) / float64(h)}
}

func TestNewProcessor(t *testing.T) {
	p := NewProcessor()
	assert.Equal(t, 300, p.DPI())
	assert.Equal(t, StrategyCenter, p.config.CropStrategy)
	assert.Equal(t, imaging.Lanczos.Support, p.config.Filter.Support)

	p = NewWithConfig(Config{DPI: 150, CropStrategy: StrategySmart})
	assert.Equal(t, 150, p.DPI())
	assert.Equal(t, StrategySmart, p.config.CropStrategy)
}

func TestPixelDimensions(t *testing.T) {
	size := types.PhysicalSize{RatioKey: "4:5", Width: 8, Height: 10, Label: `8×10"`}
	assert.Equal(t, 2400, NewProcessor().PixelDimensions(size).Width)
	assert.Equal(t, 80, NewWithConfig(Config{DPI: 10}).PixelDimensions(size).Width)
}

func TestRenderExactDimensions(t *testing.T) {
	p := NewProcessor()
	src := analyzer.NewSource("test", createTestImage(400, 300))

	for _, dims := range []types.PixelDimensions{testDims(80, 100), testDims(150, 100), testDims(33, 47), testDims(1, 1)} {
		data, err := p.Render(context.Background(), src, dims, nil)
		require.NoError(t, err)
		img := decode(t, data)
		assert.Equal(t, dims.Width, img.Bounds().Dx())
		assert.Equal(t, dims.Height, img.Bounds().Dy())
	}
}

func TestRenderPreservesContent(t *testing.T) {
	want := color.NRGBA{200, 100, 50, 255}
	src := analyzer.NewSource("solid", solidImage(200, 250, want))

	data, err := NewProcessor().Render(context.Background(), src, testDims(80, 100), nil)
	require.NoError(t, err)

	img := decode(t, data)
	assertColorNear(t, want, img.At(40, 50), 6)
}

func TestRenderUsesRegion(t *testing.T) {
	// left half black, right half white
	base := imaging.New(200, 100, color.Black)
	base = imaging.Paste(base, imaging.New(100, 100, color.White), image.Pt(100, 0))
	src := analyzer.NewSource("split", base)

	right := types.CropRegion{X: 100, Y: 0, Width: 100, Height: 100}
	data, err := NewProcessor().Render(context.Background(), src, testDims(50, 50), &right)
	require.NoError(t, err)
	assertColorNear(t, color.NRGBA{255, 255, 255, 255}, decode(t, data).At(25, 25), 6)

	left := types.CropRegion{X: 0, Y: 0, Width: 100, Height: 100}
	data, err = NewProcessor().Render(context.Background(), src, testDims(50, 50), &left)
	require.NoError(t, err)
	assertColorNear(t, color.NRGBA{0, 0, 0, 255}, decode(t, data).At(25, 25), 6)
}

func TestRenderFlattensTransparency(t *testing.T) {
	src := analyzer.NewSource("clear", solidImage(50, 50, color.NRGBA{0, 0, 0, 0}))

	data, err := NewProcessor().Render(context.Background(), src, testDims(20, 20), nil)
	require.NoError(t, err)
	assertColorNear(t, color.NRGBA{255, 255, 255, 255}, decode(t, data).At(10, 10), 6)
}

func TestRenderRejectsInvalidInput(t *testing.T) {
	p := NewProcessor()
	src := analyzer.NewSource("test", createTestImage(100, 100))
	ctx := context.Background()

	outside := types.CropRegion{X: 50, Y: 0, Width: 80, Height: 100}
	_, err := p.Render(ctx, src, testDims(10, 10), &outside)
	assert.ErrorIs(t, err, ErrInvalidRegion)

	empty := types.CropRegion{}
	_, err = p.Render(ctx, src, testDims(10, 10), &empty)
	assert.ErrorIs(t, err, ErrInvalidRegion)

	_, err = p.Render(ctx, src, testDims(0, 10), nil)
	assert.Error(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.Render(canceled, src, testDims(10, 10), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// failingSource is a Drawer that refuses to draw at selected widths
type failingSource struct {
	analyzer.Source
	failWidth int
	panics    bool
}

var errDraw = errors.New("draw failed")

func (s *failingSource) DrawRegion(region types.CropRegion, width, height int) (image.Image, error) {
	if width == s.failWidth {
		if s.panics {
			panic("boom")
		}
		return nil, errDraw
	}
	cropped := imaging.Crop(s.Image(), region.Rect())
	return imaging.Resize(cropped, width, height, imaging.Linear), nil
}

func TestRenderDecodeError(t *testing.T) {
	src := &failingSource{Source: analyzer.NewSource("test", createTestImage(100, 100)), failWidth: 10}

	_, err := NewProcessor().Render(context.Background(), src, testDims(10, 10), nil)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	assert.Equal(t, "test", decodeErr.Label)
	assert.ErrorIs(t, err, errDraw)

	src.panics = true
	_, err = NewProcessor().Render(context.Background(), src, testDims(10, 10), nil)
	assert.ErrorAs(t, err, &decodeErr)

	// other sizes still render through the drawer
	data, err := NewProcessor().Render(context.Background(), src, testDims(20, 10), nil)
	require.NoError(t, err)
	assert.Equal(t, 20, decode(t, data).Bounds().Dx())
}

func TestRenderEntry(t *testing.T) {
	p := NewWithConfig(Config{DPI: 20})
	p.newHandle = func() string { return "handle-1" }
	src := analyzer.NewSource("test", createTestImage(400, 300))
	size := types.PhysicalSize{RatioKey: "4:5", Width: 8, Height: 10, Label: `8×10"`}

	result, err := p.RenderEntry(context.Background(), src, size, nil)
	require.NoError(t, err)
	assert.Equal(t, size, result.Size)
	assert.Equal(t, 160, result.Pixels.Width)
	assert.Equal(t, 200, result.Pixels.Height)
	assert.Equal(t, "handle-1", result.Handle)
	assert.Nil(t, result.Crop)

	density, err := dpi.ReadDensityHeader(result.Data)
	require.NoError(t, err)
	assert.Equal(t, dpi.Density{Units: dpi.UnitsInches, X: 20, Y: 20}, density)

	img := decode(t, result.Data)
	assert.Equal(t, image.Rect(0, 0, 160, 200), img.Bounds())
}

func TestRenderEntryKeepsRegion(t *testing.T) {
	p := NewWithConfig(Config{DPI: 10})
	src := analyzer.NewSource("test", createTestImage(400, 300))
	size := types.PhysicalSize{RatioKey: "4:5", Width: 8, Height: 10, Label: `8×10"`}

	region := types.CropRegion{X: 0, Y: 0, Width: 240, Height: 300}
	result, err := p.RenderEntry(context.Background(), src, size, &region)
	require.NoError(t, err)
	require.NotNil(t, result.Crop)
	assert.Equal(t, region, *result.Crop)

	region.X = 99
	assert.Equal(t, 0.0, result.Crop.X, "stored region is a copy")
	assert.NotEmpty(t, result.Handle)
}

func TestRenderEntryRejectsRatioMismatch(t *testing.T) {
	p := NewWithConfig(Config{DPI: 10})
	src := analyzer.NewSource("test", createTestImage(1200, 1000))
	size := types.PhysicalSize{RatioKey: "4:5", Width: 8, Height: 10, Label: `8×10"`}

	for _, region := range []types.CropRegion{
		{X: 0, Y: 0, Width: 1200, Height: 400},
		{X: 0, Y: 0, Width: 800, Height: 800},
	} {
		_, err := p.RenderEntry(context.Background(), src, size, &region)
		assert.ErrorIs(t, err, ErrInvalidRegion, "%+v", region)
	}
}

func TestRenderIdentity(t *testing.T) {
	const w, h = 320, 240
	src := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src.SetNRGBA(x, y, color.NRGBA{uint8(x * 255 / (w - 1)), uint8(y * 255 / (h - 1)), 128, 255})
		}
	}

	region := types.CropRegion{X: 0, Y: 0, Width: w, Height: h}
	data, err := NewProcessor().Render(context.Background(), analyzer.NewSource("gradient", src), testDims(w, h), &region)
	require.NoError(t, err)

	img := decode(t, data)
	require.Equal(t, image.Rect(0, 0, w, h), img.Bounds())

	maxDiff := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			want := src.NRGBAAt(x, y)
			got := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			for _, d := range []int{int(want.R) - int(got.R), int(want.G) - int(got.G), int(want.B) - int(got.B)} {
				maxDiff = max(maxDiff, d, -d)
			}
		}
	}
	assert.LessOrEqual(t, maxDiff, 6, "full-frame render at native size drifted")
}

func TestDefaultRegion(t *testing.T) {
	src := analyzer.NewSource("test", createTestImage(4000, 3000))

	center := NewProcessor().DefaultRegion(src, 0.8)
	assert.Equal(t, types.CropRegion{X: 800, Y: 0, Width: 2400, Height: 3000}, center)
}

func TestDefaultRegionSmart(t *testing.T) {
	img := imaging.New(400, 200, color.NRGBA{30, 30, 30, 255})
	// a detailed subject on the right
	for y := 60; y < 140; y++ {
		for x := 300; x < 380; x++ {
			if (x/4+y/4)%2 == 0 {
				img.Set(x, y, color.NRGBA{255, 220, 180, 255})
			}
		}
	}
	src := analyzer.NewSource("test", img)

	region := NewWithConfig(Config{CropStrategy: StrategySmart}).DefaultRegion(src, 1)
	assert.Equal(t, 200.0, region.Width)
	assert.Equal(t, 200.0, region.Height)
	assert.True(t, region.Within(400, 200))
}

func TestDefaultRegionSaliency(t *testing.T) {
	img := imaging.New(400, 200, color.NRGBA{30, 30, 30, 255})
	// a detailed subject on the right
	for y := 60; y < 140; y++ {
		for x := 300; x < 380; x++ {
			if (x/4+y/4)%2 == 0 {
				img.Set(x, y, color.NRGBA{255, 220, 180, 255})
			}
		}
	}
	p := NewWithConfig(Config{CropStrategy: StrategySaliency})

	region := p.DefaultRegion(analyzer.NewSource("test", img), 1)
	assert.Equal(t, 200.0, region.Width)
	assert.Equal(t, 200.0, region.Height)
	assert.Equal(t, 0.0, region.Y)
	assert.GreaterOrEqual(t, region.X, 175.0, "window covers the subject")
	assert.True(t, region.Within(400, 200))

	// nothing stands out in a flat image, so the centered crop holds
	flat := analyzer.NewSource("flat", solidImage(400, 200, color.NRGBA{90, 90, 90, 255}))
	assert.Equal(t, types.CropRegion{X: 100, Y: 0, Width: 200, Height: 200}, p.DefaultRegion(flat, 1))
}

func TestSaliencyMapSum(t *testing.T) {
	img := imaging.New(6, 4, color.NRGBA{255, 255, 255, 255})
	m := newSaliencyMap(img)

	// only the 4×2 interior scores, each pixel by brightness alone
	assert.InDelta(t, 8*brightnessWeight, m.sum(0, 0, 6, 4), 1e-9)
	assert.InDelta(t, brightnessWeight, m.sum(1, 1, 1, 1), 1e-9)
	assert.InDelta(t, 0, m.sum(0, 0, 6, 1), 1e-9)
}

func TestPreview(t *testing.T) {
	img := createTestImage(800, 400)

	data, err := Preview(img, 200, 200, "jpeg", 80)
	require.NoError(t, err)
	thumb := decode(t, data)
	assert.Equal(t, image.Rect(0, 0, 200, 100), thumb.Bounds())

	data, err = Preview(img, 100, 100, "webp", 80)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), data[:4])
	assert.Equal(t, []byte("WEBP"), data[8:12])

	_, err = Preview(img, 100, 100, "gif", 80)
	assert.Error(t, err)
	_, err = Preview(img, 0, 100, "jpeg", 80)
	assert.Error(t, err)
}

func TestSaveResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jpg")

	err := SaveResult(types.ProcessedResult{Data: []byte{1, 2, 3}}, path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	assert.Error(t, SaveResult(types.ProcessedResult{}, path))
}

func BenchmarkRender(b *testing.B) {
	p := NewProcessor()
	src := analyzer.NewSource("bench", createTestImage(1920, 1080))
	dims := testDims(600, 750)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		p.Render(ctx, src, dims, nil)
	}
}
