package cropper

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/print-sizer/pkg/types"
)

func TestRenderClosed(t *testing.T) {
	assert.Nil(t, Render(View{Open: false, Display: types.Size{Width: 10, Height: 10}}))
	assert.Nil(t, Render(View{Open: true}))
}

func TestRenderCommands(t *testing.T) {
	e, _ := newTestEditor(t)
	cmds := Render(e.View())
	require.Len(t, cmds, 10)

	ops := make([]Op, len(cmds))
	for i, c := range cmds {
		ops[i] = c.Op
	}
	assert.Equal(t, []Op{OpClear, OpImage, OpFill, OpClear, OpImage, OpStroke, OpFill, OpFill, OpFill, OpFill}, ops)

	full := types.CropRegion{Width: 800, Height: 600}
	assert.Equal(t, full, cmds[0].Dst)
	assert.Equal(t, types.CropRegion{Width: 400, Height: 300}, cmds[1].Src)
	assert.Equal(t, uint8(128), cmds[2].Color.A)

	crop := e.DisplayRegion()
	assert.Equal(t, crop, cmds[3].Dst)
	assert.Equal(t, e.Region(), cmds[4].Src)
	assert.Equal(t, crop, cmds[4].Dst)
	assert.Equal(t, 2.0, cmds[5].LineWidth)

	// handles are 8px squares centered on the corners
	tl := cmds[6].Dst
	assert.Equal(t, 8.0, tl.Width)
	assert.InDelta(t, crop.X-4, tl.X, 1e-9)
	assert.InDelta(t, crop.Y-4, tl.Y, 1e-9)
	br := cmds[9].Dst
	assert.InDelta(t, crop.X+crop.Width-4, br.X, 1e-9)
	assert.InDelta(t, crop.Y+crop.Height-4, br.Y, 1e-9)
}

func TestRenderIsPure(t *testing.T) {
	e, _ := newTestEditor(t)
	v := e.View()
	assert.Equal(t, Render(v), Render(v))
}

func TestRasterize(t *testing.T) {
	e, _ := newTestEditor(t)
	img := e.RenderImage()
	require.Equal(t, image.Rect(0, 0, 800, 600), img.Bounds())

	// inside the crop window the source shows undimmed
	inside := img.NRGBAAt(400, 300)
	assert.Equal(t, uint8(255), inside.A)
	assert.Greater(t, inside.R, uint8(240))

	// outside it is dimmed by the overlay
	outside := img.NRGBAAt(50, 300)
	assert.Equal(t, uint8(255), outside.A)
	assert.InDelta(t, 127, int(outside.R), 8)

	// the border sits on the window's left edge
	assert.Equal(t, borderColor, img.NRGBAAt(160, 300))
}

func TestRasterizeEmpty(t *testing.T) {
	img := Rasterize(nil, imaging.New(10, 10, color.White), 20, 10)
	assert.Equal(t, image.Rect(0, 0, 20, 10), img.Bounds())
	assert.Equal(t, uint8(0), img.NRGBAAt(5, 5).A)
}

func TestWritePNG(t *testing.T) {
	e, _ := newTestEditor(t)
	var buf bytes.Buffer
	require.NoError(t, e.WritePNG(&buf))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 800, 600), img.Bounds())
}

func BenchmarkRender(b *testing.B) {
	v := View{
		Source:  types.Size{Width: 4000, Height: 3000},
		Display: types.Size{Width: 800, Height: 600},
		Region:  types.CropRegion{X: 800, Width: 2400, Height: 3000},
		Open:    true,
	}
	for i := 0; i < b.N; i++ {
		Render(v)
	}
}
