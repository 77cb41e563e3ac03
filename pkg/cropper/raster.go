package cropper

import (
	"image"
	"image/color"
	"io"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"

	"github.com/menta2k/print-sizer/pkg/types"
)

// Rasterize executes cmds against a width×height surface, drawing OpImage
// commands from src.
func Rasterize(cmds []Command, src image.Image, width, height int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	sb := src.Bounds()
	for _, c := range cmds {
		r := toRect(c.Dst).Intersect(dst.Bounds())
		switch c.Op {
		case OpClear:
			draw.Draw(dst, r, image.Transparent, image.Point{}, draw.Src)
		case OpImage:
			sr := toRect(c.Src).Add(sb.Min).Intersect(sb)
			if sr.Empty() || r.Empty() {
				continue
			}
			draw.CatmullRom.Scale(dst, toRect(c.Dst), src, sr, draw.Over, nil)
		case OpFill:
			draw.Draw(dst, r, image.NewUniform(c.Color), image.Point{}, draw.Over)
		case OpStroke:
			stroke := int(math.Max(1, math.Round(c.LineWidth)))
			drawBox(dst, toRect(c.Dst), c.Color, stroke)
		}
	}
	return dst
}

// RenderImage draws the editor's current view
func (e *Editor) RenderImage() *image.NRGBA {
	v := e.View()
	return Rasterize(Render(v), e.source.Image(), int(v.Display.Width), int(v.Display.Height))
}

// WritePNG encodes the editor's current view as PNG
func (e *Editor) WritePNG(w io.Writer) error {
	return imaging.Encode(w, e.RenderImage(), imaging.PNG)
}

func toRect(r types.CropRegion) image.Rectangle {
	x0 := int(math.Round(r.X))
	y0 := int(math.Round(r.Y))
	x1 := int(math.Round(r.X + r.Width))
	y1 := int(math.Round(r.Y + r.Height))
	return image.Rect(x0, y0, x1, y1)
}

// drawBox strokes the inside edge of r, stroke pixels thick
func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	if r.Empty() {
		return
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
