package analyzer

import (
	"bytes"
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/menta2k/print-sizer/pkg/types"
)

// Source is a decoded upload
type Source interface {
	// Name is the original filename
	Name() string
	// Format is "jpeg", "png" or "svg"
	Format() string
	// Bounds are the native pixel bounds, anchored at the origin
	Bounds() image.Rectangle
	// Image is the native-resolution raster
	Image() image.Image
}

// Drawer is implemented by sources that can render a region directly at
// the requested output size instead of resampling the native raster.
type Drawer interface {
	DrawRegion(region types.CropRegion, width, height int) (image.Image, error)
}

// NewSource wraps an already decoded image
func NewSource(name string, img image.Image) Source {
	return &rasterSource{name: name, format: "raster", img: normalize(img)}
}

type rasterSource struct {
	name   string
	format string
	img    image.Image
}

func (s *rasterSource) Name() string            { return s.name }
func (s *rasterSource) Format() string          { return s.format }
func (s *rasterSource) Bounds() image.Rectangle { return s.img.Bounds() }
func (s *rasterSource) Image() image.Image      { return s.img }

// normalize moves the image to the origin so that source coordinates and
// crop regions share one space.
func normalize(img image.Image) image.Image {
	if img.Bounds().Min == image.Pt(0, 0) {
		return img
	}
	return imaging.Clone(img)
}

// vectorSource keeps the parsed SVG so each output is rasterized at its own
// resolution. oksvg icons carry mutable target state, hence the mutex.
type vectorSource struct {
	name   string
	mu     sync.Mutex
	icon   *oksvg.SvgIcon
	width  float64
	height float64
	raster *image.RGBA
}

func decodeSVG(data []byte, name string) (Source, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data), oksvg.WarnErrorMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}
	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 {
		return nil, &ValidationError{Reasons: []string{"SVG has no usable viewBox"}}
	}

	src := &vectorSource{name: name, icon: icon, width: w, height: h}
	raster, err := src.rasterize(types.CropRegion{Width: w, Height: h}, int(math.Round(w)), int(math.Round(h)))
	if err != nil {
		return nil, err
	}
	src.raster = raster
	return src, nil
}

func (s *vectorSource) Name() string            { return s.name }
func (s *vectorSource) Format() string          { return "svg" }
func (s *vectorSource) Bounds() image.Rectangle { return s.raster.Bounds() }
func (s *vectorSource) Image() image.Image      { return s.raster }

// DrawRegion renders the region of the drawing, given in native pixels,
// onto a width×height canvas.
func (s *vectorSource) DrawRegion(region types.CropRegion, width, height int) (image.Image, error) {
	return s.rasterize(region, width, height)
}

func (s *vectorSource) rasterize(region types.CropRegion, width, height int) (img *image.RGBA, err error) {
	if width <= 0 || height <= 0 || region.Width <= 0 || region.Height <= 0 {
		return nil, fmt.Errorf("invalid svg raster size %dx%d", width, height)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("rasterizing svg: %v", r)
		}
	}()

	sx := float64(width) / region.Width
	sy := float64(height) / region.Height
	s.icon.SetTarget(-region.X*sx, -region.Y*sy, s.width*sx, s.height*sy)

	img = image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	s.icon.Draw(rasterx.NewDasher(width, height, scanner), 1.0)
	return img, nil
}

func readFile(path string, limit int64) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	if info.Size() > limit {
		return nil, &ValidationError{Reasons: []string{ReasonTooLarge}}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return data, nil
}
