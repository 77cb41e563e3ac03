package types

import (
	"image"
	"math"
)

// PhysicalSize is a catalog entry: a print size in inches
type PhysicalSize struct {
	RatioKey string  `json:"ratio_key"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Label    string  `json:"label"`
}

// AspectRatio returns width/height of the print
func (s PhysicalSize) AspectRatio() float64 {
	return s.Width / s.Height
}

// ID identifies the entry within a catalog. Labels alone are not unique.
func (s PhysicalSize) ID() string {
	return s.RatioKey + "/" + s.Label
}

// PixelDimensions is a PhysicalSize converted to pixels at a resolution
type PixelDimensions struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Label       string  `json:"label"`
	AspectRatio float64 `json:"aspect_ratio"`
}

// AspectRatio is one row of an ordered ratio table
type AspectRatio struct {
	Key   string  `json:"key"`
	Value float64 `json:"value"`
}

// Point is a position in either source or display space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is an extent in either source or display space
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// SizeOf returns the extent of r as a Size
func SizeOf(r image.Rectangle) Size {
	return Size{Width: float64(r.Dx()), Height: float64(r.Dy())}
}

// CropRegion is a rectangle in source image pixel coordinates
type CropRegion struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AspectRatio returns width/height of the region
func (c CropRegion) AspectRatio() float64 {
	if c.Height == 0 {
		return 0
	}
	return c.Width / c.Height
}

// RatioTolerance is how far a region's width/height may drift from a print
// ratio and still match it
const RatioTolerance = 1e-2

// MatchesRatio reports whether the region has the given width/height ratio.
// Small regions whose derived side is within one pixel of the exact value
// also match, since whole-pixel rounding alone can exceed RatioTolerance.
func (c CropRegion) MatchesRatio(ratio float64) bool {
	if c.Width <= 0 || c.Height <= 0 || ratio <= 0 {
		return false
	}
	if math.Abs(c.AspectRatio()-ratio) <= RatioTolerance {
		return true
	}
	return math.Abs(c.Width-c.Height*ratio) <= 1 || math.Abs(c.Height-c.Width/ratio) <= 1
}

// Rect rounds the region to whole pixels
func (c CropRegion) Rect() image.Rectangle {
	x := int(math.Round(c.X))
	y := int(math.Round(c.Y))
	return image.Rect(x, y, x+int(math.Round(c.Width)), y+int(math.Round(c.Height)))
}

// Within reports whether the region lies inside a w×h image and is non-empty
func (c CropRegion) Within(w, h int) bool {
	if c.Width <= 0 || c.Height <= 0 {
		return false
	}
	return c.X >= 0 && c.Y >= 0 && c.X+c.Width <= float64(w) && c.Y+c.Height <= float64(h)
}

// Contains reports whether p falls inside the region
func (c CropRegion) Contains(p Point) bool {
	return p.X >= c.X && p.X <= c.X+c.Width && p.Y >= c.Y && p.Y <= c.Y+c.Height
}

// Translate moves the origin by (dx, dy) and clamps it to a w×h image.
// Width and height never change.
func (c CropRegion) Translate(dx, dy float64, w, h int) CropRegion {
	c.X += dx
	c.Y += dy
	return c.Clamp(w, h)
}

// Clamp pulls the origin back inside a w×h image
func (c CropRegion) Clamp(w, h int) CropRegion {
	c.X = math.Max(0, math.Min(float64(w)-c.Width, c.X))
	c.Y = math.Max(0, math.Min(float64(h)-c.Height, c.Y))
	return c
}

// ProcessedResult is the rendered output for one catalog entry
type ProcessedResult struct {
	Size   PhysicalSize    `json:"size"`
	Pixels PixelDimensions `json:"pixels"`
	Data   []byte          `json:"-"`
	Handle string          `json:"handle"`
	// Crop is nil when the auto-crop was used
	Crop *CropRegion `json:"crop,omitempty"`
}

// ID returns the catalog entry ID of the result
func (r ProcessedResult) ID() string {
	return r.Size.ID()
}
