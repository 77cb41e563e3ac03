// Package geometry converts between physical and pixel sizes and between
// source and display coordinates, and computes aspect-ratio crops.
package geometry

import (
	"math"

	"github.com/menta2k/print-sizer/pkg/catalog"
	"github.com/menta2k/print-sizer/pkg/types"
)

// ToPixels converts inches to pixels at the catalog DPI
func ToPixels(inches float64) int {
	return ToPixelsAt(inches, catalog.DPI)
}

// ToPixelsAt converts inches to pixels at dpi
func ToPixelsAt(inches float64, dpi int) int {
	return int(math.Round(inches * float64(dpi)))
}

// ToPhysicalUnits converts pixels to inches at the catalog DPI
func ToPhysicalUnits(pixels int) float64 {
	return ToPhysicalUnitsAt(pixels, catalog.DPI)
}

// ToPhysicalUnitsAt converts pixels to inches at dpi
func ToPhysicalUnitsAt(pixels, dpi int) float64 {
	return float64(pixels) / float64(dpi)
}

// PixelDimensionsOf converts a print size at the catalog DPI
func PixelDimensionsOf(size types.PhysicalSize) types.PixelDimensions {
	return PixelDimensionsAt(size, catalog.DPI)
}

// PixelDimensionsAt converts each axis of a print size independently
func PixelDimensionsAt(size types.PhysicalSize, dpi int) types.PixelDimensions {
	return types.PixelDimensions{
		Width:       ToPixelsAt(size.Width, dpi),
		Height:      ToPixelsAt(size.Height, dpi),
		Label:       size.Label,
		AspectRatio: size.AspectRatio(),
	}
}

// BestAspectRatioMatch returns the key of the table row closest to the
// image ratio. The first row wins ties.
func BestAspectRatioMatch(imageWidth, imageHeight int, table []types.AspectRatio) string {
	best := catalog.DefaultRatioKey
	if imageHeight == 0 {
		return best
	}
	imageRatio := float64(imageWidth) / float64(imageHeight)
	smallest := math.Inf(1)
	for _, r := range table {
		diff := math.Abs(imageRatio - r.Value)
		if diff < smallest {
			smallest = diff
			best = r.Key
		}
	}
	return best
}

// AutoCrop returns the largest centered region of a w×h image with the
// target ratio.
//
// The region is in whole pixels, so its ratio is only as exact as the
// rounding of the derived side allows. For ratios up to 2, a region whose
// shorter side is at least 100 pixels lands within types.RatioTolerance;
// below that it still matches by types.CropRegion.MatchesRatio, which
// accepts one pixel of rounding.
func AutoCrop(imageWidth, imageHeight int, targetRatio float64) types.CropRegion {
	w, h := float64(imageWidth), float64(imageHeight)
	if imageWidth <= 0 || imageHeight <= 0 || targetRatio <= 0 {
		return types.CropRegion{}
	}

	var cropW, cropH, x, y float64
	if w/h > targetRatio {
		// source is wider: full height, centered horizontal band
		cropH = h
		cropW = h * targetRatio
		x = (w - cropW) / 2
	} else {
		cropW = w
		cropH = w / targetRatio
		y = (h - cropH) / 2
	}

	region := types.CropRegion{
		X:      math.Round(x),
		Y:      math.Round(y),
		Width:  math.Max(1, math.Min(w, math.Round(cropW))),
		Height: math.Max(1, math.Min(h, math.Round(cropH))),
	}
	return region.Clamp(imageWidth, imageHeight)
}

// MapDisplayToSource scales a display-space point into source space
func MapDisplayToSource(p types.Point, display, source types.Size) types.Point {
	sx, sy := scale(source, display)
	return types.Point{X: p.X * sx, Y: p.Y * sy}
}

// MapSourceToDisplay is the inverse of MapDisplayToSource
func MapSourceToDisplay(p types.Point, source, display types.Size) types.Point {
	sx, sy := scale(display, source)
	return types.Point{X: p.X * sx, Y: p.Y * sy}
}

// RegionToDisplay maps a source-space region onto the display
func RegionToDisplay(r types.CropRegion, source, display types.Size) types.CropRegion {
	sx, sy := scale(display, source)
	return types.CropRegion{X: r.X * sx, Y: r.Y * sy, Width: r.Width * sx, Height: r.Height * sy}
}

// FitScale returns the scale that fits source inside viewport, times zoom
func FitScale(source, viewport types.Size, zoom float64) float64 {
	if source.Width <= 0 || source.Height <= 0 {
		return 0
	}
	return math.Min(viewport.Width/source.Width, viewport.Height/source.Height) * zoom
}

func scale(to, from types.Size) (float64, float64) {
	var sx, sy float64
	if from.Width != 0 {
		sx = to.Width / from.Width
	}
	if from.Height != 0 {
		sy = to.Height / from.Height
	}
	return sx, sy
}
