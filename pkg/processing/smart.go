package processing

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/muesli/smartcrop"

	"github.com/menta2k/print-sizer/pkg/types"
)

// smartAnchor keeps the size of region but centers it on the most
// interesting area found by smartcrop, clamped to the image.
func smartAnchor(img image.Image, region types.CropRegion) (types.CropRegion, error) {
	w, h := int(region.Width), int(region.Height)
	if w <= 0 || h <= 0 {
		return region, fmt.Errorf("empty region")
	}

	analyzer := smartcrop.NewAnalyzer(&resizer{resampler: imaging.Linear})
	best, err := analyzer.FindBestCrop(img, w, h)
	if err != nil {
		return region, fmt.Errorf("finding best crop: %w", err)
	}

	b := img.Bounds()
	cx := float64(best.Min.X-b.Min.X) + float64(best.Dx())/2
	cy := float64(best.Min.Y-b.Min.Y) + float64(best.Dy())/2
	region.X = math.Round(cx - region.Width/2)
	region.Y = math.Round(cy - region.Height/2)
	return region.Clamp(b.Dx(), b.Dy()), nil
}

type resizer struct {
	resampler imaging.ResampleFilter
}

func (r *resizer) Resize(img image.Image, width, height uint) image.Image {
	return imaging.Resize(img, int(width), int(height), r.resampler)
}
