package processing

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/menta2k/print-sizer/pkg/types"
)

// saliencyMaxSide bounds the image the saliency map is computed on
const saliencyMaxSide = 256

// saliencyEpsilon absorbs rounding in the summed-area table
const saliencyEpsilon = 1e-6

// Weights of the two saliency terms
const (
	contrastWeight   = 0.3
	brightnessWeight = 0.2
)

// neighbors are the eight offsets compared against each pixel
var neighbors = [8][2]int{{-1, -1}, {-1, 0}, {-1, 1}, {0, -1}, {0, 1}, {1, -1}, {1, 0}, {1, 1}}

// saliencyAnchor slides region over the image and keeps the position that
// covers the most salient pixels. The region size never changes, and the
// centered position wins unless another one scores higher.
func saliencyAnchor(img image.Image, region types.CropRegion) (types.CropRegion, error) {
	b := img.Bounds()
	if region.Width <= 0 || region.Height <= 0 || b.Empty() {
		return region, fmt.Errorf("empty region")
	}

	small := imaging.Fit(img, saliencyMaxSide, saliencyMaxSide, imaging.Box)
	m := newSaliencyMap(small)
	scale := float64(m.width) / float64(b.Dx())

	w := min(max(int(math.Round(region.Width*scale)), 1), m.width)
	h := min(max(int(math.Round(region.Height*scale)), 1), m.height)
	bx := min(max(int(math.Round(region.X*scale)), 0), m.width-w)
	by := min(max(int(math.Round(region.Y*scale)), 0), m.height-h)

	best := m.sum(bx, by, w, h)
	for y := 0; y <= m.height-h; y++ {
		for x := 0; x <= m.width-w; x++ {
			if s := m.sum(x, y, w, h); s > best+saliencyEpsilon {
				best, bx, by = s, x, y
			}
		}
	}

	region.X = math.Round(float64(bx) / scale)
	region.Y = math.Round(float64(by) / scale)
	return region.Clamp(b.Dx(), b.Dy()), nil
}

// saliencyMap is a summed-area table over per-pixel saliency
type saliencyMap struct {
	width, height int
	integral      []float64
}

// newSaliencyMap scores every interior pixel by its colour distance to its
// neighbours plus its brightness. Border pixels score zero.
func newSaliencyMap(img *image.NRGBA) *saliencyMap {
	width, height := img.Rect.Dx(), img.Rect.Dy()
	m := &saliencyMap{
		width:    width,
		height:   height,
		integral: make([]float64, (width+1)*(height+1)),
	}

	pixel := func(x, y int) (float64, float64, float64) {
		i := img.PixOffset(img.Rect.Min.X+x, img.Rect.Min.Y+y)
		return float64(img.Pix[i]), float64(img.Pix[i+1]), float64(img.Pix[i+2])
	}

	stride := width + 1
	for y := 0; y < height; y++ {
		var row float64
		for x := 0; x < width; x++ {
			var saliency float64
			if x > 0 && y > 0 && x < width-1 && y < height-1 {
				r1, g1, b1 := pixel(x, y)
				var edge float64
				for _, n := range neighbors {
					r2, g2, b2 := pixel(x+n[0], y+n[1])
					dr, dg, db := r1-r2, g1-g2, b1-b2
					edge += math.Sqrt(dr*dr + dg*dg + db*db)
				}
				edge /= 8 * 255
				brightness := (r1 + g1 + b1) / (3 * 255)
				saliency = contrastWeight*edge + brightnessWeight*brightness
			}
			row += saliency
			m.integral[(y+1)*stride+x+1] = m.integral[y*stride+x+1] + row
		}
	}
	return m
}

// sum returns the total saliency of the w×h window at (x, y)
func (m *saliencyMap) sum(x, y, w, h int) float64 {
	stride := m.width + 1
	at := func(x, y int) float64 { return m.integral[y*stride+x] }
	return at(x+w, y+h) - at(x, y+h) - at(x+w, y) + at(x, y)
}
