// Package catalog holds the fixed, ordered table of print sizes.
package catalog

import (
	"github.com/menta2k/print-sizer/pkg/types"
)

// DPI is the resolution standard every output is rendered at
const DPI = 300

// DefaultRatioKey is returned when no ratio matches better
const DefaultRatioKey = "4:5"

// Family groups the sizes that share one aspect ratio
type Family struct {
	Key   string
	Ratio float64
	Sizes []types.PhysicalSize
}

// Catalog is an ordered list of families. Declaration order is the
// iteration order of every operation.
type Catalog struct {
	Families []Family
}

func size(key string, w, h float64, label string) types.PhysicalSize {
	return types.PhysicalSize{RatioKey: key, Width: w, Height: h, Label: label}
}

// Default returns the print catalog
func Default() Catalog {
	return Catalog{Families: []Family{
		{Key: "2:3", Ratio: 2.0 / 3.0, Sizes: []types.PhysicalSize{
			size("2:3", 4, 6, `4×6"`),
			size("2:3", 8, 12, `8×12"`),
			size("2:3", 12, 18, `12×18"`),
			size("2:3", 20, 30, `20×30"`),
		}},
		{Key: "3:4", Ratio: 3.0 / 4.0, Sizes: []types.PhysicalSize{
			size("3:4", 6, 8, `6×8"`),
			size("3:4", 9, 12, `9×12"`),
			size("3:4", 12, 16, `12×16"`),
			size("3:4", 18, 24, `18×24"`),
		}},
		{Key: "4:5", Ratio: 4.0 / 5.0, Sizes: []types.PhysicalSize{
			size("4:5", 8, 10, `8×10"`),
			size("4:5", 11, 14, `11×14"`),
			size("4:5", 16, 20, `16×20"`),
		}},
		{Key: "5:7", Ratio: 5.0 / 7.0, Sizes: []types.PhysicalSize{
			size("5:7", 5, 7, `5×7"`),
			size("5:7", 10, 14, `10×14"`),
			size("5:7", 15, 21, `15×21"`),
		}},
		{Key: "custom", Ratio: 11.0 / 14.0, Sizes: []types.PhysicalSize{
			size("custom", 11, 14, `11×14"`),
		}},
	}}
}

// Sizes flattens the catalog in declaration order
func (c Catalog) Sizes() []types.PhysicalSize {
	var sizes []types.PhysicalSize
	for _, f := range c.Families {
		sizes = append(sizes, f.Sizes...)
	}
	return sizes
}

// Len returns the number of sizes in the catalog
func (c Catalog) Len() int {
	n := 0
	for _, f := range c.Families {
		n += len(f.Sizes)
	}
	return n
}

// Ratios returns the ratio table in declaration order
func (c Catalog) Ratios() []types.AspectRatio {
	ratios := make([]types.AspectRatio, 0, len(c.Families))
	for _, f := range c.Families {
		ratios = append(ratios, types.AspectRatio{Key: f.Key, Value: f.Ratio})
	}
	return ratios
}

// SizesByRatio returns the sizes of one family, or nil for an unknown key
func (c Catalog) SizesByRatio(key string) []types.PhysicalSize {
	for _, f := range c.Families {
		if f.Key == key {
			return f.Sizes
		}
	}
	return nil
}

// Lookup finds a size by its ID
func (c Catalog) Lookup(id string) (types.PhysicalSize, bool) {
	for _, f := range c.Families {
		for _, s := range f.Sizes {
			if s.ID() == id {
				return s, true
			}
		}
	}
	return types.PhysicalSize{}, false
}

// Find resolves an ID, or failing that the first size carrying the label
func (c Catalog) Find(ref string) (types.PhysicalSize, bool) {
	if s, ok := c.Lookup(ref); ok {
		return s, true
	}
	for _, s := range c.Sizes() {
		if s.Label == ref {
			return s, true
		}
	}
	return types.PhysicalSize{}, false
}

// Subset returns a catalog restricted to the given ratio keys, keeping
// declaration order. Unknown keys are ignored.
func (c Catalog) Subset(keys ...string) Catalog {
	want := make(map[string]bool, len(keys))
	for _, k := range keys {
		want[k] = true
	}
	var out Catalog
	for _, f := range c.Families {
		if want[f.Key] {
			out.Families = append(out.Families, f)
		}
	}
	return out
}
