package cropper

import (
	"image/color"

	"github.com/menta2k/print-sizer/pkg/geometry"
	"github.com/menta2k/print-sizer/pkg/types"
)

// Op is the kind of a draw command
type Op int

const (
	// OpClear clears Dst to transparent
	OpClear Op = iota
	// OpImage draws the Src region of the source image scaled into Dst
	OpImage
	// OpFill fills Dst with Color, blending over what is below
	OpFill
	// OpStroke outlines Dst with Color at LineWidth
	OpStroke
)

// Command is one drawing instruction against a 2D raster surface
type Command struct {
	Op        Op
	Src       types.CropRegion
	Dst       types.CropRegion
	Color     color.NRGBA
	LineWidth float64
}

// View is the editor state relevant to drawing
type View struct {
	Source  types.Size
	Display types.Size
	Region  types.CropRegion
	Open    bool
}

var (
	overlayColor = color.NRGBA{0, 0, 0, 128}
	borderColor  = color.NRGBA{0x3b, 0x82, 0xf6, 0xff}
)

const (
	borderWidth = 2
	handleSize  = 8
)

// Render returns the commands drawing the editor: the source dimmed by a
// half-transparent overlay, the crop window redrawn undimmed, its border
// and four corner handles.
func Render(v View) []Command {
	if !v.Open || v.Display.Width <= 0 || v.Display.Height <= 0 {
		return nil
	}

	full := types.CropRegion{Width: v.Display.Width, Height: v.Display.Height}
	whole := types.CropRegion{Width: v.Source.Width, Height: v.Source.Height}
	crop := geometry.RegionToDisplay(v.Region, v.Source, v.Display)

	cmds := []Command{
		{Op: OpClear, Dst: full},
		{Op: OpImage, Src: whole, Dst: full},
		{Op: OpFill, Dst: full, Color: overlayColor},
		{Op: OpClear, Dst: crop},
		{Op: OpImage, Src: v.Region, Dst: crop},
		{Op: OpStroke, Dst: crop, Color: borderColor, LineWidth: borderWidth},
	}

	half := float64(handleSize) / 2
	corners := []types.Point{
		{X: crop.X, Y: crop.Y},
		{X: crop.X + crop.Width, Y: crop.Y},
		{X: crop.X, Y: crop.Y + crop.Height},
		{X: crop.X + crop.Width, Y: crop.Y + crop.Height},
	}
	for _, c := range corners {
		cmds = append(cmds, Command{
			Op:    OpFill,
			Dst:   types.CropRegion{X: c.X - half, Y: c.Y - half, Width: handleSize, Height: handleSize},
			Color: borderColor,
		})
	}
	return cmds
}
