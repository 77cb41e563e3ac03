// Package cropper implements the interactive crop editor.
//
// An Editor holds the crop region of one catalog entry while the user drags
// it around a scaled rendering of the source. Geometry is always derived
// from the editor's current state, so pointer events that arrive after a
// reset or outside a drag are no-ops.
//
// An Editor is not safe for concurrent use; the host delivers pointer
// events from a single event loop.
package cropper

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/menta2k/print-sizer/pkg/analyzer"
	"github.com/menta2k/print-sizer/pkg/geometry"
	"github.com/menta2k/print-sizer/pkg/types"
)

// State of the editor
type State int

const (
	Closed State = iota
	Initializing
	Ready
	Dragging
	Applying
	Canceled
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Dragging:
		return "dragging"
	case Applying:
		return "applying"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrNotOpen = errors.New("crop editor is not open")
	ErrBusy    = errors.New("crop editor is applying a crop")
	ErrStale   = errors.New("crop editor source was replaced")
)

// Backend supplies default regions and commits applied crops. Generation
// identifies the loaded image; ApplyCropAt must refuse a generation that is
// no longer current.
type Backend interface {
	Generation() uint64
	DefaultRegion(src analyzer.Source, ratio float64) types.CropRegion
	ApplyCropAt(ctx context.Context, generation uint64, id string, region types.CropRegion) error
}

// EditorConfig holds the zoom and viewport limits of the editor
type EditorConfig struct {
	MinZoom  float64
	MaxZoom  float64
	ZoomStep float64
	// MinViewport is the smallest canvas area, before zoom
	MinViewport types.Size
	// Padding is subtracted from the container on each axis
	Padding float64
}

// DefaultEditorConfig mirrors the editor's stock controls
func DefaultEditorConfig() EditorConfig {
	return EditorConfig{
		MinZoom:     0.5,
		MaxZoom:     3,
		ZoomStep:    0.1,
		MinViewport: types.Size{Width: 800, Height: 600},
		Padding:     40,
	}
}

// Editor is the crop region editor for one entry at a time
type Editor struct {
	backend    Backend
	source     analyzer.Source
	generation uint64
	config     EditorConfig

	state     State
	entry     types.ProcessedResult
	region    types.CropRegion
	dragStart types.Point
	zoom      float64
	container types.Size
	lastErr   error
}

// NewEditor creates a closed editor for src, which must be the image the
// backend currently holds
func NewEditor(backend Backend, src analyzer.Source, config EditorConfig) *Editor {
	def := DefaultEditorConfig()
	if config.MinZoom <= 0 {
		config.MinZoom = def.MinZoom
	}
	if config.MaxZoom < config.MinZoom {
		config.MaxZoom = math.Max(def.MaxZoom, config.MinZoom)
	}
	if config.ZoomStep <= 0 {
		config.ZoomStep = def.ZoomStep
	}
	if config.MinViewport.Width <= 0 || config.MinViewport.Height <= 0 {
		config.MinViewport = def.MinViewport
	}
	if config.Padding < 0 {
		config.Padding = 0
	}
	return &Editor{
		backend:    backend,
		source:     src,
		generation: backend.Generation(),
		config:     config,
		state:      Closed,
		zoom:       1,
	}
}

// State returns the current state
func (e *Editor) State() State { return e.state }

// Region returns the in-progress crop region in source pixels
func (e *Editor) Region() types.CropRegion { return e.region }

// Entry returns the result being edited
func (e *Editor) Entry() types.ProcessedResult { return e.entry }

// Source returns the image being cropped
func (e *Editor) Source() analyzer.Source { return e.source }

// Zoom returns the display zoom factor
func (e *Editor) Zoom() float64 { return e.zoom }

// Err returns the error of the last failed apply, if any
func (e *Editor) Err() error { return e.lastErr }

// IsOpen reports whether an entry is being edited
func (e *Editor) IsOpen() bool {
	return e.state == Ready || e.state == Dragging || e.state == Applying
}

// Open starts editing entry. A stored region is restored; otherwise the
// default region for the entry's ratio is computed.
func (e *Editor) Open(entry types.ProcessedResult) {
	e.state = Initializing
	e.entry = entry
	e.lastErr = nil
	e.zoom = 1
	e.initialize()
}

func (e *Editor) initialize() {
	if e.entry.Crop != nil {
		e.region = *e.entry.Crop
	} else {
		e.region = e.backend.DefaultRegion(e.source, e.entry.Size.AspectRatio())
	}
	e.dragStart = types.Point{}
	e.state = Ready
}

// Reset discards unsaved drags and reinitializes the region
func (e *Editor) Reset() error {
	if e.state != Ready && e.state != Dragging {
		return ErrNotOpen
	}
	e.initialize()
	return nil
}

// SetContainer records the size of the area hosting the canvas
func (e *Editor) SetContainer(size types.Size) {
	e.container = size
}

// SetZoom sets the zoom factor, clamped to the configured range. Zoom only
// changes the display mapping, never the region.
func (e *Editor) SetZoom(zoom float64) {
	// round to hundredths so repeated steps do not drift
	zoom = math.Round(zoom*100) / 100
	e.zoom = math.Max(e.config.MinZoom, math.Min(e.config.MaxZoom, zoom))
}

// ZoomIn increases zoom by one step
func (e *Editor) ZoomIn() { e.SetZoom(e.zoom + e.config.ZoomStep) }

// ZoomOut decreases zoom by one step
func (e *Editor) ZoomOut() { e.SetZoom(e.zoom - e.config.ZoomStep) }

// sourceSize is the native size of the source image
func (e *Editor) sourceSize() types.Size {
	return types.SizeOf(e.source.Bounds())
}

// DisplaySize is the canvas size the source is rendered at
func (e *Editor) DisplaySize() types.Size {
	viewport := types.Size{
		Width:  math.Max(e.config.MinViewport.Width, e.container.Width-e.config.Padding),
		Height: math.Max(e.config.MinViewport.Height, e.container.Height-e.config.Padding),
	}
	src := e.sourceSize()
	s := geometry.FitScale(src, viewport, e.zoom)
	// canvas dimensions are whole pixels
	return types.Size{Width: math.Floor(src.Width * s), Height: math.Floor(src.Height * s)}
}

// DisplayRegion is the crop region in display coordinates
func (e *Editor) DisplayRegion() types.CropRegion {
	return geometry.RegionToDisplay(e.region, e.sourceSize(), e.DisplaySize())
}

// PointerDown starts a drag when p, in display coordinates, falls inside
// the rendered crop rectangle.
func (e *Editor) PointerDown(p types.Point) bool {
	if e.state != Ready {
		return false
	}
	if !e.DisplayRegion().Contains(p) {
		return false
	}
	e.dragStart = p
	e.state = Dragging
	return true
}

// PointerMove translates the region by the display-space delta since the
// last event, clamped to the source. It reports whether the region moved.
func (e *Editor) PointerMove(p types.Point) bool {
	if e.state != Dragging {
		return false
	}
	delta := types.Point{X: p.X - e.dragStart.X, Y: p.Y - e.dragStart.Y}
	d := geometry.MapDisplayToSource(delta, e.DisplaySize(), e.sourceSize())
	b := e.source.Bounds()

	before := e.region
	e.region = e.region.Translate(d.X, d.Y, b.Dx(), b.Dy())
	e.dragStart = p
	return e.region != before
}

// PointerUp ends a drag
func (e *Editor) PointerUp() {
	if e.state == Dragging {
		e.state = Ready
	}
}

// PointerLeave ends a drag when the pointer leaves the canvas
func (e *Editor) PointerLeave() {
	e.PointerUp()
}

// Apply commits the region. On failure the editor stays open with the
// region untouched and the error is returned and kept in Err. If the
// backend has loaded another image since the editor was created, the
// editor closes with ErrStale and nothing is applied.
func (e *Editor) Apply(ctx context.Context) error {
	switch e.state {
	case Ready, Dragging:
	case Applying:
		return ErrBusy
	default:
		return ErrNotOpen
	}

	if e.backend.Generation() != e.generation {
		e.lastErr = ErrStale
		e.close()
		return ErrStale
	}

	e.state = Applying
	region := e.region
	if err := e.backend.ApplyCropAt(ctx, e.generation, e.entry.ID(), region); err != nil {
		e.state = Ready
		e.lastErr = fmt.Errorf("applying crop for %s: %w", e.entry.Size.Label, err)
		return e.lastErr
	}

	e.entry.Crop = &region
	e.lastErr = nil
	e.close()
	return nil
}

// Cancel discards the in-progress region
func (e *Editor) Cancel() {
	if e.state == Closed {
		return
	}
	e.state = Canceled
	e.close()
}

func (e *Editor) close() {
	e.region = types.CropRegion{}
	e.dragStart = types.Point{}
	e.state = Closed
}

// View captures what Render needs to draw the editor
func (e *Editor) View() View {
	return View{
		Source:  e.sourceSize(),
		Display: e.DisplaySize(),
		Region:  e.region,
		Open:    e.IsOpen(),
	}
}
