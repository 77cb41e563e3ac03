package processing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/menta2k/print-sizer/pkg/analyzer"
	"github.com/menta2k/print-sizer/pkg/catalog"
	"github.com/menta2k/print-sizer/pkg/dpi"
	"github.com/menta2k/print-sizer/pkg/geometry"
	"github.com/menta2k/print-sizer/pkg/types"
)

// JPEGQuality is the fixed compression quality of every print output
const JPEGQuality = 92

// Crop strategies for entries without a stored region
const (
	StrategyCenter   = "center"
	StrategySmart    = "smart"
	StrategySaliency = "saliency"
)

// ErrInvalidRegion is returned for a crop region outside the source bounds
// or off the entry's aspect ratio
var ErrInvalidRegion = errors.New("invalid crop region")

// DecodeError reports that the source could not be drawn for one entry
type DecodeError struct {
	Label string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("drawing source for %s: %v", e.Label, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Config holds configuration for the processor
type Config struct {
	DPI          int
	CropStrategy string
	Filter       imaging.ResampleFilter
}

// Processor renders print outputs from a source image
type Processor struct {
	config Config
	logger *slog.Logger
	// newHandle mints display handles; replaced in tests
	newHandle func() string
}

// NewProcessor creates a processor rendering at 300 DPI with centered crops
func NewProcessor() *Processor {
	return NewWithConfig(Config{})
}

// NewWithConfig creates a processor with custom configuration
func NewWithConfig(config Config) *Processor {
	if config.DPI <= 0 {
		config.DPI = catalog.DPI
	}
	if config.CropStrategy == "" {
		config.CropStrategy = StrategyCenter
	}
	if config.Filter.Support == 0 && config.Filter.Kernel == nil {
		config.Filter = imaging.Lanczos
	}
	return &Processor{
		config:    config,
		logger:    slog.Default().With("component", "processing"),
		newHandle: uuid.NewString,
	}
}

// SetLogger replaces the processor's logger
func (p *Processor) SetLogger(logger *slog.Logger) {
	p.logger = logger.With("component", "processing")
}

// DPI returns the resolution outputs are rendered at
func (p *Processor) DPI() int {
	return p.config.DPI
}

// PixelDimensions converts a print size at the processor's DPI
func (p *Processor) PixelDimensions(size types.PhysicalSize) types.PixelDimensions {
	return geometry.PixelDimensionsAt(size, p.config.DPI)
}

// DefaultRegion returns the crop used when the user has not chosen one
func (p *Processor) DefaultRegion(src analyzer.Source, ratio float64) types.CropRegion {
	b := src.Bounds()
	region := geometry.AutoCrop(b.Dx(), b.Dy(), ratio)

	var anchor func(image.Image, types.CropRegion) (types.CropRegion, error)
	switch p.config.CropStrategy {
	case StrategySmart:
		anchor = smartAnchor
	case StrategySaliency:
		anchor = saliencyAnchor
	default:
		return region
	}

	anchored, err := anchor(src.Image(), region)
	if err != nil {
		p.logger.Warn("anchored crop failed, using centered crop", "strategy", p.config.CropStrategy, "error", err)
		return region
	}
	return anchored
}

// Render crops and resamples the source into an encoded JPEG of exactly
// dims.Width × dims.Height pixels. A nil region selects DefaultRegion.
func (p *Processor) Render(ctx context.Context, src analyzer.Source, dims types.PixelDimensions, region *types.CropRegion) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dims.Width <= 0 || dims.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", dims.Width, dims.Height)
	}

	b := src.Bounds()
	var crop types.CropRegion
	if region != nil {
		crop = *region
	} else {
		crop = p.DefaultRegion(src, dims.AspectRatio)
	}
	if !crop.Within(b.Dx(), b.Dy()) {
		return nil, fmt.Errorf("%w: %+v in %dx%d", ErrInvalidRegion, crop, b.Dx(), b.Dy())
	}

	img, err := p.draw(src, crop, dims)
	if err != nil {
		return nil, &DecodeError{Label: dims.Label, Err: err}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flatten(img), imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", dims.Label, err)
	}
	return buf.Bytes(), nil
}

func (p *Processor) draw(src analyzer.Source, crop types.CropRegion, dims types.PixelDimensions) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("drawing panicked: %v", r)
		}
	}()
	if d, ok := src.(analyzer.Drawer); ok {
		return d.DrawRegion(crop, dims.Width, dims.Height)
	}
	rect := crop.Rect().Intersect(src.Bounds())
	if rect.Empty() {
		return nil, ErrInvalidRegion
	}
	cropped := imaging.Crop(src.Image(), rect)
	return imaging.Resize(cropped, dims.Width, dims.Height, p.config.Filter), nil
}

// flatten composites transparent pixels onto white; JPEG has no alpha
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// RenderEntry renders one catalog entry and declares its resolution.
// A region must match the entry's aspect ratio. Failing to embed the
// resolution is logged and does not fail the entry.
func (p *Processor) RenderEntry(ctx context.Context, src analyzer.Source, size types.PhysicalSize, region *types.CropRegion) (types.ProcessedResult, error) {
	if region != nil && !region.MatchesRatio(size.AspectRatio()) {
		return types.ProcessedResult{}, fmt.Errorf("%w: ratio %.3f does not match %s (%.3f)",
			ErrInvalidRegion, region.AspectRatio(), size.Label, size.AspectRatio())
	}

	dims := p.PixelDimensions(size)
	data, err := p.Render(ctx, src, dims, region)
	if err != nil {
		return types.ProcessedResult{}, err
	}

	data, err = dpi.EmbedResolution(data, p.config.DPI)
	if err != nil {
		p.logger.Warn("resolution metadata not embedded", "size", size.Label, "error", err)
	}

	result := types.ProcessedResult{
		Size:   size,
		Pixels: dims,
		Data:   data,
		Handle: p.newHandle(),
	}
	if region != nil {
		stored := *region
		result.Crop = &stored
	}
	return result, nil
}

// Preview encodes a thumbnail fitting maxWidth×maxHeight as "jpeg" or "webp"
func Preview(img image.Image, maxWidth, maxHeight int, format string, quality int) ([]byte, error) {
	if maxWidth <= 0 || maxHeight <= 0 {
		return nil, fmt.Errorf("invalid preview size %dx%d", maxWidth, maxHeight)
	}
	thumb := flatten(imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos))

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "webp":
		if err := webp.Encode(&buf, thumb, &webp.Options{Quality: float32(quality)}); err != nil {
			return nil, fmt.Errorf("encoding webp preview: %w", err)
		}
	case "jpg", "jpeg", "":
		if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
			return nil, fmt.Errorf("encoding jpeg preview: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported preview format: %s", format)
	}
	return buf.Bytes(), nil
}

// SaveResult writes an encoded result to path
func SaveResult(result types.ProcessedResult, path string) error {
	if result.Data == nil {
		return fmt.Errorf("result %s has no image data", result.Size.Label)
	}
	if err := os.WriteFile(path, result.Data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
