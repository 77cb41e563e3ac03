package analyzer

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// MaxFileSize is the largest upload accepted (50 MiB)
const MaxFileSize = 50 * 1024 * 1024

// ImageAnalyzer validates uploads and decodes them into a Source
type ImageAnalyzer struct {
	config Config
}

// Config holds configuration for the image analyzer
type Config struct {
	MaxFileSize      int64
	SupportedFormats []string
	MinImageSize     int
}

// DefaultConfig returns the upload limits of the application
func DefaultConfig() Config {
	return Config{
		MaxFileSize:      MaxFileSize,
		SupportedFormats: []string{"jpeg", "png", "svg"},
		MinImageSize:     1,
	}
}

// New creates a new ImageAnalyzer with default configuration
func New() *ImageAnalyzer {
	return &ImageAnalyzer{config: DefaultConfig()}
}

// NewWithConfig creates a new ImageAnalyzer with custom configuration
func NewWithConfig(config Config) *ImageAnalyzer {
	if config.MaxFileSize <= 0 {
		config.MaxFileSize = MaxFileSize
	}
	return &ImageAnalyzer{config: config}
}

// ValidationError rejects an upload before any processing starts
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	return "invalid upload: " + strings.Join(e.Reasons, "; ")
}

// Validation messages shown to the user
const (
	ReasonNotImage    = "File must be an image"
	ReasonTooLarge    = "File size must be less than 50MB"
	ReasonUnsupported = "Supported formats: JPG, PNG, SVG"
	ReasonTooSmall    = "Image is too small"
	ReasonEmpty       = "File is empty"
)

// IsValidationError reports whether err rejected an upload
func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// LoadFile opens and loads an image from disk
func (a *ImageAnalyzer) LoadFile(path string) (Source, error) {
	data, err := readFile(path, a.config.MaxFileSize)
	if err != nil {
		return nil, err
	}
	return a.LoadBytes(data, filepath.Base(path))
}

// Load reads an upload and decodes it into a Source
func (a *ImageAnalyzer) Load(r io.Reader, name string) (Source, error) {
	data, err := io.ReadAll(io.LimitReader(r, a.config.MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return a.LoadBytes(data, name)
}

// LoadBytes decodes an in-memory upload into a Source
func (a *ImageAnalyzer) LoadBytes(data []byte, name string) (Source, error) {
	if len(data) == 0 {
		return nil, &ValidationError{Reasons: []string{ReasonEmpty}}
	}
	if int64(len(data)) > a.config.MaxFileSize {
		return nil, &ValidationError{Reasons: []string{ReasonTooLarge}}
	}

	format := DetectFormat(data, name)
	if format == "" {
		return nil, &ValidationError{Reasons: []string{ReasonNotImage, ReasonUnsupported}}
	}
	if !a.isFormatSupported(format) {
		return nil, &ValidationError{Reasons: []string{ReasonUnsupported}}
	}

	var src Source
	var err error
	if format == "svg" {
		src, err = decodeSVG(data, name)
	} else {
		src, err = decodeRaster(data, name, format)
	}
	if err != nil {
		return nil, err
	}

	if err := a.ValidateImage(src.Image()); err != nil {
		return nil, err
	}
	return src, nil
}

// DetectFormat returns "jpeg", "png" or "svg", or "" if the data is none of them
func DetectFormat(data []byte, name string) string {
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return format
	}
	if isSVG(data, name) {
		return "svg"
	}
	return ""
}

func isSVG(data []byte, name string) bool {
	head := data
	if len(head) > 4096 {
		head = head[:4096]
	}
	if bytes.Contains(bytes.ToLower(head), []byte("<svg")) {
		return true
	}
	return strings.EqualFold(filepath.Ext(name), ".svg") && bytes.Contains(bytes.ToLower(data), []byte("<svg"))
}

func decodeRaster(data []byte, name, format string) (Source, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &rasterSource{name: name, format: format, img: img}, nil
}

// GetImageInfo returns basic information about an image
func (a *ImageAnalyzer) GetImageInfo(img image.Image) ImageInfo {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	info := ImageInfo{
		Width:  width,
		Height: height,
		Area:   width * height,
	}
	if height > 0 {
		info.AspectRatio = float64(width) / float64(height)
	}
	return info
}

// ImageInfo contains basic image metadata
type ImageInfo struct {
	Width       int
	Height      int
	AspectRatio float64
	Area        int
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	format = canonicalFormat(format)
	for _, supported := range a.config.SupportedFormats {
		if canonicalFormat(supported) == format {
			return true
		}
	}
	return false
}

func canonicalFormat(format string) string {
	format = strings.ToLower(format)
	if format == "jpg" {
		return "jpeg"
	}
	return format
}

// ValidateImage checks if an image meets minimum requirements
func (a *ImageAnalyzer) ValidateImage(img image.Image) error {
	bounds := img.Bounds()
	if bounds.Dx() < a.config.MinImageSize || bounds.Dy() < a.config.MinImageSize || bounds.Empty() {
		return &ValidationError{Reasons: []string{
			fmt.Sprintf("%s: %dx%d (minimum: %d)", ReasonTooSmall, bounds.Dx(), bounds.Dy(), a.config.MinImageSize),
		}}
	}
	return nil
}
