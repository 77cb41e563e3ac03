// Package printsizer turns one uploaded image into print-ready files for a
// fixed catalog of physical print sizes at 300 DPI.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"log"
//		"os"
//
//		printsizer "github.com/menta2k/print-sizer"
//	)
//
//	func main() {
//		ps := printsizer.New()
//		if err := ps.LoadFile("photo.jpg"); err != nil {
//			log.Fatal(err)
//		}
//
//		// Render every catalog size with a centered crop
//		if _, err := ps.Process(context.Background(), nil); err != nil {
//			log.Fatal(err)
//		}
//
//		f, err := os.Create(ps.ArchiveName())
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer f.Close()
//		if err := ps.WriteArchive(f, nil); err != nil {
//			log.Fatal(err)
//		}
//	}
//
// The package consists of these components:
//
//  1. Catalog (pkg/catalog): the ordered table of print sizes
//  2. Geometry (pkg/geometry): unit conversion and aspect-ratio crops
//  3. Analyzer (pkg/analyzer): upload validation and decoding
//  4. Processing (pkg/processing): crop, resample and encode each size
//  5. DPI (pkg/dpi): resolution metadata in JPEG headers
//  6. Cropper (pkg/cropper): the interactive crop editor
//  7. Session (pkg/session): results of the current upload
//  8. Export (pkg/export): filenames and ZIP archives
package printsizer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/menta2k/print-sizer/internal/utils"
	"github.com/menta2k/print-sizer/pkg/analyzer"
	"github.com/menta2k/print-sizer/pkg/catalog"
	"github.com/menta2k/print-sizer/pkg/cropper"
	"github.com/menta2k/print-sizer/pkg/export"
	"github.com/menta2k/print-sizer/pkg/geometry"
	"github.com/menta2k/print-sizer/pkg/processing"
	"github.com/menta2k/print-sizer/pkg/session"
	"github.com/menta2k/print-sizer/pkg/types"
)

// Version of the print sizer library
const Version = "1.0.0"

// PrintSizer provides a high-level interface over one upload session
type PrintSizer struct {
	analyzer  *analyzer.ImageAnalyzer
	processor *processing.Processor
	session   *session.Session
	catalog   catalog.Catalog
	editor    cropper.EditorConfig
	logger    *slog.Logger
}

// New creates a PrintSizer with default configuration
func New() *PrintSizer {
	return NewWithConfig(analyzer.DefaultConfig(), processing.Config{})
}

// NewWithConfig creates a PrintSizer with custom configuration
func NewWithConfig(analyzerConfig analyzer.Config, processingConfig processing.Config) *PrintSizer {
	processor := processing.NewWithConfig(processingConfig)
	return &PrintSizer{
		analyzer:  analyzer.NewWithConfig(analyzerConfig),
		processor: processor,
		session:   session.New(processor),
		catalog:   catalog.Default(),
		editor:    cropper.DefaultEditorConfig(),
		logger:    slog.Default(),
	}
}

// SetLogger replaces the logger of every component
func (ps *PrintSizer) SetLogger(logger *slog.Logger) {
	ps.logger = logger
	ps.processor.SetLogger(logger)
	ps.session.SetLogger(logger)
}

// SetCatalog restricts or replaces the sizes Process renders
func (ps *PrintSizer) SetCatalog(c catalog.Catalog) {
	ps.catalog = c
}

// SetEditorConfig sets the limits of editors opened afterwards
func (ps *PrintSizer) SetEditorConfig(config cropper.EditorConfig) {
	ps.editor = config
}

// Catalog returns the sizes Process renders
func (ps *PrintSizer) Catalog() catalog.Catalog {
	return ps.catalog
}

// Session returns the underlying session
func (ps *PrintSizer) Session() *session.Session {
	return ps.session
}

// LoadFile validates and loads an image from disk, discarding previous results
func (ps *PrintSizer) LoadFile(path string) error {
	src, err := ps.analyzer.LoadFile(path)
	if err != nil {
		return err
	}
	return ps.session.Load(src)
}

// Load validates and loads an upload, discarding previous results
func (ps *PrintSizer) Load(r io.Reader, name string) error {
	src, err := ps.analyzer.Load(r, name)
	if err != nil {
		return err
	}
	return ps.session.Load(src)
}

// Source returns the loaded image, or nil
func (ps *PrintSizer) Source() analyzer.Source {
	return ps.session.Source()
}

// GetImageInfo returns basic information about the loaded image
func (ps *PrintSizer) GetImageInfo() (analyzer.ImageInfo, error) {
	src := ps.session.Source()
	if src == nil {
		return analyzer.ImageInfo{}, session.ErrNoSource
	}
	return ps.analyzer.GetImageInfo(src.Image()), nil
}

// RecommendedRatio returns the catalog ratio closest to the loaded image
func (ps *PrintSizer) RecommendedRatio() (string, error) {
	src := ps.session.Source()
	if src == nil {
		return "", session.ErrNoSource
	}
	b := src.Bounds()
	return geometry.BestAspectRatioMatch(b.Dx(), b.Dy(), ps.catalog.Ratios()), nil
}

// Preview encodes a thumbnail of the loaded image
func (ps *PrintSizer) Preview(maxWidth, maxHeight int, format string, quality int) ([]byte, error) {
	src := ps.session.Source()
	if src == nil {
		return nil, session.ErrNoSource
	}
	return processing.Preview(src.Image(), maxWidth, maxHeight, format, quality)
}

// Process renders every catalog size and returns how many succeeded
func (ps *PrintSizer) Process(ctx context.Context, progress processing.ProgressFunc) (int, error) {
	return ps.session.Process(ctx, ps.catalog.Sizes(), progress)
}

// Results returns the rendered entries in catalog order
func (ps *PrintSizer) Results() []types.ProcessedResult {
	return ps.session.Results()
}

// OpenEditor opens a crop editor on the result identified by ref, an entry
// ID or a label.
func (ps *PrintSizer) OpenEditor(ref string) (*cropper.Editor, error) {
	src := ps.session.Source()
	if src == nil {
		return nil, session.ErrNoSource
	}
	size, ok := ps.catalog.Find(ref)
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrUnknownEntry, ref)
	}
	result, ok := ps.session.Result(size.ID())
	if !ok {
		return nil, fmt.Errorf("%w: %s has not been processed", session.ErrUnknownEntry, ref)
	}
	editor := cropper.NewEditor(ps.session, src, ps.editor)
	editor.Open(result)
	return editor, nil
}

// ApplyCrop re-renders one entry with region without going through an editor
func (ps *PrintSizer) ApplyCrop(ctx context.Context, ref string, region types.CropRegion) error {
	size, ok := ps.catalog.Find(ref)
	if !ok {
		return fmt.Errorf("%w: %s", session.ErrUnknownEntry, ref)
	}
	return ps.session.ApplyCrop(ctx, size.ID(), region)
}

// Filename returns the download name of a result
func (ps *PrintSizer) Filename(result types.ProcessedResult) string {
	return export.GenerateFilenameAt(ps.originalName(), result.Size, "jpeg", ps.processor.DPI())
}

// ArchiveName returns the download name of the all-sizes archive
func (ps *PrintSizer) ArchiveName() string {
	return export.ArchiveNameAt(ps.originalName(), ps.processor.DPI())
}

// WriteArchive writes every rendered result to w as a ZIP archive
func (ps *PrintSizer) WriteArchive(w io.Writer, progress export.ProgressFunc) error {
	archive := export.Archive{DPI: ps.processor.DPI()}
	return archive.Write(w, ps.originalName(), ps.session.Results(), progress)
}

// SaveResults writes every rendered result into dir and returns the paths.
// With safeNames, characters invalid on common filesystems are replaced.
func (ps *PrintSizer) SaveResults(dir string, safeNames bool) ([]string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	var rename func(string) string
	if safeNames {
		rename = utils.SanitizeFilename
	}
	results := ps.session.Results()
	names := export.EntryNames(ps.originalName(), results, ps.processor.DPI(), rename)

	var paths []string
	for i, result := range results {
		path := filepath.Join(dir, names[i])
		if err := processing.SaveResult(result, path); err != nil {
			return paths, fmt.Errorf("failed to save %s: %w", result.Size.Label, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func (ps *PrintSizer) originalName() string {
	if src := ps.session.Source(); src != nil {
		return src.Name()
	}
	return "image"
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
