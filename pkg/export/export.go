// Package export names rendered results and bundles them into archives.
package export

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/menta2k/print-sizer/pkg/catalog"
	"github.com/menta2k/print-sizer/pkg/types"
)

// extPattern matches the last extension of a name, never across a slash
var extPattern = regexp.MustCompile(`\.[^/.]+$`)

// ProgressFunc receives the archive progress in [0, 1]
type ProgressFunc func(fraction float64)

// ArchiveError reports a failure while building an archive
type ArchiveError struct {
	Name string
	Err  error
}

func (e *ArchiveError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("archive: %v", e.Err)
	}
	return fmt.Sprintf("archive: %s: %v", e.Name, e.Err)
}

func (e *ArchiveError) Unwrap() error {
	return e.Err
}

// BaseName strips the final extension from a filename
func BaseName(original string) string {
	return extPattern.ReplaceAllString(original, "")
}

// GenerateFilename returns "{base}_{label}_300DPI.{ext}". The format
// "jpeg" is written as "jpg".
func GenerateFilename(original string, size types.PhysicalSize, format string) string {
	return GenerateFilenameAt(original, size, format, catalog.DPI)
}

// GenerateFilenameAt is GenerateFilename for a resolution other than 300
func GenerateFilenameAt(original string, size types.PhysicalSize, format string, dpi int) string {
	if format == "" {
		format = "jpeg"
	}
	ext := strings.ToLower(format)
	if ext == "jpeg" {
		ext = "jpg"
	}
	return fmt.Sprintf("%s_%s_%dDPI.%s", BaseName(original), size.Label, dpi, ext)
}

// ArchiveName returns the name of the all-sizes archive
func ArchiveName(original string) string {
	return ArchiveNameAt(original, catalog.DPI)
}

// ArchiveNameAt is ArchiveName for a resolution other than 300
func ArchiveNameAt(original string, dpi int) string {
	return fmt.Sprintf("%s_AllSizes_%dDPI.zip", BaseName(original), dpi)
}

// Archive writes results into a ZIP file
type Archive struct {
	// DPI used in entry names
	DPI int
	// Rename maps each generated entry name, e.g. to sanitize it
	Rename func(string) string
	// Modified is stamped on every entry; zero means now
	Modified time.Time
}

// WriteArchive writes every result with data to w as a ZIP archive at
// 300 DPI naming. Results without data are skipped.
func WriteArchive(w io.Writer, original string, results []types.ProcessedResult, progress ProgressFunc) error {
	return Archive{DPI: catalog.DPI}.Write(w, original, results, progress)
}

// Write builds the archive. Progress covers adding entries in the first
// half and finishing the archive in the second.
func (a Archive) Write(w io.Writer, original string, results []types.ProcessedResult, progress ProgressFunc) error {
	if a.DPI <= 0 {
		a.DPI = catalog.DPI
	}
	modified := a.Modified
	if modified.IsZero() {
		modified = time.Now()
	}
	report := func(f float64) {
		if progress != nil {
			progress(f)
		}
	}

	names := EntryNames(original, results, a.DPI, a.Rename)
	zw := zip.NewWriter(w)
	for i, r := range results {
		if r.Data == nil {
			continue
		}
		name := names[i]
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified}
		f, err := zw.CreateHeader(hdr)
		if err != nil {
			zw.Close()
			return &ArchiveError{Name: name, Err: err}
		}
		if _, err := f.Write(r.Data); err != nil {
			zw.Close()
			return &ArchiveError{Name: name, Err: err}
		}
		report(float64(i+1) / float64(len(results)) * 0.5)
	}

	if err := zw.Close(); err != nil {
		return &ArchiveError{Err: err}
	}
	report(1)
	return nil
}

// EntryNames returns one unique filename per result, in order. Repeated
// names, as produced by two sizes sharing a label, get a numeric suffix.
func EntryNames(original string, results []types.ProcessedResult, dpi int, rename func(string) string) []string {
	names := make([]string, len(results))
	seen := make(map[string]int)
	for i, r := range results {
		name := GenerateFilenameAt(original, r.Size, "jpeg", dpi)
		if rename != nil {
			name = rename(name)
		}
		names[i] = dedupe(name, seen)
	}
	return names
}

// dedupe suffixes repeated entry names with the lowest counter that is
// not already taken, including by an earlier name that carries a suffix
func dedupe(name string, seen map[string]int) string {
	n := seen[name]
	if n == 0 {
		seen[name] = 1
		return name
	}
	base := BaseName(name)
	ext := name[len(base):]
	for i := n + 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", base, i, ext)
		if seen[candidate] == 0 {
			seen[name] = i
			seen[candidate] = 1
			return candidate
		}
	}
}
