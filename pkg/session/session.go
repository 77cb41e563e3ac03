// Package session holds the state of one upload: its source image and the
// rendered result for every catalog entry.
//
// The result collection is copy-on-write. Batch processing swaps the whole
// slice at once and applying a crop swaps a copy with one element replaced,
// so a slice returned by Results is never modified afterwards. A single
// gate serializes batch runs and crop applies; a request arriving while
// another holds the gate fails with ErrBusy instead of waiting.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/menta2k/print-sizer/pkg/analyzer"
	"github.com/menta2k/print-sizer/pkg/processing"
	"github.com/menta2k/print-sizer/pkg/types"
)

var (
	ErrBusy         = errors.New("session: processing already in progress")
	ErrNoSource     = errors.New("session: no image loaded")
	ErrUnknownEntry = errors.New("session: unknown entry")
	ErrStale        = errors.New("session: image was replaced")
)

// Session is the application state for one uploaded image
type Session struct {
	processor *processing.Processor
	handles   *Handles
	gate      *semaphore.Weighted
	logger    *slog.Logger

	mu       sync.RWMutex
	source   analyzer.Source
	results  []types.ProcessedResult
	progress float64
	running  bool
	// generation counts Loads; crops opened on an older image are refused
	generation uint64
}

// New creates an empty session rendering with processor
func New(processor *processing.Processor) *Session {
	return &Session{
		processor: processor,
		handles:   NewHandles(),
		gate:      semaphore.NewWeighted(1),
		logger:    slog.Default().With("component", "session"),
	}
}

// SetLogger replaces the session's logger
func (s *Session) SetLogger(logger *slog.Logger) {
	s.logger = logger.With("component", "session")
}

// Handles returns the handle registry
func (s *Session) Handles() *Handles {
	return s.handles
}

// Processor returns the processor results are rendered with
func (s *Session) Processor() *processing.Processor {
	return s.processor
}

// Load replaces the source, drops all previous results and starts a new
// generation
func (s *Session) Load(src analyzer.Source) error {
	if !s.gate.TryAcquire(1) {
		return ErrBusy
	}
	defer s.gate.Release(1)

	s.mu.Lock()
	old := s.results
	s.source = src
	s.results = nil
	s.progress = 0
	s.generation++
	s.mu.Unlock()

	s.release(old)
	return nil
}

// Reset clears the session and releases every handle
func (s *Session) Reset() error {
	return s.Load(nil)
}

// Generation identifies the loaded image. It changes on every Load.
func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Source returns the loaded source, or nil
func (s *Session) Source() analyzer.Source {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Results returns the current results. The slice must not be modified.
func (s *Session) Results() []types.ProcessedResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.results
}

// Result returns the result of one entry
func (s *Session) Result(id string) (types.ProcessedResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.results {
		if r.ID() == id {
			return r, true
		}
	}
	return types.ProcessedResult{}, false
}

// Progress returns the fraction of the running or last batch attempted
func (s *Session) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// Processing reports whether a batch is running
func (s *Session) Processing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Process renders every size with its default crop and replaces all
// results. It returns the number of entries produced.
func (s *Session) Process(ctx context.Context, sizes []types.PhysicalSize, progress processing.ProgressFunc) (int, error) {
	if !s.gate.TryAcquire(1) {
		return 0, ErrBusy
	}
	defer s.gate.Release(1)

	src := s.Source()
	if src == nil {
		return 0, ErrNoSource
	}

	s.setRunning(true, 0)
	defer s.setRunning(false, -1)

	report := func(f float64) {
		s.mu.Lock()
		s.progress = f
		s.mu.Unlock()
		if progress != nil {
			progress(f)
		}
	}

	var results []types.ProcessedResult
	for r := range s.processor.RenderAll(ctx, src, sizes, report) {
		s.handles.Put(r.Handle, r.Data)
		results = append(results, r)
	}
	if err := ctx.Err(); err != nil {
		s.release(results)
		return 0, fmt.Errorf("processing canceled: %w", err)
	}

	s.mu.Lock()
	old := s.results
	s.results = results
	s.mu.Unlock()
	s.release(old)

	s.logger.Info("processed image", "source", src.Name(), "results", len(results), "sizes", len(sizes))
	return len(results), nil
}

// DefaultRegion returns the crop an entry uses when none is stored
func (s *Session) DefaultRegion(src analyzer.Source, ratio float64) types.CropRegion {
	return s.processor.DefaultRegion(src, ratio)
}

// ApplyCrop re-renders one entry of the loaded image with region and swaps
// it into the results. The previous handle of the entry is released.
func (s *Session) ApplyCrop(ctx context.Context, id string, region types.CropRegion) error {
	return s.ApplyCropAt(ctx, s.Generation(), id, region)
}

// ApplyCropAt is ApplyCrop for a region chosen on the image of generation.
// It fails with ErrStale if another image was loaded since.
func (s *Session) ApplyCropAt(ctx context.Context, generation uint64, id string, region types.CropRegion) error {
	if !s.gate.TryAcquire(1) {
		return ErrBusy
	}
	defer s.gate.Release(1)

	s.mu.RLock()
	src, loaded := s.source, s.generation
	s.mu.RUnlock()
	if loaded != generation {
		return fmt.Errorf("%w: crop opened on generation %d, now %d", ErrStale, generation, loaded)
	}
	if src == nil {
		return ErrNoSource
	}
	current, ok := s.Result(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}

	result, err := s.processor.RenderEntry(ctx, src, current.Size, &region)
	if err != nil {
		return err
	}
	s.handles.Put(result.Handle, result.Data)

	s.mu.Lock()
	i := slices.IndexFunc(s.results, func(r types.ProcessedResult) bool { return r.ID() == id })
	if i < 0 {
		s.mu.Unlock()
		s.handles.Release(result.Handle)
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	next := slices.Clone(s.results)
	old := next[i]
	next[i] = result
	s.results = next
	s.mu.Unlock()

	s.handles.Release(old.Handle)
	s.logger.Info("applied crop", "size", result.Size.Label, "region", region)
	return nil
}

func (s *Session) setRunning(running bool, progress float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
	if progress >= 0 {
		s.progress = progress
	}
}

func (s *Session) release(results []types.ProcessedResult) {
	for _, r := range results {
		s.handles.Release(r.Handle)
	}
}
