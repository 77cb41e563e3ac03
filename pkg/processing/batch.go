package processing

import (
	"context"
	"iter"

	"github.com/menta2k/print-sizer/pkg/analyzer"
	"github.com/menta2k/print-sizer/pkg/types"
)

// ProgressFunc receives the fraction of entries attempted so far, in (0, 1]
type ProgressFunc func(fraction float64)

// RenderAll lazily renders every size with its default crop, in order.
//
// Entries are rendered one at a time. A failed entry is logged and left out
// of the sequence; progress is still reported for it. Ranging over the
// sequence again starts over. Cancelling ctx stops before the next entry.
func (p *Processor) RenderAll(ctx context.Context, src analyzer.Source, sizes []types.PhysicalSize, progress ProgressFunc) iter.Seq[types.ProcessedResult] {
	return func(yield func(types.ProcessedResult) bool) {
		total := len(sizes)
		for i, size := range sizes {
			if err := ctx.Err(); err != nil {
				p.logger.Info("batch stopped", "completed", i, "total", total, "error", err)
				return
			}

			result, err := p.RenderEntry(ctx, src, size, nil)
			if progress != nil {
				progress(float64(i+1) / float64(total))
			}
			if err != nil {
				p.logger.Error("error processing size", "size", size.Label, "error", err)
				continue
			}
			if !yield(result) {
				return
			}
		}
	}
}

// RenderAllSlice collects RenderAll into a slice
func (p *Processor) RenderAllSlice(ctx context.Context, src analyzer.Source, sizes []types.PhysicalSize, progress ProgressFunc) []types.ProcessedResult {
	var results []types.ProcessedResult
	for r := range p.RenderAll(ctx, src, sizes, progress) {
		results = append(results, r)
	}
	return results
}
