package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/exitwatch/internal/model"
)

// DefaultConcurrency is the number of captures analysed at once.
const DefaultConcurrency = 4

// BatchProcessor analyses several captures concurrently.
// Each capture runs through a fresh pipeline from the factory; results keep
// the order of the input paths.
type BatchProcessor struct {
	// pipelineFactory creates a new pipeline for each capture.
	pipelineFactory func() *Pipeline

	// concurrency is the maximum number of concurrent runs.
	concurrency int

	// logger is used for batch-level logging.
	logger *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a new BatchProcessor.
func NewBatchProcessor(pipelineFactory func() *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(bp)
	}

	if bp.logger == nil {
		bp.logger = slog.Default()
	}

	return bp
}

// ProcessBatch analyses every capture in paths.
//
// A failing capture does not stop the others; its error is recorded on its
// investigation. The returned slice has one entry per path, in input order.
// Entries for captures never started because ctx was cancelled are nil, and
// the context error is returned.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, paths []string) ([]*model.Investigation, error) {
	bp.logger.Info("starting batch analysis",
		"captures", len(paths),
		"concurrency", bp.concurrency,
	)

	startTime := time.Now()
	results := make([]*model.Investigation, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, path := range paths {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			inv, err := bp.pipelineFactory().Run(gctx, path)
			results[i] = inv

			if err != nil {
				bp.logger.Warn("capture analysis failed",
					"capture", path,
					"error", err,
				)
				return nil
			}

			bp.logger.Debug("capture analysed",
				"capture", path,
				"index", i+1,
				"total", len(paths),
			)
			return nil
		})
	}

	err := g.Wait()

	bp.logger.Info("batch analysis complete",
		"captures", len(paths),
		"elapsed", time.Since(startTime),
	)

	return results, err
}

// ProcessBatchWithCallback analyses every capture in paths and calls
// callback with each finished investigation and its input index. callback
// is called from worker goroutines and must be safe for concurrent use.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	paths []string,
	callback func(inv *model.Investigation, index int),
) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, path := range paths {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			inv, _ := bp.pipelineFactory().Run(gctx, path) //nolint:errcheck // Error is stored in the investigation
			callback(inv, i)
			return nil
		})
	}

	return g.Wait()
}
