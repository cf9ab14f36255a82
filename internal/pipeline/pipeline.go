package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/accesslog-geo-etl/internal/domain"
	"github.com/couchcryptid/accesslog-geo-etl/internal/observability"
	"golang.org/x/sync/errgroup"
)

// BatchExtractor reads up to batchSize raw lines from the source. It returns
// io.EOF, with no lines, once the source is exhausted.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawLine, error)
}

// Transformer turns a raw line into an event. skipped reports a line that is
// valid but produces no row.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawLine) (event domain.Event, skipped bool, err error)
}

// BatchLoader writes multiple events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.Event) error
}

// Options tunes a Pipeline.
type Options struct {
	BatchSize   int
	Concurrency int  // lines transformed in parallel within a batch
	Strict      bool // stop at the first rejected line
}

// Stats summarizes a run.
type Stats struct {
	Read     int
	Emitted  int
	Skipped  int
	Rejected int
}

// Pipeline orchestrates the extract-transform-load loop over one input.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	opts        Options
	ready       atomic.Bool
	stats       Stats
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Pipeline {
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		opts:        opts,
	}
}

// CheckReadiness returns nil once the pipeline has loaded at least one batch.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not loaded any events yet")
	}
	return nil
}

// Stats returns the counters of the last run. Call it after Run returns.
func (p *Pipeline) Stats() Stats {
	return p.stats
}

// Run processes the input until it is exhausted or ctx is cancelled; both end
// the run without error. Cancellation is honoured between batches, so every
// batch handed to the loader is complete. A non-nil error means the run was
// aborted: a source or sink failure, a fatal lookup error, or a rejected line
// in strict mode.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started",
		"batch_size", p.opts.BatchSize,
		"concurrency", p.opts.Concurrency,
		"strict", p.opts.Strict,
	)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	for {
		if ctx.Err() != nil {
			p.logger.Info("pipeline stopping", "reason", ctx.Err())
			return nil
		}

		done, err := p.processBatch(ctx)
		if err != nil {
			return err
		}
		if done {
			p.logger.Info("pipeline finished",
				"read", p.stats.Read,
				"emitted", p.stats.Emitted,
				"skipped", p.stats.Skipped,
				"rejected", p.stats.Rejected,
			)
			return nil
		}
	}
}

// result is the outcome of one line, stored at the line's batch index.
type result struct {
	event   domain.Event
	skipped bool
	err     error
}

// processBatch runs one extract-transform-load cycle. done reports that the
// pipeline should stop without error.
func (p *Pipeline) processBatch(ctx context.Context) (done bool, err error) {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.opts.BatchSize)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if ctx.Err() != nil {
			return true, nil
		}
		return false, fmt.Errorf("extract batch: %w", err)
	}
	if len(rawBatch) == 0 {
		return false, nil
	}

	p.stats.Read += len(rawBatch)
	p.metrics.LinesRead.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))

	results, err := p.transformBatch(ctx, rawBatch)
	if err != nil {
		return false, err
	}
	if ctx.Err() != nil {
		p.logger.Info("pipeline stopping, discarding partial batch",
			"reason", ctx.Err(),
			"first_line", rawBatch[0].Number,
		)
		return true, nil
	}

	events := make([]domain.Event, 0, len(rawBatch))
	var rejected error
	for i, r := range results {
		raw := rawBatch[i]
		switch {
		case r.skipped:
			p.stats.Skipped++
			p.metrics.LinesSkipped.Inc()
			p.logger.Debug("bogon address, skipping line", "line", raw.Number)
		case r.err != nil:
			p.stats.Rejected++
			kind := domain.ErrorKind(r.err)
			p.metrics.LineErrors.WithLabelValues(kind).Inc()
			p.logger.Warn("line rejected", "line", raw.Number, "kind", kind, "error", r.err)
			if p.opts.Strict {
				rejected = fmt.Errorf("line %d: %w", raw.Number, r.err)
			}
		default:
			events = append(events, r.event)
		}
		if rejected != nil {
			break
		}
	}

	if err := p.load(ctx, events); err != nil {
		return false, err
	}
	if rejected != nil {
		return false, rejected
	}
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	return false, nil
}

// transformBatch transforms the lines with up to Concurrency goroutines.
// Results keep input order. A fatal lookup error cancels the rest of the
// batch and is returned.
func (p *Pipeline) transformBatch(ctx context.Context, rawBatch []domain.RawLine) ([]result, error) {
	results := make([]result, len(rawBatch))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i := range rawBatch {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			event, skipped, err := p.transformer.Transform(gctx, rawBatch[i])
			if err != nil && isFatal(err) && gctx.Err() == nil {
				return fmt.Errorf("line %d: %w", rawBatch[i].Number, err)
			}
			results[i] = result{event: event, skipped: skipped, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Pipeline) load(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := p.loader.LoadBatch(ctx, events); err != nil {
		return fmt.Errorf("load batch of %d events: %w", len(events), err)
	}
	p.stats.Emitted += len(events)
	p.metrics.EventsEmitted.Add(float64(len(events)))
	p.ready.Store(true)
	return nil
}

// isFatal reports whether err means no further line can succeed, such as
// rejected credentials or an exhausted quota.
func isFatal(err error) bool {
	var lerr *domain.LookupError
	if !errors.As(err, &lerr) || lerr.Retryable {
		return false
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
