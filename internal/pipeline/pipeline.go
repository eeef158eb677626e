package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/observability"
)

// BatchExtractor reads up to batchSize interaction events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.InteractionEvent, error)
}

// Transformer converts an interaction event into an output event.
type Transformer interface {
	Transform(ctx context.Context, event domain.InteractionEvent) (domain.OutputEvent, error)
}

// BatchLoader writes multiple output events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Pipeline orchestrates the extract-transform-load loop that publishes
// dashboard interaction events.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	ready       atomic.Bool
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// CheckReadiness returns nil if the pipeline has published at least one batch,
// or an error describing why it is not yet ready.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has not published any events yet")
	}
	return nil
}

// Run executes the batch loop until the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("event pipeline started", "batch_size", p.batchSize)
	p.metrics.PublisherRunning.Set(1)
	defer p.metrics.PublisherRunning.Set(0)

	// Exponential backoff: start at 200ms, double each retry, cap at 5s.
	backoff := initialBackoff

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("event pipeline stopping", "reason", ctx.Err())
			return nil
		default:
		}

		if !p.processBatch(ctx, &backoff) {
			return nil
		}
	}
}

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// processBatch runs one extract-transform-load cycle. Returns false if the pipeline should stop.
func (p *Pipeline) processBatch(ctx context.Context, backoff *time.Duration) bool {
	batch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		p.logger.Error("extract batch failed", "error", err)
		return p.backoffOrStop(ctx, backoff)
	}

	if len(batch) == 0 {
		return ctx.Err() == nil
	}
	p.metrics.EventBatchSize.Observe(float64(len(batch)))

	out := p.transform(ctx, batch)
	if len(out) == 0 {
		return true
	}
	return p.load(ctx, out, backoff)
}

// transform serializes each event, skipping the ones that fail.
func (p *Pipeline) transform(ctx context.Context, batch []domain.InteractionEvent) []domain.OutputEvent {
	out := make([]domain.OutputEvent, 0, len(batch))
	for _, e := range batch {
		o, err := p.transformer.Transform(ctx, e)
		if err != nil {
			p.logger.Warn("transform failed, skipping event",
				"error", err,
				"event", e.ID,
				"session", e.SessionID,
			)
			p.metrics.EventPublishErrors.Inc()
			continue
		}
		out = append(out, o)
	}
	return out
}

// load writes the batch, retrying with backoff until it succeeds or the
// context ends. Events held only in memory cannot be re-read, so a failed
// batch is retried rather than dropped. Returns false if the pipeline should stop.
func (p *Pipeline) load(ctx context.Context, out []domain.OutputEvent, backoff *time.Duration) bool {
	for {
		err := p.loader.LoadBatch(ctx, out)
		if err == nil {
			break
		}
		p.metrics.EventPublishErrors.Inc()
		p.logger.Error("load batch failed", "error", err, "batch_size", len(out))
		if !p.backoffOrStop(ctx, backoff) {
			return false
		}
	}

	*backoff = initialBackoff
	p.metrics.EventsPublished.Add(float64(len(out)))
	p.ready.Store(true)
	return true
}

// backoffOrStop checks for context cancellation, sleeps with the current backoff,
// and advances the backoff. Returns false if the pipeline should stop.
func (p *Pipeline) backoffOrStop(ctx context.Context, backoff *time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if !sleepWithContext(ctx, *backoff) {
		return false
	}
	*backoff = nextBackoff(*backoff, maxBackoff)
	return true
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
