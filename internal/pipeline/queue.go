package pipeline

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/observability"
)

// Queue is an in-memory BatchExtractor fed by the HTTP handlers.
type Queue struct {
	events        chan domain.InteractionEvent
	flushInterval time.Duration
	clock         clockwork.Clock
	metrics       *observability.Metrics
}

// NewQueue creates a queue holding up to capacity events.
func NewQueue(capacity int, flushInterval time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *Queue {
	return &Queue{
		events:        make(chan domain.InteractionEvent, capacity),
		flushInterval: flushInterval,
		clock:         clock,
		metrics:       metrics,
	}
}

// Publish enqueues e without blocking. It returns false and drops the event
// when the queue is full.
func (q *Queue) Publish(e domain.InteractionEvent) bool {
	select {
	case q.events <- e:
		return true
	default:
		q.metrics.EventsDropped.Inc()
		return false
	}
}

// ExtractBatch waits for the first event, then collects more until the batch
// is full or the flush interval has passed since the first one arrived.
func (q *Queue) ExtractBatch(ctx context.Context, batchSize int) ([]domain.InteractionEvent, error) {
	var first domain.InteractionEvent
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case first = <-q.events:
	}

	batch := make([]domain.InteractionEvent, 1, batchSize)
	batch[0] = first

	timer := q.clock.NewTimer(q.flushInterval)
	defer timer.Stop()

	for len(batch) < batchSize {
		select {
		case e := <-q.events:
			batch = append(batch, e)
		case <-timer.Chan():
			return batch, nil
		case <-ctx.Done():
			// Hand back what was collected; the loader sees the cancelled context.
			return batch, nil
		}
	}
	return batch, nil
}
