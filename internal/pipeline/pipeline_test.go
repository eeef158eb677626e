package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/observability"
	"github.com/couchcryptid/climate-risk-explorer/internal/pipeline"
)

// --- mocks ---

type mockTransformer struct {
	failFor string
}

func (m *mockTransformer) Transform(ctx context.Context, e domain.InteractionEvent) (domain.OutputEvent, error) {
	if e.ID == m.failFor {
		return domain.OutputEvent{}, errors.New("bad event")
	}
	return pipeline.NewTransformer().Transform(ctx, e)
}

type mockLoader struct {
	mu       sync.Mutex
	failures int
	calls    int
	loaded   []domain.OutputEvent
}

func (m *mockLoader) LoadBatch(_ context.Context, events []domain.OutputEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.failures > 0 {
		m.failures--
		return errors.New("broker unavailable")
	}
	m.loaded = append(m.loaded, events...)
	return nil
}

func (m *mockLoader) snapshot() []domain.OutputEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.OutputEvent(nil), m.loaded...)
}

func newTestQueue(m *observability.Metrics) *pipeline.Queue {
	return pipeline.NewQueue(16, 10*time.Millisecond, clockwork.NewRealClock(), m)
}

func makeEvent(id, session string) domain.InteractionEvent {
	return domain.InteractionEvent{
		ID:         id,
		SessionID:  session,
		Action:     domain.ActionSelectRegion,
		Region:     "Töv",
		OccurredAt: time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC),
	}
}

// --- tests ---

func TestPipeline_Run_HappyPath(t *testing.T) {
	m := observability.NewMetricsForTesting()
	q := newTestQueue(m)
	ldr := &mockLoader{}
	require.True(t, q.Publish(makeEvent("evt-1", "sess-a")))
	require.True(t, q.Publish(makeEvent("evt-2", "sess-b")))

	p := pipeline.New(q, &mockTransformer{}, ldr, slog.Default(), m, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	require.NoError(t, p.Run(ctx))

	loaded := ldr.snapshot()
	require.Len(t, loaded, 2)
	assert.Equal(t, []byte("sess-a"), loaded[0].Key)

	var got domain.InteractionEvent
	require.NoError(t, json.Unmarshal(loaded[1].Value, &got))
	if diff := cmp.Diff(makeEvent("evt-2", "sess-b"), got); diff != "" {
		t.Fatalf("event mismatch (-want +got):\n%s", diff)
	}
	require.NoError(t, p.CheckReadiness(ctx))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EventsPublished))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.PublisherRunning))
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	m := observability.NewMetricsForTesting()
	ldr := &mockLoader{}
	p := pipeline.New(newTestQueue(m), &mockTransformer{}, ldr, slog.Default(), m, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Empty(t, ldr.snapshot())
	assert.Error(t, p.CheckReadiness(ctx))
}

func TestPipeline_Run_TransformErrorSkipsEvent(t *testing.T) {
	m := observability.NewMetricsForTesting()
	q := newTestQueue(m)
	ldr := &mockLoader{}
	q.Publish(makeEvent("evt-bad", "sess-a"))
	q.Publish(makeEvent("evt-good", "sess-a"))

	p := pipeline.New(q, &mockTransformer{failFor: "evt-bad"}, ldr, slog.Default(), m, 10)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.Len(t, ldr.snapshot(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventPublishErrors))
}

func TestPipeline_Run_RetriesFailedLoad(t *testing.T) {
	m := observability.NewMetricsForTesting()
	q := newTestQueue(m)
	ldr := &mockLoader{failures: 1}
	q.Publish(makeEvent("evt-1", "sess-a"))

	p := pipeline.New(q, &mockTransformer{}, ldr, slog.Default(), m, 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Run(ctx))

	assert.Len(t, ldr.snapshot(), 1, "failed batch should be retried")
	assert.Equal(t, 2, ldr.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventPublishErrors))
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestQueue_ExtractBatch_FullBatch(t *testing.T) {
	m := observability.NewMetricsForTesting()
	q := pipeline.NewQueue(8, time.Hour, clockwork.NewFakeClock(), m)
	for _, id := range []string{"a", "b", "c"} {
		q.Publish(makeEvent(id, "s"))
	}

	batch, err := q.ExtractBatch(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0].ID)
	assert.Equal(t, "b", batch[1].ID)
}

func TestQueue_ExtractBatch_FlushInterval(t *testing.T) {
	m := observability.NewMetricsForTesting()
	clock := clockwork.NewFakeClock()
	q := pipeline.NewQueue(8, 500*time.Millisecond, clock, m)
	q.Publish(makeEvent("only", "s"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		batch []domain.InteractionEvent
		err   error
	}
	done := make(chan result, 1)
	go func() {
		b, err := q.ExtractBatch(ctx, 50)
		done <- result{b, err}
	}()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(500 * time.Millisecond)

	res := <-done
	require.NoError(t, res.err)
	require.Len(t, res.batch, 1)
	assert.Equal(t, "only", res.batch[0].ID)
}

func TestQueue_ExtractBatch_Cancelled(t *testing.T) {
	m := observability.NewMetricsForTesting()
	q := newTestQueue(m)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := q.ExtractBatch(ctx, 10)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, batch)
}

func TestQueue_PublishDropsWhenFull(t *testing.T) {
	m := observability.NewMetricsForTesting()
	q := pipeline.NewQueue(1, time.Second, clockwork.NewRealClock(), m)

	assert.True(t, q.Publish(makeEvent("a", "s")))
	assert.False(t, q.Publish(makeEvent("b", "s")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped))
}
