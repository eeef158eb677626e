//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/climate-risk-explorer/internal/adapter/kafka"
	"github.com/couchcryptid/climate-risk-explorer/internal/catalog"
	"github.com/couchcryptid/climate-risk-explorer/internal/config"
	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
	"github.com/couchcryptid/climate-risk-explorer/internal/explorer"
	"github.com/couchcryptid/climate-risk-explorer/internal/observability"
	"github.com/couchcryptid/climate-risk-explorer/internal/overlay"
	"github.com/couchcryptid/climate-risk-explorer/internal/pipeline"
	"github.com/couchcryptid/climate-risk-explorer/internal/session"
)

// Run with: go test -tags=integration ./internal/integration/ -v -count=1

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0", tckafka.WithClusterID("risk-explorer-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

type publishedEvent struct {
	Event   domain.InteractionEvent
	Key     string
	Headers map[string]string
}

// readEvents reads n messages from the start of topic.
func readEvents(ctx context.Context, t *testing.T, broker, topic string, n int) []publishedEvent {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       topic,
		GroupID:     fmt.Sprintf("test-consumer-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	out := make([]publishedEvent, 0, n)
	for range n {
		msg, err := consumer.ReadMessage(readCtx)
		require.NoError(t, err, "read from events topic")

		headers := make(map[string]string, len(msg.Headers))
		for _, h := range msg.Headers {
			headers[h.Key] = string(h.Value)
		}
		var e domain.InteractionEvent
		require.NoError(t, json.Unmarshal(msg.Value, &e), "unmarshal event")
		out = append(out, publishedEvent{Event: e, Key: string(msg.Key), Headers: headers})
	}
	return out
}

func startPipeline(ctx context.Context, t *testing.T, cfg *config.Config, queue *pipeline.Queue, metrics *observability.Metrics) *pipeline.Pipeline {
	t.Helper()
	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(queue, pipeline.NewTransformer(), writer, discardLogger(), metrics, cfg.BatchSize)
	done := make(chan struct{})
	runCtx, stop := context.WithCancel(ctx)
	go func() {
		defer close(done)
		_ = p.Run(runCtx)
	}()
	t.Cleanup(func() {
		stop()
		<-done
	})
	return p
}

// TestQueueToKafka publishes events through the queue, pipeline, and writer
// and reads them back from the topic.
func TestQueueToKafka(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	const topic = "test-events"
	createTopic(t, broker, topic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaEventsTopic:   topic,
		BatchSize:          10,
		BatchFlushInterval: 200 * time.Millisecond,
	}
	metrics := observability.NewMetricsForTesting()
	queue := pipeline.NewQueue(100, cfg.BatchFlushInterval, clockwork.NewRealClock(), metrics)
	p := startPipeline(ctx, t, cfg, queue, metrics)

	state := domain.DefaultState()
	state.SelectedRegion = "Khovd"
	sent := []domain.InteractionEvent{
		domain.NewInteractionEvent("session-a", domain.ActionSelectRegion, state),
		domain.NewInteractionEvent("session-a", domain.ActionToggleDashboard, state),
		domain.NewInteractionEvent("session-b", domain.ActionDismissSplash, domain.DefaultState()),
	}
	for _, e := range sent {
		require.True(t, queue.Publish(e))
	}

	got := readEvents(ctx, t, broker, topic, len(sent))

	byID := make(map[string]publishedEvent, len(got))
	for _, g := range got {
		byID[g.Event.ID] = g
	}
	for _, e := range sent {
		g, ok := byID[e.ID]
		require.True(t, ok, "event %s not published", e.ID)
		assert.Equal(t, e.SessionID, g.Key)
		assert.Equal(t, string(e.Action), g.Headers["action"])
		_, err := time.Parse(time.RFC3339, g.Headers["occurred_at"])
		assert.NoError(t, err, "occurred_at should be valid RFC3339")
		assert.Equal(t, e.Region, g.Event.Region)
		assert.True(t, e.OccurredAt.Equal(g.Event.OccurredAt))
	}
	assert.Eventually(t, p.Ready, 10*time.Second, 100*time.Millisecond)
}

// TestExplorerPublishesInteractions applies dashboard actions through the
// service and checks that each applied action reaches the topic.
func TestExplorerPublishesInteractions(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	const topic = "test-interactions"
	createTopic(t, broker, topic)

	cfg := &config.Config{
		KafkaBrokers:       []string{broker},
		KafkaEventsTopic:   topic,
		BatchSize:          5,
		BatchFlushInterval: 200 * time.Millisecond,
	}
	metrics := observability.NewMetricsForTesting()
	logger := discardLogger()
	queue := pipeline.NewQueue(100, cfg.BatchFlushInterval, clockwork.NewRealClock(), metrics)
	startPipeline(ctx, t, cfg, queue, metrics)

	svc := explorer.New(explorer.Deps{
		Catalog:  catalog.New(t.TempDir(), t.TempDir(), catalog.DefaultOptions()),
		Sessions: session.NewStore(time.Hour, clockwork.NewRealClock(), metrics, logger),
		Overlays: overlay.NewRenderer(0, 1, metrics, logger),
		Events:   queue,
		Metrics:  metrics,
		Logger:   logger,
	})

	view := svc.CreateSession()
	_, err := svc.Apply(view.ID, domain.Action{Type: domain.ActionDismissSplash})
	require.NoError(t, err)
	_, err = svc.Apply(view.ID, domain.Action{Type: domain.ActionSelectBasemap, Name: "CartoDB.Positron"})
	require.NoError(t, err)
	_, err = svc.Apply(view.ID, domain.Action{Type: domain.ActionSelectAgriculture, Crop: "Wheat", Detail: "Irrigated"})
	require.NoError(t, err)
	// Rejected actions publish nothing.
	_, err = svc.Apply(view.ID, domain.Action{Type: domain.ActionSelectBasemap, Name: "Google"})
	require.Error(t, err)

	got := readEvents(ctx, t, broker, topic, 3)

	actions := make([]domain.ActionType, len(got))
	for i, g := range got {
		assert.Equal(t, view.ID, g.Key)
		actions[i] = g.Event.Action
	}
	// One session keys one partition, so order is preserved.
	assert.Equal(t, []domain.ActionType{
		domain.ActionDismissSplash,
		domain.ActionSelectBasemap,
		domain.ActionSelectAgriculture,
	}, actions)
	assert.Equal(t, "CartoDB.Positron", got[2].Event.Basemap)
	assert.Equal(t, "Wheat - Irrigated", got[2].Event.ExposureLayer)
}
