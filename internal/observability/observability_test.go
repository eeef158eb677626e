package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("dropped")
	logger.Warn("overlay failed", "path", "Climate/pr.tif")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "overlay failed", rec["msg"])
	assert.Equal(t, "Climate/pr.tif", rec["path"])
}

func TestNewLogger_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "debug", "TEXT")

	logger.Debug("session created", "id", "abc")

	assert.Contains(t, buf.String(), "msg=\"session created\"")
	assert.Contains(t, buf.String(), "id=abc")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("verbose"))
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.OverlaysRendered.Inc()
	a.StateActions.WithLabelValues("open_panel", "applied").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.OverlaysRendered))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.OverlaysRendered))
	assert.Equal(t, 1.0, testutil.ToFloat64(a.StateActions.WithLabelValues("open_panel", "applied")))
}
