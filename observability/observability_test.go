package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("warn", "json", &buf)
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("kept", "k", "v")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "kept", line["msg"])
	assert.Equal(t, "v", line["k"])

	_, err = NewLogger("loud", "text", &buf)
	assert.Error(t, err)
	_, err = NewLogger("info", "xml", &buf)
	assert.Error(t, err)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics("test", reg)

	m.ObserveMemoryOp("add", nil)
	m.ObserveMemoryOp("add", nil)
	m.ObserveMemoryOp("search", errors.New("x"))
	m.ObserveStep("memory_retriever", 10*time.Millisecond, errors.New("x"))
	m.ObserveStep("memory_retriever", 10*time.Millisecond, nil)
	m.ObserveCompletion("chat", time.Second, nil)
	m.ObserveQuality(0.5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MemoryOps.WithLabelValues("add", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MemoryOps.WithLabelValues("search", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepErrors.WithLabelValues("memory_retriever")))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "test_memory_operations_total")
	assert.Contains(t, string(body), "test_memory_quality_score_bucket")
	assert.Contains(t, string(body), "test_completion_latency_seconds")
}
