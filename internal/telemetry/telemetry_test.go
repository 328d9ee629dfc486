package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Disabled(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for _, cfg := range []*Config{nil, {Enabled: false}} {
		tel, err := New(ctx, cfg)
		require.NoError(t, err)
		assert.NotNil(t, tel.TracerProvider())
		assert.NotNil(t, tel.MeterProvider())
		assert.NotNil(t, tel.Tracer("test"))
		assert.Nil(t, tel.MetricsHandler())
		assert.NoError(t, tel.Shutdown(ctx))
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), &Config{
		Enabled: true,
		Tracing: &TracingConfig{Enabled: true, Sampling: 2},
	})
	require.ErrorContains(t, err, "invalid telemetry configuration")
}

func TestNew_PrometheusHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tel, err := New(ctx, &Config{
		Enabled: true,
		Metrics: &MetricsConfig{Enabled: true},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tel.Shutdown(ctx) })

	metrics, err := NewIndexMetrics(tel.MeterProvider())
	require.NoError(t, err)
	metrics.RecordRebuild(ctx, "catalog", "full", 3, 0, true)

	handler := tel.MetricsHandler()
	require.NotNil(t, handler)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "indexsync_rebuild_docs_total")
	assert.Contains(t, string(body), "go_goroutines")
}
