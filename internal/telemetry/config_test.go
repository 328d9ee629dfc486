package telemetry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	assert.Equal(t, DefaultServiceName, cfg.GetServiceName())
	assert.Equal(t, "unknown", cfg.GetServiceVersion())
	assert.Equal(t, DefaultEndpoint, cfg.GetEndpoint())

	custom := &Config{ServiceName: "sync-worker", ServiceVersion: "1.2.3", Endpoint: "otel:4318"}
	assert.Equal(t, "sync-worker", custom.GetServiceName())
	assert.Equal(t, "1.2.3", custom.GetServiceVersion())
	assert.Equal(t, "otel:4318", custom.GetEndpoint())

	assert.Equal(t, DefaultSampling, (&TracingConfig{}).GetSampling())
	assert.Equal(t, 0.5, (&TracingConfig{Sampling: 0.5}).GetSampling())

	var nilMetrics *MetricsConfig
	assert.Equal(t, ExporterPrometheus, nilMetrics.GetExporter())
	assert.Equal(t, ExporterOTLP, (&MetricsConfig{Exporter: ExporterOTLP}).GetExporter())
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     *Config
		wantErr string
	}{
		{name: "nil config", cfg: nil},
		{name: "disabled ignores bad values", cfg: &Config{Tracing: &TracingConfig{Enabled: true, Sampling: 7}}},
		{name: "enabled without sections", cfg: &Config{Enabled: true}},
		{
			name: "valid full config",
			cfg: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 1},
				Metrics: &MetricsConfig{Enabled: true, Exporter: ExporterOTLP},
			},
		},
		{
			name:    "sampling above one",
			cfg:     &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: 1.5}},
			wantErr: "tracing: sampling must be between 0.0 and 1.0",
		},
		{
			name:    "negative sampling",
			cfg:     &Config{Enabled: true, Tracing: &TracingConfig{Enabled: true, Sampling: -0.1}},
			wantErr: "tracing: sampling must be between 0.0 and 1.0",
		},
		{
			name:    "unknown exporter",
			cfg:     &Config{Enabled: true, Metrics: &MetricsConfig{Enabled: true, Exporter: "statsd"}},
			wantErr: `metrics: exporter must be "prometheus" or "otlp", got "statsd"`,
		},
		{
			name: "disabled sections are not validated",
			cfg: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Sampling: 9},
				Metrics: &MetricsConfig{Exporter: "statsd"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
