package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewProviderDisabled(t *testing.T) {
	p, err := NewProvider(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Metrics())

	// no-op recorder must not panic
	p.Metrics().RecordCacheLookup(context.Background(), true)
	p.Metrics().RecordRemoteCall(context.Background(), "threads.list", time.Second, nil)
	assert.Nil(t, p.PrometheusHandler())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderPrometheus(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.MetricsExporter = ExporterPrometheus

	p, err := NewProvider(context.Background(), cfg)
	require.NoError(t, err)
	defer p.Shutdown(context.Background())

	require.NotNil(t, p.Metrics())
	assert.NotNil(t, p.PrometheusHandler())

	p.Metrics().RecordCacheLookup(context.Background(), false)
	p.Metrics().RecordWatchReseed(context.Background())
	p.Metrics().RecordHydration(context.Background(), StatusSkipped)
}

func TestNewProviderRejectsUnknownExporter(t *testing.T) {
	cfg := Config{Enabled: true, MetricsExporter: "statsd"}
	_, err := NewProvider(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNewProviderOTLPRequiresEndpoint(t *testing.T) {
	cfg := Config{Enabled: true, MetricsExporter: ExporterOTLP}
	_, err := NewProvider(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordCacheLookup(ctx, true)
	m.RecordRemoteCall(ctx, "op", time.Millisecond, nil)
	m.RecordRetryBackoff(ctx, "op")
	m.RecordHydration(ctx, StatusSuccess)
	m.RecordWatchPoll(ctx, nil)
	m.RecordWatchReseed(ctx)
	m.RecordTokenRefresh(ctx, nil)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "prometheus", config: Config{MetricsExporter: ExporterPrometheus}, wantErr: false},
		{name: "stdout", config: Config{MetricsExporter: ExporterStdout}, wantErr: false},
		{name: "otlp with endpoint", config: Config{MetricsExporter: ExporterOTLP, OTLPEndpoint: "localhost:4318"}, wantErr: false},
		{name: "otlp without endpoint", config: Config{MetricsExporter: ExporterOTLP}, wantErr: true},
		{name: "unknown exporter", config: Config{MetricsExporter: "graphite"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
