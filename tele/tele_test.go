package tele

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probe-lab/go-envelope/envelope"
)

func TestMetricsConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfgFn   func() *MetricsConfig
		wantErr bool
	}{
		{
			name:    "default",
			cfgFn:   func() *MetricsConfig { return DefaultMetricsConfig("test") },
			wantErr: false,
		},
		{
			name:    "nil",
			cfgFn:   func() *MetricsConfig { return nil },
			wantErr: true,
		},
		{
			name: "disabled ignores port",
			cfgFn: func() *MetricsConfig {
				cfg := DefaultMetricsConfig("test")
				cfg.Port = -1
				return cfg
			},
			wantErr: false,
		},
		{
			name: "enabled port out of range",
			cfgFn: func() *MetricsConfig {
				cfg := DefaultMetricsConfig("test")
				cfg.Enabled = true
				cfg.Port = 70000
				return cfg
			},
			wantErr: true,
		},
		{
			name: "enabled relative path",
			cfgFn: func() *MetricsConfig {
				cfg := DefaultMetricsConfig("test")
				cfg.Enabled = true
				cfg.Path = "metrics"
				return cfg
			},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.wantErr {
				assert.Error(t, tt.cfgFn().Validate())
			} else {
				assert.NoError(t, tt.cfgFn().Validate())
			}
		})
	}
}

func TestTraceConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultTraceConfig().Validate())
	assert.Error(t, (*TraceConfig)(nil).Validate())
	assert.Error(t, (&TraceConfig{SampleRatio: 1.5}).Validate())
	assert.Error(t, (&TraceConfig{SampleRatio: -0.1}).Validate())
}

func TestServeMetrics_disabled(t *testing.T) {
	shutdown, err := ServeMetrics(DefaultMetricsConfig("test"))
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInitTraceProvider_disabled(t *testing.T) {
	shutdown, err := InitTraceProvider(context.Background(), "test", DefaultTraceConfig())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}

func TestMetricsMux_notFound(t *testing.T) {
	rec := httptest.NewRecorder()
	metricsMux("/metrics").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, envelope.ContentTypeJSON, rec.Header().Get("Content-Type"))
	assert.Equal(t, `{"code":404,"msg":"not found"}`, rec.Body.String())
}

func TestMetricsMux_metrics(t *testing.T) {
	rec := httptest.NewRecorder()
	metricsMux("/metrics").ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
