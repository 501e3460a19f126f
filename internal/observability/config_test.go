package observability

import (
	"testing"

	"github.com/smallbiznis/bistro/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaultsServiceName(t *testing.T) {
	cfg := LoadConfig(config.Config{Environment: "production", Observability: config.ObservabilityConfig{LogLevel: "info"}})
	assert.Equal(t, "bistro", cfg.ServiceName)
	assert.False(t, cfg.Debug())

	cfg = LoadConfig(config.Config{AppName: "kitchen", Environment: "Local"})
	assert.Equal(t, "kitchen", cfg.ServiceName)
	assert.True(t, cfg.Debug())
}

func TestSplitCarriesTracingSettings(t *testing.T) {
	out := split(LoadConfig(config.Config{
		AppVersion: "1.2.0",
		Observability: config.ObservabilityConfig{
			OtelEnabled:       true,
			OtelEndpoint:      "collector:4318",
			OtelProtocol:      "http",
			OtelSamplingRatio: 0.5,
		},
	}))
	assert.True(t, out.Tracing.Enabled)
	assert.Equal(t, "collector:4318", out.Tracing.ExporterEndpoint)
	assert.Equal(t, "http", out.Tracing.ExporterProtocol)
	assert.Equal(t, "1.2.0", out.Logger.Version)
	assert.Equal(t, "bistro", out.Metrics.ServiceName)
}
