package observability

import (
	"strings"

	"github.com/samber/lo"
	"github.com/smallbiznis/bistro/internal/config"
)

// Config is the slice of application configuration the log, trace and metric providers share.
type Config struct {
	ServiceName string
	Environment string
	Version     string
	config.ObservabilityConfig
}

func LoadConfig(cfg config.Config) Config {
	return Config{
		ServiceName:         lo.CoalesceOrEmpty(strings.TrimSpace(cfg.AppName), "bistro"),
		Environment:         strings.TrimSpace(cfg.Environment),
		Version:             strings.TrimSpace(cfg.AppVersion),
		ObservabilityConfig: cfg.Observability,
	}
}

// Debug turns on stack traces for errors outside production-like environments.
func (c Config) Debug() bool {
	if strings.EqualFold(c.LogLevel, "debug") {
		return true
	}
	return lo.Contains([]string{"dev", "development", "local", "test"}, strings.ToLower(c.Environment))
}
