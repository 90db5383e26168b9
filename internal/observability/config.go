package observability

import (
	"strings"

	"github.com/smallbiznis/promptly/internal/config"
	"github.com/smallbiznis/promptly/internal/observability/logger"
	"github.com/smallbiznis/promptly/internal/observability/metrics"
	"github.com/smallbiznis/promptly/internal/observability/tracing"
)

const (
	defaultSamplingRatio     = 0.1
	developmentSamplingRatio = 1.0
	defaultServiceName       = "promptly"
	developmentLogFormat     = "console"
	productionLogFormat      = "json"
)

// Config is the resolved telemetry setup for one process.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string
	LogSQL    bool

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

// LoadConfig fills the gaps in the telemetry settings. Developer
// environments log to the console and keep every trace unless told
// otherwise.
func LoadConfig(cfg config.Config) Config {
	t := cfg.Telemetry
	out := Config{
		ServiceName:          strings.TrimSpace(cfg.AppName),
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             t.LogLevel,
		LogFormat:            t.LogFormat,
		LogSQL:               t.LogSQL,
		OtelEnabled:          t.OtelEnabled,
		OtelExporterEndpoint: t.OTLPEndpoint,
		OtelExporterProtocol: t.OTLPProtocol,
		OtelSamplingRatio:    t.SamplingRatio,
	}
	if out.ServiceName == "" {
		out.ServiceName = defaultServiceName
	}
	if out.LogLevel == "" {
		out.LogLevel = "info"
	}
	if out.LogFormat == "" {
		out.LogFormat = productionLogFormat
		if cfg.IsLocal() {
			out.LogFormat = developmentLogFormat
		}
	}
	if out.OtelSamplingRatio < 0 || out.OtelSamplingRatio > 1 {
		out.OtelSamplingRatio = defaultSamplingRatio
		if cfg.IsLocal() {
			out.OtelSamplingRatio = developmentSamplingRatio
		}
	}
	return out
}

func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	return config.Config{Environment: c.Environment}.IsLocal()
}

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.LogLevel,
		Format:              c.LogFormat,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}

// Gorm returns the query logger settings. SQL text stays out of the logs
// unless LogSQL is set.
func (c Config) Gorm() logger.GormLoggerConfig {
	cfg := logger.DefaultGormLoggerConfig()
	cfg.Level = logger.ParseGormLevel(c.LogLevel)
	cfg.LogSQL = c.LogSQL
	return cfg
}
