// Package config loads and validates the session layer's runtime
// configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Service describes one listener the manager starts on serve.
type Service struct {
	Host     string
	Port     int
	Protocol string // tcp, ssl, ws, wss, rpc
}

// Config holds all session-layer configuration.
//
// Tags:
//
//	env: environment variable name
//	envDefault: default value if not set
type Config struct {
	// Admission & sessions
	MaxSessions    int           `env:"SESSIOND_MAX_SESSIONS" envDefault:"1000"`
	SessionTimeout time.Duration `env:"SESSIOND_SESSION_TIMEOUT" envDefault:"600s"`
	LogSessions    time.Duration `env:"SESSIOND_LOG_SESSIONS" envDefault:"0s"`

	// Cost model (§4.3)
	CostSoftLimit       float64       `env:"SESSIOND_COST_SOFT_LIMIT" envDefault:"1000"`
	CostHardLimit       float64       `env:"SESSIOND_COST_HARD_LIMIT" envDefault:"10000"`
	InitialConcurrent   int           `env:"SESSIOND_INITIAL_CONCURRENT" envDefault:"10"`
	BandwidthUnitCost   float64       `env:"SESSIOND_BW_UNIT_COST" envDefault:"1.0"`
	BandwidthCostPerKB  float64       `env:"SESSIOND_BW_COST_PER_KB" envDefault:"1.0"`
	RequestSleepMS      int           `env:"SESSIOND_REQUEST_SLEEP_MS" envDefault:"0"`
	RequestTimeout      time.Duration `env:"SESSIOND_REQUEST_TIMEOUT" envDefault:"30s"`
	RecalcPeriod        time.Duration `env:"SESSIOND_RECALC_PERIOD" envDefault:"300s"`
	StaleReaperPeriod   time.Duration `env:"SESSIOND_STALE_REAPER_PERIOD" envDefault:"60s"`

	// Framing / transport (§6)
	MaxRecv int `env:"SESSIOND_MAX_RECV" envDefault:"1000000"`
	MaxSend int `env:"SESSIOND_MAX_SEND" envDefault:"350000"`

	// TLS (for ssl/wss services)
	SSLCertFile string `env:"SESSIOND_SSL_CERT" envDefault:""`
	SSLKeyFile  string `env:"SESSIOND_SSL_KEY" envDefault:""`

	// Listeners: "host:port:protocol" comma-separated, parsed by ParseServices
	Services string `env:"SESSIOND_SERVICES" envDefault:"0.0.0.0:50001:tcp,0.0.0.0:50002:ws,127.0.0.1:8000:rpc"`

	// Resource limits (container-aware, mirrors cgroup quota)
	CPULimit    float64 `env:"SESSIOND_CPU_LIMIT" envDefault:"1.0"`
	MemoryLimit int64   `env:"SESSIOND_MEMORY_LIMIT" envDefault:"536870912"`

	// Drop-client pattern: regex matched against client_name at server.version
	DropClientPattern string `env:"SESSIOND_DROP_CLIENT" envDefault:""`
	AnonLogs          bool   `env:"SESSIOND_ANON_LOGS" envDefault:"false"`

	// Metrics / health
	MetricsAddr     string        `env:"SESSIOND_METRICS_ADDR" envDefault:":9090"`
	MetricsInterval time.Duration `env:"SESSIOND_METRICS_INTERVAL" envDefault:"15s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from an optional .env file and the process
// environment. Priority: ENV vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for internal consistency.
func (c *Config) Validate() error {
	if c.MaxSessions < 1 {
		return fmt.Errorf("SESSIOND_MAX_SESSIONS must be > 0, got %d", c.MaxSessions)
	}
	if c.CostHardLimit <= c.CostSoftLimit {
		return fmt.Errorf("SESSIOND_COST_HARD_LIMIT (%.1f) must be > SESSIOND_COST_SOFT_LIMIT (%.1f)",
			c.CostHardLimit, c.CostSoftLimit)
	}
	if c.InitialConcurrent < 1 {
		return fmt.Errorf("SESSIOND_INITIAL_CONCURRENT must be > 0, got %d", c.InitialConcurrent)
	}
	if _, err := c.ParseServices(); err != nil {
		return fmt.Errorf("SESSIOND_SERVICES: %w", err)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error (got %s)", c.LogLevel)
	}
	validLogFormats := map[string]bool{"json": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of json, pretty (got %s)", c.LogFormat)
	}
	return nil
}

// EffectiveMaxSend mirrors the original's asymmetric floor:
// max_send = max(350000, env.max_send). Preserved verbatim (§9 Open Questions).
func (c *Config) EffectiveMaxSend() int {
	if c.MaxSend > 350000 {
		return c.MaxSend
	}
	return 350000
}

// LowWatermark returns floor(max_sessions * 19/20), the admission
// hysteresis resume threshold (§4.1).
func (c *Config) LowWatermark() int {
	return c.MaxSessions * 19 / 20
}

// ParseServices parses SESSIOND_SERVICES into a Service list.
func (c *Config) ParseServices() ([]Service, error) {
	return parseServices(c.Services)
}

// LogConfig emits the resolved configuration as a structured log line.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Int("max_sessions", c.MaxSessions).
		Dur("session_timeout", c.SessionTimeout).
		Float64("cost_soft_limit", c.CostSoftLimit).
		Float64("cost_hard_limit", c.CostHardLimit).
		Int("initial_concurrent", c.InitialConcurrent).
		Dur("recalc_period", c.RecalcPeriod).
		Str("services", c.Services).
		Int("max_recv", c.MaxRecv).
		Int("effective_max_send", c.EffectiveMaxSend()).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("session layer configuration loaded")
}
