package main

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/gobeaver/beaver-kit/config"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/internal/logging"
)

// serveConfig is the process configuration (BEAVER_ prefix).
type serveConfig struct {
	Host string `env:"LIVESERVE_HOST,default:127.0.0.1"`
	Port int    `env:"LIVESERVE_PORT,default:8000"`

	// Route config in the preview query-string form
	Query string `env:"LIVESERVE_QUERY,default:route=fs"`

	// Expose /metrics
	Metrics bool `env:"LIVESERVE_METRICS,default:true"`

	LogLevel  string `env:"LIVESERVE_LOG_LEVEL,default:info"`
	LogFormat string `env:"LIVESERVE_LOG_FORMAT,default:json"`

	// VFS path of the user settings file
	UserSettings string `env:"LIVESERVE_USER_SETTINGS,default:/app/settings.json"`

	// bbolt file holding view state; empty disables the state store
	StateDB string `env:"LIVESERVE_STATE_DB,default:liveserve-state.db"`

	// Seconds to wait for in-flight requests on shutdown
	ShutdownTimeout int `env:"LIVESERVE_SHUTDOWN_TIMEOUT,default:5"`
}

func loadConfig() (*serveConfig, *livefs.Config, error) {
	cfg := &serveConfig{}
	if err := config.Load(cfg); err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	fsCfg, err := livefs.GetConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load filesystem config: %w", err)
	}
	if err := fsCfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid filesystem config: %w", err)
	}
	return cfg, fsCfg, nil
}

func (c *serveConfig) validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	if c.UserSettings == "" {
		return errors.New("user settings path is required")
	}
	return nil
}

func (c *serveConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *serveConfig) logConfig() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat}
}
