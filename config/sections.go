package config

import (
	"fmt"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/factory"
)

// NotifyConfig lists the notification backends, tried in order: "mqtt",
// "push", "log" or "nop".
type NotifyConfig struct {
	Backends []factory.ModuleConfig `json:"backends"`
}

// Uses reports whether backend typ is configured.
func (c NotifyConfig) Uses(typ string) bool {
	for _, b := range c.Backends {
		if b.Type == typ {
			return true
		}
	}
	return false
}

// StoreConfig selects the persistent store.
type StoreConfig struct {
	// Backend is "memory" or "sqlite".
	Backend string `json:"backend"`
	Path    string `json:"path"`
}

func (c *StoreConfig) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "sqlite"
	}
	if c.Backend == "sqlite" && c.Path == "" {
		c.Path = "otw.db"
	}
}

func (c StoreConfig) Validate() error {
	switch c.Backend {
	case "memory":
		return nil
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("store: path is required for sqlite")
		}
		return nil
	default:
		return fmt.Errorf("store: unknown backend %q", c.Backend)
	}
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr      string `json:"addr"`
	JWTSecret string `json:"jwt_secret"`
	JWTIssuer string `json:"jwt_issuer"`
	// AdminToken guards the audit log endpoint. Empty leaves it open.
	AdminToken      string `json:"admin_token"`
	ShutdownSeconds int    `json:"shutdown_seconds"`
}

func (c *HTTPConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.JWTIssuer == "" {
		c.JWTIssuer = "otw"
	}
	if c.ShutdownSeconds <= 0 {
		c.ShutdownSeconds = 10
	}
}

func (c HTTPConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSeconds) * time.Second
}

// LogConfig controls the application logger.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

func (c *LogConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

func (c LogConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", c.Level)
	}
	switch c.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("log: unknown format %q", c.Format)
	}
	return nil
}

// CleanupConfig schedules the maintenance jobs.
type CleanupConfig struct {
	Disabled                bool `json:"disabled"`
	LocationIntervalSeconds int  `json:"location_interval_seconds"`
	WaveIntervalHours       int  `json:"wave_interval_hours"`
	WaveRetentionDays       int  `json:"wave_retention_days"`
	WaveBatch               int  `json:"wave_batch"`
}

func (c *CleanupConfig) SetDefaults() {
	if c.LocationIntervalSeconds <= 0 {
		c.LocationIntervalSeconds = 300
	}
	if c.WaveIntervalHours <= 0 {
		c.WaveIntervalHours = 24
	}
	if c.WaveRetentionDays <= 0 {
		c.WaveRetentionDays = 30
	}
	if c.WaveBatch <= 0 {
		c.WaveBatch = 100
	}
}

func (c CleanupConfig) Validate() error {
	if c.WaveBatch > 10000 {
		return fmt.Errorf("cleanup: wave_batch %d too large", c.WaveBatch)
	}
	return nil
}

func (c CleanupConfig) LocationInterval() time.Duration {
	return time.Duration(c.LocationIntervalSeconds) * time.Second
}

func (c CleanupConfig) WaveInterval() time.Duration {
	return time.Duration(c.WaveIntervalHours) * time.Hour
}

func (c CleanupConfig) WaveRetention() time.Duration {
	return time.Duration(c.WaveRetentionDays) * 24 * time.Hour
}

// KPIConfig enables the per-hero completed-job ledger. An empty path
// disables it.
type KPIConfig struct {
	Path string `json:"path"`
}
