// Package config loads the service configuration from a YAML or JSON file
// with K_ environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/core/metrics"
	"github.com/mozocode/On-The-Way-Rebuild/infra/mqtt"
	"github.com/mozocode/On-The-Way-Rebuild/infra/push"
)

type Config struct {
	MQTT      mqtt.Config     `json:"mqtt"`
	Push      push.Config     `json:"push"`
	Notify    NotifyConfig    `json:"notify"`
	Dispatch  dispatch.Config `json:"dispatch"`
	Store     StoreConfig     `json:"store"`
	HTTP      HTTPConfig      `json:"http"`
	Metrics   metrics.Config  `json:"metrics"`
	Log       LogConfig       `json:"log"`
	Logging   LoggingConfig   `json:"logging"`
	Sentry    SentryConfig    `json:"sentry"`
	Telemetry TelemetryConfig `json:"telemetry"`
	Cleanup   CleanupConfig   `json:"cleanup"`
	KPI       KPIConfig       `json:"kpi"`
}

// Default returns a configuration with every section defaulted, suitable
// for running without a file.
func Default() *Config {
	var cfg Config
	cfg.SetDefaults()
	return &cfg
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	parser, err := parserFor(path)
	if err != nil {
		return nil, err
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies every section's defaults.
func (c *Config) SetDefaults() {
	c.Dispatch.SetDefaults()
	c.Store.SetDefaults()
	c.HTTP.SetDefaults()
	c.Log.SetDefaults()
	c.Logging.SetDefaults()
	c.Cleanup.SetDefaults()
	if c.MQTT.Broker != "" {
		c.MQTT.SetDefaults()
	}
	if c.Push.URL != "" {
		c.Push.SetDefaults()
	}
}

// Validate checks every section. Transport sections are only checked when
// a notifier or listener uses them.
func (c Config) Validate() error {
	if err := c.Dispatch.Validate(); err != nil {
		return err
	}
	if err := c.Store.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Cleanup.Validate(); err != nil {
		return err
	}
	if c.NeedsMQTT() {
		if err := c.MQTT.Validate(); err != nil {
			return err
		}
	}
	if c.Notify.Uses("push") {
		if err := c.Push.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// NeedsMQTT reports whether any component talks to the broker.
func (c Config) NeedsMQTT() bool {
	return c.Notify.Uses("mqtt") || c.MQTT.ListenResponses || c.Telemetry.Enabled
}
