package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

//nolint:gocyclo
func TestLoad(t *testing.T) {
	path := writeFile(t, "config.yaml", `mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  username: "user"
  password: "pass"
  topic_prefix: "fleet"
  listen_responses: true
  qos:
    notify: 1
notify:
  backends:
    - type: mqtt
    - type: log
dispatch:
  waves:
    - {min_radius_m: 0, max_radius_m: 3218, timeout_seconds: 20, max_heroes: 10}
    - {min_radius_m: 3218, max_radius_m: 8047, timeout_seconds: 30, max_heroes: 5}
  weights: {proximity: 1}
  location_ttl_seconds: 120
store:
  backend: memory
http:
  addr: ":9000"
  jwt_secret: "s3cret"
metrics:
  sinks:
    - type: "nop"
  prom_addr: ":2112"
logging:
  backend: sqlite
  path: audit.db
telemetry:
  enabled: true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"client_id", cfg.MQTT.ClientID, "cli"},
		{"username", cfg.MQTT.Username, "user"},
		{"topic_prefix", cfg.MQTT.TopicPrefix, "fleet"},
		{"listen_responses", cfg.MQTT.ListenResponses, true},
		{"qos", cfg.MQTT.QoS["notify"], byte(1)},
		{"notify_backends", len(cfg.Notify.Backends), 2},
		{"waves", len(cfg.Dispatch.Waves), 2},
		{"wave2_timeout", cfg.Dispatch.Waves[1].TimeoutSeconds, 30.0},
		{"weights", cfg.Dispatch.Weights.Proximity, 1.0},
		{"ttl", cfg.Dispatch.LocationTTL(), 2 * time.Minute},
		{"store", cfg.Store.Backend, "memory"},
		{"http_addr", cfg.HTTP.Addr, ":9000"},
		{"jwt_issuer_default", cfg.HTTP.JWTIssuer, "otw"},
		{"metrics_sink", len(cfg.Metrics.Sinks) == 1 && cfg.Metrics.Sinks[0].Type == "nop", true},
		{"prom_addr", cfg.Metrics.PromAddr, ":2112"},
		{"logging_backend", cfg.Logging.Backend, "sqlite"},
		{"telemetry", cfg.Telemetry.Enabled, true},
		{"cleanup_default", cfg.Cleanup.WaveBatch, 100},
		{"log_level_default", cfg.Log.Level, "info"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s mismatch: %v (want %v)", c.name, c.got, c.want)
		}
	}
}

func TestLoadJSONWithEnvOverride(t *testing.T) {
	path := writeFile(t, "config.json", `{"store": {"backend": "memory"}, "http": {"addr": ":1"}}`)
	t.Setenv("K_HTTP__ADDR", ":7070")
	t.Setenv("K_DISPATCH__LOCATION_TTL_SECONDS", "60")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, time.Minute, cfg.Dispatch.LocationTTL())
	assert.Len(t, cfg.Dispatch.Waves, 5)
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]string{
		"bad store":   `{"store": {"backend": "postgres"}}`,
		"bad weights": `{"dispatch": {"weights": {"proximity": 0.5}}}`,
		"bad bands":   `{"dispatch": {"waves": [{"min_radius_m": 10, "max_radius_m": 5, "max_heroes": 1}]}}`,
		"mqtt broker": `{"notify": {"backends": [{"type": "mqtt"}]}}`,
		"push url":    `{"notify": {"backends": [{"type": "push"}]}}`,
		"log level":   `{"log": {"level": "loud"}}`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.json", data))
			assert.Error(t, err)
		})
	}
	_, err := Load(writeFile(t, "c.toml", ``))
	assert.ErrorContains(t, err, "unsupported config format")
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "otw.db", cfg.Store.Path)
	assert.Equal(t, 5*time.Minute, cfg.Cleanup.LocationInterval())
	assert.Equal(t, 30*24*time.Hour, cfg.Cleanup.WaveRetention())
	assert.False(t, cfg.NeedsMQTT())
}

func TestWatchReloads(t *testing.T) {
	path := writeFile(t, "config.yaml", "http:\n  addr: \":1\"\nstore:\n  backend: memory\n")
	var (
		mu  sync.Mutex
		got *Config
	)
	stop, err := Watch(path, nil, func(c *Config) {
		mu.Lock()
		got = c
		mu.Unlock()
	})
	require.NoError(t, err)
	defer func() { _ = stop() }()

	require.NoError(t, os.WriteFile(path, []byte("http:\n  addr: \":2\"\nstore:\n  backend: memory\n"), 0o644))
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil && got.HTTP.Addr == ":2"
	}, 5*time.Second, 20*time.Millisecond)
}
