package config

// TelemetryConfig enables hero location ingestion over MQTT. Reports are read
// from <mqtt.topic_prefix>/<hero>/location.
type TelemetryConfig struct {
	Enabled bool `json:"enabled"`
}
