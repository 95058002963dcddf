// Package infra contains technical adapters: the MQTT transport, the push
// gateway client, persistent stores and metrics exporters. These packages
// should depend only on the interfaces defined in the core packages.
package infra
