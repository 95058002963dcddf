// Package mqtt defines the broker abstraction and topic layout shared by the
// hero-facing MQTT components: offer notifications, hero responses and
// location telemetry.
package mqtt

import "context"

// QoS classes looked up in the client's qos table.
const (
	KindNotify   = "notify"
	KindResponse = "response"
	KindResult   = "result"
	KindLocation = "location"
)

// Handler receives an inbound message.
type Handler func(topic string, payload []byte)

// Client is the subset of a broker connection the dispatch service uses.
type Client interface {
	// Publish sends payload on topic with the QoS configured for kind.
	Publish(ctx context.Context, topic, kind string, payload []byte) error
	// Subscribe registers h for topic. Subscriptions survive reconnects.
	Subscribe(topic, kind string, h Handler) error
	Disconnect()
}
