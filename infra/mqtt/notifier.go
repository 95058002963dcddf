package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	coremqtt "github.com/mozocode/On-The-Way-Rebuild/core/mqtt"
	"github.com/mozocode/On-The-Way-Rebuild/core/notify"
)

// Envelope is the JSON body published to <prefix>/<recipient>/notify.
type Envelope struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Body   string            `json:"body"`
	Data   map[string]string `json:"data,omitempty"`
	SentAt int64             `json:"sent_at"`
}

// Notifier delivers notify.Message values over MQTT. Delivery is at most
// the broker's QoS; there is no application-level retry.
type Notifier struct {
	client coremqtt.Client
	topics coremqtt.Topics
	now    func() time.Time
}

// NewNotifier publishes through client under the given topic layout.
func NewNotifier(client coremqtt.Client, topics coremqtt.Topics) *Notifier {
	return &Notifier{client: client, topics: topics, now: time.Now}
}

func (n *Notifier) Notify(ctx context.Context, msg notify.Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("mqtt notify: empty recipient")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(Envelope{
		ID:     uuid.NewString(),
		Title:  msg.Title,
		Body:   msg.Body,
		Data:   msg.Data,
		SentAt: n.now().UnixMilli(),
	})
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, n.topics.Notify(msg.Recipient), coremqtt.KindNotify, payload)
}
