package mqtt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremqtt "github.com/mozocode/On-The-Way-Rebuild/core/mqtt"
	"github.com/mozocode/On-The-Way-Rebuild/core/notify"
)

func TestNotifierPublishesEnvelope(t *testing.T) {
	fc := &fakeClient{}
	n := NewNotifier(fc, coremqtt.Topics{Prefix: "fleet"})
	n.now = func() time.Time { return time.UnixMilli(1700000000000) }

	msg := notify.Message{
		Recipient: "h1",
		Title:     "New JUMP START Job",
		Body:      "Tap to view details and accept",
		Data:      map[string]string{"type": notify.TypeNewJob, "job_id": "j1"},
	}
	require.NoError(t, n.Notify(context.Background(), msg))

	got := fc.messages()
	require.Len(t, got, 1)
	assert.Equal(t, "fleet/h1/notify", got[0].topic)
	assert.Equal(t, coremqtt.KindNotify, got[0].kind)

	var env Envelope
	require.NoError(t, json.Unmarshal(got[0].payload, &env))
	assert.NotEmpty(t, env.ID)
	assert.Equal(t, msg.Title, env.Title)
	assert.Equal(t, "j1", env.Data["job_id"])
	assert.Equal(t, int64(1700000000000), env.SentAt)
}

func TestNotifierErrors(t *testing.T) {
	fc := &fakeClient{}
	n := NewNotifier(fc, coremqtt.Topics{})
	assert.Error(t, n.Notify(context.Background(), notify.Message{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Notify(ctx, notify.Message{Recipient: "h1"}), context.Canceled)
	assert.Empty(t, fc.messages())

	fc.err = coremqtt.ErrPublishFailed
	assert.ErrorIs(t, n.Notify(context.Background(), notify.Message{Recipient: "h1"}), coremqtt.ErrPublishFailed)
}
