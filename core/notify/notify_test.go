package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

type failing struct{ err error }

func (f failing) Notify(context.Context, Message) error { return f.err }

func TestDeliverSwallowsErrors(t *testing.T) {
	ctx := context.Background()
	assert.False(t, Deliver(ctx, failing{errors.New("boom")}, Message{Recipient: "h1"}, logger.NopLogger{}))
	assert.False(t, Deliver(ctx, failing{ErrNoToken}, Message{Recipient: "h1"}, nil))
	assert.False(t, Deliver(ctx, nil, Message{}, nil))
	assert.True(t, Deliver(ctx, NopNotifier{}, Message{}, nil))
}

func TestJobOfferPayload(t *testing.T) {
	msg := JobOffer(model.Job{ID: "j1", ServiceType: "jump_start"}, model.Hero{ID: "h1", PushToken: "tok"})
	assert.Equal(t, "New JUMP START Job", msg.Title)
	assert.Equal(t, "Tap to view details and accept", msg.Body)
	assert.Equal(t, map[string]string{"type": TypeNewJob, "job_id": "j1", "service_type": "jump_start"}, msg.Data)
	assert.Equal(t, "tok", msg.Token)
}

func TestStatusChangedMessages(t *testing.T) {
	c := model.Customer{ID: "c1"}
	msg, ok := StatusChanged(c, model.Job{ID: "j", Status: model.JobInProgress, ServiceType: "flat_tire"}, "Sam")
	assert.True(t, ok)
	assert.Equal(t, "Sam is now working on your flat tire.", msg.Body)
	assert.Equal(t, "job_in_progress", msg.Data["type"])

	_, ok = StatusChanged(c, model.Job{Status: model.JobSearching}, "")
	assert.False(t, ok)
}

func TestRecorderFailFor(t *testing.T) {
	r := NewRecorder()
	r.FailFor["bad"] = true
	assert.Error(t, r.Notify(context.Background(), Message{Recipient: "bad"}))
	assert.NoError(t, r.Notify(context.Background(), Message{Recipient: "ok", Data: map[string]string{"type": TypeNewJob}}))
	assert.Equal(t, []string{"ok"}, r.ByType(TypeNewJob))
}
