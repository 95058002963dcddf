package notify

import (
	"context"
	"errors"
	"sync"
)

// Recorder is an in-memory Notifier used in tests and the dry-run CLI.
type Recorder struct {
	mu       sync.Mutex
	Messages []Message
	// FailFor makes Notify fail for the listed recipients.
	FailFor map[string]bool
	// OnNotify, when set, runs after a message is recorded.
	OnNotify func(Message)
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{FailFor: make(map[string]bool)}
}

// Notify records msg or fails if the recipient is configured to fail.
func (r *Recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	if r.FailFor[msg.Recipient] {
		r.mu.Unlock()
		return errors.New("delivery failed")
	}
	r.Messages = append(r.Messages, msg)
	hook := r.OnNotify
	r.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
	return nil
}

// Sent returns a copy of the recorded messages.
func (r *Recorder) Sent() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.Messages...)
}

// ByType returns the recipients of recorded messages of the given type, in
// send order.
func (r *Recorder) ByType(typ string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.Messages {
		if m.Data["type"] == typ {
			out = append(out, m.Recipient)
		}
	}
	return out
}
