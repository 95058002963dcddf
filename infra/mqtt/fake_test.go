package mqtt

import (
	"context"
	"sync"

	coremqtt "github.com/mozocode/On-The-Way-Rebuild/core/mqtt"
)

type published struct {
	topic   string
	kind    string
	payload []byte
}

// fakeClient implements core/mqtt.Client in memory.
type fakeClient struct {
	mu        sync.Mutex
	published []published
	handlers  map[string]coremqtt.Handler
	err       error
}

func (f *fakeClient) Publish(_ context.Context, topic, kind string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{topic: topic, kind: kind, payload: payload})
	return nil
}

func (f *fakeClient) Subscribe(topic, _ string, h coremqtt.Handler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string]coremqtt.Handler)
	}
	f.handlers[topic] = h
	return nil
}

func (f *fakeClient) Disconnect() {}

func (f *fakeClient) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.published...)
}
