package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/mozocode/On-The-Way-Rebuild/core/factory"
	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
)

// Fanout tries its backends in order and stops at the first one that
// accepts the message.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, msg Message) error {
	if len(f) == 0 {
		return nil
	}
	var errs []error
	for _, n := range f {
		err := n.Notify(ctx, msg)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	if len(errs) == len(f) && allNoToken(errs) {
		return ErrNoToken
	}
	return errors.Join(errs...)
}

func allNoToken(errs []error) bool {
	for _, err := range errs {
		if !errors.Is(err, ErrNoToken) {
			return false
		}
	}
	return true
}

// LogNotifier writes messages to a logger instead of delivering them.
type LogNotifier struct {
	Log logger.Logger
}

func (l LogNotifier) Notify(_ context.Context, msg Message) error {
	logger.OrNop(l.Log).Infof("notify %s [%s]: %s - %s", msg.Recipient, msg.Data["type"], msg.Title, msg.Body)
	return nil
}

// Registry builds notifier backends from configuration. Backends that need
// live connections (MQTT) are registered by the application at startup.
type Registry = factory.Registry[Notifier]

// NewRegistry returns a registry with the "nop" and "log" backends.
func NewRegistry(log logger.Logger) *Registry {
	r := factory.NewRegistry[Notifier]()
	_ = r.Register("nop", func(map[string]any) (Notifier, error) { return NopNotifier{}, nil })
	_ = r.Register("log", func(map[string]any) (Notifier, error) { return LogNotifier{Log: log}, nil })
	return r
}

// Build creates the configured backends. No configuration yields a
// NopNotifier.
func Build(r *Registry, cfgs []factory.ModuleConfig) (Notifier, error) {
	switch len(cfgs) {
	case 0:
		return NopNotifier{}, nil
	case 1:
		return r.Create(cfgs[0])
	}
	out := make(Fanout, 0, len(cfgs))
	for i, c := range cfgs {
		n, err := r.Create(c)
		if err != nil {
			return nil, fmt.Errorf("notifier %d: %w", i, err)
		}
		out = append(out, n)
	}
	return out, nil
}
