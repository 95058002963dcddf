package mqtt

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	coremon "github.com/mozocode/On-The-Way-Rebuild/core/monitoring"
	coremqtt "github.com/mozocode/On-The-Way-Rebuild/core/mqtt"
)

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) CapturePanic(any, map[string]string) {}
func (r *recordMonitor) Flush(time.Duration)                 {}

func TestPublishErrorCaptured(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), fmt.Errorf("net fail")}}
	withMock(t, mc)
	mon := &recordMonitor{}
	coremon.Init(mon)
	t.Cleanup(func() { coremon.Init(coremon.NopMonitor{}) })

	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1}, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	err = cli.Publish(context.Background(), "otw/heroes/h1/notify", coremqtt.KindNotify, []byte("{}"))
	if !errors.Is(err, coremqtt.ErrPublishFailed) {
		t.Fatalf("expected ErrPublishFailed, got %v", err)
	}
	if mon.err == nil {
		t.Fatalf("error not captured")
	}
	if mon.tags["topic"] != "otw/heroes/h1/notify" || mon.tags["module"] != "mqtt" {
		t.Fatalf("tags not set: %v", mon.tags)
	}
}

func TestPublishStopsOnContextCancel(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), fmt.Errorf("net fail")}}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", MaxRetries: 5, BackoffMS: 1000}, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := cli.Publish(ctx, "t", coremqtt.KindNotify, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(mc.published) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(mc.published))
	}
}
