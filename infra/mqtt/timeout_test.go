package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	coremqtt "github.com/mozocode/On-The-Way-Rebuild/core/mqtt"
)

func TestConnectTimesOutWhenBrokerSilent(t *testing.T) {
	mc := &mockClient{hangConnect: true}
	withMock(t, mc)
	done := make(chan error, 1)
	go func() {
		_, err := NewPahoClient(Config{Broker: "tcp://127.0.0.1:1", ConnectTimeoutMS: 20}, nil)
		done <- err
	}()
	select {
	case err := <-done:
		if !errors.Is(err, ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("connect did not return while the broker was silent")
	}
}

func TestNoConnectRetryLoop(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ConnectTimeoutMS: 750})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.ConnectRetry {
		t.Fatalf("connect retry must stay off so startup fails fast")
	}
	if !opts.AutoReconnect {
		t.Fatalf("auto reconnect disabled")
	}
	if opts.ConnectTimeout != 750*time.Millisecond {
		t.Fatalf("connect timeout not applied: %v", opts.ConnectTimeout)
	}
}

func TestPublishBoundedDuringBrokerOutage(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", MaxRetries: 3, BackoffMS: 1, PublishTimeoutMS: 30}, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	// broker goes away after the connection was established
	mc.hangPublish = true

	done := make(chan error, 1)
	start := time.Now()
	go func() {
		done <- cli.Publish(context.Background(), "otw/heroes/h1/notify", coremqtt.KindNotify, []byte("{}"))
	}()
	select {
	case err := <-done:
		if !errors.Is(err, coremqtt.ErrPublishFailed) || !errors.Is(err, ErrTimeout) {
			t.Fatalf("expected publish timeout, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("publish still blocked after %v", time.Since(start))
	}
	if len(mc.published) != 1 {
		t.Fatalf("timed out publish must not be retried, got %d attempts", len(mc.published))
	}
}

func TestPublishReturnsOnCallerCancelWhileWaiting(t *testing.T) {
	mc := &mockClient{hangPublish: true}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", PublishTimeoutMS: 60000}, nil)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- cli.Publish(ctx, "t", coremqtt.KindNotify, nil) }()
	select {
	case err := <-done:
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected caller deadline, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("publish ignored the caller context")
	}
}

func TestTimeoutDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()
	if cfg.ConnectTimeoutMS != 5000 || cfg.PublishTimeoutMS != 2000 {
		t.Fatalf("timeout defaults not applied: %+v", cfg)
	}
}
