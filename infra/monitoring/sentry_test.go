package monitoring

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozocode/On-The-Way-Rebuild/config"
	coremon "github.com/mozocode/On-The-Way-Rebuild/core/monitoring"
)

type captured struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (c *captured) beforeSend(ev *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func newTestMonitor(t *testing.T) (*sentryMonitor, *captured) {
	t.Helper()
	c := &captured{}
	m, err := newSentryMonitor(sentry.ClientOptions{
		Dsn:        "https://public@example.com/1",
		BeforeSend: c.beforeSend,
	})
	require.NoError(t, err)
	return m, c
}

func TestEmptyDSNIsNop(t *testing.T) {
	m, err := NewSentryMonitor(config.SentryConfig{})
	require.NoError(t, err)
	assert.IsType(t, coremon.NopMonitor{}, m)
}

func TestCaptureExceptionTags(t *testing.T) {
	m, c := newTestMonitor(t)
	m.CaptureException(errors.New("store unavailable"), map[string]string{"module": "dispatch", "job_id": "j1"})
	m.CaptureException(nil, nil)
	m.Flush(time.Second)

	require.Len(t, c.events, 1)
	assert.Equal(t, "dispatch", c.events[0].Tags["module"])
	assert.Equal(t, "j1", c.events[0].Tags["job_id"])
}

func TestTagsDoNotLeakBetweenEvents(t *testing.T) {
	m, c := newTestMonitor(t)
	m.CaptureException(errors.New("a"), map[string]string{"job_id": "j1"})
	m.CaptureException(errors.New("b"), nil)
	require.Len(t, c.events, 2)
	_, ok := c.events[1].Tags["job_id"]
	assert.False(t, ok)
}

func TestCapturePanic(t *testing.T) {
	m, c := newTestMonitor(t)
	m.CapturePanic("nil map write", map[string]string{"module": "dispatch"})
	require.Len(t, c.events, 1)
	assert.Equal(t, "dispatch", c.events[0].Tags["module"])
}
