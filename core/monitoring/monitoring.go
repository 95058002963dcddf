// Package monitoring is the process-wide error reporter. It is a no-op until
// Init installs a backend such as Sentry.
package monitoring

import (
	"fmt"
	"sync"
	"time"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	// CapturePanic reports a value recovered from a panic.
	CapturePanic(v any, tags map[string]string)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) CapturePanic(any, map[string]string)       {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the global monitor implementation.
func Init(m Monitor) {
	if m == nil {
		return
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records the error with optional tags such as job_id,
// hero_id and module.
func CaptureException(err error, tags map[string]string) {
	if err != nil {
		get().CaptureException(err, tags)
	}
}

// Recover reports a panic in the calling goroutine and swallows it, so one
// failing job loop does not take the process down. It must be deferred
// directly.
func Recover(tags map[string]string) {
	if r := recover(); r != nil {
		get().CapturePanic(r, tags)
		get().CaptureException(fmt.Errorf("panic: %v", r), tags)
	}
}

// Flush flushes buffered events.
func Flush(d time.Duration) { get().Flush(d) }
