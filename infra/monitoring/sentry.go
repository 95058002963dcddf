// Package monitoring provides the Sentry backend for core/monitoring.
package monitoring

import (
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/mozocode/On-The-Way-Rebuild/config"
	coremon "github.com/mozocode/On-The-Way-Rebuild/core/monitoring"
)

// NewSentryMonitor initializes Sentry using the provided configuration and
// returns a Monitor implementation. An empty DSN yields a NopMonitor.
func NewSentryMonitor(cfg config.SentryConfig) (coremon.Monitor, error) {
	if cfg.DSN == "" {
		return coremon.NopMonitor{}, nil
	}
	return newSentryMonitor(sentry.ClientOptions{
		Dsn:              cfg.DSN,
		Environment:      cfg.Environment,
		TracesSampleRate: cfg.TracesSampleRate,
		Release:          cfg.Release,
		ServerName:       "otw-dispatch",
	})
}

func newSentryMonitor(opts sentry.ClientOptions) (*sentryMonitor, error) {
	client, err := sentry.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &sentryMonitor{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

type sentryMonitor struct {
	hub *sentry.Hub
}

func (s *sentryMonitor) withTags(tags map[string]string, fn func(h *sentry.Hub)) {
	h := s.hub.Clone()
	if len(tags) > 0 {
		h.ConfigureScope(func(scope *sentry.Scope) {
			scope.SetTags(tags)
		})
	}
	fn(h)
}

func (s *sentryMonitor) CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	s.withTags(tags, func(h *sentry.Hub) { h.CaptureException(err) })
}

func (s *sentryMonitor) CapturePanic(v any, tags map[string]string) {
	s.withTags(tags, func(h *sentry.Hub) { h.Recover(v) })
	s.hub.Flush(2 * time.Second)
}

func (s *sentryMonitor) Flush(timeout time.Duration) { s.hub.Flush(timeout) }
