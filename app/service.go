// Package app wires the configured components into a running service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mozocode/On-The-Way-Rebuild/api"
	"github.com/mozocode/On-The-Way-Rebuild/auth"
	"github.com/mozocode/On-The-Way-Rebuild/config"
	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch/logging"
	"github.com/mozocode/On-The-Way-Rebuild/core/factory"
	coremetrics "github.com/mozocode/On-The-Way-Rebuild/core/metrics"
	coremon "github.com/mozocode/On-The-Way-Rebuild/core/monitoring"
	"github.com/mozocode/On-The-Way-Rebuild/core/notify"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
	"github.com/mozocode/On-The-Way-Rebuild/infra/kpi"
	"github.com/mozocode/On-The-Way-Rebuild/infra/logger"
	"github.com/mozocode/On-The-Way-Rebuild/infra/metrics"
	"github.com/mozocode/On-The-Way-Rebuild/infra/monitoring"
	"github.com/mozocode/On-The-Way-Rebuild/infra/mqtt"
	"github.com/mozocode/On-The-Way-Rebuild/infra/push"
	"github.com/mozocode/On-The-Way-Rebuild/infra/store/memory"
	"github.com/mozocode/On-The-Way-Rebuild/infra/store/sqlite"
	"github.com/mozocode/On-The-Way-Rebuild/infra/telemetry"
	"github.com/mozocode/On-The-Way-Rebuild/internal/eventbus"
	"github.com/mozocode/On-The-Way-Rebuild/jobs/cleanup"
)

// Service holds the dispatch core and the transports around it.
type Service struct {
	Store     store.Store
	Engine    *dispatch.Engine
	Arbiter   *dispatch.Arbiter
	Lifecycle *dispatch.LifecycleWatcher

	cfg       *config.Config
	bus       *eventbus.Bus
	sink      coremetrics.MetricsSink
	audit     logging.LogStore
	mqtt      *mqtt.PahoClient
	responses *mqtt.ResponseListener
	telemetry *telemetry.Manager
	cleanup   *cleanup.Runner
	kpi       *kpi.SQLiteStore
	http      *echo.Echo
	log       logger.Logger

	closeOnce sync.Once
}

// ConfigureLogging applies the log section to every logger created
// afterwards.
func ConfigureLogging(cfg config.LogConfig) {
	logger.Configure(logger.Options{Level: cfg.Level, Format: cfg.Format})
}

// OpenStore opens the configured store backend.
func OpenStore(cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(nil), nil
	case "sqlite":
		return sqlite.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("store: unknown backend %q", cfg.Backend)
	}
}

// New builds the service. Nothing listens or subscribes until Run.
func New(cfg *config.Config) (s *Service, err error) {
	ConfigureLogging(cfg.Log)
	log := logger.New("service")

	mon, err := monitoring.NewSentryMonitor(cfg.Sentry)
	if err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	coremon.Init(mon)

	st, err := OpenStore(cfg.Store)
	if err != nil {
		return nil, err
	}
	s = &Service{Store: st, cfg: cfg, bus: eventbus.New(), log: log}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if cfg.NeedsMQTT() {
		if s.mqtt, err = mqtt.NewPahoClient(cfg.MQTT, logger.New("mqtt")); err != nil {
			return nil, fmt.Errorf("mqtt client: %w", err)
		}
	}
	notifier, err := s.buildNotifier()
	if err != nil {
		return nil, err
	}
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	if s.Engine, err = dispatch.NewEngine(st, notifier, cfg.Dispatch, s.sink, s.bus, logger.New("dispatch")); err != nil {
		return nil, err
	}
	if !cfg.Logging.Disabled {
		if s.audit, err = logging.Open(cfg.Logging.Options()); err != nil {
			return nil, fmt.Errorf("audit log: %w", err)
		}
		// closed by Engine.Close
		s.Engine.SetLogStore(s.audit)
	}
	s.Arbiter = dispatch.NewArbiter(st, notifier, s.bus, logger.New("arbiter"))
	s.Arbiter.SetInterrupter(s.Engine)
	var payout dispatch.PayoutRecorder
	if cfg.KPI.Path != "" {
		if s.kpi, err = kpi.NewSQLiteStore(cfg.KPI.Path); err != nil {
			return nil, fmt.Errorf("kpi ledger: %w", err)
		}
		payout = s.kpi
	}
	s.Lifecycle = dispatch.NewLifecycleWatcher(st, notifier, payout, s.bus, logger.New("lifecycle"))
	s.Lifecycle.SetInterrupter(s.Engine)

	if s.mqtt != nil {
		topics := cfg.MQTT.Topics()
		if cfg.MQTT.ListenResponses {
			s.responses = mqtt.NewResponseListener(s.mqtt, topics, s.Arbiter, logger.New("responses"))
		}
		if cfg.Telemetry.Enabled {
			s.telemetry = telemetry.NewManager(s.mqtt, topics, st, logger.New("telemetry"))
		}
	}
	if !cfg.Cleanup.Disabled {
		fleet, _ := s.sink.(coremetrics.FleetSizeRecorder)
		s.cleanup = cleanup.NewRunner(st, fleet, cleanup.Options{
			LocationInterval: cfg.Cleanup.LocationInterval(),
			LocationTTL:      cfg.Dispatch.LocationTTL(),
			WaveInterval:     cfg.Cleanup.WaveInterval(),
			WaveRetention:    cfg.Cleanup.WaveRetention(),
			WaveBatch:        cfg.Cleanup.WaveBatch,
		}, logger.New("cleanup"))
	}
	s.http = s.router()
	return s, nil
}

// buildNotifier registers the transports that need live connections next to
// the built-in backends and builds the configured chain.
func (s *Service) buildNotifier() (notify.Notifier, error) {
	reg := notify.NewRegistry(logger.New("notify"))
	if s.mqtt != nil {
		client, topics := s.mqtt, s.cfg.MQTT.Topics()
		_ = reg.Register("mqtt", func(map[string]any) (notify.Notifier, error) {
			return mqtt.NewNotifier(client, topics), nil
		})
	}
	base := s.cfg.Push
	_ = reg.Register("push", func(conf map[string]any) (notify.Notifier, error) {
		pc := base
		if err := factory.Decode(conf, &pc); err != nil {
			return nil, err
		}
		pc.SetDefaults()
		if err := pc.Validate(); err != nil {
			return nil, err
		}
		return push.New(pc)
	})
	n, err := notify.Build(reg, s.cfg.Notify.Backends)
	if err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	return n, nil
}

func (s *Service) router() *echo.Echo {
	deps := api.Deps{
		Store:      s.Store,
		Dispatcher: s.Engine,
		Arbiter:    s.Arbiter,
		Lifecycle:  s.Lifecycle,
		Tokens:     auth.NewHeroTokens(s.cfg.HTTP.JWTSecret, s.cfg.HTTP.JWTIssuer),
		AuditLog:   s.audit,
		AdminToken: s.cfg.HTTP.AdminToken,
		Log:        logger.New("http"),
	}
	if s.telemetry != nil {
		deps.Locations = s.telemetry
	}
	return api.New(deps)
}

// Handler exposes the HTTP API, mainly for tests.
func (s *Service) Handler() http.Handler { return s.http }

// ApplyConfig swaps the runtime-reloadable parts of cfg into the running
// service. Only the dispatch section is reloadable.
func (s *Service) ApplyConfig(cfg *config.Config) {
	if err := s.Engine.SetConfig(cfg.Dispatch); err != nil {
		s.log.Warnf("dispatch config not applied: %v", err)
		return
	}
	s.log.Infof("dispatch config applied: %d waves", len(cfg.Dispatch.Waves))
}

// Run starts the listeners and blocks until ctx is done or the HTTP server
// fails.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	collected := metrics.StartEventCollector(ctx, s.bus, s.sink, logger.New("collector"))
	metrics.StartPromServer(ctx, s.cfg.Metrics.PromAddr, s.log)
	if s.responses != nil {
		if err := s.responses.Start(); err != nil {
			return fmt.Errorf("response listener: %w", err)
		}
	}
	if s.telemetry != nil {
		if err := s.telemetry.Start(); err != nil {
			return fmt.Errorf("telemetry: %w", err)
		}
	}
	var cleaned <-chan struct{}
	if s.cleanup != nil {
		cleaned = s.cleanup.Start(ctx)
	}
	if s.Engine != nil {
		if n, err := s.Engine.Resume(ctx); err != nil {
			s.log.Errorf("resume searching jobs: %v", err)
		} else if n > 0 {
			s.log.Infof("resumed %d searching jobs", n)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("http api listening on %s", s.cfg.HTTP.Addr)
		if err := s.http.Start(s.cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), s.cfg.HTTP.ShutdownTimeout())
	defer stop()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		s.log.Warnf("http shutdown: %v", err)
	}
	<-collected
	if cleaned != nil {
		<-cleaned
	}
	return runErr
}

// Close stops the dispatch loops and releases every connection. Jobs still
// searching are resumed by the next Run.
func (s *Service) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		if s.Engine != nil {
			errs = append(errs, s.Engine.Close())
		}
		if s.mqtt != nil {
			s.mqtt.Disconnect()
		}
		if c, ok := s.sink.(interface{ Close() }); ok {
			c.Close()
		}
		if s.bus != nil {
			s.bus.Close()
		}
		if s.kpi != nil {
			errs = append(errs, s.kpi.Close())
		}
		if s.Store != nil {
			errs = append(errs, s.Store.Close())
		}
		coremon.Flush(2 * time.Second)
	})
	return errors.Join(errs...)
}
