// Package api assembles the HTTP surface of the dispatch service.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	apidispatch "github.com/mozocode/On-The-Way-Rebuild/api/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/api/heroes"
	"github.com/mozocode/On-The-Way-Rebuild/api/jobs"
	"github.com/mozocode/On-The-Way-Rebuild/api/web"
	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch/logging"
	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
	"github.com/mozocode/On-The-Way-Rebuild/infra/metrics"
)

// Deps are the services behind the API.
type Deps struct {
	Store      store.Store
	Dispatcher jobs.Dispatcher
	Arbiter    jobs.Answerer
	Lifecycle  jobs.Transitioner
	Tokens     web.TokenVerifier
	// Locations is nil when location ingestion is disabled.
	Locations heroes.LocationProcessor
	// AuditLog is nil when the audit log is disabled.
	AuditLog   logging.LogStore
	AdminToken string
	// Gatherer backs GET /metrics; nil uses the default registry.
	Gatherer prometheus.Gatherer
	Log      logger.Logger
}

// New builds the echo instance with every route mounted.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = web.NewValidator()
	e.HTTPErrorHandler = web.ErrorHandler(d.Log)
	e.Use(middleware.Recover())
	e.Use(web.RequestLogger(d.Log))

	e.GET("/health", func(c echo.Context) error {
		return web.JSON(c, http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(d.Gatherer)))

	heroAuth := web.HeroAuth(d.Tokens)
	api := e.Group("/api")
	jobs.NewHandler(d.Store, d.Dispatcher, d.Arbiter, d.Lifecycle, d.Log).Register(api.Group("/jobs"), heroAuth)
	heroes.NewHandler(d.Store, d.Locations, d.Log).Register(api.Group("/heroes"), api.Group("/customers"), heroAuth)
	if d.AuditLog != nil {
		apidispatch.RegisterLogHandler(api.Group("/dispatch"), d.AuditLog, d.AdminToken)
	}
	return e
}
