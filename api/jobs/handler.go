// Package jobs exposes job creation, dispatch answers and lifecycle
// transitions over HTTP.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mozocode/On-The-Way-Rebuild/api/web"
	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
)

// Dispatcher starts the wave loop of an idle job. *dispatch.Engine
// implements it.
type Dispatcher interface {
	Start(ctx context.Context, jobID string) error
}

// Answerer is implemented by *dispatch.Arbiter.
type Answerer interface {
	Accept(ctx context.Context, jobID, heroID string) error
	Decline(ctx context.Context, jobID, heroID, reason string) error
}

// Transitioner is implemented by *dispatch.LifecycleWatcher.
type Transitioner interface {
	Transition(ctx context.Context, jobID string, to model.JobStatus, heroID string) (model.Job, error)
}

// Handler serves /api/jobs.
type Handler struct {
	store      store.Store
	dispatcher Dispatcher
	arbiter    Answerer
	lifecycle  Transitioner
	log        logger.Logger
}

func NewHandler(st store.Store, d Dispatcher, a Answerer, t Transitioner, log logger.Logger) *Handler {
	return &Handler{store: st, dispatcher: d, arbiter: a, lifecycle: t, log: logger.OrNop(log)}
}

// Register mounts the routes. heroAuth guards the hero-only endpoints.
func (h *Handler) Register(g *echo.Group, heroAuth echo.MiddlewareFunc) {
	g.POST("", h.Create)
	g.GET("/:id", h.Get)
	g.GET("/:id/wave", h.Wave)
	g.POST("/:id/dispatch", h.Dispatch)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/accept", h.Accept, heroAuth)
	g.POST("/:id/decline", h.Decline, heroAuth)
	g.POST("/:id/status", h.Status, heroAuth)
}

// PickupRequest is a coordinate in decimal degrees.
type PickupRequest struct {
	Lat *float64 `json:"lat" validate:"required,min=-90,max=90"`
	Lng *float64 `json:"lng" validate:"required,min=-180,max=180"`
}

// CreateRequest is the body of POST /api/jobs.
type CreateRequest struct {
	ID          string        `json:"id" validate:"omitempty,max=64"`
	CustomerID  string        `json:"customer_id" validate:"required"`
	ServiceType string        `json:"service_type" validate:"required,max=64"`
	Pickup      PickupRequest `json:"pickup" validate:"required"`
	// Dispatch starts the wave loop immediately. Defaults to true.
	Dispatch *bool `json:"dispatch"`
}

// DeclineRequest is the body of POST /api/jobs/:id/decline.
type DeclineRequest struct {
	Reason string `json:"reason" validate:"max=256"`
}

// StatusRequest is the body of POST /api/jobs/:id/status.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=en_route arrived in_progress completed cancelled"`
}

// Create stores a new idle job and starts its dispatch.
func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := web.Bind(c, &req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	job := model.Job{
		ID:             id,
		CustomerID:     req.CustomerID,
		Status:         model.JobIdle,
		ServiceType:    req.ServiceType,
		Pickup:         model.Point{Lat: *req.Pickup.Lat, Lng: *req.Pickup.Lng},
		NotifiedHeroes: model.NewHeroSet(),
		DeclinedHeroes: model.NewHeroSet(),
	}
	err := h.store.RunTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetJob(id); err == nil {
			return fmt.Errorf("%w: job %s exists", dispatch.ErrPreconditionFailed, id)
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %v", dispatch.ErrTransientIO, err)
		}
		job.CreatedAt = h.store.Now()
		job.Record(model.JobIdle, job.CreatedAt, "")
		return tx.PutJob(job)
	})
	if err != nil {
		return err
	}
	h.log.Infof("job %s created for customer %s", id, req.CustomerID)
	if req.Dispatch == nil || *req.Dispatch {
		if err := h.dispatcher.Start(ctx, id); err != nil {
			return err
		}
	}
	return h.respondJob(c, http.StatusCreated, id)
}

func (h *Handler) respondJob(c echo.Context, status int, id string) error {
	job, err := h.store.GetJob(c.Request().Context(), id)
	if err != nil {
		return lookupErr(err)
	}
	return web.JSON(c, status, job)
}

func lookupErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", dispatch.ErrTransientIO, err)
}

// Get returns a job.
func (h *Handler) Get(c echo.Context) error {
	return h.respondJob(c, http.StatusOK, c.Param("id"))
}

// Wave returns the dispatch ledger of a job.
func (h *Handler) Wave(c echo.Context) error {
	w, err := h.store.GetWave(c.Request().Context(), c.Param("id"))
	if err != nil {
		return lookupErr(err)
	}
	return web.JSON(c, http.StatusOK, w)
}

// Dispatch starts the wave loop of an idle job.
func (h *Handler) Dispatch(c echo.Context) error {
	id := c.Param("id")
	if err := h.dispatcher.Start(c.Request().Context(), id); err != nil {
		return err
	}
	return h.respondJob(c, http.StatusAccepted, id)
}

// Cancel cancels a job in any non-terminal state.
func (h *Handler) Cancel(c echo.Context) error {
	job, err := h.lifecycle.Transition(c.Request().Context(), c.Param("id"), model.JobCancelled, "")
	if err != nil {
		return err
	}
	return web.JSON(c, http.StatusOK, job)
}

// Accept binds the authenticated hero to the job.
func (h *Handler) Accept(c echo.Context) error {
	heroID, ok := web.HeroID(c)
	if !ok {
		return web.ErrUnauthorized
	}
	id := c.Param("id")
	if err := h.arbiter.Accept(c.Request().Context(), id, heroID); err != nil {
		return err
	}
	return h.respondJob(c, http.StatusOK, id)
}

// Decline records the authenticated hero's refusal.
func (h *Handler) Decline(c echo.Context) error {
	heroID, ok := web.HeroID(c)
	if !ok {
		return web.ErrUnauthorized
	}
	var req DeclineRequest
	if c.Request().ContentLength != 0 {
		if err := web.Bind(c, &req); err != nil {
			return err
		}
	}
	if err := h.arbiter.Decline(c.Request().Context(), c.Param("id"), heroID, req.Reason); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Status advances the job on behalf of its bound hero.
func (h *Handler) Status(c echo.Context) error {
	heroID, ok := web.HeroID(c)
	if !ok {
		return web.ErrUnauthorized
	}
	var req StatusRequest
	if err := web.Bind(c, &req); err != nil {
		return err
	}
	job, err := h.lifecycle.Transition(c.Request().Context(), c.Param("id"), model.JobStatus(req.Status), heroID)
	if err != nil {
		return err
	}
	return web.JSON(c, http.StatusOK, job)
}
