// Package heroes serves the hero and customer directory used by dispatch.
package heroes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mozocode/On-The-Way-Rebuild/api/web"
	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
	"github.com/mozocode/On-The-Way-Rebuild/infra/telemetry"
)

// LocationProcessor applies a location report. *telemetry.Manager
// implements it.
type LocationProcessor interface {
	Process(ctx context.Context, heroID string, payload []byte) error
}

// Handler serves /api/heroes and /api/customers.
type Handler struct {
	store     store.Store
	locations LocationProcessor
	log       logger.Logger
}

func NewHandler(st store.Store, locations LocationProcessor, log logger.Logger) *Handler {
	return &Handler{store: st, locations: locations, log: logger.OrNop(log)}
}

// Register mounts the hero routes on heroes and the customer routes on
// customers. heroAuth guards the self-service location endpoint.
func (h *Handler) Register(heroes, customers *echo.Group, heroAuth echo.MiddlewareFunc) {
	heroes.GET("", h.List)
	heroes.GET("/:id", h.Get)
	heroes.PUT("/:id", h.Put)
	heroes.POST("/me/location", h.Location, heroAuth)
	customers.GET("/:id", h.GetCustomer)
	customers.PUT("/:id", h.PutCustomer)
}

// HeroRequest is the mutable profile of a hero. Omitted fields keep their
// stored value.
type HeroRequest struct {
	DisplayName  *string  `json:"display_name" validate:"omitempty,max=128"`
	Online       *bool    `json:"online"`
	Verified     *bool    `json:"verified"`
	ServiceTypes []string `json:"service_types" validate:"omitempty,dive,required,max=64"`
	PushToken    *string  `json:"push_token" validate:"omitempty,max=512"`
}

// LocationRequest is a position report sent over HTTP.
type LocationRequest struct {
	Lat       *float64 `json:"lat" validate:"required,min=-90,max=90"`
	Lng       *float64 `json:"lng" validate:"required,min=-180,max=180"`
	Accuracy  *float64 `json:"accuracy,omitempty" validate:"omitempty,min=0"`
	Heading   *float64 `json:"heading,omitempty" validate:"omitempty,min=0,max=360"`
	Speed     *float64 `json:"speed,omitempty" validate:"omitempty,min=0"`
	Online    *bool    `json:"online,omitempty"`
	Timestamp int64    `json:"ts,omitempty" validate:"min=0"`
}

// CustomerRequest is the mutable profile of a customer.
type CustomerRequest struct {
	Name      string `json:"name" validate:"max=128"`
	PushToken string `json:"push_token" validate:"max=512"`
}

func storeErr(err error) error {
	if err == nil || errors.Is(err, store.ErrNotFound) {
		return err
	}
	return fmt.Errorf("%w: %v", dispatch.ErrTransientIO, err)
}

// List returns heroes, optionally filtered by ?online= and ?available=true.
func (h *Handler) List(c echo.Context) error {
	var q store.HeroQuery
	switch c.QueryParam("online") {
	case "":
	case "true":
		q.Online = store.Bool(true)
	case "false":
		q.Online = store.Bool(false)
	default:
		return fmt.Errorf("%w: online must be true or false", dispatch.ErrValidation)
	}
	if c.QueryParam("available") == "true" {
		q.Online, q.Verified, q.UnboundOnly = store.Bool(true), store.Bool(true), true
	}
	list, err := h.store.QueryHeroes(c.Request().Context(), q)
	if err != nil {
		return storeErr(err)
	}
	if list == nil {
		list = []model.Hero{}
	}
	return web.JSON(c, http.StatusOK, list)
}

// Get returns one hero.
func (h *Handler) Get(c echo.Context) error {
	hero, err := h.store.GetHero(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeErr(err)
	}
	return web.JSON(c, http.StatusOK, hero)
}

// Put creates or updates a hero profile. The binding and statistics are
// owned by dispatch and never overwritten here.
func (h *Handler) Put(c echo.Context) error {
	var req HeroRequest
	if err := web.Bind(c, &req); err != nil {
		return err
	}
	id := c.Param("id")
	status := http.StatusOK
	var out model.Hero
	err := h.store.RunTx(c.Request().Context(), func(tx store.Tx) error {
		status = http.StatusOK
		hero, err := tx.GetHero(id)
		if errors.Is(err, store.ErrNotFound) {
			hero = model.Hero{ID: id}
			status = http.StatusCreated
		} else if err != nil {
			return err
		}
		if req.DisplayName != nil {
			hero.DisplayName = *req.DisplayName
		}
		if req.Online != nil {
			hero.Online = *req.Online
		}
		if req.Verified != nil {
			hero.Verified = *req.Verified
		}
		if req.ServiceTypes != nil {
			hero.ServiceTypes = req.ServiceTypes
		}
		if req.PushToken != nil {
			hero.PushToken = *req.PushToken
		}
		hero.UpdatedAt = h.store.Now()
		out = hero
		return tx.PutHero(hero)
	})
	if err != nil {
		return storeErr(err)
	}
	h.log.Debugf("hero %s saved (online=%t verified=%t)", id, out.Online, out.Verified)
	return web.JSON(c, status, out)
}

// Location records the authenticated hero's position.
func (h *Handler) Location(c echo.Context) error {
	heroID, ok := web.HeroID(c)
	if !ok {
		return web.ErrUnauthorized
	}
	if h.locations == nil {
		return echo.NewHTTPError(http.StatusNotImplemented, "location ingestion is disabled")
	}
	var req LocationRequest
	if err := web.Bind(c, &req); err != nil {
		return err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	err = h.locations.Process(c.Request().Context(), heroID, payload)
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, telemetry.ErrStale):
		return fmt.Errorf("%w: %v", dispatch.ErrPreconditionFailed, err)
	default:
		return storeErr(err)
	}
}

// GetCustomer returns one customer.
func (h *Handler) GetCustomer(c echo.Context) error {
	cust, err := h.store.GetCustomer(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeErr(err)
	}
	return web.JSON(c, http.StatusOK, cust)
}

// PutCustomer replaces a customer profile.
func (h *Handler) PutCustomer(c echo.Context) error {
	var req CustomerRequest
	if err := web.Bind(c, &req); err != nil {
		return err
	}
	cust := model.Customer{ID: c.Param("id"), Name: req.Name, PushToken: req.PushToken}
	if err := h.store.PutCustomer(c.Request().Context(), cust); err != nil {
		return storeErr(err)
	}
	return web.JSON(c, http.StatusOK, cust)
}
