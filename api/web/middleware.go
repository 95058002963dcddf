package web

import (
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
)

const contextKeyHeroID = "hero_id"

// TokenVerifier resolves a bearer token to a hero id. *auth.HeroTokens
// implements it.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// RequestLogger logs each HTTP request.
func RequestLogger(log logger.Logger) echo.MiddlewareFunc {
	log = logger.OrNop(log)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				status, _ = MapError(err)
			}
			log.Debugw("http request", map[string]any{
				"method":      c.Request().Method,
				"path":        c.Path(),
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
			return err
		}
	}
}

// HeroAuth validates the bearer token and stores the hero id in the echo
// context.
func HeroAuth(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				return ErrUnauthorized
			}
			heroID, err := v.Verify(token)
			if err != nil {
				return ErrUnauthorized
			}
			c.Set(contextKeyHeroID, heroID)
			return next(c)
		}
	}
}

// HeroID returns the authenticated hero id.
func HeroID(c echo.Context) (string, bool) {
	id, ok := c.Get(contextKeyHeroID).(string)
	return id, ok && id != ""
}
