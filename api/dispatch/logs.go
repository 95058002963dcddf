// Package dispatch exposes the dispatch audit log over HTTP.
package dispatch

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mozocode/On-The-Way-Rebuild/api/web"
	coredispatch "github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch/logging"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/pkg/export"
)

// RegisterLogHandler mounts GET <g>/logs. Requests must carry
// "Authorization: Bearer <token>" when token is non-empty. ?format=csv
// returns a CSV attachment instead of the JSON envelope.
func RegisterLogHandler(g *echo.Group, store logging.LogStore, token string) {
	g.GET("/logs", func(c echo.Context) error {
		if token != "" {
			got, _ := strings.CutPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				return web.ErrUnauthorized
			}
		}
		q, err := parseQuery(c)
		if err != nil {
			return err
		}
		records, err := store.Query(c.Request().Context(), q)
		if err != nil {
			return fmt.Errorf("%w: %v", coredispatch.ErrTransientIO, err)
		}
		switch c.QueryParam("format") {
		case "csv":
			c.Response().Header().Set(echo.HeaderContentType, "text/csv")
			c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="dispatch-log.csv"`)
			c.Response().WriteHeader(http.StatusOK)
			return export.WriteCSV(c.Response(), records)
		case "", "json":
		default:
			return fmt.Errorf("%w: unknown format %q", coredispatch.ErrValidation, c.QueryParam("format"))
		}
		if records == nil {
			records = []logging.LogRecord{}
		}
		return web.JSON(c, http.StatusOK, records)
	})
}

func parseQuery(c echo.Context) (logging.LogQuery, error) {
	q := logging.LogQuery{
		JobID:  c.QueryParam("job_id"),
		HeroID: c.QueryParam("hero_id"),
	}
	for name, dst := range map[string]*time.Time{"start": &q.Start, "end": &q.End} {
		s := c.QueryParam(name)
		if s == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return q, fmt.Errorf("%w: %s must be RFC3339", coredispatch.ErrValidation, name)
		}
		*dst = t
	}
	switch r := model.WaveResult(c.QueryParam("result")); r {
	case "", model.ResultAccepted, model.ResultNoHeroes, model.ResultCancelled:
		q.Result = r
	default:
		return q, fmt.Errorf("%w: unknown result %q", coredispatch.ErrValidation, r)
	}
	return q, nil
}
