package heroes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozocode/On-The-Way-Rebuild/api/web"
	"github.com/mozocode/On-The-Way-Rebuild/auth"
	coremqtt "github.com/mozocode/On-The-Way-Rebuild/core/mqtt"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/infra/store/memory"
	"github.com/mozocode/On-The-Way-Rebuild/infra/telemetry"
)

type harness struct {
	e      *echo.Echo
	st     *memory.Store
	tokens *auth.HeroTokens
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := memory.New(nil)
	e := echo.New()
	e.Validator = web.NewValidator()
	e.HTTPErrorHandler = web.ErrorHandler(nil)
	tokens := auth.NewHeroTokens("secret", "otw")
	mgr := telemetry.NewManager(nil, coremqtt.Topics{Prefix: coremqtt.DefaultPrefix}, st, nil)
	NewHandler(st, mgr, nil).Register(e.Group("/api/heroes"), e.Group("/api/customers"), web.HeroAuth(tokens))
	return &harness{e: e, st: st, tokens: tokens}
}

func (h *harness) do(t *testing.T, method, path, body, heroID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if heroID != "" {
		tok, err := h.tokens.Issue(heroID, time.Minute)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

func TestPutCreatesThenUpdates(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPut, "/api/heroes/h1", `{"display_name":"Sam","online":true,"verified":true,"service_types":["tow"]}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	ctx := context.Background()
	hero, err := h.st.GetHero(ctx, "h1")
	require.NoError(t, err)
	hero.CurrentJobID = "j9"
	hero.Stats.TotalJobs = 4
	require.NoError(t, h.st.PutHero(ctx, hero))

	rec = h.do(t, http.MethodPut, "/api/heroes/h1", `{"online":false}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	hero, err = h.st.GetHero(ctx, "h1")
	require.NoError(t, err)
	assert.False(t, hero.Online)
	assert.True(t, hero.Verified)
	assert.Equal(t, "Sam", hero.DisplayName)
	assert.Equal(t, []string{"tow"}, hero.ServiceTypes)
	assert.Equal(t, "j9", hero.CurrentJobID)
	assert.Equal(t, 4, hero.Stats.TotalJobs)
}

func TestListFilters(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.st.PutHero(ctx, model.Hero{ID: "a", Online: true, Verified: true}))
	require.NoError(t, h.st.PutHero(ctx, model.Hero{ID: "b", Online: true, Verified: true, CurrentJobID: "j1"}))
	require.NoError(t, h.st.PutHero(ctx, model.Hero{ID: "c"}))

	rec := h.do(t, http.MethodGet, "/api/heroes?available=true", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"a"`)
	assert.NotContains(t, rec.Body.String(), `"id":"b"`)
	assert.NotContains(t, rec.Body.String(), `"id":"c"`)

	rec = h.do(t, http.MethodGet, "/api/heroes?online=false", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"c"`)

	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodGet, "/api/heroes?online=maybe", "", "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/heroes/zzz", "", "").Code)
}

func TestLocation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.st.PutHero(ctx, model.Hero{ID: "h1", Verified: true}))

	assert.Equal(t, http.StatusUnauthorized, h.do(t, http.MethodPost, "/api/heroes/me/location", `{"lat":1,"lng":2}`, "").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/heroes/me/location", `{"lat":100,"lng":2}`, "h1").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/api/heroes/me/location", `{"lat":1,"lng":2}`, "ghost").Code)

	rec := h.do(t, http.MethodPost, "/api/heroes/me/location", `{"lat":40.1,"lng":-73.9,"online":true}`, "h1")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	hero, err := h.st.GetHero(ctx, "h1")
	require.NoError(t, err)
	require.NotNil(t, hero.Location)
	assert.InDelta(t, 40.1, hero.Location.Lat, 1e-9)
	assert.True(t, hero.Online)

	rec = h.do(t, http.MethodPost, "/api/heroes/me/location", `{"lat":40.2,"lng":-73.9,"ts":1000}`, "h1")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCustomers(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPut, "/api/customers/c1", `{"name":"Ana","push_token":"tok"}`, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = h.do(t, http.MethodGet, "/api/customers/c1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"push_token":"tok"`)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodGet, "/api/customers/c2", "", "").Code)
}
