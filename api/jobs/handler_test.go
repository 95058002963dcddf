package jobs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mozocode/On-The-Way-Rebuild/api/web"
	"github.com/mozocode/On-The-Way-Rebuild/auth"
	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/infra/store/memory"
)

// startRecorder moves jobs to searching the way the engine does, without
// running any waves.
type startRecorder struct {
	mu      sync.Mutex
	started []string
	st      *memory.Store
}

func (s *startRecorder) Start(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, err := s.st.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if j.Status != model.JobIdle {
		return dispatch.ErrAlreadyDispatching
	}
	j.Record(model.JobSearching, s.st.Now(), "")
	if err := s.st.PutJob(ctx, j); err != nil {
		return err
	}
	s.started = append(s.started, jobID)
	return s.st.PutWave(ctx, model.NewWaveRecord(jobID, 2, s.st.Now()))
}

type harness struct {
	e      *echo.Echo
	st     *memory.Store
	starts *startRecorder
	tokens *auth.HeroTokens
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st := memory.New(nil)
	rec := &startRecorder{st: st}
	e := echo.New()
	e.Validator = web.NewValidator()
	e.HTTPErrorHandler = web.ErrorHandler(nil)
	tokens := auth.NewHeroTokens("test-secret", "otw")
	h := NewHandler(st, rec, dispatch.NewArbiter(st, nil, nil, nil), dispatch.NewLifecycleWatcher(st, nil, nil, nil, nil), nil)
	h.Register(e.Group("/api/jobs"), web.HeroAuth(tokens))
	return &harness{e: e, st: st, starts: rec, tokens: tokens}
}

func (h *harness) hero(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, h.st.PutHero(context.Background(), model.Hero{ID: id, Online: true, Verified: true}))
}

func (h *harness) do(t *testing.T, method, path, body, heroID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if heroID != "" {
		tok, err := h.tokens.Issue(heroID, time.Minute)
		require.NoError(t, err)
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	return rec
}

type jobEnvelope struct {
	Data  model.Job     `json:"data"`
	Error *web.APIError `json:"error"`
}

func decodeJob(t *testing.T, rec *httptest.ResponseRecorder) jobEnvelope {
	t.Helper()
	var env jobEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

const createBody = `{"id":"j1","customer_id":"c1","service_type":"tow","pickup":{"lat":40.7,"lng":-74.0}}`

func TestCreateStartsDispatch(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/jobs", createBody, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env := decodeJob(t, rec)
	assert.Equal(t, "j1", env.Data.ID)
	assert.Equal(t, model.JobSearching, env.Data.Status)
	assert.Equal(t, []string{"j1"}, h.starts.started)
}

func TestCreateGeneratesID(t *testing.T) {
	h := newHarness(t)
	rec := h.do(t, http.MethodPost, "/api/jobs", `{"customer_id":"c1","service_type":"tow","pickup":{"lat":0,"lng":0},"dispatch":false}`, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	env := decodeJob(t, rec)
	assert.NotEmpty(t, env.Data.ID)
	assert.Equal(t, model.JobIdle, env.Data.Status)
	assert.Empty(t, h.starts.started)
}

func TestCreateRejects(t *testing.T) {
	cases := map[string]struct {
		body string
		code int
	}{
		"malformed":      {`{"customer_id":`, http.StatusBadRequest},
		"missing pickup": {`{"customer_id":"c1","service_type":"tow"}`, http.StatusBadRequest},
		"lat range":      {`{"customer_id":"c1","service_type":"tow","pickup":{"lat":91,"lng":0}}`, http.StatusBadRequest},
		"no customer":    {`{"service_type":"tow","pickup":{"lat":1,"lng":1}}`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			rec := h.do(t, http.MethodPost, "/api/jobs", tc.body, "")
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
		})
	}
}

func TestCreateDuplicateConflicts(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/jobs", createBody, "").Code)
	rec := h.do(t, http.MethodPost, "/api/jobs", createBody, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, h.starts.started, 1)
}

func TestGetAndWave(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/jobs", createBody, "").Code)

	assert.Equal(t, http.StatusOK, h.do(t, http.MethodGet, "/api/jobs/j1", "", "").Code)
	rec := h.do(t, http.MethodGet, "/api/jobs/j1/wave", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"job_id":"j1"`)

	rec = h.do(t, http.MethodGet, "/api/jobs/missing", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDispatchTwiceConflicts(t *testing.T) {
	h := newHarness(t)
	body := strings.Replace(createBody, `}}`, `},"dispatch":false}`, 1)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/jobs", body, "").Code)

	assert.Equal(t, http.StatusAccepted, h.do(t, http.MethodPost, "/api/jobs/j1/dispatch", "", "").Code)
	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, "/api/jobs/j1/dispatch", "", "").Code)
}

func TestAcceptRequiresToken(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/jobs", createBody, "").Code)
	h.hero(t, "h1")

	rec := h.do(t, http.MethodPost, "/api/jobs/j1/accept", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/j1/accept", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer garbage")
	rec = httptest.NewRecorder()
	h.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAcceptRace(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/jobs", createBody, "").Code)
	h.hero(t, "h1")
	h.hero(t, "h2")

	rec := h.do(t, http.MethodPost, "/api/jobs/j1/accept", "", "h1")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeJob(t, rec)
	assert.Equal(t, model.JobAssigned, env.Data.Status)
	assert.Equal(t, "h1", env.Data.HeroID)

	rec = h.do(t, http.MethodPost, "/api/jobs/j1/accept", "", "h2")
	assert.Equal(t, http.StatusConflict, rec.Code)
	env = decodeJob(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "already_assigned", env.Error.Code)
}

func TestAcceptUnknownHero(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/jobs", createBody, "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/api/jobs/j1/accept", "", "ghost").Code)
}

func TestDeclineUnknownHero(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/jobs", createBody, "").Code)
	assert.Equal(t, http.StatusNotFound, h.do(t, http.MethodPost, "/api/jobs/j1/decline", "", "ghost").Code)
}

func TestDeclineIsIdempotent(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/jobs", createBody, "").Code)
	h.hero(t, "h1")

	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodPost, "/api/jobs/j1/decline", `{"reason":"too far"}`, "h1").Code)
	assert.Equal(t, http.StatusNoContent, h.do(t, http.MethodPost, "/api/jobs/j1/decline", "", "h1").Code)

	hero, err := h.st.GetHero(context.Background(), "h1")
	require.NoError(t, err)
	assert.Equal(t, 1, hero.Stats.TotalOffered)
	job, err := h.st.GetJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.True(t, job.DeclinedHeroes.Has("h1"))
}

func TestStatusLifecycle(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/jobs", createBody, "").Code)
	h.hero(t, "h1")
	h.hero(t, "h2")
	require.Equal(t, http.StatusOK, h.do(t, http.MethodPost, "/api/jobs/j1/accept", "", "h1").Code)

	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, "/api/jobs/j1/status", `{"status":"en_route"}`, "h2").Code)
	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, "/api/jobs/j1/status", `{"status":"completed"}`, "h1").Code)
	assert.Equal(t, http.StatusBadRequest, h.do(t, http.MethodPost, "/api/jobs/j1/status", `{"status":"assigned"}`, "h1").Code)

	for _, s := range []string{"en_route", "arrived", "in_progress", "completed"} {
		rec := h.do(t, http.MethodPost, "/api/jobs/j1/status", `{"status":"`+s+`"}`, "h1")
		require.Equal(t, http.StatusOK, rec.Code, "%s: %s", s, rec.Body.String())
	}
	hero, err := h.st.GetHero(context.Background(), "h1")
	require.NoError(t, err)
	assert.Empty(t, hero.CurrentJobID)
	assert.Equal(t, 1, hero.Stats.TotalJobs)
}

func TestCancelSearchingJob(t *testing.T) {
	h := newHarness(t)
	require.Equal(t, http.StatusCreated, h.do(t, http.MethodPost, "/api/jobs", createBody, "").Code)

	rec := h.do(t, http.MethodPost, "/api/jobs/j1/cancel", "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.JobCancelled, decodeJob(t, rec).Data.Status)

	w, err := h.st.GetWave(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, model.ResultCancelled, w.Result)

	assert.Equal(t, http.StatusConflict, h.do(t, http.MethodPost, "/api/jobs/j1/cancel", "", "").Code)
}
