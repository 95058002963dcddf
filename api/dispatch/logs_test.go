package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/mozocode/On-The-Way-Rebuild/api/web"
	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch/logging"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

func TestLogHandler_AuthAndFilters(t *testing.T) {
	store, err := logging.Open(logging.Options{Backend: "jsonl", Path: filepath.Join(t.TempDir(), "dispatch.jsonl")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	now := time.Now().UTC()
	for _, rec := range []logging.LogRecord{
		{Timestamp: now, JobID: "j1", Result: model.ResultAccepted, AcceptedBy: "h1",
			Waves: []logging.WaveSummary{{Index: 0, Notified: []string{"h1", "h2"}}}},
		{Timestamp: now, JobID: "j2", Result: model.ResultNoHeroes,
			Waves: []logging.WaveSummary{{Index: 0, Notified: []string{"h3"}}}},
	} {
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	e := echo.New()
	e.HTTPErrorHandler = web.ErrorHandler(nil)
	RegisterLogHandler(e.Group("/api/dispatch"), store, "tok")

	get := func(url, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, url, nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rr := httptest.NewRecorder()
		e.ServeHTTP(rr, req)
		return rr
	}

	rr := get("/api/dispatch/logs?hero_id=h2", "tok")
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var out struct {
		Data []logging.LogRecord `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Data) != 1 || out.Data[0].JobID != "j1" {
		t.Fatalf("expected j1 only, got %+v", out.Data)
	}

	rr = get("/api/dispatch/logs?result=no_heroes", "tok")
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out.Data) != 1 || out.Data[0].JobID != "j2" {
		t.Fatalf("expected j2 only, got %+v", out.Data)
	}

	if rr := get("/api/dispatch/logs", ""); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
	if rr := get("/api/dispatch/logs", "wrong"); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}
	if rr := get("/api/dispatch/logs?start=yesterday", "tok"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
	if rr := get("/api/dispatch/logs?result=maybe", "tok"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}

	rr = get("/api/dispatch/logs?format=csv&job_id=j1", "tok")
	if rr.Code != http.StatusOK {
		t.Fatalf("csv status %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("content type %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "timestamp,job_id") || !strings.Contains(lines[1], "h1 h2") {
		t.Fatalf("unexpected csv:\n%s", rr.Body.String())
	}
	if rr := get("/api/dispatch/logs?format=xml", "tok"); rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rr.Code)
	}
}
