package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/mozocode/On-The-Way-Rebuild/core/metrics"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
)

type captureServer struct {
	mu     sync.Mutex
	bodies []string
	srv    *httptest.Server
}

func newCaptureServer(t *testing.T) *captureServer {
	t.Helper()
	c := &captureServer{}
	c.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.bodies = append(c.bodies, string(data))
		c.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(c.srv.Close)
	return c
}

func (c *captureServer) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bodies) == 0 {
		return ""
	}
	return strings.TrimSpace(c.bodies[len(c.bodies)-1])
}

func TestInfluxSink_RecordDispatchResult(t *testing.T) {
	cs := newCaptureServer(t)
	sink := NewInfluxSink(InfluxConfig{URL: cs.srv.URL, Token: "token", Org: "org", Bucket: "bucket"}, nil)
	defer sink.Close()
	now := time.Now()
	rec := coremetrics.DispatchResult{
		JobID:       "j1",
		ServiceType: "jump_start",
		Result:      model.ResultAccepted,
		Waves:       2,
		Notified:    3,
		AcceptedBy:  "h1",
		Duration:    1500 * time.Millisecond,
		Time:        now,
	}

	if err := sink.RecordDispatchResult([]coremetrics.DispatchResult{rec}); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("dispatch_result").
		AddTag("job_id", "j1").
		AddTag("service_type", "jump_start").
		AddTag("result", "accepted").
		AddTag("component", "dispatch_engine").
		AddField("waves", 2).
		AddField("notified", 3).
		AddField("duration_s", 1.5).
		SetTime(now)
	p.AddTag("accepted_by", "h1")
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if cs.last() != expected {
		t.Errorf("unexpected body:\n got %s\nwant %s", cs.last(), expected)
	}
}

func TestInfluxSink_Recorders(t *testing.T) {
	cs := newCaptureServer(t)
	sink := NewInfluxSink(InfluxConfig{URL: cs.srv.URL + "/api/v2/write", Token: "t", Org: "o", Bucket: "b"}, nil)
	defer sink.Close()
	now := time.Now()

	if err := sink.RecordWave(coremetrics.WaveEvent{JobID: "j1", Wave: 1, MaxRadiusM: 3218.68, Candidates: 4, Time: now}); err != nil {
		t.Fatalf("wave: %v", err)
	}
	if !strings.HasPrefix(cs.last(), "dispatch_wave,") || !strings.Contains(cs.last(), "candidates=4i") {
		t.Fatalf("unexpected wave point: %s", cs.last())
	}
	if err := sink.RecordOffer(coremetrics.OfferEvent{JobID: "j1", HeroID: "h1", Wave: 1, Score: 0.81234, DistanceM: 10, Delivered: true, Time: now}); err != nil {
		t.Fatalf("offer: %v", err)
	}
	if !strings.Contains(cs.last(), "score=0.812") || !strings.Contains(cs.last(), "hero_id=h1") {
		t.Fatalf("unexpected offer point: %s", cs.last())
	}
	if err := sink.RecordAnswer(coremetrics.AnswerEvent{JobID: "j1", HeroID: "h1", Accepted: true, Outcome: "ok", Time: now}); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if !strings.HasPrefix(cs.last(), "hero_answer,") {
		t.Fatalf("unexpected answer point: %s", cs.last())
	}
	if err := sink.RecordFleetSize(7); err != nil {
		t.Fatalf("fleet: %v", err)
	}
	if !strings.Contains(cs.last(), "heroes=7i") {
		t.Fatalf("unexpected fleet point: %s", cs.last())
	}
	if err := sink.RecordDispatchResult(nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(InfluxConfig{URL: srv.URL + "/api/v2/write", Token: "tok", Org: "org", Bucket: "bucket"}, nil)
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
