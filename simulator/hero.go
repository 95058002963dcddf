package simulator

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/geo"
	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	coremqtt "github.com/mozocode/On-The-Way-Rebuild/core/mqtt"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/notify"
	"github.com/mozocode/On-The-Way-Rebuild/infra/mqtt"
	"github.com/mozocode/On-The-Way-Rebuild/infra/telemetry"
)

const (
	answerWorkers = 5
	queueSize     = 50
)

// Stats counts what a hero did.
type Stats struct {
	Offers   atomic.Int64
	Accepted atomic.Int64
	Declined atomic.Int64
	Ignored  atomic.Int64
	Won      atomic.Int64
	Lost     atomic.Int64
}

// SimulatedHero listens on its notify topic and answers offers.
type SimulatedHero struct {
	ID       string
	Position model.Point
	Strategy Strategy
	// Interval between location reports; zero disables reporting.
	Interval time.Duration
	// DriftM is the maximum move between two reports.
	DriftM float64

	Client coremqtt.Client
	Topics coremqtt.Topics
	Log    logger.Logger
	Stats  *Stats

	offers chan string
	rng    *rand.Rand
}

// Run subscribes and answers offers until ctx is done.
func (h *SimulatedHero) Run(ctx context.Context) error {
	h.Log = logger.OrNop(h.Log)
	if h.Stats == nil {
		h.Stats = &Stats{}
	}
	h.offers = make(chan string, queueSize)
	h.rng = rand.New(rand.NewSource(int64(len(h.ID)) + time.Now().UnixNano()))
	if err := h.Client.Subscribe(h.Topics.Notify(h.ID), coremqtt.KindNotify, h.onNotify); err != nil {
		return err
	}
	if err := h.Client.Subscribe(h.Topics.Result(h.ID), coremqtt.KindResult, h.onResult); err != nil {
		return err
	}
	for i := 0; i < answerWorkers; i++ {
		go h.worker(ctx)
	}
	if h.Interval > 0 {
		h.report(ctx)
		t := time.NewTicker(h.Interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				h.move()
				h.report(ctx)
			}
		}
	}
	<-ctx.Done()
	return nil
}

func (h *SimulatedHero) onNotify(_ string, payload []byte) {
	var env mqtt.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		h.Log.Warnf("%s: decode notification: %v", h.ID, err)
		return
	}
	if env.Data["type"] != notify.TypeNewJob {
		return
	}
	h.Stats.Offers.Add(1)
	select {
	case h.offers <- env.Data["job_id"]:
	default:
		h.Log.Warnf("%s: offer queue full, dropping job %s", h.ID, env.Data["job_id"])
	}
}

func (h *SimulatedHero) onResult(_ string, payload []byte) {
	var res mqtt.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return
	}
	if res.Action != "accept" {
		return
	}
	if res.OK {
		h.Stats.Won.Add(1)
		h.Log.Infof("%s won job %s", h.ID, res.JobID)
	} else {
		h.Stats.Lost.Add(1)
	}
}

func (h *SimulatedHero) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-h.offers:
			h.answer(ctx, jobID)
		}
	}
}

func (h *SimulatedHero) answer(ctx context.Context, jobID string) {
	d, ok := h.Strategy.Decide(h.ID, jobID)
	if !ok {
		h.Stats.Ignored.Add(1)
		return
	}
	if d.Delay > 0 {
		select {
		case <-time.After(d.Delay):
		case <-ctx.Done():
			return
		}
	}
	payload, err := json.Marshal(mqtt.Response{JobID: jobID, Action: d.Action, Reason: d.Reason})
	if err != nil {
		return
	}
	if err := h.Client.Publish(ctx, h.Topics.Response(h.ID), coremqtt.KindResponse, payload); err != nil {
		h.Log.Warnf("%s: publish answer for %s: %v", h.ID, jobID, err)
		return
	}
	if d.Action == "accept" {
		h.Stats.Accepted.Add(1)
	} else {
		h.Stats.Declined.Add(1)
	}
}

func (h *SimulatedHero) move() {
	if h.DriftM <= 0 {
		return
	}
	north := (h.rng.Float64()*2 - 1) * h.DriftM
	east := (h.rng.Float64()*2 - 1) * h.DriftM
	h.Position = geo.Offset(h.Position, north, east)
}

func (h *SimulatedHero) report(ctx context.Context) {
	online := true
	ts := time.Now().UnixMilli()
	payload, err := json.Marshal(telemetry.Report{Lat: h.Position.Lat, Lng: h.Position.Lng, Online: &online, TS: &ts})
	if err != nil {
		return
	}
	if err := h.Client.Publish(ctx, h.Topics.Location(h.ID), coremqtt.KindLocation, payload); err != nil {
		h.Log.Warnf("%s: publish location: %v", h.ID, err)
	}
}
