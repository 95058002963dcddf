package scenarios

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/core/geo"
	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/notify"
	"github.com/mozocode/On-The-Way-Rebuild/infra/store/memory"
	"github.com/mozocode/On-The-Way-Rebuild/internal/eventbus"
)

const jobID = "scenario-job"

// Report is what a scenario run produced.
type Report struct {
	Outcome dispatch.Outcome
	Job     model.Job
	Wave    model.WaveRecord
	// AnswerErrors holds the arbiter errors of scripted answers by hero.
	AnswerErrors map[string]error
}

// Run executes sc against a fresh in-memory store and returns the result.
func Run(ctx context.Context, sc *Scenario, log logger.Logger) (Report, error) {
	st := memory.New(nil)
	defer st.Close()
	now := st.Now()
	at := func(north, east float64) model.Point { return geo.Offset(sc.Pickup, north, east) }

	byID := make(map[string]HeroDef, len(sc.Heroes))
	sent := notify.NewRecorder()
	for _, h := range sc.Heroes {
		if err := st.PutHero(ctx, h.ToModel(at, now)); err != nil {
			return Report{}, err
		}
		byID[h.ID] = h
		if h.Unreachable {
			sent.FailFor[h.ID] = true
		}
	}
	job := model.Job{
		ID:             jobID,
		CustomerID:     "scenario-customer",
		Status:         model.JobIdle,
		Pickup:         sc.Pickup,
		ServiceType:    sc.ServiceType,
		NotifiedHeroes: model.NewHeroSet(),
		DeclinedHeroes: model.NewHeroSet(),
		CreatedAt:      now,
	}
	if err := st.PutJob(ctx, job); err != nil {
		return Report{}, err
	}

	bus := eventbus.New()
	defer bus.Close()
	eng, err := dispatch.NewEngine(st, sent, sc.Config(), nil, bus, log)
	if err != nil {
		return Report{}, err
	}
	defer eng.Close()
	arb := dispatch.NewArbiter(st, sent, bus, log)
	arb.SetInterrupter(eng)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		answers = map[string]error{}
	)
	sent.OnNotify = func(m notify.Message) {
		if m.Data["type"] != notify.TypeNewJob {
			return
		}
		h, ok := byID[m.Recipient]
		if !ok || h.Answer == "" || h.Answer == AnswerIgnore {
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if h.DelayMS > 0 {
				time.Sleep(time.Duration(h.DelayMS) * time.Millisecond)
			}
			var err error
			if h.Answer == AnswerAccept {
				err = arb.Accept(ctx, m.Data["job_id"], h.ID)
			} else {
				err = arb.Decline(ctx, m.Data["job_id"], h.ID, "scripted")
			}
			mu.Lock()
			answers[h.ID] = err
			mu.Unlock()
		}()
	}

	out, err := eng.Dispatch(ctx, jobID)
	wg.Wait()
	if err != nil {
		return Report{}, err
	}
	rep := Report{Outcome: out, AnswerErrors: answers}
	if rep.Job, err = st.GetJob(ctx, jobID); err != nil {
		return rep, err
	}
	if rep.Wave, err = st.GetWave(ctx, jobID); err != nil {
		return rep, err
	}
	return rep, nil
}

// Check compares a report with the scenario expectations.
func Check(sc *Scenario, rep Report) error {
	exp := sc.Expected
	if rep.Outcome.Result != exp.Result {
		return fmt.Errorf("result: want %s, got %s", exp.Result, rep.Outcome.Result)
	}
	if rep.Outcome.AcceptedBy != exp.AcceptedBy {
		return fmt.Errorf("accepted_by: want %q, got %q", exp.AcceptedBy, rep.Outcome.AcceptedBy)
	}
	if exp.Notified != nil && !slices.Equal(exp.Notified, rep.Outcome.Notified) {
		return fmt.Errorf("notified: want %v, got %v", exp.Notified, rep.Outcome.Notified)
	}
	if exp.Waves > 0 && rep.Outcome.Waves != exp.Waves {
		return fmt.Errorf("waves: want %d, got %d", exp.Waves, rep.Outcome.Waves)
	}
	if err := rep.Job.CheckBinding(); err != nil {
		return err
	}
	if rep.Wave.Result != rep.Outcome.Result {
		return fmt.Errorf("ledger result %s disagrees with outcome %s", rep.Wave.Result, rep.Outcome.Result)
	}
	return nil
}
