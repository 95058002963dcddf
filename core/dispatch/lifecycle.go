package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/mozocode/On-The-Way-Rebuild/core/events"
	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/monitoring"
	"github.com/mozocode/On-The-Way-Rebuild/core/notify"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
	"github.com/mozocode/On-The-Way-Rebuild/internal/eventbus"
)

// PayoutRecorder credits the hero of a completed job.
type PayoutRecorder interface {
	RecordPayout(ctx context.Context, job model.Job) error
}

// NopPayout ignores payouts.
type NopPayout struct{}

func (NopPayout) RecordPayout(context.Context, model.Job) error { return nil }

// transitions lists the lifecycle edges reachable through Transition. The
// searching and assigned states are entered only by the engine and the
// arbiter.
var transitions = map[model.JobStatus][]model.JobStatus{
	model.JobIdle:       {model.JobCancelled},
	model.JobSearching:  {model.JobCancelled},
	model.JobAssigned:   {model.JobEnRoute, model.JobCancelled},
	model.JobEnRoute:    {model.JobArrived, model.JobCancelled},
	model.JobArrived:    {model.JobInProgress, model.JobCancelled},
	model.JobInProgress: {model.JobCompleted, model.JobCancelled},
}

// CanTransition reports whether from -> to is a lifecycle edge.
func CanTransition(from, to model.JobStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// LifecycleWatcher applies post-assignment status changes and releases the
// bound hero when a job completes or is cancelled.
type LifecycleWatcher struct {
	store       store.Store
	notifier    notify.Notifier
	payout      PayoutRecorder
	bus         eventbus.EventBus
	log         logger.Logger
	interrupter Interrupter
}

// NewLifecycleWatcher creates a watcher. A nil payout recorder is a no-op.
func NewLifecycleWatcher(st store.Store, n notify.Notifier, payout PayoutRecorder, bus eventbus.EventBus, log logger.Logger) *LifecycleWatcher {
	if n == nil {
		n = notify.NopNotifier{}
	}
	if payout == nil {
		payout = NopPayout{}
	}
	return &LifecycleWatcher{store: st, notifier: n, payout: payout, bus: bus, log: logger.OrNop(log)}
}

// SetInterrupter registers the engine so that cancelling a searching job
// stops its loop at once.
func (w *LifecycleWatcher) SetInterrupter(i Interrupter) { w.interrupter = i }

// Transition moves jobID to status to. When heroID is non-empty it must be
// the hero bound to the job.
func (w *LifecycleWatcher) Transition(ctx context.Context, jobID string, to model.JobStatus, heroID string) (model.Job, error) {
	if jobID == "" {
		return model.Job{}, validationf("job id is required")
	}
	if !to.Valid() {
		return model.Job{}, validationf("unknown status %q", to)
	}
	var (
		job  model.Job
		from model.JobStatus
		hero *model.Hero
	)
	err := w.store.RunTx(ctx, func(tx store.Tx) error {
		hero = nil
		j, err := tx.GetJob(jobID)
		if err != nil {
			return fmt.Errorf("job %s: %w", jobID, err)
		}
		from = j.Status
		if heroID != "" && j.HeroID != heroID {
			return fmt.Errorf("%w: hero %s is not bound to job %s", ErrPreconditionFailed, heroID, jobID)
		}
		if !CanTransition(j.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, j.Status, to)
		}
		now := w.store.Now()
		j.Record(to, now, j.HeroID)
		switch to {
		case model.JobEnRoute:
			j.EnRouteAt = &now
		case model.JobArrived:
			j.ArrivedAt = &now
		case model.JobInProgress:
			j.ServiceStartedAt = &now
		case model.JobCompleted:
			j.CompletedAt = &now
		case model.JobCancelled:
			j.CancelledAt = &now
		}
		if from == model.JobSearching {
			j.DispatchFinishedAt = &now
			wr, err := tx.GetWave(jobID)
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
			if err == nil && wr.Complete(model.ResultCancelled, "", now) {
				if err := tx.PutWave(wr); err != nil {
					return err
				}
			}
		}
		if err := tx.PutJob(j); err != nil {
			return err
		}
		job = j
		if j.HeroID == "" || !to.Terminal() {
			return nil
		}
		h, err := tx.GetHero(j.HeroID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if h.CurrentJobID == jobID {
			h.CurrentJobID = ""
		}
		if to == model.JobCompleted {
			h.Stats.TotalJobs++
		}
		h.UpdatedAt = now
		hero = &h
		return tx.PutHero(h)
	})
	if err != nil {
		return model.Job{}, classify("transition", err)
	}
	if from == model.JobSearching && w.interrupter != nil {
		w.interrupter.Interrupt(jobID)
	}
	w.log.Infof("job %s: %s -> %s", jobID, from, to)
	eventbus.PublishTo(w.bus, events.JobStatusChanged{JobID: jobID, HeroID: job.HeroID, From: from, To: to})

	if to == model.JobCompleted {
		if err := w.payout.RecordPayout(ctx, job); err != nil {
			w.log.Errorf("payout for job %s failed: %v", jobID, err)
			monitoring.CaptureException(err, map[string]string{"module": "lifecycle", "job_id": jobID})
		}
	}
	w.notify(ctx, job, hero)
	return job, nil
}

func (w *LifecycleWatcher) notify(ctx context.Context, job model.Job, hero *model.Hero) {
	heroName := ""
	if hero != nil {
		heroName = hero.DisplayName
	} else if job.HeroID != "" {
		if h, err := w.store.GetHero(ctx, job.HeroID); err == nil {
			heroName = h.DisplayName
			hero = &h
		}
	}
	if _, ok := notify.StatusChanged(model.Customer{}, job, heroName); ok {
		notifyCustomer(ctx, w.store, w.notifier, w.log, job, func(c model.Customer) notify.Message {
			msg, _ := notify.StatusChanged(c, job, heroName)
			return msg
		})
	}
	if job.Status == model.JobCancelled && hero != nil {
		notify.Deliver(ctx, w.notifier, notify.JobCancelled(*hero, job.ID), w.log)
	}
}
