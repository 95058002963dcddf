package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/mozocode/On-The-Way-Rebuild/core/events"
	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/notify"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
	"github.com/mozocode/On-The-Way-Rebuild/internal/eventbus"
)

// Interrupter wakes a running dispatch loop. *Engine implements it.
type Interrupter interface {
	Interrupt(jobID string)
}

// Arbiter resolves accept/decline races. Every binding of a hero to a job
// goes through Accept.
type Arbiter struct {
	store       store.Store
	notifier    notify.Notifier
	bus         eventbus.EventBus
	log         logger.Logger
	interrupter Interrupter
}

// NewArbiter creates an arbiter over st.
func NewArbiter(st store.Store, n notify.Notifier, bus eventbus.EventBus, log logger.Logger) *Arbiter {
	if n == nil {
		n = notify.NopNotifier{}
	}
	return &Arbiter{store: st, notifier: n, bus: bus, log: logger.OrNop(log)}
}

// SetInterrupter registers the loop to wake once an accept commits.
func (a *Arbiter) SetInterrupter(i Interrupter) { a.interrupter = i }

// Accept binds heroID to jobID. It fails with ErrNotFound when either record
// is missing, ErrAlreadyAssigned when the job is no longer searching and
// ErrWorkerBusy when the hero is bound elsewhere.
func (a *Arbiter) Accept(ctx context.Context, jobID, heroID string) error {
	if jobID == "" || heroID == "" {
		return validationf("job id and hero id are required")
	}
	var (
		job  model.Job
		hero model.Hero
	)
	err := a.store.RunTx(ctx, func(tx store.Tx) error {
		j, err := tx.GetJob(jobID)
		if err != nil {
			return fmt.Errorf("job %s: %w", jobID, err)
		}
		h, err := tx.GetHero(heroID)
		if err != nil {
			return fmt.Errorf("hero %s: %w", heroID, err)
		}
		if j.Status != model.JobSearching {
			return fmt.Errorf("%w: job %s is %s", ErrAlreadyAssigned, jobID, j.Status)
		}
		if h.CurrentJobID != "" {
			return fmt.Errorf("%w: hero %s has job %s", ErrWorkerBusy, heroID, h.CurrentJobID)
		}
		now := a.store.Now()
		j.HeroID = heroID
		j.AssignedAt = &now
		j.DispatchFinishedAt = &now
		j.Record(model.JobAssigned, now, heroID)
		h.CurrentJobID = jobID
		h.Stats.RecordOffer(true)
		h.UpdatedAt = now

		w, err := tx.GetWave(jobID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		default:
			if w.Complete(model.ResultAccepted, heroID, now) {
				if err := tx.PutWave(w); err != nil {
					return err
				}
			}
		}
		if err := tx.PutJob(j); err != nil {
			return err
		}
		if err := tx.PutHero(h); err != nil {
			return err
		}
		job, hero = j, h
		return nil
	})
	if err != nil {
		err = classify("accept", err)
		a.answered(jobID, heroID, true, "", err)
		return err
	}
	if a.interrupter != nil {
		a.interrupter.Interrupt(jobID)
	}
	a.log.Infof("hero %s accepted job %s", heroID, jobID)
	a.answered(jobID, heroID, true, "", nil)
	eventbus.PublishTo(a.bus, events.JobAssigned{JobID: jobID, HeroID: heroID, At: *job.AssignedAt})
	eventbus.PublishTo(a.bus, events.JobStatusChanged{JobID: jobID, HeroID: heroID, From: model.JobSearching, To: model.JobAssigned})
	notifyCustomer(ctx, a.store, a.notifier, a.log, job, func(c model.Customer) notify.Message {
		return notify.HeroAssigned(c, jobID, hero)
	})
	return nil
}

// Decline records that heroID turned jobID down. It is idempotent: the
// declined sets are append-only and the hero's statistics only count the
// first decline of a given job. A terminal wave ledger is left untouched.
// Like Accept, it fails with ErrNotFound when the job or the hero is unknown.
func (a *Arbiter) Decline(ctx context.Context, jobID, heroID, reason string) error {
	if jobID == "" || heroID == "" {
		return validationf("job id and hero id are required")
	}
	err := a.store.RunTx(ctx, func(tx store.Tx) error {
		j, err := tx.GetJob(jobID)
		if err != nil {
			return fmt.Errorf("job %s: %w", jobID, err)
		}
		h, err := tx.GetHero(heroID)
		if err != nil {
			return fmt.Errorf("hero %s: %w", heroID, err)
		}
		if j.DeclinedHeroes == nil {
			j.DeclinedHeroes = model.NewHeroSet()
		}
		first := j.DeclinedHeroes.Add(heroID)
		if first {
			if err := tx.PutJob(j); err != nil {
				return err
			}
		}

		w, err := tx.GetWave(jobID)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		case !w.Terminal():
			if w.DeclinedHeroes == nil {
				w.DeclinedHeroes = model.NewHeroSet()
			}
			if w.DeclinedHeroes.Add(heroID) {
				if err := tx.PutWave(w); err != nil {
					return err
				}
			}
		}

		if !first {
			return nil
		}
		now := a.store.Now()
		h.Stats.RecordOffer(false)
		h.Stats.LastDeclinedAt = &now
		return tx.PutHero(h)
	})
	if err != nil {
		err = classify("decline", err)
		a.answered(jobID, heroID, false, reason, err)
		return err
	}
	a.log.Infof("hero %s declined job %s: %s", heroID, jobID, reason)
	a.answered(jobID, heroID, false, reason, nil)
	return nil
}

func (a *Arbiter) answered(jobID, heroID string, accepted bool, reason string, err error) {
	action := "decline"
	if accepted {
		action = "accept"
	}
	offersAnswered.WithLabelValues(action, AnswerOutcome(err)).Inc()
	eventbus.PublishTo(a.bus, events.OfferAnswered{JobID: jobID, HeroID: heroID, Accepted: accepted, Reason: reason, Err: err})
}
