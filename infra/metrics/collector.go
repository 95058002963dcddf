package metrics

import (
	"context"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch"
	"github.com/mozocode/On-The-Way-Rebuild/core/events"
	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	coremetrics "github.com/mozocode/On-The-Way-Rebuild/core/metrics"
	"github.com/mozocode/On-The-Way-Rebuild/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and forwards wave, offer
// and answer events to whichever recorders sink implements. It stops when
// the context is canceled or the bus is closed; the returned channel is
// closed at that point.
func StartEventCollector(ctx context.Context, bus eventbus.EventBus, sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log = logger.OrNop(log)
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev, time.Now()); err != nil {
					log.Warnf("metrics sink: %v", err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.MetricsSink, ev eventbus.Event, now time.Time) error {
	switch e := ev.(type) {
	case events.WaveStarted:
		if r, ok := sink.(coremetrics.WaveRecorder); ok {
			return r.RecordWave(coremetrics.WaveEvent{
				JobID:      e.JobID,
				Wave:       e.Wave,
				MaxRadiusM: e.MaxRadiusM,
				Candidates: e.Candidates,
				Failed:     e.LookupErr != nil,
				Time:       now,
			})
		}
	case events.HeroNotified:
		if r, ok := sink.(coremetrics.OfferRecorder); ok {
			return r.RecordOffer(coremetrics.OfferEvent{
				JobID:     e.JobID,
				HeroID:    e.HeroID,
				Wave:      e.Wave,
				Score:     e.Score,
				DistanceM: e.DistanceM,
				Delivered: e.Delivered,
				Time:      now,
			})
		}
	case events.OfferAnswered:
		if r, ok := sink.(coremetrics.AnswerRecorder); ok {
			return r.RecordAnswer(coremetrics.AnswerEvent{
				JobID:    e.JobID,
				HeroID:   e.HeroID,
				Accepted: e.Accepted,
				Outcome:  dispatch.AnswerOutcome(e.Err),
				Time:     now,
			})
		}
	}
	return nil
}
