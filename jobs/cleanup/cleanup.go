// Package cleanup runs the periodic maintenance of the dispatch store:
// expiring hero locations and pruning old wave ledgers.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	coremetrics "github.com/mozocode/On-The-Way-Rebuild/core/metrics"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/monitoring"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
)

var removed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cleanup_removed_total",
		Help: "Records removed by the maintenance jobs",
	},
	[]string{"kind"},
)

func init() {
	prometheus.MustRegister(removed)
}

// Options are the schedules and limits of the jobs.
type Options struct {
	LocationInterval time.Duration
	// LocationTTL is the age after which a hero location is cleared.
	LocationTTL   time.Duration
	WaveInterval  time.Duration
	WaveRetention time.Duration
	WaveBatch     int
}

// Runner owns both jobs.
type Runner struct {
	store store.Store
	fleet coremetrics.FleetSizeRecorder
	opts  Options
	log   logger.Logger
}

// NewRunner creates a runner. A nil fleet recorder is ignored.
func NewRunner(st store.Store, fleet coremetrics.FleetSizeRecorder, opts Options, log logger.Logger) *Runner {
	if fleet == nil {
		fleet = coremetrics.NopSink{}
	}
	return &Runner{store: st, fleet: fleet, opts: opts, log: logger.OrNop(log)}
}

// Start runs both jobs on their tickers until ctx is done. The returned
// channel is closed once both loops have exited.
func (r *Runner) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	locDone := r.every(ctx, r.opts.LocationInterval, "locations", func(ctx context.Context) error {
		_, err := r.ExpireLocations(ctx)
		return err
	})
	waveDone := r.every(ctx, r.opts.WaveInterval, "waves", func(ctx context.Context) error {
		_, err := r.PruneWaves(ctx)
		return err
	})
	go func() {
		<-locDone
		<-waveDone
		close(done)
	}()
	return done
}

func (r *Runner) every(ctx context.Context, d time.Duration, name string, fn func(context.Context) error) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if d <= 0 {
			return
		}
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if err := fn(ctx); err != nil && ctx.Err() == nil {
					r.log.Errorf("cleanup %s: %v", name, err)
					monitoring.CaptureException(err, map[string]string{"module": "cleanup", "job": name})
				}
			}
		}
	}()
	return done
}

// ExpireLocations clears locations older than the TTL and records the size
// of the fleet left online with a fresh location.
func (r *Runner) ExpireLocations(ctx context.Context) (int, error) {
	heroes, err := r.store.QueryHeroes(ctx, store.HeroQuery{})
	if err != nil {
		return 0, fmt.Errorf("query heroes: %w", err)
	}
	now := r.store.Now()
	cleared, fresh := 0, 0
	var errs []error
	for _, h := range heroes {
		if h.Location == nil {
			continue
		}
		if h.Location.Fresh(now, r.opts.LocationTTL) {
			if h.Online {
				fresh++
			}
			continue
		}
		ok, err := r.expire(ctx, h.ID, now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			cleared++
		}
	}
	removed.WithLabelValues("location").Add(float64(cleared))
	if err := r.fleet.RecordFleetSize(fresh); err != nil {
		r.log.Warnf("record fleet size: %v", err)
	}
	if cleared > 0 {
		r.log.Infof("cleared %d expired hero locations", cleared)
	}
	return cleared, errors.Join(errs...)
}

// expire re-reads the hero inside a transaction so a report that arrived
// since the scan is kept.
func (r *Runner) expire(ctx context.Context, heroID string, now time.Time) (bool, error) {
	cleared := false
	err := r.store.RunTx(ctx, func(tx store.Tx) error {
		cleared = false
		h, err := tx.GetHero(heroID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if h.Location == nil || h.Location.Fresh(now, r.opts.LocationTTL) {
			return nil
		}
		h.Location = nil
		h.UpdatedAt = now
		cleared = true
		return tx.PutHero(h)
	})
	if err != nil {
		return false, fmt.Errorf("hero %s: %w", heroID, err)
	}
	return cleared, nil
}

// PruneWaves deletes the wave ledgers of terminal jobs created before the
// retention window, at most WaveBatch per call. Jobs whose ledger is already
// gone are skipped so that successive runs make progress.
func (r *Runner) PruneWaves(ctx context.Context) (int, error) {
	cutoff := r.store.Now().Add(-r.opts.WaveRetention)
	jobs, err := r.store.QueryJobs(ctx, store.JobQuery{
		Statuses:      []model.JobStatus{model.JobCompleted, model.JobCancelled, model.JobNoHeroesAvailable},
		CreatedBefore: cutoff,
	})
	if err != nil {
		return 0, fmt.Errorf("query jobs: %w", err)
	}
	n := 0
	var errs []error
	for _, j := range jobs {
		if r.opts.WaveBatch > 0 && n >= r.opts.WaveBatch {
			break
		}
		if _, err := r.store.GetWave(ctx, j.ID); errors.Is(err, store.ErrNotFound) {
			continue
		} else if err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", j.ID, err))
			continue
		}
		if err := r.store.DeleteWave(ctx, j.ID); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", j.ID, err))
			continue
		}
		n++
	}
	removed.WithLabelValues("wave").Add(float64(n))
	if n > 0 {
		r.log.Infof("pruned %d wave records older than %s", n, cutoff.Format(time.RFC3339))
	}
	return n, errors.Join(errs...)
}
