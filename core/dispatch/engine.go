package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mozocode/On-The-Way-Rebuild/core/dispatch/logging"
	"github.com/mozocode/On-The-Way-Rebuild/core/events"
	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	"github.com/mozocode/On-The-Way-Rebuild/core/metrics"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/monitoring"
	"github.com/mozocode/On-The-Way-Rebuild/core/notify"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
	"github.com/mozocode/On-The-Way-Rebuild/internal/eventbus"
)

// Outcome is the result of one dispatch run.
type Outcome struct {
	JobID      string
	Result     model.WaveResult
	Waves      int
	Notified   []string
	AcceptedBy string
	Duration   time.Duration
}

// settings is the validated form of Config swapped atomically on reload.
type settings struct {
	cfg         Config
	schedule    []Band
	scheduleErr error
	scorer      *Scorer
}

func compile(cfg Config) (*settings, error) {
	w, err := cfg.EffectiveWeights()
	if err != nil {
		return nil, err
	}
	sc, err := NewScorer(w)
	if err != nil {
		return nil, err
	}
	sched, serr := cfg.Schedule()
	return &settings{cfg: cfg, schedule: sched, scheduleErr: serr, scorer: sc}, nil
}

// Engine runs the wave loop of every job being dispatched, one goroutine per
// job.
type Engine struct {
	store    store.Store
	notifier notify.Notifier
	sink     metrics.MetricsSink
	bus      eventbus.EventBus
	log      logger.Logger

	settings atomic.Pointer[settings]
	source   CandidateSource

	mu       sync.Mutex
	logStore logging.LogStore
	// running maps job ids to the wake channel of their loop.
	running map[string]chan struct{}
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewEngine creates an engine. Invalid weights are rejected; an invalid wave
// schedule is accepted and makes every dispatch end in no_heroes_available.
func NewEngine(st store.Store, n notify.Notifier, cfg Config, sink metrics.MetricsSink, bus eventbus.EventBus, log logger.Logger) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("dispatch: nil store provided to NewEngine")
	}
	if n == nil {
		n = notify.NopNotifier{}
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	e := &Engine{
		store:    st,
		notifier: n,
		sink:     sink,
		bus:      bus,
		log:      logger.OrNop(log),
		running:  make(map[string]chan struct{}),
	}
	if err := e.SetConfig(cfg); err != nil {
		return nil, err
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	return e, nil
}

// SetConfig swaps the configuration used by dispatches started afterwards.
func (e *Engine) SetConfig(cfg Config) error {
	s, err := compile(cfg)
	if err != nil {
		return fmt.Errorf("dispatch config: %w", err)
	}
	if s.scheduleErr != nil {
		e.log.Warnf("wave schedule rejected, jobs will end without heroes: %v", s.scheduleErr)
	}
	e.settings.Store(s)
	return nil
}

// Config returns the active configuration.
func (e *Engine) Config() Config { return e.settings.Load().cfg }

// SetCandidateSource replaces the store-backed candidate lookup.
func (e *Engine) SetCandidateSource(src CandidateSource) {
	e.mu.Lock()
	e.source = src
	e.mu.Unlock()
}

// SetLogStore configures the store used to persist dispatch audit records.
func (e *Engine) SetLogStore(ls logging.LogStore) {
	e.mu.Lock()
	e.logStore = ls
	e.mu.Unlock()
}

func (e *Engine) candidates(s *settings) CandidateSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.source != nil {
		return e.source
	}
	return &StoreCandidates{Store: e.store, Scorer: s.scorer, TTL: s.cfg.LocationTTL()}
}

// Running reports whether a loop is active for jobID.
func (e *Engine) Running(jobID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.running[jobID]
	return ok
}

// Interrupt wakes the loop of jobID from its wave sleep so it re-reads the job
// status immediately. It is a no-op when no loop runs for the job.
func (e *Engine) Interrupt(jobID string) {
	e.mu.Lock()
	wake, ok := e.running[jobID]
	e.mu.Unlock()
	if !ok {
		return
	}
	select {
	case wake <- struct{}{}:
	default:
	}
}

// Start moves an idle job to searching and runs its waves in the background.
// The loop outlives ctx and stops only when the job leaves searching, the
// schedule is exhausted or the engine is closed.
func (e *Engine) Start(ctx context.Context, jobID string) error {
	job, wake, s, err := e.begin(ctx, jobID)
	if err != nil {
		return err
	}
	e.spawn(job, wake, s, 0)
	return nil
}

func (e *Engine) spawn(job model.Job, wake chan struct{}, s *settings, from int) {
	go func() {
		defer e.wg.Done()
		defer monitoring.Recover(map[string]string{"module": "dispatch", "job_id": job.ID})
		e.run(e.ctx, job, wake, s, from)
	}()
}

// Dispatch is the synchronous form of Start. The loop stops when ctx ends or
// the engine is closed. A caller giving up closes the job as
// no_heroes_available; a closed engine leaves it searching for Resume.
func (e *Engine) Dispatch(ctx context.Context, jobID string) (Outcome, error) {
	job, wake, s, err := e.begin(ctx, jobID)
	if err != nil {
		return Outcome{}, err
	}
	defer e.wg.Done()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(e.ctx, cancel)
	defer stop()
	return e.run(ctx, job, wake, s, 0), nil
}

// Resume restarts the loops of jobs left in searching by a previous process
// or a closed engine. Each continues after its last recorded wave; a job
// already past the end of the schedule is closed as no_heroes_available. It
// returns the number of loops started.
func (e *Engine) Resume(ctx context.Context) (int, error) {
	jobs, err := e.store.QueryJobs(ctx, store.JobQuery{Statuses: []model.JobStatus{model.JobSearching}})
	if err != nil {
		return 0, classify("resume dispatch", err)
	}
	s := e.settings.Load()
	n := 0
	for _, job := range jobs {
		wake, err := e.register(job.ID)
		if errors.Is(err, ErrAlreadyDispatching) {
			continue
		}
		if err != nil {
			return n, err
		}
		if job.NotifiedHeroes == nil {
			job.NotifiedHeroes = model.NewHeroSet()
		}
		if job.DeclinedHeroes == nil {
			job.DeclinedHeroes = model.NewHeroSet()
		}
		activeDispatches.Inc()
		e.log.Infof("resuming dispatch for job %s at wave %d/%d", job.ID, job.CurrentWave+1, len(s.schedule))
		e.spawn(job, wake, s, job.CurrentWave)
		n++
	}
	return n, nil
}

// Wait blocks until every background loop has returned.
func (e *Engine) Wait() { e.wg.Wait() }

// Close stops all loops and waits for them. Jobs interrupted this way stay
// in searching until Resume picks them up. Start and Dispatch fail with
// ErrEngineClosed afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.cancel()
	e.wg.Wait()
	e.mu.Lock()
	ls := e.logStore
	e.logStore = nil
	e.mu.Unlock()
	if ls != nil {
		return ls.Close()
	}
	return nil
}

// begin registers the loop and performs the idle -> searching transition
// together with the creation of the wave ledger.
func (e *Engine) begin(ctx context.Context, jobID string) (model.Job, chan struct{}, *settings, error) {
	if jobID == "" {
		return model.Job{}, nil, nil, validationf("job id is required")
	}
	wake, err := e.register(jobID)
	if err != nil {
		return model.Job{}, nil, nil, err
	}

	s := e.settings.Load()
	var job model.Job
	err = e.store.RunTx(ctx, func(tx store.Tx) error {
		j, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		if j.Status != model.JobIdle && j.Status != "" {
			return fmt.Errorf("%w: job %s is %s", ErrPreconditionFailed, jobID, j.Status)
		}
		now := e.store.Now()
		j.Record(model.JobSearching, now, "")
		j.DispatchStartedAt = &now
		j.CurrentWave = 0
		if j.NotifiedHeroes == nil {
			j.NotifiedHeroes = model.NewHeroSet()
		}
		if j.DeclinedHeroes == nil {
			j.DeclinedHeroes = model.NewHeroSet()
		}
		if err := tx.PutJob(j); err != nil {
			return err
		}
		job = j
		w := model.NewWaveRecord(jobID, len(s.schedule), now)
		w.DeclinedHeroes.Merge(j.DeclinedHeroes)
		return tx.PutWave(w)
	})
	if err != nil {
		e.release(jobID)
		e.wg.Done()
		return model.Job{}, nil, nil, classify("start dispatch", err)
	}
	activeDispatches.Inc()
	e.log.Infof("dispatch started for job %s (%d waves)", jobID, len(s.schedule))
	return job, wake, s, nil
}

// register reserves the loop slot of jobID. The wait group is held from here
// on so Close cannot miss a loop that is still starting.
func (e *Engine) register(jobID string) (chan struct{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	if _, ok := e.running[jobID]; ok {
		return nil, ErrAlreadyDispatching
	}
	wake := make(chan struct{}, 1)
	e.running[jobID] = wake
	e.wg.Add(1)
	return wake, nil
}

func (e *Engine) release(jobID string) {
	e.mu.Lock()
	delete(e.running, jobID)
	e.mu.Unlock()
}

type sleepResult int

const (
	sleepElapsed sleepResult = iota
	sleepWoken
	sleepAborted
)

func sleep(ctx context.Context, d time.Duration, wake <-chan struct{}) sleepResult {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return sleepElapsed
	case <-wake:
		return sleepWoken
	case <-ctx.Done():
		return sleepAborted
	}
}

func woken(wake <-chan struct{}) bool {
	select {
	case <-wake:
		return true
	default:
		return false
	}
}

// run executes the waves of job starting at band from. The notified set and
// wave index are owned by this call.
func (e *Engine) run(ctx context.Context, job model.Job, wake chan struct{}, s *settings, from int) Outcome {
	start := time.Now()
	defer e.release(job.ID)
	defer activeDispatches.Dec()

	src := e.candidates(s)
	notified := model.NewHeroSet()
	var summaries []logging.WaveSummary

	if s.scheduleErr != nil {
		e.log.Warnf("job %s: %v", job.ID, s.scheduleErr)
	}

	aborted := false
	for i := from; i < len(s.schedule) && !aborted; {
		band := s.schedule[i]
		if cur, err := e.store.GetJob(ctx, job.ID); err != nil {
			e.log.Warnf("job %s: status check failed, continuing with last known state: %v", job.ID, err)
		} else {
			job = cur
		}
		if job.Status != model.JobSearching {
			e.log.Infof("job %s left searching (%s) before wave %d", job.ID, job.Status, i+1)
			break
		}

		exclude := notified.Union(job.NotifiedHeroes, job.DeclinedHeroes)
		cands, err := src.FindCandidates(ctx, job.Pickup, band, job.ServiceType, exclude)
		summary := logging.WaveSummary{Index: i, MinRadiusM: band.MinRadiusM, MaxRadiusM: band.MaxRadiusM, Candidates: len(cands)}
		if err != nil {
			e.log.Warnf("job %s wave %d: candidate lookup failed, treating as empty: %v", job.ID, i+1, err)
			monitoring.CaptureException(err, map[string]string{"module": "dispatch", "job_id": job.ID})
			summary.LookupErr = err.Error()
			cands = nil
		}
		eventbus.PublishTo(e.bus, events.WaveStarted{
			JobID: job.ID, Wave: i, MinRadiusM: band.MinRadiusM, MaxRadiusM: band.MaxRadiusM,
			Candidates: len(cands), LookupErr: err,
		})
		wavesExecuted.WithLabelValues(lookupLabel(err)).Inc()

		if woken(wake) {
			// Answered between the status check and now; re-check before
			// sending offers for this wave.
			continue
		}

		fresh := model.NewHeroSet()
		for _, c := range cands {
			if notified.Has(c.Hero.ID) {
				continue
			}
			delivered := notify.Deliver(ctx, e.notifier, notify.JobOffer(job, c.Hero), e.log)
			notified.Add(c.Hero.ID)
			fresh.Add(c.Hero.ID)
			heroesNotified.WithLabelValues(deliveredLabel(delivered)).Inc()
			eventbus.PublishTo(e.bus, events.HeroNotified{
				JobID: job.ID, HeroID: c.Hero.ID, Wave: i, Score: c.Score, DistanceM: c.DistanceM, Delivered: delivered,
			})
		}
		summary.Notified = fresh.Slice()
		summaries = append(summaries, summary)
		e.log.Infof("job %s wave %d/%d: %d candidates, %d notified", job.ID, i+1, len(s.schedule), len(cands), fresh.Len())

		if err := e.recordWave(ctx, job.ID, i, band, fresh); err != nil {
			e.log.Errorf("job %s wave %d: bookkeeping failed: %v", job.ID, i+1, err)
			monitoring.CaptureException(err, map[string]string{"module": "dispatch", "job_id": job.ID})
		}

		if sleep(ctx, band.Timeout(), wake) == sleepAborted {
			aborted = true
		}
		i++
	}

	out := Outcome{JobID: job.ID, Waves: len(summaries), Notified: notified.Slice()}
	if aborted || ctx.Err() != nil {
		if e.ctx.Err() != nil {
			e.log.Warnf("job %s: dispatch interrupted by shutdown, left searching", job.ID)
			out.Result = model.ResultInProgress
			out.Duration = time.Since(start)
			return out
		}
		e.log.Warnf("job %s: dispatch abandoned by caller: %v", job.ID, ctx.Err())
		ctx = context.WithoutCancel(ctx)
	}

	final, exhausted, err := e.finish(ctx, job.ID)
	if err != nil {
		e.log.Errorf("job %s: finalize failed: %v", job.ID, err)
		monitoring.CaptureException(err, map[string]string{"module": "dispatch", "job_id": job.ID})
	}
	out.Result = final.result
	out.AcceptedBy = final.heroID
	out.Duration = time.Since(start)
	if exhausted {
		e.notifyCustomer(ctx, final.job, func(c model.Customer) notify.Message { return notify.NoHeroes(c, job.ID) })
	}
	e.complete(ctx, final.job, out, summaries)
	return out
}

// recordWave merges the wave's offers into the job and ledger. The ledger is
// left alone once terminal.
func (e *Engine) recordWave(ctx context.Context, jobID string, idx int, band Band, fresh model.HeroSet) error {
	err := e.store.RunTx(ctx, func(tx store.Tx) error {
		now := e.store.Now()
		j, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		if j.NotifiedHeroes == nil {
			j.NotifiedHeroes = model.NewHeroSet()
		}
		j.NotifiedHeroes.Merge(fresh)
		if j.CurrentWave < idx+1 {
			j.CurrentWave = idx + 1
		}
		if err := tx.PutJob(j); err != nil {
			return err
		}
		w, err := tx.GetWave(jobID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if w.Terminal() {
			return nil
		}
		if w.NotifiedHeroes == nil {
			w.NotifiedHeroes = model.NewHeroSet()
		}
		w.NotifiedHeroes.Merge(fresh)
		w.CurrentWave = idx + 1
		w.Waves = append(w.Waves, model.WaveEntry{
			Index: idx, MinRadiusM: band.MinRadiusM, MaxRadiusM: band.MaxRadiusM,
			StartedAt: now, NotifiedCount: fresh.Len(),
		})
		return tx.PutWave(w)
	})
	return classify("record wave", err)
}

type finalState struct {
	job    model.Job
	result model.WaveResult
	heroID string
}

// finish closes a job still searching as no_heroes_available. It reports
// whether this call performed that transition.
func (e *Engine) finish(ctx context.Context, jobID string) (finalState, bool, error) {
	var st finalState
	exhausted := false
	err := e.store.RunTx(ctx, func(tx store.Tx) error {
		exhausted = false
		j, err := tx.GetJob(jobID)
		if err != nil {
			return err
		}
		st = finalState{job: j, result: resultFor(j), heroID: j.HeroID}
		if j.Status != model.JobSearching {
			return nil
		}
		now := e.store.Now()
		j.Record(model.JobNoHeroesAvailable, now, "")
		j.DispatchFinishedAt = &now
		if err := tx.PutJob(j); err != nil {
			return err
		}
		w, err := tx.GetWave(jobID)
		if err == nil && w.Complete(model.ResultNoHeroes, "", now) {
			if err := tx.PutWave(w); err != nil {
				return err
			}
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		st = finalState{job: j, result: model.ResultNoHeroes}
		exhausted = true
		return nil
	})
	if err != nil {
		return st, false, classify("finish dispatch", err)
	}
	if exhausted {
		eventbus.PublishTo(e.bus, events.JobStatusChanged{JobID: jobID, From: model.JobSearching, To: model.JobNoHeroesAvailable})
	}
	return st, exhausted, nil
}

func resultFor(j model.Job) model.WaveResult {
	switch {
	case j.Status == model.JobCancelled:
		return model.ResultCancelled
	case j.Status == model.JobNoHeroesAvailable:
		return model.ResultNoHeroes
	case j.Status.Bound():
		return model.ResultAccepted
	}
	return model.ResultInProgress
}

func (e *Engine) notifyCustomer(ctx context.Context, job model.Job, build func(model.Customer) notify.Message) {
	notifyCustomer(ctx, e.store, e.notifier, e.log, job, build)
}

// notifyCustomer sends a best-effort message to the owner of job. A missing
// customer record still yields a message addressed to the id.
func notifyCustomer(ctx context.Context, st store.Store, n notify.Notifier, log logger.Logger, job model.Job, build func(model.Customer) notify.Message) bool {
	if job.CustomerID == "" {
		return false
	}
	c, err := st.GetCustomer(ctx, job.CustomerID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.Warnf("customer %s lookup failed: %v", job.CustomerID, err)
		}
		c = model.Customer{ID: job.CustomerID}
	}
	return notify.Deliver(ctx, n, build(c), log)
}

// complete publishes the outcome to the bus, the metrics sink and the audit
// log.
func (e *Engine) complete(ctx context.Context, job model.Job, out Outcome, waves []logging.WaveSummary) {
	dispatchDuration.WithLabelValues(string(out.Result)).Observe(out.Duration.Seconds())
	eventbus.PublishTo(e.bus, events.DispatchFinished{
		JobID: job.ID, ServiceType: job.ServiceType, Result: out.Result, Waves: out.Waves,
		Notified: len(out.Notified), AcceptedBy: out.AcceptedBy, Duration: out.Duration,
	})
	if err := e.sink.RecordDispatchResult([]metrics.DispatchResult{{
		JobID: job.ID, ServiceType: job.ServiceType, Result: out.Result, Waves: out.Waves,
		Notified: len(out.Notified), AcceptedBy: out.AcceptedBy, Duration: out.Duration, Time: time.Now(),
	}}); err != nil {
		e.log.Errorf("metrics error: %v", err)
	}
	e.mu.Lock()
	ls := e.logStore
	e.mu.Unlock()
	if ls != nil {
		rec := logging.LogRecord{
			Timestamp: time.Now(), JobID: job.ID, CustomerID: job.CustomerID, ServiceType: job.ServiceType,
			Pickup: job.Pickup, Result: out.Result, AcceptedBy: out.AcceptedBy, Waves: waves,
			DurationMS: out.Duration.Milliseconds(),
		}
		if err := ls.Append(context.WithoutCancel(ctx), rec); err != nil {
			e.log.Errorf("dispatch log append failed: %v", err)
		}
	}
	e.log.Infof("dispatch for job %s finished: %s after %d waves, %d heroes notified", job.ID, out.Result, out.Waves, len(out.Notified))
}
