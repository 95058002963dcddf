package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mozocode/On-The-Way-Rebuild/core/geo"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	"github.com/mozocode/On-The-Way-Rebuild/core/notify"
	"github.com/mozocode/On-The-Way-Rebuild/infra/store/memory"
	"github.com/mozocode/On-The-Way-Rebuild/internal/eventbus"
)

var origin = model.Point{Lat: 0, Lng: 0}

type fixture struct {
	t       *testing.T
	store   *memory.Store
	sent    *notify.Recorder
	bus     *eventbus.Bus
	engine  *Engine
	arbiter *Arbiter
	life    *LifecycleWatcher
}

// twoBands is the scenario schedule: 0-2 mi then 2-5 mi.
func twoBands(timeout float64) []Band {
	return []Band{
		{MinRadiusM: 0, MaxRadiusM: 3218, TimeoutSeconds: timeout, MaxHeroes: 5},
		{MinRadiusM: 3218, MaxRadiusM: 8047, TimeoutSeconds: timeout, MaxHeroes: 5},
	}
}

func newFixture(t *testing.T, waves []Band) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		store: memory.New(nil),
		sent:  notify.NewRecorder(),
		bus:   eventbus.New(),
	}
	cfg := DefaultConfig()
	cfg.Waves = waves
	eng, err := NewEngine(f.store, f.sent, cfg, nil, f.bus, nil)
	require.NoError(t, err)
	f.engine = eng
	f.arbiter = NewArbiter(f.store, f.sent, f.bus, nil)
	f.arbiter.SetInterrupter(eng)
	f.life = NewLifecycleWatcher(f.store, f.sent, nil, f.bus, nil)
	f.life.SetInterrupter(eng)
	t.Cleanup(func() {
		_ = eng.Close()
		f.bus.Close()
	})
	return f
}

// hero stores an online, verified hero northMeters north of the origin.
func (f *fixture) hero(id string, northMeters float64, mutate ...func(*model.Hero)) model.Hero {
	f.t.Helper()
	h := model.Hero{
		ID:        id,
		Online:    true,
		Verified:  true,
		PushToken: "tok-" + id,
		Location:  &model.Location{Point: geo.Offset(origin, northMeters, 0), UpdatedAt: time.Now()},
	}
	for _, m := range mutate {
		m(&h)
	}
	require.NoError(f.t, f.store.PutHero(context.Background(), h))
	return h
}

func (f *fixture) job(id string) model.Job {
	f.t.Helper()
	j := model.Job{
		ID:          id,
		CustomerID:  "cust-" + id,
		Status:      model.JobIdle,
		Pickup:      origin,
		ServiceType: "jump_start",
		CreatedAt:   time.Now(),
	}
	require.NoError(f.t, f.store.PutJob(context.Background(), j))
	require.NoError(f.t, f.store.PutCustomer(context.Background(), model.Customer{ID: j.CustomerID, PushToken: "ctok"}))
	return j
}

func (f *fixture) getJob(id string) model.Job {
	f.t.Helper()
	j, err := f.store.GetJob(context.Background(), id)
	require.NoError(f.t, err)
	return j
}

func (f *fixture) getHero(id string) model.Hero {
	f.t.Helper()
	h, err := f.store.GetHero(context.Background(), id)
	require.NoError(f.t, err)
	return h
}

func (f *fixture) getWave(id string) model.WaveRecord {
	f.t.Helper()
	w, err := f.store.GetWave(context.Background(), id)
	require.NoError(f.t, err)
	return w
}

func ptr(v float64) *float64 { return &v }
