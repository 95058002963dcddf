// Package telemetry ingests hero location reports published over MQTT and
// keeps Hero.Location fresh for candidate lookups.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mozocode/On-The-Way-Rebuild/core/logger"
	"github.com/mozocode/On-The-Way-Rebuild/core/model"
	coremqtt "github.com/mozocode/On-The-Way-Rebuild/core/mqtt"
	"github.com/mozocode/On-The-Way-Rebuild/core/store"
)

var locationUpdates = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "telemetry_location_updates_total",
		Help: "Hero location reports by outcome",
	},
	[]string{"result"},
)

func init() {
	prometheus.MustRegister(locationUpdates)
}

// ErrStale is returned for a report older than the stored location.
var ErrStale = errors.New("location report is older than the stored one")

// Report is the payload published on <prefix>/<hero>/location.
type Report struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
	Heading  *float64 `json:"heading,omitempty"`
	Speed    *float64 `json:"speed,omitempty"`
	Online   *bool    `json:"online,omitempty"`
	// TS is a Unix timestamp in milliseconds. The store clock is used when
	// it is absent.
	TS *int64 `json:"ts,omitempty"`
}

// Manager subscribes to hero location topics.
type Manager struct {
	client coremqtt.Client
	topics coremqtt.Topics
	store  store.Store
	log    logger.Logger
}

// NewManager prepares location ingestion; Start subscribes.
func NewManager(client coremqtt.Client, topics coremqtt.Topics, st store.Store, log logger.Logger) *Manager {
	return &Manager{client: client, topics: topics, store: st, log: logger.OrNop(log)}
}

// Start subscribes to every hero's location topic.
func (m *Manager) Start() error {
	return m.client.Subscribe(m.topics.Wildcard("location"), coremqtt.KindLocation, m.onLocation)
}

func (m *Manager) onLocation(topic string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	heroID, err := m.topics.HeroID(topic)
	if err == nil {
		err = m.Process(ctx, heroID, payload)
	}
	locationUpdates.WithLabelValues(resultLabel(err)).Inc()
	if err != nil && !errors.Is(err, ErrStale) {
		m.log.Warnf("location from %s rejected: %v", topic, err)
	}
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, store.ErrNotFound):
		return "unknown_hero"
	default:
		return "invalid"
	}
}

// Process applies a location report to heroID.
func (m *Manager) Process(ctx context.Context, heroID string, payload []byte) error {
	var r Report
	if err := json.Unmarshal(payload, &r); err != nil {
		return fmt.Errorf("decode location: %w", err)
	}
	if r.Lat < -90 || r.Lat > 90 || r.Lng < -180 || r.Lng > 180 {
		return fmt.Errorf("location out of range: %v,%v", r.Lat, r.Lng)
	}
	return m.store.RunTx(ctx, func(tx store.Tx) error {
		h, err := tx.GetHero(heroID)
		if err != nil {
			return fmt.Errorf("hero %s: %w", heroID, err)
		}
		now := m.store.Now()
		at := now
		if r.TS != nil {
			at = time.UnixMilli(*r.TS)
			if at.After(now) {
				at = now
			}
		}
		if h.Location != nil && at.Before(h.Location.UpdatedAt) {
			return ErrStale
		}
		h.Location = &model.Location{
			Point:     model.Point{Lat: r.Lat, Lng: r.Lng},
			Accuracy:  r.Accuracy,
			Heading:   r.Heading,
			Speed:     r.Speed,
			UpdatedAt: at,
		}
		if r.Online != nil {
			h.Online = *r.Online
		}
		h.UpdatedAt = now
		return tx.PutHero(h)
	})
}
