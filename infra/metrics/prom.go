// Package metrics provides the Prometheus and InfluxDB sinks for
// core/metrics, the event-bus collector feeding them and the /metrics
// endpoint.
package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/mozocode/On-The-Way-Rebuild/core/metrics"
)

// PromSink records dispatch activity in Prometheus metrics. Hero and job ids
// are never used as labels.
type PromSink struct {
	results  *prometheus.CounterVec
	waves    *prometheus.HistogramVec
	offers   *prometheus.CounterVec
	distance prometheus.Histogram
	answers  *prometheus.CounterVec
	fleet    prometheus.Gauge
}

// NewPromSink registers the sink's collectors on the default registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// Collectors already registered are reused. A nil registerer defaults to the
// global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.results, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "otw_dispatch_results_total",
		Help: "Finished dispatches by service type and result",
	}, []string{"service_type", "result"})); err != nil {
		return nil, err
	}
	if s.waves, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "otw_wave_candidates",
		Help:    "Candidates found per executed wave",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 10},
	}, []string{"wave", "lookup"})); err != nil {
		return nil, err
	}
	if s.offers, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "otw_offers_total",
		Help: "Job offers sent to heroes by wave and delivery",
	}, []string{"wave", "delivered"})); err != nil {
		return nil, err
	}
	if s.distance, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "otw_offer_distance_meters",
		Help:    "Distance between pickup and notified hero",
		Buckets: []float64{500, 1000, 2000, 3218, 5000, 8047, 11265, 14484},
	})); err != nil {
		return nil, err
	}
	if s.answers, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "otw_offer_answers_total",
		Help: "Hero answers by action and outcome",
	}, []string{"accepted", "outcome"})); err != nil {
		return nil, err
	}
	if s.fleet, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "otw_fleet_available_heroes",
		Help: "Heroes online with a fresh location",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordDispatchResult counts finished dispatches.
func (s *PromSink) RecordDispatchResult(res []coremetrics.DispatchResult) error {
	for _, r := range res {
		s.results.WithLabelValues(r.ServiceType, string(r.Result)).Inc()
	}
	return nil
}

func (s *PromSink) RecordWave(ev coremetrics.WaveEvent) error {
	lookup := "ok"
	if ev.Failed {
		lookup = "failed"
	}
	s.waves.WithLabelValues(strconv.Itoa(ev.Wave), lookup).Observe(float64(ev.Candidates))
	return nil
}

func (s *PromSink) RecordOffer(ev coremetrics.OfferEvent) error {
	s.offers.WithLabelValues(strconv.Itoa(ev.Wave), strconv.FormatBool(ev.Delivered)).Inc()
	s.distance.Observe(ev.DistanceM)
	return nil
}

func (s *PromSink) RecordAnswer(ev coremetrics.AnswerEvent) error {
	s.answers.WithLabelValues(strconv.FormatBool(ev.Accepted), ev.Outcome).Inc()
	return nil
}

// RecordFleetSize sets the gauge to the number of available heroes.
func (s *PromSink) RecordFleetSize(size int) error {
	s.fleet.Set(float64(size))
	return nil
}
