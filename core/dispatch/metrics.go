package dispatch

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	dispatchDuration *prometheus.HistogramVec
	wavesExecuted    *prometheus.CounterVec
	heroesNotified   *prometheus.CounterVec
	offersAnswered   *prometheus.CounterVec
	activeDispatches prometheus.Gauge
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec, prometheus.Gauge) {
	dur := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_duration_seconds",
			Help:    "Time from dispatch start to its terminal result",
			Buckets: []float64{1, 5, 10, 20, 40, 60, 100, 150, 300},
		},
		[]string{"result"},
	)
	waves := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_waves_total",
			Help: "Number of dispatch waves executed",
		},
		[]string{"lookup"},
	)
	notified := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_heroes_notified_total",
			Help: "Number of job offers sent to heroes",
		},
		[]string{"delivery"},
	)
	answered := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_offers_answered_total",
			Help: "Number of accept/decline answers by outcome",
		},
		[]string{"action", "outcome"},
	)
	active := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dispatch_active",
			Help: "Number of dispatch loops currently running",
		},
	)
	return dur, waves, notified, answered, active
}

func init() {
	dispatchDuration, wavesExecuted, heroesNotified, offersAnswered, activeDispatches = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(dispatchDuration, wavesExecuted, heroesNotified, offersAnswered, activeDispatches)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	dispatchDuration, wavesExecuted, heroesNotified, offersAnswered, activeDispatches = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}

func lookupLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "ok"
}

func deliveredLabel(ok bool) string {
	if ok {
		return "delivered"
	}
	return "failed"
}

// AnswerOutcome maps an arbiter error to a low-cardinality label.
func AnswerOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, ErrWorkerBusy):
		return "worker_busy"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	default:
		return "error"
	}
}
