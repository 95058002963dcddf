package metrics

import "errors"

// MultiSink fans records out to several sinks. Every sink is tried; the
// errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordDispatchResult(res []DispatchResult) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordDispatchResult(res))
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordWave(ev WaveEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(WaveRecorder); ok {
			errs = append(errs, r.RecordWave(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordOffer(ev OfferEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(OfferRecorder); ok {
			errs = append(errs, r.RecordOffer(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordAnswer(ev AnswerEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(AnswerRecorder); ok {
			errs = append(errs, r.RecordAnswer(ev))
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordFleetSize(size int) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(FleetSizeRecorder); ok {
			errs = append(errs, r.RecordFleetSize(size))
		}
	}
	return errors.Join(errs...)
}
