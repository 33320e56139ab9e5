package metrics

import "errors"

// MultiSink fans records out to several sinks. Every sink is called even
// when an earlier one fails; the errors are joined.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordPlan(ev PlanEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		errs = append(errs, s.RecordPlan(ev))
	}
	return errors.Join(errs...)
}

// RecordTransition forwards to the sinks that record transitions.
func (m *MultiSink) RecordTransition(ev TransitionEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(TransitionRecorder); ok {
			errs = append(errs, r.RecordTransition(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordTelemetry forwards to the sinks that record telemetry.
func (m *MultiSink) RecordTelemetry(ev TelemetryEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(TelemetryRecorder); ok {
			errs = append(errs, r.RecordTelemetry(ev))
		}
	}
	return errors.Join(errs...)
}

// RecordFailure forwards to the sinks that record failures.
func (m *MultiSink) RecordFailure(ev FailureEvent) error {
	var errs []error
	for _, s := range m.Sinks {
		if r, ok := s.(FailureRecorder); ok {
			errs = append(errs, r.RecordFailure(ev))
		}
	}
	return errors.Join(errs...)
}

// Close closes the sinks that hold resources.
func (m *MultiSink) Close() {
	for _, s := range m.Sinks {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}
