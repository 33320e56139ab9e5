package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/energysched/core/metrics"
)

// PromSink records scheduler activity in Prometheus metrics. The /metrics
// endpoint is served separately.
type PromSink struct {
	plans       *prometheus.CounterVec
	planCost    *prometheus.GaugeVec
	planMinutes *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
	tankTemp    *prometheus.GaugeVec
	power       *prometheus.GaugeVec
}

// NewPromSink registers scheduler metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Metrics
// already registered by an earlier sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.plans, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "energysched_plans_total",
		Help: "Number of charge plans computed",
	}, []string{"device"})); err != nil {
		return nil, err
	}
	if s.planCost, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "energysched_plan_cost",
		Help: "Estimated cost of the latest plan in currency units",
	}, []string{"device"})); err != nil {
		return nil, err
	}
	if s.planMinutes, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "energysched_plan_minutes",
		Help: "Minutes of the latest plan by kind",
	}, []string{"device", "kind"})); err != nil {
		return nil, err
	}
	if s.transitions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "energysched_lifecycle_transitions_total",
		Help: "Schedule lifecycle transitions",
	}, []string{"device", "lifecycle", "to"})); err != nil {
		return nil, err
	}
	if s.failures, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "energysched_request_failures_total",
		Help: "Failed requests by operation",
	}, []string{"device", "op", "busy"})); err != nil {
		return nil, err
	}
	if s.tankTemp, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "energysched_tank_temperature_celsius",
		Help: "Hot water tank temperature reported by the eddi",
	}, []string{"device", "sensor"})); err != nil {
		return nil, err
	}
	if s.power, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "energysched_device_power_watts",
		Help: "Power drawn by the heater or charger",
	}, []string{"device"})); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PromSink) RecordPlan(ev coremetrics.PlanEvent) error {
	s.plans.WithLabelValues(ev.Device).Inc()
	s.planCost.WithLabelValues(ev.Device).Set(ev.Cost)
	s.planMinutes.WithLabelValues(ev.Device, "required").Set(float64(ev.RequiredMinutes))
	s.planMinutes.WithLabelValues(ev.Device, "allocated").Set(float64(ev.AllocatedMinutes))
	s.planMinutes.WithLabelValues(ev.Device, "dropped").Set(float64(ev.DroppedMinutes))
	return nil
}

func (s *PromSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	s.transitions.WithLabelValues(ev.Device, ev.Lifecycle, ev.To).Inc()
	return nil
}

func (s *PromSink) RecordFailure(ev coremetrics.FailureEvent) error {
	s.failures.WithLabelValues(ev.Device, ev.Op, strconv.FormatBool(ev.Busy)).Inc()
	return nil
}

func (s *PromSink) RecordTelemetry(ev coremetrics.TelemetryEvent) error {
	t := ev.Telemetry
	if t.Eddi != nil {
		s.tankTemp.WithLabelValues(ev.Device, "top").Set(t.Eddi.TopTankC)
		s.tankTemp.WithLabelValues(ev.Device, "bottom").Set(t.Eddi.BottomTankC)
		s.power.WithLabelValues(ev.Device).Set(t.Eddi.HeaterWatts)
	}
	if t.Zappi != nil {
		s.power.WithLabelValues(ev.Device).Set(t.Zappi.ChargeWatts)
	}
	return nil
}
