// Package metrics defines the sinks that record scheduler activity: computed
// plans, lifecycle transitions, device telemetry and failed requests. Sinks
// such as PromSink and InfluxSink live in infra/metrics and can be combined
// with NewMultiSink. The factory helpers return a MultiSink automatically
// when several sinks are configured, and Observe maps scheduler events onto
// whichever recorders a sink implements.
package metrics
