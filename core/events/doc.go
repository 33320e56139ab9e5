// Package events defines the messages published to the single-consumer inbox.
//
// Event is a closed sum type: only the types in this package implement it,
// so a type switch over the variants below is exhaustive.
//   - PlanComputed: a charge plan was solved and compiled
//   - ScheduleApplied: a compiled schedule was pushed to the device
//   - BoostApplied / BoostCancelled: the one-shot boost schedule changed
//   - LifecycleChanged: a schedule lifecycle moved between states
//   - RequestFailed: a compute, apply, boost or clear request failed
//   - TelemetryUpdated: a new device snapshot was polled
package events
