// Package scheduler is the caller surface of the charge planner. A Scheduler
// drives one device: it computes plans from a tariff, applies them, clears
// them once they have run and handles one-shot boosts. A Worker runs the
// blocking compute and apply calls off the caller's goroutine, keeping only
// the newest request.
package scheduler
