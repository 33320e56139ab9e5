// Package history keeps an append-only log of what the scheduler did: plans
// computed, schedules applied, boosts, lifecycle transitions and failures.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/energysched/core/events"
	"github.com/kilianp07/energysched/core/lifecycle"
	"github.com/kilianp07/energysched/core/model"
)

// Record kinds.
const (
	KindPlan           = "plan"
	KindApplied        = "applied"
	KindBoost          = "boost"
	KindBoostCancelled = "boost_cancelled"
	KindTransition     = "transition"
	KindFailure        = "failure"
)

// Record captures one scheduler outcome.
type Record struct {
	Timestamp  time.Time             `json:"timestamp"`
	Device     string                `json:"device"`
	Kind       string                `json:"kind"`
	Seq        uint64                `json:"seq,omitempty"`
	Minutes    int                   `json:"minutes,omitempty"`
	Cost       float64               `json:"cost,omitempty"`
	Slots      []model.CompiledSlot  `json:"slots,omitempty"`
	ClearsAt   *time.Time            `json:"clears_at,omitempty"`
	Transition *lifecycle.Transition `json:"transition,omitempty"`
	Op         string                `json:"op,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// Query defines filters for retrieving records. Zero fields match anything.
type Query struct {
	Start  time.Time
	End    time.Time
	Device string
	Kind   string
}

// Match reports whether r passes the filters.
func (q Query) Match(r Record) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Device != "" && r.Device != q.Device {
		return false
	}
	return q.Kind == "" || r.Kind == q.Kind
}

// Store persists Records and supports querying.
type Store interface {
	Append(ctx context.Context, rec Record) error
	Query(ctx context.Context, q Query) ([]Record, error)
	Close() error
}

// FromEvent converts an event into a record. Telemetry snapshots and
// telemetry failures are not recorded.
func FromEvent(ev events.Event, now time.Time) (Record, bool) {
	r := Record{Timestamp: now, Device: ev.DeviceName()}
	switch e := ev.(type) {
	case events.PlanComputed:
		r.Kind, r.Seq = KindPlan, e.Seq
		r.Minutes, r.Cost = e.Plan.TotalMinutes, e.Plan.TotalCost
		r.Slots = e.Compiled
	case events.ScheduleApplied:
		r.Kind, r.Seq, r.Slots = KindApplied, e.Seq, e.Slots
		r.ClearsAt = timePtr(e.ClearsAt)
	case events.BoostApplied:
		r.Kind, r.Seq, r.Slots = KindBoost, e.Seq, []model.CompiledSlot{e.Slot}
		r.Minutes = int(e.Slot.Duration / time.Minute)
		r.ClearsAt = timePtr(e.ClearsAt)
	case events.BoostCancelled:
		r.Kind, r.Seq = KindBoostCancelled, e.Seq
	case events.LifecycleChanged:
		tr := e.Transition
		r.Kind, r.Transition = KindTransition, &tr
	case events.RequestFailed:
		if e.Op == events.OpTelemetry {
			return Record{}, false
		}
		r.Kind, r.Seq, r.Op = KindFailure, e.Seq, e.Op
		if e.Err != nil {
			r.Error = e.Err.Error()
		}
	default:
		return Record{}, false
	}
	return r, true
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Config selects the history backend.
type Config struct {
	// Backend is "none", "jsonl" or "sqlite".
	Backend string `json:"backend"`
	Path    string `json:"path"`
	// MaxSizeMB enables rotation of the jsonl file when positive.
	// MaxAgeDays bounds backup age for jsonl and prunes sqlite rows on open.
	MaxSizeMB  int `json:"max_size_mb"`
	MaxBackups int `json:"max_backups"`
	MaxAgeDays int `json:"max_age_days"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "jsonl"
	}
	if c.Path == "" {
		switch c.Backend {
		case "jsonl":
			c.Path = "energysched_history.jsonl"
		case "sqlite":
			c.Path = "energysched_history.db"
		}
	}
	if c.Backend == "jsonl" && c.MaxSizeMB == 0 {
		c.MaxSizeMB, c.MaxBackups, c.MaxAgeDays = 10, 3, 90
	}
}

// Validate checks the backend name.
func (c Config) Validate() error {
	switch c.Backend {
	case "none", "jsonl", "sqlite":
		return nil
	}
	return fmt.Errorf("history: unknown backend %q", c.Backend)
}

// Open creates the configured store. It returns nil for the "none" backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "none":
		return nil, nil
	case "sqlite":
		st, err := NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		if cfg.MaxAgeDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -cfg.MaxAgeDays)
			if _, err := st.Prune(context.Background(), cutoff); err != nil {
				_ = st.Close()
				return nil, fmt.Errorf("prune history: %w", err)
			}
		}
		return st, nil
	case "jsonl":
		if cfg.MaxSizeMB > 0 {
			return NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		}
		return NewJSONLStore(cfg.Path)
	}
	return nil, fmt.Errorf("history: unknown backend %q", cfg.Backend)
}
