// Package lifecycle tracks a schedule pushed to a device until it has run and
// been cleared again.
//
// A lifecycle moves Idle -> Scheduled -> Clearing -> Idle and nothing else.
// The time at which the schedule is cleared is persisted so a restart does not
// leave a finished schedule on the device.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/energysched/core/logger"
	"github.com/kilianp07/energysched/core/store"
)

// DefaultGrace is added to the end of a schedule before it is cleared, to let
// the device cloud finish propagating the commands.
const DefaultGrace = 10 * time.Minute

// Status is the lifecycle state.
type Status int

const (
	Idle Status = iota
	Scheduled
	Clearing
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scheduled:
		return "scheduled"
	case Clearing:
		return "clearing"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status name in JSON payloads.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// State is a snapshot of a lifecycle.
type State struct {
	Status    Status    `json:"status"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
	ClearsAt  time.Time `json:"clears_at,omitempty"`
}

// Transition records one state change.
type Transition struct {
	Name string    `json:"name"`
	From Status    `json:"from"`
	To   Status    `json:"to"`
	At   time.Time `json:"at"`
}

// Func talks to the device. Push and clear callbacks run with the lifecycle
// lock held so they never interleave for the same lifecycle.
type Func func(ctx context.Context) error

// Lifecycle is safe for concurrent use.
type Lifecycle struct {
	mu    sync.Mutex
	name  string
	kv    store.KV
	grace time.Duration
	log   logger.Logger
	state State
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithGrace overrides DefaultGrace.
func WithGrace(d time.Duration) Option {
	return func(l *Lifecycle) {
		if d >= 0 {
			l.grace = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Lifecycle) { l.log = logger.OrNop(log) }
}

// New creates a lifecycle named name and restores a clear time persisted in
// kv under Key(name).
func New(ctx context.Context, name string, kv store.KV, opts ...Option) (*Lifecycle, error) {
	if kv == nil {
		kv = store.NewMemoryStore()
	}
	l := &Lifecycle{name: name, kv: kv, grace: DefaultGrace, log: logger.NopLogger{}}
	for _, o := range opts {
		o(l)
	}
	v, err := kv.Get(ctx, Key(name))
	switch {
	case errors.Is(err, store.ErrNotFound) || (err == nil && v == ""):
		return l, nil
	case err != nil:
		return nil, fmt.Errorf("restore %s: %w", name, err)
	}
	at, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("restore %s: stored clear time %q: %w", name, v, err)
	}
	l.state = State{Status: Scheduled, ClearsAt: at}
	l.log.Infof("%s: restored schedule clearing at %s", name, at.Format(time.RFC3339))
	return l, nil
}

// Key is the store key holding the clear time of a lifecycle.
func Key(name string) string { return name + "_clears_at" }

// Name returns the lifecycle name.
func (l *Lifecycle) Name() string { return l.name }

// Grace returns the delay added after a schedule end.
func (l *Lifecycle) Grace() time.Duration { return l.grace }

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Apply pushes a schedule ending at end. Only a successful push moves the
// lifecycle to Scheduled; re-applying while Scheduled replaces the clear time
// without clearing the device first.
func (l *Lifecycle) Apply(ctx context.Context, now, end time.Time, push Func) ([]Transition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := push(ctx); err != nil {
		return nil, err
	}
	from := l.state.Status
	l.state = State{Status: Scheduled, AppliedAt: now, ClearsAt: end.Add(l.grace)}
	l.persist(ctx, l.state.ClearsAt.UTC().Format(time.RFC3339))
	if from == Scheduled {
		return nil, nil
	}
	return []Transition{{Name: l.name, From: from, To: Scheduled, At: now}}, nil
}

// Tick clears the schedule once now reaches the clear time. The lifecycle
// returns to Idle even when the clear command fails; the error is returned
// for the caller to report.
func (l *Lifecycle) Tick(ctx context.Context, now time.Time, clear Func) ([]Transition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Status != Scheduled || now.Before(l.state.ClearsAt) {
		return nil, nil
	}
	return l.clearLocked(ctx, now, clear)
}

// Cancel clears the device immediately. From Idle the clear command is still
// sent but no transition happens.
func (l *Lifecycle) Cancel(ctx context.Context, now time.Time, clear Func) ([]Transition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.Status != Scheduled {
		return nil, clear(ctx)
	}
	return l.clearLocked(ctx, now, clear)
}

func (l *Lifecycle) clearLocked(ctx context.Context, now time.Time, clear Func) ([]Transition, error) {
	trs := []Transition{{Name: l.name, From: Scheduled, To: Clearing, At: now}}
	l.state.Status = Clearing
	l.persist(ctx, "")
	err := clear(ctx)
	if err != nil {
		l.log.Warnf("%s: clear command failed: %v", l.name, err)
	}
	l.state = State{Status: Idle}
	trs = append(trs, Transition{Name: l.name, From: Clearing, To: Idle, At: now})
	return trs, err
}

func (l *Lifecycle) persist(ctx context.Context, v string) {
	if err := l.kv.Set(ctx, Key(l.name), v); err != nil {
		l.log.Errorf("%s: persist clear time: %v", l.name, err)
	}
}
