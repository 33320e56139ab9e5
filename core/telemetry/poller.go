// Package telemetry polls device state with an adaptive interval.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/events"
	"github.com/kilianp07/energysched/core/logger"
	"github.com/kilianp07/energysched/core/model"
)

// Config sets the polling interval bounds. The interval starts at Min and is
// multiplied by Factor after each poll up to Max.
type Config struct {
	Min    time.Duration `json:"min"`
	Max    time.Duration `json:"max"`
	Factor float64       `json:"factor"`
}

// DefaultConfig polls from every 10 seconds out to every minute.
func DefaultConfig() Config {
	return Config{Min: 10 * time.Second, Max: time.Minute, Factor: 1.2}
}

// Poller reads telemetry from one device and publishes merged snapshots.
type Poller struct {
	name    string
	client  device.Client
	publish func(events.Event)
	log     logger.Logger
	now     func() time.Time

	mu     sync.Mutex
	bo     *backoff.ExponentialBackOff
	latest model.Telemetry
	wake   chan struct{}
}

// NewPoller builds a poller. publish may be nil.
func NewPoller(name string, client device.Client, cfg Config, publish func(events.Event), log logger.Logger) *Poller {
	def := DefaultConfig()
	if cfg.Min <= 0 {
		cfg.Min = def.Min
	}
	if cfg.Max < cfg.Min {
		cfg.Max = cfg.Min
	}
	if cfg.Factor < 1 {
		cfg.Factor = def.Factor
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.Min
	bo.MaxInterval = cfg.Max
	bo.Multiplier = cfg.Factor
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()
	if publish == nil {
		publish = func(events.Event) {}
	}
	return &Poller{
		name:    name,
		client:  client,
		publish: publish,
		log:     logger.OrNop(log),
		now:     time.Now,
		bo:      bo,
		wake:    make(chan struct{}, 1),
	}
}

// Next returns the wait before the following poll and grows the interval.
func (p *Poller) Next() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bo.NextBackOff()
}

// Reset drops the interval back to the minimum and triggers a poll. Call it
// after any user action whose effect should show up quickly.
func (p *Poller) Reset() {
	p.mu.Lock()
	p.bo.Reset()
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Latest returns the most recent merged snapshot.
func (p *Poller) Latest() model.Telemetry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest
}

// Poll reads the device once and publishes the merged result.
func (p *Poller) Poll(ctx context.Context) {
	t, err := p.client.ReadTelemetry(ctx)
	if err != nil {
		p.log.Warnf("%s: telemetry: %v", p.name, err)
		p.publish(events.RequestFailed{Device: p.name, Op: events.OpTelemetry, Err: err})
		return
	}
	if t.At.IsZero() {
		t.At = p.now()
	}
	p.mu.Lock()
	p.latest = Merge(p.latest, t)
	merged := p.latest
	p.mu.Unlock()
	p.publish(events.TelemetryUpdated{Device: p.name, Telemetry: merged})
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	for {
		p.Poll(ctx)
		timer := time.NewTimer(p.Next())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-p.wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Merge combines two snapshots. Sections missing from next keep their value
// from prev. Neither input is modified.
func Merge(prev, next model.Telemetry) model.Telemetry {
	out := model.Telemetry{At: next.At}
	if out.At.IsZero() {
		out.At = prev.At
	}
	switch {
	case next.Eddi != nil:
		e := *next.Eddi
		out.Eddi = &e
	case prev.Eddi != nil:
		e := *prev.Eddi
		out.Eddi = &e
	}
	switch {
	case next.Zappi != nil:
		z := *next.Zappi
		out.Zappi = &z
	case prev.Zappi != nil:
		z := *prev.Zappi
		out.Zappi = &z
	}
	return out
}
