package main

import (
	"context"
	"math/rand"
	"time"

	"github.com/kilianp07/energysched/core/device"
)

// AckStrategy decides how the hub answers a command.
type AckStrategy interface {
	// Ack waits as long as the strategy wants and reports whether the
	// command is answered at all and with which forced status.
	Ack(ctx context.Context) (send bool, status int)
}

// AutoAck answers every command after an optional fixed delay.
type AutoAck struct {
	Delay time.Duration
}

// Ack implements AckStrategy.
func (a AutoAck) Ack(ctx context.Context) (bool, int) {
	return wait(ctx, a.Delay), 0
}

// RandomAck drops acknowledgments with DropRate, answers busy with BusyRate
// and waits Delay before sending.
type RandomAck struct {
	Delay    time.Duration
	DropRate float64
	BusyRate float64
	Rand     *rand.Rand
}

// Ack implements AckStrategy.
func (r RandomAck) Ack(ctx context.Context) (bool, int) {
	if r.DropRate > 0 && r.Rand.Float64() < r.DropRate {
		return false, 0
	}
	if !wait(ctx, r.Delay) {
		return false, 0
	}
	if r.BusyRate > 0 && r.Rand.Float64() < r.BusyRate {
		return true, device.StatusBusy
	}
	return true, 0
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
