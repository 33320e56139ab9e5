// Package device defines the collaborators the scheduler drives: the device
// cloud client and the remote price provider.
package device

import (
	"context"
	"errors"

	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/core/tariff"
)

// ErrModeUnsupported is returned when a client cannot change charge modes.
var ErrModeUnsupported = errors.New("charge mode control not supported")

// Client programs and reads one device.
type Client interface {
	// Push writes compiled schedule slots to the device.
	Push(ctx context.Context, slots []model.CompiledSlot) error
	// Clear switches the given schedule slots off.
	Clear(ctx context.Context, slotIDs []int) error
	// ReadTelemetry returns a fresh snapshot of the device state.
	ReadTelemetry(ctx context.Context) (model.Telemetry, error)
}

// ModeSetter is implemented by clients that can change the zappi charge mode.
type ModeSetter interface {
	SetChargeMode(ctx context.Context, mode int) error
}

// SetChargeMode changes the charge mode when c supports it and returns
// ErrModeUnsupported otherwise.
func SetChargeMode(ctx context.Context, c Client, mode int) error {
	ms, ok := c.(ModeSetter)
	if !ok {
		return ErrModeUnsupported
	}
	return ms.SetChargeMode(ctx, mode)
}

// PriceProvider fetches half-hourly unit prices for a region.
type PriceProvider interface {
	Fetch(ctx context.Context, region string) ([]tariff.Slot, error)
}
