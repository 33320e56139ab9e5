package mqtt

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/logger"
	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/infra/myenergi"
)

// Executor runs one device API command and returns the raw response.
type Executor interface {
	Exec(ctx context.Context, command string) ([]byte, error)
}

// DefaultClearDelay spaces consecutive clear commands so the hub does not
// report busy.
const DefaultClearDelay = time.Second

// DeviceBridge drives one eddi or zappi through an Executor using the
// myenergi command format.
type DeviceBridge struct {
	exec       Executor
	kind       model.DeviceKind
	serial     string
	clearDelay time.Duration
	log        logger.Logger
	now        func() time.Time
}

// BridgeOption customises a DeviceBridge.
type BridgeOption func(*DeviceBridge)

// WithClearDelay sets the pause between clear commands.
func WithClearDelay(d time.Duration) BridgeOption {
	return func(b *DeviceBridge) { b.clearDelay = d }
}

// WithBridgeLogger sets the bridge logger.
func WithBridgeLogger(l logger.Logger) BridgeOption {
	return func(b *DeviceBridge) { b.log = logger.OrNop(l) }
}

// NewDeviceBridge returns a device.Client for the device with the given serial.
func NewDeviceBridge(exec Executor, kind model.DeviceKind, serial string, opts ...BridgeOption) *DeviceBridge {
	b := &DeviceBridge{
		exec:       exec,
		kind:       kind,
		serial:     serial,
		clearDelay: DefaultClearDelay,
		log:        logger.NopLogger{},
		now:        time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

var _ device.Client = (*DeviceBridge)(nil)
var _ device.ModeSetter = (*DeviceBridge)(nil)

func (b *DeviceBridge) run(ctx context.Context, command string) ([]byte, error) {
	data, err := b.exec.Exec(ctx, command)
	if err != nil {
		var ce *device.CommandError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &device.CommandError{Op: command, Err: err}
	}
	status, err := myenergi.ResponseStatus(data)
	if err != nil {
		return nil, &device.CommandError{Op: command, Err: err}
	}
	if status != 0 {
		return nil, &device.CommandError{Op: command, Status: status}
	}
	return data, nil
}

// Push writes each slot with its own command and stops at the first failure.
func (b *DeviceBridge) Push(ctx context.Context, slots []model.CompiledSlot) error {
	for _, s := range slots {
		cmd, err := myenergi.ScheduleCommand(b.kind, b.serial, s)
		if err != nil {
			return err
		}
		if _, err := b.run(ctx, cmd); err != nil {
			return err
		}
		b.log.Debugw("slot written", map[string]any{"device": b.serial, "slot": s.SlotID, "start": s.Start.Format("15:04"), "duration": s.Duration.String()})
	}
	return nil
}

// Clear switches off each slot, pausing between commands.
func (b *DeviceBridge) Clear(ctx context.Context, slotIDs []int) error {
	for i, id := range slotIDs {
		if i > 0 && b.clearDelay > 0 {
			t := time.NewTimer(b.clearDelay)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		cmd, err := myenergi.ClearCommand(b.kind, b.serial, id)
		if err != nil {
			return err
		}
		if _, err := b.run(ctx, cmd); err != nil {
			return err
		}
	}
	return nil
}

// ReadTelemetry fetches the hub status and extracts this device.
func (b *DeviceBridge) ReadTelemetry(ctx context.Context) (model.Telemetry, error) {
	data, err := b.run(ctx, myenergi.StatusCommand)
	if err != nil {
		return model.Telemetry{}, err
	}
	var eddi, zappi string
	switch b.kind {
	case model.KindEddi:
		eddi = b.serial
	case model.KindZappi:
		zappi = b.serial
	}
	return myenergi.DecodeStatus(data, eddi, zappi, b.now())
}

// SetChargeMode changes the zappi charge mode.
func (b *DeviceBridge) SetChargeMode(ctx context.Context, mode int) error {
	if b.kind != model.KindZappi {
		return device.ErrModeUnsupported
	}
	cmd, err := myenergi.ModeCommand(b.serial, mode)
	if err != nil {
		return err
	}
	_, err = b.run(ctx, cmd)
	return err
}

// Schedules reads back the slots currently programmed on the device.
func (b *DeviceBridge) Schedules(ctx context.Context) ([]myenergi.ScheduleEntry, error) {
	data, err := b.run(ctx, myenergi.ScheduleListCommand(b.kind, b.serial))
	if err != nil {
		return nil, err
	}
	return myenergi.DecodeScheduleList(data)
}
