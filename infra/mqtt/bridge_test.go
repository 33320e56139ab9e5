package mqtt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/model"
)

type fakeExec struct {
	commands  []string
	responses map[string]string
	errs      map[string]error
	at        []time.Time
}

func (f *fakeExec) Exec(_ context.Context, command string) ([]byte, error) {
	f.commands = append(f.commands, command)
	f.at = append(f.at, time.Now())
	if err := f.errs[command]; err != nil {
		return nil, err
	}
	if r, ok := f.responses[command]; ok {
		return []byte(r), nil
	}
	return []byte(`{"status":0}`), nil
}

func TestBridgePushEncodesEachSlot(t *testing.T) {
	fx := &fakeExec{}
	b := NewDeviceBridge(fx, model.KindZappi, "16000001")
	start := time.Date(2025, 3, 11, 0, 30, 0, 0, time.UTC)
	slots := []model.CompiledSlot{
		{SlotID: 11, Start: start, Duration: 90 * time.Minute, Days: model.DayOf(start)},
		{SlotID: 12, Start: start.Add(3 * time.Hour), Duration: 15 * time.Minute, Days: model.DayOf(start)},
	}
	if err := b.Push(context.Background(), slots); err != nil {
		t.Fatalf("push: %v", err)
	}
	want := []string{
		"cgi-boost-time-Z16000001-11-0030-130-00100000",
		"cgi-boost-time-Z16000001-12-0330-015-00100000",
	}
	if len(fx.commands) != len(want) {
		t.Fatalf("expected %d commands, got %v", len(want), fx.commands)
	}
	for i := range want {
		if fx.commands[i] != want[i] {
			t.Fatalf("command %d = %s, want %s", i, fx.commands[i], want[i])
		}
	}
}

func TestBridgeBusyStatus(t *testing.T) {
	fx := &fakeExec{responses: map[string]string{
		"cgi-zappi-mode-Z1-3-0-0-0000": `{"status":-5,"statustext":""}`,
	}}
	b := NewDeviceBridge(fx, model.KindZappi, "1")
	err := b.SetChargeMode(context.Background(), model.ChargeModeEcoPlus)
	if !device.IsBusy(err) {
		t.Fatalf("expected busy, got %v", err)
	}
}

func TestBridgeTransportErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	fx := &fakeExec{errs: map[string]error{"cgi-jstatus-*": boom}}
	b := NewDeviceBridge(fx, model.KindEddi, "1")
	_, err := b.ReadTelemetry(context.Background())
	if !errors.Is(err, device.ErrCommand) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped command error, got %v", err)
	}
}

func TestBridgeClearSpacing(t *testing.T) {
	fx := &fakeExec{}
	b := NewDeviceBridge(fx, model.KindEddi, "2", WithClearDelay(20*time.Millisecond))
	if err := b.Clear(context.Background(), []int{14, 24}); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if fx.commands[0] != "cgi-boost-time-E2-14-0000-000-00000000" || fx.commands[1] != "cgi-boost-time-E2-24-0000-000-00000000" {
		t.Fatalf("unexpected commands %v", fx.commands)
	}
	if gap := fx.at[1].Sub(fx.at[0]); gap < 20*time.Millisecond {
		t.Fatalf("clears not spaced: %s", gap)
	}
}

func TestBridgeClearCancelled(t *testing.T) {
	fx := &fakeExec{}
	b := NewDeviceBridge(fx, model.KindZappi, "2", WithClearDelay(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := b.Clear(ctx, []int{11, 12})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if len(fx.commands) != 1 {
		t.Fatalf("expected one command before cancel, got %d", len(fx.commands))
	}
}

func TestBridgeReadTelemetry(t *testing.T) {
	fx := &fakeExec{responses: map[string]string{
		"cgi-jstatus-*": `[{"eddi":[{"sno":21509692,"tp1":55.5,"tp2":40,"hno":2,"ectp1":3000}]},{"zappi":[]},{"asn":"s18.myenergi.net"}]`,
	}}
	b := NewDeviceBridge(fx, model.KindEddi, "21509692")
	tel, err := b.ReadTelemetry(context.Background())
	if err != nil {
		t.Fatalf("telemetry: %v", err)
	}
	if tel.Eddi == nil || tel.Eddi.TopTankC != 55.5 || tel.Eddi.ActiveRelay != 2 {
		t.Fatalf("unexpected telemetry %+v", tel.Eddi)
	}
	if tel.Zappi != nil {
		t.Fatalf("zappi should be absent")
	}
}

func TestBridgeModeUnsupportedOnEddi(t *testing.T) {
	b := NewDeviceBridge(&fakeExec{}, model.KindEddi, "1")
	if err := b.SetChargeMode(context.Background(), model.ChargeModeEco); !errors.Is(err, device.ErrModeUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestBridgeSchedules(t *testing.T) {
	fx := &fakeExec{responses: map[string]string{
		"cgi-boost-time-Z9": `{"boost_times":[{"bdd":"01111111","bdh":1,"bdm":30,"bsh":0,"bsm":30,"slt":11},{"bdd":"00000000","bdh":0,"bdm":0,"bsh":0,"bsm":0,"slt":12}]}`,
	}}
	b := NewDeviceBridge(fx, model.KindZappi, "9")
	entries, err := b.Schedules(context.Background())
	if err != nil {
		t.Fatalf("schedules: %v", err)
	}
	if len(entries) != 2 || !entries[0].Active() || entries[1].Active() {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[0].Duration != 90*time.Minute {
		t.Fatalf("duration = %s", entries[0].Duration)
	}
}
