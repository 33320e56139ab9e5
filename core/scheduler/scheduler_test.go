package scheduler

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/lifecycle"
	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/core/solver"
	"github.com/kilianp07/energysched/core/store"
	"github.com/kilianp07/energysched/core/tariff"
)

// Monday 21:50
var now = time.Date(2025, 3, 10, 21, 50, 0, 0, time.UTC)

var nightTariff = ManualTariff{Breakpoints: []tariff.Breakpoint{
	{At: tariff.Clock{Hour: 0}, Price: 0.30},
	{At: tariff.Clock{Hour: 0, Minute: 30}, Price: 0.07},
	{At: tariff.Clock{Hour: 4, Minute: 30}, Price: 0.30},
}}

func newScheduler(t *testing.T, cfg Config, client device.Client, kv store.KV) *Scheduler {
	t.Helper()
	s, err := New(context.Background(), cfg, client, nightTariff, kv, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	s.now = func() time.Time { return now }
	return s
}

func TestComputeSchedule(t *testing.T) {
	s := newScheduler(t, Config{Kind: model.KindZappi, RateKW: 7}, device.NewMockClient(), nil)
	deadline := time.Date(2025, 3, 11, 7, 0, 0, 0, time.UTC)
	res, err := s.ComputeSchedule(context.Background(), model.ChargeRequest{RequiredMinutes: 180, Deadline: deadline})
	require.NoError(t, err)
	assert.Equal(t, 180, res.Plan.TotalMinutes)
	assert.InDelta(t, 3*7*0.07, res.Plan.TotalCost, 1e-9)
	require.Len(t, res.Compiled, 1)
	assert.Equal(t, 11, res.Compiled[0].SlotID)
	assert.Equal(t, time.Date(2025, 3, 11, 0, 30, 0, 0, time.UTC), res.Compiled[0].Start)
	assert.Equal(t, 3*time.Hour, res.Compiled[0].Duration)
	assert.Equal(t, model.Tuesday, res.Compiled[0].Days)
	assert.InDelta(t, 0.07, res.Tariff.Min, 1e-9)
}

func TestComputeScheduleInfeasible(t *testing.T) {
	s := newScheduler(t, Config{Kind: model.KindZappi, RateKW: 7}, device.NewMockClient(), nil)
	_, err := s.ComputeSchedule(context.Background(), model.ChargeRequest{RequiredMinutes: 600, Deadline: now.Add(3 * time.Hour)})
	if !errors.Is(err, solver.ErrInfeasible) {
		t.Fatalf("expected infeasible, got %v", err)
	}
}

func TestApplyScheduleSwitchesEcoPlus(t *testing.T) {
	m := device.NewMockClient()
	kv := store.NewMemoryStore()
	s := newScheduler(t, Config{Kind: model.KindZappi, RateKW: 7, EcoPlus: true}, m, kv)
	compiled := []model.CompiledSlot{{SlotID: 11, Start: now.Add(40 * time.Minute), Duration: time.Hour}}
	trs, err := s.ApplySchedule(context.Background(), compiled)
	require.NoError(t, err)
	require.Len(t, trs, 1)
	assert.Equal(t, []string{"mode", "push"}, m.Calls)
	assert.Equal(t, []int{model.ChargeModeEcoPlus}, m.Modes)

	st := s.Status()
	assert.Equal(t, lifecycle.Scheduled, st.Charge.Status)
	assert.Equal(t, now.Add(110*time.Minute), st.Charge.ClearsAt)
	assert.Nil(t, st.Boost)

	v, err := kv.Get(context.Background(), lifecycle.Key("zappi_charge"))
	require.NoError(t, err)
	assert.NotEmpty(t, v)
}

func TestApplyScheduleFailure(t *testing.T) {
	m := device.NewMockClient()
	m.Errs = []error{&device.CommandError{Op: "push", Status: 3}}
	s := newScheduler(t, Config{Kind: model.KindZappi, RateKW: 7}, m, nil)
	_, err := s.ApplySchedule(context.Background(), []model.CompiledSlot{{SlotID: 11, Start: now, Duration: time.Hour}})
	if !errors.Is(err, device.ErrCommand) {
		t.Fatalf("expected command error, got %v", err)
	}
	assert.Equal(t, lifecycle.Idle, s.Status().Charge.Status)
	if _, err := s.ApplySchedule(context.Background(), nil); err == nil {
		t.Fatalf("expected error for empty schedule")
	}
}

func TestTickClearsChargeSlots(t *testing.T) {
	m := device.NewMockClient()
	s := newScheduler(t, Config{Kind: model.KindEddi, Relay: 2, RateKW: 3}, m, nil)
	_, err := s.ApplySchedule(context.Background(), []model.CompiledSlot{{SlotID: 21, Start: now, Duration: time.Hour}})
	require.NoError(t, err)

	trs, err := s.Tick(context.Background(), now.Add(69*time.Minute))
	require.NoError(t, err)
	assert.Empty(t, trs)
	trs, err = s.Tick(context.Background(), now.Add(70*time.Minute))
	require.NoError(t, err)
	assert.Len(t, trs, 2)
	assert.Equal(t, [][]int{{21, 22, 23}}, m.Cleared)
}

func TestBoostLifecycle(t *testing.T) {
	m := device.NewMockClient()
	s := newScheduler(t, Config{Kind: model.KindEddi, RateKW: 3}, m, nil)
	at := func(h, min int) time.Time { return time.Date(2025, 3, 10, h, min, 0, 0, time.UTC) }

	slot, trs, err := s.RequestBoost(context.Background(), at(10, 7), at(11, 0), 1)
	require.NoError(t, err)
	assert.Len(t, trs, 1)
	assert.Equal(t, 14, slot.SlotID)
	assert.Equal(t, at(10, 0), slot.Start)
	assert.Equal(t, time.Hour, slot.Duration)
	require.NotNil(t, s.Status().Boost)
	assert.Equal(t, at(11, 10), s.Status().Boost.ClearsAt)
	assert.Equal(t, lifecycle.Idle, s.Status().Charge.Status, "boost does not touch the charge lifecycle")

	trs, err = s.CancelBoost(context.Background(), at(10, 20))
	require.NoError(t, err)
	assert.Len(t, trs, 2)
	assert.Equal(t, [][]int{{14, 24}}, m.Cleared)
	assert.Equal(t, lifecycle.Idle, s.Status().Boost.Status)
}

func TestBoostUnsupportedOnZappi(t *testing.T) {
	s := newScheduler(t, Config{Kind: model.KindZappi, RateKW: 7}, device.NewMockClient(), nil)
	if _, _, err := s.RequestBoost(context.Background(), now, now.Add(time.Hour), 1); !errors.Is(err, ErrBoostUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
	if _, err := s.CancelBoost(context.Background(), now); !errors.Is(err, ErrBoostUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}

func TestRestoreAcrossRestart(t *testing.T) {
	kv := store.NewMemoryStore()
	m := device.NewMockClient()
	s := newScheduler(t, Config{Kind: model.KindZappi, RateKW: 7}, m, kv)
	_, err := s.ApplySchedule(context.Background(), []model.CompiledSlot{{SlotID: 11, Start: now, Duration: time.Hour}})
	require.NoError(t, err)

	restarted := newScheduler(t, Config{Kind: model.KindZappi, RateKW: 7}, m, kv)
	assert.Equal(t, lifecycle.Scheduled, restarted.Status().Charge.Status)
	trs, err := restarted.Tick(context.Background(), now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, trs, 2)
}

func TestNewRejectsBadDevice(t *testing.T) {
	if _, err := New(context.Background(), Config{Kind: "harvi"}, device.NewMockClient(), nightTariff, nil, nil); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if _, err := New(context.Background(), Config{Kind: model.KindEddi, Relay: 3}, device.NewMockClient(), nightTariff, nil, nil); err == nil {
		t.Fatalf("expected error for relay 3")
	}
}

type fakeProvider struct {
	slots []tariff.Slot
	err   error
}

func (f fakeProvider) Fetch(context.Context, string) ([]tariff.Slot, error) { return f.slots, f.err }

func TestRemoteTariff(t *testing.T) {
	start := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)
	var recs []tariff.Slot
	for i, p := range []float64{0.2, -0.01, 0.1} {
		s := start.Add(time.Duration(i) * tariff.SlotDuration)
		recs = append(recs, tariff.Slot{Start: s, End: s.Add(tariff.SlotDuration), Price: p})
	}
	src := RemoteTariff{Provider: fakeProvider{slots: recs}, Region: "C",
		Free: &tariff.FreeWindow{Start: tariff.Clock{Hour: 23}, Duration: 30 * time.Minute}}
	s, err := src.Series(context.Background(), now, time.Time{})
	require.NoError(t, err)
	var prices []float64
	for _, sl := range s.Slots() {
		prices = append(prices, sl.Price)
	}
	assert.Equal(t, []float64{0.2, -0.01, 0}, prices)

	_, err = RemoteTariff{Provider: fakeProvider{err: errors.New("503")}, Region: "C"}.Series(context.Background(), now, time.Time{})
	if !errors.Is(err, tariff.ErrInvalidTariff) {
		t.Fatalf("expected invalid tariff, got %v", err)
	}
}

func TestRequestFile(t *testing.T) {
	rf, err := DecodeRequest(bytes.NewBufferString("required_minutes: 90\ndeadline: \"07:00\"\n"), "yaml")
	require.NoError(t, err)
	req, err := rf.ChargeRequest(now, 7)
	require.NoError(t, err)
	assert.Equal(t, 90, req.RequiredMinutes)
	assert.Equal(t, 7.0, req.RateKW)
	assert.Equal(t, time.Date(2025, 3, 11, 7, 0, 0, 0, time.UTC), req.Deadline)

	path := filepath.Join(t.TempDir(), "req.json")
	data := `{"current_soc":20,"target_soc":80,"battery_kwh":60,"rate_kw":7,"deadline":"2025-03-11T06:00:00Z"}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	rf, err = LoadRequest(path)
	require.NoError(t, err)
	req, err = rf.ChargeRequest(now, 3)
	require.NoError(t, err)
	// 60.99% of 60 kWh at 7 kW is 313.6 minutes
	assert.Equal(t, 300, req.RequiredMinutes)

	if _, err := DecodeRequest(bytes.NewBufferString("{}"), "toml"); err == nil {
		t.Fatalf("expected error for toml")
	}
	if _, err := ParseDeadline("yesterday", now); err == nil {
		t.Fatalf("expected error for bad deadline")
	}
	if _, err := ParseDeadline("2025-03-10T08:00:00Z", now); err == nil {
		t.Fatalf("expected error for past deadline")
	}
	if _, err := (RequestFile{}).ChargeRequest(now, 7); err == nil {
		t.Fatalf("expected error for empty request")
	}
	for _, mins := range []int{10, 20} {
		_, err := (RequestFile{RequiredMinutes: mins}).ChargeRequest(now, 7)
		if !errors.Is(err, model.ErrInvalidRequest) {
			t.Fatalf("%d minutes: expected invalid request, got %v", mins, err)
		}
	}
}
