package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/events"
	"github.com/kilianp07/energysched/core/model"
)

func TestBackoffGrowsAndResets(t *testing.T) {
	p := NewPoller("eddi", device.NewMockClient(), DefaultConfig(), nil, nil)
	want := []time.Duration{10 * time.Second, 12 * time.Second, 14400 * time.Millisecond}
	for i, w := range want {
		if got := p.Next(); got != w {
			t.Fatalf("poll %d: got %s want %s", i, got, w)
		}
	}
	var last time.Duration
	for i := 0; i < 30; i++ {
		last = p.Next()
	}
	assert.Equal(t, time.Minute, last)
	p.Reset()
	assert.Equal(t, 10*time.Second, p.Next())
}

func TestConfigDefaults(t *testing.T) {
	p := NewPoller("z", device.NewMockClient(), Config{}, nil, nil)
	assert.Equal(t, 10*time.Second, p.Next())
}

func TestPollMergesAndPublishes(t *testing.T) {
	m := device.NewMockClient()
	var mu sync.Mutex
	var got []events.Event
	p := NewPoller("home", m, DefaultConfig(), func(e events.Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	}, nil)
	ts := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)

	m.Telemetry = model.Telemetry{At: ts, Eddi: &model.EddiStatus{TopTankC: 55, ActiveRelay: 1}}
	p.Poll(context.Background())
	m.Telemetry = model.Telemetry{At: ts.Add(time.Minute), Zappi: &model.ZappiStatus{ChargeMode: 3, ChargeWatts: 7000}}
	p.Poll(context.Background())
	m.Errs = []error{errors.New("cloud down")}
	p.Poll(context.Background())

	latest := p.Latest()
	require.NotNil(t, latest.Eddi)
	require.NotNil(t, latest.Zappi)
	assert.Equal(t, 55.0, latest.Eddi.TopTankC)
	assert.True(t, latest.Charging())
	assert.Equal(t, ts.Add(time.Minute), latest.At)

	require.Len(t, got, 3)
	_, ok := got[1].(events.TelemetryUpdated)
	assert.True(t, ok)
	fail, ok := got[2].(events.RequestFailed)
	require.True(t, ok)
	assert.Equal(t, "telemetry", fail.Op)
}

func TestMergeDoesNotAlias(t *testing.T) {
	prev := model.Telemetry{Eddi: &model.EddiStatus{TopTankC: 40}}
	out := Merge(prev, model.Telemetry{})
	out.Eddi.TopTankC = 80
	assert.Equal(t, 40.0, prev.Eddi.TopTankC)
	assert.Nil(t, out.Zappi)
}

func TestRunStopsOnCancel(t *testing.T) {
	m := device.NewMockClient()
	p := NewPoller("z", m, Config{Min: time.Hour, Max: time.Hour, Factor: 1.2}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	p.Reset()
	deadline := time.After(2 * time.Second)
	for {
		calls, _, _ := m.Snapshot()
		if len(calls) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("reset did not trigger a poll, calls=%v", calls)
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("poller did not stop")
	}
}
