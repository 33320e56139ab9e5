package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/core/slots"
)

func at(h, m int) time.Time { return time.Date(2025, 3, 10, h, m, 0, 0, time.UTC) }

func TestAlignBoost(t *testing.T) {
	start, dur, err := AlignBoost(at(10, 7), at(11, 0))
	require.NoError(t, err)
	assert.Equal(t, at(10, 0), start)
	assert.Equal(t, 60*time.Minute, dur)

	l := newLifecycle(t, nil)
	d := &fakeDevice{}
	_, err = l.Apply(context.Background(), at(10, 7), start.Add(dur), d.push)
	require.NoError(t, err)
	assert.Equal(t, at(11, 10), l.State().ClearsAt)
}

func TestAlignBoostLocalClock(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+30*60)
	now := time.Date(2025, 3, 10, 10, 52, 0, 0, loc)
	start, _, err := AlignBoost(now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 3, 10, 10, 45, 0, 0, loc), start)
}

func TestAlignBoostErrors(t *testing.T) {
	if _, _, err := AlignBoost(at(10, 7), at(10, 7)); err == nil {
		t.Fatalf("expected error for off time not after now")
	}
	_, _, err := AlignBoost(at(10, 7), at(20, 30))
	if !errors.Is(err, slots.ErrDurationTooLong) {
		t.Fatalf("expected duration too long, got %v", err)
	}
}

func TestBoostUntil(t *testing.T) {
	off, err := BoostUntil(at(10, 7), 60)
	require.NoError(t, err)
	assert.Equal(t, at(11, 15), off)
	off, err = BoostUntil(at(10, 0), 45)
	require.NoError(t, err)
	assert.Equal(t, at(10, 45), off)
	if _, err := BoostUntil(at(10, 0), 0); err == nil {
		t.Fatalf("expected error for zero minutes")
	}
}

func TestBoostSchedule(t *testing.T) {
	s, err := BoostSchedule(at(10, 7), at(11, 0), 2)
	require.NoError(t, err)
	assert.Equal(t, model.CompiledSlot{SlotID: 24, Start: at(10, 0), Duration: time.Hour, Days: model.Monday}, s)
	if _, err := BoostSchedule(at(10, 7), at(11, 0), 3); err == nil {
		t.Fatalf("expected error for relay 3")
	}
	for _, id := range BoostSlots {
		assert.NotContains(t, slots.EddiRelay1Pool, id)
		assert.NotContains(t, slots.EddiRelay2Pool, id)
	}
}
