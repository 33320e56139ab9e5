package myenergi

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/energysched/core/model"
	"github.com/kilianp07/energysched/core/tariff"
)

func TestScheduleCommand(t *testing.T) {
	// Tuesday
	start := time.Date(2025, 3, 11, 0, 30, 0, 0, time.UTC)
	cmd, err := ScheduleCommand(model.KindZappi, "16000001", model.CompiledSlot{SlotID: 11, Start: start, Duration: 3*time.Hour + 15*time.Minute, Days: model.DayOf(start)})
	require.NoError(t, err)
	assert.Equal(t, "cgi-boost-time-Z16000001-11-0030-315-00100000", cmd)

	cmd, err = ScheduleCommand(model.KindEddi, "1234", model.CompiledSlot{SlotID: 24, Start: start.Add(9*time.Hour + 30*time.Minute), Duration: 45 * time.Minute})
	require.NoError(t, err)
	assert.Equal(t, "cgi-boost-time-E1234-24-1000-045-00100000", cmd)

	_, err = ScheduleCommand(model.KindZappi, "1", model.CompiledSlot{SlotID: 21, Start: start, Duration: time.Hour})
	assert.Error(t, err)
	_, err = ScheduleCommand(model.KindZappi, "1", model.CompiledSlot{SlotID: 11, Start: start, Duration: 10 * time.Hour})
	assert.Error(t, err)
}

func TestScheduleCommandUsesLocalClock(t *testing.T) {
	london, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)
	// agile rates are published in UTC
	recs := []tariff.Slot{
		{Start: time.Date(2025, 7, 15, 12, 0, 0, 0, time.UTC), Price: 0.1},
		{Start: time.Date(2025, 7, 15, 12, 30, 0, 0, time.UTC), Price: 0.2},
	}
	s, err := tariff.FromRecords(recs, time.Date(2025, 7, 15, 11, 50, 0, 0, london), time.Time{})
	require.NoError(t, err)
	start := s.Slots()[0].Start
	cmd, err := ScheduleCommand(model.KindZappi, "123", model.CompiledSlot{SlotID: 11, Start: start, Duration: 30 * time.Minute})
	require.NoError(t, err)
	// Tuesday
	assert.Equal(t, "cgi-boost-time-Z123-11-1300-030-00100000", cmd)
}

func TestClearAndModeCommands(t *testing.T) {
	cmd, err := ClearCommand(model.KindEddi, "99", 14)
	require.NoError(t, err)
	assert.Equal(t, "cgi-boost-time-E99-14-0000-000-00000000", cmd)
	_, err = ClearCommand(model.KindZappi, "99", 24)
	assert.Error(t, err)

	cmd, err = ModeCommand("5", model.ChargeModeEcoPlus)
	require.NoError(t, err)
	assert.Equal(t, "cgi-zappi-mode-Z5-3-0-0-0000", cmd)
	_, err = ModeCommand("5", 0)
	assert.Error(t, err)

	assert.Equal(t, "cgi-boost-time-Z5", ScheduleListCommand(model.KindZappi, "5"))
}

func TestResponseStatus(t *testing.T) {
	cases := map[string]int{
		`{"status":0,"statustext":""}`: 0,
		`{"status":-5}`:                -5,
		`[{"eddi":[]}]`:                0,
		`{}`:                           0,
	}
	for in, want := range cases {
		got, err := ResponseStatus([]byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ResponseStatus([]byte(`{"status":"x"}`))
	assert.Error(t, err)
}

const statusPayload = `[
 {"eddi":[{"sno":1234,"tp1":55.5,"tp2":31,"ectp1":2950,"hno":2}]},
 {"zappi":[{"sno":16000001,"zmo":3,"ectp1":7100},{"sno":"other","zmo":1}]},
 {"asn":"s18.myenergi.net","fwv":"3401S3077"}
]`

func TestDecodeStatus(t *testing.T) {
	at := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	tel, err := DecodeStatus([]byte(statusPayload), "1234", "16000001", at)
	require.NoError(t, err)
	require.NotNil(t, tel.Eddi)
	require.NotNil(t, tel.Zappi)
	assert.Equal(t, at, tel.At)
	assert.Equal(t, 55.5, tel.Eddi.TopTankC)
	assert.Equal(t, 31.0, tel.Eddi.BottomTankC)
	assert.True(t, tel.HeaterOn(2))
	assert.Equal(t, model.ChargeModeEcoPlus, tel.Zappi.ChargeMode)
	assert.True(t, tel.Charging())

	tel, err = DecodeStatus([]byte(statusPayload), "", "16000001", at)
	require.NoError(t, err)
	assert.Nil(t, tel.Eddi)

	_, err = DecodeStatus([]byte(statusPayload), "777", "", at)
	assert.Error(t, err)
	_, err = DecodeStatus([]byte(`{"status":-14}`), "1", "", at)
	assert.Error(t, err)
}

func TestDecodeScheduleList(t *testing.T) {
	data := `{"boost_times":[
	 {"bdd":"00100000","bdh":3,"bdm":15,"bsh":0,"bsm":30,"slt":11},
	 {"bdd":"00000000","bdh":0,"bdm":0,"bsh":0,"bsm":0,"slt":12},
	 {"bdd":"01000000","bsh":1,"slt":13}
	]}`
	entries, err := DecodeScheduleList([]byte(data))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, ScheduleEntry{SlotID: 11, Hour: 0, Minute: 30, Duration: 3*time.Hour + 15*time.Minute, Days: model.Tuesday}, entries[0])
	assert.True(t, entries[0].Active())
	assert.False(t, entries[1].Active())

	_, err = DecodeScheduleList([]byte(`{"boost_times":[{"bdd":"0x","bdh":0,"bdm":0,"bsh":0,"bsm":0,"slt":11}]}`))
	assert.Error(t, err)
}
