package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerFields(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	var buf bytes.Buffer
	l := newZerolog(&buf, map[string]string{"component": "scheduler"}).With("device", "car")
	l.Debugw("plan computed", map[string]any{"seq": 3, "minutes": 60})

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scheduler", line["component"])
	assert.Equal(t, "car", line["device"])
	assert.Equal(t, "plan computed", line["message"])
	assert.Equal(t, float64(3), line["seq"])
	assert.Equal(t, "debug", line["level"])
}

func TestZerologLoggerLevels(t *testing.T) {
	defer func() { _ = SetLevel("debug") }()
	var buf bytes.Buffer
	l := newZerolog(&buf, nil)
	require.NoError(t, SetLevel("warn"))
	l.Infof("tick %d", 1)
	assert.Zero(t, buf.Len())
	l.Warnf("clear of slot %d failed", 11)
	assert.Contains(t, buf.String(), "clear of slot 11 failed")
}

func TestNewInDevMode(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := ForDevice("poller", "tank")
	l.Infof("poll in %s", "10s")
	l.Errorf("poll failed")
}

func TestSetLevel(t *testing.T) {
	defer func() { _ = SetLevel("debug") }()
	assert.NoError(t, SetLevel("warn"))
	assert.NoError(t, SetLevel(""))
	assert.Error(t, SetLevel("loud"))
}
