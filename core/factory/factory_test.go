package factory

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flusher struct {
	URL      string
	Interval time.Duration
}

func flusherRegistry(t *testing.T) *Registry[*flusher] {
	t.Helper()
	reg := NewRegistry[*flusher]()
	err := reg.Register("influx", func(conf map[string]any) (*flusher, error) {
		var c struct {
			URL      string        `json:"url"`
			Interval time.Duration `json:"interval"`
		}
		if err := Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.URL == "" {
			return nil, errors.New("url is required")
		}
		return &flusher{URL: c.URL, Interval: c.Interval}, nil
	})
	require.NoError(t, err)
	return reg
}

func TestRegistryCreate(t *testing.T) {
	reg := flusherRegistry(t)
	f, err := reg.Create(ModuleConfig{Type: "influx", Conf: map[string]any{"url": "http://influx:8086", "interval": "10s"}})
	require.NoError(t, err)
	assert.Equal(t, &flusher{URL: "http://influx:8086", Interval: 10 * time.Second}, f)

	_, err = reg.Create(ModuleConfig{Type: "influx"})
	if err == nil || err.Error() != "influx: url is required" {
		t.Fatalf("expected factory error with type prefix, got %v", err)
	}
}

func TestRegistryErrors(t *testing.T) {
	reg := flusherRegistry(t)
	assert.Error(t, reg.Register("influx", func(map[string]any) (*flusher, error) { return nil, nil }))
	assert.Error(t, reg.Register("statsd", nil))
	assert.Error(t, reg.Register("", func(map[string]any) (*flusher, error) { return nil, nil }))

	_, err := reg.Create(ModuleConfig{Type: "graphite"})
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected unknown type, got %v", err)
	}
	assert.Contains(t, err.Error(), "known: influx")
}

func TestDecodeRejectsUnknownKeys(t *testing.T) {
	var c struct {
		Bucket string `json:"bucket"`
	}
	if err := Decode(map[string]any{"bukket": "energy"}, &c); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestDecodeWeakTypes(t *testing.T) {
	var c struct {
		Timeout time.Duration `json:"timeout"`
		Port    int           `json:"port"`
		Tags    []string      `json:"tags"`
	}
	require.NoError(t, Decode(map[string]any{"timeout": "5s", "port": "9090", "tags": "car,tank"}, &c))
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, 9090, c.Port)
	assert.Equal(t, []string{"car", "tank"}, c.Tags)
}

func TestRegistryTypesSorted(t *testing.T) {
	reg := NewRegistry[int]()
	for _, n := range []string{"prometheus", "influx", "nop"} {
		require.NoError(t, reg.Register(n, func(map[string]any) (int, error) { return 0, nil }))
	}
	assert.Equal(t, []string{"influx", "nop", "prometheus"}, reg.Types())
}
