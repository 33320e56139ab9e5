// Package monitoring forwards unexpected failures to an error tracker.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/energysched/core/device"
	"github.com/kilianp07/energysched/core/events"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Flush(timeout time.Duration)
}

type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the global monitor implementation.
func Init(m Monitor) {
	if m == nil {
		return
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	get().CaptureException(err, tags)
}

// CapturePanic reports a value obtained from recover. Call it from a
// deferred function:
//
//	defer func() { monitoring.CapturePanic(recover(), "poller") }()
func CapturePanic(v any, component string) {
	if v == nil {
		return
	}
	err, ok := v.(error)
	if !ok {
		err = fmt.Errorf("panic: %v", v)
	}
	get().CaptureException(err, map[string]string{"component": component, "panic": "true"})
}

// Flush flushes buffered events.
func Flush(d time.Duration) {
	get().Flush(d)
}

// ReportFailure forwards a failed request. Busy devices, cancelled requests
// and telemetry reads are expected to fail and are not reported.
func ReportFailure(ev events.RequestFailed) bool {
	if ev.Err == nil || ev.Op == events.OpTelemetry || device.IsBusy(ev.Err) || errors.Is(ev.Err, context.Canceled) {
		return false
	}
	CaptureException(ev.Err, map[string]string{"device": ev.Device, "op": ev.Op})
	return true
}
