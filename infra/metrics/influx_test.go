package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/energysched/core/metrics"
	"github.com/kilianp07/energysched/core/model"
)

type lineServer struct {
	mu     sync.Mutex
	bodies []string
}

func (l *lineServer) handler(w http.ResponseWriter, r *http.Request) {
	data, _ := io.ReadAll(r.Body)
	l.mu.Lock()
	l.bodies = append(l.bodies, strings.TrimSpace(string(data)))
	l.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (l *lineServer) last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.bodies) == 0 {
		return ""
	}
	return l.bodies[len(l.bodies)-1]
}

func TestInfluxSink_RecordPlan(t *testing.T) {
	ls := &lineServer{}
	srv := httptest.NewServer(http.HandlerFunc(ls.handler))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	now := time.Date(2025, 3, 10, 21, 50, 0, 0, time.UTC)
	deadline := time.Date(2025, 3, 11, 7, 0, 0, 0, time.UTC)
	ev := coremetrics.PlanEvent{
		Device:           "zappi",
		RequiredMinutes:  100,
		AllocatedMinutes: 90,
		DroppedMinutes:   10,
		Slots:            3,
		CompiledSlots:    1,
		Cost:             0.52549,
		Deadline:         deadline,
		Time:             now,
	}
	if err := sink.RecordPlan(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("charge_plan").
		AddTag("device", "zappi").
		AddField("required_minutes", 100).
		AddField("allocated_minutes", 90).
		AddField("dropped_minutes", 10).
		AddField("slots", 3).
		AddField("compiled_slots", 1).
		AddField("cost", 0.525).
		AddField("deadline", "2025-03-11T07:00:00Z").
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if ls.last() != expected {
		t.Errorf("unexpected body: %s", ls.last())
	}
}

func TestInfluxSink_RecordTelemetry(t *testing.T) {
	ls := &lineServer{}
	srv := httptest.NewServer(http.HandlerFunc(ls.handler))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	now := time.Date(2025, 3, 10, 22, 0, 0, 0, time.UTC)
	ev := coremetrics.TelemetryEvent{
		Device: "eddi",
		Telemetry: model.Telemetry{At: now, Eddi: &model.EddiStatus{
			TopTankC: 55.5, BottomTankC: 40, HeaterWatts: 3000, ActiveRelay: 1,
		}},
	}
	if err := sink.RecordTelemetry(ev); err != nil {
		t.Fatalf("record error: %v", err)
	}
	p := write.NewPointWithMeasurement("device_state").
		AddTag("device", "eddi").
		AddField("top_tank_c", 55.5).
		AddField("bottom_tank_c", 40.0).
		AddField("heater_watts", 3000.0).
		AddField("active_relay", 1).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	if ls.last() != expected {
		t.Errorf("unexpected body: %s", ls.last())
	}

	// An empty snapshot writes nothing.
	before := len(ls.bodies)
	if err := sink.RecordTelemetry(coremetrics.TelemetryEvent{Device: "eddi"}); err != nil {
		t.Fatalf("record empty: %v", err)
	}
	if len(ls.bodies) != before {
		t.Fatalf("empty snapshot written")
	}
}

func TestInfluxSink_RecordTransitionAndFailure(t *testing.T) {
	ls := &lineServer{}
	srv := httptest.NewServer(http.HandlerFunc(ls.handler))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	now := time.Date(2025, 3, 11, 5, 10, 0, 0, time.UTC)
	if err := sink.RecordTransition(coremetrics.TransitionEvent{Device: "zappi", Lifecycle: "zappi_charge", From: "scheduled", To: "clearing", Time: now}); err != nil {
		t.Fatalf("transition: %v", err)
	}
	if !strings.HasPrefix(ls.last(), "lifecycle_transition,device=zappi,lifecycle=zappi_charge ") {
		t.Fatalf("unexpected transition line: %s", ls.last())
	}
	if err := sink.RecordFailure(coremetrics.FailureEvent{Device: "zappi", Op: "apply", Busy: true, Error: "busy", Time: now}); err != nil {
		t.Fatalf("failure: %v", err)
	}
	if !strings.HasPrefix(ls.last(), "request_failed,busy=true,device=zappi,op=apply ") {
		t.Fatalf("unexpected failure line: %s", ls.last())
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
