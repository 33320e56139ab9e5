package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/energysched/core/metrics"
	"github.com/kilianp07/energysched/infra/logger"
)

// InfluxSink writes scheduler events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPlan writes one charge_plan point.
func (s *InfluxSink) RecordPlan(ev coremetrics.PlanEvent) error {
	p := write.NewPointWithMeasurement("charge_plan").
		AddTag("device", ev.Device).
		AddField("required_minutes", ev.RequiredMinutes).
		AddField("allocated_minutes", ev.AllocatedMinutes).
		AddField("dropped_minutes", ev.DroppedMinutes).
		AddField("slots", ev.Slots).
		AddField("compiled_slots", ev.CompiledSlots).
		AddField("cost", round3(ev.Cost)).
		AddField("deadline", ev.Deadline.UTC().Format(time.RFC3339)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordTransition writes one lifecycle_transition point.
func (s *InfluxSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	p := write.NewPointWithMeasurement("lifecycle_transition").
		AddTag("device", ev.Device).
		AddTag("lifecycle", ev.Lifecycle).
		AddField("from", ev.From).
		AddField("to", ev.To).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordTelemetry writes one device_state point with whichever sections the
// snapshot carries.
func (s *InfluxSink) RecordTelemetry(ev coremetrics.TelemetryEvent) error {
	t := ev.Telemetry
	if t.Eddi == nil && t.Zappi == nil {
		return nil
	}
	p := write.NewPointWithMeasurement("device_state").
		AddTag("device", ev.Device)
	if t.Eddi != nil {
		p = p.AddField("top_tank_c", round3(t.Eddi.TopTankC)).
			AddField("bottom_tank_c", round3(t.Eddi.BottomTankC)).
			AddField("heater_watts", round3(t.Eddi.HeaterWatts)).
			AddField("active_relay", t.Eddi.ActiveRelay)
	}
	if t.Zappi != nil {
		p = p.AddField("charge_mode", t.Zappi.ChargeMode).
			AddField("charge_watts", round3(t.Zappi.ChargeWatts))
	}
	return s.write(p.SetTime(t.At))
}

// RecordFailure writes one request_failed point.
func (s *InfluxSink) RecordFailure(ev coremetrics.FailureEvent) error {
	p := write.NewPointWithMeasurement("request_failed").
		AddTag("device", ev.Device).
		AddTag("op", ev.Op).
		AddTag("busy", strconv.FormatBool(ev.Busy)).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.write(p)
}

// Close flushes and closes the client.
func (s *InfluxSink) Close() {
	s.client.Close()
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
