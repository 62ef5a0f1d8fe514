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

	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/infra/logger"
)

// InfluxSink writes simulation records to an InfluxDB instance using the
// official client.
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

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
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

// RecordVehicleState writes a truck snapshot.
func (s *InfluxSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	p := write.NewPointWithMeasurement("vehicle_state").
		AddTag("truck_id", ev.TruckID).
		AddTag("fleet_id", ev.FleetID).
		AddTag("status", ev.Status)
	if ev.ExperimentID != "" {
		p = p.AddTag("experiment_id", ev.ExperimentID)
	}
	p = p.AddField("lat", ev.Position.Lat).
		AddField("lon", ev.Position.Lon).
		AddField("distance_m", round3(ev.DistanceMeters)).
		AddField("co2_kg", round3(ev.CO2Kg)).
		AddField("cargo", ev.Cargo).
		AddField("queue", ev.Queue).
		AddField("delivered", ev.Delivered)
	for _, c := range ev.Compartments {
		p = p.AddField("fill_"+strconv.Itoa(c.Index), round3(c.Ratio()))
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordBooking writes a booking status transition.
func (s *InfluxSink) RecordBooking(ev coremetrics.BookingEvent) error {
	p := write.NewPointWithMeasurement("booking_status").
		AddTag("status", ev.Status)
	if ev.TruckID != "" {
		p = p.AddTag("truck_id", ev.TruckID)
	}
	if ev.ExperimentID != "" {
		p = p.AddTag("experiment_id", ev.ExperimentID)
	}
	p = p.AddField("booking_id", ev.BookingID).SetTime(ev.Time)
	return s.write(p)
}

// RecordPlan writes a computed truck plan.
func (s *InfluxSink) RecordPlan(ev coremetrics.PlanEvent) error {
	p := write.NewPointWithMeasurement("truck_plan").
		AddTag("truck_id", ev.TruckID).
		AddTag("fleet_id", ev.FleetID).
		AddTag("replayed", strconv.FormatBool(ev.Replayed)).
		AddField("steps", ev.Steps).
		AddField("bookings", ev.Bookings).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDispatchError writes a planning failure.
func (s *InfluxSink) RecordDispatchError(ev coremetrics.DispatchErrorEvent) error {
	p := write.NewPointWithMeasurement("dispatch_error").
		AddTag("fleet_id", ev.FleetID)
	if ev.TruckID != "" {
		p = p.AddTag("truck_id", ev.TruckID)
	}
	p = p.AddField("message", ev.Message).SetTime(ev.Time)
	return s.write(p)
}

// RecordPartitions writes the outcome of a clustering run.
func (s *InfluxSink) RecordPartitions(ev coremetrics.PartitionEvent) error {
	p := write.NewPointWithMeasurement("partitions").
		AddField("partitions", ev.Partitions).
		AddField("bookings", ev.Bookings).
		SetTime(ev.Time)
	if ev.TruckID != "" {
		p = p.AddTag("truck_id", ev.TruckID)
	}
	return s.write(p)
}

// Close flushes and closes the client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
