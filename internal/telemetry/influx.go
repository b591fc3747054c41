// Package telemetry exports metrics snapshots to InfluxDB as a
// time-series, independent of the Postgres row persistence.Store writes.
// A write here failing never affects scheduling; it is fire-and-forget
// observability plumbing.
package telemetry

import (
	"context"
	"log"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/paintshop/scheduler/internal/metrics"
)

// Exporter writes point-in-time metrics snapshots to an InfluxDB bucket.
type Exporter struct {
	client influxdb2.Client
	write  api.WriteAPI
	org    string
	bucket string
}

// Config holds InfluxDB connection settings.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// New creates an Exporter with a non-blocking write API; points are
// batched and flushed by the underlying client on its own schedule.
func New(cfg Config) *Exporter {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Exporter{
		client: client,
		write:  client.WriteAPI(cfg.Org, cfg.Bucket),
		org:    cfg.Org,
		bucket: cfg.Bucket,
	}
}

// Write records one metrics snapshot as a line-protocol point tagged by
// tick. Errors surfaced on the WriteAPI's error channel are logged by a
// background goroutine started in New's caller via Errors().
func (e *Exporter) Write(ctx context.Context, snap metrics.Snapshot) {
	point := influxdb2.NewPoint(
		"paintshop_metrics",
		map[string]string{
			"last_painted_color": string(snap.LastPaintedColor),
		},
		map[string]interface{}{
			"vehicles_processed":     snap.VehiclesProcessed,
			"total_changeovers":      snap.TotalChangeovers,
			"o2_stoppage_events":     snap.O2StoppageEvents,
			"overflow_events":        snap.OverflowEvents,
			"buffer_overflow_events": snap.BufferOverflowEvents,
			"throughput":             snap.Throughput,
			"efficiency_percent":     snap.EfficiencyPercent,
			"total_lost_time_seconds": snap.TotalLostTimeSeconds,
			"oven1_occupancy":        snap.Oven1Occupancy,
			"oven2_occupancy":        snap.Oven2Occupancy,
			"tick":                   snap.CurrentTick,
		},
		time.Now(),
	)
	e.write.WritePoint(point)
}

// Errors returns the WriteAPI's async error channel. Callers should drain
// it in a background goroutine for the lifetime of the Exporter.
func (e *Exporter) Errors() <-chan error {
	return e.write.Errors()
}

// LogErrors drains Errors() until ctx is cancelled, logging each one.
func (e *Exporter) LogErrors(ctx context.Context) {
	errs := e.Errors()
	for {
		select {
		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Printf("telemetry: influx write error: %v", err)
		case <-ctx.Done():
			return
		}
	}
}

// Close flushes pending points and releases the client.
func (e *Exporter) Close() {
	e.write.Flush()
	e.client.Close()
}
