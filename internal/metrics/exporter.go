// Package metrics tracks in-process counters and periodically flushes them
// to InfluxDB, independent of the synchronous JSON /metrics endpoint the
// gateway exposes for quick polling.
package metrics

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Counters holds the running totals the exporter flushes.
type Counters struct {
	TicketsAccepted   int64
	TicketsProcessed  int64
	IncidentsCreated  int64
	CircuitOpenEvents int64
	WebhooksFired     int64
}

// Exporter periodically pushes Counters to InfluxDB. A nil client (no
// INFLUXDB_URL configured) disables the background flush but counters
// still increment and remain readable via Snapshot.
type Exporter struct {
	counters Counters
	client   influxdb2.Client
	org      string
	bucket   string
	interval time.Duration
}

// New builds an Exporter. Pass an empty url to disable remote export.
func New(url, token, org, bucket string, interval time.Duration) *Exporter {
	e := &Exporter{org: org, bucket: bucket, interval: interval}
	if url != "" {
		e.client = influxdb2.NewClient(url, token)
	}
	return e
}

func (e *Exporter) IncTicketsAccepted()  { atomic.AddInt64(&e.counters.TicketsAccepted, 1) }
func (e *Exporter) IncTicketsProcessed() { atomic.AddInt64(&e.counters.TicketsProcessed, 1) }
func (e *Exporter) IncIncidentsCreated() { atomic.AddInt64(&e.counters.IncidentsCreated, 1) }
func (e *Exporter) IncCircuitOpenEvents() {
	atomic.AddInt64(&e.counters.CircuitOpenEvents, 1)
}
func (e *Exporter) IncWebhooksFired() { atomic.AddInt64(&e.counters.WebhooksFired, 1) }

// Snapshot returns the current counter values for the synchronous
// /metrics JSON endpoint.
func (e *Exporter) Snapshot() Counters {
	return Counters{
		TicketsAccepted:   atomic.LoadInt64(&e.counters.TicketsAccepted),
		TicketsProcessed:  atomic.LoadInt64(&e.counters.TicketsProcessed),
		IncidentsCreated:  atomic.LoadInt64(&e.counters.IncidentsCreated),
		CircuitOpenEvents: atomic.LoadInt64(&e.counters.CircuitOpenEvents),
		WebhooksFired:     atomic.LoadInt64(&e.counters.WebhooksFired),
	}
}

// Run flushes counters to InfluxDB on a ticker until ctx is canceled.
// No-op if the exporter was built without an InfluxDB URL.
func (e *Exporter) Run(ctx context.Context) {
	if e.client == nil {
		return
	}
	defer e.client.Close()

	writeAPI := e.client.WriteAPIBlocking(e.org, e.bucket)
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := e.Snapshot()
			point := write.NewPoint(
				"ticketbroker",
				map[string]string{"service": "ticketbroker"},
				map[string]interface{}{
					"tickets_accepted":    snap.TicketsAccepted,
					"tickets_processed":   snap.TicketsProcessed,
					"incidents_created":   snap.IncidentsCreated,
					"circuit_open_events": snap.CircuitOpenEvents,
					"webhooks_fired":      snap.WebhooksFired,
				},
				time.Now(),
			)
			if err := writeAPI.WritePoint(ctx, point); err != nil {
				log.Printf("metrics: influx write failed: %v", err)
			}
		}
	}
}
