// Package observe provides application-wide observability primitives for
// Stumpcast: OpenTelemetry metrics, tracing helpers, HTTP middleware for the
// ops server, and the session tally printed at shutdown.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so metrics can be scraped
// from the ops server's /metrics endpoint. A package-level default [Metrics]
// instance ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Stumpcast metrics.
const meterName = "github.com/ovalsounds/stumpcast"

// Metrics holds all OpenTelemetry metric instruments for the engine.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// TTSFirstByte tracks time from synthesis request to first PCM chunk.
	TTSFirstByte metric.Float64Histogram

	// EventLatency tracks end-to-end latency from queue admission to the
	// mixer finishing the event's audio.
	EventLatency metric.Float64Histogram

	// BlockFill tracks how long the mixer takes to fill one output block.
	BlockFill metric.Float64Histogram

	// --- Counters ---

	// EventsAdmitted counts events accepted into the queue, by priority.
	EventsAdmitted metric.Int64Counter

	// EventsDuplicate counts events rejected by dedup.
	EventsDuplicate metric.Int64Counter

	// EventsPlayed counts events whose audio reached the device, by priority.
	EventsPlayed metric.Int64Counter

	// EventsSkipped counts events skipped before any audio played, by reason
	// (tts_error, tts_timeout, no_text).
	EventsSkipped metric.Int64Counter

	// EventsDropped counts events displaced by preemption before any frame
	// played.
	EventsDropped metric.Int64Counter

	// Reconnects counts push-channel reconnection attempts.
	Reconnects metric.Int64Counter

	// HistoryRows counts history sink writes, by status.
	HistoryRows metric.Int64Counter

	// --- Gauges ---

	// QueueDepth tracks the number of events waiting in the queue.
	QueueDepth metric.Int64UpDownCounter

	// InflightTTS tracks synthesis streams currently open.
	InflightTTS metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks ops-server request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram

	tally tally
}

// tally mirrors the counters the shutdown summary needs; OTel instruments
// are write-only from the application's point of view.
type tally struct {
	admitted   atomic.Int64
	duplicate  atomic.Int64
	played     atomic.Int64
	skipped    atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
	history    atomic.Int64
}

// Snapshot is a point-in-time copy of the session tally.
type Snapshot struct {
	Admitted    int64
	Duplicate   int64
	Played      int64
	Skipped     int64
	Dropped     int64
	Reconnects  int64
	HistoryRows int64
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// the synthesis and playback path, whose slowest healthy case is the 8 s
// first-byte deadline.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// blockBuckets covers the mixer callback, which must fill a block in well
// under the block duration (~46 ms at 22.05 kHz / 1024 frames).
var blockBuckets = []float64{
	0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TTSFirstByte, err = m.Float64Histogram("stumpcast.tts.first_byte",
		metric.WithDescription("Time from synthesis request to first PCM chunk."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EventLatency, err = m.Float64Histogram("stumpcast.event.latency",
		metric.WithDescription("End-to-end latency from admission to finished audio."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BlockFill, err = m.Float64Histogram("stumpcast.mixer.block_fill",
		metric.WithDescription("Time spent filling one mixer output block."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(blockBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.EventsAdmitted, err = m.Int64Counter("stumpcast.events.admitted",
		metric.WithDescription("Events accepted into the queue, by priority."),
	); err != nil {
		return nil, err
	}
	if met.EventsDuplicate, err = m.Int64Counter("stumpcast.events.duplicate",
		metric.WithDescription("Events rejected as duplicates."),
	); err != nil {
		return nil, err
	}
	if met.EventsPlayed, err = m.Int64Counter("stumpcast.events.played",
		metric.WithDescription("Events whose audio reached the device, by priority."),
	); err != nil {
		return nil, err
	}
	if met.EventsSkipped, err = m.Int64Counter("stumpcast.events.skipped",
		metric.WithDescription("Events skipped before playback, by reason."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("stumpcast.events.dropped",
		metric.WithDescription("Events displaced by preemption before any frame played."),
	); err != nil {
		return nil, err
	}
	if met.Reconnects, err = m.Int64Counter("stumpcast.stream.reconnects",
		metric.WithDescription("Push-channel reconnection attempts."),
	); err != nil {
		return nil, err
	}
	if met.HistoryRows, err = m.Int64Counter("stumpcast.history.rows",
		metric.WithDescription("History sink writes, by status."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.QueueDepth, err = m.Int64UpDownCounter("stumpcast.queue.depth",
		metric.WithDescription("Events waiting in the queue."),
	); err != nil {
		return nil, err
	}
	if met.InflightTTS, err = m.Int64UpDownCounter("stumpcast.tts.inflight",
		metric.WithDescription("Synthesis streams currently open."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("stumpcast.http.request.duration",
		metric.WithDescription("Ops-server request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

func priorityAttr(priority int) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("priority", strconv.Itoa(priority)))
}

// RecordAdmit records an accepted event and bumps the queue depth.
func (m *Metrics) RecordAdmit(ctx context.Context, priority int) {
	m.EventsAdmitted.Add(ctx, 1, priorityAttr(priority))
	m.QueueDepth.Add(ctx, 1)
	m.tally.admitted.Add(1)
}

// RecordDuplicate records a dedup rejection.
func (m *Metrics) RecordDuplicate(ctx context.Context) {
	m.EventsDuplicate.Add(ctx, 1)
	m.tally.duplicate.Add(1)
}

// RecordConsumed bumps the queue depth back down when an event leaves the
// queue for dispatch.
func (m *Metrics) RecordConsumed(ctx context.Context) {
	m.QueueDepth.Add(ctx, -1)
}

// RecordPlayed records an event whose audio reached the device.
func (m *Metrics) RecordPlayed(ctx context.Context, priority int) {
	m.EventsPlayed.Add(ctx, 1, priorityAttr(priority))
	m.tally.played.Add(1)
}

// RecordSkipped records an event skipped before playback.
func (m *Metrics) RecordSkipped(ctx context.Context, reason string) {
	m.EventsSkipped.Add(ctx, 1,
		metric.WithAttributes(attribute.String("reason", reason)))
	m.tally.skipped.Add(1)
}

// RecordDropped records an event displaced by preemption before any frame
// played.
func (m *Metrics) RecordDropped(ctx context.Context) {
	m.EventsDropped.Add(ctx, 1)
	m.tally.dropped.Add(1)
}

// RecordReconnect records one reconnection attempt.
func (m *Metrics) RecordReconnect(ctx context.Context) {
	m.Reconnects.Add(ctx, 1)
	m.tally.reconnects.Add(1)
}

// RecordHistoryRow records one history sink write.
func (m *Metrics) RecordHistoryRow(ctx context.Context, status string) {
	m.HistoryRows.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)))
	if status == "ok" {
		m.tally.history.Add(1)
	}
}

// RecordTTSFirstByte records synthesis first-byte latency.
func (m *Metrics) RecordTTSFirstByte(ctx context.Context, d time.Duration, provider string) {
	m.TTSFirstByte.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("provider", provider)))
}

// RecordEventLatency records end-to-end event latency.
func (m *Metrics) RecordEventLatency(ctx context.Context, d time.Duration, priority int) {
	m.EventLatency.Record(ctx, d.Seconds(), priorityAttr(priority))
}

// InflightTTSAdd moves the in-flight synthesis gauge.
func (m *Metrics) InflightTTSAdd(ctx context.Context, delta int64) {
	m.InflightTTS.Add(ctx, delta)
}

// Snapshot returns the session tally for the shutdown summary.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Admitted:    m.tally.admitted.Load(),
		Duplicate:   m.tally.duplicate.Load(),
		Played:      m.tally.played.Load(),
		Skipped:     m.tally.skipped.Load(),
		Dropped:     m.tally.dropped.Load(),
		Reconnects:  m.tally.reconnects.Load(),
		HistoryRows: m.tally.history.Load(),
	}
}
