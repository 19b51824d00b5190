package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	LeasesAcquiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harbormail_leases_acquired_total",
			Help: "Total number of delivery leases handed out, by zone.",
		},
		[]string{"zone"},
	)

	EmptyAcquiresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harbormail_empty_acquires_total",
			Help: "Total number of acquire calls that found no eligible job, by zone.",
		},
		[]string{"zone"},
	)

	LeasesResolvedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harbormail_leases_resolved_total",
			Help: "Total number of lease resolutions by outcome (released, deferred).",
		},
		[]string{"outcome", "zone"},
	)

	StaleInstanceTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harbormail_stale_instance_total",
			Help: "Total number of requests rejected for a stale instance identifier.",
		},
	)

	FetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harbormail_message_fetches_total",
			Help: "Total number of message body fetches by result (ok, missing, error).",
		},
		[]string{"result"},
	)

	FetchBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harbormail_message_fetch_bytes_total",
			Help: "Total message body bytes streamed to workers.",
		},
	)

	EngineLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "harbormail_engine_latency_seconds",
			Help:    "Latency of queue engine round trips by operation.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	QueueBacklog = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "harbormail_queue_backlog",
			Help: "Queued jobs per zone as of the last stats read.",
		},
		[]string{"zone"},
	)
)

func MustRegister(reg *prometheus.Registry) {
	reg.MustRegister(
		LeasesAcquiredTotal,
		EmptyAcquiresTotal,
		LeasesResolvedTotal,
		StaleInstanceTotal,
		FetchesTotal,
		FetchBytesTotal,
		EngineLatency,
		QueueBacklog,
	)
}

// RecordAcquire records the outcome of an AcquireNext call for a zone.
func RecordAcquire(zone string, leased bool) {
	if leased {
		LeasesAcquiredTotal.WithLabelValues(zone).Inc()
		return
	}
	EmptyAcquiresTotal.WithLabelValues(zone).Inc()
}

// RecordResolution records a release or defer for a zone.
func RecordResolution(outcome, zone string) {
	LeasesResolvedTotal.WithLabelValues(outcome, zone).Inc()
}

// RecordStaleInstance records a fencing rejection.
func RecordStaleInstance() {
	StaleInstanceTotal.Inc()
}

// RecordFetch records a message body fetch and the bytes streamed.
func RecordFetch(result string, bytes int64) {
	FetchesTotal.WithLabelValues(result).Inc()
	if bytes > 0 {
		FetchBytesTotal.Add(float64(bytes))
	}
}

// RecordEngineLatency records one engine round trip.
func RecordEngineLatency(op string, d time.Duration) {
	EngineLatency.WithLabelValues(op).Observe(d.Seconds())
}

// UpdateQueueBacklog sets the queued-job gauge for a zone.
func UpdateQueueBacklog(zone string, queued float64) {
	QueueBacklog.WithLabelValues(zone).Set(queued)
}
