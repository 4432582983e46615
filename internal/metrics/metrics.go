// Package metrics exposes the gateway's counters and gauges to
// Prometheus. Every field the teacher ingest server tracked as a
// hand-rolled atomic int64 (HTTP-level, storage-level, dead-letter
// queue) has an equivalent here, plus the broadcast-side counters the
// spec adds (subscriber registrations/drops/force-closes, live
// subscriber count).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

// Metrics holds every registered collector. Unlike the teacher's
// Metrics struct, whose fields are incremented directly with
// atomic.AddInt64, these are opaque prometheus.Counter/Gauge values
// incremented through the methods below — matching the library's
// expected usage.
type Metrics struct {
	RecordsAcceptedTotal  prometheus.Counter
	RecordsRejectedTotal  *prometheus.CounterVec
	RecordsPersistedTotal prometheus.Counter
	RecordsDroppedTotal   *prometheus.CounterVec

	BatchesFlushedTotal prometheus.Counter
	BatchesRetriedTotal prometheus.Counter
	BatchesDroppedTotal prometheus.Counter

	SubscribersRegisteredTotal  prometheus.Counter
	SubscribersDroppedTotal     prometheus.Counter
	SubscribersForceClosedTotal prometheus.Counter
	SubscribersLive             prometheus.Gauge

	HTTPRequestsTotal             *prometheus.CounterVec
	HTTPRequestsRejectedTooLarge  prometheus.Counter
	HTTPRequestsRejectedQueueFull prometheus.Counter

	registry *prometheus.Registry
}

// New constructs a Metrics bound to its own registry rather than
// Prometheus's global default — each call gets an independent registry,
// so tests (and anything else that builds more than one Metrics in a
// process) never collide on duplicate collector registration.
func New() *Metrics {
	m := &Metrics{
		RecordsAcceptedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_records_accepted_total",
			Help: "Records that passed normalization and entered the pipeline.",
		}),
		RecordsRejectedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_records_rejected_total",
			Help: "Records rejected at normalization, labeled by reason.",
		}, []string{"reason"}),
		RecordsPersistedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_records_persisted_total",
			Help: "Records successfully upserted into the search engine.",
		}),
		RecordsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_records_dropped_total",
			Help: "Records dropped before persistence, labeled by reason.",
		}, []string{"reason"}),

		BatchesFlushedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_batches_flushed_total",
			Help: "Batches handed from the collector to the engine writer.",
		}),
		BatchesRetriedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_batches_retried_total",
			Help: "Batch write attempts that failed with a retryable error.",
		}),
		BatchesDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_batches_dropped_total",
			Help: "Batches dropped: rejected by the engine (4xx), retries exhausted, evicted from a full retry queue, or left over at shutdown.",
		}),

		SubscribersRegisteredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_subscribers_registered_total",
			Help: "Live-tail subscribers registered since process start.",
		}),
		SubscribersDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_subscribers_dropped_total",
			Help: "Messages dropped from a subscriber's buffer (drop-oldest overflow).",
		}),
		SubscribersForceClosedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_subscribers_force_closed_total",
			Help: "Subscribers force-disconnected for exceeding the drop threshold.",
		}),
		SubscribersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_subscribers_live",
			Help: "Currently connected live-tail subscribers.",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "HTTP requests received, labeled by route.",
		}, []string{"route"}),
		HTTPRequestsRejectedTooLarge: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_http_requests_rejected_body_too_large_total",
			Help: "Ingest requests rejected for exceeding the body size limit.",
		}),
		HTTPRequestsRejectedQueueFull: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_http_requests_rejected_queue_full_total",
			Help: "Ingest requests rejected because the pipeline channel was full.",
		}),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		m.RecordsAcceptedTotal,
		m.RecordsRejectedTotal,
		m.RecordsPersistedTotal,
		m.RecordsDroppedTotal,
		m.BatchesFlushedTotal,
		m.BatchesRetriedTotal,
		m.BatchesDroppedTotal,
		m.SubscribersRegisteredTotal,
		m.SubscribersDroppedTotal,
		m.SubscribersForceClosedTotal,
		m.SubscribersLive,
		m.HTTPRequestsTotal,
		m.HTTPRequestsRejectedTooLarge,
		m.HTTPRequestsRejectedQueueFull,
	)

	return m
}

// Handler returns the promhttp handler to mount at /metrics, scoped to
// this Metrics' own registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
