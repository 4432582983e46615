// Package ingest is the single fan-in point the spec calls for: every
// producer (HTTP POST handler, WS ingest session) normalizes records
// and hands them here. Publish broadcasts to live subscribers
// synchronously — strictly before the record is handed to the writer
// for persistence — and then enqueues for the batch writer. Both
// actions happen before Publish returns, so the broadcast-before-persist
// ordering the spec requires is a property of this one function, not
// something callers need to get right themselves.
package ingest

import (
	"context"

	"github.com/logstream/gateway/internal/broadcast"
	"github.com/logstream/gateway/internal/metrics"
	"github.com/logstream/gateway/internal/model"
)

// Pipeline is the shared root value every connection task is handed a
// read-only reference to: the subscriber registry, the optional
// cross-instance relay, and the channel feeding the batch writer.
type Pipeline struct {
	registry *broadcast.Registry
	relay    *broadcast.Relay
	writerCh chan<- *model.Record
	metrics  *metrics.Metrics
}

// New wires a Pipeline against an already-started writer's RecordCh.
func New(registry *broadcast.Registry, relay *broadcast.Relay, writerCh chan<- *model.Record, m *metrics.Metrics) *Pipeline {
	return &Pipeline{registry: registry, relay: relay, writerCh: writerCh, metrics: m}
}

// Publish broadcasts rec to matching local (and, if configured, remote)
// subscribers, then blocks until the record is accepted onto the
// writer's channel or ctx is canceled. Blocking here — rather than
// dropping — is deliberate: the bounded channel is the system's only
// back-pressure mechanism toward emitters (§4.E), so a full channel
// should stall the producer, not silently lose the record.
func (p *Pipeline) Publish(ctx context.Context, rec *model.Record) error {
	p.registry.Publish(rec)
	if p.relay != nil {
		p.relay.Publish(ctx, rec)
	}
	if p.metrics != nil {
		p.metrics.RecordsAcceptedTotal.Inc()
	}

	select {
	case p.writerCh <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TryPublish is the non-blocking form of Publish: it broadcasts rec,
// then enqueues it for the writer only if the channel has room. Returns
// false if the channel was full, in which case rec was broadcast but
// not enqueued for persistence.
func (p *Pipeline) TryPublish(ctx context.Context, rec *model.Record) bool {
	p.registry.Publish(rec)
	if p.relay != nil {
		p.relay.Publish(ctx, rec)
	}
	if p.metrics != nil {
		p.metrics.RecordsAcceptedTotal.Inc()
	}

	select {
	case p.writerCh <- rec:
		return true
	default:
		return false
	}
}

// Normalize applies model.Normalize and, on rejection, records the
// reason in metrics — every ingest entry point (HTTP, WS) funnels
// through this so rejection accounting never drifts between the two.
func (p *Pipeline) Normalize(raw model.Raw) (model.Record, model.RejectReason, bool) {
	rec, reason, ok := model.Normalize(raw)
	if !ok && p.metrics != nil {
		p.metrics.RecordsRejectedTotal.WithLabelValues(string(reason)).Inc()
	}
	return rec, reason, ok
}
