// Package writer batches normalized records and persists them to the
// search engine. It is the direct descendant of the teacher ingest
// server's internal/worker package: the same collect-then-upload shape
// (batch by size or timer, hand off to a single upload loop), with the
// S3 uploader swapped for an engine.Client and the disk-backed DLQ
// swapped for an in-memory, capacity-bounded retry queue — the gateway
// spec's "no on-disk queue" non-goal rules out anything durable here.
package writer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/logstream/gateway/internal/engine"
	"github.com/logstream/gateway/internal/metrics"
	"github.com/logstream/gateway/internal/model"
)

// Config controls batching thresholds and retry bounds.
type Config struct {
	BatchSize       int           // flush once this many records have queued
	FlushInterval   time.Duration // flush on this timer even if BatchSize isn't reached
	RecordQueueSize int           // capacity of the inbound record channel
	RetryQueueCap   int           // max batches held for retry at once
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 200
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 250 * time.Millisecond
	}
	if c.RecordQueueSize <= 0 {
		c.RecordQueueSize = 4096
	}
	if c.RetryQueueCap <= 0 {
		c.RetryQueueCap = 64
	}
	return c
}

// engineWriter is the slice of engine.Client that the writer depends
// on. Declaring it here (rather than depending on *engine.Client
// directly) lets tests substitute a fake engine without a live
// Meilisearch instance.
type engineWriter interface {
	UpsertDocuments(ctx context.Context, records []*model.Record) error
}

// Manager is the pipeline's persistence stage: RecordCh collects
// normalized records, batches them, and writes batches to the engine
// with bounded retry on transient failures.
type Manager struct {
	cfg     Config
	eng     engineWriter
	metrics *metrics.Metrics
	log     zerolog.Logger
	retry   *retryQueue

	RecordCh chan *model.Record
	batchCh  chan []*model.Record

	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New wires a Manager against an engine client. It does not start any
// goroutines; call Start for that.
func New(cfg Config, eng engineWriter, m *metrics.Metrics, log zerolog.Logger) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:      cfg,
		eng:      eng,
		metrics:  m,
		log:      log.With().Str("component", "writer").Logger(),
		retry:    newRetryQueue(cfg.RetryQueueCap),
		RecordCh: make(chan *model.Record, cfg.RecordQueueSize),
		batchCh:  make(chan []*model.Record, 8),
	}
}

// Start runs the collect loop and the upload loop.
func (m *Manager) Start() {
	m.ctx, m.cancel = context.WithCancel(context.Background())

	m.wg.Add(2)
	go m.collectLoop()
	go m.uploadLoop()
}

// shutdownDrainDeadline bounds how long Shutdown waits for the retry
// queue to empty before forcing an abort and dropping whatever is left.
const shutdownDrainDeadline = 5 * time.Second

// Shutdown closes RecordCh, lets collectLoop flush its final partial
// batch, and waits for the upload loop to drain the retry queue. If
// the drain hasn't finished within shutdownDrainDeadline, it cancels
// the upload loop's context and drops whatever batches remain.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		close(m.RecordCh)
	})

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(shutdownDrainDeadline):
		m.log.Warn().Msg("shutdown drain deadline exceeded, aborting remaining retries")
		m.cancel()
		<-done
	}
}

// collectLoop batches records off RecordCh, flushing on BatchSize or
// FlushInterval, whichever comes first. Each flush hands off a freshly
// allocated slice so the batch sent downstream is never mutated by a
// subsequent collect cycle.
func (m *Manager) collectLoop() {
	defer m.wg.Done()
	defer close(m.batchCh)

	batch := make([]*model.Record, 0, m.cfg.BatchSize)
	timer := time.NewTimer(m.cfg.FlushInterval)
	defer timer.Stop()

	resetTimer := func() {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(m.cfg.FlushInterval)
	}

	flush := func() {
		if len(batch) == 0 {
			return
		}
		select {
		case m.batchCh <- batch:
		case <-m.ctx.Done():
			return
		}
		batch = make([]*model.Record, 0, m.cfg.BatchSize)
		resetTimer()
	}

	for {
		select {
		case <-m.ctx.Done():
			flush()
			return

		case rec, ok := <-m.RecordCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= m.cfg.BatchSize {
				flush()
			}

		case <-timer.C:
			flush()
		}
	}
}

// uploadLoop receives batches from collectLoop and writes them to the
// engine, retrying transient failures via the retry queue. It also
// drains ready retries between fresh batches so retry backlog never
// starves new traffic indefinitely. batchCh closing (collectLoop has
// flushed its final batch and exited) switches it into an exhaustive
// drain of the retry queue, bounded by Shutdown's deadline rather than
// m.ctx — m.ctx is only cancelled as a last resort once that deadline
// passes.
func (m *Manager) uploadLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return

		case batch, ok := <-m.batchCh:
			if !ok {
				m.drainRetriesUntilEmpty()
				return
			}
			m.metrics.BatchesFlushedTotal.Inc()
			m.writeBatch(context.Background(), batch, 1)
			m.drainRetriesOnce()

		case <-ticker.C:
			m.drainRetriesOnce()
		}
	}
}

// drainRetriesOnce retries every batch in the retry queue whose backoff
// has elapsed, once each. A batch still not ready is left for the next
// tick.
func (m *Manager) drainRetriesOnce() {
	for {
		p := m.retry.popReady()
		if p == nil {
			return
		}
		m.writeBatch(context.Background(), p.records, p.attempt+1)
	}
}

// drainRetriesUntilEmpty is used once collectLoop has exited: it keeps
// retrying backed-off batches, including waiting out their backoff,
// until the queue is empty or m.ctx is cancelled by Shutdown's deadline.
func (m *Manager) drainRetriesUntilEmpty() {
	for m.retry.len() > 0 {
		select {
		case <-m.ctx.Done():
			dropped := m.retry.len()
			m.log.Warn().Int("batches", dropped).Msg("shutdown drain deadline exceeded, dropping remaining retries")
			m.metrics.BatchesDroppedTotal.Add(float64(dropped))
			return
		default:
		}

		p := m.retry.popReady()
		if p == nil {
			time.Sleep(20 * time.Millisecond)
			continue
		}
		m.writeBatch(context.Background(), p.records, p.attempt+1)
	}
}

// writeBatch attempts a single write; on a retryable failure it enqueues
// the batch for another attempt (unless maxAttempts is exhausted, in
// which case the batch is dropped), and on a permanent failure (a 4xx —
// the batch itself is malformed) it drops the batch immediately.
func (m *Manager) writeBatch(ctx context.Context, records []*model.Record, attempt int) {
	err := m.eng.UpsertDocuments(ctx, records)
	if err == nil {
		m.metrics.RecordsPersistedTotal.Add(float64(len(records)))
		return
	}

	apiErr, _ := err.(*engine.APIError)
	retryable := apiErr == nil || apiErr.Retryable()

	if !retryable {
		m.log.Error().Err(err).Int("records", len(records)).Msg("batch rejected by engine, dropping")
		m.metrics.BatchesDroppedTotal.Inc()
		m.metrics.RecordsDroppedTotal.WithLabelValues("engine_rejected").Add(float64(len(records)))
		return
	}

	if attempt >= maxAttempts {
		m.log.Warn().Int("records", len(records)).Int("attempt", attempt).Msg("batch exhausted retries, dropping")
		m.metrics.BatchesDroppedTotal.Inc()
		m.metrics.RecordsDroppedTotal.WithLabelValues("retries_exhausted").Add(float64(len(records)))
		return
	}

	m.log.Warn().Err(err).Int("records", len(records)).Int("attempt", attempt).Msg("batch write failed, will retry")
	m.metrics.BatchesRetriedTotal.Inc()
	if evicted := m.retry.push(records, attempt); evicted != nil {
		m.log.Warn().Int("records", len(evicted)).Msg("retry queue full, evicted oldest batch")
		m.metrics.BatchesDroppedTotal.Inc()
		m.metrics.RecordsDroppedTotal.WithLabelValues("retry_queue_full").Add(float64(len(evicted)))
	}
}
