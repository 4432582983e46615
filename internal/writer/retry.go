package writer

import (
	"math/rand"
	"sync"
	"time"

	"github.com/logstream/gateway/internal/model"
)

// pending is a batch awaiting its next retry attempt.
type pending struct {
	records     []*model.Record
	attempt     int
	nextAttempt time.Time
}

const (
	maxAttempts = 5
	baseBackoff = 250 * time.Millisecond
	maxBackoff  = 10 * time.Second
)

// backoff computes the delay before retry attempt n (1-indexed),
// doubling from baseBackoff and capped at maxBackoff, with up to 20%
// jitter so a burst of simultaneously-failing batches doesn't retry in
// lockstep.
func backoff(attempt int) time.Duration {
	d := baseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxBackoff {
			d = maxBackoff
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 5))
	return d + jitter
}

// retryQueue is an in-memory, capacity-bounded holding area for batches
// that failed a retryable (network or 5xx) write. The gateway runs with
// no durable local storage — a batch that cannot be written within
// maxAttempts, or that overflows the capacity bound, is dropped rather
// than spilled to disk, the one place this deliberately departs from
// the teacher's disk-backed dead-letter queue.
type retryQueue struct {
	mu       sync.Mutex
	items    []*pending
	capacity int
}

func newRetryQueue(capacity int) *retryQueue {
	return &retryQueue{capacity: capacity}
}

// push enqueues a retryable failure. If the queue is already at
// capacity, the oldest entry is evicted to make room — recent failures
// are more likely to be transient blips worth retrying than failures
// that have already waited a long time.
func (q *retryQueue) push(records []*model.Record, attempt int) (evicted []*model.Record) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity && q.capacity > 0 {
		evicted = q.items[0].records
		q.items = q.items[1:]
	}
	q.items = append(q.items, &pending{
		records:     records,
		attempt:     attempt,
		nextAttempt: time.Now().Add(backoff(attempt)),
	})
	return evicted
}

// popReady removes and returns one batch whose backoff has elapsed, if
// any. It does not block.
func (q *retryQueue) popReady() *pending {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for i, p := range q.items {
		if !p.nextAttempt.After(now) {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return p
		}
	}
	return nil
}

func (q *retryQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
