package broadcast

import (
	"sync"

	"github.com/logstream/gateway/internal/model"
)

// bufferCapacity (B) and dropThreshold bound a subscriber's backlog and
// its tolerance for a slow consumer, per the registry's overflow
// policy: drop the oldest pending record on overflow, and once the
// cumulative drop count passes dropThreshold, the subscriber is judged
// irrecoverably slow and force-closed.
const (
	bufferCapacity = 256
	dropThreshold  = 1024
)

// Subscriber is one live WebSocket client in subscribe mode. Record
// delivery happens by appending to buffered pending records; a
// per-subscriber drain goroutine (run by the WS handler) calls Next
// and serializes frames to the socket — the subscriber itself never
// touches the network.
type Subscriber struct {
	ID     uint64
	Filter Filter

	mu      sync.Mutex
	pending []*model.Record
	cond    *sync.Cond
	closed  bool
	dropped int64
}

func newSubscriber(id uint64, filter Filter) *Subscriber {
	s := &Subscriber{ID: id, Filter: filter, pending: make([]*model.Record, 0, bufferCapacity)}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// offer appends rec to the buffer, dropping the oldest pending record
// if the buffer is already full. dropped reports whether this call
// evicted a record; forceClose is true once the cumulative drop count
// exceeds dropThreshold — the caller is responsible for deregistering
// and closing the socket.
func (s *Subscriber) offer(rec *model.Record) (dropped bool, forceClose bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, false
	}
	if len(s.pending) >= bufferCapacity {
		s.pending = s.pending[1:]
		s.dropped++
		dropped = true
	}
	s.pending = append(s.pending, rec)
	s.cond.Signal()

	return dropped, s.dropped > dropThreshold
}

// Dropped returns the cumulative number of records dropped for this
// subscriber due to buffer overflow.
func (s *Subscriber) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Next blocks until a record is available or the subscriber is closed,
// returning ok=false in the latter case. Intended to be called in a
// loop by the WS handler's drain goroutine.
func (s *Subscriber) Next() (rec *model.Record, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.pending) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.pending) == 0 && s.closed {
		return nil, false
	}
	rec = s.pending[0]
	s.pending = s.pending[1:]
	return rec, true
}

// Close marks the subscriber closed and wakes any goroutine blocked in
// Next.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cond.Broadcast()
}
