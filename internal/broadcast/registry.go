// Package broadcast fans normalized records out to live WebSocket
// subscribers. Registration/deregistration needs exclusivity; matching
// and delivery (publish) must not serialize behind one lock, since it
// runs on every record's hot path. The registry is split into a fixed
// number of independently-locked shards, with rendezvous hashing
// picking a subscriber's shard by id — the sharded-map structure the
// spec's concurrency model calls for, without a single global mutex.
package broadcast

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"

	"github.com/logstream/gateway/internal/metrics"
	"github.com/logstream/gateway/internal/model"
)

// seededHash adapts xxhash to rendezvous.Hasher's single-argument shape.
func seededHash(s string) uint64 {
	return xxhash.Sum64String(s)
}

const shardCount = 16

type shard struct {
	mu   sync.RWMutex
	subs map[uint64]*Subscriber
}

// Registry is the process-wide table of live subscribers.
type Registry struct {
	shards  [shardCount]*shard
	rv      *rendezvous.Rendezvous
	nextID  atomic.Uint64
	metrics *metrics.Metrics
}

func shardNodeNames() []string {
	names := make([]string, shardCount)
	for i := range names {
		names[i] = strconv.Itoa(i)
	}
	return names
}

// New constructs an empty Registry.
func New(m *metrics.Metrics) *Registry {
	r := &Registry{
		rv:      rendezvous.New(shardNodeNames(), seededHash),
		metrics: m,
	}
	for i := range r.shards {
		r.shards[i] = &shard{subs: make(map[uint64]*Subscriber)}
	}
	return r
}

func (r *Registry) shardFor(id uint64) *shard {
	key := r.rv.Lookup(strconv.FormatUint(id, 10))
	idx, _ := strconv.Atoi(key)
	return r.shards[idx]
}

// Register allocates a new subscriber with the given filter and
// returns it. The caller owns driving its Next() loop and calling
// Deregister on any exit path.
func (r *Registry) Register(filter Filter) *Subscriber {
	id := r.nextID.Add(1)
	sub := newSubscriber(id, filter)

	sh := r.shardFor(id)
	sh.mu.Lock()
	sh.subs[id] = sub
	sh.mu.Unlock()

	if r.metrics != nil {
		r.metrics.SubscribersRegisteredTotal.Inc()
		r.metrics.SubscribersLive.Inc()
	}
	return sub
}

// Deregister removes and closes a subscriber. Safe to call more than
// once.
func (r *Registry) Deregister(id uint64) {
	sh := r.shardFor(id)
	sh.mu.Lock()
	sub, ok := sh.subs[id]
	if ok {
		delete(sh.subs, id)
	}
	sh.mu.Unlock()

	if !ok {
		return
	}
	sub.Close()
	if r.metrics != nil {
		r.metrics.SubscribersLive.Dec()
	}
}

// Publish offers rec to every subscriber whose filter matches. It does
// not block on any single subscriber's buffer being full — offer()
// drops the oldest pending record instead. Subscribers that cross the
// drop threshold are force-deregistered after the publish pass
// completes over their shard.
func (r *Registry) Publish(rec *model.Record) {
	for _, sh := range r.shards {
		sh.mu.RLock()
		var toClose []uint64
		for id, sub := range sh.subs {
			if !sub.Filter.Matches(rec) {
				continue
			}
			dropped, forceClose := sub.offer(rec)
			if dropped && r.metrics != nil {
				r.metrics.SubscribersDroppedTotal.Inc()
			}
			if forceClose {
				toClose = append(toClose, id)
			}
		}
		sh.mu.RUnlock()

		for _, id := range toClose {
			r.Deregister(id)
			if r.metrics != nil {
				r.metrics.SubscribersForceClosedTotal.Inc()
			}
		}
	}
}

// Count returns the number of currently registered subscribers.
func (r *Registry) Count() int {
	n := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		n += len(sh.subs)
		sh.mu.RUnlock()
	}
	return n
}
