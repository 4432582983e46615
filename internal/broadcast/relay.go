package broadcast

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/logstream/gateway/internal/model"
)

// relayChannel is the Redis Pub/Sub channel every gateway instance
// publishes normalized records to and subscribes on. A single process's
// Registry only sees records ingested by that process; Relay extends
// delivery to subscribers connected to any other instance behind the
// same load balancer.
const relayChannel = "logstream:records"

// Relay bridges a local Registry to Redis Pub/Sub so that a record
// ingested on one instance reaches subscribers connected to any
// instance. It is an optional component: a deployment with a single
// gateway process, or one that accepts subscribers only ever talking to
// the instance that ingested their records, can run without it.
type Relay struct {
	client   *redis.Client
	registry *Registry
	log      zerolog.Logger
}

// NewRelay constructs a Relay. It does not connect or subscribe; call
// Start for that.
func NewRelay(addr, password string, registry *Registry, log zerolog.Logger) *Relay {
	return &Relay{
		client:   redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		registry: registry,
		log:      log.With().Str("component", "relay").Logger(),
	}
}

// Publish broadcasts rec to every other instance. Local delivery is the
// caller's responsibility (the ingest pipeline already calls
// Registry.Publish directly) — this only reaches remote instances.
func (r *Relay) Publish(ctx context.Context, rec *model.Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		r.log.Error().Err(err).Msg("relay: marshal record failed")
		return
	}
	if err := r.client.Publish(ctx, relayChannel, data).Err(); err != nil {
		r.log.Warn().Err(err).Msg("relay: publish failed, local subscribers unaffected")
	}
}

// Start subscribes to the relay channel and applies every remotely
// published record to the local registry, until ctx is canceled.
func (r *Relay) Start(ctx context.Context) {
	sub := r.client.Subscribe(ctx, relayChannel)
	ch := sub.Channel()

	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var rec model.Record
				if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
					r.log.Warn().Err(err).Msg("relay: dropping malformed record")
					continue
				}
				r.registry.Publish(&rec)
			}
		}
	}()
}

// Close releases the underlying Redis client.
func (r *Relay) Close() error {
	return r.client.Close()
}
