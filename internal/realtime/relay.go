package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const relayQueue = 256

// RedisRelay mirrors router events through a Redis pub/sub channel so that
// clients connected to any instance receive them. Events published by this
// instance are ignored on the way back in.
type RedisRelay struct {
	client  *redis.Client
	channel string
	origin  string
	router  *Router
	out     chan Envelope
}

// NewRedisRelay creates a relay and attaches it to router. Call Run to start
// exchanging events.
func NewRedisRelay(client *redis.Client, channel string, router *Router) (*RedisRelay, error) {
	if client == nil || router == nil {
		return nil, errors.New("redis relay requires a client and a router")
	}
	if channel == "" {
		return nil, errors.New("redis relay channel is empty")
	}
	rr := &RedisRelay{
		client:  client,
		channel: channel,
		origin:  uuid.NewString(),
		router:  router,
		out:     make(chan Envelope, relayQueue),
	}
	router.SetRelay(rr)
	return rr, nil
}

// Origin identifies this instance in relayed envelopes.
func (rr *RedisRelay) Origin() string { return rr.origin }

// Forward queues env for publication. A full queue drops the event.
func (rr *RedisRelay) Forward(env Envelope) {
	env.Origin = rr.origin
	select {
	case rr.out <- env:
	default:
		droppedEvents.Inc()
		log.Warn().Str("type", env.Event.Type).Msg("realtime relay queue full; event not relayed")
	}
}

// Run subscribes to the relay channel and publishes queued events until ctx
// is done. It returns the subscription error, if any.
func (rr *RedisRelay) Run(ctx context.Context) error {
	sub := rr.client.Subscribe(ctx, rr.channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before relaying.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	in := sub.Channel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case env := <-rr.out:
			payload, err := json.Marshal(env)
			if err != nil {
				log.Error().Err(err).Str("type", env.Event.Type).Msg("realtime relay marshal failed")
				continue
			}
			if err := rr.client.Publish(ctx, rr.channel, payload).Err(); err != nil {
				log.Warn().Err(err).Msg("realtime relay publish failed")
				continue
			}
			relayedEvents.WithLabelValues("out").Inc()
		case msg, ok := <-in:
			if !ok {
				return nil
			}
			rr.handle(msg.Payload)
		}
	}
}

func (rr *RedisRelay) handle(payload string) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		log.Warn().Err(err).Msg("realtime relay: bad envelope")
		return
	}
	if env.Origin == rr.origin {
		return
	}
	relayedEvents.WithLabelValues("in").Inc()
	rr.router.DeliverLocal(env)
}
