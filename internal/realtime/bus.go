package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/promptgist/promptgist/pkg/metrics"
)

// Publisher is what writers depend on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// LocalBus delivers straight to the hub. Used when Redis is not configured.
type LocalBus struct {
	hub *Hub
}

func NewLocalBus(hub *Hub) *LocalBus { return &LocalBus{hub: hub} }

func (b *LocalBus) Publish(_ context.Context, ev Event) error {
	b.hub.Deliver(ev)
	metrics.EventsPublished.WithLabelValues("local").Inc()
	return nil
}

// RedisBus publishes each event on "<prefix>:<documentId>" and feeds every
// event received on "<prefix>:*" into the local hub, including the ones this
// instance published. OnRemote, when set, is called for events published by
// other instances.
type RedisBus struct {
	client   redis.UniversalClient
	prefix   string
	instance string
	hub      *Hub
	OnRemote func(Event)

	p *redis.PubSub
}

func NewRedisBus(client redis.UniversalClient, prefix, instance string, hub *Hub) *RedisBus {
	return &RedisBus{client: client, prefix: strings.TrimSuffix(prefix, ":"), instance: instance, hub: hub}
}

func (b *RedisBus) channel(docID string) string { return b.prefix + ":" + docID }

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	ev.Origin = b.instance
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel(ev.DocumentID), body).Err(); err != nil {
		return err
	}
	metrics.EventsPublished.WithLabelValues("redis").Inc()
	return nil
}

// Listen subscribes and confirms the subscription before returning; events
// are then consumed in the background until ctx is done or Close is called.
func (b *RedisBus) Listen(ctx context.Context) error {
	b.p = b.client.PSubscribe(ctx, b.prefix+":*")
	if _, err := b.p.Receive(ctx); err != nil {
		_ = b.p.Close()
		return err
	}
	go b.loop(ctx)
	return nil
}

func (b *RedisBus) loop(ctx context.Context) {
	nFailed := 0
	for {
		raw, err := b.p.Receive(ctx)
		if err != nil {
			if errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}
			nFailed++
			log.Warnf("receive failed (%d): %v", nFailed, err)
			time.Sleep(time.Duration(math.Min(
				float64(5*time.Second),
				math.Pow(2, float64(nFailed))*float64(time.Millisecond),
			)))
			continue
		}
		nFailed = 0
		msg, ok := raw.(*redis.Message)
		if !ok {
			continue
		}
		var ev Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			log.Warnf("dropping malformed event on %s: %v", msg.Channel, err)
			continue
		}
		if ev.Origin != b.instance && b.OnRemote != nil {
			b.OnRemote(ev)
		}
		b.hub.Deliver(ev)
	}
}

func (b *RedisBus) Close() error {
	if b.p == nil {
		return nil
	}
	return b.p.Close()
}
