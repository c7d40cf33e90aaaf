// Package redisbus fans store change events out across server instances
// with Redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"socialsync/internal/logging"
	"socialsync/internal/store"
)

// ChannelPrefix namespaces the pub/sub channels, one channel per watched path.
const ChannelPrefix = "store:changes:"

// Bus implements store.Bus on Redis pub/sub. Every Subscribe opens its own
// pub/sub connection and drains it on a dedicated goroutine, which keeps
// dispatch serial and ordered per subscription.
type Bus struct {
	client *redis.Client
}

func New(client *redis.Client) *Bus {
	return &Bus{client: client}
}

func channel(topic string) string {
	return ChannelPrefix + topic
}

func (b *Bus) Publish(ctx context.Context, topic string, ev store.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, channel(topic), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (b *Bus) Subscribe(ctx context.Context, topic string, fn store.Handler) (store.Subscription, error) {
	ps := b.client.Subscribe(ctx, channel(topic))

	// Wait for the subscription confirmation so no event published after
	// Subscribe returns can be missed.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	sub := &subscription{ps: ps, finished: make(chan struct{})}
	go sub.run(topic, fn)
	return sub, nil
}

type subscription struct {
	ps       *redis.PubSub
	finished chan struct{}
	once     sync.Once
}

func (s *subscription) run(topic string, fn store.Handler) {
	defer close(s.finished)

	for msg := range s.ps.Channel() {
		var ev store.Event
		if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
			logging.For("RedisBus").WithError(err).WithField("topic", topic).Warn("Dropping malformed event")
			continue
		}
		fn(ev)
	}
}

func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.ps.Close()
	})
	<-s.finished
}
