package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// historyMaxLen caps the per-channel event history stream, enforced via
// XADD MAXLEN ~.
const historyMaxLen int64 = 10000

// EventBus implements domain.EventBus over Redis Pub/Sub, so state-change
// events reach every service instance. Each publish is also appended to a
// capped per-channel stream for history replay.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

func historyStream(channel string) string {
	return "history:" + channel
}

// Publish fans a payload out to channel subscribers and appends it to the
// channel's history stream.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}

	err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: historyStream(channel),
		MaxLen: historyMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: append history %s: %w", channel, err)
	}
	return nil
}

// Subscribe opens a Pub/Sub subscription on channel. The returned
// Subscription's channel closes after Unsubscribe or context cancellation.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (domain.Subscription, error) {
	pubsub := b.rdb.Subscribe(ctx, channel)

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	sub := &subscription{
		pubsub: pubsub,
		out:    make(chan []byte, 128),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.out)

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case <-sub.done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case sub.out <- []byte(msg.Payload):
				case <-ctx.Done():
					sub.Unsubscribe()
					return
				case <-sub.done:
					return
				}
			}
		}
	}()

	return sub, nil
}

// History returns up to count payloads from a channel's history stream,
// oldest first. Use "0" as lastID to read from the beginning.
func (b *EventBus) History(ctx context.Context, channel, lastID string, count int) ([][]byte, error) {
	results, err := b.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{historyStream(channel), lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis: read history %s: %w", channel, err)
	}

	var payloads [][]byte
	for _, s := range results {
		for _, msg := range s.Messages {
			v, ok := msg.Values["payload"]
			if !ok {
				continue
			}
			switch p := v.(type) {
			case string:
				payloads = append(payloads, []byte(p))
			case []byte:
				payloads = append(payloads, p)
			}
		}
	}
	return payloads, nil
}

// subscription is one live Pub/Sub subscription.
type subscription struct {
	pubsub *redis.PubSub
	out    chan []byte
	done   chan struct{}
	once   sync.Once
}

// C returns the payload channel. It closes after Unsubscribe.
func (s *subscription) C() <-chan []byte {
	return s.out
}

// Unsubscribe tears down the Pub/Sub subscription. Safe to call repeatedly.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.done)
		_ = s.pubsub.Close()
	})
}

// Compile-time interface checks.
var (
	_ domain.EventBus     = (*EventBus)(nil)
	_ domain.Subscription = (*subscription)(nil)
)
