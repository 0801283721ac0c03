package domain

import (
	"context"
	"time"
)

// RateLimiter bounds the rate of outbound RPC submissions and inbound API
// calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// LockManager provides cross-process locking keyed by entity id, so that two
// service instances never mutate the same payment, escrow, or auction
// concurrently.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// Subscription is a live event-bus subscription. Unsubscribe releases the
// underlying resources and closes C; it is safe to call more than once.
type Subscription interface {
	C() <-chan []byte
	Unsubscribe()
}

// EventBus carries state-change notifications between components and out to
// connected marketplace clients. Subscribers are explicit and individually
// removable; there is no ambient listener set.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Event channels published by the orchestration core.
const (
	ChannelPayments = "ch:payments"
	ChannelEscrows  = "ch:escrows"
	ChannelAuctions = "ch:auctions"
	ChannelOffers   = "ch:offers"
)
