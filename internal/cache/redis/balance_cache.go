package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// BalanceCache keeps recently observed wallet lamport balances so read-heavy
// API traffic does not hammer the RPC node. Entries expire on a short TTL;
// the chain remains the source of truth.
type BalanceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBalanceCache creates a BalanceCache with the given entry TTL.
func NewBalanceCache(c *Client, ttl time.Duration) *BalanceCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &BalanceCache{rdb: c.Underlying(), ttl: ttl}
}

func balanceKey(address string) string {
	return "balance:" + address
}

// Set stores the lamport balance for an address.
func (bc *BalanceCache) Set(ctx context.Context, address string, lamports int64) error {
	err := bc.rdb.Set(ctx, balanceKey(address), strconv.FormatInt(lamports, 10), bc.ttl).Err()
	if err != nil {
		return fmt.Errorf("redis: set balance %s: %w", address, err)
	}
	return nil
}

// Get retrieves the cached lamport balance for an address. It returns
// domain.ErrNotFound when the entry is absent or expired.
func (bc *BalanceCache) Get(ctx context.Context, address string) (int64, error) {
	val, err := bc.rdb.Get(ctx, balanceKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("redis: get balance %s: %w", address, err)
	}

	lamports, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse balance %s: %w", address, err)
	}
	return lamports, nil
}

// Invalidate drops the cached balance for an address, typically right after a
// confirmed transfer touches it.
func (bc *BalanceCache) Invalidate(ctx context.Context, address string) error {
	if err := bc.rdb.Del(ctx, balanceKey(address)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate balance %s: %w", address, err)
	}
	return nil
}
