package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// RetryQueueStore implements domain.RetryQueueStore using PostgreSQL. Entries
// mirror the scheduler's in-memory queue so pending retries survive a restart.
type RetryQueueStore struct {
	pool *pgxpool.Pool
}

// NewRetryQueueStore creates a new RetryQueueStore backed by the given pool.
func NewRetryQueueStore(pool *pgxpool.Pool) *RetryQueueStore {
	return &RetryQueueStore{pool: pool}
}

// retryRequest is the JSONB encoding of a queued payment request.
type retryRequest struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Lamports   int64  `json:"lamports"`
	Currency   string `json:"currency"`
	Mint       string `json:"mint,omitempty"`
	Recipient  string `json:"recipient"`
	Memo       string `json:"memo,omitempty"`
	EscrowID   string `json:"escrow_id,omitempty"`
	ExpiresAt  int64  `json:"expires_at,omitempty"` // unix nanos; 0 = no expiry
	RetryCount int    `json:"retry_count"`
	CreatedAt  int64  `json:"created_at"` // unix nanos
}

// Put inserts or replaces the pending entry for a request id.
func (s *RetryQueueStore) Put(ctx context.Context, e domain.RetryEntry) error {
	enc := retryRequest{
		ID:         e.Request.ID,
		Kind:       string(e.Request.Kind),
		Lamports:   e.Request.Lamports,
		Currency:   e.Request.Currency,
		Mint:       e.Request.Mint,
		Recipient:  e.Request.Recipient,
		Memo:       e.Request.Memo,
		EscrowID:   e.Request.EscrowID,
		RetryCount: e.Request.RetryCount,
		CreatedAt:  e.Request.CreatedAt.UnixNano(),
	}
	if !e.Request.ExpiresAt.IsZero() {
		enc.ExpiresAt = e.Request.ExpiresAt.UnixNano()
	}

	payload, err := json.Marshal(enc)
	if err != nil {
		return fmt.Errorf("postgres: marshal retry entry %s: %w", e.Request.ID, err)
	}

	const query = `
		INSERT INTO retry_queue (request_id, request, due)
		VALUES ($1, $2, $3)
		ON CONFLICT (request_id) DO UPDATE SET
			request = EXCLUDED.request,
			due = EXCLUDED.due`

	if _, err := s.pool.Exec(ctx, query, e.Request.ID, payload, e.Due); err != nil {
		return fmt.Errorf("postgres: put retry entry %s: %w", e.Request.ID, err)
	}
	return nil
}

// Delete removes the pending entry for a request id. Deleting an absent entry
// is not an error.
func (s *RetryQueueStore) Delete(ctx context.Context, requestID string) error {
	const query = `DELETE FROM retry_queue WHERE request_id = $1`
	if _, err := s.pool.Exec(ctx, query, requestID); err != nil {
		return fmt.Errorf("postgres: delete retry entry %s: %w", requestID, err)
	}
	return nil
}

// List returns all pending entries ordered by due time.
func (s *RetryQueueStore) List(ctx context.Context) ([]domain.RetryEntry, error) {
	const query = `SELECT request, due FROM retry_queue ORDER BY due ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list retry queue: %w", err)
	}
	defer rows.Close()

	var entries []domain.RetryEntry
	for rows.Next() {
		var (
			payload []byte
			e       domain.RetryEntry
		)
		if err := rows.Scan(&payload, &e.Due); err != nil {
			return nil, fmt.Errorf("postgres: scan retry entry: %w", err)
		}

		var enc retryRequest
		if err := json.Unmarshal(payload, &enc); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal retry entry: %w", err)
		}
		e.Request = domain.PaymentRequest{
			ID:         enc.ID,
			Kind:       domain.PaymentKind(enc.Kind),
			Lamports:   enc.Lamports,
			Currency:   enc.Currency,
			Mint:       enc.Mint,
			Recipient:  enc.Recipient,
			Memo:       enc.Memo,
			EscrowID:   enc.EscrowID,
			RetryCount: enc.RetryCount,
		}
		e.Request.CreatedAt = unixNanoTime(enc.CreatedAt)
		if enc.ExpiresAt != 0 {
			e.Request.ExpiresAt = unixNanoTime(enc.ExpiresAt)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: retry queue rows: %w", err)
	}
	return entries, nil
}

func unixNanoTime(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// Compile-time interface check.
var _ domain.RetryQueueStore = (*RetryQueueStore)(nil)
