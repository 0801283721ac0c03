package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// PaymentStore implements domain.PaymentStore using PostgreSQL.
type PaymentStore struct {
	pool *pgxpool.Pool
}

// NewPaymentStore creates a new PaymentStore backed by the given pool.
func NewPaymentStore(pool *pgxpool.Pool) *PaymentStore {
	return &PaymentStore{pool: pool}
}

// SaveRequest inserts a payment request, or refreshes its retry count on
// conflict. All other request fields are immutable after creation.
func (s *PaymentStore) SaveRequest(ctx context.Context, req domain.PaymentRequest) error {
	const query = `
		INSERT INTO payment_requests
			(id, kind, lamports, currency, mint, recipient, memo, escrow_id, expires_at, retry_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET retry_count = EXCLUDED.retry_count`

	_, err := s.pool.Exec(ctx, query,
		req.ID, string(req.Kind), req.Lamports, req.Currency, req.Mint,
		req.Recipient, req.Memo, req.EscrowID, nullableTime(req.ExpiresAt),
		req.RetryCount, req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save payment request %s: %w", req.ID, err)
	}
	return nil
}

// GetRequest fetches a payment request by id.
func (s *PaymentStore) GetRequest(ctx context.Context, id string) (domain.PaymentRequest, error) {
	const query = `
		SELECT id, kind, lamports, currency, mint, recipient, memo, escrow_id, expires_at, retry_count, created_at
		FROM payment_requests WHERE id = $1`

	var (
		req       domain.PaymentRequest
		kind      string
		expiresAt *time.Time
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&req.ID, &kind, &req.Lamports, &req.Currency, &req.Mint,
		&req.Recipient, &req.Memo, &req.EscrowID, &expiresAt,
		&req.RetryCount, &req.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PaymentRequest{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PaymentRequest{}, fmt.Errorf("postgres: get payment request %s: %w", id, err)
	}
	req.Kind = domain.PaymentKind(kind)
	if expiresAt != nil {
		req.ExpiresAt = *expiresAt
	}
	return req, nil
}

// ListRequests returns payment requests with pagination, newest first.
func (s *PaymentStore) ListRequests(ctx context.Context, opts domain.ListOpts) ([]domain.PaymentRequest, error) {
	query := `
		SELECT id, kind, lamports, currency, mint, recipient, memo, escrow_id, expires_at, retry_count, created_at
		FROM payment_requests WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payment requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.PaymentRequest
	for rows.Next() {
		var (
			req       domain.PaymentRequest
			kind      string
			expiresAt *time.Time
		)
		err := rows.Scan(&req.ID, &kind, &req.Lamports, &req.Currency, &req.Mint,
			&req.Recipient, &req.Memo, &req.EscrowID, &expiresAt,
			&req.RetryCount, &req.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan payment request: %w", err)
		}
		req.Kind = domain.PaymentKind(kind)
		if expiresAt != nil {
			req.ExpiresAt = *expiresAt
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: payment request rows: %w", err)
	}
	return requests, nil
}

// AppendRecord appends one outcome row to the payment history.
func (s *PaymentStore) AppendRecord(ctx context.Context, rec domain.PaymentRecord) error {
	const query = `
		INSERT INTO payment_records
			(id, request_id, success, tx_signature, status, fee_lamports, error_code, ts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		rec.ID, rec.RequestID, rec.Success, rec.TxSignature,
		string(rec.Status), rec.FeeLamports, rec.ErrorCode, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("postgres: append payment record %s: %w", rec.ID, err)
	}
	return nil
}

const recordColumns = `id, request_id, success, tx_signature, status, fee_lamports, error_code, ts`

func scanRecord(row pgx.Row) (domain.PaymentRecord, error) {
	var (
		rec    domain.PaymentRecord
		status string
	)
	err := row.Scan(&rec.ID, &rec.RequestID, &rec.Success, &rec.TxSignature,
		&status, &rec.FeeLamports, &rec.ErrorCode, &rec.Timestamp)
	if err != nil {
		return domain.PaymentRecord{}, err
	}
	rec.Status = domain.PaymentStatus(status)
	return rec, nil
}

// LatestRecord returns the most recent history row for a request id.
func (s *PaymentStore) LatestRecord(ctx context.Context, requestID string) (domain.PaymentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM payment_records
		WHERE request_id = $1 ORDER BY ts DESC LIMIT 1`

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PaymentRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("postgres: latest record for %s: %w", requestID, err)
	}
	return rec, nil
}

// ListRecords returns all history rows for a request id, oldest first.
func (s *PaymentStore) ListRecords(ctx context.Context, requestID string) ([]domain.PaymentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM payment_records
		WHERE request_id = $1 ORDER BY ts ASC`

	rows, err := s.pool.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list records for %s: %w", requestID, err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

// ListUnresolved returns the latest record of every request whose history has
// not reached a terminal status, for restart reconciliation.
func (s *PaymentStore) ListUnresolved(ctx context.Context) ([]domain.PaymentRecord, error) {
	query := `SELECT DISTINCT ON (request_id) ` + recordColumns + `
		FROM payment_records
		ORDER BY request_id, ts DESC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unresolved records: %w", err)
	}
	defer rows.Close()

	all, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}

	var unresolved []domain.PaymentRecord
	for _, rec := range all {
		if !rec.Status.Terminal() {
			unresolved = append(unresolved, rec)
		}
	}
	return unresolved, nil
}

// ListHistory returns history rows with pagination and time filtering, newest
// first.
func (s *PaymentStore) ListHistory(ctx context.Context, opts domain.ListOpts) ([]domain.PaymentRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM payment_records WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND ts >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND ts <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY ts DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list payment history: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func collectRecords(rows pgx.Rows) ([]domain.PaymentRecord, error) {
	var records []domain.PaymentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan payment record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: payment record rows: %w", err)
	}
	return records, nil
}

// nullableTime maps the zero time to NULL.
func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Compile-time interface check.
var _ domain.PaymentStore = (*PaymentStore)(nil)
