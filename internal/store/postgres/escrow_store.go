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

// EscrowStore implements domain.EscrowStore using PostgreSQL.
type EscrowStore struct {
	pool *pgxpool.Pool
}

// NewEscrowStore creates a new EscrowStore backed by the given pool.
func NewEscrowStore(pool *pgxpool.Pool) *EscrowStore {
	return &EscrowStore{pool: pool}
}

const escrowColumns = `id, address, lamports, currency, buyer, seller, status,
	fund_tx_sig, release_tx_sig, created_at, expires_at, updated_at`

// Create inserts a new escrow account.
func (s *EscrowStore) Create(ctx context.Context, acct domain.EscrowAccount) error {
	const query = `
		INSERT INTO escrows (` + escrowColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		acct.ID, acct.Address, acct.Lamports, acct.Currency, acct.Buyer,
		acct.Seller, string(acct.Status), acct.FundTxSig, acct.ReleaseTxSig,
		acct.CreatedAt, nullableTime(acct.ExpiresAt), acct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create escrow %s: %w", acct.ID, err)
	}
	return nil
}

func scanEscrow(row pgx.Row) (domain.EscrowAccount, error) {
	var (
		acct      domain.EscrowAccount
		status    string
		expiresAt *time.Time
	)
	err := row.Scan(&acct.ID, &acct.Address, &acct.Lamports, &acct.Currency,
		&acct.Buyer, &acct.Seller, &status, &acct.FundTxSig, &acct.ReleaseTxSig,
		&acct.CreatedAt, &expiresAt, &acct.UpdatedAt)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	acct.Status = domain.EscrowStatus(status)
	if expiresAt != nil {
		acct.ExpiresAt = *expiresAt
	}
	return acct, nil
}

// GetByID fetches an escrow account by id.
func (s *EscrowStore) GetByID(ctx context.Context, id string) (domain.EscrowAccount, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE id = $1`

	acct, err := scanEscrow(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EscrowAccount{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.EscrowAccount{}, fmt.Errorf("postgres: get escrow %s: %w", id, err)
	}
	return acct, nil
}

// Update rewrites the mutable fields of an escrow account.
func (s *EscrowStore) Update(ctx context.Context, acct domain.EscrowAccount) error {
	const query = `
		UPDATE escrows SET
			status = $2, fund_tx_sig = $3, release_tx_sig = $4, updated_at = $5
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		acct.ID, string(acct.Status), acct.FundTxSig, acct.ReleaseTxSig, acct.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update escrow %s: %w", acct.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Transition moves an escrow from one status to another in a single
// compare-and-swap statement. The from guard makes concurrent transitions
// settle to exactly one winner; losers get ErrNotFound.
func (s *EscrowStore) Transition(ctx context.Context, id string, from, to domain.EscrowStatus, txSig string) error {
	query := `
		UPDATE escrows SET status = $3, updated_at = NOW()`
	args := []any{id, string(from), string(to)}

	switch to {
	case domain.EscrowStatusFunded:
		query += `, fund_tx_sig = $4`
		args = append(args, txSig)
	case domain.EscrowStatusReleased, domain.EscrowStatusCancelled:
		query += `, release_tx_sig = $4`
		args = append(args, txSig)
	}
	query += ` WHERE id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: transition escrow %s %s->%s: %w", id, from, to, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns escrow accounts with pagination and time filtering, newest
// first.
func (s *EscrowStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.EscrowAccount, error) {
	query := `SELECT ` + escrowColumns + ` FROM escrows WHERE 1=1`
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
		return nil, fmt.Errorf("postgres: list escrows: %w", err)
	}
	defer rows.Close()

	var accounts []domain.EscrowAccount
	for rows.Next() {
		acct, err := scanEscrow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan escrow: %w", err)
		}
		accounts = append(accounts, acct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: escrow rows: %w", err)
	}
	return accounts, nil
}

// Compile-time interface check.
var _ domain.EscrowStore = (*EscrowStore)(nil)
