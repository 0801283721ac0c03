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

// OfferStore implements domain.OfferStore using PostgreSQL.
type OfferStore struct {
	pool *pgxpool.Pool
}

// NewOfferStore creates a new OfferStore backed by the given pool.
func NewOfferStore(pool *pgxpool.Pool) *OfferStore {
	return &OfferStore{pool: pool}
}

const offerColumns = `id, nft_id, auction_id, bidder, lamports, currency,
	status, escrow_id, signature, created_at, expires_at, updated_at`

// Create inserts a new offer.
func (s *OfferStore) Create(ctx context.Context, o domain.Offer) error {
	const query = `
		INSERT INTO offers (` + offerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.pool.Exec(ctx, query,
		o.ID, o.NFTID, o.AuctionID, o.Bidder, o.Lamports, o.Currency,
		string(o.Status), o.EscrowID, o.Signature, o.CreatedAt,
		nullableTime(o.ExpiresAt), o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create offer %s: %w", o.ID, err)
	}
	return nil
}

func scanOffer(row pgx.Row) (domain.Offer, error) {
	var (
		o         domain.Offer
		status    string
		expiresAt *time.Time
	)
	err := row.Scan(&o.ID, &o.NFTID, &o.AuctionID, &o.Bidder, &o.Lamports,
		&o.Currency, &status, &o.EscrowID, &o.Signature, &o.CreatedAt,
		&expiresAt, &o.UpdatedAt)
	if err != nil {
		return domain.Offer{}, err
	}
	o.Status = domain.OfferStatus(status)
	if expiresAt != nil {
		o.ExpiresAt = *expiresAt
	}
	return o, nil
}

// GetByID fetches an offer by id.
func (s *OfferStore) GetByID(ctx context.Context, id string) (domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`

	o, err := scanOffer(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Offer{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Offer{}, fmt.Errorf("postgres: get offer %s: %w", id, err)
	}
	return o, nil
}

// Update rewrites the mutable fields of an offer.
func (s *OfferStore) Update(ctx context.Context, o domain.Offer) error {
	const query = `
		UPDATE offers SET status = $2, escrow_id = $3, signature = $4, updated_at = $5
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		o.ID, string(o.Status), o.EscrowID, o.Signature, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update offer %s: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListByNFT returns every offer made against an NFT, oldest first.
func (s *OfferStore) ListByNFT(ctx context.Context, nftID string) ([]domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers
		WHERE nft_id = $1 ORDER BY created_at ASC`
	return s.query(ctx, query, nftID)
}

// ListActive returns offers still in the active status, oldest first.
func (s *OfferStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers
		WHERE status = $1 ORDER BY created_at ASC`
	args := []any{string(domain.OfferStatusActive)}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.query(ctx, query, args...)
}

// List returns offers with pagination and time filtering, newest first.
func (s *OfferStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Offer, error) {
	query := `SELECT ` + offerColumns + ` FROM offers WHERE 1=1`
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

	return s.query(ctx, query, args...)
}

func (s *OfferStore) query(ctx context.Context, query string, args ...any) ([]domain.Offer, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list offers: %w", err)
	}
	defer rows.Close()

	var offers []domain.Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan offer: %w", err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: offer rows: %w", err)
	}
	return offers, nil
}

// Compile-time interface check.
var _ domain.OfferStore = (*OfferStore)(nil)
