package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// AuctionStore implements domain.AuctionStore using PostgreSQL.
type AuctionStore struct {
	pool *pgxpool.Pool
}

// NewAuctionStore creates a new AuctionStore backed by the given pool.
func NewAuctionStore(pool *pgxpool.Pool) *AuctionStore {
	return &AuctionStore{pool: pool}
}

const auctionColumns = `id, nft_id, seller, starting_price, current_bid, currency,
	status, highest_bidder, highest_offer_id, bid_ids, start_time, end_time, updated_at`

// Create inserts a new auction.
func (s *AuctionStore) Create(ctx context.Context, a domain.Auction) error {
	const query = `
		INSERT INTO auctions (` + auctionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := s.pool.Exec(ctx, query,
		a.ID, a.NFTID, a.Seller, a.StartingPrice, a.CurrentBid, a.Currency,
		string(a.Status), a.HighestBidder, a.HighestOfferID, a.BidIDs,
		a.StartTime, a.EndTime, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create auction %s: %w", a.ID, err)
	}
	return nil
}

func scanAuction(row pgx.Row) (domain.Auction, error) {
	var (
		a      domain.Auction
		status string
	)
	err := row.Scan(&a.ID, &a.NFTID, &a.Seller, &a.StartingPrice, &a.CurrentBid,
		&a.Currency, &status, &a.HighestBidder, &a.HighestOfferID, &a.BidIDs,
		&a.StartTime, &a.EndTime, &a.UpdatedAt)
	if err != nil {
		return domain.Auction{}, err
	}
	a.Status = domain.AuctionStatus(status)
	return a, nil
}

// GetByID fetches an auction by id.
func (s *AuctionStore) GetByID(ctx context.Context, id string) (domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`

	a, err := scanAuction(s.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Auction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Auction{}, fmt.Errorf("postgres: get auction %s: %w", id, err)
	}
	return a, nil
}

// Update rewrites the mutable fields of an auction, including its ordered bid
// list.
func (s *AuctionStore) Update(ctx context.Context, a domain.Auction) error {
	const query = `
		UPDATE auctions SET
			current_bid = $2, status = $3, highest_bidder = $4,
			highest_offer_id = $5, bid_ids = $6, updated_at = $7
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		a.ID, a.CurrentBid, string(a.Status), a.HighestBidder,
		a.HighestOfferID, a.BidIDs, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update auction %s: %w", a.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActive returns auctions still in the active status, soonest-ending
// first.
func (s *AuctionStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions
		WHERE status = $1 ORDER BY end_time ASC`
	args := []any{string(domain.AuctionStatusActive)}
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

// List returns auctions with pagination and time filtering, newest first.
func (s *AuctionStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND start_time >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND start_time <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY start_time DESC"

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

func (s *AuctionStore) query(ctx context.Context, query string, args ...any) ([]domain.Auction, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list auctions: %w", err)
	}
	defer rows.Close()

	var auctions []domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan auction: %w", err)
		}
		auctions = append(auctions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: auction rows: %w", err)
	}
	return auctions, nil
}

// Compile-time interface check.
var _ domain.AuctionStore = (*AuctionStore)(nil)
