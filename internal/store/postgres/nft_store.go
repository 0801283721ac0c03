package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// NFTStore implements domain.NFTStore using PostgreSQL.
type NFTStore struct {
	pool *pgxpool.Pool
}

// NewNFTStore creates a new NFTStore backed by the given pool.
func NewNFTStore(pool *pgxpool.Pool) *NFTStore {
	return &NFTStore{pool: pool}
}

// Upsert inserts or replaces an NFT listing record.
func (s *NFTStore) Upsert(ctx context.Context, n domain.NFT) error {
	const query = `
		INSERT INTO nfts (id, owner, status, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query, n.ID, n.Owner, string(n.Status), n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert nft %s: %w", n.ID, err)
	}
	return nil
}

// GetByID fetches an NFT record by id.
func (s *NFTStore) GetByID(ctx context.Context, id string) (domain.NFT, error) {
	const query = `SELECT id, owner, status, updated_at FROM nfts WHERE id = $1`

	var (
		n      domain.NFT
		status string
	)
	err := s.pool.QueryRow(ctx, query, id).Scan(&n.ID, &n.Owner, &status, &n.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NFT{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.NFT{}, fmt.Errorf("postgres: get nft %s: %w", id, err)
	}
	n.Status = domain.NFTStatus(status)
	return n, nil
}

// UpdateStatus sets the listing status of an NFT.
func (s *NFTStore) UpdateStatus(ctx context.Context, id string, status domain.NFTStatus) error {
	const query = `UPDATE nfts SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update nft %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns NFT records with pagination, most recently updated first.
func (s *NFTStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.NFT, error) {
	query := `SELECT id, owner, status, updated_at FROM nfts ORDER BY updated_at DESC`
	args := []any{}
	argIdx := 1

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
		return nil, fmt.Errorf("postgres: list nfts: %w", err)
	}
	defer rows.Close()

	var nfts []domain.NFT
	for rows.Next() {
		var (
			n      domain.NFT
			status string
		)
		if err := rows.Scan(&n.ID, &n.Owner, &status, &n.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan nft: %w", err)
		}
		n.Status = domain.NFTStatus(status)
		nfts = append(nfts, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: nft rows: %w", err)
	}
	return nfts, nil
}

// Compile-time interface check.
var _ domain.NFTStore = (*NFTStore)(nil)
