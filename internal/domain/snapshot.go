package domain

import (
	"context"
	"time"
)

// Snapshot is the serializable state handed across the persistence boundary:
// everything needed to resume orchestration after a process restart.
type Snapshot struct {
	TakenAt    time.Time        `json:"taken_at"`
	Requests   []PaymentRequest `json:"requests"`
	History    []PaymentRecord  `json:"history"`
	Escrows    []EscrowAccount  `json:"escrows"`
	Auctions   []Auction        `json:"auctions"`
	Offers     []Offer          `json:"offers"`
	NFTs       []NFT            `json:"nfts"`
	RetryQueue []RetryEntry     `json:"retry_queue"`
}

// SnapshotStore saves and restores state snapshots. Load returns ErrNotFound
// when no snapshot exists yet.
type SnapshotStore interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context) (Snapshot, error)
}
