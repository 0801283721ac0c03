package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PaymentStore persists payment requests and the append-only payment history.
type PaymentStore interface {
	SaveRequest(ctx context.Context, req PaymentRequest) error
	GetRequest(ctx context.Context, id string) (PaymentRequest, error)
	ListRequests(ctx context.Context, opts ListOpts) ([]PaymentRequest, error)
	AppendRecord(ctx context.Context, rec PaymentRecord) error
	// LatestRecord returns the most recent record for a request id.
	LatestRecord(ctx context.Context, requestID string) (PaymentRecord, error)
	ListRecords(ctx context.Context, requestID string) ([]PaymentRecord, error)
	// ListUnresolved returns requests whose latest record is non-terminal,
	// for restart reconciliation.
	ListUnresolved(ctx context.Context) ([]PaymentRecord, error)
	ListHistory(ctx context.Context, opts ListOpts) ([]PaymentRecord, error)
}

// EscrowStore persists escrow accounts.
type EscrowStore interface {
	Create(ctx context.Context, acct EscrowAccount) error
	GetByID(ctx context.Context, id string) (EscrowAccount, error)
	Update(ctx context.Context, acct EscrowAccount) error
	// Transition moves an escrow from one status to another atomically. It
	// returns ErrNotFound when no row matches id+from, which callers map to
	// an invalid-status failure.
	Transition(ctx context.Context, id string, from, to EscrowStatus, txSig string) error
	List(ctx context.Context, opts ListOpts) ([]EscrowAccount, error)
}

// AuctionStore persists auctions and their ordered bid lists.
type AuctionStore interface {
	Create(ctx context.Context, a Auction) error
	GetByID(ctx context.Context, id string) (Auction, error)
	Update(ctx context.Context, a Auction) error
	ListActive(ctx context.Context, opts ListOpts) ([]Auction, error)
	List(ctx context.Context, opts ListOpts) ([]Auction, error)
}

// OfferStore persists offers and auction bids.
type OfferStore interface {
	Create(ctx context.Context, o Offer) error
	GetByID(ctx context.Context, id string) (Offer, error)
	Update(ctx context.Context, o Offer) error
	ListByNFT(ctx context.Context, nftID string) ([]Offer, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Offer, error)
	List(ctx context.Context, opts ListOpts) ([]Offer, error)
}

// NFTStore persists the minimal NFT listing records.
type NFTStore interface {
	Upsert(ctx context.Context, n NFT) error
	GetByID(ctx context.Context, id string) (NFT, error)
	UpdateStatus(ctx context.Context, id string, status NFTStatus) error
	List(ctx context.Context, opts ListOpts) ([]NFT, error)
}

// RetryEntry is one pending resubmission in the retry queue.
type RetryEntry struct {
	Request PaymentRequest
	Due     time.Time
}

// RetryQueueStore persists pending retry entries so the queue survives a
// process restart. Entries are written on every enqueue and removed on every
// dequeue.
type RetryQueueStore interface {
	Put(ctx context.Context, e RetryEntry) error
	Delete(ctx context.Context, requestID string) error
	List(ctx context.Context) ([]RetryEntry, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log of state transitions.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
