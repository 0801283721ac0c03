package snapshot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// Stores bundles the persistence interfaces the collector reads from and
// restores into.
type Stores struct {
	Payments domain.PaymentStore
	Escrows  domain.EscrowStore
	Auctions domain.AuctionStore
	Offers   domain.OfferStore
	NFTs     domain.NFTStore
	Retry    domain.RetryQueueStore
}

// Collector assembles full-state snapshots from the stores and writes them
// back during recovery.
type Collector struct {
	stores Stores
	sink   domain.SnapshotStore
	logger *slog.Logger
}

// NewCollector creates a Collector persisting through sink.
func NewCollector(stores Stores, sink domain.SnapshotStore, logger *slog.Logger) *Collector {
	return &Collector{
		stores: stores,
		sink:   sink,
		logger: logger.With(slog.String("component", "snapshot")),
	}
}

// Take reads the current state of every store and saves it through the sink.
func (c *Collector) Take(ctx context.Context) (domain.Snapshot, error) {
	snap := domain.Snapshot{TakenAt: time.Now().UTC()}

	var err error
	if snap.Requests, err = c.stores.Payments.ListRequests(ctx, domain.ListOpts{}); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot: collect requests: %w", err)
	}
	if snap.History, err = c.stores.Payments.ListHistory(ctx, domain.ListOpts{}); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot: collect history: %w", err)
	}
	if snap.Escrows, err = c.stores.Escrows.List(ctx, domain.ListOpts{}); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot: collect escrows: %w", err)
	}
	if snap.Auctions, err = c.stores.Auctions.List(ctx, domain.ListOpts{}); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot: collect auctions: %w", err)
	}
	if snap.Offers, err = c.stores.Offers.List(ctx, domain.ListOpts{}); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot: collect offers: %w", err)
	}
	if snap.NFTs, err = c.stores.NFTs.List(ctx, domain.ListOpts{}); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot: collect nfts: %w", err)
	}
	if snap.RetryQueue, err = c.stores.Retry.List(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("snapshot: collect retry queue: %w", err)
	}

	if err := c.sink.Save(ctx, snap); err != nil {
		return domain.Snapshot{}, err
	}

	c.logger.Info("snapshot taken",
		slog.Int("requests", len(snap.Requests)),
		slog.Int("escrows", len(snap.Escrows)),
		slog.Int("auctions", len(snap.Auctions)),
		slog.Int("retry_queue", len(snap.RetryQueue)))
	return snap, nil
}

// Restore loads the latest snapshot from the sink and writes its contents
// back into the stores. Existing rows with the same ids are overwritten.
func (c *Collector) Restore(ctx context.Context) (domain.Snapshot, error) {
	snap, err := c.sink.Load(ctx)
	if err != nil {
		return domain.Snapshot{}, err
	}

	for _, n := range snap.NFTs {
		if err := c.stores.NFTs.Upsert(ctx, n); err != nil {
			return domain.Snapshot{}, fmt.Errorf("snapshot: restore nft %s: %w", n.ID, err)
		}
	}
	for _, req := range snap.Requests {
		if err := c.stores.Payments.SaveRequest(ctx, req); err != nil {
			return domain.Snapshot{}, fmt.Errorf("snapshot: restore request %s: %w", req.ID, err)
		}
	}
	for _, acct := range snap.Escrows {
		if err := c.stores.Escrows.Create(ctx, acct); err != nil {
			// Row may already exist; bring it up to date instead.
			if uerr := c.stores.Escrows.Update(ctx, acct); uerr != nil {
				return domain.Snapshot{}, fmt.Errorf("snapshot: restore escrow %s: %w", acct.ID, uerr)
			}
		}
	}
	for _, a := range snap.Auctions {
		if err := c.stores.Auctions.Create(ctx, a); err != nil {
			if uerr := c.stores.Auctions.Update(ctx, a); uerr != nil {
				return domain.Snapshot{}, fmt.Errorf("snapshot: restore auction %s: %w", a.ID, uerr)
			}
		}
	}
	for _, o := range snap.Offers {
		if err := c.stores.Offers.Create(ctx, o); err != nil {
			if uerr := c.stores.Offers.Update(ctx, o); uerr != nil {
				return domain.Snapshot{}, fmt.Errorf("snapshot: restore offer %s: %w", o.ID, uerr)
			}
		}
	}
	for _, e := range snap.RetryQueue {
		if err := c.stores.Retry.Put(ctx, e); err != nil {
			return domain.Snapshot{}, fmt.Errorf("snapshot: restore retry entry %s: %w", e.Request.ID, err)
		}
	}

	c.logger.Info("snapshot restored",
		slog.Time("taken_at", snap.TakenAt),
		slog.Int("requests", len(snap.Requests)),
		slog.Int("escrows", len(snap.Escrows)))
	return snap, nil
}
