// Package auction owns the auction and offer state machines. All fund
// movement is delegated to the escrow ledger; a state transition is recorded
// only after its dependent transfer has settled.
package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/keylock"
)

// EscrowService is the slice of the escrow ledger the engine needs.
type EscrowService interface {
	Create(ctx context.Context, lamports int64, currency, buyer, seller string, expiresAt time.Time) (domain.EscrowAccount, error)
	Fund(ctx context.Context, escrowID string, kind domain.PaymentKind) (domain.EscrowAccount, error)
	Release(ctx context.Context, escrowID string) (domain.EscrowAccount, error)
	Cancel(ctx context.Context, escrowID string) (domain.EscrowAccount, error)
}

// Engine drives auctions (active -> ended | cancelled) and offers
// (active -> accepted | rejected | cancelled).
//
// An auction whose wall-clock deadline has passed rejects new bids lazily but
// keeps its stored status active until an explicit EndAuction call; there is
// no auto-close timer.
type Engine struct {
	auctions domain.AuctionStore
	offers   domain.OfferStore
	nfts     domain.NFTStore
	escrows  EscrowService
	wallet   domain.Wallet
	locks    *keylock.KeyedMutex
	audit    domain.AuditStore
	bus      domain.EventBus
	logger   *slog.Logger

	now func() time.Time
}

// NewEngine creates an Engine. audit and bus may be nil.
func NewEngine(
	auctions domain.AuctionStore,
	offers domain.OfferStore,
	nfts domain.NFTStore,
	escrows EscrowService,
	wallet domain.Wallet,
	audit domain.AuditStore,
	bus domain.EventBus,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		auctions: auctions,
		offers:   offers,
		nfts:     nfts,
		escrows:  escrows,
		wallet:   wallet,
		locks:    keylock.New(),
		audit:    audit,
		bus:      bus,
		logger:   logger.With(slog.String("component", "auction_engine")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the engine's time source. Test hook.
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

// CreateAuction lists an NFT for auction with currentBid seeded from the
// starting price. The connected wallet is the seller.
func (e *Engine) CreateAuction(ctx context.Context, nftID string, startingPrice int64, duration time.Duration, currency string) (domain.Auction, error) {
	if e.wallet == nil || !e.wallet.Connected() {
		return domain.Auction{}, domain.StateErr(domain.CodeWalletNotConnected, "wallet is not connected")
	}
	if startingPrice <= 0 {
		return domain.Auction{}, domain.ValidationErr(domain.CodeInvalidAmount,
			fmt.Sprintf("starting price must be positive, got %d lamports", startingPrice))
	}
	if duration <= 0 {
		return domain.Auction{}, domain.ValidationErr(domain.CodeInvalidAmount,
			"auction duration must be positive")
	}

	now := e.now()
	a := domain.Auction{
		ID:            uuid.New().String(),
		NFTID:         nftID,
		Seller:        e.wallet.Address(),
		StartingPrice: startingPrice,
		CurrentBid:    startingPrice,
		Currency:      currency,
		Status:        domain.AuctionStatusActive,
		StartTime:     now,
		EndTime:       now.Add(duration),
		UpdatedAt:     now,
	}
	if err := e.auctions.Create(ctx, a); err != nil {
		return domain.Auction{}, fmt.Errorf("auction: create: %w", err)
	}

	if err := e.nfts.Upsert(ctx, domain.NFT{
		ID:        nftID,
		Owner:     a.Seller,
		Status:    domain.NFTStatusAuction,
		UpdatedAt: now,
	}); err != nil {
		return domain.Auction{}, fmt.Errorf("auction: mark nft %s: %w", nftID, err)
	}

	e.logger.Info("auction created",
		slog.String("auction_id", a.ID),
		slog.String("nft_id", nftID),
		slog.Int64("starting_price", startingPrice),
	)
	e.auditLog(ctx, "auction.created", map[string]any{"auction_id": a.ID, "nft_id": nftID})
	e.emitAuction(ctx, "auction.created", a)
	return a, nil
}

// PlaceBid funds a bid through the escrow ledger and, only after the funding
// confirms, appends it and advances currentBid. Ties are rejected: a bid must
// strictly exceed the current bid.
func (e *Engine) PlaceBid(ctx context.Context, auctionID string, lamports int64) (domain.Offer, error) {
	if e.wallet == nil || !e.wallet.Connected() {
		return domain.Offer{}, domain.StateErr(domain.CodeWalletNotConnected, "wallet is not connected")
	}

	unlock := e.locks.Lock("auction:" + auctionID)
	defer unlock()

	a, err := e.getAuction(ctx, auctionID)
	if err != nil {
		return domain.Offer{}, err
	}
	if a.Status != domain.AuctionStatusActive {
		return domain.Offer{}, domain.StateErr(domain.CodeInvalidAuctionStatus,
			fmt.Sprintf("auction %s is %s", auctionID, a.Status))
	}
	now := e.now()
	if a.Ended(now) {
		return domain.Offer{}, domain.StateErr(domain.CodeAuctionEnded,
			fmt.Sprintf("auction %s ended at %s", auctionID, a.EndTime.Format(time.RFC3339)))
	}
	if lamports <= a.CurrentBid {
		return domain.Offer{}, domain.StateErr(domain.CodeBidTooLow,
			fmt.Sprintf("bid %d must exceed current bid %d", lamports, a.CurrentBid))
	}

	bidder := e.wallet.Address()

	acct, err := e.escrows.Create(ctx, lamports, a.Currency, bidder, a.Seller, a.EndTime)
	if err != nil {
		return domain.Offer{}, err
	}

	offer := domain.Offer{
		ID:        uuid.New().String(),
		NFTID:     a.NFTID,
		AuctionID: a.ID,
		Bidder:    bidder,
		Lamports:  lamports,
		Currency:  a.Currency,
		Status:    domain.OfferStatusActive,
		EscrowID:  acct.ID,
		CreatedAt: now,
		ExpiresAt: a.EndTime,
		UpdatedAt: now,
	}
	if err := e.offers.Create(ctx, offer); err != nil {
		return domain.Offer{}, fmt.Errorf("auction: create bid offer: %w", err)
	}

	funded, err := e.escrows.Fund(ctx, acct.ID, domain.PaymentKindAuctionBid)
	if err != nil {
		// The bid never lands; void the offer and its escrow so neither can
		// be picked up later.
		offer.Status = domain.OfferStatusCancelled
		offer.UpdatedAt = e.now()
		if uerr := e.offers.Update(ctx, offer); uerr != nil {
			e.logger.Error("bid offer void failed",
				slog.String("offer_id", offer.ID),
				slog.String("error", uerr.Error()))
		}
		if _, cerr := e.escrows.Cancel(ctx, acct.ID); cerr != nil {
			e.logger.Error("bid escrow void failed",
				slog.String("escrow_id", acct.ID),
				slog.String("error", cerr.Error()))
		}
		return domain.Offer{}, err
	}

	offer.Signature = funded.FundTxSig
	offer.UpdatedAt = e.now()
	if err := e.offers.Update(ctx, offer); err != nil {
		return domain.Offer{}, fmt.Errorf("auction: update bid offer: %w", err)
	}

	prevOfferID := a.HighestOfferID

	a.BidIDs = append(a.BidIDs, offer.ID)
	a.CurrentBid = lamports
	a.HighestBidder = bidder
	a.HighestOfferID = offer.ID
	a.UpdatedAt = e.now()
	if err := e.auctions.Update(ctx, a); err != nil {
		return domain.Offer{}, fmt.Errorf("auction: update %s: %w", auctionID, err)
	}

	// The outbid escrow is reimbursed right away rather than held until the
	// auction settles. A failed refund leaves it funded and cancellable later.
	if prevOfferID != "" {
		e.refundOutbid(ctx, prevOfferID)
	}

	e.logger.Info("bid placed",
		slog.String("auction_id", auctionID),
		slog.String("offer_id", offer.ID),
		slog.Int64("lamports", lamports),
	)
	e.auditLog(ctx, "auction.bid", map[string]any{
		"auction_id": auctionID, "offer_id": offer.ID, "lamports": lamports,
	})
	e.emitOffer(ctx, "auction.bid", offer)
	return offer, nil
}

// refundOutbid cancels the escrow behind a superseded bid and retires the
// offer.
func (e *Engine) refundOutbid(ctx context.Context, offerID string) {
	prev, err := e.offers.GetByID(ctx, offerID)
	if err != nil {
		e.logger.Warn("outbid offer lookup failed",
			slog.String("offer_id", offerID),
			slog.String("error", err.Error()))
		return
	}
	if prev.Status != domain.OfferStatusActive {
		return
	}
	if _, err := e.escrows.Cancel(ctx, prev.EscrowID); err != nil {
		e.logger.Warn("outbid escrow refund failed",
			slog.String("offer_id", offerID),
			slog.String("escrow_id", prev.EscrowID),
			slog.String("error", err.Error()))
		return
	}
	prev.Status = domain.OfferStatusRejected
	prev.UpdatedAt = e.now()
	if err := e.offers.Update(ctx, prev); err != nil {
		e.logger.Warn("outbid offer update failed",
			slog.String("offer_id", offerID),
			slog.String("error", err.Error()))
	}
}

// EndAuction settles an active auction. With a highest bidder, the winning
// escrow is released to the seller and the NFT is marked sold; with no bids
// the auction simply ends with no fund movement.
func (e *Engine) EndAuction(ctx context.Context, auctionID string) (domain.Auction, error) {
	unlock := e.locks.Lock("auction:" + auctionID)
	defer unlock()

	a, err := e.getAuction(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	if a.Status != domain.AuctionStatusActive {
		return a, domain.StateErr(domain.CodeInvalidAuctionStatus,
			fmt.Sprintf("auction %s is %s, end requires active", auctionID, a.Status))
	}

	if a.HighestOfferID != "" {
		winning, oerr := e.offers.GetByID(ctx, a.HighestOfferID)
		if oerr != nil {
			return a, fmt.Errorf("auction: winning offer %s: %w", a.HighestOfferID, oerr)
		}

		if _, rerr := e.escrows.Release(ctx, winning.EscrowID); rerr != nil {
			// Funds stay escrowed and the auction stays active; the caller
			// re-issues EndAuction once the transfer can settle.
			return a, rerr
		}

		winning.Status = domain.OfferStatusAccepted
		winning.UpdatedAt = e.now()
		if uerr := e.offers.Update(ctx, winning); uerr != nil {
			return a, fmt.Errorf("auction: accept winning offer: %w", uerr)
		}
		if nerr := e.nfts.UpdateStatus(ctx, a.NFTID, domain.NFTStatusSold); nerr != nil {
			return a, fmt.Errorf("auction: mark nft sold: %w", nerr)
		}
	} else if nerr := e.nfts.UpdateStatus(ctx, a.NFTID, domain.NFTStatusListed); nerr != nil {
		return a, fmt.Errorf("auction: relist nft: %w", nerr)
	}

	a.Status = domain.AuctionStatusEnded
	a.UpdatedAt = e.now()
	if err := e.auctions.Update(ctx, a); err != nil {
		return a, fmt.Errorf("auction: end %s: %w", auctionID, err)
	}

	e.logger.Info("auction ended",
		slog.String("auction_id", auctionID),
		slog.String("highest_bidder", a.HighestBidder),
		slog.Int64("final_bid", a.CurrentBid),
	)
	e.auditLog(ctx, "auction.ended", map[string]any{
		"auction_id": auctionID, "final_bid": a.CurrentBid, "winner": a.HighestBidder,
	})
	e.emitAuction(ctx, "auction.ended", a)
	return a, nil
}

// CancelAuction voids an active auction: the highest funded bid is reimbursed
// and the NFT returns to listed.
func (e *Engine) CancelAuction(ctx context.Context, auctionID string) (domain.Auction, error) {
	unlock := e.locks.Lock("auction:" + auctionID)
	defer unlock()

	a, err := e.getAuction(ctx, auctionID)
	if err != nil {
		return domain.Auction{}, err
	}
	if a.Status != domain.AuctionStatusActive {
		return a, domain.StateErr(domain.CodeInvalidAuctionStatus,
			fmt.Sprintf("auction %s is %s, cancel requires active", auctionID, a.Status))
	}

	if a.HighestOfferID != "" {
		e.refundOutbid(ctx, a.HighestOfferID)
	}
	if err := e.nfts.UpdateStatus(ctx, a.NFTID, domain.NFTStatusListed); err != nil {
		return a, fmt.Errorf("auction: relist nft: %w", err)
	}

	a.Status = domain.AuctionStatusCancelled
	a.UpdatedAt = e.now()
	if err := e.auctions.Update(ctx, a); err != nil {
		return a, fmt.Errorf("auction: cancel %s: %w", auctionID, err)
	}

	e.logger.Info("auction cancelled", slog.String("auction_id", auctionID))
	e.auditLog(ctx, "auction.cancelled", map[string]any{"auction_id": auctionID})
	e.emitAuction(ctx, "auction.cancelled", a)
	return a, nil
}

// MakeOffer places an escrow-backed buy-now offer on an NFT. The offer's
// funds are escrowed up front so acceptance only needs a release.
func (e *Engine) MakeOffer(ctx context.Context, nftID string, lamports int64, currency string, expiresAt time.Time) (domain.Offer, error) {
	if e.wallet == nil || !e.wallet.Connected() {
		return domain.Offer{}, domain.StateErr(domain.CodeWalletNotConnected, "wallet is not connected")
	}

	nft, err := e.getNFT(ctx, nftID)
	if err != nil {
		return domain.Offer{}, err
	}
	if nft.Status == domain.NFTStatusSold {
		return domain.Offer{}, domain.StateErr(domain.CodeNFTSold,
			fmt.Sprintf("nft %s is already sold", nftID))
	}

	bidder := e.wallet.Address()
	acct, err := e.escrows.Create(ctx, lamports, currency, bidder, nft.Owner, expiresAt)
	if err != nil {
		return domain.Offer{}, err
	}

	now := e.now()
	offer := domain.Offer{
		ID:        uuid.New().String(),
		NFTID:     nftID,
		Bidder:    bidder,
		Lamports:  lamports,
		Currency:  currency,
		Status:    domain.OfferStatusActive,
		EscrowID:  acct.ID,
		CreatedAt: now,
		ExpiresAt: expiresAt,
		UpdatedAt: now,
	}
	if err := e.offers.Create(ctx, offer); err != nil {
		return domain.Offer{}, fmt.Errorf("auction: create offer: %w", err)
	}

	funded, err := e.escrows.Fund(ctx, acct.ID, domain.PaymentKindEscrow)
	if err != nil {
		offer.Status = domain.OfferStatusCancelled
		offer.UpdatedAt = e.now()
		if uerr := e.offers.Update(ctx, offer); uerr != nil {
			e.logger.Error("offer void failed",
				slog.String("offer_id", offer.ID),
				slog.String("error", uerr.Error()))
		}
		if _, cerr := e.escrows.Cancel(ctx, acct.ID); cerr != nil {
			e.logger.Error("offer escrow void failed",
				slog.String("escrow_id", acct.ID),
				slog.String("error", cerr.Error()))
		}
		return domain.Offer{}, err
	}

	offer.Signature = funded.FundTxSig
	offer.UpdatedAt = e.now()
	if err := e.offers.Update(ctx, offer); err != nil {
		return domain.Offer{}, fmt.Errorf("auction: update offer: %w", err)
	}

	e.logger.Info("offer made",
		slog.String("offer_id", offer.ID),
		slog.String("nft_id", nftID),
		slog.Int64("lamports", lamports),
	)
	e.auditLog(ctx, "offer.made", map[string]any{
		"offer_id": offer.ID, "nft_id": nftID, "lamports": lamports,
	})
	e.emitOffer(ctx, "offer.made", offer)
	return offer, nil
}

// AcceptOffer releases the offer's escrow to the seller and marks the NFT
// sold. At most one offer per NFT can ever be accepted: once the NFT reads
// sold, accepting any further offer fails.
func (e *Engine) AcceptOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	offer, err := e.getOffer(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}

	unlock := e.locks.Lock("nft:" + offer.NFTID)
	defer unlock()

	// Re-read under the lock; a concurrent accept may have settled first.
	offer, err = e.getOffer(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	// Auction bids settle through EndAuction only; accepting one directly
	// would sell the NFT out from under an active auction.
	if offer.AuctionID != "" {
		return offer, domain.StateErr(domain.CodeInvalidAuctionStatus,
			fmt.Sprintf("offer %s is a bid on auction %s", offerID, offer.AuctionID))
	}
	if offer.Status != domain.OfferStatusActive {
		return offer, domain.StateErr(domain.CodeInvalidEscrowStatus,
			fmt.Sprintf("offer %s is %s, accept requires active", offerID, offer.Status))
	}

	nft, err := e.getNFT(ctx, offer.NFTID)
	if err != nil {
		return offer, err
	}
	if nft.Status == domain.NFTStatusSold {
		return offer, domain.StateErr(domain.CodeNFTSold,
			fmt.Sprintf("nft %s was already sold to another offer", offer.NFTID))
	}

	if _, err := e.escrows.Release(ctx, offer.EscrowID); err != nil {
		return offer, err
	}

	offer.Status = domain.OfferStatusAccepted
	offer.UpdatedAt = e.now()
	if err := e.offers.Update(ctx, offer); err != nil {
		return offer, fmt.Errorf("auction: accept offer %s: %w", offerID, err)
	}
	if err := e.nfts.UpdateStatus(ctx, offer.NFTID, domain.NFTStatusSold); err != nil {
		return offer, fmt.Errorf("auction: mark nft sold: %w", err)
	}

	e.logger.Info("offer accepted", slog.String("offer_id", offerID))
	e.auditLog(ctx, "offer.accepted", map[string]any{"offer_id": offerID, "nft_id": offer.NFTID})
	e.emitOffer(ctx, "offer.accepted", offer)
	return offer, nil
}

// RejectOffer cancels the offer's escrow, reimbursing the bidder.
func (e *Engine) RejectOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	offer, err := e.getOffer(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}

	unlock := e.locks.Lock("nft:" + offer.NFTID)
	defer unlock()

	offer, err = e.getOffer(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	// Rejecting a bid directly would cancel the winning escrow and strand the
	// auction; bids are retired by outbidding, EndAuction, or CancelAuction.
	if offer.AuctionID != "" {
		return offer, domain.StateErr(domain.CodeInvalidAuctionStatus,
			fmt.Sprintf("offer %s is a bid on auction %s", offerID, offer.AuctionID))
	}
	if offer.Status != domain.OfferStatusActive {
		return offer, domain.StateErr(domain.CodeInvalidEscrowStatus,
			fmt.Sprintf("offer %s is %s, reject requires active", offerID, offer.Status))
	}

	if acct, cerr := e.escrows.Cancel(ctx, offer.EscrowID); cerr != nil {
		// An unfunded escrow may already be terminal; anything else aborts.
		if acct.Status != domain.EscrowStatusCancelled {
			return offer, cerr
		}
	}

	offer.Status = domain.OfferStatusRejected
	offer.UpdatedAt = e.now()
	if err := e.offers.Update(ctx, offer); err != nil {
		return offer, fmt.Errorf("auction: reject offer %s: %w", offerID, err)
	}

	e.logger.Info("offer rejected", slog.String("offer_id", offerID))
	e.auditLog(ctx, "offer.rejected", map[string]any{"offer_id": offerID})
	e.emitOffer(ctx, "offer.rejected", offer)
	return offer, nil
}

// GetAuction returns an auction by id.
func (e *Engine) GetAuction(ctx context.Context, auctionID string) (domain.Auction, error) {
	return e.getAuction(ctx, auctionID)
}

// ListAuctions returns auctions.
func (e *Engine) ListAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error) {
	return e.auctions.List(ctx, opts)
}

// GetOffer returns an offer by id.
func (e *Engine) GetOffer(ctx context.Context, offerID string) (domain.Offer, error) {
	return e.getOffer(ctx, offerID)
}

// ListOffers returns offers for an NFT, oldest first.
func (e *Engine) ListOffers(ctx context.Context, nftID string) ([]domain.Offer, error) {
	return e.offers.ListByNFT(ctx, nftID)
}

func (e *Engine) getAuction(ctx context.Context, id string) (domain.Auction, error) {
	a, err := e.auctions.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Auction{}, domain.StateErr(domain.CodeAuctionNotFound,
				fmt.Sprintf("auction %s does not exist", id))
		}
		return domain.Auction{}, fmt.Errorf("auction: get %s: %w", id, err)
	}
	return a, nil
}

func (e *Engine) getOffer(ctx context.Context, id string) (domain.Offer, error) {
	o, err := e.offers.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Offer{}, domain.StateErr(domain.CodeOfferNotFound,
				fmt.Sprintf("offer %s does not exist", id))
		}
		return domain.Offer{}, fmt.Errorf("auction: get offer %s: %w", id, err)
	}
	return o, nil
}

func (e *Engine) getNFT(ctx context.Context, id string) (domain.NFT, error) {
	n, err := e.nfts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NFT{}, domain.StateErr(domain.CodeNFTNotFound,
				fmt.Sprintf("nft %s does not exist", id))
		}
		return domain.NFT{}, fmt.Errorf("auction: get nft %s: %w", id, err)
	}
	return n, nil
}

func (e *Engine) auditLog(ctx context.Context, event string, detail map[string]any) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Log(ctx, event, detail); err != nil {
		e.logger.Warn("audit log failed", slog.String("error", err.Error()))
	}
}

func (e *Engine) emitAuction(ctx context.Context, event string, a domain.Auction) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"event": event, "auction": a})
	if err != nil {
		return
	}
	if perr := e.bus.Publish(ctx, domain.ChannelAuctions, payload); perr != nil {
		e.logger.Warn("event publish failed",
			slog.String("event", event),
			slog.String("error", perr.Error()))
	}
}

func (e *Engine) emitOffer(ctx context.Context, event string, o domain.Offer) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(map[string]any{"event": event, "offer": o})
	if err != nil {
		return
	}
	if perr := e.bus.Publish(ctx, domain.ChannelOffers, payload); perr != nil {
		e.logger.Warn("event publish failed",
			slog.String("event", event),
			slog.String("error", perr.Error()))
	}
}
