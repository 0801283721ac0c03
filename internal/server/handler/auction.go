package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// AuctionService defines what the auction handler needs from the engine.
type AuctionService interface {
	CreateAuction(ctx context.Context, nftID string, startingPrice int64, duration time.Duration, currency string) (domain.Auction, error)
	PlaceBid(ctx context.Context, auctionID string, lamports int64) (domain.Offer, error)
	EndAuction(ctx context.Context, auctionID string) (domain.Auction, error)
	CancelAuction(ctx context.Context, auctionID string) (domain.Auction, error)
	GetAuction(ctx context.Context, auctionID string) (domain.Auction, error)
	ListAuctions(ctx context.Context, opts domain.ListOpts) ([]domain.Auction, error)
}

// AuctionHandler serves auction endpoints.
type AuctionHandler struct {
	auctions AuctionService
	logger   *slog.Logger
}

// NewAuctionHandler creates an AuctionHandler.
func NewAuctionHandler(auctions AuctionService, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{auctions: auctions, logger: logger}
}

// createAuctionRequest is the JSON body for auction creation.
type createAuctionRequest struct {
	NFTID         string  `json:"nft_id"`
	StartingPrice int64   `json:"starting_price"` // lamports
	StartingSOL   float64 `json:"starting_sol"`   // used when starting_price is 0
	Duration      string  `json:"duration"`       // e.g. "24h"
	Currency      string  `json:"currency"`
}

// CreateAuction opens a new auction for an NFT.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var body createAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.NFTID == "" {
		writeError(w, http.StatusBadRequest, "nft_id is required")
		return
	}

	dur, err := time.ParseDuration(body.Duration)
	if err != nil {
		writeError(w, http.StatusBadRequest, "duration must be a Go duration string, e.g. 24h")
		return
	}

	price := body.StartingPrice
	if price == 0 && body.StartingSOL > 0 {
		price = solToLamports(body.StartingSOL)
	}

	a, err := h.auctions.CreateAuction(r.Context(), body.NFTID, price, dur, body.Currency)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// placeBidRequest is the JSON body for bidding.
type placeBidRequest struct {
	Lamports int64   `json:"lamports"`
	Amount   float64 `json:"amount"` // SOL; used when lamports is 0
}

// PlaceBid places a bid on an active auction. The bid's escrow is funded
// before the bid is accepted, so a success response means the funds are held.
// POST /api/auctions/{id}/bids
func (h *AuctionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	var body placeBidRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	lamports := body.Lamports
	if lamports == 0 && body.Amount > 0 {
		lamports = solToLamports(body.Amount)
	}

	offer, err := h.auctions.PlaceBid(r.Context(), id, lamports)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

// EndAuction settles an auction: the winning escrow is released to the
// seller and the NFT is marked sold.
// POST /api/auctions/{id}/end
func (h *AuctionHandler) EndAuction(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	a, err := h.auctions.EndAuction(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CancelAuction aborts an auction and refunds the highest bidder.
// POST /api/auctions/{id}/cancel
func (h *AuctionHandler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	a, err := h.auctions.CancelAuction(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GetAuction returns one auction with its bid history ids.
// GET /api/auctions/{id}
func (h *AuctionHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing auction id")
		return
	}

	a, err := h.auctions.GetAuction(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListAuctions returns auctions, newest first.
// GET /api/auctions?limit=50&offset=0
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	auctions, err := h.auctions.ListAuctions(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list auctions failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list auctions")
		return
	}
	if auctions == nil {
		auctions = []domain.Auction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"auctions": auctions})
}
