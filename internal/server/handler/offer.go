package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// OfferService defines what the offer handler needs from the engine.
type OfferService interface {
	MakeOffer(ctx context.Context, nftID string, lamports int64, currency string, expiresAt time.Time) (domain.Offer, error)
	AcceptOffer(ctx context.Context, offerID string) (domain.Offer, error)
	RejectOffer(ctx context.Context, offerID string) (domain.Offer, error)
	GetOffer(ctx context.Context, offerID string) (domain.Offer, error)
	ListOffers(ctx context.Context, nftID string) ([]domain.Offer, error)
}

// OfferHandler serves buy-now offer endpoints.
type OfferHandler struct {
	offers OfferService
	logger *slog.Logger
}

// NewOfferHandler creates an OfferHandler.
func NewOfferHandler(offers OfferService, logger *slog.Logger) *OfferHandler {
	return &OfferHandler{offers: offers, logger: logger}
}

// makeOfferRequest is the JSON body for making an offer.
type makeOfferRequest struct {
	NFTID     string  `json:"nft_id"`
	Lamports  int64   `json:"lamports"`
	Amount    float64 `json:"amount"` // SOL; used when lamports is 0
	Currency  string  `json:"currency"`
	ExpiresAt string  `json:"expires_at"` // RFC3339; empty = no expiry
}

// MakeOffer makes an escrow-backed offer on a listed NFT.
// POST /api/offers
func (h *OfferHandler) MakeOffer(w http.ResponseWriter, r *http.Request) {
	var body makeOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.NFTID == "" {
		writeError(w, http.StatusBadRequest, "nft_id is required")
		return
	}

	lamports := body.Lamports
	if lamports == 0 && body.Amount > 0 {
		lamports = solToLamports(body.Amount)
	}

	var expiresAt time.Time
	if body.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, body.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "expires_at must be RFC3339")
			return
		}
		expiresAt = t
	}

	offer, err := h.offers.MakeOffer(r.Context(), body.NFTID, lamports, body.Currency, expiresAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, offer)
}

// AcceptOffer accepts an offer: the escrow is released to the seller and the
// NFT is marked sold. At most one offer per NFT can ever be accepted.
// POST /api/offers/{id}/accept
func (h *OfferHandler) AcceptOffer(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing offer id")
		return
	}

	offer, err := h.offers.AcceptOffer(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// RejectOffer rejects an offer, refunding the bidder's escrow.
// POST /api/offers/{id}/reject
func (h *OfferHandler) RejectOffer(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing offer id")
		return
	}

	offer, err := h.offers.RejectOffer(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// GetOffer returns one offer.
// GET /api/offers/{id}
func (h *OfferHandler) GetOffer(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing offer id")
		return
	}

	offer, err := h.offers.GetOffer(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}
