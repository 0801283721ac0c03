package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// OfferLister lists the offers made against an NFT.
type OfferLister interface {
	ListOffers(ctx context.Context, nftID string) ([]domain.Offer, error)
}

// NFTHandler serves the minimal NFT listing endpoints the transaction core
// tracks. Metadata beyond ownership and sale state lives upstream.
type NFTHandler struct {
	nfts   domain.NFTStore
	offers OfferLister
	logger *slog.Logger
}

// NewNFTHandler creates an NFTHandler.
func NewNFTHandler(nfts domain.NFTStore, offers OfferLister, logger *slog.Logger) *NFTHandler {
	return &NFTHandler{nfts: nfts, offers: offers, logger: logger}
}

// upsertNFTRequest is the JSON body for listing registration.
type upsertNFTRequest struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Status string `json:"status"`
}

// UpsertNFT registers or updates an NFT listing record.
// PUT /api/nfts
func (h *NFTHandler) UpsertNFT(w http.ResponseWriter, r *http.Request) {
	var body upsertNFTRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.ID == "" || body.Owner == "" {
		writeError(w, http.StatusBadRequest, "id and owner are required")
		return
	}

	status := domain.NFTStatus(body.Status)
	if status == "" {
		status = domain.NFTStatusListed
	}
	switch status {
	case domain.NFTStatusListed, domain.NFTStatusAuction, domain.NFTStatusSold:
	default:
		writeError(w, http.StatusBadRequest, "status must be listed, auction, or sold")
		return
	}

	n := domain.NFT{
		ID:        body.ID,
		Owner:     body.Owner,
		Status:    status,
		UpdatedAt: time.Now().UTC(),
	}
	if err := h.nfts.Upsert(r.Context(), n); err != nil {
		h.logger.ErrorContext(r.Context(), "upsert nft failed",
			slog.String("nft_id", n.ID),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to save nft")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// GetNFT returns one NFT listing record.
// GET /api/nfts/{id}
func (h *NFTHandler) GetNFT(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing nft id")
		return
	}

	n, err := h.nfts.GetByID(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// ListNFTOffers returns every offer made against an NFT, oldest first.
// GET /api/nfts/{id}/offers
func (h *NFTHandler) ListNFTOffers(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing nft id")
		return
	}

	offers, err := h.offers.ListOffers(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if offers == nil {
		offers = []domain.Offer{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}
