package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// EscrowService defines what the escrow handler needs from the ledger.
type EscrowService interface {
	Create(ctx context.Context, lamports int64, currency, buyer, seller string, expiresAt time.Time) (domain.EscrowAccount, error)
	Fund(ctx context.Context, escrowID string, kind domain.PaymentKind) (domain.EscrowAccount, error)
	Release(ctx context.Context, escrowID string) (domain.EscrowAccount, error)
	Cancel(ctx context.Context, escrowID string) (domain.EscrowAccount, error)
	Get(ctx context.Context, escrowID string) (domain.EscrowAccount, error)
	List(ctx context.Context, opts domain.ListOpts) ([]domain.EscrowAccount, error)
}

// EscrowHandler serves escrow endpoints.
type EscrowHandler struct {
	escrows EscrowService
	logger  *slog.Logger
}

// NewEscrowHandler creates an EscrowHandler.
func NewEscrowHandler(escrows EscrowService, logger *slog.Logger) *EscrowHandler {
	return &EscrowHandler{escrows: escrows, logger: logger}
}

// createEscrowRequest is the JSON body for escrow creation.
type createEscrowRequest struct {
	Lamports  int64   `json:"lamports"`
	Amount    float64 `json:"amount"` // SOL; used when lamports is 0
	Currency  string  `json:"currency"`
	Buyer     string  `json:"buyer"`
	Seller    string  `json:"seller"`
	ExpiresAt string  `json:"expires_at"` // RFC3339; empty = no expiry
}

// CreateEscrow creates a new escrow account.
// POST /api/escrows
func (h *EscrowHandler) CreateEscrow(w http.ResponseWriter, r *http.Request) {
	var body createEscrowRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
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

	acct, err := h.escrows.Create(r.Context(), lamports, body.Currency, body.Buyer, body.Seller, expiresAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

// FundEscrow submits the buyer's funding payment for an escrow, blocking
// until the transfer settles or fails permanently.
// POST /api/escrows/{id}/fund
func (h *EscrowHandler) FundEscrow(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing escrow id")
		return
	}

	acct, err := h.escrows.Fund(r.Context(), id, domain.PaymentKindEscrow)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// ReleaseEscrow pays the held funds out to the seller.
// POST /api/escrows/{id}/release
func (h *EscrowHandler) ReleaseEscrow(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing escrow id")
		return
	}

	acct, err := h.escrows.Release(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// CancelEscrow refunds the buyer and closes the escrow.
// POST /api/escrows/{id}/cancel
func (h *EscrowHandler) CancelEscrow(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing escrow id")
		return
	}

	acct, err := h.escrows.Cancel(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// GetEscrow returns one escrow account.
// GET /api/escrows/{id}
func (h *EscrowHandler) GetEscrow(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing escrow id")
		return
	}

	acct, err := h.escrows.Get(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

// ListEscrows returns escrow accounts, newest first.
// GET /api/escrows?limit=50&offset=0
func (h *EscrowHandler) ListEscrows(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.escrows.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list escrows failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list escrows")
		return
	}
	if accounts == nil {
		accounts = []domain.EscrowAccount{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"escrows": accounts})
}
