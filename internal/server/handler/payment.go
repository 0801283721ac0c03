package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// PaymentService defines what the payment handler needs from the processor.
type PaymentService interface {
	Submit(ctx context.Context, req domain.PaymentRequest) (domain.PaymentRecord, error)
	SubmitWait(ctx context.Context, req domain.PaymentRequest) (domain.PaymentRecord, error)
	Record(ctx context.Context, requestID string) (domain.PaymentRecord, error)
	History(ctx context.Context, opts domain.ListOpts) ([]domain.PaymentRecord, error)
}

// PaymentHandler serves payment endpoints.
type PaymentHandler struct {
	payments PaymentService
	store    domain.PaymentStore
	logger   *slog.Logger
}

// NewPaymentHandler creates a PaymentHandler.
func NewPaymentHandler(payments PaymentService, store domain.PaymentStore, logger *slog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, store: store, logger: logger}
}

// submitPaymentRequest is the JSON body for payment submission.
type submitPaymentRequest struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Lamports  int64   `json:"lamports"`
	Amount    float64 `json:"amount"` // SOL; used when lamports is 0
	Currency  string  `json:"currency"`
	Mint      string  `json:"mint"`
	Recipient string  `json:"recipient"`
	Memo      string  `json:"memo"`
	EscrowID  string  `json:"escrow_id"`
	ExpiresAt string  `json:"expires_at"` // RFC3339; empty = no expiry
	// Wait blocks the request until the payment reaches a terminal outcome,
	// riding through scheduled retries.
	Wait bool `json:"wait"`
}

// SubmitPayment validates and submits a payment request.
// POST /api/payments
func (h *PaymentHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	var body submitPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	req := domain.PaymentRequest{
		ID:        body.ID,
		Kind:      domain.PaymentKind(body.Kind),
		Lamports:  body.Lamports,
		Currency:  body.Currency,
		Mint:      body.Mint,
		Recipient: body.Recipient,
		Memo:      body.Memo,
		EscrowID:  body.EscrowID,
		CreatedAt: time.Now().UTC(),
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	if req.Kind == "" {
		req.Kind = domain.PaymentKindDirect
	}
	if req.Lamports == 0 && body.Amount > 0 {
		req.Lamports = solToLamports(body.Amount)
	}
	if body.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, body.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "expires_at must be RFC3339")
			return
		}
		req.ExpiresAt = t
	}

	var (
		rec domain.PaymentRecord
		err error
	)
	if body.Wait {
		rec, err = h.payments.SubmitWait(r.Context(), req)
	} else {
		rec, err = h.payments.Submit(r.Context(), req)
	}
	if err != nil {
		// A failed record still describes the outcome; surface both.
		if rec.ID != "" {
			writeJSON(w, statusForRecordError(err), map[string]any{
				"record": rec,
				"error":  err.Error(),
				"code":   string(domain.CodeOf(err)),
			})
			return
		}
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if rec.Status == domain.PaymentStatusPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, rec)
}

// statusForRecordError is like writeDomainError's mapping but for responses
// that still carry a record payload.
func statusForRecordError(err error) int {
	switch domain.CodeOf(err) {
	case domain.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case domain.CodePermanentFailure, domain.CodeNetworkError, domain.CodeTimeout, domain.CodeTxFailed:
		return http.StatusBadGateway
	default:
		return http.StatusUnprocessableEntity
	}
}

// GetPayment returns the request and its latest outcome.
// GET /api/payments/{id}
func (h *PaymentHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing payment id")
		return
	}

	req, err := h.store.GetRequest(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{"request": req}
	if rec, err := h.payments.Record(r.Context(), id); err == nil {
		resp["record"] = rec
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListPaymentRecords returns the full attempt history of one request.
// GET /api/payments/{id}/records
func (h *PaymentHandler) ListPaymentRecords(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing payment id")
		return
	}

	records, err := h.store.ListRecords(r.Context(), id)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list payment records failed",
			slog.String("request_id", id),
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	if records == nil {
		records = []domain.PaymentRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// ListHistory returns the payment history, newest first.
// GET /api/payments?limit=50&offset=0
func (h *PaymentHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := h.payments.History(r.Context(), parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list payment history failed",
			slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if records == nil {
		records = []domain.PaymentRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
