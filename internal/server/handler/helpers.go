package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// solToLamports converts a display-unit SOL amount to lamports, rounding to
// the nearest lamport. Plain truncation turns float artifacts like 0.29 SOL
// into 289999999.
func solToLamports(sol float64) int64 {
	return int64(math.Round(sol * domain.LamportsPerSol))
}

// writeJSON marshals v as JSON and writes it to the response with the given
// HTTP status code. If marshaling fails, it falls back to a plain-text 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON-formatted error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps a typed failure to the right HTTP status and includes
// the stable error code in the body.
func writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch code := domain.CodeOf(err); code {
	case domain.CodeInvalidAmount, domain.CodeInvalidRecipient, domain.CodeInvalidAddress,
		domain.CodeUnsupportedCurrency, domain.CodeExpired, domain.CodeBidTooLow:
		status = http.StatusBadRequest
	case domain.CodeEscrowNotFound, domain.CodeAuctionNotFound, domain.CodeOfferNotFound,
		domain.CodeNFTNotFound:
		status = http.StatusNotFound
	case domain.CodeRateLimited:
		status = http.StatusTooManyRequests
	case domain.CodeDuplicateRequest, domain.CodeInvalidEscrowStatus,
		domain.CodeInvalidAuctionStatus, domain.CodeAuctionEnded, domain.CodeNFTSold:
		status = http.StatusConflict
	case domain.CodeInsufficientFunds:
		status = http.StatusPaymentRequired
	case domain.CodeWalletNotConnected:
		status = http.StatusServiceUnavailable
	case domain.CodeNetworkError, domain.CodeTimeout, domain.CodeTxFailed, domain.CodePermanentFailure:
		status = http.StatusBadGateway
	default:
		if errors.Is(err, domain.ErrNotFound) {
			status = http.StatusNotFound
		}
		if errors.Is(err, domain.ErrAlreadyExists) {
			status = http.StatusConflict
		}
	}

	body := map[string]string{"error": err.Error()}
	if code := domain.CodeOf(err); code != "" {
		body["code"] = string(code)
	}
	writeJSON(w, status, body)
}

// parseListOpts extracts standard pagination parameters from the query
// string. Defaults: limit=50 (max 500), offset=0.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := 50
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return domain.ListOpts{
		Limit:  limit,
		Offset: offset,
	}
}

// pathParam extracts a named path parameter from the request using Go 1.22+
// built-in routing (http.Request.PathValue).
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}
