package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by store and cache implementations.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrLockHeld      = errors.New("lock already held")
)

// ErrorCode is a stable machine-readable failure code.
type ErrorCode string

const (
	// Validation failures. Never retried; no network call is made.
	CodeInvalidAmount       ErrorCode = "invalid_amount"
	CodeInvalidRecipient    ErrorCode = "invalid_recipient"
	CodeInvalidAddress      ErrorCode = "invalid_address"
	CodeUnsupportedCurrency ErrorCode = "unsupported_currency"
	CodeExpired             ErrorCode = "expired"

	// Connectivity failures. Retried with backoff, then permanent_failure.
	CodeNetworkError     ErrorCode = "network_error"
	CodeTimeout          ErrorCode = "timeout"
	CodeRateLimited      ErrorCode = "rate_limited"
	CodeTxFailed         ErrorCode = "transaction_failed"
	CodePermanentFailure ErrorCode = "permanent_failure"

	// State failures. Never retried; the caller must re-read current state.
	CodeInvalidEscrowStatus  ErrorCode = "invalid_escrow_status"
	CodeInvalidAuctionStatus ErrorCode = "invalid_auction_status"
	CodeAuctionEnded         ErrorCode = "auction_ended"
	CodeBidTooLow            ErrorCode = "bid_too_low"
	CodeEscrowNotFound       ErrorCode = "escrow_not_found"
	CodeAuctionNotFound      ErrorCode = "auction_not_found"
	CodeOfferNotFound        ErrorCode = "offer_not_found"
	CodeNFTSold              ErrorCode = "nft_sold"
	CodeNFTNotFound          ErrorCode = "nft_not_found"
	CodeWalletNotConnected   ErrorCode = "wallet_not_connected"
	CodeDuplicateRequest     ErrorCode = "duplicate_request"

	// Funds failures. Never retried.
	CodeInsufficientFunds ErrorCode = "insufficient_funds"
)

// Error is the typed failure value surfaced to callers. Every error carries a
// stable code, a human-readable message, a retryable flag, and a timestamp.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
	Timestamp time.Time
	wrapped   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.wrapped
}

// Is matches two domain errors by code so callers can compare against a bare
// constructor result, e.g. errors.Is(err, domain.StateErr(domain.CodeBidTooLow, "")).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// ValidationErr builds a non-retryable validation failure.
func ValidationErr(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg, Timestamp: time.Now().UTC()}
}

// ConnectivityErr builds a retryable transient failure wrapping cause.
func ConnectivityErr(code ErrorCode, msg string, cause error) *Error {
	return &Error{Code: code, Message: msg, Retryable: true, Timestamp: time.Now().UTC(), wrapped: cause}
}

// StateErr builds a non-retryable state-machine failure.
func StateErr(code ErrorCode, msg string) *Error {
	return &Error{Code: code, Message: msg, Timestamp: time.Now().UTC()}
}

// FundsErr builds a non-retryable insufficient-funds failure.
func FundsErr(msg string) *Error {
	return &Error{Code: CodeInsufficientFunds, Message: msg, Timestamp: time.Now().UTC()}
}

// PermanentErr marks a connectivity failure that exhausted its retry budget.
func PermanentErr(msg string, cause error) *Error {
	return &Error{Code: CodePermanentFailure, Message: msg, Timestamp: time.Now().UTC(), wrapped: cause}
}

// IsRetryable reports whether err (anywhere in its chain) is a retryable
// domain error.
func IsRetryable(err error) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Retryable
	}
	return false
}

// CodeOf extracts the domain error code from err, or "" when err carries none.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
