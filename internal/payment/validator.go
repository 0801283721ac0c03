// Package payment implements the transaction-orchestration core: pre-flight
// validation, the submit/confirm pipeline, and bounded retry of transient
// failures.
package payment

import (
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// defaultCurrencies are accepted when the validator is built with no explicit
// allow-list.
var defaultCurrencies = []string{"SOL", "USDC"}

// Validator performs pure pre-flight checks on a payment intent. It holds no
// connections and never touches the network, so it is safe to run before
// every submission attempt, including retries.
type Validator struct {
	currencies map[string]bool
}

// NewValidator creates a Validator accepting the given currencies. An empty
// list falls back to the built-in defaults.
func NewValidator(currencies []string) *Validator {
	if len(currencies) == 0 {
		currencies = defaultCurrencies
	}
	allowed := make(map[string]bool, len(currencies))
	for _, c := range currencies {
		allowed[strings.ToUpper(strings.TrimSpace(c))] = true
	}
	return &Validator{currencies: allowed}
}

// Validate checks a request and returns a typed validation error on the first
// failed check, in a fixed order: amount, recipient, currency, expiry.
func (v *Validator) Validate(req domain.PaymentRequest) error {
	if req.Lamports <= 0 {
		return domain.ValidationErr(domain.CodeInvalidAmount,
			fmt.Sprintf("amount must be positive, got %d lamports", req.Lamports))
	}

	if req.Recipient == "" {
		return domain.ValidationErr(domain.CodeInvalidRecipient, "recipient is required")
	}
	if !ValidAddress(req.Recipient) {
		return domain.ValidationErr(domain.CodeInvalidRecipient,
			fmt.Sprintf("recipient %q is not a valid address", req.Recipient))
	}
	if req.Mint != "" && !ValidAddress(req.Mint) {
		return domain.ValidationErr(domain.CodeInvalidAddress,
			fmt.Sprintf("mint %q is not a valid address", req.Mint))
	}

	if !v.currencies[strings.ToUpper(req.Currency)] {
		return domain.ValidationErr(domain.CodeUnsupportedCurrency,
			fmt.Sprintf("currency %q is not supported", req.Currency))
	}

	if !req.ExpiresAt.IsZero() && !time.Now().UTC().Before(req.ExpiresAt) {
		return domain.ValidationErr(domain.CodeExpired,
			fmt.Sprintf("request expired at %s", req.ExpiresAt.Format(time.RFC3339)))
	}

	return nil
}

// ValidAddress reports whether s is a plausible Solana address: base58 text
// decoding to a 32-byte ed25519 public key.
func ValidAddress(s string) bool {
	raw, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(raw) == 32
}
