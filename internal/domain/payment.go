package domain

import "time"

// LamportsPerSol is the number of lamports in one SOL.
const LamportsPerSol = 1_000_000_000

// PaymentKind selects the kind-specific submission handler.
type PaymentKind string

const (
	PaymentKindDirect     PaymentKind = "direct"      // native SOL transfer
	PaymentKindToken      PaymentKind = "token"       // SPL token transfer
	PaymentKindEscrow     PaymentKind = "escrow"      // escrow account funding
	PaymentKindAuctionBid PaymentKind = "auction_bid" // escrow funding for an auction bid
)

// PaymentStatus tracks the payment lifecycle.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Terminal reports whether no further transition is permitted.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusConfirmed || s == PaymentStatusFailed || s == PaymentStatusCancelled
}

// PaymentRequest is a payment intent. It is immutable once created except for
// RetryCount, which only the retry scheduler advances.
type PaymentRequest struct {
	ID         string      `json:"id"`
	Kind       PaymentKind `json:"kind"`
	Lamports   int64       `json:"lamports"` // fixed-point: amount * 1e9
	Currency   string      `json:"currency"` // "SOL" or an SPL symbol
	Mint       string      `json:"mint,omitempty"`      // SPL mint address; empty for native SOL
	Recipient  string      `json:"recipient"`           // base58 destination address
	Memo       string      `json:"memo,omitempty"`
	EscrowID   string      `json:"escrow_id,omitempty"` // set for escrow / auction_bid funding
	ExpiresAt  time.Time   `json:"expires_at,omitzero"` // zero = no expiry
	RetryCount int         `json:"retry_count"`
	CreatedAt  time.Time   `json:"created_at"`
}

// Amount returns the display amount in SOL (or whole tokens) from lamports.
func (r PaymentRequest) Amount() float64 {
	return float64(r.Lamports) / LamportsPerSol
}

// PaymentRecord is one outcome row in the append-only payment history.
// A completed request id has exactly one terminal record.
type PaymentRecord struct {
	ID          string        `json:"id"`
	RequestID   string        `json:"request_id"`
	Success     bool          `json:"success"`
	TxSignature string        `json:"tx_signature,omitempty"` // base58; empty if never submitted
	Status      PaymentStatus `json:"status"`
	FeeLamports int64         `json:"fee_lamports"`
	ErrorCode   string        `json:"error_code,omitempty"` // terminal failure code; empty on success
	Timestamp   time.Time     `json:"timestamp"`
}
