package domain

import "time"

// EscrowStatus tracks the escrow account lifecycle. The machine only moves
// forward: created -> funded -> released, or {created, funded} -> cancelled.
type EscrowStatus string

const (
	EscrowStatusCreated   EscrowStatus = "created"
	EscrowStatusFunded    EscrowStatus = "funded"
	EscrowStatusReleased  EscrowStatus = "released"
	EscrowStatusCancelled EscrowStatus = "cancelled"
)

// Terminal reports whether the escrow permits no further transition.
func (s EscrowStatus) Terminal() bool {
	return s == EscrowStatusReleased || s == EscrowStatusCancelled
}

// EscrowAccount is a third-party-held balance guaranteeing the seller is paid
// only after the buyer-approved condition is met. Accounts are never reused.
type EscrowAccount struct {
	ID           string       `json:"id"`
	Address      string       `json:"address"` // base58 on-chain escrow account address
	Lamports     int64        `json:"lamports"`
	Currency     string       `json:"currency"`
	Buyer        string       `json:"buyer"`  // base58 buyer wallet
	Seller       string       `json:"seller"` // base58 seller wallet
	Status       EscrowStatus `json:"status"`
	FundTxSig    string       `json:"fund_tx_sig,omitempty"`    // signature of the confirmed funding transfer
	ReleaseTxSig string       `json:"release_tx_sig,omitempty"` // signature of the confirmed release/refund transfer
	CreatedAt    time.Time    `json:"created_at"`
	ExpiresAt    time.Time    `json:"expires_at,omitzero"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Amount returns the display amount in SOL from lamports.
func (e EscrowAccount) Amount() float64 {
	return float64(e.Lamports) / LamportsPerSol
}
