package domain

import "context"

// Transaction is an unsigned transfer instruction built by a kind-specific
// payment handler.
type Transaction struct {
	From     string // base58 source wallet
	To       string // base58 destination (recipient or escrow address)
	Lamports int64
	Mint     string // SPL mint; empty for a native SOL transfer
	Memo     string
}

// SignedTransaction is a wallet-signed transaction ready for submission.
type SignedTransaction struct {
	Payload   []byte // serialized signed transaction
	Signature string // base58 transaction signature
}

// Wallet is the minimal sign/connect/balance capability consumed by the
// payment core. Implementations live outside this core (browser adapters,
// custodial signers); internal/wallet ships a local keypair implementation.
type Wallet interface {
	Connect(ctx context.Context) (address string, err error)
	Connected() bool
	Address() string
	SignTransaction(ctx context.Context, tx Transaction) (SignedTransaction, error)
	Balance(ctx context.Context) (lamports int64, err error)
	Disconnect()
}

// TxStatus is the confirmation state of a submitted transaction.
type TxStatus string

const (
	TxStatusUnknown   TxStatus = "unknown"
	TxStatusProcessed TxStatus = "processed"
	TxStatusConfirmed TxStatus = "confirmed"
	TxStatusFinalized TxStatus = "finalized"
	TxStatusFailed    TxStatus = "failed"
)

// SubmitResult is the gateway response to a transaction submission. Confirmed
// may be false for a successfully accepted transaction that has not yet been
// confirmed; callers poll GetStatus until it settles.
type SubmitResult struct {
	Signature   string
	Confirmed   bool
	FeeLamports int64
}

// EscrowSpec describes the escrow account to derive on-chain.
type EscrowSpec struct {
	EscrowID string
	Buyer    string
	Seller   string
	Lamports int64
}

// Gateway submits signed transfers, reports confirmation status, and manages
// escrow accounts. Implemented over the Solana JSON-RPC API.
type Gateway interface {
	Submit(ctx context.Context, tx SignedTransaction) (SubmitResult, error)
	GetStatus(ctx context.Context, signature string) (TxStatus, error)
	CreateEscrowAccount(ctx context.Context, spec EscrowSpec) (address string, err error)
	// Transfer moves lamports out of an escrow account. It returns the
	// transaction signature; callers await confirmation via GetStatus.
	Transfer(ctx context.Context, escrowAddress, to string, lamports int64) (signature string, err error)
	Balance(ctx context.Context, address string) (lamports int64, err error)
}
