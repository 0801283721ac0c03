// Package wallet ships the local keypair implementation of the wallet
// capability: connect, sign, balance, disconnect. Browser-extension adapters
// implement the same interface outside this repository.
package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// BalanceReader is the slice of the RPC gateway the wallet needs.
type BalanceReader interface {
	Balance(ctx context.Context, address string) (int64, error)
}

// Keypair is a wallet backed by a locally held ed25519 key.
type Keypair struct {
	key     ed25519.PrivateKey
	address string
	chain   BalanceReader

	mu        sync.Mutex
	connected bool
}

// NewKeypair builds a wallet from a base58-encoded ed25519 seed or 64-byte
// private key. chain resolves balances.
func NewKeypair(encodedKey string, chain BalanceReader) (*Keypair, error) {
	raw, err := base58.Decode(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("wallet: decode key: %w", err)
	}

	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("wallet: key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}

	pub := key.Public().(ed25519.PublicKey)
	return &Keypair{
		key:     key,
		address: base58.Encode(pub),
		chain:   chain,
	}, nil
}

// Connect marks the wallet connected and returns its address.
func (k *Keypair) Connect(ctx context.Context) (string, error) {
	k.mu.Lock()
	k.connected = true
	k.mu.Unlock()
	return k.address, nil
}

// Connected reports whether Connect has been called without a Disconnect.
func (k *Keypair) Connected() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.connected
}

// Address returns the base58 public key.
func (k *Keypair) Address() string {
	return k.address
}

// signedMessage is the serialized transfer the wallet signs.
type signedMessage struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Lamports  int64  `json:"lamports"`
	Mint      string `json:"mint,omitempty"`
	Memo      string `json:"memo,omitempty"`
	IssuedAt  int64  `json:"issued_at"`
	PublicKey string `json:"public_key"`
}

// SignTransaction serializes tx, signs it, and returns the submission
// payload with its base58 signature.
func (k *Keypair) SignTransaction(ctx context.Context, tx domain.Transaction) (domain.SignedTransaction, error) {
	if !k.Connected() {
		return domain.SignedTransaction{}, domain.StateErr(domain.CodeWalletNotConnected,
			"sign requested on a disconnected wallet")
	}

	msg, err := json.Marshal(signedMessage{
		From:      tx.From,
		To:        tx.To,
		Lamports:  tx.Lamports,
		Mint:      tx.Mint,
		Memo:      tx.Memo,
		IssuedAt:  time.Now().UTC().UnixNano(),
		PublicKey: k.address,
	})
	if err != nil {
		return domain.SignedTransaction{}, fmt.Errorf("wallet: marshal transaction: %w", err)
	}

	sig := ed25519.Sign(k.key, msg)
	signature := base58.Encode(sig)

	payload, err := json.Marshal(map[string]any{
		"message":   msg,
		"signature": signature,
	})
	if err != nil {
		return domain.SignedTransaction{}, fmt.Errorf("wallet: marshal payload: %w", err)
	}

	return domain.SignedTransaction{Payload: payload, Signature: signature}, nil
}

// Balance queries the wallet's lamport balance through the chain gateway.
func (k *Keypair) Balance(ctx context.Context) (int64, error) {
	if !k.Connected() {
		return 0, domain.StateErr(domain.CodeWalletNotConnected, "balance requested on a disconnected wallet")
	}
	return k.chain.Balance(ctx, k.address)
}

// Disconnect marks the wallet disconnected. Safe to call repeatedly.
func (k *Keypair) Disconnect() {
	k.mu.Lock()
	k.connected = false
	k.mu.Unlock()
}

// Compile-time interface check.
var _ domain.Wallet = (*Keypair)(nil)
