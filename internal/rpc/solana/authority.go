package solana

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

// EscrowAuthority holds the ed25519 key that is allowed to move funds out of
// marketplace escrow accounts.
type EscrowAuthority struct {
	key     ed25519.PrivateKey
	address string
}

// NewEscrowAuthority builds an authority from a base58-encoded ed25519 seed
// or 64-byte private key.
func NewEscrowAuthority(encodedKey string) (*EscrowAuthority, error) {
	raw, err := base58.Decode(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("solana: decode authority key: %w", err)
	}

	var key ed25519.PrivateKey
	switch len(raw) {
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(raw)
	default:
		return nil, fmt.Errorf("solana: authority key must be %d or %d bytes, got %d",
			ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}

	pub := key.Public().(ed25519.PublicKey)
	return &EscrowAuthority{
		key:     key,
		address: base58.Encode(pub),
	}, nil
}

// Address returns the authority's base58 public key.
func (a *EscrowAuthority) Address() string {
	return a.address
}

// transferMessage is the serialized escrow transfer instruction.
type transferMessage struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Lamports    int64  `json:"lamports"`
	Authority   string `json:"authority"`
	IssuedAt    int64  `json:"issued_at"`
}

// signedEnvelope wraps a message with its authority signature.
type signedEnvelope struct {
	Message   []byte `json:"message"`
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

// SignTransfer serializes and signs an escrow transfer instruction, returning
// the submission payload.
func (a *EscrowAuthority) SignTransfer(source, destination string, lamports int64) ([]byte, error) {
	msg, err := json.Marshal(transferMessage{
		Source:      source,
		Destination: destination,
		Lamports:    lamports,
		Authority:   a.address,
		IssuedAt:    time.Now().UTC().UnixNano(),
	})
	if err != nil {
		return nil, fmt.Errorf("solana: marshal transfer message: %w", err)
	}

	sig := ed25519.Sign(a.key, msg)
	return json.Marshal(signedEnvelope{
		Message:   msg,
		Signature: base58.Encode(sig),
		PublicKey: a.address,
	})
}
