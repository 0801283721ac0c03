package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"testing"

	"github.com/mr-tron/base58"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

type stubBalances struct {
	lamports int64
	gotAddr  string
}

func (s *stubBalances) Balance(ctx context.Context, address string) (int64, error) {
	s.gotAddr = address
	return s.lamports, nil
}

func seedKey(tag byte) string {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = tag
	return base58.Encode(seed)
}

func TestNewKeypair(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"32 byte seed", seedKey(7), false},
		{"64 byte private key", base58.Encode(make([]byte, ed25519.PrivateKeySize)), false},
		{"wrong length", base58.Encode(make([]byte, 16)), true},
		{"not base58", "0OIl", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := NewKeypair(tt.key, &stubBalances{})
			if tt.wantErr {
				if err == nil {
					t.Error("Expected an error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewKeypair failed: %v", err)
			}
			if k.Address() == "" {
				t.Error("Expected a derived address")
			}
			raw, derr := base58.Decode(k.Address())
			if derr != nil || len(raw) != ed25519.PublicKeySize {
				t.Errorf("Expected a 32-byte base58 address, got %q", k.Address())
			}
		})
	}
}

func TestKeypairConnectLifecycle(t *testing.T) {
	k, err := NewKeypair(seedKey(1), &stubBalances{})
	if err != nil {
		t.Fatalf("NewKeypair failed: %v", err)
	}

	if k.Connected() {
		t.Error("Expected a fresh wallet to be disconnected")
	}

	addr, err := k.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if addr != k.Address() {
		t.Errorf("Expected Connect to return %q, got %q", k.Address(), addr)
	}
	if !k.Connected() {
		t.Error("Expected wallet connected after Connect")
	}

	k.Disconnect()
	if k.Connected() {
		t.Error("Expected wallet disconnected after Disconnect")
	}
}

func TestKeypairSignTransaction(t *testing.T) {
	k, err := NewKeypair(seedKey(2), &stubBalances{})
	if err != nil {
		t.Fatalf("NewKeypair failed: %v", err)
	}

	tx := domain.Transaction{From: k.Address(), To: "recipient", Lamports: 100, Memo: "escrow:esc-1"}

	// Signing requires a connected wallet.
	_, err = k.SignTransaction(context.Background(), tx)
	if domain.CodeOf(err) != domain.CodeWalletNotConnected {
		t.Errorf("Expected code %q, got %v", domain.CodeWalletNotConnected, err)
	}

	if _, err := k.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	signed, err := k.SignTransaction(context.Background(), tx)
	if err != nil {
		t.Fatalf("SignTransaction failed: %v", err)
	}
	if signed.Signature == "" {
		t.Fatal("Expected a signature")
	}

	// The signature verifies against the wallet's public key.
	var payload struct {
		Message   []byte `json:"message"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal(signed.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	pub, err := base58.Decode(k.Address())
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	sig, err := base58.Decode(payload.Signature)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), payload.Message, sig) {
		t.Error("Expected the payload signature to verify")
	}
}

func TestKeypairBalance(t *testing.T) {
	chain := &stubBalances{lamports: 42_000}
	k, err := NewKeypair(seedKey(3), chain)
	if err != nil {
		t.Fatalf("NewKeypair failed: %v", err)
	}

	_, err = k.Balance(context.Background())
	if domain.CodeOf(err) != domain.CodeWalletNotConnected {
		t.Errorf("Expected code %q, got %v", domain.CodeWalletNotConnected, err)
	}

	if _, err := k.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	got, err := k.Balance(context.Background())
	if err != nil {
		t.Fatalf("Balance failed: %v", err)
	}
	if got != 42_000 {
		t.Errorf("Expected 42000 lamports, got %d", got)
	}
	if chain.gotAddr != k.Address() {
		t.Errorf("Expected balance queried for %q, got %q", k.Address(), chain.gotAddr)
	}
}
