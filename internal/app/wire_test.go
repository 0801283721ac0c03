package app

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"testing"

	"github.com/mr-tron/base58"
)

type stubBalances struct{}

func (stubBalances) Balance(ctx context.Context, address string) (int64, error) {
	return 0, nil
}

func TestNewServiceWalletConnects(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 9

	w, err := newServiceWallet(context.Background(), base58.Encode(seed), stubBalances{})
	if err != nil {
		t.Fatalf("newServiceWallet failed: %v", err)
	}
	// Submissions sign through this wallet immediately, so it must come up
	// connected rather than waiting for an explicit connect call.
	if !w.Connected() {
		t.Error("Expected the service wallet to come up connected")
	}
	if w.Address() == "" {
		t.Error("Expected a derived address")
	}
}

func TestNewServiceWalletRejectsMalformedKey(t *testing.T) {
	if _, err := newServiceWallet(context.Background(), "0OIl", stubBalances{}); err == nil {
		t.Error("Expected an error for a malformed key")
	}
}

func TestIgnoreCanceled(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantNil bool
	}{
		{"nil", nil, true},
		{"canceled", context.Canceled, true},
		{"wrapped canceled", fmt.Errorf("serve mode: %w", context.Canceled), true},
		{"real failure", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ignoreCanceled(tt.err)
			if tt.wantNil && got != nil {
				t.Errorf("Expected nil, got %v", got)
			}
			if !tt.wantNil && !errors.Is(got, tt.err) {
				t.Errorf("Expected %v passed through, got %v", tt.err, got)
			}
		})
	}
}
