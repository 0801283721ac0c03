package payment

import (
	"testing"
	"time"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

func TestValidatorValidate(t *testing.T) {
	recipient := testAddr(2)
	mint := testAddr(3)

	tests := []struct {
		name     string
		req      domain.PaymentRequest
		wantCode domain.ErrorCode
	}{
		{
			name: "valid direct payment",
			req: domain.PaymentRequest{
				Lamports:  1_000_000,
				Recipient: recipient,
				Currency:  "SOL",
			},
			wantCode: "",
		},
		{
			name: "lowercase currency accepted",
			req: domain.PaymentRequest{
				Lamports:  500,
				Recipient: recipient,
				Currency:  "usdc",
			},
			wantCode: "",
		},
		{
			name: "zero amount",
			req: domain.PaymentRequest{
				Lamports:  0,
				Recipient: recipient,
				Currency:  "SOL",
			},
			wantCode: domain.CodeInvalidAmount,
		},
		{
			name: "negative amount",
			req: domain.PaymentRequest{
				Lamports:  -5,
				Recipient: recipient,
				Currency:  "SOL",
			},
			wantCode: domain.CodeInvalidAmount,
		},
		{
			name: "missing recipient",
			req: domain.PaymentRequest{
				Lamports: 100,
				Currency: "SOL",
			},
			wantCode: domain.CodeInvalidRecipient,
		},
		{
			name: "malformed recipient",
			req: domain.PaymentRequest{
				Lamports:  100,
				Recipient: "not-base58-0OIl",
				Currency:  "SOL",
			},
			wantCode: domain.CodeInvalidRecipient,
		},
		{
			name: "short recipient",
			req: domain.PaymentRequest{
				Lamports:  100,
				Recipient: "abc",
				Currency:  "SOL",
			},
			wantCode: domain.CodeInvalidRecipient,
		},
		{
			name: "malformed mint",
			req: domain.PaymentRequest{
				Lamports:  100,
				Recipient: recipient,
				Mint:      "zzz",
				Currency:  "SOL",
			},
			wantCode: domain.CodeInvalidAddress,
		},
		{
			name: "valid mint",
			req: domain.PaymentRequest{
				Lamports:  100,
				Recipient: recipient,
				Mint:      mint,
				Currency:  "USDC",
			},
			wantCode: "",
		},
		{
			name: "unsupported currency",
			req: domain.PaymentRequest{
				Lamports:  100,
				Recipient: recipient,
				Currency:  "BTC",
			},
			wantCode: domain.CodeUnsupportedCurrency,
		},
		{
			name: "expired request",
			req: domain.PaymentRequest{
				Lamports:  100,
				Recipient: recipient,
				Currency:  "SOL",
				ExpiresAt: time.Now().UTC().Add(-time.Minute),
			},
			wantCode: domain.CodeExpired,
		},
		{
			name: "future expiry accepted",
			req: domain.PaymentRequest{
				Lamports:  100,
				Recipient: recipient,
				Currency:  "SOL",
				ExpiresAt: time.Now().UTC().Add(time.Hour),
			},
			wantCode: "",
		},
		{
			name: "amount checked before recipient",
			req: domain.PaymentRequest{
				Lamports: 0,
				Currency: "BTC",
			},
			wantCode: domain.CodeInvalidAmount,
		},
	}

	v := NewValidator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			if tt.wantCode == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Expected error code %q, got nil", tt.wantCode)
			}
			if got := domain.CodeOf(err); got != tt.wantCode {
				t.Errorf("Expected error code %q, got %q", tt.wantCode, got)
			}
		})
	}
}

func TestValidatorCustomCurrencies(t *testing.T) {
	v := NewValidator([]string{" sol ", "bonk"})
	recipient := testAddr(4)

	ok := domain.PaymentRequest{Lamports: 10, Recipient: recipient, Currency: "BONK"}
	if err := v.Validate(ok); err != nil {
		t.Errorf("Expected BONK to be accepted, got %v", err)
	}

	rejected := domain.PaymentRequest{Lamports: 10, Recipient: recipient, Currency: "USDC"}
	err := v.Validate(rejected)
	if domain.CodeOf(err) != domain.CodeUnsupportedCurrency {
		t.Errorf("Expected code %q, got %v", domain.CodeUnsupportedCurrency, err)
	}
}

func TestValidAddress(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"32 byte key", testAddr(9), true},
		{"system program", "11111111111111111111111111111111", true},
		{"empty", "", false},
		{"short", "abc", false},
		{"invalid characters", "0OIl+/=", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidAddress(tt.in); got != tt.want {
				t.Errorf("Expected %v for %q, got %v", tt.want, tt.in, got)
			}
		})
	}
}
