// Package solana implements the RPC gateway over the Solana JSON-RPC API:
// transaction submission, confirmation status, balances, and escrow account
// management.
package solana

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mr-tron/base58"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// feePerSignatureLamports is the flat network fee charged per signature.
const feePerSignatureLamports = 5_000

// escrowSeedPrefix namespaces the program-derived escrow addresses.
const escrowSeedPrefix = "soladia-escrow"

// Config holds connection parameters for the RPC client.
type Config struct {
	Endpoint string // e.g. "https://api.mainnet-beta.solana.com"
	Timeout  time.Duration
	// Commitment is the confirmation level requested on submission.
	Commitment string
}

// Client implements domain.Gateway over Solana JSON-RPC.
type Client struct {
	endpoint   string
	commitment string
	httpClient *http.Client
	authority  *EscrowAuthority
	logger     *slog.Logger
}

// New creates a Client. authority signs escrow release/refund transfers; it
// may be nil when the instance never settles escrows.
func New(cfg Config, authority *EscrowAuthority, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	commitment := cfg.Commitment
	if commitment == "" {
		commitment = "confirmed"
	}
	return &Client{
		endpoint:   cfg.Endpoint,
		commitment: commitment,
		httpClient: &http.Client{Timeout: timeout},
		authority:  authority,
		logger:     logger.With(slog.String("component", "solana_rpc")),
	}
}

// Submit sends a signed transaction and reports its initial confirmation
// state. An accepted-but-unconfirmed transaction returns Confirmed=false;
// the caller polls GetStatus.
func (c *Client) Submit(ctx context.Context, tx domain.SignedTransaction) (domain.SubmitResult, error) {
	encoded := base64.StdEncoding.EncodeToString(tx.Payload)

	var signature string
	err := c.rpcCall(ctx, "sendTransaction", []any{
		encoded,
		map[string]any{"encoding": "base64", "preflightCommitment": c.commitment},
	}, &signature)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	result := domain.SubmitResult{
		Signature:   signature,
		FeeLamports: feePerSignatureLamports,
	}

	status, err := c.GetStatus(ctx, signature)
	if err != nil {
		// Submission went through; confirmation is resolved by polling.
		return result, nil
	}
	result.Confirmed = status == domain.TxStatusConfirmed || status == domain.TxStatusFinalized
	return result, nil
}

// signatureStatus mirrors the getSignatureStatuses response entry.
type signatureStatus struct {
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

// GetStatus queries the confirmation status of a transaction signature.
func (c *Client) GetStatus(ctx context.Context, signature string) (domain.TxStatus, error) {
	var resp struct {
		Value []*signatureStatus `json:"value"`
	}
	err := c.rpcCall(ctx, "getSignatureStatuses", []any{
		[]string{signature},
		map[string]any{"searchTransactionHistory": true},
	}, &resp)
	if err != nil {
		return domain.TxStatusUnknown, err
	}

	if len(resp.Value) == 0 || resp.Value[0] == nil {
		return domain.TxStatusUnknown, nil
	}
	st := resp.Value[0]
	if len(st.Err) > 0 && string(st.Err) != "null" {
		return domain.TxStatusFailed, nil
	}
	switch st.ConfirmationStatus {
	case "processed":
		return domain.TxStatusProcessed, nil
	case "confirmed":
		return domain.TxStatusConfirmed, nil
	case "finalized":
		return domain.TxStatusFinalized, nil
	default:
		return domain.TxStatusUnknown, nil
	}
}

// Balance returns the lamport balance of an address.
func (c *Client) Balance(ctx context.Context, address string) (int64, error) {
	var resp struct {
		Value int64 `json:"value"`
	}
	if err := c.rpcCall(ctx, "getBalance", []any{address}, &resp); err != nil {
		return 0, err
	}
	return resp.Value, nil
}

// CreateEscrowAccount derives the deterministic escrow address for a spec,
// program-derived-address style: the same spec always yields the same
// account, so a retried create never orphans funds.
func (c *Client) CreateEscrowAccount(ctx context.Context, spec domain.EscrowSpec) (string, error) {
	h := sha256.New()
	h.Write([]byte(escrowSeedPrefix))
	h.Write([]byte(spec.EscrowID))
	h.Write([]byte(spec.Buyer))
	h.Write([]byte(spec.Seller))
	return base58.Encode(h.Sum(nil)), nil
}

// Transfer moves lamports out of an escrow account, signed by the escrow
// authority, and returns the transaction signature.
func (c *Client) Transfer(ctx context.Context, escrowAddress, to string, lamports int64) (string, error) {
	if c.authority == nil {
		return "", fmt.Errorf("solana: no escrow authority configured")
	}

	payload, err := c.authority.SignTransfer(escrowAddress, to, lamports)
	if err != nil {
		return "", fmt.Errorf("solana: sign escrow transfer: %w", err)
	}

	var signature string
	err = c.rpcCall(ctx, "sendTransaction", []any{
		base64.StdEncoding.EncodeToString(payload),
		map[string]any{"encoding": "base64", "preflightCommitment": c.commitment},
	}, &signature)
	if err != nil {
		return "", err
	}
	return signature, nil
}

// rpcRequest is a JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// rpcError is a JSON-RPC 2.0 error object.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// rpcCall performs one JSON-RPC round trip, mapping transport failures and
// throttling responses to the connectivity taxonomy.
func (c *Client) rpcCall(ctx context.Context, method string, params any, result any) error {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: 1, Method: method, Params: params})
	if err != nil {
		return fmt.Errorf("solana: marshal %s: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("solana: build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.ConnectivityErr(domain.CodeNetworkError,
			fmt.Sprintf("%s request failed", method), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.ConnectivityErr(domain.CodeRateLimited,
			fmt.Sprintf("%s throttled by rpc node", method), nil)
	}
	if resp.StatusCode >= 500 {
		return domain.ConnectivityErr(domain.CodeNetworkError,
			fmt.Sprintf("%s failed with HTTP %d", method, resp.StatusCode), nil)
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.ConnectivityErr(domain.CodeNetworkError,
			fmt.Sprintf("read %s response", method), err)
	}

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("solana: decode %s response: %w", method, err)
	}
	if envelope.Error != nil {
		return domain.ConnectivityErr(domain.CodeTxFailed,
			fmt.Sprintf("%s rejected: %s (code %d)", method, envelope.Error.Message, envelope.Error.Code), nil)
	}

	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return fmt.Errorf("solana: decode %s result: %w", method, err)
		}
	}
	return nil
}

// Compile-time interface check.
var _ domain.Gateway = (*Client)(nil)
