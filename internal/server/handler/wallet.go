package handler

import (
	"log/slog"
	"net/http"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// WalletHandler exposes the daemon wallet's connection state and balance.
type WalletHandler struct {
	wallet domain.Wallet
	logger *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallet domain.Wallet, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallet: wallet, logger: logger}
}

// GetWallet returns the wallet address, connection state and current balance.
// GET /api/wallet
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"address":   h.wallet.Address(),
		"connected": h.wallet.Connected(),
	}
	if h.wallet.Connected() {
		lamports, err := h.wallet.Balance(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "wallet balance lookup failed",
				slog.String("error", err.Error()))
		} else {
			resp["lamports"] = lamports
			resp["sol"] = float64(lamports) / domain.LamportsPerSol
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
