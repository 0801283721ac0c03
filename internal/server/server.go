package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/server/handler"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/server/middleware"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	APIKey        string // if empty, authentication is disabled
	RatePerMinute int    // per-client request limit; 0 disables limiting
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Payments *handler.PaymentHandler
	Escrows  *handler.EscrowHandler
	Auctions *handler.AuctionHandler
	Offers   *handler.OfferHandler
	NFTs     *handler.NFTHandler
	Audit    *handler.AuditHandler
	Wallet   *handler.WalletHandler
}

// Server is the HTTP + WebSocket API for the marketplace transaction core.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (auth, rate limiting, logging, CORS) and attaches
// the WebSocket hub. limiter may be nil when rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Payment endpoints.
	mux.HandleFunc("POST /api/payments", handlers.Payments.SubmitPayment)
	mux.HandleFunc("GET /api/payments", handlers.Payments.ListHistory)
	mux.HandleFunc("GET /api/payments/{id}", handlers.Payments.GetPayment)
	mux.HandleFunc("GET /api/payments/{id}/records", handlers.Payments.ListPaymentRecords)

	// Escrow endpoints.
	mux.HandleFunc("POST /api/escrows", handlers.Escrows.CreateEscrow)
	mux.HandleFunc("GET /api/escrows", handlers.Escrows.ListEscrows)
	mux.HandleFunc("GET /api/escrows/{id}", handlers.Escrows.GetEscrow)
	mux.HandleFunc("POST /api/escrows/{id}/fund", handlers.Escrows.FundEscrow)
	mux.HandleFunc("POST /api/escrows/{id}/release", handlers.Escrows.ReleaseEscrow)
	mux.HandleFunc("POST /api/escrows/{id}/cancel", handlers.Escrows.CancelEscrow)

	// Auction endpoints.
	mux.HandleFunc("POST /api/auctions", handlers.Auctions.CreateAuction)
	mux.HandleFunc("GET /api/auctions", handlers.Auctions.ListAuctions)
	mux.HandleFunc("GET /api/auctions/{id}", handlers.Auctions.GetAuction)
	mux.HandleFunc("POST /api/auctions/{id}/bids", handlers.Auctions.PlaceBid)
	mux.HandleFunc("POST /api/auctions/{id}/end", handlers.Auctions.EndAuction)
	mux.HandleFunc("POST /api/auctions/{id}/cancel", handlers.Auctions.CancelAuction)

	// Offer endpoints.
	mux.HandleFunc("POST /api/offers", handlers.Offers.MakeOffer)
	mux.HandleFunc("GET /api/offers/{id}", handlers.Offers.GetOffer)
	mux.HandleFunc("POST /api/offers/{id}/accept", handlers.Offers.AcceptOffer)
	mux.HandleFunc("POST /api/offers/{id}/reject", handlers.Offers.RejectOffer)

	// NFT listing endpoints.
	mux.HandleFunc("PUT /api/nfts", handlers.NFTs.UpsertNFT)
	mux.HandleFunc("GET /api/nfts/{id}", handlers.NFTs.GetNFT)
	mux.HandleFunc("GET /api/nfts/{id}/offers", handlers.NFTs.ListNFTOffers)

	// Audit log.
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListAudit)

	// Wallet state.
	mux.HandleFunc("GET /api/wallet", handlers.Wallet.GetWallet)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	h = middleware.Auth(cfg.APIKey)(h)

	if limiter != nil && cfg.RatePerMinute > 0 {
		h = middleware.RateLimit(limiter, cfg.RatePerMinute, time.Minute)(h)
	}

	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout: 15 * time.Second,
		// Wait-mode payments and escrow funding block through on-chain
		// confirmation and scheduled retries.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
