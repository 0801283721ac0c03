package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/auction"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/escrow"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/notify"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/payment"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/server"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/server/handler"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/server/ws"
)

// services bundles the orchestration core built on top of the wired
// dependencies.
type services struct {
	processor *payment.Processor
	scheduler *payment.Scheduler
	ledger    *escrow.Ledger
	engine    *auction.Engine
}

// buildServices constructs the payment processor, retry scheduler, escrow
// ledger, and auction engine and links them together.
func (a *App) buildServices(deps *Dependencies) *services {
	validator := payment.NewValidator(a.cfg.Payment.Currencies)

	proc := payment.NewProcessor(payment.Config{
		ConfirmTimeout:     a.cfg.Payment.ConfirmTimeout.Duration,
		FeeBufferLamports:  a.cfg.Payment.FeeBufferLamports,
		MaxRetries:         a.cfg.Retry.MaxRetries,
		StatusPollInterval: a.cfg.Payment.StatusPollInterval.Duration,
		SubmitRatePerSec:   a.cfg.Payment.SubmitRatePerSec,
	}, validator, deps.Wallet, deps.Gateway, deps.PaymentStore,
		deps.AuditStore, deps.EventBus, deps.RateLimiter, a.logger)

	sched := payment.NewScheduler(payment.SchedulerConfig{
		MaxRetries: a.cfg.Retry.MaxRetries,
		Base:       a.cfg.Retry.BackoffBase.Duration,
		Cap:        a.cfg.Retry.BackoffCap.Duration,
	}, deps.RetryStore, proc, a.logger)
	proc.SetRetryer(sched)

	ledger := escrow.NewLedger(escrow.Config{
		ConfirmTimeout:     a.cfg.Escrow.ConfirmTimeout.Duration,
		StatusPollInterval: a.cfg.Escrow.StatusPollInterval.Duration,
		LockTTL:            a.cfg.Escrow.LockTTL.Duration,
	}, deps.EscrowStore, deps.Gateway, proc, deps.LockManager,
		deps.AuditStore, deps.EventBus, a.logger)

	engine := auction.NewEngine(deps.AuctionStore, deps.OfferStore,
		deps.NFTStore, ledger, deps.Wallet, deps.AuditStore,
		deps.EventBus, a.logger)

	return &services{
		processor: proc,
		scheduler: sched,
		ledger:    ledger,
		engine:    engine,
	}
}

// ServeMode runs the daemon: resolves interrupted work, reloads the retry
// queue, and starts the scheduler, event watcher, WebSocket hub, and HTTP
// API. On shutdown it writes a full state snapshot.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	svcs := a.buildServices(deps)

	// Settle payments left mid-flight by the previous process before
	// accepting new traffic.
	if err := svcs.processor.Reconcile(ctx); err != nil {
		a.logger.WarnContext(ctx, "payment reconciliation incomplete",
			slog.String("error", err.Error()),
		)
	}
	if err := svcs.scheduler.Load(ctx); err != nil {
		return fmt.Errorf("serve mode: load retry queue: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.scheduler.Run(gctx)
	})

	// Forward bus events to Telegram/Discord.
	watcher := notify.NewWatcher(deps.EventBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return watcher.Run(gctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(gctx, g, deps, svcs)
	}

	err := g.Wait()

	// Snapshot final state so recover mode has something current.
	snapCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, snapErr := deps.Collector.Take(snapCtx); snapErr != nil {
		a.logger.Error("shutdown snapshot failed",
			slog.String("error", snapErr.Error()),
		)
	}

	return ignoreCanceled(err)
}

// ignoreCanceled maps an orderly-shutdown cancellation, wrapped or not, to a
// clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RecoverMode restores marketplace state from the most recent snapshot into
// the stores and exits.
func (a *App) RecoverMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting recover mode")
	if _, err := deps.Collector.Restore(ctx); err != nil {
		return fmt.Errorf("recover mode: %w", err)
	}
	a.logger.InfoContext(ctx, "state restored from snapshot")
	return nil
}

// startHTTPServer adds the API server and WebSocket hub goroutines to the
// given errgroup. The server is shut down gracefully when the context is
// cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *services) {
	hub := ws.NewHub(deps.EventBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return ignoreCanceled(hub.Run(ctx))
	})

	components := make(map[string]handler.Pinger, len(deps.Pingers))
	for name, ping := range deps.Pingers {
		components[name] = handler.PingerFunc(ping)
	}

	handlers := server.Handlers{
		Health:   handler.NewHealthHandler(components, a.logger),
		Payments: handler.NewPaymentHandler(svcs.processor, deps.PaymentStore, a.logger),
		Escrows:  handler.NewEscrowHandler(svcs.ledger, a.logger),
		Auctions: handler.NewAuctionHandler(svcs.engine, a.logger),
		Offers:   handler.NewOfferHandler(svcs.engine, a.logger),
		NFTs:     handler.NewNFTHandler(deps.NFTStore, svcs.engine, a.logger),
		Audit:    handler.NewAuditHandler(deps.AuditStore, a.logger),
		Wallet:   handler.NewWalletHandler(deps.Wallet, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		APIKey:        a.cfg.Server.APIKey,
		RatePerMinute: a.cfg.Server.RatePerMinute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
