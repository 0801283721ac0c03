package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/bus"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/cache/redis"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/config"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/notify"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/rpc/solana"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/snapshot"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/store/postgres"
	"github.com/nekagit/Server-soladiankcom-sub001/internal/wallet"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	PaymentStore domain.PaymentStore
	EscrowStore  domain.EscrowStore
	AuctionStore domain.AuctionStore
	OfferStore   domain.OfferStore
	NFTStore     domain.NFTStore
	RetryStore   domain.RetryQueueStore
	AuditStore   domain.AuditStore

	// Chain access
	Gateway domain.Gateway
	Wallet  domain.Wallet

	// Coordination. LockManager and RateLimiter are nil without Redis; the
	// services fall back to their in-process equivalents.
	EventBus    domain.EventBus
	LockManager domain.LockManager
	RateLimiter domain.RateLimiter

	// Snapshots
	SnapshotStore domain.SnapshotStore
	Collector     *snapshot.Collector

	// Notifications
	Notifier *notify.Notifier

	// Health probes, keyed by component name.
	Pingers map[string]func(ctx context.Context) error
}

// cachedBalanceReader layers the Redis balance cache over the RPC gateway so
// repeated wallet-balance reads do not each hit the chain.
type cachedBalanceReader struct {
	gateway domain.Gateway
	cache   *redis.BalanceCache
}

func (r *cachedBalanceReader) Balance(ctx context.Context, address string) (int64, error) {
	if lamports, err := r.cache.Get(ctx, address); err == nil {
		return lamports, nil
	}
	lamports, err := r.gateway.Balance(ctx, address)
	if err != nil {
		return 0, err
	}
	_ = r.cache.Set(ctx, address, lamports)
	return lamports, nil
}

// newServiceWallet builds the daemon's signing wallet and connects it, so the
// payment and auction services can sign from the first request onward.
func newServiceWallet(ctx context.Context, encodedKey string, balances wallet.BalanceReader) (*wallet.Keypair, error) {
	w, err := wallet.NewKeypair(encodedKey, balances)
	if err != nil {
		return nil, err
	}
	if _, err := w.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return w, nil
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Pingers: make(map[string]func(ctx context.Context) error),
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.PaymentStore = postgres.NewPaymentStore(pool)
	deps.EscrowStore = postgres.NewEscrowStore(pool)
	deps.AuctionStore = postgres.NewAuctionStore(pool)
	deps.OfferStore = postgres.NewOfferStore(pool)
	deps.NFTStore = postgres.NewNFTStore(pool)
	deps.RetryStore = postgres.NewRetryQueueStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)
	deps.Pingers["postgres"] = pool.Ping

	// --- Solana RPC gateway + service wallet ---
	var authority *solana.EscrowAuthority
	if cfg.Solana.EscrowAuthorityKey != "" {
		authority, err = solana.NewEscrowAuthority(cfg.Solana.EscrowAuthorityKey)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: escrow authority: %w", err)
		}
	}
	gateway := solana.New(solana.Config{
		Endpoint:   cfg.Solana.Endpoint,
		Commitment: cfg.Solana.Commitment,
		Timeout:    cfg.Solana.Timeout.Duration,
	}, authority, logger)
	deps.Gateway = gateway

	// --- Redis-backed coordination, or in-process fallbacks ---
	var balances wallet.BalanceReader = gateway
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.EventBus = redis.NewEventBus(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Pingers["redis"] = redisClient.Ping
		balances = &cachedBalanceReader{
			gateway: gateway,
			cache:   redis.NewBalanceCache(redisClient, 10*time.Second),
		}
	} else {
		memBus := bus.NewMemory()
		closers = append(closers, memBus.Close)
		deps.EventBus = memBus
	}

	w, err := newServiceWallet(ctx, cfg.Wallet.PrivateKey, balances)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: wallet: %w", err)
	}
	deps.Wallet = w

	// --- Snapshot sink ---
	switch cfg.Snapshot.Backend {
	case "", "file":
		deps.SnapshotStore = snapshot.NewFileStore(cfg.Snapshot.Path)
	case "s3":
		s3Store, err := snapshot.NewS3Store(ctx, snapshot.S3Config{
			Endpoint:       cfg.Snapshot.Endpoint,
			Region:         cfg.Snapshot.Region,
			Bucket:         cfg.Snapshot.Bucket,
			Key:            cfg.Snapshot.Key,
			AccessKey:      cfg.Snapshot.AccessKey,
			SecretKey:      cfg.Snapshot.SecretKey,
			ForcePathStyle: cfg.Snapshot.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: snapshot s3: %w", err)
		}
		deps.SnapshotStore = s3Store
		deps.Pingers["snapshot_s3"] = s3Store.Health
	default:
		cleanup()
		return nil, nil, fmt.Errorf("wire: unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
	deps.Collector = snapshot.NewCollector(snapshot.Stores{
		Payments: deps.PaymentStore,
		Escrows:  deps.EscrowStore,
		Auctions: deps.AuctionStore,
		Offers:   deps.OfferStore,
		NFTs:     deps.NFTStore,
		Retry:    deps.RetryStore,
	}, deps.SnapshotStore, logger)

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
