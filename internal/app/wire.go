package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	s3blob "github.com/cipherbet/oracled/internal/blob/s3"
	"github.com/cipherbet/oracled/internal/cache/redis"
	"github.com/cipherbet/oracled/internal/config"
	"github.com/cipherbet/oracled/internal/domain"
	"github.com/cipherbet/oracled/internal/engine"
	"github.com/cipherbet/oracled/internal/fhe"
	"github.com/cipherbet/oracled/internal/notify"
	"github.com/cipherbet/oracled/internal/store/memory"
	"github.com/cipherbet/oracled/internal/store/postgres"
)

// Dependencies bundles every domain-level dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function.
type Dependencies struct {
	// Stores
	PriceStore  domain.PriceStore
	BetStore    domain.BetStore
	PointsStore domain.PointsStore
	StateStore  domain.StateStore

	// Redis-backed infrastructure; nil when Redis is not configured.
	PriceCache    domain.PriceCache
	RateLimiter   domain.RateLimiter
	LockManager   domain.LockManager
	SignalBus     domain.SignalBus
	NonceRegistry domain.NonceRegistry

	// Blob storage; nil when S3 is not configured.
	BlobWriter  domain.BlobWriter
	BlobReader  domain.BlobReader
	BlobDeleter domain.BlobDeleter
	Archiver    domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Core
	Coprocessor *fhe.Coprocessor
	Engine      *engine.Engine
}

// ledgerHost is the stable identity the coprocessor binds input proofs to.
// It stands in for the contract address an on-chain deployment would have.
func ledgerHost() common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256([]byte("cipherbet/oracled"))[12:])
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
//
// Postgres, Redis, and S3 are each optional: the ledger falls back to
// in-memory stores without Postgres, runs without cache/bus/limits without
// Redis, and skips archival without S3.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}
	owner := cfg.OwnerAddress()
	var fheStore fhe.Store

	// --- Stores: PostgreSQL when configured, in-memory otherwise ---
	if cfg.Postgres.Enabled() {
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
		deps.PriceStore = postgres.NewPriceStore(pool)
		deps.BetStore = postgres.NewBetStore(pool)
		deps.PointsStore = postgres.NewPointsStore(pool)
		fheStore = postgres.NewFHEStore(pool)

		stateStore := postgres.NewStateStore(pool)
		if err := stateStore.Init(ctx, owner); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: init ledger state: %w", err)
		}
		deps.StateStore = stateStore
	} else {
		logger.Warn("wire: postgres not configured, using in-memory stores")
		deps.PriceStore = memory.NewPriceStore()
		deps.BetStore = memory.NewBetStore()
		deps.PointsStore = memory.NewPointsStore()
		deps.StateStore = memory.NewStateStore(owner)
	}

	// --- Redis ---
	if cfg.Redis.Enabled() {
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

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.NonceRegistry = redis.NewNonceRegistry(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}

		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		reader := s3blob.NewReader(s3Client)
		deps.BlobReader = reader
		deps.BlobDeleter = reader // same type implements BlobDeleter
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.PriceStore, deps.BetStore, logger)
	}

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

	// --- Event fan-out: signal bus plus operator notifications ---
	var pubs multiPublisher
	if deps.SignalBus != nil {
		pubs = append(pubs, redis.NewEventPublisher(deps.SignalBus, logger))
	}
	if len(senders) > 0 {
		pubs = append(pubs, notify.NewEventBridge(deps.Notifier))
	}

	// --- Coprocessor and settlement engine ---
	overflow, err := fhe.ParseOverflowMode(cfg.Ledger.Overflow)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %w", err)
	}
	if fheStore != nil {
		// Durable stores keep handles across restarts, so the coprocessor
		// state those handles resolve against must be just as durable.
		cop, err := fhe.NewPersistent(ctx, ledgerHost(), overflow, fheStore)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: restore coprocessor state: %w", err)
		}
		deps.Coprocessor = cop
	} else {
		deps.Coprocessor = fhe.New(ledgerHost(), overflow)
	}

	deps.Engine = engine.New(
		deps.Coprocessor,
		engine.Stores{
			Prices: deps.PriceStore,
			Bets:   deps.BetStore,
			Points: deps.PointsStore,
			State:  deps.StateStore,
		},
		engine.Options{
			Publisher:  pubs.orNil(),
			PriceCache: deps.PriceCache,
		},
		logger,
	)

	return deps, cleanup, nil
}

// multiPublisher fans a ledger event out to several publishers.
type multiPublisher []domain.EventPublisher

func (m multiPublisher) PublishEvent(ctx context.Context, evt domain.Event) {
	for _, p := range m {
		p.PublishEvent(ctx, evt)
	}
}

// orNil collapses an empty fan-out to a nil publisher, which the engine
// treats as "no observers".
func (m multiPublisher) orNil() domain.EventPublisher {
	if len(m) == 0 {
		return nil
	}
	return m
}
