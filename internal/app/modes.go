package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cipherbet/oracled/internal/cache/redis"
	"github.com/cipherbet/oracled/internal/crypto"
	"github.com/cipherbet/oracled/internal/domain"
	"github.com/cipherbet/oracled/internal/server"
	"github.com/cipherbet/oracled/internal/server/handler"
	"github.com/cipherbet/oracled/internal/server/ws"
)

// shutdownGrace bounds how long a graceful HTTP shutdown may take.
const shutdownGrace = 10 * time.Second

// ServeMode runs the HTTP + WebSocket API, and, when archival is enabled,
// a background day-close archive loop. It blocks until the context is
// cancelled or a component fails.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	// WebSocket hub requires the Redis signal bus.
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, nil, a.logger, ws.Config{
			Mode:      a.cfg.Mode,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	adminKey, err := a.resolveAdminKey()
	if err != nil {
		return fmt.Errorf("app: resolve admin key: %w", err)
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Engine, a.logger),
		Day:    handler.NewDayHandler(deps.Engine, a.logger),
		Prices: handler.NewPriceHandler(deps.Engine, deps.PriceCache, deps.Engine, a.logger),
		Bets:   handler.NewBetHandler(deps.Engine, a.logger),
		Claims: handler.NewClaimHandler(deps.Engine, a.logger),
		Points: handler.NewPointsHandler(deps.Engine, deps.Coprocessor, a.logger),
		Inputs: handler.NewInputHandler(deps.Coprocessor, a.logger),
		Admin:  handler.NewAdminHandler(deps.Engine, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archive = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}
	if deps.SignalBus != nil {
		handlers.Events = handler.NewEventsHandler(deps.SignalBus, redis.EventStreamName, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		AdminKey:      adminKey,
		SignatureSkew: a.cfg.Server.SignatureSkew,
		RateLimit:     a.cfg.Server.RateLimit,
		RateWindow:    a.cfg.Server.RateWindow,
	}, handlers, hub, deps.RateLimiter, deps.NonceRegistry, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error {
			return a.archiveLoop(ctx, deps)
		})
	}

	if deps.Notifier != nil {
		_ = deps.Notifier.NotifyAll(ctx, "oracled online",
			fmt.Sprintf("serve mode listening on port %d", a.cfg.Server.Port))
	}

	return g.Wait()
}

// ArchiveMode performs one archive sweep over recently closed days and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires object storage")
	}
	return a.archiveSweep(ctx, deps)
}

// resolveAdminKey returns the admin API key, decrypting the configured key
// file when no inline key is set. An empty result disables the key check.
func (a *App) resolveAdminKey() (string, error) {
	if a.cfg.Server.AdminKey != "" {
		return a.cfg.Server.AdminKey, nil
	}
	if a.cfg.Server.AdminKeyFile == "" {
		return "", nil
	}
	return crypto.LoadKey(crypto.KeyConfig{
		EncryptedKeyPath: a.cfg.Server.AdminKeyFile,
		KeyPassword:      a.cfg.Server.AdminKeyPassword,
	})
}

// archiveLoop periodically sweeps closed days into cold storage until the
// context is cancelled.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := a.archiveSweep(ctx, deps); err != nil {
				a.logger.ErrorContext(ctx, "archive sweep failed",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// archiveSweep archives every closed day within the configured lookback that
// has not already been uploaded. A distributed lock keeps the sweep
// single-flight across replicas when Redis is available.
func (a *App) archiveSweep(ctx context.Context, deps *Dependencies) error {
	today := deps.Engine.CurrentDayIndex()

	lookback := a.cfg.Archive.LookbackDays
	if lookback < 1 {
		lookback = 1
	}

	for i := 1; i <= lookback; i++ {
		if domain.DayIndex(i) > today {
			break
		}
		day := today - domain.DayIndex(i)

		done, err := a.dayAlreadyArchived(ctx, deps, day)
		if err != nil {
			a.logger.WarnContext(ctx, "archive existence check failed",
				slog.Uint64("day", uint64(day)),
				slog.String("error", err.Error()),
			)
		}
		if done {
			continue
		}

		if err := a.archiveDay(ctx, deps, day); err != nil {
			return err
		}
	}

	if a.cfg.Archive.RetentionDays > 0 && deps.BlobReader != nil && deps.BlobDeleter != nil {
		if err := a.pruneArchive(ctx, deps, today); err != nil {
			a.logger.WarnContext(ctx, "archive prune failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// pruneArchive deletes archive objects for days that have aged out of the
// retention window.
func (a *App) pruneArchive(ctx context.Context, deps *Dependencies, today domain.DayIndex) error {
	retention := domain.DayIndex(a.cfg.Archive.RetentionDays)
	if retention >= today {
		return nil
	}
	cutoff := today - retention

	for _, prefix := range []string{"archive/prices/", "archive/bets/"} {
		blobs, err := deps.BlobReader.List(ctx, prefix)
		if err != nil {
			return fmt.Errorf("app: list %s: %w", prefix, err)
		}
		for _, b := range blobs {
			var day uint64
			if _, err := fmt.Sscanf(b.Path, prefix+"day-%d.jsonl", &day); err != nil {
				continue
			}
			if domain.DayIndex(day) >= cutoff {
				continue
			}
			if err := deps.BlobDeleter.Delete(ctx, b.Path); err != nil {
				a.logger.WarnContext(ctx, "archive object delete failed",
					slog.String("path", b.Path),
					slog.String("error", err.Error()),
				)
				continue
			}
			a.logger.InfoContext(ctx, "archive object pruned",
				slog.String("path", b.Path),
			)
		}
	}
	return nil
}

// dayAlreadyArchived checks cold storage for the day's price file.
func (a *App) dayAlreadyArchived(ctx context.Context, deps *Dependencies, day domain.DayIndex) (bool, error) {
	if deps.BlobReader == nil {
		return false, nil
	}
	return deps.BlobReader.Exists(ctx, fmt.Sprintf("archive/prices/day-%d.jsonl", day))
}

// archiveDay uploads one closed day under a distributed lock.
func (a *App) archiveDay(ctx context.Context, deps *Dependencies, day domain.DayIndex) error {
	if deps.LockManager != nil {
		unlock, err := deps.LockManager.Acquire(ctx, fmt.Sprintf("archive:day:%d", day), 5*time.Minute)
		if err != nil {
			if errors.Is(err, domain.ErrLockHeld) {
				a.logger.InfoContext(ctx, "archive already in progress elsewhere",
					slog.Uint64("day", uint64(day)),
				)
				return nil
			}
			return fmt.Errorf("app: acquire archive lock: %w", err)
		}
		defer unlock()
	}

	count, err := deps.Archiver.ArchiveDay(ctx, day)
	if err != nil {
		return fmt.Errorf("app: archive day %d: %w", day, err)
	}

	a.logger.InfoContext(ctx, "day archived",
		slog.Uint64("day", uint64(day)),
		slog.Int64("records", count),
	)
	return nil
}
