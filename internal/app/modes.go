package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/sooncult/soon-coin/internal/server"
	"github.com/sooncult/soon-coin/internal/server/handler"
	"github.com/sooncult/soon-coin/internal/server/ws"
)

// FullMode runs the engine against live chain adapters: the HTTP/WS API,
// the periodic rebalance trigger, and the periodic ledger snapshot.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startRebalanceLoop(ctx, g, deps)
	a.startSnapshotLoop(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// SimMode runs the engine against the in-memory position manager and the
// static oracle. The same loops and API are available, so the whole system
// can be exercised without a chain, a database, or a broker.
func (a *App) SimMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sim mode")

	g, ctx := errgroup.WithContext(ctx)

	a.startRebalanceLoop(ctx, g, deps)
	a.startSnapshotLoop(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// ServerMode serves the API over the persisted history without running any
// background loops.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	return g.Wait()
}

// startRebalanceLoop triggers Rebalance on a timer when configured. Every
// outcome is recorded by the service; a failed attempt is logged and the
// loop keeps going.
func (a *App) startRebalanceLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if !a.cfg.Rebalancer.AutoRebalance {
		return
	}
	interval := a.cfg.Rebalancer.AutoInterval.Duration

	g.Go(func() error {
		a.logger.InfoContext(ctx, "rebalance loop started",
			slog.Duration("interval", interval),
		)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if _, err := deps.RebalanceSvc.Rebalance(ctx); err != nil {
					a.logger.WarnContext(ctx, "rebalance loop: attempt failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// startSnapshotLoop archives the ledger state on a timer when snapshots are
// enabled.
func (a *App) startSnapshotLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil || !a.cfg.Snapshot.Enabled {
		return
	}
	interval := a.cfg.Snapshot.Interval.Duration

	g.Go(func() error {
		a.logger.InfoContext(ctx, "snapshot loop started",
			slog.Duration("interval", interval),
		)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				path, holders, err := deps.Archiver.Archive(ctx)
				if err != nil {
					a.logger.WarnContext(ctx, "snapshot loop: archive failed",
						slog.String("error", err.Error()),
					)
					continue
				}
				a.logger.InfoContext(ctx, "snapshot loop: archived",
					slog.String("path", path),
					slog.Int("holders", holders),
				)
			}
		}
	})
}

// startHTTPServer builds the handlers, WebSocket hub, and HTTP server, and
// adds their goroutines to the errgroup. The server shuts down gracefully
// when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		StartedAt: time.Now().UTC(),
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	// The snapshot runner is optional; a typed nil must not reach the
	// handler as a non-nil interface.
	var snapshots handler.SnapshotRunner
	if deps.Archiver != nil {
		snapshots = deps.Archiver
	}

	var claimsHandler *handler.ClaimsHandler
	if deps.ClaimsSvc != nil {
		claimsHandler = handler.NewClaimsHandler(deps.ClaimsSvc)
	}

	handlers := server.Handlers{
		Health:     handler.NewHealthHandler(a.logger),
		Ledger:     handler.NewLedgerHandler(deps.LedgerSvc, a.logger),
		Rebalancer: handler.NewRebalancerHandler(deps.RebalanceSvc, a.logger),
		Claims:     claimsHandler,
		Admin: handler.NewAdminHandler(
			deps.LedgerSvc,
			deps.RebalanceSvc,
			snapshots,
			deps.Tokens,
			common.HexToAddress(a.cfg.Token.Owner),
			a.logger,
		),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
	}, handlers, hub, a.logger)

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
