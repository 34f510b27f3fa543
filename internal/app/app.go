package app

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/guttosm/dsepulse/config"
	"github.com/guttosm/dsepulse/internal/api"
	"github.com/guttosm/dsepulse/internal/logger"
	"github.com/guttosm/dsepulse/internal/service"
	"github.com/guttosm/dsepulse/internal/upstream"
)

// InitializeApp sets up all application dependencies and returns
// a fully configured Gin router, a cleanup function for graceful shutdown,
// and any error encountered during initialization.
//
// Responsibilities:
//   - Builds the upstream DSE client from configuration.
//   - Wires the stock service (fetch, parse, cache, query) with explicit
//     constructor arguments; there is no service container.
//   - Creates the HTTP handler layer and configures the Gin router.
//   - Registers health and readiness probes.
//   - Optionally warms the snapshot cache in the background.
func InitializeApp() (*gin.Engine, func(), error) {
	cfg := config.AppConfig

	client := upstream.NewClient(cfg.Upstream.BaseURL,
		upstream.WithTimeout(cfg.Upstream.Timeout),
		upstream.WithMaxRetries(cfg.Upstream.MaxRetries),
		upstream.WithRateLimit(cfg.Upstream.RateLimit),
	)

	svc := service.NewStockService(client, service.Config{
		LiveTTL:       cfg.Cache.LiveTTL,
		HistoricalTTL: cfg.Cache.HistoricalTTL,
	})

	handler := api.NewHandler(svc)
	router := api.NewRouter(handler)

	healthHandler := api.NewHealthHandler(client.Ping)
	healthHandler.Register(router)

	if cfg.Server.Warmup {
		go warmCaches(svc)
	}

	// The service holds no connections; nothing to close on shutdown yet.
	cleanup := func() {}

	return router, cleanup, nil
}

// warmCaches prefetches the live sources so the first client requests hit a
// warm cache. Failures are logged, never fatal; the service lazily fetches
// on demand anyway.
func warmCaches(svc service.StockService) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := svc.GetStockData(gctx)
		return err
	})
	g.Go(func() error {
		_, err := svc.GetDsexData(gctx, "")
		return err
	})
	g.Go(func() error {
		_, err := svc.GetTop30(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		logger.L().Warn().Err(err).Msg("cache warmup incomplete")
		return
	}
	logger.L().Info().Msg("cache warmup done")
}
