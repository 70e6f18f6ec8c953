package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"roomsplit/internal/backend"
	"roomsplit/internal/cache"
	"roomsplit/internal/cli"
	"roomsplit/internal/config"
	"roomsplit/internal/core"
	apphttp "roomsplit/internal/http"
	"roomsplit/internal/log"
	"roomsplit/internal/metrics"
	"roomsplit/internal/middleware/ratelimit"
	"roomsplit/internal/middleware/security"
	"roomsplit/internal/services"
)

const (
	shutdownTimeout      = 30 * time.Second
	cacheCleanupInterval = time.Minute
	// two years of monthly reports
	statsCacheSize = 24
)

func main() {
	cfg, logger := cli.MustSetup(log.ComponentApp)
	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := cli.SignalContext(context.Background(), logger)
	defer stop()

	m := metrics.New()

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	res, err := backend.NewFactory(logger).Create(ctx, bcfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	statsOpts := []services.StatisticsOption{
		services.WithStatisticsMetrics(m),
		services.WithStatisticsLogger(logger),
	}
	cacheManager := cache.NewManager(logger)
	if cfg.StatsCacheTTL > 0 {
		statsCache := cache.NewLRUCache[core.Statistics](statsCacheSize, cfg.StatsCacheTTL)
		cacheManager.Register(statsCache)
		statsOpts = append(statsOpts, services.WithCache(statsCache))
	}
	cacheManager.StartCleanup(cacheCleanupInterval)
	defer cacheManager.Stop()

	stats := services.NewStatisticsService(res.Store, cfg.Roster, cfg.Location, statsOpts...)

	expenseOpts := []services.ExpenseOption{
		services.WithInvalidator(stats),
		services.WithExpenseMetrics(m),
		services.WithExpenseLogger(logger),
		services.WithLocation(cfg.Location),
	}
	if res.Publisher != nil {
		expenseOpts = append(expenseOpts, services.WithPublisher(res.Publisher))
	}
	expenses := services.NewExpenseService(res.Store, cfg.Roster, expenseOpts...)

	resolver, err := security.NewIPResolver(cfg.TrustedProxies...)
	if err != nil {
		return err
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:         cfg.Addr(),
		Expenses:     expenses,
		Statistics:   stats,
		Ready:        res.Store.Ping,
		Metrics:      m,
		Logger:       logger,
		Location:     cfg.Location,
		MaxBodyBytes: cfg.MaxBodyBytes,
		RateLimit:    ratelimit.Config{Requests: cfg.RateLimitRequests, Window: cfg.RateLimitWindow},
		CORSOrigins:  cfg.CORSOrigins,
		IPResolver:   resolver,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting roomsplit server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"roster", cfg.Roster.String(),
			"timezone", cfg.Location.String(),
			"events", res.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
			return err
		}
		return nil
	})
	return g.Wait()
}
