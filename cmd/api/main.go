package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/unibazzar/unibazzar-cart/api/middleware"
	"github.com/unibazzar/unibazzar-cart/api/routes"
	"github.com/unibazzar/unibazzar-cart/internal/cart"
	"github.com/unibazzar/unibazzar-cart/internal/cartsync"
	"github.com/unibazzar/unibazzar-cart/pkg/config"
	"github.com/unibazzar/unibazzar-cart/pkg/env"
	"github.com/unibazzar/unibazzar-cart/pkg/logger"
	"github.com/unibazzar/unibazzar-cart/pkg/metrics"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cart-api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "cart-api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cartMetrics := metrics.NewCartMetrics(registry)

	backend := cartsync.Open(ctx, cfg, logg)
	defer func() {
		if err := backend.Close(); err != nil {
			logg.Error(context.Background(), "error closing snapshot storage", err)
		}
	}()

	bridge := cartsync.NewBridge(backend.Store, cfg.Cart.StorageKey,
		cartsync.WithTimeout(cfg.Cart.PersistTimeout),
		cartsync.WithLogger(logg),
		cartsync.WithRecorder(cartMetrics),
	)

	store := cart.NewStore(bridge.Hydrate(ctx),
		cart.WithLogger(logg),
		cart.WithPriceHook(priceHook(cfg, logg, cartMetrics)),
	)
	store.Subscribe(bridge)
	store.Subscribe(cart.NewMetricsSubscriber(cartMetrics))

	var idempotency middleware.IdempotencyStore = middleware.NewMemoryIdempotencyStore()
	if backend.Redis != nil {
		idempotency = backend.Redis
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": env.Instance(),
		"storage":  backend.Name,
		"degraded": backend.Degraded,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, store, routes.Storage{
			Name:     backend.Name,
			Degraded: backend.Degraded,
			Checker:  bridge,
		}, idempotency, registry),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting cart api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "cart api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error(shutdownCtx, "graceful shutdown failed", err)
	}
	logg.Info(shutdownCtx, "cart api server stopped")
}

// priceHook rejects unusable prices in strict mode. Otherwise they are logged
// and counted before the item is added at zero.
func priceHook(cfg *config.Config, logg *logger.Logger, m *metrics.CartMetrics) cart.PriceHook {
	if cfg.Cart.StrictPrices {
		return cart.StrictPriceHook()
	}
	count := func(context.Context, cart.ProductInput, error) error {
		m.IncSanitizedPrice()
		return nil
	}
	return cart.ChainPriceHooks(cart.LogPriceHook(logg), count)
}
