package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"cherrybook/internal/metrics"
	"cherrybook/internal/session"
	"cherrybook/internal/util"
	"cherrybook/pkg/queue"
	"cherrybook/pkg/recommend"
	"cherrybook/services/storefront/internal/app"
	"cherrybook/services/storefront/internal/config"
	"cherrybook/services/storefront/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	factory, err := app.NewGeneratorFactory(cfg.GenerationProvider, cfg.GenerationBaseURL, cfg.GenerationModel)
	if err != nil {
		util.Fatal(logger, "failed to init generation provider", "err", err)
	}
	gateway := recommend.New(recommend.Config{
		Credentials:  cfg.Credential,
		NewGenerator: factory,
		MaxResults:   cfg.MaxRecommendations,
		Observer:     metrics.Recommendations{},
	})
	if _, ok := cfg.Credential(); !ok {
		logger.Warn("no generation api key configured, recommendations are disabled")
	}

	idleTTL := time.Duration(cfg.SessionIdleMinutes) * time.Minute
	sessions := session.NewRegistry(idleTTL, session.WithSizeObserver(metrics.SetActiveSessions))

	// Without Redis there is no fulfilment queue and checkout only clears
	// the cart.
	var orders *queue.RedisOrderQueue
	appCfg := app.Config{
		DatabaseURL: cfg.DatabaseURL,
		Recommender: gateway,
		Sessions:    sessions,
	}
	if cfg.RedisAddr != "" {
		orders, err = queue.NewRedisOrderQueue(queue.RedisQueueConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			util.Fatal(logger, "failed to init order queue", "err", err)
		}
		defer orders.Close()
		appCfg.Orders = orders
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		util.Fatal(logger, "failed to init app", "err", err)
	}
	defer appCore.Close()

	httpServer, err := server.New(server.Config{
		App:                      appCore,
		RedisAddr:                cfg.RedisAddr,
		RedisPassword:            cfg.RedisPassword,
		SearchRateLimitPerMinute: cfg.SearchRateLimitPerMinute,
		TrustedProxyCIDRs:        cfg.TrustedProxyCIDRs,
		AllowedOrigins:           cfg.AllowedOrigins,
		SessionCookieName:        cfg.SessionCookieName,
		SessionCookieSecure:      cfg.SessionCookieSecure,
		SessionMaxAge:            idleTTL,
	})
	if err != nil {
		util.Fatal(logger, "failed to init server", "err", err)
	}
	defer httpServer.Close()

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("storefront server listening", "addr", addr, "provider", cfg.GenerationProvider)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return sessions.Run(gctx, 0)
	})
	if orders != nil {
		orders.Start(gctx, 1, func(_ context.Context, o queue.Order) error {
			logger.Info("order.fulfilled", "order_id", o.ID, "items", o.ItemCount, "subtotal", o.Subtotal)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
	}
	logger.Info("storefront server stopped")
}
