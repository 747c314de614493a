package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"credreg/internal/app"
	"credreg/internal/platform/config"
	"credreg/internal/platform/logger"
)

const shutdownTimeout = 10 * time.Second

// main wires configuration, logging and the registry application, then keeps
// the server lifecycle small. Registry logic lives in internal/registry.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("initializing credreg",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"postgres", cfg.UsesPostgres(),
		"kafka", cfg.UsesKafka(),
	)

	registry, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize registry", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := registry.Close(); err != nil {
			log.Error("failed to release resources", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           registry.Router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return registry.RunBackground(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}
