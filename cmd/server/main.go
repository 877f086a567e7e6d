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

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"suna-chat/internal/bootstrap"
	"suna-chat/internal/config"
	"suna-chat/internal/pkg/logger"
	httptransport "suna-chat/internal/transport/http"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		FilePath: cfg.Log.File,
		Level:    cfg.Log.Level,
		IsProd:   cfg.IsProd(),
	})
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("bootstrap failed: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			log.Error("close resources failed", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	// The in-process pub/sub drops events published before the hub subscribes.
	g.Go(func() error {
		return app.Hub.Run(gctx)
	})
	select {
	case <-app.Hub.Ready():
	case <-gctx.Done():
		return g.Wait()
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           httptransport.NewRouter(app),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g.Go(func() error {
		log.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", zap.Error(err))
		}
		log.Info("server stopped")
		return nil
	})

	return g.Wait()
}
