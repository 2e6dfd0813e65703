package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"pharmapos-backend/internal/config"
)

// Start serves router until ctx is cancelled, then drains in-flight requests
// (sales included) before running the cleanup hooks in order.
func Start(ctx context.Context, cfg config.Config, router http.Handler, log *slog.Logger, cleanup ...func()) error {
	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	defer func() {
		for _, fn := range cleanup {
			fn()
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info("http server starting", "addr", srv.Addr, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info("http server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		log.Info("http server stopped")
		return nil
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
}
