package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// startHTTPServer serves router until ctx is canceled or the listener fails,
// then shuts down gracefully and releases the application's resources.
func (app *application) startHTTPServer(ctx context.Context, router http.Handler) error {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", app.config.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info("Starting server", "port", app.config.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal or a listener failure
	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("Shutting down server...")
	case err := <-serveErr:
		if err != nil {
			app.logger.Error("Server failed", "error", err)
			runErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("Server shutdown failed", "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("server shutdown failed: %w", err)
		}
	}

	app.cleanup()

	app.logger.Info("Server shutdown completed")
	return runErr
}
