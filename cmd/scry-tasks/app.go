package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/scry-tasks/internal/auth"
	"github.com/phrazzld/scry-tasks/internal/classify"
	"github.com/phrazzld/scry-tasks/internal/config"
	"github.com/phrazzld/scry-tasks/internal/events"
	"github.com/phrazzld/scry-tasks/internal/session"
	"github.com/phrazzld/scry-tasks/internal/store"
	"github.com/phrazzld/scry-tasks/internal/task"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	// Configuration
	config *config.Config

	// Core services
	logger *slog.Logger
	repo   *store.Repository

	// Admin tokens; nil when admin endpoints are disabled
	tokens auth.TokenService

	// Event system
	sessions *session.Registry
	emitter  *events.InMemoryEventEmitter

	// Task handling
	dispatcher *task.Dispatcher

	sweepCancel context.CancelFunc
	sweepDone   chan struct{}
}

// newApplication creates a new application instance with all dependencies initialized.
// The record log is opened and locked here; cleanup releases it.
func newApplication(cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	app.repo, err = store.Open(storeOptions(cfg, false), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open record log: %w", err)
	}
	logger.Info("record log opened",
		"data_dir", cfg.Store.DataDir,
		"tasks", app.repo.Len(),
		"log_bytes", app.repo.LogSize())

	if cfg.Auth.AdminEnabled() {
		lifetime := time.Duration(cfg.Auth.TokenLifetimeMinutes) * time.Minute
		app.tokens, err = auth.NewTokenService(cfg.Auth.JWTSecret, lifetime)
		if err != nil {
			_ = app.repo.Close()
			return nil, fmt.Errorf("failed to initialize token service: %w", err)
		}
		logger.Info("admin authentication enabled",
			"token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes)
	} else {
		logger.Warn("admin endpoints disabled, no jwt secret configured")
	}

	// Initialize the session registry and route lifecycle events to it
	app.sessions = session.NewRegistry(logger)
	app.emitter = events.NewInMemoryEventEmitter(logger)
	app.emitter.RegisterHandler(app.sessions)

	processor := task.NewSimulatedProcessor(cfg.Dispatcher.WorkMin, cfg.Dispatcher.WorkMax)
	processor.FailureRate = cfg.Dispatcher.FailureRate

	app.dispatcher = task.NewDispatcher(
		app.repo,
		processor,
		classify.NewKeyword(),
		app.emitter,
		task.Config{
			TickInterval:       cfg.Dispatcher.TickInterval,
			EMAAlpha:           cfg.Dispatcher.EMAAlpha,
			InitialEstimate:    cfg.Dispatcher.InitialEstimate,
			DuplicateThreshold: cfg.Dispatcher.DuplicateThreshold,
			IntegrityInterval:  cfg.Integrity.Interval,
		},
		logger,
	)

	logger.Info("Application initialized successfully")
	return app, nil
}

// start launches the dispatcher and the stale session sweeper.
func (app *application) start() error {
	if err := app.dispatcher.Start(); err != nil {
		return fmt.Errorf("failed to start dispatcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app.sweepCancel = cancel
	app.sweepDone = make(chan struct{})
	go func() {
		defer close(app.sweepDone)
		app.sessions.Run(ctx, app.config.Session.SweepInterval, app.config.Session.HeartbeatTimeout)
	}()
	return nil
}

// Run starts the application server, handling lifecycle and cleanup.
// It returns an error if the server fails to start or encounters problems.
func (app *application) Run(ctx context.Context) error {
	if err := app.start(); err != nil {
		app.cleanup()
		return err
	}

	// Set up router using the application dependencies
	router := app.setupRouter()

	// Start the HTTP server
	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// cleanup handles graceful shutdown of application resources. The
// dispatcher stops first so the in-flight task is recorded and its events
// still reach connected clients; sessions close next and the log lock is
// released last.
func (app *application) cleanup() {
	if app.sweepCancel != nil {
		app.sweepCancel()
		<-app.sweepDone
	}

	if app.dispatcher != nil {
		app.dispatcher.Stop()
	}

	if app.sessions != nil {
		app.sessions.CloseAll()
	}

	if app.repo != nil {
		if err := app.repo.Close(); err != nil {
			app.logger.Error("Error closing record log", "error", err)
		}
	}

	app.logger.Info("Application shutdown completed")
}
