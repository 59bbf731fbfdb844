package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/phrazzld/scry-tasks/internal/api"
	apiMiddleware "github.com/phrazzld/scry-tasks/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	// Apply standard middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	taskHandler := api.NewTaskHandler(app.dispatcher, app.sessions)
	adminHandler := api.NewAdminHandler(app.dispatcher)
	wsHandler := api.NewWebSocketHandler(
		app.dispatcher,
		app.sessions,
		app.config.Session.WriteTimeout,
		app.logger,
	)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.tokens)

	r.Get("/health", taskHandler.Health)
	r.Get("/ws", wsHandler.ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", taskHandler.Status)
		r.Post("/tasks", taskHandler.CreateTask)
		r.Get("/tasks", taskHandler.ListTasks)
		r.Get("/tasks/{id}", taskHandler.GetTask)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Delete("/tasks/{id}", adminHandler.DeleteTask)
			r.Post("/admin/verify", adminHandler.Verify)
			r.Post("/admin/compact", adminHandler.Compact)
			r.Post("/admin/reindex", adminHandler.Reindex)
		})
	})

	return r
}
