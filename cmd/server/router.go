package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/reminder-api/internal/api"
	apiMiddleware "github.com/phrazzld/reminder-api/internal/api/middleware"
)

// requestTimeout bounds the handling of a single API request.
const requestTimeout = 30 * time.Second

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	taskHandler := api.NewTaskHandler(app.taskFacade, app.logger)
	notificationHandler := api.NewNotificationHandler(app.notificationFacade, app.logger)
	healthHandler := api.NewHealthHandler(app.readiness, app.logger)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(requestTimeout))
		r.Route("/tasks", taskHandler.Routes)
		r.Route("/notifications", notificationHandler.Routes)
	})

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	return r
}
