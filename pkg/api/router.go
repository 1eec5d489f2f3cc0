package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/UnAfraid/wg-gateway/pkg/api/internal/handler"
	"github.com/UnAfraid/wg-gateway/pkg/api/internal/tools/frontend"
	"github.com/UnAfraid/wg-gateway/pkg/auth"
	"github.com/UnAfraid/wg-gateway/pkg/config"
	"github.com/UnAfraid/wg-gateway/pkg/provision"
	"github.com/UnAfraid/wg-gateway/pkg/status"
)

func NewRouter(
	conf *config.Config,
	sessionService auth.SessionService,
	provisionService provision.Service,
	statusService status.Service,
) http.Handler {
	corsMiddleware := cors.Handler(cors.Options{
		AllowedOrigins:   conf.CorsAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: conf.CorsAllowCredentials,
		MaxAge:           300,
	})

	authHandler := handler.NewAuthHandler(sessionService)
	wireGuardHandler := handler.NewWireGuardHandler(provisionService, statusService)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if conf.HttpServer.TrustProxyHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(handler.RequestLogger)
	router.Use(middleware.Recoverer)
	router.Use(corsMiddleware)

	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready(statusService))

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(handler.NoCache)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)
			r.Post("/logout", authHandler.Logout)
		})

		r.Route("/admin/wg", func(r chi.Router) {
			r.Use(handler.RequireAuthentication(sessionService))

			r.Get("/state", wireGuardHandler.State)
			r.Post("/peer", wireGuardHandler.CreatePeer)
			r.Post("/peer/remove", wireGuardHandler.RemovePeer)
			r.Get("/reconcile", wireGuardHandler.Reconcile)
		})
	})

	if conf.HttpServer.FrontendEnabled {
		if frontend.HasContent(conf.HttpServer.FrontendPath) {
			router.Mount("/", frontend.Handler(conf.HttpServer.FrontendPath))
		} else {
			logrus.
				WithField("path", conf.HttpServer.FrontendPath).
				Warn("frontend enabled but directory is empty or missing")
		}
	}

	return router
}
