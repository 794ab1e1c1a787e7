package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/mlr-content/pkg/mlrcontent/api"
	"github.com/tendant/mlr-content/pkg/mlrcontent/config"
)

// maxRequestBytes bounds request bodies on the API routes, uploads included.
const maxRequestBytes = 32 << 20

// NewRouter wires the handler behind the middleware stack and the configured
// authentication. Serve and webhook routes stay outside authentication
// because the review service calls them directly.
func NewRouter(cfg *config.ServerConfig, h *api.Handler, ready func(context.Context) error, logger *slog.Logger) (*chi.Mux, error) {
	r := chi.NewRouter()

	r.Use(api.RequestIDMiddleware)
	r.Use(chimiddleware.RealIP)
	r.Use(api.LoggingMiddleware(logger))
	r.Use(api.RecoveryMiddleware)

	origins := cfg.CORSAllowedOrigins
	if len(origins) == 0 && cfg.IsDevelopment() {
		origins = []string{"*"}
	}
	if len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: origins,
			AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	app.RoutesHealthz(r)
	r.Get("/healthz/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			slog.Warn("Readiness check failed", "error", err)
			render.Status(r, http.StatusServiceUnavailable)
			render.PlainText(w, r, http.StatusText(http.StatusServiceUnavailable))
			return
		}
		render.PlainText(w, r, http.StatusText(http.StatusOK))
	})

	h.RegisterPublic(r)

	auth, err := authMiddleware(cfg)
	if err != nil {
		return nil, err
	}
	r.Group(func(r chi.Router) {
		r.Use(api.RequestSizeLimitMiddleware(maxRequestBytes))
		r.Use(chimiddleware.Timeout(max(2*cfg.Generation.Timeout, time.Minute)))
		r.Use(auth...)
		h.RegisterAPI(r)
	})

	return r, nil
}

func authMiddleware(cfg *config.ServerConfig) ([]func(http.Handler) http.Handler, error) {
	switch cfg.AuthMode {
	case config.AuthNone:
		return nil, nil
	case config.AuthAPIKey:
		mw, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"key1": cfg.APIKeySHA256,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("initialize api key middleware: %w", err)
		}
		return []func(http.Handler) http.Handler{mw}, nil
	case config.AuthJWT:
		tokenAuth := jwtauth.New("HS256", []byte(cfg.JWTSecret), nil)
		return []func(http.Handler) http.Handler{jwtauth.Verifier(tokenAuth), jwtauth.Authenticator}, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.AuthMode)
	}
}
