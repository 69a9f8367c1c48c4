package routes

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starlay-finance/starlay-protocol-wasm-sub000/core/protocol"
	"github.com/starlay-finance/starlay-protocol-wasm-sub000/gateway/middleware"
)

// Rate-limit keys of the route groups.
const (
	RateLimitReads   = "reads"
	RateLimitActions = "actions"
	RateLimitFaucet  = "faucet"
)

// ScopeManager is the token scope required by price and clock routes.
const ScopeManager = "lending:manager"

type Config struct {
	Protocol *protocol.Protocol
	// Authenticator guards every mutating route. Use an AuthConfig with
	// AllowAnonymous set to run without tokens.
	Authenticator *middleware.Authenticator
	RateLimiter   *middleware.RateLimiter
	Observability *middleware.Observability
	Logger        *slog.Logger
}

func New(cfg Config) (http.Handler, error) {
	if cfg.Protocol == nil {
		return nil, fmt.Errorf("routes: protocol required")
	}
	if cfg.Authenticator == nil {
		return nil, fmt.Errorf("routes: authenticator required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	api := &lendingRoutes{protocol: cfg.Protocol, auth: cfg.Authenticator, logger: logger}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if cfg.Observability != nil {
		r.Handle("/metrics", cfg.Observability.MetricsHandler())
	}

	group := func(router chi.Router, key string) {
		if cfg.RateLimiter != nil {
			router.Use(cfg.RateLimiter.Middleware(key))
		}
		if cfg.Observability != nil {
			router.Use(cfg.Observability.Middleware(key))
		}
	}
	r.Route("/v1", func(v1 chi.Router) {
		v1.Group(func(g chi.Router) {
			group(g, RateLimitReads)
			api.mountReads(g)
		})
		v1.Group(func(g chi.Router) {
			group(g, RateLimitActions)
			g.With(cfg.Authenticator.Middleware()).Group(api.mountActions)
			g.With(cfg.Authenticator.Middleware(ScopeManager)).Group(api.mountAdmin)
		})
		v1.Group(func(g chi.Router) {
			group(g, RateLimitFaucet)
			g.Use(cfg.Authenticator.Middleware())
			g.Post("/faucet", api.faucet)
		})
	})
	return r, nil
}
