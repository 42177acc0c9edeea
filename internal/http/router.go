package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/devicekeep/server/internal/http/handlers"
	"github.com/devicekeep/server/internal/middleware"
)

// RouterConfig tunes the public auth endpoints
type RouterConfig struct {
	// per client IP, shared by register and login
	AuthRateLimit  int
	AuthRateWindow time.Duration
}

// DefaultRouterConfig allows 20 register/login calls per IP every 10 minutes
var DefaultRouterConfig = RouterConfig{
	AuthRateLimit:  20,
	AuthRateWindow: 10 * time.Minute,
}

// Router is the HTTP entry point. Close releases the rate limiter.
type Router struct {
	*chi.Mux
	limiter *middleware.RateLimiter
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(
	authHandler *handlers.AuthHandler,
	healthHandler http.Handler,
	verifier middleware.TokenVerifier,
	cfg RouterConfig,
) *Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	limiter := middleware.NewRateLimiter(cfg.AuthRateWindow, cfg.AuthRateLimit)

	r.Method(http.MethodGet, "/health", healthHandler)

	r.Route("/auth", func(r chi.Router) {
		r.Use(middleware.DeviceIDMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitMiddleware(limiter, middleware.GetIPKey))
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
		})

		r.With(middleware.RefreshTokenMiddleware(verifier)).Post("/refresh", authHandler.HandleRefresh)
		r.With(middleware.AccessTokenMiddleware(verifier)).Post("/logout", authHandler.HandleLogout)
	})

	// Protected routes (require valid access token)
	r.Group(func(r chi.Router) {
		r.Use(middleware.AccessTokenMiddleware(verifier))
		r.Get("/me", authHandler.HandleMe)
	})

	return &Router{Mux: r, limiter: limiter}
}

// Close stops background work owned by the router
func (r *Router) Close() {
	r.limiter.Close()
}
