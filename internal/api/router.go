// Package api assembles the framing layer: the HTTP request API for the
// Sync Engine's eight operations plus the /time probe, and the Delivery
// Plane's push channel. Grounded on the teacher's internal/api/router.go
// middleware-stack structure (gorilla/mux, ordered global middleware,
// route-local auth/rate-limit/validation), stripped of the Alert History
// Publishing API surface it originally routed.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/vitaliisemenov/turnsync/internal/api/handlers"
	"github.com/vitaliisemenov/turnsync/internal/api/middleware"
	"github.com/vitaliisemenov/turnsync/internal/delivery"
	sharedmiddleware "github.com/vitaliisemenov/turnsync/internal/middleware"
)

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Middleware configuration
	EnableRateLimit   bool
	EnableCompression bool
	EnableCORS        bool
	EnableMetrics     bool

	// Rate limit configuration (requests per minute, burst) applied to the
	// general request API; the switchCycle hot path gets its own tighter
	// limiter per §6's rate_limit_switch_per_second.
	RateLimitPerMinute int
	RateLimitBurst     int
	SwitchRateLimit    int // requests per minute on the switchCycle route

	// CORS configuration
	CORSConfig middleware.CORSConfig

	// Logger
	Logger *slog.Logger

	// Session is the Sync Engine's HTTP handler set.
	Session *handlers.SessionHandlers

	// Delivery is the Delivery Plane, serving the push channel.
	Delivery *delivery.Plane
}

// DefaultRouterConfig returns the default router configuration matching
// §6's rate_limit_general_per_minute and rate_limit_switch_per_second
// defaults (a per-minute limiter approximates the per-second switch budget
// at 10/s * 60).
func DefaultRouterConfig(logger *slog.Logger) RouterConfig {
	return RouterConfig{
		EnableRateLimit:    true,
		EnableCompression:  true,
		EnableCORS:         true,
		EnableMetrics:      true,
		RateLimitPerMinute: 100,
		RateLimitBurst:     20,
		SwitchRateLimit:    600,
		CORSConfig:         middleware.DefaultCORSConfig(),
		Logger:             logger,
	}
}

// NewRouter creates the API router with all middleware configured.
//
// The middleware stack is applied in order:
//  1. SecurityHeaders (always)
//  2. RequestID (always)
//  3. Logging (always)
//  4. Metrics (if enabled)
//  5. CORS (if enabled)
//  6. Compression (if enabled)
//  7. Route-specific: Validation and RateLimit
func NewRouter(config RouterConfig) *mux.Router {
	router := mux.NewRouter()

	securityHeaders := sharedmiddleware.NewSecurityHeadersMiddleware(nil)
	router.Use(securityHeaders.Handler)
	router.Use(middleware.RequestIDMiddleware)
	router.Use(middleware.LoggingMiddleware(config.Logger))

	if config.EnableMetrics {
		router.Use(middleware.MetricsMiddleware)
	}
	if config.EnableCORS {
		router.Use(middleware.CORSMiddleware(config.CORSConfig))
	}
	if config.EnableCompression {
		router.Use(middleware.CompressionMiddleware)
	}

	setupSessionRoutes(router, config)
	setupPushChannelRoutes(router, config)

	router.HandleFunc("/time", config.Session.Time).Methods(http.MethodGet)
	router.HandleFunc("/healthz", HealthCheckHandler(config.Logger)).Methods(http.MethodGet)
	router.PathPrefix("/docs").Handler(httpSwagger.WrapHandler)

	return router
}

// setupSessionRoutes wires the Sync Engine's eight operations under
// /api/v1/sessions (§6).
func setupSessionRoutes(router *mux.Router, config RouterConfig) {
	sessions := router.PathPrefix("/api/v1/sessions").Subrouter()
	sessions.Use(middleware.ValidationMiddleware)
	if config.EnableRateLimit {
		sessions.Use(middleware.RateLimitMiddleware(config.RateLimitPerMinute, config.RateLimitBurst))
	}

	sessions.HandleFunc("", config.Session.Create).Methods(http.MethodPost)
	sessions.HandleFunc("/{sessionID}", config.Session.Get).Methods(http.MethodGet)
	sessions.HandleFunc("/{sessionID}", config.Session.Delete).Methods(http.MethodDelete)
	sessions.HandleFunc("/{sessionID}/start", config.Session.Start).Methods(http.MethodPost)
	sessions.HandleFunc("/{sessionID}/pause", config.Session.Pause).Methods(http.MethodPost)
	sessions.HandleFunc("/{sessionID}/resume", config.Session.Resume).Methods(http.MethodPost)
	sessions.HandleFunc("/{sessionID}/complete", config.Session.Complete).Methods(http.MethodPost)

	// switchCycle is the hot path: its own tighter limiter per §6's
	// rate_limit_switch_per_second, layered on top of the subrouter's
	// general limit.
	switchRoute := sessions.PathPrefix("/{sessionID}/switch").Subrouter()
	if config.EnableRateLimit {
		switchRoute.Use(middleware.RateLimitMiddleware(config.SwitchRateLimit, config.SwitchRateLimit/10+1))
	}
	switchRoute.HandleFunc("", config.Session.SwitchCycle).Methods(http.MethodPost)
}

// setupPushChannelRoutes wires the Delivery Plane's duplex stream (§4.5,
// §6): GET /ws?session_id=... upgrades to the push channel.
func setupPushChannelRoutes(router *mux.Router, config RouterConfig) {
	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		sessionID := r.URL.Query().Get("session_id")
		if sessionID == "" {
			http.Error(w, "missing session_id query parameter", http.StatusBadRequest)
			return
		}
		config.Delivery.ServeSession(r.Context(), w, r, sessionID)
	}).Methods(http.MethodGet)
}

// HealthCheckHandler returns a liveness probe. Readiness (store/bus
// connectivity) is left to the deployment profile's own orchestration
// health checks; this endpoint only confirms the process is serving.
func HealthCheckHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"status":"healthy"}`)); err != nil {
			logger.Error("failed to write health response", "error", err)
		}
	}
}
