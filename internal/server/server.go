// Package server exposes the engine over HTTP and WebSocket.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sooncult/soon-coin/internal/server/handler"
	"github.com/sooncult/soon-coin/internal/server/middleware"
	"github.com/sooncult/soon-coin/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Ledger     *handler.LedgerHandler
	Rebalancer *handler.RebalancerHandler
	Claims     *handler.ClaimsHandler
	Admin      *handler.AdminHandler
}

// Server is the headless HTTP + WebSocket API for the tokenomics engine.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer registers all routes on a ServeMux, wires up middleware
// (logging, CORS, auth) and attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required beyond the shared middleware).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Ledger endpoints.
	mux.HandleFunc("GET /api/supply", handlers.Ledger.GetSupply)
	mux.HandleFunc("GET /api/balance/{address}", handlers.Ledger.GetBalance)
	mux.HandleFunc("GET /api/account/{address}", handlers.Ledger.GetAccount)
	mux.HandleFunc("POST /api/transfer", handlers.Ledger.Transfer)
	mux.HandleFunc("GET /api/transfers", handlers.Ledger.ListTransfers)

	// Rebalancer endpoints.
	mux.HandleFunc("GET /api/position", handlers.Rebalancer.GetPosition)
	mux.HandleFunc("POST /api/rebalance", handlers.Rebalancer.Rebalance)
	mux.HandleFunc("GET /api/rebalances", handlers.Rebalancer.ListRebalances)

	// Claims endpoints.
	if handlers.Claims != nil {
		mux.HandleFunc("GET /api/claims/root", handlers.Claims.GetRoot)
		mux.HandleFunc("POST /api/claims/claim", handlers.Claims.Claim)
		mux.HandleFunc("GET /api/claims/{index}", handlers.Claims.GetStatus)
	}

	// Admin endpoints.
	mux.HandleFunc("POST /api/admin/tax-config", handlers.Admin.UpdateTaxConfig)
	mux.HandleFunc("POST /api/admin/fee-exclusion", handlers.Admin.SetFeeExclusion)
	mux.HandleFunc("POST /api/admin/reward-exclusion", handlers.Admin.SetRewardExclusion)
	mux.HandleFunc("GET /api/admin/reward-exclusion", handlers.Admin.ListRewardExcluded)
	mux.HandleFunc("POST /api/admin/liquidity-recipient", handlers.Admin.SetLiquidityRecipient)
	mux.HandleFunc("POST /api/admin/position/init", handlers.Admin.InitializePosition)
	mux.HandleFunc("POST /api/admin/rebalancer/half-width", handlers.Admin.UpdateHalfWidth)
	mux.HandleFunc("POST /api/admin/rebalancer/twap-window", handlers.Admin.UpdateTwapWindow)
	mux.HandleFunc("POST /api/admin/rebalancer/lock", handlers.Admin.Lock)
	mux.HandleFunc("POST /api/admin/rebalancer/rescue-foreign", handlers.Admin.RescueForeignAsset)
	mux.HandleFunc("POST /api/admin/rebalancer/rescue-native", handlers.Admin.RescueNativeAsset)
	mux.HandleFunc("POST /api/admin/ownership/transfer", handlers.Admin.TransferOwnership)
	mux.HandleFunc("POST /api/admin/ownership/renounce", handlers.Admin.RenounceOwnership)
	mux.HandleFunc("POST /api/admin/snapshot", handlers.Admin.TakeSnapshot)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger)(h)
	h = corsMiddleware(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening. It blocks until the server errors or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// corsMiddleware sets CORS headers for the allowed origins; no configured
// origins allows all.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if origin != "" {
				allowed := len(allowedOrigins) == 0
				for _, o := range allowedOrigins {
					if strings.EqualFold(o, "*") || strings.EqualFold(o, origin) {
						allowed = true
						break
					}
				}

				if allowed {
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
					w.Header().Set("Access-Control-Max-Age", "86400")
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
