package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cipherbet/oracled/internal/domain"
	"github.com/cipherbet/oracled/internal/server/handler"
	"github.com/cipherbet/oracled/internal/server/middleware"
	"github.com/cipherbet/oracled/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	AdminKey      string // if empty, the admin key check is disabled
	SignatureSkew time.Duration

	// RateLimit bounds requests per client IP per RateWindow. Applied only
	// when a limiter is provided.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Day    *handler.DayHandler
	Prices *handler.PriceHandler
	Bets   *handler.BetHandler
	Claims *handler.ClaimHandler
	Points *handler.PointsHandler
	Inputs *handler.InputHandler
	Admin  *handler.AdminHandler

	// Archive and Events are optional; they are registered only when the
	// backing store (object storage, redis) is configured.
	Archive *handler.ArchiveHandler
	Events  *handler.EventsHandler
}

// Server is the HTTP + WebSocket API for the settlement ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// Routes that act on behalf of a caller are wrapped in the signature
// middleware; admin routes additionally require the admin API key. limiter
// may be nil, in which case no rate limiting is applied. A nil nonces falls
// back to a per-instance registry.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, nonces domain.NonceRegistry, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	if nonces == nil {
		nonces = middleware.NewMemoryNonces()
	}
	signed := middleware.Signature(cfg.SignatureSkew, nonces)
	admin := func(h http.HandlerFunc) http.Handler {
		return middleware.Auth(cfg.AdminKey)(signed(h))
	}

	// Public endpoints.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/day", handlers.Day.CurrentDay)
	mux.HandleFunc("GET /api/prices/{asset}/latest", handlers.Prices.GetLatest)
	mux.HandleFunc("GET /api/prices/{asset}/{day}", handlers.Prices.GetPrice)
	mux.HandleFunc("GET /api/bets/{asset}/{day}/claimable", handlers.Bets.IsClaimable)
	mux.HandleFunc("GET /api/points/{user}", handlers.Points.GetPoints)
	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/archive/{kind}/{day}", handlers.Archive.GetDay)
	}
	if handlers.Events != nil {
		mux.HandleFunc("GET /api/events", handlers.Events.ListEvents)
	}

	// Signed endpoints: the caller's address is recovered from X-Signature.
	mux.Handle("POST /api/prices", signed(http.HandlerFunc(handlers.Prices.PostPrice)))
	mux.Handle("POST /api/inputs", signed(http.HandlerFunc(handlers.Inputs.EncryptInput)))
	mux.Handle("POST /api/bets", signed(http.HandlerFunc(handlers.Bets.PlaceBet)))
	mux.Handle("GET /api/bets/{asset}/{day}", signed(http.HandlerFunc(handlers.Bets.GetBet)))
	mux.Handle("POST /api/claims", signed(http.HandlerFunc(handlers.Claims.Claim)))
	mux.Handle("GET /api/points/{user}/clear", signed(http.HandlerFunc(handlers.Points.GetClearPoints)))

	// Admin endpoints: admin key plus signed caller; the engine verifies the
	// caller against the stored owner.
	mux.Handle("GET /api/admin/state", admin(handlers.Admin.GetState))
	mux.Handle("POST /api/admin/oracle", admin(handlers.Admin.SetOracle))
	mux.Handle("POST /api/admin/ownership", admin(handlers.Admin.TransferOwnership))
	mux.Handle("POST /api/admin/withdraw", admin(handlers.Admin.Withdraw))

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

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

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
