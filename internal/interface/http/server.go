// Package http exposes the admin and query API of Tournament Hub.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/tournament-hub/internal/application/command"
	"github.com/alem-hub/tournament-hub/internal/application/query"
	"github.com/alem-hub/tournament-hub/internal/interface/http/handlers"
	"github.com/alem-hub/tournament-hub/internal/metrics"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// AdminTokenHash protects write endpoints; empty disables auth.
	AdminTokenHash string

	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit float64
	RateBurst int

	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		MaxBodyBytes: 1 << 20,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains the application handlers served over HTTP.
// Nil handlers make their routes answer 501.
type Dependencies struct {
	ListTournaments *query.ListTournamentsHandler
	GetLeaderboard  *query.GetLeaderboardHandler
	GetStanding     *query.GetStandingHandler
	GetRunHistory   *query.GetRunHistoryHandler
	GetNeighbors    *query.GetNeighborsHandler
	GetOnlineNow    *query.GetOnlineNowHandler

	StartTournament *command.StartTournamentHandler
	StopTournament  *command.StopTournamentHandler
	JoinTournament  *command.JoinTournamentHandler
	SubmitScore     *command.SubmitScoreHandler
	UpdatePresence  *command.UpdatePresenceHandler

	Health handlers.HealthChecker

	// Metrics serves /metrics when set.
	Metrics http.Handler

	Logger *zap.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server is the admin HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	log        *zap.Logger
	router     *http.ServeMux
	limiter    *handlers.RateLimiter
	httpServer *http.Server

	mu      sync.Mutex
	running bool
}

// NewServer creates a server and registers all routes.
func NewServer(config Config, deps Dependencies) *Server {
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultConfig().MaxBodyBytes
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		config: config,
		deps:   deps,
		log:    log.Named("http"),
		router: http.NewServeMux(),
	}
	if config.RateLimit > 0 {
		s.limiter = handlers.NewRateLimiter(config.RateLimit, config.RateBurst)
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         config.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

// Handler returns the router wrapped with the middleware chain.
func (s *Server) Handler() http.Handler {
	chain := []handlers.MiddlewareFunc{
		handlers.Recovery(s.log),
		handlers.RequestID,
		handlers.AccessLog(s.log),
	}
	if s.limiter != nil {
		chain = append(chain, s.limiter.Middleware)
	}
	return handlers.Chain(chain...)(s.router)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) setupRoutes() {
	admin := handlers.BearerAuth(s.config.AdminTokenHash)

	// ─────────────────────────────────────────────────────────────────────────
	// Health & Metrics
	// ─────────────────────────────────────────────────────────────────────────
	s.route("GET /health", s.handleHealth)
	s.route("GET /live", s.handleLive)
	if s.deps.Metrics != nil {
		s.router.Handle("GET /metrics", s.deps.Metrics)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Queries
	// ─────────────────────────────────────────────────────────────────────────
	s.route("GET /api/v1/tournaments", s.handleListTournaments)
	s.route("GET /api/v1/tournaments/{id}/leaderboard", s.handleGetLeaderboard)
	s.route("GET /api/v1/tournaments/{id}/participants/{pid}", s.handleGetStanding)
	s.route("GET /api/v1/tournaments/{id}/participants/{pid}/neighbors", s.handleGetNeighbors)
	s.route("GET /api/v1/tournaments/{id}/history", s.handleGetRunHistory)
	s.route("GET /api/v1/online", s.handleGetOnlineNow)

	// ─────────────────────────────────────────────────────────────────────────
	// Commands
	// ─────────────────────────────────────────────────────────────────────────
	s.route("POST /api/v1/tournaments/{id}/start", s.handleStartTournament, admin)
	s.route("POST /api/v1/tournaments/{id}/stop", s.handleStopTournament, admin)
	s.route("POST /api/v1/tournaments/{id}/participants", s.handleJoinTournament, admin)
	s.route("POST /api/v1/tournaments/{id}/scores", s.handleSubmitScore, admin)
	s.route("PUT /api/v1/players/{pid}/presence", s.handleUpdatePresence, admin)
}

// route registers a handler and counts its responses by pattern and code.
func (s *Server) route(pattern string, h http.HandlerFunc, mw ...handlers.MiddlewareFunc) {
	inner := handlers.Chain(mw...)(h)
	s.router.Handle(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := handlers.NewStatusRecorder(w)
		inner.ServeHTTP(rec, r)
		metrics.HTTPRequestsTotal.WithLabelValues(pattern, strconv.Itoa(rec.Status())).Inc()
	}))
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.log.Info("starting HTTP server", zap.String("addr", s.config.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Run serves until ctx is cancelled, then shuts down within timeout.
func (s *Server) Run(ctx context.Context, timeout time.Duration) error {
	if s.limiter != nil {
		go s.limiter.Run(ctx, time.Minute)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true while the server is listening.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
