// Package server provides the HTTP server and routing for the paper-trading API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/papertrade/papertrade/internal/auth"
	"github.com/papertrade/papertrade/internal/database"
	portfoliohandlers "github.com/papertrade/papertrade/internal/modules/portfolio/handlers"
	quoteshandlers "github.com/papertrade/papertrade/internal/modules/quotes/handlers"
	tradinghandlers "github.com/papertrade/papertrade/internal/modules/trading/handlers"
)

// Config holds server configuration
type Config struct {
	Log               zerolog.Logger
	LedgerDB          *database.DB
	Port              int
	DevMode           bool
	UserResolver      auth.UserResolver
	PortfolioHandlers *portfoliohandlers.Handler
	TradingHandlers   *tradinghandlers.Handler
	QuoteHandlers     *quoteshandlers.Handler
}

// Server represents the HTTP server
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	db     *database.DB
	system *SystemHandlers
}

// New creates a new HTTP server with all routes registered
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		db:     cfg.LedgerDB,
		system: NewSystemHandlers(cfg.Log),
	}

	// Middleware stack
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Route("/api", func(r chi.Router) {
		// Public market data and operational endpoints
		cfg.QuoteHandlers.RegisterRoutes(r)
		r.Get("/health", s.handleHealth)
		r.Get("/system/status", s.system.HandleStatus)

		// Owned resources require identity
		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware(cfg.UserResolver))
			cfg.PortfolioHandlers.RegisterRoutes(r)
			cfg.TradingHandlers.RegisterRoutes(r)
		})
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Router exposes the chi mux (used by httptest in handler tests)
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins listening; blocks until the server stops
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request with method, path, status and timing
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

// handleHealth reports service liveness including a database ping
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	httpStatus := http.StatusOK
	if err := s.db.QuickCheck(ctx); err != nil {
		s.log.Error().Err(err).Msg("Health check database ping failed")
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_, _ = fmt.Fprintf(w, `{"status":%q,"time":%q}`, status, time.Now().UTC().Format(time.RFC3339))
}
