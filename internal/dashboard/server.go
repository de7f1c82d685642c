// Package dashboard exposes a minimal read-only JSON status surface over
// the engine's state: health (reconciliation), a full snapshot, and recent
// transactions. It is not an RPC or order-placement gateway — every mutating
// operation happens through the engines directly, never through HTTP.
package dashboard

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/eddiefleurent/tradecore/internal/ledger"
	"github.com/eddiefleurent/tradecore/internal/optionschain"
	"github.com/eddiefleurent/tradecore/internal/quoteprovider"
	"github.com/eddiefleurent/tradecore/internal/reconcile"
	"github.com/eddiefleurent/tradecore/internal/snapshot"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"
)

// Config tunes the HTTP surface.
type Config struct {
	Port      int
	AuthToken string // empty disables auth (local/dev use only)
}

// Server is the dashboard's HTTP surface.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	snapshots *snapshot.Aggregator
	auditor   *reconcile.Auditor
	ledger    *ledger.Ledger
	quotes    quoteprovider.QuoteProvider
	logger    *logrus.Logger
	port      int
	authToken string
}

// NewServer wires the dashboard's dependencies and routes. quotes backs the
// read-only options chain lookup and may be nil if that route is unused.
func NewServer(cfg Config, snapshots *snapshot.Aggregator, auditor *reconcile.Auditor, l *ledger.Ledger, quotes quoteprovider.QuoteProvider, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router:    chi.NewRouter(),
		snapshots: snapshots,
		auditor:   auditor,
		ledger:    l,
		quotes:    quotes,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.requestLoggerMiddleware)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(15 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))

	s.router.Get("/health", s.handleHealth) // always public

	s.router.Group(func(r chi.Router) {
		if s.authToken != "" {
			r.Use(s.authMiddleware)
		}
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/transactions", s.handleTransactions)
		r.Get("/chain", s.handleChain)
	})
}

func (s *Server) requestLoggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)
		s.logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   wrapped.Status(),
			"bytes":    wrapped.BytesWritten(),
			"duration": time.Since(start),
		}).Info("dashboard request")
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if !s.isValidToken(token) {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) isValidToken(token string) bool {
	if len(token) != len(s.authToken) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	result := s.auditor.Run()
	w.Header().Set("Content-Type", "application/json")
	if !result.Consistent {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(result); err != nil {
		s.logger.WithError(err).Error("encoding health response")
	}
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshots.Build(r.Context())
	s.writeJSON(w, snap)
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	ticker := r.URL.Query().Get("ticker")
	s.writeJSON(w, s.ledger.Transactions(ticker, limit))
}

func (s *Server) handleChain(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		http.Error(w, "ticker is required", http.StatusBadRequest)
		return
	}
	if s.quotes == nil {
		http.Error(w, "options chain unavailable", http.StatusServiceUnavailable)
		return
	}
	quote, err := s.quotes.FetchQuote(r.Context(), ticker)
	if err != nil {
		s.logger.WithError(err).WithField("ticker", ticker).Warn("chain quote fetch failed")
		http.Error(w, "failed to fetch underlying price", http.StatusBadGateway)
		return
	}
	s.writeJSON(w, optionschain.Build(ticker, quote.Price, time.Now()))
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("encoding dashboard response")
	}
}

// Start blocks serving HTTP until the server is shut down.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.logger.Infof("dashboard listening on :%d", s.port)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server, nil-safe before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
