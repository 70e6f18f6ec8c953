// Package http exposes the expense ledger and the monthly settlement as a
// JSON API mounted under /api.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"roomsplit/internal/core"
	"roomsplit/internal/log"
	"roomsplit/internal/metrics"
	"roomsplit/internal/middleware/ratelimit"
	"roomsplit/internal/middleware/security"
)

// ExpenseAPI is the write and list side used by the handlers.
type ExpenseAPI interface {
	Create(ctx context.Context, in core.ExpenseInput) (core.Expense, error)
	Delete(ctx context.Context, id string) (core.Expense, error)
	Reset(ctx context.Context) (int64, error)
	List(ctx context.Context) ([]core.Expense, error)
	Roster() core.Roster
}

// StatisticsAPI produces monthly settlement reports.
type StatisticsAPI interface {
	Current(ctx context.Context) (core.Statistics, error)
	Month(ctx context.Context, t time.Time) (core.Statistics, error)
}

// Config wires a Server. Expenses and Statistics are required.
type Config struct {
	Addr       string
	Expenses   ExpenseAPI
	Statistics StatisticsAPI
	// Ready backs /readyz; nil means always ready.
	Ready   func(ctx context.Context) error
	Metrics *metrics.Metrics
	Logger  *log.Logger

	// Location is used to read ?month=YYYY-MM.
	Location     *time.Location
	MaxBodyBytes int64
	RateLimit    ratelimit.Config
	CORSOrigins  []string
	IPResolver   *security.IPResolver
}

type Server struct {
	http.Server
	expenses   ExpenseAPI
	stats      StatisticsAPI
	ready      func(ctx context.Context) error
	metrics    *metrics.Metrics
	logger     *log.Logger
	loc        *time.Location
	maxBody    int64
	limiter    *ratelimit.Limiter
	resolver   *security.IPResolver
	corsOrigin []string

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(cfg Config) *Server {
	s := &Server{
		expenses:   cfg.Expenses,
		stats:      cfg.Statistics,
		ready:      cfg.Ready,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		loc:        cfg.Location,
		maxBody:    cfg.MaxBodyBytes,
		resolver:   cfg.IPResolver,
		corsOrigin: cfg.CORSOrigins,
	}
	if s.logger == nil {
		s.logger = log.New(log.DefaultConfig())
	}
	s.logger = s.logger.WithComponent(log.ComponentHTTP)
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.maxBody <= 0 {
		s.maxBody = 10 << 10
	}
	if s.resolver == nil {
		s.resolver, _ = security.NewIPResolver()
	}
	s.limiter = ratelimit.NewLimiter(cfg.RateLimit)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(log.Middleware(s.logger, requestID, s.resolver.ClientIP))
	r.Use(s.instrument)
	r.Use(middleware.Recoverer)
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	if len(s.corsOrigin) > 0 {
		r.Use(security.CORS(s.corsOrigin...))
	}

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.resolver.ClientIP, s.rateLimited))
		r.Use(s.limitBody)

		r.Get("/expenses", s.handleListExpenses)
		r.Post("/expenses", s.handleCreateExpense)
		r.Delete("/expenses/{id}", s.handleDeleteExpense)
		r.Get("/statistics", s.handleStatistics)
		r.Post("/reset", s.handleReset)
		r.Get("/roster", s.handleRoster)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})
	return r
}

// Shutdown stops background work and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// instrument records request metrics labelled by the matched route pattern,
// so IDs in paths do not explode label cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTP(route, r.Method, status, time.Since(start))
	})
}

func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		s.metrics.RateLimited.Inc()
	}
	log.FromContext(r.Context()).WithComponent(log.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.resolver.ClientIP(r),
		log.FieldPath, r.URL.Path)
	writeError(w, http.StatusTooManyRequests, "Too many requests, please try again later.")
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
