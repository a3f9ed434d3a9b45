// Package server provides the HTTP server and routing for investsim.
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

	historicalhandlers "github.com/aristath/investsim/internal/modules/historical/handlers"
	"github.com/aristath/investsim/internal/modules/report"
	"github.com/aristath/investsim/internal/simulator"
)

// SimulationRunner runs one script.
type SimulationRunner interface {
	Run(ctx context.Context, script *simulator.Script) (*simulator.Result, error)
}

// ReportReader reads stored reports.
type ReportReader interface {
	List() ([]string, error)
	Load(name string) (*report.Report, error)
}

// JobRunner exposes scheduled jobs for manual triggering.
type JobRunner interface {
	JobNames() []string
	RunNow(name string) error
}

// HealthChecker is implemented by the cache database.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RequestBudget reports the remaining upstream API requests for the day.
type RequestBudget interface {
	GetRemainingRequests() int
}

// Config holds server configuration. Optional dependencies may be nil, which
// disables the routes or status fields that use them.
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	DataDir   string
	Simulator SimulationRunner
	Reports   ReportReader
	Market    historicalhandlers.Source
	Jobs      JobRunner
	CacheDB   HealthChecker
	Budget    RequestBudget
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	port      int
	dataDir   string
	startedAt time.Time

	simulator SimulationRunner
	reports   ReportReader
	market    historicalhandlers.Source
	jobs      JobRunner
	cacheDB   HealthChecker
	budget    RequestBudget
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		port:      cfg.Port,
		dataDir:   cfg.DataDir,
		startedAt: time.Now(),
		simulator: cfg.Simulator,
		reports:   cfg.Reports,
		market:    cfg.Market,
		jobs:      cfg.Jobs,
		cacheDB:   cfg.CacheDB,
		budget:    cfg.Budget,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	// simulations are solved synchronously, so writes get more room than reads
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(90 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/simulations", func(r chi.Router) {
			r.Get("/kinds", s.handleListKinds)
			if s.simulator != nil {
				r.Post("/", s.handleRunSimulation)
			}
		})

		if s.reports != nil {
			r.Route("/reports", func(r chi.Router) {
				r.Get("/", s.handleListReports)
				r.Get("/{name}", s.handleGetReport)
			})
		}

		if s.market != nil {
			historicalhandlers.NewHandler(s.market, s.log).RegisterRoutes(r)
		}

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleSystemStatus)
			r.Get("/disk", s.handleDiskUsage)
			if s.jobs != nil {
				r.Get("/jobs", s.handleListJobs)
				r.Post("/jobs/{name}", s.handleTriggerJob)
			}
		})
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
