// Package api exposes the star ledger over HTTP/JSON.
//
// Routes live under /v1. Identity is taken from the request body
// (creator_id, reviewer_id); authentication belongs to whatever sits in
// front of this handler.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xraph/starledger"
)

// Server is the HTTP surface of a Ledger.
type Server struct {
	ledger   *starledger.Ledger
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	metrics  bool
	timeout  time.Duration
	basePath string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics mounts /metrics. A nil gatherer serves the default registry.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = true
		s.gatherer = g
	}
}

// WithTimeout bounds each request. Default 30s.
func WithTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithBasePath mounts every route under prefix.
func WithBasePath(prefix string) Option {
	return func(s *Server) { s.basePath = prefix }
}

// NewServer creates a Server for l.
func NewServer(l *starledger.Ledger, opts ...Option) *Server {
	s := &Server{
		ledger:  l,
		logger:  l.Logger(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))

	if s.basePath != "" && s.basePath != "/" {
		r.Route(s.basePath, s.mount)
		return r
	}
	s.mount(r)
	return r
}

func (s *Server) mount(r chi.Router) {
	r.Get("/healthz", s.handleHealth)

	if s.metrics {
		if s.gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
		} else {
			r.Handle("/metrics", promhttp.Handler())
		}
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/families", s.handleCreateFamily)
		r.Route("/families/{familyID}", func(r chi.Router) {
			r.Get("/", s.handleGetFamily)
			r.Post("/members", s.handleAddMember)
			r.Get("/members", s.handleListMembers)
			r.Post("/quests", s.handleCreateQuest)
			r.Get("/quests", s.handleListQuests)
			r.Post("/rewards", s.handleCreateReward)
			r.Get("/rewards", s.handleListRewards)
			r.Put("/interest-tiers", s.handleSetInterestTiers)
			r.Get("/interest-tiers", s.handleListInterestTiers)
			r.Post("/settlements", s.handleRunFamilySettlement)
		})

		r.Get("/members/{memberID}", s.handleGetMember)
		r.Get("/quests/{questID}", s.handleGetQuest)
		r.Get("/rewards/{rewardID}", s.handleGetReward)

		r.Route("/children/{childID}", func(r chi.Router) {
			r.Get("/balance", s.handleGetBalance)
			r.Post("/balance/reconcile", s.handleReconcileBalance)
			r.Put("/credit", s.handleConfigureCredit)
			r.Get("/credit", s.handleGetCreditSettings)
			r.Get("/credit/transactions", s.handleListCreditTransactions)
			r.Post("/settlements", s.handleRunSettlement)
			r.Get("/settlements", s.handleListSettlements)
		})
		r.Get("/settlements/{settlementID}", s.handleGetSettlement)

		r.Post("/star-transactions/requests", s.handleCreateChildRequest)
		r.Post("/star-transactions", s.handleCreateParentRecord)
		r.Get("/star-transactions", s.handleListStarTransactions)

		r.Post("/redemptions/requests", s.handleCreateRedemptionRequest)
		r.Post("/redemptions", s.handleCreateParentRedemption)
		r.Get("/redemptions", s.handleListRedemptions)
		r.Post("/redemptions/{entryID}/fulfill", s.handleFulfillRedemption)

		r.Post("/entries/batch/approve", s.handleBatchApprove)
		r.Post("/entries/batch/reject", s.handleBatchReject)
		r.Post("/entries/{entryID}/approve", s.handleApprove)
		r.Post("/entries/{entryID}/reject", s.handleReject)
		r.Post("/entries/{entryID}/status", s.handleSetStatus)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// logRequests logs one line per request once the response is written.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := slog.LevelDebug
		if ww.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
