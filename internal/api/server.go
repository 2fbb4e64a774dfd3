// Package api exposes the query service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"accumulation-lab/internal/domain"
	"accumulation-lab/internal/observability"
	"accumulation-lab/internal/query"
	"accumulation-lab/internal/scheduler"
	"accumulation-lab/internal/snapshot"
	"accumulation-lab/internal/storage"
)

// Limits for list endpoints.
const (
	defaultFeatureLimit = 100
	maxFeatureLimit     = 10000
	defaultRunLimit     = 20
	maxRunLimit         = 1000
)

// Querier answers read-only queries.
type Querier interface {
	Candidates(ctx context.Context, asOf time.Time) ([]domain.BreakoutCandidate, error)
	LatestScore(ctx context.Context, instrumentID int64) (*query.ScoreView, error)
	RollingFeatures(ctx context.Context, instrumentID int64, limit int) ([]query.FeatureRow, error)
	SetupPoints(ctx context.Context) ([]query.SetupPoint, error)
	SetupProfile(ctx context.Context) ([]query.SetupProfile, error)
	Runs(ctx context.Context, limit int) ([]*domain.RunLogEntry, error)
}

// Runner triggers materializer runs and reports scheduler state.
type Runner interface {
	RunNow(ctx context.Context) (*snapshot.RunResult, error)
	Status() scheduler.Status
}

// Options for creating Server.
type Options struct {
	Querier  Querier
	Runner   Runner         // optional; POST /api/v1/runs answers 503 without it
	Location *time.Location // market timezone for the default as-of date
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Server provides the HTTP API.
type Server struct {
	router  *mux.Router
	querier Querier
	runner  Runner
	loc     *time.Location
	now     func() time.Time
	logger  *zap.Logger
}

// NewServer creates the API server and registers its routes.
func NewServer(opts Options) *Server {
	s := &Server{
		querier: opts.Querier,
		runner:  opts.Runner,
		loc:     opts.Location,
		now:     opts.Clock,
		logger:  opts.Logger,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	router := mux.NewRouter()
	router.Use(s.metricsMiddleware)
	router.HandleFunc("/health", s.health).Methods("GET")

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/candidates", s.candidates).Methods("GET")
	v1.HandleFunc("/instruments/{id:[0-9]+}/score", s.latestScore).Methods("GET")
	v1.HandleFunc("/instruments/{id:[0-9]+}/features", s.rollingFeatures).Methods("GET")
	v1.HandleFunc("/setups", s.setupPoints).Methods("GET")
	v1.HandleFunc("/setups/latest", s.setupProfile).Methods("GET")
	v1.HandleFunc("/runs", s.runs).Methods("GET")
	v1.HandleFunc("/runs", s.triggerRun).Methods("POST")

	s.router = router
	return s
}

// Handler returns the router wrapped with CORS handling.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
	return c.Handler(s.router)
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		observability.RecordHTTPRequest(route, rec.status, time.Since(start))
	})
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status    string            `json:"status"`
	Time      time.Time         `json:"time"`
	Scheduler *scheduler.Status `json:"scheduler,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Time: s.now().UTC()}
	if s.runner != nil {
		st := s.runner.Status()
		resp.Scheduler = &st
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) candidates(w http.ResponseWriter, r *http.Request) {
	asOf := s.now().In(s.loc)
	if v := r.URL.Query().Get("as_of"); v != "" {
		d, err := time.ParseInLocation(domain.DateLayout, v, s.loc)
		if err != nil {
			writeError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD")
			return
		}
		asOf = d
	}

	list, err := s.querier.Candidates(r.Context(), asOf)
	if err != nil {
		s.internalError(w, "candidates", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) latestScore(w http.ResponseWriter, r *http.Request) {
	id, ok := instrumentID(w, r)
	if !ok {
		return
	}

	view, err := s.querier.LatestScore(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no snapshot for instrument")
		return
	}
	if err != nil {
		s.internalError(w, "latest score", err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) rollingFeatures(w http.ResponseWriter, r *http.Request) {
	id, ok := instrumentID(w, r)
	if !ok {
		return
	}
	limit, ok := limitParam(w, r, defaultFeatureLimit, maxFeatureLimit)
	if !ok {
		return
	}

	rows, err := s.querier.RollingFeatures(r.Context(), id, limit)
	if err != nil {
		s.internalError(w, "rolling features", err)
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, "no candles for instrument")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) setupPoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.querier.SetupPoints(r.Context())
	if err != nil {
		s.internalError(w, "setup points", err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) setupProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.querier.SetupProfile(r.Context())
	if err != nil {
		s.internalError(w, "setup profile", err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

func (s *Server) runs(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(w, r, defaultRunLimit, maxRunLimit)
	if !ok {
		return
	}

	entries, err := s.querier.Runs(r.Context(), limit)
	if err != nil {
		s.internalError(w, "runs", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) triggerRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "materializer not configured")
		return
	}

	// The run outlives a disconnected client.
	result, err := s.runner.RunNow(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, scheduler.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		s.logger.Error("triggered run failed", zap.Error(err))
		if result != nil {
			writeJSON(w, http.StatusInternalServerError, result)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) internalError(w http.ResponseWriter, what string, err error) {
	s.logger.Error("query failed", zap.String("query", what), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func instrumentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid instrument id")
		return 0, false
	}
	return id, true
}

func limitParam(w http.ResponseWriter, r *http.Request, def, max int) (int, bool) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 || n > max {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(max))
		return 0, false
	}
	return n, true
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
