// Package api exposes the HTTP interface for the analysis service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/seolens/ai-visibility/internal/analysis"
	"github.com/seolens/ai-visibility/internal/config"
	"github.com/seolens/ai-visibility/internal/metrics"
	"github.com/seolens/ai-visibility/internal/progress"
)

const (
	defaultJobLimit = 50
	maxJobLimit     = 500
	maxDepth        = 3
)

// Enqueuer pushes accepted job IDs onto the task queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID string) error
}

// Server wires HTTP handlers to the queue, the job store, and the progress
// publisher.
type Server struct {
	router    chi.Router
	jobStore  analysis.JobStore
	enqueuer  Enqueuer
	publisher *progress.Publisher
	idGen     analysis.IDGenerator
	clock     analysis.Clock
	metrics   *metrics.Metrics
	logger    *zap.Logger
	cfg       config.Config
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore analysis.JobStore,
	enqueuer Enqueuer,
	publisher *progress.Publisher,
	idGen analysis.IDGenerator,
	clock analysis.Clock,
	m *metrics.Metrics,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore:  jobStore,
		enqueuer:  enqueuer,
		publisher: publisher,
		idGen:     idGen,
		clock:     clock,
		metrics:   m,
		logger:    logger,
		cfg:       cfg,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}

	// The events stream outlives any sane request timeout, so the timeout
	// wraps every handler except it.
	timed := timeoutWrapper(s.cfg.ServerTimeout())
	r.Route("/v1", func(r chi.Router) {
		r.Route("/analyses", func(r chi.Router) {
			r.Method(http.MethodPost, "/", timed(s.submitAnalysis))
			r.Method(http.MethodGet, "/", timed(s.listAnalyses))
			r.Route("/{job_id}", func(r chi.Router) {
				r.Method(http.MethodGet, "/", timed(s.getAnalysis))
				r.Method(http.MethodGet, "/preview", timed(s.previewAnalysis))
				r.Method(http.MethodPost, "/cancel", timed(s.cancelAnalysis))
				r.Get("/events", s.streamEvents)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	// The job store is the only hard dependency at request time.
	if _, err := s.jobStore.ListJobs(r.Context(), nil, 1, 0); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "job store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type submitRequest struct {
	URL   string `json:"url"`
	Depth *int   `json:"depth"`
}

func (s *Server) submitAnalysis(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	depth := 1
	if req.Depth != nil {
		depth = *req.Depth
	}
	if depth < 1 || depth > maxDepth {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("depth must be between 1 and %d", maxDepth))
		return
	}

	jobID, err := s.idGen.NewID()
	if err != nil {
		s.logger.Error("generate job id failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to create analysis")
		return
	}
	job := analysis.Job{
		ID:        jobID,
		URL:       strings.TrimSpace(req.URL),
		Depth:     depth,
		Tier:      s.resolveTier(r),
		Status:    analysis.JobStatusQueued,
		Submitted: s.clock.Now(),
	}
	if err := s.jobStore.CreateJob(r.Context(), job); err != nil {
		s.logger.Error("create job failed", zap.String("job_id", jobID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to create analysis")
		return
	}

	queueCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.enqueuer.Enqueue(queueCtx, jobID); err != nil {
		s.logger.Error("enqueue job failed", zap.String("job_id", jobID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to enqueue analysis")
		return
	}
	if s.metrics != nil {
		s.metrics.JobsSubmitted.Inc()
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": string(job.Status)})
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, progress.FromJob(job, s.resolveTier(r)))
}

// previewAnalysis is the stateless point-in-time read. The free tier sees at
// most the first three results, the true issue count, and the full score.
func (s *Server) previewAnalysis(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	tier := s.resolveTier(r)
	snap := progress.FromJob(job, tier)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"id":                 snap.JobID,
		"status":             snap.Status,
		"progress":           snap.Progress,
		"overall_score":      snap.OverallScore,
		"results":            snap.Results,
		"total_checks_run":   snap.TotalChecks,
		"total_issues_found": snap.TotalIssues,
		"results_truncated":  len(snap.Results) < job.TotalChecks,
	})
}

func (s *Server) cancelAnalysis(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	err := s.jobStore.MarkCanceled(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "analysis not found")
			return
		}
		s.logger.Error("cancel job failed", zap.String("job_id", jobID), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to cancel analysis")
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "canceled": "true"})
}

func (s *Server) listAnalyses(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultJobLimit, maxJobLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *analysis.JobStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, parseErr := parseStatus(raw)
		if parseErr != nil {
			s.writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &parsed
	}
	jobs, err := s.jobStore.ListJobs(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("list jobs failed", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	tier := s.resolveTier(r)
	snaps := make([]progress.Snapshot, 0, len(jobs))
	for _, job := range jobs {
		snaps = append(snaps, progress.FromJob(job, tier))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"analyses": snaps})
}

func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (analysis.Job, bool) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "analysis not found")
		} else {
			s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to load analysis")
		}
		return analysis.Job{}, false
	}
	return job, true
}

// resolveTier decides the caller's entitlement. A valid API key means paid;
// so does an upstream gateway asserting the tier header. Everyone else is
// free.
func (s *Server) resolveTier(r *http.Request) analysis.Tier {
	if s.cfg.Auth.Enabled {
		key := r.Header.Get("X-API-Key")
		if key != "" && key == s.cfg.Auth.APIKey {
			return analysis.TierPaid
		}
	}
	if strings.EqualFold(r.Header.Get("X-Api-Tier"), string(analysis.TierPaid)) {
		return analysis.TierPaid
	}
	return analysis.TierFree
}

func parseStatus(input string) (analysis.JobStatus, error) {
	switch strings.ToLower(input) {
	case "queued":
		return analysis.JobStatusQueued, nil
	case "running":
		return analysis.JobStatusRunning, nil
	case "complete":
		return analysis.JobStatusComplete, nil
	case "failed":
		return analysis.JobStatusFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", elapsed.Milliseconds()),
		)
		if s.metrics != nil {
			s.metrics.ObserveHTTPRequest(r.Method, routePattern(r), ww.status, elapsed)
		}
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutWrapper(d time.Duration) func(http.HandlerFunc) http.Handler {
	return func(next http.HandlerFunc) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

type requestIDKey struct{}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Flush() {
	if f, ok := sw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
