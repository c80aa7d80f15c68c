package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/seolens/ai-visibility/internal/analysis"
	"github.com/seolens/ai-visibility/internal/progress"
)

const keepAliveInterval = 15 * time.Second

// streamEvents is the server-sent events endpoint. Each event carries a full
// snapshot of the job, gated by the caller's tier. The stream ends when the
// job reaches a terminal status or the client disconnects.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	jobID := chi.URLParam(r, "job_id")
	tier := s.resolveTier(r)

	// Subscribe before the initial read so no update can slip between them.
	updates, cancel := s.publisher.Subscribe(jobID, tier)
	defer cancel()

	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, analysis.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "analysis not found")
		} else {
			s.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to load analysis")
		}
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	initial := progress.FromJob(job, tier)
	if !s.sendEvent(w, flusher, initial) {
		return
	}
	if job.Status.IsTerminal() {
		return
	}
	lastProgress := initial.Progress

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepAlive.C:
			if _, err := w.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case snap, open := <-updates:
			if !open {
				return
			}
			// The subscription predates the initial store read, so a snapshot
			// published in between can be older than what was already sent.
			if !snap.IsTerminal() {
				if snap.Progress < lastProgress {
					continue
				}
				lastProgress = snap.Progress
			}
			if !s.sendEvent(w, flusher, snap) {
				return
			}
			if snap.IsTerminal() {
				return
			}
		}
	}
}

func (s *Server) sendEvent(w http.ResponseWriter, flusher http.Flusher, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal event failed", zap.Error(err))
		return false
	}
	if _, err := w.Write([]byte("data: ")); err != nil {
		return false
	}
	if _, err := w.Write(data); err != nil {
		return false
	}
	if _, err := w.Write([]byte("\n\n")); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
