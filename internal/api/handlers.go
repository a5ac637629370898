package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/inbox-assistant/internal/config"
	"github.com/ignite/inbox-assistant/internal/store"
)

// Handlers contains the daemon's HTTP handlers. The API is read-only:
// it reports what the processor decided, it never triggers actions.
type Handlers struct {
	store   *store.Store
	cfg     *config.Config
	started time.Time
}

// NewHandlers creates a Handlers instance.
func NewHandlers(st *store.Store, cfg *config.Config) *Handlers {
	return &Handlers{store: st, cfg: cfg, started: time.Now()}
}

// HealthCheck reports daemon liveness and database reachability.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if _, err := h.store.LatestRun(r.Context()); err != nil {
		status = "degraded"
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.started).Round(time.Second).String(),
	})
}

// GetStatus returns the most recent run and the configured schedule.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	latest, err := h.store.LatestRun(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"latest_run": latest,
		"schedule":   h.cfg.Schedule.RunAt,
	})
}

// GetActivity returns recent activity log entries, newest first.
func (h *Handlers) GetActivity(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 500)
	entries, err := h.store.RecentActivity(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"activity": entries,
		"count":    len(entries),
	})
}

// GetDrafts returns reply drafts awaiting user review.
func (h *Handlers) GetDrafts(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, 50, 200)
	drafts, err := h.store.PendingDrafts(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"drafts": drafts,
		"count":  len(drafts),
	})
}

func queryLimit(r *http.Request, def, max int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
