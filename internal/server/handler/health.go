package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// FeedStatus is the slice of the market feed the health endpoint reads.
type FeedStatus interface {
	// Counts returns the per-venue size of the last retained batch.
	Counts() map[string]int
	// Cycles returns how many non-empty batches each venue has produced.
	Cycles() map[string]int64
}

// HealthHandler serves the health-check endpoint with per-venue feed counts.
type HealthHandler struct {
	feed   FeedStatus
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. The feed may be nil when the
// process runs without the market-feed stage; such processes are ready as
// soon as they serve.
func NewHealthHandler(f FeedStatus, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{feed: f, logger: logger}
}

// HealthCheck responds with liveness plus the size of the last retained
// funding batch per venue. Until the feed completes its first poll cycle the
// endpoint reports 503 so load balancers hold traffic back.
// GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if h.feed != nil {
		ready := false
		for _, n := range h.feed.Cycles() {
			if n > 0 {
				ready = true
				break
			}
		}
		if !ready {
			writeError(w, http.StatusServiceUnavailable, "feed not ready")
			return
		}
		for venue, count := range h.feed.Counts() {
			body[venue] = count
		}
	}
	writeJSON(w, http.StatusOK, body)
}
