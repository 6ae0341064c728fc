package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/py361828925-design/arb-bot/internal/domain"
	"github.com/py361828925-design/arb-bot/internal/stats"
)

// eventView is the JSON shape of one position event.
type eventView struct {
	ID          int64          `json:"id"`
	GroupID     string         `json:"group_id"`
	Symbol      string         `json:"symbol"`
	EventType   string         `json:"event_type"`
	LogicReason *string        `json:"logic_reason"`
	RealizedPnL *float64       `json:"realized_pnl"`
	CreatedAt   time.Time      `json:"created_at"`
	Data        map[string]any `json:"data"`
}

// StatsHandler serves the statistics, event, and open-position endpoints.
type StatsHandler struct {
	service *stats.Service
	logger  *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(service *stats.Service, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{service: service, logger: logHandler(logger, "stats")}
}

// GetDynamic returns the live aggregate.
// GET /stats/dynamic
func (h *StatsHandler) GetDynamic(w http.ResponseWriter, r *http.Request) {
	dynamic, err := h.service.GetDynamic(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "dynamic stats failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "compute statistics failed")
		return
	}
	writeJSON(w, http.StatusOK, dynamic)
}

// GetStatic returns the archived stats for one day, defaulting to today.
// GET /stats/static?snapshot_date=YYYY-MM-DD
func (h *StatsHandler) GetStatic(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC()
	if v := r.URL.Query().Get("snapshot_date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid snapshot_date, want YYYY-MM-DD")
			return
		}
		date = parsed
	}

	snapshot, err := h.service.GetSnapshot(r.Context(), date)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get snapshot failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "load snapshot failed")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// ListStatic returns archived days, newest first.
// GET /stats/static/list?limit=N (1..365, default 30)
func (h *StatsHandler) ListStatic(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 30, 1, 365)
	snapshots, err := h.service.ListSnapshots(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list snapshots failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "list snapshots failed")
		return
	}
	if snapshots == nil {
		snapshots = []stats.SnapshotStats{}
	}
	writeJSON(w, http.StatusOK, snapshots)
}

// CreateSnapshot archives one day on demand, defaulting to today.
// POST /stats/snapshot?snapshot_date=YYYY-MM-DD
func (h *StatsHandler) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC()
	if v := r.URL.Query().Get("snapshot_date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid snapshot_date, want YYYY-MM-DD")
			return
		}
		date = parsed
	}

	snapshot, err := h.service.ArchiveSnapshot(r.Context(), date)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "archive snapshot failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "archive snapshot failed")
		return
	}

	h.logger.InfoContext(r.Context(), "manual snapshot stored",
		slog.String("date", snapshot.SnapshotDate),
		slog.Float64("net_profit", snapshot.NetProfit))
	writeJSON(w, http.StatusOK, snapshot)
}

// RecentEvents returns the newest position events.
// GET /events/recent?limit=N (1..500, default 50)
func (h *StatsHandler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 1, 500)
	events, err := h.service.RecentEvents(r.Context(), limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "list events failed")
		return
	}

	views := make([]eventView, 0, len(events))
	for _, event := range events {
		views = append(views, eventView{
			ID:          event.ID,
			GroupID:     event.GroupID,
			Symbol:      event.Symbol,
			EventType:   string(event.EventType),
			LogicReason: event.LogicReason,
			RealizedPnL: event.RealizedPnL,
			CreatedAt:   event.CreatedAt,
			Data:        event.Data,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

// OpenPositions returns live views of all open groups.
// GET /positions/open
func (h *StatsHandler) OpenPositions(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.OpenPositions(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "open positions failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "load open positions failed")
		return
	}
	writeJSON(w, http.StatusOK, views)
}
