package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/py361828925-design/arb-bot/internal/domain"
	"github.com/py361828925-design/arb-bot/internal/feed"
)

// fundingView is the JSON shape of one funding snapshot, including the
// derived fields consumers expect alongside the raw observation.
type fundingView struct {
	Venue               string   `json:"venue"`
	Symbol              string   `json:"symbol"`
	FundingRateRaw      float64  `json:"funding_rate_raw"`
	SettleIntervalHours int      `json:"settle_interval_hours"`
	NextFundingTimeMs   int64    `json:"next_funding_time_ms"`
	Instrument          string   `json:"instrument,omitempty"`
	MarkPrice           *float64 `json:"mark_price"`
	IndexPrice          *float64 `json:"index_price"`
	CapturedAtMs        int64    `json:"captured_at_ms"`
	Rate8h              float64  `json:"rate8h"`
	SettleCountdownSecs int64    `json:"settle_countdown_secs"`
}

// FundingHandler serves the latest retained funding batch per venue.
type FundingHandler struct {
	feed   *feed.Feed
	logger *slog.Logger
}

// NewFundingHandler creates a FundingHandler.
func NewFundingHandler(f *feed.Feed, logger *slog.Logger) *FundingHandler {
	return &FundingHandler{feed: f, logger: logHandler(logger, "funding")}
}

// GetFunding returns the last non-empty batch for one venue.
// GET /funding/{venue}
func (h *FundingHandler) GetFunding(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		writeError(w, http.StatusServiceUnavailable, "feed not ready")
		return
	}

	venue := strings.ToLower(pathParam(r, "venue"))
	snapshots, err := h.feed.Latest(venue)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownVenue) {
			writeError(w, http.StatusNotFound, "unsupported venue")
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	now := time.Now().UTC()
	views := make([]fundingView, 0, len(snapshots))
	for _, snap := range snapshots {
		views = append(views, fundingView{
			Venue:               snap.Venue,
			Symbol:              snap.Symbol,
			FundingRateRaw:      snap.FundingRateRaw,
			SettleIntervalHours: snap.SettleIntervalHrs,
			NextFundingTimeMs:   snap.NextFundingTimeMs,
			Instrument:          snap.Instrument,
			MarkPrice:           snap.MarkPrice,
			IndexPrice:          snap.IndexPrice,
			CapturedAtMs:        snap.CapturedAtMs,
			Rate8h:              snap.Rate8h(),
			SettleCountdownSecs: snap.SettleCountdownSecs(now),
		})
	}
	writeJSON(w, http.StatusOK, views)
}
