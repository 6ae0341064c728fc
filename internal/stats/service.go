// Package stats aggregates position events into live and daily statistics
// and builds the open-position views served over HTTP.
package stats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/py361828925-design/arb-bot/internal/domain"
)

const (
	dynamicCacheKey = "stats:dynamic"
	dynamicCacheTTL = 5 * time.Second
	// snapshotScanDepth bounds the reverse scan for per-position pricing.
	snapshotScanDepth = 200
)

// DynamicStats is the live aggregate served by /stats/dynamic.
type DynamicStats struct {
	ActiveNotional   float64   `json:"active_notional"`
	ActiveGroupCount int       `json:"active_group_count"`
	TotalOpen        float64   `json:"total_open"`
	TotalOpenCount   int       `json:"total_open_count"`
	TotalClose       float64   `json:"total_close"`
	TotalCloseCount  int       `json:"total_close_count"`
	Logic1Amount     float64   `json:"logic1_amount"`
	Logic1Count      int       `json:"logic1_count"`
	Logic2Amount     float64   `json:"logic2_amount"`
	Logic2Count      int       `json:"logic2_count"`
	Logic3Amount     float64   `json:"logic3_amount"`
	Logic3Count      int       `json:"logic3_count"`
	Logic4Amount     float64   `json:"logic4_amount"`
	Logic4Count      int       `json:"logic4_count"`
	Logic5Amount     float64   `json:"logic5_amount"`
	Logic5Count      int       `json:"logic5_count"`
	NetProfit        float64   `json:"net_profit"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SnapshotStats is the archived daily view served by /stats/static.
type SnapshotStats struct {
	SnapshotDate string  `json:"snapshot_date"` // YYYY-MM-DD
	TotalOpen    float64 `json:"total_open"`
	TotalClose   float64 `json:"total_close"`
	Logic1Amount float64 `json:"logic1_amount"`
	Logic2Amount float64 `json:"logic2_amount"`
	Logic3Amount float64 `json:"logic3_amount"`
	Logic4Amount float64 `json:"logic4_amount"`
	Logic5Amount float64 `json:"logic5_amount"`
	NetProfit    float64 `json:"net_profit"`
}

// PositionLegView is one leg of an open-position view.
type PositionLegView struct {
	Venue      string   `json:"venue"`
	Side       string   `json:"side"`
	EntryPrice float64  `json:"entry_price"`
	ExitPrice  *float64 `json:"exit_price"`
	Quantity   float64  `json:"quantity"`
	PnL        *float64 `json:"pnl"`
}

// PositionGroupView is one open group enriched with live pricing.
type PositionGroupView struct {
	GroupID              string            `json:"group_id"`
	Symbol               string            `json:"symbol"`
	LongVenue            string            `json:"long_venue"`
	ShortVenue           string            `json:"short_venue"`
	Leverage             float64           `json:"leverage"`
	MarginPerLeg         float64           `json:"margin_per_leg"`
	NotionalPerLeg       float64           `json:"notional_per_leg"`
	OpenedAt             time.Time         `json:"opened_at"`
	DurationSeconds      int64             `json:"duration_seconds"`
	CurrentCountdownSecs int64             `json:"current_countdown_secs"` // -1 when unpriced
	LongReturn           float64           `json:"long_return"`
	ShortReturn          float64           `json:"short_return"`
	TotalReturn          float64           `json:"total_return"`
	CurrentFundingDiff   float64           `json:"current_funding_diff"`
	Legs                 []PositionLegView `json:"legs"`
}

// totals is the shared event aggregation for dynamic stats and daily
// archives.
type totals struct {
	TotalOpen       float64
	TotalOpenCount  int
	TotalClose      float64
	TotalCloseCount int
	LogicAmounts    map[string]float64
	LogicCounts     map[string]int
	NetProfit       float64
	EventCount      int
}

// Service computes statistics over the stores, caching the dynamic view
// briefly so dashboard polling does not hammer the database.
type Service struct {
	positions domain.PositionStore
	events    domain.EventStore
	snaps     domain.StatsStore
	bus       domain.SignalBus
	cache     domain.ShortCache
	logger    *slog.Logger
}

// New creates a stats Service.
func New(positions domain.PositionStore, events domain.EventStore, snaps domain.StatsStore, bus domain.SignalBus, cache domain.ShortCache, logger *slog.Logger) *Service {
	return &Service{
		positions: positions,
		events:    events,
		snaps:     snaps,
		bus:       bus,
		cache:     cache,
		logger:    logger.With(slog.String("component", "stats")),
	}
}

// GetDynamic returns the live aggregate, served from the short cache when
// fresh. A cache failure falls through to a recompute.
func (s *Service) GetDynamic(ctx context.Context) (DynamicStats, error) {
	if cached, err := s.cache.Get(ctx, dynamicCacheKey); err == nil {
		var stats DynamicStats
		if err := json.Unmarshal(cached, &stats); err == nil {
			return stats, nil
		}
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "dynamic stats cache read failed", slog.Any("error", err))
	}

	stats, err := s.recomputeDynamic(ctx)
	if err != nil {
		return DynamicStats{}, err
	}

	if payload, err := json.Marshal(stats); err == nil {
		if err := s.cache.Set(ctx, dynamicCacheKey, payload, dynamicCacheTTL); err != nil {
			s.logger.WarnContext(ctx, "dynamic stats cache write failed", slog.Any("error", err))
		}
	}
	return stats, nil
}

func (s *Service) recomputeDynamic(ctx context.Context) (DynamicStats, error) {
	openGroups, err := s.positions.ListOpenWithLegs(ctx)
	if err != nil {
		return DynamicStats{}, fmt.Errorf("stats: list open groups: %w", err)
	}
	events, err := s.events.ListAll(ctx)
	if err != nil {
		return DynamicStats{}, fmt.Errorf("stats: list events: %w", err)
	}

	activeNotional := 0.0
	for _, group := range openGroups {
		activeNotional += group.MarginPerLeg * 2
	}

	t := calculateTotals(events)
	return DynamicStats{
		ActiveNotional:   activeNotional,
		ActiveGroupCount: len(openGroups),
		TotalOpen:        t.TotalOpen,
		TotalOpenCount:   t.TotalOpenCount,
		TotalClose:       t.TotalClose,
		TotalCloseCount:  t.TotalCloseCount,
		Logic1Amount:     t.LogicAmounts["logic1"],
		Logic1Count:      t.LogicCounts["logic1"],
		Logic2Amount:     t.LogicAmounts["logic2"],
		Logic2Count:      t.LogicCounts["logic2"],
		Logic3Amount:     t.LogicAmounts["logic3"],
		Logic3Count:      t.LogicCounts["logic3"],
		Logic4Amount:     t.LogicAmounts["logic4"],
		Logic4Count:      t.LogicCounts["logic4"],
		Logic5Amount:     t.LogicAmounts["logic5"],
		Logic5Count:      t.LogicCounts["logic5"],
		NetProfit:        t.NetProfit,
		UpdatedAt:        time.Now().UTC(),
	}, nil
}

// calculateTotals folds events into aggregate sums. Notional is counted per
// group (both legs); net profit sums the realized pnl of CLOSE events.
func calculateTotals(events []domain.PositionEvent) totals {
	t := totals{
		LogicAmounts: map[string]float64{},
		LogicCounts:  map[string]int{},
	}
	for _, event := range events {
		notionalPerLeg := eventNotionalPerLeg(event)
		notionalTotal := notionalPerLeg * 2
		t.EventCount++

		switch event.EventType {
		case domain.EventTypeOpen:
			t.TotalOpen += notionalTotal
			t.TotalOpenCount++
		case domain.EventTypeClose:
			t.TotalClose += notionalTotal
			t.TotalCloseCount++
			if event.LogicReason != nil {
				t.LogicAmounts[*event.LogicReason] += notionalTotal
				t.LogicCounts[*event.LogicReason]++
			}
			if event.RealizedPnL != nil {
				t.NetProfit += *event.RealizedPnL
			}
		}
	}
	return t
}

func eventNotionalPerLeg(event domain.PositionEvent) float64 {
	raw, ok := event.Data["notional_per_leg"]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return v
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

// GetSnapshot returns the archived stats for one UTC day.
func (s *Service) GetSnapshot(ctx context.Context, date time.Time) (SnapshotStats, error) {
	snap, err := s.snaps.GetByDate(ctx, midnightUTC(date))
	if err != nil {
		return SnapshotStats{}, err
	}
	return snapshotView(snap), nil
}

// ListSnapshots returns the newest archived days first.
func (s *Service) ListSnapshots(ctx context.Context, limit int) ([]SnapshotStats, error) {
	snaps, err := s.snaps.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := make([]SnapshotStats, 0, len(snaps))
	for _, snap := range snaps {
		views = append(views, snapshotView(snap))
	}
	return views, nil
}

// RecentEvents returns the newest events first.
func (s *Service) RecentEvents(ctx context.Context, limit int) ([]domain.PositionEvent, error) {
	return s.events.ListRecent(ctx, limit)
}

// ArchiveSnapshot aggregates the UTC day [midnight, midnight+24h) and
// upserts the result, so re-running for the same day is safe.
func (s *Service) ArchiveSnapshot(ctx context.Context, date time.Time) (SnapshotStats, error) {
	start := midnightUTC(date)
	end := start.Add(24 * time.Hour)

	events, err := s.events.ListBetween(ctx, start, end)
	if err != nil {
		return SnapshotStats{}, fmt.Errorf("stats: list events for %s: %w",
			start.Format("2006-01-02"), err)
	}

	t := calculateTotals(events)
	snap := domain.StatsSnapshot{
		SnapshotDate: start,
		TotalOpen:    t.TotalOpen,
		TotalClose:   t.TotalClose,
		Logic1Amount: t.LogicAmounts["logic1"],
		Logic2Amount: t.LogicAmounts["logic2"],
		Logic3Amount: t.LogicAmounts["logic3"],
		Logic4Amount: t.LogicAmounts["logic4"],
		Logic5Amount: t.LogicAmounts["logic5"],
		NetProfit:    t.NetProfit,
		RawStats:     map[string]any{"event_count": t.EventCount},
	}
	if err := s.snaps.Upsert(ctx, snap); err != nil {
		return SnapshotStats{}, err
	}
	return snapshotView(snap), nil
}

// OpenPositions builds the live views for all open groups, pricing them from
// one reverse scan of the snapshots stream.
func (s *Service) OpenPositions(ctx context.Context) ([]PositionGroupView, error) {
	groups, err := s.positions.ListOpenWithLegs(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: list open groups: %w", err)
	}
	if len(groups) == 0 {
		return []PositionGroupView{}, nil
	}

	messages, err := s.bus.StreamRevRange(ctx, domain.StreamSnapshots, snapshotScanDepth)
	if err != nil {
		s.logger.WarnContext(ctx, "scan snapshots failed", slog.Any("error", err))
		messages = nil
	}

	now := time.Now().UTC()
	views := make([]PositionGroupView, 0, len(groups))
	for _, group := range groups {
		views = append(views, s.buildGroupView(group, messages, now))
	}
	return views, nil
}

func (s *Service) buildGroupView(group domain.PositionGroup, messages []domain.StreamMessage, now time.Time) PositionGroupView {
	longSnap := latestFromScan(messages, group.LongVenue, group.Symbol)
	shortSnap := latestFromScan(messages, group.ShortVenue, group.Symbol)

	longReturn := legReturn(group.LongLeg(), longSnap)
	shortReturn := legReturn(group.ShortLeg(), shortSnap)

	countdownSecs := int64(-1)
	fundingDiff := 0.0
	if longSnap != nil && shortSnap != nil {
		countdownSecs = longSnap.SettleCountdownSecs(now)
		if secs := shortSnap.SettleCountdownSecs(now); secs < countdownSecs {
			countdownSecs = secs
		}
		fundingDiff = longSnap.Rate8h() - shortSnap.Rate8h()
	}

	legs := make([]PositionLegView, 0, len(group.Legs))
	for _, leg := range group.Legs {
		legs = append(legs, PositionLegView{
			Venue:      leg.Venue,
			Side:       string(leg.Side),
			EntryPrice: leg.EntryPrice,
			ExitPrice:  leg.ExitPrice,
			Quantity:   leg.Notional,
			PnL:        leg.PnL,
		})
	}

	return PositionGroupView{
		GroupID:              group.GroupID,
		Symbol:               group.Symbol,
		LongVenue:            group.LongVenue,
		ShortVenue:           group.ShortVenue,
		Leverage:             group.Leverage,
		MarginPerLeg:         group.MarginPerLeg,
		NotionalPerLeg:       group.NotionalPerLeg,
		OpenedAt:             group.OpenedAt,
		DurationSeconds:      int64(now.Sub(group.OpenedAt).Seconds()),
		CurrentCountdownSecs: countdownSecs,
		LongReturn:           longReturn,
		ShortReturn:          shortReturn,
		TotalReturn:          longReturn + shortReturn,
		CurrentFundingDiff:   fundingDiff,
		Legs:                 legs,
	}
}

// latestFromScan finds the newest snapshot for (venue, symbol) in an already
// fetched newest-first scan.
func latestFromScan(messages []domain.StreamMessage, venue, symbol string) *domain.FundingSnapshot {
	for _, msg := range messages {
		if msg.Fields["venue"] != venue || msg.Fields["symbol"] != symbol {
			continue
		}
		snap, err := domain.SnapshotFromStream(msg.Fields)
		if err != nil {
			continue
		}
		return &snap
	}
	return nil
}

// legReturn computes the unrealised return of a leg against the latest
// price, or 0 when the leg cannot be priced.
func legReturn(leg *domain.PositionLeg, snap *domain.FundingSnapshot) float64 {
	if leg == nil || snap == nil || leg.EntryPrice <= 0 {
		return 0
	}
	price, ok := snap.PreferredPrice()
	if !ok {
		return 0
	}
	if leg.Side == domain.LegSideLong {
		return (price - leg.EntryPrice) / leg.EntryPrice
	}
	return (leg.EntryPrice - price) / leg.EntryPrice
}

func snapshotView(snap domain.StatsSnapshot) SnapshotStats {
	return SnapshotStats{
		SnapshotDate: snap.SnapshotDate.UTC().Format("2006-01-02"),
		TotalOpen:    snap.TotalOpen,
		TotalClose:   snap.TotalClose,
		Logic1Amount: snap.Logic1Amount,
		Logic2Amount: snap.Logic2Amount,
		Logic3Amount: snap.Logic3Amount,
		Logic4Amount: snap.Logic4Amount,
		Logic5Amount: snap.Logic5Amount,
		NetProfit:    snap.NetProfit,
	}
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
