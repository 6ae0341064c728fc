package stats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/py361828925-design/arb-bot/internal/domain"
)

func closeEvent(reason string, pnl, notionalPerLeg float64) domain.PositionEvent {
	return domain.PositionEvent{
		EventType:   domain.EventTypeClose,
		LogicReason: &reason,
		RealizedPnL: &pnl,
		Data:        map[string]any{"notional_per_leg": notionalPerLeg},
	}
}

func TestCalculateTotals(t *testing.T) {
	events := []domain.PositionEvent{
		{
			EventType: domain.EventTypeOpen,
			Data:      map[string]any{"notional_per_leg": 1000.0},
		},
		{
			EventType: domain.EventTypeOpen,
			Data:      map[string]any{"notional_per_leg": 500.0},
		},
		closeEvent("logic1", 12.5, 1000),
		closeEvent("logic4", -30.0, 500),
	}

	got := calculateTotals(events)

	assert.Equal(t, 3000.0, got.TotalOpen, "open notional counts both legs")
	assert.Equal(t, 2, got.TotalOpenCount)
	assert.Equal(t, 3000.0, got.TotalClose)
	assert.Equal(t, 2, got.TotalCloseCount)
	assert.Equal(t, 2000.0, got.LogicAmounts["logic1"])
	assert.Equal(t, 1, got.LogicCounts["logic1"])
	assert.Equal(t, 1000.0, got.LogicAmounts["logic4"])
	assert.InDelta(t, -17.5, got.NetProfit, 1e-9)
	assert.Equal(t, 4, got.EventCount)
}

func TestCalculateTotalsCloseWithoutReason(t *testing.T) {
	pnl := 5.0
	got := calculateTotals([]domain.PositionEvent{{
		EventType:   domain.EventTypeClose,
		RealizedPnL: &pnl,
		Data:        map[string]any{"notional_per_leg": 100.0},
	}})

	assert.Equal(t, 200.0, got.TotalClose)
	assert.Empty(t, got.LogicAmounts)
	assert.Equal(t, 5.0, got.NetProfit)
}

func TestEventNotionalPerLeg(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want float64
	}{
		{name: "float64", data: map[string]any{"notional_per_leg": 750.0}, want: 750},
		{name: "json number", data: map[string]any{"notional_per_leg": json.Number("250.5")}, want: 250.5},
		{name: "missing key", data: map[string]any{}, want: 0},
		{name: "nil data", data: nil, want: 0},
		{name: "wrong type", data: map[string]any{"notional_per_leg": "1000"}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := domain.PositionEvent{Data: tt.data}
			assert.Equal(t, tt.want, eventNotionalPerLeg(event))
		})
	}
}

func TestMidnightUTC(t *testing.T) {
	in := time.Date(2024, 6, 1, 23, 45, 12, 999, time.FixedZone("CST", 8*3600))
	got := midnightUTC(in)
	// 23:45 CST is 15:45 UTC the same day.
	assert.Equal(t, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestLegReturn(t *testing.T) {
	longLeg := &domain.PositionLeg{Side: domain.LegSideLong, EntryPrice: 100}
	shortLeg := &domain.PositionLeg{Side: domain.LegSideShort, EntryPrice: 100}
	snap := &domain.FundingSnapshot{MarkPrice: domain.Float64Ptr(110)}

	assert.InDelta(t, 0.1, legReturn(longLeg, snap), 1e-9)
	assert.InDelta(t, -0.1, legReturn(shortLeg, snap), 1e-9)

	assert.Zero(t, legReturn(nil, snap))
	assert.Zero(t, legReturn(longLeg, nil))
	assert.Zero(t, legReturn(&domain.PositionLeg{Side: domain.LegSideLong}, snap), "zero entry yields no return")
	assert.Zero(t, legReturn(longLeg, &domain.FundingSnapshot{}), "unpriced snapshot yields no return")
}

func TestLatestFromScan(t *testing.T) {
	now := time.Now().UTC()
	newest := domain.FundingSnapshot{
		Venue: domain.VenueBinance, Symbol: "BTCUSDT",
		FundingRateRaw: 0.0002, SettleIntervalHrs: 8,
		MarkPrice: domain.Float64Ptr(65000),
	}
	older := newest
	older.MarkPrice = domain.Float64Ptr(64000)

	messages := []domain.StreamMessage{
		// Undecodable matching entry first; the scan must skip past it.
		{ID: "4-0", Fields: map[string]string{"venue": domain.VenueBinance, "symbol": "BTCUSDT"}},
		{ID: "3-0", Fields: newest.StreamFields(now)},
		{ID: "2-0", Fields: older.StreamFields(now)},
	}

	got := latestFromScan(messages, domain.VenueBinance, "BTCUSDT")
	require.NotNil(t, got)
	assert.Equal(t, 65000.0, *got.MarkPrice, "the scan is newest-first")

	assert.Nil(t, latestFromScan(messages, domain.VenueBitget, "BTCUSDT"))
	assert.Nil(t, latestFromScan(nil, domain.VenueBinance, "BTCUSDT"))
}

func TestBuildGroupViewUnpricedCountdown(t *testing.T) {
	svc := &Service{}
	now := time.Now().UTC()
	group := domain.PositionGroup{
		GroupID:    "BTCUSDT-20240601120000",
		Symbol:     "BTCUSDT",
		LongVenue:  domain.VenueBinance,
		ShortVenue: domain.VenueBitget,
		OpenedAt:   now.Add(-time.Hour),
		Legs: []domain.PositionLeg{
			{Venue: domain.VenueBinance, Side: domain.LegSideLong, EntryPrice: 100, Notional: 1000},
			{Venue: domain.VenueBitget, Side: domain.LegSideShort, EntryPrice: 100, Notional: 1000},
		},
	}

	view := svc.buildGroupView(group, nil, now)

	assert.Equal(t, int64(-1), view.CurrentCountdownSecs, "missing snapshots flag the countdown")
	assert.Zero(t, view.TotalReturn)
	assert.Equal(t, int64(3600), view.DurationSeconds)
	require.Len(t, view.Legs, 2)
	assert.Equal(t, 1000.0, view.Legs[0].Quantity)
}

func TestBuildGroupViewPriced(t *testing.T) {
	svc := &Service{}
	now := time.Now().UTC()
	settle := now.Add(30 * time.Minute)

	longSnap := domain.FundingSnapshot{
		Venue: domain.VenueBinance, Symbol: "ETHUSDT",
		FundingRateRaw: 0.0004, SettleIntervalHrs: 8,
		NextFundingTimeMs: settle.UnixMilli(),
		MarkPrice:         domain.Float64Ptr(105),
	}
	shortSnap := domain.FundingSnapshot{
		Venue: domain.VenueBitget, Symbol: "ETHUSDT",
		FundingRateRaw: 0.0001, SettleIntervalHrs: 8,
		NextFundingTimeMs: settle.Add(10 * time.Minute).UnixMilli(),
		MarkPrice:         domain.Float64Ptr(103),
	}
	messages := []domain.StreamMessage{
		{ID: "2-0", Fields: longSnap.StreamFields(now)},
		{ID: "1-0", Fields: shortSnap.StreamFields(now)},
	}

	group := domain.PositionGroup{
		Symbol:     "ETHUSDT",
		LongVenue:  domain.VenueBinance,
		ShortVenue: domain.VenueBitget,
		OpenedAt:   now,
		Legs: []domain.PositionLeg{
			{Venue: domain.VenueBinance, Side: domain.LegSideLong, EntryPrice: 100},
			{Venue: domain.VenueBitget, Side: domain.LegSideShort, EntryPrice: 100},
		},
	}

	view := svc.buildGroupView(group, messages, now)

	assert.InDelta(t, 0.05, view.LongReturn, 1e-9)
	assert.InDelta(t, -0.03, view.ShortReturn, 1e-9)
	assert.InDelta(t, 0.02, view.TotalReturn, 1e-9)
	assert.InDelta(t, 0.0003, view.CurrentFundingDiff, 1e-9)
	assert.InDelta(t, 1800, view.CurrentCountdownSecs, 1, "countdown tracks the nearer settlement")
}
