package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/py361828925-design/arb-bot/internal/domain"
)

var testThresholds = domain.Thresholds{
	AA: 0.0005,
	BB: 0.0002,
	CC: 0.0001,
	DD: 5,
	EE: 0.0002,
	FF: 0.10,
	GG: 0.15,
	HH: 0.05,
}

func testGroup(longEntry, shortEntry float64) domain.PositionGroup {
	return domain.PositionGroup{
		GroupID:        "BTCUSDT-20240601120000",
		Symbol:         "BTCUSDT",
		LongVenue:      domain.VenueBinance,
		ShortVenue:     domain.VenueBitget,
		NotionalPerLeg: 1000,
		FundingDiff:    0.001,
		Legs: []domain.PositionLeg{
			{Venue: domain.VenueBinance, Side: domain.LegSideLong, EntryPrice: longEntry, Notional: 1000},
			{Venue: domain.VenueBitget, Side: domain.LegSideShort, EntryPrice: shortEntry, Notional: 1000},
		},
	}
}

func pricedSnap(venue string, mark, rate8h float64, next time.Time) domain.FundingSnapshot {
	return domain.FundingSnapshot{
		Venue:             venue,
		Symbol:            "BTCUSDT",
		FundingRateRaw:    rate8h,
		SettleIntervalHrs: 8,
		NextFundingTimeMs: next.UnixMilli(),
		MarkPrice:         domain.Float64Ptr(mark),
	}
}

func TestEvaluateGroupRulePriority(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	farSettle := now.Add(2 * time.Hour)
	nearSettle := now.Add(3 * time.Minute)

	tests := []struct {
		name       string
		group      domain.PositionGroup
		longSnap   domain.FundingSnapshot
		shortSnap  domain.FundingSnapshot
		wantReason string
		wantClose  bool
	}{
		{
			name:       "single leg wiped out",
			group:      testGroup(100, 100),
			longSnap:   pricedSnap(domain.VenueBinance, 5, 0, farSettle),
			shortSnap:  pricedSnap(domain.VenueBitget, 100, 0, farSettle),
			wantReason: ReasonCatastrophe,
			wantClose:  true,
		},
		{
			name:       "total loss hits stop",
			group:      testGroup(100, 100),
			longSnap:   pricedSnap(domain.VenueBinance, 90, 0, farSettle),
			shortSnap:  pricedSnap(domain.VenueBitget, 110, 0, farSettle),
			wantReason: ReasonStopLoss,
			wantClose:  true,
		},
		{
			name:       "total gain hits take profit",
			group:      testGroup(100, 100),
			longSnap:   pricedSnap(domain.VenueBinance, 110, 0, farSettle),
			shortSnap:  pricedSnap(domain.VenueBitget, 95, 0, farSettle),
			wantReason: ReasonTakeProfit,
			wantClose:  true,
		},
		{
			name:       "worst leg stopped while total holds",
			group:      testGroup(100, 100),
			longSnap:   pricedSnap(domain.VenueBinance, 94, 0, farSettle),
			shortSnap:  pricedSnap(domain.VenueBitget, 93, 0, farSettle),
			wantReason: ReasonPartialStop,
			wantClose:  true,
		},
		{
			name:       "converged with profit",
			group:      testGroup(100, 100),
			longSnap:   pricedSnap(domain.VenueBinance, 100.1, 0, farSettle),
			shortSnap:  pricedSnap(domain.VenueBitget, 100, 0, farSettle),
			wantReason: ReasonConverged,
			wantClose:  true,
		},
		{
			name:       "converged and settlement imminent without profit",
			group:      testGroup(100, 100),
			longSnap:   pricedSnap(domain.VenueBinance, 100, 0, nearSettle),
			shortSnap:  pricedSnap(domain.VenueBitget, 100.1, 0, nearSettle),
			wantReason: ReasonConverged,
			wantClose:  true,
		},
		{
			name:       "differential reversed with profit",
			group:      testGroup(100, 100),
			longSnap:   pricedSnap(domain.VenueBinance, 100.1, -0.01, farSettle),
			shortSnap:  pricedSnap(domain.VenueBitget, 100, 0.01, farSettle),
			wantReason: ReasonConverged,
			wantClose:  true,
		},
		{
			name:      "divergent and unprofitable stays open",
			group:     testGroup(100, 100),
			longSnap:  pricedSnap(domain.VenueBinance, 100, 0.001, farSettle),
			shortSnap: pricedSnap(domain.VenueBitget, 100.05, 0, farSettle),
			wantClose: false,
		},
		{
			name:       "zero entry falls back to unit price",
			group:      testGroup(0, 0),
			longSnap:   pricedSnap(domain.VenueBinance, 1.0005, 0, farSettle),
			shortSnap:  pricedSnap(domain.VenueBitget, 1.0, 0, farSettle),
			wantReason: ReasonConverged,
			wantClose:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, close := EvaluateGroup(tt.group, tt.longSnap, tt.shortSnap, testThresholds, now)
			require.Equal(t, tt.wantClose, close)
			if tt.wantClose {
				assert.Equal(t, tt.wantReason, decision.Reason)
			}
		})
	}
}

func TestEvaluateGroupDecisionValues(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	group := testGroup(100, 100)
	longSnap := pricedSnap(domain.VenueBinance, 90, 0.0001, now.Add(30*time.Minute))
	shortSnap := pricedSnap(domain.VenueBitget, 110, 0.0004, now.Add(45*time.Minute))

	decision, close := EvaluateGroup(group, longSnap, shortSnap, testThresholds, now)
	require.True(t, close)
	assert.Equal(t, ReasonStopLoss, decision.Reason)
	assert.Equal(t, 90.0, decision.LongMark)
	assert.Equal(t, 110.0, decision.ShortMark)
	assert.InDelta(t, -0.1, decision.LongReturn, 1e-9)
	assert.InDelta(t, -0.1, decision.ShortReturn, 1e-9)
	assert.InDelta(t, -0.2, decision.TotalReturn, 1e-9)
	assert.InDelta(t, -0.1, decision.WorstReturn, 1e-9)
	assert.InDelta(t, -0.0003, decision.CurrentDiff, 1e-9)
	assert.InDelta(t, 30, decision.CountdownMinutes, 0.01, "countdown uses the nearer settlement")
}

func TestEvaluateGroupUnpriceable(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	settle := now.Add(time.Hour)

	group := testGroup(100, 100)
	unpriced := domain.FundingSnapshot{Venue: domain.VenueBinance, Symbol: "BTCUSDT"}

	_, close := EvaluateGroup(group, unpriced, pricedSnap(domain.VenueBitget, 100, 0, settle), testThresholds, now)
	assert.False(t, close, "missing prices defer the evaluation")

	legless := domain.PositionGroup{GroupID: "x"}
	_, close = EvaluateGroup(legless, pricedSnap(domain.VenueBinance, 100, 0, settle),
		pricedSnap(domain.VenueBitget, 100, 0, settle), testThresholds, now)
	assert.False(t, close)
}
