package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRate8h(t *testing.T) {
	tests := []struct {
		name  string
		raw   float64
		hours int
		want  float64
	}{
		{name: "standard 8h interval", raw: 0.0004, hours: 8, want: 0.0004},
		{name: "4h interval doubles", raw: 0.0004, hours: 4, want: 0.0008},
		{name: "1h interval", raw: 0.0001, hours: 1, want: 0.0008},
		{name: "zero interval defaults to 8h", raw: 0.0004, hours: 0, want: 0.0004},
		{name: "negative rate", raw: -0.0002, hours: 4, want: -0.0004},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := FundingSnapshot{FundingRateRaw: tt.raw, SettleIntervalHrs: tt.hours}
			assert.InDelta(t, tt.want, snap.Rate8h(), 1e-12)
		})
	}
}

func TestSettleCountdownSecs(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	future := FundingSnapshot{NextFundingTimeMs: now.Add(90 * time.Second).UnixMilli()}
	assert.Equal(t, int64(90), future.SettleCountdownSecs(now))

	past := FundingSnapshot{NextFundingTimeMs: now.Add(-time.Minute).UnixMilli()}
	assert.Equal(t, int64(0), past.SettleCountdownSecs(now), "elapsed settlements clamp to zero")
}

func TestPreferredPrice(t *testing.T) {
	mark := FundingSnapshot{MarkPrice: Float64Ptr(100.5), IndexPrice: Float64Ptr(99.0)}
	price, ok := mark.PreferredPrice()
	require.True(t, ok)
	assert.Equal(t, 100.5, price, "mark wins over index")

	index := FundingSnapshot{IndexPrice: Float64Ptr(99.0)}
	price, ok = index.PreferredPrice()
	require.True(t, ok)
	assert.Equal(t, 99.0, price)

	_, ok = FundingSnapshot{}.PreferredPrice()
	assert.False(t, ok)
}

func TestSnapshotStreamRoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := FundingSnapshot{
		Venue:             VenueBinance,
		Symbol:            "BTCUSDT",
		FundingRateRaw:    0.0003,
		SettleIntervalHrs: 8,
		NextFundingTimeMs: now.Add(time.Hour).UnixMilli(),
		Instrument:        "BTCUSDT",
		MarkPrice:         Float64Ptr(65000.5),
		IndexPrice:        Float64Ptr(64990.25),
		CapturedAtMs:      now.UnixMilli(),
	}

	fields := snap.StreamFields(now)
	assert.Equal(t, "0.0003", fields["funding_rate_raw"])
	assert.Equal(t, "3600", fields["settle_countdown_secs"])

	got, err := SnapshotFromStream(fields)
	require.NoError(t, err)
	assert.Equal(t, snap, got)
}

func TestSnapshotStreamNullPrices(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := FundingSnapshot{
		Venue:             VenueBitget,
		Symbol:            "ETHUSDT",
		FundingRateRaw:    -0.0001,
		SettleIntervalHrs: 4,
		CapturedAtMs:      now.UnixMilli(),
	}

	fields := snap.StreamFields(now)
	assert.Equal(t, "None", fields["mark_price"])
	assert.Equal(t, "None", fields["index_price"])
	assert.Equal(t, "None", fields["instrument"])

	got, err := SnapshotFromStream(fields)
	require.NoError(t, err)
	assert.Nil(t, got.MarkPrice)
	assert.Nil(t, got.IndexPrice)
	assert.Empty(t, got.Instrument)
}

func TestSnapshotFromStreamOmittedOptionals(t *testing.T) {
	// Omitted fields and the "None" literal must parse identically.
	got, err := SnapshotFromStream(map[string]string{
		"venue":            VenueBinance,
		"symbol":           "BTCUSDT",
		"funding_rate_raw": "0.0001",
	})
	require.NoError(t, err)
	assert.Equal(t, 8, got.SettleIntervalHrs, "missing interval defaults to 8")
	assert.Nil(t, got.MarkPrice)
	assert.Nil(t, got.IndexPrice)
	assert.Zero(t, got.NextFundingTimeMs)
	assert.NotZero(t, got.CapturedAtMs, "missing capture time is backfilled")
}

func TestSnapshotFromStreamErrors(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
	}{
		{name: "missing venue", fields: map[string]string{
			"symbol": "BTCUSDT", "funding_rate_raw": "0.0001",
		}},
		{name: "missing symbol", fields: map[string]string{
			"venue": VenueBinance, "funding_rate_raw": "0.0001",
		}},
		{name: "missing rate", fields: map[string]string{
			"venue": VenueBinance, "symbol": "BTCUSDT",
		}},
		{name: "garbage rate", fields: map[string]string{
			"venue": VenueBinance, "symbol": "BTCUSDT", "funding_rate_raw": "nan%",
		}},
		{name: "garbage mark price", fields: map[string]string{
			"venue": VenueBinance, "symbol": "BTCUSDT",
			"funding_rate_raw": "0.0001", "mark_price": "abc",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SnapshotFromStream(tt.fields)
			assert.Error(t, err)
		})
	}
}
