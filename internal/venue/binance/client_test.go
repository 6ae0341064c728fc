package binance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/py361828925-design/arb-bot/internal/domain"
)

func TestSnapshotFromItem(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	snap, err := snapshotFromItem(premiumIndexItem{
		Symbol:          "BTCUSDT",
		MarkPrice:       "65000.50",
		IndexPrice:      "64990.25",
		LastFundingRate: "0.00010000",
		NextFundingTime: 1717250400000,
	}, now)
	require.NoError(t, err)

	assert.Equal(t, domain.VenueBinance, snap.Venue)
	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, 0.0001, snap.FundingRateRaw)
	assert.Equal(t, 8, snap.SettleIntervalHrs)
	assert.Equal(t, int64(1717250400000), snap.NextFundingTimeMs)
	require.NotNil(t, snap.MarkPrice)
	assert.Equal(t, 65000.5, *snap.MarkPrice)
	require.NotNil(t, snap.IndexPrice)
	assert.Equal(t, 64990.25, *snap.IndexPrice)
	assert.Equal(t, now.UnixMilli(), snap.CapturedAtMs)
}

func TestSnapshotFromItemErrors(t *testing.T) {
	now := time.Now().UTC()

	_, err := snapshotFromItem(premiumIndexItem{LastFundingRate: "0.0001"}, now)
	assert.Error(t, err, "missing symbol")

	_, err = snapshotFromItem(premiumIndexItem{Symbol: "BTCUSDT", LastFundingRate: ""}, now)
	assert.Error(t, err, "empty rate")

	// Unparseable prices are dropped, not fatal.
	snap, err := snapshotFromItem(premiumIndexItem{
		Symbol: "BTCUSDT", LastFundingRate: "0.0001", MarkPrice: "n/a",
	}, now)
	require.NoError(t, err)
	assert.Nil(t, snap.MarkPrice)
	assert.Nil(t, snap.IndexPrice)
}

func TestFetchFunding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/fapi/v1/premiumIndex", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"symbol":"BTCUSDT","markPrice":"65000.1","indexPrice":"64999.9","lastFundingRate":"0.0001","nextFundingTime":1717250400000},
			{"symbol":"ETHUSDT","markPrice":"3500","indexPrice":"3499","lastFundingRate":"-0.0002","nextFundingTime":1717250400000},
			{"symbol":"BADUSDT","lastFundingRate":"garbage"}
		]`))
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(Config{BaseURL: server.URL, Timeout: 2 * time.Second}, logger)

	snapshots, err := client.FetchFunding(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshots, 2, "the unparseable entry is skipped")
	assert.Equal(t, "BTCUSDT", snapshots[0].Symbol)
	assert.Equal(t, -0.0002, snapshots[1].FundingRateRaw)
}

func TestFetchFundingHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(Config{BaseURL: server.URL}, logger)

	_, err := client.FetchFunding(context.Background())
	assert.Error(t, err)
}
