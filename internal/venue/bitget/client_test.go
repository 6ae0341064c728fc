package bitget

import (
	"context"
	"encoding/json"
	"fmt"
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

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "BTCUSDT_UMCBL", want: "BTCUSDT"},
		{in: "BTCUSD_DMCBL", want: "BTCUSD"},
		{in: "BTCUSDT", want: "BTCUSDT"},
		{in: "ETH_USDT", want: "ETH_USDT"}, // unknown suffix stays as-is
		{in: "", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeSymbol(tt.in), tt.in)
	}
}

func TestDecodeContracts(t *testing.T) {
	bare := json.RawMessage(`[{"symbol":"BTCUSDT","marginCoin":"USDT"},{"symbol":"ETHUSDT","marginCoin":"USDT"}]`)
	contracts, err := decodeContracts(bare)
	require.NoError(t, err)
	require.Len(t, contracts, 2)
	assert.Equal(t, "BTCUSDT", contracts[0].Symbol)

	wrapped := json.RawMessage(`{"symbols":[{"symbol":"BTCUSDT_UMCBL","quoteCoin":"USDT"}]}`)
	contracts, err = decodeContracts(wrapped)
	require.NoError(t, err)
	require.Len(t, contracts, 1)
	assert.Equal(t, "BTCUSDT_UMCBL", contracts[0].Symbol)
	assert.Equal(t, "USDT", contracts[0].QuoteCoin)

	contracts, err = decodeContracts(nil)
	require.NoError(t, err)
	assert.Empty(t, contracts)

	_, err = decodeContracts(json.RawMessage(`"not a listing"`))
	assert.Error(t, err)
}

func TestDecodeFundRecord(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		wantOK bool
		symbol string
	}{
		{
			name:   "v2 bare list",
			data:   `[{"symbol":"BTCUSDT","fundingRate":"0.0001"}]`,
			wantOK: true,
			symbol: "BTCUSDT",
		},
		{
			name:   "v1 nested data",
			data:   `{"data":[{"symbol":"ETHUSDT","fundingRate":"-0.0002"}]}`,
			wantOK: true,
			symbol: "ETHUSDT",
		},
		{
			name:   "nested list",
			data:   `{"list":[{"symbol":"SOLUSDT","fundingRate":"0.0003"}]}`,
			wantOK: true,
			symbol: "SOLUSDT",
		},
		{
			name:   "single object",
			data:   `{"symbol":"XRPUSDT","fundingRate":"0.0001"}`,
			wantOK: true,
			symbol: "XRPUSDT",
		},
		{name: "single object without rate", data: `{"symbol":"XRPUSDT"}`},
		{name: "empty list", data: `[]`},
		{name: "null", data: `null`},
		{name: "empty", data: ``},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, ok := decodeFundRecord(json.RawMessage(tt.data))
			require.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.symbol, record.Symbol)
			}
		})
	}
}

func TestSnapshotFromRecord(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	snap, err := snapshotFromRecord(fundRecord{
		Symbol:              "BTCUSDT_UMCBL",
		FundingRate:         "0.0002",
		FundingRateInterval: "4",
		NextUpdate:          "1717250400000",
	}, now)
	require.NoError(t, err)

	assert.Equal(t, domain.VenueBitget, snap.Venue)
	assert.Equal(t, "BTCUSDT", snap.Symbol, "symbol is normalised")
	assert.Equal(t, "BTCUSDT_UMCBL", snap.Instrument, "instrument keeps the raw symbol")
	assert.Equal(t, 0.0002, snap.FundingRateRaw)
	assert.Equal(t, 4, snap.SettleIntervalHrs)
	assert.Equal(t, int64(1717250400000), snap.NextFundingTimeMs)
	assert.Equal(t, now.UnixMilli(), snap.CapturedAtMs)
	assert.Nil(t, snap.MarkPrice, "bitget funding responses carry no prices")
}

func TestSnapshotFromRecordDefaults(t *testing.T) {
	now := time.Now().UTC()

	snap, err := snapshotFromRecord(fundRecord{Symbol: "ETHUSDT", FundingRate: "-0.0001"}, now)
	require.NoError(t, err)
	assert.Equal(t, 8, snap.SettleIntervalHrs, "missing interval defaults to 8h")
	assert.Zero(t, snap.NextFundingTimeMs)

	// Unparseable interval and timestamp degrade to defaults, not errors.
	snap, err = snapshotFromRecord(fundRecord{
		Symbol: "ETHUSDT", FundingRate: "0.0001",
		FundingRateInterval: "eight", NextUpdate: "soon",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 8, snap.SettleIntervalHrs)
	assert.Zero(t, snap.NextFundingTimeMs)

	_, err = snapshotFromRecord(fundRecord{Symbol: "ETHUSDT", FundingRate: "bad"}, now)
	assert.Error(t, err, "an unparseable rate fails the record")
}

func TestFetchFunding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v2/mix/market/contracts":
			assert.Equal(t, "USDT-FUTURES", r.URL.Query().Get("productType"))
			_, _ = w.Write([]byte(`{"code":"00000","data":[
				{"symbol":"BTCUSDT","marginCoin":"USDT"},
				{"symbol":"ETHUSDT","marginCoin":"USDT"}
			]}`))
		case "/api/v2/mix/market/current-fund-rate":
			symbol := r.URL.Query().Get("symbol")
			_, _ = fmt.Fprintf(w, `{"code":"00000","data":[
				{"symbol":%q,"fundingRate":"0.0001","fundingRateInterval":"8"}
			]}`, symbol)
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(Config{BaseURL: server.URL, Timeout: 2 * time.Second, Concurrency: 2}, logger)

	snapshots, err := client.FetchFunding(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	symbols := map[string]bool{}
	for _, snap := range snapshots {
		symbols[snap.Symbol] = true
		assert.Equal(t, domain.VenueBitget, snap.Venue)
		assert.Equal(t, 0.0001, snap.FundingRateRaw)
	}
	assert.True(t, symbols["BTCUSDT"] && symbols["ETHUSDT"])
}

func TestFetchFundingSymbolLimit(t *testing.T) {
	var rateCalls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v2/mix/market/contracts":
			_, _ = w.Write([]byte(`{"code":"00000","data":[
				{"symbol":"BTCUSDT","marginCoin":"USDT"},
				{"symbol":"ETHUSDT","marginCoin":"USDT"},
				{"symbol":"SOLUSDT","marginCoin":"USDT"}
			]}`))
		case "/api/v2/mix/market/current-fund-rate":
			rateCalls++
			_, _ = w.Write([]byte(`{"code":"00000","data":[{"symbol":"BTCUSDT","fundingRate":"0.0001"}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := NewClient(Config{BaseURL: server.URL, SymbolLimit: 1, Concurrency: 1}, logger)

	snapshots, err := client.FetchFunding(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshots, 1)
	assert.Equal(t, 1, rateCalls, "the limit bounds the fan-out")
}
