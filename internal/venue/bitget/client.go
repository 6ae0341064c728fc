// Package bitget fetches funding data from the Bitget mix-futures API.
//
// Bitget has no bulk funding endpoint, so each cycle lists the contracts for
// the configured product type and then fans out one current-fund-rate request
// per contract under a concurrency bound. Both the listing and the rate fetch
// try the v2 endpoint first and fall back to the v1 variant.
package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/semaphore"

	"github.com/py361828925-design/arb-bot/internal/domain"
)

const defaultBaseURL = "https://api.bitget.com"

var contractPaths = []string{
	"/api/v2/mix/market/contracts",
	"/api/mix/v1/market/contracts",
}

// fundingEndpoint pairs a path with whether it accepts the marginCoin param.
type fundingEndpoint struct {
	path           string
	withMarginCoin bool
}

var fundingEndpoints = []fundingEndpoint{
	{path: "/api/v2/mix/market/current-fund-rate", withMarginCoin: true},
	{path: "/api/mix/v1/market/currentFundRate", withMarginCoin: false},
}

// Config holds the Bitget client settings.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	ProductType string // default USDT-FUTURES, upper-cased before use
	SymbolLimit int    // 0 means unlimited
	Concurrency int    // per-contract fan-out bound, default 5
}

// Client fetches funding rates contract by contract.
type Client struct {
	http        *resty.Client
	logger      *slog.Logger
	productType string
	symbolLimit int
	concurrency int64
}

// NewClient creates a Bitget mix-futures REST client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	productType := strings.ToUpper(cfg.ProductType)
	if productType == "" {
		productType = "USDT-FUTURES"
	}
	concurrency := int64(cfg.Concurrency)
	if concurrency < 1 {
		concurrency = 5
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:        httpClient,
		logger:      logger.With(slog.String("component", "bitget")),
		productType: productType,
		symbolLimit: cfg.SymbolLimit,
		concurrency: concurrency,
	}
}

// contractInfo is one entry of the contracts listing.
type contractInfo struct {
	Symbol     string `json:"symbol"`
	MarginCoin string `json:"marginCoin"`
	QuoteCoin  string `json:"quoteCoin"`
}

// envelope is the common Bitget response wrapper. data varies by endpoint:
// a list for the v2 contracts and fund-rate responses, a dict holding a
// nested list for the v1 fund-rate response.
type envelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// FetchFunding lists contracts and fans out one funding-rate request per
// contract. Per-contract failures are logged and skipped.
func (c *Client) FetchFunding(ctx context.Context) ([]domain.FundingSnapshot, error) {
	contracts, err := c.fetchContracts(ctx)
	if err != nil {
		return nil, err
	}
	if len(contracts) == 0 {
		return nil, nil
	}
	if c.symbolLimit > 0 && len(contracts) > c.symbolLimit {
		contracts = contracts[:c.symbolLimit]
	}

	marginBySymbol := make(map[string]string, len(contracts))
	for _, contract := range contracts {
		coin := contract.MarginCoin
		if coin == "" {
			coin = contract.QuoteCoin
		}
		if contract.Symbol != "" && coin != "" {
			marginBySymbol[contract.Symbol] = coin
		}
	}

	sem := semaphore.NewWeighted(c.concurrency)
	var (
		mu        sync.Mutex
		wg        sync.WaitGroup
		snapshots []domain.FundingSnapshot
	)

	for _, contract := range contracts {
		symbol := contract.Symbol
		if symbol == "" {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			snap, err := c.fetchOne(ctx, symbol, marginBySymbol[symbol])
			if err != nil {
				c.logger.DebugContext(ctx, "skip bitget contract",
					slog.String("symbol", symbol), slog.Any("error", err))
				return
			}
			mu.Lock()
			snapshots = append(snapshots, snap)
			mu.Unlock()
		}()
	}
	wg.Wait()

	c.logger.InfoContext(ctx, "fetched bitget funding entries",
		slog.Int("count", len(snapshots)))
	return snapshots, nil
}

// fetchContracts tries the v2 listing first, then v1. A 400/404 moves on to
// the next variant; other failures are logged and also fall through so one
// bad endpoint never kills the cycle.
func (c *Client) fetchContracts(ctx context.Context) ([]contractInfo, error) {
	var lastErr error
	for _, path := range contractPaths {
		var env envelope
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("productType", c.productType).
			SetResult(&env).
			Get(path)
		if err != nil {
			lastErr = fmt.Errorf("bitget: fetch contracts via %s: %w", path, err)
			c.logger.WarnContext(ctx, "bitget contracts fetch failed",
				slog.String("path", path), slog.Any("error", err))
			continue
		}
		if resp.StatusCode() == http.StatusBadRequest || resp.StatusCode() == http.StatusNotFound {
			c.logger.WarnContext(ctx, "bitget contract endpoint unavailable",
				slog.String("path", path), slog.Int("status", resp.StatusCode()))
			continue
		}
		if resp.StatusCode() != http.StatusOK {
			lastErr = fmt.Errorf("bitget: fetch contracts via %s: status %d: %s",
				path, resp.StatusCode(), resp.String())
			continue
		}

		contracts, err := decodeContracts(env.Data)
		if err != nil {
			lastErr = fmt.Errorf("bitget: decode contracts via %s: %w", path, err)
			continue
		}
		c.logger.InfoContext(ctx, "fetched bitget contracts",
			slog.String("path", path), slog.Int("count", len(contracts)))
		return contracts, nil
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, nil
}

// decodeContracts handles both listing shapes: a bare array and an object
// with a "symbols" array.
func decodeContracts(data json.RawMessage) ([]contractInfo, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var contracts []contractInfo
	if err := json.Unmarshal(data, &contracts); err == nil {
		return contracts, nil
	}
	var wrapped struct {
		Symbols []contractInfo `json:"symbols"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, err
	}
	return wrapped.Symbols, nil
}

// fundRecord is one funding-rate record, shared by the v2 and v1 shapes.
// Rates and timestamps arrive as strings.
type fundRecord struct {
	Symbol              string `json:"symbol"`
	FundingRate         string `json:"fundingRate"`
	FundingRateInterval string `json:"fundingRateInterval"`
	NextUpdate          string `json:"nextUpdate"`
}

// fetchOne tries each funding endpoint for one contract and maps the first
// usable record into a snapshot.
func (c *Client) fetchOne(ctx context.Context, contractSymbol, marginCoin string) (domain.FundingSnapshot, error) {
	if marginCoin == "" {
		marginCoin = "USDT"
	}
	// The rate endpoints want the bare symbol; the listing may carry a
	// product suffix such as BTCUSDT_UMCBL.
	querySymbol, _, _ := strings.Cut(contractSymbol, "_")

	var lastErr error
	for _, endpoint := range fundingEndpoints {
		req := c.http.R().
			SetContext(ctx).
			SetQueryParam("symbol", querySymbol).
			SetQueryParam("productType", c.productType)
		if endpoint.withMarginCoin {
			req.SetQueryParam("marginCoin", marginCoin)
		}

		var env envelope
		resp, err := req.SetResult(&env).Get(endpoint.path)
		if err != nil {
			lastErr = fmt.Errorf("request via %s: %w", endpoint.path, err)
			continue
		}
		if resp.StatusCode() != http.StatusOK {
			lastErr = fmt.Errorf("status %d via %s", resp.StatusCode(), endpoint.path)
			continue
		}

		record, ok := decodeFundRecord(env.Data)
		if !ok {
			lastErr = fmt.Errorf("empty data via %s", endpoint.path)
			continue
		}
		if record.Symbol == "" {
			record.Symbol = contractSymbol
		}
		return snapshotFromRecord(record, time.Now().UTC())
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no funding endpoints configured")
	}
	return domain.FundingSnapshot{}, lastErr
}

// decodeFundRecord extracts the first record from any of the response
// shapes: a bare list (v2), an object with a nested "data" or "list" array
// (v1), or a single object.
func decodeFundRecord(data json.RawMessage) (fundRecord, bool) {
	if len(data) == 0 || string(data) == "null" {
		return fundRecord{}, false
	}

	var list []fundRecord
	if err := json.Unmarshal(data, &list); err == nil {
		if len(list) == 0 {
			return fundRecord{}, false
		}
		return list[0], true
	}

	var nested struct {
		Data []fundRecord `json:"data"`
		List []fundRecord `json:"list"`
	}
	if err := json.Unmarshal(data, &nested); err == nil {
		if len(nested.Data) > 0 {
			return nested.Data[0], true
		}
		if len(nested.List) > 0 {
			return nested.List[0], true
		}
	}

	var single fundRecord
	if err := json.Unmarshal(data, &single); err == nil && single.FundingRate != "" {
		return single, true
	}
	return fundRecord{}, false
}

func snapshotFromRecord(record fundRecord, now time.Time) (domain.FundingSnapshot, error) {
	rate, err := strconv.ParseFloat(record.FundingRate, 64)
	if err != nil {
		return domain.FundingSnapshot{}, fmt.Errorf("parse fundingRate %q: %w", record.FundingRate, err)
	}

	hours := 8
	if record.FundingRateInterval != "" {
		if n, err := strconv.Atoi(record.FundingRateInterval); err == nil && n > 0 {
			hours = n
		}
	}

	var nextMs int64
	if record.NextUpdate != "" {
		if n, err := strconv.ParseInt(record.NextUpdate, 10, 64); err == nil {
			nextMs = n
		}
	}

	return domain.FundingSnapshot{
		Venue:             domain.VenueBitget,
		Symbol:            NormalizeSymbol(record.Symbol),
		FundingRateRaw:    rate,
		SettleIntervalHrs: hours,
		NextFundingTimeMs: nextMs,
		Instrument:        record.Symbol,
		CapturedAtMs:      now.UnixMilli(),
	}, nil
}

// NormalizeSymbol strips the _UMCBL/_DMCBL product suffixes so symbols line
// up with the other venue.
func NormalizeSymbol(symbol string) string {
	if strings.HasSuffix(symbol, "_UMCBL") || strings.HasSuffix(symbol, "_DMCBL") {
		base, _, _ := strings.Cut(symbol, "_")
		return base
	}
	return symbol
}
