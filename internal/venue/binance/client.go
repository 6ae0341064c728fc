// Package binance fetches funding data from the Binance USDT-M futures API.
package binance

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/py361828925-design/arb-bot/internal/domain"
)

const defaultBaseURL = "https://fapi.binance.com"

// premiumIndexItem is one entry of the bulk /fapi/v1/premiumIndex response.
// Numeric fields arrive as strings.
type premiumIndexItem struct {
	Symbol          string `json:"symbol"`
	MarkPrice       string `json:"markPrice"`
	IndexPrice      string `json:"indexPrice"`
	LastFundingRate string `json:"lastFundingRate"`
	NextFundingTime int64  `json:"nextFundingTime"`
}

// Client fetches premium-index funding data for all USDT-M perpetuals in one
// bulk call.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

// Config holds the Binance client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// NewClient creates a Binance futures REST client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   httpClient,
		logger: logger.With(slog.String("component", "binance")),
	}
}

// FetchFunding returns one snapshot per listed symbol. Entries that fail to
// parse are logged and skipped rather than failing the whole batch.
func (c *Client) FetchFunding(ctx context.Context) ([]domain.FundingSnapshot, error) {
	var items []premiumIndexItem
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&items).
		Get("/fapi/v1/premiumIndex")
	if err != nil {
		return nil, fmt.Errorf("binance: fetch premium index: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("binance: fetch premium index: status %d: %s",
			resp.StatusCode(), resp.String())
	}

	now := time.Now().UTC()
	snapshots := make([]domain.FundingSnapshot, 0, len(items))
	for _, item := range items {
		snap, err := snapshotFromItem(item, now)
		if err != nil {
			c.logger.WarnContext(ctx, "skip binance entry",
				slog.String("symbol", item.Symbol), slog.Any("error", err))
			continue
		}
		snapshots = append(snapshots, snap)
	}

	c.logger.InfoContext(ctx, "fetched binance funding entries",
		slog.Int("count", len(snapshots)))
	return snapshots, nil
}

func snapshotFromItem(item premiumIndexItem, now time.Time) (domain.FundingSnapshot, error) {
	if item.Symbol == "" {
		return domain.FundingSnapshot{}, fmt.Errorf("missing symbol")
	}
	rate, err := strconv.ParseFloat(item.LastFundingRate, 64)
	if err != nil {
		return domain.FundingSnapshot{}, fmt.Errorf("parse lastFundingRate %q: %w", item.LastFundingRate, err)
	}

	snap := domain.FundingSnapshot{
		Venue:             domain.VenueBinance,
		Symbol:            item.Symbol,
		FundingRateRaw:    rate,
		SettleIntervalHrs: 8,
		NextFundingTimeMs: item.NextFundingTime,
		Instrument:        item.Symbol,
		CapturedAtMs:      now.UnixMilli(),
	}
	if mark, err := strconv.ParseFloat(item.MarkPrice, 64); err == nil && item.MarkPrice != "" {
		snap.MarkPrice = domain.Float64Ptr(mark)
	}
	if index, err := strconv.ParseFloat(item.IndexPrice, 64); err == nil && item.IndexPrice != "" {
		snap.IndexPrice = domain.Float64Ptr(index)
	}
	return snap, nil
}
