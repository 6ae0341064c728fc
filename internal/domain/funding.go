// Package domain defines the core data model of the funding-rate arbitrage
// pipeline: funding snapshots, opportunities, position groups, configuration
// profiles, and the store/bus interfaces the stages communicate through.
package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Venue identifiers for the two perpetual-futures exchanges.
const (
	VenueBinance = "binance"
	VenueBitget  = "bitget"
)

// FundingSnapshot is an immutable funding-rate observation for one symbol on
// one venue, produced by the market feed on each poll cycle.
type FundingSnapshot struct {
	Venue             string
	Symbol            string // normalised, venue suffixes stripped
	FundingRateRaw    float64
	SettleIntervalHrs int // positive, defaults to 8
	NextFundingTimeMs int64
	Instrument        string // original venue symbol, may be empty
	MarkPrice         *float64
	IndexPrice        *float64
	CapturedAtMs      int64
}

// Rate8h normalises the raw funding rate to an 8-hour settlement interval.
func (s FundingSnapshot) Rate8h() float64 {
	hours := s.SettleIntervalHrs
	if hours <= 0 {
		hours = 8
	}
	return s.FundingRateRaw * (8.0 / float64(hours))
}

// SettleCountdownSecs returns the non-negative number of seconds until the
// next funding settlement relative to now.
func (s FundingSnapshot) SettleCountdownSecs(now time.Time) int64 {
	secs := (s.NextFundingTimeMs - now.UnixMilli()) / 1000
	if secs < 0 {
		return 0
	}
	return secs
}

// PreferredPrice returns the mark price, falling back to the index price.
// The second return is false when neither is present.
func (s FundingSnapshot) PreferredPrice() (float64, bool) {
	if s.MarkPrice != nil {
		return *s.MarkPrice, true
	}
	if s.IndexPrice != nil {
		return *s.IndexPrice, true
	}
	return 0, false
}

// streamNull is the literal used for absent optional fields on the wire.
// Consumers must treat both the literal and a missing field as null.
const streamNull = "None"

// StreamFields serialises the snapshot into flat stream fields, including the
// derived rate8h and settle_countdown_secs the publisher contract requires.
func (s FundingSnapshot) StreamFields(now time.Time) map[string]string {
	fields := map[string]string{
		"venue":                 s.Venue,
		"symbol":                s.Symbol,
		"funding_rate_raw":      strconv.FormatFloat(s.FundingRateRaw, 'f', -1, 64),
		"settle_interval_hours": strconv.Itoa(s.SettleIntervalHrs),
		"next_funding_time_ms":  strconv.FormatInt(s.NextFundingTimeMs, 10),
		"captured_at_ms":        strconv.FormatInt(s.CapturedAtMs, 10),
		"rate8h":                strconv.FormatFloat(s.Rate8h(), 'f', -1, 64),
		"settle_countdown_secs": strconv.FormatInt(s.SettleCountdownSecs(now), 10),
	}
	if s.Instrument != "" {
		fields["instrument"] = s.Instrument
	} else {
		fields["instrument"] = streamNull
	}
	if s.MarkPrice != nil {
		fields["mark_price"] = strconv.FormatFloat(*s.MarkPrice, 'f', -1, 64)
	} else {
		fields["mark_price"] = streamNull
	}
	if s.IndexPrice != nil {
		fields["index_price"] = strconv.FormatFloat(*s.IndexPrice, 'f', -1, 64)
	} else {
		fields["index_price"] = streamNull
	}
	return fields
}

// SnapshotFromStream reconstructs a FundingSnapshot from stream fields.
// Optional fields serialised as "None" or omitted entirely both parse as nil.
func SnapshotFromStream(fields map[string]string) (FundingSnapshot, error) {
	venue, ok := fields["venue"]
	if !ok || venue == "" {
		return FundingSnapshot{}, fmt.Errorf("snapshot fields: missing venue")
	}
	symbol, ok := fields["symbol"]
	if !ok || symbol == "" {
		return FundingSnapshot{}, fmt.Errorf("snapshot fields: missing symbol")
	}

	raw, err := parseStreamFloat(fields, "funding_rate_raw")
	if err != nil {
		return FundingSnapshot{}, err
	}
	if raw == nil {
		return FundingSnapshot{}, fmt.Errorf("snapshot fields: missing funding_rate_raw")
	}

	hours := 8
	if v := streamValue(fields, "settle_interval_hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return FundingSnapshot{}, fmt.Errorf("snapshot fields: settle_interval_hours %q: %w", v, err)
		}
		if n > 0 {
			hours = n
		}
	}

	nextMs, err := parseStreamInt(fields, "next_funding_time_ms")
	if err != nil {
		return FundingSnapshot{}, err
	}

	capturedMs, err := parseStreamInt(fields, "captured_at_ms")
	if err != nil {
		return FundingSnapshot{}, err
	}
	if capturedMs == 0 {
		capturedMs = time.Now().UTC().UnixMilli()
	}

	mark, err := parseStreamFloat(fields, "mark_price")
	if err != nil {
		return FundingSnapshot{}, err
	}
	index, err := parseStreamFloat(fields, "index_price")
	if err != nil {
		return FundingSnapshot{}, err
	}

	return FundingSnapshot{
		Venue:             venue,
		Symbol:            symbol,
		FundingRateRaw:    *raw,
		SettleIntervalHrs: hours,
		NextFundingTimeMs: nextMs,
		Instrument:        streamValue(fields, "instrument"),
		MarkPrice:         mark,
		IndexPrice:        index,
		CapturedAtMs:      capturedMs,
	}, nil
}

// streamValue returns the field value, mapping the "None" literal to "".
func streamValue(fields map[string]string, key string) string {
	v, ok := fields[key]
	if !ok || v == streamNull {
		return ""
	}
	return v
}

func parseStreamFloat(fields map[string]string, key string) (*float64, error) {
	v := streamValue(fields, key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("snapshot fields: %s %q: %w", key, v, err)
	}
	return &f, nil
}

func parseStreamInt(fields map[string]string, key string) (int64, error) {
	v := streamValue(fields, key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("snapshot fields: %s %q: %w", key, v, err)
	}
	return n, nil
}

// Float64Ptr is a convenience for constructing optional prices.
func Float64Ptr(v float64) *float64 { return &v }
