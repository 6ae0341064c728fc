package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Opportunity is a proposal to open a hedged position group, emitted by the
// strategy engine when the cross-venue funding differential crosses the
// configured threshold.
type Opportunity struct {
	GroupID        string
	Symbol         string
	LongVenue      string // the venue with the lower rate8h
	ShortVenue     string
	FundingDiff    float64 // signed, in 8h-normalised space
	ExpectedRate8h float64
	CreatedAt      time.Time
}

// NewOpportunity builds an opportunity with the deterministic group id
// <symbol>-<YYYYMMDDHHMMSS> at UTC creation time. Two opportunities for the
// same symbol within the same UTC second intentionally collide; the unique
// constraint on position_groups.group_id collapses them downstream.
func NewOpportunity(symbol, longVenue, shortVenue string, fundingDiff, expectedRate8h float64, now time.Time) Opportunity {
	now = now.UTC()
	return Opportunity{
		GroupID:        fmt.Sprintf("%s-%s", symbol, now.Format("20060102150405")),
		Symbol:         symbol,
		LongVenue:      longVenue,
		ShortVenue:     shortVenue,
		FundingDiff:    fundingDiff,
		ExpectedRate8h: expectedRate8h,
		CreatedAt:      now,
	}
}

// StreamFields serialises the opportunity for the opportunities stream.
func (o Opportunity) StreamFields() map[string]string {
	return map[string]string{
		"group_id":        o.GroupID,
		"symbol":          o.Symbol,
		"long_venue":      o.LongVenue,
		"short_venue":     o.ShortVenue,
		"funding_diff":    strconv.FormatFloat(o.FundingDiff, 'f', -1, 64),
		"expected_rate8h": strconv.FormatFloat(o.ExpectedRate8h, 'f', -1, 64),
		"created_at":      o.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// OpportunityFromStream reconstructs an Opportunity from stream fields.
func OpportunityFromStream(fields map[string]string) (Opportunity, error) {
	var o Opportunity

	o.GroupID = fields["group_id"]
	o.Symbol = fields["symbol"]
	o.LongVenue = fields["long_venue"]
	o.ShortVenue = fields["short_venue"]
	if o.GroupID == "" || o.Symbol == "" || o.LongVenue == "" || o.ShortVenue == "" {
		return Opportunity{}, fmt.Errorf("opportunity fields: missing identity fields")
	}
	if o.LongVenue == o.ShortVenue {
		return Opportunity{}, fmt.Errorf("opportunity fields: long and short venue both %q", o.LongVenue)
	}

	diff, err := strconv.ParseFloat(fields["funding_diff"], 64)
	if err != nil {
		return Opportunity{}, fmt.Errorf("opportunity fields: funding_diff %q: %w", fields["funding_diff"], err)
	}
	o.FundingDiff = diff

	rate, err := strconv.ParseFloat(fields["expected_rate8h"], 64)
	if err != nil {
		return Opportunity{}, fmt.Errorf("opportunity fields: expected_rate8h %q: %w", fields["expected_rate8h"], err)
	}
	o.ExpectedRate8h = rate

	if v := fields["created_at"]; v != "" {
		ts, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return Opportunity{}, fmt.Errorf("opportunity fields: created_at %q: %w", v, err)
		}
		o.CreatedAt = ts
	}

	return o, nil
}
