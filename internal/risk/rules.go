// Package risk evaluates open position groups against the closure rules and
// closes the ones that trigger.
package risk

import (
	"math"
	"time"

	"github.com/py361828925-design/arb-bot/internal/domain"
)

// Closure reasons in priority order. Catastrophe and stop-loss outrank
// take-profit, which outranks the partial stop, which outranks convergence.
const (
	ReasonCatastrophe = "logic5" // a single leg at or past -90%
	ReasonStopLoss    = "logic4" // total return at or below -gg
	ReasonTakeProfit  = "logic3" // total return at or above ff
	ReasonPartialStop = "logic2" // worst leg at or below -hh while total holds ee
	ReasonConverged   = "logic1" // differential converged or reversed, or settlement imminent
)

// singleLegFloor is the per-leg return that counts as catastrophic
// regardless of configuration.
const singleLegFloor = -0.9

// Decision is a fully evaluated close trigger with the inputs that produced
// it, so the caller can persist prices and returns without recomputing.
type Decision struct {
	Reason           string
	LongMark         float64
	ShortMark        float64
	LongReturn       float64
	ShortReturn      float64
	TotalReturn      float64
	WorstReturn      float64
	CurrentDiff      float64
	CountdownMinutes float64
}

// EvaluateGroup applies the closure rules to one open group given the newest
// snapshot for each leg. It returns false when no rule triggers or when the
// group cannot be priced this tick (missing leg, missing snapshot price).
func EvaluateGroup(group domain.PositionGroup, longSnap, shortSnap domain.FundingSnapshot, th domain.Thresholds, now time.Time) (Decision, bool) {
	longLeg := group.LongLeg()
	shortLeg := group.ShortLeg()
	if longLeg == nil || shortLeg == nil {
		return Decision{}, false
	}

	longMark, ok := longSnap.PreferredPrice()
	if !ok {
		return Decision{}, false
	}
	shortMark, ok := shortSnap.PreferredPrice()
	if !ok {
		return Decision{}, false
	}

	longEntry := longLeg.EntryPrice
	if longEntry == 0 {
		longEntry = 1.0
	}
	shortEntry := shortLeg.EntryPrice
	if shortEntry == 0 {
		shortEntry = 1.0
	}

	longReturn := (longMark - longEntry) / longEntry
	shortReturn := (shortEntry - shortMark) / shortEntry
	totalReturn := longReturn + shortReturn
	worstReturn := math.Min(longReturn, shortReturn)

	currentDiff := longSnap.Rate8h() - shortSnap.Rate8h()
	diffReversed := group.FundingDiff*currentDiff < 0

	countdownSecs := longSnap.SettleCountdownSecs(now)
	if s := shortSnap.SettleCountdownSecs(now); s < countdownSecs {
		countdownSecs = s
	}
	countdownMinutes := float64(countdownSecs) / 60

	var reason string
	switch {
	case longReturn <= singleLegFloor || shortReturn <= singleLegFloor:
		reason = ReasonCatastrophe
	case totalReturn <= -th.GG:
		reason = ReasonStopLoss
	case totalReturn >= th.FF:
		reason = ReasonTakeProfit
	case worstReturn <= -th.HH && totalReturn >= th.EE:
		reason = ReasonPartialStop
	default:
		diffOK := math.Abs(currentDiff) <= th.BB
		if ((diffOK || diffReversed) && totalReturn >= th.CC) ||
			(countdownMinutes <= th.DD && diffOK) {
			reason = ReasonConverged
		}
	}

	if reason == "" {
		return Decision{}, false
	}

	return Decision{
		Reason:           reason,
		LongMark:         longMark,
		ShortMark:        shortMark,
		LongReturn:       longReturn,
		ShortReturn:      shortReturn,
		TotalReturn:      totalReturn,
		WorstReturn:      worstReturn,
		CurrentDiff:      currentDiff,
		CountdownMinutes: countdownMinutes,
	}, true
}
