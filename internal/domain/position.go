package domain

import "time"

// GroupStatus tracks whether a position group (or leg) is open or closed.
type GroupStatus string

const (
	GroupStatusOpen   GroupStatus = "OPEN"
	GroupStatusClosed GroupStatus = "CLOSED"
)

// LegSide is the direction of a single leg.
type LegSide string

const (
	LegSideLong  LegSide = "LONG"
	LegSideShort LegSide = "SHORT"
)

// PositionGroup is a hedged pair of legs on two venues treated as one
// simulated position. Unique on GroupID.
type PositionGroup struct {
	ID             int64
	GroupID        string
	Symbol         string
	Status         GroupStatus
	LongVenue      string
	ShortVenue     string
	Leverage       float64
	MarginPerLeg   float64
	NotionalPerLeg float64 // margin_per_leg * leverage
	FundingDiff    float64 // updated to the observed differential on close
	ExpectedRate8h float64
	RealizedPnL    float64
	Simulated      bool
	OpenedAt       time.Time
	ClosedAt       *time.Time
	CloseReason    *string
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Legs []PositionLeg
}

// LongLeg returns the LONG leg, or nil when absent.
func (g *PositionGroup) LongLeg() *PositionLeg { return g.legBySide(LegSideLong) }

// ShortLeg returns the SHORT leg, or nil when absent.
func (g *PositionGroup) ShortLeg() *PositionLeg { return g.legBySide(LegSideShort) }

func (g *PositionGroup) legBySide(side LegSide) *PositionLeg {
	for i := range g.Legs {
		if g.Legs[i].Side == side {
			return &g.Legs[i]
		}
	}
	return nil
}

// PositionLeg is one side of a position group.
type PositionLeg struct {
	ID         int64
	GroupID    int64 // FK to PositionGroup.ID
	Venue      string
	Side       LegSide
	Quantity   float64
	EntryPrice float64
	ExitPrice  *float64
	Margin     float64
	Notional   float64
	FeeRate    float64
	Status     GroupStatus
	OpenedAt   time.Time
	ClosedAt   *time.Time
	PnL        *float64
}

// EventType marks a position lifecycle transition.
type EventType string

const (
	EventTypeOpen  EventType = "OPEN"
	EventTypeClose EventType = "CLOSE"
)

// PositionEvent is an append-only audit record of OPEN/CLOSE transitions.
// Data carries a free-form payload (entry/exit prices, notional, returns).
type PositionEvent struct {
	ID          int64
	GroupID     string
	Symbol      string
	EventType   EventType
	LogicReason *string // logic1..logic5 for CLOSE events
	RealizedPnL *float64
	Data        map[string]any
	CreatedAt   time.Time
}
