package domain

import "time"

// StatsSnapshot is the archived daily aggregate, one row per UTC calendar day.
type StatsSnapshot struct {
	ID           int64
	SnapshotDate time.Time // date only, UTC midnight
	TotalOpen    float64
	TotalClose   float64
	Logic1Amount float64
	Logic2Amount float64
	Logic3Amount float64
	Logic4Amount float64
	Logic5Amount float64
	NetProfit    float64
	RawStats     map[string]any
	CreatedAt    time.Time
}
