package domain

import (
	"context"
	"time"
)

// ConfigStore persists versioned configuration profiles and their audit trail.
type ConfigStore interface {
	// GetLatest returns the highest-version profile, or ErrNotFound.
	GetLatest(ctx context.Context) (ConfigProfile, error)
	// Create inserts the profile with version = max+1 (or 1) together with an
	// audit log row, in one transaction, and returns the stored profile.
	Create(ctx context.Context, profile ConfigProfile, operator, action string, detail map[string]any) (ConfigProfile, error)
	// ListAudit returns the most recent audit log entries.
	ListAudit(ctx context.Context, limit int) ([]ConfigAuditLog, error)
}

// PositionStore persists position groups, their legs, and lifecycle events.
type PositionStore interface {
	// OpenGroup admits a new group inside one transaction: it returns
	// ErrAlreadyExists when group_id is taken (idempotency collision) and
	// ErrDeferred when group_max or duplicate_max is reached. On success the
	// group, both legs, and the OPEN event are committed together.
	OpenGroup(ctx context.Context, group PositionGroup, limits RiskLimits) error
	// ListOpenWithLegs loads all OPEN groups and their legs in one query.
	ListOpenWithLegs(ctx context.Context) ([]PositionGroup, error)
	GetByGroupID(ctx context.Context, groupID string) (PositionGroup, error)
	CountOpen(ctx context.Context) (int64, error)
	CountOpenBySymbol(ctx context.Context, symbol string) (int64, error)
	// CloseGroup marks the group and its legs CLOSED, records per-leg exit
	// prices and pnl, and appends the CLOSE event, in one transaction.
	CloseGroup(ctx context.Context, group PositionGroup, event PositionEvent) error
}

// EventStore reads the append-only position event log.
type EventStore interface {
	Insert(ctx context.Context, event PositionEvent) error
	ListRecent(ctx context.Context, limit int) ([]PositionEvent, error)
	// ListBetween returns events with start <= created_at < end.
	ListBetween(ctx context.Context, start, end time.Time) ([]PositionEvent, error)
	ListAll(ctx context.Context) ([]PositionEvent, error)
}

// StatsStore persists daily statistics snapshots keyed by snapshot_date.
type StatsStore interface {
	Upsert(ctx context.Context, snap StatsSnapshot) error
	GetByDate(ctx context.Context, date time.Time) (StatsSnapshot, error)
	ListRecent(ctx context.Context, limit int) ([]StatsSnapshot, error)
}
