package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/py361828925-design/arb-bot/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

const eventSelectCols = `id, group_id, symbol, event_type, logic_reason, realized_pnl, data, created_at`

func scanEventRows(rows pgx.Rows) ([]domain.PositionEvent, error) {
	defer rows.Close()

	var events []domain.PositionEvent
	for rows.Next() {
		var e domain.PositionEvent
		var eventType string
		var dataJSON []byte
		if err := rows.Scan(
			&e.ID, &e.GroupID, &e.Symbol, &eventType,
			&e.LogicReason, &e.RealizedPnL, &dataJSON, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		e.EventType = domain.EventType(eventType)
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &e.Data); err != nil {
				return nil, fmt.Errorf("postgres: decode event data: %w", err)
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Insert appends a position event outside any group transaction.
func (s *EventStore) Insert(ctx context.Context, event domain.PositionEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("postgres: encode event data: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO position_events (group_id, symbol, event_type, logic_reason, realized_pnl, data)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.GroupID, event.Symbol, string(event.EventType),
		event.LogicReason, event.RealizedPnL, dataJSON,
	); err != nil {
		return fmt.Errorf("postgres: insert event for %s: %w", event.GroupID, err)
	}
	return nil
}

// ListRecent returns the newest events first, capped at limit.
func (s *EventStore) ListRecent(ctx context.Context, limit int) ([]domain.PositionEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM position_events
		 ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent events: %w", err)
	}
	return scanEventRows(rows)
}

// ListBetween returns events with start <= created_at < end, oldest first.
func (s *EventStore) ListBetween(ctx context.Context, start, end time.Time) ([]domain.PositionEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM position_events
		 WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at, id`, start, end)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events between %s and %s: %w",
			start.Format(time.RFC3339), end.Format(time.RFC3339), err)
	}
	return scanEventRows(rows)
}

// ListAll returns every event, oldest first. Used by cumulative totals.
func (s *EventStore) ListAll(ctx context.Context) ([]domain.PositionEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventSelectCols+` FROM position_events ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list all events: %w", err)
	}
	return scanEventRows(rows)
}

var _ domain.EventStore = (*EventStore)(nil)
