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

// PositionStore implements domain.PositionStore using PostgreSQL.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const groupSelectCols = `g.id, g.group_id, g.symbol, g.status, g.long_venue, g.short_venue,
	g.leverage, g.margin_per_leg, g.notional_per_leg, g.funding_diff, g.expected_rate8h,
	g.realized_pnl, g.simulated, g.opened_at, g.closed_at, g.close_reason,
	g.created_at, g.updated_at`

func scanGroup(row pgx.Row) (domain.PositionGroup, error) {
	var g domain.PositionGroup
	var status string
	err := row.Scan(
		&g.ID, &g.GroupID, &g.Symbol, &status, &g.LongVenue, &g.ShortVenue,
		&g.Leverage, &g.MarginPerLeg, &g.NotionalPerLeg, &g.FundingDiff, &g.ExpectedRate8h,
		&g.RealizedPnL, &g.Simulated, &g.OpenedAt, &g.ClosedAt, &g.CloseReason,
		&g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		return domain.PositionGroup{}, err
	}
	g.Status = domain.GroupStatus(status)
	return g, nil
}

// OpenGroup admits a new position group inside one transaction. It enforces
// group_id idempotency, the global open cap, and the per-symbol duplicate
// cap, then inserts the group, both legs, and the OPEN event together.
func (s *PositionStore) OpenGroup(ctx context.Context, group domain.PositionGroup, limits domain.RiskLimits) error {
	if len(group.Legs) != 2 {
		return fmt.Errorf("postgres: open group %s: want 2 legs, got %d", group.GroupID, len(group.Legs))
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin open group: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM position_groups WHERE group_id = $1)",
		group.GroupID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("postgres: check group %s: %w", group.GroupID, err)
	}
	if exists {
		return domain.ErrAlreadyExists
	}

	var openCount int64
	if err := tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM position_groups WHERE status = 'OPEN'",
	).Scan(&openCount); err != nil {
		return fmt.Errorf("postgres: count open groups: %w", err)
	}
	if openCount >= int64(limits.GroupMax) {
		return fmt.Errorf("group_max %d reached: %w", limits.GroupMax, domain.ErrDeferred)
	}

	var symbolCount int64
	if err := tx.QueryRow(ctx,
		"SELECT COUNT(*) FROM position_groups WHERE status = 'OPEN' AND symbol = $1",
		group.Symbol,
	).Scan(&symbolCount); err != nil {
		return fmt.Errorf("postgres: count open groups for %s: %w", group.Symbol, err)
	}
	if symbolCount >= int64(limits.DuplicateMax) {
		return fmt.Errorf("duplicate_max %d reached for %s: %w", limits.DuplicateMax, group.Symbol, domain.ErrDeferred)
	}

	var groupRowID int64
	if err := tx.QueryRow(ctx, `
		INSERT INTO position_groups (
			group_id, symbol, status, long_venue, short_venue,
			leverage, margin_per_leg, notional_per_leg,
			funding_diff, expected_rate8h, simulated, opened_at
		) VALUES ($1, $2, 'OPEN', $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		group.GroupID, group.Symbol, group.LongVenue, group.ShortVenue,
		group.Leverage, group.MarginPerLeg, group.NotionalPerLeg,
		group.FundingDiff, group.ExpectedRate8h, group.Simulated, group.OpenedAt,
	).Scan(&groupRowID); err != nil {
		return fmt.Errorf("postgres: insert group %s: %w", group.GroupID, err)
	}

	for _, leg := range group.Legs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO position_legs (
				group_id, venue, side, quantity, entry_price,
				margin, notional, fee_rate, status, opened_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'OPEN', $9)`,
			groupRowID, leg.Venue, string(leg.Side), leg.Quantity, leg.EntryPrice,
			leg.Margin, leg.Notional, leg.FeeRate, group.OpenedAt,
		); err != nil {
			return fmt.Errorf("postgres: insert %s leg for %s: %w", leg.Side, group.GroupID, err)
		}
	}

	zero := 0.0
	event := domain.PositionEvent{
		GroupID:     group.GroupID,
		Symbol:      group.Symbol,
		EventType:   domain.EventTypeOpen,
		RealizedPnL: &zero,
		Data: map[string]any{
			"notional_per_leg": group.NotionalPerLeg,
			"leverage":         group.Leverage,
		},
	}
	if long := group.LongLeg(); long != nil {
		event.Data["entry_price_long"] = long.EntryPrice
	}
	if short := group.ShortLeg(); short != nil {
		event.Data["entry_price_short"] = short.EntryPrice
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("postgres: insert OPEN event for %s: %w", group.GroupID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit open group %s: %w", group.GroupID, err)
	}
	return nil
}

// ListOpenWithLegs loads all OPEN groups and their legs in one query.
func (s *PositionStore) ListOpenWithLegs(ctx context.Context) ([]domain.PositionGroup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+groupSelectCols+`,
			l.id, l.group_id, l.venue, l.side, l.quantity, l.entry_price, l.exit_price,
			l.margin, l.notional, l.fee_rate, l.status, l.opened_at, l.closed_at, l.pnl
		FROM position_groups g
		LEFT JOIN position_legs l ON l.group_id = g.id
		WHERE g.status = 'OPEN'
		ORDER BY g.opened_at, l.id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open groups: %w", err)
	}
	defer rows.Close()

	var (
		groups []domain.PositionGroup
		index  = map[int64]int{}
	)
	for rows.Next() {
		var g domain.PositionGroup
		var gStatus string
		var (
			legID      *int64
			legGroupID *int64
			venue      *string
			side       *string
			quantity   *float64
			entryPrice *float64
			exitPrice  *float64
			margin     *float64
			notional   *float64
			feeRate    *float64
			legStatus  *string
			openedAt   *time.Time
			closedAt   *time.Time
			pnl        *float64
		)

		if err := rows.Scan(
			&g.ID, &g.GroupID, &g.Symbol, &gStatus, &g.LongVenue, &g.ShortVenue,
			&g.Leverage, &g.MarginPerLeg, &g.NotionalPerLeg, &g.FundingDiff, &g.ExpectedRate8h,
			&g.RealizedPnL, &g.Simulated, &g.OpenedAt, &g.ClosedAt, &g.CloseReason,
			&g.CreatedAt, &g.UpdatedAt,
			&legID, &legGroupID, &venue, &side, &quantity, &entryPrice, &exitPrice,
			&margin, &notional, &feeRate, &legStatus, &openedAt, &closedAt, &pnl,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan open group row: %w", err)
		}
		g.Status = domain.GroupStatus(gStatus)

		pos, seen := index[g.ID]
		if !seen {
			groups = append(groups, g)
			pos = len(groups) - 1
			index[g.ID] = pos
		}

		if legID != nil {
			leg := domain.PositionLeg{
				ID:         *legID,
				GroupID:    *legGroupID,
				Venue:      *venue,
				Side:       domain.LegSide(*side),
				Quantity:   *quantity,
				EntryPrice: *entryPrice,
				ExitPrice:  exitPrice,
				Margin:     *margin,
				Notional:   *notional,
				FeeRate:    *feeRate,
				Status:     domain.GroupStatus(*legStatus),
				OpenedAt:   *openedAt,
				ClosedAt:   closedAt,
				PnL:        pnl,
			}
			groups[pos].Legs = append(groups[pos].Legs, leg)
		}
	}
	return groups, rows.Err()
}

// GetByGroupID retrieves a single group (without legs) by its group id.
func (s *PositionStore) GetByGroupID(ctx context.Context, groupID string) (domain.PositionGroup, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+groupSelectCols+` FROM position_groups g WHERE g.group_id = $1`, groupID)

	g, err := scanGroup(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.PositionGroup{}, domain.ErrNotFound
		}
		return domain.PositionGroup{}, fmt.Errorf("postgres: get group %s: %w", groupID, err)
	}
	return g, nil
}

// CountOpen returns the number of OPEN groups.
func (s *PositionStore) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM position_groups WHERE status = 'OPEN'").Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count open groups: %w", err)
	}
	return n, nil
}

// CountOpenBySymbol returns the number of OPEN groups for one symbol.
func (s *PositionStore) CountOpenBySymbol(ctx context.Context, symbol string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM position_groups WHERE status = 'OPEN' AND symbol = $1",
		symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count open groups for %s: %w", symbol, err)
	}
	return n, nil
}

// CloseGroup marks the group and its legs CLOSED with their exit prices and
// pnl, and appends the CLOSE event, in one transaction. The caller supplies
// the fully evaluated group (realized pnl, funding diff, close reason).
func (s *PositionStore) CloseGroup(ctx context.Context, group domain.PositionGroup, event domain.PositionEvent) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin close group: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE position_groups SET
			status          = 'CLOSED',
			close_reason    = $2,
			closed_at       = $3,
			realized_pnl    = $4,
			expected_rate8h = $5,
			funding_diff    = $6,
			updated_at      = NOW()
		WHERE id = $1 AND status = 'OPEN'`,
		group.ID, group.CloseReason, group.ClosedAt,
		group.RealizedPnL, group.ExpectedRate8h, group.FundingDiff,
	)
	if err != nil {
		return fmt.Errorf("postgres: close group %s: %w", group.GroupID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	for _, leg := range group.Legs {
		if _, err := tx.Exec(ctx, `
			UPDATE position_legs SET
				status     = 'CLOSED',
				exit_price = $2,
				pnl        = $3,
				closed_at  = $4
			WHERE id = $1`,
			leg.ID, leg.ExitPrice, leg.PnL, leg.ClosedAt,
		); err != nil {
			return fmt.Errorf("postgres: close leg %d of %s: %w", leg.ID, group.GroupID, err)
		}
	}

	if err := insertEvent(ctx, tx, event); err != nil {
		return fmt.Errorf("postgres: insert CLOSE event for %s: %w", group.GroupID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit close group %s: %w", group.GroupID, err)
	}
	return nil
}

// insertEvent appends a position event inside the caller's transaction.
func insertEvent(ctx context.Context, tx pgx.Tx, event domain.PositionEvent) error {
	dataJSON, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("encode event data: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO position_events (group_id, symbol, event_type, logic_reason, realized_pnl, data)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		event.GroupID, event.Symbol, string(event.EventType), event.LogicReason, event.RealizedPnL, dataJSON,
	)
	return err
}

var _ domain.PositionStore = (*PositionStore)(nil)
