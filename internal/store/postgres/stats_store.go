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

// StatsStore implements domain.StatsStore using PostgreSQL.
type StatsStore struct {
	pool *pgxpool.Pool
}

// NewStatsStore creates a StatsStore backed by the given connection pool.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

const statsSelectCols = `id, snapshot_date, total_open, total_close,
	logic1_amount, logic2_amount, logic3_amount, logic4_amount, logic5_amount,
	net_profit, raw_stats, created_at`

func scanStatsRow(row pgx.Row) (domain.StatsSnapshot, error) {
	var s domain.StatsSnapshot
	var rawJSON []byte
	err := row.Scan(
		&s.ID, &s.SnapshotDate, &s.TotalOpen, &s.TotalClose,
		&s.Logic1Amount, &s.Logic2Amount, &s.Logic3Amount, &s.Logic4Amount, &s.Logic5Amount,
		&s.NetProfit, &rawJSON, &s.CreatedAt,
	)
	if err != nil {
		return domain.StatsSnapshot{}, err
	}
	if len(rawJSON) > 0 {
		if err := json.Unmarshal(rawJSON, &s.RawStats); err != nil {
			return domain.StatsSnapshot{}, fmt.Errorf("decode raw_stats: %w", err)
		}
	}
	return s, nil
}

// Upsert writes the snapshot for its date, replacing an existing row so the
// midnight archiver can safely re-run.
func (s *StatsStore) Upsert(ctx context.Context, snap domain.StatsSnapshot) error {
	rawJSON, err := json.Marshal(snap.RawStats)
	if err != nil {
		return fmt.Errorf("postgres: encode raw_stats: %w", err)
	}
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO stats_snapshots (
			snapshot_date, total_open, total_close,
			logic1_amount, logic2_amount, logic3_amount, logic4_amount, logic5_amount,
			net_profit, raw_stats
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (snapshot_date) DO UPDATE SET
			total_open    = EXCLUDED.total_open,
			total_close   = EXCLUDED.total_close,
			logic1_amount = EXCLUDED.logic1_amount,
			logic2_amount = EXCLUDED.logic2_amount,
			logic3_amount = EXCLUDED.logic3_amount,
			logic4_amount = EXCLUDED.logic4_amount,
			logic5_amount = EXCLUDED.logic5_amount,
			net_profit    = EXCLUDED.net_profit,
			raw_stats     = EXCLUDED.raw_stats`,
		snap.SnapshotDate, snap.TotalOpen, snap.TotalClose,
		snap.Logic1Amount, snap.Logic2Amount, snap.Logic3Amount, snap.Logic4Amount, snap.Logic5Amount,
		snap.NetProfit, rawJSON,
	); err != nil {
		return fmt.Errorf("postgres: upsert stats snapshot %s: %w",
			snap.SnapshotDate.Format("2006-01-02"), err)
	}
	return nil
}

// GetByDate returns the snapshot for one UTC calendar day, or ErrNotFound.
func (s *StatsStore) GetByDate(ctx context.Context, date time.Time) (domain.StatsSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+statsSelectCols+` FROM stats_snapshots WHERE snapshot_date = $1`,
		date)

	snap, err := scanStatsRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.StatsSnapshot{}, domain.ErrNotFound
		}
		return domain.StatsSnapshot{}, fmt.Errorf("postgres: get stats snapshot %s: %w",
			date.Format("2006-01-02"), err)
	}
	return snap, nil
}

// ListRecent returns the newest snapshots first, capped at limit.
func (s *StatsStore) ListRecent(ctx context.Context, limit int) ([]domain.StatsSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+statsSelectCols+` FROM stats_snapshots
		 ORDER BY snapshot_date DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stats snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []domain.StatsSnapshot
	for rows.Next() {
		snap, err := scanStatsRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan stats snapshot: %w", err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

var _ domain.StatsStore = (*StatsStore)(nil)
