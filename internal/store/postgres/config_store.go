package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/py361828925-design/arb-bot/internal/domain"
)

// ConfigStore implements domain.ConfigStore using PostgreSQL.
type ConfigStore struct {
	pool *pgxpool.Pool
}

// NewConfigStore creates a ConfigStore backed by the given connection pool.
func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

const profileSelectCols = `id, version, thresholds, risk_limits, global_enable,
	scan_interval_seconds, close_interval_seconds, open_interval_seconds,
	created_by, created_at`

func scanProfileRow(row pgx.Row) (domain.ConfigProfile, error) {
	var p domain.ConfigProfile
	var thresholdsJSON, riskLimitsJSON []byte

	err := row.Scan(
		&p.ID, &p.Version, &thresholdsJSON, &riskLimitsJSON, &p.GlobalEnable,
		&p.ScanIntervalSeconds, &p.CloseIntervalSeconds, &p.OpenIntervalSeconds,
		&p.CreatedBy, &p.CreatedAt,
	)
	if err != nil {
		return domain.ConfigProfile{}, err
	}

	if err := json.Unmarshal(thresholdsJSON, &p.Thresholds); err != nil {
		return domain.ConfigProfile{}, fmt.Errorf("decode thresholds: %w", err)
	}
	// Merge stored risk limits over the defaults so older rows gain fields
	// added after they were written.
	p.RiskLimits = domain.DefaultRiskLimits()
	if err := json.Unmarshal(riskLimitsJSON, &p.RiskLimits); err != nil {
		return domain.ConfigProfile{}, fmt.Errorf("decode risk_limits: %w", err)
	}
	return p, nil
}

// GetLatest returns the highest-version profile, or domain.ErrNotFound.
func (s *ConfigStore) GetLatest(ctx context.Context) (domain.ConfigProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileSelectCols+` FROM config_profiles
		 ORDER BY version DESC LIMIT 1`)

	p, err := scanProfileRow(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.ConfigProfile{}, domain.ErrNotFound
		}
		return domain.ConfigProfile{}, fmt.Errorf("postgres: get latest profile: %w", err)
	}
	return p, nil
}

// Create inserts the profile with version = max+1 (or 1 when the table is
// empty) together with an audit log row, in one transaction.
func (s *ConfigStore) Create(ctx context.Context, profile domain.ConfigProfile, operator, action string, detail map[string]any) (domain.ConfigProfile, error) {
	thresholdsJSON, err := json.Marshal(profile.Thresholds)
	if err != nil {
		return domain.ConfigProfile{}, fmt.Errorf("postgres: encode thresholds: %w", err)
	}
	riskLimitsJSON, err := json.Marshal(profile.RiskLimits)
	if err != nil {
		return domain.ConfigProfile{}, fmt.Errorf("postgres: encode risk_limits: %w", err)
	}
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return domain.ConfigProfile{}, fmt.Errorf("postgres: encode audit detail: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.ConfigProfile{}, fmt.Errorf("postgres: begin create profile: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO config_profiles (
			version, thresholds, risk_limits, global_enable,
			scan_interval_seconds, close_interval_seconds, open_interval_seconds,
			created_by
		)
		SELECT COALESCE(MAX(version), 0) + 1, $1, $2, $3, $4, $5, $6, $7
		FROM config_profiles
		RETURNING `+profileSelectCols,
		thresholdsJSON, riskLimitsJSON, profile.GlobalEnable,
		profile.ScanIntervalSeconds, profile.CloseIntervalSeconds, profile.OpenIntervalSeconds,
		operator,
	)

	created, err := scanProfileRow(row)
	if err != nil {
		return domain.ConfigProfile{}, fmt.Errorf("postgres: insert profile: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO config_audit_logs (version, operator, action, detail)
		VALUES ($1, $2, $3, $4)`,
		created.Version, operator, action, detailJSON,
	); err != nil {
		return domain.ConfigProfile{}, fmt.Errorf("postgres: insert audit log: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.ConfigProfile{}, fmt.Errorf("postgres: commit create profile: %w", err)
	}
	return created, nil
}

// ListAudit returns the most recent audit log entries, newest first.
func (s *ConfigStore) ListAudit(ctx context.Context, limit int) ([]domain.ConfigAuditLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, version, operator, action, detail, created_at
		FROM config_audit_logs
		ORDER BY created_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit logs: %w", err)
	}
	defer rows.Close()

	var entries []domain.ConfigAuditLog
	for rows.Next() {
		var e domain.ConfigAuditLog
		var detailJSON []byte
		if err := rows.Scan(&e.ID, &e.Version, &e.Operator, &e.Action, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit log: %w", err)
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: decode audit detail: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

var _ domain.ConfigStore = (*ConfigStore)(nil)
