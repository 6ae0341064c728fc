// Package configsvc owns the versioned runtime configuration: bootstrap of
// the first profile, reads, and versioned updates fanned out over the bus.
package configsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/py361828925-design/arb-bot/internal/domain"
)

// UpdateRequest is a partial configuration change. Nil fields inherit their
// value from the latest profile, so operators can flip one switch without
// restating everything.
type UpdateRequest struct {
	Thresholds           *domain.Thresholds `json:"thresholds"`
	RiskLimits           *domain.RiskLimits `json:"risk_limits"`
	GlobalEnable         *bool              `json:"global_enable"`
	ScanIntervalSeconds  *float64           `json:"scan_interval_seconds"`
	CloseIntervalSeconds *float64           `json:"close_interval_seconds"`
	OpenIntervalSeconds  *float64           `json:"open_interval_seconds"`
	Operator             string             `json:"operator"`
	UpdatedBy            string             `json:"updated_by"`
}

// UnmarshalJSON decodes the threshold and risk-limit objects over the service
// defaults, so a partial payload like {"risk_limits":{"group_max":5}} keeps
// the default leverage, margin, and fees instead of zeroing them. An omitted
// or null object stays nil and inherits from the latest profile as usual.
func (r *UpdateRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		Thresholds           json.RawMessage `json:"thresholds"`
		RiskLimits           json.RawMessage `json:"risk_limits"`
		GlobalEnable         *bool           `json:"global_enable"`
		ScanIntervalSeconds  *float64        `json:"scan_interval_seconds"`
		CloseIntervalSeconds *float64        `json:"close_interval_seconds"`
		OpenIntervalSeconds  *float64        `json:"open_interval_seconds"`
		Operator             string          `json:"operator"`
		UpdatedBy            string          `json:"updated_by"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.GlobalEnable = raw.GlobalEnable
	r.ScanIntervalSeconds = raw.ScanIntervalSeconds
	r.CloseIntervalSeconds = raw.CloseIntervalSeconds
	r.OpenIntervalSeconds = raw.OpenIntervalSeconds
	r.Operator = raw.Operator
	r.UpdatedBy = raw.UpdatedBy
	r.Thresholds = nil
	r.RiskLimits = nil

	if present(raw.Thresholds) {
		th := domain.DefaultThresholds()
		if err := json.Unmarshal(raw.Thresholds, &th); err != nil {
			return err
		}
		r.Thresholds = &th
	}
	if present(raw.RiskLimits) {
		rl := domain.DefaultRiskLimits()
		if err := json.Unmarshal(raw.RiskLimits, &rl); err != nil {
			return err
		}
		r.RiskLimits = &rl
	}
	return nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

// operator resolves the acting operator name from either field.
func (r UpdateRequest) operator() string {
	for _, candidate := range []string{r.Operator, r.UpdatedBy} {
		if name := strings.TrimSpace(candidate); name != "" {
			return name
		}
	}
	return "api"
}

// Service exposes the configuration operations used by the HTTP layer and by
// startup wiring.
type Service struct {
	store  domain.ConfigStore
	bus    domain.SignalBus
	logger *slog.Logger
}

// New creates a config Service.
func New(store domain.ConfigStore, bus domain.SignalBus, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		bus:    bus,
		logger: logger.With(slog.String("component", "configsvc")),
	}
}

// Bootstrap ensures a version-1 profile exists, creating one from the
// defaults with an INITIALIZE audit entry when the table is empty. It
// returns the active profile either way.
func (s *Service) Bootstrap(ctx context.Context) (domain.ConfigProfile, error) {
	existing, err := s.store.GetLatest(ctx)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.ConfigProfile{}, fmt.Errorf("configsvc: bootstrap: %w", err)
	}

	profile := domain.ConfigProfile{
		Thresholds:           domain.DefaultThresholds(),
		RiskLimits:           domain.DefaultRiskLimits(),
		GlobalEnable:         true,
		ScanIntervalSeconds:  30,
		CloseIntervalSeconds: 10,
		OpenIntervalSeconds:  5,
	}
	created, err := s.store.Create(ctx, profile, "bootstrap", domain.AuditActionInitialize, auditDetail(profile))
	if err != nil {
		return domain.ConfigProfile{}, fmt.Errorf("configsvc: create initial profile: %w", err)
	}

	s.logger.InfoContext(ctx, "initial config profile created",
		slog.Int("version", created.Version))
	return created, nil
}

// GetCurrent returns the active (highest version) profile.
func (s *Service) GetCurrent(ctx context.Context) (domain.ConfigProfile, error) {
	return s.store.GetLatest(ctx)
}

// ListAudit returns recent audit entries, newest first.
func (s *Service) ListAudit(ctx context.Context, limit int) ([]domain.ConfigAuditLog, error) {
	return s.store.ListAudit(ctx, limit)
}

// Update creates the next profile version from the request merged over the
// latest profile, records an UPDATE audit entry, and publishes the new
// profile on the config channel. Publish failures are logged, not returned;
// the stored version is already authoritative and consumers fetch it on
// their next start.
func (s *Service) Update(ctx context.Context, req UpdateRequest) (domain.ConfigProfile, error) {
	base, err := s.store.GetLatest(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return domain.ConfigProfile{}, fmt.Errorf("configsvc: load latest profile: %w", err)
		}
		base = domain.ConfigProfile{
			Thresholds:           domain.DefaultThresholds(),
			RiskLimits:           domain.DefaultRiskLimits(),
			GlobalEnable:         true,
			ScanIntervalSeconds:  30,
			CloseIntervalSeconds: 10,
			OpenIntervalSeconds:  5,
		}
	}

	next := base
	if req.Thresholds != nil {
		next.Thresholds = *req.Thresholds
	}
	if req.RiskLimits != nil {
		next.RiskLimits = *req.RiskLimits
	}
	if req.GlobalEnable != nil {
		next.GlobalEnable = *req.GlobalEnable
	}
	if req.ScanIntervalSeconds != nil {
		next.ScanIntervalSeconds = *req.ScanIntervalSeconds
	}
	if req.CloseIntervalSeconds != nil {
		next.CloseIntervalSeconds = *req.CloseIntervalSeconds
	}
	if req.OpenIntervalSeconds != nil {
		next.OpenIntervalSeconds = *req.OpenIntervalSeconds
	}

	operator := req.operator()
	created, err := s.store.Create(ctx, next, operator, domain.AuditActionUpdate, auditDetail(next))
	if err != nil {
		return domain.ConfigProfile{}, fmt.Errorf("configsvc: create profile: %w", err)
	}

	s.logger.InfoContext(ctx, "config profile updated",
		slog.Int("version", created.Version),
		slog.String("operator", operator),
		slog.Bool("global_enable", created.GlobalEnable))

	s.publish(ctx, created)
	return created, nil
}

// publish fans the profile out to running stages and mirrors the audit
// notification for observers.
func (s *Service) publish(ctx context.Context, profile domain.ConfigProfile) {
	payload, err := json.Marshal(profile)
	if err != nil {
		s.logger.ErrorContext(ctx, "encode profile for publish failed", slog.Any("error", err))
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelConfig, payload); err != nil {
		s.logger.WarnContext(ctx, "publish config update failed", slog.Any("error", err))
	}

	audit, err := json.Marshal(map[string]any{
		"version":    profile.Version,
		"created_by": profile.CreatedBy,
		"action":     domain.AuditActionUpdate,
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelConfigAudit, audit); err != nil {
		s.logger.WarnContext(ctx, "publish config audit failed", slog.Any("error", err))
	}
}

func auditDetail(p domain.ConfigProfile) map[string]any {
	return map[string]any{
		"thresholds":    p.Thresholds,
		"risk_limits":   p.RiskLimits,
		"global_enable": p.GlobalEnable,
	}
}
