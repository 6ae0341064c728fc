// Package runtimecfg holds the process-wide runtime configuration shared by
// every pipeline stage. The active state is swapped atomically as a whole, so
// a reader never observes thresholds from one version mixed with limits from
// another.
package runtimecfg

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/py361828925-design/arb-bot/internal/domain"
)

// State is one consistent view of the runtime configuration.
type State struct {
	Version              int
	Thresholds           domain.Thresholds
	RiskLimits           domain.RiskLimits
	GlobalEnable         bool
	ScanIntervalSeconds  float64
	CloseIntervalSeconds float64
	OpenIntervalSeconds  float64
}

// DefaultState returns the built-in defaults used until a profile arrives.
func DefaultState() State {
	return State{
		Version:              0,
		Thresholds:           domain.DefaultThresholds(),
		RiskLimits:           domain.DefaultRiskLimits(),
		GlobalEnable:         true,
		ScanIntervalSeconds:  30,
		CloseIntervalSeconds: 10,
		OpenIntervalSeconds:  5,
	}
}

// StateFromProfile converts a stored profile into runtime state.
func StateFromProfile(p domain.ConfigProfile) State {
	return State{
		Version:              p.Version,
		Thresholds:           p.Thresholds,
		RiskLimits:           p.RiskLimits,
		GlobalEnable:         p.GlobalEnable,
		ScanIntervalSeconds:  p.ScanIntervalSeconds,
		CloseIntervalSeconds: p.CloseIntervalSeconds,
		OpenIntervalSeconds:  p.OpenIntervalSeconds,
	}
}

// ScanInterval returns the market-feed poll interval.
func (s State) ScanInterval() time.Duration {
	return secondsToDuration(s.ScanIntervalSeconds, 30*time.Second)
}

// CloseInterval returns the risk-daemon evaluation tick.
func (s State) CloseInterval() time.Duration {
	return secondsToDuration(s.CloseIntervalSeconds, 10*time.Second)
}

// OpenInterval returns the gateway idle pause between empty polls.
func (s State) OpenInterval() time.Duration {
	return secondsToDuration(s.OpenIntervalSeconds, 5*time.Second)
}

func secondsToDuration(secs float64, fallback time.Duration) time.Duration {
	if secs <= 0 {
		return fallback
	}
	return time.Duration(secs * float64(time.Second))
}

// Manager owns the atomic state pointer. Readers call Current on their hot
// paths; writers serialise through a mutex and swap the whole struct.
type Manager struct {
	state  atomic.Pointer[State]
	mu     sync.Mutex
	logger *slog.Logger
}

// NewManager creates a Manager holding the defaults.
func NewManager(logger *slog.Logger) *Manager {
	m := &Manager{
		logger: logger.With(slog.String("component", "runtimecfg")),
	}
	initial := DefaultState()
	m.state.Store(&initial)
	return m
}

// Current returns the active state by value.
func (m *Manager) Current() State {
	return *m.state.Load()
}

// Apply installs a new state.
func (m *Manager) Apply(next State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Store(&next)
	m.logger.Info("runtime config applied",
		slog.Int("version", next.Version),
		slog.Bool("global_enable", next.GlobalEnable))
}

// ApplyProfile installs the state derived from a stored profile.
func (m *Manager) ApplyProfile(p domain.ConfigProfile) {
	m.Apply(StateFromProfile(p))
}

// LoadInitial fetches the current profile from the config service once at
// startup. Any failure leaves the defaults in place; the subscriber picks up
// the next published update.
func (m *Manager) LoadInitial(ctx context.Context, configServiceURL string, timeout time.Duration) {
	if configServiceURL == "" {
		m.logger.Info("no config service url, keeping default runtime config")
		return
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var profile domain.ConfigProfile
	resp, err := resty.New().
		SetBaseURL(configServiceURL).
		SetTimeout(timeout).
		R().
		SetContext(ctx).
		SetResult(&profile).
		Get("/config/current")
	if err != nil {
		m.logger.Warn("initial config fetch failed, using defaults",
			slog.String("url", configServiceURL), slog.Any("error", err))
		return
	}
	if resp.StatusCode() != http.StatusOK {
		m.logger.Warn("initial config fetch failed, using defaults",
			slog.String("url", configServiceURL), slog.Int("status", resp.StatusCode()))
		return
	}

	m.ApplyProfile(profile)
}

// Run subscribes to the config update channel and applies each published
// profile until ctx is cancelled.
func (m *Manager) Run(ctx context.Context, bus domain.SignalBus) error {
	ch, err := bus.Subscribe(ctx, domain.ChannelConfig)
	if err != nil {
		return fmt.Errorf("runtimecfg: subscribe %s: %w", domain.ChannelConfig, err)
	}
	m.logger.Info("config subscriber started")
	defer m.logger.Info("config subscriber stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var profile domain.ConfigProfile
			if err := json.Unmarshal(payload, &profile); err != nil {
				m.logger.Warn("discard malformed config update",
					slog.Any("error", err), slog.Int("payload_len", len(payload)))
				continue
			}
			m.ApplyProfile(profile)
		}
	}
}
