package domain

import "time"

// Thresholds are the eight named scalars driving opportunity detection and
// the closure decision engine.
type Thresholds struct {
	// AA is the minimum absolute 8h-normalised funding differential that
	// emits an opportunity.
	AA float64 `json:"aa" toml:"aa"`
	// BB is the maximum absolute current differential counted as converged.
	BB float64 `json:"bb" toml:"bb"`
	// CC is the minimum total return for a convergence exit.
	CC float64 `json:"cc" toml:"cc"`
	// DD is the settlement countdown, in minutes, under which a converged
	// group is closed.
	DD float64 `json:"dd" toml:"dd"`
	// EE is the minimum total return for a single-leg stop with partial profit.
	EE float64 `json:"ee" toml:"ee"`
	// FF is the take-profit level on total return.
	FF float64 `json:"ff" toml:"ff"`
	// GG is the stop-loss level on total return.
	GG float64 `json:"gg" toml:"gg"`
	// HH is the single-leg loss that triggers logic2.
	HH float64 `json:"hh" toml:"hh"`
}

// DefaultThresholds mirrors the service defaults used to bootstrap the first
// configuration profile.
func DefaultThresholds() Thresholds {
	return Thresholds{
		AA: 0.0005,
		BB: 0.0002,
		CC: 0.0001,
		DD: 5,
		EE: 0.0002,
		FF: 0.0010,
		GG: 0.0020,
		HH: 0.001,
	}
}

// RiskLimits bound position admission and sizing.
type RiskLimits struct {
	GroupMax     int     `json:"group_max" toml:"group_max"`
	DuplicateMax int     `json:"duplicate_max" toml:"duplicate_max"`
	LeverageMax  float64 `json:"leverage_max" toml:"leverage_max"`
	MarginPerLeg float64 `json:"margin_per_leg" toml:"margin_per_leg"`
	TakerFee     float64 `json:"taker_fee" toml:"taker_fee"`
	MakerFee     float64 `json:"maker_fee" toml:"maker_fee"`
	TradeFee     float64 `json:"trade_fee" toml:"trade_fee"`
}

// DefaultRiskLimits returns the service defaults for risk limits.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		GroupMax:     20,
		DuplicateMax: 2,
		LeverageMax:  10.0,
		MarginPerLeg: 100.0,
		TakerFee:     0.0006,
		MakerFee:     0.0002,
		TradeFee:     0.0006,
	}
}

// ConfigProfile is one immutable version of the runtime configuration. The
// active profile is always the highest version.
type ConfigProfile struct {
	ID                   int64      `json:"-"`
	Version              int        `json:"version"`
	Thresholds           Thresholds `json:"thresholds"`
	RiskLimits           RiskLimits `json:"risk_limits"`
	GlobalEnable         bool       `json:"global_enable"`
	ScanIntervalSeconds  float64    `json:"scan_interval_seconds"`
	CloseIntervalSeconds float64    `json:"close_interval_seconds"`
	OpenIntervalSeconds  float64    `json:"open_interval_seconds"`
	CreatedBy            string     `json:"created_by"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Audit log actions for configuration changes.
const (
	AuditActionInitialize = "INITIALIZE"
	AuditActionUpdate     = "UPDATE"
)

// ConfigAuditLog records who changed the configuration and what changed.
type ConfigAuditLog struct {
	ID        int64          `json:"id"`
	Version   int            `json:"version"`
	Operator  string         `json:"operator"`
	Action    string         `json:"action"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}
