package risk

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/py361828925-design/arb-bot/internal/domain"
	"github.com/py361828925-design/arb-bot/internal/notify"
	"github.com/py361828925-design/arb-bot/internal/runtimecfg"
)

// snapshotScanDepth bounds the reverse scan used to price all open groups in
// one round trip per tick.
const snapshotScanDepth = 500

// snapshotKey identifies the newest snapshot for one leg.
type snapshotKey struct {
	venue  string
	symbol string
}

// Daemon ticks on the close interval, prices every open group from a single
// stream scan, and closes the groups whose rules trigger.
type Daemon struct {
	bus       domain.SignalBus
	positions domain.PositionStore
	cfg       *runtimecfg.Manager
	notifier  *notify.Notifier
	logger    *slog.Logger
}

// NewDaemon creates a risk Daemon.
func NewDaemon(bus domain.SignalBus, positions domain.PositionStore, cfg *runtimecfg.Manager, notifier *notify.Notifier, logger *slog.Logger) *Daemon {
	return &Daemon{
		bus:       bus,
		positions: positions,
		cfg:       cfg,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "risk")),
	}
}

// Run evaluates open groups until ctx is cancelled. The tick interval is
// re-read from the runtime config each pass. A failed pass is logged and the
// next tick retries; the loop never exits on evaluation errors.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("risk daemon started")
	defer d.logger.Info("risk daemon stopped")

	for {
		if err := d.tick(ctx); err != nil && ctx.Err() == nil {
			d.logger.ErrorContext(ctx, "risk tick failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d.cfg.Current().CloseInterval()):
		}
	}
}

func (d *Daemon) tick(ctx context.Context) error {
	cfg := d.cfg.Current()
	if !cfg.GlobalEnable {
		return nil
	}

	groups, err := d.positions.ListOpenWithLegs(ctx)
	if err != nil {
		return fmt.Errorf("risk: list open groups: %w", err)
	}
	if len(groups) == 0 {
		return nil
	}

	snapshots, err := d.latestSnapshots(ctx, groups)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	for _, group := range groups {
		longLeg := group.LongLeg()
		shortLeg := group.ShortLeg()
		if longLeg == nil || shortLeg == nil {
			continue
		}

		longSnap, okLong := snapshots[snapshotKey{longLeg.Venue, group.Symbol}]
		shortSnap, okShort := snapshots[snapshotKey{shortLeg.Venue, group.Symbol}]
		if !okLong || !okShort {
			// No fresh price for one side; re-evaluate next tick.
			continue
		}

		decision, triggered := EvaluateGroup(group, longSnap, shortSnap, cfg.Thresholds, now)
		if !triggered {
			continue
		}

		if err := d.close(ctx, group, decision, now); err != nil {
			d.logger.ErrorContext(ctx, "close group failed",
				slog.String("group_id", group.GroupID), slog.Any("error", err))
			continue
		}

		d.logger.InfoContext(ctx, "closed group",
			slog.String("group_id", group.GroupID),
			slog.String("symbol", group.Symbol),
			slog.String("reason", decision.Reason),
			slog.Float64("long_return", decision.LongReturn),
			slog.Float64("short_return", decision.ShortReturn),
			slog.Float64("total_return", decision.TotalReturn),
			slog.Float64("current_diff", decision.CurrentDiff),
			slog.Float64("countdown_minutes", decision.CountdownMinutes))
	}
	return nil
}

// latestSnapshots collects the newest snapshot per needed (venue, symbol) in
// one reverse scan. The stream is newest-first, so the first hit per key
// wins; the scan stops early once every key is resolved.
func (d *Daemon) latestSnapshots(ctx context.Context, groups []domain.PositionGroup) (map[snapshotKey]domain.FundingSnapshot, error) {
	pending := make(map[snapshotKey]struct{})
	for _, group := range groups {
		for _, leg := range group.Legs {
			if leg.Venue != "" && group.Symbol != "" {
				pending[snapshotKey{leg.Venue, group.Symbol}] = struct{}{}
			}
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}

	messages, err := d.bus.StreamRevRange(ctx, domain.StreamSnapshots, snapshotScanDepth)
	if err != nil {
		return nil, fmt.Errorf("risk: scan snapshots: %w", err)
	}

	snapshots := make(map[snapshotKey]domain.FundingSnapshot, len(pending))
	for _, msg := range messages {
		key := snapshotKey{msg.Fields["venue"], msg.Fields["symbol"]}
		if _, needed := pending[key]; !needed {
			continue
		}
		if _, seen := snapshots[key]; seen {
			continue
		}
		snap, err := domain.SnapshotFromStream(msg.Fields)
		if err != nil {
			d.logger.WarnContext(ctx, "parse snapshot failed",
				slog.String("venue", key.venue), slog.String("symbol", key.symbol),
				slog.Any("error", err))
			continue
		}
		snapshots[key] = snap
		if len(snapshots) == len(pending) {
			break
		}
	}
	return snapshots, nil
}

// close applies the decision: per-leg exits and pnl, group totals, the
// differential overwrite, and the CLOSE event, all through one store call.
func (d *Daemon) close(ctx context.Context, group domain.PositionGroup, decision Decision, now time.Time) error {
	closePrices := map[string]float64{}
	returns := map[string]float64{}
	totalPnL := 0.0

	for i := range group.Legs {
		leg := &group.Legs[i]
		entry := leg.EntryPrice
		if entry == 0 {
			entry = 1.0
		}

		var mark, pnlPct float64
		if leg.Side == domain.LegSideLong {
			mark = decision.LongMark
			pnlPct = (mark - entry) / entry
		} else {
			mark = decision.ShortMark
			pnlPct = (entry - mark) / entry
		}

		pnl := pnlPct * leg.Notional
		leg.ExitPrice = domain.Float64Ptr(mark)
		leg.PnL = domain.Float64Ptr(pnl)
		leg.Status = domain.GroupStatusClosed
		leg.ClosedAt = &now

		closePrices[leg.Venue] = mark
		returns[leg.Venue] = pnlPct
		totalPnL += pnl
	}

	reason := decision.Reason
	group.Status = domain.GroupStatusClosed
	group.CloseReason = &reason
	group.ClosedAt = &now
	group.RealizedPnL = totalPnL
	group.FundingDiff = decision.CurrentDiff
	if group.NotionalPerLeg != 0 {
		group.ExpectedRate8h = totalPnL / (group.NotionalPerLeg * 2)
	}

	event := domain.PositionEvent{
		GroupID:     group.GroupID,
		Symbol:      group.Symbol,
		EventType:   domain.EventTypeClose,
		LogicReason: &reason,
		RealizedPnL: domain.Float64Ptr(totalPnL),
		Data: map[string]any{
			"close_prices":     closePrices,
			"returns":          returns,
			"current_diff":     decision.CurrentDiff,
			"notional_per_leg": group.NotionalPerLeg,
		},
	}

	if err := d.positions.CloseGroup(ctx, group, event); err != nil {
		return err
	}

	if d.notifier != nil {
		message := fmt.Sprintf("group: %s\nsymbol: %s\nreason: %s\nrealized pnl: %.4f USDT\ntotal return: %.4f%%",
			group.GroupID, group.Symbol, reason, totalPnL, decision.TotalReturn*100)
		if err := d.notifier.Notify(ctx, "close", "Position closed", message); err != nil {
			d.logger.WarnContext(ctx, "close notification failed", slog.Any("error", err))
		}
	}
	return nil
}
