// Package gateway consumes opportunities from the consumer group and admits
// them as simulated position groups.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/py361828925-design/arb-bot/internal/domain"
	"github.com/py361828925-design/arb-bot/internal/notify"
	"github.com/py361828925-design/arb-bot/internal/runtimecfg"
)

const (
	readCount = 20
	readBlock = 5 * time.Second
	// snapshotScanDepth bounds the reverse scan for entry prices; with two
	// venues publishing full batches this comfortably covers the last cycle
	// for liquid symbols.
	snapshotScanDepth = 200
)

// Gateway turns opportunities into open position groups. Entries are acked
// when handled (created, duplicate, or dropped by the global switch) and left
// pending when admission is deferred by a risk cap, so the group redelivers
// them once capacity frees up.
type Gateway struct {
	bus       domain.SignalBus
	positions domain.PositionStore
	cfg       *runtimecfg.Manager
	notifier  *notify.Notifier
	logger    *slog.Logger
	consumer  string
}

// New creates a Gateway with a unique consumer name.
func New(bus domain.SignalBus, positions domain.PositionStore, cfg *runtimecfg.Manager, notifier *notify.Notifier, logger *slog.Logger) *Gateway {
	return &Gateway{
		bus:       bus,
		positions: positions,
		cfg:       cfg,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "gateway")),
		consumer:  "executor-" + uuid.NewString(),
	}
}

// Run creates the consumer group and processes entries until ctx is
// cancelled. Each iteration first sweeps this consumer's pending entries
// (deferred on earlier iterations), then blocks for new ones.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.bus.EnsureGroup(ctx, domain.StreamOpportunities, domain.GroupExecutionGW); err != nil {
		return fmt.Errorf("gateway: ensure group: %w", err)
	}
	g.logger.Info("execution gateway started", slog.String("consumer", g.consumer))
	defer g.logger.Info("execution gateway stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		pending, err := g.bus.StreamReadGroup(ctx, domain.StreamOpportunities,
			domain.GroupExecutionGW, g.consumer, "0", readCount, -1)
		if err != nil && ctx.Err() == nil {
			g.logger.ErrorContext(ctx, "read pending opportunities failed", slog.Any("error", err))
		}
		g.processBatch(ctx, pending)

		fresh, err := g.bus.StreamReadGroup(ctx, domain.StreamOpportunities,
			domain.GroupExecutionGW, g.consumer, ">", readCount, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.logger.ErrorContext(ctx, "read opportunities failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		g.processBatch(ctx, fresh)

		if len(fresh) == 0 && len(pending) > 0 {
			// All remaining work is deferred; pause before re-sweeping so a
			// full book does not spin.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(g.cfg.Current().OpenInterval()):
			}
		}
	}
}

func (g *Gateway) processBatch(ctx context.Context, messages []domain.StreamMessage) {
	for _, msg := range messages {
		handled, err := g.handle(ctx, msg.Fields)
		if err != nil {
			g.logger.ErrorContext(ctx, "process opportunity failed",
				slog.String("entry_id", msg.ID), slog.Any("error", err))
			continue
		}
		if !handled {
			g.logger.InfoContext(ctx, "defer opportunity for retry",
				slog.String("entry_id", msg.ID))
			continue
		}
		if err := g.bus.Ack(ctx, domain.StreamOpportunities, domain.GroupExecutionGW, msg.ID); err != nil {
			g.logger.ErrorContext(ctx, "ack failed",
				slog.String("entry_id", msg.ID), slog.Any("error", err))
		}
	}
}

// handle returns (true, nil) when the entry should be acked, (false, nil)
// when admission was deferred, and an error for transient failures that leave
// the entry pending.
func (g *Gateway) handle(ctx context.Context, fields map[string]string) (bool, error) {
	opp, err := domain.OpportunityFromStream(fields)
	if err != nil {
		// Malformed entries can never succeed; ack them away.
		g.logger.WarnContext(ctx, "drop malformed opportunity", slog.Any("error", err))
		return true, nil
	}

	cfg := g.cfg.Current()
	if !cfg.GlobalEnable {
		g.logger.InfoContext(ctx, "global switch off, skip opportunity",
			slog.String("group_id", opp.GroupID))
		return true, nil
	}

	entryLong := g.entryPrice(ctx, opp.LongVenue, opp.Symbol)
	entryShort := g.entryPrice(ctx, opp.ShortVenue, opp.Symbol)

	limits := cfg.RiskLimits
	leverage := limits.LeverageMax
	margin := limits.MarginPerLeg
	notional := margin * leverage
	now := time.Now().UTC()

	group := domain.PositionGroup{
		GroupID:        opp.GroupID,
		Symbol:         opp.Symbol,
		Status:         domain.GroupStatusOpen,
		LongVenue:      opp.LongVenue,
		ShortVenue:     opp.ShortVenue,
		Leverage:       leverage,
		MarginPerLeg:   margin,
		NotionalPerLeg: notional,
		FundingDiff:    opp.FundingDiff,
		ExpectedRate8h: opp.ExpectedRate8h,
		Simulated:      true,
		OpenedAt:       now,
		Legs: []domain.PositionLeg{
			{
				Venue:      opp.LongVenue,
				Side:       domain.LegSideLong,
				Quantity:   notional,
				EntryPrice: entryLong,
				Margin:     margin,
				Notional:   notional,
				Status:     domain.GroupStatusOpen,
				OpenedAt:   now,
			},
			{
				Venue:      opp.ShortVenue,
				Side:       domain.LegSideShort,
				Quantity:   notional,
				EntryPrice: entryShort,
				Margin:     margin,
				Notional:   notional,
				Status:     domain.GroupStatusOpen,
				OpenedAt:   now,
			},
		},
	}

	err = g.positions.OpenGroup(ctx, group, limits)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyExists):
		g.logger.InfoContext(ctx, "group already exists, ack",
			slog.String("group_id", opp.GroupID))
		return true, nil
	case errors.Is(err, domain.ErrDeferred):
		g.logger.WarnContext(ctx, "admission deferred",
			slog.String("group_id", opp.GroupID), slog.Any("error", err))
		return false, nil
	default:
		return false, fmt.Errorf("gateway: open group %s: %w", opp.GroupID, err)
	}

	g.logger.InfoContext(ctx, "created simulated group",
		slog.String("group_id", opp.GroupID),
		slog.String("symbol", opp.Symbol),
		slog.String("long", opp.LongVenue),
		slog.String("short", opp.ShortVenue),
		slog.Float64("entry_long", entryLong),
		slog.Float64("entry_short", entryShort))

	if g.notifier != nil {
		message := fmt.Sprintf("group: %s\nsymbol: %s\nlong: %s / short: %s\nnotional: %.2f USDT",
			opp.GroupID, opp.Symbol, opp.LongVenue, opp.ShortVenue, notional*2)
		if err := g.notifier.Notify(ctx, "open", "Position opened", message); err != nil {
			g.logger.WarnContext(ctx, "open notification failed", slog.Any("error", err))
		}
	}
	return true, nil
}

// entryPrice finds the newest snapshot for (venue, symbol) within the scan
// depth and prefers mark over index price. Without any price the simulated
// fill uses 1.0 so return math stays defined.
func (g *Gateway) entryPrice(ctx context.Context, venue, symbol string) float64 {
	messages, err := g.bus.StreamRevRange(ctx, domain.StreamSnapshots, snapshotScanDepth)
	if err != nil {
		g.logger.WarnContext(ctx, "scan snapshots failed",
			slog.String("venue", venue), slog.String("symbol", symbol), slog.Any("error", err))
		return 1.0
	}
	for _, msg := range messages {
		if msg.Fields["venue"] != venue || msg.Fields["symbol"] != symbol {
			continue
		}
		snap, err := domain.SnapshotFromStream(msg.Fields)
		if err != nil {
			g.logger.WarnContext(ctx, "parse snapshot failed",
				slog.String("venue", venue), slog.String("symbol", symbol), slog.Any("error", err))
			continue
		}
		if price, ok := snap.PreferredPrice(); ok {
			return price
		}
		return 1.0
	}
	return 1.0
}
