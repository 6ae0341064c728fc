// Package engine consumes funding snapshots and emits cross-venue
// opportunities when the normalised funding differential crosses the
// configured threshold.
package engine

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/py361828925-design/arb-bot/internal/domain"
	"github.com/py361828925-design/arb-bot/internal/runtimecfg"
)

const (
	readCount = 100
	readBlock = 5 * time.Second
)

// Engine tracks the newest snapshot per (venue, symbol) and evaluates the
// differential on every incoming snapshot against its counterpart venue.
type Engine struct {
	bus    domain.SignalBus
	cfg    *runtimecfg.Manager
	logger *slog.Logger

	mu     sync.Mutex
	latest map[string]map[string]domain.FundingSnapshot // venue -> symbol -> newest
	lastID string
}

// New creates an Engine reading the snapshots stream from its beginning.
func New(bus domain.SignalBus, cfg *runtimecfg.Manager, logger *slog.Logger) *Engine {
	return &Engine{
		bus:    bus,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "engine")),
		latest: make(map[string]map[string]domain.FundingSnapshot),
		lastID: "0-0",
	}
}

// Run reads the snapshots stream with a blocking cursor until ctx is
// cancelled. Undecodable entries are logged and skipped; the cursor always
// advances so one bad entry cannot wedge the stream.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("strategy engine started", slog.String("from", e.lastID))
	defer e.logger.Info("strategy engine stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		messages, err := e.bus.StreamRead(ctx, domain.StreamSnapshots, e.lastID, readCount, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			e.logger.ErrorContext(ctx, "read snapshots failed", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range messages {
			snap, err := domain.SnapshotFromStream(msg.Fields)
			if err != nil {
				e.logger.WarnContext(ctx, "skip malformed snapshot",
					slog.String("entry_id", msg.ID), slog.Any("error", err))
				e.lastID = msg.ID
				continue
			}
			e.evaluate(ctx, snap)
			e.lastID = msg.ID
		}
	}
}

// evaluate stores the snapshot and emits an opportunity when the symbol's
// differential against the other venue reaches the aa threshold. The venue
// with the lower 8h rate takes the long side. While globally disabled the
// snapshot is dropped without touching the cache, so detection resumes only
// from data that arrives after re-enable.
func (e *Engine) evaluate(ctx context.Context, snap domain.FundingSnapshot) {
	cfg := e.cfg.Current()
	if !cfg.GlobalEnable {
		return
	}

	other, ok := e.storeAndPair(snap)
	if !ok {
		return
	}

	fundingDiff := snap.Rate8h() - other.Rate8h()
	if math.Abs(fundingDiff) < cfg.Thresholds.AA {
		return
	}

	longVenue, shortVenue := snap.Venue, other.Venue
	if fundingDiff > 0 {
		longVenue, shortVenue = other.Venue, snap.Venue
	}

	opp := domain.NewOpportunity(snap.Symbol, longVenue, shortVenue,
		fundingDiff, snap.Rate8h(), time.Now().UTC())

	e.logger.InfoContext(ctx, "opportunity detected",
		slog.String("group_id", opp.GroupID),
		slog.String("symbol", opp.Symbol),
		slog.Float64("funding_diff", opp.FundingDiff),
		slog.String("long", opp.LongVenue),
		slog.String("short", opp.ShortVenue),
		slog.Float64("threshold", cfg.Thresholds.AA))

	if err := e.bus.StreamAppend(ctx, domain.StreamOpportunities, opp.StreamFields()); err != nil {
		e.logger.ErrorContext(ctx, "publish opportunity failed",
			slog.String("group_id", opp.GroupID), slog.Any("error", err))
	}
}

// storeAndPair records the snapshot and returns the counterpart venue's
// newest snapshot for the same symbol, when one exists.
func (e *Engine) storeAndPair(snap domain.FundingSnapshot) (domain.FundingSnapshot, bool) {
	otherVenue := domain.VenueBitget
	if snap.Venue == domain.VenueBitget {
		otherVenue = domain.VenueBinance
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.latest[snap.Venue] == nil {
		e.latest[snap.Venue] = make(map[string]domain.FundingSnapshot)
	}
	e.latest[snap.Venue][snap.Symbol] = snap

	other, ok := e.latest[otherVenue][snap.Symbol]
	return other, ok
}
