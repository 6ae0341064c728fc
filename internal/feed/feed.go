// Package feed polls the venue APIs for funding rates and publishes each
// cycle's snapshots onto the snapshots stream.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/py361828925-design/arb-bot/internal/domain"
	"github.com/py361828925-design/arb-bot/internal/runtimecfg"
)

// VenueClient fetches one cycle of funding snapshots for a single venue.
type VenueClient interface {
	FetchFunding(ctx context.Context) ([]domain.FundingSnapshot, error)
}

// Feed drives the poll cycle: fetch all venues, retain the last good batch
// per venue, publish everything fetched. A venue returning nothing keeps its
// previous batch and publishes nothing for that venue this cycle.
type Feed struct {
	bus     domain.SignalBus
	cfg     *runtimecfg.Manager
	clients map[string]VenueClient
	logger  *slog.Logger

	mu     sync.RWMutex
	latest map[string][]domain.FundingSnapshot
	cycles map[string]int64
}

// New creates a Feed over the given venue clients, keyed by venue name.
func New(bus domain.SignalBus, cfg *runtimecfg.Manager, clients map[string]VenueClient, logger *slog.Logger) *Feed {
	return &Feed{
		bus:     bus,
		cfg:     cfg,
		clients: clients,
		logger:  logger.With(slog.String("component", "feed")),
		latest:  make(map[string][]domain.FundingSnapshot),
		cycles:  make(map[string]int64),
	}
}

// Latest returns the last non-empty batch for a venue, or ErrUnknownVenue.
func (f *Feed) Latest(venue string) ([]domain.FundingSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if _, ok := f.clients[venue]; !ok {
		return nil, domain.ErrUnknownVenue
	}
	batch := f.latest[venue]
	out := make([]domain.FundingSnapshot, len(batch))
	copy(out, batch)
	return out, nil
}

// Counts returns the per-venue size of the last retained batch.
func (f *Feed) Counts() map[string]int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	counts := make(map[string]int, len(f.latest))
	for venue, batch := range f.latest {
		counts[venue] = len(batch)
	}
	return counts
}

// Cycles returns how many non-empty batches each venue has produced.
func (f *Feed) Cycles() map[string]int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	cycles := make(map[string]int64, len(f.cycles))
	for venue, n := range f.cycles {
		cycles[venue] = n
	}
	return cycles
}

// Run polls until ctx is cancelled. The interval is re-read from the runtime
// config each cycle so operator changes take effect without restart. A failed
// cycle is logged; the loop never exits on fetch errors.
func (f *Feed) Run(ctx context.Context) error {
	f.logger.Info("funding feed started",
		slog.Int("venues", len(f.clients)))
	defer f.logger.Info("funding feed stopped")

	for {
		f.refresh(ctx)

		interval := f.cfg.Current().ScanInterval()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

func (f *Feed) refresh(ctx context.Context) {
	for venue, client := range f.clients {
		snapshots, err := client.FetchFunding(ctx)
		if err != nil {
			f.logger.ErrorContext(ctx, "fetch funding failed",
				slog.String("venue", venue), slog.Any("error", err))
			continue
		}
		if len(snapshots) == 0 {
			continue
		}

		f.mu.Lock()
		f.latest[venue] = snapshots
		f.cycles[venue]++
		f.mu.Unlock()

		f.publish(ctx, venue, snapshots)
	}
}

// publish appends each snapshot as its own stream entry. Individual append
// failures are logged and the rest of the batch still goes out.
func (f *Feed) publish(ctx context.Context, venue string, snapshots []domain.FundingSnapshot) {
	now := time.Now().UTC()
	published := 0
	for _, snap := range snapshots {
		if err := f.bus.StreamAppend(ctx, domain.StreamSnapshots, snap.StreamFields(now)); err != nil {
			f.logger.WarnContext(ctx, "publish snapshot failed",
				slog.String("venue", venue),
				slog.String("symbol", snap.Symbol),
				slog.Any("error", err))
			continue
		}
		published++
	}
	f.logger.InfoContext(ctx, "published funding batch",
		slog.String("venue", venue),
		slog.Int("published", published),
		slog.Int("total", len(snapshots)))
}
