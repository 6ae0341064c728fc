package stats

import (
	"context"
	"log/slog"
	"time"
)

// errorBackoff is the pause after a failed archive before the scheduler
// recomputes the next midnight.
const errorBackoff = 5 * time.Second

// Scheduler archives the previous UTC day's statistics shortly after each
// midnight.
type Scheduler struct {
	service *Service
	logger  *slog.Logger
}

// NewScheduler creates a snapshot Scheduler.
func NewScheduler(service *Service, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service: service,
		logger:  logger.With(slog.String("component", "stats_scheduler")),
	}
}

// Run sleeps until the next UTC midnight, archives the day that just ended,
// and repeats until ctx is cancelled. A failed archive backs off briefly and
// re-arms for the following midnight.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("snapshot scheduler started")
	defer s.logger.Info("snapshot scheduler stopped")

	for {
		now := time.Now().UTC()
		nextMidnight := midnightUTC(now).Add(24 * time.Hour)
		sleep := nextMidnight.Sub(now)
		if sleep < time.Second {
			sleep = time.Second
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		archiveDate := nextMidnight.Add(-24 * time.Hour)
		snapshot, err := s.service.ArchiveSnapshot(ctx, archiveDate)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.ErrorContext(ctx, "archive snapshot failed",
				slog.String("date", archiveDate.Format("2006-01-02")),
				slog.Any("error", err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(errorBackoff):
			}
			continue
		}

		s.logger.InfoContext(ctx, "archived daily snapshot",
			slog.String("date", snapshot.SnapshotDate),
			slog.Float64("net_profit", snapshot.NetProfit),
			slog.Float64("total_close", snapshot.TotalClose))
	}
}
