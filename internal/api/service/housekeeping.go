package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/kiloOhm/kilo-zone/pkg/cache"
)

// HousekeepingService periodically removes expired cache entries from
// drivers that do not expire them natively.
type HousekeepingService struct {
	Sweeper  cache.Sweeper
	Logger   *slog.Logger
	Interval time.Duration
	// OnSwept receives the number of entries removed by each run.
	OnSwept func(n int64)

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(sweeper cache.Sweeper, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Sweeper:  sweeper,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one cleanup pass.
func (s *HousekeepingService) Sweep(ctx context.Context) {
	n, err := s.Sweeper.DeleteExpired(ctx)
	if err != nil {
		s.Logger.Error("failed to delete expired cache entries", "error", err)
		return
	}
	if s.OnSwept != nil {
		s.OnSwept(n)
	}
	s.Logger.Info("housekeeping cleanup completed", "deleted", n)
}
