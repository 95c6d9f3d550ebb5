package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Cleaner removes expired entries
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// Sweeper periodically purges expired rows, such as PostgreSQL photo cache
// entries and rate limit counters.
type Sweeper struct {
	cleaner  Cleaner
	logger   *slog.Logger
	interval time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSweeper creates a sweeper; interval defaults to 10 minutes
func NewSweeper(cleaner Cleaner, logger *slog.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{
		cleaner:  cleaner,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start begins the background worker
func (s *Sweeper) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("sweeper started", "interval", s.interval)
}

// Stop gracefully shuts down the worker
func (s *Sweeper) Stop() {
	close(s.done)
	s.wg.Wait()
	s.logger.Info("sweeper stopped")
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.done:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.cleaner.CleanupExpired(ctx)
	if err != nil {
		s.logger.Error("failed to purge expired entries", "error", err)
		return
	}
	if n > 0 {
		s.logger.Debug("purged expired entries", "count", n)
	}
}
