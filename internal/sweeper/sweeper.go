// Package sweeper periodically purges expired URLs from the store.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type expiredURLRemover interface {
	RemoveExpired(ctx context.Context) (int64, error)
}

type Sweeper struct {
	repo     expiredURLRemover
	interval time.Duration
	logger   *slog.Logger
}

func New(repo expiredURLRemover, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		repo:     repo,
		interval: interval,
		logger:   logger,
	}
}

// Sweep runs a single purge and returns the number of removed URLs.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	const op = "sweeper.Sweeper.Sweep"

	n, err := s.repo.RemoveExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to remove expired urls: %w", op, err)
	}

	return n, nil
}

// Run sweeps on every tick until ctx is done. A failed sweep is logged and
// retried on the next tick.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("expiry sweeper started", slog.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("expiry sweeper stopped")
			return nil
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				s.logger.Error("expiry sweep failed", slog.Any("err", err))
				continue
			}

			if n > 0 {
				s.logger.Info("expired urls removed", slog.Int64("count", n))
			}
		}
	}
}
