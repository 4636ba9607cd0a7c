package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/arzan03/mediadrop/internal/store"
)

// Sweeper periodically deletes bindings the expiry policy considers dead.
// Backends with native expiry get it too; it keeps listings and storage
// tight between their own reaper runs.
type Sweeper struct {
	store    store.Store
	policy   ExpiryPolicy
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

func NewSweeper(st store.Store, policy ExpiryPolicy, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		store:    st,
		policy:   policy,
		interval: interval,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Enabled reports whether the policy ever expires bindings by age.
func (s *Sweeper) Enabled() bool {
	return s.policy.TTL > 0
}

// SweepOnce deletes expired bindings and returns how many were removed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	return s.store.DeleteCreatedBefore(ctx, s.policy.Cutoff(s.now()))
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				s.logger.Error("sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("expired bindings removed", "count", n)
			}
		}
	}
}
