// Package sweeper prunes rows that can no longer affect authentication:
// expired blacklist entries and idle limiter counters. Refresh token rows
// are kept for audit and never pruned.
package sweeper

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// BlacklistPruner deletes expired blacklist entries.
type BlacklistPruner interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// LimiterPruner deletes limiter rows idle since cutoff.
type LimiterPruner interface {
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper runs the pruning passes. A nil limiter pruner is skipped.
type Sweeper struct {
	blacklist BlacklistPruner
	limiter   LimiterPruner
	retention time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// New constructs a Sweeper; limiter rows untouched for retention are removed.
func New(bl BlacklistPruner, lim LimiterPruner, retention time.Duration, log *zap.Logger) *Sweeper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sweeper{blacklist: bl, limiter: lim, retention: retention, now: time.Now, log: log}
}

// RunOnce performs one pass. Both prunes are attempted; errors are joined.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	var errLim error

	n, errBl := s.blacklist.DeleteExpired(ctx)
	if errBl != nil {
		s.log.Error("sweep blacklist", zap.Error(errBl))
	} else {
		s.log.Info("swept blacklist", zap.Int64("deleted", n))
	}

	if s.limiter != nil {
		n, errLim = s.limiter.DeleteStale(ctx, s.now().Add(-s.retention))
		if errLim != nil {
			s.log.Error("sweep limiter", zap.Error(errLim))
		} else {
			s.log.Info("swept limiter", zap.Int64("deleted", n))
		}
	}
	return errors.Join(errBl, errLim)
}

// Run sweeps immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	_ = s.RunOnce(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			_ = s.RunOnce(ctx)
		}
	}
}
