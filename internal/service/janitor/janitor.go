// Package janitor runs periodic cleanup off the request path:
// dead refresh token records and idle login limiter windows.
package janitor

import (
	"context"
	"time"

	"github.com/nkiryanov/clearance/internal/clock"
	"github.com/nkiryanov/clearance/internal/logger"
	"github.com/nkiryanov/clearance/internal/metrics"
)

const (
	defaultInterval  = 10 * time.Minute
	defaultBatchSize = 500
)

type tokenSweeper interface {
	SweepExpiredAndRevoked(ctx context.Context, now time.Time, batch int) (int64, error)
}

type windowSweeper interface {
	SweepStale(cutoff time.Time) int
	Len() int
}

type Config struct {
	// How often to sweep
	Interval time.Duration

	// Refresh tokens deleted per statement
	BatchSize int

	// Limiter windows idle longer than this are dropped
	// Has to be longer than the limiter window
	StaleAfter time.Duration

	Clock   clock.Clock
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

type Janitor struct {
	interval   time.Duration
	batchSize  int
	staleAfter time.Duration

	tokens  tokenSweeper
	windows windowSweeper

	clock   clock.Clock
	logger  logger.Logger
	metrics *metrics.Metrics
}

func New(cfg Config, tokens tokenSweeper, windows windowSweeper) *Janitor {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoOpLogger()
	}

	return &Janitor{
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		staleAfter: cfg.StaleAfter,
		tokens:     tokens,
		windows:    windows,
		clock:      cfg.Clock,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// Run sweeps every interval until ctx is done
// Returned channel is closed when janitor stopped
func (j *Janitor) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})
	j.logger.Debug("Starting janitor", "interval", j.interval, "batch_size", j.batchSize, "stale_after", j.staleAfter)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				j.logger.Debug("Janitor stopped by context")
				return

			case <-ticker.C:
				j.Sweep(ctx)
			}
		}
	}()

	return idleStopped
}

// Sweep runs single cleanup pass
func (j *Janitor) Sweep(ctx context.Context) {
	now := j.clock.Now()

	if j.tokens != nil {
		deleted, err := j.tokens.SweepExpiredAndRevoked(ctx, now, j.batchSize)
		j.metrics.Swept(deleted)
		if err != nil {
			j.logger.Error("Failed to sweep refresh tokens", "error", err, "deleted", deleted)
		} else if deleted > 0 {
			j.logger.Info("Refresh tokens swept", "deleted", deleted)
		}
	}

	if j.windows != nil && j.staleAfter > 0 {
		removed := j.windows.SweepStale(now.Add(-j.staleAfter))
		j.metrics.LimiterWindows(j.windows.Len())
		if removed > 0 {
			j.logger.Debug("Stale limiter windows removed", "removed", removed)
		}
	}
}
