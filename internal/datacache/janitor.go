package datacache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor sweeps expired cache entries on a cron schedule.
// It is optional: the cache stays correct without it.
type Janitor struct {
	cache    *Cache
	expr     string
	schedule cron.Schedule
	logger   *slog.Logger
}

// NewJanitor creates a janitor from a standard 5-field cron expression
// (minute hour dom month dow).
func NewJanitor(cache *Cache, schedule string, logger *slog.Logger) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("parsing sweep schedule %q: %w", schedule, err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Janitor{
		cache:    cache,
		expr:     schedule,
		schedule: sched,
		logger:   logger,
	}, nil
}

// Start begins the sweep loop. Returns a cancel function.
func (j *Janitor) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	go func() {
		j.logger.InfoContext(ctx, "cache janitor started", slog.String("schedule", j.expr))
		for {
			next := j.schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-ctx.Done():
				timer.Stop()
				j.logger.Info("cache janitor stopped")
				return
			case <-timer.C:
				if removed := j.cache.Sweep(); removed > 0 {
					j.logger.Debug("swept expired cache entries", slog.Int("removed", removed))
				}
			}
		}
	}()

	return cancel
}
