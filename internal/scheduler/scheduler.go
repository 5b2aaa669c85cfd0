// Package scheduler drives periodic extraction passes.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/worknuggets/extractor/internal/pipeline"
)

// Scheduler triggers one pipeline pass per tick. Each pass handles at
// most one article; throughput comes from the tick rate, not batch
// size, so the renderer quota stays contended rather than flooded.
type Scheduler struct {
	pipe     *pipeline.Pipeline
	interval time.Duration
	logger   *zap.Logger
}

// New constructs a Scheduler.
func New(pipe *pipeline.Pipeline, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{pipe: pipe, interval: interval, logger: logger}
}

// Run ticks until the context is canceled. Pass errors are logged and
// the loop continues; a transient store outage must not kill the
// scheduler.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			result, err := s.pipe.RunOnce(ctx)
			if err != nil {
				s.logger.Warn("extraction pass failed", zap.Error(err))
				continue
			}
			if result.Extracted {
				s.logger.Debug("extraction pass produced content")
			}
		}
	}
}
