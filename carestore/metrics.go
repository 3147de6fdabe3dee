// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package carestore

import (
	"context"
	"time"
)

const (
	MetricsOpWrite = "write"
	MetricsOpList  = "list"

	MetricsStageTotal     = "total"
	MetricsStageRules     = "rules"
	MetricsStageStore     = "store"
	MetricsStageCacheHit  = "cache_hit"
	MetricsStageCacheFill = "cache_fill"
	MetricsStageCacheDrop = "cache_invalidate"
)

type StageTiming struct {
	Operation string
	Stage     string
	Duration  time.Duration
	Count     int
	Error     bool
}

type StageMetricsRecorder interface {
	ObserveStage(ctx context.Context, timing StageTiming)
}

type StageMetricsRecorderFunc func(ctx context.Context, timing StageTiming)

func (f StageMetricsRecorderFunc) ObserveStage(ctx context.Context, timing StageTiming) {
	f(ctx, timing)
}

func (s *StoreService) stageStart() time.Time {
	if s.config.StageMetrics == nil && !s.config.LogStageTimings {
		return time.Time{}
	}
	return time.Now()
}

func (s *StoreService) observeStage(ctx context.Context, op, stage string, start time.Time, count int, hadError bool) {
	if start.IsZero() {
		return
	}
	timing := StageTiming{
		Operation: op,
		Stage:     stage,
		Duration:  time.Since(start),
		Count:     count,
		Error:     hadError,
	}
	if s.config.StageMetrics != nil {
		s.config.StageMetrics.ObserveStage(ctx, timing)
	}
	if s.config.LogStageTimings {
		s.logger.Debug("Stage timing",
			"op", timing.Operation,
			"stage", timing.Stage,
			"duration", timing.Duration,
			"count", timing.Count,
			"error", timing.Error,
		)
	}
}
