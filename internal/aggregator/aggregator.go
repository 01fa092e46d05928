// Package aggregator turns a completed step's raw worker samples into
// metrics-store points: per-sample latency/service_time records, plus
// the per-task global throughput bucketization that runs across every
// worker contributing to a task.
package aggregator

import (
	"context"
	"sort"
	"time"

	"go.lepak.sg/loadbench/internal/lmap"
	"go.lepak.sg/loadbench/internal/metricsstore"
	"go.lepak.sg/loadbench/internal/model"
	"go.lepak.sg/loadbench/internal/parallel"
	"go.lepak.sg/loadbench/internal/slices"
)

// maxConcurrentTasks bounds how many of a step's task groups are
// post-processed at once; a step rarely has more than a handful of
// distinct tasks; this just keeps a pathological schedule bounded.
const maxConcurrentTasks = 8

// PostProcessStep folds one completed step's samples into store: for
// every sample it records a latency and a service_time point (request
// metadata merged by precedence track < challenge < operation < task
// < request), then computes each task's global throughput series.
// Task groups are processed concurrently via internal/parallel since
// they share no state; store.Record must be safe for concurrent use.
func PostProcessStep(ctx context.Context, samples []model.Sample, trackMeta, challengeMeta map[string]any, store metricsstore.Store) error {
	if len(samples) == 0 {
		return nil
	}

	groups := slices.GroupAndOrderBy(samples, func(s model.Sample) string {
		return s.Task.Operation.Name
	})

	_, err := parallel.MapBoundedErrgroup(ctx, groups, func(_ int, group []model.Sample) struct{} {
		emitSampleMetrics(group, trackMeta, challengeMeta, store)
		emitGlobalThroughput(group, store)
		return struct{}{}
	}, maxConcurrentTasks)

	return err
}

func emitSampleMetrics(group []model.Sample, trackMeta, challengeMeta map[string]any, store metricsstore.Store) {
	for _, s := range group {
		meta := lmap.MergePrecedence(
			trackMeta,
			challengeMeta,
			s.Task.Operation.Meta,
			s.Task.Meta,
			map[string]any(s.RequestMeta),
		)

		store.Record(metricsstore.Point{
			Name:          "latency",
			OperationName: s.Task.Operation.Name,
			Kind:          s.Kind.String(),
			AbsoluteTime:  s.AbsoluteWallTime,
			RelativeTime:  s.RelativeMonotonic,
			Value:         s.LatencyMS,
			Unit:          "ms",
			Meta:          meta,
		})
		store.Record(metricsstore.Point{
			Name:          "service_time",
			OperationName: s.Task.Operation.Name,
			Kind:          s.Kind.String(),
			AbsoluteTime:  s.AbsoluteWallTime,
			RelativeTime:  s.RelativeMonotonic,
			Value:         s.ServiceTimeMS,
			Unit:          "ms",
			Meta:          meta,
		})
	}
}

// emitGlobalThroughput buckets throughput across every worker running
// this task: samples are ordered
// by absolute_time, bucketed once per elapsed second, with a kind
// promotion (Warmup -> Normal) resetting the bucket boundary so the
// first post-warmup point isn't delayed by the warmup's own bucketing.
func emitGlobalThroughput(group []model.Sample, store metricsstore.Store) {
	ordered := make([]model.Sample, len(group))
	copy(ordered, group)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].AbsoluteWallTime.Before(ordered[j].AbsoluteWallTime)
	})

	first := ordered[0]
	start := first.AbsoluteWallTime.Add(-first.ElapsedSinceTaskStart)

	var totalOps int64
	var interval time.Duration
	nextBucket := time.Duration(0)
	currentKind := first.Kind
	emittedSinceKind := false

	var last model.Sample

	for _, s := range ordered {
		if s.Kind > currentKind {
			currentKind = s.Kind
			nextBucket = 0
			emittedSinceKind = false
		}

		totalOps += s.OpsCount
		if d := s.AbsoluteWallTime.Sub(start); d > interval {
			interval = d
		}

		if interval > 0 && interval >= nextBucket {
			emitThroughputPoint(store, s, currentKind, totalOps, interval)
			nextBucket = interval.Truncate(time.Second) + time.Second
			emittedSinceKind = true
		}

		last = s
	}

	if !emittedSinceKind {
		emitThroughputPoint(store, last, currentKind, totalOps, interval)
	}
}

func emitThroughputPoint(store metricsstore.Store, s model.Sample, kind model.SampleKind, totalOps int64, interval time.Duration) {
	var rate float64
	if interval > 0 {
		rate = float64(totalOps) / interval.Seconds()
	}

	unit := s.OpsUnit
	if unit == "" {
		unit = "ops"
	}

	store.Record(metricsstore.Point{
		Name:          "throughput",
		OperationName: s.Task.Operation.Name,
		Kind:          kind.String(),
		AbsoluteTime:  s.AbsoluteWallTime,
		RelativeTime:  s.RelativeMonotonic,
		Value:         rate,
		Unit:          unit + "/s",
	})
}
