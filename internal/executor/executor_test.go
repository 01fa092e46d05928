package executor_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lepak.sg/loadbench/internal/executor"
	"go.lepak.sg/loadbench/internal/model"
	"go.lepak.sg/loadbench/internal/schedule"
)

type fakeClock struct {
	now   time.Time
	slept []time.Duration
}

func (c *fakeClock) Now() time.Time { return c.now }
func (c *fakeClock) Sleep(d time.Duration) {
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
}

type fakeGen struct {
	ticks []tickSpec
	idx   int
}

type tickSpec struct {
	offset   time.Duration
	kind     model.SampleKind
	progress float64
	defined  bool
}

func (g *fakeGen) Next() bool { return g.idx < len(g.ticks) }
func (g *fakeGen) Item() schedule.Tick {
	spec := g.ticks[g.idx]
	g.idx++
	return schedule.Tick{
		Offset:          spec.offset,
		Kind:            spec.kind,
		Progress:        spec.progress,
		ProgressDefined: spec.defined,
		Params:          map[string]any{},
	}
}

type recordingSink struct {
	samples []model.Sample
}

func (s *recordingSink) Add(sample model.Sample) {
	s.samples = append(s.samples, sample)
}

func TestRun_SuccessfulRunnerProducesSamples(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sink := &recordingSink{}
	var cancel, complete atomic.Bool

	e := &executor.Executor{
		ClientID: 3,
		Task:     model.Task{Operation: model.Operation{Name: "bulk"}},
		Runner: func(ctx context.Context, client any, params map[string]any) (executor.RunnerResult, error) {
			return executor.RunnerResult{OpsCount: 10, OpsUnit: "docs"}, nil
		},
		Sink:     sink,
		Cancel:   &cancel,
		Complete: &complete,
		Clock:    clock,
	}

	gen := &fakeGen{ticks: []tickSpec{
		{offset: 0, kind: model.Warmup, progress: 0.5, defined: true},
		{offset: 0, kind: model.Normal, progress: 1.0, defined: true},
	}}

	err := e.Run(context.Background(), gen)
	require.NoError(t, err)
	require.Len(t, sink.samples, 2)
	assert.Equal(t, int64(10), sink.samples[0].OpsCount)
	assert.Equal(t, "docs", sink.samples[0].OpsUnit)
	assert.True(t, sink.samples[0].RequestMeta.Success())
}

func TestRun_DefaultOpsWhenRunnerReturnsZeroValue(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sink := &recordingSink{}
	var cancel, complete atomic.Bool

	e := &executor.Executor{
		Task: model.Task{Operation: model.Operation{Name: "noop"}},
		Runner: func(ctx context.Context, client any, params map[string]any) (executor.RunnerResult, error) {
			return executor.RunnerResult{}, nil
		},
		Sink:     sink,
		Cancel:   &cancel,
		Complete: &complete,
		Clock:    clock,
	}

	gen := &fakeGen{ticks: []tickSpec{{offset: 0, kind: model.Normal, progress: 1, defined: true}}}
	require.NoError(t, e.Run(context.Background(), gen))
	require.Len(t, sink.samples, 1)
	assert.Equal(t, int64(1), sink.samples[0].OpsCount)
	assert.Equal(t, "ops", sink.samples[0].OpsUnit)
}

func TestRun_ProtocolErrorBecomesFailedSampleAndContinues(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sink := &recordingSink{}
	var cancel, complete atomic.Bool

	calls := 0
	e := &executor.Executor{
		Task: model.Task{Operation: model.Operation{Name: "search"}},
		Runner: func(ctx context.Context, client any, params map[string]any) (executor.RunnerResult, error) {
			calls++
			return executor.RunnerResult{}, errors.New("connection reset")
		},
		Sink:     sink,
		Cancel:   &cancel,
		Complete: &complete,
		Clock:    clock,
	}

	gen := &fakeGen{ticks: []tickSpec{
		{offset: 0, kind: model.Normal, progress: 0.5, defined: true},
		{offset: 0, kind: model.Normal, progress: 1, defined: true},
	}}

	require.NoError(t, e.Run(context.Background(), gen))
	assert.Equal(t, 2, calls)
	require.Len(t, sink.samples, 2)
	assert.False(t, sink.samples[0].RequestMeta.Success())
	assert.Equal(t, "connection reset", sink.samples[0].RequestMeta["error"])
}

func TestRun_MissingParameterErrorIsFatalAndAborts(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sink := &recordingSink{}
	var cancel, complete atomic.Bool

	e := &executor.Executor{
		Task: model.Task{Operation: model.Operation{Name: "search"}},
		Runner: func(ctx context.Context, client any, params map[string]any) (executor.RunnerResult, error) {
			return executor.RunnerResult{}, &executor.MissingParameterError{Operation: "search", Param: "index"}
		},
		Sink:     sink,
		Cancel:   &cancel,
		Complete: &complete,
		Clock:    clock,
	}

	gen := &fakeGen{ticks: []tickSpec{{offset: 0, kind: model.Normal, progress: 1, defined: true}}}
	err := e.Run(context.Background(), gen)
	require.Error(t, err)
	assert.Empty(t, sink.samples)
}

func TestRun_CancelFlagStopsBeforeNextTick(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sink := &recordingSink{}
	var cancel, complete atomic.Bool
	cancel.Store(true)

	calls := 0
	e := &executor.Executor{
		Task: model.Task{Operation: model.Operation{Name: "search"}},
		Runner: func(ctx context.Context, client any, params map[string]any) (executor.RunnerResult, error) {
			calls++
			return executor.RunnerResult{}, nil
		},
		Sink:     sink,
		Cancel:   &cancel,
		Complete: &complete,
		Clock:    clock,
	}

	gen := &fakeGen{ticks: []tickSpec{{offset: 0, kind: model.Normal, progress: 1, defined: true}}}
	require.NoError(t, e.Run(context.Background(), gen))
	assert.Equal(t, 0, calls)
	assert.Empty(t, sink.samples)
}

func TestRun_CompletesParentSetsCompleteFlag(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sink := &recordingSink{}
	var cancel, complete atomic.Bool

	e := &executor.Executor{
		Task: model.Task{Operation: model.Operation{Name: "search"}, CompletesParent: true},
		Runner: func(ctx context.Context, client any, params map[string]any) (executor.RunnerResult, error) {
			return executor.RunnerResult{}, nil
		},
		Sink:     sink,
		Cancel:   &cancel,
		Complete: &complete,
		Clock:    clock,
	}

	gen := &fakeGen{ticks: []tickSpec{{offset: 0, kind: model.Normal, progress: 1, defined: true}}}
	require.NoError(t, e.Run(context.Background(), gen))
	assert.True(t, complete.Load())
}

func TestRun_CompleteFlagForcesProgressToOneAndStopsAfterEnqueue(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sink := &recordingSink{}
	var cancel, complete atomic.Bool

	calls := 0
	e := &executor.Executor{
		Task: model.Task{Operation: model.Operation{Name: "search"}},
		Runner: func(ctx context.Context, client any, params map[string]any) (executor.RunnerResult, error) {
			calls++
			complete.Store(true) // sibling task completed the parent mid-flight
			return executor.RunnerResult{}, nil
		},
		Sink:     sink,
		Cancel:   &cancel,
		Complete: &complete,
		Clock:    clock,
	}

	gen := &fakeGen{ticks: []tickSpec{
		{offset: 0, kind: model.Normal, progress: 0.1, defined: true},
		{offset: 0, kind: model.Normal, progress: 0.2, defined: true},
		{offset: 0, kind: model.Normal, progress: 0.3, defined: true},
	}}

	require.NoError(t, e.Run(context.Background(), gen))
	assert.Equal(t, 1, calls)
	require.Len(t, sink.samples, 1)
	assert.Equal(t, 1.0, sink.samples[0].Progress)
	assert.True(t, sink.samples[0].ProgressDefined)
}

func TestRun_SleepsUntilThrottledDispatchTime(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	sink := &recordingSink{}
	var cancel, complete atomic.Bool

	e := &executor.Executor{
		Task: model.Task{Operation: model.Operation{Name: "search"}},
		Runner: func(ctx context.Context, client any, params map[string]any) (executor.RunnerResult, error) {
			return executor.RunnerResult{}, nil
		},
		Sink:      sink,
		Cancel:    &cancel,
		Complete:  &complete,
		Clock:     clock,
		TaskStart: time.Unix(0, 0),
	}

	gen := &fakeGen{ticks: []tickSpec{{offset: 50 * time.Millisecond, kind: model.Normal, progress: 1, defined: true}}}
	require.NoError(t, e.Run(context.Background(), gen))
	require.Len(t, clock.slept, 1)
	assert.Equal(t, 50*time.Millisecond, clock.slept[0])
}
