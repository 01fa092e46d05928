// Package executor drives one task's schedule generator to
// completion, invoking the external Runner contract for each tick and
// turning its result into a model.Sample, timing each call the way a
// profiling wrapper would. Built as a small struct with an explicit
// Run method rather than a bare function (c.f. internal/laminar.Group).
package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.lepak.sg/loadbench/internal/model"
	"go.lepak.sg/loadbench/internal/schedule"
)

// RunnerResult is what a successful Runner call reports: either an
// explicit (ops_count, ops_unit) pair, or request metadata (at least
// success, optionally weight/unit/error-description/http-status).
// Per the runner contract, a zero RunnerResult means "(1, ops)".
type RunnerResult struct {
	OpsCount int64
	OpsUnit  string
	Meta     model.RequestMeta
}

func (r RunnerResult) opsCountOrDefault() (int64, string) {
	if r.OpsCount == 0 && r.OpsUnit == "" {
		return 1, "ops"
	}
	return r.OpsCount, r.OpsUnit
}

// MissingParameterError is fatal: the worker must abort the benchmark
// and report BenchmarkFailure rather than record a failed sample.
type MissingParameterError struct {
	Operation string
	Param     string
}

func (e *MissingParameterError) Error() string {
	return "missing parameter " + e.Param + " for operation " + e.Operation
}

// Runner is the external per-operation contract: invoke the
// operation's implementation against client with the given
// parameters. A non-nil, non-MissingParameterError error is treated
// as a protocol/transport failure and folded into a failed sample.
type Runner func(ctx context.Context, client any, params map[string]any) (RunnerResult, error)

// Clock abstracts time.Now/time.Sleep so tests can run the scheduler
// loop without waiting on real wall-clock gaps.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time     { return time.Now() }
func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Sink is where completed samples are pushed; internal/sampler.Sampler
// satisfies it.
type Sink interface {
	Add(model.Sample)
}

// Executor runs one task's generator to completion for one client.
type Executor struct {
	ClientID  int
	Task      model.Task
	Runner    Runner
	Client    any
	Sink      Sink
	Cancel    *atomic.Bool
	Complete  *atomic.Bool
	Clock     Clock
	TaskStart time.Time
}

// NewExecutor constructs an Executor with a real wall clock.
func NewExecutor(clientID int, task model.Task, runner Runner, client any, sink Sink, cancel, complete *atomic.Bool) *Executor {
	return &Executor{
		ClientID: clientID,
		Task:     task,
		Runner:   runner,
		Client:   client,
		Sink:     sink,
		Cancel:   cancel,
		Complete: complete,
		Clock:    realClock{},
	}
}

// Run drives gen to completion, pushing one Sample per tick into the
// Sink. It returns a non-nil error only for a fatal
// MissingParameterError from the Runner; any other Runner error is
// recorded as a failed sample and execution continues.
func (e *Executor) Run(ctx context.Context, gen schedule.Generator) error {
	if e.Clock == nil {
		e.Clock = realClock{}
	}
	if e.TaskStart.IsZero() {
		e.TaskStart = e.Clock.Now()
	}

	for gen.Next() {
		if e.Cancel != nil && e.Cancel.Load() {
			break
		}

		tick := gen.Item()

		absoluteDispatch := e.TaskStart.Add(tick.Offset)
		throttled := tick.Offset > 0
		if throttled {
			if wait := absoluteDispatch.Sub(e.Clock.Now()); wait > 0 {
				e.Clock.Sleep(wait)
			}
		}

		t0 := e.Clock.Now()
		result, err := e.Runner(ctx, e.Client, tick.Params)
		t1 := e.Clock.Now()

		var missing *MissingParameterError
		if errors.As(err, &missing) {
			return err
		}

		serviceTime := t1.Sub(t0)
		latency := serviceTime
		if throttled {
			latency = t1.Sub(absoluteDispatch)
		}

		meta := result.Meta
		if err != nil {
			if meta == nil {
				meta = model.RequestMeta{}
			}
			meta["success"] = false
			meta["error"] = err.Error()
		}

		opsCount, opsUnit := result.opsCountOrDefault()

		progress := tick.Progress
		progressDefined := tick.ProgressDefined
		last := false
		if e.Complete != nil && e.Complete.Load() {
			progress = 1.0
			progressDefined = true
			last = true
		}

		e.Sink.Add(model.Sample{
			ClientID:              e.ClientID,
			Task:                  e.Task,
			AbsoluteWallTime:      t1,
			RelativeMonotonic:     t1.Sub(e.TaskStart),
			ElapsedSinceTaskStart: t1.Sub(e.TaskStart),
			Kind:                  tick.Kind,
			RequestMeta:           meta,
			LatencyMS:             latency.Seconds() * 1000,
			ServiceTimeMS:         serviceTime.Seconds() * 1000,
			OpsCount:              opsCount,
			OpsUnit:               opsUnit,
			Progress:              progress,
			ProgressDefined:       progressDefined,
		})

		if last {
			break
		}
	}

	if e.Task.CompletesParent && e.Complete != nil {
		e.Complete.Store(true)
	}

	return nil
}
