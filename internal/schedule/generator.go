package schedule

import (
	"time"

	"go.lepak.sg/loadbench/internal/model"
)

// Generator is the tick iterator produced by For: Next reports
// whether another tick is available, Item returns it. Generators are
// lazy, may be finite or infinite, and must not be restarted.
type Generator interface {
	Next() bool
	Item() Tick
}

// For builds the Generator for a task, selecting the iteration-count
// or time-period variant by task.Pacing: a TimePeriodPaced task gets
// the time-period generator, everything else gets the iteration-count
// one. numClients is task.Clients; it divides
// the task's total iteration counts down to this one client's share.
func For(task model.Task, params model.ParamIterator, numClients int) Generator {
	sched := NewScheduler(task.Schedule)

	if task.UsesTimePeriod() {
		return &timePeriodGenerator{
			sched:  sched,
			warmup: task.WarmupTimePeriod,
			period: task.TimePeriod,
			params: params,
			now:    time.Now,
		}
	}

	if numClients <= 0 {
		numClients = 1
	}
	return &iterationCountGenerator{
		sched:            sched,
		warmupIterations: task.WarmupIterations / numClients,
		iterations:       task.Iterations / numClients,
		params:           params,
	}
}

// iterationCountGenerator yields exactly warmup+iterations ticks.
type iterationCountGenerator struct {
	sched            Scheduler
	warmupIterations int
	iterations       int
	params           model.ParamIterator

	total    int
	emitted  int
	started  bool
	next     time.Duration
	item     Tick
}

func (g *iterationCountGenerator) Next() bool {
	if !g.started {
		g.total = g.warmupIterations + g.iterations
		g.started = true
	}
	if g.emitted >= g.total {
		return false
	}

	kind := model.Normal
	if g.emitted < g.warmupIterations {
		kind = model.Warmup
	}
	progress := float64(g.emitted+1) / float64(g.total)

	g.item = Tick{
		Offset:          g.next,
		Kind:            kind,
		Progress:        progress,
		ProgressDefined: true,
		Params:          g.params.Params(),
	}
	g.next = g.sched.Next(g.next)
	g.emitted++
	return true
}

func (g *iterationCountGenerator) Item() Tick {
	return g.item
}

// timePeriodGenerator yields ticks for warmup+measurement duration, or
// (when time_period is unset) walks the parameter source once if it
// is finite, or forever if it is infinite (an eternal task).
type timePeriodGenerator struct {
	sched  Scheduler
	warmup time.Duration
	period time.Duration
	params model.ParamIterator
	now    func() time.Time

	startedAt time.Time
	next      time.Duration
	item      Tick

	// finite-param-source bookkeeping, used only when period == 0 and
	// the param source reports a bounded size.
	boundedTotal int
	boundedSeen  int
	bounded      bool
	unbounded    bool
	started      bool
}

func (g *timePeriodGenerator) Next() bool {
	if !g.started {
		g.startedAt = g.now()
		if g.period == 0 {
			if size, ok := g.params.Size(); ok {
				g.bounded = true
				g.boundedTotal = size
			} else {
				g.unbounded = true
			}
		}
		g.started = true
	}

	elapsed := g.now().Sub(g.startedAt)

	switch {
	case g.period == 0 && g.bounded:
		if g.boundedSeen >= g.boundedTotal {
			return false
		}
		kind := model.Normal
		if elapsed < g.warmup {
			kind = model.Warmup
		}
		g.boundedSeen++
		g.item = Tick{
			Offset:          g.next,
			Kind:            kind,
			Progress:        float64(g.boundedSeen) / float64(g.boundedTotal),
			ProgressDefined: true,
			Params:          g.params.Params(),
		}
	case g.period == 0 && g.unbounded:
		kind := model.Normal
		if elapsed < g.warmup {
			kind = model.Warmup
		}
		g.item = Tick{
			Offset:          g.next,
			Kind:            kind,
			Progress:        0,
			ProgressDefined: false,
			Params:          g.params.Params(),
		}
	default:
		// When a time period is set, this generator runs purely on
		// elapsed time and calls params.Params() once per tick
		// regardless of the source's size. A finite source that runs
		// out before the period elapses is expected to wrap itself
		// around internally rather than end the task early, since a
		// load driver should keep offering load for the period the
		// operator asked for.
		if elapsed >= g.warmup+g.period {
			return false
		}
		kind := model.Normal
		if elapsed < g.warmup {
			kind = model.Warmup
		}
		g.item = Tick{
			Offset:          g.next,
			Kind:            kind,
			Progress:        float64(elapsed) / float64(g.warmup+g.period),
			ProgressDefined: true,
			Params:          g.params.Params(),
		}
	}

	g.next = g.sched.Next(g.next)
	return true
}

func (g *timePeriodGenerator) Item() Tick {
	return g.item
}
