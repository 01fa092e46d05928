package model

import "time"

// ScheduleKind selects the inter-arrival pacing a Task's schedule
// generator uses between dispatches. See internal/schedule.
type ScheduleKind string

const (
	ScheduleDeterministic ScheduleKind = "deterministic"
	SchedulePoisson       ScheduleKind = "poisson"
	ScheduleBenchmark     ScheduleKind = "benchmarking" // unconstrained, back-to-back
)

// ScheduleSpec is the pacing descriptor attached to a Task.
type ScheduleSpec struct {
	Kind             ScheduleKind
	TargetThroughput float64 // operations/second; ignored by ScheduleBenchmark
}

// Pacing selects how a Task's schedule generator decides when to stop:
// after a fixed number of iterations, or after a wall-clock period
// (possibly eternal, possibly bounded by parameter-source exhaustion).
type Pacing int

const (
	IterationCountPaced Pacing = iota
	TimePeriodPaced
)

// Task wraps an Operation with the execution parameters needed to
// build a schedule generator for it. Pacing selects which of the two
// field pairs below applies; see schedule.For.
type Task struct {
	Operation Operation
	Meta      map[string]any

	Clients  int
	Schedule ScheduleSpec
	Pacing   Pacing

	WarmupIterations int
	Iterations       int

	WarmupTimePeriod time.Duration
	TimePeriod       time.Duration // zero under TimePeriodPaced means "unbounded": eternal or param-source-bounded

	// CompletesParent, when true, means this task's completion forces
	// every sibling task in the same ParallelGroup to stop (§3, §4.C).
	CompletesParent bool
}

// UsesTimePeriod reports whether this task is scheduled by elapsed
// time (possibly eternal) rather than by a fixed iteration count.
func (t Task) UsesTimePeriod() bool {
	return t.Pacing == TimePeriodPaced
}

// ParallelGroup is an ordered list of Tasks intended to run
// concurrently; the top-level schedule is an ordered sequence of
// ParallelGroups, implicitly separated by barriers.
type ParallelGroup struct {
	Tasks []Task
}

// Schedule is the declarative benchmark description: an ordered
// sequence of ParallelGroups.
type Schedule []ParallelGroup
