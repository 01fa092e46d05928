// Package schedule turns a model.Task and its parameter source into a
// lazy stream of dispatch ticks, rate-limited by an optional
// scheduler. The Generator interface (generator.go) has a Next/Item
// iterator shape: no restart, safe to abandon.
package schedule

import (
	"time"

	"go.lepak.sg/loadbench/internal/model"
)

// Tick is one dispatch instruction yielded by a Generator: when to
// fire relative to the task's start, what kind of sample it produces,
// how far through the task this tick is, and the params to run with.
type Tick struct {
	Offset          time.Duration
	Kind            model.SampleKind
	Progress        float64
	ProgressDefined bool
	Params          map[string]any
}
