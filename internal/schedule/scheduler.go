package schedule

import (
	"math"
	"math/rand"
	"time"

	"go.lepak.sg/loadbench/internal/model"
)

// Scheduler advances the running "next_scheduled" offset between
// successive ticks of the same task: Next takes the previous offset
// and returns the next one. The deterministic and benchmark schedulers
// keep no state between calls; the Poisson one advances its own
// random source on every call.
type Scheduler interface {
	Next(prev time.Duration) time.Duration
}

// NewScheduler builds the Scheduler named by spec.Kind. An unknown
// kind falls back to Benchmark (unconstrained), matching the
// original's default when no rate-limiting schedule is configured.
func NewScheduler(spec model.ScheduleSpec) Scheduler {
	switch spec.Kind {
	case model.ScheduleDeterministic:
		return deterministicScheduler{interval: rate(spec.TargetThroughput)}
	case model.SchedulePoisson:
		return &poissonScheduler{rate: spec.TargetThroughput, rnd: rand.New(rand.NewSource(1))}
	default:
		return benchmarkScheduler{}
	}
}

func rate(targetThroughput float64) time.Duration {
	if targetThroughput <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / targetThroughput)
}

// deterministicScheduler fires at a fixed period: prev + 1/target.
type deterministicScheduler struct {
	interval time.Duration
}

func (s deterministicScheduler) Next(prev time.Duration) time.Duration {
	return prev + s.interval
}

// poissonScheduler fires at exponentially distributed inter-arrival
// times with the given mean rate, modeling an open Poisson process of
// independent clients the way the original's "poisson" schedule does.
type poissonScheduler struct {
	rate float64
	rnd  *rand.Rand
}

func (s *poissonScheduler) Next(prev time.Duration) time.Duration {
	if s.rate <= 0 {
		return prev
	}
	// Inverse-transform sampling of Exp(rate): -ln(1-U)/rate.
	u := s.rnd.Float64()
	secs := -math.Log(1-u) / s.rate
	return prev + time.Duration(secs*float64(time.Second))
}

// benchmarkScheduler is unconstrained: every tick is dispatched as
// soon as the previous one's runner returns, back-to-back.
type benchmarkScheduler struct{}

func (benchmarkScheduler) Next(prev time.Duration) time.Duration {
	return prev
}
