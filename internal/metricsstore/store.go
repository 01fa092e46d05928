// Package metricsstore defines the narrow external interface the
// coordinator writes metric points through (the persistent metrics
// store itself is an external system this package doesn't own), plus
// an in-memory reference implementation for tests and single-host
// runs.
package metricsstore

import (
	"time"
)

// Point is one metric observation recorded by the aggregator: either
// a per-sample latency/service_time point, or a bucketed throughput
// point.
type Point struct {
	Name          string // "latency", "service_time", or "throughput"
	OperationName string
	Kind          string // model.SampleKind.String(), kept as a string to avoid a model import here
	AbsoluteTime  time.Time
	RelativeTime  time.Duration
	Value         float64
	Unit          string
	Meta          map[string]any
}

// Store is the external metrics store contract. Open is called once
// before the first ParallelGroup starts; Close once at the final
// barrier. RelativeReset re-anchors RelativeTime for points recorded
// after it, driven by a dedicated coordinator tick.
type Store interface {
	Open(lap int, meta map[string]any) (runID string, err error)
	Record(p Point)
	RelativeReset(at time.Time)
	Close() ([]Point, error)
}
