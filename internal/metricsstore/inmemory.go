package metricsstore

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"
)

// histogramRange covers 1 microsecond to 1 hour at 3 significant
// figures, generous enough for both per-request latency and the
// occasional pathologically slow outlier.
const (
	histogramMin     = 1
	histogramMax     = 3_600_000_000
	histogramSigFigs = 3
)

// InMemory is a reference metrics store: it keeps every recorded
// Point in memory and maintains an HDR histogram per operation+metric
// pair for quantile queries, without touching disk or a network
// client. Adequate for tests and single-host runs; a production
// deployment would replace it with a store backed by a real metrics
// cluster, behind the same Store interface.
type InMemory struct {
	mu             sync.Mutex
	points         []Point
	histograms     map[string]*hdrhistogram.Histogram
	runID          string
	relativeOrigin time.Time
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		histograms: make(map[string]*hdrhistogram.Histogram),
	}
}

// Open assigns a fresh run identifier and anchors relative time to
// now.
func (s *InMemory) Open(lap int, meta map[string]any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runID = uuid.New().String()
	s.relativeOrigin = time.Now()
	return s.runID, nil
}

// Record appends p and, for latency/service_time points, folds its
// value (milliseconds) into that operation's histogram in
// microseconds.
func (s *InMemory) Record(p Point) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points = append(s.points, p)

	if p.Name != "latency" && p.Name != "service_time" {
		return
	}

	key := p.OperationName + "|" + p.Name
	h, ok := s.histograms[key]
	if !ok {
		h = hdrhistogram.New(histogramMin, histogramMax, histogramSigFigs)
		s.histograms[key] = h
	}
	_ = h.RecordValue(int64(p.Value * 1000))
}

// RelativeReset re-anchors the store's relative-time origin.
func (s *InMemory) RelativeReset(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relativeOrigin = at
}

// Close returns every recorded point and resets the store for reuse.
func (s *InMemory) Close() ([]Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.points
	s.points = nil
	return out, nil
}

// Quantile returns the q-quantile (0 to 1) latency or service_time in
// milliseconds for an operation, or ok=false if nothing was recorded.
func (s *InMemory) Quantile(operationName, name string, q float64) (ms float64, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.histograms[operationName+"|"+name]
	if !ok {
		return 0, false
	}
	return float64(h.ValueAtQuantile(q*100)) / 1000, true
}

// RunID returns the identifier assigned by the most recent Open.
func (s *InMemory) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// RelativeOrigin returns the current relative-time origin.
func (s *InMemory) RelativeOrigin() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.relativeOrigin
}

var _ Store = (*InMemory)(nil)
