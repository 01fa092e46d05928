// Package sampler implements a bounded sample queue: add is
// non-blocking and drops samples under overflow rather than stall the
// executor; drain atomically empties whatever is queued. Built on
// internal/chops's TrySend/TryRecv non-blocking channel idiom so a
// producer never waits on a consumer.
package sampler

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.lepak.sg/loadbench/internal/chops"
	"go.lepak.sg/loadbench/internal/model"
)

// Capacity is the fixed queue size.
const Capacity = 16384

// Sampler is a bounded, non-blocking queue of model.Sample. The zero
// value is not usable; construct with New.
type Sampler struct {
	ch      chan model.Sample
	dropped atomic.Int64
	log     *logrus.Entry
}

// New constructs a Sampler at the fixed queue capacity.
func New(log *logrus.Entry) *Sampler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Sampler{
		ch:  make(chan model.Sample, Capacity),
		log: log,
	}
}

// Add enqueues a sample without blocking. If the queue is full the
// sample is dropped and a warning logged; the Executor must never
// stall waiting for queue space.
func (s *Sampler) Add(sample model.Sample) {
	switch chops.TrySend(s.ch, sample) {
	case chops.Ok:
	case chops.Blocked:
		n := s.dropped.Add(1)
		s.log.WithFields(logrus.Fields{
			"task":          sample.Task.Operation.Name,
			"client_id":     sample.ClientID,
			"total_dropped": n,
		}).Warn("sampler queue full, dropping sample")
	case chops.Closed:
		s.log.Warn("sample added after sampler was closed")
	}
}

// Drain returns every sample currently queued, without blocking for
// more to arrive.
func (s *Sampler) Drain() []model.Sample {
	var out []model.Sample
	for {
		r := chops.TryRecv(s.ch)
		v, status := r.Get()
		if status != chops.Ok {
			return out
		}
		out = append(out, v)
	}
}

// Dropped returns the running count of samples dropped due to
// overflow.
func (s *Sampler) Dropped() int64 {
	return s.dropped.Load()
}

// Close releases the underlying channel. Only the owning worker
// should call this, after its final drain.
func (s *Sampler) Close() {
	close(s.ch)
}
