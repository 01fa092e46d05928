package slidingwindow

import "sync"

// LockedCounter wraps a Counter, taking a lock before every method
// call, so the dispatcher's window can be shared across the
// goroutines delivering samples for different clients.
type LockedCounter[T comparable] struct {
	lk sync.Mutex
	ct *Counter[T]
}

// NewLocked wraps counter, making it thread-safe. Do not retain the
// *Counter passed in.
func NewLocked[T comparable](counter *Counter[T]) *LockedCounter[T] {
	return &LockedCounter[T]{ct: counter}
}

func (lc *LockedCounter[T]) Get(value T) int {
	lc.lk.Lock()
	defer lc.lk.Unlock()
	return lc.ct.Get(value)
}

func (lc *LockedCounter[T]) GetAll() map[T]int {
	lc.lk.Lock()
	defer lc.lk.Unlock()
	return lc.ct.GetAll()
}

func (lc *LockedCounter[T]) Lifetime() int {
	lc.lk.Lock()
	defer lc.lk.Unlock()
	return lc.ct.Lifetime()
}

func (lc *LockedCounter[T]) Observe(value T) {
	lc.lk.Lock()
	defer lc.lk.Unlock()
	lc.ct.Observe(value)
}
