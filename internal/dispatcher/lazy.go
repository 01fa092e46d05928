// Package dispatcher routes keyed items to a lazily-created, lazily-
// evicted Acceptor per key. The coordinator uses it to route each
// worker's UpdateSamples batch to a per-client sample ingestion
// pipeline (internal/batcher) without pre-creating one per possible
// client id, and to tear one down once that client has gone quiet for
// a while (e.g. after it reaches Terminal).
package dispatcher

import (
	"fmt"
	"sync"
	"sync/atomic"

	"go.lepak.sg/loadbench/internal/slidingwindow"
)

const defaultWindow = 100

// Keyer is the interface of items that Lazy accepts. Key should be a
// pure function: it must always return the same key for the same
// item.
type Keyer interface {
	Key() string
}

// Acceptor is the interface that Lazy routes Keyers to.
type Acceptor interface {
	Accept(Keyer) error
	// Close is called when the Acceptor is no longer required.
	Close()
}

type counter interface {
	Observe(string)
}

type acceptorEntry struct {
	acceptor Acceptor
	refCount int64
}

// Lazy is a keyed, lazily-dispatching router with idle eviction.
type Lazy struct {
	active  map[string]*acceptorEntry
	window  counter
	factory func(string) (Acceptor, error)
	lock    sync.RWMutex
}

var _ Acceptor = (*Lazy)(nil)

// NewLazy creates a lazy dispatcher. It accepts items, obtains a key
// for each by calling its Key method, then sends it to the Acceptor
// for that key, creating one via factory if needed. Once an Acceptor
// has been idle for windowSize items, it is closed and removed.
func NewLazy(factory func(string) (Acceptor, error), windowSize, keyCardinality int) *Lazy {
	ld := &Lazy{
		active:  make(map[string]*acceptorEntry),
		factory: factory,
	}

	if windowSize < 1 {
		windowSize = defaultWindow
	}

	ld.window = slidingwindow.NewLocked(slidingwindow.NewCounter(
		windowSize, keyCardinality, ld.cleanup))

	return ld
}

func (ld *Lazy) newAcceptor(key string) (ac Acceptor, err error) {
	defer func() {
		switch r := recover().(type) {
		case error:
			err = fmt.Errorf("factory panicked: %w", r)
		case nil:
			if err != nil {
				err = fmt.Errorf("factory: %w", err)
			}
		default:
			err = fmt.Errorf("factory panicked: %v", r)
		}
	}()
	ac, err = ld.factory(key)
	return
}

// Accept accepts a keyable item for dispatching. Any error from the
// acceptor or its factory is returned.
func (ld *Lazy) Accept(item Keyer) error {
	key, err := safeKey(item)
	if err != nil {
		return err
	}

	ld.lock.RLock()
	if ld.window == nil {
		ld.lock.RUnlock()
		panic("dispatcher: Accept called after Close")
	}

	dest, ok := ld.active[key]
	if ok {
		atomic.AddInt64(&dest.refCount, 1)
	}
	ld.lock.RUnlock()

	if !ok {
		acceptor, err := ld.newAcceptor(key)
		if err != nil {
			return err
		}

		ld.lock.Lock()
		if ld.window == nil {
			ld.lock.Unlock()
			panic("dispatcher: Accept called after Close")
		}

		dest, ok = ld.active[key]
		if !ok {
			dest = &acceptorEntry{acceptor: acceptor, refCount: 1}
			ld.active[key] = dest
		} else {
			atomic.AddInt64(&dest.refCount, 1)
		}
		ld.lock.Unlock()

		if ok {
			acceptor.Close()
		}
	}

	ld.window.Observe(key)
	err = dest.acceptor.Accept(item)
	refcount := atomic.AddInt64(&dest.refCount, -1)
	if refcount < 0 {
		panic(fmt.Sprintf("dispatcher: refcount after use < 0, key=%q refcount=%d", key, refcount))
	}
	return err
}

// Close closes every active Acceptor. Accept must not be called after Close.
func (ld *Lazy) Close() {
	ld.lock.Lock()
	defer ld.lock.Unlock()

	ld.window = nil
	for _, dest := range ld.active {
		dest.acceptor.Close()
	}
}

func (ld *Lazy) cleanup(key string) {
	ld.lock.Lock()
	dest, ok := ld.active[key]
	if !ok {
		ld.lock.Unlock()
		panic("dispatcher: cleanup of key not in active set")
	}
	refcount := atomic.LoadInt64(&dest.refCount)
	if refcount > 0 {
		ld.lock.Unlock()
		return
	} else if refcount < 0 {
		panic(fmt.Sprintf("dispatcher: refcount at cleanup < 0, key=%q refcount=%d", key, refcount))
	}
	delete(ld.active, key)
	ld.lock.Unlock()

	dest.acceptor.Close()
}

func safeKey(item Keyer) (k string, err error) {
	defer func() {
		switch r := recover().(type) {
		case error:
			err = fmt.Errorf("keyer panicked: %w", r)
		case nil:
			return
		default:
			err = fmt.Errorf("keyer panicked: %v", r)
		}
	}()
	k = item.Key()
	return
}
