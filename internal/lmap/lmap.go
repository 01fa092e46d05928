// Package lmap provides a map combined with a linked list, preserving
// insertion order. The coordinator's request-metadata precedence merge
// needs a deterministic iteration order that a plain Go map cannot
// give, which is what this type is for; see merge.go.
package lmap

// LinkedMap is a map combined with a linked list. It preserves
// insertion order and therefore iteration order as well.
// LinkedMap is not safe for concurrent use.
type LinkedMap[K comparable, V any] struct {
	m map[K]*entryb[K, V]

	head, tail *entryb[K, V]
}

type entryb[K comparable, V any] struct {
	k K
	v V

	prev, next *entryb[K, V]
}

// New returns a pointer to a new LinkedMap.
func New[K comparable, V any]() *LinkedMap[K, V] {
	return &LinkedMap[K, V]{
		m: make(map[K]*entryb[K, V]),
	}
}

func (l *LinkedMap[K, V]) remove(e *entryb[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		l.head = e.next
	}

	if e.next != nil {
		e.next.prev = e.prev
	} else {
		l.tail = e.prev
	}
}

func (l *LinkedMap[K, V]) push(e *entryb[K, V]) {
	if l.head == nil && l.tail == nil {
		l.head, l.tail = e, e
		return
	}

	e.prev = l.tail
	l.tail.next = e
	e.next = nil
	l.tail = e
}

// Get behaves like the map access `v, ok := l[k]`.
func (l *LinkedMap[K, V]) Get(k K) (v V, ok bool) {
	e, ok := l.m[k]
	if !ok {
		return
	}
	return e.v, true
}

// Set behaves like the map set `l[k] = v`. If k is not yet in the
// map, it is appended to the tail of the list; if it already is, its
// position is left unchanged and only the value is overwritten — the
// precedence merge in merge.go relies on this to let a later,
// higher-precedence Set win without disturbing ordering.
func (l *LinkedMap[K, V]) Set(k K, v V) {
	e, exist := l.m[k]
	if exist {
		e.v = v
		return
	}

	e = &entryb[K, V]{k: k, v: v}
	l.m[k] = e
	l.push(e)
}

// Delete behaves like `delete(l, k)`. ok is false if the key was not found.
func (l *LinkedMap[K, V]) Delete(k K) (ok bool) {
	e, ok := l.m[k]
	if !ok {
		return
	}
	l.remove(e)
	delete(l.m, k)
	return
}

// ForEach calls f for every key-value pair in insertion order. If f
// returns false, iteration stops early. The result of modifying the
// map while iterating over it is undefined.
func (l *LinkedMap[K, V]) ForEach(f func(k K, v V) bool) {
	for e := l.head; e != nil; e = e.next {
		if !f(e.k, e.v) {
			break
		}
	}
}

// Len behaves like `len(l)`. This is a constant-time operation.
func (l *LinkedMap[K, V]) Len() int {
	return len(l.m)
}

// ToMap materializes the LinkedMap into a plain map, discarding order.
func (l *LinkedMap[K, V]) ToMap() map[K]V {
	out := make(map[K]V, l.Len())
	l.ForEach(func(k K, v V) bool {
		out[k] = v
		return true
	})
	return out
}
