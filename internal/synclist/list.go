// Package synclist provides a list that can be iterated by several
// consumers at once while other goroutines keep mutating it.
//
// Every structural change bumps a modification counter. A consumer remembers
// the counter it started with and its next GetNext call fails with
// ErrModifiedList once the list changed underneath it. The consumer is expected
// to abandon the sweep, stop iterating and try again later.
package synclist

import (
	"sync"

	ierr "github.com/cloudfin/finance/internal/errors"
)

var (
	// ErrModifiedList is returned by GetNext after the list changed since the
	// consumer started iterating or last reset its pointer.
	ErrModifiedList = ierr.NewError("list modified during iteration").
		WithHint("The list changed while it was being iterated, start again").
		Mark(ierr.ErrInvalidOperation)

	// ErrInvalidConsumer is returned for consumer ids that were never issued
	// or were already released.
	ErrInvalidConsumer = ierr.NewError("invalid consumer id").
		Mark(ierr.ErrInvalidParameter)
)

type cursor struct {
	pos      int
	modCount uint64
}

// List is safe for concurrent use. The zero value is not usable, use New.
type List[T comparable] struct {
	mu        sync.RWMutex
	items     []T
	modCount  uint64
	nextID    int
	consumers map[int]*cursor
}

func New[T comparable]() *List[T] {
	return &List[T]{consumers: make(map[int]*cursor)}
}

// Add appends item to the end of the list
func (l *List[T]) Add(item T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.items = append(l.items, item)
	l.modCount++
}

// Remove deletes the first occurrence of item
func (l *List[T]) Remove(item T) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, v := range l.items {
		if v == item {
			l.items = append(l.items[:i], l.items[i+1:]...)
			l.modCount++
			return nil
		}
	}

	return ierr.NewError("item not found in list").
		Mark(ierr.ErrNotFound)
}

func (l *List[T]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Snapshot returns a copy of the current elements
func (l *List[T]) Snapshot() []T {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]T, len(l.items))
	copy(out, l.items)
	return out
}

// StartIterating registers a new consumer positioned at the head of the list
func (l *List[T]) StartIterating() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := l.nextID
	l.nextID++
	l.consumers[id] = &cursor{modCount: l.modCount}
	return id
}

// GetNext returns the next element for the consumer. The boolean is false once
// the consumer reached the end of the list.
func (l *List[T]) GetNext(id int) (T, bool, error) {
	var zero T

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.consumers[id]
	if !ok {
		return zero, false, ErrInvalidConsumer
	}
	if c.modCount != l.modCount {
		return zero, false, ErrModifiedList
	}
	if c.pos >= len(l.items) {
		return zero, false, nil
	}

	item := l.items[c.pos]
	c.pos++
	return item, true, nil
}

// StopIterating releases the consumer id
func (l *List[T]) StopIterating(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.consumers[id]; !ok {
		return ErrInvalidConsumer
	}
	delete(l.consumers, id)
	return nil
}

// ResetPointer moves the consumer back to the head and accepts the current
// state of the list as its new baseline.
func (l *List[T]) ResetPointer(id int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.consumers[id]
	if !ok {
		return ErrInvalidConsumer
	}
	c.pos = 0
	c.modCount = l.modCount
	return nil
}

// Consumers returns the number of consumers that have not called
// StopIterating yet
func (l *List[T]) Consumers() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.consumers)
}
