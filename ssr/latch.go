package ssr

import (
	"sync"
	"time"
)

// latch counts down one module's SSR effects. It resolves once the number of
// terminated effects reaches the number still expected, where every skipped
// action lowers the expectation by one.
type latch struct {
	mu         sync.Mutex
	expected   int
	terminated int
	settledAt  time.Time
	done       chan struct{}
}

func newLatch(expected int) *latch {
	l := &latch{expected: expected, done: make(chan struct{})}
	l.check()
	return l
}

func (l *latch) terminate() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.terminated++
	l.check()
}

func (l *latch) skip() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.expected--
	l.check()
}

// check must be called with mu held, or before l is shared.
func (l *latch) check() {
	if !l.settledAt.IsZero() {
		return
	}
	if l.terminated >= l.expected {
		l.settledAt = time.Now()
		close(l.done)
	}
}

func (l *latch) settled() <-chan struct{} {
	return l.done
}

// state reports whether the latch resolved, and when.
func (l *latch) state() (bool, time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.settledAt.IsZero(), l.settledAt
}
