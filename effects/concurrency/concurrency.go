package concurrency

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/on-the-ground/effect_ive_ssr/effects/log"
)

var (
	// ErrPanic wraps a value recovered from a supervised goroutine.
	ErrPanic = errors.New("panic in supervised routine")

	// ErrClosed is reported by Go once the supervisor has been closed.
	ErrClosed = errors.New("supervisor closed")
)

// Supervisor manages the lifecycle of child goroutines.
//
// Every child runs with a context derived from the supervisor's own, so that
// cancelling the parent or calling Cancel reaches all of them. Panics are
// recovered and logged; they never escape the child.
type Supervisor struct {
	parent context.Context
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewSupervisor derives a supervisor from parent.
func NewSupervisor(parent context.Context) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		parent: parent,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Context is the context children are derived from.
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// Go starts fn in its own goroutine.
//
// The returned channel receives the error fn returned, or one wrapping ErrPanic,
// and is then closed. It is buffered so callers may ignore it.
func (s *Supervisor) Go(fn func(context.Context) error) <-chan error {
	errCh := make(chan error, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		errCh <- ErrClosed
		close(errCh)
		return errCh
	}
	s.wg.Add(1)
	s.mu.Unlock()

	childCtx, cancel := context.WithCancel(s.ctx)
	ready := make(chan struct{})
	go func() {
		defer s.wg.Done()
		defer cancel()
		defer close(errCh)
		defer func() {
			if r := recover(); r != nil {
				log.LogEff(s.parent, log.LogError, "panic in child routine", map[string]interface{}{
					"panic": fmt.Sprint(r),
				})
				errCh <- fmt.Errorf("%w: %v", ErrPanic, r)
			}
		}()
		close(ready)
		errCh <- fn(childCtx)
	}()

	// Wait until the child goroutine has been started before returning
	<-ready
	return errCh
}

// Cancel cancels every child. Children still have to return on their own.
func (s *Supervisor) Cancel() {
	s.cancel()
}

// Wait blocks until all children return or ctx is done.
func (s *Supervisor) Wait(ctx context.Context) error {
	waitCh := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		return nil
	case <-ctx.Done():
		log.LogEff(s.parent, log.LogWarn, "stopped waiting for child routines", map[string]interface{}{
			"error": ctx.Err(),
		})
		return ctx.Err()
	}
}

// Close refuses new children, cancels the running ones and waits for them
// within ctx. It is safe to call more than once.
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.Wait(ctx)
}
