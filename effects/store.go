package effects

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/on-the-ground/effect_ive_ssr/effects/concurrency"
	"github.com/on-the-ground/effect_ive_ssr/effects/log"
	"github.com/on-the-ground/effect_ive_ssr/internal/handlers"
)

var (
	// ErrStoreDisposed is reported for an effect started on a disposed store.
	ErrStoreDisposed = errors.New("store disposed")

	// ErrEffectPanic wraps a panic raised by an effect.
	ErrEffectPanic = errors.New("panic in effect")

	// ErrReducerPanic wraps a panic raised by a reducer.
	ErrReducerPanic = errors.New("panic in reducer")
)

// effectGrace bounds how long Dispose waits for cancelled effects to return.
const effectGrace = 50 * time.Millisecond

type store[S any] struct {
	id       string
	module   string
	resolver Resolver

	mu      sync.RWMutex
	current S

	reducers  map[string]Reducer[S]
	effects   map[string]Effect[S]
	onDispose func(S) error

	ctx        context.Context
	pipeline   *pipeline
	queue      handlers.FireAndForgetHandler[Action]
	supervisor *concurrency.Supervisor

	disposed    atomic.Bool
	disposeOnce sync.Once
	disposeErr  error
}

func newStore[S any](ctx context.Context, m *Module[S], r Resolver) *store[S] {
	s := &store[S]{
		id:         uuid.NewString(),
		module:     m.name,
		resolver:   r,
		current:    m.defaultState,
		reducers:   m.reducers,
		effects:    m.effects,
		onDispose:  m.onDispose,
		ctx:        ctx,
		supervisor: concurrency.NewSupervisor(ctx),
	}
	s.pipeline = newPipeline(s.process)
	s.queue = handlers.NewFireAndForgetHandler(ctx, m.bufferSize, s.handle, func() {})
	return s
}

func (s *store[S]) ID() string {
	return s.id
}

func (s *store[S]) State() any {
	return s.state()
}

func (s *store[S]) state() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Dispatch enqueues action. Actions are processed one at a time in dispatch
// order. Dispatch after Dispose is a no-op.
func (s *store[S]) Dispatch(action Action) {
	if s.disposed.Load() {
		log.LogEff(s.ctx, log.LogDebug, "dropped action for disposed store", map[string]interface{}{
			"module": s.module,
			"action": action.Type,
		})
		return
	}
	s.queue.FireAndForgetEffect(s.ctx, action)
}

func (s *store[S]) AddInterceptor(stage Stage) func() {
	return s.pipeline.add(stage)
}

// Stages lists the installed interceptor stages, outermost first.
func (s *store[S]) Stages() []string {
	return s.pipeline.names()
}

// Dispose cancels in-flight effects, stops processing and runs the module's
// dispose hook with the final state. Only the first call has any effect.
func (s *store[S]) Dispose() error {
	s.disposeOnce.Do(func() {
		s.disposed.Store(true)

		graceCtx, cancel := context.WithTimeout(context.WithoutCancel(s.ctx), effectGrace)
		defer cancel()
		if err := s.supervisor.Close(graceCtx); err != nil {
			log.LogEff(s.ctx, log.LogWarn, "effects still running after dispose", map[string]interface{}{
				"module": s.module,
			})
		}
		s.queue.Close()

		if s.onDispose != nil {
			s.disposeErr = s.onDispose(s.state())
		}
	})
	return s.disposeErr
}

// handle runs on the store's worker goroutine.
func (s *store[S]) handle(ctx context.Context, action Action) {
	if err := s.pipeline.handler()(ctx, action); err != nil {
		log.LogEff(s.ctx, log.LogWarn, "unhandled pipeline error", map[string]interface{}{
			"module": s.module,
			"action": action.Type,
			"error":  err,
		})
	}
}

// process is the innermost handler: reduce, then start the effect.
func (s *store[S]) process(ctx context.Context, action Action) error {
	switch action.Type {
	case TerminateActionType:
		if t, ok := action.Payload.(Termination); ok && t.Err != nil {
			return t.Err
		}
		return nil
	case FailureActionType:
		if f, ok := action.Payload.(Failure); ok && f.Err != nil {
			return fmt.Errorf("effect %s: %w", f.Cause, f.Err)
		}
		return nil
	}

	if err := s.reduce(action); err != nil {
		return err
	}

	effect, ok := s.effects[action.Type]
	if !ok {
		if action.Origin != "" {
			return s.pipeline.handler()(ctx, Terminate(action.Origin, action.Type, nil))
		}
		return nil
	}

	ec := EffectContext[S]{store: s, resolver: s.resolver, run: action.Owner()}
	errCh := s.supervisor.Go(func(ctx context.Context) error {
		return effect(ctx, ec, action.Payload)
	})
	go s.awaitEffect(action, errCh)
	return nil
}

func (s *store[S]) awaitEffect(action Action, errCh <-chan error) {
	err := <-errCh
	if errors.Is(err, concurrency.ErrPanic) {
		err = fmt.Errorf("%w: %s: %w", ErrEffectPanic, action.Type, err)
	}
	if errors.Is(err, concurrency.ErrClosed) {
		err = fmt.Errorf("%w: %s", ErrStoreDisposed, action.Type)
	}

	if action.Origin != "" {
		s.Dispatch(Terminate(action.Origin, action.Type, err))
		return
	}
	if err != nil {
		// cascaded effects report through the pipeline like SSR ones
		s.Dispatch(Fail(action.Run, action.Type, err))
	}
}

func (s *store[S]) reduce(action Action) (err error) {
	reducer, ok := s.reducers[action.Type]
	if !ok {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrReducerPanic, action.Type, r)
		}
	}()

	next := reducer(s.state(), action.Payload)

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()
	return nil
}
