package ssr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/on-the-ground/effect_ive_ssr/effects"
	"github.com/on-the-ground/effect_ive_ssr/effects/concurrency"
	"github.com/on-the-ground/effect_ive_ssr/effects/log"
)

// Stage names installed on every store for the duration of a run.
const (
	ErrorStageName      = "ssr.error"
	CompletionStageName = "ssr.complete"
)

type run struct {
	id        string
	req       any
	cfg       Config
	scope     effects.Scope
	cache     *SharedCache
	storeCtx  context.Context
	collector *collector
	cleanups  cleanupList
	span      trace.Span
}

// subtask drives one module: resolve its store, dispatch its SSR actions and
// wait until every dispatched action terminated.
func (r *run) subtask(ctx context.Context, d effects.Descriptor) error {
	name := d.ModuleName()
	actions := d.SSRActions()

	store, shared, err := r.resolveStore(ctx, d)
	if err != nil {
		return err
	}

	l := newLatch(len(actions))
	failCh := make(chan error, 1)
	fail := func(err error) {
		select {
		case failCh <- err:
		default:
		}
	}

	removeError := store.AddInterceptor(r.errorStage(fail))
	removeCompletion := store.AddInterceptor(r.completionStage(name, l))
	registered := r.cleanups.add(func() error {
		r.capture(name, store, l)
		removeCompletion()
		removeError()
		if shared {
			return nil
		}
		if err := store.Dispose(); err != nil {
			return fmt.Errorf("dispose %s: %w", name, err)
		}
		return nil
	})
	if !registered {
		return ctx.Err()
	}

	producers := concurrency.NewSupervisor(ctx)
	for _, a := range actions {
		if a.Producer == nil {
			store.Dispatch(effects.Action{Type: a.Type, Origin: r.id})
			continue
		}

		errCh := producers.Go(func(ctx context.Context) error {
			payload, err := a.Producer(ctx, r.req)
			switch {
			case errors.Is(err, effects.ErrSkip):
				l.skip()
				return nil
			case err != nil:
				return fmt.Errorf("produce %s/%s: %w", name, a.Type, err)
			case ctx.Err() != nil:
				return ctx.Err()
			}
			store.Dispatch(effects.Action{Type: a.Type, Payload: payload, Origin: r.id})
			return nil
		})
		go func() {
			if err := <-errCh; err != nil {
				fail(err)
			}
		}()
	}

	select {
	case <-l.settled():
		r.capture(name, store, l)
		return nil
	case err := <-failCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// resolveStore reuses the shared store of the module when the run has a shared
// key, and publishes a fresh one otherwise. Shared stores are built from the
// coordinator's store context rather than the run's.
func (r *run) resolveStore(ctx context.Context, d effects.Descriptor) (effects.Store, bool, error) {
	name := d.ModuleName()
	key := r.cfg.SharedKey

	instCtx := ctx
	if key != "" {
		if s, ok := r.cache.Load(key, name); ok {
			return s, true, nil
		}
		instCtx = r.storeCtx
	}

	inst, err := r.scope.Instance(instCtx, d)
	if err != nil {
		return nil, false, err
	}
	store := inst.Store()
	if key == "" {
		return store, false, nil
	}

	actual, loaded := r.cache.LoadOrStore(key, name, store)
	if loaded {
		if err := store.Dispose(); err != nil {
			log.LogEff(ctx, log.LogWarn, "failed to dispose duplicate shared store", map[string]interface{}{
				"module": name,
				"error":  err,
			})
		}
	}
	return actual, true, nil
}

// errorStage forwards the first processing error of this run and then
// swallows everything this run would process. Actions of other runs pass
// through untouched; actions dispatched outside any run are treated as this
// run's own.
func (r *run) errorStage(fail func(error)) effects.Stage {
	var failed atomic.Bool
	return effects.Stage{
		Name: ErrorStageName,
		Wrap: func(next effects.Handler) effects.Handler {
			return func(ctx context.Context, a effects.Action) error {
				if owner := a.Owner(); owner != "" && owner != r.id {
					return next(ctx, a)
				}
				if failed.Load() {
					return nil
				}
				if err := next(ctx, a); err != nil && failed.CompareAndSwap(false, true) {
					fail(err)
				}
				return nil
			}
		},
	}
}

// completionStage counts this run's terminations and records retry signals of
// actions that processed successfully.
func (r *run) completionStage(module string, l *latch) effects.Stage {
	return effects.Stage{
		Name: CompletionStageName,
		Wrap: func(next effects.Handler) effects.Handler {
			return func(ctx context.Context, a effects.Action) error {
				if err := next(ctx, a); err != nil {
					return err
				}
				switch a.Type {
				case effects.TerminateActionType:
					if a.Origin == r.id {
						l.terminate()
					}
				case effects.RetryActionType:
					if owner := a.Owner(); owner != "" && owner != r.id {
						return nil
					}
					if p, ok := a.Payload.(effects.Retry); ok {
						r.collector.retry(module, p.Name)
					}
				}
				return nil
			}
		},
	}
}

func (r *run) capture(module string, store effects.Store, l *latch) {
	complete, settledAt := l.state()
	until := settledAt
	if !complete {
		until = time.Now()
	}
	if r.collector.capture(module, store.State(), complete, until) {
		r.span.AddEvent("module captured", trace.WithAttributes(
			attribute.String("ssr.module", module),
			attribute.Bool("ssr.complete", complete),
		))
	}
}

// cleanupList runs every recorded cleanup once. Cleanups added after runAll
// run at once.
type cleanupList struct {
	mu   sync.Mutex
	done bool
	fns  []func() error
}

// add reports false when the list already ran; fn has then been run.
func (l *cleanupList) add(fn func() error) bool {
	l.mu.Lock()
	if l.done {
		l.mu.Unlock()
		if err := fn(); err != nil {
			log.LogEff(context.Background(), log.LogWarn, "late cleanup failed", map[string]interface{}{
				"error": err,
			})
		}
		return false
	}
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
	return true
}

func (l *cleanupList) runAll() error {
	l.mu.Lock()
	l.done = true
	fns := l.fns
	l.fns = nil
	l.mu.Unlock()

	var err error
	for _, fn := range fns {
		err = multierr.Append(err, fn())
	}
	return err
}
