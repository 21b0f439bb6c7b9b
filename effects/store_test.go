package effects_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-the-ground/effect_ive_ssr/effects"
	"github.com/on-the-ground/effect_ive_ssr/effects/log"
)

type recorder struct {
	mu      sync.Mutex
	actions []effects.Action
	errs    []error
}

func (r *recorder) stage(name string) effects.Stage {
	return effects.Stage{
		Name: name,
		Wrap: func(next effects.Handler) effects.Handler {
			return func(ctx context.Context, a effects.Action) error {
				err := next(ctx, a)
				r.mu.Lock()
				r.actions = append(r.actions, a)
				if err != nil {
					r.errs = append(r.errs, err)
				}
				r.mu.Unlock()
				return nil
			}
		},
	}
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.actions))
	for i, a := range r.actions {
		out[i] = a.Type
	}
	return out
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func newCounter() *effects.Module[int] {
	return effects.NewModule("counter", 0).
		Reducer("inc", func(n int, _ any) int { return n + 1 }).
		Reducer("add", func(n int, p any) int { return n + p.(int) })
}

func instantiate[S any](t *testing.T, m *effects.Module[S]) effects.Store {
	t.Helper()
	inst, err := m.Instantiate(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = inst.Store().Dispose() })
	return inst.Store()
}

func TestStore_ProcessesInDispatchOrder(t *testing.T) {
	ctx, end := log.WithTestEffectHandler(context.Background())
	defer end()

	m := effects.NewModule("ordered", []int(nil)).
		Reducer("push", func(s []int, p any) []int {
			return append(s, p.(int))
		})
	inst, err := m.Instantiate(ctx, nil)
	require.NoError(t, err)
	st := inst.Store()
	defer st.Dispose()

	for i := 0; i < 20; i++ {
		st.Dispatch(effects.Action{Type: "push", Payload: i})
	}

	require.Eventually(t, func() bool { return len(st.State().([]int)) == 20 }, time.Second, 5*time.Millisecond)
	for i, v := range st.State().([]int) {
		assert.Equal(t, i, v)
	}
}

func TestStore_TerminatesInlineWithoutEffect(t *testing.T) {
	st := instantiate(t, newCounter())
	rec := &recorder{}
	st.AddInterceptor(rec.stage("rec"))

	st.Dispatch(effects.Action{Type: "inc", Origin: "run-1"})

	require.Eventually(t, func() bool { return len(rec.types()) == 2 }, time.Second, 5*time.Millisecond)
	// the nested terminate completes before the action that caused it
	assert.Equal(t, []string{effects.TerminateActionType, "inc"}, rec.types())
	assert.Equal(t, 1, st.State())
}

func TestStore_TerminatesAfterEffectEmits(t *testing.T) {
	m := newCounter().
		Effect("load", func(ctx context.Context, ec effects.EffectContext[int], payload any) error {
			time.Sleep(5 * time.Millisecond)
			ec.Emit(effects.Action{Type: "add", Payload: 10, Origin: "ignored"})
			ec.Retry("load")
			return nil
		})
	st := instantiate(t, m)
	rec := &recorder{}
	st.AddInterceptor(rec.stage("rec"))

	st.Dispatch(effects.Action{Type: "load", Origin: "run-1"})

	require.Eventually(t, func() bool { return len(rec.types()) == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"load", "add", effects.RetryActionType, effects.TerminateActionType}, rec.types())
	assert.Equal(t, 10, st.State())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.actions[1].Origin)
	assert.Equal(t, "run-1", rec.actions[1].Run)
	assert.Equal(t, effects.Retry{Module: "counter", Name: "load"}, rec.actions[2].Payload)
	assert.Equal(t, "run-1", rec.actions[2].Owner())
	assert.Equal(t, "run-1", rec.actions[3].Origin)
}

func TestStore_EmittedEffectFailureFlowsThroughPipeline(t *testing.T) {
	boom := errors.New("persist failed")
	m := newCounter().
		Effect("load", func(ctx context.Context, ec effects.EffectContext[int], payload any) error {
			ec.Emit(effects.Action{Type: "persist"})
			return nil
		}).
		Effect("persist", func(ctx context.Context, ec effects.EffectContext[int], payload any) error {
			return boom
		})
	st := instantiate(t, m)
	rec := &recorder{}
	st.AddInterceptor(rec.stage("rec"))

	st.Dispatch(effects.Action{Type: "load", Origin: "run-1"})

	require.Eventually(t, func() bool { return len(rec.errors()) == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, rec.errors()[0], boom)
	assert.Contains(t, rec.errors()[0].Error(), "persist")

	rec.mu.Lock()
	defer rec.mu.Unlock()
	var failure effects.Action
	for _, a := range rec.actions {
		if effects.IsFailure(a) {
			failure = a
		}
	}
	assert.Equal(t, "run-1", failure.Run)
	assert.Empty(t, failure.Origin)
	assert.Equal(t, effects.Failure{Cause: "persist", Err: boom}, failure.Payload)
}

func TestStore_UntaggedEffectFailureIsReported(t *testing.T) {
	boom := errors.New("boom")
	m := newCounter().
		Effect("fail", func(ctx context.Context, ec effects.EffectContext[int], payload any) error {
			return boom
		})
	st := instantiate(t, m)
	rec := &recorder{}
	st.AddInterceptor(rec.stage("rec"))

	st.Dispatch(effects.Action{Type: "fail"})

	require.Eventually(t, func() bool { return len(rec.errors()) == 1 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, rec.errors()[0], boom)
	assert.Equal(t, []string{"fail", effects.FailureActionType}, rec.types())
}

func TestStore_EffectErrorSurfacesOnTerminate(t *testing.T) {
	boom := errors.New("boom")
	m := newCounter().
		Effect("fail", func(ctx context.Context, ec effects.EffectContext[int], payload any) error {
			return boom
		}).
		Effect("panic", func(ctx context.Context, ec effects.EffectContext[int], payload any) error {
			panic("kaboom")
		})
	st := instantiate(t, m)
	rec := &recorder{}
	st.AddInterceptor(rec.stage("rec"))

	st.Dispatch(effects.Action{Type: "fail", Origin: "run-1"})
	st.Dispatch(effects.Action{Type: "panic", Origin: "run-1"})

	require.Eventually(t, func() bool { return len(rec.errors()) == 2 }, time.Second, 5*time.Millisecond)
	errs := rec.errors()
	var sawBoom, sawPanic bool
	for _, err := range errs {
		sawBoom = sawBoom || errors.Is(err, boom)
		sawPanic = sawPanic || errors.Is(err, effects.ErrEffectPanic)
	}
	assert.True(t, sawBoom)
	assert.True(t, sawPanic)
}

func TestStore_ReducerPanicBecomesError(t *testing.T) {
	m := newCounter().Reducer("bad", func(int, any) int { panic("nope") })
	st := instantiate(t, m)
	rec := &recorder{}
	st.AddInterceptor(rec.stage("rec"))

	st.Dispatch(effects.Action{Type: "bad"})
	st.Dispatch(effects.Action{Type: "inc"})

	require.Eventually(t, func() bool { return len(rec.types()) == 2 }, time.Second, 5*time.Millisecond)
	require.Len(t, rec.errors(), 1)
	assert.ErrorIs(t, rec.errors()[0], effects.ErrReducerPanic)
	assert.Equal(t, 1, st.State())
}

func TestStore_StagesComposeInOrderAndRemoveIdempotently(t *testing.T) {
	st := instantiate(t, newCounter())

	var mu sync.Mutex
	var trace []string
	tracing := func(name string) effects.Stage {
		return effects.Stage{Name: name, Wrap: func(next effects.Handler) effects.Handler {
			return func(ctx context.Context, a effects.Action) error {
				mu.Lock()
				trace = append(trace, name+">")
				mu.Unlock()
				err := next(ctx, a)
				mu.Lock()
				trace = append(trace, "<"+name)
				mu.Unlock()
				return err
			}
		}}
	}

	removeOuter := st.AddInterceptor(tracing("outer"))
	removeInner := st.AddInterceptor(tracing("inner"))
	assert.Equal(t, []string{"outer", "inner"}, st.Stages())

	st.Dispatch(effects.Action{Type: "inc"})
	require.Eventually(t, func() bool { return st.State() == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(trace) == 4
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.Equal(t, []string{"outer>", "inner>", "<inner", "<outer"}, trace)
	mu.Unlock()

	removeInner()
	removeInner()
	assert.Equal(t, []string{"outer"}, st.Stages())
	removeOuter()
	assert.Empty(t, st.Stages())
}

func TestStore_DisposeRunsHookOnceAndDropsLaterActions(t *testing.T) {
	var calls int
	var final int
	cancelled := make(chan struct{})
	m := newCounter().
		Effect("wait", func(ctx context.Context, ec effects.EffectContext[int], payload any) error {
			<-ctx.Done()
			close(cancelled)
			return ctx.Err()
		}).
		OnDispose(func(n int) error {
			calls++
			final = n
			return errors.New("closing")
		})
	inst, err := m.Instantiate(context.Background(), nil)
	require.NoError(t, err)
	st := inst.Store()

	st.Dispatch(effects.Action{Type: "inc"})
	st.Dispatch(effects.Action{Type: "wait"})
	require.Eventually(t, func() bool { return st.State() == 1 }, time.Second, 5*time.Millisecond)

	assert.EqualError(t, st.Dispose(), "closing")
	assert.EqualError(t, st.Dispose(), "closing")
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, final)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("expected in-flight effect to be cancelled")
	}

	st.Dispatch(effects.Action{Type: "inc"})
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, st.State())
}

func TestEffectContext_Lookup(t *testing.T) {
	got := make(chan any, 1)
	m := effects.NewModule("lookup", struct{}{}).
		Effect("read", func(ctx context.Context, ec effects.EffectContext[struct{}], payload any) error {
			v, _ := ec.Lookup("greeting")
			got <- v
			return nil
		})
	inst, err := m.Instantiate(context.Background(), staticResolver{"greeting": "hello"})
	require.NoError(t, err)
	defer inst.Store().Dispose()

	inst.Store().Dispatch(effects.Action{Type: "read"})

	select {
	case v := <-got:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("effect did not run")
	}
}

func TestModule_RejectsReservedSSRTypes(t *testing.T) {
	for _, reserved := range []string{effects.TerminateActionType, effects.RetryActionType, effects.FailureActionType} {
		m := effects.NewModule("bad", 0).SSR(reserved, nil)
		_, err := m.Instantiate(context.Background(), nil)
		assert.ErrorIs(t, err, effects.ErrInvalidModule, reserved)
	}

	_, err := effects.NewModule("", 0).Instantiate(context.Background(), nil)
	assert.ErrorIs(t, err, effects.ErrInvalidModule)
}

func TestAction_OwnerPrefersOrigin(t *testing.T) {
	assert.Equal(t, "run-1", effects.Action{Origin: "run-1", Run: "run-2"}.Owner())
	assert.Equal(t, "run-2", effects.Action{Run: "run-2"}.Owner())
	assert.Empty(t, effects.Action{Type: "inc"}.Owner())
	assert.Equal(t, "inc (run run-2)", effects.Action{Type: "inc", Run: "run-2"}.String())
}

func TestModule_SSRActionsKeepDeclarationOrder(t *testing.T) {
	m := newCounter().SSR("inc", nil).SSR("add", func(ctx context.Context, req any) (any, error) {
		return 2, nil
	})

	actions := m.SSRActions()
	require.Len(t, actions, 2)
	assert.Equal(t, "inc", actions[0].Type)
	assert.Nil(t, actions[0].Producer)
	assert.Equal(t, "add", actions[1].Type)

	actions[0].Type = "mutated"
	assert.Equal(t, "inc", m.SSRActions()[0].Type)
}

type staticResolver map[string]any

func (r staticResolver) Lookup(token string) (any, bool) {
	v, ok := r[token]
	return v, ok
}
