package ssr_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/on-the-ground/effect_ive_ssr/effects"
	"github.com/on-the-ground/effect_ive_ssr/effects/log"
	"github.com/on-the-ground/effect_ive_ssr/ssr"
)

// inbox loads the request's name; "bad" emits a persist that fails.
func inbox(boom error) *effects.Module[int] {
	return effects.NewModule("inbox", 0).
		Effect("load", func(ctx context.Context, ec effects.EffectContext[int], payload any) error {
			name := payload.(string)
			time.Sleep(20 * time.Millisecond)
			if name == "bad" {
				ec.Emit(effects.Action{Type: "persist"})
				time.Sleep(30 * time.Millisecond)
				return nil
			}
			ec.Retry(name)
			return nil
		}).
		Effect("persist", func(ctx context.Context, ec effects.EffectContext[int], payload any) error {
			return boom
		}).
		SSR("load", func(ctx context.Context, req any) (any, error) {
			return req, nil
		})
}

func TestRun_ConcurrentSharedRunsKeepTheirOwnSignals(t *testing.T) {
	c := newCoordinator()
	boom := errors.New("persist failed")
	m := inbox(boom)
	cfg := ssr.Config{SharedKey: "tenant-c", TimeoutSeconds: 5}
	ctx := testContext(t)

	_, outA := c.Run(ctx, "a", []effects.Descriptor{m}, cfg)
	_, outB := c.Run(ctx, "b", []effects.Descriptor{m}, cfg)
	_, outBad := c.Run(ctx, "bad", []effects.Descriptor{m}, cfg)

	a, b, bad := <-outA, <-outB, <-outBad

	require.NoError(t, a.Err)
	assert.Equal(t, map[string][]string{"inbox": {"a"}}, a.Result.RetryMap())

	require.NoError(t, b.Err)
	assert.Equal(t, map[string][]string{"inbox": {"b"}}, b.Result.RetryMap())

	require.ErrorIs(t, bad.Err, boom)
	assert.Empty(t, bad.Result.RetryMap())

	store, ok := c.SharedCache().Load("tenant-c", "inbox")
	require.True(t, ok)
	assert.Empty(t, store.Stages())
	require.NoError(t, c.SharedCache().Teardown("tenant-c"))
}

func TestRun_SharedStoreLogsOutliveTheRun(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	storeCtx, endStoreLog := log.WithZapEffectHandler(context.Background(), 16, zap.New(core))
	defer endStoreLog()

	c := newCoordinator(ssr.WithStoreContext(storeCtx))
	m := effects.NewModule("fragile", 0).
		Reducer("inc", func(n int, _ any) int { return n + 1 }).
		Reducer("crash", func(int, any) int { panic("bad state") }).
		SSR("inc", nil)
	cfg := ssr.Config{SharedKey: "tenant-d"}

	runCtx, endRunLog := log.WithTestEffectHandler(context.Background())
	_, _, err := c.RunAndWait(runCtx, nil, []effects.Descriptor{m}, cfg)
	require.NoError(t, err)
	endRunLog()

	store, ok := c.SharedCache().Load("tenant-d", "fragile")
	require.True(t, ok)
	store.Dispatch(effects.Action{Type: "crash"})

	require.Eventually(t, func() bool {
		return logs.FilterMessage("unhandled pipeline error").Len() == 1
	}, time.Second, 5*time.Millisecond)
	fields := logs.FilterMessage("unhandled pipeline error").All()[0].ContextMap()
	assert.Equal(t, "fragile", fields["module"])

	require.NoError(t, c.SharedCache().Teardown("tenant-d"))
}
