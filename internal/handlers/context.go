package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/on-the-ground/effect_ive_ssr/internal/helper"
	effectmodel "github.com/on-the-ground/effect_ive_ssr/internal/model"
	sharedHelper "github.com/on-the-ground/effect_ive_ssr/shared/helper"
)

// WithResumable registers a partitioned resumable handler under enum.
func WithResumable[P effectmodel.Partitionable, R any](
	ctx context.Context,
	config effectmodel.EffectScopeConfig,
	enum effectmodel.EffectEnum,
	handleFn func(context.Context, P) (R, error),
	teardown func(),
) (context.Context, func() context.Context) {
	handler := NewPartitionableResumableHandler(ctx, config, handleFn, teardown)
	ctxWith := context.WithValue(ctx, enum, handler)
	zap.L().Debug("created resumable effect handler",
		zap.String("effectId", handler.EffectId), zap.String("enum", string(enum)))

	return ctxWith, func() context.Context {
		handler.Close()
		return ctx
	}
}

// PerformResumable panics if no handler is registered under enum.
func PerformResumable[P effectmodel.Partitionable, R any](
	ctx context.Context,
	enum effectmodel.EffectEnum,
	payload P,
) <-chan ResumableResult[R] {
	handler := sharedHelper.MustGetTypedValue[ResumableHandler[P, R]](
		func() (any, error) {
			return helper.GetHandler(ctx, enum)
		},
	)
	return handler.PerformEffect(ctx, payload)
}

// WithFireAndForget registers a single-worker fire-and-forget handler under enum.
func WithFireAndForget[P any](
	ctx context.Context,
	bufferSize int,
	enum effectmodel.EffectEnum,
	handleFn func(context.Context, P),
	teardown func(),
) (context.Context, func() context.Context) {
	handler := NewFireAndForgetHandler(ctx, bufferSize, handleFn, teardown)
	ctxWith := context.WithValue(ctx, enum, handler)

	return ctxWith, func() context.Context {
		handler.Close()
		return ctx
	}
}

// FireAndForget panics if no handler is registered under enum.
func FireAndForget[P any](
	ctx context.Context,
	enum effectmodel.EffectEnum,
	payload P,
) {
	handler := sharedHelper.MustGetTypedValue[FireAndForgetHandler[P]](
		func() (any, error) {
			return helper.GetHandler(ctx, enum)
		},
	)
	handler.FireAndForgetEffect(ctx, payload)
}

// Registered reports whether a handler is registered under enum.
func Registered(ctx context.Context, enum effectmodel.EffectEnum) bool {
	_, err := helper.GetHandler(ctx, enum)
	return err == nil
}
