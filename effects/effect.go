package effects

import (
	"context"

	"github.com/on-the-ground/effect_ive_ssr/internal/handlers"
	effectmodel "github.com/on-the-ground/effect_ive_ssr/internal/model"
)

// EffectEnum is the context key a handler is registered under.
type EffectEnum = effectmodel.EffectEnum

// ScopeConfig sizes the worker pool behind a handler.
type ScopeConfig = effectmodel.EffectScopeConfig

// Partitionable routes a payload to a worker by key.
type Partitionable = effectmodel.Partitionable

// ResumableResult is what a resumable effect resumes the caller with.
type ResumableResult[R any] = handlers.ResumableResult[R]

// ErrNoEffectHandler is raised when an effect is performed without a handler
// registered for it.
var ErrNoEffectHandler = effectmodel.ErrNoEffectHandler

// NewScopeConfig clamps both values to at least 1.
func NewScopeConfig(bufferSize, numWorkers int) ScopeConfig {
	return effectmodel.NewEffectScopeConfig(bufferSize, numWorkers)
}

// WithResumablePartitionableEffectHandler registers a resumable effect handler for a given effect enum.
//
// This handler supports hash-based partitioning via PartitionKey(): payloads
// sharing a key are handled by the same worker, one after the other.
//
// Usage:
//
//	ctx, end := WithResumablePartitionableEffectHandler(ctx, config, MyEffectEnum, handleFn)
//	defer end()
func WithResumablePartitionableEffectHandler[P Partitionable, R any](
	ctx context.Context,
	config ScopeConfig,
	enum EffectEnum,
	handleFn func(context.Context, P) (R, error),
	teardown ...func(),
) (context.Context, func() context.Context) {
	return handlers.WithResumable(ctx, config, enum, handleFn, normalizeTeardown(teardown))
}

// PerformResumableEffect sends a payload to the resumable effect handler and
// returns the channel its result arrives on. If ctx is done before the payload
// is accepted the channel is never written, so callers select on ctx as well.
//
// Panics if no handler is registered for the given effect enum.
func PerformResumableEffect[P Partitionable, R any](
	ctx context.Context,
	enum EffectEnum,
	payload P,
) <-chan ResumableResult[R] {
	return handlers.PerformResumable[P, R](ctx, enum, payload)
}

// WithFireAndForgetEffectHandler registers a fire-and-forget effect handler for a given effect enum.
//
// Suitable for one-shot effects like logging or telemetry.
// This handler executes without returning a result.
func WithFireAndForgetEffectHandler[P any](
	ctx context.Context,
	bufferSize int,
	enum EffectEnum,
	handleFn func(context.Context, P),
	teardown ...func(),
) (context.Context, func() context.Context) {
	return handlers.WithFireAndForget(ctx, bufferSize, enum, handleFn, normalizeTeardown(teardown))
}

// FireAndForgetEffect triggers a fire-and-forget effect for the given enum and payload.
//
// Panics if no handler is registered for the given enum.
func FireAndForgetEffect[P any](
	ctx context.Context,
	enum EffectEnum,
	payload P,
) {
	handlers.FireAndForget(ctx, enum, payload)
}

// HasHandler reports whether a handler is registered for enum in ctx.
func HasHandler(ctx context.Context, enum EffectEnum) bool {
	return handlers.Registered(ctx, enum)
}

// normalizeTeardown flattens optional teardown functions into a single callable.
//
// Accepts either 0 or 1 teardown functions. Panics if more than one is passed.
func normalizeTeardown(teardown []func()) func() {
	switch len(teardown) {
	case 1:
		return teardown[0]
	case 0:
		return func() {}
	default:
		panic("normalizeTeardown: only one or zero teardown functions allowed")
	}
}
