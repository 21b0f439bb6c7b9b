package ssr

import (
	"context"

	"github.com/on-the-ground/effect_ive_ssr/effects"
	effectmodel "github.com/on-the-ground/effect_ive_ssr/internal/model"
)

// Request is the payload of the SSR effect.
type Request struct {
	// ID partitions requests that have no shared key.
	ID      string
	Context any
	Modules []effects.Descriptor
	Config  Config
}

// PartitionKey keeps runs over the same shared key on one worker, so that
// they never install stages on the same stores at the same time.
func (r Request) PartitionKey() string {
	if r.Config.SharedKey != "" {
		return "shared:" + r.Config.SharedKey
	}
	return "run:" + r.ID
}

// Response is what the SSR effect resumes with.
type Response struct {
	Scope  effects.Scope
	Result *Result
}

// WithEffectHandler registers the SSR effect, backed by c, on ctx.
//
// Usage:
//
//	ctx, end := ssr.WithEffectHandler(ctx, effects.NewScopeConfig(8, 4), coordinator)
//	defer end()
//
//	resp, err := ssr.Effect(ctx, ssr.Request{ID: reqID, Context: req, Modules: modules})
func WithEffectHandler(
	ctx context.Context,
	config effects.ScopeConfig,
	c *Coordinator,
) (context.Context, func() context.Context) {
	return effects.WithResumablePartitionableEffectHandler(
		ctx,
		config,
		effectmodel.EffectSSR,
		func(ctx context.Context, req Request) (Response, error) {
			scope, res, err := c.RunAndWait(ctx, req.Context, req.Modules, req.Config)
			return Response{Scope: scope, Result: res}, err
		},
	)
}

// Effect performs one SSR run through the handler registered on ctx.
//
// Panics if no handler is registered.
func Effect(ctx context.Context, req Request) (Response, error) {
	resultCh := effects.PerformResumableEffect[Request, Response](ctx, effectmodel.EffectSSR, req)
	select {
	case res, ok := <-resultCh:
		if !ok {
			return Response{}, context.Canceled
		}
		return res.Value, res.Err
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
