// Package ssr runs the SSR actions of a set of effect modules within one
// deadline and collects their state and retry signals.
package ssr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/multierr"

	"github.com/on-the-ground/effect_ive_ssr/effects"
	"github.com/on-the-ground/effect_ive_ssr/effects/concurrency"
	"github.com/on-the-ground/effect_ive_ssr/effects/log"
)

const (
	tracerName         = "github.com/on-the-ground/effect_ive_ssr/ssr"
	defaultCacheShards = 16
)

// Resolver opens a resolution scope for a set of module descriptors.
type Resolver interface {
	ResolveScope(ctx context.Context, descriptors []effects.Descriptor, extra ...effects.Provider) (effects.Scope, error)
}

// Outcome is delivered once per run. Result is never nil; when Err is set it
// holds whatever was captured before the run failed.
type Outcome struct {
	Result *Result
	Err    error
}

// Coordinator drives SSR runs.
type Coordinator struct {
	resolver Resolver
	cache    *SharedCache
	storeCtx context.Context
	metrics  *Metrics
	tracer   trace.Tracer
}

type Option func(*Coordinator)

// WithSharedCache sets the cache shared-key runs reuse stores from.
func WithSharedCache(cache *SharedCache) Option {
	return func(c *Coordinator) {
		c.cache = cache
	}
}

// WithStoreContext sets the context shared stores are built from. Shared
// stores outlive the run that creates them, so they never see a run's
// context; their logs go to the log handler installed in ctx, or to zap's
// global logger when there is none. Defaults to context.Background().
func WithStoreContext(ctx context.Context) Option {
	return func(c *Coordinator) {
		c.storeCtx = ctx
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(c *Coordinator) {
		c.tracer = t
	}
}

func New(resolver Resolver, opts ...Option) *Coordinator {
	c := &Coordinator{
		resolver: resolver,
		cache:    NewSharedCache(defaultCacheShards),
		storeCtx: context.Background(),
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SharedCache is the cache shared-key runs use.
func (c *Coordinator) SharedCache() *SharedCache {
	return c.cache
}

// Run starts one SSR pass over descriptors. req is handed to every payload
// producer. The returned channel yields exactly one Outcome and is then closed;
// by then every store the run owned has been disposed.
func (c *Coordinator) Run(
	ctx context.Context,
	req any,
	descriptors []effects.Descriptor,
	cfg Config,
) (effects.Scope, <-chan Outcome) {
	out := make(chan Outcome, 1)
	started := time.Now()
	runID := uuid.NewString()

	ctx, span := c.tracer.Start(ctx, "ssr.run", trace.WithAttributes(
		attribute.String("ssr.run_id", runID),
		attribute.Int("ssr.modules", len(descriptors)),
		attribute.String("ssr.shared_key", cfg.SharedKey),
		attribute.Float64("ssr.timeout_seconds", cfg.Timeout().Seconds()),
	))

	finish := func(o Outcome) {
		c.finish(ctx, span, runID, started, o)
		out <- o
		close(out)
	}

	if c.resolver == nil {
		finish(Outcome{Result: emptyResult(), Err: ErrNoResolver})
		return nil, out
	}

	scope, err := c.resolver.ResolveScope(ctx, descriptors, cfg.Providers...)
	if err != nil {
		finish(Outcome{Result: emptyResult(), Err: fmt.Errorf("failed to resolve scope: %w", err)})
		return nil, out
	}

	if len(descriptors) == 0 {
		finish(Outcome{Result: emptyResult()})
		return scope, out
	}

	r := &run{
		id:        runID,
		req:       req,
		cfg:       cfg,
		scope:     scope,
		cache:     c.cache,
		storeCtx:  c.storeCtx,
		collector: newCollector(started),
		span:      span,
	}
	log.LogEff(ctx, log.LogInfo, "ssr run started", map[string]interface{}{
		"run":     runID,
		"modules": len(descriptors),
		"timeout": cfg.Timeout().String(),
	})

	go func() {
		res, err := r.race(ctx, descriptors)
		finish(Outcome{Result: res, Err: err})
	}()
	return scope, out
}

// RunAndWait runs and blocks for the outcome.
func (c *Coordinator) RunAndWait(
	ctx context.Context,
	req any,
	descriptors []effects.Descriptor,
	cfg Config,
) (effects.Scope, *Result, error) {
	scope, out := c.Run(ctx, req, descriptors, cfg)
	o := <-out
	return scope, o.Result, o.Err
}

func (c *Coordinator) finish(ctx context.Context, span trace.Span, runID string, started time.Time, o Outcome) {
	elapsed := time.Since(started)
	c.metrics.observe(o.Result, o.Err, elapsed)

	fields := map[string]interface{}{
		"run":        runID,
		"elapsed":    elapsed.String(),
		"incomplete": o.Result.Incomplete(),
	}
	span.SetAttributes(attribute.Int("ssr.incomplete", len(o.Result.Incomplete())))
	if o.Err != nil {
		fields["error"] = o.Err
		log.LogEff(ctx, log.LogWarn, "ssr run failed", fields)
		span.RecordError(o.Err)
		span.SetStatus(codes.Error, o.Err.Error())
	} else {
		log.LogEff(ctx, log.LogInfo, "ssr run finished", fields)
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// race runs one subtask per module against the deadline, then finalizes.
func (r *run) race(ctx context.Context, descriptors []effects.Descriptor) (*Result, error) {
	sv := concurrency.NewSupervisor(ctx)
	timeout := r.cfg.Timeout()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	settled := make(chan error, len(descriptors))
	for _, d := range descriptors {
		errCh := sv.Go(func(ctx context.Context) error {
			return r.subtask(ctx, d)
		})
		go func() { settled <- <-errCh }()
	}

	var runErr error
	pending := len(descriptors)
wait:
	for pending > 0 {
		select {
		case err := <-settled:
			if err != nil {
				runErr = err
				break wait
			}
			pending--
		case <-timer.C:
			runErr = fmt.Errorf("%w after %s", ErrTerminateTimeout, timeout)
			break wait
		case <-ctx.Done():
			runErr = ctx.Err()
			break wait
		}
	}

	// abandon whatever is still running; stores are released by the cleanups
	sv.Cancel()

	if errors.Is(runErr, ErrTerminateTimeout) {
		log.LogEff(ctx, log.LogWarn, "ssr run timed out", map[string]interface{}{
			"run":     r.id,
			"pending": pending,
		})
	}

	if err := r.cleanups.runAll(); err != nil {
		log.LogEff(ctx, log.LogError, "ssr cleanup failed", map[string]interface{}{
			"run":   r.id,
			"error": err,
		})
		runErr = multierr.Append(runErr, err)
	}
	return r.collector.finalize(), runErr
}
