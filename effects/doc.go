// Package effects defines effect modules: a state container plus the
// asynchronous side effects that feed it.
//
// # Modules
//
// A module is declared with NewModule and is described by reducers, which
// compute the next state, and effects, which run on their own goroutine and
// talk back to the module through an EffectContext. Actions declared with SSR
// are the ones a server-rendering pass may dispatch.
//
// # Stores
//
// Instantiating a module yields a Store. A store processes its actions one at
// a time, in dispatch order, through an ordered list of interceptor stages
// wrapped around the reducer and effect step. When an action dispatched with an
// Origin finishes (its effect returned, or it had none) the store emits a
// Terminate action with the same Origin. Retry actions are emitted on request
// through EffectContext.Retry.
//
// # Effect handlers
//
// Handlers for cross-cutting effects are registered on a context via
// `WithXxxEffectHandler(ctx)` and performed through `PerformResumableEffect`
// or `FireAndForgetEffect`. The teardown returned by every registration must
// be called once the handler is no longer needed.
//
// Example:
//
//	counter := effects.NewModule("counter", 0).
//	    Reducer("inc", func(n int, _ any) int { return n + 1 }).
//	    SSR("inc", nil)
//
//	inst, _ := counter.Instantiate(ctx, nil)
//	defer inst.Store().Dispose()
//	inst.Store().Dispatch(effects.Action{Type: "inc"})
package effects
