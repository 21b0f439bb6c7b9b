package effects

// EffectContext is what an effect sees of its module.
type EffectContext[S any] struct {
	store    *store[S]
	resolver Resolver
	run      string
}

// State is the module state at the time of the call.
func (ec EffectContext[S]) State() S {
	return ec.store.state()
}

// Emit dispatches action to the module. Emitted actions never carry an origin;
// they belong to the run of the action that started the effect.
func (ec EffectContext[S]) Emit(action Action) {
	action.Origin = ""
	action.Run = ec.run
	ec.store.Dispatch(action)
}

// Retry asks the client to redo the action named name.
func (ec EffectContext[S]) Retry(name string) {
	action := RetryAction(ec.store.module, name)
	action.Run = ec.run
	ec.store.Dispatch(action)
}

// Lookup resolves a provided value.
func (ec EffectContext[S]) Lookup(token string) (any, bool) {
	if ec.resolver == nil {
		return nil, false
	}
	return ec.resolver.Lookup(token)
}

func (ec EffectContext[S]) ModuleName() string {
	return ec.store.module
}
