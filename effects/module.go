package effects

import (
	"context"
	"errors"
)

// ErrInvalidModule is returned when a module cannot be instantiated as declared.
var ErrInvalidModule = errors.New("invalid module")

// PayloadProducer computes the payload of an SSR action from the request
// context. Returning ErrSkip declines the action.
type PayloadProducer func(ctx context.Context, req any) (any, error)

// SSRAction is an action declared eligible for a server-rendering pass.
// Producer may be nil, in which case the action is dispatched with a nil payload.
type SSRAction struct {
	Type     string
	Producer PayloadProducer
}

// Effect runs the side effect of an action. It runs on its own goroutine and
// its ctx is cancelled when the store is disposed.
type Effect[S any] func(ctx context.Context, ec EffectContext[S], payload any) error

// Reducer computes the next state.
type Reducer[S any] func(state S, payload any) S

// Descriptor identifies a module type.
type Descriptor interface {
	ModuleName() string
	SSRActions() []SSRAction
	Instantiate(ctx context.Context, r Resolver) (Instance, error)
}

const defaultStoreBuffer = 64

// Module declares the reducers, effects and SSR actions of a module with state S.
type Module[S any] struct {
	name         string
	defaultState S
	reducers     map[string]Reducer[S]
	effects      map[string]Effect[S]
	ssrActions   []SSRAction
	onDispose    func(S) error
	bufferSize   int
}

// NewModule starts the declaration of a module.
func NewModule[S any](name string, defaultState S) *Module[S] {
	return &Module[S]{
		name:         name,
		defaultState: defaultState,
		reducers:     map[string]Reducer[S]{},
		effects:      map[string]Effect[S]{},
		bufferSize:   defaultStoreBuffer,
	}
}

func (m *Module[S]) Reducer(actionType string, fn Reducer[S]) *Module[S] {
	m.reducers[actionType] = fn
	return m
}

func (m *Module[S]) Effect(actionType string, fn Effect[S]) *Module[S] {
	m.effects[actionType] = fn
	return m
}

// SSR declares actionType eligible for server rendering. Declaration order is
// dispatch order.
func (m *Module[S]) SSR(actionType string, producer PayloadProducer) *Module[S] {
	m.ssrActions = append(m.ssrActions, SSRAction{Type: actionType, Producer: producer})
	return m
}

// OnDispose registers a hook run with the final state when the store is disposed.
func (m *Module[S]) OnDispose(fn func(S) error) *Module[S] {
	m.onDispose = fn
	return m
}

// Buffer sets the capacity of the store's action queue.
func (m *Module[S]) Buffer(size int) *Module[S] {
	m.bufferSize = max(size, 1)
	return m
}

func (m *Module[S]) ModuleName() string {
	return m.name
}

func (m *Module[S]) SSRActions() []SSRAction {
	out := make([]SSRAction, len(m.ssrActions))
	copy(out, m.ssrActions)
	return out
}

// Instantiate creates a fresh store for the module. The store outlives ctx's
// cancellation; it lives until Dispose.
func (m *Module[S]) Instantiate(ctx context.Context, r Resolver) (Instance, error) {
	if m.name == "" {
		return nil, ErrInvalidModule
	}
	for _, a := range m.ssrActions {
		switch a.Type {
		case TerminateActionType, RetryActionType, FailureActionType:
			return nil, ErrInvalidModule
		}
	}
	return instance{
		name:  m.name,
		store: newStore(context.WithoutCancel(ctx), m, r),
	}, nil
}

type instance struct {
	name  string
	store Store
}

func (i instance) ModuleName() string { return i.name }
func (i instance) Store() Store       { return i.store }
