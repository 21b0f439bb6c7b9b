package effects

import "context"

// Provider binds a lookup token to a value for effects to use.
type Provider struct {
	Token string
	Value any
}

// Resolver looks up provided values by token.
type Resolver interface {
	Lookup(token string) (any, bool)
}

// Scope resolves module instances for one set of descriptors.
// Instances are created lazily and at most once per module name.
type Scope interface {
	Resolver
	ID() string
	Instance(ctx context.Context, d Descriptor) (Instance, error)
}

// Instance is a resolved module.
type Instance interface {
	ModuleName() string
	Store() Store
}

// Store holds one module's state and processes its actions one at a time.
type Store interface {
	ID() string
	State() any
	Dispatch(action Action)
	AddInterceptor(stage Stage) (remove func())
	Stages() []string
	Dispose() error
}
