// Package registry resolves effect module descriptors into instances.
//
// A Registry holds root providers shared by every scope. ResolveScope creates a
// Scope for one set of descriptors; instances inside a scope are created on
// first use and then reused.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/on-the-ground/effect_ive_ssr/effects"
	"github.com/on-the-ground/effect_ive_ssr/effects/log"
)

var (
	ErrNilDescriptor   = errors.New("nil module descriptor")
	ErrDuplicateModule = errors.New("duplicate module name")
	ErrUnknownModule   = errors.New("module not declared in scope")
)

// Registry holds the root providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]any
}

// New creates a registry with the given root providers.
func New(providers ...effects.Provider) *Registry {
	r := &Registry{providers: make(map[string]any, len(providers))}
	for _, p := range providers {
		r.providers[p.Token] = p.Value
	}
	return r
}

// Provide binds token to value for every scope resolved afterwards.
func (r *Registry) Provide(token string, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[token] = value
}

func (r *Registry) Lookup(token string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.providers[token]
	return v, ok
}

// ResolveScope validates descriptors and opens a scope for them. Extra
// providers override root providers within this scope only.
func (r *Registry) ResolveScope(
	ctx context.Context,
	descriptors []effects.Descriptor,
	extra ...effects.Provider,
) (effects.Scope, error) {
	declared := make(map[string]effects.Descriptor, len(descriptors))
	for i, d := range descriptors {
		if d == nil {
			return nil, fmt.Errorf("%w at index %d", ErrNilDescriptor, i)
		}
		name := d.ModuleName()
		if _, dup := declared[name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModule, name)
		}
		declared[name] = d
	}

	overrides := make(map[string]any, len(extra))
	for _, p := range extra {
		overrides[p.Token] = p.Value
	}

	s := &scope{
		id:        uuid.NewString(),
		root:      r,
		overrides: overrides,
		declared:  declared,
		instances: make(map[string]*lazyInstance, len(declared)),
	}
	log.LogEff(ctx, log.LogDebug, "resolved scope", map[string]interface{}{
		"scope":   s.id,
		"modules": len(declared),
	})
	return s, nil
}

type lazyInstance struct {
	once sync.Once
	inst effects.Instance
	err  error
}

type scope struct {
	id        string
	root      *Registry
	overrides map[string]any
	declared  map[string]effects.Descriptor

	mu        sync.Mutex
	instances map[string]*lazyInstance
}

func (s *scope) ID() string {
	return s.id
}

func (s *scope) Lookup(token string) (any, bool) {
	if v, ok := s.overrides[token]; ok {
		return v, true
	}
	return s.root.Lookup(token)
}

// Instance returns the scope's instance of d, creating it on first use.
// Concurrent callers for the same module share one instantiation.
func (s *scope) Instance(ctx context.Context, d effects.Descriptor) (effects.Instance, error) {
	if d == nil {
		return nil, ErrNilDescriptor
	}
	name := d.ModuleName()
	if _, ok := s.declared[name]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}

	s.mu.Lock()
	li, ok := s.instances[name]
	if !ok {
		li = &lazyInstance{}
		s.instances[name] = li
	}
	s.mu.Unlock()

	li.once.Do(func() {
		li.inst, li.err = d.Instantiate(ctx, s)
		if li.err != nil {
			li.err = fmt.Errorf("instantiate %s: %w", name, li.err)
		}
	})
	return li.inst, li.err
}
