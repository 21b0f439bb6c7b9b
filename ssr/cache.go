package ssr

import (
	"sort"
	"sync"

	"go.uber.org/multierr"

	"github.com/on-the-ground/effect_ive_ssr/effects"
	"github.com/on-the-ground/effect_ive_ssr/internal/handlers"
)

// SharedCache keeps module stores alive across runs that share a key.
// Stores are only ever disposed through Teardown.
type SharedCache struct {
	shards []*cacheShard
}

type cacheShard struct {
	mu      sync.Mutex
	entries map[string]map[string]effects.Store
}

// NewSharedCache creates a cache split into the given number of shards,
// at least one.
func NewSharedCache(shards int) *SharedCache {
	shards = max(shards, 1)
	c := &SharedCache{shards: make([]*cacheShard, shards)}
	for i := range c.shards {
		c.shards[i] = &cacheShard{entries: map[string]map[string]effects.Store{}}
	}
	return c
}

func (c *SharedCache) shardOf(key string) *cacheShard {
	return c.shards[handlers.Shard(key, len(c.shards))]
}

// Load returns the store of module under key.
func (c *SharedCache) Load(key, module string) (effects.Store, bool) {
	sh := c.shardOf(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	s, ok := sh.entries[key][module]
	return s, ok
}

// LoadOrStore returns the existing store of module under key, or stores s.
// loaded reports whether an existing store was returned; the caller then owns s.
func (c *SharedCache) LoadOrStore(key, module string, s effects.Store) (actual effects.Store, loaded bool) {
	sh := c.shardOf(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	byModule, ok := sh.entries[key]
	if !ok {
		byModule = map[string]effects.Store{}
		sh.entries[key] = byModule
	}
	if existing, ok := byModule[module]; ok {
		return existing, true
	}
	byModule[module] = s
	return s, false
}

// Len is the number of stores held across all keys.
func (c *SharedCache) Len() int {
	n := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		for _, byModule := range sh.entries {
			n += len(byModule)
		}
		sh.mu.Unlock()
	}
	return n
}

// Teardown removes every store under key and disposes it. Dispose errors are
// combined.
func (c *SharedCache) Teardown(key string) error {
	sh := c.shardOf(key)
	sh.mu.Lock()
	byModule := sh.entries[key]
	delete(sh.entries, key)
	sh.mu.Unlock()

	modules := make([]string, 0, len(byModule))
	for m := range byModule {
		modules = append(modules, m)
	}
	sort.Strings(modules)

	var err error
	for _, m := range modules {
		err = multierr.Append(err, byModule[m].Dispose())
	}
	return err
}
