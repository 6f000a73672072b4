// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"github.com/bytecodealliance/wasmtime-go/v14"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/luxfi/execore/protocol"
)

// DefaultCacheCapacity is the default number of parsed modules the
// ModuleCache retains.
const DefaultCacheCapacity = 32

// Module is a parsed WASM module ready to be instantiated, reference
// counted implicitly by Go's GC: eviction from the cache drops the
// cache's own reference, but a Module a VM.Run call is still holding
// onto remains valid until that call returns.
type Module struct {
	ID       protocol.Account
	Bytecode []byte
	Compiled *wasmtime.Module
}

// ModuleCache is an LRU cache of parsed WASM modules keyed by program
// id. golang-lru/v2's Cache already serializes every
// operation under a single internal mutex, so ModuleCache adds no
// locking of its own.
type ModuleCache struct {
	cache *lru.Cache[protocol.Account, *Module]
}

// NewModuleCache returns a ModuleCache bounded at capacity entries
// (DefaultCacheCapacity if capacity <= 0).
func NewModuleCache(capacity int) (*ModuleCache, error) {
	if capacity <= 0 {
		capacity = DefaultCacheCapacity
	}
	c, err := lru.New[protocol.Account, *Module](capacity)
	if err != nil {
		return nil, err
	}
	return &ModuleCache{cache: c}, nil
}

// Get returns the cached module for id, promoting it to most-recently
// used on a hit.
func (c *ModuleCache) Get(id protocol.Account) (*Module, bool) {
	return c.cache.Get(id)
}

// Put inserts m, evicting the least-recently-used entry if the cache
// is at capacity.
func (c *ModuleCache) Put(id protocol.Account, m *Module) {
	c.cache.Add(id, m)
}

// Len returns the number of modules currently cached.
func (c *ModuleCache) Len() int { return c.cache.Len() }
