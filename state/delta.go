// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"sort"
	"sync"

	"github.com/luxfi/execore/crypto"
	"github.com/luxfi/execore/protocol"
)

// StateDelta is a single-parent overlay atop a parent delta: a put-set
// (its own Backend), a tombstone-set, and an optional cached merkle
// root. The root delta of a Database has no parent and
// holds the fully materialized state directly in its overlay.
type StateDelta struct {
	mu sync.RWMutex

	id       protocol.Digest
	parentID protocol.Digest
	revision uint64
	parent   *StateDelta

	backend    Backend
	tombstones map[string]struct{}

	complete      bool
	hasMerkleRoot bool
	merkleRoot    protocol.Digest
}

// NewRootDelta constructs the database's genesis delta: no parent,
// revision zero.
func NewRootDelta(id protocol.Digest) *StateDelta {
	backend := NewMemoryBackend()
	backend.SetID(id)
	return &StateDelta{
		id:         id,
		backend:    backend,
		tombstones: make(map[string]struct{}),
	}
}

// MakeChild constructs a new delta overlaying parent, at parent's
// revision+1.
func MakeChild(parent *StateDelta, id protocol.Digest) *StateDelta {
	backend := NewMemoryBackend()
	backend.SetID(id)
	backend.SetRevision(parent.revision + 1)
	return &StateDelta{
		id:         id,
		parentID:   parent.id,
		revision:   parent.revision + 1,
		parent:     parent,
		backend:    backend,
		tombstones: make(map[string]struct{}),
	}
}

func (d *StateDelta) ID() protocol.Digest       { return d.id }
func (d *StateDelta) ParentID() protocol.Digest { return d.parentID }
func (d *StateDelta) Revision() uint64          { return d.revision }

func (d *StateDelta) Complete() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.complete
}

// MarkComplete irrevocably freezes the delta against further writes
// and enables merkle-root computation. Idempotent.
func (d *StateDelta) MarkComplete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.complete = true
}

// Get walks this delta and its ancestor chain, honoring tombstones,
// returning the first value found.
func (d *StateDelta) Get(key []byte) ([]byte, bool) {
	d.mu.RLock()
	v, ok, stop := d.getLocked(key)
	d.mu.RUnlock()
	if stop {
		return v, ok
	}
	return d.parent.Get(key)
}

func (d *StateDelta) getLocked(key []byte) (value []byte, ok bool, stop bool) {
	if _, tomb := d.tombstones[string(key)]; tomb {
		return nil, false, true
	}
	if v, ok := d.backend.Get(key); ok {
		return v, true, true
	}
	return nil, false, d.parent == nil
}

// effectiveLocked returns d's effective value for key. Caller must
// hold d.mu; it recurses into the parent's own lock, never d's.
func (d *StateDelta) effectiveLocked(key []byte) ([]byte, bool) {
	v, ok, stop := d.getLocked(key)
	if stop {
		return v, ok
	}
	return d.parent.Get(key)
}

// Put writes value under key into the overlay, returning the signed
// byte-delta against the nearest ancestor value. Fails
// with ErrNotFinalized against a complete delta.
func (d *StateDelta) Put(key, value []byte) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.complete {
		return 0, ErrNotFinalized
	}
	if d.parent == nil {
		delta := d.backend.Put(key, value)
		delete(d.tombstones, string(key))
		d.invalidateMerkle()
		return delta, nil
	}
	old, existed := d.effectiveLocked(key)
	var delta int64
	if existed {
		delta = int64(len(value)) - int64(len(old))
	} else {
		delta = int64(len(key)) + int64(len(value))
	}
	d.backend.Put(key, value)
	delete(d.tombstones, string(key))
	d.invalidateMerkle()
	return delta, nil
}

// Remove tombstones key, returning the signed (negative) byte-delta
// against the nearest ancestor value, or zero if absent.
func (d *StateDelta) Remove(key []byte) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.complete {
		return 0, ErrNotFinalized
	}
	if d.parent == nil {
		delta := d.backend.Remove(key)
		d.invalidateMerkle()
		return delta, nil
	}
	old, existed := d.effectiveLocked(key)
	d.backend.Remove(key)
	d.tombstones[string(key)] = struct{}{}
	d.invalidateMerkle()
	if !existed {
		return 0, nil
	}
	return -(int64(len(key)) + int64(len(old))), nil
}

func (d *StateDelta) invalidateMerkle() {
	d.hasMerkleRoot = false
}

// flattenState materializes the full key->value mapping visible at d
// by applying every ancestor's overlay, root first, then this delta's
// own overlay and tombstones last.
func (d *StateDelta) flattenState() map[string][]byte {
	var chain []*StateDelta
	for cur := d; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	state := make(map[string][]byte)
	for i := len(chain) - 1; i >= 0; i-- {
		link := chain[i]
		it := link.backend.Begin()
		for it.Next() {
			k, v := it.Key(), it.Value()
			cp := make([]byte, len(v))
			copy(cp, v)
			state[string(k)] = cp
		}
		for k := range link.tombstones {
			delete(state, k)
		}
	}
	return state
}

// MerkleRoot computes (and caches) the binary merkle root over every
// (key, value) pair visible at this delta, sorted by key, duplicating
// the final leaf on odd levels. Only available once
// the delta is complete.
func (d *StateDelta) MerkleRoot() (protocol.Digest, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.complete {
		return protocol.Digest{}, ErrNotFinalized
	}
	if d.hasMerkleRoot {
		return d.merkleRoot, nil
	}
	state := d.flattenState()
	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	leaves := make([]protocol.Digest, len(keys))
	for i, k := range keys {
		h := crypto.NewHasher().Update([]byte(k)).Update(state[k])
		leaves[i] = h.Finalize()
	}
	root := crypto.MerkleRoot(leaves)
	d.merkleRoot = root
	d.hasMerkleRoot = true
	d.backend.SetMerkleRoot(root)
	return root, nil
}

// Squash merges this delta's puts and tombstones into its (non-complete)
// parent in place. The caller is responsible for removing d from the
// index afterward.
func (d *StateDelta) Squash() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.parent == nil {
		return ErrNoParent
	}
	parent := d.parent
	parent.mu.Lock()
	defer parent.mu.Unlock()
	if parent.complete {
		return ErrNotFinalized
	}
	for k := range d.tombstones {
		parent.backend.Remove([]byte(k))
		parent.tombstones[k] = struct{}{}
	}
	it := d.backend.Begin()
	for it.Next() {
		k, v := it.Key(), it.Value()
		parent.backend.Put(k, v)
		delete(parent.tombstones, string(k))
	}
	parent.hasMerkleRoot = false
	return nil
}

// Commit flattens this delta and every ancestor up to root into a
// single materialized overlay at this delta, which becomes parentless
// (the new root). Only a complete delta may be committed.
func (d *StateDelta) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.complete {
		return ErrNotFinalized
	}
	if d.parent == nil {
		return nil
	}
	state := d.flattenState()
	backend := NewMemoryBackend()
	backend.SetID(d.id)
	backend.SetRevision(d.revision)
	if d.hasMerkleRoot {
		backend.SetMerkleRoot(d.merkleRoot)
	}
	for k, v := range state {
		backend.Put([]byte(k), v)
	}
	d.backend = backend
	d.tombstones = make(map[string]struct{})
	d.parent = nil
	d.parentID = protocol.EmptyDigest
	return nil
}
