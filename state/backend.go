// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package state implements the forked state database: an ordered
// key/value Backend, the StateDelta overlay built on top of it, the
// Database that indexes the delta DAG, and the StateNode view that
// namespaces reads/writes by object space.
package state

import (
	"sort"

	"github.com/luxfi/execore/protocol"
)

// Iterator is an opaque cursor over a Backend's ordered key space. A
// cursor starts in an undefined position and must be advanced with
// Next (forward) or Prev (backward) before Key/Value are valid.
// Release extracts the cursor's current key/value pair; after Release
// the iterator must not be reused.
type Iterator interface {
	Next() bool
	Prev() bool
	Key() []byte
	Value() []byte
	Release() ([]byte, []byte)
}

// Backend is the ordered byte-key/byte-value map every state delta
// layers its overlay on top of. Implementations are
// interchangeable behind this capability interface: MemoryBackend is
// the trivial reference implementation, PebbleBackend is the optional
// disk-backed variant.
type Backend interface {
	// Get returns the stored value for key, if present. The returned
	// slice must not be mutated by the caller.
	Get(key []byte) ([]byte, bool)
	// Put stores value under key and returns the signed byte-delta:
	// len(k)+len(v) for a new key, or the size difference for an
	// overwrite.
	Put(key, value []byte) int64
	// Remove deletes key and returns the signed (negative) byte-delta,
	// or zero if the key was absent.
	Remove(key []byte) int64

	// Begin returns an iterator positioned before the first entry.
	Begin() Iterator
	// End returns an iterator positioned after the last entry.
	End() Iterator

	// Clone returns a deep, independent copy of the backend.
	Clone() Backend

	Size() int
	Empty() bool

	ID() protocol.Digest
	SetID(id protocol.Digest)
	Revision() uint64
	SetRevision(rev uint64)
	// MerkleRoot returns the backend's cached merkle root, if one has
	// been set. The backend never computes it; StateDelta does.
	MerkleRoot() (protocol.Digest, bool)
	SetMerkleRoot(root protocol.Digest)
}

// MemoryBackend is the trivial in-memory reference Backend: a sorted
// slice of keys paired with a map of values, giving ordered iteration
// without a dependency on a tree library.
type MemoryBackend struct {
	keys []string
	data map[string][]byte

	id         protocol.Digest
	revision   uint64
	merkleRoot protocol.Digest
	hasRoot    bool
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (b *MemoryBackend) search(key string) (int, bool) {
	i := sort.SearchStrings(b.keys, key)
	return i, i < len(b.keys) && b.keys[i] == key
}

func (b *MemoryBackend) Get(key []byte) ([]byte, bool) {
	v, ok := b.data[string(key)]
	return v, ok
}

func (b *MemoryBackend) Put(key, value []byte) int64 {
	k := string(key)
	old, existed := b.data[k]
	var delta int64
	if existed {
		delta = int64(len(value)) - int64(len(old))
	} else {
		delta = int64(len(key)) + int64(len(value))
		i, _ := b.search(k)
		b.keys = append(b.keys, "")
		copy(b.keys[i+1:], b.keys[i:])
		b.keys[i] = k
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	b.data[k] = stored
	return delta
}

func (b *MemoryBackend) Remove(key []byte) int64 {
	k := string(key)
	old, existed := b.data[k]
	if !existed {
		return 0
	}
	delta := -(int64(len(key)) + int64(len(old)))
	delete(b.data, k)
	i, found := b.search(k)
	if found {
		b.keys = append(b.keys[:i], b.keys[i+1:]...)
	}
	return delta
}

func (b *MemoryBackend) Size() int { return len(b.keys) }

func (b *MemoryBackend) Empty() bool { return len(b.keys) == 0 }

func (b *MemoryBackend) Clone() Backend {
	out := &MemoryBackend{
		keys:       make([]string, len(b.keys)),
		data:       make(map[string][]byte, len(b.data)),
		id:         b.id,
		revision:   b.revision,
		merkleRoot: b.merkleRoot,
		hasRoot:    b.hasRoot,
	}
	copy(out.keys, b.keys)
	for k, v := range b.data {
		cp := make([]byte, len(v))
		copy(cp, v)
		out.data[k] = cp
	}
	return out
}

func (b *MemoryBackend) ID() protocol.Digest      { return b.id }
func (b *MemoryBackend) SetID(id protocol.Digest) { b.id = id }
func (b *MemoryBackend) Revision() uint64         { return b.revision }
func (b *MemoryBackend) SetRevision(rev uint64)   { b.revision = rev }

func (b *MemoryBackend) MerkleRoot() (protocol.Digest, bool) { return b.merkleRoot, b.hasRoot }
func (b *MemoryBackend) SetMerkleRoot(root protocol.Digest) {
	b.merkleRoot = root
	b.hasRoot = true
}

func (b *MemoryBackend) Begin() Iterator { return &memoryIterator{b: b, pos: -1} }
func (b *MemoryBackend) End() Iterator   { return &memoryIterator{b: b, pos: len(b.keys)} }

type memoryIterator struct {
	b   *MemoryBackend
	pos int
}

func (it *memoryIterator) Next() bool {
	if it.pos+1 >= len(it.b.keys) {
		it.pos = len(it.b.keys)
		return false
	}
	it.pos++
	return true
}

func (it *memoryIterator) Prev() bool {
	if it.pos-1 < 0 {
		it.pos = -1
		return false
	}
	it.pos--
	return true
}

func (it *memoryIterator) Key() []byte {
	if it.pos < 0 || it.pos >= len(it.b.keys) {
		return nil
	}
	return []byte(it.b.keys[it.pos])
}

func (it *memoryIterator) Value() []byte {
	if it.pos < 0 || it.pos >= len(it.b.keys) {
		return nil
	}
	return it.b.data[it.b.keys[it.pos]]
}

func (it *memoryIterator) Release() ([]byte, []byte) {
	k, v := it.Key(), it.Value()
	it.b = nil
	return k, v
}
