// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"os"

	"github.com/cockroachdb/pebble"

	"github.com/luxfi/execore/protocol"
)

// PebbleBackend is a disk-backed Backend implementation over
// cockroachdb/pebble, preserving the same ordered get/put/remove/
// iterate/clone contract as MemoryBackend. It is not exercised by
// the controller's hot path, where every delta's overlay is a
// MemoryBackend, but is available to Database.Open for a root genesis
// state that should survive a process restart.
type PebbleBackend struct {
	db   *pebble.DB
	path string

	id         protocol.Digest
	revision   uint64
	merkleRoot protocol.Digest
	hasRoot    bool
}

// OpenPebbleBackend opens (creating if absent) a pebble database at path.
func OpenPebbleBackend(path string) (*PebbleBackend, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleBackend{db: db, path: path}, nil
}

func (b *PebbleBackend) Close() error { return b.db.Close() }

func (b *PebbleBackend) Get(key []byte) ([]byte, bool) {
	v, closer, err := b.db.Get(key)
	if err != nil {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	_ = closer.Close()
	return out, true
}

func (b *PebbleBackend) Put(key, value []byte) int64 {
	old, existed := b.Get(key)
	var delta int64
	if existed {
		delta = int64(len(value)) - int64(len(old))
	} else {
		delta = int64(len(key)) + int64(len(value))
	}
	_ = b.db.Set(key, value, pebble.Sync)
	return delta
}

func (b *PebbleBackend) Remove(key []byte) int64 {
	old, existed := b.Get(key)
	if !existed {
		return 0
	}
	_ = b.db.Delete(key, pebble.Sync)
	return -(int64(len(key)) + int64(len(old)))
}

func (b *PebbleBackend) Size() int {
	n := 0
	it, _ := b.db.NewIter(&pebble.IterOptions{})
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		n++
	}
	return n
}

func (b *PebbleBackend) Empty() bool { return b.Size() == 0 }

// Clone copies every entry into a fresh pebble database beside the
// original (path + ".clone"); callers that need many clones should
// prefer MemoryBackend-backed deltas, which is what every overlay in
// this module actually uses.
func (b *PebbleBackend) Clone() Backend {
	clonePath := b.path + ".clone"
	_ = os.RemoveAll(clonePath)
	out, err := OpenPebbleBackend(clonePath)
	if err != nil {
		return NewMemoryBackend()
	}
	it, _ := b.db.NewIter(&pebble.IterOptions{})
	defer it.Close()
	batch := out.db.NewBatch()
	for it.First(); it.Valid(); it.Next() {
		_ = batch.Set(it.Key(), it.Value(), nil)
	}
	_ = batch.Commit(pebble.Sync)
	out.id, out.revision, out.merkleRoot, out.hasRoot = b.id, b.revision, b.merkleRoot, b.hasRoot
	return out
}

func (b *PebbleBackend) ID() protocol.Digest      { return b.id }
func (b *PebbleBackend) SetID(id protocol.Digest) { b.id = id }
func (b *PebbleBackend) Revision() uint64         { return b.revision }
func (b *PebbleBackend) SetRevision(rev uint64)   { b.revision = rev }

func (b *PebbleBackend) MerkleRoot() (protocol.Digest, bool) { return b.merkleRoot, b.hasRoot }
func (b *PebbleBackend) SetMerkleRoot(root protocol.Digest) {
	b.merkleRoot = root
	b.hasRoot = true
}

func (b *PebbleBackend) Begin() Iterator {
	it, _ := b.db.NewIter(&pebble.IterOptions{})
	return &pebbleIterator{it: it, started: false, fromEnd: false}
}

func (b *PebbleBackend) End() Iterator {
	it, _ := b.db.NewIter(&pebble.IterOptions{})
	return &pebbleIterator{it: it, started: false, fromEnd: true}
}

// pebbleIterator adapts a *pebble.Iterator to the Backend Iterator
// contract, which is positioned "before first"/"after last" until the
// first Next/Prev call.
type pebbleIterator struct {
	it      *pebble.Iterator
	started bool
	fromEnd bool
}

func (it *pebbleIterator) Next() bool {
	if !it.started {
		if it.fromEnd {
			return false
		}
		it.started = true
		return it.it.First()
	}
	return it.it.Next()
}

func (it *pebbleIterator) Prev() bool {
	if !it.started {
		if !it.fromEnd {
			return false
		}
		it.started = true
		return it.it.Last()
	}
	return it.it.Prev()
}

func (it *pebbleIterator) Key() []byte {
	if !it.it.Valid() {
		return nil
	}
	return it.it.Key()
}

func (it *pebbleIterator) Value() []byte {
	if !it.it.Valid() {
		return nil
	}
	return it.it.Value()
}

func (it *pebbleIterator) Release() ([]byte, []byte) {
	k, v := it.Key(), it.Value()
	kc := append([]byte(nil), k...)
	vc := append([]byte(nil), v...)
	_ = it.it.Close()
	return kc, vc
}
