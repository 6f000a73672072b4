// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"io"
	"sort"
	"sync"

	"github.com/luxfi/execore/protocol"
	"github.com/luxfi/log"
)

// ForkChoice compares the current head against a newly-completed
// candidate and returns whichever should be head.
type ForkChoice func(current, candidate *StateDelta) *StateDelta

// FIFOForkChoice is the shipped fork-choice algorithm: "first to
// arrive wins". The current head never yields to a newly-complete
// rival candidate. Database.MarkComplete does not consult the
// comparator for a candidate that is a child of the current head (the
// head simply extends to it), nor when the current head has become
// unreachable from root.
func FIFOForkChoice(current, candidate *StateDelta) *StateDelta {
	if current == nil {
		return candidate
	}
	return current
}

// InitFunc populates the genesis delta before it is marked complete.
type InitFunc func(genesis *StateDelta) error

// Config configures a Database.Open call.
type Config struct {
	GenesisID  protocol.Digest
	Init       InitFunc
	ForkChoice ForkChoice
	Log        log.Logger
	// Path, when non-empty, backs the genesis delta with a pebble
	// database at that location. If the store already holds state from
	// a prior run, Init is skipped and the persisted state is used
	// as-is.
	Path string
}

// Database holds the state-delta DAG: deltas indexed by
// id, a parent->children adjacency used for subtree operations and
// leaf/fork-head queries, the current root and head, and the
// fork-choice comparator. The Database is the exclusive owner of every
// delta it indexes.
type Database struct {
	mu sync.RWMutex

	byID     map[protocol.Digest]*StateDelta
	children map[protocol.Digest][]protocol.Digest

	root *StateDelta
	head *StateDelta

	forkChoice ForkChoice
	log        log.Logger
}

// Open constructs the root delta (invoking Init to populate genesis if
// the backend has no prior state), marks it complete, and installs the
// fork-choice comparator.
func Open(cfg Config) (*Database, error) {
	forkChoice := cfg.ForkChoice
	if forkChoice == nil {
		forkChoice = FIFOForkChoice
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.NewNoOpLogger()
	}

	genesis := NewRootDelta(cfg.GenesisID)
	if cfg.Path != "" {
		backend, err := OpenPebbleBackend(cfg.Path)
		if err != nil {
			return nil, err
		}
		backend.SetID(cfg.GenesisID)
		genesis.backend = backend
	}
	if genesis.backend.Empty() && cfg.Init != nil {
		if err := cfg.Init(genesis); err != nil {
			return nil, err
		}
	}
	genesis.MarkComplete()

	db := &Database{
		byID:       map[protocol.Digest]*StateDelta{genesis.ID(): genesis},
		children:   map[protocol.Digest][]protocol.Digest{},
		root:       genesis,
		head:       genesis,
		forkChoice: forkChoice,
		log:        logger,
	}
	db.log.Info("state database opened", "root", genesis.ID())
	return db, nil
}

// Close releases the database, closing the root's backend if it is
// disk-backed. The in-memory index itself holds nothing that outlives
// the process.
func (db *Database) Close() error {
	if closer, ok := db.Root().backend.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Reset discards every delta but a fresh genesis built from cfg
// (running cfg.Init); the database keeps its existing fork-choice
// comparator and logger.
func (db *Database) Reset(cfg Config) error {
	fresh, err := Open(cfg)
	if err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	db.byID = fresh.byID
	db.children = fresh.children
	db.root = fresh.root
	db.head = fresh.head
	return nil
}

// Get looks up a delta by id.
func (db *Database) Get(id protocol.Digest) (*StateDelta, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	d, ok := db.byID[id]
	return d, ok
}

// Root returns the current root delta.
func (db *Database) Root() *StateDelta {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.root
}

// Head returns the delta selected by the fork-choice comparator.
func (db *Database) Head() *StateDelta {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.head
}

// ForkHeads returns every complete delta with no recorded children,
// sorted by id for deterministic iteration.
func (db *Database) ForkHeads() []*StateDelta {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var heads []*StateDelta
	for id, d := range db.byID {
		if !d.Complete() {
			continue
		}
		if len(db.children[id]) == 0 {
			heads = append(heads, d)
		}
	}
	sort.Slice(heads, func(i, j int) bool {
		a, b := heads[i].ID(), heads[j].ID()
		return string(a[:]) < string(b[:])
	})
	return heads
}

// Add inserts delta as a child of its recorded parent. Fails if the id
// is already present, the parent is unknown, or the parent is not yet
// complete (a permanent child may only be spawned from a complete
// parent).
func (db *Database) Add(delta *StateDelta) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, exists := db.byID[delta.ID()]; exists {
		return ErrDeltaExists
	}
	parent, ok := db.byID[delta.ParentID()]
	if !ok {
		return ErrUnknownDelta
	}
	if !parent.Complete() {
		return ErrParentNotComplete
	}
	db.byID[delta.ID()] = delta
	db.children[delta.ParentID()] = append(db.children[delta.ParentID()], delta.ID())
	return nil
}

// MarkComplete marks delta as eligible for head selection. A delta
// whose parent is the current head becomes head; any other candidate
// is run through the fork-choice comparator against the current head.
func (db *Database) MarkComplete(delta *StateDelta) {
	delta.MarkComplete()
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.head == nil || !db.reachableLocked(db.head.ID()) || delta.ParentID() == db.head.ID() {
		db.head = delta
		return
	}
	db.head = db.forkChoice(db.head, delta)
}

func (db *Database) reachableLocked(id protocol.Digest) bool {
	for cur := id; ; {
		if cur == db.root.ID() {
			return true
		}
		d, ok := db.byID[cur]
		if !ok {
			return false
		}
		if d.ParentID() == cur {
			return false
		}
		cur = d.ParentID()
	}
}

// Remove deletes delta and its entire subtree, preserving any subtree
// rooted at an id present in whitelist.
func (db *Database) Remove(id protocol.Digest, whitelist map[protocol.Digest]bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.removeSubtreeLocked(id, whitelist)
	if db.head != nil {
		if _, ok := db.byID[db.head.ID()]; !ok {
			db.head = db.root
		}
	}
}

func (db *Database) removeSubtreeLocked(id protocol.Digest, whitelist map[protocol.Digest]bool) {
	if whitelist != nil && whitelist[id] {
		return
	}
	for _, childID := range append([]protocol.Digest(nil), db.children[id]...) {
		db.removeSubtreeLocked(childID, whitelist)
	}
	delta, ok := db.byID[id]
	if !ok {
		return
	}
	delete(db.byID, id)
	delete(db.children, id)
	siblings := db.children[delta.ParentID()]
	for i, sib := range siblings {
		if sib == id {
			db.children[delta.ParentID()] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
}

// Commit promotes delta to be the new root: it is flattened in place
// (StateDelta.Commit) and every delta not descending from it,
// including its former ancestors, is purged from the index.
func (db *Database) Commit(delta *StateDelta) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if !delta.Complete() {
		return ErrNotFinalized
	}

	keep := map[protocol.Digest]bool{delta.ID(): true}
	var collect func(protocol.Digest)
	collect = func(id protocol.Digest) {
		for _, childID := range db.children[id] {
			if keep[childID] {
				continue
			}
			keep[childID] = true
			collect(childID)
		}
	}
	collect(delta.ID())

	if err := delta.Commit(); err != nil {
		return err
	}

	for id := range db.byID {
		if !keep[id] {
			delete(db.byID, id)
			delete(db.children, id)
		}
	}
	delete(db.children, delta.ParentID())

	db.root = delta
	if db.head == nil || !keep[db.head.ID()] {
		db.head = delta
	}
	db.log.Info("state database committed", "root", delta.ID())
	return nil
}
