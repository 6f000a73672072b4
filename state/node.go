// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"encoding/binary"
	"errors"
	"sort"
	"strings"

	"github.com/luxfi/execore/protocol"
)

// ErrNotPermanent is returned by the permanent-only operations
// (MarkComplete, MerkleRoot, Commit, Discard) when called on a
// temporary node.
var ErrNotPermanent = errors.New("state: node is not permanent")

// ObjectSpace namespaces keys inside a delta: system spaces
// have Address all-zero; program-owned spaces are keyed by the owning
// program's account address plus a small integer id distinguishing
// multiple spaces under the same program.
type ObjectSpace struct {
	System  bool
	Address [32]byte
	ID      uint32
}

// spacePrefixSize is the fixed width of an encoded ObjectSpace: 1 tag
// byte, 3 padding bytes, 32 address bytes, 4 little-endian id bytes.
const spacePrefixSize = 1 + 3 + 32 + 4

func encodeSpace(space ObjectSpace) []byte {
	out := make([]byte, spacePrefixSize)
	if space.System {
		out[0] = 1
	}
	copy(out[4:36], space.Address[:])
	binary.LittleEndian.PutUint32(out[36:40], space.ID)
	return out
}

func compoundKey(space ObjectSpace, key []byte) []byte {
	prefix := encodeSpace(space)
	out := make([]byte, len(prefix)+len(key))
	copy(out, prefix)
	copy(out[len(prefix):], key)
	return out
}

// Node is a user-facing view onto a StateDelta: it frames every read
// and write with an ObjectSpace-derived compound key.
// Permanent nodes participate in the Database's delta graph and may be
// completed, committed, or discarded; temporary nodes are ephemeral
// speculative-execution branches, never indexed, that must be squashed
// into their parent or simply dropped.
type Node struct {
	delta     *StateDelta
	db        *Database
	permanent bool
}

// NewPermanentNode wraps delta as a permanent node already indexed in
// db (used for the database's root and for committed/previously
// completed blocks).
func NewPermanentNode(db *Database, delta *StateDelta) *Node {
	return &Node{delta: delta, db: db, permanent: true}
}

// Delta returns the underlying delta, for components (the resource
// meter, the controller) that need the raw merkle/commit surface.
func (n *Node) Delta() *StateDelta { return n.delta }

// Permanent reports whether this node participates in the database
// graph.
func (n *Node) Permanent() bool { return n.permanent }

// Get reads key from space, walking the ancestor chain.
func (n *Node) Get(space ObjectSpace, key []byte) ([]byte, bool) {
	return n.delta.Get(compoundKey(space, key))
}

// Put writes key to value in space, returning the signed byte-delta
// used by the resource meter to charge disk_storage.
// Fails with ErrNotFinalized against a complete delta.
func (n *Node) Put(space ObjectSpace, key, value []byte) (int64, error) {
	return n.delta.Put(compoundKey(space, key), value)
}

// Remove tombstones key in space.
func (n *Node) Remove(space ObjectSpace, key []byte) (int64, error) {
	return n.delta.Remove(compoundKey(space, key))
}

// rangeInSpace returns every (user-key, value) pair visible in space,
// sorted by user key.
func (n *Node) rangeInSpace(space ObjectSpace) [][2][]byte {
	prefix := string(encodeSpace(space))
	state := n.delta.flattenState()
	var kvs [][2][]byte
	for k, v := range state {
		if strings.HasPrefix(k, prefix) {
			kvs = append(kvs, [2][]byte{[]byte(k[len(prefix):]), v})
		}
	}
	sort.Slice(kvs, func(i, j int) bool { return string(kvs[i][0]) < string(kvs[j][0]) })
	return kvs
}

// Next returns the first entry in space whose key sorts strictly after
// key.
func (n *Node) Next(space ObjectSpace, key []byte) (outKey, outValue []byte, ok bool) {
	kvs := n.rangeInSpace(space)
	target := string(key)
	for _, kv := range kvs {
		if string(kv[0]) > target {
			return kv[0], kv[1], true
		}
	}
	return nil, nil, false
}

// Previous returns the last entry in space whose key sorts strictly
// before key.
func (n *Node) Previous(space ObjectSpace, key []byte) (outKey, outValue []byte, ok bool) {
	kvs := n.rangeInSpace(space)
	target := string(key)
	for i := len(kvs) - 1; i >= 0; i-- {
		if string(kvs[i][0]) < target {
			return kvs[i][0], kvs[i][1], true
		}
	}
	return nil, nil, false
}

// MakeChild spawns a child node over a new delta with the given id. A
// permanent child requires this node's delta to already be complete
// (ErrParentNotComplete otherwise) and is registered in the Database;
// a temporary child is never indexed, so its id only needs to be
// unique among the node's in-flight siblings.
func (n *Node) MakeChild(id protocol.Digest, permanent bool) (*Node, error) {
	if permanent && !n.delta.Complete() {
		return nil, ErrParentNotComplete
	}
	child := MakeChild(n.delta, id)
	if permanent {
		if err := n.db.Add(child); err != nil {
			return nil, err
		}
	}
	return &Node{delta: child, db: n.db, permanent: permanent}, nil
}

// Clone returns an independent temporary node carrying a deep copy of
// this node's overlay, for speculative branches that may need to
// backtrack without disturbing the original.
func (n *Node) Clone() *Node {
	tombstones := make(map[string]struct{}, len(n.delta.tombstones))
	for k := range n.delta.tombstones {
		tombstones[k] = struct{}{}
	}
	cloned := &StateDelta{
		id:         n.delta.id,
		parentID:   n.delta.parentID,
		revision:   n.delta.revision,
		parent:     n.delta.parent,
		backend:    n.delta.backend.Clone(),
		tombstones: tombstones,
	}
	return &Node{delta: cloned, db: n.db, permanent: false}
}

// Squash merges this node's writes into its parent delta in place,
// then the caller discards this node (it no longer refers to valid
// state afterward). Used by the controller to fold a successful
// temporary transaction node into its parent block node.
func (n *Node) Squash() error {
	return n.delta.Squash()
}

// MarkComplete freezes the node's delta and submits it to the Database
// for head-selection consideration. Permanent nodes only.
func (n *Node) MarkComplete() error {
	if !n.permanent {
		return ErrNotPermanent
	}
	n.db.MarkComplete(n.delta)
	return nil
}

// MerkleRoot returns the node's delta's merkle root (requires the
// delta to be complete, permanent or not).
func (n *Node) MerkleRoot() (protocol.Digest, error) {
	return n.delta.MerkleRoot()
}

// Commit promotes this node's delta to the new database root. Permanent
// nodes only.
func (n *Node) Commit() error {
	if !n.permanent {
		return ErrNotPermanent
	}
	return n.db.Commit(n.delta)
}

// Discard removes this node's delta (and its subtree) from the
// Database without committing it. Permanent nodes only.
func (n *Node) Discard() error {
	if !n.permanent {
		return ErrNotPermanent
	}
	n.db.Remove(n.delta.ID(), nil)
	return nil
}
