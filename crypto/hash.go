// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package crypto wraps the hash and signature primitives the execution
// core treats as pure, external functions: BLAKE3 hashing and Ed25519
// signing. Neither is reimplemented; both are modeled as stateless
// functions over byte slices so the rest of the module never depends
// on a particular crypto library directly.
package crypto

import (
	"github.com/luxfi/ids"
	"github.com/zeebo/blake3"
)

// DigestSize is the width, in bytes, of every hash produced by Hash.
const DigestSize = 32

// Hasher accumulates bytes in canonical field order and finalizes to a
// single digest, a reset/update/finalize shape that lets structural
// hashing (block and transaction ids) build up a digest incrementally
// without allocating an intermediate buffer for every field.
type Hasher struct {
	h *blake3.Hasher
}

// NewHasher returns a ready-to-use Hasher.
func NewHasher() *Hasher {
	return &Hasher{h: blake3.New()}
}

// Update appends bytes to the running hash.
func (h *Hasher) Update(b []byte) *Hasher {
	_, _ = h.h.Write(b)
	return h
}

// UpdateUint64 appends a little-endian encoded uint64, the module's
// integer-input normalization rule.
func (h *Hasher) UpdateUint64(v uint64) *Hasher {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return h.Update(buf[:])
}

// UpdateUint32 appends a little-endian encoded uint32.
func (h *Hasher) UpdateUint32(v uint32) *Hasher {
	var buf [4]byte
	for i := 0; i < 4; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return h.Update(buf[:])
}

// Finalize returns the accumulated digest. The Hasher may continue to
// be updated afterward; finalization does not consume state.
func (h *Hasher) Finalize() ids.ID {
	var out [DigestSize]byte
	h.h.Sum(out[:0])
	return ids.ID(out)
}

// Hash returns the BLAKE3-256 digest of b in one call.
func Hash(b []byte) ids.ID {
	return NewHasher().Update(b).Finalize()
}

// EmptyHash is the digest of the empty byte string, used as the merkle
// root of an empty state delta.
var EmptyHash = Hash(nil)

// MerkleRoot computes a binary Merkle tree root over leaves, duplicating
// the final leaf when a level has an odd count. An
// empty leaf set hashes to EmptyHash. This single implementation backs
// both the state delta's object merkle root and the block's
// transaction merkle root so the two can never silently diverge.
func MerkleRoot(leaves []ids.ID) ids.ID {
	if len(leaves) == 0 {
		return EmptyHash
	}
	level := make([]ids.ID, len(leaves))
	copy(level, leaves)
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]ids.ID, len(level)/2)
		for i := range next {
			h := NewHasher()
			h.Update(level[2*i][:])
			h.Update(level[2*i+1][:])
			next[i] = h.Finalize()
		}
		level = next
	}
	return level[0]
}
