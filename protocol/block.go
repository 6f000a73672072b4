// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import "github.com/luxfi/execore/crypto"

// Block is the canonical block structure: id, previous,
// height, timestamp, state merkle root, transactions, and the signer's
// account plus its signature over the block id.
type Block struct {
	ID              Digest
	Previous        Digest
	Height          uint64
	Timestamp       uint64
	StateMerkleRoot Digest
	Transactions    []Transaction
	Signer          Account
	Signature       [64]byte
}

// Size returns the block's serialized byte size.
func (b Block) Size() int {
	size := len(Digest{})*3 + 8 + 8 // id, previous, state_merkle_root, height, timestamp
	size += 4
	for _, t := range b.Transactions {
		size += t.Size()
	}
	size += AccountSize + len(b.Signature)
	return size
}

// signingBytes returns the canonical encoding hashed to produce the
// block id: previous || height || timestamp || state_merkle_root ||
// concat(tx.id) || signer.
func (b Block) signingBytes() []byte {
	buf := newBuffer(b.Size())
	buf.writeBytes(b.Previous[:])
	buf.writeUint64(b.Height)
	buf.writeUint64(b.Timestamp)
	buf.writeBytes(b.StateMerkleRoot[:])
	for _, t := range b.Transactions {
		buf.writeBytes(t.ID[:])
	}
	signer := b.Signer.Bytes()
	buf.writeBytes(signer[:])
	return buf.bytes()
}

// MakeBlockID computes the canonical id of a block.
func MakeBlockID(b Block) Digest {
	return crypto.Hash(b.signingBytes())
}

// Validate performs the block's syntactic checks:
// height must be positive, timestamp must be positive, the computed id
// must equal the header id, and the signer's key must verify the
// signature over that id.
func (b Block) Validate() error {
	if b.Height == 0 {
		return ErrMalformedBlock
	}
	if b.Timestamp == 0 {
		return ErrMalformedBlock
	}
	if MakeBlockID(b) != b.ID {
		return ErrMalformedBlock
	}
	if b.Signer.IsProgram() {
		return ErrInvalidAccount
	}
	if !crypto.Verify(b.Signer.Key, b.ID[:], b.Signature) {
		return ErrInvalidSignature
	}
	return nil
}

// TransactionMerkleRoot computes the binary Merkle root over the
// block's transaction ids, using the same odd-leaf-duplication rule as
// state delta merkle roots, so a light client can verify
// transaction inclusion with the same primitive used for state.
func (b Block) TransactionMerkleRoot() Digest {
	if len(b.Transactions) == 0 {
		return crypto.EmptyHash
	}
	leaves := make([]Digest, len(b.Transactions))
	for i, t := range b.Transactions {
		leaves[i] = t.ID
	}
	return crypto.MerkleRoot(leaves)
}

// BlockReceipt is the deterministic record of applying a block. Used/Charged fields follow the same convention as
// TransactionReceipt.
type BlockReceipt struct {
	ID                      Digest
	Height                  uint64
	Frames                  []*ProgramFrame
	Events                  []Event
	DiskStorageUsed         uint64
	NetworkBandwidthUsed    uint64
	ComputeBandwidthUsed    uint64
	StateMerkleRoot         Digest
	TransactionReceipts     []TransactionReceipt
	DiskStorageCharged      uint64
	NetworkBandwidthCharged uint64
	ComputeBandwidthCharged uint64
}
