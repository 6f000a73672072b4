// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import "github.com/luxfi/execore/crypto"

// Transaction is a single payer-authorized batch of operations. Its id is the hash of every field but the id itself and the
// authorization signatures; the authorization signers are included
// (MakeTransactionID). Its authorizations are Ed25519 signatures over
// that id.
type Transaction struct {
	ID             Digest
	NetworkID      Digest
	ResourceLimit  uint64
	Payer          Account
	Payee          Account
	Nonce          uint64
	Operations     []Operation
	Authorizations []Authorization
}

// Size returns the transaction's serialized byte size, used for
// network_bandwidth accounting at admission.
func (t Transaction) Size() int {
	size := len(Digest{}) * 2 // id + network_id
	size += 8                 // resource_limit
	size += AccountSize * 2   // payer + payee
	size += 8                 // nonce
	size += operationsSize(t.Operations)
	size += 4
	for _, a := range t.Authorizations {
		size += a.Size()
	}
	return size
}

// signingBytes returns the canonical encoding hashed to produce the
// transaction id: every field except the id, with each authorization
// contributing its signer but not its signature.
func (t Transaction) signingBytes() []byte {
	buf := newBuffer(t.Size())
	buf.writeBytes(t.NetworkID[:])
	buf.writeUint64(t.ResourceLimit)
	payer := t.Payer.Bytes()
	buf.writeBytes(payer[:])
	payee := t.Payee.Bytes()
	buf.writeBytes(payee[:])
	buf.writeUint64(t.Nonce)
	encodeOperations(buf, t.Operations)
	for _, a := range t.Authorizations {
		signer := a.Signer.Bytes()
		buf.writeBytes(signer[:])
	}
	return buf.bytes()
}

// MakeTransactionID computes the canonical id of a transaction: the
// hash of network_id || resource_limit || payer || payee || nonce ||
// encoded(operations) || concat(authorization signers).
func MakeTransactionID(t Transaction) Digest {
	return crypto.Hash(t.signingBytes())
}

// Validate performs the transaction's syntactic checks: the id must match its content hash, and every authorization
// must carry a valid Ed25519 signature over that id.
func (t Transaction) Validate() error {
	if MakeTransactionID(t) != t.ID {
		return ErrMalformedTransaction
	}
	if len(t.Authorizations) == 0 {
		return ErrAuthorizationFailure
	}
	for _, a := range t.Authorizations {
		if a.Signer.IsProgram() {
			return ErrInvalidAccount
		}
		if !crypto.Verify(a.Signer.Key, t.ID[:], a.Signature) {
			return ErrInvalidSignature
		}
	}
	return nil
}

// AuthorizedBy reports whether account is among the transaction's
// authorization signers.
func (t Transaction) AuthorizedBy(account Account) bool {
	for _, a := range t.Authorizations {
		if a.Signer == account {
			return true
		}
	}
	return false
}

// TransactionReceipt is the deterministic record of applying one
// transaction. Per-category Used fields count raw units (bytes, ticks)
// consumed; Charged fields count the session credit those units drew
// from the payer's pool, units times the category's cost. The two
// coincide only while every cost is one credit per unit. ResourceUsed
// is the total credit drawn from the pool, never more than
// ResourceLimit.
type TransactionReceipt struct {
	ID            Digest
	Reverted      bool
	Payer         Account
	Payee         Account
	Frames        []*ProgramFrame
	Events        []Event
	ResourceLimit uint64

	ResourceUsed         uint64
	DiskStorageUsed      uint64
	NetworkBandwidthUsed uint64
	ComputeBandwidthUsed uint64

	DiskStorageCharged      uint64
	NetworkBandwidthCharged uint64
	ComputeBandwidthCharged uint64
}
