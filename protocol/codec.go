// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import "encoding/binary"

// Encode renders the block in canonical field order: id, previous,
// height, timestamp, state merkle root, length-prefixed transactions,
// signer, signature.
func (b Block) Encode() []byte {
	buf := newBuffer(b.Size())
	buf.writeBytes(b.ID[:])
	buf.writeBytes(b.Previous[:])
	buf.writeUint64(b.Height)
	buf.writeUint64(b.Timestamp)
	buf.writeBytes(b.StateMerkleRoot[:])
	buf.writeUint32(uint32(len(b.Transactions)))
	for _, t := range b.Transactions {
		buf.writeBytes(t.Encode())
	}
	signer := b.Signer.Bytes()
	buf.writeBytes(signer[:])
	buf.writeBytes(b.Signature[:])
	return buf.bytes()
}

// DecodeBlock parses a canonical block encoding. Truncated or
// trailing-garbage input fails with ErrMalformedBlock.
func DecodeBlock(raw []byte) (Block, error) {
	r := &reader{b: raw}
	var b Block
	copy(b.ID[:], r.bytes(len(b.ID)))
	copy(b.Previous[:], r.bytes(len(b.Previous)))
	b.Height = r.uint64()
	b.Timestamp = r.uint64()
	copy(b.StateMerkleRoot[:], r.bytes(len(b.StateMerkleRoot)))
	txCount := r.uint32()
	for i := uint32(0); i < txCount && !r.failed; i++ {
		b.Transactions = append(b.Transactions, r.transaction())
	}
	b.Signer = r.account()
	copy(b.Signature[:], r.bytes(len(b.Signature)))
	if r.failed || len(r.b) != 0 {
		return Block{}, ErrMalformedBlock
	}
	return b, nil
}

// Encode renders the transaction in canonical field order: id,
// network id, resource limit, payer, payee, nonce, length-prefixed
// operations, length-prefixed authorizations.
func (t Transaction) Encode() []byte {
	buf := newBuffer(t.Size())
	buf.writeBytes(t.ID[:])
	buf.writeBytes(t.NetworkID[:])
	buf.writeUint64(t.ResourceLimit)
	payer := t.Payer.Bytes()
	buf.writeBytes(payer[:])
	payee := t.Payee.Bytes()
	buf.writeBytes(payee[:])
	buf.writeUint64(t.Nonce)
	encodeOperations(buf, t.Operations)
	buf.writeUint32(uint32(len(t.Authorizations)))
	for _, a := range t.Authorizations {
		a.encode(buf)
	}
	return buf.bytes()
}

// DecodeTransaction parses a canonical transaction encoding.
func DecodeTransaction(raw []byte) (Transaction, error) {
	r := &reader{b: raw}
	t := r.transaction()
	if r.failed || len(r.b) != 0 {
		return Transaction{}, ErrMalformedTransaction
	}
	return t, nil
}

// reader consumes a canonical encoding front to back, collapsing every
// truncation into a single failed flag checked once at the end.
type reader struct {
	b      []byte
	failed bool
}

func (r *reader) bytes(n int) []byte {
	if r.failed || len(r.b) < n {
		r.failed = true
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) uint64() uint64 {
	raw := r.bytes(8)
	if raw == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(raw)
}

func (r *reader) uint32() uint32 {
	raw := r.bytes(4)
	if raw == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(raw)
}

func (r *reader) account() Account {
	raw := r.bytes(AccountSize)
	if raw == nil {
		return Account{}
	}
	account, err := AccountFromBytes(raw)
	if err != nil {
		r.failed = true
		return Account{}
	}
	return account
}

func (r *reader) lengthPrefixedBytes() []byte {
	n := r.uint32()
	if r.failed || uint32(len(r.b)) < n {
		r.failed = true
		return nil
	}
	if n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, r.bytes(int(n)))
	return out
}

func (r *reader) operation() Operation {
	tag := r.bytes(1)
	if tag == nil {
		return nil
	}
	switch OperationTag(tag[0]) {
	case OperationUploadProgram:
		op := UploadProgram{ID: r.account()}
		op.Bytecode = r.lengthPrefixedBytes()
		return op
	case OperationCallProgram:
		op := CallProgram{ID: r.account()}
		argCount := r.uint32()
		for i := uint32(0); i < argCount && !r.failed; i++ {
			op.Input.Arguments = append(op.Input.Arguments, string(r.lengthPrefixedBytes()))
		}
		op.Input.Stdin = r.lengthPrefixedBytes()
		return op
	default:
		r.failed = true
		return nil
	}
}

func (r *reader) transaction() Transaction {
	var t Transaction
	copy(t.ID[:], r.bytes(len(t.ID)))
	copy(t.NetworkID[:], r.bytes(len(t.NetworkID)))
	t.ResourceLimit = r.uint64()
	t.Payer = r.account()
	t.Payee = r.account()
	t.Nonce = r.uint64()
	opCount := r.uint32()
	for i := uint32(0); i < opCount && !r.failed; i++ {
		t.Operations = append(t.Operations, r.operation())
	}
	authCount := r.uint32()
	for i := uint32(0); i < authCount && !r.failed; i++ {
		var a Authorization
		a.Signer = r.account()
		copy(a.Signature[:], r.bytes(len(a.Signature)))
		t.Authorizations = append(t.Authorizations, a)
	}
	return t
}
