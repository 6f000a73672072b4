// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package protocol defines the wire types exchanged between nodes:
// accounts, blocks, transactions, operations, program frames and
// events, together with their canonical byte encoding and digest
// derivation.
package protocol

import (
	"encoding/binary"
	"errors"
	"strings"

	"github.com/luxfi/execore/encode"
)

// AccountTag distinguishes a user (key-pair controlled) account from a
// program (derived identity, no private key) account.
type AccountTag uint8

const (
	AccountUser AccountTag = iota
	AccountProgram
)

func (t AccountTag) String() string {
	switch t {
	case AccountUser:
		return "user"
	case AccountProgram:
		return "program"
	default:
		return "unknown"
	}
}

// AccountSize is the wire size of an Account: one tag byte followed by
// 32 bytes of key material.
const AccountSize = 33

// Account identifies a user or program. A program account is a derived
// identity: it never signs, it is only ever a caller or callee.
type Account struct {
	Tag AccountTag
	Key [32]byte
}

// EmptyAccount is the zero account, used to represent "no caller" at
// the outermost call frame.
var EmptyAccount = Account{}

// NewUserAccount wraps a public key as a user account.
func NewUserAccount(pub [32]byte) Account {
	return Account{Tag: AccountUser, Key: pub}
}

// NewProgramAccount wraps a derived identity as a program account.
func NewProgramAccount(id [32]byte) Account {
	return Account{Tag: AccountProgram, Key: id}
}

// Bytes returns the canonical 33-byte encoding: tag || key.
func (a Account) Bytes() [AccountSize]byte {
	var out [AccountSize]byte
	out[0] = byte(a.Tag)
	copy(out[1:], a.Key[:])
	return out
}

// AccountFromBytes parses the canonical 33-byte encoding.
func AccountFromBytes(b []byte) (Account, error) {
	if len(b) != AccountSize {
		return Account{}, errors.New("account: wrong byte length")
	}
	var a Account
	a.Tag = AccountTag(b[0])
	copy(a.Key[:], b[1:])
	return a, nil
}

// IsProgram reports whether the account is a program-derived identity.
func (a Account) IsProgram() bool { return a.Tag == AccountProgram }

// IsEmpty reports whether this is the zero account.
func (a Account) IsEmpty() bool { return a == EmptyAccount }

// String renders the account as "tag:base58(key)": a short
// discriminator paired with a base58-encoded body, friendly to logs
// and error messages.
func (a Account) String() string {
	return a.Tag.String() + ":" + encode.Base58Encode(a.Key[:])
}

// AccountFromString parses the "tag:base58(key)" rendering produced by
// String.
func AccountFromString(s string) (Account, error) {
	tag, body, found := strings.Cut(s, ":")
	if !found {
		return Account{}, encode.ErrInvalidLength
	}
	var a Account
	switch tag {
	case AccountUser.String():
		a.Tag = AccountUser
	case AccountProgram.String():
		a.Tag = AccountProgram
	default:
		return Account{}, encode.ErrInvalidCharacter
	}
	key, err := encode.Base58DecodeExact(body, len(a.Key))
	if err != nil {
		return Account{}, err
	}
	copy(a.Key[:], key)
	return a, nil
}

// Authorization pairs a signer account with its Ed25519 signature over
// a transaction's id.
type Authorization struct {
	Signer    Account
	Signature [64]byte
}

// Size returns the wire size of the authorization.
func (a Authorization) Size() int { return AccountSize + len(a.Signature) }

func (a Authorization) encode(buf *buffer) {
	acc := a.Signer.Bytes()
	buf.writeBytes(acc[:])
	buf.writeBytes(a.Signature[:])
}

// buffer is a tiny append-only byte builder used by canonical encoders
// across the protocol package; canonical serialization is hand-rolled
// rather than routed through a generic codec because consensus-critical
// digests must reproduce one exact byte layout,
// which a schema-driven codec (protobuf, cbor) does not guarantee.
type buffer struct {
	b []byte
}

func newBuffer(capHint int) *buffer { return &buffer{b: make([]byte, 0, capHint)} }

func (buf *buffer) writeBytes(p []byte) { buf.b = append(buf.b, p...) }

func (buf *buffer) writeUint64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	buf.b = append(buf.b, tmp[:]...)
}

func (buf *buffer) writeUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	buf.b = append(buf.b, tmp[:]...)
}

func (buf *buffer) bytes() []byte { return buf.b }
