// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package encode wraps the byte-to-text encodings used at the module's
// edges: base58 for account and digest rendering, hex for raw byte
// dumps in logs and errors. Decoding failures collapse onto two
// sentinel errors so callers never depend on the underlying library's
// error shapes.
package encode

import (
	"encoding/hex"
	"errors"

	"github.com/mr-tron/base58"
)

var (
	// ErrInvalidCharacter is returned when decoded input contains a
	// byte outside the encoding's alphabet.
	ErrInvalidCharacter = errors.New("encode: invalid character")
	// ErrInvalidLength is returned when decoded output does not match
	// the length the caller required.
	ErrInvalidLength = errors.New("encode: invalid length")
)

// Base58Encode renders b in the Bitcoin base58 alphabet.
func Base58Encode(b []byte) string {
	return base58.Encode(b)
}

// Base58Decode parses s from the Bitcoin base58 alphabet.
func Base58Decode(s string) ([]byte, error) {
	out, err := base58.Decode(s)
	if err != nil {
		return nil, ErrInvalidCharacter
	}
	return out, nil
}

// Base58DecodeExact parses s and requires the decoded output to be
// exactly size bytes.
func Base58DecodeExact(s string, size int) ([]byte, error) {
	out, err := Base58Decode(s)
	if err != nil {
		return nil, err
	}
	if len(out) != size {
		return nil, ErrInvalidLength
	}
	return out, nil
}

// HexEncode renders b as lowercase hex.
func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// HexDecode parses lowercase or uppercase hex.
func HexDecode(s string) ([]byte, error) {
	out, err := hex.DecodeString(s)
	if err != nil {
		if errors.Is(err, hex.ErrLength) {
			return nil, ErrInvalidLength
		}
		return nil, ErrInvalidCharacter
	}
	return out, nil
}
