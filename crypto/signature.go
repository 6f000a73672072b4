// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	stded25519 "crypto/ed25519"
	"errors"
)

// SignatureSize is the wire size of an Ed25519 signature.
const SignatureSize = stded25519.SignatureSize

// PublicKeySize is the wire size of an Ed25519 public key.
const PublicKeySize = stded25519.PublicKeySize

// Sign produces an Ed25519 signature over digest using the given
// 64-byte private key.
func Sign(priv stded25519.PrivateKey, digest []byte) [64]byte {
	var out [64]byte
	copy(out[:], stded25519.Sign(priv, digest))
	return out
}

// Verify reports whether signature is a valid Ed25519 signature over
// digest for the given 32-byte public key. A malformed public key
// never validates.
func Verify(pub [32]byte, digest []byte, signature [64]byte) bool {
	return stded25519.Verify(stded25519.PublicKey(pub[:]), digest, signature[:])
}

// GenerateKey returns a fresh Ed25519 key pair, used by tests to
// construct signed transactions and blocks.
func GenerateKey() (pub [32]byte, priv stded25519.PrivateKey, err error) {
	p, s, err := stded25519.GenerateKey(nil)
	if err != nil {
		return pub, nil, err
	}
	copy(pub[:], p)
	return pub, s, nil
}

// ErrInvalidSignature is returned by callers that wrap Verify and need
// an error value rather than a boolean.
var ErrInvalidSignature = errors.New("crypto: invalid signature")
