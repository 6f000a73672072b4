// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package crypto

import (
	"testing"

	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	require.Equal(t, Hash([]byte("a")), Hash([]byte("a")))
	require.NotEqual(t, Hash([]byte("a")), Hash([]byte("b")))
}

func TestHasherIncrementalEqualsOneShot(t *testing.T) {
	incremental := NewHasher().Update([]byte("foo")).Update([]byte("bar")).Finalize()
	oneShot := Hash([]byte("foobar"))
	require.Equal(t, oneShot, incremental)
}

func TestHasherUintHelpersAreLittleEndian(t *testing.T) {
	a := NewHasher().UpdateUint64(1).Finalize()
	b := NewHasher().Update([]byte{1, 0, 0, 0, 0, 0, 0, 0}).Finalize()
	require.Equal(t, b, a)

	c := NewHasher().UpdateUint32(1).Finalize()
	d := NewHasher().Update([]byte{1, 0, 0, 0}).Finalize()
	require.Equal(t, d, c)
}

func TestMerkleRootEmptyIsEmptyHash(t *testing.T) {
	require.Equal(t, EmptyHash, MerkleRoot(nil))
}

func TestMerkleRootSingleLeaf(t *testing.T) {
	leaf := Hash([]byte("only"))
	require.Equal(t, leaf, MerkleRoot([]ids.ID{leaf}))
}

func TestMerkleRootOddLeavesDuplicatesLast(t *testing.T) {
	a, b, c := Hash([]byte("a")), Hash([]byte("b")), Hash([]byte("c"))
	three := MerkleRoot([]ids.ID{a, b, c})
	four := MerkleRoot([]ids.ID{a, b, c, c})
	require.Equal(t, four, three, "an odd final leaf is duplicated to pair with itself")
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := GenerateKey()
	require.NoError(t, err)

	digest := Hash([]byte("message"))
	sig := Sign(priv, digest[:])
	require.True(t, Verify(pub, digest[:], sig))
}

func TestVerifyRejectsTamperedSignature(t *testing.T) {
	pub, priv, err := GenerateKey()
	require.NoError(t, err)

	digest := Hash([]byte("message"))
	sig := Sign(priv, digest[:])
	sig[0] ^= 0xFF
	require.False(t, Verify(pub, digest[:], sig))
}
