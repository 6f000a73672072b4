// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestPebbleBackend(t *testing.T) *PebbleBackend {
	t.Helper()
	b, err := OpenPebbleBackend(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestPebbleBackendPutGetRemove(t *testing.T) {
	b := openTestPebbleBackend(t)

	delta := b.Put([]byte("k"), []byte("v1"))
	require.Equal(t, int64(len("k")+len("v1")), delta)

	v, ok := b.Get([]byte("k"))
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)

	delta = b.Remove([]byte("k"))
	require.Equal(t, -int64(len("k")+len("v1")), delta)
	_, ok = b.Get([]byte("k"))
	require.False(t, ok)
}

func TestPebbleBackendSizeEmpty(t *testing.T) {
	b := openTestPebbleBackend(t)
	require.True(t, b.Empty())
	b.Put([]byte("a"), []byte("1"))
	require.False(t, b.Empty())
	require.Equal(t, 1, b.Size())
}

func TestPebbleBackendOrderedIteration(t *testing.T) {
	b := openTestPebbleBackend(t)
	b.Put([]byte("b"), []byte("2"))
	b.Put([]byte("a"), []byte("1"))

	var keys []string
	it := b.Begin()
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.Equal(t, []string{"a", "b"}, keys)
}

func TestPebbleBackendMerkleRootMetadata(t *testing.T) {
	b := openTestPebbleBackend(t)
	_, ok := b.MerkleRoot()
	require.False(t, ok)

	var root [32]byte
	root[0] = 1
	b.SetMerkleRoot(root)
	got, ok := b.MerkleRoot()
	require.True(t, ok)
	require.Equal(t, root, [32]byte(got))
}
