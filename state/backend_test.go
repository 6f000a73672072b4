// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryBackendPutNewKeyDelta(t *testing.T) {
	b := NewMemoryBackend()
	delta := b.Put([]byte("k1"), []byte("v1"))
	require.Equal(t, int64(len("k1")+len("v1")), delta)
	v, ok := b.Get([]byte("k1"))
	require.True(t, ok)
	require.Equal(t, []byte("v1"), v)
}

func TestMemoryBackendPutOverwriteDelta(t *testing.T) {
	b := NewMemoryBackend()
	b.Put([]byte("k1"), []byte("v1"))
	delta := b.Put([]byte("k1"), []byte("longer-value"))
	require.Equal(t, int64(len("longer-value")-len("v1")), delta)
}

func TestMemoryBackendRemove(t *testing.T) {
	b := NewMemoryBackend()
	b.Put([]byte("k1"), []byte("v1"))
	delta := b.Remove([]byte("k1"))
	require.Equal(t, -int64(len("k1")+len("v1")), delta)
	_, ok := b.Get([]byte("k1"))
	require.False(t, ok)
}

func TestMemoryBackendRemoveAbsentIsZero(t *testing.T) {
	b := NewMemoryBackend()
	require.Equal(t, int64(0), b.Remove([]byte("missing")))
}

func TestMemoryBackendSizeEmpty(t *testing.T) {
	b := NewMemoryBackend()
	require.True(t, b.Empty())
	require.Equal(t, 0, b.Size())
	b.Put([]byte("a"), []byte("1"))
	require.False(t, b.Empty())
	require.Equal(t, 1, b.Size())
}

func TestMemoryBackendOrderedIteration(t *testing.T) {
	b := NewMemoryBackend()
	b.Put([]byte("c"), []byte("3"))
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))

	var keys []string
	it := b.Begin()
	for it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.Equal(t, []string{"a", "b", "c"}, keys)
}

func TestMemoryBackendBackwardIteration(t *testing.T) {
	b := NewMemoryBackend()
	b.Put([]byte("a"), []byte("1"))
	b.Put([]byte("b"), []byte("2"))

	it := b.End()
	var keys []string
	for it.Prev() {
		keys = append(keys, string(it.Key()))
	}
	require.Equal(t, []string{"b", "a"}, keys)
}

func TestMemoryBackendIteratorRelease(t *testing.T) {
	b := NewMemoryBackend()
	b.Put([]byte("a"), []byte("1"))
	it := b.Begin()
	it.Next()
	k, v := it.Release()
	require.Equal(t, []byte("a"), k)
	require.Equal(t, []byte("1"), v)
}

func TestMemoryBackendClone(t *testing.T) {
	b := NewMemoryBackend()
	b.Put([]byte("a"), []byte("1"))
	clone := b.Clone()

	clone.Put([]byte("b"), []byte("2"))
	_, ok := b.Get([]byte("b"))
	require.False(t, ok, "mutating the clone must not affect the original")

	v, ok := clone.Get([]byte("a"))
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestMemoryBackendMerkleRootStoredNotComputed(t *testing.T) {
	b := NewMemoryBackend()
	_, ok := b.MerkleRoot()
	require.False(t, ok, "backend never computes its own root")

	var root [32]byte
	root[0] = 0xAB
	b.SetMerkleRoot(root)
	got, ok := b.MerkleRoot()
	require.True(t, ok)
	require.Equal(t, root, [32]byte(got))
}
