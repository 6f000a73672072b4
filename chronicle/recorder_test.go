// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package chronicle

import (
	"testing"

	"github.com/luxfi/execore/protocol"
	"github.com/stretchr/testify/require"
)

func TestRecorderPopFrameOrder(t *testing.T) {
	r := NewRecorder()
	r.PopFrame(&protocol.ProgramFrame{Depth: 0})
	r.PopFrame(&protocol.ProgramFrame{Depth: 1})

	frames := r.Frames()
	require.Len(t, frames, 2)
	require.Equal(t, uint32(0), frames[0].Depth)
	require.Equal(t, uint32(1), frames[1].Depth)
}

func TestRecorderLogAppendsInOrder(t *testing.T) {
	r := NewRecorder()
	r.Log([]byte("first"))
	r.Log([]byte("second"))

	logs := r.Logs()
	require.Equal(t, [][]byte{[]byte("first"), []byte("second")}, logs)
}

func TestRecorderEventSequenceMonotonic(t *testing.T) {
	r := NewRecorder()
	ev0 := r.Event(protocol.EmptyAccount, "a", nil, nil)
	ev1 := r.Event(protocol.EmptyAccount, "b", nil, nil)
	require.Equal(t, uint32(0), ev0.Sequence)
	require.Equal(t, uint32(1), ev1.Sequence)
}

func TestRecorderTransactionChildSharesEventSequence(t *testing.T) {
	block := NewRecorder()
	tx1 := block.NewTransactionRecorder()
	tx2 := block.NewTransactionRecorder()

	ev1 := tx1.Event(protocol.EmptyAccount, "tx1-event", nil, nil)
	ev2 := tx2.Event(protocol.EmptyAccount, "tx2-event", nil, nil)

	require.Equal(t, uint32(0), ev1.Sequence)
	require.Equal(t, uint32(1), ev2.Sequence, "sequence is shared across sibling transaction recorders, not per-transaction")
}

func TestRecorderMergeFoldsChildIntoParent(t *testing.T) {
	block := NewRecorder()
	tx := block.NewTransactionRecorder()
	tx.PopFrame(&protocol.ProgramFrame{Depth: 0})
	tx.Log([]byte("tx-log"))
	tx.Event(protocol.EmptyAccount, "tx-event", nil, nil)

	block.Merge(tx)

	require.Len(t, block.Frames(), 1)
	require.Len(t, block.Logs(), 1)
	require.Len(t, block.Events(), 1)
}

func TestRecorderDiscardedChildNeverReachesParent(t *testing.T) {
	block := NewRecorder()
	tx := block.NewTransactionRecorder()
	tx.PopFrame(&protocol.ProgramFrame{Depth: 0})
	// tx is simply dropped here, mirroring a reverted transaction: no
	// Merge call, so its frame never reaches the block receipt.
	require.Empty(t, block.Frames())
}
