// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package chronicle implements the frame recorder ("chronicler") that
// captures nested program-frame I/O, logs, and events for receipt
// construction.
package chronicle

import (
	"sync"

	"github.com/luxfi/execore/protocol"
)

// Recorder is a frame/log/event collector. The VM writes a running
// program's stdout/stderr into its live call-stack frame; PopFrame
// appends the finished frame to the recorder's ordered list,
// preserving the order in which frames were popped.
//
// A Recorder constructed for one transaction via NewTransactionRecorder
// shares its parent block Recorder's event sequence counter, so event
// numbers stay monotonically increasing across the whole block even though each transaction's frames and events are collected
// independently until Merge folds a successful transaction's recorder
// into its parent.
type Recorder struct {
	mu       sync.Mutex
	frames   []*protocol.ProgramFrame
	logs     [][]byte
	events   []protocol.Event
	eventSeq *uint32
}

// NewRecorder returns a block-scoped recorder with a fresh event
// sequence counter starting at zero.
func NewRecorder() *Recorder {
	var seq uint32
	return &Recorder{eventSeq: &seq}
}

// NewTransactionRecorder returns a recorder scoped to one transaction,
// sharing r's event sequence counter.
func (r *Recorder) NewTransactionRecorder() *Recorder {
	return &Recorder{eventSeq: r.eventSeq}
}

// PopFrame appends frame (a stack.Frame's Receipt(), once the VM
// invocation that owned it has returned) to the recorder's ordered
// frame list.
func (r *Recorder) PopFrame(frame *protocol.ProgramFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

// Frames returns a copy of the recorder's ordered frame list.
func (r *Recorder) Frames() []*protocol.ProgramFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*protocol.ProgramFrame, len(r.frames))
	copy(out, r.frames)
	return out
}

// Log appends bytes to the recorder's log stream (the `log` host call).
func (r *Recorder) Log(b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, append([]byte(nil), b...))
}

// Logs returns a copy of every logged byte slice, in order.
func (r *Recorder) Logs() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.logs))
	copy(out, r.logs)
	return out
}

// Event appends a sequence-numbered event (the `event` host call) and
// returns the stamped record.
func (r *Recorder) Event(source protocol.Account, name string, data []byte, impacted []protocol.Account) protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev := protocol.Event{
		Sequence: *r.eventSeq,
		Source:   source,
		Name:     name,
		Data:     append([]byte(nil), data...),
		Impacted: impacted,
	}
	*r.eventSeq++
	r.events = append(r.events, ev)
	return ev
}

// Events returns a copy of every recorded event, in sequence order.
func (r *Recorder) Events() []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Merge folds a transaction-scoped recorder's frames, logs, and events
// into r (its parent block recorder), used when a transaction
// completes successfully. A reverted transaction's recorder is simply
// discarded without calling Merge, so its frames never reach the block
// receipt.
func (r *Recorder) Merge(child *Recorder) {
	frames := child.Frames()
	logs := child.Logs()
	events := child.Events()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frames...)
	r.logs = append(r.logs, logs...)
	r.events = append(r.events, events...)
}
