// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package stack implements the bounded call stack of program frames
// used to enforce nested call_program depth and to resolve
// get_caller/check_authority lookups.
package stack

import (
	"errors"

	"github.com/luxfi/execore/protocol"
)

// DefaultLimit is the default maximum call stack depth.
const DefaultLimit = 32

var (
	// ErrStackOverflow is returned by Push once the stack is at its
	// configured limit.
	ErrStackOverflow = errors.New("stack: stack overflow")
	// ErrEmptyStack is a programmer-error signal from Peek/Pop on an
	// empty stack.
	ErrEmptyStack = errors.New("stack: empty stack")
)

// Frame is the live, execution-time call frame: the
// receipt-form protocol.ProgramFrame plus the one field a receipt
// never needs, the fd_read cursor into Stdin. Stdout/Stderr/ExitCode
// accumulate as the VM's host calls run against the frame; Receipt
// freezes them into the persisted shape once the frame is popped.
type Frame struct {
	ProgramID protocol.Account
	Arguments []string
	Stdin     []byte
	Cursor    int
	Stdout    []byte
	Stderr    []byte
	ExitCode  int32
	Depth     uint32
}

// NewFrame constructs the live frame for invoking account at depth
// with the given input.
func NewFrame(account protocol.Account, depth uint32, input protocol.ProgramInput) *Frame {
	return &Frame{
		ProgramID: account,
		Arguments: input.Arguments,
		Stdin:     input.Stdin,
		Depth:     depth,
	}
}

// Receipt freezes f into its persisted protocol.ProgramFrame form.
func (f *Frame) Receipt() *protocol.ProgramFrame {
	return &protocol.ProgramFrame{
		ProgramInput: protocol.ProgramInput{Arguments: f.Arguments, Stdin: f.Stdin},
		ProgramOutput: protocol.ProgramOutput{
			Code:   f.ExitCode,
			Stdout: f.Stdout,
			Stderr: f.Stderr,
		},
		ID:    f.ProgramID,
		Depth: f.Depth,
	}
}

// Stack is a bounded vector of call frames, one outermost operation at
// a time: it exists for the duration of a single upload_program or
// call_program operation, growing with each nested call_program host
// call and shrinking as those calls return.
type Stack struct {
	limit  int
	frames []*Frame
}

// New returns an empty Stack bounded at limit frames.
func New(limit int) *Stack {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Stack{limit: limit}
}

// Len returns the current depth.
func (s *Stack) Len() int { return len(s.frames) }

// Push appends frame, failing with ErrStackOverflow if the stack is
// already at its limit.
func (s *Stack) Push(frame *Frame) error {
	if len(s.frames) >= s.limit {
		return ErrStackOverflow
	}
	s.frames = append(s.frames, frame)
	return nil
}

// Pop removes and returns the top frame.
func (s *Stack) Pop() (*Frame, error) {
	if len(s.frames) == 0 {
		return nil, ErrEmptyStack
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return top, nil
}

// Peek returns the top frame without removing it.
func (s *Stack) Peek() (*Frame, error) {
	if len(s.frames) == 0 {
		return nil, ErrEmptyStack
	}
	return s.frames[len(s.frames)-1], nil
}

// Caller returns the caller of the current top frame: the frame one
// below the top, or protocol.EmptyAccount if the top frame is
// outermost.
func (s *Stack) Caller() protocol.Account {
	if len(s.frames) < 2 {
		return protocol.EmptyAccount
	}
	return s.frames[len(s.frames)-2].ProgramID
}

// Contains reports whether account appears anywhere in the current
// call chain, used by check_authority to recognize a program invoking
// itself transitively.
func (s *Stack) Contains(account protocol.Account) bool {
	for _, f := range s.frames {
		if f.ProgramID == account {
			return true
		}
	}
	return false
}

// Frames returns a snapshot of the current stack, bottom first.
func (s *Stack) Frames() []*Frame {
	out := make([]*Frame, len(s.frames))
	copy(out, s.frames)
	return out
}
