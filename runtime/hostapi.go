// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"errors"

	"github.com/luxfi/execore/chronicle"
	"github.com/luxfi/execore/protocol"
	"github.com/luxfi/execore/resource"
	"github.com/luxfi/execore/stack"
	"github.com/luxfi/execore/state"
)

// Well-known WASI file descriptors.
const (
	FDStdin  = 0
	FDStdout = 1
	FDStderr = 2
)

// ProgramDataSpace is the system object space upload_program writes
// bytecode into and get_object-style program lookups read from.
var ProgramDataSpace = state.ObjectSpace{System: true, ID: 0}

// HostAPI is the bridge from a running VM to state, the call stack,
// the chronicler, and (recursively) the VM itself. The controller
// constructs one HostAPI per transaction, shared by every operation of
// that transaction and every nested call_program frame they push.
type HostAPI struct {
	Node     *state.Node
	Stack    *stack.Stack
	Meter    *resource.Meter
	Recorder *chronicle.Recorder
	VM       *VM
	ReadOnly bool

	// Authorized reports whether account signed the enclosing
	// transaction as one of its authorizations; nil in a
	// read-only query context, where no user account can ever be
	// authorized.
	Authorized func(protocol.Account) bool

	// abort is set the first time a host call hits a condition that
	// must unwind the whole operation rather than just fail the one
	// call: a resource limit crossed, a stack overflow, a read-only
	// write. A call to an unknown program does not set it. VM.Run checks it after every host
	// call returns and traps the guest if set, and CallProgram
	// re-raises it as a Go error once the nested VM.Run returns so it
	// keeps propagating outward instead of being swallowed into a
	// frame's exit code.
	abort error
}

// NewHostAPI constructs a HostAPI bound to the given execution context.
// meter and recorder may be nil for a read-only query path
// (Controller.ReadProgram), in which case resource charges and frame
// persistence are both skipped.
func NewHostAPI(node *state.Node, cs *stack.Stack, meter *resource.Meter, recorder *chronicle.Recorder, vm *VM, readOnly bool) *HostAPI {
	return &HostAPI{Node: node, Stack: cs, Meter: meter, Recorder: recorder, VM: vm, ReadOnly: readOnly}
}

// WithAuthorized attaches the transaction's authorized-signer predicate,
// returning h for chaining at construction time.
func (h *HostAPI) WithAuthorized(authorized func(protocol.Account) bool) *HostAPI {
	h.Authorized = authorized
	return h
}

// Abort returns the sticky abort cause, if any.
func (h *HostAPI) Abort() error { return h.abort }

func (h *HostAPI) setAbort(err error) Errno {
	if h.abort == nil {
		h.abort = err
	}
	return ErrnoAcces
}

// setAbortErr records err as the sticky abort cause and returns it,
// for callers propagating a Go error rather than an errno.
func (h *HostAPI) setAbortErr(err error) error {
	if h.abort == nil {
		h.abort = err
	}
	return err
}

// tick charges one host call's opcode-class weight through the active
// meter. Crossing either the compute cap or the session's credit pool
// is a sticky abort, same as exhausting fuel inside the guest.
func (h *HostAPI) tick(w resource.OpWeight) Errno {
	if h.Meter == nil {
		return ErrnoSuccess
	}
	if err := h.Meter.UseComputeBandwidth(uint64(w)); err != nil {
		return h.setAbort(err)
	}
	return ErrnoSuccess
}

// ArgsGet returns the current frame's arguments.
func (h *HostAPI) ArgsGet() ([]string, Errno) {
	if errno := h.tick(resource.Light); errno != ErrnoSuccess {
		return nil, errno
	}
	f, err := h.Stack.Peek()
	if err != nil {
		return nil, ErrnoBadF
	}
	return f.Arguments, ErrnoSuccess
}

// ArgsSizesGet returns the current frame's argument count and total
// encoded byte size, the WASI shape a guest uses to size its own
// buffer before calling ArgsGet.
func (h *HostAPI) ArgsSizesGet() (count int, size int, errno Errno) {
	if errno := h.tick(resource.Light); errno != ErrnoSuccess {
		return 0, 0, errno
	}
	f, err := h.Stack.Peek()
	if err != nil {
		return 0, 0, ErrnoBadF
	}
	for _, a := range f.Arguments {
		size += len(a) + 1
	}
	return len(f.Arguments), size, ErrnoSuccess
}

// FdWrite appends data to the current frame's stdout or stderr stream.
func (h *HostAPI) FdWrite(fd int32, data []byte) (int, Errno) {
	if errno := h.tick(resource.Light); errno != ErrnoSuccess {
		return 0, errno
	}
	f, err := h.Stack.Peek()
	if err != nil {
		return 0, ErrnoBadF
	}
	switch fd {
	case FDStdout:
		f.Stdout = append(f.Stdout, data...)
	case FDStderr:
		f.Stderr = append(f.Stderr, data...)
	default:
		return 0, ErrnoBadF
	}
	return len(data), ErrnoSuccess
}

// FdRead reads up to len(buf) bytes from the current frame's stdin at
// its cursor, advancing the cursor by the amount read.
func (h *HostAPI) FdRead(fd int32, buf []byte) (int, Errno) {
	if errno := h.tick(resource.Light); errno != ErrnoSuccess {
		return 0, errno
	}
	if fd != FDStdin {
		return 0, ErrnoBadF
	}
	f, err := h.Stack.Peek()
	if err != nil {
		return 0, ErrnoBadF
	}
	if f.Cursor >= len(f.Stdin) {
		return 0, ErrnoSuccess
	}
	n := copy(buf, f.Stdin[f.Cursor:])
	f.Cursor += n
	return n, ErrnoSuccess
}

// FdSeek, FdClose, FdFdstatGet are WASI stubs: fd_close on
// a standard descriptor is a no-op, fd_seek/fd_fdstat_get report
// success without doing anything meaningful for the three fixed
// descriptors this runtime exposes.
func (h *HostAPI) FdSeek(fd int32, offset int64, whence int32) (int64, Errno) {
	if errno := h.tick(resource.Light); errno != ErrnoSuccess {
		return 0, errno
	}
	if fd != FDStdin {
		return 0, ErrnoBadF
	}
	f, err := h.Stack.Peek()
	if err != nil {
		return 0, ErrnoBadF
	}
	switch whence {
	case 0:
		f.Cursor = int(offset)
	case 1:
		f.Cursor += int(offset)
	case 2:
		f.Cursor = len(f.Stdin) + int(offset)
	}
	return int64(f.Cursor), ErrnoSuccess
}

func (h *HostAPI) FdClose(fd int32) Errno {
	if errno := h.tick(resource.Light); errno != ErrnoSuccess {
		return errno
	}
	switch fd {
	case FDStdin, FDStdout, FDStderr:
		return ErrnoSuccess
	default:
		return ErrnoBadF
	}
}

func (h *HostAPI) FdFdstatGet(fd int32) Errno {
	if errno := h.tick(resource.Light); errno != ErrnoSuccess {
		return errno
	}
	switch fd {
	case FDStdin, FDStdout, FDStderr:
		return ErrnoSuccess
	default:
		return ErrnoBadF
	}
}

// ProcExit stores code as the current frame's exit code. A nonzero
// code is not itself an abort condition: it surfaces to the frame's
// caller as ordinary program output.
func (h *HostAPI) ProcExit(code int32) {
	if f, err := h.Stack.Peek(); err == nil {
		f.ExitCode = code
	}
}

// GetCaller returns the caller frame's program id, or EmptyAccount at
// the outermost frame.
func (h *HostAPI) GetCaller() protocol.Account {
	return h.Stack.Caller()
}

// GetObject reads key from space through the current state node.
func (h *HostAPI) GetObject(space state.ObjectSpace, key []byte) ([]byte, Errno) {
	if errno := h.tick(resource.Medium); errno != ErrnoSuccess {
		return nil, errno
	}
	v, ok := h.Node.Get(space, key)
	if !ok {
		return nil, ErrnoNoEnt
	}
	return v, ErrnoSuccess
}

// PutObject writes key to value in space, its size delta metered as
// disk storage. Fails in a read-only context.
func (h *HostAPI) PutObject(space state.ObjectSpace, key, value []byte) Errno {
	if errno := h.tick(resource.Medium); errno != ErrnoSuccess {
		return errno
	}
	if h.ReadOnly {
		return h.setAbort(ErrReadOnlyContext)
	}
	delta, err := h.Node.Put(space, key, value)
	if err != nil {
		if errors.Is(err, state.ErrNotFinalized) {
			return h.setAbort(ErrReadOnlyContext)
		}
		return h.setAbort(err)
	}
	if h.Meter != nil {
		if err := h.Meter.UseDiskStorage(delta); err != nil {
			return h.setAbort(err)
		}
	}
	return ErrnoSuccess
}

// RemoveObject tombstones key in space, metered identically to
// PutObject (negative deltas never refund).
func (h *HostAPI) RemoveObject(space state.ObjectSpace, key []byte) Errno {
	if errno := h.tick(resource.Medium); errno != ErrnoSuccess {
		return errno
	}
	if h.ReadOnly {
		return h.setAbort(ErrReadOnlyContext)
	}
	delta, err := h.Node.Remove(space, key)
	if err != nil {
		if errors.Is(err, state.ErrNotFinalized) {
			return h.setAbort(ErrReadOnlyContext)
		}
		return h.setAbort(err)
	}
	if h.Meter != nil {
		if err := h.Meter.UseDiskStorage(delta); err != nil {
			return h.setAbort(err)
		}
	}
	return ErrnoSuccess
}

// CheckAuthority reports whether the current authorization set
// satisfies account. For a user account it defers to
// h.Authorized, the set of signers the controller already verified
// against the transaction id; for a program account it checks the
// call chain, and, failing that, consults the program's own
// `authorize` entry point.
func (h *HostAPI) CheckAuthority(account protocol.Account) bool {
	if errno := h.tick(resource.Heavy); errno != ErrnoSuccess {
		return false
	}
	if !account.IsProgram() {
		return h.Authorized != nil && h.Authorized(account)
	}
	if h.Stack.Contains(account) {
		return true
	}
	return h.authorizeViaEntryPoint(account)
}

func (h *HostAPI) authorizeViaEntryPoint(account protocol.Account) bool {
	bytecode, ok := h.Node.Get(ProgramDataSpace, account.Key[:])
	if !ok {
		return false
	}
	ok, err := h.VM.RunAuthorize(h, bytecode, account)
	return err == nil && ok
}

// Log appends bytes to the chronicler.
func (h *HostAPI) Log(b []byte) {
	if errno := h.tick(resource.Medium); errno != ErrnoSuccess {
		return
	}
	if h.Recorder != nil {
		h.Recorder.Log(b)
	}
}

// Event appends a sequence-numbered event emitted by the current
// frame's program.
func (h *HostAPI) Event(name string, data []byte, impacted []protocol.Account) Errno {
	if errno := h.tick(resource.Medium); errno != ErrnoSuccess {
		return errno
	}
	if name == "" {
		return h.setAbort(ErrInvalidEventName)
	}
	f, err := h.Stack.Peek()
	if err != nil {
		return ErrnoBadF
	}
	if h.Recorder != nil {
		h.Recorder.Event(f.ProgramID, name, data, impacted)
	}
	return ErrnoSuccess
}

// CallProgram pushes a new frame for account, recursively invokes the
// VM against its uploaded bytecode, pops the frame once it returns,
// and hands the frame's output back to the caller. A
// sticky abort set anywhere during the nested run (resource
// exhaustion, stack overflow, a read-only write) propagates out as an
// error instead of being absorbed into the returned output.
func (h *HostAPI) CallProgram(account protocol.Account, input protocol.ProgramInput) (protocol.ProgramOutput, error) {
	if errno := h.tick(resource.Heavy); errno != ErrnoSuccess {
		return protocol.ProgramOutput{}, h.abort
	}
	frame := stack.NewFrame(account, uint32(h.Stack.Len()), input)
	if err := h.Stack.Push(frame); err != nil {
		return protocol.ProgramOutput{}, h.setAbortErr(err)
	}

	bytecode, ok := h.Node.Get(ProgramDataSpace, account.Key[:])
	if !ok {
		_, _ = h.Stack.Pop()
		return protocol.ProgramOutput{}, ErrInvalidProgram
	}

	runErr := h.VM.Run(h, bytecode, account)
	popped, _ := h.Stack.Pop()
	if h.Recorder != nil {
		h.Recorder.PopFrame(popped.Receipt())
	}

	// h.abort is sticky and shared across every frame of this
	// operation: if this or any deeper nested call set it, every
	// enclosing CallProgram keeps propagating it rather than letting
	// the guest observe a plain trap it could otherwise ignore.
	if h.abort != nil {
		return protocol.ProgramOutput{}, h.abort
	}
	if runErr != nil && !errors.Is(runErr, ErrTrapped) {
		return protocol.ProgramOutput{}, runErr
	}
	return popped.Receipt().ProgramOutput, nil
}
