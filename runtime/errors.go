// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package runtime implements the sandboxed WebAssembly executor: a
// parsed-module LRU cache, the VM that parses/instantiates/invokes a
// program's WASI entry point, and the HostAPI bridge that routes the
// fixed host-call surface to state, the call stack, and the
// chronicler.
package runtime

import "errors"

// VM category errors.
var (
	ErrInvalidModule               = errors.New("runtime: invalid module")
	ErrInstantiateFailure          = errors.New("runtime: instantiate failure")
	ErrTrapped                     = errors.New("runtime: trapped")
	ErrEntryPointNotFound          = errors.New("runtime: entry point not found")
	ErrFunctionLookupFailure       = errors.New("runtime: function lookup failure")
	ErrExecutionEnvironmentFailure = errors.New("runtime: execution environment failure")
	ErrInvalidArguments            = errors.New("runtime: invalid arguments")
	ErrInvalidPointer              = errors.New("runtime: invalid pointer")
	ErrInvalidContext              = errors.New("runtime: invalid context")
	ErrLoadFailure                 = errors.New("runtime: load failure")
)

// Reversion-category errors surfaced by host calls; the
// controller maps these onto a reverted transaction receipt rather
// than aborting the enclosing block.
var (
	ErrInvalidProgram         = errors.New("runtime: invalid program")
	ErrInvalidEventName       = errors.New("runtime: invalid event name")
	ErrInvalidAccount         = errors.New("runtime: invalid account")
	ErrInsufficientPrivileges = errors.New("runtime: insufficient privileges")
	ErrUnknownOperation       = errors.New("runtime: unknown operation")
	ErrReadOnlyContext        = errors.New("runtime: read-only context")
	ErrBadFileDescriptor      = errors.New("runtime: bad file descriptor")
)

// Errno mirrors the small slice of WASI error codes the fixed
// host-call surface needs to report back into the guest module.
type Errno uint32

const (
	ErrnoSuccess Errno = 0
	ErrnoBadF    Errno = 8
	ErrnoAcces   Errno = 2
	ErrnoInval   Errno = 28
	ErrnoNoEnt   Errno = 44
)
