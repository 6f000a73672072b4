// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"fmt"
	"strings"
	"testing"

	"github.com/bytecodealliance/wasmtime-go/v14"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/execore/chronicle"
	"github.com/luxfi/execore/protocol"
	"github.com/luxfi/execore/resource"
	"github.com/luxfi/execore/stack"
	"github.com/luxfi/execore/state"
)

// wat compiles a WebAssembly text-format program into binary bytecode.
func wat(t *testing.T, src string) []byte {
	t.Helper()
	b, err := wasmtime.Wat2Wasm(src)
	require.NoError(t, err)
	return b
}

const watExitSeven = `
(module
  (import "execore" "proc_exit" (func $exit (param i32)))
  (memory (export "memory") 1)
  (func (export "_start")
    i32.const 7
    call $exit))
`

const watHello = `
(module
  (import "execore" "fd_write" (func $fd_write (param i32 i32 i32 i32) (result i32)))
  (memory (export "memory") 1)
  (data (i32.const 8) "hello")
  (func (export "_start")
    i32.const 1
    i32.const 8
    i32.const 5
    i32.const 0
    call $fd_write
    drop))
`

const watInfiniteLoop = `
(module
  (memory (export "memory") 1)
  (func (export "_start")
    (loop $spin
      br $spin)))
`

const watAuthorizeYes = `
(module
  (memory (export "memory") 1)
  (func (export "_start"))
  (func (export "authorize") (result i32)
    i32.const 1))
`

func newVMTestContext(t *testing.T, credit uint64) (*VM, *HostAPI, *stack.Stack) {
	t.Helper()
	db, err := state.Open(state.Config{GenesisID: protocol.Digest{0xA}})
	require.NoError(t, err)
	root := state.NewPermanentNode(db, db.Root())
	node, err := root.MakeChild(protocol.Digest{0xB}, true)
	require.NoError(t, err)

	cs := stack.New(8)
	block := chronicle.NewRecorder()
	session := resource.NewSession(protocol.EmptyAccount, credit, block)
	meter := resource.NewMeter(resource.DefaultLimits())
	meter.SetSession(session)

	cache, err := NewModuleCache(DefaultCacheCapacity)
	require.NoError(t, err)
	vm := NewVM(cache)
	host := NewHostAPI(node, cs, meter, session.Recorder, vm, false)
	return vm, host, cs
}

func TestVMRunEmptyBytecodeIsInvalidModule(t *testing.T) {
	vm, host, _ := newVMTestContext(t, 1_000_000)
	err := vm.Run(host, nil, protocol.NewProgramAccount([32]byte{1}))
	require.ErrorIs(t, err, ErrInvalidModule)
}

func TestVMRunGarbageBytecodeIsInvalidModule(t *testing.T) {
	vm, host, _ := newVMTestContext(t, 1_000_000)
	err := vm.Run(host, []byte("definitely not wasm"), protocol.NewProgramAccount([32]byte{2}))
	require.ErrorIs(t, err, ErrInvalidModule)
}

func TestVMRunMissingEntryPoint(t *testing.T) {
	vm, host, _ := newVMTestContext(t, 1_000_000)
	err := vm.Run(host, wat(t, `(module)`), protocol.NewProgramAccount([32]byte{3}))
	require.ErrorIs(t, err, ErrEntryPointNotFound)
}

func TestVMRunProcExitRecordsFrameCode(t *testing.T) {
	vm, host, cs := newVMTestContext(t, 1_000_000)
	id := protocol.NewProgramAccount([32]byte{4})
	require.NoError(t, cs.Push(stack.NewFrame(id, 0, protocol.ProgramInput{})))

	require.NoError(t, vm.Run(host, wat(t, watExitSeven), id))

	frame, err := cs.Peek()
	require.NoError(t, err)
	require.Equal(t, int32(7), frame.ExitCode)
}

func TestVMRunFdWriteCapturesStdout(t *testing.T) {
	vm, host, cs := newVMTestContext(t, 1_000_000)
	id := protocol.NewProgramAccount([32]byte{5})
	require.NoError(t, cs.Push(stack.NewFrame(id, 0, protocol.ProgramInput{})))

	require.NoError(t, vm.Run(host, wat(t, watHello), id))

	frame, err := cs.Peek()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), frame.Stdout)
}

// An infinite loop burns through the compute budget, the guest traps,
// and exactly the granted budget is charged.
func TestVMRunComputeExhaustion(t *testing.T) {
	const budget = 10_000
	vm, host, cs := newVMTestContext(t, budget)
	id := protocol.NewProgramAccount([32]byte{6})
	require.NoError(t, cs.Push(stack.NewFrame(id, 0, protocol.ProgramInput{})))

	err := vm.Run(host, wat(t, watInfiniteLoop), id)
	require.ErrorIs(t, err, resource.ErrComputeBandwidthLimitExceeded)
	require.ErrorIs(t, host.Abort(), resource.ErrComputeBandwidthLimitExceeded)
	require.Equal(t, uint64(budget), host.Meter.Used().ComputeBandwidth)
	require.Equal(t, uint64(budget), host.Meter.Session().Used())
}

func TestVMRunZeroComputeBudgetFailsBeforeExecuting(t *testing.T) {
	vm, host, cs := newVMTestContext(t, 0)
	id := protocol.NewProgramAccount([32]byte{7})
	require.NoError(t, cs.Push(stack.NewFrame(id, 0, protocol.ProgramInput{})))

	err := vm.Run(host, wat(t, watExitSeven), id)
	require.ErrorIs(t, err, resource.ErrComputeBandwidthLimitExceeded)
}

func TestVMRunReusesCachedModule(t *testing.T) {
	vm, host, cs := newVMTestContext(t, 1_000_000)
	id := protocol.NewProgramAccount([32]byte{8})
	bytecode := wat(t, watExitSeven)

	require.NoError(t, cs.Push(stack.NewFrame(id, 0, protocol.ProgramInput{})))
	require.NoError(t, vm.Run(host, bytecode, id))
	require.Equal(t, 1, vm.cache.Len())

	// Same id with garbage bytecode still runs: the parsed module is
	// served from the cache without re-parsing.
	require.NoError(t, vm.Run(host, []byte("ignored"), id))
	require.Equal(t, 1, vm.cache.Len())
}

func TestVMRunAuthorizeMissingExportIsNotAuthorized(t *testing.T) {
	vm, host, _ := newVMTestContext(t, 1_000_000)
	id := protocol.NewProgramAccount([32]byte{9})

	ok, err := vm.RunAuthorize(host, wat(t, watHello), id)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVMRunAuthorizeEntryPoint(t *testing.T) {
	vm, host, _ := newVMTestContext(t, 1_000_000)
	id := protocol.NewProgramAccount([32]byte{10})

	ok, err := vm.RunAuthorize(host, wat(t, watAuthorizeYes), id)
	require.NoError(t, err)
	require.True(t, ok)
}

// TestHostCallProgramRunsUploadedBytecode drives the full nested-call
// path: bytecode stored under the program_data space, CallProgram
// pushing a frame, the VM invoking _start, and the popped frame's
// output surfacing both in the return value and the recorder.
func TestHostCallProgramRunsUploadedBytecode(t *testing.T) {
	_, host, cs := newVMTestContext(t, 1_000_000)
	id := protocol.NewProgramAccount([32]byte{11})
	_, err := host.Node.Put(ProgramDataSpace, id.Key[:], wat(t, watHello))
	require.NoError(t, err)

	out, err := host.CallProgram(id, protocol.ProgramInput{})
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), out.Stdout)
	require.Equal(t, 0, cs.Len(), "frame popped after the nested run returned")

	frames := host.Recorder.Frames()
	require.Len(t, frames, 1)
	require.Equal(t, id, frames[0].ID)
	require.Equal(t, []byte("hello"), frames[0].Stdout)
}

const watLogAndEvent = `
(module
  (import "execore" "log" (func $log (param i32 i32)))
  (import "execore" "event" (func $event (param i32 i32 i32 i32 i32 i32) (result i32)))
  (memory (export "memory") 1)
  (data (i32.const 0) "transferpayload")
  (func (export "_start")
    i32.const 0
    i32.const 8
    call $log
    i32.const 0
    i32.const 8
    i32.const 8
    i32.const 7
    i32.const 0
    i32.const 0
    call $event
    drop))
`

func TestVMRunLogAndEventReachRecorder(t *testing.T) {
	_, host, _ := newVMTestContext(t, 1_000_000)
	id := protocol.NewProgramAccount([32]byte{12})
	_, err := host.Node.Put(ProgramDataSpace, id.Key[:], wat(t, watLogAndEvent))
	require.NoError(t, err)

	_, err = host.CallProgram(id, protocol.ProgramInput{})
	require.NoError(t, err)

	logs := host.Recorder.Logs()
	require.Len(t, logs, 1)
	require.Equal(t, []byte("transfer"), logs[0])

	events := host.Recorder.Events()
	require.Len(t, events, 1)
	require.Equal(t, "transfer", events[0].Name)
	require.Equal(t, []byte("payload"), events[0].Data)
	require.Equal(t, id, events[0].Source)
	require.Equal(t, uint32(0), events[0].Sequence)
}

// watAuthoritySelf asks check_authority about its own account and exits
// with the answer, which must be yes: the program is on its own call
// chain.
func watAuthoritySelf(self protocol.Account) string {
	acc := self.Bytes()
	var sb strings.Builder
	for _, c := range acc {
		fmt.Fprintf(&sb, "\\%02x", c)
	}
	return fmt.Sprintf(`
(module
  (import "execore" "check_authority" (func $auth (param i32) (result i32)))
  (import "execore" "proc_exit" (func $exit (param i32)))
  (memory (export "memory") 1)
  (data (i32.const 0) "%s")
  (func (export "_start")
    i32.const 0
    call $auth
    call $exit))
`, sb.String())
}

func TestVMRunCheckAuthoritySelfViaCallChain(t *testing.T) {
	_, host, _ := newVMTestContext(t, 1_000_000)
	id := protocol.NewProgramAccount([32]byte{13})
	_, err := host.Node.Put(ProgramDataSpace, id.Key[:], wat(t, watAuthoritySelf(id)))
	require.NoError(t, err)

	out, err := host.CallProgram(id, protocol.ProgramInput{})
	require.NoError(t, err)
	require.Equal(t, int32(1), out.Code)
}

const watReadStdin = `
(module
  (import "execore" "fd_read" (func $fd_read (param i32 i32 i32 i32) (result i32)))
  (import "execore" "fd_write" (func $fd_write (param i32 i32 i32 i32) (result i32)))
  (memory (export "memory") 1)
  (func (export "_start")
    i32.const 0
    i32.const 64
    i32.const 32
    i32.const 128
    call $fd_read
    drop
    i32.const 1
    i32.const 64
    i32.const 4
    i32.const 132
    call $fd_write
    drop))
`

func TestVMRunStdinRoundTripsToStdout(t *testing.T) {
	_, host, _ := newVMTestContext(t, 1_000_000)
	id := protocol.NewProgramAccount([32]byte{14})
	_, err := host.Node.Put(ProgramDataSpace, id.Key[:], wat(t, watReadStdin))
	require.NoError(t, err)

	out, err := host.CallProgram(id, protocol.ProgramInput{Stdin: []byte("echo")})
	require.NoError(t, err)
	require.Equal(t, []byte("echo"), out.Stdout)
}

const watEchoFirstArg = `
(module
  (import "execore" "args_sizes_get" (func $args_sizes_get (param i32 i32) (result i32)))
  (import "execore" "args_get" (func $args_get (param i32 i32) (result i32)))
  (import "execore" "fd_write" (func $fd_write (param i32 i32 i32 i32) (result i32)))
  (memory (export "memory") 1)
  (func (export "_start")
    i32.const 0
    i32.const 4
    call $args_sizes_get
    drop
    i32.const 8
    i32.const 64
    call $args_get
    drop
    i32.const 1
    i32.const 64
    i32.const 3
    i32.const 128
    call $fd_write
    drop))
`

func TestVMRunArgsReachGuest(t *testing.T) {
	_, host, _ := newVMTestContext(t, 1_000_000)
	id := protocol.NewProgramAccount([32]byte{15})
	_, err := host.Node.Put(ProgramDataSpace, id.Key[:], wat(t, watEchoFirstArg))
	require.NoError(t, err)

	out, err := host.CallProgram(id, protocol.ProgramInput{Arguments: []string{"hey"}})
	require.NoError(t, err)
	require.Equal(t, []byte("hey"), out.Stdout)
}

// watDelegateAuthority asks check_authority about another program's
// account and exits with the answer; the other program's own
// `authorize` entry point decides.
func watDelegateAuthority(target protocol.Account) string {
	acc := target.Bytes()
	var sb strings.Builder
	for _, c := range acc {
		fmt.Fprintf(&sb, "\\%02x", c)
	}
	return fmt.Sprintf(`
(module
  (import "execore" "check_authority" (func $auth (param i32) (result i32)))
  (import "execore" "proc_exit" (func $exit (param i32)))
  (memory (export "memory") 1)
  (data (i32.const 0) "%s")
  (func (export "_start")
    i32.const 0
    call $auth
    call $exit))
`, sb.String())
}

func TestVMRunCheckAuthorityConsultsAuthorizeEntryPoint(t *testing.T) {
	_, host, _ := newVMTestContext(t, 10_000_000)
	granter := protocol.NewProgramAccount([32]byte{16})
	asker := protocol.NewProgramAccount([32]byte{17})

	_, err := host.Node.Put(ProgramDataSpace, granter.Key[:], wat(t, watAuthorizeYes))
	require.NoError(t, err)
	_, err = host.Node.Put(ProgramDataSpace, asker.Key[:], wat(t, watDelegateAuthority(granter)))
	require.NoError(t, err)

	out, err := host.CallProgram(asker, protocol.ProgramInput{})
	require.NoError(t, err)
	require.Equal(t, int32(1), out.Code, "granter's authorize entry point said yes")
}

func TestVMRunCheckAuthorityDeniesUnknownProgram(t *testing.T) {
	_, host, _ := newVMTestContext(t, 10_000_000)
	asker := protocol.NewProgramAccount([32]byte{18})
	missing := protocol.NewProgramAccount([32]byte{19})

	_, err := host.Node.Put(ProgramDataSpace, asker.Key[:], wat(t, watDelegateAuthority(missing)))
	require.NoError(t, err)

	out, err := host.CallProgram(asker, protocol.ProgramInput{})
	require.NoError(t, err)
	require.Equal(t, int32(0), out.Code, "no bytecode, no authority")
}
