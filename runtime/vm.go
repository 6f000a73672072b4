// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"encoding/binary"

	"github.com/bytecodealliance/wasmtime-go/v14"

	"github.com/luxfi/execore/protocol"
	"github.com/luxfi/execore/resource"
	"github.com/luxfi/execore/state"
)

// unmeteredFuel is the fuel budget granted to a run with no active
// meter (the read-only query path): bounded, but large enough that in
// practice it interrupts neither a legitimate program nor a runaway
// loop.
const unmeteredFuel = uint64(1) << 62

// VM is the sandboxed WASM executor: parse (or fetch from cache),
// instantiate with the fixed host-call surface bound, and invoke an
// entry point. Execution is fuel-metered: each run's store is granted
// fuel equal to the meter's remaining compute allowance, so a program
// that exhausts its budget traps mid-execution and the ticks it
// consumed are charged to the payer.
type VM struct {
	engine *wasmtime.Engine
	cache  *ModuleCache
}

// NewVM returns a VM sharing cache across every Run call.
func NewVM(cache *ModuleCache) *VM {
	config := wasmtime.NewConfig()
	config.SetConsumeFuel(true)
	return &VM{engine: wasmtime.NewEngineWithConfig(config), cache: cache}
}

func (vm *VM) module(id protocol.Account, bytecode []byte) (*Module, error) {
	if m, ok := vm.cache.Get(id); ok {
		return m, nil
	}
	if len(bytecode) == 0 {
		return nil, ErrInvalidModule
	}
	compiled, err := wasmtime.NewModule(vm.engine, bytecode)
	if err != nil {
		return nil, ErrInvalidModule
	}
	m := &Module{ID: id, Bytecode: bytecode, Compiled: compiled}
	vm.cache.Put(id, m)
	return m, nil
}

func (vm *VM) instantiate(host *HostAPI, m *Module, fuel uint64) (*wasmtime.Store, *wasmtime.Instance, error) {
	store := wasmtime.NewStore(vm.engine)
	if err := store.AddFuel(fuel); err != nil {
		return nil, nil, ErrInstantiateFailure
	}
	linker := wasmtime.NewLinker(vm.engine)
	if err := linker.DefineWasi(); err != nil {
		return nil, nil, ErrInstantiateFailure
	}
	store.SetWasi(wasmtime.NewWasiConfig())
	if err := bindHostCalls(linker, host); err != nil {
		return nil, nil, ErrInstantiateFailure
	}
	instance, err := linker.Instantiate(store, m.Compiled)
	if err != nil {
		return nil, nil, ErrInstantiateFailure
	}
	return store, instance, nil
}

// computeBudget returns the fuel to grant a run on host's behalf: the
// meter's remaining compute ticks (bounded by both the category cap
// and the session's credit pool), or an effectively unmetered
// allowance when no meter is active.
func computeBudget(host *HostAPI) uint64 {
	if host.Meter == nil {
		return unmeteredFuel
	}
	return host.Meter.RemainingComputeTicks()
}

// chargeFuel charges the fuel one store consumed against host's
// meter. exhausted reports whether the run burned its entire grant,
// which (combined with a trap) reads as the compute budget being
// crossed mid-execution.
func chargeFuel(host *HostAPI, store *wasmtime.Store, budget uint64) (exhausted bool, err error) {
	consumed, ok := store.FuelConsumed()
	if !ok || host.Meter == nil {
		return false, nil
	}
	if err := host.Meter.UseComputeBandwidth(consumed); err != nil {
		host.setAbort(err)
		return true, err
	}
	return consumed >= budget, nil
}

// Run parses/fetches, instantiates, and invokes the WASI `_start`
// entry point of the module identified by id, routing every import
// call through host. Returns ErrTrapped on any trap,
// carrying the frame's already-recorded WASI exit code (set via
// proc_exit before the trap, if any); returns host.Abort() directly
// when a sticky abort condition (resource exhaustion, a read-only
// write, stack overflow) was set during execution, since that must
// unwind the whole transaction rather than read as a mere trap.
func (vm *VM) Run(host *HostAPI, bytecode []byte, id protocol.Account) error {
	m, err := vm.module(id, bytecode)
	if err != nil {
		return err
	}
	budget := computeBudget(host)
	if budget == 0 {
		return host.setAbortErr(resource.ErrComputeBandwidthLimitExceeded)
	}
	store, instance, err := vm.instantiate(host, m, budget)
	if err != nil {
		return err
	}
	start := instance.GetExport(store, "_start")
	if start == nil || start.Func() == nil {
		return ErrEntryPointNotFound
	}
	_, callErr := start.Func().Call(store)
	exhausted, chargeErr := chargeFuel(host, store, budget)
	if chargeErr != nil {
		return chargeErr
	}
	if host.Abort() != nil {
		return host.Abort()
	}
	if callErr != nil {
		if exhausted {
			return host.setAbortErr(resource.ErrComputeBandwidthLimitExceeded)
		}
		if _, ok := callErr.(*wasmtime.Trap); ok {
			return ErrTrapped
		}
		return ErrExecutionEnvironmentFailure
	}
	return nil
}

// RunAuthorize invokes a program's optional `authorize` entry point
// instead of `_start`. A program with no such export is
// simply not authorized; that is not an error.
func (vm *VM) RunAuthorize(host *HostAPI, bytecode []byte, id protocol.Account) (bool, error) {
	m, err := vm.module(id, bytecode)
	if err != nil {
		return false, err
	}
	budget := computeBudget(host)
	if budget == 0 {
		return false, host.setAbortErr(resource.ErrComputeBandwidthLimitExceeded)
	}
	store, instance, err := vm.instantiate(host, m, budget)
	if err != nil {
		return false, err
	}
	authorize := instance.GetExport(store, "authorize")
	if authorize == nil || authorize.Func() == nil {
		return false, nil
	}
	result, callErr := authorize.Func().Call(store)
	exhausted, chargeErr := chargeFuel(host, store, budget)
	if chargeErr != nil {
		return false, chargeErr
	}
	if host.Abort() != nil {
		return false, host.Abort()
	}
	if callErr != nil {
		if exhausted {
			return false, host.setAbortErr(resource.ErrComputeBandwidthLimitExceeded)
		}
		return false, ErrTrapped
	}
	code, _ := result.(int32)
	return code != 0, nil
}

// memoryView reads count bytes at ptr out of the instance's exported
// linear memory, the shape every WASI import receiving a buffer
// argument needs (arguments/stdin pointers, get_object/put_object
// keys and values). store is a wasmtime.Storelike, satisfied directly
// by the *wasmtime.Caller each bound import receives.
func memoryView(store wasmtime.Storelike, mem *wasmtime.Memory, ptr, count int32) []byte {
	data := mem.UnsafeData(store)
	if ptr < 0 || count < 0 || int(ptr)+int(count) > len(data) {
		return nil
	}
	return data[ptr : ptr+count]
}

func readUint32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

// bindHostCalls wires the fixed host-call surface
// into linker as `execore` module imports, each closing over host.
// Every import reads its buffer arguments out of the guest's own
// linear memory (obtained lazily from the instantiated module's
// exported "memory", since the Memory export does not exist until
// Instantiate returns). Most imports return a WASI-style errno as
// their i32 result; proc_exit and log return nothing, check_authority
// returns 1 or 0, and fd_seek returns the new offset (or -1).
func bindHostCalls(linker *wasmtime.Linker, host *HostAPI) error {
	memOf := func(caller *wasmtime.Caller) *wasmtime.Memory {
		ext := caller.GetExport("memory")
		if ext == nil {
			return nil
		}
		return ext.Memory()
	}

	wrap := func(name string, fn interface{}) error {
		return linker.FuncWrap("execore", name, fn)
	}

	if err := wrap("args_get", func(caller *wasmtime.Caller, argvPtr, argvBufPtr int32) int32 {
		args, errno := host.ArgsGet()
		mem := memOf(caller)
		if mem == nil {
			return int32(ErrnoInval)
		}
		offset := argvBufPtr
		for i, a := range args {
			buf := memoryView(caller, mem, offset, int32(len(a)+1))
			if buf == nil {
				break
			}
			copy(buf, a)
			buf[len(a)] = 0
			var ptrBuf [4]byte
			binary.LittleEndian.PutUint32(ptrBuf[:], uint32(offset))
			dst := memoryView(caller, mem, argvPtr+int32(i*4), 4)
			if dst != nil {
				copy(dst, ptrBuf[:])
			}
			offset += int32(len(a) + 1)
		}
		return int32(errno)
	}); err != nil {
		return err
	}

	if err := wrap("args_sizes_get", func(caller *wasmtime.Caller, countPtr, sizePtr int32) int32 {
		count, size, errno := host.ArgsSizesGet()
		mem := memOf(caller)
		if mem != nil {
			if dst := memoryView(caller, mem, countPtr, 4); dst != nil {
				binary.LittleEndian.PutUint32(dst, uint32(count))
			}
			if dst := memoryView(caller, mem, sizePtr, 4); dst != nil {
				binary.LittleEndian.PutUint32(dst, uint32(size))
			}
		}
		return int32(errno)
	}); err != nil {
		return err
	}

	if err := wrap("fd_write", func(caller *wasmtime.Caller, fd, dataPtr, dataLen, nwrittenPtr int32) int32 {
		mem := memOf(caller)
		if mem == nil {
			return int32(ErrnoInval)
		}
		data := memoryView(caller, mem, dataPtr, dataLen)
		n, errno := host.FdWrite(fd, data)
		if dst := memoryView(caller, mem, nwrittenPtr, 4); dst != nil {
			binary.LittleEndian.PutUint32(dst, uint32(n))
		}
		return int32(errno)
	}); err != nil {
		return err
	}

	if err := wrap("fd_read", func(caller *wasmtime.Caller, fd, bufPtr, bufLen, nreadPtr int32) int32 {
		mem := memOf(caller)
		if mem == nil {
			return int32(ErrnoInval)
		}
		buf := memoryView(caller, mem, bufPtr, bufLen)
		n, errno := host.FdRead(fd, buf)
		if dst := memoryView(caller, mem, nreadPtr, 4); dst != nil {
			binary.LittleEndian.PutUint32(dst, uint32(n))
		}
		return int32(errno)
	}); err != nil {
		return err
	}

	if err := wrap("fd_seek", func(fd int32, offset int64, whence int32) int64 {
		pos, errno := host.FdSeek(fd, offset, whence)
		if errno != ErrnoSuccess {
			return -1
		}
		return pos
	}); err != nil {
		return err
	}

	if err := wrap("fd_close", func(fd int32) int32 { return int32(host.FdClose(fd)) }); err != nil {
		return err
	}
	if err := wrap("fd_fdstat_get", func(fd int32) int32 { return int32(host.FdFdstatGet(fd)) }); err != nil {
		return err
	}
	if err := wrap("proc_exit", func(code int32) { host.ProcExit(code) }); err != nil {
		return err
	}

	if err := wrap("get_caller", func(caller *wasmtime.Caller, outPtr int32) int32 {
		mem := memOf(caller)
		if mem == nil {
			return int32(ErrnoInval)
		}
		account := host.GetCaller()
		b := account.Bytes()
		if dst := memoryView(caller, mem, outPtr, int32(len(b))); dst != nil {
			copy(dst, b[:])
		}
		return int32(ErrnoSuccess)
	}); err != nil {
		return err
	}

	if err := wrap("get_object", func(caller *wasmtime.Caller, spacePtr, keyPtr, keyLen, outPtr, outLen int32) int32 {
		mem := memOf(caller)
		if mem == nil {
			return int32(ErrnoInval)
		}
		space := decodeSpace(memoryView(caller, mem, spacePtr, 40))
		key := memoryView(caller, mem, keyPtr, keyLen)
		v, errno := host.GetObject(space, key)
		if errno == ErrnoSuccess {
			if dst := memoryView(caller, mem, outPtr, outLen); dst != nil {
				copy(dst, v)
			}
		}
		return int32(errno)
	}); err != nil {
		return err
	}

	if err := wrap("put_object", func(caller *wasmtime.Caller, spacePtr, keyPtr, keyLen, valPtr, valLen int32) int32 {
		mem := memOf(caller)
		if mem == nil {
			return int32(ErrnoInval)
		}
		space := decodeSpace(memoryView(caller, mem, spacePtr, 40))
		key := memoryView(caller, mem, keyPtr, keyLen)
		val := memoryView(caller, mem, valPtr, valLen)
		return int32(host.PutObject(space, key, val))
	}); err != nil {
		return err
	}

	if err := wrap("remove_object", func(caller *wasmtime.Caller, spacePtr, keyPtr, keyLen int32) int32 {
		mem := memOf(caller)
		if mem == nil {
			return int32(ErrnoInval)
		}
		space := decodeSpace(memoryView(caller, mem, spacePtr, 40))
		key := memoryView(caller, mem, keyPtr, keyLen)
		return int32(host.RemoveObject(space, key))
	}); err != nil {
		return err
	}

	if err := wrap("check_authority", func(caller *wasmtime.Caller, accountPtr int32) int32 {
		mem := memOf(caller)
		if mem == nil {
			return 0
		}
		account, err := protocol.AccountFromBytes(memoryView(caller, mem, accountPtr, protocol.AccountSize))
		if err != nil {
			return 0
		}
		if host.CheckAuthority(account) {
			return 1
		}
		return 0
	}); err != nil {
		return err
	}

	if err := wrap("log", func(caller *wasmtime.Caller, ptr, length int32) {
		mem := memOf(caller)
		if mem == nil {
			return
		}
		host.Log(memoryView(caller, mem, ptr, length))
	}); err != nil {
		return err
	}

	if err := wrap("event", func(caller *wasmtime.Caller, namePtr, nameLen, dataPtr, dataLen, impactedPtr, impactedCount int32) int32 {
		mem := memOf(caller)
		if mem == nil {
			return int32(ErrnoInval)
		}
		name := string(memoryView(caller, mem, namePtr, nameLen))
		data := memoryView(caller, mem, dataPtr, dataLen)
		impacted, errno := decodeAccounts(memoryView(caller, mem, impactedPtr, impactedCount*protocol.AccountSize), impactedCount)
		if errno != ErrnoSuccess {
			return int32(errno)
		}
		return int32(host.Event(name, data, impacted))
	}); err != nil {
		return err
	}

	if err := wrap("call_program", func(caller *wasmtime.Caller, accountPtr, stdinPtr, stdinLen, argsPtr, argsLen, outPtr, outLen int32) int32 {
		mem := memOf(caller)
		if mem == nil {
			return int32(ErrnoInval)
		}
		account, err := protocol.AccountFromBytes(memoryView(caller, mem, accountPtr, protocol.AccountSize))
		if err != nil {
			return int32(ErrnoInval)
		}
		input := protocol.ProgramInput{
			Stdin:     memoryView(caller, mem, stdinPtr, stdinLen),
			Arguments: splitArgs(memoryView(caller, mem, argsPtr, argsLen)),
		}
		out, err := host.CallProgram(account, input)
		if err != nil {
			return int32(ErrnoAcces)
		}
		if dst := memoryView(caller, mem, outPtr, outLen); dst != nil {
			copy(dst, out.Stdout)
		}
		return int32(ErrnoSuccess)
	}); err != nil {
		return err
	}

	return nil
}

// decodeAccounts parses count consecutive 33-byte account encodings
// out of a guest-supplied buffer.
func decodeAccounts(b []byte, count int32) ([]protocol.Account, Errno) {
	if count == 0 {
		return nil, ErrnoSuccess
	}
	if b == nil || int32(len(b)) != count*protocol.AccountSize {
		return nil, ErrnoInval
	}
	accounts := make([]protocol.Account, count)
	for i := range accounts {
		account, err := protocol.AccountFromBytes(b[i*protocol.AccountSize : (i+1)*protocol.AccountSize])
		if err != nil {
			return nil, ErrnoInval
		}
		accounts[i] = account
	}
	return accounts, ErrnoSuccess
}

// splitArgs decodes a guest-supplied argument buffer: NUL-separated
// strings, mirroring how args_get lays arguments back out. An empty
// buffer means no arguments.
func splitArgs(b []byte) []string {
	if len(b) == 0 {
		return nil
	}
	var args []string
	start := 0
	for i, c := range b {
		if c == 0 {
			args = append(args, string(b[start:i]))
			start = i + 1
		}
	}
	if start < len(b) {
		args = append(args, string(b[start:]))
	}
	return args
}

func decodeSpace(b []byte) state.ObjectSpace {
	if len(b) < 40 {
		return state.ObjectSpace{}
	}
	var space state.ObjectSpace
	space.System = b[0] != 0
	copy(space.Address[:], b[4:36])
	space.ID = readUint32(b[36:40])
	return space
}
