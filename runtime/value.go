// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import "math"

// ValueTag discriminates the WASM operand kinds a Value may hold.
type ValueTag uint8

const (
	ValueI32 ValueTag = iota
	ValueI64
	ValueF32
	ValueF64
)

// Value is a tagged 64-bit operand slot, modeling WASM's four value
// types without a generic/templated type per slot. The host-call
// bindings do not use it: proc_exit and fd_seek take their i32/i64
// operands as plain int32/int64.
type Value struct {
	Tag  ValueTag
	Bits uint64
}

func I32(v int32) Value { return Value{Tag: ValueI32, Bits: uint64(uint32(v))} }
func I64(v int64) Value { return Value{Tag: ValueI64, Bits: uint64(v)} }
func F32(v float32) Value {
	return Value{Tag: ValueF32, Bits: uint64(math.Float32bits(v))}
}
func F64(v float64) Value { return Value{Tag: ValueF64, Bits: math.Float64bits(v)} }

func (v Value) AsI32() int32   { return int32(uint32(v.Bits)) }
func (v Value) AsI64() int64   { return int64(v.Bits) }
func (v Value) AsF32() float32 { return math.Float32frombits(uint32(v.Bits)) }
func (v Value) AsF64() float64 { return math.Float64frombits(v.Bits) }
