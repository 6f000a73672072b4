// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

// OperationTag discriminates the members of the Operation tagged
// union.
type OperationTag uint8

const (
	OperationUploadProgram OperationTag = 0
	OperationCallProgram   OperationTag = 1
)

// ProgramInput is what a caller hands to a program invocation: CLI-style
// arguments and an input byte stream read through fd_read.
type ProgramInput struct {
	Arguments []string
	Stdin     []byte
}

// ProgramOutput is what a program invocation produced: an exit code and
// the bytes written to its stdout/stderr descriptors.
type ProgramOutput struct {
	Code   int32
	Stdout []byte
	Stderr []byte
}

// ProgramFrame is the receipt-form record of one call frame: its input,
// its output, the account that was invoked, and its depth in the call
// stack at the time it ran.
type ProgramFrame struct {
	ProgramInput
	ProgramOutput
	ID    Account
	Depth uint32
}

// Operation is a single transaction-level instruction: upload a
// program's bytecode, or invoke one.
type Operation interface {
	Tag() OperationTag
	Size() int
	encode(buf *buffer)
}

// UploadProgram writes bytecode to the program_data system space under
// the owning program's account.
type UploadProgram struct {
	ID       Account
	Bytecode []byte
}

func (UploadProgram) Tag() OperationTag { return OperationUploadProgram }

func (o UploadProgram) Size() int { return AccountSize + 4 + len(o.Bytecode) }

func (o UploadProgram) encode(buf *buffer) {
	acc := o.ID.Bytes()
	buf.writeBytes(acc[:])
	buf.writeUint32(uint32(len(o.Bytecode)))
	buf.writeBytes(o.Bytecode)
}

// CallProgram invokes a program's entry point with the given input.
type CallProgram struct {
	ID    Account
	Input ProgramInput
}

func (CallProgram) Tag() OperationTag { return OperationCallProgram }

func (o CallProgram) Size() int {
	size := AccountSize + 4
	for _, a := range o.Input.Arguments {
		size += 4 + len(a)
	}
	size += 4 + len(o.Input.Stdin)
	return size
}

func (o CallProgram) encode(buf *buffer) {
	acc := o.ID.Bytes()
	buf.writeBytes(acc[:])
	buf.writeUint32(uint32(len(o.Input.Arguments)))
	for _, a := range o.Input.Arguments {
		buf.writeUint32(uint32(len(a)))
		buf.writeBytes([]byte(a))
	}
	buf.writeUint32(uint32(len(o.Input.Stdin)))
	buf.writeBytes(o.Input.Stdin)
}

func encodeOperations(buf *buffer, ops []Operation) {
	buf.writeUint32(uint32(len(ops)))
	for _, op := range ops {
		buf.b = append(buf.b, byte(op.Tag()))
		op.encode(buf)
	}
}

func operationsSize(ops []Operation) int {
	size := 4
	for _, op := range ops {
		size += 1 + op.Size()
	}
	return size
}
