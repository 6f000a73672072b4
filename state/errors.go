// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import "errors"

// State-db category errors.
var (
	// ErrNotFinalized is returned by any write attempted against a
	// complete (immutable) delta, or by MerkleRoot/Commit called
	// before MarkComplete.
	ErrNotFinalized = errors.New("state: delta not finalized")

	// ErrParentNotComplete is returned when spawning a permanent child
	// of a delta that has not been marked complete.
	ErrParentNotComplete = errors.New("state: parent delta not complete")

	// ErrConflictingParents names a delta whose recorded parent id does
	// not match the parent it is being attached under. No function in
	// this package currently returns it.
	ErrConflictingParents = errors.New("state: conflicting parent")

	// ErrDeltaExists is returned by Database.Add when a delta with the
	// same id is already indexed.
	ErrDeltaExists = errors.New("state: delta already exists")

	// ErrUnknownDelta is returned when a delta id has no entry in the
	// index, including an unknown parent id on Add.
	ErrUnknownDelta = errors.New("state: unknown delta")

	// ErrNoParent is returned by Squash on a root delta.
	ErrNoParent = errors.New("state: delta has no parent")

	// ErrReadOnly names a write attempted in a read-only context. No
	// function in this package currently returns it: a Node write
	// against a complete delta fails with ErrNotFinalized.
	ErrReadOnly = errors.New("state: read-only context")
)
