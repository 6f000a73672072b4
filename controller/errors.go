// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package controller implements the block and transaction application
// pipeline: syntactic validation, parent lookup, resource metering,
// operation dispatch against the program runtime, and deterministic
// receipt construction.
package controller

import "errors"

// Controller-category errors: a block-level failure aborts
// the whole block, leaving the database's head unchanged.
var (
	ErrUnknownBlock            = errors.New("controller: unknown block")
	ErrUnknownPreviousBlock    = errors.New("controller: unknown previous block")
	ErrUnexpectedHeight        = errors.New("controller: unexpected height")
	ErrPreIrreversibilityBlock = errors.New("controller: block at or below an irreversible height")
	ErrTimestampOutOfBounds    = errors.New("controller: timestamp out of bounds")
	ErrStateMerkleMismatch     = errors.New("controller: state merkle mismatch")
	ErrNetworkIDMismatch       = errors.New("controller: network id mismatch")
	ErrInvalidNonce            = errors.New("controller: invalid nonce")
	ErrBlockStateError         = errors.New("controller: block state error")

	// ErrInsufficientResources aborts the block when a payer's stored
	// credit cannot cover a transaction's declared resource_limit.
	ErrInsufficientResources = errors.New("controller: insufficient resources")
)
