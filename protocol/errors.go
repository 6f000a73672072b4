// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

import "errors"

// Structural validation errors. These are the raw building blocks the
// controller package maps onto its own block/reversion error
// categories; protocol itself has no notion of "fatal" vs
// "revertible".
var (
	ErrMalformedBlock       = errors.New("protocol: malformed block")
	ErrMalformedTransaction = errors.New("protocol: malformed transaction")
	ErrAuthorizationFailure = errors.New("protocol: authorization failure")
	ErrInvalidSignature     = errors.New("protocol: invalid signature")
	ErrInvalidAccount       = errors.New("protocol: invalid account")
)
