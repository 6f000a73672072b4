// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resource

import "errors"

// Per-category limit-exceeded errors surfaced by the Meter.
var (
	ErrDiskStorageLimitExceeded      = errors.New("resource: disk storage limit exceeded")
	ErrNetworkBandwidthLimitExceeded = errors.New("resource: network bandwidth limit exceeded")
	ErrComputeBandwidthLimitExceeded = errors.New("resource: compute bandwidth limit exceeded")

	// ErrInsufficientResources is returned by Session.Spend when a
	// charge overdraws the transaction's credit pool; the Meter maps it
	// onto the limit-exceeded error of the category being charged.
	ErrInsufficientResources = errors.New("resource: insufficient resources")
)
