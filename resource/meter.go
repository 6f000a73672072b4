// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package resource implements the per-run resource accounting charged
// against disk storage, network bandwidth, and compute bandwidth, and
// the per-transaction Session whose single credit pool every category
// draws from.
package resource

import (
	"math"
	"sync"
)

// ResourceState holds the three tracked categories as identically
// shaped running totals.
type ResourceState struct {
	DiskStorage      uint64
	NetworkBandwidth uint64
	ComputeBandwidth uint64
}

// Limits mirrors the resource_limits chain state: a per-category cap
// on raw units for the run, and a per-unit credit cost translating
// that category's usage into session-credit charges.
type Limits struct {
	DiskStorageLimit      uint64
	DiskStorageCost       uint64
	NetworkBandwidthLimit uint64
	NetworkBandwidthCost  uint64
	ComputeBandwidthLimit uint64
	ComputeBandwidthCost  uint64
}

// DefaultLimits returns uncapped per-category limits with every unit
// costing one credit, the configuration used when no resource_limits
// entry has been written to state.
func DefaultLimits() Limits {
	return Limits{
		DiskStorageLimit:      math.MaxUint64,
		DiskStorageCost:       1,
		NetworkBandwidthLimit: math.MaxUint64,
		NetworkBandwidthCost:  1,
		ComputeBandwidthLimit: math.MaxUint64,
		ComputeBandwidthCost:  1,
	}
}

// Meter tracks one run's per-category usage against the limits it was
// opened with, and charges an attached Session's shared credit pool at
// each category's cost. Crossing either the category cap or the pool
// returns the limit-exceeded error of the matching category.
type Meter struct {
	mu        sync.Mutex
	limits    Limits
	remaining ResourceState
	used      ResourceState
	session   *Session
}

// NewMeter returns a Meter with each category's remaining budget set
// from limits.
func NewMeter(limits Limits) *Meter {
	return &Meter{
		limits: limits,
		remaining: ResourceState{
			DiskStorage:      limits.DiskStorageLimit,
			NetworkBandwidth: limits.NetworkBandwidthLimit,
			ComputeBandwidth: limits.ComputeBandwidthLimit,
		},
	}
}

// SetSession attaches the credit pool subsequent charges draw from.
func (m *Meter) SetSession(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
}

// Session returns the attached credit pool, if any.
func (m *Meter) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Limits returns the limits the meter was opened with.
func (m *Meter) Limits() Limits { return m.limits }

// Remaining returns the unspent per-category budgets.
func (m *Meter) Remaining() ResourceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remaining
}

// Used returns the raw units consumed per category.
func (m *Meter) Used() ResourceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// Charged returns the session credit attributed to each category:
// used units times that category's cost.
func (m *Meter) Charged() ResourceState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ResourceState{
		DiskStorage:      m.used.DiskStorage * m.limits.DiskStorageCost,
		NetworkBandwidth: m.used.NetworkBandwidth * m.limits.NetworkBandwidthCost,
		ComputeBandwidth: m.used.ComputeBandwidth * m.limits.ComputeBandwidthCost,
	}
}

// RemainingComputeTicks returns how many more compute ticks the run
// may consume before either the category cap or the attached session's
// credit runs out, used by the VM to size a store's fuel grant.
func (m *Meter) RemainingComputeTicks() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ticks := m.remaining.ComputeBandwidth
	if m.session != nil && m.limits.ComputeBandwidthCost > 0 {
		if byCredit := m.session.Remaining() / m.limits.ComputeBandwidthCost; byCredit < ticks {
			ticks = byCredit
		}
	}
	return ticks
}

func (m *Meter) use(remaining, used *uint64, units, cost uint64, errLimit error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if units > *remaining {
		*remaining = 0
		return errLimit
	}
	*remaining -= units
	*used += units
	if m.session != nil {
		if err := m.session.Spend(units * cost); err != nil {
			return errLimit
		}
	}
	return nil
}

// UseDiskStorage charges delta bytes of state growth. A non-positive
// delta (a remove or a same-or-smaller overwrite) charges nothing:
// negative size deltas never refund.
func (m *Meter) UseDiskStorage(delta int64) error {
	if delta <= 0 {
		return nil
	}
	return m.use(&m.remaining.DiskStorage, &m.used.DiskStorage,
		uint64(delta), m.limits.DiskStorageCost, ErrDiskStorageLimitExceeded)
}

// UseNetworkBandwidth charges n bytes of serialized block/transaction/
// operation size at admission.
func (m *Meter) UseNetworkBandwidth(n uint64) error {
	return m.use(&m.remaining.NetworkBandwidth, &m.used.NetworkBandwidth,
		n, m.limits.NetworkBandwidthCost, ErrNetworkBandwidthLimitExceeded)
}

// UseComputeBandwidth charges ticks reported by the VM or an
// opcode-weighted host call (see weights.go).
func (m *Meter) UseComputeBandwidth(ticks uint64) error {
	return m.use(&m.remaining.ComputeBandwidth, &m.used.ComputeBandwidth,
		ticks, m.limits.ComputeBandwidthCost, ErrComputeBandwidthLimitExceeded)
}
