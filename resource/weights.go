// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resource

// OpWeight classifies a host call or VM instruction group by relative
// compute cost.
type OpWeight uint64

const (
	// Light covers cheap, constant-time host calls (argument and fd
	// metadata queries).
	Light OpWeight = 100
	// Medium covers host calls that touch the state node or chronicler.
	Medium OpWeight = 1000
	// Heavy covers host calls that recurse into the VM (call_program)
	// or resolve authority (check_authority, which may run a program's
	// authorize entry point).
	Heavy OpWeight = 10000
)

// ComputeCost weights a VM-reported tick count by its opcode class,
// producing the compute_bandwidth units charged to a Session.
func ComputeCost(ticks uint64, weight OpWeight) uint64 {
	return ticks * uint64(weight)
}
