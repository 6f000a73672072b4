// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package protocol

// Event is an application-level notification emitted by a program via
// the `event` host call. Events are sequence-numbered by the
// chronicler in issuance order across an entire block, not restarted
// per transaction, so a receipt consumer can detect gaps or
// reordering.
type Event struct {
	Sequence uint32
	Source   Account
	Name     string
	Data     []byte
	Impacted []Account
}
