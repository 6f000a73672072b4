// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package resource

import (
	"sync"

	"github.com/luxfi/execore/chronicle"
	"github.com/luxfi/execore/protocol"
)

// Session is one transaction's resource-credit pool, bundled with the
// frame recorder its execution writes into. The pool is a single
// scalar: every metered category draws from it through the Meter at
// that category's per-unit cost, so a transaction can never consume
// more total credit than the one amount checked against the payer at
// admission. On success the controller folds the Recorder into the
// block-level recorder.
type Session struct {
	Payer    protocol.Account
	Recorder *chronicle.Recorder

	mu        sync.Mutex
	initial   uint64
	remaining uint64
}

// NewSession opens a credit pool of the given size for payer and a
// transaction-scoped recorder child of block. It does not read or debit
// any stored balance; the caller checks and debits the payer's credit.
func NewSession(payer protocol.Account, credit uint64, block *chronicle.Recorder) *Session {
	return &Session{
		Payer:     payer,
		Recorder:  block.NewTransactionRecorder(),
		initial:   credit,
		remaining: credit,
	}
}

// Spend draws credit from the pool. An overdraw empties the pool and
// fails with ErrInsufficientResources, so a reverted run is charged
// exactly the credit it reserved and no more.
func (s *Session) Spend(credit uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if credit > s.remaining {
		s.remaining = 0
		return ErrInsufficientResources
	}
	s.remaining -= credit
	return nil
}

// Initial returns the credit the session was opened with.
func (s *Session) Initial() uint64 { return s.initial }

// Remaining returns the unspent credit.
func (s *Session) Remaining() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Used returns initial - remaining.
func (s *Session) Used() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initial - s.remaining
}
