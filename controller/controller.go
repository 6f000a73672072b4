// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/log"

	"github.com/luxfi/execore/chronicle"
	"github.com/luxfi/execore/encode"
	"github.com/luxfi/execore/protocol"
	"github.com/luxfi/execore/resource"
	"github.com/luxfi/execore/runtime"
	"github.com/luxfi/execore/stack"
	"github.com/luxfi/execore/state"
)

// System object spaces the controller itself owns, distinct from
// runtime.ProgramDataSpace (program bytecode, id 0): nonces are keyed
// by payer account, resource credit balances likewise.
var (
	NonceSpace          = state.ObjectSpace{System: true, ID: 1}
	ResourceCreditSpace = state.ObjectSpace{System: true, ID: 2}
	ResourceLimitSpace  = state.ObjectSpace{System: true, ID: 3}
)

// BlockLimitsKey is the ResourceLimitSpace key holding the chain-wide
// per-block network bandwidth limit as a little-endian uint64. When
// absent, the controller falls back to its configured limit.
var BlockLimitsKey = []byte("block")

type blockHeader struct {
	Height    uint64
	Timestamp uint64
	Previous  protocol.Digest
}

// Config configures a Controller.
type Config struct {
	DB          *state.Database
	ModuleCache *runtime.ModuleCache
	NetworkID   protocol.Digest
	ClockSkew   time.Duration
	StackLimit  int
	// BlockNetworkBandwidthLimit bounds the serialized size a single
	// block may occupy; zero means unlimited.
	BlockNetworkBandwidthLimit uint64
	Now                        func() time.Time
	Log                        log.Logger
	Metrics                    *Metrics
}

// Controller applies blocks and transactions against a state.Database,
// dispatching program operations to a shared runtime.VM.
type Controller struct {
	db         *state.Database
	vm         *runtime.VM
	networkID  protocol.Digest
	clockSkew  time.Duration
	stackLimit int
	netLimit   uint64
	now        func() time.Time
	log        log.Logger
	metrics    *Metrics

	mu      sync.Mutex
	headers map[protocol.Digest]blockHeader
}

// NewController constructs a Controller bound to cfg.DB's current root
// as the genesis header (height 0, timestamp 0).
func NewController(cfg Config) (*Controller, error) {
	if cfg.DB == nil {
		return nil, errors.New("controller: nil database")
	}
	cache := cfg.ModuleCache
	if cache == nil {
		var err error
		cache, err = runtime.NewModuleCache(runtime.DefaultCacheCapacity)
		if err != nil {
			return nil, err
		}
	}
	logger := cfg.Log
	if logger == nil {
		logger = log.NewNoOpLogger()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	stackLimit := cfg.StackLimit
	if stackLimit <= 0 {
		stackLimit = stack.DefaultLimit
	}
	netLimit := cfg.BlockNetworkBandwidthLimit
	if netLimit == 0 {
		netLimit = ^uint64(0)
	}

	c := &Controller{
		db:         cfg.DB,
		vm:         runtime.NewVM(cache),
		networkID:  cfg.NetworkID,
		clockSkew:  cfg.ClockSkew,
		stackLimit: stackLimit,
		netLimit:   netLimit,
		now:        now,
		log:        logger,
		metrics:    cfg.Metrics,
		headers:    make(map[protocol.Digest]blockHeader),
	}
	c.headers[cfg.DB.Root().ID()] = blockHeader{}
	return c, nil
}

func (c *Controller) reject() {
	if c.metrics != nil {
		c.metrics.observeBlockRejected()
	}
}

func (c *Controller) rootHeight() uint64 {
	root := c.db.Root()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.headers[root.ID()].Height
}

// ApplyBlock runs the full block pipeline: syntactic and
// timestamp validation, parent lookup, per-transaction application
// against a permanent child node, state-merkle verification, and
// receipt assembly. A returned error means the block was rejected and
// the database's head is unchanged; no partial state from a rejected
// block is ever visible to a later ApplyBlock call.
func (c *Controller) ApplyBlock(block protocol.Block) (*protocol.BlockReceipt, error) {
	start := time.Now()
	if c.metrics != nil {
		defer func() { c.metrics.observeApplyDuration(time.Since(start)) }()
	}
	if err := block.Validate(); err != nil {
		c.reject()
		return nil, err
	}

	c.mu.Lock()
	parentHeader, known := c.headers[block.Previous]
	c.mu.Unlock()
	if !known {
		c.reject()
		return nil, ErrUnknownPreviousBlock
	}
	if block.Height != parentHeader.Height+1 {
		c.reject()
		return nil, ErrUnexpectedHeight
	}
	if block.Height <= c.rootHeight() {
		c.reject()
		return nil, ErrPreIrreversibilityBlock
	}
	if block.Timestamp <= parentHeader.Timestamp {
		c.reject()
		return nil, ErrTimestampOutOfBounds
	}
	if deadline := uint64(c.now().Add(c.clockSkew).Unix()); block.Timestamp > deadline {
		c.reject()
		return nil, ErrTimestampOutOfBounds
	}

	parentDelta, ok := c.db.Get(block.Previous)
	if !ok {
		c.reject()
		return nil, ErrUnknownPreviousBlock
	}
	parentNode := state.NewPermanentNode(c.db, parentDelta)

	blockNode, err := parentNode.MakeChild(block.ID, true)
	if err != nil {
		c.reject()
		return nil, fmt.Errorf("controller: open block node: %w", err)
	}

	blockRecorder := chronicle.NewRecorder()
	blockLimits := resource.DefaultLimits()
	blockLimits.NetworkBandwidthLimit = c.blockNetworkLimit(parentNode)
	blockMeter := resource.NewMeter(blockLimits)
	if err := blockMeter.UseNetworkBandwidth(uint64(block.Size())); err != nil {
		_ = blockNode.Discard()
		c.reject()
		return nil, err
	}

	txReceipts := make([]protocol.TransactionReceipt, 0, len(block.Transactions))
	var diskUsed, netUsed, computeUsed uint64
	var diskCharged, netCharged, computeCharged uint64
	for _, tx := range block.Transactions {
		receipt, err := c.applyTransaction(blockNode, blockRecorder, tx)
		if err != nil {
			_ = blockNode.Discard()
			c.reject()
			return nil, err
		}
		txReceipts = append(txReceipts, *receipt)
		diskUsed += receipt.DiskStorageUsed
		netUsed += receipt.NetworkBandwidthUsed
		computeUsed += receipt.ComputeBandwidthUsed
		diskCharged += receipt.DiskStorageCharged
		netCharged += receipt.NetworkBandwidthCharged
		computeCharged += receipt.ComputeBandwidthCharged
	}

	// The delta is frozen and its root checked before the node is
	// submitted for head selection, so a rejected block never becomes
	// head.
	blockNode.Delta().MarkComplete()
	root, err := blockNode.MerkleRoot()
	if err != nil {
		_ = blockNode.Discard()
		c.reject()
		return nil, fmt.Errorf("%w: %v", ErrBlockStateError, err)
	}
	if root != block.StateMerkleRoot {
		_ = blockNode.Discard()
		c.reject()
		return nil, fmt.Errorf("%w: computed %s, header %s",
			ErrStateMerkleMismatch, encode.HexEncode(root[:]), encode.HexEncode(block.StateMerkleRoot[:]))
	}
	if err := blockNode.MarkComplete(); err != nil {
		_ = blockNode.Discard()
		c.reject()
		return nil, fmt.Errorf("%w: %v", ErrBlockStateError, err)
	}

	c.mu.Lock()
	c.headers[block.ID] = blockHeader{Height: block.Height, Timestamp: block.Timestamp, Previous: block.Previous}
	c.mu.Unlock()

	receipt := &protocol.BlockReceipt{
		ID:                      block.ID,
		Height:                  block.Height,
		Frames:                  blockRecorder.Frames(),
		Events:                  blockRecorder.Events(),
		DiskStorageUsed:         diskUsed,
		NetworkBandwidthUsed:    netUsed,
		ComputeBandwidthUsed:    computeUsed,
		StateMerkleRoot:         root,
		TransactionReceipts:     txReceipts,
		DiskStorageCharged:      diskCharged,
		NetworkBandwidthCharged: netCharged,
		ComputeBandwidthCharged: computeCharged,
	}
	if c.metrics != nil {
		c.metrics.observeBlock(*receipt)
	}
	c.log.Info("block applied", "id", block.ID, "height", block.Height)
	return receipt, nil
}

// blockNetworkLimit resolves the per-block network bandwidth budget:
// the chain-wide resource_limits entry if governance has written one,
// else the configured limit.
func (c *Controller) blockNetworkLimit(parent *state.Node) uint64 {
	if raw, ok := parent.Get(ResourceLimitSpace, BlockLimitsKey); ok && len(raw) >= 8 {
		return decodeUint64(raw)
	}
	return c.netLimit
}

// applyTransaction runs one transaction's pipeline. A
// non-nil error is a controller-level failure that aborts the whole
// block (bad nonce, bad authorization, payer lacking enough resource
// credit to even open a session, or an uploaded-this-transaction
// program that failed to instantiate).
// Anything that goes wrong once the session is open and operations are
// running is instead folded into a reverted receipt.
func (c *Controller) applyTransaction(blockNode *state.Node, blockRecorder *chronicle.Recorder, tx protocol.Transaction) (*protocol.TransactionReceipt, error) {
	if err := tx.Validate(); err != nil {
		return nil, err
	}
	if tx.NetworkID != c.networkID {
		return nil, ErrNetworkIDMismatch
	}
	if !tx.AuthorizedBy(tx.Payer) {
		return nil, protocol.ErrAuthorizationFailure
	}
	if !tx.Payee.IsEmpty() && !tx.AuthorizedBy(tx.Payee) {
		return nil, protocol.ErrAuthorizationFailure
	}
	if tx.Nonce == 0 {
		return nil, ErrInvalidNonce
	}

	payerKey := tx.Payer.Bytes()
	stored, _ := blockNode.Get(NonceSpace, payerKey[:])
	if decodeUint64(stored) != tx.Nonce-1 {
		return nil, ErrInvalidNonce
	}
	if _, err := blockNode.Put(NonceSpace, payerKey[:], encodeUint64(tx.Nonce)); err != nil {
		return nil, fmt.Errorf("controller: write nonce: %w", err)
	}

	creditBytes, _ := blockNode.Get(ResourceCreditSpace, payerKey[:])
	credit := decodeUint64(creditBytes)
	if credit < tx.ResourceLimit {
		return nil, ErrInsufficientResources
	}

	// One shared credit pool covers all three categories: the session
	// reserves exactly the checked resource_limit, and the meter draws
	// every category's charge from it at that category's cost.
	session := resource.NewSession(tx.Payer, tx.ResourceLimit, blockRecorder)
	meter := resource.NewMeter(resource.DefaultLimits())
	meter.SetSession(session)

	reverted := false
	if err := meter.UseNetworkBandwidth(uint64(tx.Size())); err != nil {
		reverted = true
	}

	var txNode *state.Node
	if !reverted {
		var err error
		txNode, err = blockNode.MakeChild(tx.ID, false)
		if err != nil {
			return nil, fmt.Errorf("controller: open transaction node: %w", err)
		}

		cs := stack.New(c.stackLimit)
		host := runtime.NewHostAPI(txNode, cs, meter, session.Recorder, c.vm, false).
			WithAuthorized(tx.AuthorizedBy)

		uploaded := make(map[protocol.Account]bool)
		for _, op := range tx.Operations {
			switch o := op.(type) {
			case protocol.UploadProgram:
				if err := c.applyUploadProgram(txNode, meter, o); err != nil {
					reverted = true
				} else {
					uploaded[o.ID] = true
				}
			case protocol.CallProgram:
				if _, err := host.CallProgram(o.ID, o.Input); err != nil {
					if uploaded[o.ID] && errors.Is(err, runtime.ErrInstantiateFailure) {
						return nil, protocol.ErrMalformedTransaction
					}
					reverted = true
				}
			default:
				reverted = true
			}
			if reverted {
				break
			}
		}
	}

	if !reverted {
		if err := txNode.Squash(); err != nil {
			return nil, fmt.Errorf("controller: squash transaction node: %w", err)
		}
		blockRecorder.Merge(session.Recorder)
	}

	// session.Used can never exceed the credit checked above: the pool
	// was opened with tx.ResourceLimit and Spend saturates at zero.
	creditUsed := session.Used()
	if _, err := blockNode.Put(ResourceCreditSpace, payerKey[:], encodeUint64(credit-creditUsed)); err != nil {
		return nil, fmt.Errorf("controller: charge payer: %w", err)
	}

	used := meter.Used()
	charged := meter.Charged()
	return &protocol.TransactionReceipt{
		ID:                      tx.ID,
		Reverted:                reverted,
		Payer:                   tx.Payer,
		Payee:                   tx.Payee,
		Frames:                  session.Recorder.Frames(),
		Events:                  session.Recorder.Events(),
		ResourceLimit:           tx.ResourceLimit,
		ResourceUsed:            creditUsed,
		DiskStorageUsed:         used.DiskStorage,
		NetworkBandwidthUsed:    used.NetworkBandwidth,
		ComputeBandwidthUsed:    used.ComputeBandwidth,
		DiskStorageCharged:      charged.DiskStorage,
		NetworkBandwidthCharged: charged.NetworkBandwidth,
		ComputeBandwidthCharged: charged.ComputeBandwidth,
	}, nil
}

func (c *Controller) applyUploadProgram(node *state.Node, meter *resource.Meter, op protocol.UploadProgram) error {
	delta, err := node.Put(runtime.ProgramDataSpace, op.ID.Key[:], op.Bytecode)
	if err != nil {
		return err
	}
	return meter.UseDiskStorage(delta)
}

// CommitBlock promotes an already-applied block's state node to the
// database root, making its height irreversible: any later block at or
// below that height is rejected with ErrPreIrreversibilityBlock, and
// every delta not descending from the new root is purged. Header
// bookkeeping for pruned branches is dropped alongside.
func (c *Controller) CommitBlock(id protocol.Digest) error {
	delta, ok := c.db.Get(id)
	if !ok {
		return ErrUnknownBlock
	}
	node := state.NewPermanentNode(c.db, delta)
	if err := node.Commit(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	committed := c.headers[id]

	// Headers on the committed chain stay, so a block that later arrives
	// on a pruned ancestor is rejected as pre-irreversible rather than
	// unknown. Pruned sibling branches lose theirs.
	ancestors := map[protocol.Digest]bool{id: true}
	for cur := committed.Previous; ; {
		hdr, ok := c.headers[cur]
		if !ok {
			break
		}
		ancestors[cur] = true
		if hdr.Height == 0 {
			break
		}
		cur = hdr.Previous
	}
	for bid, hdr := range c.headers {
		if !ancestors[bid] && hdr.Height <= committed.Height {
			delete(c.headers, bid)
		}
	}
	c.log.Info("block committed", "id", id, "height", committed.Height)
	return nil
}

// ReadProgram is a pure, read-only query path: it pushes one frame,
// invokes the VM against node through a read-only HostAPI, pops the
// frame, and returns the output without touching nonces, resource
// credit, or the database's head. It is never called from ApplyBlock.
func (c *Controller) ReadProgram(node *state.Node, id protocol.Account, input protocol.ProgramInput) (protocol.ProgramOutput, error) {
	cs := stack.New(c.stackLimit)
	host := runtime.NewHostAPI(node, cs, nil, nil, c.vm, true)
	return host.CallProgram(id, input)
}

func decodeUint64(b []byte) uint64 {
	if len(b) < 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, v)
	return buf
}
