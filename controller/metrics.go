// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package controller

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luxfi/execore/metrics"
	"github.com/luxfi/execore/protocol"
)

// Metrics tracks per-block resource usage and transaction outcomes.
// Purely observational: nothing in the pipeline reads these values back
// to make a decision.
type Metrics struct {
	acceptedBlocks   prometheus.Counter
	revertedBlocks   prometheus.Counter
	transactions     prometheus.Counter
	revertedTxs      prometheus.Counter
	diskStorageUsed  prometheus.Counter
	networkBandwidth prometheus.Counter
	computeBandwidth prometheus.Counter
	blockHeight      prometheus.Gauge
	txLatency        metrics.Averager
}

// NewMetrics constructs and registers a Metrics against registerer.
func NewMetrics(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		acceptedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execore_accepted_blocks",
			Help: "Number of blocks applied successfully",
		}),
		revertedBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execore_reverted_blocks",
			Help: "Number of blocks that failed controller-level validation",
		}),
		transactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execore_transactions",
			Help: "Number of transactions applied",
		}),
		revertedTxs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execore_reverted_transactions",
			Help: "Number of transactions that reverted",
		}),
		diskStorageUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execore_disk_storage_charged_bytes",
			Help: "Disk storage charged to payers across accepted blocks",
		}),
		networkBandwidth: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execore_network_bandwidth_charged_bytes",
			Help: "Network bandwidth charged across accepted blocks",
		}),
		computeBandwidth: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "execore_compute_bandwidth_charged_ticks",
			Help: "Compute bandwidth charged across accepted blocks",
		}),
		blockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "execore_block_height",
			Help: "Height of the last block applied",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.acceptedBlocks, m.revertedBlocks, m.transactions, m.revertedTxs,
		m.diskStorageUsed, m.networkBandwidth, m.computeBandwidth, m.blockHeight,
	} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	txLatency, err := metrics.NewAverager(
		"execore_block_apply_duration_ns",
		"time (in ns) ApplyBlock took to complete",
		registerer,
	)
	if err != nil {
		return nil, err
	}
	m.txLatency = txLatency
	return m, nil
}

// observeBlock records a successfully applied block's receipt.
func (m *Metrics) observeBlock(receipt protocol.BlockReceipt) {
	m.acceptedBlocks.Inc()
	m.blockHeight.Set(float64(receipt.Height))
	m.diskStorageUsed.Add(float64(receipt.DiskStorageCharged))
	m.networkBandwidth.Add(float64(receipt.NetworkBandwidthCharged))
	m.computeBandwidth.Add(float64(receipt.ComputeBandwidthCharged))
	for _, tx := range receipt.TransactionReceipts {
		m.transactions.Inc()
		if tx.Reverted {
			m.revertedTxs.Inc()
		}
	}
}

func (m *Metrics) observeBlockRejected() {
	m.revertedBlocks.Inc()
}

// observeApplyDuration records ApplyBlock's wall-clock duration,
// whether the block was accepted or rejected.
func (m *Metrics) observeApplyDuration(d time.Duration) {
	m.txLatency.Observe(float64(d.Nanoseconds()))
}
