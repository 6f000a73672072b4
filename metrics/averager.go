// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package metrics provides the small observation helpers the
// controller's prometheus instrumentation needs beyond raw counters
// and gauges.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Averager tracks a running average of observed values.
type Averager interface {
	Observe(value float64)
	Read() float64
}

// averager leans on a prometheus summary for the bookkeeping: the
// summary already maintains a thread-safe sample count and sum, is
// scraped as a single metric family, and Read derives the average from
// the same state the scraper sees, so the two can never disagree.
type averager struct {
	summary prometheus.Summary
}

// NewAverager returns an Averager registered against reg under name.
func NewAverager(name, help string, reg prometheus.Registerer) (Averager, error) {
	summary := prometheus.NewSummary(prometheus.SummaryOpts{
		Name: name,
		Help: help,
	})
	if err := reg.Register(summary); err != nil {
		return nil, err
	}
	return &averager{summary: summary}, nil
}

// Observe adds a value to the average.
func (a *averager) Observe(value float64) {
	a.summary.Observe(value)
}

// Read returns the current average, zero before any observation.
func (a *averager) Read() float64 {
	var m dto.Metric
	if err := a.summary.Write(&m); err != nil {
		return 0
	}
	count := m.GetSummary().GetSampleCount()
	if count == 0 {
		return 0
	}
	return m.GetSummary().GetSampleSum() / float64(count)
}
