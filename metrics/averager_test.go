// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestAveragerReadBeforeObserveIsZero(t *testing.T) {
	a, err := NewAverager("test_metric", "test observations", prometheus.NewRegistry())
	require.NoError(t, err)
	require.Zero(t, a.Read())
}

func TestAveragerObserveUpdatesAverage(t *testing.T) {
	a, err := NewAverager("test_metric", "test observations", prometheus.NewRegistry())
	require.NoError(t, err)

	a.Observe(10)
	a.Observe(20)
	require.Equal(t, float64(15), a.Read())
}

func TestAveragerRegistersOneSummaryFamily(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewAverager("test_metric", "test observations", reg)
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	require.Equal(t, "test_metric", families[0].GetName())
}

func TestAveragerDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewAverager("test_metric", "test observations", reg)
	require.NoError(t, err)
	_, err = NewAverager("test_metric", "test observations", reg)
	require.Error(t, err)
}
