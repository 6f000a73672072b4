// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package runtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValueRoundTrip(t *testing.T) {
	require.Equal(t, int32(-1), I32(-1).AsI32())
	require.Equal(t, int64(-1), I64(-1).AsI64())
	require.Equal(t, float32(3.5), F32(3.5).AsF32())
	require.Equal(t, 3.5, F64(3.5).AsF64())
}

func TestValueTagsAreDistinct(t *testing.T) {
	require.Equal(t, ValueI32, I32(0).Tag)
	require.Equal(t, ValueI64, I64(0).Tag)
	require.Equal(t, ValueF32, F32(0).Tag)
	require.Equal(t, ValueF64, F64(0).Tag)
}
