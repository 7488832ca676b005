// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/luxfi/backrun/types"
)

func TestPoolClassFilter_EmptyExpressionAdmitsEverything(t *testing.T) {
	f, err := NewPoolClassFilter("")
	require.NoError(t, err)

	enabled, err := f.Enabled(types.PoolClassCurve)
	require.NoError(t, err)
	require.True(t, enabled)
}

func TestPoolClassFilter_EvaluatesExpression(t *testing.T) {
	f, err := NewPoolClassFilter(`Class == "uniswap_v2" or Class == "uniswap_v3"`)
	require.NoError(t, err)

	enabled, err := f.Enabled(types.PoolClassUniswapV2)
	require.NoError(t, err)
	require.True(t, enabled)

	enabled, err = f.Enabled(types.PoolClassCurve)
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestNewPoolClassFilter_RejectsInvalidExpression(t *testing.T) {
	_, err := NewPoolClassFilter("not a valid expression (")
	require.Error(t, err)
}
