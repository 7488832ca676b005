// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

var (
	balancerAddr = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	balToken0    = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	balToken1    = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
)

func halfWad() *uint256.Int {
	return new(uint256.Int).Div(new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18)), uint256.NewInt(2))
}

func TestBalancerWeightedPool_CalculateOutAmountEqualWeightMatchesConstantProduct(t *testing.T) {
	reader := newFakeReader()
	reader.slots[uniswapV2SlotHash(balancerSlotBalance0)] = balanceHash(1_000_000)
	reader.slots[uniswapV2SlotHash(balancerSlotBalance1)] = balanceHash(1_000_000)

	w := halfWad()
	p := NewBalancerWeightedPool(balancerAddr, balToken0, balToken1, w, w, 3000, "balancer_weighted")

	res, err := p.CalculateOutAmount(reader, balToken0, balToken1, uint256.NewInt(1000))
	require.NoError(t, err)
	require.True(t, res.Amount.Sign() > 0)
	require.True(t, res.Amount.Cmp(uint256.NewInt(1000)) < 0)
}

func TestBalancerWeightedPool_CalculateInAmountRoundTrips(t *testing.T) {
	reader := newFakeReader()
	reader.slots[uniswapV2SlotHash(balancerSlotBalance0)] = balanceHash(1_000_000)
	reader.slots[uniswapV2SlotHash(balancerSlotBalance1)] = balanceHash(1_000_000)

	w := halfWad()
	p := NewBalancerWeightedPool(balancerAddr, balToken0, balToken1, w, w, 3000, "balancer_weighted")

	out, err := p.CalculateOutAmount(reader, balToken0, balToken1, uint256.NewInt(10000))
	require.NoError(t, err)

	in, err := p.CalculateInAmount(reader, balToken0, balToken1, out.Amount)
	require.NoError(t, err)
	require.True(t, in.Amount.Cmp(uint256.NewInt(10000)) >= 0)
}

func TestBalancerWeightedPool_UnequalWeightReportsPriceNotSet(t *testing.T) {
	reader := newFakeReader()
	reader.slots[uniswapV2SlotHash(balancerSlotBalance0)] = balanceHash(1_000_000)
	reader.slots[uniswapV2SlotHash(balancerSlotBalance1)] = balanceHash(1_000_000)

	w0 := new(uint256.Int).Mul(uint256.NewInt(8), new(uint256.Int).Div(halfWad(), uint256.NewInt(4)))
	w1 := new(uint256.Int).Sub(new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18)), w0)
	p := NewBalancerWeightedPool(balancerAddr, balToken0, balToken1, w0, w1, 3000, "balancer_weighted")

	_, err := p.CalculateOutAmount(reader, balToken0, balToken1, uint256.NewInt(1000))
	require.Error(t, err)
	var swapErr *types.SwapError
	require.ErrorAs(t, err, &swapErr)
	require.Equal(t, types.SwapErrPriceNotSet, swapErr.Msg)
}
