// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/geth/common"
)

var (
	maverickAddr = common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")
	mavToken0    = common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")
	mavToken1    = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func TestMaverickPool_CalculateOutAmountMovesPriceTowardEquilibrium(t *testing.T) {
	reader := newFakeReader()
	sqrtPrice := new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	reader.slots[uniswapV2SlotHash(maverickSlotState)] = packSlot0(sqrtPrice)
	reader.slots[uniswapV2SlotHash(maverickSlotLiquidity)] = common.BigToHash(uint256.NewInt(1_000_000_000_000).ToBig())

	p := NewMaverickPool(maverickAddr, mavToken0, mavToken1, 2000, "maverick")

	res, err := p.CalculateOutAmount(reader, mavToken0, mavToken1, uint256.NewInt(1_000_000))
	require.NoError(t, err)
	require.True(t, res.Amount.Sign() > 0)
	require.True(t, res.Amount.Cmp(uint256.NewInt(1_000_000)) < 0)
}

func TestMaverickPool_CalculateOutAmountRejectsZeroLiquidity(t *testing.T) {
	reader := newFakeReader()
	sqrtPrice := new(uint256.Int).Lsh(uint256.NewInt(1), 96)
	reader.slots[uniswapV2SlotHash(maverickSlotState)] = packSlot0(sqrtPrice)

	p := NewMaverickPool(maverickAddr, mavToken0, mavToken1, 2000, "maverick")
	_, err := p.CalculateOutAmount(reader, mavToken0, mavToken1, uint256.NewInt(1000))
	require.Error(t, err)
}
