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

// fakeReader is a minimal types.StateReader backed by a plain map, for
// exercising pool simulation against hand-packed storage slots.
type fakeReader struct {
	slots map[common.Hash]common.Hash
}

func newFakeReader() *fakeReader { return &fakeReader{slots: make(map[common.Hash]common.Hash)} }

func (f *fakeReader) GetState(addr common.Address, slot common.Hash) (common.Hash, error) {
	return f.slots[slot], nil
}
func (f *fakeReader) GetBalance(addr common.Address) (*uint256.Int, error) { return uint256.NewInt(0), nil }
func (f *fakeReader) GetCode(addr common.Address) ([]byte, error)         { return nil, nil }

// packReserves builds the packed reserve0|reserve1|blockTimestampLast slot
// the reference UniswapV2Pair contract stores at slot 8.
func packReserves(r0, r1 uint64) common.Hash {
	packed := new(uint256.Int).SetUint64(r1)
	packed.Lsh(packed, 112)
	packed.Or(packed, new(uint256.Int).SetUint64(r0))
	b := packed.Bytes32()
	return common.Hash(b)
}

var (
	pairAddr = common.HexToAddress("0x5555555555555555555555555555555555555555")
	token0   = common.HexToAddress("0x6666666666666666666666666666666666666666")
	token1   = common.HexToAddress("0x7777777777777777777777777777777777777777")
)

func TestUniswapV2Pool_CalculateOutAmountMatchesReferenceFormula(t *testing.T) {
	reader := newFakeReader()
	reader.slots[uniswapV2SlotHash(uniswapV2SlotResv)] = packReserves(1_000_000, 1_000_000)

	p := NewUniswapV2Pool(pairAddr, token0, token1, "uniswap_v2")

	res, err := p.CalculateOutAmount(reader, token0, token1, uint256.NewInt(1000))
	require.NoError(t, err)
	// amountInWithFee = 997000; numerator = 997000*1000000; denominator = 1000000*1000+997000
	require.Equal(t, uint256.NewInt(996), res.Amount)
}

func TestUniswapV2Pool_CalculateInAmountIsApproxInverseOfOut(t *testing.T) {
	reader := newFakeReader()
	reader.slots[uniswapV2SlotHash(uniswapV2SlotResv)] = packReserves(1_000_000, 1_000_000)

	p := NewUniswapV2Pool(pairAddr, token0, token1, "uniswap_v2")

	out, err := p.CalculateOutAmount(reader, token0, token1, uint256.NewInt(10000))
	require.NoError(t, err)

	in, err := p.CalculateInAmount(reader, token0, token1, out.Amount)
	require.NoError(t, err)
	// Rounding favors the pool, so the recovered input is >= the original.
	require.True(t, in.Amount.Cmp(uint256.NewInt(10000)) >= 0)
}

func TestUniswapV2Pool_CalculateOutAmountRejectsEmptyReserves(t *testing.T) {
	reader := newFakeReader()
	p := NewUniswapV2Pool(pairAddr, token0, token1, "uniswap_v2")

	_, err := p.CalculateOutAmount(reader, token0, token1, uint256.NewInt(1000))
	require.Error(t, err)
	var swapErr *types.SwapError
	require.ErrorAs(t, err, &swapErr)
	require.Equal(t, types.SwapErrInsufficientLiquidity, swapErr.Msg)
}

func TestUniswapV2Pool_SwapDirectionsAndRequiredState(t *testing.T) {
	p := NewUniswapV2Pool(pairAddr, token0, token1, "uniswap_v2")
	dirs := p.SwapDirections()
	require.Len(t, dirs, 2)

	req := p.RequiredState()
	require.Len(t, req, 1)
	require.Equal(t, pairAddr, req[0].Address)
}

func TestUniswapV2Pool_EncoderPatchesCorrectOffsetPerDirection(t *testing.T) {
	p := NewUniswapV2Pool(pairAddr, token0, token1, "uniswap_v2")
	enc := p.Encoder()
	require.NotNil(t, enc)

	calldata, offset, err := enc.EncodeSwap(token0, token1, uint256.NewInt(42), pairAddr, nil)
	require.NoError(t, err)
	require.Equal(t, 36, offset, "zeroForOne writes amount1Out, the second word")
	require.Len(t, calldata, 4+4*32+32) // 4 head words plus the empty bytes arg's length word

	_, offset2, err := enc.EncodeSwap(token1, token0, uint256.NewInt(42), pairAddr, nil)
	require.NoError(t, err)
	require.Equal(t, 4, offset2, "oneForZero writes amount0Out, the first word")
}
