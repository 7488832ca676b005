// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoder

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"
)

// uniswapV3SwapSelector is the pool contract's own direct swap entrypoint:
// swap(address recipient, bool zeroForOne, int256 amountSpecified, uint160
// sqrtPriceLimitX96, bytes data). A positive amountSpecified is an exact
// input; the pool computes the output itself, so there is no positionally
// patchable amount-out word the way UniswapV2's pair contract has one.
var uniswapV3SwapSelector = selector("swap(address,bool,int256,uint160,bytes)")

// UniswapV3Encoder encodes calldata for a pool's own swap entrypoint.
// Token0 decides zeroForOne the same way UniswapV2Encoder does.
type UniswapV3Encoder struct {
	Token0            common.Address
	SqrtPriceLimitX96 *uint256.Int // 0 lets the caller pass MIN/MAX_SQRT_RATIO by convention
}

func NewUniswapV3Encoder(token0 common.Address) *UniswapV3Encoder {
	return &UniswapV3Encoder{Token0: token0}
}

func (e *UniswapV3Encoder) zeroForOne(from common.Address) bool {
	return from == e.Token0
}

// EncodeSwap writes amountSpecified as the single patchable exact-input
// word (offset 0x44, the third head word after recipient/zeroForOne); the
// pool reports the realized output itself, so amountInOffset is the only
// thing the caller can patch before dispatch.
func (e *UniswapV3Encoder) EncodeSwap(from, to common.Address, amountIn *uint256.Int, recipient common.Address, payload []byte) ([]byte, int, error) {
	limit := e.SqrtPriceLimitX96
	if limit == nil {
		limit = uint256.NewInt(0)
	}

	buf := make([]byte, 0, 4+5*32+len(payload)+32)
	buf = append(buf, uniswapV3SwapSelector[:]...)

	recipientWord := addressWord(recipient)
	buf = append(buf, recipientWord[:]...)

	zeroForOneWord := word32(uint256.NewInt(0))
	if e.zeroForOne(from) {
		zeroForOneWord = word32(uint256.NewInt(1))
	}
	buf = append(buf, zeroForOneWord[:]...)

	amountOffset := len(buf)
	amountWord := word32(amountIn)
	buf = append(buf, amountWord[:]...)

	limitWord := word32(limit)
	buf = append(buf, limitWord[:]...)

	dataOffset := uint64Word(5 * 32)
	buf = append(buf, dataOffset[:]...)
	buf = appendDynamicBytes(buf, payload)

	return buf, amountOffset, nil
}
