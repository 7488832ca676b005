// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoder

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"
)

var uniswapV2SwapSelector = selector("swap(uint256,uint256,address,bytes)")

// UniswapV2Encoder builds calldata for the pair's own swap() entrypoint.
// UniswapV2 pools are "transfer then call": the multicaller transfers the
// input token to the pair before invoking swap, so the only amount this
// call carries is the required output — patching it is what lets the
// searcher defer its optimized amount until run time (§4.9 stack
// semantics), grounded on the teacher pack's
// pool_abi_encoder/pools/uniswapv2.rs zero-for-one branch and offsets.
type UniswapV2Encoder struct {
	Token0 common.Address
}

// NewUniswapV2Encoder builds an encoder for a pair whose token0 is token0
// (used to decide the zeroForOne branch, mirroring the pair's own
// token ordering rather than recomputing it from address comparison —
// loaders resolve token0 once at discovery time).
func NewUniswapV2Encoder(token0 common.Address) *UniswapV2Encoder {
	return &UniswapV2Encoder{Token0: token0}
}

func (e *UniswapV2Encoder) zeroForOne(from common.Address) bool {
	return from == e.Token0
}

// EncodeSwap returns calldata for pair.swap(amount0Out, amount1Out, to,
// data), with amountOut carried in whichever of amount0Out/amount1Out
// corresponds to the output token, and amountInOffset pointing at that
// same word (there is no separate input-amount word in this call; the
// caller already transferred the input token in).
func (e *UniswapV2Encoder) EncodeSwap(from, to common.Address, amountIn *uint256.Int, recipient common.Address, payload []byte) ([]byte, int, error) {
	zeroForOne := e.zeroForOne(from)

	amount0Out := new(uint256.Int)
	amount1Out := new(uint256.Int)
	var amountOffset int
	if zeroForOne {
		amount1Out.Set(amountIn)
		amountOffset = 4 + 32 // amount1Out is the second word
	} else {
		amount0Out.Set(amountIn)
		amountOffset = 4 // amount0Out is the first word
	}

	buf := make([]byte, 0, 4+4*32+len(payload)+32)
	buf = append(buf, uniswapV2SwapSelector[:]...)
	w0 := word32(amount0Out)
	w1 := word32(amount1Out)
	buf = append(buf, w0[:]...)
	buf = append(buf, w1[:]...)
	toWord := addressWord(recipient)
	buf = append(buf, toWord[:]...)
	dataOffset := uint64Word(4 * 32) // bytes arg starts right after the four fixed words
	buf = append(buf, dataOffset[:]...)
	buf = appendDynamicBytes(buf, payload)

	return buf, amountOffset, nil
}
