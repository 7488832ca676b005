// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package encoder

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

// transferTipsMinBalanceWETHSelector/transferTipsMinBalanceSelector are the
// multicaller's own sweep entrypoints (original's IMultiCaller ABI,
// crates/defi/abi/src/multicaller.rs): transfer everything above
// min_balance out to owner, in WETH or in an arbitrary ERC20 respectively.
var (
	transferTipsMinBalanceWETHSelector = selector("transferTipsMinBalanceWETH(uint256,uint256,address)")
	transferTipsMinBalanceSelector     = selector("transferTipsMinBalance(address,uint256,uint256,address)")
)

// tipsShare returns profit * tipsPct / 100, the §4.9 tip-split formula.
func tipsShare(profit *uint256.Int, tipsPct uint32) *uint256.Int {
	if profit == nil || tipsPct == 0 {
		return uint256.NewInt(0)
	}
	product := new(uint256.Int).Mul(profit, uint256.NewInt(uint64(tipsPct)))
	return product.Div(product, uint256.NewInt(100))
}

// EncodeTips computes the WETH-denominated tip share of profit and encodes
// the multicaller's transferTipsMinBalanceWETH call. Per §4.9's Open
// Question resolution: a no-op (nil, nil, nil) when profit < gasCost, since
// a backrun that doesn't clear its own gas has nothing left to tip from.
// minBalance is the caller-supplied floor (ethBalance): never sweep the
// contract's WETH balance below what it held before this call, so the
// multicaller keeps working capital for the next bundle.
func EncodeTips(weth common.Address, profit *uint256.Int, tipsPct uint32, gasCost *uint256.Int, owner common.Address, ethBalance *uint256.Int) (*types.TipEntry, []byte, error) {
	if profit == nil || gasCost == nil {
		return nil, nil, nil
	}
	if profit.Cmp(gasCost) < 0 {
		return nil, nil, nil
	}
	tips := tipsShare(profit, tipsPct)
	if tips.IsZero() {
		return nil, nil, nil
	}
	minBalance := ethBalance
	if minBalance == nil {
		minBalance = uint256.NewInt(0)
	}
	calldata := encodeTransferTipsMinBalanceWETH(minBalance, tips, owner)
	entry := &types.TipEntry{Token: weth, MinBalance: minBalance, Tips: tips}
	return entry, calldata, nil
}

// EncodeTokenTips is EncodeTips' non-WETH sibling: the backrun's head token
// is some other ERC20, so the sweep targets that token directly via
// transferTipsMinBalance(token, ...) instead of the WETH-specific
// entrypoint. Same no-op rule as EncodeTips.
func EncodeTokenTips(token common.Address, profit *uint256.Int, tipsPct uint32, gasCost *uint256.Int, owner common.Address, tokenBalance *uint256.Int) (*types.TipEntry, []byte, error) {
	if profit == nil || gasCost == nil {
		return nil, nil, nil
	}
	if profit.Cmp(gasCost) < 0 {
		return nil, nil, nil
	}
	tips := tipsShare(profit, tipsPct)
	if tips.IsZero() {
		return nil, nil, nil
	}
	minBalance := tokenBalance
	if minBalance == nil {
		minBalance = uint256.NewInt(0)
	}
	calldata := encodeTransferTipsMinBalance(token, minBalance, tips, owner)
	entry := &types.TipEntry{Token: token, MinBalance: minBalance, Tips: tips}
	return entry, calldata, nil
}

func encodeTransferTipsMinBalanceWETH(minBalance, tips *uint256.Int, owner common.Address) []byte {
	buf := make([]byte, 0, 4+3*32)
	buf = append(buf, transferTipsMinBalanceWETHSelector[:]...)
	minBalanceWord := word32(minBalance)
	tipsWord := word32(tips)
	ownerWord := addressWord(owner)
	buf = append(buf, minBalanceWord[:]...)
	buf = append(buf, tipsWord[:]...)
	buf = append(buf, ownerWord[:]...)
	return buf
}

func encodeTransferTipsMinBalance(token common.Address, minBalance, tips *uint256.Int, owner common.Address) []byte {
	buf := make([]byte, 0, 4+4*32)
	buf = append(buf, transferTipsMinBalanceSelector[:]...)
	tokenWord := addressWord(token)
	minBalanceWord := word32(minBalance)
	tipsWord := word32(tips)
	ownerWord := addressWord(owner)
	buf = append(buf, tokenWord[:]...)
	buf = append(buf, minBalanceWord[:]...)
	buf = append(buf, tipsWord[:]...)
	buf = append(buf, ownerWord[:]...)
	return buf
}
