// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package types holds the shared data model for the backrun core: tokens,
// pools, swap paths/lines/steps, block-history entries, and the message
// taxonomy that flows between C1-C11.
package types

import (
	"math/big"
	"strings"
	"sync"

	"github.com/luxfi/geth/common"
)

// Basic tokens are allowed to terminate an arbitrage cycle. Symbols are
// matched case-insensitively against a chain's configured basic-token list;
// WETH is always basic regardless of configuration.
const (
	SymbolWETH = "WETH"
	SymbolUSDC = "USDC"
	SymbolUSDT = "USDT"
	SymbolDAI  = "DAI"
	SymbolWBTC = "WBTC"
)

// Token is a single ERC20 (or native-wrapped) asset known to the Market.
// Decimals and a symbol are optional at construction time — pools reference
// tokens by address before metadata is resolved — but calc_eth_value needs
// both decimals and a spot price to produce a usable answer.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8

	IsBasic bool
	IsLP    bool
	IsWETH  bool

	mu       sync.RWMutex
	ethPrice *big.Float // token units of ETH per one whole token, nil if unknown
}

// NewToken builds a Token with metadata resolved. Use NewTokenAddressOnly
// when only the address is known at discovery time.
func NewToken(addr common.Address, symbol string, decimals uint8) *Token {
	t := &Token{
		Address:  addr,
		Symbol:   symbol,
		Decimals: decimals,
	}
	t.IsWETH = strings.EqualFold(symbol, SymbolWETH)
	t.IsBasic = t.IsWETH || isBasicSymbol(symbol)
	return t
}

// NewTokenAddressOnly builds a Token whose symbol/decimals are not yet
// known; pool loaders fill them in once a metadata call resolves.
func NewTokenAddressOnly(addr common.Address) *Token {
	return &Token{Address: addr}
}

func isBasicSymbol(symbol string) bool {
	switch strings.ToUpper(symbol) {
	case SymbolUSDC, SymbolUSDT, SymbolDAI, SymbolWBTC:
		return true
	default:
		return false
	}
}

// SetMetadata fills in symbol/decimals discovered after construction and
// recomputes IsBasic/IsWETH.
func (t *Token) SetMetadata(symbol string, decimals uint8) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Symbol = symbol
	t.Decimals = decimals
	t.IsWETH = strings.EqualFold(symbol, SymbolWETH)
	t.IsBasic = t.IsWETH || isBasicSymbol(symbol)
}

// SetEthPrice records the token's current spot price, denominated in ETH
// per one whole token (1e18 token units == price * 1e18 wei for 18-decimal
// tokens; callers adjust for Decimals).
func (t *Token) SetEthPrice(price *big.Float) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ethPrice = price
}

// EthPrice returns the last recorded spot price, or nil if never set.
func (t *Token) EthPrice() *big.Float {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.ethPrice == nil {
		return nil
	}
	p := new(big.Float).Copy(t.ethPrice)
	return p
}

// CalcEthValue converts an amount of this token into an equivalent amount of
// ETH (both in base units), or returns nil if no price has been recorded.
func (t *Token) CalcEthValue(amount *big.Int) *big.Int {
	price := t.EthPrice()
	if price == nil || amount == nil {
		return nil
	}
	amt := new(big.Float).SetInt(amount)
	out := new(big.Float).Mul(amt, price)
	result, _ := out.Int(nil)
	return result
}

// CalcTokenValueFromEth is the inverse of CalcEthValue: given an amount of
// ETH, return the equivalent amount of this token, or nil if no price is
// known.
func (t *Token) CalcTokenValueFromEth(ethAmount *big.Int) *big.Int {
	price := t.EthPrice()
	if price == nil || ethAmount == nil || price.Sign() == 0 {
		return nil
	}
	amt := new(big.Float).SetInt(ethAmount)
	out := new(big.Float).Quo(amt, price)
	result, _ := out.Int(nil)
	return result
}

// ToFloat renders a base-unit amount as a float scaled by Decimals, for
// logging and health-event payloads.
func (t *Token) ToFloat(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(t.Decimals)), nil))
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}
