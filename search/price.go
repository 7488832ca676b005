// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package search is the arbitrage searcher (C8, §4.8): turns a resolved
// StateUpdateEvent into profit-optimised SwapLines by walking every
// candidate SwapPath the event's affected pools touch.
package search

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/utils"
)

// wad is the fixed-point base prices are expressed in (1e18), matching
// how on-chain oracles and most ERC-20s quote a per-token rate.
var wad = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))

// PriceOracle reports a token's price in wei per 1e18 units of the token
// (a WAD-scaled wei rate), the minimum §4.8 needs to convert the 0.01 ETH
// starting probe into a path's head token and to price gas cost back into
// head-token terms for the profit comparison.
type PriceOracle interface {
	PriceWeiPerToken(token common.Address) (*uint256.Int, bool)
}

// CachedPriceOracle wraps an underlying oracle with the generic LRU cache
// the teacher's utils package already provides (utils.Cacher), the same
// "cached token price" §4.8 names explicitly, rather than re-querying the
// underlying source (an on-chain view call or an off-chain feed) on every
// path optimisation.
type CachedPriceOracle struct {
	underlying PriceOracle
	cache      utils.Cacher[common.Address, *uint256.Int]
}

func NewCachedPriceOracle(underlying PriceOracle, capacity int) *CachedPriceOracle {
	return &CachedPriceOracle{underlying: underlying, cache: utils.NewLRUCache[common.Address, *uint256.Int](capacity)}
}

func (c *CachedPriceOracle) PriceWeiPerToken(token common.Address) (*uint256.Int, bool) {
	if price, ok := c.cache.Get(token); ok {
		return price, true
	}
	price, ok := c.underlying.PriceWeiPerToken(token)
	if !ok {
		return nil, false
	}
	c.cache.Put(token, price)
	return price, true
}

// weiToToken converts an ETH amount (wei) into the equivalent amount of
// token, given token's wei-per-1e18-units price.
func weiToToken(weiAmount, priceWeiPerToken *uint256.Int) (*uint256.Int, bool) {
	if priceWeiPerToken == nil || priceWeiPerToken.IsZero() {
		return nil, false
	}
	out, overflow := new(uint256.Int).MulDivOverflow(weiAmount, wad, priceWeiPerToken)
	if overflow {
		return nil, false
	}
	return out, true
}

// tokenToWei is weiToToken's inverse: it converts a token amount into wei
// at the same wei-per-1e18-units price.
func tokenToWei(tokenAmount, priceWeiPerToken *uint256.Int) (*uint256.Int, bool) {
	if priceWeiPerToken == nil {
		return nil, false
	}
	out, overflow := new(uint256.Int).MulDivOverflow(tokenAmount, priceWeiPerToken, wad)
	if overflow {
		return nil, false
	}
	return out, true
}
