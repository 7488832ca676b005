// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package pool

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

// TickProvider is the concentrated-liquidity read surface both UniswapV3
// and Maverick pools simulate against: current price and the liquidity
// available around it, sourced from the db so a simulation replayed in a
// cloned MarketState sees exactly the state the clone was taken from
// (§4.6: "use a tick-provider abstraction that reads slots from the
// db"). Maverick's bins are modeled as a single active range here rather
// than a bin-sliding walk; see DESIGN.md.
type TickProvider interface {
	// SqrtPriceX96AndLiquidity returns the pool's current sqrt-price
	// (Q64.96) and the liquidity active at that price.
	SqrtPriceX96AndLiquidity(db types.StateReader) (sqrtPriceX96, liquidity *uint256.Int, err error)
}

// slot0TickProvider reads a Uniswap V3-shaped slot0 (sqrtPriceX96 in the
// low 160 bits) and a separate liquidity slot, the reference contract's
// actual layout (slot0 is storage slot 0; liquidity is storage slot 4 in
// the deployed implementation).
type slot0TickProvider struct {
	address    common.Address
	slot0Index uint64
	liqIndex   uint64
}

const (
	uniswapV3SlotSlot0     = 0
	uniswapV3SlotLiquidity = 4
)

func newSlot0TickProvider(address common.Address) *slot0TickProvider {
	return &slot0TickProvider{address: address, slot0Index: uniswapV3SlotSlot0, liqIndex: uniswapV3SlotLiquidity}
}

var mask160 = func() *uint256.Int {
	m := new(uint256.Int).SetAllOne()
	m.Rsh(m, 256-160)
	return m
}()

func (t *slot0TickProvider) SqrtPriceX96AndLiquidity(db types.StateReader) (*uint256.Int, *uint256.Int, error) {
	slot0, err := db.GetState(t.address, uniswapV2SlotHash(t.slot0Index))
	if err != nil {
		return nil, nil, fmt.Errorf("tickprovider: reading slot0: %w", err)
	}
	liqSlot, err := db.GetState(t.address, uniswapV2SlotHash(t.liqIndex))
	if err != nil {
		return nil, nil, fmt.Errorf("tickprovider: reading liquidity: %w", err)
	}
	sqrtPriceX96 := new(uint256.Int).And(new(uint256.Int).SetBytes(slot0[:]), mask160)
	liquidity := new(uint256.Int).SetBytes(liqSlot[:])
	return sqrtPriceX96, liquidity, nil
}
