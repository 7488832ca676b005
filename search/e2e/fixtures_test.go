// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package e2e

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/blockhistory"
	"github.com/luxfi/backrun/types"
)

// fakeDB is an in-memory search.StateDB: plain maps for storage/balance,
// the same shape search/searcher_test.go's fakeDB uses. Unlike that one,
// Clone copies every per-address slot map, so a diff applied to a clone
// (as the reorg scenario does) never reaches the snapshot it came from.
type fakeDB struct {
	storage map[common.Address]map[common.Hash]common.Hash
	balance map[common.Address]*uint256.Int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		storage: make(map[common.Address]map[common.Hash]common.Hash),
		balance: make(map[common.Address]*uint256.Int),
	}
}

func (f *fakeDB) GetState(addr common.Address, slot common.Hash) (common.Hash, error) {
	return f.storage[addr][slot], nil
}

func (f *fakeDB) GetBalance(addr common.Address) (*uint256.Int, error) {
	if b, ok := f.balance[addr]; ok {
		return b, nil
	}
	return uint256.NewInt(0), nil
}

func (f *fakeDB) GetCode(addr common.Address) ([]byte, error) { return nil, nil }

func (f *fakeDB) Clone() blockhistory.SnapshotDB {
	clone := newFakeDB()
	for addr, slots := range f.storage {
		cp := make(map[common.Hash]common.Hash, len(slots))
		for k, v := range slots {
			cp[k] = v
		}
		clone.storage[addr] = cp
	}
	for addr, bal := range f.balance {
		clone.balance[addr] = bal
	}
	return clone
}

func (f *fakeDB) ApplyStateUpdate(diff types.GethStateUpdate) error {
	for addr, update := range diff {
		if update == nil {
			continue
		}
		if update.Balance != nil {
			f.balance[addr] = update.Balance
		}
		if update.Storage != nil {
			slots, ok := f.storage[addr]
			if !ok {
				slots = make(map[common.Hash]common.Hash)
				f.storage[addr] = slots
			}
			for slot, v := range update.Storage {
				slots[slot] = v
			}
		}
	}
	return nil
}

func slotHash(index uint64) common.Hash {
	var h common.Hash
	h[31] = byte(index)
	return h
}

// setV2Reserves packs whole-token reserve counts into the reference
// UniswapV2Pair's slot-8 layout (reserve0 | reserve1<<112).
func (f *fakeDB) setV2Reserves(addr common.Address, r0Whole, r1Whole uint64) {
	wad := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18))
	r0 := new(uint256.Int).Mul(uint256.NewInt(r0Whole), wad)
	r1 := new(uint256.Int).Mul(uint256.NewInt(r1Whole), wad)
	packed := new(uint256.Int).Lsh(r1, 112)
	packed.Or(packed, r0)
	f.setSlot(addr, 8, packed)
}

// setV2ReservesScaled is setV2Reserves but lets the caller pick the
// decimals each side is scaled to (USDC has 6, not 18).
func (f *fakeDB) setV2ReservesScaled(addr common.Address, r0Whole uint64, decimals0 uint8, r1Whole uint64, decimals1 uint8) {
	scale := func(whole uint64, decimals uint8) *uint256.Int {
		return new(uint256.Int).Mul(uint256.NewInt(whole), new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals))))
	}
	r0 := scale(r0Whole, decimals0)
	r1 := scale(r1Whole, decimals1)
	packed := new(uint256.Int).Lsh(r1, 112)
	packed.Or(packed, r0)
	f.setSlot(addr, 8, packed)
}

// setV3SlotZero packs sqrtPriceX96 into slot0 (low 160 bits) and sets the
// liquidity slot, the layout pool.TickProvider reads.
func (f *fakeDB) setV3SlotZero(addr common.Address, sqrtPriceX96, liquidity *uint256.Int) {
	f.setSlot(addr, 0, sqrtPriceX96)
	f.setSlot(addr, 4, liquidity)
}

func (f *fakeDB) setSlot(addr common.Address, index uint64, value *uint256.Int) {
	slots, ok := f.storage[addr]
	if !ok {
		slots = make(map[common.Hash]common.Hash)
		f.storage[addr] = slots
	}
	slots[slotHash(index)] = common.Hash(value.Bytes32())
}

type staticPriceOracle struct {
	prices map[common.Address]*uint256.Int
}

func (s staticPriceOracle) PriceWeiPerToken(token common.Address) (*uint256.Int, bool) {
	v, ok := s.prices[token]
	return v, ok
}

func wad(whole uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(whole), new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18)))
}

// sqrtPriceX96For returns the Q64.96 sqrt price for a token1/token0 ratio
// of priceNum/priceDen: sqrtPriceX96 = sqrt(price) * 2^96, computed as
// isqrt(priceNum * 2^192 / priceDen) to avoid floating point. Callers
// normalize both tokens to 18 decimals, so the raw ratio already equals
// the human price ratio.
func sqrtPriceX96For(priceNum, priceDen uint64) *uint256.Int {
	num := new(uint256.Int).Mul(uint256.NewInt(priceNum), new(uint256.Int).Lsh(uint256.NewInt(1), 192))
	num.Div(num, uint256.NewInt(priceDen))
	return isqrt(num)
}

func isqrt(n *uint256.Int) *uint256.Int {
	if n.IsZero() {
		return uint256.NewInt(0)
	}
	x := new(uint256.Int).Set(n)
	y := new(uint256.Int).Add(x, uint256.NewInt(1))
	y.Rsh(y, 1)
	for y.Cmp(x) < 0 {
		x.Set(y)
		y.Add(x, new(uint256.Int).Div(n, x))
		y.Rsh(y, 1)
	}
	return x
}
