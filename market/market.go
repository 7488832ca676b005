// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package market holds the token/pool registry and swap-path index (C4,
// §4.4): the in-memory graph C7/C8 walk to find and optimise arbitrage
// cycles. A Market is written to by pool discovery (C6) and read by the
// affected-pool detector (C7) and the searcher (C8).
package market

import (
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/backrun/types"
)

var logger = log.New("component", "market")

// DefaultHopBudget bounds how many legs a discovered swap path may have
// (§4.4: "bounded by a configurable hop budget (typically 3)").
const DefaultHopBudget = 3

type directionEdge struct {
	pool types.PoolWrapper
	from common.Address
	to   common.Address
}

// Market indexes tokens by address, pools by PoolID and by address, and
// for each token the list of (pool, direction) edges leaving it, plus the
// SwapPaths built from that adjacency.
type Market struct {
	mu sync.RWMutex

	hopBudget int

	tokens map[common.Address]*types.Token

	pools          map[types.PoolID]types.PoolWrapper
	poolsByAddress map[common.Address][]types.PoolID

	// directions indexes every admissible (pool, from, to) edge by its
	// "from" token, the adjacency C4's path enumeration walks.
	directions map[common.Address][]directionEdge

	// managerSlots resolves a Uniswap v4-style pool manager's touched
	// storage slot to the PoolID it belongs to (§4.7 rule b): a manager is
	// a single contract address hosting many hash-keyed pools, so a state
	// diff touching the manager's address can't be resolved to a pool by
	// address alone.
	managerSlots map[common.Address]map[common.Hash]types.PoolID

	// inert marks (pool, direction) edges the health monitor has
	// quarantined after repeated swap-error thresholds (§4.11); the
	// searcher skips any path leg that touches one.
	inert map[types.PoolID]map[types.SwapDirection]struct{}

	paths *SwapPaths
}

// New builds an empty Market with the given hop budget (0 selects
// DefaultHopBudget).
func New(hopBudget int) *Market {
	if hopBudget <= 0 {
		hopBudget = DefaultHopBudget
	}
	return &Market{
		hopBudget:      hopBudget,
		tokens:         make(map[common.Address]*types.Token),
		pools:          make(map[types.PoolID]types.PoolWrapper),
		poolsByAddress: make(map[common.Address][]types.PoolID),
		directions:     make(map[common.Address][]directionEdge),
		managerSlots:   make(map[common.Address]map[common.Hash]types.PoolID),
		inert:          make(map[types.PoolID]map[types.SwapDirection]struct{}),
		paths:          newSwapPaths(),
	}
}

// SetDirectionInert quarantines a (pool, direction) edge: the searcher
// will no longer consider any path leg that crosses it, until the pool
// recovers and calls ClearDirectionInert. Implements §4.11's "mark the
// direction inert in Market".
func (m *Market) SetDirectionInert(pool types.PoolID, dir types.SwapDirection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.inert[pool]
	if !ok {
		set = make(map[types.SwapDirection]struct{})
		m.inert[pool] = set
	}
	set[dir] = struct{}{}
}

// ClearDirectionInert lifts a prior quarantine, e.g. once fresh pool
// state shows the direction simulating cleanly again.
func (m *Market) ClearDirectionInert(pool types.PoolID, dir types.SwapDirection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.inert[pool], dir)
}

// IsDirectionInert reports whether pool's dir edge is currently
// quarantined.
func (m *Market) IsDirectionInert(pool types.PoolID, dir types.SwapDirection) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.inert[pool][dir]
	return ok
}

// AddToken registers a token, replacing any existing entry for the same
// address. Pool discovery calls this with fully-populated metadata;
// AddPool itself stores an address-only placeholder for tokens it has not
// seen before, so a later AddToken call always wins.
func (m *Market) AddToken(token *types.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token.Address] = token
}

// GetToken returns the registered token for address, if any.
func (m *Market) GetToken(address common.Address) (*types.Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tokens[address]
	return t, ok
}

// GetPool returns the registered pool for id, if any.
func (m *Market) GetPool(id types.PoolID) (types.PoolWrapper, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pools[id]
	return p, ok
}

// IsPool reports whether address is a registered pool's contract address
// (§4.7: the affected-pool detector's first filter on a state diff).
func (m *Market) IsPool(address common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.poolsByAddress[address]
	return ok
}

// PoolsAt returns every registered pool whose contract lives at address
// (a Uniswap v4-style singleton can host many PoolIDs at one address).
func (m *Market) PoolsAt(address common.Address) []types.PoolWrapper {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.poolsByAddress[address]
	out := make([]types.PoolWrapper, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.pools[id])
	}
	return out
}

// RegisterManagerSlot records that a touched storage slot on a v4 pool
// manager's address belongs to poolID, populating the (manager, slot) ->
// PoolId index §4.7 rule (b) resolves against. Pool loaders call this once
// per slot a discovered v4 pool's state occupies in its manager.
func (m *Market) RegisterManagerSlot(manager common.Address, slot common.Hash, poolID types.PoolID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots, ok := m.managerSlots[manager]
	if !ok {
		slots = make(map[common.Hash]types.PoolID)
		m.managerSlots[manager] = slots
	}
	slots[slot] = poolID
}

// IsManager reports whether address has any registered manager slots.
func (m *Market) IsManager(address common.Address) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.managerSlots[address]
	return ok
}

// ResolveManagerSlot looks up the pool a touched (manager, slot) pair
// belongs to (§4.7 rule b).
func (m *Market) ResolveManagerSlot(manager common.Address, slot common.Hash) (types.PoolID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slots, ok := m.managerSlots[manager]
	if !ok {
		return types.PoolID{}, false
	}
	id, ok := slots[slot]
	return id, ok
}

// AddPool registers pool and its admissible swap directions, then extends
// the SwapPaths index with any new cycles the pool participates in
// (§4.4). Re-adding an already-registered pool is a no-op.
func (m *Market) AddPool(pool types.Pool) error {
	id := pool.ID()

	m.mu.Lock()
	if _, exists := m.pools[id]; exists {
		m.mu.Unlock()
		return nil
	}

	wrapper := types.NewPoolWrapper(pool)
	m.pools[id] = wrapper
	m.poolsByAddress[pool.Address()] = append(m.poolsByAddress[pool.Address()], id)

	directions := pool.SwapDirections()
	for _, d := range directions {
		if _, ok := m.tokens[d.From]; !ok {
			m.tokens[d.From] = types.NewTokenAddressOnly(d.From)
		}
		if _, ok := m.tokens[d.To]; !ok {
			m.tokens[d.To] = types.NewTokenAddressOnly(d.To)
		}
		m.directions[d.From] = append(m.directions[d.From], directionEdge{pool: wrapper, from: d.From, to: d.To})
	}
	basics := m.basicTokensLocked()
	m.mu.Unlock()

	added := m.paths.extendForPool(m, wrapper, id, basics, m.hopBudget)
	logger.Debug("market: pool added", "pool", id, "protocol", pool.Protocol(), "newPaths", added)
	return nil
}

func (m *Market) basicTokensLocked() []common.Address {
	var basics []common.Address
	for addr, tok := range m.tokens {
		if tok.IsBasic {
			basics = append(basics, addr)
		}
	}
	return basics
}

// adjacency returns a snapshot of the directed edges leaving token,
// safe to read without holding Market's lock afterwards.
func (m *Market) adjacency(token common.Address) []directionEdge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	edges := m.directions[token]
	out := make([]directionEdge, len(edges))
	copy(out, edges)
	return out
}

// Paths returns the Market's SwapPaths index.
func (m *Market) Paths() *SwapPaths {
	return m.paths
}

func (m *Market) String() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("Market{tokens=%d pools=%d paths=%d}", len(m.tokens), len(m.pools), len(m.paths.All()))
}
