// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package market

import (
	"sync"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/backrun/types"
)

// SwapPaths is the indexed set of discovered cycles (§4.4): deduplicated
// by structural hash, and indexed by every pool id a path touches so C7/C8
// can look up "which paths does this state diff affect" in one map read.
type SwapPaths struct {
	mu sync.RWMutex

	all    []*types.SwapPath
	seen   map[[32]byte]bool
	byPool map[types.PoolID][]*types.SwapPath
}

func newSwapPaths() *SwapPaths {
	return &SwapPaths{
		seen:   make(map[[32]byte]bool),
		byPool: make(map[types.PoolID][]*types.SwapPath),
	}
}

// All returns every indexed path.
func (s *SwapPaths) All() []*types.SwapPath {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.SwapPath, len(s.all))
	copy(out, s.all)
	return out
}

// PathsTouching returns every indexed path using at least one of pools,
// deduplicated — the query surface C8 uses after C7 resolves a state diff
// to an affected-pool set (§4.4).
func (s *SwapPaths) PathsTouching(pools []types.PoolID) []*types.SwapPath {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dedup := make(map[[32]byte]bool)
	var out []*types.SwapPath
	for _, id := range pools {
		for _, p := range s.byPool[id] {
			hash := p.StructuralHash()
			if dedup[hash] {
				continue
			}
			dedup[hash] = true
			out = append(out, p)
		}
	}
	return out
}

// add registers path if its structural hash hasn't been seen before,
// indexing it by every pool it touches. Returns true if it was newly
// added (§4.4: "path addition is idempotent").
func (s *SwapPaths) add(path *types.SwapPath) bool {
	hash := path.StructuralHash()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[hash] {
		return false
	}
	s.seen[hash] = true
	s.all = append(s.all, path)
	for _, leg := range path.Legs {
		id := leg.Pool.ID()
		s.byPool[id] = append(s.byPool[id], path)
	}
	return true
}

// extendForPool discovers every new cycle that uses pool (registered
// under id) and starts/ends at one of basics, up to hopBudget legs
// (§4.4). It returns how many new paths were added.
func (s *SwapPaths) extendForPool(m *Market, pool types.PoolWrapper, id types.PoolID, basics []common.Address, hopBudget int) int {
	added := 0
	for _, basic := range basics {
		added += s.searchCyclesThroughPool(m, basic, id, hopBudget)
	}
	return added
}

// searchCyclesThroughPool runs a bounded DFS from start over the Market's
// token adjacency, requiring the walk to pass through requiredPool
// exactly once and to return to start within hopBudget legs, refusing to
// revisit any pool along the way (§4.4). Every closed, valid cycle found
// is added to the index.
func (s *SwapPaths) searchCyclesThroughPool(m *Market, start common.Address, requiredPool types.PoolID, hopBudget int) int {
	added := 0
	used := make(map[types.PoolID]bool, hopBudget)
	legs := make([]types.SwapPathLeg, 0, hopBudget)

	var dfs func(current common.Address, usedRequired bool)
	dfs = func(current common.Address, usedRequired bool) {
		if len(legs) >= 2 && current == start && usedRequired {
			path := &types.SwapPath{Legs: append([]types.SwapPathLeg{}, legs...)}
			if path.Valid() == nil && s.add(path) {
				added++
			}
			return
		}
		if len(legs) >= hopBudget {
			return
		}
		for _, edge := range m.adjacency(current) {
			pid := edge.pool.ID()
			if used[pid] {
				continue
			}
			used[pid] = true
			legs = append(legs, types.SwapPathLeg{Pool: edge.pool, TokenIn: edge.from, TokenOut: edge.to})
			dfs(edge.to, usedRequired || pid == requiredPool)
			legs = legs[:len(legs)-1]
			delete(used, pid)
		}
	}
	dfs(start, false)
	return added
}
