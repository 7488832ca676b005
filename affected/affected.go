// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package affected resolves a state diff to the set of registered pools it
// touches (C7, §4.7): the first stage of the backrun pipeline, run on every
// new block/pending-tx state update before the searcher (C8) walks
// SwapPaths.
package affected

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/luxfi/log"

	"github.com/luxfi/backrun/market"
	"github.com/luxfi/backrun/types"
)

var logger = log.New("component", "affected")

// Result is one entry of GetAffectedPools' output: a resolved pool and the
// directions admissible through it.
type Result struct {
	Pool       types.PoolID
	Directions []types.SwapDirection
}

// GetAffectedPools resolves stateUpdate to the registered pools it touches
// (§4.7). For each touched address it applies two rules in order:
//
//   - if address is itself a registered pool's contract address, every
//     PoolID registered at that address is included with its full
//     SwapDirections();
//   - else if address is a registered v4 pool manager, every touched
//     storage slot is looked up in the (manager, slot) -> PoolId index and
//     the resolved pool included.
//
// Duplicate pools are collapsed; the returned slice is ordered stably by
// pool id.
func GetAffectedPools(m *market.Market, stateUpdate types.GethStateUpdate) ([]Result, error) {
	// seenIDs is the membership gate (a set rather than a map[PoolID]bool,
	// since that's all it needs to answer); the directions each id resolved
	// to are tracked in a parallel map keyed the same way, since a set alone
	// can't carry a payload.
	seenIDs := mapset.NewThreadUnsafeSet[types.PoolID]()
	directions := make(map[types.PoolID][]types.SwapDirection)

	for address, update := range stateUpdate {
		if m.IsPool(address) {
			for _, wrapper := range m.PoolsAt(address) {
				id := wrapper.ID()
				if seenIDs.Contains(id) {
					continue
				}
				seenIDs.Add(id)
				directions[id] = wrapper.SwapDirections()
			}
			continue
		}

		if !m.IsManager(address) || update == nil {
			continue
		}
		for slot := range update.Storage {
			id, ok := m.ResolveManagerSlot(address, slot)
			if !ok {
				continue
			}
			if seenIDs.Contains(id) {
				continue
			}
			wrapper, ok := m.GetPool(id)
			if !ok {
				continue
			}
			seenIDs.Add(id)
			directions[id] = wrapper.SwapDirections()
		}
	}

	ids := seenIDs.ToSlice()
	types.SortPoolIDs(ids)

	out := make([]Result, 0, len(ids))
	for _, id := range ids {
		out = append(out, Result{Pool: id, Directions: directions[id]})
	}
	logger.Debug("affected: resolved pools from state diff", "touched", len(stateUpdate), "pools", len(out))
	return out, nil
}
