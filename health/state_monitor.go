// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package health

import (
	"fmt"

	"github.com/luxfi/metric"

	"github.com/luxfi/backrun/types"
)

// StateDivergenceMonitor compares the state diff a searched candidate was
// simulated against to the block's actual committed diff, surfacing any
// touched slot whose value diverged (§4.11: "when a freshly committed
// block's state_update touches slots that differ from the simulator's
// predicted commit, emit a divergence event").
type StateDivergenceMonitor struct {
	divergences metric.Counter
}

func NewStateDivergenceMonitor() *StateDivergenceMonitor {
	return &StateDivergenceMonitor{
		divergences: metric.NewCounter(metric.CounterOpts{
			Name: "health/state_divergences",
			Help: "committed state slots that diverged from the simulator's predicted value",
		}),
	}
}

// Compare checks every account/slot touched in predicted against actual,
// the block's real post-state diff. It returns nil if everything the
// simulator relied on matches; otherwise a HealthStateDivergence event
// naming the first diverging slot, with the total mismatch count in
// Detail.
func (m *StateDivergenceMonitor) Compare(predicted, actual types.GethStateUpdate) *types.HealthEvent {
	var mismatches int
	var firstAddr, firstSlot string

	for addr, predictedAccount := range predicted {
		actualAccount, ok := actual[addr]
		if !ok {
			mismatches++
			if firstAddr == "" {
				firstAddr, firstSlot = addr.Hex(), ""
			}
			continue
		}
		for slot, predictedVal := range predictedAccount.Storage {
			actualVal, ok := actualAccount.Storage[slot]
			if !ok || actualVal != predictedVal {
				mismatches++
				if firstAddr == "" {
					firstAddr, firstSlot = addr.Hex(), slot.Hex()
				}
			}
		}
	}
	if mismatches == 0 {
		return nil
	}

	m.divergences.Add(float64(mismatches))
	return &types.HealthEvent{
		Kind:   types.HealthStateDivergence,
		Detail: fmt.Sprintf("%d diverging slot(s), first at %s/%s", mismatches, firstAddr, firstSlot),
	}
}
