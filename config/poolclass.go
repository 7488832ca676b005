// (c) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

import (
	"fmt"

	"github.com/hashicorp/go-bexpr"

	"github.com/luxfi/backrun/types"
)

// poolClassSnapshot is the struct go-bexpr evaluates PoolsLoading's
// ClassFilter expression against, one per candidate PoolClass
// encountered by a loader (e.g. `Class == "uniswap_v2" or Class ==
// "uniswap_v3"`).
type poolClassSnapshot struct {
	Class string `bexpr:"Class"`
}

// PoolClassFilter compiles a PoolsLoading.ClassFilter expression into a
// reusable predicate. An empty expression admits every class, matching
// spec.md §6's "pool-class enable flags" defaulting to all-enabled.
type PoolClassFilter struct {
	eval *bexpr.Evaluator
}

func NewPoolClassFilter(expression string) (*PoolClassFilter, error) {
	if expression == "" {
		return &PoolClassFilter{}, nil
	}
	eval, err := bexpr.CreateEvaluator(expression)
	if err != nil {
		return nil, fmt.Errorf("config: compiling pool-class filter %q: %w", expression, err)
	}
	return &PoolClassFilter{eval: eval}, nil
}

// Enabled reports whether class passes the filter. A filter with no
// compiled expression admits everything.
func (f *PoolClassFilter) Enabled(class types.PoolClass) (bool, error) {
	if f.eval == nil {
		return true, nil
	}
	matched, err := f.eval.Evaluate(poolClassSnapshot{Class: class.String()})
	if err != nil {
		return false, fmt.Errorf("config: evaluating pool-class filter: %w", err)
	}
	return matched, nil
}
