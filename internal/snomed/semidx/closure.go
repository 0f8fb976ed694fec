package semidx

import (
	"fmt"
	"sort"

	"github.com/yungbote/termgraph-backend/internal/pkg/errors"
)

const (
	unvisited = iota
	visiting
	done
)

// closureBuilder computes transitive ancestor sets over an ISA parent graph.
// Concepts in the recompute set use the fresh parent edges; anything outside
// it falls back to previously indexed ancestors.
type closureBuilder struct {
	parents  map[string][]string
	fallback func(conceptID string) ([]string, bool, error)
	memo     map[string][]string
	state    map[string]int
}

func newClosureBuilder(parents map[string][]string, fallback func(string) ([]string, bool, error)) *closureBuilder {
	return &closureBuilder{
		parents:  parents,
		fallback: fallback,
		memo:     map[string][]string{},
		state:    map[string]int{},
	}
}

// Ancestors returns the sorted transitive ancestor set of the concept. A
// cycle in the parent graph fails the whole computation.
func (b *closureBuilder) Ancestors(conceptID string) ([]string, error) {
	switch b.state[conceptID] {
	case visiting:
		return nil, fmt.Errorf("transitive closure loop at concept %s: %w", conceptID, errors.ErrCycleDetected)
	case done:
		return b.memo[conceptID], nil
	}

	parents, recompute := b.parents[conceptID]
	if !recompute && b.fallback != nil {
		ancestors, ok, err := b.fallback(conceptID)
		if err != nil {
			return nil, err
		}
		if ok {
			b.state[conceptID] = done
			b.memo[conceptID] = ancestors
			return ancestors, nil
		}
	}

	b.state[conceptID] = visiting
	set := map[string]bool{}
	for _, p := range parents {
		set[p] = true
		above, err := b.Ancestors(p)
		if err != nil {
			return nil, err
		}
		for _, a := range above {
			set[a] = true
		}
	}
	b.state[conceptID] = done

	ancestors := make([]string, 0, len(set))
	for a := range set {
		ancestors = append(ancestors, a)
	}
	sort.Strings(ancestors)
	b.memo[conceptID] = ancestors
	return ancestors, nil
}
