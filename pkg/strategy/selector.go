// Package strategy selects conversational strategy codes from per-scenario
// pools. Pools are read-only after startup.
package strategy

import (
	"fmt"
	"math/rand/v2"

	"github.com/chatcoach/coachd/pkg/models"
)

// Selector draws strategy codes from scenario pools.
type Selector struct {
	pools map[string][]string
}

// NewSelector copies the pool table into a selector.
func NewSelector(pools map[string][]string) *Selector {
	copied := make(map[string][]string, len(pools))
	for scenario, codes := range pools {
		copied[scenario] = append([]string(nil), codes...)
	}
	return &Selector{pools: copied}
}

// Pool returns the codes available for a scenario. Unknown scenarios fall
// back to the SAFE pool, mirroring the scenario default applied during
// normalization.
func (s *Selector) Pool(scenario string) []string {
	if pool, ok := s.pools[scenario]; ok {
		return pool
	}
	return s.pools[models.ScenarioSafe]
}

// Contains reports whether code is in the scenario's pool.
func (s *Selector) Contains(scenario, code string) bool {
	for _, c := range s.Pool(scenario) {
		if c == code {
			return true
		}
	}
	return false
}

// Select returns exactly three distinct strategy codes from the scenario's
// pool. A non-nil seed makes the selection deterministic; otherwise the
// selection is uniformly random without replacement.
func (s *Selector) Select(scenario string, seed *uint64) ([]string, error) {
	pool := s.Pool(scenario)
	if len(pool) < models.ReplyCount {
		return nil, fmt.Errorf("strategy pool for %q has %d codes, need %d",
			scenario, len(pool), models.ReplyCount)
	}

	var rng *rand.Rand
	if seed != nil {
		rng = rand.New(rand.NewPCG(*seed, 0))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	picked := append([]string(nil), pool...)
	rng.Shuffle(len(picked), func(i, j int) {
		picked[i], picked[j] = picked[j], picked[i]
	})
	return picked[:models.ReplyCount], nil
}
