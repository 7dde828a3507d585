package fortune

import (
	"math/rand/v2"
)

// Rand is the subset of *rand.Rand the selector needs. Implementations must be
// safe for concurrent use when shared across connections.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// GlobalRand draws from the math/rand/v2 top-level source, which is safe for
// concurrent use.
var GlobalRand Rand = globalRand{}

// Roll thresholds over a uniform draw in [1,100].
const (
	commonCeiling = 70
	rareCeiling   = 95
)

// Selector picks fortunes with weighted rarity and category fallback.
type Selector struct {
	catalog *Catalog
	rnd     Rand
}

func NewSelector(catalog *Catalog, rnd Rand) *Selector {
	if rnd == nil {
		rnd = GlobalRand
	}
	return &Selector{catalog: catalog, rnd: rnd}
}

// Pick is a selection result together with the tier that was rolled. The
// fortune's own rarity differs from Rolled when a fallback kicked in.
type Pick struct {
	Fortune Fortune
	Rolled  Rarity
}

// RollRarity draws a tier: Common 70%, Rare 25%, Legendary 5%.
func RollRarity(rnd Rand) Rarity {
	roll := rnd.IntN(100) + 1
	switch {
	case roll <= commonCeiling:
		return Common
	case roll <= rareCeiling:
		return Rare
	default:
		return Legendary
	}
}

// Select picks one fortune. category is optional; an empty string disables the
// filter.
func (s *Selector) Select(category string) Pick {
	return SelectFrom(s.catalog.Snapshot(), category, s.rnd)
}

// SelectFrom runs the selection over an explicit snapshot. pool must not be
// empty.
func SelectFrom(pool []Fortune, category string, rnd Rand) Pick {
	rolled := RollRarity(rnd)

	candidates := filter(pool, func(f Fortune) bool {
		return f.Rarity == rolled && (category == "" || f.MatchesCategory(category))
	})
	if len(candidates) == 0 && category != "" {
		candidates = filter(pool, func(f Fortune) bool {
			return f.MatchesCategory(category)
		})
	}
	// Unknown categories end up here too and receive an unrelated fortune.
	if len(candidates) == 0 {
		candidates = pool
	}

	return Pick{
		Fortune: candidates[rnd.IntN(len(candidates))],
		Rolled:  rolled,
	}
}

// Random picks uniformly from the whole catalog, ignoring rarity.
func (s *Selector) Random() Fortune {
	pool := s.catalog.Snapshot()
	return pool[s.rnd.IntN(len(pool))]
}

// LuckyNumbers draws n independent integers in [1,56].
func LuckyNumbers(rnd Rand, n int) []int {
	nums := make([]int, n)
	for i := range nums {
		nums[i] = rnd.IntN(56) + 1
	}
	return nums
}

func filter(pool []Fortune, keep func(Fortune) bool) []Fortune {
	var out []Fortune
	for _, f := range pool {
		if keep(f) {
			out = append(out, f)
		}
	}
	return out
}
