package fortune

import (
	"slices"
	"sync"
)

// Catalog is the shared, append-only fortune collection. It is never empty.
type Catalog struct {
	mu    sync.RWMutex
	items []Fortune
}

// NewCatalog seeds a catalog, injecting Default when seed is empty.
func NewCatalog(seed []Fortune) *Catalog {
	items := make([]Fortune, 0, len(seed)+1)
	items = append(items, seed...)
	if len(items) == 0 {
		items = append(items, Default)
	}
	return &Catalog{items: items}
}

// Snapshot returns a read-only view of the catalog as of the call. Existing
// entries are never rewritten, so the view stays valid while later batches
// are appended.
func (c *Catalog) Snapshot() []Fortune {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clip(c.items[:len(c.items)])
}

// Append adds a batch atomically and returns the new size.
func (c *Catalog) Append(batch []Fortune) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, batch...)
	return len(c.items)
}

func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// CountByRarity tallies the catalog per tier.
func (c *Catalog) CountByRarity() map[Rarity]int {
	counts := make(map[Rarity]int, len(Rarities))
	for _, f := range c.Snapshot() {
		counts[f.Rarity]++
	}
	return counts
}

// Filter returns entries matching category and rarity. Empty arguments match
// everything.
func (c *Catalog) Filter(category string, rarity *Rarity) []Fortune {
	return filter(c.Snapshot(), func(f Fortune) bool {
		if category != "" && !f.MatchesCategory(category) {
			return false
		}
		return rarity == nil || f.Rarity == *rarity
	})
}
