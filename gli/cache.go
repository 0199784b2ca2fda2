package gli

import (
	"math"
	"sync"
)

// SkyKey identifies a brightness grid. Engines whose keys match share one grid.
type SkyKey struct {
	NumAlt, NumAzi int
	Cutoff         int
}

// Cache owns the brightness grids of one run. Grids are built on first request and
// shared read-only afterwards.
type Cache struct {
	model SkyModel

	mu     sync.Mutex
	skies  map[SkyKey]*Sky
	builds int
}

// NewCache creates a cache computing grids for the given site.
func NewCache(m SkyModel) *Cache {
	return &Cache{model: m, skies: make(map[SkyKey]*Sky)}
}

// Sky returns the grid for the given resolution and minimum sun angle (radians),
// building it if no engine has asked for the same key before.
func (c *Cache) Sky(numAlt, numAzi int, minSunAngle float64) (*Sky, error) {
	key := SkyKey{NumAlt: numAlt, NumAzi: numAzi}
	if numAlt > 0 {
		key.Cutoff = cutoffRow(numAlt, math.Max(minSunAngle, 0))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.skies[key]; ok {
		return s, nil
	}
	s, err := NewSky(c.model, key.NumAlt, key.NumAzi, key.Cutoff)
	if err != nil {
		return nil, err
	}
	c.skies[key] = s
	c.builds++
	return s, nil
}

// Builds returns how many distinct grids have been computed.
func (c *Cache) Builds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.builds
}
