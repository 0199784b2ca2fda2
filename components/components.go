// Package components defines ECS components for trees.
package components

// TreeType is a tree's life stage.
type TreeType uint8

const (
	Seedling TreeType = iota
	Sapling
	Adult
	Snag
	NumTypes
)

var typeNames = [NumTypes]string{"seedling", "sapling", "adult", "snag"}

func (t TreeType) String() string {
	if t < NumTypes {
		return typeNames[t]
	}
	return "unknown"
}

// ParseTreeType converts a config name into a TreeType.
func ParseTreeType(s string) (TreeType, bool) {
	for i, n := range typeNames {
		if n == s {
			return TreeType(i), true
		}
	}
	return 0, false
}

// TypeMask is a set of tree types.
type TypeMask uint8

// MaskOf builds a mask from the given types.
func MaskOf(types ...TreeType) TypeMask {
	var m TypeMask
	for _, t := range types {
		m |= 1 << t
	}
	return m
}

// Has reports whether t is in the mask.
func (m TypeMask) Has(t TreeType) bool {
	return m&(1<<t) != 0
}

// AllTypes matches every life stage.
const AllTypes = TypeMask(1<<NumTypes - 1)

// DeathCode is the value held in a tree's "dead" field.
type DeathCode int32

const (
	NotDead DeathCode = iota
	Natural
	Disease
	Insects
	Storm
	Fire
	Harvest
)

var deathNames = [...]string{"not_dead", "natural", "disease", "insects", "storm", "fire", "harvest"}

func (d DeathCode) String() string {
	if int(d) >= 0 && int(d) < len(deathNames) {
		return deathNames[d]
	}
	return "unknown"
}

// Competes reports whether a tree with this code still counts as a competitor or shader.
// Trees that died naturally this timestep are still standing; everything else was removed
// by a disturbance and does not.
func (d DeathCode) Competes() bool {
	return d == NotDead || d == Natural
}

// Position is a tree's location in plot metres.
type Position struct {
	X, Y float64
}

// Stem holds a tree's identity and size.
type Stem struct {
	Species int
	Type    TreeType
	Diam10  float64 // diameter at 10 cm, cm
	DBH     float64 // diameter at breast height, cm (0 for seedlings)
	Height  float64 // m
}

// Diam returns the size measure for the tree's life stage: diam10 for seedlings, DBH otherwise.
func (s *Stem) Diam() float64 {
	if s.Type == Seedling {
		return s.Diam10
	}
	return s.DBH
}

// Fields holds the values of registered tree data fields, indexed by field code.
type Fields struct {
	Floats []float64
	Ints   []int32
	Bools  []bool
}
