package population

import (
	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/canopy/components"
)

// Tree is a handle to one tree in a Population. Handles stay valid until the tree is removed.
type Tree struct {
	e ecs.Entity
	p *Population
}

// Valid reports whether the handle refers to a live tree.
func (t Tree) Valid() bool {
	return t.p != nil && t.p.world.Alive(t.e)
}

// ID returns the tree's entity id.
func (t Tree) ID() uint64 {
	return uint64(t.e.ID())
}

func (t Tree) stem() *components.Stem {
	return t.p.stemMap.Get(t.e)
}

// Species returns the species code.
func (t Tree) Species() int { return t.stem().Species }

// Type returns the life stage.
func (t Tree) Type() components.TreeType { return t.stem().Type }

// Diam returns diam10 for seedlings and DBH otherwise, cm.
func (t Tree) Diam() float64 { return t.stem().Diam() }

// DBH returns diameter at breast height, cm.
func (t Tree) DBH() float64 { return t.stem().DBH }

// Diam10 returns diameter at 10 cm, cm.
func (t Tree) Diam10() float64 { return t.stem().Diam10 }

// Height returns the tree's height, m.
func (t Tree) Height() float64 { return t.stem().Height }

// Position returns the tree's location.
func (t Tree) Position() components.Position {
	return *t.p.posMap.Get(t.e)
}

// CrownRadius returns the crown radius from allometry, m.
func (t Tree) CrownRadius() float64 {
	s := t.stem()
	return t.p.allometry[s.Species].CrownRadius(s.DBH)
}

// CrownDepth returns the crown depth from allometry, m.
func (t Tree) CrownDepth() float64 {
	s := t.stem()
	return t.p.allometry[s.Species].CrownDepth(s.Height)
}

// Float returns a registered float field.
func (t Tree) Float(code int) float64 {
	return t.p.fieldMap.Get(t.e).Floats[code]
}

// SetFloat sets a registered float field.
func (t Tree) SetFloat(code int, v float64) {
	t.p.fieldMap.Get(t.e).Floats[code] = v
}

// Int returns a registered int field.
func (t Tree) Int(code int) int32 {
	return t.p.fieldMap.Get(t.e).Ints[code]
}

// SetInt sets a registered int field.
func (t Tree) SetInt(code int, v int32) {
	t.p.fieldMap.Get(t.e).Ints[code] = v
}

// Bool returns a registered bool field.
func (t Tree) Bool(code int) bool {
	return t.p.fieldMap.Get(t.e).Bools[code]
}

// SetBool sets a registered bool field.
func (t Tree) SetBool(code int, v bool) {
	t.p.fieldMap.Get(t.e).Bools[code] = v
}
