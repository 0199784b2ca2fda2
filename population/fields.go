package population

import (
	"fmt"

	"github.com/pthm-cable/canopy/components"
)

// FieldKind is the value type of a registered tree field.
type FieldKind uint8

const (
	FloatField FieldKind = iota
	IntField
	BoolField
)

func (k FieldKind) String() string {
	switch k {
	case FloatField:
		return "float"
	case IntField:
		return "int"
	case BoolField:
		return "bool"
	}
	return "unknown"
}

// Combo is a species/type pair.
type Combo struct {
	Species int
	Type    components.TreeType
}

// Well-known field names shared between behaviors.
const (
	FieldLight         = "Light"
	FieldGrowth        = "Growth"
	FieldDead          = "dead"
	FieldStormDamage   = "stm_dmg"
	FieldYearsInfested = "YearsInfested"
)

type fieldDef struct {
	name string
	kind FieldKind
	code int
	on   []bool // species*NumTypes + type
}

type fieldRegistry struct {
	numSpecies int
	byName     map[string]*fieldDef
	byKind     [3][]*fieldDef
}

func newFieldRegistry(numSpecies int) fieldRegistry {
	return fieldRegistry{numSpecies: numSpecies, byName: make(map[string]*fieldDef)}
}

// register adds name for the given combos, or extends an existing field of the same kind.
// It reports whether a new slot was created.
func (r *fieldRegistry) register(name string, kind FieldKind, combos []Combo) (int, bool, error) {
	def, ok := r.byName[name]
	created := false
	if ok {
		if def.kind != kind {
			return 0, false, fmt.Errorf("field %q already registered as %s, not %s", name, def.kind, kind)
		}
	} else {
		def = &fieldDef{
			name: name,
			kind: kind,
			code: len(r.byKind[kind]),
			on:   make([]bool, r.numSpecies*int(components.NumTypes)),
		}
		r.byName[name] = def
		r.byKind[kind] = append(r.byKind[kind], def)
		created = true
	}
	for _, c := range combos {
		if c.Species < 0 || c.Species >= r.numSpecies || c.Type >= components.NumTypes {
			return 0, false, fmt.Errorf("field %q: invalid combo species %d type %d", name, c.Species, c.Type)
		}
		def.on[c.Species*int(components.NumTypes)+int(c.Type)] = true
	}
	return def.code, created, nil
}

func (r *fieldRegistry) code(name string, kind FieldKind) (int, bool) {
	def, ok := r.byName[name]
	if !ok || def.kind != kind {
		return -1, false
	}
	return def.code, true
}

func (r *fieldRegistry) registered(name string, species int, typ components.TreeType) bool {
	def, ok := r.byName[name]
	if !ok {
		return false
	}
	return def.on[species*int(components.NumTypes)+int(typ)]
}

func (r *fieldRegistry) count(kind FieldKind) int {
	return len(r.byKind[kind])
}
