// Package population holds the simulated trees: storage, neighbor search, allometry and the
// registry of per-tree data fields that behaviors share.
package population

import (
	"iter"

	"github.com/mlange-42/ark/ecs"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/plot"
	"github.com/pthm-cable/canopy/simerr"
)

// Population owns every tree in the plot.
type Population struct {
	world *ecs.World

	mapper *ecs.Map3[components.Position, components.Stem, components.Fields]
	filter *ecs.Filter3[components.Position, components.Stem, components.Fields]

	posMap   *ecs.Map1[components.Position]
	stemMap  *ecs.Map1[components.Stem]
	fieldMap *ecs.Map1[components.Fields]

	plot      *plot.Plot
	names     []string
	allometry []Allometry

	seedlingHeight float64
	maxHeight      float64
	maxCrownRadius float64

	grid  *SpatialGrid
	dirty bool
	count int

	fields   fieldRegistry
	deadCode int
}

// New creates an empty population for the configured species.
func New(p *plot.Plot, species []config.SpeciesConfig, cfg config.PopulationConfig) (*Population, error) {
	world := ecs.NewWorld()

	pop := &Population{
		world:    world,
		mapper:   ecs.NewMap3[components.Position, components.Stem, components.Fields](world),
		filter:   ecs.NewFilter3[components.Position, components.Stem, components.Fields](world),
		posMap:   ecs.NewMap1[components.Position](world),
		stemMap:  ecs.NewMap1[components.Stem](world),
		fieldMap: ecs.NewMap1[components.Fields](world),

		plot:           p,
		names:          make([]string, len(species)),
		allometry:      make([]Allometry, len(species)),
		seedlingHeight: cfg.SeedlingHeight,
		grid:           NewSpatialGrid(p, cfg.GridCellSize),
		fields:         newFieldRegistry(len(species)),
		deadCode:       -1,
	}

	for i, sp := range species {
		a := sp.Allometry
		switch {
		case a.MaxHeight <= breastHeight:
			return nil, simerr.Config("population", "max_height", "species %s: must exceed %v m", sp.Name, breastHeight)
		case a.HeightSlope <= 0:
			return nil, simerr.Config("population", "height_slope", "species %s: must be greater than 0", sp.Name)
		case a.Diam10Slope <= 0:
			return nil, simerr.Config("population", "diam10_slope", "species %s: must be greater than 0", sp.Name)
		case a.MaxCrownRadius <= 0:
			return nil, simerr.Config("population", "max_crown_radius", "species %s: must be greater than 0", sp.Name)
		case a.MaxSaplingDBH <= 0:
			return nil, simerr.Config("population", "max_sapling_dbh", "species %s: must be greater than 0", sp.Name)
		}
		pop.names[i] = sp.Name
		pop.allometry[i] = Allometry{a}
		pop.maxHeight = max(pop.maxHeight, a.MaxHeight)
		pop.maxCrownRadius = max(pop.maxCrownRadius, a.MaxCrownRadius)
	}

	return pop, nil
}

// Plot returns the plot the trees stand on.
func (p *Population) Plot() *plot.Plot {
	return p.plot
}

// SpeciesNames returns species names in code order.
func (p *Population) SpeciesNames() []string {
	return p.names
}

// NumSpecies returns the number of species.
func (p *Population) NumSpecies() int {
	return len(p.names)
}

// Allometry returns the size relationships for a species.
func (p *Population) Allometry(species int) *Allometry {
	return &p.allometry[species]
}

// MaxTreeHeight returns the tallest height any species can reach, m.
func (p *Population) MaxTreeHeight() float64 {
	return p.maxHeight
}

// MaxCrownRadius returns the widest crown radius any species can reach, m.
func (p *Population) MaxCrownRadius() float64 {
	return p.maxCrownRadius
}

// SeedlingHeight returns the height at which seedlings become saplings, m.
func (p *Population) SeedlingHeight() float64 {
	return p.seedlingHeight
}

// ConvertDiam10ToDBH converts a diam10 increment into a DBH increment for a species.
func (p *Population) ConvertDiam10ToDBH(delta float64, species int) float64 {
	return p.allometry[species].Diam10DeltaToDBH(delta)
}

// Count returns the number of trees.
func (p *Population) Count() int {
	return p.count
}

// Add creates a tree. diam is diam10 for seedlings and DBH for everything else; the other
// size measures and the height follow from allometry.
func (p *Population) Add(species int, typ components.TreeType, x, y, diam float64) Tree {
	a := &p.allometry[species]
	stem := components.Stem{Species: species, Type: typ}
	if typ == components.Seedling {
		stem.Diam10 = diam
		stem.Height = a.SeedlingHeight(diam)
	} else {
		stem.DBH = diam
		stem.Diam10 = a.Diam10(diam)
		stem.Height = a.AdultHeight(diam)
	}

	pos := components.Position{X: p.plot.WrapX(x), Y: p.plot.WrapY(y)}
	fields := components.Fields{
		Floats: make([]float64, p.fields.count(FloatField)),
		Ints:   make([]int32, p.fields.count(IntField)),
		Bools:  make([]bool, p.fields.count(BoolField)),
	}

	e := p.mapper.NewEntity(&pos, &stem, &fields)
	p.count++
	p.dirty = true
	return Tree{e: e, p: p}
}

// Remove deletes a tree. It must not be called while iterating All.
func (p *Population) Remove(t Tree) {
	if !p.world.Alive(t.e) {
		return
	}
	p.world.RemoveEntity(t.e)
	p.count--
	p.dirty = true
}

// All iterates every tree. Trees may be read and their fields written during iteration,
// but none may be added or removed.
func (p *Population) All() iter.Seq[Tree] {
	return func(yield func(Tree) bool) {
		query := p.filter.Query()
		for query.Next() {
			if !yield(Tree{e: query.Entity(), p: p}) {
				query.Close()
				return
			}
		}
	}
}

// Snapshot appends every tree to dst, for callers that need to add or remove trees while
// walking the population.
func (p *Population) Snapshot(dst []Tree) []Tree {
	for t := range p.All() {
		dst = append(dst, t)
	}
	return dst
}

// Grow applies a committed diameter increment and reclassifies the tree if it crossed a
// life-stage threshold. Seedling and sapling increments are diam10; adult increments are
// DBH. Negative increments are ignored.
func (p *Population) Grow(t Tree, growth float64) (from, to components.TreeType) {
	stem := p.stemMap.Get(t.e)
	from = stem.Type
	if growth < 0 {
		growth = 0
	}
	a := &p.allometry[stem.Species]

	switch stem.Type {
	case components.Seedling:
		stem.Diam10 += growth
		stem.Height = a.SeedlingHeight(stem.Diam10)
		if stem.Height >= p.seedlingHeight {
			stem.Type = components.Sapling
			stem.DBH = a.DBH(stem.Diam10)
			stem.Height = max(a.AdultHeight(stem.DBH), stem.Height)
		}
	case components.Sapling:
		stem.Diam10 += growth
		stem.DBH = a.DBH(stem.Diam10)
		stem.Height = a.AdultHeight(stem.DBH)
		if stem.DBH >= a.MaxSaplingDBH {
			stem.Type = components.Adult
		}
	case components.Adult:
		stem.DBH += growth
		stem.Diam10 = a.Diam10(stem.DBH)
		stem.Height = a.AdultHeight(stem.DBH)
	}
	return from, stem.Type
}

// MakeSnag turns a tree into a standing dead snag with its current size.
func (p *Population) MakeSnag(t Tree) {
	p.stemMap.Get(t.e).Type = components.Snag
}

// Query selects neighbors for FindInto.
type Query struct {
	X, Y      float64
	Radius    float64
	MinHeight float64             // trees shorter than this are skipped
	Types     components.TypeMask // zero means every type
	Exclude   Tree                // zero value excludes nothing
}

// Neighbor is one tree returned by FindInto, with its torus offset from the query point.
type Neighbor struct {
	Tree
	DX, DY float64
	Dist   float64
}

// FindInto appends every tree matching q to dst and returns the extended slice. Reuse dst
// across calls to avoid allocations. Results are unordered.
func (p *Population) FindInto(dst []Neighbor, q Query) []Neighbor {
	p.ensureGrid()

	types := q.Types
	if types == 0 {
		types = components.AllTypes
	}
	p.grid.visit(q.X, q.Y, q.Radius, func(e ecs.Entity, dx, dy, dist float64) {
		if e == q.Exclude.e {
			return
		}
		stem := p.stemMap.Get(e)
		if !types.Has(stem.Type) || stem.Height < q.MinHeight {
			return
		}
		dst = append(dst, Neighbor{Tree: Tree{e: e, p: p}, DX: dx, DY: dy, Dist: dist})
	})
	return dst
}

// Reindex brings the neighbor index up to date. FindInto does this lazily, so callers
// searching from several goroutines must call Reindex first.
func (p *Population) Reindex() {
	p.ensureGrid()
}

func (p *Population) ensureGrid() {
	if !p.dirty {
		return
	}
	p.grid.Clear()
	query := p.filter.Query()
	for query.Next() {
		pos, _, _ := query.Get()
		p.grid.Insert(query.Entity(), pos.X, pos.Y)
	}
	p.dirty = false
}

// RegisterFloat registers a float field for the given combos and returns its code.
// Registering an existing name extends its combos.
func (p *Population) RegisterFloat(name string, combos []Combo) (int, error) {
	return p.register(name, FloatField, combos)
}

// RegisterInt registers an int field for the given combos and returns its code.
func (p *Population) RegisterInt(name string, combos []Combo) (int, error) {
	return p.register(name, IntField, combos)
}

// RegisterBool registers a bool field for the given combos and returns its code.
func (p *Population) RegisterBool(name string, combos []Combo) (int, error) {
	return p.register(name, BoolField, combos)
}

func (p *Population) register(name string, kind FieldKind, combos []Combo) (int, error) {
	code, created, err := p.fields.register(name, kind, combos)
	if err != nil {
		return 0, simerr.Consistency("population", "%v", err)
	}
	if created && p.count > 0 {
		// Existing trees get a zero slot for the new field
		query := p.filter.Query()
		for query.Next() {
			_, _, f := query.Get()
			switch kind {
			case FloatField:
				f.Floats = append(f.Floats, 0)
			case IntField:
				f.Ints = append(f.Ints, 0)
			case BoolField:
				f.Bools = append(f.Bools, false)
			}
		}
	}
	if name == FieldDead && kind == IntField {
		p.deadCode = code
	}
	return code, nil
}

// FieldCode returns the code of a registered field of the given kind.
func (p *Population) FieldCode(name string, kind FieldKind) (int, bool) {
	return p.fields.code(name, kind)
}

// Registered reports whether a field was registered for a species/type combo.
func (p *Population) Registered(name string, species int, typ components.TreeType) bool {
	return p.fields.registered(name, species, typ)
}

// DeathCode returns a tree's dead status. Trees are not dead when no behavior registered
// the dead field.
func (p *Population) DeathCode(t Tree) components.DeathCode {
	if p.deadCode < 0 {
		return components.NotDead
	}
	return components.DeathCode(p.fieldMap.Get(t.e).Ints[p.deadCode])
}

// Kill marks a tree dead with the given code. The dead field must be registered.
func (p *Population) Kill(t Tree, code components.DeathCode) error {
	if p.deadCode < 0 {
		return simerr.Prerequisite("population", FieldDead, "no behavior registered the dead field")
	}
	p.fieldMap.Get(t.e).Ints[p.deadCode] = int32(code)
	return nil
}
