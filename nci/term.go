package nci

import (
	"math"

	"github.com/pthm-cable/canopy/components"
	"github.com/pthm-cable/canopy/params"
	"github.com/pthm-cable/canopy/population"
	"github.com/pthm-cable/canopy/simerr"
)

// NewTerm builds the named NCI variant.
func NewTerm(variant string, env *Env) (Term, error) {
	switch variant {
	case "", "default":
		return newDefaultNCI(env)
	case "larger_neighbors":
		return newLargerNeighbors(env)
	case "ba_ratio":
		return newBARatio(env)
	case "none":
		return none{}, nil
	}
	return nil, simerr.Config(env.Params.Component(), "nci", "unknown NCI term %q", variant)
}

// neighborTypes returns the types that compete, with snags optional.
func neighborTypes(snags bool) components.TypeMask {
	if snags {
		return components.MaskOf(components.Sapling, components.Adult, components.Snag)
	}
	return components.MaskOf(components.Sapling, components.Adult)
}

// defaultNCI sums λ·(DBH/q)^α / dist^β over neighbors within the target species' radius.
type defaultNCI struct {
	pop *population.Population

	radius, alpha, beta params.Table // by target species
	minDBH              params.Table // by neighbor species
	eta, kappa          params.Table // by neighbor species; damage discounts
	lambda              params.Matrix
	q                   float64
	types               components.TypeMask

	damageCode int // -1 when no behavior tracks storm damage

	buf []population.Neighbor
}

func newDefaultNCI(env *Env) (*defaultNCI, error) {
	src := env.Params
	all := env.AllSpecies()
	n := &defaultNCI{pop: env.Pop, q: 1, damageCode: -1}

	var err error
	if n.radius, err = src.Species("nciMaxCrowdingRadius", env.Covered); err != nil {
		return nil, err
	}
	if n.alpha, err = src.Species("nciAlpha", env.Covered); err != nil {
		return nil, err
	}
	if n.beta, err = src.Species("nciBeta", env.Covered); err != nil {
		return nil, err
	}
	if n.minDBH, err = src.Species("nciMinNeighborDBH", all); err != nil {
		return nil, err
	}
	if n.lambda, err = src.Matrix("nciLambda", env.Covered); err != nil {
		return nil, err
	}
	if n.eta, err = src.SpeciesOr("nciDamageEta", all, 1); err != nil {
		return nil, err
	}
	if n.kappa, err = src.SpeciesOr("nciDamageKappa", all, 1); err != nil {
		return nil, err
	}
	if err := src.Single("nciDbhDivisor", &n.q, false); err != nil {
		return nil, err
	}
	var snags bool
	if err := src.Bool("nciIncludeSnagsInNCI", &snags, false); err != nil {
		return nil, err
	}
	n.types = neighborTypes(snags)

	if err := firstErr(n.radius.NonNegative(), n.minDBH.NonNegative(), n.eta.NonNegative(), n.kappa.NonNegative()); err != nil {
		return nil, err
	}
	if n.q <= 0 {
		return nil, simerr.Config(src.Component(), "nciDbhDivisor", "must be greater than 0")
	}

	if code, ok := env.Pop.FieldCode(population.FieldStormDamage, population.IntField); ok {
		n.damageCode = code
	}
	return n, nil
}

func (n *defaultNCI) Compute(t population.Tree) Value {
	sp := t.Species()
	pos := t.Position()
	alpha, beta := n.alpha.At(sp), n.beta.At(sp)

	n.buf = n.pop.FindInto(n.buf[:0], population.Query{
		X: pos.X, Y: pos.Y, Radius: n.radius.At(sp), Types: n.types, Exclude: t,
	})

	var nci float64
	for _, nb := range n.buf {
		if nb.Dist == 0 {
			continue
		}
		nsp := nb.Species()
		dbh := nb.DBH()
		if dbh < n.minDBH.At(nsp) {
			continue
		}
		// Trees that died naturally this timestep are still standing and still compete
		if !n.pop.DeathCode(nb.Tree).Competes() {
			continue
		}

		c := n.lambda.At(sp, nsp) * math.Pow(dbh/n.q, alpha) / math.Pow(nb.Dist, beta)
		if n.damageCode >= 0 && n.pop.Registered(population.FieldStormDamage, nsp, nb.Type()) {
			switch nb.Int(n.damageCode) / 1000 {
			case 1:
				c *= n.eta.At(nsp)
			case 2:
				c *= n.kappa.At(nsp)
			}
		}
		nci += c
	}
	return Value{NCI: nci}
}

// largerNeighbors counts neighbors with a bigger DBH than the target.
type largerNeighbors struct {
	pop    *population.Population
	radius params.Table
	minDBH params.Table
	buf    []population.Neighbor
}

func newLargerNeighbors(env *Env) (*largerNeighbors, error) {
	src := env.Params
	n := &largerNeighbors{pop: env.Pop}
	var err error
	if n.radius, err = src.Species("nciMaxCrowdingRadius", env.Covered); err != nil {
		return nil, err
	}
	if n.minDBH, err = src.SpeciesOr("nciMinNeighborDBH", env.AllSpecies(), 0); err != nil {
		return nil, err
	}
	if err := firstErr(n.radius.NonNegative(), n.minDBH.NonNegative()); err != nil {
		return nil, err
	}
	return n, nil
}

func (n *largerNeighbors) Compute(t population.Tree) Value {
	pos := t.Position()
	dbh := t.DBH()
	n.buf = n.pop.FindInto(n.buf[:0], population.Query{
		X: pos.X, Y: pos.Y, Radius: n.radius.At(t.Species()), Types: neighborTypes(false), Exclude: t,
	})

	count := 0
	for _, nb := range n.buf {
		if nb.DBH() <= dbh || nb.DBH() < n.minDBH.At(nb.Species()) {
			continue
		}
		if !n.pop.DeathCode(nb.Tree).Competes() {
			continue
		}
		count++
	}
	return Value{NCI: float64(count)}
}

// baRatio returns the ratio of mean neighbor basal area to target basal area, and the total
// neighbor basal area. Adults and saplings are searched with their own radii.
type baRatio struct {
	pop           *population.Population
	adultRadius   float64
	saplingRadius float64
	minDBH        params.Table
	buf           []population.Neighbor
}

func newBARatio(env *Env) (*baRatio, error) {
	src := env.Params
	n := &baRatio{pop: env.Pop}
	if err := src.Single("nciBAAdultRadius", &n.adultRadius, true); err != nil {
		return nil, err
	}
	if err := src.Single("nciBASaplingRadius", &n.saplingRadius, true); err != nil {
		return nil, err
	}
	if n.adultRadius < 0 {
		return nil, simerr.Config(src.Component(), "nciBAAdultRadius", "must not be negative")
	}
	if n.saplingRadius < 0 {
		return nil, simerr.Config(src.Component(), "nciBASaplingRadius", "must not be negative")
	}
	var err error
	if n.minDBH, err = src.SpeciesOr("nciMinNeighborDBH", env.AllSpecies(), 0); err != nil {
		return nil, err
	}
	return n, n.minDBH.NonNegative()
}

func basalArea(dbh float64) float64 {
	r := dbh / 200 // cm diameter to m radius
	return math.Pi * r * r
}

func (n *baRatio) Compute(t population.Tree) Value {
	pos := t.Position()
	n.buf = n.pop.FindInto(n.buf[:0], population.Query{
		X: pos.X, Y: pos.Y, Radius: max(n.adultRadius, n.saplingRadius),
		Types: neighborTypes(false), Exclude: t,
	})

	var total float64
	count := 0
	for _, nb := range n.buf {
		limit := n.adultRadius
		if nb.Type() == components.Sapling {
			limit = n.saplingRadius
		}
		if nb.Dist > limit || nb.DBH() < n.minDBH.At(nb.Species()) {
			continue
		}
		if !n.pop.DeathCode(nb.Tree).Competes() {
			continue
		}
		total += basalArea(nb.DBH())
		count++
	}

	target := basalArea(t.DBH())
	if count == 0 || target <= 0 {
		return Value{Sum: total}
	}
	return Value{NCI: total / float64(count) / target, Sum: total}
}
