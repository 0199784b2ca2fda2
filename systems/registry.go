package systems

import (
	"github.com/pthm-cable/canopy/config"
	"github.com/pthm-cable/canopy/simerr"
)

// BehaviorInfo describes a behavior kind.
type BehaviorInfo struct {
	Kind        string // value of a behavior's kind in config
	Name        string // Display name
	Description string // What this behavior does
	Category    string // Grouping (e.g., "light", "growth", "mortality")
}

// Constructor builds a behavior from its configuration entry. names lists every species in
// code order.
type Constructor func(cfg config.BehaviorConfig, names []string) (Behavior, error)

// BehaviorRegistry holds metadata and constructors for all behavior kinds.
// This centralizes naming so the config, the factory and the perf tracker stay in sync.
type BehaviorRegistry struct {
	behaviors []BehaviorInfo
	byKind    map[string]BehaviorInfo
	ctors     map[string]Constructor
}

// NewBehaviorRegistry creates a registry with all known behavior kinds.
func NewBehaviorRegistry() *BehaviorRegistry {
	reg := &BehaviorRegistry{
		byKind: make(map[string]BehaviorInfo),
		ctors:  make(map[string]Constructor),
	}
	reg.registerDefaults()
	return reg
}

// registerDefaults adds all known behavior kinds to the registry.
// Update this when adding new behaviors.
func (r *BehaviorRegistry) registerDefaults() {
	// Environment
	r.Register(BehaviorInfo{Kind: "climate", Name: "Climate", Description: "Rolls the climate schedule into plot climate", Category: "environment"}, NewClimate)
	r.Register(BehaviorInfo{Kind: "tree_state", Name: "Tree State", Description: "Registers damage and infestation fields and advances them", Category: "environment"}, NewTreeState)

	// Light
	r.Register(BehaviorInfo{Kind: "gli_light", Name: "GLI Light", Description: "Computes each tree's GLI", Category: "light"}, NewGLILight)
	r.Register(BehaviorInfo{Kind: "gli_points", Name: "GLI Points", Description: "Computes GLI at fixed points", Category: "light"}, NewGLIPoints)
	r.Register(BehaviorInfo{Kind: "gli_map", Name: "GLI Map", Description: "Computes GLI over a grid", Category: "light"}, NewGLIMap)

	// Growth and mortality
	r.Register(BehaviorInfo{Kind: "nci_growth", Name: "NCI Growth", Description: "Computes diameter growth from neighborhood competition", Category: "growth"}, NewNCIGrowth)
	r.Register(BehaviorInfo{Kind: "growth_applier", Name: "Growth Applier", Description: "Applies growth and reclassifies life stages", Category: "growth"}, NewGrowthApplier)
	r.Register(BehaviorInfo{Kind: "nci_mortality", Name: "NCI Mortality", Description: "Kills trees from neighborhood competition", Category: "mortality"}, NewNCIMortality)

	// Population
	r.Register(BehaviorInfo{Kind: "epiphytic_establishment", Name: "Epiphytic Establishment", Description: "Establishes epiphyte seedlings on host crowns", Category: "population"}, NewEpiphyticEstablishment)
	r.Register(BehaviorInfo{Kind: "dead_removal", Name: "Dead Removal", Description: "Removes dead trees", Category: "population"}, NewDeadRemoval)
}

// Register adds a behavior kind to the registry.
func (r *BehaviorRegistry) Register(info BehaviorInfo, ctor Constructor) {
	if _, dup := r.byKind[info.Kind]; !dup {
		r.behaviors = append(r.behaviors, info)
	}
	r.byKind[info.Kind] = info
	r.ctors[info.Kind] = ctor
}

// Get returns behavior info by kind.
func (r *BehaviorRegistry) Get(kind string) (BehaviorInfo, bool) {
	info, ok := r.byKind[kind]
	return info, ok
}

// GetName returns the display name for a behavior kind.
// Falls back to the kind itself if not found.
func (r *BehaviorRegistry) GetName(kind string) string {
	if info, ok := r.byKind[kind]; ok {
		return info.Name
	}
	return kind
}

// All returns all registered behavior kinds.
func (r *BehaviorRegistry) All() []BehaviorInfo {
	return r.behaviors
}

// ByCategory returns behavior kinds filtered by category.
func (r *BehaviorRegistry) ByCategory(category string) []BehaviorInfo {
	var result []BehaviorInfo
	for _, info := range r.behaviors {
		if info.Category == category {
			result = append(result, info)
		}
	}
	return result
}

// Categories returns all unique categories.
func (r *BehaviorRegistry) Categories() []string {
	seen := make(map[string]bool)
	var cats []string
	for _, info := range r.behaviors {
		if !seen[info.Category] {
			seen[info.Category] = true
			cats = append(cats, info.Category)
		}
	}
	return cats
}

// Kinds returns all behavior kinds in registration order.
func (r *BehaviorRegistry) Kinds() []string {
	kinds := make([]string, len(r.behaviors))
	for i, info := range r.behaviors {
		kinds[i] = info.Kind
	}
	return kinds
}

// Build constructs one configured behavior.
func (r *BehaviorRegistry) Build(cfg config.BehaviorConfig, names []string) (Behavior, error) {
	if cfg.Name == "" {
		return nil, simerr.Config("behaviors", "name", "behavior of kind %q has no name", cfg.Kind)
	}
	ctor, ok := r.ctors[cfg.Kind]
	if !ok {
		return nil, simerr.Config(cfg.Name, "kind", "unknown behavior kind %q", cfg.Kind)
	}
	return ctor(cfg, names)
}

// BuildAll constructs the configured behaviors in run order. Names must be unique.
func (r *BehaviorRegistry) BuildAll(cfgs []config.BehaviorConfig, names []string) ([]Behavior, error) {
	seen := make(map[string]bool, len(cfgs))
	out := make([]Behavior, 0, len(cfgs))
	for _, c := range cfgs {
		if seen[c.Name] {
			return nil, simerr.Config(c.Name, "name", "duplicate behavior name")
		}
		seen[c.Name] = true
		b, err := r.Build(c, names)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
