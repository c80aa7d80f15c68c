// Package registry holds the static table of check definitions.
package registry

import (
	"fmt"

	"github.com/seolens/ai-visibility/internal/analysis"
)

// Definition binds one check to its stage, category, and scoring weight.
// Definitions are immutable and shared read-only by all jobs.
type Definition struct {
	// Name uniquely identifies the check across the whole registry.
	Name string
	// Stage owns the check; a check belongs to exactly one stage.
	Stage analysis.Stage
	// Category groups the check for scoring; exactly one per check.
	Category analysis.Category
	// Weight is the check's share of its category, in percent. Weights
	// within one category must sum to 100.
	Weight int
	// Description is a human-readable template shown alongside results.
	Description string
	// Check executes the test.
	Check analysis.Check
}

// CategoryWeight returns the fixed share of the overall score owned by a
// category, in percent.
func CategoryWeight(c analysis.Category) int {
	switch c {
	case analysis.CategoryAIAccess:
		return 40
	case analysis.CategoryContent:
		return 35
	case analysis.CategoryTechnical:
		return 15
	case analysis.CategoryStructure:
		return 10
	default:
		return 0
	}
}

// Registry is the validated, immutable check table.
type Registry struct {
	byStage map[analysis.Stage][]Definition
	byName  map[string]Definition
}

// New validates the definitions and builds a Registry. Validation is strict
// and runs once at process start: duplicate names, unknown stages or
// categories, empty stages, and category weight sums other than 100 all fail
// construction.
func New(defs []Definition) (*Registry, error) {
	r := &Registry{
		byStage: make(map[analysis.Stage][]Definition),
		byName:  make(map[string]Definition),
	}
	weightSums := make(map[analysis.Category]int)

	for _, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("registry: definition with empty name")
		}
		if _, dup := r.byName[def.Name]; dup {
			return nil, fmt.Errorf("registry: duplicate check %q", def.Name)
		}
		if !validStage(def.Stage) {
			return nil, fmt.Errorf("registry: check %q has unknown stage %q", def.Name, def.Stage)
		}
		if CategoryWeight(def.Category) == 0 {
			return nil, fmt.Errorf("registry: check %q has unknown category %q", def.Name, def.Category)
		}
		if def.Weight <= 0 {
			return nil, fmt.Errorf("registry: check %q has non-positive weight %d", def.Name, def.Weight)
		}
		if def.Check == nil {
			return nil, fmt.Errorf("registry: check %q has no implementation", def.Name)
		}
		r.byName[def.Name] = def
		r.byStage[def.Stage] = append(r.byStage[def.Stage], def)
		weightSums[def.Category] += def.Weight
	}

	for _, stage := range analysis.Stages() {
		if len(r.byStage[stage]) == 0 {
			return nil, fmt.Errorf("registry: stage %q has no checks", stage)
		}
	}
	for category, sum := range weightSums {
		if sum != 100 {
			return nil, fmt.Errorf("registry: category %q weights sum to %d, want 100", category, sum)
		}
	}
	return r, nil
}

// ChecksForStage returns the definitions owned by a stage, in registration
// order.
func (r *Registry) ChecksForStage(stage analysis.Stage) []Definition {
	defs := r.byStage[stage]
	out := make([]Definition, len(defs))
	copy(out, defs)
	return out
}

// Lookup returns the definition for a check name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// Len returns the total number of registered checks.
func (r *Registry) Len() int {
	return len(r.byName)
}

// CheckWeight returns the in-category weight for a check name, or 0 when the
// check is unknown. The Scoring Engine uses this to weight resolved results.
func (r *Registry) CheckWeight(name string) int {
	def, ok := r.byName[name]
	if !ok {
		return 0
	}
	return def.Weight
}

func validStage(s analysis.Stage) bool {
	for _, stage := range analysis.Stages() {
		if s == stage {
			return true
		}
	}
	return false
}
