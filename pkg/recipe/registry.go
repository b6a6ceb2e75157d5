package recipe

import (
	"fmt"
	"sync"

	"github.com/bbque-go/bbqued/pkg/awm"
)

// StaticRecipe is an in-memory Recipe built by a caller (tests, a
// programmatic admission path, or a future file-format loader) rather than
// parsed from disk.
type StaticRecipe struct {
	BasePriority int
	Working      []AWMSpec
	Ranges       map[string]RangeConstraint
	Plugins      PluginData
}

func (r *StaticRecipe) Priority() int                                { return r.BasePriority }
func (r *StaticRecipe) AWMs() []AWMSpec                              { return r.Working }
func (r *StaticRecipe) RangeConstraints() map[string]RangeConstraint { return r.Ranges }
func (r *StaticRecipe) PluginData() PluginData                       { return r.Plugins }

// Registry is a name-keyed Recipe store and satisfies
// appmanager.RecipeLoader by building a recipe's AWMs on every Load call;
// it keeps no cache of built AWMs.
type Registry struct {
	mu      sync.RWMutex
	recipes map[string]Recipe
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{recipes: make(map[string]Recipe)}
}

// Register adds or replaces the recipe known as name.
func (r *Registry) Register(name string, rec Recipe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recipes[name] = rec
}

// Load builds name's AWM set and returns it alongside the recipe's base
// priority, satisfying appmanager.RecipeLoader.
func (r *Registry) Load(name string) ([]*awm.AWM, int, error) {
	r.mu.RLock()
	rec, ok := r.recipes[name]
	r.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("recipe: unknown recipe %q", name)
	}

	awms, err := Build(rec)
	if err != nil {
		return nil, 0, fmt.Errorf("recipe: building %q: %w", name, err)
	}
	return awms, rec.Priority(), nil
}
