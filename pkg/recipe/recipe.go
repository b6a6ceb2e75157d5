// Package recipe defines the external Recipe contract (§6): the declarative
// description of an application's working modes and constraints that an
// EXC is bound to at admission time. Parsing recipe files (XML/YAML/...)
// is explicitly out of scope; this package only carries the in-memory
// shape a loader is expected to produce, plus the normalization math
// spec.md requires be applied once, at load time, across a recipe's AWMs.
package recipe

import (
	"fmt"
	"math"

	"github.com/bbque-go/bbqued/pkg/accounter"
	"github.com/bbque-go/bbqued/pkg/awm"
	"github.com/bbque-go/bbqued/pkg/respath"
)

// RequestSpec is one AWM's recipe-level resource request: a template path
// and the amount needed, with the fill policy used to spread it across
// whatever candidates a later bind resolves.
type RequestSpec struct {
	Path   *respath.Path
	Amount uint64
	Policy accounter.FillPolicy
}

// RangeConstraint is a static lower/upper bound on a resource path, as
// carried by a recipe independently of any per-application constraint the
// policy applies at runtime.
type RangeConstraint struct {
	Lower *uint64
	Upper *uint64
}

// PluginData is an opaque bag of vendor/plugin-specific recipe values,
// keyed by (plugin name, key). Readers are responsible for parsing values
// themselves; there is no typed enum here because the set of consumers
// isn't fixed.
type PluginData map[[2]string]string

// Get returns the plugin value for (plugin, key), if present.
func (d PluginData) Get(plugin, key string) (string, bool) {
	v, ok := d[[2]string{plugin, key}]
	return v, ok
}

// Set records a plugin value for (plugin, key).
func (d PluginData) Set(plugin, key, value string) {
	d[[2]string{plugin, key}] = value
}

// AWMSpec is one recipe-level working mode: an id, name, unnormalized
// integer value, optional profiled configuration time, and its resource
// request map.
type AWMSpec struct {
	ID         uint8
	Name       string
	Value      float64
	ConfigTime *float64
	Requests   []RequestSpec
}

// Recipe is the contract a recipe loader must satisfy: an AWM vector,
// static resource-range constraints, and a plugin-data bag. Task-graph
// requirements and design-time mappings are carried inside PluginData by
// convention (their wire format is outside this package's scope).
type Recipe interface {
	Priority() int
	AWMs() []AWMSpec
	RangeConstraints() map[string]RangeConstraint
	PluginData() PluginData
}

// Build constructs the runtime []*awm.AWM set for rec, normalizing AWM
// value to [0,1] via value/max and profiled config time to
// (t-min)/(max-min), exactly as spec.md §3 describes. Recipes with a
// single AWM normalize to 1.0 (there's nothing to divide against).
func Build(rec Recipe) ([]*awm.AWM, error) {
	specs := rec.AWMs()
	if len(specs) == 0 {
		return nil, fmt.Errorf("recipe: no working modes")
	}

	maxValue := 0.0
	minTime, maxTime := math.Inf(1), math.Inf(-1)
	haveTime := false
	for _, s := range specs {
		if s.Value > maxValue {
			maxValue = s.Value
		}
		if s.ConfigTime != nil {
			haveTime = true
			if *s.ConfigTime < minTime {
				minTime = *s.ConfigTime
			}
			if *s.ConfigTime > maxTime {
				maxTime = *s.ConfigTime
			}
		}
	}

	out := make([]*awm.AWM, 0, len(specs))
	for _, s := range specs {
		w := awm.New(s.ID, s.Name, s.Value)
		for _, req := range s.Requests {
			w.AddRequestPolicy(req.Path, req.Amount, req.Policy)
		}

		if maxValue > 0 {
			w.SetNormalizedValue(s.Value / maxValue)
		} else {
			w.SetNormalizedValue(1.0)
		}

		if s.ConfigTime != nil {
			w.SetConfigTime(*s.ConfigTime)
			if haveTime && maxTime > minTime {
				w.SetNormalizedConfigTime((*s.ConfigTime - minTime) / (maxTime - minTime))
			} else {
				w.SetNormalizedConfigTime(0)
			}
		}

		out = append(out, w)
	}
	return out, nil
}
