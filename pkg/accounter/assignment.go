package accounter

import "github.com/bbque-go/bbqued/pkg/resource"

// FillPolicy controls how a requested amount is spread across an
// assignment's candidate resource list.
type FillPolicy int

const (
	// Sequential fills each candidate to its available capacity before
	// moving on to the next.
	Sequential FillPolicy = iota
	// Balanced targets amount/remaining_candidates per step, falling back
	// to sequential when a candidate is short.
	Balanced
)

// Assignment is a request record: an amount to book, a fill policy, and the
// candidate resource list materialized at bind time.
type Assignment struct {
	Amount     uint64
	Policy     FillPolicy
	Candidates []*resource.Resource

	// FirstBound and LastBound record the first and last candidate actually
	// consumed during booking, for later locality queries.
	FirstBound *resource.Resource
	LastBound  *resource.Resource
}

// Clone returns a shallow copy of the assignment (candidates slice is
// shared; tracking pointers are reset for a fresh booking attempt).
func (a *Assignment) Clone() *Assignment {
	return &Assignment{
		Amount:     a.Amount,
		Policy:     a.Policy,
		Candidates: a.Candidates,
	}
}

// Usages is the per-path set of resource requests for one booking call,
// keyed by the rendered resource-path string (respath.Path.String()).
type Usages map[string]*Assignment
