// Package policy defines the external scheduling-policy contract (§6) and
// a concrete greedy reference implementation that exercises the resource
// accounter, application registry, binding manager and working-mode
// machinery end to end.
package policy

import (
	"github.com/bbque-go/bbqued/pkg/accounter"
	"github.com/bbque-go/bbqued/pkg/appmanager"
	"github.com/bbque-go/bbqued/pkg/binding"
	"github.com/bbque-go/bbqued/pkg/restree"
	"github.com/bbque-go/bbqued/pkg/rtid"
)

// Policy is a pluggable scheduling policy. Run is invoked once per
// scheduling round with a handle to the resource accounter and the
// application registry; it opens (or reuses) a speculative view, picks an
// AWM and binding for each candidate EXC, and returns the view token the
// scheduler manager should carry through sync_start/sync_acquire*/
// sync_commit. The core never calls a policy on its own — something
// external (a periodic trigger, an admin command) decides when a round
// runs.
type Policy interface {
	Name() string
	Run(acc *accounter.Accounter, mgr *appmanager.Manager, binder *binding.Manager, tree *restree.Tree) (rtid.ViewToken, error)
}
