package policy

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbque-go/bbqued/pkg/accounter"
	"github.com/bbque-go/bbqued/pkg/app"
	"github.com/bbque-go/bbqued/pkg/appmanager"
	"github.com/bbque-go/bbqued/pkg/binding"
	"github.com/bbque-go/bbqued/pkg/recipe"
	"github.com/bbque-go/bbqued/pkg/respath"
	"github.com/bbque-go/bbqued/pkg/restree"
	"github.com/bbque-go/bbqued/pkg/rtid"
)

func path(t *testing.T, s string) *respath.Path {
	t.Helper()
	p, err := respath.ParseString(s, false)
	require.NoError(t, err)
	return p
}

// fixture wires a two-CPU platform with four PEs per CPU, a ready binding manager and
// a fresh accounter, matching the platform scenario.md §8 fixtures share.
type fixture struct {
	tree   *restree.Tree
	acc    *accounter.Accounter
	binder *binding.Manager
	mgr    *appmanager.Manager
	reg    *recipe.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tree := restree.New()
	for i := 0; i < 2; i++ {
		for j := 0; j < 4; j++ {
			tree.Insert(path(t, fmtPath(i, j))).SetTotal(100)
		}
	}

	binder := binding.New()
	binder.Configure(respath.CPU, path(t, "sys.cpu"))
	require.NoError(t, binder.Init(tree))

	acc := accounter.New(tree, zerolog.Nop())
	acc.SetReady()

	reg := recipe.NewRegistry()
	mgr := appmanager.New(reg, 0, zerolog.Nop())

	return &fixture{tree: tree, acc: acc, binder: binder, mgr: mgr, reg: reg}
}

func fmtPath(cpu, pe int) string {
	return "sys0.cpu" + itoa(cpu) + ".pe" + itoa(pe)
}

func itoa(v int) string {
	if v == 0 {
		return "0"
	}
	digits := ""
	for v > 0 {
		digits = string(rune('0'+v%10)) + digits
		v /= 10
	}
	return digits
}

// commitRound drives the sync-session protocol to completion for every EXC
// the policy just moved into SYNC: SyncStart (no running apps carried
// forward, since these fixtures start from READY), SyncAcquire each
// newly-scheduled binding, SyncCommit, then ScheduleCommit on every EXC.
func commitRound(t *testing.T, f *fixture, scheduled []*app.App) accounter.Code {
	t.Helper()
	require.Equal(t, accounter.Success, f.acc.SyncStart(nil))

	for _, a := range scheduled {
		next := a.NextAWM()
		if next == nil {
			continue
		}
		if code := f.acc.SyncAcquire(a.UID(), next.SyncBinding()); !code.Ok() {
			return code
		}
	}
	code := f.acc.SyncCommit()
	if code.Ok() {
		for _, a := range scheduled {
			a.ScheduleCommit()
		}
	}
	return code
}

func TestGreedyPolicySingleExcSingleAwmReachesRunning(t *testing.T) {
	f := newFixture(t)
	f.reg.Register("r1", &recipe.StaticRecipe{
		BasePriority: 5,
		Working: []recipe.AWMSpec{{
			ID: 0, Name: "default", Value: 1,
			Requests: []recipe.RequestSpec{{Path: path(t, "sys.cpu.pe"), Amount: 50}},
		}},
	})

	a, err := f.mgr.CreateEXC(1, 0, "r1", 5)
	require.NoError(t, err)
	require.Equal(t, app.WMEnabChanged, a.Enable())

	p := NewGreedy(zerolog.Nop())
	_, err = p.Run(f.acc, f.mgr, f.binder, f.tree)
	require.NoError(t, err)
	require.Equal(t, app.Sync, a.State())
	require.Equal(t, app.Starting, a.SyncState())

	code := commitRound(t, f, []*app.App{a})
	require.True(t, code.Ok())
	assert.Equal(t, app.Running, a.State())

	used, ok := f.acc.AppUsages(rtid.SystemView, a.UID())
	require.True(t, ok)
	asn, ok := used["sys.cpu0.pe"]
	require.True(t, ok)
	assert.EqualValues(t, 50, asn.Amount)
}

func TestGreedyPolicyInsufficientCapacityLeavesExcReady(t *testing.T) {
	f := newFixture(t)
	f.reg.Register("r1", &recipe.StaticRecipe{
		BasePriority: 5,
		Working: []recipe.AWMSpec{{
			ID: 0, Name: "default", Value: 1,
			Requests: []recipe.RequestSpec{{Path: path(t, "sys.cpu.pe"), Amount: 500}},
		}},
	})

	a, err := f.mgr.CreateEXC(1, 0, "r1", 5)
	require.NoError(t, err)
	a.Enable()

	p := NewGreedy(zerolog.Nop())
	_, err = p.Run(f.acc, f.mgr, f.binder, f.tree)
	require.NoError(t, err)

	assert.Equal(t, app.Ready, a.State(), "a rejected booking must leave the EXC in READY")
	_, ok := f.acc.AppUsages(rtid.SystemView, a.UID())
	assert.False(t, ok)
}

func TestGreedyPolicyConstraintInvalidatesRunningAwm(t *testing.T) {
	f := newFixture(t)
	f.reg.Register("r1", &recipe.StaticRecipe{
		BasePriority: 5,
		Working: []recipe.AWMSpec{
			{ID: 3, Name: "only", Value: 1,
				Requests: []recipe.RequestSpec{{Path: path(t, "sys.cpu.pe"), Amount: 10}}},
		},
	})

	a, err := f.mgr.CreateEXC(1, 0, "r1", 5)
	require.NoError(t, err)
	a.Enable()

	p := NewGreedy(zerolog.Nop())
	_, err = p.Run(f.acc, f.mgr, f.binder, f.tree)
	require.NoError(t, err)
	require.True(t, commitRound(t, f, []*app.App{a}).Ok())
	require.Equal(t, app.Running, a.State())

	code := a.SetAWMConstraint(app.Constraint{Op: app.AddConstraint, Bound: app.LowerBound, ID: 5})
	assert.True(t, code.Ok())
	assert.True(t, a.CurrInv(), "a lower bound excluding the running AWM must flag curr_inv")

	for _, w := range a.EnabledWorkingModes() {
		assert.NotEqual(t, uint8(3), w.ID, "the now-excluded AWM must not appear in the enabled list")
	}
}
