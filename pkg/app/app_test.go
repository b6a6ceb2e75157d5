package app

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbque-go/bbqued/pkg/accounter"
	"github.com/bbque-go/bbqued/pkg/awm"
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

func newFixture(t *testing.T) (*restree.Tree, *accounter.Accounter) {
	t.Helper()
	tree := restree.New()
	for _, p := range []string{"sys0.cpu0.pe0", "sys0.cpu0.pe1", "sys0.cpu1.pe0", "sys0.cpu1.pe1"} {
		r := tree.Insert(path(t, p))
		r.SetTotal(100)
	}
	acc := accounter.New(tree, zerolog.Nop())
	acc.SetReady()
	return tree, acc
}

func fixtureAWM(t *testing.T, tree *restree.Tree, id uint8, cpuID int64, amount uint64) (*awm.AWM, uint64) {
	t.Helper()
	w := awm.New(id, "m", 0.5)
	w.AddRequest(path(t, "sys.cpu.pe"), amount)
	refn, err := w.Bind(respath.CPU, respath.IDAny, cpuID, 0, tree)
	require.NoError(t, err)
	return w, refn
}

func fixtureAWMWithValue(t *testing.T, tree *restree.Tree, id uint8, cpuID int64, amount uint64, value float64) (*awm.AWM, uint64) {
	t.Helper()
	w := awm.New(id, "m", value)
	w.AddRequest(path(t, "sys.cpu.pe"), amount)
	refn, err := w.Bind(respath.CPU, respath.IDAny, cpuID, 0, tree)
	require.NoError(t, err)
	return w, refn
}

func TestEnableDisableTransitions(t *testing.T) {
	a := New(rtid.MakeAppUID(1, 0), 5)
	assert.Equal(t, Disabled, a.State())

	var transitions [][2]State
	a.SetNotifier(func(_ *App, old, new State) {
		transitions = append(transitions, [2]State{old, new})
	})

	assert.Equal(t, WMEnabChanged, a.Enable())
	assert.Equal(t, Ready, a.State())
	assert.Equal(t, WMEnabUnchanged, a.Enable(), "enabling an already-ready EXC is a no-op")

	assert.Equal(t, WMEnabChanged, a.Disable())
	assert.Equal(t, Disabled, a.State())

	require.Len(t, transitions, 2)
	assert.Equal(t, [2]State{Disabled, Ready}, transitions[0])
	assert.Equal(t, [2]State{Ready, Disabled}, transitions[1])
}

func TestTerminateIsIdempotent(t *testing.T) {
	a := New(rtid.MakeAppUID(1, 0), 5)
	a.Enable()
	assert.Equal(t, Success, a.Terminate())
	assert.Equal(t, Finished, a.State())
	assert.Equal(t, Finished, a.Terminate(), "second terminate reports already finished")
}

func TestScheduleRequestFromReadyReachesSyncStarting(t *testing.T) {
	tree, acc := newFixture(t)
	a := New(rtid.MakeAppUID(1, 0), 5)
	a.Enable()

	w, refn := fixtureAWM(t, tree, 1, 0, 50)
	view, code := acc.GetView("speculative")
	require.Equal(t, accounter.Success, code)

	assert.Equal(t, Success, a.ScheduleRequest(w, view, refn, acc))
	assert.Equal(t, Sync, a.State())
	assert.Equal(t, Starting, a.SyncState())
	assert.Equal(t, w, a.NextAWM())
}

func TestScheduleCommitPromotesNextAwmAndRuns(t *testing.T) {
	tree, acc := newFixture(t)
	a := New(rtid.MakeAppUID(1, 0), 5)
	a.Enable()

	w, refn := fixtureAWM(t, tree, 1, 0, 50)
	view, _ := acc.GetView("speculative")
	require.Equal(t, Success, a.ScheduleRequest(w, view, refn, acc))

	require.Equal(t, accounter.Success, acc.SetView(view))
	assert.Equal(t, Success, a.ScheduleCommit())
	assert.Equal(t, Running, a.State())
	assert.Equal(t, w, a.CurrentAWM())
	assert.Nil(t, a.NextAWM())
}

func TestScheduleCommitResetsGoalGapOnHigherValueAwm(t *testing.T) {
	tree, acc := newFixture(t)
	a := New(rtid.MakeAppUID(1, 0), 5)
	a.Enable()

	w1, refn1 := fixtureAWMWithValue(t, tree, 1, 0, 50, 0.3)
	view1, _ := acc.GetView("speculative")
	require.Equal(t, Success, a.ScheduleRequest(w1, view1, refn1, acc))
	require.Equal(t, accounter.Success, acc.SetView(view1))
	require.Equal(t, Success, a.ScheduleCommit())
	require.Equal(t, Running, a.State())

	a.SetGoalGap(42)
	assert.Equal(t, 42, a.GoalGap())

	w2, refn2 := fixtureAWMWithValue(t, tree, 2, 1, 50, 0.8)
	view2, _ := acc.GetView("speculative2")
	require.Equal(t, Success, a.ScheduleRequest(w2, view2, refn2, acc))
	require.Equal(t, accounter.Success, acc.SetView(view2))

	assert.Equal(t, Success, a.ScheduleCommit())
	assert.Equal(t, w2, a.CurrentAWM())
	assert.Equal(t, 0, a.GoalGap(), "goal gap must reset when committing onto a higher-value AWM")
}

func TestScheduleAbortReturnsToReadyAndClearsAwms(t *testing.T) {
	tree, acc := newFixture(t)
	a := New(rtid.MakeAppUID(1, 0), 5)
	a.Enable()

	w, refn := fixtureAWM(t, tree, 1, 0, 50)
	view, _ := acc.GetView("speculative")
	require.Equal(t, Success, a.ScheduleRequest(w, view, refn, acc))

	assert.Equal(t, Success, a.ScheduleAbort())
	assert.Equal(t, Ready, a.State())
	assert.Nil(t, a.CurrentAWM())
	assert.Nil(t, a.NextAWM())
}

func TestScheduleRequestOnDisabledExcFails(t *testing.T) {
	tree, acc := newFixture(t)
	a := New(rtid.MakeAppUID(1, 0), 5)

	w, refn := fixtureAWM(t, tree, 1, 0, 50)
	view, _ := acc.GetView("speculative")
	assert.Equal(t, Disabled, a.ScheduleRequest(w, view, refn, acc))
}

func TestScheduleRequestRejectedWhenCapacityExhausted(t *testing.T) {
	tree, acc := newFixture(t)
	a1 := New(rtid.MakeAppUID(1, 0), 5)
	a1.Enable()
	a2 := New(rtid.MakeAppUID(2, 0), 5)
	a2.Enable()

	w1, refn1 := fixtureAWM(t, tree, 1, 0, 100)
	view, _ := acc.GetView("speculative")
	require.Equal(t, Success, a1.ScheduleRequest(w1, view, refn1, acc))

	w2 := awm.New(1, "m", 0.5)
	w2.AddRequest(path(t, "sys.cpu.pe"), 200)
	refn2, err := w2.Bind(respath.CPU, respath.IDAny, 0, 0, tree)
	require.NoError(t, err)

	assert.Equal(t, WMRejected, a2.ScheduleRequest(w2, view, refn2, acc))
	assert.Equal(t, Ready, a2.State(), "booking failure on a never-scheduled EXC leaves it in READY")
}

func TestUnscheduleBlocksARunningExc(t *testing.T) {
	tree, acc := newFixture(t)
	a := New(rtid.MakeAppUID(1, 0), 5)
	a.Enable()

	w, refn := fixtureAWM(t, tree, 1, 0, 50)
	view, _ := acc.GetView("speculative")
	require.Equal(t, Success, a.ScheduleRequest(w, view, refn, acc))
	require.Equal(t, accounter.Success, acc.SetView(view))
	require.Equal(t, Success, a.ScheduleCommit())

	assert.Equal(t, Success, a.Unschedule())
	assert.Equal(t, Sync, a.State())
	assert.Equal(t, Blocked, a.SyncState())

	assert.Equal(t, Success, a.ScheduleCommit())
	assert.Equal(t, Ready, a.State())
	assert.Nil(t, a.CurrentAWM())
}

func TestSyncRequiredMigrecOnDifferentAwmAndCpuSet(t *testing.T) {
	a := New(rtid.MakeAppUID(1, 0), 5)
	tree, _ := newFixture(t)

	cur, curRefn := fixtureAWM(t, tree, 1, 0, 50)
	require.NoError(t, cur.SetResourceBinding(rtid.SystemView, curRefn))

	next, nextRefn := fixtureAWM(t, tree, 2, 1, 50)
	require.NoError(t, next.SetResourceBinding(rtid.SystemView, nextRefn))

	a.mu.Lock()
	a.curAWM = cur
	a.mu.Unlock()

	assert.Equal(t, Migrec, a.SyncRequired(next, false))
}

func TestSyncRequiredReconfOnSameAwmDifferentCandidateAllocation(t *testing.T) {
	a := New(rtid.MakeAppUID(1, 0), 5)
	tree, _ := newFixture(t)

	cur, curRefn := fixtureAWM(t, tree, 1, 0, 50)
	require.NoError(t, cur.SetResourceBinding(rtid.SystemView, curRefn))

	a.mu.Lock()
	a.curAWM = cur
	a.mu.Unlock()

	assert.Equal(t, Reconf, a.SyncRequired(cur, true), "same AWM id and cpu set: reshuffled candidate allocation still forces RECONF")
	assert.Equal(t, None, a.SyncRequired(cur, false), "same AWM id, same cpu set, no reshuffle is a no-op")
}

func TestSetAWMConstraintFlagsCurrInvWhenRunningAwmExcluded(t *testing.T) {
	a := New(rtid.MakeAppUID(1, 0), 5)
	w1 := awm.New(1, "low", 0.2)
	w2 := awm.New(3, "high", 0.8)
	w3 := awm.New(5, "higher", 0.9)
	a.SetWorkingModes([]*awm.AWM{w1, w2, w3})

	assert.Len(t, a.EnabledWorkingModes(), 3)

	a.mu.Lock()
	a.curAWM = w2
	a.mu.Unlock()

	assert.Equal(t, Success, a.SetAWMConstraint(Constraint{Op: AddConstraint, Bound: LowerBound, ID: 5}))
	assert.True(t, a.CurrInv())

	enabled := a.EnabledWorkingModes()
	require.Len(t, enabled, 1)
	assert.Equal(t, uint8(5), enabled[0].ID)
}

func TestSetAWMConstraintExactActsAsAllowlist(t *testing.T) {
	a := New(rtid.MakeAppUID(1, 0), 5)
	w1 := awm.New(1, "a", 0.2)
	w2 := awm.New(2, "b", 0.5)
	a.SetWorkingModes([]*awm.AWM{w1, w2})

	assert.Equal(t, Success, a.SetAWMConstraint(Constraint{Op: AddConstraint, Bound: ExactBound, ID: 2}))
	enabled := a.EnabledWorkingModes()
	require.Len(t, enabled, 1)
	assert.Equal(t, uint8(2), enabled[0].ID)

	assert.Equal(t, Success, a.SetAWMConstraint(Constraint{Op: RemoveConstraint, Bound: ExactBound, ID: 2}))
	assert.Len(t, a.EnabledWorkingModes(), 2)
}

func TestEnabledListExcludesHiddenAwms(t *testing.T) {
	a := New(rtid.MakeAppUID(1, 0), 5)
	tree, _ := newFixture(t)

	w := awm.New(1, "impossible", 0.5)
	w.AddRequest(path(t, "sys.cpu.pe"), 100000)
	w.Validate(tree)
	a.SetWorkingModes([]*awm.AWM{w})

	assert.Empty(t, a.EnabledWorkingModes())
}
