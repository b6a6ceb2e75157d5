// Package app implements the EXC (execution context): an application's
// lifecycle and synchronization state machine, its enabled working-mode
// list under constraints, and the schedule/commit/abort protocol a policy
// drives it through.
package app

import (
	"sort"
	"sync"

	"github.com/bbque-go/bbqued/pkg/accounter"
	"github.com/bbque-go/bbqued/pkg/awm"
	"github.com/bbque-go/bbqued/pkg/respath"
	"github.com/bbque-go/bbqued/pkg/rtid"
)

// Notifier is called after every state transition, once the EXC's own lock
// has been released, so the application manager can move the EXC between
// its state queues without risking a lock-order cycle back into the EXC.
type Notifier func(a *App, old, newState State)

// ConstraintOp is whether a constraint adds or removes a bound.
type ConstraintOp int

const (
	AddConstraint ConstraintOp = iota
	RemoveConstraint
)

// ConstraintBound selects which part of the AWM id range a constraint
// narrows.
type ConstraintBound int

const (
	LowerBound ConstraintBound = iota
	UpperBound
	ExactBound
)

// Constraint narrows the set of AWM ids an EXC may be scheduled onto.
type Constraint struct {
	Op    ConstraintOp
	Bound ConstraintBound
	ID    uint8
}

type constraintState struct {
	lower *uint8
	upper *uint8
	exact awm.Bitset
}

// App is one EXC: an application's execution context against the platform.
type App struct {
	mu sync.Mutex

	uid      rtid.AppUID
	priority int

	state     State
	syncState SyncState
	preSync   State

	curAWM  *awm.AWM
	nextAWM *awm.AWM

	allAWMs     []*awm.AWM
	enabledList []*awm.AWM
	constraints constraintState
	currInv     bool

	// ggapPercent is the runtime-profiling goal gap: how far off the
	// application's measured performance is from its goal, as a percentage.
	// It is reset to 0 whenever a commit moves the EXC onto a higher-value
	// AWM, since the new AWM invalidates any gap measured against the old one.
	ggapPercent int

	bindingDomain respath.Type

	notifier Notifier
}

// New returns a DISABLED EXC for the given application identity.
func New(uid rtid.AppUID, priority int) *App {
	return &App{
		uid:           uid,
		priority:      priority,
		state:         Disabled,
		bindingDomain: respath.CPU,
	}
}

// UID returns the EXC's application identity.
func (a *App) UID() rtid.AppUID {
	return a.uid
}

// Priority returns the EXC's scheduling priority.
func (a *App) Priority() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.priority
}

// SetNotifier registers the callback invoked after every state transition.
func (a *App) SetNotifier(n Notifier) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notifier = n
}

// SetBindingDomain overrides the resource type compared for MIGREC/MIGRATE
// decisions (default CPU), matching the binding manager's configured
// binding-domain type.
func (a *App) SetBindingDomain(t respath.Type) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.bindingDomain = t
}

// SetWorkingModes installs the recipe's AWM set and rebuilds the enabled
// list.
func (a *App) SetWorkingModes(awms []*awm.AWM) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.allAWMs = awms
	a.rebuildEnabledListLocked()
}

// State returns the EXC's current lifecycle state.
func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SyncState returns the EXC's current synchronization sub-state.
func (a *App) SyncState() SyncState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.syncState
}

// CurrentAWM returns the working mode the EXC is running on, or nil.
func (a *App) CurrentAWM() *awm.AWM {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.curAWM
}

// NextAWM returns the working mode scheduled to become current at the next
// commit, or nil.
func (a *App) NextAWM() *awm.AWM {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextAWM
}

// CurrInv reports whether the currently running AWM has fallen outside the
// constrained enabled list and must be replaced on the next policy round.
func (a *App) CurrInv() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currInv
}

// GoalGap returns the runtime-profiling goal gap last reported for this EXC.
func (a *App) GoalGap() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ggapPercent
}

// SetGoalGap records a runtime-profiling goal gap, as reported by the
// application itself, for the scheduling policy to read back.
func (a *App) SetGoalGap(percent int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ggapPercent = percent
}

// EnabledWorkingModes returns the AWMs currently eligible for scheduling:
// not hidden, within the active constraints, ascending by value. Callers
// must not mutate the returned slice.
func (a *App) EnabledWorkingModes() []*awm.AWM {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabledList
}

// setStateLocked performs the transition and returns (old, newState) for the
// caller to hand to the notifier once unlocked. Entering Disabled or Ready
// clears both AWM pointers.
func (a *App) setStateLocked(state State, sync SyncState) (State, State) {
	old := a.state
	if state == Sync {
		a.preSync = a.state
	} else {
		a.preSync = state
	}
	a.syncState = sync
	a.state = state
	if state == Disabled || state == Ready {
		a.curAWM = nil
		a.nextAWM = nil
	}
	return old, state
}

func (a *App) notify(old, newState State) {
	a.mu.Lock()
	n := a.notifier
	a.mu.Unlock()
	if n != nil {
		n(a, old, newState)
	}
}

// Enable moves a DISABLED EXC to READY. A no-op on an already-enabled EXC
// (returns WMEnabUnchanged, matching the disable/enable idempotence rule).
func (a *App) Enable() Code {
	a.mu.Lock()
	if a.state != Disabled {
		a.mu.Unlock()
		return WMEnabUnchanged
	}
	old, newState := a.setStateLocked(Ready, None)
	a.mu.Unlock()
	a.notify(old, newState)
	return WMEnabChanged
}

// Disable moves the EXC to DISABLED from any state. A no-op if already
// disabled.
func (a *App) Disable() Code {
	a.mu.Lock()
	if a.state == Disabled {
		a.mu.Unlock()
		return WMEnabUnchanged
	}
	old, newState := a.setStateLocked(Disabled, None)
	a.mu.Unlock()
	a.notify(old, newState)
	return WMEnabChanged
}

// Terminate moves the EXC to FINISHED. Idempotent: a second call returns
// Finished without transitioning again.
func (a *App) Terminate() Code {
	a.mu.Lock()
	if a.state == Finished {
		a.mu.Unlock()
		return Finished
	}
	old, newState := a.setStateLocked(Finished, None)
	a.mu.Unlock()
	a.notify(old, newState)
	return Success
}

// RequestSync moves the EXC to SYNC with the given sub-state, requiring it
// to currently be READY or RUNNING.
func (a *App) RequestSync(sync SyncState) Code {
	a.mu.Lock()
	if a.state != Ready && a.state != Running {
		a.mu.Unlock()
		return Abort
	}
	old, newState := a.setStateLocked(Sync, sync)
	a.mu.Unlock()
	a.notify(old, newState)
	return Success
}

// SyncRequired computes the sub-state a RUNNING EXC must enter to move from
// its current AWM to next, given whether the accounter detected a
// reshuffle (candidate-level allocation differences) between the two.
//
// Reshuffle within the same AWM id and the same binding-domain set is
// promoted to RECONF only when reshuffled is true: the binding set itself
// is unchanged, but at least one candidate's per-resource allocation for
// this app differs between the current and next view.
func (a *App) SyncRequired(next *awm.AWM, reshuffled bool) SyncState {
	a.mu.Lock()
	cur := a.curAWM
	domain := a.bindingDomain
	a.mu.Unlock()

	if cur == nil || next == nil {
		return Starting
	}
	curSet := cur.BindingSet(domain)
	nextSet := next.BindingSet(domain)

	if cur.ID != next.ID && !curSet.Equal(nextSet) {
		return Migrec
	}
	if cur.ID == next.ID && next.BindingChanged(domain) {
		return Migrate
	}
	if cur.ID != next.ID {
		return Reconf
	}
	if reshuffled {
		return Reconf
	}
	return None
}

// Reschedule drives the state machine for a candidate next working mode:
// READY moves straight to SYNC/STARTING; RUNNING computes SyncRequired and
// only transitions if the result isn't None (same AWM, no reshuffle is a
// no-op).
func (a *App) Reschedule(next *awm.AWM, reshuffled bool) Code {
	a.mu.Lock()
	state := a.state
	a.mu.Unlock()

	switch state {
	case Ready:
		return a.RequestSync(Starting)
	case Running:
		sync := a.SyncRequired(next, reshuffled)
		if sync == None {
			return Success
		}
		return a.RequestSync(sync)
	default:
		return Abort
	}
}

// Unschedule moves a RUNNING EXC to SYNC/BLOCKED, e.g. after a booking
// failure. A no-op on an EXC that isn't RUNNING or is already blocked.
func (a *App) Unschedule() Code {
	a.mu.Lock()
	state, sync := a.state, a.syncState
	a.mu.Unlock()

	if state == Sync && sync == Blocked {
		return Abort
	}
	if state != Running {
		return Abort
	}
	return a.RequestSync(Blocked)
}

// ScheduleRequest is the policy-to-EXC entry point: it books next's chosen
// candidate binding (refn) through acc, selects it as the AWM's resource
// binding, drives Reschedule, and on success records next as the pending
// AWM.
func (a *App) ScheduleRequest(next *awm.AWM, view rtid.ViewToken, refn uint64, acc *accounter.Accounter) Code {
	a.mu.Lock()
	var old, newS State
	var transitioned bool
	if a.state == Sync && a.syncState == Blocked {
		old, newS = a.setStateLocked(a.preSync, None)
		transitioned = true
	}
	state := a.state
	a.mu.Unlock()
	if transitioned {
		a.notify(old, newS)
	}

	if state == Disabled {
		return Disabled
	}
	if next == nil {
		return WMNotFound
	}

	binding, ok := next.SchedResourceBinding(refn)
	if !ok {
		return WMNotFound
	}

	if code := acc.Book(a.uid, binding, view); !code.Ok() {
		a.Unschedule()
		return WMRejected
	}

	if err := next.SetResourceBinding(view, refn); err != nil {
		acc.Release(a.uid, view)
		a.Unschedule()
		return WMRejected
	}

	curUsages, _ := acc.AppUsages(rtid.SystemView, a.uid)
	nextUsages, _ := acc.AppUsages(view, a.uid)
	reshuffled := accounter.IsReshuffling(a.uid, curUsages, nextUsages, rtid.SystemView, view)

	if code := a.Reschedule(next, reshuffled); !code.Ok() {
		acc.Release(a.uid, view)
		return WMRejected
	}

	a.mu.Lock()
	a.nextAWM = next
	a.currInv = false
	a.mu.Unlock()
	return Success
}

// ScheduleRequestAsPrev re-books the currently running AWM's binding
// unchanged into a fresh view, used when a sync round carries a RUNNING EXC
// forward without rescheduling it.
func (a *App) ScheduleRequestAsPrev(view rtid.ViewToken, acc *accounter.Accounter) Code {
	a.mu.Lock()
	if a.state != Running {
		a.mu.Unlock()
		return StatusNotExp
	}
	cur := a.curAWM
	a.mu.Unlock()
	if cur == nil {
		return Abort
	}

	if code := acc.Book(a.uid, cur.SyncBinding(), view); !code.Ok() {
		a.Unschedule()
		return WMRejected
	}

	a.mu.Lock()
	a.nextAWM = cur
	a.currInv = false
	a.mu.Unlock()
	return Success
}

// SetRunning moves the EXC to RUNNING. Called by ScheduleCommit.
func (a *App) SetRunning() Code {
	a.mu.Lock()
	old, newState := a.setStateLocked(Running, None)
	a.mu.Unlock()
	a.notify(old, newState)
	return Success
}

// SetBlocked moves the EXC to READY with both AWM pointers cleared. Called
// by ScheduleCommit for a SYNC/BLOCKED EXC.
func (a *App) SetBlocked() Code {
	a.mu.Lock()
	old, newState := a.setStateLocked(Ready, None)
	a.mu.Unlock()
	a.notify(old, newState)
	return Success
}

// ScheduleCommit finalizes a sync round: a scheduled EXC promotes next_awm
// to awm and moves to RUNNING; a blocked EXC moves back to READY. A DISABLED
// EXC is left as it is and Success is returned; any other state not SYNC is
// rejected.
func (a *App) ScheduleCommit() Code {
	a.mu.Lock()
	if a.state == Disabled {
		a.mu.Unlock()
		return Success
	}
	if a.state != Sync {
		a.mu.Unlock()
		return Abort
	}
	sync := a.syncState
	a.mu.Unlock()

	switch sync {
	case Starting, Reconf, Migrec, Migrate:
		a.mu.Lock()
		if a.curAWM != nil && a.nextAWM != nil && a.curAWM.Value < a.nextAWM.Value {
			a.ggapPercent = 0
		}
		a.curAWM = a.nextAWM
		a.nextAWM = nil
		a.mu.Unlock()
		return a.SetRunning()
	case Blocked:
		a.mu.Lock()
		a.curAWM = nil
		a.nextAWM = nil
		a.mu.Unlock()
		return a.SetBlocked()
	default:
		return Abort
	}
}

// ScheduleAbort rolls back a sync round, clearing both AWM pointers and
// returning the EXC to READY. Requires the EXC to currently be SYNC.
func (a *App) ScheduleAbort() Code {
	a.mu.Lock()
	if a.state != Sync {
		a.mu.Unlock()
		return Abort
	}
	old, newState := a.setStateLocked(Ready, None)
	a.mu.Unlock()
	a.notify(old, newState)
	return Success
}

// ScheduleContinue is the no-op outcome for an EXC a policy round leaves
// untouched: still RUNNING on its current AWM, still eligible next round.
func (a *App) ScheduleContinue() Code {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Running {
		return Abort
	}
	return Success
}

// SetAWMConstraint adds or removes one bound of the EXC's AWM-id
// constraint, then rebuilds the enabled list. If the currently running AWM
// falls outside the new constraint, CurrInv is raised so the next policy
// round knows to replace it.
func (a *App) SetAWMConstraint(c Constraint) Code {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch c.Bound {
	case LowerBound:
		if c.Op == AddConstraint {
			id := c.ID
			a.constraints.lower = &id
		} else {
			a.constraints.lower = nil
		}
	case UpperBound:
		if c.Op == AddConstraint {
			id := c.ID
			a.constraints.upper = &id
		} else {
			a.constraints.upper = nil
		}
	case ExactBound:
		if c.Op == AddConstraint {
			a.constraints.exact.Set(int(c.ID))
		} else {
			a.constraints.exact.Clear(int(c.ID))
		}
	}

	a.rebuildEnabledListLocked()
	return Success
}

func (a *App) awmAllowedLocked(w *awm.AWM) bool {
	if a.constraints.lower != nil && w.ID < *a.constraints.lower {
		return false
	}
	if a.constraints.upper != nil && w.ID > *a.constraints.upper {
		return false
	}
	if a.constraints.exact.Count() > 0 && !a.constraints.exact.Test(int(w.ID)) {
		return false
	}
	return true
}

func (a *App) rebuildEnabledListLocked() {
	enabled := make([]*awm.AWM, 0, len(a.allAWMs))
	for _, w := range a.allAWMs {
		if w.Hidden() {
			continue
		}
		if !a.awmAllowedLocked(w) {
			continue
		}
		enabled = append(enabled, w)
	}
	sort.Slice(enabled, func(i, j int) bool {
		return enabled[i].NormalizedValue() < enabled[j].NormalizedValue()
	})
	a.enabledList = enabled

	if a.curAWM != nil && !a.awmAllowedLocked(a.curAWM) {
		a.currInv = true
	}
}
