// Package appmanager implements the application registry: the indices a
// scheduling policy walks to find ready/running EXCs, and the notification
// path that keeps those indices in sync with each EXC's own state machine.
package appmanager

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/bbque-go/bbqued/pkg/app"
	"github.com/bbque-go/bbqued/pkg/awm"
	"github.com/bbque-go/bbqued/pkg/rtid"
)

const (
	numStates     = 5 // app.Disabled .. app.Finished
	numSyncStates = 6 // app.None .. app.Blocked
)

// RecipeLoader resolves a recipe name to its AWM set and base priority. A
// concrete implementation lives in pkg/recipe; appmanager only depends on
// this narrow interface so it never needs to know the recipe file format.
type RecipeLoader interface {
	Load(name string) (awms []*awm.AWM, basePriority int, err error)
}

// Manager is the application registry (C7): by-pid, by-uid, by-priority,
// by-status and by-sync-state indices over every live EXC.
type Manager struct {
	log zerolog.Logger

	loader        RecipeLoader
	priorityFloor int

	regMu sync.RWMutex
	byPID map[int32][]*app.App
	byUID map[rtid.AppUID]*app.App

	recipeMu    sync.Mutex
	recipeCache map[string][]*awm.AWM
	recipePrio  map[string]int

	priorityMu sync.RWMutex
	byPriority map[int]map[rtid.AppUID]*app.App

	statusLocks [numStates]sync.Mutex
	statusVec   [numStates]map[rtid.AppUID]*app.App

	syncLocks [numSyncStates]sync.Mutex
	syncVec   [numSyncStates]map[rtid.AppUID]*app.App

	observerMu sync.RWMutex
	observer   func(a *app.App, old, newState app.State)
}

// New returns an empty registry. priorityFloor is the lowest (best)
// priority value an EXC may request; requests for a better priority are
// clamped down to it.
func New(loader RecipeLoader, priorityFloor int, log zerolog.Logger) *Manager {
	m := &Manager{
		log:           log.With().Str("component", "appmanager").Logger(),
		loader:        loader,
		priorityFloor: priorityFloor,
		byPID:         make(map[int32][]*app.App),
		byUID:         make(map[rtid.AppUID]*app.App),
		recipeCache:   make(map[string][]*awm.AWM),
		recipePrio:    make(map[string]int),
		byPriority:    make(map[int]map[rtid.AppUID]*app.App),
	}
	for i := range m.statusVec {
		m.statusVec[i] = make(map[rtid.AppUID]*app.App)
	}
	for i := range m.syncVec {
		m.syncVec[i] = make(map[rtid.AppUID]*app.App)
	}
	return m
}

func (m *Manager) loadRecipe(name string) ([]*awm.AWM, int, error) {
	m.recipeMu.Lock()
	defer m.recipeMu.Unlock()
	if awms, ok := m.recipeCache[name]; ok {
		return awms, m.recipePrio[name], nil
	}
	awms, prio, err := m.loader.Load(name)
	if err != nil {
		return nil, 0, err
	}
	m.recipeCache[name] = awms
	m.recipePrio[name] = prio
	return awms, prio, nil
}

// CreateEXC loads recipeName (cached by name), clamps the requested
// priority to the configured floor, registers a new DISABLED EXC in every
// index and wires its Notifier back to NotifyNewState.
func (m *Manager) CreateEXC(pid int32, excID uint8, recipeName string, requestedPriority int) (*app.App, error) {
	awms, basePriority, err := m.loadRecipe(recipeName)
	if err != nil {
		return nil, err
	}

	priority := requestedPriority
	if priority < basePriority {
		priority = basePriority
	}
	if priority < m.priorityFloor {
		priority = m.priorityFloor
	}

	uid := rtid.MakeAppUID(pid, excID)
	a := app.New(uid, priority)
	a.SetWorkingModes(awms)
	a.SetNotifier(m.NotifyNewState)

	m.regMu.Lock()
	m.byPID[pid] = append(m.byPID[pid], a)
	m.byUID[uid] = a
	m.regMu.Unlock()

	m.priorityMu.Lock()
	if m.byPriority[priority] == nil {
		m.byPriority[priority] = make(map[rtid.AppUID]*app.App)
	}
	m.byPriority[priority][uid] = a
	m.priorityMu.Unlock()

	m.statusLocks[app.Disabled].Lock()
	m.statusVec[app.Disabled][uid] = a
	m.statusLocks[app.Disabled].Unlock()

	m.log.Info().Str("app", uid.String()).Str("recipe", recipeName).Int("priority", priority).Msg("exc created")
	return a, nil
}

// DestroyEXC terminates the EXC and removes it from every index.
func (m *Manager) DestroyEXC(uid rtid.AppUID) {
	m.regMu.RLock()
	a, ok := m.byUID[uid]
	m.regMu.RUnlock()
	if !ok {
		return
	}

	a.Terminate()

	m.regMu.Lock()
	delete(m.byUID, uid)
	pid := uid.PID()
	list := m.byPID[pid]
	for i, other := range list {
		if other == a {
			m.byPID[pid] = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(m.byPID[pid]) == 0 {
		delete(m.byPID, pid)
	}
	m.regMu.Unlock()

	m.priorityMu.Lock()
	for _, set := range m.byPriority {
		delete(set, uid)
	}
	m.priorityMu.Unlock()

	for i := range m.statusVec {
		m.statusLocks[i].Lock()
		delete(m.statusVec[i], uid)
		m.statusLocks[i].Unlock()
	}
	for i := range m.syncVec {
		m.syncLocks[i].Lock()
		delete(m.syncVec[i], uid)
		m.syncLocks[i].Unlock()
	}

	m.log.Info().Str("app", uid.String()).Msg("exc destroyed")
}

// NotifyNewState moves uid between the status index slots for old and
// newState, acquiring the lower-indexed slot's lock first so two
// concurrent transitions can never deadlock against each other. It also
// keeps the sync-state index consistent: entering Sync adds the EXC under
// its current sync sub-state, leaving Sync removes it from every slot.
func (m *Manager) NotifyNewState(a *app.App, old, newState app.State) {
	uid := a.UID()
	lo, hi := int(old), int(newState)
	if lo > hi {
		lo, hi = hi, lo
	}
	m.statusLocks[lo].Lock()
	if hi != lo {
		m.statusLocks[hi].Lock()
	}
	delete(m.statusVec[old], uid)
	m.statusVec[newState][uid] = a
	if hi != lo {
		m.statusLocks[hi].Unlock()
	}
	m.statusLocks[lo].Unlock()

	for i := range m.syncVec {
		m.syncLocks[i].Lock()
		delete(m.syncVec[i], uid)
		m.syncLocks[i].Unlock()
	}
	if newState == app.Sync {
		idx := a.SyncState()
		m.syncLocks[idx].Lock()
		m.syncVec[idx][uid] = a
		m.syncLocks[idx].Unlock()
	}

	m.observerMu.RLock()
	obs := m.observer
	m.observerMu.RUnlock()
	if obs != nil {
		obs(a, old, newState)
	}
}

// SetObserver registers a callback invoked after every EXC state
// transition, in addition to the internal index bookkeeping. Used by the
// admin API to fan transitions out over its event websocket. A nil
// observer clears the hook.
func (m *Manager) SetObserver(f func(a *app.App, old, newState app.State)) {
	m.observerMu.Lock()
	defer m.observerMu.Unlock()
	m.observer = f
}

func snapshot(slots map[rtid.AppUID]*app.App) []*app.App {
	out := make([]*app.App, 0, len(slots))
	for _, a := range slots {
		out = append(out, a)
	}
	return out
}

// ByState returns a snapshot of every EXC currently in state s.
func (m *Manager) ByState(s app.State) []*app.App {
	m.statusLocks[s].Lock()
	defer m.statusLocks[s].Unlock()
	return snapshot(m.statusVec[s])
}

// Running returns a snapshot of every RUNNING EXC.
func (m *Manager) Running() []*app.App { return m.ByState(app.Running) }

// Ready returns a snapshot of every READY EXC.
func (m *Manager) Ready() []*app.App { return m.ByState(app.Ready) }

// BySyncState returns a snapshot of every EXC currently SYNC in sub-state s.
func (m *Manager) BySyncState(s app.SyncState) []*app.App {
	m.syncLocks[s].Lock()
	defer m.syncLocks[s].Unlock()
	return snapshot(m.syncVec[s])
}

// ByPriority returns a snapshot of every EXC registered at priority p.
func (m *Manager) ByPriority(p int) []*app.App {
	m.priorityMu.RLock()
	defer m.priorityMu.RUnlock()
	return snapshot(m.byPriority[p])
}

// ByPID returns every EXC belonging to pid.
func (m *Manager) ByPID(pid int32) []*app.App {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	out := make([]*app.App, len(m.byPID[pid]))
	copy(out, m.byPID[pid])
	return out
}

// ByUID looks up a single EXC by its application identity.
func (m *Manager) ByUID(uid rtid.AppUID) (*app.App, bool) {
	m.regMu.RLock()
	defer m.regMu.RUnlock()
	a, ok := m.byUID[uid]
	return a, ok
}
