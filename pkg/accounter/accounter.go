// Package accounter implements the resource accounter: booking, view
// (snapshot) management, and sync-session coordination across the resource
// tree.
package accounter

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bbque-go/bbqued/pkg/respath"
	"github.com/bbque-go/bbqued/pkg/resource"
	"github.com/bbque-go/bbqued/pkg/restree"
	"github.com/bbque-go/bbqued/pkg/rtid"
)

// State is the accounter's lifecycle state.
type State int

const (
	NotReady State = iota
	Ready
	Sync
)

func (s State) String() string {
	switch s {
	case NotReady:
		return "NotReady"
	case Ready:
		return "Ready"
	case Sync:
		return "Sync"
	default:
		return "Unknown"
	}
}

// view is a (token, app-usages, resource-set) triple.
type view struct {
	token     rtid.ViewToken
	appUsages map[rtid.AppUID]Usages
	resources map[*resource.Resource]struct{}
}

func newView(token rtid.ViewToken) *view {
	return &view{
		token:     token,
		appUsages: make(map[rtid.AppUID]Usages),
		resources: make(map[*resource.Resource]struct{}),
	}
}

// viewNamespace seeds the deterministic name->token hash; any fixed UUID
// works as a namespace since we only need stable, collision-resistant
// derivation, not interoperability with an external UUID space.
var viewNamespace = uuid.MustParse("6d1f151a-0001-4000-8000-000000000001")

func tokenFromName(name string) rtid.ViewToken {
	id := uuid.NewSHA1(viewNamespace, []byte(name))
	return rtid.ViewToken(binary.BigEndian.Uint32(id[:4]))
}

// Accounter is the resource accounter: the hub for booking, views, and
// sync-session coordination.
type Accounter struct {
	mu    sync.Mutex
	cond  *sync.Cond
	state State

	tree *restree.Tree
	log  zerolog.Logger

	views map[rtid.ViewToken]*view

	syncCounter uint64
	syncSession *syncSession
}

type syncSession struct {
	view *view
}

// New returns a NotReady accounter over the given resource tree. Call
// SetReady once platform enumeration has completed.
func New(tree *restree.Tree, log zerolog.Logger) *Accounter {
	a := &Accounter{
		tree:  tree,
		log:   log.With().Str("component", "accounter").Logger(),
		views: make(map[rtid.ViewToken]*view),
	}
	a.cond = sync.NewCond(&a.mu)
	a.views[rtid.SystemView] = newView(rtid.SystemView)
	return a
}

// SetReady transitions the accounter to Ready, e.g. after platform
// enumeration completes.
func (a *Accounter) SetReady() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = Ready
	a.cond.Broadcast()
}

// SetNotReady forces the accounter back to NotReady, e.g. while platform
// resources are being re-enumerated.
func (a *Accounter) SetNotReady() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = NotReady
	a.cond.Broadcast()
}

// State returns the accounter's current lifecycle state.
func (a *Accounter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Views returns the tokens of every currently open view, system view
// included.
func (a *Accounter) Views() []rtid.ViewToken {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]rtid.ViewToken, 0, len(a.views))
	for tok := range a.views {
		out = append(out, tok)
	}
	return out
}

// awaitNotSync blocks the caller until the accounter leaves Sync, i.e. until
// it is Ready or NotReady again. Must be called without a.mu held.
func (a *Accounter) awaitNotSync() {
	a.mu.Lock()
	for a.state == Sync {
		a.cond.Wait()
	}
	a.mu.Unlock()
}

// awaitReadyState blocks until state == Ready, used by the view-lifecycle
// operations (get/put/set view) which must not race platform re-enumeration
// or an in-flight sync session.
func (a *Accounter) awaitReadyState() {
	a.mu.Lock()
	for a.state != Ready {
		a.cond.Wait()
	}
	a.mu.Unlock()
}

// ---- Views ----------------------------------------------------------

// GetView hashes name to a token, allocates empty bookkeeping maps for it,
// and registers it.
func (a *Accounter) GetView(name string) (rtid.ViewToken, Code) {
	a.awaitReadyState()
	token := tokenFromName(name)

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.views[token]; exists {
		return token, Success
	}
	a.views[token] = newView(token)
	return token, Success
}

// PutView releases a speculative view: every resource touched in it is
// dropped, and its bookkeeping maps are erased. Token 0 (the system view) can
// never be put directly.
func (a *Accounter) PutView(token rtid.ViewToken) Code {
	if token == rtid.SystemView {
		return UnauthView
	}
	a.awaitReadyState()

	a.mu.Lock()
	v, ok := a.views[token]
	if !ok {
		a.mu.Unlock()
		return MissView
	}
	delete(a.views, token)
	a.mu.Unlock()

	for r := range v.resources {
		r.DeleteView(token)
	}
	return Success
}

// SetView promotes the given view to be the system view: every resource it
// touched has its state moved from token to the system slot, any resource
// only the old system view touched has its stale system-slot state cleared,
// and the previous system view is then put.
func (a *Accounter) SetView(token rtid.ViewToken) Code {
	if token == rtid.SystemView {
		return UnauthView
	}
	a.awaitReadyState()
	return a.setViewCore(token)
}

// setViewCore is SetView's body without the Ready-state wait, so the sync
// session (which runs with state == Sync) can promote its own view at
// commit time without deadlocking against itself.
func (a *Accounter) setViewCore(token rtid.ViewToken) Code {
	a.mu.Lock()
	newSys, ok := a.views[token]
	if !ok {
		a.mu.Unlock()
		return MissView
	}
	oldSys := a.views[rtid.SystemView]
	a.mu.Unlock()

	for r := range oldSys.resources {
		if _, stillTouched := newSys.resources[r]; !stillTouched {
			r.ClearView(rtid.SystemView)
		}
	}
	for r := range newSys.resources {
		r.RekeyView(token, rtid.SystemView)
	}

	a.mu.Lock()
	newSys.token = rtid.SystemView
	a.views[rtid.SystemView] = newSys
	delete(a.views, token)
	a.mu.Unlock()
	return Success
}

func (a *Accounter) getViewLocked(token rtid.ViewToken) (*view, bool) {
	v, ok := a.views[token]
	return v, ok
}

// AppUsages returns the usages booked for app in the given view, for callers
// that need to compare allocations across views (e.g. reshuffle detection).
func (a *Accounter) AppUsages(token rtid.ViewToken, app rtid.AppUID) (Usages, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.views[token]
	if !ok {
		return nil, false
	}
	u, ok := v.appUsages[app]
	return u, ok
}

// ---- Booking ----------------------------------------------------------

// Book records usages for app in view, checking availability up front across
// each request's candidate list. It blocks while a sync session is open;
// sync-session booking goes through SyncStart/SyncAcquire instead, which
// skip the availability check since those amounts are already committed.
func (a *Accounter) Book(app rtid.AppUID, usages Usages, token rtid.ViewToken) Code {
	a.awaitNotSync()
	return a.book(app, usages, token, false)
}

func (a *Accounter) book(app rtid.AppUID, usages Usages, token rtid.ViewToken, skipAvailCheck bool) Code {
	if len(usages) == 0 {
		return MissUsages
	}

	a.mu.Lock()
	v, ok := a.getViewLocked(token)
	if !ok {
		a.mu.Unlock()
		return MissView
	}
	if _, exists := v.appUsages[app]; exists {
		a.mu.Unlock()
		return AppUsages
	}
	a.mu.Unlock()

	if !skipAvailCheck {
		for _, asn := range usages {
			var total uint64
			for _, r := range asn.Candidates {
				total += r.Available(app, token)
			}
			if total < asn.Amount {
				return UsageExceeded
			}
		}
	}

	booked := make(Usages, len(usages))
	for path, asn := range usages {
		done := asn.Clone()
		a.distribute(app, done, token, skipAvailCheck)
		booked[path] = done
	}

	a.mu.Lock()
	v.appUsages[app] = booked
	for _, asn := range booked {
		for _, r := range asn.Candidates {
			v.resources[r] = struct{}{}
		}
	}
	a.mu.Unlock()
	return Success
}

// distribute spreads asn.Amount across asn.Candidates in order, recording
// the first and last actually-consumed candidate. The skipAvailCheck flag is
// not used: sync-session bookings go through the same fill policy against
// the availability of the target view, and the per-candidate amounts placed
// in the scheduled view are not replayed. A leftover is logged at Error
// level; the booking is not failed and no sync session is aborted.
func (a *Accounter) distribute(app rtid.AppUID, asn *Assignment, token rtid.ViewToken, _ bool) {
	requested := asn.Amount
	remaining := len(asn.Candidates)
	for _, r := range asn.Candidates {
		if requested == 0 {
			break
		}
		available := r.Available(app, token)
		var take uint64
		switch asn.Policy {
		case Balanced:
			perCandidate := requested / uint64(remaining)
			if perCandidate > 0 && perCandidate <= available {
				take = perCandidate
			} else if requested < available {
				take = requested
			} else {
				take = available
			}
		default: // Sequential
			if requested < available {
				take = requested
			} else {
				take = available
			}
		}
		if take > 0 {
			got, ok := r.Acquire(app, take, token)
			if ok {
				if asn.FirstBound == nil {
					asn.FirstBound = r
				}
				asn.LastBound = r
				requested -= got
			}
		}
		remaining--
	}
	if requested != 0 {
		a.log.Error().
			Uint64("leftover", requested).
			Str("app", app.String()).
			Msg("accounting mismatch: booked less than requested after placement")
	}
}

// Release undoes the recorded per-resource distribution for app in view and
// drops the app entry from the view's app-usages.
func (a *Accounter) Release(app rtid.AppUID, token rtid.ViewToken) Code {
	a.awaitNotSync()

	a.mu.Lock()
	v, ok := a.getViewLocked(token)
	if !ok {
		a.mu.Unlock()
		return MissView
	}
	usages, held := v.appUsages[app]
	delete(v.appUsages, app)
	a.mu.Unlock()

	if !held {
		return Success
	}
	for _, asn := range usages {
		for _, r := range asn.Candidates {
			r.Release(app, token)
		}
	}
	return Success
}

// ---- Sync session -------------------------------------------------------

// RunningAlloc pairs a running application with its currently committed
// resource usages, for re-booking into a fresh sync view at SyncStart.
type RunningAlloc struct {
	App    rtid.AppUID
	Usages Usages
}

// SyncStart opens a sync session: it blocks until the accounter is Ready,
// moves it to Sync, and allocates a fresh view named after a monotonically
// increasing session counter. Every running application's current
// allocation is then re-booked into that view verbatim (no availability
// check: these amounts are already held in the system view, so the fresh
// view necessarily has room). A booking failure here aborts the session and
// returns to Ready.
func (a *Accounter) SyncStart(running []RunningAlloc) Code {
	a.mu.Lock()
	for a.state != Ready {
		a.cond.Wait()
	}
	a.state = Sync
	a.syncCounter++
	counter := a.syncCounter
	a.cond.Broadcast()
	a.mu.Unlock()

	token := tokenFromName(fmt.Sprintf("ra.sync.%d", counter))

	a.mu.Lock()
	sv := newView(token)
	a.views[token] = sv
	a.syncSession = &syncSession{view: sv}
	a.mu.Unlock()

	a.log.Info().Uint64("session", counter).Msg("sync session started")

	for _, ra := range running {
		if code := a.book(ra.App, ra.Usages, token, true); !code.Ok() {
			a.log.Error().
				Uint64("session", counter).
				Str("app", ra.App.String()).
				Stringer("code", code).
				Msg("sync init: re-booking running application failed")
			a.SyncAbort()
			return SyncInit
		}
	}
	return Success
}

// SyncAcquire books usages (the application's next working mode) into the
// open sync session's view, skipping the availability check: the caller is
// expected to have already validated the assignment against the scheduled
// view. A failure aborts the session.
func (a *Accounter) SyncAcquire(app rtid.AppUID, usages Usages) Code {
	a.mu.Lock()
	sess := a.syncSession
	inSync := a.state == Sync
	a.mu.Unlock()
	if !inSync || sess == nil {
		return SyncStart
	}

	code := a.book(app, usages, sess.view.token, true)
	if !code.Ok() {
		a.log.Error().
			Str("app", app.String()).
			Stringer("code", code).
			Msg("sync acquire: booking failed")
		a.SyncAbort()
		return code
	}
	return Success
}

// SyncCommit promotes the sync session's view to become the system view and
// returns to Ready. A failure to promote aborts the session instead.
func (a *Accounter) SyncCommit() Code {
	a.mu.Lock()
	sess := a.syncSession
	inSync := a.state == Sync
	a.mu.Unlock()
	if !inSync || sess == nil {
		return SyncStart
	}

	if code := a.setViewCore(sess.view.token); !code.Ok() {
		a.log.Error().
			Uint64("session", a.syncCounter).
			Msg("sync commit: unable to promote session view")
		a.SyncAbort()
		return SyncView
	}
	a.log.Info().Uint64("session", a.syncCounter).Msg("sync session committed")
	return a.SyncFinalize()
}

// SyncAbort drops the sync session's view (releasing every resource it
// touched) and returns to Ready via SyncFinalize.
func (a *Accounter) SyncAbort() Code {
	a.mu.Lock()
	sess := a.syncSession
	a.mu.Unlock()
	if sess == nil {
		return SyncStart
	}
	token := sess.view.token

	a.mu.Lock()
	delete(a.views, token)
	a.mu.Unlock()

	for r := range sess.view.resources {
		r.DeleteView(token)
	}
	a.log.Error().Uint64("session", a.syncCounter).Msg("sync session aborted")
	return a.SyncFinalize()
}

// SyncFinalize returns the accounter to Ready and clears the sync session.
// Called by both SyncCommit (on success) and SyncAbort.
func (a *Accounter) SyncFinalize() Code {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != Sync {
		return SyncStart
	}
	a.syncSession = nil
	a.state = Ready
	a.cond.Broadcast()
	return Success
}

// ---- Reservation & online/offline --------------------------------------

// ReserveResources applies amount as a reservation on every resource matched
// by a MIXED lookup of path, reducing what future bookings may consume.
func (a *Accounter) ReserveResources(path *respath.Path, amount uint64) Code {
	matches := a.tree.FindList(path, restree.Mixed, restree.All)
	if len(matches) == 0 {
		return InvalidPath
	}
	for _, r := range matches {
		if err := r.Reserve(amount); err != nil {
			return Failed
		}
	}
	return Success
}

// UpdateResource takes the accounter to NotReady for the duration of the
// change, validates newTotal against the registered total, updates the
// reservation to make the delta unavailable, and returns to Ready.
func (a *Accounter) UpdateResource(path *respath.Path, registeredTotal, newTotal uint64) Code {
	a.mu.Lock()
	prev := a.state
	a.state = NotReady
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.state = prev
		a.cond.Broadcast()
		a.mu.Unlock()
	}()

	if newTotal > registeredTotal {
		return Overflow
	}
	matches := a.tree.FindList(path, restree.Exact, restree.First)
	if len(matches) == 0 {
		return MissPath
	}
	r := matches[0]
	r.SetTotal(registeredTotal)
	if err := r.Reserve(registeredTotal - newTotal); err != nil {
		return Failed
	}
	return Success
}

// IsOffline reports whether every resource matched by a MIXED lookup of
// path is currently offline.
func (a *Accounter) IsOffline(path *respath.Path) bool {
	matches := a.tree.FindList(path, restree.Mixed, restree.All)
	if len(matches) == 0 {
		return true
	}
	for _, r := range matches {
		if r.Online() {
			return false
		}
	}
	return true
}

// SetOffline / SetOnline apply to every resource matched by a MIXED lookup
// of path.
func (a *Accounter) SetOffline(path *respath.Path) Code {
	matches := a.tree.FindList(path, restree.Mixed, restree.All)
	if len(matches) == 0 {
		return InvalidPath
	}
	for _, r := range matches {
		r.SetOffline()
	}
	return Success
}

func (a *Accounter) SetOnline(path *respath.Path) Code {
	matches := a.tree.FindList(path, restree.Mixed, restree.All)
	if len(matches) == 0 {
		return InvalidPath
	}
	for _, r := range matches {
		r.SetOnline()
	}
	return Success
}

// ---- Reshuffle detection -----------------------------------------------

// IsReshuffling compares, for each path both maps have in common, the
// current view's per-app allocation against the next view's per-app
// allocation across paired candidates. Any mismatch constitutes a reshuffle.
func IsReshuffling(app rtid.AppUID, current, next Usages, currentView, nextView rtid.ViewToken) bool {
	for path, curAsn := range current {
		nextAsn, ok := next[path]
		if !ok {
			continue
		}
		n := len(curAsn.Candidates)
		if len(nextAsn.Candidates) < n {
			n = len(nextAsn.Candidates)
		}
		for i := 0; i < n; i++ {
			cr := curAsn.Candidates[i]
			nr := nextAsn.Candidates[i]
			if cr.ApplicationUsage(app, currentView) != nr.ApplicationUsage(app, nextView) {
				return true
			}
		}
	}
	return false
}
