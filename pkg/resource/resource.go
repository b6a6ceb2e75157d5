// Package resource implements the leaf resource descriptor: capacity,
// reservation, online/offline state, and a per-view usage map supporting
// speculative (multi-version) accounting.
package resource

import (
	"errors"
	"sync"
	"time"

	"github.com/bbque-go/bbqued/pkg/respath"
	"github.com/bbque-go/bbqued/pkg/rtid"
)

// Errors returned by Resource mutators.
var (
	ErrCapacityExceeded = errors.New("resource: amount exceeds total capacity")
)

// viewState is the per-view accounting record for one resource.
type viewState struct {
	used uint64
	apps map[rtid.AppUID]uint64
}

// Resource is a leaf descriptor owned by the tree at a fixed path.
type Resource struct {
	mu sync.Mutex

	path  *respath.Path
	total uint64

	reserved uint64
	online   bool
	model    string

	lastOn  time.Time
	lastOff time.Time

	views map[rtid.ViewToken]*viewState
}

// New returns an online resource descriptor with zero capacity at path.
func New(path *respath.Path) *Resource {
	return &Resource{
		path:   path,
		online: true,
		views:  make(map[rtid.ViewToken]*viewState),
	}
}

// Path returns the resource's fixed path in the tree.
func (r *Resource) Path() *respath.Path { return r.path }

// SetTotal sets the registered total capacity of this resource.
func (r *Resource) SetTotal(total uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total = total
}

// Total returns the registered total capacity.
func (r *Resource) Total() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// SetModel records a free-form model/identification string for the resource.
func (r *Resource) SetModel(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model = model
}

// Model returns the resource's model string.
func (r *Resource) Model() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model
}

// Reserved returns the amount currently withheld from booking by
// reservation (not tied to any view).
func (r *Resource) Reserved() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reserved
}

// Reserve withholds amount of capacity from all future bookings. It fails if
// amount exceeds total.
func (r *Resource) Reserve(amount uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if amount > r.total {
		return ErrCapacityExceeded
	}
	r.reserved = amount
	return nil
}

// SetOffline marks the resource unavailable and records the transition time.
func (r *Resource) SetOffline() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = false
	r.lastOff = time.Now()
}

// SetOnline marks the resource available again and records the transition
// time.
func (r *Resource) SetOnline() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.online = true
	r.lastOn = time.Now()
}

// Online reports whether the resource currently accepts bookings.
func (r *Resource) Online() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online
}

// LastOnline and LastOffline report the timestamps of the most recent
// transitions; the zero value means the transition never happened.
func (r *Resource) LastOnline() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOn
}

func (r *Resource) LastOffline() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastOff
}

func (r *Resource) viewLocked(v rtid.ViewToken) *viewState {
	vs, ok := r.views[v]
	if !ok {
		vs = &viewState{apps: make(map[rtid.AppUID]uint64)}
		r.views[v] = vs
	}
	return vs
}

// Used returns the amount booked in view v. A nonexistent view has zero
// usage.
func (r *Resource) Used(v rtid.ViewToken) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if vs, ok := r.views[v]; ok {
		return vs.used
	}
	return 0
}

// ApplicationUsage ("used_by") returns the amount app currently holds in
// view v, or 0 if the view or the app entry does not exist.
func (r *Resource) ApplicationUsage(app rtid.AppUID, v rtid.ViewToken) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs, ok := r.views[v]
	if !ok {
		return 0
	}
	return vs.apps[app]
}

// Available returns total - reserved - used(view) + used_by(app, view): an
// application may "see" the amount it already holds as available. Offline
// resources always report zero, regardless of view.
func (r *Resource) Available(app rtid.AppUID, v rtid.ViewToken) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online {
		return 0
	}
	used := uint64(0)
	held := uint64(0)
	if vs, ok := r.views[v]; ok {
		used = vs.used
		held = vs.apps[app]
	}
	floor := r.reserved + used
	if floor > r.total+held {
		return 0
	}
	avail := r.total + held - floor
	return avail
}

// Acquire books amount for app in view v. The view is created on demand. It
// fails (returns 0, false) if reserved+used(v)+amount would exceed total.
// Re-acquiring from the same app in the same view is cumulative.
func (r *Resource) Acquire(app rtid.AppUID, amount uint64, v rtid.ViewToken) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs := r.viewLocked(v)
	if r.reserved+vs.used+amount > r.total {
		return 0, false
	}
	vs.used += amount
	vs.apps[app] += amount
	return amount, true
}

// Release removes app's contribution to view v and decrements used(v) by
// that contribution. It returns the amount released.
func (r *Resource) Release(app rtid.AppUID, v rtid.ViewToken) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs, ok := r.views[v]
	if !ok {
		return 0
	}
	amount := vs.apps[app]
	if amount == 0 {
		return 0
	}
	delete(vs.apps, app)
	vs.used -= amount
	return amount
}

// ReleaseAll drops view v wholesale. The system view (token 0) may never be
// dropped directly; callers must replace it via the accounter's SetView.
func (r *Resource) ReleaseAll(v rtid.ViewToken) {
	if v == rtid.SystemView {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.views, v)
}

// DeleteView is an alias for ReleaseAll, named to match the accounter's
// view-teardown vocabulary (one call per resource touched by the view).
func (r *Resource) DeleteView(v rtid.ViewToken) { r.ReleaseAll(v) }

// ClearView unconditionally drops view v's state, including the system
// slot. Like RekeyView, it is reserved for the accounter's view-promotion
// bookkeeping: clearing a resource's stale system-slot state for apps the
// newly promoted view never touched.
func (r *Resource) ClearView(v rtid.ViewToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.views, v)
}

// RekeyView moves the accounting state held under src to dst, overwriting
// whatever state dst previously held (if src is empty, dst is simply
// cleared). It is exempt from the system-view protection that guards
// ReleaseAll: it exists solely for the accounter's SetView promotion, which
// is the sole authority over which token currently serves as the system
// view and must be able to move state into and out of slot 0.
func (r *Resource) RekeyView(src, dst rtid.ViewToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vs, ok := r.views[src]
	delete(r.views, src)
	if !ok {
		delete(r.views, dst)
		return
	}
	r.views[dst] = vs
}
