// Package awm implements the application working mode (AWM): a recipe-level
// resource request map, the candidate bindings derived from it at schedule
// time, and the per-resource-type occupancy bitmasks used for reshuffle
// detection.
package awm

import (
	"errors"
	"hash/fnv"
	"sync"

	"github.com/bbque-go/bbqued/pkg/accounter"
	"github.com/bbque-go/bbqued/pkg/respath"
	"github.com/bbque-go/bbqued/pkg/restree"
	"github.com/bbque-go/bbqued/pkg/rtid"
)

// Errors returned by AWM operations.
var (
	ErrUnknownBinding = errors.New("awm: unknown scheduling binding reference")
	ErrNothingBound   = errors.New("awm: bind rewrote no requests")
)

// Request is one recipe-level resource request: a template path and the
// amount needed, plus the fill policy used to spread it across whatever
// candidates a later bind resolves.
type Request struct {
	Path   *respath.Path
	Amount uint64
	Policy accounter.FillPolicy
}

// bindingInfo tracks one resource type's current and previous occupancy
// bitmask, and whether the two differ.
type bindingInfo struct {
	prev    Bitset
	curr    Bitset
	changed bool
	set     bool // whether curr has ever been populated
}

// AWM is one application working mode.
type AWM struct {
	mu sync.Mutex

	ID    uint8
	Name  string
	Value float64 // recipe-level, unnormalized

	normalizedValue      float64
	configTime           *float64
	normalizedConfigTime float64

	requested map[string]*Request
	hidden    bool

	// schedBindings holds every candidate binding produced so far by Bind,
	// keyed by its reference number. 0 is reserved and never stored; it
	// means "bind directly from requested".
	schedBindings map[uint64]accounter.Usages

	syncBindings accounter.Usages
	syncRefn     uint64

	bindings [respath.TypeCount]bindingInfo
}

// New returns an AWM with the given id, name and recipe-level value (clamped
// to >= 0).
func New(id uint8, name string, value float64) *AWM {
	if value < 0 {
		value = 0
	}
	return &AWM{
		ID:            id,
		Name:          name,
		Value:         value,
		requested:     make(map[string]*Request),
		schedBindings: make(map[uint64]accounter.Usages),
	}
}

// SetNormalizedValue records value/max, computed by the recipe loader across
// every AWM in the recipe.
func (w *AWM) SetNormalizedValue(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.normalizedValue = v
}

// NormalizedValue returns the [0,1] value set by SetNormalizedValue.
func (w *AWM) NormalizedValue() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.normalizedValue
}

// SetConfigTime records an optional profiled configuration time.
func (w *AWM) SetConfigTime(t float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.configTime = &t
}

// ConfigTime returns the profiled configuration time and whether one was
// ever set.
func (w *AWM) ConfigTime() (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.configTime == nil {
		return 0, false
	}
	return *w.configTime, true
}

// SetNormalizedConfigTime records (t-min)/(max-min), computed by the recipe
// loader across every AWM in the recipe that has a profiled config time.
func (w *AWM) SetNormalizedConfigTime(v float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.normalizedConfigTime = v
}

// NormalizedConfigTime returns the [0,1] value set by
// SetNormalizedConfigTime.
func (w *AWM) NormalizedConfigTime() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.normalizedConfigTime
}

// AddRequest records a recipe-level request for path (normally a template
// path, e.g. "sys.cpu.pe") at the default Sequential fill policy.
func (w *AWM) AddRequest(path *respath.Path, amount uint64) {
	w.AddRequestPolicy(path, amount, accounter.Sequential)
}

// AddRequestPolicy is AddRequest with an explicit fill policy.
func (w *AWM) AddRequestPolicy(path *respath.Path, amount uint64, policy accounter.FillPolicy) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requested[path.String()] = &Request{Path: path, Amount: amount, Policy: policy}
}

// Requested returns the recipe-level request map. Callers must not mutate
// the returned map or its entries.
func (w *AWM) Requested() map[string]*Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.requested
}

// Hidden reports whether Validate found this AWM cannot currently be
// satisfied by platform totals.
func (w *AWM) Hidden() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.hidden
}

// Validate sums, for each recipe-level request, the registered total of
// every resource a TYPE lookup of its path matches. If any request's total
// falls short of the amount required, the AWM is marked hidden and Validate
// returns false.
func (w *AWM) Validate(tree *restree.Tree) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.hidden = false
	for _, req := range w.requested {
		matches := tree.FindList(req.Path, restree.TypeOnly, restree.All)
		var total uint64
		for _, r := range matches {
			total += r.Total()
		}
		if total < req.Amount {
			w.hidden = true
			return false
		}
	}
	return true
}

func bindingRef(rtype respath.Type, srcID, dstID int64, priorRef uint64) uint64 {
	h := fnv.New64a()
	h.Write([]byte(rtype.String()))
	var buf [24]byte
	putInt64(buf[0:8], srcID)
	putInt64(buf[8:16], dstID)
	putInt64(buf[16:24], int64(priorRef))
	h.Write(buf[:])
	return h.Sum64()
}

func putInt64(b []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}

// Bind resolves the source usages map (the recipe-level requests if
// priorRef is 0, a previously stored candidate binding otherwise), rewrites
// every path with a segment of type rtype from srcID to dstID, resolves the
// rewritten paths' candidates in tree, and stores the result under a fresh
// reference number. Entries whose path has no segment of rtype are copied
// through unchanged. Returns ErrUnknownBinding if priorRef doesn't name a
// stored binding, or ErrNothingBound if no entry actually had a matching
// segment to rewrite.
func (w *AWM) Bind(rtype respath.Type, srcID, dstID int64, priorRef uint64, tree *restree.Tree) (uint64, error) {
	w.mu.Lock()
	var source accounter.Usages
	if priorRef == 0 {
		source = make(accounter.Usages, len(w.requested))
		for k, req := range w.requested {
			source[k] = &accounter.Assignment{
				Amount:     req.Amount,
				Policy:     req.Policy,
				Candidates: tree.FindList(req.Path, restree.TypeOnly, restree.All),
			}
		}
	} else {
		bound, ok := w.schedBindings[priorRef]
		if !ok {
			w.mu.Unlock()
			return 0, ErrUnknownBinding
		}
		source = bound
	}
	w.mu.Unlock()

	// Every key in source is the string rendering of the path that produced
	// it (either a recipe-level request path, or a previous Bind's
	// newPath.String()), so it can always be re-parsed back into the path
	// that assignment needs rewritten.
	result := make(accounter.Usages, len(source))
	bound := 0
	for key, asn := range source {
		path, err := respath.ParseString(key, true)
		if err != nil || path.Level(rtype) < 0 {
			result[key] = asn.Clone()
			continue
		}
		newPath := path.Clone()
		if err := newPath.ReplaceID(rtype, srcID, dstID); err != nil {
			result[key] = asn.Clone()
			continue
		}
		candidates := tree.FindList(newPath, restree.Mixed, restree.All)
		result[newPath.String()] = &accounter.Assignment{
			Amount:     asn.Amount,
			Policy:     asn.Policy,
			Candidates: candidates,
		}
		bound++
	}

	if bound == 0 {
		return 0, ErrNothingBound
	}

	refn := bindingRef(rtype, srcID, dstID, priorRef)
	w.mu.Lock()
	w.schedBindings[refn] = result
	w.mu.Unlock()
	return refn, nil
}

// SchedResourceBinding returns the stored candidate binding for refn.
func (w *AWM) SchedResourceBinding(refn uint64) (accounter.Usages, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	b, ok := w.schedBindings[refn]
	return b, ok
}

// SetResourceBinding selects refn's stored candidate binding as the one to
// present for booking, then recomputes the per-resource-type occupancy
// bitmasks and their changed flags against view.
func (w *AWM) SetResourceBinding(view rtid.ViewToken, refn uint64) error {
	w.mu.Lock()
	binding, ok := w.schedBindings[refn]
	if !ok {
		w.mu.Unlock()
		return ErrUnknownBinding
	}
	w.syncBindings = binding
	w.syncRefn = refn
	w.mu.Unlock()

	w.updateBindingInfo(view, true)
	return nil
}

// SyncBinding returns the currently selected candidate binding, ready to
// pass to the accounter's Book/SyncAcquire.
func (w *AWM) SyncBinding() accounter.Usages {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncBindings
}

// updateBindingInfo recomputes, for every resource type, the bitmask of
// physical ids the currently selected binding occupies in view. A type with
// no occupied ids in this binding is left untouched (its previous mask
// stands), mirroring the original's "nothing to update" skip.
func (w *AWM) updateBindingInfo(view rtid.ViewToken, updateChanged bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	masks := make(map[respath.Type]*Bitset)
	for _, asn := range w.syncBindings {
		for _, r := range asn.Candidates {
			for _, seg := range r.Path().Segments() {
				if seg.ID < 0 {
					continue
				}
				m, ok := masks[seg.Type]
				if !ok {
					m = &Bitset{}
					masks[seg.Type] = m
				}
				m.Set(int(seg.ID))
			}
		}
	}

	for t, m := range masks {
		if m.Count() == 0 {
			continue
		}
		bi := &w.bindings[t]
		if !updateChanged {
			bi.curr = *m
			bi.set = true
			continue
		}
		if !bi.set {
			bi.curr = *m
			bi.changed = false
			bi.set = true
			continue
		}
		bi.prev = bi.curr
		bi.curr = *m
		bi.changed = !bi.prev.Equal(bi.curr)
	}
}

// BindingSet returns the current occupancy bitmask for resource type t.
func (w *AWM) BindingSet(t respath.Type) Bitset {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bindings[t].curr
}

// BindingSetPrev returns the previous-round occupancy bitmask for t.
func (w *AWM) BindingSetPrev(t respath.Type) Bitset {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bindings[t].prev
}

// BindingChanged reports whether t's occupancy bitmask differs from the
// previous round.
func (w *AWM) BindingChanged(t respath.Type) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.bindings[t].changed
}
