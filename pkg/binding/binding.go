// Package binding implements the binding manager (C9): at platform-ready
// time it resolves, for each configured binding-domain resource type, the
// set of legal physical ids a scheduling policy may target when calling
// WorkingMode.Bind.
package binding

import (
	"fmt"
	"sort"
	"sync"

	"github.com/bbque-go/bbqued/pkg/respath"
	"github.com/bbque-go/bbqued/pkg/restree"
)

// DefaultDomain is the binding-domain type used when nothing else is
// configured, matching the platform's usual core-affinity scheduling.
const DefaultDomain = respath.CPU

// Domain records one configured binding-domain type's legal physical ids
// and the template path used to find them in the tree.
type Domain struct {
	Type     respath.Type
	BasePath *respath.Path
	IDs      []int64
}

// Manager is the binding manager: one Domain per configured binding-domain
// resource type.
type Manager struct {
	mu        sync.RWMutex
	templates map[respath.Type]*respath.Path
	domains   map[respath.Type]*Domain
}

// New returns a manager with no domains configured yet. Configure at least
// one before calling Init.
func New() *Manager {
	return &Manager{
		templates: make(map[respath.Type]*respath.Path),
		domains:   make(map[respath.Type]*Domain),
	}
}

// Configure registers a binding-domain type and the template path (e.g.
// "sys.cpu") used to enumerate its legal ids at Init time.
func (m *Manager) Configure(t respath.Type, template *respath.Path) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.templates[t] = template
}

// Init resolves every configured domain's legal ids against tree. Call
// once platform enumeration has completed.
func (m *Manager) Init(tree *restree.Tree) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for t, tmpl := range m.templates {
		// The tree holds descriptors only at its leaves, so every leaf whose
		// path starts with a type match of tmpl contributes its ids.
		tmplSegs := tmpl.Segments()
		seen := make(map[int64]struct{})
		for _, r := range tree.All() {
			segs := r.Path().Segments()
			if len(segs) < len(tmplSegs) {
				continue
			}
			under := true
			for i, ts := range tmplSegs {
				if segs[i].Type != ts.Type || (ts.ID >= 0 && segs[i].ID != ts.ID) {
					under = false
				}
			}
			for _, seg := range segs {
				if under && seg.Type == t && seg.ID >= 0 {
					seen[seg.ID] = struct{}{}
				}
			}
		}
		if len(seen) == 0 {
			return fmt.Errorf("binding: domain %s: no resources matched template %q", t, tmpl.String())
		}
		ids := make([]int64, 0, len(seen))
		for id := range seen {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		m.domains[t] = &Domain{Type: t, BasePath: tmpl, IDs: ids}
	}
	return nil
}

// Domain returns the resolved legal-id set for binding-domain type t.
func (m *Manager) Domain(t respath.Type) (*Domain, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.domains[t]
	return d, ok
}

// IDs returns the legal physical ids for binding-domain type t, or nil if
// t was never configured.
func (m *Manager) IDs(t respath.Type) []int64 {
	d, ok := m.Domain(t)
	if !ok {
		return nil
	}
	return d.IDs
}
