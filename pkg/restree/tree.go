// Package restree implements the resource hierarchy: a tree of resource
// descriptors keyed by respath.Path segments, supporting exact, type-only and
// mixed lookups.
package restree

import (
	"sync"

	"github.com/bbque-go/bbqued/pkg/resource"
	"github.com/bbque-go/bbqued/pkg/respath"
)

// MatchFlag selects how a query segment is compared against a tree segment.
type MatchFlag int

const (
	// Exact requires every id in the query to match exactly.
	Exact MatchFlag = iota
	// TypeOnly ignores ids and matches by type sequence (template paths).
	TypeOnly
	// Mixed requires an exact match when the query id is >= 0, and a
	// type-only match when the query id is NONE/ANY.
	Mixed
)

// FindMode additionally controls whether the walk stops at the first hit.
type FindMode int

const (
	All FindMode = iota
	First
)

type node struct {
	seg      respath.Segment
	children map[respath.Type]map[int64]*node
	rsrc     *resource.Resource
}

func newNode(seg respath.Segment) *node {
	return &node{seg: seg, children: make(map[respath.Type]map[int64]*node)}
}

// Tree is a rooted tree of resource descriptors.
type Tree struct {
	mu       sync.RWMutex
	root     *node
	maxDepth int
	count    int
}

// New returns an empty resource tree.
func New() *Tree {
	return &Tree{root: newNode(respath.Segment{Type: respath.Undefined, ID: respath.IDNone})}
}

// Insert walks or creates nodes for each segment of path and returns the
// leaf's Resource descriptor. Re-inserting an already-present path returns
// the existing descriptor (idempotent).
func (t *Tree) Insert(path *respath.Path) *resource.Resource {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.root
	depth := 0
	for _, seg := range path.Segments() {
		byID, ok := cur.children[seg.Type]
		if !ok {
			byID = make(map[int64]*node)
			cur.children[seg.Type] = byID
		}
		child, ok := byID[seg.ID]
		if !ok {
			child = newNode(seg)
			byID[seg.ID] = child
		}
		cur = child
		depth++
	}
	if depth > t.maxDepth {
		t.maxDepth = depth
	}
	if cur.rsrc == nil {
		cur.rsrc = resource.New(path.Clone())
		t.count++
	}
	return cur.rsrc
}

// MaxDepth returns the deepest path inserted so far.
func (t *Tree) MaxDepth() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.maxDepth
}

// Count returns the total number of resource descriptors in the tree.
func (t *Tree) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.count
}

// FindList performs a pre-order walk of the tree, comparing each tree
// segment against the corresponding query segment with the given match
// flag, and collects the descriptors of every node whose full path matched.
// If mode is First, the walk stops at the first match.
func (t *Tree) FindList(path *respath.Path, flag MatchFlag, mode FindMode) []*resource.Resource {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*resource.Resource
	segs := path.Segments()
	if len(segs) == 0 {
		return out
	}
	t.walk(t.root, segs, 0, flag, mode, &out)
	return out
}

// All returns every resource descriptor in the tree, in pre-order.
func (t *Tree) All() []*resource.Resource {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []*resource.Resource
	var walk func(n *node)
	walk = func(n *node) {
		if n.rsrc != nil {
			out = append(out, n.rsrc)
		}
		for _, byID := range n.children {
			for _, child := range byID {
				walk(child)
			}
		}
	}
	walk(t.root)
	return out
}

func segmentMatches(query respath.Segment, tree respath.Segment, flag MatchFlag) bool {
	if query.Type != tree.Type {
		return false
	}
	switch flag {
	case Exact:
		return query.ID == tree.ID
	case TypeOnly:
		return true
	case Mixed:
		if query.ID >= 0 {
			return query.ID == tree.ID
		}
		return true
	default:
		return false
	}
}

func (t *Tree) walk(n *node, segs []respath.Segment, i int, flag MatchFlag, mode FindMode, out *[]*resource.Resource) bool {
	for _, byID := range n.children {
		for _, child := range byID {
			if !segmentMatches(segs[i], child.seg, flag) {
				continue
			}
			if i == len(segs)-1 {
				if child.rsrc != nil {
					*out = append(*out, child.rsrc)
					if mode == First {
						return true
					}
				}
				continue
			}
			if t.walk(child, segs, i+1, flag, mode, out) && mode == First {
				return true
			}
		}
	}
	return false
}
