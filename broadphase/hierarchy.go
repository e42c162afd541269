// Package broadphase implements a dynamic bounding volume hierarchy over axis aligned
// boxes. It finds every overlapping pair each tick and answers spatial queries.
package broadphase

import (
	"cmp"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/chewxy/math32"
	"github.com/gekko3d/gekkophys/geom"
	"github.com/gekko3d/gekkophys/logging"
	"github.com/gekko3d/gekkophys/parallel"
	"github.com/go-gl/mathgl/mgl32"
)

// Entry is anything the hierarchy can index. Entries are compared by identity, so
// implementations should be pointer types.
type Entry interface {
	BoundingBox() geom.AABB
}

// PairSink receives every pair of entries whose boxes overlap. Parallel traversal calls
// it from several goroutines at once.
type PairSink interface {
	TryToAdd(a, b Entry)
}

// PairSinkFunc adapts a function to PairSink.
type PairSinkFunc func(a, b Entry)

func (f PairSinkFunc) TryToAdd(a, b Entry) { f(a, b) }

type node struct {
	box      geom.AABB
	children [2]*node
	entries  []Entry
	// count is the number of entries in the whole subtree.
	count  int
	parent *node

	currentVolume        float32
	maximumAllowedVolume float32
}

func (n *node) isLeaf() bool { return n.children[0] == nil }

func resetNode(n *node) {
	clear(n.entries)
	n.entries = n.entries[:0]
	n.children = [2]*node{}
	n.parent = nil
	n.count = 0
	n.box = geom.AABB{}
	n.currentVolume = 0
	n.maximumAllowedVolume = 0
}

type Option func(*Hierarchy)

// WithScheduler enables the parallel refit and overlap paths.
func WithScheduler(s parallel.Scheduler) Option {
	return func(h *Hierarchy) { h.scheduler = s }
}

func WithLogger(l logging.Logger) Option {
	return func(h *Hierarchy) { h.logger = logging.OrNop(l) }
}

// Hierarchy is a binary tree whose leaves hold up to MaximumEntitiesInLeaves entries.
// Mutating calls (Add, Remove, Refit, Build) must not run concurrently with each other
// or with queries.
type Hierarchy struct {
	settings  Settings
	scheduler parallel.Scheduler
	logger    logging.Logger

	root   *node
	leafMu sync.Mutex
	leafOf map[Entry]*node

	nodes       *parallel.LockingPool[node]
	buffers     *parallel.LockingPool[[]Entry]
	comparisons *parallel.LockingPool[comparison]

	revalidations atomic.Int64
}

func NewHierarchy(settings Settings, opts ...Option) (*Hierarchy, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	h := &Hierarchy{
		settings:  settings,
		scheduler: parallel.InlineScheduler{},
		logger:    logging.NewNopLogger(),
		leafOf:    make(map[Entry]*node),
		nodes:     parallel.NewLockingPool(nil, resetNode),
		buffers: parallel.NewLockingPool(nil, func(b *[]Entry) {
			clear(*b)
			*b = (*b)[:0]
		}),
		comparisons: parallel.NewLockingPool(nil, func(c *comparison) { *c = comparison{} }),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

func (h *Hierarchy) Settings() Settings { return h.settings }

// Count returns the number of indexed entries.
func (h *Hierarchy) Count() int {
	if h.root == nil {
		return 0
	}
	return h.root.count
}

// Bounds returns the root box, or false when the hierarchy is empty.
func (h *Hierarchy) Bounds() (geom.AABB, bool) {
	if h.root == nil {
		return geom.AABB{}, false
	}
	return h.root.box, true
}

func (h *Hierarchy) Contains(e Entry) bool {
	_, ok := h.leafOf[e]
	return ok
}

// Add inserts e, descending toward the child whose center is nearest (Manhattan) to
// the entry's center. A leaf that overflows is revalidated.
func (h *Hierarchy) Add(e Entry) error {
	box := e.BoundingBox()
	if !box.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidBoundingBox, box)
	}
	if _, ok := h.leafOf[e]; ok {
		return ErrDuplicateEntry
	}
	if h.root == nil {
		h.root = h.nodes.Take()
	}
	center := box.Center()
	n := h.root
	for {
		if n.count == 0 {
			n.box = box
		} else {
			n.box = n.box.Merge(box)
		}
		n.count++
		if n.isLeaf() {
			break
		}
		n = nearestChild(n, center)
	}
	n.entries = append(n.entries, e)
	h.leafOf[e] = n
	if len(n.entries) > h.settings.MaximumEntitiesInLeaves {
		h.revalidate(n)
	}
	return nil
}

func nearestChild(n *node, p mgl32.Vec3) *node {
	if manhattan(n.children[0].box.Center(), p) <= manhattan(n.children[1].box.Center(), p) {
		return n.children[0]
	}
	return n.children[1]
}

func manhattan(a, b mgl32.Vec3) float32 {
	return math32.Abs(a[0]-b[0]) + math32.Abs(a[1]-b[1]) + math32.Abs(a[2]-b[2])
}

// Remove deletes e and reports whether it was present. When an ancestor's subtree
// shrinks to MaximumEntitiesInLeaves+1 entries it collapses back into a leaf.
func (h *Hierarchy) Remove(e Entry) bool {
	leaf, ok := h.leafOf[e]
	if !ok {
		return false
	}
	delete(h.leafOf, e)
	if i := slices.Index(leaf.entries, e); i >= 0 {
		leaf.entries = slices.Delete(leaf.entries, i, i+1)
	}
	for p := leaf; p != nil; p = p.parent {
		p.count--
	}

	if h.root.count == 0 {
		h.releaseSubtree(h.root)
		h.root = nil
		return true
	}

	var collapse *node
	for p := leaf.parent; p != nil && p.count <= h.settings.MaximumEntitiesInLeaves+1; p = p.parent {
		collapse = p
	}

	start := leaf
	switch {
	case collapse != nil:
		buf := h.buffers.Take()
		*buf = h.collect(collapse, (*buf)[:0])
		collapse.entries = append(collapse.entries[:0], *buf...)
		for _, en := range *buf {
			h.setLeaf(en, collapse)
		}
		h.buffers.GiveBack(buf)
		start = collapse
	case len(leaf.entries) == 0 && leaf.parent != nil:
		start = h.spliceOut(leaf)
	}
	for p := start; p != nil; p = p.parent {
		h.refitNodeBox(p)
	}
	return true
}

// spliceOut removes an empty leaf by letting its sibling take the parent's place and
// returns the node refitting should start from.
func (h *Hierarchy) spliceOut(leaf *node) *node {
	parent := leaf.parent
	sibling := parent.children[0]
	if sibling == leaf {
		sibling = parent.children[1]
	}
	grand := parent.parent
	sibling.parent = grand
	if grand == nil {
		h.root = sibling
	} else if grand.children[0] == parent {
		grand.children[0] = sibling
	} else {
		grand.children[1] = sibling
	}
	parent.children = [2]*node{}
	h.nodes.GiveBack(leaf)
	h.nodes.GiveBack(parent)
	return grand
}

func (h *Hierarchy) refitNodeBox(n *node) {
	if n.isLeaf() {
		n.box = boundsOf(n.entries)
		return
	}
	n.box = n.children[0].box.Merge(n.children[1].box)
}

func (h *Hierarchy) setLeaf(e Entry, n *node) {
	h.leafMu.Lock()
	h.leafOf[e] = n
	h.leafMu.Unlock()
}

// Build replaces the contents of the hierarchy with entries using a single top-down
// construction.
func (h *Hierarchy) Build(entries []Entry) error {
	for _, e := range entries {
		if box := e.BoundingBox(); !box.Valid() {
			return fmt.Errorf("%w: %v", ErrInvalidBoundingBox, box)
		}
	}
	h.Clear()
	if len(entries) == 0 {
		return nil
	}
	buf := h.buffers.Take()
	*buf = append((*buf)[:0], entries...)
	h.root = h.nodes.Take()
	h.build(h.root, *buf)
	h.buffers.GiveBack(buf)
	return nil
}

// Clear removes every entry and returns all nodes to the pool.
func (h *Hierarchy) Clear() {
	if h.root != nil {
		h.releaseSubtree(h.root)
		h.root = nil
	}
	clear(h.leafOf)
}

func (h *Hierarchy) releaseSubtree(n *node) {
	if !n.isLeaf() {
		h.releaseSubtree(n.children[0])
		h.releaseSubtree(n.children[1])
	}
	h.nodes.GiveBack(n)
}

// revalidate rebuilds the subtree rooted at n top-down.
func (h *Hierarchy) revalidate(n *node) {
	h.revalidations.Add(1)
	buf := h.buffers.Take()
	*buf = h.collect(n, (*buf)[:0])
	h.build(n, *buf)
	h.buffers.GiveBack(buf)
}

// collect appends every entry below n and returns n's descendants to the pool.
func (h *Hierarchy) collect(n *node, out []Entry) []Entry {
	if n.isLeaf() {
		out = append(out, n.entries...)
		clear(n.entries)
		n.entries = n.entries[:0]
		return out
	}
	for i, c := range n.children {
		out = h.collect(c, out)
		h.nodes.GiveBack(c)
		n.children[i] = nil
	}
	return out
}

func (h *Hierarchy) build(n *node, entries []Entry) {
	n.box = boundsOf(entries)
	n.count = len(entries)
	n.currentVolume = n.box.Volume()
	n.maximumAllowedVolume = n.currentVolume * h.settings.MaximumAllowedVolumeFactor
	if len(entries) <= h.settings.MaximumEntitiesInLeaves {
		n.entries = append(n.entries[:0], entries...)
		for _, e := range entries {
			h.setLeaf(e, n)
		}
		return
	}
	mid := h.split(n.box, entries)
	for i, part := range [2][]Entry{entries[:mid], entries[mid:]} {
		c := h.nodes.Take()
		c.parent = n
		n.children[i] = c
		h.build(c, part)
	}
}

// split partitions entries around the midpoint of the longest axis and returns the
// index of the first entry of the second half.
func (h *Hierarchy) split(box geom.AABB, entries []Entry) int {
	axis := box.LongestAxis()
	pivot := box.Center()[axis]
	i, j := 0, len(entries)-1
	for i <= j {
		if entries[i].BoundingBox().Center()[axis] < pivot {
			i++
			continue
		}
		entries[i], entries[j] = entries[j], entries[i]
		j--
	}
	limit := float32(len(entries)) * h.settings.MaximumChildEntityLoad
	if i == 0 || i == len(entries) || float32(i) >= limit || float32(len(entries)-i) >= limit {
		return redoSplit(axis, entries)
	}
	return i
}

// redoSplit sorts along the axis and bisects, guaranteeing a balanced split.
func redoSplit(axis int, entries []Entry) int {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		return cmp.Compare(a.BoundingBox().Center()[axis], b.BoundingBox().Center()[axis])
	})
	return len(entries) / 2
}

func boundsOf(entries []Entry) geom.AABB {
	if len(entries) == 0 {
		return geom.AABB{}
	}
	box := entries[0].BoundingBox()
	for _, e := range entries[1:] {
		box = box.Merge(e.BoundingBox())
	}
	return box
}

// Refit tightens every box bottom-up after entries moved. Internal nodes that grew past
// their allowed volume, and leaves left over-full by Remove, are revalidated.
func (h *Hierarchy) Refit() {
	if h.root == nil {
		return
	}
	before := h.revalidations.Load()
	h.refit(h.root)
	if n := h.revalidations.Load() - before; n > 0 {
		h.logger.Debugf("broadphase refit revalidated %d nodes", n)
	}
}

func (h *Hierarchy) refit(n *node) {
	if n.isLeaf() {
		if len(n.entries) > h.settings.MaximumEntitiesInLeaves {
			h.revalidate(n)
			return
		}
		n.box = boundsOf(n.entries)
		return
	}
	h.refit(n.children[0])
	h.refit(n.children[1])
	h.refitInternal(n)
}

func (h *Hierarchy) refitInternal(n *node) {
	n.box = n.children[0].box.Merge(n.children[1].box)
	n.currentVolume = n.box.Volume()
	if n.currentVolume > n.maximumAllowedVolume {
		h.revalidate(n)
	}
}

// RefitParallel is Refit with the subtrees below a breadth-first frontier refit as
// scheduler tasks. Small subtrees run inline.
func (h *Hierarchy) RefitParallel() {
	if h.root == nil {
		return
	}
	threads := h.scheduler.ThreadCount()
	if threads <= 1 || h.root.count < h.settings.MinimumNodeEntitiesRequiredToMultithread {
		h.Refit()
		return
	}
	before := h.revalidations.Load()

	var upper []*node
	frontier := []*node{h.root}
	for len(frontier) <= threads-1 {
		expanded := false
		next := frontier[:0:0]
		for _, n := range frontier {
			if !n.isLeaf() && n.count >= h.settings.MinimumNodeEntitiesRequiredToMultithread {
				upper = append(upper, n)
				next = append(next, n.children[0], n.children[1])
				expanded = true
				continue
			}
			next = append(next, n)
		}
		frontier = next
		if !expanded {
			break
		}
	}

	for _, n := range frontier {
		if n.count < h.settings.MinimumNodeEntitiesRequiredToMultithread {
			h.refit(n)
			continue
		}
		h.scheduler.EnqueueTask(func(state any) {
			h.refit(state.(*node))
		}, n)
	}
	h.scheduler.WaitForTaskCompletion()

	// Upper nodes were appended parents first, so walking backwards visits children
	// before their parents.
	for i := len(upper) - 1; i >= 0; i-- {
		h.refitInternal(upper[i])
	}
	if n := h.revalidations.Load() - before; n > 0 {
		h.logger.Debugf("broadphase parallel refit revalidated %d nodes", n)
	}
}
