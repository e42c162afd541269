package broadphase

// comparison is one unit of overlap work: a subtree against itself or two subtrees
// against each other.
type comparison struct {
	a, b *node
	self bool
}

// FindOverlappingPairs reports every pair of entries with intersecting boxes to sink.
// Boxes are read from the tree, so Refit should run first.
func (h *Hierarchy) FindOverlappingPairs(sink PairSink) {
	if h.root == nil {
		return
	}
	selfTest(h.root, sink)
}

func selfTest(n *node, sink PairSink) {
	if n.isLeaf() {
		for i := 0; i < len(n.entries); i++ {
			bi := n.entries[i].BoundingBox()
			for j := i + 1; j < len(n.entries); j++ {
				if bi.Intersects(n.entries[j].BoundingBox()) {
					sink.TryToAdd(n.entries[i], n.entries[j])
				}
			}
		}
		return
	}
	selfTest(n.children[0], sink)
	selfTest(n.children[1], sink)
	crossTest(n.children[0], n.children[1], sink)
}

func crossTest(a, b *node, sink PairSink) {
	if !a.box.Intersects(b.box) {
		return
	}
	switch {
	case a.isLeaf() && b.isLeaf():
		for _, ea := range a.entries {
			ba := ea.BoundingBox()
			for _, eb := range b.entries {
				if ba.Intersects(eb.BoundingBox()) {
					sink.TryToAdd(ea, eb)
				}
			}
		}
	case a.isLeaf():
		crossTest(a, b.children[0], sink)
		crossTest(a, b.children[1], sink)
	case b.isLeaf():
		crossTest(a.children[0], b, sink)
		crossTest(a.children[1], b, sink)
	default:
		crossTest(a.children[0], b.children[0], sink)
		crossTest(a.children[0], b.children[1], sink)
		crossTest(a.children[1], b.children[0], sink)
		crossTest(a.children[1], b.children[1], sink)
	}
}

// FindOverlappingPairsCross reports every overlapping pair between two hierarchies,
// with entries of h first.
func (h *Hierarchy) FindOverlappingPairsCross(other *Hierarchy, sink PairSink) {
	if h.root == nil || other.root == nil {
		return
	}
	crossTest(h.root, other.root, sink)
}

// FindOverlappingPairsParallel expands comparisons breadth-first until there are more
// than ThreadCount-1 of them, then hands each to the scheduler. sink must be safe for
// concurrent use.
func (h *Hierarchy) FindOverlappingPairsParallel(sink PairSink) {
	if h.root == nil {
		return
	}
	threads := h.scheduler.ThreadCount()
	if threads <= 1 || h.root.count < h.settings.MinimumNodeEntitiesRequiredToMultithread {
		h.FindOverlappingPairs(sink)
		return
	}

	queue := []*comparison{h.newComparison(h.root, h.root, true)}
	for head := 0; head < len(queue) && len(queue)-head <= threads-1; {
		c := queue[head]
		queue[head] = nil
		head++
		switch {
		case c.self && c.a.isLeaf():
			selfTest(c.a, sink)
		case c.self:
			queue = append(queue,
				h.newComparison(c.a.children[0], c.a.children[0], true),
				h.newComparison(c.a.children[1], c.a.children[1], true),
				h.newComparison(c.a.children[0], c.a.children[1], false))
		case !c.a.box.Intersects(c.b.box):
		case c.a.isLeaf() && c.b.isLeaf():
			crossTest(c.a, c.b, sink)
		case c.a.isLeaf():
			queue = append(queue,
				h.newComparison(c.a, c.b.children[0], false),
				h.newComparison(c.a, c.b.children[1], false))
		case c.b.isLeaf():
			queue = append(queue,
				h.newComparison(c.a.children[0], c.b, false),
				h.newComparison(c.a.children[1], c.b, false))
		default:
			queue = append(queue,
				h.newComparison(c.a.children[0], c.b.children[0], false),
				h.newComparison(c.a.children[0], c.b.children[1], false),
				h.newComparison(c.a.children[1], c.b.children[0], false),
				h.newComparison(c.a.children[1], c.b.children[1], false))
		}
		h.comparisons.GiveBack(c)
	}

	var pending []*comparison
	for _, c := range queue {
		if c == nil {
			continue
		}
		if c.a.count+c.b.count < h.settings.MinimumNodeEntitiesRequiredToMultithread {
			runComparison(c, sink)
			h.comparisons.GiveBack(c)
			continue
		}
		pending = append(pending, c)
		h.scheduler.EnqueueTask(func(state any) {
			runComparison(state.(*comparison), sink)
		}, c)
	}
	h.scheduler.WaitForTaskCompletion()
	for _, c := range pending {
		h.comparisons.GiveBack(c)
	}
}

func (h *Hierarchy) newComparison(a, b *node, self bool) *comparison {
	c := h.comparisons.Take()
	c.a, c.b, c.self = a, b, self
	return c
}

func runComparison(c *comparison, sink PairSink) {
	if c.self {
		selfTest(c.a, sink)
		return
	}
	crossTest(c.a, c.b, sink)
}
