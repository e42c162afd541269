package narrowphase

import (
	"cmp"
	"errors"
	"slices"
	"sync"

	"github.com/gekko3d/gekkophys/broadphase"
	"github.com/gekko3d/gekkophys/collidables"
	"github.com/gekko3d/gekkophys/logging"
	"github.com/gekko3d/gekkophys/parallel"
)

type pairKey struct {
	lo, hi uint64
}

func keyOf(a, b collidables.Collidable) pairKey {
	ia, ib := a.InstanceID(), b.InstanceID()
	if ia > ib {
		ia, ib = ib, ia
	}
	return pairKey{lo: ia, hi: ib}
}

// Pair is a live overlap tracked by the narrow phase.
type Pair struct {
	Handler  PairHandler
	key      pairKey
	lastSeen uint64
}

// PairContact is a contact seen from one collidable of a pair: Normal points from
// Other toward that collidable.
type PairContact struct {
	ContactData
	Other collidables.Collidable
}

type Option func(*NarrowPhase)

func WithScheduler(s parallel.Scheduler) Option {
	return func(np *NarrowPhase) { np.scheduler = s }
}

func WithLogger(l logging.Logger) Option {
	return func(np *NarrowPhase) { np.logger = logging.OrNop(l) }
}

// NarrowPhase receives overlapping pairs from the broad phase, keeps a handler per pair
// and drops pairs the broad phase stopped reporting.
//
// A tick is BeginTick, any number of TryToAdd calls (possibly concurrent), then Update.
type NarrowPhase struct {
	settings  Settings
	scheduler parallel.Scheduler
	logger    logging.Logger

	mu    sync.Mutex
	pairs map[pairKey]*Pair
	by    map[collidables.Collidable][]*Pair
	list  []*Pair
	errs  []error
	tick  uint64
}

func New(settings Settings, opts ...Option) (*NarrowPhase, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	np := &NarrowPhase{
		settings:  settings,
		scheduler: parallel.InlineScheduler{},
		logger:    logging.NewNopLogger(),
		pairs:     make(map[pairKey]*Pair),
		by:        make(map[collidables.Collidable][]*Pair),
	}
	for _, opt := range opts {
		opt(np)
	}
	return np, nil
}

func (np *NarrowPhase) Settings() Settings { return np.settings }

// BeginTick starts a new round of pair reports.
func (np *NarrowPhase) BeginTick() {
	np.mu.Lock()
	np.tick++
	np.mu.Unlock()
}

// TryToAdd implements broadphase.PairSink. Static pairs and pairs whose boxes do not
// overlap are ignored; known pairs are marked as seen this tick.
func (np *NarrowPhase) TryToAdd(ea, eb broadphase.Entry) {
	a, okA := ea.(collidables.Collidable)
	b, okB := eb.(collidables.Collidable)
	if !okA || !okB || a == b {
		return
	}
	if a.IsStatic() && b.IsStatic() {
		return
	}
	if !a.BoundingBox().Intersects(b.BoundingBox()) {
		return
	}
	key := keyOf(a, b)

	np.mu.Lock()
	defer np.mu.Unlock()
	if p, ok := np.pairs[key]; ok {
		p.lastSeen = np.tick
		return
	}
	h, err := NewPairHandler(a, b, np.settings)
	if err != nil {
		np.errs = append(np.errs, err)
		np.logger.Debugf("narrowphase: skip pair %s/%s: %v", a.Kind(), b.Kind(), err)
		return
	}
	p := &Pair{Handler: h, key: key, lastSeen: np.tick}
	np.pairs[key] = p
	np.list = append(np.list, p)
	np.by[a] = append(np.by[a], p)
	np.by[b] = append(np.by[b], p)
}

// Update removes the pairs not reported since BeginTick and regenerates the contacts of
// the rest on the scheduler. It returns the errors collected while adding pairs.
func (np *NarrowPhase) Update(dt float32) error {
	np.mu.Lock()
	live := np.list[:0]
	for _, p := range np.list {
		if p.lastSeen == np.tick {
			live = append(live, p)
			continue
		}
		np.forget(p)
	}
	clear(np.list[len(live):])
	np.list = live
	errs := np.errs
	np.errs = nil
	np.mu.Unlock()

	parallel.For(np.scheduler, len(live), func(i int) {
		live[i].Handler.Update(dt)
	})
	return errors.Join(errs...)
}

// forget drops p from the indexes and releases its handler. The caller removes it
// from list.
func (np *NarrowPhase) forget(p *Pair) {
	delete(np.pairs, p.key)
	for _, c := range [2]collidables.Collidable{p.Handler.CollidableA(), p.Handler.CollidableB()} {
		ps := slices.DeleteFunc(np.by[c], func(q *Pair) bool { return q == p })
		if len(ps) == 0 {
			delete(np.by, c)
		} else {
			np.by[c] = ps
		}
	}
	p.Handler.CleanUp()
}

// RemoveCollidable drops every pair involving c.
func (np *NarrowPhase) RemoveCollidable(c collidables.Collidable) {
	np.mu.Lock()
	defer np.mu.Unlock()
	ps := slices.Clone(np.by[c])
	for _, p := range ps {
		np.forget(p)
	}
	np.list = slices.DeleteFunc(np.list, func(p *Pair) bool { return slices.Contains(ps, p) })
}

func (np *NarrowPhase) PairCount() int {
	np.mu.Lock()
	defer np.mu.Unlock()
	return len(np.list)
}

// Pairs returns the live pairs ordered by instance ids.
func (np *NarrowPhase) Pairs() []*Pair {
	np.mu.Lock()
	out := slices.Clone(np.list)
	np.mu.Unlock()
	slices.SortFunc(out, func(a, b *Pair) int {
		if c := cmp.Compare(a.key.lo, b.key.lo); c != 0 {
			return c
		}
		return cmp.Compare(a.key.hi, b.key.hi)
	})
	return out
}

// ContactsOf appends the contacts of every pair involving c, with normals turned to
// point toward c. Pairs are visited in order of the other collidable's instance id.
func (np *NarrowPhase) ContactsOf(c collidables.Collidable, out []PairContact) []PairContact {
	np.mu.Lock()
	ps := slices.Clone(np.by[c])
	np.mu.Unlock()
	slices.SortFunc(ps, func(a, b *Pair) int { return cmp.Compare(other(a, c).InstanceID(), other(b, c).InstanceID()) })
	for _, p := range ps {
		out = AppendOriented(out, p.Handler, c)
	}
	return out
}

// AppendOriented appends the contacts of h seen from c.
func AppendOriented(out []PairContact, h PairHandler, c collidables.Collidable) []PairContact {
	flip := h.CollidableA() != c
	o := h.CollidableB()
	if flip {
		o = h.CollidableA()
	}
	for _, contact := range h.Contacts() {
		d := contact.ContactData
		if flip {
			d = d.Flipped()
		}
		out = append(out, PairContact{ContactData: d, Other: o})
	}
	return out
}

func other(p *Pair, c collidables.Collidable) collidables.Collidable {
	if p.Handler.CollidableA() == c {
		return p.Handler.CollidableB()
	}
	return p.Handler.CollidableA()
}
