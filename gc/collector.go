// ABOUTME: Collector engine: allocation, local trial deletion and global mark-sweep
// ABOUTME: Also owns the memory budget policy and the collector statistics

package gc

import (
	"math"
	"reflect"
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

// State is the collector's pass state.
type State uint8

const (
	// Idle means no pass is running.
	Idle State = iota
	// Freeing means a local reclamation is running.
	Freeing
	// Collecting means a full mark-sweep is running.
	Collecting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Freeing:
		return "freeing"
	case Collecting:
		return "collecting"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time view of the collector.
type Stats struct {
	Objects     int
	Anchors     int
	MemoryUsed  uint64
	MemoryLimit uint64

	Allocations       uint64 // objects ever allocated
	FreedLocal        uint64 // objects reclaimed when a count reached zero
	FreedCollected    uint64 // objects reclaimed by Collect
	Collections       uint64 // completed Collect passes
	BudgetCollections uint64 // passes triggered by the memory limit
	DeferredDrops     uint64 // counts that reached zero while a pass was running
	LastPause         time.Duration
	TotalPause        time.Duration
}

// Option configures a Collector.
type Option func(*Collector)

// WithLogger sets the logger passes report to.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Collector) {
		c.log = log
	}
}

// WithMemoryLimit sets the memory budget in bytes. 0 disables the budget.
func WithMemoryLimit(limit uint64) Option {
	return func(c *Collector) {
		c.memLimit = limit
	}
}

// WithValidation runs Validate after every pass and reports violations from
// Collect. It costs a walk over the whole heap per pass.
func WithValidation(enabled bool) Option {
	return func(c *Collector) {
		c.validate = enabled
	}
}

// Collector owns a heap of managed objects. It is not safe for concurrent
// use; every handle and anchor of a collector must be used from the goroutine
// that owns it.
type Collector struct {
	active  node
	temp    node
	anchors anchorLink

	state    State
	deferred []*node

	objects     int
	anchorCount int
	nodeBytes   uint64
	external    uint64
	memLimit    uint64
	nextID      uint64

	validate bool
	log      zerolog.Logger
	stats    Stats
}

// NewCollector returns an empty collector.
func NewCollector(opts ...Option) *Collector {
	c := &Collector{log: zerolog.Nop()}
	initList(&c.active)
	initList(&c.temp)
	initList(&c.anchors)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// New allocates a managed copy of v and returns the only handle to it.
// New takes ownership of the handles inside v: the new object owns them, or
// they are released when New fails.
func New[T any](c *Collector, v T) (Ptr[T], error) {
	taken := false
	p, err := Make(c, func(p *T) error {
		*p, taken = v, true
		return nil
	})
	if err != nil && !taken {
		releaseValue(&v)
	}
	return p, err
}

// Make allocates a managed T and initialises it in place with init, which
// may be nil. If init fails, or leaves an interface holding a value that may
// hide handles (ErrUntraversable), nothing is allocated and the handles
// already stored in the value are released.
func Make[T any](c *Collector, init func(*T) error) (Ptr[T], error) {
	p, err := planFor(reflect.TypeFor[T]())
	if err != nil {
		return Ptr[T]{}, err
	}
	if c.state != Idle {
		return Ptr[T]{}, errors.Wrapf(ErrReentrant, "allocate %s while %s", p.typ, c.state)
	}
	b := &box[T]{plan: p}
	size := uint64(unsafe.Sizeof(*b))
	c.reserve(size)
	if init != nil {
		if err := init(&b.value); err != nil {
			b.releaseHandles()
			return Ptr[T]{}, errors.Wrapf(err, "construct %s", p.typ)
		}
	}
	if err := checkDynamic(p, reflect.ValueOf(&b.value).Elem()); err != nil {
		b.releaseHandles()
		return Ptr[T]{}, errors.Wrapf(err, "construct %s", p.typ)
	}
	if s, ok := any(&b.value).(Sizer); ok {
		size += uint64(s.GCSize())
	}
	c.adopt(&b.node, b, size)
	return Ptr[T]{b: b}, nil
}

func (c *Collector) adopt(n *node, obj payload, size uint64) {
	c.nextID++
	n.gc = c
	n.obj = obj
	n.id = c.nextID
	n.size = size
	n.refCount = 1
	n.where = inActive
	insertAfter(&c.active, n)
	c.objects++
	c.nodeBytes += size
	c.stats.Allocations++
}

// reserve applies the memory budget before size more bytes are charged.
func (c *Collector) reserve(size uint64) {
	if c.memLimit == 0 || c.state != Idle || c.MemoryUsed()+size <= c.memLimit {
		return
	}
	c.stats.BudgetCollections++
	c.log.Debug().
		Uint64("used", c.MemoryUsed()).
		Uint64("limit", c.memLimit).
		Uint64("request", size).
		Msg("memory limit reached, collecting")
	if _, err := c.Collect(); err != nil {
		c.log.Error().Err(err).Msg("budget collection failed")
	}
	if used := c.MemoryUsed(); used+size > c.memLimit {
		c.log.Warn().
			Uint64("used", used).
			Uint64("limit", c.memLimit).
			Msg("memory limit still exceeded after collection")
	}
}

func (c *Collector) retain(n *node) {
	switch {
	case n.dead:
		panic(useAfterFree(n, "clone"))
	case c.state == Freeing && n.where == inTemp,
		c.state == Collecting && n.where == inActive:
		panic(errors.AssertionFailedf("node %d (%s) resurrected while %s", n.id, n.obj.typeName(), c.state))
	}
	n.refCount++
}

func (c *Collector) release(n *node) {
	switch {
	case n.dead:
		panic(useAfterFree(n, "release"))
	case c.state != Idle && !c.survives(n):
		// Condemned by the running pass; its count no longer matters.
		return
	case n.refCount <= 0:
		panic(errors.AssertionFailedf("release of node %d (%s) with ref count %d",
			n.id, n.obj.typeName(), n.refCount))
	}
	n.refCount--
	if n.refCount > 0 {
		return
	}
	if c.state != Idle {
		c.deferred = append(c.deferred, n)
		c.stats.DeferredDrops++
		return
	}
	c.free(n)
}

// survives reports whether the running pass keeps n.
func (c *Collector) survives(n *node) bool {
	if c.state == Collecting {
		return n.reachable
	}
	return n.where == inActive
}

func (c *Collector) moveTo(head *node, n *node, where listID) {
	unlink(n)
	pushBack(head, n)
	n.where = where
}

// free reclaims n, whose count just reached zero, together with every object
// that only n kept alive.
func (c *Collector) free(n *node) {
	c.state = Freeing
	freed := c.reclaim([]*node{n})
	c.state = Idle
	c.stats.FreedLocal += uint64(freed)
	c.log.Trace().Uint64("root", n.id).Int("freed", freed).Msg("freed")
	if c.validate {
		if err := c.Validate(); err != nil {
			c.log.Error().Err(err).Msg("heap invalid after free")
		}
	}
}

// reclaim runs trial deletion from roots. Candidates are queued on the temp
// list and scanned breadth-first; each child whose count drops to zero is
// appended behind the cursor. Survivors get their counts back before the
// hooks run, so a hook may release the handles its object holds. Counts that
// reach zero through hooks are picked up by the next round.
func (c *Collector) reclaim(roots []*node) int {
	dec := decrementer{c: c}
	freed := 0
	for len(roots) > 0 {
		for _, n := range roots {
			if !n.dead && n.refCount == 0 && n.where == inActive {
				c.moveTo(&c.temp, n, inTemp)
			}
		}
		for cur := c.temp.next; cur != &c.temp; cur = cur.next {
			cur.obj.traverse(dec)
		}
		for cur := c.temp.next; cur != &c.temp; cur = cur.next {
			cur.obj.traverse(restorer{})
		}
		freed += c.destroyList(&c.temp)
		roots, c.deferred = c.deferred, nil
	}
	return freed
}

// destroyList runs every BeforeDestroy hook on the list, in order, then every
// Destroy, then drops the edges the objects still hold on survivors and
// deallocates them. No user code runs once the first object is deallocated.
func (c *Collector) destroyList(head *node) int {
	for cur := head.next; cur != head; cur = cur.next {
		cur.obj.beforeDestroy()
	}
	for cur := head.next; cur != head; cur = cur.next {
		cur.obj.destroy()
	}
	drop := edgeDropper{c: c}
	freed := 0
	for !isEmpty(head) {
		n := head.next
		n.obj.traverse(drop)
		c.destroy(n)
		freed++
	}
	return freed
}

func (c *Collector) destroy(n *node) {
	unlink(n)
	n.where = inNone
	n.obj.clear()
	n.dead = true
	n.reachable = false
	n.refCount = 0
	c.objects--
	c.nodeBytes -= n.size
}

// Collect runs a full mark-sweep pass and returns the number of objects
// reclaimed. Everything not reachable from an anchor is reclaimed, cycles
// included.
func (c *Collector) Collect() (int, error) {
	if c.state != Idle {
		return 0, errors.Wrapf(ErrReentrant, "collect while %s", c.state)
	}
	start := time.Now()
	c.state = Collecting

	mark := marker{c: c}
	for a := c.anchors.next; a != &c.anchors; a = a.next {
		if n := a.owner.gcRoot(); n != nil {
			mark.visit(n)
		}
	}
	for cur := c.temp.next; cur != &c.temp; cur = cur.next {
		cur.obj.traverse(mark)
	}

	var err error
	if c.validate {
		err = c.checkMarks()
	}
	swept := c.sweep()

	survivors := 0
	spliceBack(&c.active, &c.temp)
	for cur := c.active.next; cur != &c.active; cur = cur.next {
		cur.reachable = false
		cur.marks = 0
		cur.where = inActive
		survivors++
	}

	c.state = Freeing
	deferred := c.deferred
	c.deferred = nil
	late := c.reclaim(deferred)
	c.state = Idle

	pause := time.Since(start)
	c.stats.Collections++
	c.stats.FreedCollected += uint64(swept)
	c.stats.FreedLocal += uint64(late)
	c.stats.LastPause = pause
	c.stats.TotalPause += pause
	c.log.Debug().
		Int("freed", swept+late).
		Int("survivors", survivors).
		Int("anchors", c.anchorCount).
		Uint64("memory", c.MemoryUsed()).
		Dur("pause", pause).
		Msg("collect")

	if c.validate {
		err = errors.CombineErrors(err, c.Validate())
		if err != nil {
			c.log.Error().Err(err).Msg("heap invalid after collect")
		}
	}
	return swept + late, err
}

// sweep reclaims everything left on the active list after marking. Edges
// from garbage into survivors are dropped so survivor counts stay exact.
func (c *Collector) sweep() int {
	return c.destroyList(&c.active)
}

// checkMarks verifies that every survivor has at least as many owning
// handles as the mark phase found rooted edges into it.
func (c *Collector) checkMarks() error {
	var err error
	for cur := c.temp.next; cur != &c.temp; cur = cur.next {
		if cur.refCount < cur.marks {
			err = errors.CombineErrors(err, errors.AssertionFailedf(
				"node %d (%s): ref count %d below %d rooted edges",
				cur.id, cur.obj.typeName(), cur.refCount, cur.marks))
		}
	}
	return err
}

// Close releases every anchor and collects, reclaiming the whole heap. Any
// handle still held afterwards is dangling.
func (c *Collector) Close() error {
	if c.state != Idle {
		return errors.Wrapf(ErrReentrant, "close while %s", c.state)
	}
	for !isEmpty(&c.anchors) {
		c.anchors.next.owner.Release()
	}
	_, err := c.Collect()
	return err
}

// State returns the current pass state.
func (c *Collector) State() State { return c.state }

// ObjectCount returns the number of live managed objects.
func (c *Collector) ObjectCount() int { return c.objects }

// AnchorCount returns the number of linked anchors.
func (c *Collector) AnchorCount() int { return c.anchorCount }

// MemoryUsed returns the bytes charged to the budget.
func (c *Collector) MemoryUsed() uint64 { return c.nodeBytes + c.external }

// MemoryLimit returns the budget, 0 when unlimited.
func (c *Collector) MemoryLimit() uint64 { return c.memLimit }

// SetMemoryLimit changes the budget. Setting it below current usage runs
// Collect before returning.
func (c *Collector) SetMemoryLimit(limit uint64) {
	c.memLimit = limit
	if limit == 0 || c.state != Idle || c.MemoryUsed() <= limit {
		return
	}
	c.stats.BudgetCollections++
	if _, err := c.Collect(); err != nil {
		c.log.Error().Err(err).Msg("budget collection failed")
	}
}

// TrackExternal charges (delta > 0) or refunds (delta < 0) memory that is not
// a managed object but should count against the budget. A charge that
// crosses the limit runs Collect.
func (c *Collector) TrackExternal(delta int64) {
	if delta > 0 {
		c.reserve(uint64(delta))
		c.external += uint64(delta)
		return
	}
	if delta == math.MinInt64 || uint64(-delta) > c.external {
		c.external = 0
		return
	}
	c.external -= uint64(-delta)
}

// Stats returns a copy of the collector statistics.
func (c *Collector) Stats() Stats {
	s := c.stats
	s.Objects = c.objects
	s.Anchors = c.anchorCount
	s.MemoryUsed = c.MemoryUsed()
	s.MemoryLimit = c.memLimit
	return s
}

// decrementer drops the edges of an object condemned by trial deletion.
type decrementer struct {
	c *Collector
}

func (d decrementer) visit(n *node) {
	if n.where != inActive {
		// A child already queued or reclaimed holds no count for this edge.
		return
	}
	if n.refCount <= 0 {
		panic(errors.AssertionFailedf("node %d (%s) ref count underflow", n.id, n.obj.typeName()))
	}
	n.refCount--
	if n.refCount == 0 {
		d.c.moveTo(&d.c.temp, n, inTemp)
	}
}

// marker moves every object reachable from the anchors onto the temp list.
type marker struct {
	c *Collector
}

func (m marker) visit(n *node) {
	if n.dead {
		panic(useAfterFree(n, "mark"))
	}
	if n.reachable {
		n.marks++
		return
	}
	n.reachable = true
	n.marks = 1
	m.c.moveTo(&m.c.temp, n, inTemp)
}

// restorer gives back the count trial deletion took from a survivor.
type restorer struct{}

func (restorer) visit(n *node) {
	if n.where == inActive {
		n.refCount++
	}
}

// edgeDropper releases the count a reclaimed object holds on a survivor.
type edgeDropper struct {
	c *Collector
}

func (d edgeDropper) visit(n *node) {
	if d.c.survives(n) {
		d.c.release(n)
	}
}

// releaser releases every handle of a value that never became managed.
type releaser struct{}

func (releaser) visit(n *node) {
	n.gc.release(n)
}
