package comap

import "math"

// minBuckets is the smallest capacity a table ever has: one bitmap word's
// worth of bits, so the fast path of findEmptyNear always has a full word.
const minBuckets = wordBits

// defaultMaxLoadFactor matches emhash6's EMH_DEFAULT_LOAD_FACTOR.
const defaultMaxLoadFactor = 0.88

const (
	minMaxLoadFactor = 0.2
	maxMaxLoadFactor = 0.99
)

// index is the type- and value-independent half of the table: the link
// array, the bitmap, and the header fields from the design (mask, filled,
// mainCount, hashSalt, load-factor policy, lastScan). It knows nothing
// about keys or values — both Map and NodeMap embed one and layer their own
// typed slot storage and key comparisons on top.
//
// link always has two extra tail entries past mask+1 (as do the slot arrays
// of Map and NodeMap); the bitmap has one always-zero tail word.
type index struct {
	link      []link
	bmap      *bitmap
	mask      uint32
	filled    uint32
	mainCount uint32
	hashSalt  uint64
	maxLoadN  uint32
	maxLoadD  uint32
	lastScan  uint32
	adaptive  bool
}

func newIndex(n uint32) *index {
	n = nextPow2(n)
	if n < minBuckets {
		n = minBuckets
	}
	idx := &index{
		link:     make([]link, n+2),
		bmap:     newBitmap(n),
		mask:     n - 1,
		maxLoadN: 88,
		maxLoadD: 100,
	}
	for i := range idx.link {
		idx.link[i] = linkInactive
	}
	for i := uint32(0); i < n; i++ {
		idx.bmap.markEmpty(i)
	}
	return idx
}

func nextPow2(n uint32) uint32 {
	if n == 0 {
		return 1
	}
	if n&(n-1) == 0 {
		return n
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

// bucketCount is N, the current number of live (non-sentinel) slots.
func (x *index) bucketCount() uint32 { return x.mask + 1 }

// home computes a key's home position from its (possibly salted) hash.
func (x *index) home(hash uint64) uint32 {
	return uint32(saltedHash(hash, x.hashSalt)) & x.mask
}

func (x *index) loadFactor() float64 {
	return float64(x.filled) / float64(x.bucketCount())
}

func (x *index) maxLoadFactor() float64 {
	return float64(x.maxLoadN) / float64(x.maxLoadD)
}

// setMaxLoadFactor clamps to (0.2, 0.99) per the design's policy setter.
func (x *index) setMaxLoadFactor(f float64) {
	f = math.Max(minMaxLoadFactor, math.Min(maxMaxLoadFactor, f))
	// Keep a fixed-point num/den so load-factor comparisons stay exact
	// integer arithmetic in the hot insert path.
	const den = 1000000
	x.maxLoadN = uint32(f * den)
	x.maxLoadD = den
}

// wouldExceedLoad reports whether inserting one more entry would push the
// load factor over the configured threshold: (filled+1) > floor(N * num/den).
func (x *index) wouldExceedLoad() bool {
	n := uint64(x.bucketCount())
	limit := n * uint64(x.maxLoadN) / uint64(x.maxLoadD)
	return uint64(x.filled+1) > limit
}

func (x *index) markOccupied(i uint32) { x.bmap.markOccupied(i) }
func (x *index) markEmpty(i uint32)    { x.bmap.markEmpty(i) }

// findEmptyNear locates an empty slot close to from, per the bitmap-driven
// search in the design: a word at from, a forward word two words ahead,
// then a walking fallback rooted at lastScan.
func (x *index) findEmptyNear(from uint32) uint32 {
	return x.bmap.findEmptyNear(from, &x.lastScan)
}

// engageAdaptive switches on the secondary hash mixer once a rehash
// observes that home holders have become a minority of filled slots,
// suggesting the caller's hash is adversarial on this key distribution.
func (x *index) engageAdaptive(seed uint64) {
	if x.adaptive {
		return
	}
	x.adaptive = true
	x.hashSalt = deriveSalt(seed)
}

func (x *index) maybeEngageAdaptive(seed uint64) {
	if !x.adaptive && shouldEngageAdaptive(x.filled, x.mainCount) {
		x.engageAdaptive(seed)
	}
}

func (x *index) iterator() *bitmapIterator {
	return newBitmapIterator(x.bmap, x.bucketCount())
}

// reseatChain rewrites the predecessor of oldIdx within the chain rooted at
// dHome so it points at newIdx instead, preserving the predecessor's own
// home/displaced tag. Used when a kickout relocates a displaced occupant:
// the chain it belongs to (rooted at its own home, not at the slot it just
// vacated) must be patched to follow it to its new slot.
func (x *index) reseatChain(dHome, oldIdx, newIdx uint32) {
	p := dHome
	for {
		pl := x.link[p]
		if pl.next() == oldIdx {
			x.link[p] = pl.withTag(newIdx)
			return
		}
		p = pl.next()
	}
}

// findOrAllocate implements the Case A-E decision from the design: empty
// home (A), kickout of a displaced occupant (C), or a walk to the chain's
// tail to either find an existing match (B) or append a new slot (D/E,
// unified into one walk since both end the same way: extend the terminal
// node's link to a freshly found empty slot).
//
// keyEqual(slot) compares the target key against whatever sits at slot.
// moveContent(dst, src) relocates a slot's payload (key/value or node
// pointer) without touching the link/bitmap bookkeeping done here.
// homeOf(slot) returns the home position of whatever key currently sits at
// slot — needed only for the Case C kickout, to find the predecessor that
// must be repointed at the relocated occupant's new home.
func findOrAllocate(x *index, hash uint64, keyEqual func(uint32) bool, moveContent func(dst, src uint32), homeOf func(uint32) uint32) (slot uint32, existed bool) {
	h := x.home(hash)
	l := x.link[h]

	switch {
	case l.isEmpty():
		x.link[h] = encodeHome(h)
		x.markOccupied(h)
		x.filled++
		x.mainCount++
		return h, false

	case !l.isHome():
		// Case C: h holds a displaced occupant chained in from elsewhere.
		// Evict it to a fresh empty slot so h is free for its own home holder.
		e := x.findEmptyNear(h)
		dHome := homeOf(h)
		if l.terminal(h) {
			// The occupant was its chain's tail; at its new slot it must
			// self-reference e, not the old (about-to-be-reused) index h.
			x.link[e] = l.withTag(e)
		} else {
			x.link[e] = l
		}
		moveContent(e, h)
		x.markOccupied(e)
		x.reseatChain(dHome, h, e)
		x.link[h] = encodeHome(h)
		x.filled++
		x.mainCount++
		return h, false

	default:
		// h is a home holder, possibly with a chain. Walk it looking for
		// an existing match (Case B); if none, cur ends up at the tail
		// (Case D if that tail is h itself, Case E otherwise) and we
		// append a new slot there.
		cur := h
		for {
			if keyEqual(cur) {
				return cur, true
			}
			cl := x.link[cur]
			if cl.terminal(cur) {
				break
			}
			cur = cl.next()
		}
		e := x.findEmptyNear(cur)
		x.link[e] = encodeDisplaced(e)
		x.link[cur] = x.link[cur].withTag(e)
		x.markOccupied(e)
		x.filled++
		return e, false
	}
}

// lookupSlot implements §4.1.1: walk the chain rooted at hash's home
// looking for a slot satisfying keyEqual. Returns (0, false) if absent.
func lookupSlot(x *index, hash uint64, keyEqual func(uint32) bool) (uint32, bool) {
	h := x.home(hash)
	l := x.link[h]
	if l.isEmpty() || !l.isHome() {
		return 0, false
	}
	cur := h
	for {
		if keyEqual(cur) {
			return cur, true
		}
		cl := x.link[cur]
		if cl.terminal(cur) {
			return 0, false
		}
		cur = cl.next()
	}
}

// deleteSlot implements §4.1.3: locate the target via keyEqual and remove
// it, compacting forward when a home holder with a successor is removed so
// the home position stays occupied. onFound(target) fires once, at the
// slot holding the matched key, before any compaction move overwrites it —
// NodeMap's Extract uses this to steal the original node pointer instead of
// losing it to the compaction copy. clear(slot) lets the caller release the
// payload at whatever slot actually becomes empty (which, after forward
// compaction, is the successor's old slot, not the matched one).
// moveContent mirrors findOrAllocate's: relocates a slot's payload.
// Returns true iff a matching key was found and removed.
func deleteSlot(x *index, hash uint64, keyEqual func(uint32) bool, onFound func(target uint32), moveContent func(dst, src uint32), clear func(uint32)) bool {
	h := x.home(hash)
	l := x.link[h]
	if l.isEmpty() || !l.isHome() {
		return false
	}

	if keyEqual(h) {
		onFound(h)
		if l.terminal(h) {
			clear(h)
			x.link[h] = linkInactive
			x.markEmpty(h)
			x.filled--
			x.mainCount--
			return true
		}
		// Home holder with a successor: compact the successor forward
		// into h so the home position stays occupied, as required.
		s := l.next()
		sl := x.link[s]
		moveContent(h, s)
		next := sl.next()
		if sl.terminal(s) {
			// s was the chain's tail; h is now the tail and must point
			// at itself, not at s's old (about-to-be-freed) index.
			next = h
		}
		x.link[h] = encodeHome(next)
		clear(s)
		x.link[s] = linkInactive
		x.markEmpty(s)
		x.filled--
		return true
	}

	prev := h
	cur := l.next()
	for {
		cl := x.link[cur]
		if keyEqual(cur) {
			onFound(cur)
			pl := x.link[prev]
			if cl.terminal(cur) {
				x.link[prev] = pl.withTag(prev)
			} else {
				x.link[prev] = pl.withTag(cl.next())
			}
			clear(cur)
			x.link[cur] = linkInactive
			x.markEmpty(cur)
			x.filled--
			return true
		}
		if cl.terminal(cur) {
			return false
		}
		prev = cur
		cur = cl.next()
	}
}
