package comap

import "math"

// entry is the heap node a NodeMap slot points to. Unlike Map's inline kv,
// its address never changes once allocated: rehash and kickout move the
// pointer sitting in the slot array, never the entry itself.
type entry[K comparable, V any] struct {
	key K
	val V
}

// NodeHandle owns a detached entry extracted from a NodeMap. It is not
// attached to any table until InsertNode splices it back into one (the same or
// a compatible NodeMap).
type NodeHandle[K comparable, V any] struct {
	node *entry[K, V]
}

// Empty reports whether the handle holds no node (the zero value, or after
// its node has already been inserted elsewhere).
func (h *NodeHandle[K, V]) Empty() bool { return h == nil || h.node == nil }

// Key returns the handle's key. Undefined if Empty().
func (h *NodeHandle[K, V]) Key() K { return h.node.key }

// Value returns the handle's value. Undefined if Empty().
func (h *NodeHandle[K, V]) Value() V { return h.node.val }

// NodeMap is the out-of-line coalesced-hashing associative container: each
// slot holds a pointer to a separately allocated node instead of the
// key/value pair inline. The selling point over Map is address stability:
// a pointer obtained from the table survives rehash (only the pointer
// moves, never the node), and entries can be detached and reattached via
// NodeHandle without reallocating.
type NodeMap[K comparable, V any] struct {
	idx    *index
	slots  []*entry[K, V]
	hasher Hasher[K]
}

// NewNodeMap constructs an empty NodeMap using the default hasher for K.
func NewNodeMap[K Hashable, V any]() *NodeMap[K, V] {
	return NewNodeMapWithHasher[K, V](defaultHasher[K]())
}

// NewNodeMapWithCapacity constructs an empty NodeMap pre-sized to hold at
// least hint entries without triggering a rehash.
func NewNodeMapWithCapacity[K Hashable, V any](hint int) *NodeMap[K, V] {
	m := NewNodeMap[K, V]()
	m.Reserve(hint)
	return m
}

// NewNodeMapWithHasher constructs an empty NodeMap using a caller-supplied
// hash function.
func NewNodeMapWithHasher[K comparable, V any](h Hasher[K]) *NodeMap[K, V] {
	idx := newIndex(minBuckets)
	return &NodeMap[K, V]{
		idx:    idx,
		slots:  make([]*entry[K, V], idx.bucketCount()+2),
		hasher: h,
	}
}

func (m *NodeMap[K, V]) Len() int            { return int(m.idx.filled) }
func (m *NodeMap[K, V]) IsEmpty() bool       { return m.idx.filled == 0 }
func (m *NodeMap[K, V]) BucketCount() int    { return int(m.idx.bucketCount()) }
func (m *NodeMap[K, V]) LoadFactor() float64 { return m.idx.loadFactor() }

// MaxLoadFactor returns the configured load-factor ceiling.
func (m *NodeMap[K, V]) MaxLoadFactor() float64 { return m.idx.maxLoadFactor() }

// SetMaxLoadFactor sets the load-factor ceiling, clamped to (0.2, 0.99).
func (m *NodeMap[K, V]) SetMaxLoadFactor(f float64) { m.idx.setMaxLoadFactor(f) }

// MaxSize returns the theoretical upper bound on entry count.
func (m *NodeMap[K, V]) MaxSize() int { return math.MaxInt32 }

// HashFunc returns the hash function in use.
func (m *NodeMap[K, V]) HashFunc() Hasher[K] { return m.hasher }

// KeyEqual returns the key-equality predicate: always Go's built-in ==,
// exposed for API symmetry with the injected-equality design.
func (m *NodeMap[K, V]) KeyEqual() func(a, b K) bool {
	return func(a, b K) bool { return a == b }
}

func (m *NodeMap[K, V]) lookup(k K) (uint32, bool) {
	return lookupSlot(m.idx, m.hasher(k), func(i uint32) bool { return m.slots[i].key == k })
}

// Get returns the value stored for k, if any.
func (m *NodeMap[K, V]) Get(k K) (V, bool) {
	if i, ok := m.lookup(k); ok {
		return m.slots[i].val, true
	}
	var zero V
	return zero, false
}

// GetPtr returns a pointer to the stored value for k. The pointer remains
// valid across rehash (only the slot's pointer moves, not the node) but is
// invalidated by Delete/Extract of that key.
func (m *NodeMap[K, V]) GetPtr(k K) (*V, bool) {
	if i, ok := m.lookup(k); ok {
		return &m.slots[i].val, true
	}
	return nil, false
}

// TryGet is Get under the design's try_get name.
func (m *NodeMap[K, V]) TryGet(k K) (V, bool) { return m.Get(k) }

// Contains reports whether k is present.
func (m *NodeMap[K, V]) Contains(k K) bool {
	_, ok := m.lookup(k)
	return ok
}

// Count returns 1 if k is present, 0 otherwise (keys are unique).
func (m *NodeMap[K, V]) Count(k K) int {
	if m.Contains(k) {
		return 1
	}
	return 0
}

// At returns the value stored for k, or ErrKeyNotFound.
func (m *NodeMap[K, V]) At(k K) (V, error) {
	if i, ok := m.lookup(k); ok {
		return m.slots[i].val, nil
	}
	var zero V
	return zero, ErrKeyNotFound
}

// EqualRange returns the (length 0 or 1) match for k. With unique keys this
// degenerates to Get; it exists for interface parity with the design.
func (m *NodeMap[K, V]) EqualRange(k K) (V, bool) { return m.Get(k) }

func (m *NodeMap[K, V]) findOrAllocateFor(k K) (uint32, bool) {
	hash := m.hasher(k)
	return findOrAllocate(m.idx, hash,
		func(i uint32) bool { return m.slots[i].key == k },
		func(dst, src uint32) { m.slots[dst] = m.slots[src] },
		func(i uint32) uint32 { return m.idx.home(m.hasher(m.slots[i].key)) },
	)
}

func (m *NodeMap[K, V]) growIfNeeded() {
	if m.idx.wouldExceedLoad() {
		m.rehashTo(m.idx.bucketCount() * 2)
	}
}

// Insert allocates a new node for k->v if k is absent. Returns true iff
// inserted.
func (m *NodeMap[K, V]) Insert(k K, v V) bool {
	m.growIfNeeded()
	slot, existed := m.findOrAllocateFor(k)
	if existed {
		return false
	}
	m.slots[slot] = &entry[K, V]{key: k, val: v}
	return true
}

// InsertOrAssign allocates a new node for k->v, or overwrites the value of
// an existing one in place (preserving its address). Returns true iff a new
// node was allocated.
func (m *NodeMap[K, V]) InsertOrAssign(k K, v V) bool {
	m.growIfNeeded()
	slot, existed := m.findOrAllocateFor(k)
	if existed {
		m.slots[slot].val = v
		return false
	}
	m.slots[slot] = &entry[K, V]{key: k, val: v}
	return true
}

// InsertNode splices a previously extracted handle back into the table.
// Returns false without modifying the handle if the key is already
// present (the handle still owns its node and may be reinserted elsewhere).
func (m *NodeMap[K, V]) InsertNode(h *NodeHandle[K, V]) bool {
	if h.Empty() {
		return false
	}
	m.growIfNeeded()
	slot, existed := m.findOrAllocateFor(h.node.key)
	if existed {
		return false
	}
	m.slots[slot] = h.node
	h.node = nil
	return true
}

// Delete removes k, if present, freeing its node. Returns the number of
// entries removed (0 or 1).
func (m *NodeMap[K, V]) Delete(k K) int {
	hash := m.hasher(k)
	removed := deleteSlot(m.idx, hash,
		func(i uint32) bool { return m.slots[i].key == k },
		func(uint32) {},
		func(dst, src uint32) { m.slots[dst] = m.slots[src] },
		func(i uint32) { m.slots[i] = nil },
	)
	if removed {
		return 1
	}
	return 0
}

// Extract detaches k's node from the table without freeing it, returning
// ownership through a NodeHandle the caller can reinsert (here or into a
// compatible NodeMap). Unlike Delete, the node's address and contents are
// preserved.
func (m *NodeMap[K, V]) Extract(k K) (*NodeHandle[K, V], bool) {
	var stolen *entry[K, V]
	hash := m.hasher(k)
	removed := deleteSlot(m.idx, hash,
		func(i uint32) bool { return m.slots[i].key == k },
		func(target uint32) { stolen = m.slots[target] },
		func(dst, src uint32) { m.slots[dst] = m.slots[src] },
		func(i uint32) { m.slots[i] = nil },
	)
	if !removed {
		return nil, false
	}
	return &NodeHandle[K, V]{node: stolen}, true
}

// Clear removes every entry but keeps the current bucket count.
func (m *NodeMap[K, V]) Clear() {
	n := m.idx.bucketCount()
	m.idx = newIndex(n)
	m.slots = make([]*entry[K, V], n+2)
}

// Swap exchanges the contents of m and other in constant time.
func (m *NodeMap[K, V]) Swap(other *NodeMap[K, V]) {
	m.idx, other.idx = other.idx, m.idx
	m.slots, other.slots = other.slots, m.slots
	m.hasher, other.hasher = other.hasher, m.hasher
}

// Merge moves every entry of other whose key is absent from m into m,
// via node splicing (no reallocation), leaving conflicting entries behind
// in other.
func (m *NodeMap[K, V]) Merge(other *NodeMap[K, V]) {
	if other == nil || other == m {
		return
	}
	var moved []K
	it := other.idx.iterator()
	for !it.done() {
		i := it.index()
		k := other.slots[i].key
		if _, existed := m.lookup(k); !existed {
			moved = append(moved, k)
		}
		it.next()
	}
	for _, k := range moved {
		if h, ok := other.Extract(k); ok {
			m.InsertNode(h)
		}
	}
}

func (m *NodeMap[K, V]) rehashTo(newBucketCount uint32) {
	newIdx := newIndex(newBucketCount)

	if m.idx.adaptive {
		newIdx.adaptive = true
		newIdx.hashSalt = m.idx.hashSalt
	} else if shouldEngageAdaptive(m.idx.filled, m.idx.mainCount) {
		newIdx.adaptive = true
		newIdx.hashSalt = deriveSalt(processSeed ^ uint64(m.idx.filled))
	}

	newSlots := make([]*entry[K, V], newIdx.bucketCount()+2)

	it := m.idx.iterator()
	for !it.done() {
		i := it.index()
		node := m.slots[i]
		hash := m.hasher(node.key)
		slot, _ := findOrAllocate(newIdx, hash,
			func(uint32) bool { return false },
			func(dst, src uint32) { newSlots[dst] = newSlots[src] },
			func(j uint32) uint32 { return newIdx.home(m.hasher(newSlots[j].key)) },
		)
		newSlots[slot] = node // pointer moves; node itself stays put.
		it.next()
	}

	m.idx = newIdx
	m.slots = newSlots
}

// Reserve grows the table, if needed, so it can hold n entries without a
// further rehash.
func (m *NodeMap[K, V]) Reserve(n int) {
	if n < 0 {
		n = 0
	}
	need := nextPow2(uint32(math.Ceil(float64(n) / m.idx.maxLoadFactor())))
	if need < minBuckets {
		need = minBuckets
	}
	if need <= m.idx.bucketCount() {
		return
	}
	m.rehashTo(need)
}

// Rehash resizes the table to at least n buckets (rounded up to a power of
// two), never below what's required to hold the current entries.
func (m *NodeMap[K, V]) Rehash(n int) {
	if n < 0 {
		n = 0
	}
	req := nextPow2(uint32(n))
	minReq := nextPow2(uint32(math.Ceil(float64(m.idx.filled) / m.idx.maxLoadFactor())))
	if req < minReq {
		req = minReq
	}
	if req < minBuckets {
		req = minBuckets
	}
	m.rehashTo(req)
}

// ShrinkToFit rehashes down to the smallest capacity that still satisfies
// the load-factor bound for the current size.
func (m *NodeMap[K, V]) ShrinkToFit() {
	target := nextPow2(uint32(math.Ceil(float64(m.idx.filled) / m.idx.maxLoadFactor())))
	if target < minBuckets {
		target = minBuckets
	}
	if target < m.idx.bucketCount() {
		m.rehashTo(target)
	}
}

// NodeIter is a forward-only cursor over a NodeMap's entries.
type NodeIter[K comparable, V any] struct {
	m  *NodeMap[K, V]
	it *bitmapIterator
}

// Iterator returns a cursor positioned at the first live entry, if any.
func (m *NodeMap[K, V]) Iterator() *NodeIter[K, V] {
	return &NodeIter[K, V]{m: m, it: m.idx.iterator()}
}

func (c *NodeIter[K, V]) Valid() bool  { return !c.it.done() }
func (c *NodeIter[K, V]) Key() K       { return c.m.slots[c.it.index()].key }
func (c *NodeIter[K, V]) Value() V     { return c.m.slots[c.it.index()].val }
func (c *NodeIter[K, V]) ValuePtr() *V { return &c.m.slots[c.it.index()].val }
func (c *NodeIter[K, V]) Next()        { c.it.next() }

// Range calls f for every entry in slot-index order, stopping early if f
// returns false.
func (m *NodeMap[K, V]) Range(f func(k K, v V) bool) {
	it := m.idx.iterator()
	for !it.done() {
		i := it.index()
		if !f(m.slots[i].key, m.slots[i].val) {
			return
		}
		it.next()
	}
}

// Stats reports the table's internal bookkeeping counters.
func (m *NodeMap[K, V]) Stats() Stats {
	return Stats{
		Size:            int(m.idx.filled),
		BucketCount:     int(m.idx.bucketCount()),
		MainCount:       int(m.idx.mainCount),
		LoadFactor:      m.idx.loadFactor(),
		AdaptiveHashing: m.idx.adaptive,
	}
}
