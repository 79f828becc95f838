package comap

import (
	"hash/maphash"
	"math"
)

// processSeed gives this process a random starting point for
// adaptive-hashing salts, shared by every table (a table's salt mixes in
// its filled count at the time adaptive hashing engages), the same role time.Now()-derived entropy
// plays in the teacher's clock calibration goroutine — except here it's
// read once, not recalibrated, since salts are derived on demand.
var processSeed = maphash.Bytes(maphash.MakeSeed(), []byte("comap"))

// kv is one inline slot's payload: the key and value stored by value, as
// the design's inline variant requires.
type kv[K comparable, V any] struct {
	key K
	val V
}

// Map is the inline coalesced-hashing associative container: open
// addressing with a per-bucket singly-linked chain embedded in the slot
// array itself, plus a bitmap index for empty-slot discovery and
// iteration. Keys are unique; see NodeMap for the out-of-line variant with
// stable references across rehash.
type Map[K comparable, V any] struct {
	idx    *index
	slots  []kv[K, V]
	hasher Hasher[K]
}

// New constructs an empty Map using the default hasher for K.
func New[K Hashable, V any]() *Map[K, V] {
	return NewWithHasher[K, V](defaultHasher[K]())
}

// NewWithCapacity constructs an empty Map pre-sized to hold at least hint
// entries without triggering a rehash. The bucket count is hint divided by
// the max load factor, rounded up to a power of two (at least 64).
func NewWithCapacity[K Hashable, V any](hint int) *Map[K, V] {
	m := New[K, V]()
	m.Reserve(hint)
	return m
}

// NewWithHasher constructs an empty Map using a caller-supplied hash
// function, for key types with no default (or an adversarial default).
func NewWithHasher[K comparable, V any](h Hasher[K]) *Map[K, V] {
	idx := newIndex(minBuckets)
	return &Map[K, V]{
		idx:    idx,
		slots:  make([]kv[K, V], idx.bucketCount()+2),
		hasher: h,
	}
}

// NewFromMap constructs a Map from an existing built-in map, the nearest Go
// equivalent of a range constructor.
func NewFromMap[K Hashable, V any](src map[K]V) *Map[K, V] {
	m := NewWithCapacity[K, V](len(src))
	for k, v := range src {
		m.Insert(k, v)
	}
	return m
}

// Len returns the number of stored entries.
func (m *Map[K, V]) Len() int { return int(m.idx.filled) }

// IsEmpty reports whether the map has no entries.
func (m *Map[K, V]) IsEmpty() bool { return m.idx.filled == 0 }

// BucketCount returns N, the current slot-array capacity.
func (m *Map[K, V]) BucketCount() int { return int(m.idx.bucketCount()) }

// LoadFactor returns filled/N.
func (m *Map[K, V]) LoadFactor() float64 { return m.idx.loadFactor() }

// MaxLoadFactor returns the configured load-factor ceiling.
func (m *Map[K, V]) MaxLoadFactor() float64 { return m.idx.maxLoadFactor() }

// SetMaxLoadFactor sets the load-factor ceiling, clamped to (0.2, 0.99).
func (m *Map[K, V]) SetMaxLoadFactor(f float64) { m.idx.setMaxLoadFactor(f) }

// MaxSize returns the theoretical upper bound on entry count.
func (m *Map[K, V]) MaxSize() int { return math.MaxInt32 }

// HashFunc returns the hash function in use.
func (m *Map[K, V]) HashFunc() Hasher[K] { return m.hasher }

// KeyEqual returns the key-equality predicate: always Go's built-in ==,
// exposed for API symmetry with the injected-equality design.
func (m *Map[K, V]) KeyEqual() func(a, b K) bool {
	return func(a, b K) bool { return a == b }
}

func (m *Map[K, V]) lookup(k K) (uint32, bool) {
	return lookupSlot(m.idx, m.hasher(k), func(i uint32) bool { return m.slots[i].key == k })
}

// Get returns the value stored for k, if any.
func (m *Map[K, V]) Get(k K) (V, bool) {
	if i, ok := m.lookup(k); ok {
		return m.slots[i].val, true
	}
	var zero V
	return zero, false
}

// TryGet is Get under the design's try_get name.
func (m *Map[K, V]) TryGet(k K) (V, bool) { return m.Get(k) }

// Contains reports whether k is present.
func (m *Map[K, V]) Contains(k K) bool {
	_, ok := m.lookup(k)
	return ok
}

// Count returns 1 if k is present, 0 otherwise (keys are unique).
func (m *Map[K, V]) Count(k K) int {
	if m.Contains(k) {
		return 1
	}
	return 0
}

// At returns the value stored for k, or ErrKeyNotFound.
func (m *Map[K, V]) At(k K) (V, error) {
	if i, ok := m.lookup(k); ok {
		return m.slots[i].val, nil
	}
	var zero V
	return zero, ErrKeyNotFound
}

// EqualRange returns the (length 0 or 1) match for k. With unique keys this
// degenerates to Get; it exists for interface parity with the design.
func (m *Map[K, V]) EqualRange(k K) (V, bool) { return m.Get(k) }

func (m *Map[K, V]) findOrAllocateFor(k K) (uint32, bool) {
	hash := m.hasher(k)
	return findOrAllocate(m.idx, hash,
		func(i uint32) bool { return m.slots[i].key == k },
		func(dst, src uint32) { m.slots[dst] = m.slots[src] },
		func(i uint32) uint32 { return m.idx.home(m.hasher(m.slots[i].key)) },
	)
}

func (m *Map[K, V]) growIfNeeded() {
	if m.idx.wouldExceedLoad() {
		m.rehashTo(m.idx.bucketCount() * 2)
	}
}

// Insert adds k->v if k is absent. Returns true iff it was inserted; an
// existing entry is left untouched.
func (m *Map[K, V]) Insert(k K, v V) bool {
	m.growIfNeeded()
	slot, existed := m.findOrAllocateFor(k)
	if existed {
		return false
	}
	m.slots[slot] = kv[K, V]{key: k, val: v}
	return true
}

// InsertOrAssign adds k->v, overwriting any existing value. Returns true
// iff a new entry was inserted (false means an existing value was assigned).
func (m *Map[K, V]) InsertOrAssign(k K, v V) bool {
	m.growIfNeeded()
	slot, existed := m.findOrAllocateFor(k)
	if existed {
		m.slots[slot].val = v
		return false
	}
	m.slots[slot] = kv[K, V]{key: k, val: v}
	return true
}

// GetOrInsert returns the value for k, inserting the result of makeValue()
// first if k is absent. makeValue is not called when k is already present,
// matching try_emplace's "does not construct the value if the key is
// present" contract.
func (m *Map[K, V]) GetOrInsert(k K, makeValue func() V) (V, bool) {
	m.growIfNeeded()
	slot, existed := m.findOrAllocateFor(k)
	if existed {
		return m.slots[slot].val, false
	}
	v := makeValue()
	m.slots[slot] = kv[K, V]{key: k, val: v}
	return v, true
}

// InsertUnique inserts k->v on the caller's assertion that k is absent. The
// equality check is skipped entirely, so inserting a key that's already
// present stores a second entry for it, breaking the unique-key invariant —
// a documented precondition violation, not a recoverable error.
func (m *Map[K, V]) InsertUnique(k K, v V) {
	m.growIfNeeded()
	hash := m.hasher(k)
	slot, _ := findOrAllocate(m.idx, hash,
		func(uint32) bool { return false },
		func(dst, src uint32) { m.slots[dst] = m.slots[src] },
		func(i uint32) uint32 { return m.idx.home(m.hasher(m.slots[i].key)) },
	)
	m.slots[slot] = kv[K, V]{key: k, val: v}
}

func (m *Map[K, V]) clearSlot(i uint32) {
	var zero kv[K, V]
	m.slots[i] = zero
}

// Delete removes k, if present. Returns the number of entries removed (0 or 1).
func (m *Map[K, V]) Delete(k K) int {
	hash := m.hasher(k)
	removed := deleteSlot(m.idx, hash,
		func(i uint32) bool { return m.slots[i].key == k },
		func(uint32) {},
		func(dst, src uint32) { m.slots[dst] = m.slots[src] },
		m.clearSlot,
	)
	if removed {
		return 1
	}
	return 0
}

// DeleteIf removes every entry for which pred returns true. Returns the
// number of entries removed.
func (m *Map[K, V]) DeleteIf(pred func(K, V) bool) int {
	var victims []K
	it := m.idx.iterator()
	for !it.done() {
		i := it.index()
		if pred(m.slots[i].key, m.slots[i].val) {
			victims = append(victims, m.slots[i].key)
		}
		it.next()
	}
	for _, k := range victims {
		m.Delete(k)
	}
	return len(victims)
}

// Clear removes every entry but keeps the current bucket count.
func (m *Map[K, V]) Clear() {
	n := m.idx.bucketCount()
	m.idx = newIndex(n)
	m.slots = make([]kv[K, V], n+2)
}

// Swap exchanges the contents of m and other in constant time.
func (m *Map[K, V]) Swap(other *Map[K, V]) {
	m.idx, other.idx = other.idx, m.idx
	m.slots, other.slots = other.slots, m.slots
	m.hasher, other.hasher = other.hasher, m.hasher
}

// Merge moves every entry of other whose key is absent from m into m,
// leaving conflicting entries behind in other (the same asymmetric
// semantics as std::unordered_map::merge).
func (m *Map[K, V]) Merge(other *Map[K, V]) {
	if other == nil || other == m {
		return
	}
	var moved []K
	it := other.idx.iterator()
	for !it.done() {
		i := it.index()
		k, v := other.slots[i].key, other.slots[i].val
		if _, existed := m.lookup(k); !existed {
			m.Insert(k, v)
			moved = append(moved, k)
		}
		it.next()
	}
	for _, k := range moved {
		other.Delete(k)
	}
}

func (m *Map[K, V]) rehashTo(newBucketCount uint32) {
	newIdx := newIndex(newBucketCount)

	if m.idx.adaptive {
		newIdx.adaptive = true
		newIdx.hashSalt = m.idx.hashSalt
	} else if shouldEngageAdaptive(m.idx.filled, m.idx.mainCount) {
		newIdx.adaptive = true
		newIdx.hashSalt = deriveSalt(processSeed ^ uint64(m.idx.filled))
	}

	newSlots := make([]kv[K, V], newIdx.bucketCount()+2)

	it := m.idx.iterator()
	for !it.done() {
		i := it.index()
		k, v := m.slots[i].key, m.slots[i].val
		hash := m.hasher(k)
		slot, _ := findOrAllocate(newIdx, hash,
			func(uint32) bool { return false },
			func(dst, src uint32) { newSlots[dst] = newSlots[src] },
			func(j uint32) uint32 { return newIdx.home(m.hasher(newSlots[j].key)) },
		)
		newSlots[slot] = kv[K, V]{key: k, val: v}
		it.next()
	}

	m.idx = newIdx
	m.slots = newSlots
}

// Reserve grows the table, if needed, so it can hold n entries without a
// further rehash.
func (m *Map[K, V]) Reserve(n int) {
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
// two), never below what's required to hold the current entries at the
// configured max load factor.
func (m *Map[K, V]) Rehash(n int) {
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
func (m *Map[K, V]) ShrinkToFit() {
	target := nextPow2(uint32(math.Ceil(float64(m.idx.filled) / m.idx.maxLoadFactor())))
	if target < minBuckets {
		target = minBuckets
	}
	if target < m.idx.bucketCount() {
		m.rehashTo(target)
	}
}

// MapIter is a forward-only cursor over a Map's entries, in slot-index
// order. Any mutation of the map invalidates every outstanding iterator.
type MapIter[K comparable, V any] struct {
	m  *Map[K, V]
	it *bitmapIterator
}

// Iterator returns a cursor positioned at the first live entry, if any.
func (m *Map[K, V]) Iterator() *MapIter[K, V] {
	return &MapIter[K, V]{m: m, it: m.idx.iterator()}
}

// Valid reports whether the cursor is positioned on a live entry.
func (c *MapIter[K, V]) Valid() bool { return !c.it.done() }

// Key returns the current entry's key. Undefined if !Valid().
func (c *MapIter[K, V]) Key() K { return c.m.slots[c.it.index()].key }

// Value returns the current entry's value. Undefined if !Valid().
func (c *MapIter[K, V]) Value() V { return c.m.slots[c.it.index()].val }

// Next advances the cursor to the next live entry.
func (c *MapIter[K, V]) Next() { c.it.next() }

// Range calls f for every entry in slot-index order, stopping early if f
// returns false.
func (m *Map[K, V]) Range(f func(k K, v V) bool) {
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
func (m *Map[K, V]) Stats() Stats {
	return Stats{
		Size:            int(m.idx.filled),
		BucketCount:     int(m.idx.bucketCount()),
		MainCount:       int(m.idx.mainCount),
		LoadFactor:      m.idx.loadFactor(),
		AdaptiveHashing: m.idx.adaptive,
	}
}
