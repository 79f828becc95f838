package comap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_NodeMap_InsertGetDelete_Basic(t *testing.T) {
	t.Parallel()

	m := NewNodeMap[string, int]()
	assert.True(t, m.Insert("a", 1))
	assert.False(t, m.Insert("a", 2), "second insert of the same key must be a no-op")

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	assert.Equal(t, 1, m.Delete("a"))
	assert.Equal(t, 0, m.Delete("a"))
}

// Scenario 6: node-variant address stability. A pointer obtained from the
// table before a rehash must still point at the same value after it, and
// must no longer be reachable once the key is erased.
func Test_NodeMap_Scenario_AddressStableAcrossRehash(t *testing.T) {
	t.Parallel()

	m := NewNodeMap[int, string]()
	for i := 0; i < 100; i++ {
		m.Insert(i, "v")
	}

	ptr, ok := m.GetPtr(42)
	require.True(t, ok)
	*ptr = "marked"

	m.Rehash(m.BucketCount() * 4)

	ptrAfter, ok := m.GetPtr(42)
	require.True(t, ok)
	assert.Same(t, ptr, ptrAfter, "the node's address must survive rehash")
	assert.Equal(t, "marked", *ptrAfter)

	assert.Equal(t, 1, m.Delete(42))
	_, ok = m.GetPtr(42)
	assert.False(t, ok, "the node must be unreachable once its key is erased")
}

func Test_NodeMap_Extract_ReturnsOriginalNodeAndRemovesKey(t *testing.T) {
	t.Parallel()

	m := NewNodeMap[string, int]()
	m.Insert("a", 1)
	m.Insert("b", 2)

	h, ok := m.Extract("a")
	require.True(t, ok)
	assert.Equal(t, "a", h.Key())
	assert.Equal(t, 1, h.Value())

	_, ok = m.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())

	_, ok = m.Extract("missing")
	assert.False(t, ok)
}

func Test_NodeMap_Extract_PreservesNodeUnderForwardCompaction(t *testing.T) {
	t.Parallel()

	// Both keys collide on home slot 0; extracting the home holder must
	// hand back its own node (not the successor's, which gets compacted
	// into slot 0 in its place).
	m := NewNodeMapWithHasher[int, string](constantHasher(0))
	m.Insert(1, "first")
	m.Insert(2, "second")

	h, ok := m.Extract(1)
	require.True(t, ok)
	assert.Equal(t, "first", h.Value())

	v, ok := m.Get(2)
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func Test_NodeMap_InsertNode_SplicesHandleBack(t *testing.T) {
	t.Parallel()

	m := NewNodeMap[string, int]()
	m.Insert("a", 1)

	h, ok := m.Extract("a")
	require.True(t, ok)

	inserted := m.InsertNode(h)
	assert.True(t, inserted)
	assert.True(t, h.Empty(), "the handle must be emptied once spliced back in")

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func Test_NodeMap_InsertNode_RejectsOnKeyConflict(t *testing.T) {
	t.Parallel()

	m := NewNodeMap[string, int]()
	m.Insert("a", 1)
	h, ok := m.Extract("a")
	require.True(t, ok)

	m.Insert("a", 99)
	inserted := m.InsertNode(h)
	assert.False(t, inserted)
	assert.False(t, h.Empty(), "a rejected handle must retain ownership of its node")
}

func Test_NodeMap_Merge_MovesNodesWithoutReallocating(t *testing.T) {
	t.Parallel()

	a := NewNodeMap[string, int]()
	a.Insert("x", 1)
	b := NewNodeMap[string, int]()
	b.Insert("x", 2)
	b.Insert("y", 3)

	ptrY, _ := b.GetPtr("y")

	a.Merge(b)

	v, _ := a.Get("x")
	assert.Equal(t, 1, v)
	ptrYAfter, ok := a.GetPtr("y")
	require.True(t, ok)
	assert.Same(t, ptrY, ptrYAfter, "merge must move the node itself, not copy its value")

	_, ok = b.Get("y")
	assert.False(t, ok)
}

func Test_NodeMap_RoundTrip_IterationYieldsPermutationOfInsertedSet(t *testing.T) {
	t.Parallel()

	m := NewNodeMap[int, int]()
	want := make(map[int]int)
	for i := 0; i < 300; i++ {
		m.Insert(i, i*2)
		want[i] = i * 2
	}

	got := make(map[int]int)
	m.Range(func(k, v int) bool {
		got[k] = v
		return true
	})
	assert.Equal(t, want, got)
}

func BenchmarkNodeMap_Insert(b *testing.B) {
	m := NewNodeMap[int, int]()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Insert(i, i)
	}
}
