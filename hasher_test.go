package comap

import (
	"testing"

	"github.com/cespare/xxhash/v2"
	"github.com/stretchr/testify/assert"
)

func Test_DefaultHasher_String_UsesXXHash(t *testing.T) {
	t.Parallel()

	h := defaultHasher[string]()
	a := h("hello")
	b := h("hello")
	c := h("world")
	assert.Equal(t, a, b, "hashing must be deterministic")
	assert.NotEqual(t, a, c)
	assert.Equal(t, xxhash.Sum64String("hello"), a)
}

func Test_DefaultHasher_Int_Avalanches(t *testing.T) {
	t.Parallel()

	h := defaultHasher[int]()
	a := h(1)
	b := h(2)
	assert.NotEqual(t, a, b)
	// A two-bit difference in input (1 vs 2) should flip roughly half the output
	// bits, not just shift the low bits by one.
	diff := a ^ b
	popcount := 0
	for diff != 0 {
		popcount += int(diff & 1)
		diff >>= 1
	}
	assert.Greater(t, popcount, 8, "mixer should avalanche, not merely shift")
}

func Test_SaltedHash_ZeroSaltIsNoop(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint64(12345), saltedHash(12345, 0))
}

func Test_SaltedHash_NonZeroSaltChangesOutput(t *testing.T) {
	t.Parallel()

	assert.NotEqual(t, saltedHash(12345, 0), saltedHash(12345, 999))
}

func Test_DeriveSalt_NeverZero(t *testing.T) {
	t.Parallel()

	for _, seed := range []uint64{0, 1, fibMix, ^uint64(0)} {
		assert.NotZero(t, deriveSalt(seed))
	}
}

func Test_ShouldEngageAdaptive_Threshold(t *testing.T) {
	t.Parallel()

	assert.False(t, shouldEngageAdaptive(0, 0))
	assert.False(t, shouldEngageAdaptive(10, 6))
	assert.True(t, shouldEngageAdaptive(10, 4))
}

// Exercises the rehash-time adaptive-hashing engagement end to end: a
// pathological constant hash collapses main_count/filled well below the
// threshold, so a rehash must switch on the salted mixer.
func Test_Map_AdaptiveHashing_EngagesUnderPathologicalCollisions(t *testing.T) {
	t.Parallel()

	m := NewWithHasher[int, int](constantHasher(0))
	for i := 0; i < 40; i++ {
		m.Insert(i, i)
	}
	assert.False(t, m.Stats().AdaptiveHashing, "must not engage before any rehash observes the ratio")

	m.Rehash(m.BucketCount() * 2)
	assert.True(t, m.Stats().AdaptiveHashing, "a rehash seeing mostly chained slots should engage adaptive hashing")
}
