package comap

import (
	"reflect"

	"github.com/cespare/xxhash/v2"
)

// Hasher computes a 64-bit hash for a key. It is the injected collaborator
// the design treats as external: callers with adversarial or
// non-uniformly-distributed keys should supply their own.
type Hasher[K comparable] func(key K) uint64

// Hashable restricts the key types that get a default Hasher for free.
// Anything else must be constructed with NewWithHasher / NewNodeMapWithHasher.
type Hashable interface {
	~string | ~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// fibMix is the 64-bit golden-ratio multiplicative avalanche used both as
// the default integer hash and as the adaptive-hashing salt mixer.
const fibMix uint64 = 0x9E3779B97F4A7C15

func mix64(x uint64) uint64 {
	x ^= x >> 33
	x *= fibMix
	x ^= x >> 29
	x *= 0xBF58476D1CE4E5B9
	x ^= x >> 32
	return x
}

// defaultHasher builds the hash dispatched on the key's underlying kind,
// the same role ecache2's hashKey type switch played, upgraded to a real
// avalanche mixer for integers and xxhash for strings instead of a
// hand-rolled BKRD walk.
func defaultHasher[K Hashable]() Hasher[K] {
	var zero K
	switch any(zero).(type) {
	case string:
		return func(key K) uint64 {
			s := any(key).(string)
			return xxhash.Sum64String(s)
		}
	default:
		return func(key K) uint64 {
			return mix64(toUint64(key))
		}
	}
}

// toUint64 reinterprets an integer-kinded Hashable value as a uint64 for
// mixing. Plain string keys never reach here (handled above); named
// string types are reduced to their xxhash.
func toUint64[K Hashable](key K) uint64 {
	switch v := any(key).(type) {
	case int:
		return uint64(v)
	case int8:
		return uint64(v)
	case int16:
		return uint64(v)
	case int32:
		return uint64(v)
	case int64:
		return uint64(v)
	case uint:
		return uint64(v)
	case uint8:
		return uint64(v)
	case uint16:
		return uint64(v)
	case uint32:
		return uint64(v)
	case uint64:
		return v
	case uintptr:
		return uint64(v)
	default:
		// Named types (e.g. type ID int) match none of the cases above;
		// fall back to their underlying kind.
		rv := reflect.ValueOf(key)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return uint64(rv.Int())
		case reflect.String:
			return xxhash.Sum64String(rv.String())
		default:
			return rv.Uint()
		}
	}
}

// saltedHash composes the base hash with the adaptive salt once adaptive
// hashing has been engaged for a table. With salt == 0 (the common case)
// this is a no-op XOR; once engaged it folds in a second avalanche pass so
// an adversarial base hash no longer collapses every key onto a handful of
// home positions.
func saltedHash(h uint64, salt uint64) uint64 {
	if salt == 0 {
		return h
	}
	return mix64(h ^ salt)
}

// deriveSalt computes a new non-zero salt from the table's current state,
// used the first time adaptive hashing engages. It must never produce 0,
// since 0 is reserved to mean "adaptive hashing disabled".
func deriveSalt(seed uint64) uint64 {
	s := mix64(seed ^ fibMix)
	if s == 0 {
		s = fibMix
	}
	return s
}

// adaptiveThreshold is the mainCount/filled ratio below which a rehash
// engages adaptive hashing: many chains relative to home holders suggests
// the base hash is adversarial or identity-like on this key distribution.
const adaptiveThreshold = 0.5

func shouldEngageAdaptive(filled, mainCount uint32) bool {
	if filled == 0 {
		return false
	}
	return float64(mainCount)/float64(filled) < adaptiveThreshold
}
