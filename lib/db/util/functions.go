package util

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// GenerateSeed returns a random seed for the shard hash, falling back to the clock
func GenerateSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return uint64(time.Now().UnixNano())
	}
	return binary.LittleEndian.Uint64(b[:])
}

// --------------------------------------------------------------------------
// Hash Functions (seeded FNV-1a)
// --------------------------------------------------------------------------

// UintKey is a 64 bit hash value
type UintKey uint64

const (
	fnvOffset64 = 14695981039346656037
	fnvPrime64  = 1099511628211
)

func fnvAdd(hash uint64, s string) uint64 {
	for i := 0; i < len(s); i++ {
		hash ^= uint64(s[i])
		hash *= fnvPrime64
	}
	return hash
}

// HashString hashes s with the given seed
func HashString(s string, seed uint64) UintKey {
	return UintKey(fnvAdd(uint64(fnvOffset64)^seed, s))
}

// HashRecordKey hashes a (collection, key) pair without joining the strings.
// A zero byte is mixed in between both parts, so ("ab","c") and ("a","bc") differ.
// The result equals HashString(collection+"\x00"+key, seed).
func HashRecordKey(collection, key string, seed uint64) UintKey {
	hash := fnvAdd(uint64(fnvOffset64)^seed, collection)
	hash *= fnvPrime64 // xor with the zero byte is a no-op
	return UintKey(fnvAdd(hash, key))
}

// NodeID maps a human readable replica name ("node-1") to the numeric id dragonboat expects
func NodeID(name string) uint64 {
	return uint64(HashString(name, 0))
}
