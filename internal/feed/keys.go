package feed

import (
	"encoding/binary"
)

// Keyspace helpers for the Pebble column store.
//
// Layout (byte-wise, lexicographically sortable):
// - fd/e/{owner_be8}{ts_be8}{post_be8}
//
// Big-endian encoding makes a forward scan ascend by (owner, created_at,
// post) and a backward scan descend, which is exactly the per-owner feed
// order. IDs and timestamps are non-negative, so the unsigned encoding
// preserves ordering.

var entryPrefix = []byte("fd/e/")

func appendBE8(dst []byte, v int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}

// keyEntry builds the entry key for (owner, createdAt, post).
func keyEntry(owner, tsMs, post int64) []byte {
	k := make([]byte, 0, len(entryPrefix)+24)
	k = append(k, entryPrefix...)
	k = appendBE8(k, owner)
	k = appendBE8(k, tsMs)
	k = appendBE8(k, post)
	return k
}

// keyOwnerLow is the smallest possible entry key for an owner.
func keyOwnerLow(owner int64) []byte {
	k := make([]byte, 0, len(entryPrefix)+8)
	k = append(k, entryPrefix...)
	k = appendBE8(k, owner)
	return k
}

// keyOwnerHigh is an exclusive upper bound covering every entry key for an
// owner.
func keyOwnerHigh(owner int64) []byte {
	return append(keyEntry(owner, maxInt64, maxInt64), 0x00)
}

const maxInt64 = int64(^uint64(0) >> 1)
