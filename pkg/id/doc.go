// Package id generates 128-bit, lexicographically sortable identifiers.
//
// An ID is 16 bytes big-endian: 8 bytes of millisecond timestamp followed by
// 8 bytes of per-process sequence. IDs sort by creation time, which makes them
// usable directly as ordered storage keys (the task queue relies on this for
// FIFO dequeue).
package id
