package queue

import (
	"encoding/binary"

	"github.com/rzbill/feedline/pkg/id"
)

// Key layout under wq/{name}/:
//
//	task/{id}                task record (framed payload + metadata)
//	avail/{id}               availability index; ids are time-sortable, so a
//	                         forward scan dequeues oldest first
//	lease/{expires_be8}{id}  active leases ordered by expiry
//	retry/{ready_be8}{id}    scheduled retries ordered by ready time
//	dlq/{id}                 dead-lettered tasks
const (
	segTask  = "task/"
	segAvail = "avail/"
	segLease = "lease/"
	segRetry = "retry/"
	segDLQ   = "dlq/"
)

func queuePrefix(name, seg string) []byte {
	k := make([]byte, 0, 3+len(name)+1+len(seg))
	k = append(k, "wq/"...)
	k = append(k, name...)
	k = append(k, '/')
	k = append(k, seg...)
	return k
}

func keyTask(name string, tid id.ID) []byte {
	return append(queuePrefix(name, segTask), tid[:]...)
}

func keyAvail(name string, tid id.ID) []byte {
	return append(queuePrefix(name, segAvail), tid[:]...)
}

func keyDLQ(name string, tid id.ID) []byte {
	return append(queuePrefix(name, segDLQ), tid[:]...)
}

// keyTimed builds a {ms_be8}{id} key under the given segment, used for both
// the lease and retry indexes.
func keyTimed(name, seg string, ms int64, tid id.ID) []byte {
	k := queuePrefix(name, seg)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(ms))
	k = append(k, b[:]...)
	return append(k, tid[:]...)
}

// upperBound is an exclusive high key covering everything under prefix.
func upperBound(prefix []byte) []byte {
	return append(prefix[:len(prefix):len(prefix)], 0xFF)
}

// splitTimed parses a {ms_be8}{id} suffix.
func splitTimed(key, prefix []byte) (ms int64, tid id.ID, ok bool) {
	rest := key[len(prefix):]
	if len(rest) != 8+16 {
		return 0, id.Zero, false
	}
	ms = int64(binary.BigEndian.Uint64(rest[:8]))
	copy(tid[:], rest[8:])
	return ms, tid, true
}
