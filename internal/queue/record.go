package queue

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
)

// Task record framing: headerLen(4B BE) | header | payload | crc32c(header|payload).
// The header is small JSON metadata; the payload is opaque to the queue.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var errCorruptTask = errors.New("queue: corrupt task record")

type taskHeader struct {
	Kind         string `json:"kind"`
	Deliveries   int    `json:"deliveries"`
	EnqueuedAtMs int64  `json:"enqueuedAtMs"`
}

func encodeTask(h taskHeader, payload []byte) ([]byte, error) {
	header, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 4+len(header)+len(payload)+4)
	var hb [4]byte
	binary.BigEndian.PutUint32(hb[:], uint32(len(header)))
	out = append(out, hb[:]...)
	out = append(out, header...)
	out = append(out, payload...)
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	var cb [4]byte
	binary.BigEndian.PutUint32(cb[:], crc)
	return append(out, cb[:]...), nil
}

func decodeTask(b []byte) (taskHeader, []byte, error) {
	if len(b) < 8 {
		return taskHeader{}, nil, errCorruptTask
	}
	hlen := int(binary.BigEndian.Uint32(b[:4]))
	if 4+hlen+4 > len(b) {
		return taskHeader{}, nil, errCorruptTask
	}
	header := b[4 : 4+hlen]
	payload := b[4+hlen : len(b)-4]
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return taskHeader{}, nil, errCorruptTask
	}
	var h taskHeader
	if err := json.Unmarshal(header, &h); err != nil {
		return taskHeader{}, nil, errCorruptTask
	}
	return h, append([]byte(nil), payload...), nil
}
