package feed

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
)

// Cached list elements are serialized independently, one codec per durable
// model family: the column family uses the same crc-framed binary encoding as
// the column store's values, the row family uses JSON snapshots.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

var errCorruptEntry = errors.New("feed: corrupt entry encoding")

// ColumnCodec encodes entries in the column family's binary framing:
// owner, post, author, created_at as big-endian 8-byte words followed by
// crc32c over the words.
type ColumnCodec struct{}

// Encode implements the cache codec capability.
func (ColumnCodec) Encode(e Entry) ([]byte, error) {
	out := make([]byte, 0, 36)
	out = appendBE8(out, e.OwnerID)
	out = appendBE8(out, e.PostID)
	out = appendBE8(out, e.AuthorID)
	out = appendBE8(out, e.CreatedAtMs)
	var crcb [4]byte
	binary.BigEndian.PutUint32(crcb[:], crc32.Checksum(out, castagnoli))
	return append(out, crcb[:]...), nil
}

// Decode implements the cache codec capability.
func (ColumnCodec) Decode(b []byte) (Entry, error) {
	if len(b) != 36 {
		return Entry{}, errCorruptEntry
	}
	body, sum := b[:32], binary.BigEndian.Uint32(b[32:])
	if crc32.Checksum(body, castagnoli) != sum {
		return Entry{}, errCorruptEntry
	}
	return Entry{
		OwnerID:     int64(binary.BigEndian.Uint64(body[0:8])),
		PostID:      int64(binary.BigEndian.Uint64(body[8:16])),
		AuthorID:    int64(binary.BigEndian.Uint64(body[16:24])),
		CreatedAtMs: int64(binary.BigEndian.Uint64(body[24:32])),
	}, nil
}

// RowCodec encodes entries as JSON, the row family's snapshot format.
type RowCodec struct{}

// Encode implements the cache codec capability.
func (RowCodec) Encode(e Entry) ([]byte, error) { return json.Marshal(e) }

// Decode implements the cache codec capability.
func (RowCodec) Decode(b []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, err
	}
	return e, nil
}
