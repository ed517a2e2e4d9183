package encoding

import (
	"bytes"
	"encoding/binary"
)

// WriteVarint appends the zigzag varint encoding of v. Timestamp deltas and
// block min/max timestamps are stored this way; the read side decodes with
// binary.ReadVarint so truncation surfaces as an error there.
func WriteVarint(buf *bytes.Buffer, v int64) {
	var tmp [binary.MaxVarintLen64]byte
	buf.Write(tmp[:binary.PutVarint(tmp[:], v)])
}

// WriteUvarint appends the unsigned varint encoding of v, used for all
// footer counts, lengths, and byte offsets.
func WriteUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	buf.Write(tmp[:binary.PutUvarint(tmp[:], v)])
}
