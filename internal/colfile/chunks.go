package colfile

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/runsascoded/awair-sub000/internal/compression"
	"github.com/runsascoded/awair-sub000/internal/encoding"
)

func errSliceRange(start, end, size int64) error {
	return fmt.Errorf("slice [%d, %d) out of range for size %d", start, end, size)
}

// encodeTimestamps delta-encodes timestamps as varints and compresses them.
func encodeTimestamps(ts []int64) ([]byte, error) {
	var buf bytes.Buffer
	prev := int64(0)
	for _, t := range ts {
		encoding.WriteVarint(&buf, t-prev)
		prev = t
	}
	return compression.ZstdCompressLevel(nil, buf.Bytes(), zstdLevel)
}

func decodeTimestamps(chunk []byte, n int64) ([]int64, error) {
	plain, err := compression.ZstdDecompress(nil, chunk)
	if err != nil {
		return nil, fmt.Errorf("decompress timestamp chunk: %w", err)
	}

	r := bytes.NewReader(plain)
	ts := make([]int64, n)
	prev := int64(0)
	for i := int64(0); i < n; i++ {
		delta, err := binary.ReadVarint(r)
		if err != nil {
			return nil, fmt.Errorf("timestamp %d of %d: %w", i, n, err)
		}
		prev += delta
		ts[i] = prev
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("timestamp chunk has %d trailing bytes", r.Len())
	}
	return ts, nil
}

// encodeFloats stores values as little-endian float64 and compresses them.
func encodeFloats(vals []float64) ([]byte, error) {
	plain := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(plain[i*8:], math.Float64bits(v))
	}
	return compression.ZstdCompressLevel(nil, plain, zstdLevel)
}

func decodeFloats(chunk []byte, n int64) ([]float64, error) {
	plain, err := compression.ZstdDecompress(nil, chunk)
	if err != nil {
		return nil, fmt.Errorf("decompress value chunk: %w", err)
	}
	if int64(len(plain)) != 8*n {
		return nil, fmt.Errorf("value chunk holds %d bytes, want %d", len(plain), 8*n)
	}

	vals := make([]float64, n)
	for i := int64(0); i < n; i++ {
		vals[i] = math.Float64frombits(binary.LittleEndian.Uint64(plain[i*8:]))
	}
	return vals, nil
}
