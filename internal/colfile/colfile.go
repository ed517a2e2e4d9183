// Package colfile reads and writes the append-only columnar container the
// remote cache serves bytes for. A file is a sequence of blocks (row groups),
// each holding one compressed chunk per column, followed by a footer that
// records every chunk's byte extent, and an 8-byte trailer:
//
//	┌─────────────┐
//	│   Block 0   │  one zstd chunk per column
//	├─────────────┤
//	│     ...     │
//	├─────────────┤
//	│   Block N   │  may still be growing
//	├─────────────┤
//	│   Footer    │  schema, row counts, chunk extents, timestamp stats
//	├─────────────┤
//	│   Trailer   │  footerLen uint32 LE + "ACF1"
//	└─────────────┘
//
// Appending rewrites only the last (possibly partial) block, the footer and
// the trailer; every earlier block is byte-stable for the life of the file.
package colfile

import "context"

const (
	Magic       = "ACF1"
	Version     = 1
	TrailerSize = 8

	zstdLevel = 3
)

// Row is one decoded reading: a timestamp plus one float per value column.
type Row struct {
	Timestamp int64
	Values    []float64
}

// DefaultColumns are the awair sensor value columns; the timestamp column is
// implicit and always leads each block.
func DefaultColumns() []string {
	return []string{"temp", "humid", "co2", "voc", "pm25", "pm10"}
}

// ColumnChunk is the byte extent of one compressed column chunk.
type ColumnChunk struct {
	Offset         int64
	CompressedSize int64
}

// BlockMeta describes one block. Start/End are derived from the min/max of
// its column chunk extents.
type BlockMeta struct {
	Index        int
	Start        int64
	End          int64
	Rows         int64
	MinTimestamp int64
	MaxTimestamp int64
	Chunks       []ColumnChunk // chunk 0 is the timestamp column
}

// Footer is the parsed trailing metadata of a file.
type Footer struct {
	Version   int
	Columns   []string // value column names, timestamp excluded
	TotalRows int64
	Blocks    []BlockMeta
}

// SliceProvider resolves absolute byte ranges of the file. Implementations
// may serve from caches or the network; parsing and decoding never care
// which.
type SliceProvider interface {
	Size() int64
	Slice(ctx context.Context, start, end int64) ([]byte, error)
}

// BytesProvider adapts an in-memory file to SliceProvider.
type BytesProvider []byte

func (b BytesProvider) Size() int64 { return int64(len(b)) }

func (b BytesProvider) Slice(_ context.Context, start, end int64) ([]byte, error) {
	if start < 0 || end > int64(len(b)) || start > end {
		return nil, errSliceRange(start, end, int64(len(b)))
	}
	return b[start:end], nil
}
