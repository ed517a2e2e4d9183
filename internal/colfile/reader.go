package colfile

import (
	"context"
	"fmt"
)

// DecodeRows decodes every row of one block, fetching the column chunk bytes
// through the provider.
func DecodeRows(ctx context.Context, sp SliceProvider, f *Footer, blockIdx int) ([]Row, error) {
	if blockIdx < 0 || blockIdx >= len(f.Blocks) {
		return nil, fmt.Errorf("block %d out of range (%d blocks)", blockIdx, len(f.Blocks))
	}
	b := f.Blocks[blockIdx]
	if len(b.Chunks) != 1+len(f.Columns) {
		return nil, fmt.Errorf("block %d has %d chunks, want %d", blockIdx, len(b.Chunks), 1+len(f.Columns))
	}

	tsChunk, err := sp.Slice(ctx, b.Chunks[0].Offset, b.Chunks[0].Offset+b.Chunks[0].CompressedSize)
	if err != nil {
		return nil, fmt.Errorf("block %d timestamp chunk: %w", blockIdx, err)
	}
	timestamps, err := decodeTimestamps(tsChunk, b.Rows)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", blockIdx, err)
	}

	cols := make([][]float64, len(f.Columns))
	for ci := range f.Columns {
		chunk := b.Chunks[1+ci]
		raw, err := sp.Slice(ctx, chunk.Offset, chunk.Offset+chunk.CompressedSize)
		if err != nil {
			return nil, fmt.Errorf("block %d column %s chunk: %w", blockIdx, f.Columns[ci], err)
		}
		cols[ci], err = decodeFloats(raw, b.Rows)
		if err != nil {
			return nil, fmt.Errorf("block %d column %s: %w", blockIdx, f.Columns[ci], err)
		}
	}

	rows := make([]Row, b.Rows)
	for i := range rows {
		values := make([]float64, len(cols))
		for ci := range cols {
			values[ci] = cols[ci][i]
		}
		rows[i] = Row{Timestamp: timestamps[i], Values: values}
	}
	return rows, nil
}
