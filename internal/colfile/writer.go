package colfile

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Writer accumulates rows and serializes them into a complete file. Rows are
// expected in timestamp order, matching how the upstream appender writes.
type Writer struct {
	columns   []string
	blockRows int
	rows      []Row
}

// NewWriter creates a writer cutting blocks of blockRows rows. The last
// block may be partial.
func NewWriter(columns []string, blockRows int) *Writer {
	if blockRows <= 0 {
		blockRows = 10000
	}
	return &Writer{columns: columns, blockRows: blockRows}
}

func (w *Writer) Append(rows ...Row) {
	w.rows = append(w.rows, rows...)
}

// Finish serializes all appended rows and returns the file bytes.
func (w *Writer) Finish() ([]byte, error) {
	return buildFile(nil, nil, w.rows, w.columns, w.blockRows)
}

// AppendRows grows an existing file with new rows, rewriting only the last
// partial block, the footer and the trailer. Earlier blocks keep their exact
// bytes, which is the append pattern the remote cache's immutability
// invariant relies on.
func AppendRows(file []byte, rows []Row, blockRows int) ([]byte, error) {
	f, err := ParseFooter(context.Background(), BytesProvider(file))
	if err != nil {
		return nil, fmt.Errorf("parse existing footer: %w", err)
	}
	if blockRows <= 0 {
		blockRows = 10000
	}

	kept := f.Blocks
	pending := rows
	cut := int64(len(file)) - trailerAndFooterLen(file)

	if n := len(f.Blocks); n > 0 && f.Blocks[n-1].Rows < int64(blockRows) {
		// Last block is partial: fold its rows into the pending set and
		// rewrite from its start.
		last := f.Blocks[n-1]
		lastRows, err := DecodeRows(context.Background(), BytesProvider(file), f, n-1)
		if err != nil {
			return nil, fmt.Errorf("decode partial last block: %w", err)
		}
		pending = append(lastRows, rows...)
		kept = f.Blocks[:n-1]
		cut = last.Start
	}

	return buildFile(file[:cut:cut], kept, pending, f.Columns, blockRows)
}

func trailerAndFooterLen(file []byte) int64 {
	// Caller has already parsed the footer, so the trailer is well formed.
	footerLen := binary.LittleEndian.Uint32(file[len(file)-TrailerSize:])
	return TrailerSize + int64(footerLen)
}

func buildFile(base []byte, kept []BlockMeta, rows []Row, columns []string, blockRows int) ([]byte, error) {
	out := base
	blocks := make([]BlockMeta, 0, len(kept)+len(rows)/blockRows+1)
	blocks = append(blocks, kept...)

	for start := 0; start < len(rows); start += blockRows {
		end := start + blockRows
		if end > len(rows) {
			end = len(rows)
		}

		var err error
		var meta BlockMeta
		out, meta, err = appendBlock(out, rows[start:end], columns)
		if err != nil {
			return nil, err
		}
		meta.Index = len(blocks)
		blocks = append(blocks, meta)
	}

	return appendFooter(out, columns, blocks), nil
}

func appendBlock(dst []byte, rows []Row, columns []string) ([]byte, BlockMeta, error) {
	timestamps := make([]int64, len(rows))
	minTs, maxTs := int64(0), int64(0)
	for i, r := range rows {
		timestamps[i] = r.Timestamp
		if i == 0 || r.Timestamp < minTs {
			minTs = r.Timestamp
		}
		if i == 0 || r.Timestamp > maxTs {
			maxTs = r.Timestamp
		}
	}

	meta := BlockMeta{
		Rows:         int64(len(rows)),
		MinTimestamp: minTs,
		MaxTimestamp: maxTs,
		Chunks:       make([]ColumnChunk, 1+len(columns)),
	}
	meta.Start = int64(len(dst))

	tsChunk, err := encodeTimestamps(timestamps)
	if err != nil {
		return nil, meta, fmt.Errorf("encode timestamps: %w", err)
	}
	meta.Chunks[0] = ColumnChunk{Offset: int64(len(dst)), CompressedSize: int64(len(tsChunk))}
	dst = append(dst, tsChunk...)

	for ci, col := range columns {
		vals := make([]float64, len(rows))
		for i, r := range rows {
			if ci >= len(r.Values) {
				return nil, meta, fmt.Errorf("row %d has %d values, want %d", i, len(r.Values), len(columns))
			}
			vals[i] = r.Values[ci]
		}

		chunk, err := encodeFloats(vals)
		if err != nil {
			return nil, meta, fmt.Errorf("encode column %s: %w", col, err)
		}
		meta.Chunks[1+ci] = ColumnChunk{Offset: int64(len(dst)), CompressedSize: int64(len(chunk))}
		dst = append(dst, chunk...)
	}

	meta.End = int64(len(dst))
	return dst, meta, nil
}
