package colfile

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/runsascoded/awair-sub000/internal/encoding"
)

// ParseFooter reads and parses the trailing footer through the given
// provider. It issues no reads beyond the trailer and the footer bytes.
func ParseFooter(ctx context.Context, sp SliceProvider) (*Footer, error) {
	size := sp.Size()
	if size < TrailerSize {
		return nil, fmt.Errorf("file too small for trailer: %d bytes", size)
	}

	trailer, err := sp.Slice(ctx, size-TrailerSize, size)
	if err != nil {
		return nil, fmt.Errorf("read trailer: %w", err)
	}
	if string(trailer[4:8]) != Magic {
		return nil, fmt.Errorf("bad magic %q, want %q", trailer[4:8], Magic)
	}

	footerLen := int64(binary.LittleEndian.Uint32(trailer[:4]))
	footerStart := size - TrailerSize - footerLen
	if footerStart < 0 {
		return nil, fmt.Errorf("footer length %d exceeds file size %d", footerLen, size)
	}

	raw, err := sp.Slice(ctx, footerStart, size-TrailerSize)
	if err != nil {
		return nil, fmt.Errorf("read footer: %w", err)
	}

	return parseFooterBytes(raw)
}

func parseFooterBytes(raw []byte) (*Footer, error) {
	r := bytes.NewReader(raw)

	version, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("footer version: %w", err)
	}
	if version != Version {
		return nil, fmt.Errorf("unsupported footer version %d", version)
	}

	numCols, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("footer column count: %w", err)
	}
	columns := make([]string, numCols)
	for i := range columns {
		nameLen, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("column %d name length: %w", i, err)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, fmt.Errorf("column %d name: %w", i, err)
		}
		columns[i] = string(name)
	}

	totalRows, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("footer total rows: %w", err)
	}
	numBlocks, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, fmt.Errorf("footer block count: %w", err)
	}

	chunksPerBlock := 1 + len(columns)
	blocks := make([]BlockMeta, numBlocks)
	rowSum := int64(0)

	for i := range blocks {
		rows, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, fmt.Errorf("block %d row count: %w", i, err)
		}
		minTs, err := binary.ReadVarint(r)
		if err != nil {
			return nil, fmt.Errorf("block %d min timestamp: %w", i, err)
		}
		maxTs, err := binary.ReadVarint(r)
		if err != nil {
			return nil, fmt.Errorf("block %d max timestamp: %w", i, err)
		}

		chunks := make([]ColumnChunk, chunksPerBlock)
		start, end := int64(-1), int64(-1)
		for c := range chunks {
			off, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("block %d chunk %d offset: %w", i, c, err)
			}
			sz, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, fmt.Errorf("block %d chunk %d size: %w", i, c, err)
			}
			chunks[c] = ColumnChunk{Offset: int64(off), CompressedSize: int64(sz)}

			if start < 0 || int64(off) < start {
				start = int64(off)
			}
			if chunkEnd := int64(off) + int64(sz); chunkEnd > end {
				end = chunkEnd
			}
		}

		blocks[i] = BlockMeta{
			Index:        i,
			Start:        start,
			End:          end,
			Rows:         int64(rows),
			MinTimestamp: minTs,
			MaxTimestamp: maxTs,
			Chunks:       chunks,
		}
		rowSum += int64(rows)
	}

	if rowSum != int64(totalRows) {
		return nil, fmt.Errorf("block row counts sum to %d, footer says %d", rowSum, totalRows)
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("footer has %d trailing bytes", r.Len())
	}

	return &Footer{
		Version:   int(version),
		Columns:   columns,
		TotalRows: int64(totalRows),
		Blocks:    blocks,
	}, nil
}

func appendFooter(dst []byte, columns []string, blocks []BlockMeta) []byte {
	var buf bytes.Buffer
	encoding.WriteUvarint(&buf, Version)

	encoding.WriteUvarint(&buf, uint64(len(columns)))
	for _, col := range columns {
		encoding.WriteUvarint(&buf, uint64(len(col)))
		buf.WriteString(col)
	}

	totalRows := int64(0)
	for _, b := range blocks {
		totalRows += b.Rows
	}
	encoding.WriteUvarint(&buf, uint64(totalRows))
	encoding.WriteUvarint(&buf, uint64(len(blocks)))

	for _, b := range blocks {
		encoding.WriteUvarint(&buf, uint64(b.Rows))
		encoding.WriteVarint(&buf, b.MinTimestamp)
		encoding.WriteVarint(&buf, b.MaxTimestamp)
		for _, c := range b.Chunks {
			encoding.WriteUvarint(&buf, uint64(c.Offset))
			encoding.WriteUvarint(&buf, uint64(c.CompressedSize))
		}
	}

	footerLen := buf.Len()
	dst = append(dst, buf.Bytes()...)

	var trailer [TrailerSize]byte
	binary.LittleEndian.PutUint32(trailer[:4], uint32(footerLen))
	copy(trailer[4:], Magic)
	return append(dst, trailer[:]...)
}
