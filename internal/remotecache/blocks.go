package remotecache

import (
	"context"
	"fmt"
	"sort"

	"github.com/runsascoded/awair-sub000/internal/colfile"
	"github.com/runsascoded/awair-sub000/internal/logger"
)

// EnsureBlocksCached makes the given block ordinals servable without further
// network access. All misses are coalesced into exactly one range request
// spanning the lowest missing block's start to the highest missing block's
// end, even when blocks strictly between them are already cached.
func (f *RemoteFile) EnsureBlocksCached(ctx context.Context, indices []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ensureLocked(ctx, indices)
}

func (f *RemoteFile) ensureLocked(ctx context.Context, indices []int) error {
	blocks := f.blocksLocked()
	tailEnd := f.tailStart + int64(len(f.tail))

	var missing []int
	for _, idx := range indices {
		if idx < 0 || idx >= len(blocks) {
			return fmt.Errorf("block %d out of range (%d blocks)", idx, len(blocks))
		}
		b := blocks[idx]
		if f.cache.Has(blockKey(idx)) {
			continue
		}
		if b.Start >= f.tailStart && b.End <= tailEnd {
			continue
		}
		missing = append(missing, idx)
	}
	if len(missing) == 0 {
		return nil
	}

	sort.Ints(missing)
	lo := blocks[missing[0]].Start
	hi := blocks[missing[len(missing)-1]].End

	data, err := f.fetcher.Range(ctx, lo, hi)
	if err != nil {
		return fmt.Errorf("fetch blocks %v: %w", missing, err)
	}
	logger.Printf("debug-cache", "filled %d blocks with one request [%d, %d)", len(missing), lo, hi)

	for _, idx := range missing {
		b := blocks[idx]
		blob := make([]byte, b.End-b.Start)
		copy(blob, data[b.Start-lo:b.End-lo])
		f.cache.Set(blockKey(idx), blob)
	}
	return nil
}

// ReadRows returns decoded rows [start, end). Row indices follow file order,
// which matches timestamp order for this data.
func (f *RemoteFile) ReadRows(ctx context.Context, start, end int) ([]colfile.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.footer == nil {
		return nil, fmt.Errorf("not initialized")
	}
	if start < 0 {
		start = 0
	}
	if total := int(f.footer.TotalRows); end > total {
		end = total
	}
	if start >= end {
		return nil, nil
	}

	indices, firstRow := overlappingBlocks(f.blocksLocked(), start, end)
	if err := f.ensureLocked(ctx, indices); err != nil {
		return nil, err
	}

	rows := make([]colfile.Row, 0, end-start)
	base := firstRow
	for _, idx := range indices {
		decoded, err := colfile.DecodeRows(ctx, f.provider(), f.footer, idx)
		if err != nil {
			return nil, fmt.Errorf("decode block %d: %w", idx, err)
		}

		lo, hi := 0, len(decoded)
		if start > base {
			lo = start - base
		}
		if end < base+len(decoded) {
			hi = end - base
		}
		rows = append(rows, decoded[lo:hi]...)
		base += len(decoded)
	}
	return rows, nil
}

// overlappingBlocks maps a row range to the ordinals of the blocks covering
// it, walking the block list's cumulative row counts. It also returns the
// row index at which the first returned block begins.
func overlappingBlocks(blocks []colfile.BlockMeta, start, end int) ([]int, int) {
	var indices []int
	firstRow := 0
	rowBase := 0

	for _, b := range blocks {
		blockEnd := rowBase + int(b.Rows)
		if blockEnd > start && rowBase < end {
			if len(indices) == 0 {
				firstRow = rowBase
			}
			indices = append(indices, b.Index)
		}
		rowBase = blockEnd
		if rowBase >= end {
			break
		}
	}
	return indices, firstRow
}
