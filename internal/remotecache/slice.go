package remotecache

import (
	"context"
	"fmt"
	"sort"

	"github.com/runsascoded/awair-sub000/internal/colfile"
	"github.com/runsascoded/awair-sub000/internal/logger"
	"github.com/runsascoded/awair-sub000/internal/metrics"
)

// provider exposes the current state as a colfile.SliceProvider. Callers
// hold f.mu; the resolver never re-locks it.
func (f *RemoteFile) provider() colfile.SliceProvider {
	return (*sliceResolver)(f)
}

type sliceResolver RemoteFile

func (r *sliceResolver) Size() int64 {
	return r.fileSize
}

func (r *sliceResolver) Slice(ctx context.Context, start, end int64) ([]byte, error) {
	return (*RemoteFile)(r).resolveSlice(ctx, start, end)
}

// resolveSlice serves [start, end), trying each cached source before the
// network:
//
//  1. fully inside the tail window
//  2. fully inside one cached block blob
//  3. stitched from multiple cached sources
//  4. direct fetch of the whole span — always correct, never fast
func (f *RemoteFile) resolveSlice(ctx context.Context, start, end int64) ([]byte, error) {
	if start < 0 || start > end || end > f.fileSize {
		return nil, fmt.Errorf("slice [%d, %d) out of range for size %d", start, end, f.fileSize)
	}
	if start == end {
		return nil, nil
	}

	tailEnd := f.tailStart + int64(len(f.tail))
	if start >= f.tailStart && end <= tailEnd {
		return f.tail[start-f.tailStart : end-f.tailStart], nil
	}

	blocks := f.blocksLocked()
	if bi := blockCovering(blocks, start); bi >= 0 && end <= blocks[bi].End {
		if blob, ok := f.cache.Get(blockKey(bi)); ok {
			metrics.CacheHits.Inc()
			b := blocks[bi]
			return blob[start-b.Start : end-b.Start], nil
		}
		metrics.CacheMisses.Inc()
	}

	if buf, ok := f.stitchSlice(blocks, start, end); ok {
		return buf, nil
	}

	// Cached sources do not cover the span; fall back to one direct fetch.
	logger.Printf("debug-slice", "uncached gap in [%d, %d), fetching directly", start, end)
	metrics.SliceFallbacks.Inc()
	return f.fetcher.Range(ctx, start, end)
}

// stitchSlice walks a cursor across the tail window and cached block blobs,
// copying each contiguous covered run. It reports false as soon as the
// cursor hits bytes no source covers.
func (f *RemoteFile) stitchSlice(blocks []colfile.BlockMeta, start, end int64) ([]byte, bool) {
	tailEnd := f.tailStart + int64(len(f.tail))
	buf := make([]byte, 0, end-start)
	cursor := start

	for cursor < end {
		// The tail window is the cheapest source: check it first.
		if cursor >= f.tailStart && cursor < tailEnd {
			stop := minInt64(end, tailEnd)
			buf = append(buf, f.tail[cursor-f.tailStart:stop-f.tailStart]...)
			cursor = stop
			continue
		}

		bi := blockCovering(blocks, cursor)
		if bi < 0 {
			return nil, false
		}
		blob, ok := f.cache.Get(blockKey(bi))
		if !ok {
			return nil, false
		}

		b := blocks[bi]
		stop := minInt64(end, b.End)
		buf = append(buf, blob[cursor-b.Start:stop-b.Start]...)
		cursor = stop
	}
	return buf, true
}

// stagedTail serves footer parsing during a refresh before any state has
// been committed. Bytes at or past tailStart come from the freshly fetched
// suffix; earlier bytes are immutable in an append and come from the
// existing cached sources.
type stagedTail struct {
	f         *RemoteFile
	size      int64
	tailStart int64
	tail      []byte
}

func (p *stagedTail) Size() int64 {
	return p.size
}

func (p *stagedTail) Slice(ctx context.Context, start, end int64) ([]byte, error) {
	if start < 0 || start > end || end > p.size {
		return nil, fmt.Errorf("slice [%d, %d) out of range for size %d", start, end, p.size)
	}
	if start >= p.tailStart {
		return p.tail[start-p.tailStart : end-p.tailStart], nil
	}
	if end <= p.tailStart {
		return p.f.resolveSlice(ctx, start, end)
	}
	head, err := p.f.resolveSlice(ctx, start, p.tailStart)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, end-start)
	buf = append(buf, head...)
	return append(buf, p.tail[:end-p.tailStart]...), nil
}

// blockCovering returns the index of the block whose byte range contains
// off, or -1. Blocks are sorted by start offset.
func blockCovering(blocks []colfile.BlockMeta, off int64) int {
	i := sort.Search(len(blocks), func(i int) bool {
		return blocks[i].End > off
	})
	if i < len(blocks) && blocks[i].Start <= off {
		return i
	}
	return -1
}

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
