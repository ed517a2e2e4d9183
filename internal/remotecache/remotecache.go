// Package remotecache serves arbitrary byte ranges of one remote append-only
// columnar file while minimizing requests issued and bytes transferred. It
// tracks file growth across polls, keeps immutable blocks in a size-bounded
// cache, and coalesces scattered misses into single range requests.
package remotecache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/runsascoded/awair-sub000/internal/bytecache"
	"github.com/runsascoded/awair-sub000/internal/colfile"
	"github.com/runsascoded/awair-sub000/internal/fetch"
	"github.com/runsascoded/awair-sub000/internal/logger"
	"github.com/runsascoded/awair-sub000/internal/metrics"
)

type Options struct {
	InitialFetchSize   int64   // first fetch covers this many trailing bytes
	CacheBytes         int64   // block cache budget
	MaxBlockCountDelta int     // block count jump treated as a rewrite
	MinSizeRatio       float64 // size shrink ratio treated as a rewrite
}

func DefaultOptions() Options {
	return Options{
		InitialFetchSize:   128 * 1024,
		CacheBytes:         bytecache.DefaultMaxBytes,
		MaxBlockCountDelta: 5,
		MinSizeRatio:       0.8,
	}
}

// RemoteFile owns one remote file identity: its size, last-modified time,
// parsed footer, block layout, tail window and block cache.
//
// The mutating entry points (Initialize, Refresh, EnsureBlocksCached,
// ReadRows) serialize on an internal mutex; concurrent Refresh callers
// additionally collapse into a single in-flight refresh.
type RemoteFile struct {
	fetcher fetch.Fetcher
	opts    Options

	mu           sync.Mutex
	refreshGroup singleflight.Group

	fileSize     int64
	lastModified time.Time
	footer       *colfile.Footer
	tailStart    int64
	tail         []byte
	cache        *bytecache.Cache
}

type Stats struct {
	FileSize         int64 `json:"file_size"`
	BlockCount       int   `json:"block_count"`
	CachedBlockCount int   `json:"cached_block_count"`
	CacheBytes       int64 `json:"cache_bytes"`
	CacheBudget      int64 `json:"cache_budget"`
}

func Open(fetcher fetch.Fetcher, opts Options) *RemoteFile {
	def := DefaultOptions()
	if opts.InitialFetchSize <= 0 {
		opts.InitialFetchSize = def.InitialFetchSize
	}
	if opts.CacheBytes <= 0 {
		opts.CacheBytes = def.CacheBytes
	}
	if opts.MaxBlockCountDelta <= 0 {
		opts.MaxBlockCountDelta = def.MaxBlockCountDelta
	}
	if opts.MinSizeRatio <= 0 {
		opts.MinSizeRatio = def.MinSizeRatio
	}

	return &RemoteFile{
		fetcher: fetcher,
		opts:    opts,
		cache: bytecache.New(opts.CacheBytes, func(key string, blob []byte) {
			metrics.CacheEvictions.Inc()
			logger.Printf("debug-cache", "evicted %s (%d bytes)", key, len(blob))
		}),
	}
}

func blockKey(idx int) string {
	return fmt.Sprintf("block-%d", idx)
}

// Initialize learns the file's size and layout: one metadata request, one
// range request for the trailing InitialFetchSize bytes, then a footer parse
// against that tail window.
func (f *RemoteFile) Initialize(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initLocked(ctx)
}

func (f *RemoteFile) initLocked(ctx context.Context) error {
	meta, err := f.fetcher.Head(ctx)
	if err != nil {
		return fmt.Errorf("initialize metadata: %w", err)
	}
	if meta.Size < colfile.TrailerSize {
		return fmt.Errorf("remote file too small: %d bytes", meta.Size)
	}

	start := meta.Size - f.opts.InitialFetchSize
	if start < 0 {
		start = 0
	}
	tail, err := f.fetcher.Range(ctx, start, meta.Size)
	if err != nil {
		return fmt.Errorf("initialize tail fetch: %w", err)
	}

	f.fileSize = meta.Size
	f.lastModified = meta.LastModified
	f.tailStart = start
	f.tail = tail

	footer, err := colfile.ParseFooter(ctx, f.provider())
	if err != nil {
		return fmt.Errorf("initialize footer parse: %w", err)
	}
	f.footer = footer

	promoted := f.promoteLocked()
	logger.Printf("remote", "initialized: %d bytes, %d blocks, %d rows, %d promoted",
		f.fileSize, len(footer.Blocks), footer.TotalRows, promoted)
	return nil
}

// Refresh checks the remote for new bytes. An unchanged size reports false
// and issues zero range requests. Growth refetches from the start of the
// previously-known last block; a shrink or block-count jump beyond the
// configured thresholds is treated as a destructive rewrite and triggers a
// full reset.
func (f *RemoteFile) Refresh(ctx context.Context) (bool, error) {
	v, err, _ := f.refreshGroup.Do("refresh", func() (interface{}, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.refreshLocked(ctx)
	})
	if err != nil {
		metrics.Refreshes.WithLabelValues("error").Inc()
		return false, err
	}
	return v.(bool), nil
}

func (f *RemoteFile) refreshLocked(ctx context.Context) (bool, error) {
	oldSize := f.fileSize
	oldBlockCount := len(f.blocksLocked())

	meta, err := f.fetcher.Head(ctx)
	if err != nil {
		return false, fmt.Errorf("refresh metadata: %w", err)
	}
	if meta.Size == oldSize {
		metrics.Refreshes.WithLabelValues("no_change").Inc()
		return false, nil
	}

	suffixStart := int64(0)
	lastIdx := -1
	if n := oldBlockCount; n > 0 {
		lastIdx = n - 1
		suffixStart = f.footer.Blocks[lastIdx].Start
	}

	// A shrink past the threshold, or a file now shorter than the suffix we
	// would fetch, cannot be an ordinary append.
	if float64(meta.Size) < f.opts.MinSizeRatio*float64(oldSize) || meta.Size <= suffixStart {
		return true, f.resetLocked(ctx, fmt.Sprintf("size %d -> %d", oldSize, meta.Size))
	}

	data, err := f.fetcher.RangeFrom(ctx, suffixStart)
	if err != nil {
		return false, fmt.Errorf("refresh suffix fetch: %w", err)
	}

	// Parse against staged state only: a body that fetched cleanly but does
	// not parse (truncated suffix, a server ignoring the Range header) must
	// leave the old size/tail/footer untouched so the next poll still sees
	// the growth.
	staged := &stagedTail{
		f:         f,
		size:      suffixStart + int64(len(data)),
		tailStart: suffixStart,
		tail:      data,
	}
	footer, err := colfile.ParseFooter(ctx, staged)
	if err != nil {
		return false, fmt.Errorf("refresh footer parse: %w", err)
	}

	delta := len(footer.Blocks) - oldBlockCount
	if delta < 0 {
		delta = -delta
	}
	if delta > f.opts.MaxBlockCountDelta {
		return true, f.resetLocked(ctx, fmt.Sprintf("block count %d -> %d", oldBlockCount, len(footer.Blocks)))
	}

	// The last block's bytes may have grown in place.
	if lastIdx >= 0 {
		f.cache.Delete(blockKey(lastIdx))
	}

	f.lastModified = meta.LastModified
	f.fileSize = staged.size
	f.tailStart = staged.tailStart
	f.tail = staged.tail
	f.footer = footer
	promoted := f.promoteLocked()
	logger.Printf("remote", "refreshed: %d -> %d bytes, %d -> %d blocks, %d promoted",
		oldSize, f.fileSize, oldBlockCount, len(footer.Blocks), promoted)
	metrics.Refreshes.WithLabelValues("appended").Inc()
	return true, nil
}

// resetLocked discards all cached state and reinitializes. The read still
// succeeds afterwards, so restructuring surfaces as a log line, not an error.
func (f *RemoteFile) resetLocked(ctx context.Context, reason string) error {
	logger.Warning("remote file restructured (%s), resetting caches", reason)
	metrics.RestructureResets.Inc()

	f.cache.Clear()
	f.tail = nil
	f.tailStart = 0
	f.footer = nil
	f.fileSize = 0

	if err := f.initLocked(ctx); err != nil {
		return fmt.Errorf("reinitialize after restructure: %w", err)
	}
	metrics.Refreshes.WithLabelValues("restructured").Inc()
	return nil
}

// promoteLocked copies every immutable block fully covered by the tail
// window into the byte cache. The highest-ordinal block is never promoted:
// it may still be growing.
func (f *RemoteFile) promoteLocked() int {
	blocks := f.blocksLocked()
	tailEnd := f.tailStart + int64(len(f.tail))
	promoted := 0

	for _, b := range blocks[:maxInt(len(blocks)-1, 0)] {
		if b.Start < f.tailStart || b.End > tailEnd {
			continue
		}
		key := blockKey(b.Index)
		if f.cache.Has(key) {
			continue
		}
		blob := make([]byte, b.End-b.Start)
		copy(blob, f.tail[b.Start-f.tailStart:b.End-f.tailStart])
		f.cache.Set(key, blob)
		promoted++
	}
	return promoted
}

func (f *RemoteFile) blocksLocked() []colfile.BlockMeta {
	if f.footer == nil {
		return nil
	}
	return f.footer.Blocks
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Footer returns the parsed footer metadata, or nil before Initialize.
func (f *RemoteFile) Footer() *colfile.Footer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.footer
}

// Blocks returns a copy of the current block list.
func (f *RemoteFile) Blocks() []colfile.BlockMeta {
	f.mu.Lock()
	defer f.mu.Unlock()
	blocks := make([]colfile.BlockMeta, len(f.blocksLocked()))
	copy(blocks, f.blocksLocked())
	return blocks
}

func (f *RemoteFile) FileSize() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fileSize
}

// LastModified returns the remote's last-modified time from the most recent
// metadata request; zero if the server never sent one.
func (f *RemoteFile) LastModified() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastModified
}

func (f *RemoteFile) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()

	cached := 0
	for _, b := range f.blocksLocked() {
		if f.cache.Has(blockKey(b.Index)) {
			cached++
		}
	}

	cs := f.cache.Stats()
	return Stats{
		FileSize:         f.fileSize,
		BlockCount:       len(f.blocksLocked()),
		CachedBlockCount: cached,
		CacheBytes:       cs.Bytes,
		CacheBudget:      cs.Budget,
	}
}
