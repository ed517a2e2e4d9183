package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetadataRequests = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awaircache_metadata_requests_total",
			Help: "Total number of metadata-only (HEAD) requests",
		},
	)

	RangeRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awaircache_range_requests_total",
			Help: "Total number of byte-range requests",
		},
		[]string{"kind"},
	)

	FetchedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awaircache_fetched_bytes_total",
			Help: "Total bytes transferred by range requests",
		},
	)

	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awaircache_block_cache_hits_total",
			Help: "Total number of block cache hits",
		},
	)

	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awaircache_block_cache_misses_total",
			Help: "Total number of block cache misses",
		},
	)

	CacheEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awaircache_block_cache_evictions_total",
			Help: "Total number of block cache evictions",
		},
	)

	Refreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "awaircache_refreshes_total",
			Help: "Total number of refresh calls by outcome",
		},
		[]string{"outcome"},
	)

	RestructureResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awaircache_restructure_resets_total",
			Help: "Total number of full cache resets from restructuring detection",
		},
	)

	SliceFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "awaircache_slice_fallback_fetches_total",
			Help: "Total number of slice resolutions that fell back to a direct fetch",
		},
	)
)
