package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCCallsTotal tracks RPC calls per chain and method
	RPCCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftscan_rpc_calls_total",
			Help: "Total number of RPC calls",
		},
		[]string{"chain", "method"},
	)

	// RPCErrorsTotal tracks RPC errors per chain and classification
	RPCErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftscan_rpc_errors_total",
			Help: "Total number of RPC errors",
		},
		[]string{"chain", "method", "error_type"},
	)

	// RPCLatency tracks RPC call latency including retries and failover
	RPCLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nftscan_rpc_latency_seconds",
			Help:    "RPC call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"chain", "method"},
	)

	// ChainLatestBlock tracks the latest head observed by the scanner
	ChainLatestBlock = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nftscan_chain_latest_block",
			Help: "Latest block height of the chain",
		},
		[]string{"chain"},
	)

	// ScanRequestsTotal counts eth_getLogs requests, including bisected sub-ranges
	ScanRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftscan_scan_requests_total",
			Help: "Total number of log range requests",
		},
		[]string{"event"},
	)

	// ScanBisectionsTotal counts ranges split after a range-too-large rejection
	ScanBisectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftscan_scan_bisections_total",
			Help: "Total number of log ranges split in half",
		},
		[]string{"event"},
	)

	// CandidatesTotal tracks the size of deduplicated candidate sets
	CandidatesTotal = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nftscan_candidates",
			Help:    "Number of distinct candidates per query run",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"kind"},
	)

	// VerifyBatchesTotal counts verification round trips by backend
	VerifyBatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftscan_verify_batches_total",
			Help: "Total number of verification round trips",
		},
		[]string{"mode"},
	)

	// VerifyItemFailuresTotal counts per-item verification failures
	VerifyItemFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftscan_verify_item_failures_total",
			Help: "Total number of individual verification failures",
		},
		[]string{"mode"},
	)

	// QueryRunsTotal counts query runs by kind and result
	QueryRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftscan_query_runs_total",
			Help: "Total number of query pipeline runs",
		},
		[]string{"kind", "result"},
	)

	// QueryRunDuration tracks full pipeline duration
	QueryRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nftscan_query_run_duration_seconds",
			Help:    "Query pipeline duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// CacheRequestsTotal counts cache lookups by outcome (hit, stale, miss, shared)
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftscan_cache_requests_total",
			Help: "Total number of query cache lookups",
		},
		[]string{"kind", "outcome"},
	)

	// CacheEntries tracks the number of cached keys
	CacheEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nftscan_cache_entries",
			Help: "Number of entries in the query cache",
		},
	)

	// CacheEvictionsTotal counts removed entries by reason (gc, capacity)
	CacheEvictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftscan_cache_evictions_total",
			Help: "Total number of query cache evictions",
		},
		[]string{"reason"},
	)

	// InvalidationsTotal counts invalidations by source (api, redis, cli)
	InvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nftscan_invalidations_total",
			Help: "Total number of query invalidations",
		},
		[]string{"source"},
	)
)
