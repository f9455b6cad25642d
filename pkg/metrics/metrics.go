package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Collection / document metrics
	DocumentsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexusdb_documents_total",
			Help: "Number of live documents per collection",
		},
		[]string{"database", "collection"},
	)

	CollectionsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nexusdb_collections_total",
			Help: "Total number of collections across all databases",
		},
	)

	IndexesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexusdb_indexes_total",
			Help: "Number of indexes per collection, by state",
		},
		[]string{"database", "collection", "state"},
	)

	// Storage-engine operation metrics
	CollectionOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexusdb_collection_op_duration_seconds",
			Help:    "Time taken to perform a physical-collection CRUD operation",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	IndexBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nexusdb_index_build_duration_seconds",
			Help:    "Time taken to build a secondary index, foreground or background",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	TruncateDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexusdb_truncate_duration_seconds",
			Help:    "Time taken to truncate a collection, by strategy",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"strategy"},
	)

	CacheRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusdb_cache_requests_total",
			Help: "Document cache lookups, by outcome",
		},
		[]string{"outcome"}, // hit, miss, lock_timeout
	)

	// Transaction metrics
	TransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusdb_transactions_total",
			Help: "Transactions started, by outcome",
		},
		[]string{"outcome"}, // committed, aborted
	)

	IntermediateCommitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexusdb_intermediate_commits_total",
			Help: "Total number of intermediate commits fired mid-transaction",
		},
	)

	ActiveBlockersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "nexusdb_sequence_blockers_total",
			Help: "Currently-held sequence-number blockers per collection",
		},
		[]string{"database", "collection"},
	)

	// Shard synchronization metrics
	ShardSyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nexusdb_shard_sync_duration_seconds",
			Help:    "Time taken for a full synchronize-shard run",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800, 3600},
		},
	)

	ShardSyncCatchupIterations = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nexusdb_shard_sync_catchup_iterations",
			Help:    "Number of soft-lock catch-up iterations per synchronize-shard run",
			Buckets: []float64{1, 2, 4, 8, 12, 18},
		},
	)

	ShardSyncResultTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusdb_shard_sync_result_total",
			Help: "synchronize-shard outcomes",
		},
		[]string{"result"}, // shortcut, synced, cancelled, failed
	)

	// Query execution metrics
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nexusdb_query_duration_seconds",
			Help:    "End-to-end query execution duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"state"}, // done, shutdown, cluster_timeout
	)

	QueryRowsScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexusdb_query_rows_scanned_total",
			Help: "Total number of rows scanned across all query executions",
		},
	)

	QueryRowsFiltered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nexusdb_query_rows_filtered_total",
			Help: "Total number of rows dropped by filter nodes",
		},
	)

	RemoteBlockCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nexusdb_remote_block_calls_total",
			Help: "Calls made across the RemoteNode wire protocol, by operation",
		},
		[]string{"operation"}, // getSome, skipSome, initializeCursor, shutdown
	)
)

func init() {
	prometheus.MustRegister(
		DocumentsTotal,
		CollectionsTotal,
		IndexesTotal,
		CollectionOpDuration,
		IndexBuildDuration,
		TruncateDuration,
		CacheRequestsTotal,
		TransactionsTotal,
		IntermediateCommitsTotal,
		ActiveBlockersTotal,
		ShardSyncDuration,
		ShardSyncCatchupIterations,
		ShardSyncResultTotal,
		QueryDuration,
		QueryRowsScanned,
		QueryRowsFiltered,
		RemoteBlockCallsTotal,
	)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
