/*
Package metrics provides Prometheus metrics collection and exposition for nexusdb.

The metrics package defines and registers all nexusdb metrics using the
Prometheus client library: collection/document gauges, storage-engine
operation histograms (CRUD, index build, truncate), transaction counters,
shard-synchronization outcomes, and query-execution histograms. Metrics are
exposed via metrics.Handler() for scraping.

# Usage

	http.Handle("/metrics", metrics.Handler())

	timer := metrics.NewTimer()
	_, err := col.Insert(tx, doc, collection.InsertOptions{})
	timer.ObserveDurationVec(metrics.CollectionOpDuration, "insert")

A companion HealthChecker (health.go) tracks per-component up/down state
independently of Prometheus and serves it as JSON for liveness probes.
*/
package metrics
