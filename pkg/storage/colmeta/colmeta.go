// Package colmeta tracks the per-collection counters and blockers that sit
// alongside the physical document store: a live document count, the
// highest revision observed, and the set of transaction-held blockers that
// pin sequence numbers against storage-engine housekeeping.
package colmeta

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cuemby/nexusdb/pkg/metrics"
)

// Meta tracks numberDocuments, revision, and blockers for one collection.
// Counters are atomic; blockers live under a short-held mutex, matching the
// concurrency model: collection meta counters are atomic, blockers use an
// ordered map under a short lock.
type Meta struct {
	database   string
	collection string

	numberDocuments int64
	revision        uint64

	blockersMu sync.Mutex
	blockers   map[uint64]uint64 // tid -> seq
}

// New creates collection meta for database/collection, used as Prometheus
// label values.
func New(database, collection string) *Meta {
	return &Meta{
		database:   database,
		collection: collection,
		blockers:   make(map[uint64]uint64),
	}
}

// ApplyDelta adjusts numberDocuments by delta, applied at commit time as a
// signed accumulator (positive for inserts, negative for removes).
func (m *Meta) ApplyDelta(delta int64) {
	n := atomic.AddInt64(&m.numberDocuments, delta)
	metrics.DocumentsTotal.WithLabelValues(m.database, m.collection).Set(float64(n))
}

// NumberDocuments returns the current live document count.
func (m *Meta) NumberDocuments() int64 {
	return atomic.LoadInt64(&m.numberDocuments)
}

// SetNumberDocuments overwrites the counter directly, used by both truncate
// paths, which set an authoritative count (zero) rather than an incremental
// delta.
func (m *Meta) SetNumberDocuments(n int64) {
	atomic.StoreInt64(&m.numberDocuments, n)
	metrics.DocumentsTotal.WithLabelValues(m.database, m.collection).Set(float64(n))
}

// ObserveRevision raises the tracked revision to rev if rev is higher than
// the current value; revisions only move forward.
func (m *Meta) ObserveRevision(rev uint64) {
	for {
		cur := atomic.LoadUint64(&m.revision)
		if rev <= cur {
			return
		}
		if atomic.CompareAndSwapUint64(&m.revision, cur, rev) {
			return
		}
	}
}

// Revision returns the highest revision id observed.
func (m *Meta) Revision() uint64 {
	return atomic.LoadUint64(&m.revision)
}

// PlaceBlocker registers tid as observing sequence seq; it must be called
// before any external sequence-number observation the transaction relies
// on, so that log compaction cannot prune entries the transaction's
// snapshot still needs.
func (m *Meta) PlaceBlocker(tid, seq uint64) {
	m.blockersMu.Lock()
	m.blockers[tid] = seq
	m.blockersMu.Unlock()
	metrics.ActiveBlockersTotal.WithLabelValues(m.database, m.collection).Inc()
}

// RemoveBlocker releases tid's blocker after commit or abort. Failure to
// call this is a leak, not a correctness bug, so it is safe (if wasteful)
// to call redundantly.
func (m *Meta) RemoveBlocker(tid uint64) {
	m.blockersMu.Lock()
	_, existed := m.blockers[tid]
	delete(m.blockers, tid)
	m.blockersMu.Unlock()
	if existed {
		metrics.ActiveBlockersTotal.WithLabelValues(m.database, m.collection).Dec()
	}
}

// MinBlockedSequence returns the lowest sequence number pinned by any live
// blocker, and whether any blocker exists at all. Housekeeping (log
// compaction, estimator pruning) must not advance past this value.
func (m *Meta) MinBlockedSequence() (seq uint64, ok bool) {
	m.blockersMu.Lock()
	defer m.blockersMu.Unlock()
	if len(m.blockers) == 0 {
		return 0, false
	}
	seqs := make([]uint64, 0, len(m.blockers))
	for _, s := range m.blockers {
		seqs = append(seqs, s)
	}
	sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
	return seqs[0], true
}

// BlockerCount reports the number of currently-held blockers, for tests and
// diagnostics.
func (m *Meta) BlockerCount() int {
	m.blockersMu.Lock()
	defer m.blockersMu.Unlock()
	return len(m.blockers)
}
