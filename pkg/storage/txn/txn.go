// Package txn implements the transaction layer: hint flags, per-collection
// operation counters, a savepoint stack over the underlying write batch,
// intermediate commits, and per-shard follower tracking for synchronous
// replication.
package txn

import (
	"context"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/nexusdb/pkg/log"
	"github.com/cuemby/nexusdb/pkg/metrics"
)

// Hint is a transaction bitflag.
type Hint uint32

const (
	SingleOperation Hint = 1 << iota
	GlobalManaged
	IntermediateCommits
	AllowRangeDelete
)

func (h Hint) Has(flag Hint) bool { return h&flag != 0 }

// defaultIntermediateCommitCount is the operation-count threshold at which
// addOperation fires an intermediate commit when Hint IntermediateCommits
// is set.
const defaultIntermediateCommitCount = 10_000

// LogRecord describes one mutation, binding it to a specific collection and
// revision. ObjectID carries the collection's key-namespace prefix. Records
// are kept in memory on the Transaction (see LogRecords); they are not
// written to the bolt store, so nothing replays them after a crash.
type LogRecord struct {
	CollectionID uint64
	ObjectID     uint64
	RevisionID   uint64
	OpType       string
}

// savepoint captures a position in the underlying write batch (here: the
// bbolt transaction itself, since bbolt transactions are all-or-nothing —
// "position" is represented by the count of operations applied so far, and
// finish(hasIntermediateCommit) either discards it or is superseded by a
// fresh one after a commit fires).
type savepoint struct {
	opCountAtMark int
}

// Transaction is a single logical unit of work. hints select its isolation
// and commit behavior; opCounters/logRecords/waitForSync accumulate as
// operations are added.
type Transaction struct {
	ctx     context.Context
	boltTx  *bolt.Tx
	hints   Hint
	onIntermediateCommit func() (*bolt.Tx, error)

	mu              sync.Mutex
	opCounters      map[uint64]int // collection-id -> op count
	logRecords      []LogRecord
	waitForSync     bool
	savepoints      []savepoint
	intermediateFired bool
}

// New wraps boltTx as a transaction with the given hints. onIntermediateCommit,
// if non-nil, is invoked by addOperation to commit the current batch and
// hand back a fresh bbolt transaction when IntermediateCommits fires.
func New(ctx context.Context, boltTx *bolt.Tx, hints Hint, onIntermediateCommit func() (*bolt.Tx, error)) *Transaction {
	return &Transaction{
		ctx:                   ctx,
		boltTx:                boltTx,
		hints:                 hints,
		onIntermediateCommit:  onIntermediateCommit,
		opCounters:            make(map[uint64]int),
	}
}

// Hints returns the transaction's hint flags.
func (t *Transaction) Hints() Hint { return t.hints }

// Bolt returns the underlying bbolt transaction currently backing this
// logical transaction (it may be replaced by an intermediate commit).
func (t *Transaction) Bolt() *bolt.Tx {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.boltTx
}

// PrepareOperation appends a log record binding the following storage
// mutations to collectionID/objectID/revisionID.
func (t *Transaction) PrepareOperation(collectionID, objectID, revisionID uint64, opType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logRecords = append(t.logRecords, LogRecord{CollectionID: collectionID, ObjectID: objectID, RevisionID: revisionID, OpType: opType})
}

// LogRecords returns a copy of the log records accumulated so far.
func (t *Transaction) LogRecords() []LogRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]LogRecord, len(t.logRecords))
	copy(out, t.logRecords)
	return out
}

// AddOperation bumps collectionID's op counter and, if IntermediateCommits
// is set and the threshold is reached, performs a commit + new transaction
// handoff inline, setting intermediateFired.
func (t *Transaction) AddOperation(collectionID uint64) error {
	t.mu.Lock()
	t.opCounters[collectionID]++
	count := t.opCounters[collectionID]
	t.mu.Unlock()

	if t.hints.Has(IntermediateCommits) && count >= defaultIntermediateCommitCount && t.onIntermediateCommit != nil {
		newTx, err := t.onIntermediateCommit()
		if err != nil {
			return fmt.Errorf("txn: intermediate commit failed: %w", err)
		}
		t.mu.Lock()
		t.boltTx = newTx
		t.opCounters[collectionID] = 0
		t.intermediateFired = true
		t.mu.Unlock()
		metrics.IntermediateCommitsTotal.Inc()
		log.WithComponent("txn").Debug().Uint64("collection_id", collectionID).Msg("intermediate commit fired")
	}
	return nil
}

// MarkWaitForSync accumulates the transaction's durability requirement:
// once any operation requests waitForSync, the whole transaction commits
// with it.
func (t *Transaction) MarkWaitForSync() {
	t.mu.Lock()
	t.waitForSync = true
	t.mu.Unlock()
}

// WaitForSync reports the accumulated durability requirement.
func (t *Transaction) WaitForSync() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.waitForSync
}

// PushSavepoint records a position in the current write batch.
func (t *Transaction) PushSavepoint() {
	t.mu.Lock()
	defer t.mu.Unlock()
	total := 0
	for _, c := range t.opCounters {
		total += c
	}
	t.savepoints = append(t.savepoints, savepoint{opCountAtMark: total})
}

// Finish pops the most recent savepoint. If hasIntermediateCommit is true
// (an intermediate commit fired since the savepoint was pushed), the
// savepoint is replaced with a fresh one at the current position instead
// of simply being discarded, since rolling back to the pre-commit position
// is no longer possible.
func (t *Transaction) Finish(hasIntermediateCommit bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.savepoints) == 0 {
		return
	}
	if hasIntermediateCommit {
		total := 0
		for _, c := range t.opCounters {
			total += c
		}
		t.savepoints[len(t.savepoints)-1] = savepoint{opCountAtMark: total}
		return
	}
	t.savepoints = t.savepoints[:len(t.savepoints)-1]
}

// SavepointDepth reports how many savepoints are currently pushed, for
// tests and assertions.
func (t *Transaction) SavepointDepth() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.savepoints)
}

// FollowerInfo tracks, per shard, the servers acknowledging writes, the
// servers that could become leader on failover, and the local leader.
// Synchronous replication requires every current follower to acknowledge
// before the client receives success.
type FollowerInfo struct {
	mu                sync.RWMutex
	currentFollowers  map[string]struct{}
	failoverCandidates map[string]struct{}
	localLeader       string
}

// NewFollowerInfo creates empty follower tracking for a shard led by
// localLeader.
func NewFollowerInfo(localLeader string) *FollowerInfo {
	return &FollowerInfo{
		currentFollowers:   make(map[string]struct{}),
		failoverCandidates: make(map[string]struct{}),
		localLeader:        localLeader,
	}
}

// Add registers server as a current, acknowledging follower.
func (f *FollowerInfo) Add(server string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.currentFollowers[server] = struct{}{}
}

// Remove drops server from the current-follower set.
func (f *FollowerInfo) Remove(server string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.currentFollowers, server)
}

// Current returns the servers that must acknowledge a synchronous write.
func (f *FollowerInfo) Current() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.currentFollowers))
	for s := range f.currentFollowers {
		out = append(out, s)
	}
	return out
}

// LocalLeader returns the shard's current leader as tracked locally.
func (f *FollowerInfo) LocalLeader() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.localLeader
}

// SetLocalLeader updates the locally-tracked leader, e.g. after a failover.
func (f *FollowerInfo) SetLocalLeader(server string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.localLeader = server
}
