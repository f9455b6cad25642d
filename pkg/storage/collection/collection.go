// Package collection implements the physical collection: CRUD operations
// over the primary index and document body storage, index fan-out with
// reversal on failure, and the two truncate strategies (range-delete and
// iterative).
package collection

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/nexusdb/pkg/log"
	"github.com/cuemby/nexusdb/pkg/metrics"
	"github.com/cuemby/nexusdb/pkg/storage/cache"
	"github.com/cuemby/nexusdb/pkg/storage/colmeta"
	"github.com/cuemby/nexusdb/pkg/storage/index"
	"github.com/cuemby/nexusdb/pkg/storage/keycodec"
	"github.com/cuemby/nexusdb/pkg/storage/txn"
	"github.com/cuemby/nexusdb/pkg/types"
)

// rangeDeleteThreshold is the minimum document count at which truncate may
// take the range-delete path, given an exclusive transaction and a
// single-server deployment permitting non-transactional range deletes.
const rangeDeleteThreshold = 32_000

// ErrNotFound is returned for a missing key, index entry, or collection.
type ErrNotFound struct{ Key string }

func (e *ErrNotFound) Error() string { return fmt.Sprintf("collection: not found: %s", e.Key) }

// ErrConflict is returned for a unique-constraint or revision-precondition
// violation; OffendingKey is populated for internal callers.
type ErrConflict struct {
	Reason       string
	OffendingKey string
}

func (e *ErrConflict) Error() string { return fmt.Sprintf("collection: conflict: %s", e.Reason) }

// TruncateStrategy names which path truncate took.
type TruncateStrategy string

const (
	TruncateRangeDelete TruncateStrategy = "range_delete"
	TruncateIterative   TruncateStrategy = "iterative"
)

// Collection is one physical collection's storage surface: a primary-index
// bucket (key -> LocalDocumentId), a body bucket (objectId|localID ->
// encoded document), colmeta counters, an optional document cache, and an
// index registry for secondary indexes.
type Collection struct {
	Meta *types.Collection

	db       *bolt.DB
	bodyBkt  []byte
	primBkt  []byte
	colMeta  *colmeta.Meta
	docCache *cache.Cache // nil when caching is disabled
	indexes  *index.Registry

	mu        sync.Mutex // serializes LocalDocumentId allocation
	nextLocal uint64
}

// Open opens (creating if necessary) the body and primary-index buckets
// for meta within db.
func Open(db *bolt.DB, meta *types.Collection, docCache *cache.Cache) (*Collection, error) {
	bodyBkt := []byte(fmt.Sprintf("body:%d", meta.ObjectID))
	primBkt := []byte(fmt.Sprintf("primary:%d", meta.ObjectID))

	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bodyBkt); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(primBkt)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("collection: opening buckets: %w", err)
	}

	c := &Collection{
		Meta:      meta,
		db:        db,
		bodyBkt:   bodyBkt,
		primBkt:   primBkt,
		colMeta:   colmeta.New(meta.DatabaseID, meta.Name),
		docCache:  docCache,
		indexes:   index.New(),
		nextLocal: 1,
	}
	return c, nil
}

func (c *Collection) allocLocalID() types.LocalDocumentId {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextLocal
	c.nextLocal++
	return types.LocalDocumentId(id)
}

// bucketBackend is the index.Backend used only for a new index's bulk
// fill against documents that predate it: it owns its own bolt
// transactions (legal here, since CreateIndex never runs nested inside an
// already-open write transaction), one per Put/Delete, and scans the body
// bucket directly for ScanAll.
type bucketBackend struct {
	db       *bolt.DB
	bodyBkt  []byte
	indexBkt []byte
	objectID uint64
}

func (b *bucketBackend) Put(key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.indexBkt).Put(key, value)
	})
}

func (b *bucketBackend) Delete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.indexBkt).Delete(key)
	})
}

func (b *bucketBackend) ScanAll(fn func(localID uint64, body []byte) error) error {
	bounds := keycodec.CollectionBounds(b.objectID)
	return b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(b.bodyBkt)
		cur := bkt.Cursor()
		for k, v := cur.Seek(bounds.Start); k != nil && bounds.Contains(k); k, v = cur.Next() {
			_, localID, err := keycodec.DecodeDocumentKey(k)
			if err != nil {
				return err
			}
			if err := fn(uint64(localID), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateIndex allocates a dedicated bucket for def, backfills it against
// every document already in the collection (in the foreground or
// background per inBackground), and registers it in the index registry.
// For an edge collection, it additionally enforces that the index set
// never settles on exactly two indexes (primary plus a single edge
// direction), which would silently leave the collection missing its
// second edge-direction index.
func (c *Collection) CreateIndex(ctx context.Context, def types.IndexDefinition, inBackground bool) (*index.Handle, bool, error) {
	bucketName := []byte(fmt.Sprintf("idx:%d:%d", c.Meta.ObjectID, def.ID))
	if err := c.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		return nil, false, fmt.Errorf("collection: allocating index bucket: %w", err)
	}

	backend := &bucketBackend{db: c.db, bodyBkt: c.bodyBkt, indexBkt: bucketName, objectID: c.Meta.ObjectID}
	h, created, err := c.indexes.CreateIndex(ctx, c.Meta.ObjectID, bucketName, def, backend, inBackground)
	if err != nil {
		return nil, false, err
	}

	if c.Meta.Type == types.CollectionTypeEdge {
		if err := c.indexes.ValidateIndexOrder(true); err != nil {
			c.indexes.DropIndex(def.ID)
			return nil, false, err
		}
	}
	return h, created, nil
}

// deriveSecondaryOps builds the write-ops every non-primary index
// contributes for doc at localID; the primary index itself is always
// handled directly via primBkt, not through the registry fan-out.
func (c *Collection) deriveSecondaryOps(localID types.LocalDocumentId, doc *types.Document) map[*index.Handle]index.WriteOp {
	ops := make(map[*index.Handle]index.WriteOp)
	for _, h := range c.indexes.Ordered() {
		if h.Def.Type == types.IndexPrimary {
			continue
		}
		key, value, ok := index.DeriveWriteOp(c.Meta.ObjectID, h.Def, uint64(localID), doc)
		if !ok {
			continue
		}
		ops[h] = index.WriteOp{Key: key, Value: value}
	}
	return ops
}

// InsertOptions configures Insert.
type InsertOptions struct {
	Overwrite   bool
	Restore     bool // when true, the document's own key is honored verbatim
	NewRevision uint64
}

// Insert builds a new document with a generated revision (and, unless
// Restore is set, a generated key), probes the primary index first when
// Overwrite is set (to reject a duplicate key before opening a savepoint),
// then writes the body and fans out to every index in registry order,
// reversing on failure.
func (c *Collection) Insert(tx *bolt.Tx, doc *types.Document, opts InsertOptions) (*types.Document, error) {
	newDoc := doc.Clone()
	if newDoc.Key == "" && !opts.Restore {
		newDoc.Key = generateKey()
	}
	newDoc.Rev = opts.NewRevision
	if newDoc.Rev == 0 {
		newDoc.Rev = generateRevision()
	}

	if opts.Overwrite {
		if _, exists := c.lookupKeyTx(tx, newDoc.Key); exists {
			return nil, &ErrConflict{Reason: "unique constraint violated on _key", OffendingKey: newDoc.Key}
		}
	}

	t := txn.New(context.Background(), tx, txn.SingleOperation, nil)
	t.PushSavepoint()
	defer t.Finish(false)

	localID := c.allocLocalID()
	body, err := json.Marshal(newDoc)
	if err != nil {
		return nil, fmt.Errorf("collection: encoding document: %w", err)
	}

	bodyBkt := tx.Bucket(c.bodyBkt)
	if err := bodyBkt.Put(keycodec.DocumentKey(c.Meta.ObjectID, localID), body); err != nil {
		return nil, err
	}
	primBkt := tx.Bucket(c.primBkt)
	localBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(localBuf, uint64(localID))
	if err := primBkt.Put([]byte(newDoc.Key), localBuf); err != nil {
		return nil, err
	}

	t.PrepareOperation(c.Meta.ID, c.Meta.ObjectID, newDoc.Rev, "insert")
	if err := t.AddOperation(c.Meta.ID); err != nil {
		return nil, err
	}

	if err := c.indexes.FanOutInsert(tx, c.deriveSecondaryOps(localID, newDoc)); err != nil {
		return nil, err
	}

	if c.docCache != nil {
		c.docCache.Blacklist(newDoc.Key)
		defer c.docCache.ClearBlacklist(newDoc.Key)
	}

	c.colMeta.ApplyDelta(1)
	c.colMeta.ObserveRevision(newDoc.Rev)
	timer := metrics.NewTimer()
	timer.ObserveDurationVec(metrics.CollectionOpDuration, "insert")
	return newDoc, nil
}

// Update merges newAttrs onto the existing document's body (replace
// semantics are Replace's job); checks the expected revision unless
// ignoreRevs; rejects changes to sharding keys or the smart-join
// attribute; writes a new (objectId, newLocalId) entry and deletes the old
// one.
func (c *Collection) Update(tx *bolt.Tx, key string, newAttrs map[string]any, expectedRev uint64, ignoreRevs bool) (*types.Document, error) {
	return c.mutateBody(tx, key, expectedRev, ignoreRevs, "update", func(old *types.Document) *types.Document {
		merged := old.Clone()
		for k, v := range newAttrs {
			merged.Body[k] = v
		}
		return merged
	})
}

// Replace behaves like Update but discards the old body entirely in favor
// of newBody.
func (c *Collection) Replace(tx *bolt.Tx, key string, newBody map[string]any, expectedRev uint64, ignoreRevs bool) (*types.Document, error) {
	return c.mutateBody(tx, key, expectedRev, ignoreRevs, "replace", func(old *types.Document) *types.Document {
		return &types.Document{Key: old.Key, From: old.From, To: old.To, Body: newBody}
	})
}

func (c *Collection) mutateBody(tx *bolt.Tx, key string, expectedRev uint64, ignoreRevs bool, opType string, mutate func(*types.Document) *types.Document) (*types.Document, error) {
	t := txn.New(context.Background(), tx, txn.SingleOperation, nil)
	t.PushSavepoint()
	defer t.Finish(false)

	oldLocalID, ok := c.lookupKeyTx(tx, key)
	if !ok {
		return nil, &ErrNotFound{Key: key}
	}
	old, err := c.readBody(tx, oldLocalID, key)
	if err != nil {
		return nil, err
	}
	if !ignoreRevs && expectedRev != 0 && old.Rev != expectedRev {
		return nil, &ErrConflict{Reason: "revision precondition failed", OffendingKey: key}
	}

	newDoc := mutate(old)
	newDoc.Key = key
	for _, attr := range append([]string{c.Meta.SmartJoinAttribute}, c.Meta.ShardKeys...) {
		if attr == "" || attr == "_key" {
			continue
		}
		ov, _ := old.Get(attr)
		nv, _ := newDoc.Get(attr)
		ob, _ := json.Marshal(ov)
		nb, _ := json.Marshal(nv)
		if string(ob) != string(nb) {
			return nil, &ErrConflict{Reason: "sharding key or smart-join attribute must not change", OffendingKey: key}
		}
	}
	newDoc.Rev = generateRevision()

	newLocalID := c.allocLocalID()
	body, err := json.Marshal(newDoc)
	if err != nil {
		return nil, fmt.Errorf("collection: encoding document: %w", err)
	}

	bodyBkt := tx.Bucket(c.bodyBkt)
	if err := bodyBkt.Delete(keycodec.DocumentKey(c.Meta.ObjectID, oldLocalID)); err != nil {
		return nil, err
	}
	if err := bodyBkt.Put(keycodec.DocumentKey(c.Meta.ObjectID, newLocalID), body); err != nil {
		return nil, err
	}
	primBkt := tx.Bucket(c.primBkt)
	localBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(localBuf, uint64(newLocalID))
	if err := primBkt.Put([]byte(key), localBuf); err != nil {
		return nil, err
	}

	t.PrepareOperation(c.Meta.ID, c.Meta.ObjectID, newDoc.Rev, opType)
	if err := t.AddOperation(c.Meta.ID); err != nil {
		return nil, err
	}

	if err := c.indexes.ReverseAll(tx, c.deriveSecondaryOps(oldLocalID, old)); err != nil {
		return nil, err
	}
	if err := c.indexes.FanOutInsert(tx, c.deriveSecondaryOps(newLocalID, newDoc)); err != nil {
		return nil, err
	}

	if c.docCache != nil {
		c.docCache.Blacklist(key)
		defer c.docCache.ClearBlacklist(key)
	}
	c.colMeta.ObserveRevision(newDoc.Rev)
	return newDoc, nil
}

// Remove looks up key, checks the expected revision unless ignoreRevs,
// deletes the body entry, reverses every secondary index entry it owned,
// removes the primary-index entry, and blacklists the cache for key.
func (c *Collection) Remove(tx *bolt.Tx, key string, expectedRev uint64, ignoreRevs bool) error {
	t := txn.New(context.Background(), tx, txn.SingleOperation, nil)
	t.PushSavepoint()
	defer t.Finish(false)

	localID, ok := c.lookupKeyTx(tx, key)
	if !ok {
		return &ErrNotFound{Key: key}
	}
	old, err := c.readBody(tx, localID, key)
	if err != nil {
		return err
	}
	if !ignoreRevs && expectedRev != 0 && old.Rev != expectedRev {
		return &ErrConflict{Reason: "revision precondition failed", OffendingKey: key}
	}

	bodyBkt := tx.Bucket(c.bodyBkt)
	if err := bodyBkt.Delete(keycodec.DocumentKey(c.Meta.ObjectID, localID)); err != nil {
		return err
	}
	primBkt := tx.Bucket(c.primBkt)
	if err := primBkt.Delete([]byte(key)); err != nil {
		return err
	}

	t.PrepareOperation(c.Meta.ID, c.Meta.ObjectID, old.Rev, "remove")
	if err := t.AddOperation(c.Meta.ID); err != nil {
		return err
	}

	if err := c.indexes.ReverseAll(tx, c.deriveSecondaryOps(localID, old)); err != nil {
		return err
	}

	if c.docCache != nil {
		c.docCache.Blacklist(key)
	}
	c.colMeta.ApplyDelta(-1)
	return nil
}

// Read looks up key via the primary index and fetches the body via the
// cache, falling back to storage on miss. If the first lookup returns
// NotFound, the lookup is retried exactly once within the same bolt
// transaction; the snapshot is not refreshed between the two attempts, so
// the retry reads the same data as the first lookup.
func (c *Collection) Read(tx *bolt.Tx, key string) (*types.Document, error) {
	doc, err := c.readOnce(tx, key)
	if _, isNotFound := err.(*ErrNotFound); isNotFound {
		return c.readOnce(tx, key)
	}
	return doc, err
}

func (c *Collection) readOnce(tx *bolt.Tx, key string) (*types.Document, error) {
	localID, ok := c.lookupKeyTx(tx, key)
	if !ok {
		return nil, &ErrNotFound{Key: key}
	}
	return c.readBody(tx, localID, key)
}

func (c *Collection) readBody(tx *bolt.Tx, localID types.LocalDocumentId, key string) (*types.Document, error) {
	docKey := keycodec.DocumentKey(c.Meta.ObjectID, localID)

	if c.docCache != nil {
		if v, outcome := c.docCache.Find(key); outcome == cache.Hit {
			return decodeDocument(v)
		}
	}

	bkt := tx.Bucket(c.bodyBkt)
	raw := bkt.Get(docKey)
	if raw == nil {
		return nil, &ErrNotFound{Key: key}
	}
	if c.docCache != nil {
		if c.docCache.Insert(key, raw) == cache.LockTimeout {
			runtime.Gosched()
			c.docCache.Insert(key, raw)
		}
	}
	return decodeDocument(raw)
}

func decodeDocument(raw []byte) (*types.Document, error) {
	var doc types.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("collection: decoding document: %w", err)
	}
	return &doc, nil
}

func (c *Collection) lookupKeyTx(tx *bolt.Tx, key string) (types.LocalDocumentId, bool) {
	bkt := tx.Bucket(c.primBkt)
	raw := bkt.Get([]byte(key))
	if raw == nil {
		return 0, false
	}
	return types.LocalDocumentId(binary.BigEndian.Uint64(raw)), true
}

// LookupKey is the public accessor corresponding to lookupKeyTx.
func (c *Collection) LookupKey(tx *bolt.Tx, key string) (types.LocalDocumentId, bool) {
	return c.lookupKeyTx(tx, key)
}

// LookupRevision finds a document by its revision id via a full scan of
// the body bucket. There is no secondary index on revision in this engine;
// this mirrors the original system's rarely-used internal diagnostic path.
func (c *Collection) LookupRevision(tx *bolt.Tx, rev uint64) (*types.Document, error) {
	var found *types.Document
	bounds := keycodec.CollectionBounds(c.Meta.ObjectID)
	bkt := tx.Bucket(c.bodyBkt)
	cur := bkt.Cursor()
	for k, v := cur.Seek(bounds.Start); k != nil && bounds.Contains(k); k, v = cur.Next() {
		doc, err := decodeDocument(v)
		if err != nil {
			return nil, err
		}
		if doc.Rev == rev {
			found = doc
			break
		}
	}
	if found == nil {
		return nil, &ErrNotFound{Key: fmt.Sprintf("rev:%d", rev)}
	}
	return found, nil
}

// Truncate removes every document in the collection. exclusive and
// allowRangeDelete select the range-delete path when the document count
// also clears the threshold; otherwise it walks every key and removes rows
// one at a time, firing a real intermediate commit (commit the current
// bolt transaction and begin a fresh one) every
// defaultIntermediateCommitCount rows via the txn layer. Truncate manages
// its own bolt transaction(s) rather than taking one from the caller,
// since an intermediate commit must be a genuine commit-and-reopen, which
// cannot happen from inside a transaction the caller still owns.
func (c *Collection) Truncate(ctx context.Context, exclusive, allowRangeDelete bool) (TruncateStrategy, error) {
	count := c.colMeta.NumberDocuments()
	timer := metrics.NewTimer()

	if exclusive && allowRangeDelete && count >= rangeDeleteThreshold {
		err := c.db.Update(func(tx *bolt.Tx) error {
			return c.truncateRangeDelete(tx)
		})
		if err != nil {
			return "", err
		}
		timer.ObserveDurationVec(metrics.TruncateDuration, string(TruncateRangeDelete))
		return TruncateRangeDelete, nil
	}

	if err := c.truncateIterative(ctx); err != nil {
		return "", err
	}
	timer.ObserveDurationVec(metrics.TruncateDuration, string(TruncateIterative))
	return TruncateIterative, nil
}

// truncateRangeDelete places a blocker pinning the current transaction's
// sequence number (so housekeeping cannot prune entries this truncate
// still depends on), range-deletes the body, primary-index, and every
// secondary index's bucket range for this collection's objectId, appends
// a log record carrying the collection and objectId, then calls
// AfterTruncate on every registered index so caches and external links
// flush.
func (c *Collection) truncateRangeDelete(tx *bolt.Tx) error {
	seq := uint64(tx.ID())
	c.colMeta.PlaceBlocker(seq, seq)
	defer c.colMeta.RemoveBlocker(seq)

	t := txn.New(context.Background(), tx, txn.AllowRangeDelete, nil)
	t.PrepareOperation(c.Meta.ID, c.Meta.ObjectID, c.colMeta.Revision(), "truncate_range_delete")

	if err := deleteRange(tx.Bucket(c.bodyBkt), keycodec.CollectionBounds(c.Meta.ObjectID)); err != nil {
		return err
	}
	if err := deleteAllKeys(tx.Bucket(c.primBkt)); err != nil {
		return err
	}
	for _, h := range c.indexes.Ordered() {
		bkt := tx.Bucket(h.BucketName)
		if bkt == nil {
			continue
		}
		if err := deleteRange(bkt, keycodec.IndexBounds(c.Meta.ObjectID, h.Def.ID)); err != nil {
			return err
		}
	}
	for _, h := range c.indexes.Ordered() {
		h.AfterTruncate(seq)
	}
	c.colMeta.SetNumberDocuments(0)
	log.WithComponent("collection").Info().Str("collection", c.Meta.Name).Msg("truncate: range-delete path")
	return nil
}

// truncateIterative opens its own bolt write transaction, walks every
// document key in range, and removes rows one at a time, firing a real
// intermediate commit (via the txn layer's onIntermediateCommit hook)
// every defaultIntermediateCommitCount rows.
func (c *Collection) truncateIterative(ctx context.Context) error {
	tx, err := c.db.Begin(true)
	if err != nil {
		return err
	}

	bounds := keycodec.CollectionBounds(c.Meta.ObjectID)
	var keysToDelete [][]byte
	cur := tx.Bucket(c.bodyBkt).Cursor()
	for k, _ := cur.Seek(bounds.Start); k != nil && bounds.Contains(k); k, _ = cur.Next() {
		cp := make([]byte, len(k))
		copy(cp, k)
		keysToDelete = append(keysToDelete, cp)
	}

	onIntermediateCommit := func() (*bolt.Tx, error) {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		newTx, err := c.db.Begin(true)
		if err != nil {
			return nil, err
		}
		tx = newTx
		return tx, nil
	}
	t := txn.New(ctx, tx, txn.IntermediateCommits, onIntermediateCommit)

	rows := 0
	for _, k := range keysToDelete {
		bodyBkt := t.Bolt().Bucket(c.bodyBkt)
		if err := bodyBkt.Delete(k); err != nil {
			_ = tx.Rollback()
			return err
		}
		rows++
		if err := t.AddOperation(c.Meta.ID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := deleteAllKeys(t.Bolt().Bucket(c.primBkt)); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	c.colMeta.SetNumberDocuments(0)
	log.WithComponent("collection").Info().Str("collection", c.Meta.Name).Int("rows", rows).Msg("truncate: iterative path")
	return nil
}

func deleteRange(bkt *bolt.Bucket, bounds keycodec.Bounds) error {
	cur := bkt.Cursor()
	var keys [][]byte
	for k, _ := cur.Seek(bounds.Start); k != nil && bounds.Contains(k); k, _ = cur.Next() {
		cp := make([]byte, len(k))
		copy(cp, k)
		keys = append(keys, cp)
	}
	for _, k := range keys {
		if err := bkt.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func deleteAllKeys(bkt *bolt.Bucket) error {
	cur := bkt.Cursor()
	var keys [][]byte
	for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
		cp := make([]byte, len(k))
		copy(cp, k)
		keys = append(keys, cp)
	}
	for _, k := range keys {
		if err := bkt.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

// GetAllIterator walks every document in the collection in primary-key
// storage order, calling fn for each until it returns false or the range is
// exhausted.
func (c *Collection) GetAllIterator(tx *bolt.Tx, fn func(*types.Document) bool) error {
	bounds := keycodec.CollectionBounds(c.Meta.ObjectID)
	bkt := tx.Bucket(c.bodyBkt)
	cur := bkt.Cursor()
	for k, v := cur.Seek(bounds.Start); k != nil && bounds.Contains(k); k, v = cur.Next() {
		doc, err := decodeDocument(v)
		if err != nil {
			return err
		}
		if !fn(doc) {
			break
		}
	}
	return nil
}

// GetAnyIterator returns a single arbitrary document (the first in storage
// order) without a full scan.
func (c *Collection) GetAnyIterator(tx *bolt.Tx) (*types.Document, error) {
	bounds := keycodec.CollectionBounds(c.Meta.ObjectID)
	bkt := tx.Bucket(c.bodyBkt)
	cur := bkt.Cursor()
	k, v := cur.Seek(bounds.Start)
	if k == nil || !bounds.Contains(k) {
		return nil, &ErrNotFound{Key: "<any>"}
	}
	return decodeDocument(v)
}

// ColMeta exposes the collection's meta counters.
func (c *Collection) ColMeta() *colmeta.Meta { return c.colMeta }

// Indexes exposes the collection's index registry.
func (c *Collection) Indexes() *index.Registry { return c.indexes }

var keyCounter uint64
var keyCounterMu sync.Mutex

// generateKey produces a short, storage-order-independent document key.
// Real deployments would use a cluster-wide allocator; this process-local
// counter is sufficient for the core's own key-generation contract.
func generateKey() string {
	keyCounterMu.Lock()
	keyCounter++
	n := keyCounter
	keyCounterMu.Unlock()
	return fmt.Sprintf("%d%d", time.Now().UnixNano(), n)
}

var revCounter uint64
var revCounterMu sync.Mutex

func generateRevision() uint64 {
	revCounterMu.Lock()
	defer revCounterMu.Unlock()
	revCounter++
	return uint64(time.Now().UnixNano())<<20 | (revCounter & 0xFFFFF)
}
