// Package index implements the index registry: an ordered set of index
// handles (primary first, then edge, then others), online index builds
// (foreground or background), and the reverse-on-failure fan-out policy
// physical-collection writes rely on.
package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/nexusdb/pkg/log"
	"github.com/cuemby/nexusdb/pkg/metrics"
	"github.com/cuemby/nexusdb/pkg/storage/keycodec"
	"github.com/cuemby/nexusdb/pkg/types"
)

// State is an index's build lifecycle.
type State int

const (
	StateReady State = iota
	StateBuilding
)

// WriteOp is the (key, value) pair an index fan-out writes or reverses.
type WriteOp struct {
	Key   []byte
	Value []byte
}

// Backend is the storage-facing surface a bulk index build needs: a
// self-managed put/delete plus a full-scan, used only while filling an
// index against documents that already existed at CreateIndex time. Live,
// per-document fan-out bypasses Backend entirely and writes directly
// against the caller's ambient bbolt transaction (see Handle.BucketName),
// since a second self-managed transaction opened from inside the write
// path's already-open transaction would deadlock bbolt's single-writer
// lock.
type Backend interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	ScanAll(fn func(localID uint64, body []byte) error) error
}

// Handle is one index's live state within the registry.
type Handle struct {
	Def   types.IndexDefinition
	State State

	// ObjectID is the owning collection's namespace prefix and BucketName
	// is the bolt bucket this index's entries live in; both are required
	// for live fan-out to derive keys and locate its bucket inside the
	// ambient transaction.
	ObjectID   uint64
	BucketName []byte

	mu      sync.RWMutex
	backend Backend
}

// NeedsReversal reports whether a write to this index must be explicitly
// undone on fan-out failure. A plain idempotent put (e.g. a fixed-prefix
// primary entry) does not.
func (h *Handle) NeedsReversal() bool {
	return h.Def.Type != types.IndexPrimary
}

// Insert applies op directly against this index's bucket within tx, the
// ambient transaction the triggering document write is already part of.
func (h *Handle) Insert(tx *bolt.Tx, op WriteOp) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	bkt := tx.Bucket(h.BucketName)
	if bkt == nil {
		return fmt.Errorf("index: bucket %q missing for index %q", h.BucketName, h.Def.Name)
	}
	return bkt.Put(op.Key, op.Value)
}

// Reverse undoes a previously applied Insert within the same ambient tx.
func (h *Handle) Reverse(tx *bolt.Tx, op WriteOp) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	bkt := tx.Bucket(h.BucketName)
	if bkt == nil {
		return fmt.Errorf("index: bucket %q missing for index %q", h.BucketName, h.Def.Name)
	}
	return bkt.Delete(op.Key)
}

// AfterTruncate is called once per index after a range-delete truncate
// commits, so index-side caches or external links can flush.
func (h *Handle) AfterTruncate(seq uint64) {
	log.WithComponent("index").Debug().Uint64("seq", seq).Str("index", h.Def.Name).Msg("afterTruncate")
}

// DeriveWriteOp builds the (key, value) pair document would contribute to
// an index matching def, within the collection namespaced by objectID.
// ok is false when the document is missing one of def.Fields (sparse
// index semantics: such a document is simply not entered). The suffix is
// the concatenation of every indexed field's value (JSON-encoded, for a
// stable total order across mixed types) followed by the 8-byte
// big-endian localID, so non-unique indexes never collide on key.
func DeriveWriteOp(objectID uint64, def types.IndexDefinition, localID uint64, doc *types.Document) (key, value []byte, ok bool) {
	var suffix []byte
	for _, field := range def.Fields {
		v, present := doc.Get(field)
		if !present {
			if def.Sparse {
				return nil, nil, false
			}
			v = nil
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return nil, nil, false
		}
		suffix = append(suffix, encoded...)
		suffix = append(suffix, 0) // field separator
	}
	localBuf := make([]byte, 8)
	binary.BigEndian.PutUint64(localBuf, localID)
	suffix = append(suffix, localBuf...)

	key = keycodec.IndexKey(objectID, def.ID, suffix)
	value = localBuf
	return key, value, true
}

// Registry is the ordered, per-collection set of index handles. The order
// is observable: it determines write fan-out order and the reverse order
// used on failure.
type Registry struct {
	mu      sync.RWMutex // the builder reader/writer lock: writers are
	                      // index-create/drop/foreground-fill; readers are
	                      // every collection write (fan-out) and
	                      // background-compatible builders.
	handles []*Handle
}

// New creates an empty registry (no indexes yet; the caller is expected to
// createIndex a primary index immediately after).
func New() *Registry {
	return &Registry{}
}

// Ordered returns the handles in registry order: primary, then edge, then
// the rest in creation order.
func (r *Registry) Ordered() []*Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handle, len(r.handles))
	copy(out, r.handles)
	return out
}

func (r *Registry) findByDefinition(def types.IndexDefinition) *Handle {
	for _, h := range r.handles {
		if h.Def.Type == types.IndexTTL && def.Type == types.IndexTTL {
			if ttlDefEqual(h.Def, def) {
				return h
			}
			continue
		}
		if h.Def.Type == def.Type && fieldsEqual(h.Def.Fields, def.Fields) && h.Def.Unique == def.Unique && h.Def.Sparse == def.Sparse {
			return h
		}
	}
	return nil
}

func ttlDefEqual(a, b types.IndexDefinition) bool {
	return fieldsEqual(a.Fields, b.Fields) && a.ExpireAfter == b.ExpireAfter
}

func fieldsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (r *Registry) idOrNameCollides(def types.IndexDefinition) error {
	for _, h := range r.handles {
		if h.Def.ID == def.ID || (def.Name != "" && h.Def.Name == def.Name) {
			return fmt.Errorf("index: id or name collides with existing index %q", h.Def.Name)
		}
	}
	return nil
}

// CreateIndex implements the full createIndex sequence: existing-definition
// short-circuit (with TTL special-cased to require an identical match),
// collision rejection, foreground-or-background fill, and registry
// insertion in the declared order. objectID and bucketName bind the new
// handle to the collection's key namespace and bolt bucket for live
// fan-out; newBackend is used only to run the bulk fill against documents
// that predate this index.
func (r *Registry) CreateIndex(ctx context.Context, objectID uint64, bucketName []byte, def types.IndexDefinition, newBackend Backend, inBackground bool) (handle *Handle, created bool, err error) {
	r.mu.Lock() // acquire as a writer for the existence-check + registration
	if def.Type == types.IndexTTL {
		for _, h := range r.handles {
			if h.Def.Type == types.IndexTTL {
				r.mu.Unlock()
				if ttlDefEqual(h.Def, def) {
					return h, false, nil
				}
				return nil, false, fmt.Errorf("index: collection already has a ttl index")
			}
		}
	} else if existing := r.findByDefinition(def); existing != nil {
		r.mu.Unlock()
		return existing, false, nil
	}
	if err := r.idOrNameCollides(def); err != nil {
		r.mu.Unlock()
		return nil, false, err
	}

	h := &Handle{Def: def, ObjectID: objectID, BucketName: bucketName, backend: newBackend}
	// Registry order is primary, then edge, then the rest in creation order.
	rank := map[types.IndexType]int{types.IndexPrimary: -2, types.IndexEdge: -1}
	pos := len(r.handles)
	for pos > 0 && rank[r.handles[pos-1].Def.Type] > rank[def.Type] {
		pos--
	}
	r.handles = append(r.handles, nil)
	copy(r.handles[pos+1:], r.handles[pos:])
	r.handles[pos] = h
	if inBackground {
		h.State = StateBuilding
		r.mu.Unlock() // release the write-lock for the long-running fill
	}

	timer := metrics.NewTimer()
	fillErr := r.fill(ctx, h, newBackend, inBackground)
	timer.ObserveDuration(metrics.IndexBuildDuration)

	if inBackground {
		r.mu.Lock()
	}
	if fillErr != nil {
		r.removeLocked(h)
		r.mu.Unlock()
		return nil, false, fillErr
	}
	h.State = StateReady
	r.mu.Unlock()
	return h, true, nil
}

// fill iterates every existing document, decodes it, derives the index
// entry it contributes per h.Def, and writes it via backend.Put. The
// background path runs the scan under an errgroup so it can be cancelled
// cooperatively alongside live traffic; the foreground path runs inline
// while the caller already holds the write-lock, blocking all writes.
func (r *Registry) fill(ctx context.Context, h *Handle, backend Backend, inBackground bool) error {
	apply := func(localID uint64, body []byte) error {
		var doc types.Document
		if err := json.Unmarshal(body, &doc); err != nil {
			return fmt.Errorf("index: decoding document during fill: %w", err)
		}
		key, value, ok := DeriveWriteOp(h.ObjectID, h.Def, localID, &doc)
		if !ok {
			return nil // sparse index: document lacks an indexed field
		}
		return backend.Put(key, value)
	}

	if !inBackground {
		return backend.ScanAll(apply)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return backend.ScanAll(func(localID uint64, body []byte) error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			return apply(localID, body)
		})
	})
	return g.Wait()
}

func (r *Registry) removeLocked(h *Handle) {
	for i, existing := range r.handles {
		if existing == h {
			r.handles = append(r.handles[:i], r.handles[i+1:]...)
			return
		}
	}
}

// DropIndex removes an index by id, returning false if not found.
func (r *Registry) DropIndex(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, h := range r.handles {
		if h.Def.ID == id {
			r.handles = append(r.handles[:i], r.handles[i+1:]...)
			return true
		}
	}
	return false
}

// ValidateIndexOrder enforces the edge-collection invariant: an edge
// collection needs a primary index plus both edge-direction indexes
// (_from and _to). A registry caught with exactly two handles on an edge
// collection is missing the second edge-direction index and is rejected,
// rather than silently left short one required index.
func (r *Registry) ValidateIndexOrder(isEdge bool) error {
	if !isEdge {
		return nil
	}
	r.mu.RLock()
	count := len(r.handles)
	r.mu.RUnlock()
	if count == 2 {
		return fmt.Errorf("index: edge collection has %d indexes, missing its second edge-direction index", count)
	}
	return nil
}

// FanOutInsert applies ops (one per index, in registry order) against tx,
// the ambient transaction the triggering write already opened, and on
// failure at position k reverses positions k-1..0 in reverse order for
// every index whose NeedsReversal is true.
func (r *Registry) FanOutInsert(tx *bolt.Tx, ops map[*Handle]WriteOp) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	applied := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		op, ok := ops[h]
		if !ok {
			continue
		}
		if err := h.Insert(tx, op); err != nil {
			for i := len(applied) - 1; i >= 0; i-- {
				if applied[i].NeedsReversal() {
					_ = applied[i].Reverse(tx, ops[applied[i]])
				}
			}
			return fmt.Errorf("index: fan-out insert failed on %q: %w", h.Def.Name, err)
		}
		applied = append(applied, h)
	}
	return nil
}

// ReverseAll undoes every op in ops against tx, in registry order, for
// every index whose NeedsReversal is true. Used by Update/Replace/Remove
// to retract a document's old index entries.
func (r *Registry) ReverseAll(tx *bolt.Tx, ops map[*Handle]WriteOp) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.handles {
		if !h.NeedsReversal() {
			continue
		}
		op, ok := ops[h]
		if !ok {
			continue
		}
		if err := h.Reverse(tx, op); err != nil {
			return fmt.Errorf("index: reverse failed on %q: %w", h.Def.Name, err)
		}
	}
	return nil
}
