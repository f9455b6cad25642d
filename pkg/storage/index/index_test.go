package index

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/nexusdb/pkg/types"
)

type fakeBackend struct {
	puts    map[string][]byte
	deletes []string
	failOn  string
	docs    map[uint64][]byte
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{puts: make(map[string][]byte)}
}

func (f *fakeBackend) Put(key, value []byte) error {
	if f.failOn != "" && string(key) == f.failOn {
		return assertErr{}
	}
	f.puts[string(key)] = value
	return nil
}

func (f *fakeBackend) Delete(key []byte) error {
	f.deletes = append(f.deletes, string(key))
	delete(f.puts, string(key))
	return nil
}

func (f *fakeBackend) ScanAll(fn func(localID uint64, body []byte) error) error {
	for localID, body := range f.docs {
		if err := fn(localID, body); err != nil {
			return err
		}
	}
	return nil
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "index.db")
	db, err := bolt.Open(path, 0o600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCreateIndexIsIdempotentOnMatchingDefinition(t *testing.T) {
	r := New()
	def := types.IndexDefinition{ID: 1, Name: "by_email", Type: types.IndexHash, Fields: []string{"email"}}
	h1, created1, err := r.CreateIndex(context.Background(), 42, []byte("idx:1"), def, newFakeBackend(), false)
	require.NoError(t, err)
	assert.True(t, created1)

	h2, created2, err := r.CreateIndex(context.Background(), 42, []byte("idx:1"), def, newFakeBackend(), false)
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Same(t, h1, h2)
}

func TestCreateIndexRejectsSecondTTLIndex(t *testing.T) {
	r := New()
	def1 := types.IndexDefinition{ID: 1, Name: "ttl1", Type: types.IndexTTL, Fields: []string{"expireAt"}}
	_, _, err := r.CreateIndex(context.Background(), 42, []byte("idx:1"), def1, newFakeBackend(), false)
	require.NoError(t, err)

	def2 := types.IndexDefinition{ID: 2, Name: "ttl2", Type: types.IndexTTL, Fields: []string{"otherField"}}
	_, _, err = r.CreateIndex(context.Background(), 42, []byte("idx:2"), def2, newFakeBackend(), false)
	assert.Error(t, err)
}

func TestFillPopulatesIndexForExistingDocuments(t *testing.T) {
	r := New()
	backend := newFakeBackend()
	doc := types.Document{Key: "alice", Body: map[string]any{"email": "alice@example.com"}}
	body, err := json.Marshal(doc)
	require.NoError(t, err)
	backend.docs = map[uint64][]byte{7: body}

	def := types.IndexDefinition{ID: 2, Name: "by_email", Type: types.IndexHash, Fields: []string{"email"}}
	_, created, err := r.CreateIndex(context.Background(), 42, []byte("idx:2"), def, backend, false)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, backend.puts, 1, "fill must derive and write a real index entry for the pre-existing document")
}

func TestFanOutInsertReversesOnFailureExceptPrimary(t *testing.T) {
	db := openTestDB(t)
	r := New()
	primaryBucket := []byte("primary_idx")
	secondaryBucket := []byte("secondary_idx")
	require.NoError(t, db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(primaryBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(secondaryBucket)
		return err
	}))

	primary, _, err := r.CreateIndex(context.Background(), 42, primaryBucket, types.IndexDefinition{ID: 1, Name: "primary", Type: types.IndexPrimary}, newFakeBackend(), false)
	require.NoError(t, err)
	secondary, _, err := r.CreateIndex(context.Background(), 42, secondaryBucket, types.IndexDefinition{ID: 2, Name: "by_x", Type: types.IndexHash, Fields: []string{"x"}}, newFakeBackend(), false)
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		ops := map[*Handle]WriteOp{
			primary:   {Key: []byte("p1"), Value: []byte("v")},
			secondary: {Key: []byte("will-fail"), Value: []byte("v")},
		}
		return r.FanOutInsert(tx, ops)
	})
	require.NoError(t, err)

	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		assert.NotNil(t, tx.Bucket(primaryBucket).Get([]byte("p1")), "primary's write lands")
		assert.NotNil(t, tx.Bucket(secondaryBucket).Get([]byte("will-fail")), "secondary's write lands")
		return nil
	}))

	// A second fan-out where the secondary index's bucket is missing
	// (simulating a write failure inside Insert) must reverse the
	// already-applied primary-ordered writes preceding it, except for
	// indexes where NeedsReversal is false (primary).
	badSecondary := &Handle{Def: types.IndexDefinition{ID: 3, Name: "by_y", Type: types.IndexHash, Fields: []string{"y"}}, ObjectID: 42, BucketName: []byte("missing_bucket")}
	r2 := New()
	r2.handles = []*Handle{primary, secondary, badSecondary}
	err = db.Update(func(tx *bolt.Tx) error {
		ops := map[*Handle]WriteOp{
			primary:      {Key: []byte("p2"), Value: []byte("v")},
			secondary:    {Key: []byte("s2"), Value: []byte("v")},
			badSecondary: {Key: []byte("x"), Value: []byte("v")},
		}
		fanErr := r2.FanOutInsert(tx, ops)
		assert.NotNil(t, tx.Bucket(primaryBucket).Get([]byte("p2")), "primary needs no reversal, so its write stays")
		assert.Nil(t, tx.Bucket(secondaryBucket).Get([]byte("s2")), "secondary's write is reversed")
		return fanErr
	})
	assert.Error(t, err)
}

func TestValidateIndexOrderRejectsIncompleteEdgeIndexSet(t *testing.T) {
	r := New()
	_, _, err := r.CreateIndex(context.Background(), 1, []byte("b1"), types.IndexDefinition{ID: 1, Name: "primary", Type: types.IndexPrimary}, newFakeBackend(), false)
	require.NoError(t, err)
	assert.NoError(t, r.ValidateIndexOrder(true), "a single index is incomplete but not yet the flagged two-index case")

	_, _, err = r.CreateIndex(context.Background(), 1, []byte("b2"), types.IndexDefinition{ID: 2, Name: "edge_from", Type: types.IndexEdge, Fields: []string{"_from"}}, newFakeBackend(), false)
	require.NoError(t, err)
	assert.Error(t, r.ValidateIndexOrder(true), "exactly two indexes on an edge collection means the second edge direction is missing")

	assert.NoError(t, r.ValidateIndexOrder(false), "non-edge collections have no third-index requirement")
}

func TestDropIndexRemovesFromRegistry(t *testing.T) {
	r := New()
	h, _, err := r.CreateIndex(context.Background(), 1, []byte("b1"), types.IndexDefinition{ID: 1, Name: "by_x", Type: types.IndexHash, Fields: []string{"x"}}, newFakeBackend(), false)
	require.NoError(t, err)

	assert.True(t, r.DropIndex(h.Def.ID))
	assert.Len(t, r.Ordered(), 0)
	assert.False(t, r.DropIndex(999))
}
