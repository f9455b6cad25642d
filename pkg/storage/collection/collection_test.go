package collection

import (
	"context"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/nexusdb/pkg/storage/cache"
	"github.com/cuemby/nexusdb/pkg/types"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := t.TempDir() + "/test.db"
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testMeta() *types.Collection {
	return &types.Collection{
		DatabaseID: "db1",
		ID:         1,
		Name:       "orders",
		ObjectID:   42,
	}
}

func TestInsertAndRead(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), cache.New(64))
	require.NoError(t, err)

	var inserted *types.Document
	err = db.Update(func(tx *bolt.Tx) error {
		var err error
		inserted, err = col.Insert(tx, &types.Document{Key: "a", Body: map[string]any{"x": 1.0}}, InsertOptions{})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "a", inserted.Key)
	assert.NotZero(t, inserted.Rev)

	var read *types.Document
	err = db.View(func(tx *bolt.Tx) error {
		var err error
		read, err = col.Read(tx, "a")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, inserted.Rev, read.Rev)
	assert.Equal(t, 1.0, read.Body["x"])

	assert.EqualValues(t, 1, col.ColMeta().NumberDocuments())
}

func TestInsertOverwriteRejectsDuplicateKey(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := col.Insert(tx, &types.Document{Key: "dup", Body: map[string]any{}}, InsertOptions{Overwrite: true})
		return err
	})
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := col.Insert(tx, &types.Document{Key: "dup", Body: map[string]any{}}, InsertOptions{Overwrite: true})
		return err
	})
	require.Error(t, err)
	var conflict *ErrConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestReadMissingKeyReturnsNotFound(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)

	err = db.View(func(tx *bolt.Tx) error {
		_, err := col.Read(tx, "missing")
		return err
	})
	var notFound *ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestUpdateMergesAttributesAndBumpsRevision(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)

	var original *types.Document
	err = db.Update(func(tx *bolt.Tx) error {
		var err error
		original, err = col.Insert(tx, &types.Document{Key: "k", Body: map[string]any{"a": 1.0, "b": 2.0}}, InsertOptions{})
		return err
	})
	require.NoError(t, err)

	var updated *types.Document
	err = db.Update(func(tx *bolt.Tx) error {
		var err error
		updated, err = col.Update(tx, "k", map[string]any{"b": 3.0, "c": 4.0}, 0, true)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, updated.Body["a"])
	assert.Equal(t, 3.0, updated.Body["b"])
	assert.Equal(t, 4.0, updated.Body["c"])
	assert.NotEqual(t, original.Rev, updated.Rev)

	var read *types.Document
	err = db.View(func(tx *bolt.Tx) error {
		var err error
		read, err = col.Read(tx, "k")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, updated.Rev, read.Rev)
}

func TestUpdateRevisionPreconditionFailure(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := col.Insert(tx, &types.Document{Key: "k", Body: map[string]any{}}, InsertOptions{})
		return err
	})
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := col.Update(tx, "k", map[string]any{"x": 1.0}, 999999, false)
		return err
	})
	var conflict *ErrConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestReplaceDiscardsOldBody(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := col.Insert(tx, &types.Document{Key: "k", Body: map[string]any{"a": 1.0}}, InsertOptions{})
		return err
	})
	require.NoError(t, err)

	var replaced *types.Document
	err = db.Update(func(tx *bolt.Tx) error {
		var err error
		replaced, err = col.Replace(tx, "k", map[string]any{"z": 9.0}, 0, true)
		return err
	})
	require.NoError(t, err)
	_, hasA := replaced.Body["a"]
	assert.False(t, hasA)
	assert.Equal(t, 9.0, replaced.Body["z"])
}

func TestRemoveDeletesKeyAndDecrementsCount(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := col.Insert(tx, &types.Document{Key: "k", Body: map[string]any{}}, InsertOptions{})
		return err
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, col.ColMeta().NumberDocuments())

	err = db.Update(func(tx *bolt.Tx) error {
		return col.Remove(tx, "k", 0, true)
	})
	require.NoError(t, err)
	assert.EqualValues(t, 0, col.ColMeta().NumberDocuments())

	err = db.View(func(tx *bolt.Tx) error {
		_, err := col.Read(tx, "k")
		return err
	})
	var notFound *ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestRemoveMissingKeyReturnsNotFound(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		return col.Remove(tx, "missing", 0, true)
	})
	var notFound *ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func insertN(t *testing.T, db *bolt.DB, col *Collection, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		err := db.Update(func(tx *bolt.Tx) error {
			_, err := col.Insert(tx, &types.Document{Body: map[string]any{"i": float64(i)}}, InsertOptions{})
			return err
		})
		require.NoError(t, err)
	}
}

func TestTruncateIterativeRemovesAllDocuments(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)
	insertN(t, db, col, 25)
	assert.EqualValues(t, 25, col.ColMeta().NumberDocuments())

	strategy, err := col.Truncate(context.Background(), true, true)
	require.NoError(t, err)
	assert.Equal(t, TruncateIterative, strategy)
	assert.EqualValues(t, 0, col.ColMeta().NumberDocuments())

	var seen int
	err = db.View(func(tx *bolt.Tx) error {
		return col.GetAllIterator(tx, func(*types.Document) bool {
			seen++
			return true
		})
	})
	require.NoError(t, err)
	assert.Zero(t, seen)
}

func TestTruncateTakesRangeDeletePathAboveThreshold(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)
	col.ColMeta().SetNumberDocuments(rangeDeleteThreshold)

	strategy, err := col.Truncate(context.Background(), true, true)
	require.NoError(t, err)
	assert.Equal(t, TruncateRangeDelete, strategy)
}

func TestGetAllIteratorStopsWhenCallbackReturnsFalse(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)
	insertN(t, db, col, 10)

	var seen int
	err = db.View(func(tx *bolt.Tx) error {
		return col.GetAllIterator(tx, func(*types.Document) bool {
			seen++
			return seen < 3
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 3, seen)
}

func TestGetAnyIteratorReturnsErrNotFoundWhenEmpty(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)

	err = db.View(func(tx *bolt.Tx) error {
		_, err := col.GetAnyIterator(tx)
		return err
	})
	var notFound *ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestLookupRevisionFindsDocumentByRevision(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)

	var inserted *types.Document
	err = db.Update(func(tx *bolt.Tx) error {
		var err error
		inserted, err = col.Insert(tx, &types.Document{Key: "k", Body: map[string]any{}}, InsertOptions{})
		return err
	})
	require.NoError(t, err)

	var found *types.Document
	err = db.View(func(tx *bolt.Tx) error {
		var err error
		found, err = col.LookupRevision(tx, inserted.Rev)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "k", found.Key)
}

func TestInsertFansOutToSecondaryIndexAndRemoveReversesIt(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)

	def := types.IndexDefinition{ID: 7, Name: "by_email", Type: types.IndexHash, Fields: []string{"email"}}
	h, created, err := col.CreateIndex(context.Background(), def, false)
	require.NoError(t, err)
	assert.True(t, created)

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := col.Insert(tx, &types.Document{Key: "a", Body: map[string]any{"email": "a@example.com"}}, InsertOptions{})
		return err
	})
	require.NoError(t, err)

	var entries int
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(h.BucketName)
		cur := bkt.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			entries++
		}
		return nil
	}))
	assert.Equal(t, 1, entries, "insert must derive and write a real secondary-index entry")

	err = db.Update(func(tx *bolt.Tx) error {
		return col.Remove(tx, "a", 0, true)
	})
	require.NoError(t, err)

	entries = 0
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(h.BucketName)
		cur := bkt.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			entries++
		}
		return nil
	}))
	assert.Zero(t, entries, "remove must reverse the secondary-index entry it owned")
}

func TestUpdateMovesSecondaryIndexEntryToNewValue(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)

	def := types.IndexDefinition{ID: 7, Name: "by_email", Type: types.IndexHash, Fields: []string{"email"}}
	h, _, err := col.CreateIndex(context.Background(), def, false)
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := col.Insert(tx, &types.Document{Key: "a", Body: map[string]any{"email": "old@example.com"}}, InsertOptions{})
		return err
	})
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := col.Update(tx, "a", map[string]any{"email": "new@example.com"}, 0, true)
		return err
	})
	require.NoError(t, err)

	var entries int
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(h.BucketName)
		cur := bkt.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			entries++
		}
		return nil
	}))
	assert.Equal(t, 1, entries, "update must reverse the old value's entry and insert exactly one new one")
}

func TestCreateIndexRejectsIncompleteEdgeIndexSet(t *testing.T) {
	db := openTestDB(t)
	meta := testMeta()
	meta.Type = types.CollectionTypeEdge
	col, err := Open(db, meta, nil)
	require.NoError(t, err)

	_, _, err = col.CreateIndex(context.Background(), types.IndexDefinition{ID: 1, Name: "primary", Type: types.IndexPrimary}, false)
	require.NoError(t, err)
	_, _, err = col.CreateIndex(context.Background(), types.IndexDefinition{ID: 2, Name: "edge_from", Type: types.IndexEdge, Fields: []string{"_from"}}, false)
	assert.Error(t, err, "an edge collection settling at exactly two indexes is missing its second edge direction")
}

func TestTruncateRangeDeleteClearsSecondaryIndexes(t *testing.T) {
	db := openTestDB(t)
	col, err := Open(db, testMeta(), nil)
	require.NoError(t, err)

	def := types.IndexDefinition{ID: 7, Name: "by_email", Type: types.IndexHash, Fields: []string{"email"}}
	h, _, err := col.CreateIndex(context.Background(), def, false)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		err = db.Update(func(tx *bolt.Tx) error {
			_, err := col.Insert(tx, &types.Document{Body: map[string]any{"email": "x"}}, InsertOptions{})
			return err
		})
		require.NoError(t, err)
	}
	col.ColMeta().SetNumberDocuments(rangeDeleteThreshold)

	strategy, err := col.Truncate(context.Background(), true, true)
	require.NoError(t, err)
	assert.Equal(t, TruncateRangeDelete, strategy)

	var entries int
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(h.BucketName)
		cur := bkt.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			entries++
		}
		return nil
	}))
	assert.Zero(t, entries, "range-delete truncate must clear every secondary index's range too")
}

func TestSeparateCollectionsDoNotShareKeySpace(t *testing.T) {
	db := openTestDB(t)
	metaA := testMeta()
	metaB := testMeta()
	metaB.ObjectID = 43
	metaB.Name = "shipments"

	colA, err := Open(db, metaA, nil)
	require.NoError(t, err)
	colB, err := Open(db, metaB, nil)
	require.NoError(t, err)

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := colA.Insert(tx, &types.Document{Key: "shared", Body: map[string]any{"col": "a"}}, InsertOptions{})
		return err
	})
	require.NoError(t, err)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := colB.Insert(tx, &types.Document{Key: "shared", Body: map[string]any{"col": "b"}}, InsertOptions{})
		return err
	})
	require.NoError(t, err)

	var readA, readB *types.Document
	err = db.View(func(tx *bolt.Tx) error {
		var err error
		readA, err = colA.Read(tx, "shared")
		if err != nil {
			return err
		}
		readB, err = colB.Read(tx, "shared")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "a", readA.Body["col"])
	assert.Equal(t, "b", readB.Body["col"])
}
