package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := t.TempDir() + "/test.db"
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	db := openTestDB(t)
	s := NewServer(db, NewRegistry())
	ts := httptest.NewServer(s.http.Handler)
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var reader *bytes.Buffer
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(b)
	} else {
		reader = bytes.NewBuffer(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestCreateAndListCollection(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/_api/collection", map[string]any{"name": "orders"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created map[string]any
	decodeBody(t, resp, &created)
	assert.Equal(t, "orders", created["Name"])

	resp = doJSON(t, http.MethodGet, ts.URL+"/_api/collection", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed map[string]any
	decodeBody(t, resp, &listed)
	results, ok := listed["result"].([]any)
	require.True(t, ok)
	assert.Len(t, results, 1)
}

func TestCreateCollectionRejectsDuplicateName(t *testing.T) {
	_, ts := newTestServer(t)

	resp := doJSON(t, http.MethodPost, ts.URL+"/_api/collection", map[string]any{"name": "orders"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, ts.URL+"/_api/collection", map[string]any{"name": "orders"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestGetCollectionItemSubResources(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/_api/collection", map[string]any{"name": "orders"})
	resp.Body.Close()

	for _, sub := range []string{"properties", "count", "revision", "checksum", "figures", "shards"} {
		resp := doJSON(t, http.MethodGet, ts.URL+"/_api/collection/orders/"+sub, nil)
		assert.Equalf(t, http.StatusOK, resp.StatusCode, "sub=%s", sub)
		resp.Body.Close()
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/_api/collection/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestPutCollectionActions(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/_api/collection", map[string]any{"name": "orders"})
	resp.Body.Close()

	for _, action := range []string{"load", "unload", "truncate", "compact", "responsibleShard", "loadIndexesIntoMemory"} {
		resp := doJSON(t, http.MethodPut, ts.URL+"/_api/collection/orders/"+action, map[string]any{})
		assert.Equalf(t, http.StatusOK, resp.StatusCode, "action=%s", action)
		resp.Body.Close()
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/_api/collection/orders/rename", map[string]any{"name": "renamed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/_api/collection/renamed", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestDeleteCollection(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/_api/collection", map[string]any{"name": "orders"})
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, ts.URL+"/_api/collection/orders", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodGet, ts.URL+"/_api/collection/orders", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestHoldReadLockLifecycle(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/_api/collection", map[string]any{"name": "orders"})
	resp.Body.Close()

	resp = doJSON(t, http.MethodPost, ts.URL+"/_api/replication/holdReadLockCollection", map[string]any{"collection": "orders", "ttl": 10})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var locked holdReadLockResponse
	decodeBody(t, resp, &locked)
	require.NotEmpty(t, locked.ID)

	resp = doJSON(t, http.MethodPut, ts.URL+"/_api/replication/holdReadLockCollection", map[string]any{"id": locked.ID, "ttl": 20})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, ts.URL+"/_api/replication/holdReadLockCollection", map[string]any{"id": locked.ID})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestAddFollowerRejectsChecksumMismatch(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/_api/collection", map[string]any{"name": "orders"})
	resp.Body.Close()

	resp = doJSON(t, http.MethodPut, ts.URL+"/_api/replication/addFollower", map[string]any{
		"followerId": "dbserver2",
		"shard":      "orders",
		"checksum":   5,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestAddFollowerAcceptsMatchingChecksum(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, http.MethodPost, ts.URL+"/_api/collection", map[string]any{"name": "orders"})
	resp.Body.Close()

	resp = doJSON(t, http.MethodPut, ts.URL+"/_api/replication/addFollower", map[string]any{
		"followerId": "dbserver2",
		"shard":      "orders",
		"checksum":   0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, http.MethodDelete, ts.URL+"/_api/replication/removeFollower", map[string]any{
		"followerId": "dbserver2",
		"shard":      "orders",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestReleaseBarrierNotFound(t *testing.T) {
	_, ts := newTestServer(t)
	resp := doJSON(t, http.MethodDelete, ts.URL+"/_api/replication/barrier/unknown-id", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}
