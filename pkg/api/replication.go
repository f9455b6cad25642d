package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// replicationState tracks the leader-side bookkeeping a synchronizing
// follower drives through the shard-sync REST surface: outstanding read
// locks, barriers, and the follower set per shard. It is intentionally
// in-memory — a leader restart drops all in-flight synchronizations, which
// is also true of the protocol this mirrors (a follower simply restarts
// synchronize-shard against the new leader incarnation).
type replicationState struct {
	mu        sync.Mutex
	locks     map[string]lockEntry   // lockID -> entry
	barriers  map[string]string      // barrierID -> shard
	followers map[string][]string    // shard -> follower server ids
}

type lockEntry struct {
	shard   string
	expires time.Time
	soft    bool
}

func newReplicationState() *replicationState {
	return &replicationState{
		locks:     make(map[string]lockEntry),
		barriers:  make(map[string]string),
		followers: make(map[string][]string),
	}
}

type holdReadLockRequest struct {
	Collection     string `json:"collection"`
	TTL            int64  `json:"ttl"` // seconds
	DoSoftLockOnly bool   `json:"doSoftLockOnly"`
}

type holdReadLockResponse struct {
	ID string `json:"id"`
}

// handleHoldReadLock serves POST (acquire), PUT (extend), and DELETE
// (release) on /_api/replication/holdReadLockCollection.
func (s *Server) handleHoldReadLock(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req holdReadLockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Collection == "" {
			writeError(w, KindBadParameter, 600, "collection is required")
			return
		}
		if _, ok := s.registry.Get(req.Collection); !ok {
			writeError(w, KindNotFound, 1203, "collection not found")
			return
		}
		ttl := time.Duration(req.TTL) * time.Second
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		id := uuid.NewString()
		s.repl.mu.Lock()
		s.repl.locks[id] = lockEntry{shard: req.Collection, expires: time.Now().Add(ttl), soft: req.DoSoftLockOnly}
		s.repl.mu.Unlock()
		writeJSON(w, http.StatusOK, holdReadLockResponse{ID: id})
	case http.MethodPut:
		var req struct {
			ID  string `json:"id"`
			TTL int64  `json:"ttl"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
			writeError(w, KindBadParameter, 600, "id is required")
			return
		}
		s.repl.mu.Lock()
		entry, ok := s.repl.locks[req.ID]
		if ok {
			ttl := time.Duration(req.TTL) * time.Second
			if ttl <= 0 {
				ttl = 30 * time.Second
			}
			entry.expires = time.Now().Add(ttl)
			s.repl.locks[req.ID] = entry
		}
		s.repl.mu.Unlock()
		if !ok {
			writeError(w, KindNotFound, 1203, "lock not found")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"result": true})
	case http.MethodDelete:
		var req struct {
			ID string `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		s.repl.mu.Lock()
		delete(s.repl.locks, req.ID)
		s.repl.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"result": true})
	default:
		writeError(w, KindBadParameter, 0, "method not allowed")
	}
}

type addFollowerRequest struct {
	Follower   string `json:"followerId"`
	Shard      string `json:"shard"`
	Checksum   int64  `json:"checksum"`
	SyncerID   string `json:"syncerId"`
	ReadLockID string `json:"readLockId"`
}

// handleAddFollower serves PUT /_api/replication/addFollower: the leader
// verifies the follower's reported document count against its own before
// admitting it.
func (s *Server) handleAddFollower(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		writeError(w, KindBadParameter, 0, "method not allowed")
		return
	}
	var req addFollowerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Follower == "" || req.Shard == "" {
		writeError(w, KindBadParameter, 600, "followerId and shard are required")
		return
	}
	col, ok := s.registry.Get(req.Shard)
	if !ok {
		writeError(w, KindNotFound, 1203, "collection not found")
		return
	}
	if req.ReadLockID != "" {
		s.repl.mu.Lock()
		_, held := s.repl.locks[req.ReadLockID]
		s.repl.mu.Unlock()
		if !held {
			writeError(w, KindBadParameter, 1447, "read lock not held")
			return
		}
	}
	if leaderCount := col.ColMeta().NumberDocuments(); leaderCount != req.Checksum {
		writeError(w, KindConflict, 1448, "follower checksum does not match leader document count")
		return
	}
	s.repl.mu.Lock()
	s.repl.followers[req.Shard] = appendUnique(s.repl.followers[req.Shard], req.Follower)
	s.repl.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"result": true})
}

// handleRemoveFollower serves DELETE /_api/replication/removeFollower.
func (s *Server) handleRemoveFollower(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, KindBadParameter, 0, "method not allowed")
		return
	}
	var req struct {
		Follower string `json:"followerId"`
		Shard    string `json:"shard"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Follower == "" || req.Shard == "" {
		writeError(w, KindBadParameter, 600, "followerId and shard are required")
		return
	}
	s.repl.mu.Lock()
	s.repl.followers[req.Shard] = removeString(s.repl.followers[req.Shard], req.Follower)
	s.repl.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"result": true})
}

// handleReleaseBarrier serves DELETE /_api/replication/barrier/{id}.
func (s *Server) handleReleaseBarrier(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, KindBadParameter, 0, "method not allowed")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/_api/replication/barrier/")
	if id == "" {
		writeError(w, KindBadParameter, 600, "barrier id is required")
		return
	}
	s.repl.mu.Lock()
	_, ok := s.repl.barriers[id]
	delete(s.repl.barriers, id)
	s.repl.mu.Unlock()
	if !ok {
		writeError(w, KindNotFound, 1203, "barrier not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": true})
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}

func removeString(list []string, v string) []string {
	out := list[:0]
	for _, e := range list {
		if e != v {
			out = append(out, e)
		}
	}
	return out
}
