// Package api implements the collection-management and shard-synchronization
// REST surfaces as plain JSON-over-HTTP, distinct from the gRPC cluster
// wire protocol (that one lives in pkg/query/cluster).
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/nexusdb/pkg/log"
	"github.com/cuemby/nexusdb/pkg/metrics"
	"github.com/cuemby/nexusdb/pkg/storage/collection"
	"github.com/cuemby/nexusdb/pkg/storage/index"
	"github.com/cuemby/nexusdb/pkg/storage/shardsync"
	"github.com/cuemby/nexusdb/pkg/types"
)

// Registry is the server's in-memory directory of open collections, keyed
// by name within one database. Collection open/close/rename are
// synchronized here; storage-level state lives in each *collection.Collection.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]*collection.Collection
}

// NewRegistry creates an empty collection directory.
func NewRegistry() *Registry {
	return &Registry{collections: make(map[string]*collection.Collection)}
}

// Put registers col under its own name, overwriting any previous entry
// (used by rename).
func (r *Registry) Put(name string, col *collection.Collection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.collections[name] = col
}

// Get looks up a collection by name.
func (r *Registry) Get(name string) (*collection.Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collections[name]
	return c, ok
}

// Delete removes name from the directory.
func (r *Registry) Delete(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.collections, name)
}

// List returns every registered collection's meta, for GET /_api/collection.
func (r *Registry) List() []*types.Collection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Collection, 0, len(r.collections))
	for _, c := range r.collections {
		out = append(out, c.Meta)
	}
	return out
}

// CollectionStats implements metrics.StatsProvider: a point-in-time
// snapshot of every registered collection's document/index counters, for
// the background metrics collector.
func (r *Registry) CollectionStats() []metrics.CollectionStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]metrics.CollectionStats, 0, len(r.collections))
	for _, c := range r.collections {
		ready, building := 0, 0
		for _, h := range c.Indexes().Ordered() {
			if h.State == index.StateReady {
				ready++
			} else {
				building++
			}
		}
		out = append(out, metrics.CollectionStats{
			Database:        c.Meta.DatabaseID,
			Name:            c.Meta.Name,
			Documents:       c.ColMeta().NumberDocuments(),
			Blockers:        c.ColMeta().BlockerCount(),
			IndexesReady:    ready,
			IndexesBuilding: building,
		})
	}
	return out
}

// Leader is the shard-sync client surface a follower-facing REST handler
// needs to answer a peer's replication requests against.
type Leader interface {
	shardsync.Leader
}

// Server is the collection-management and shard-sync REST server: a
// single long-lived http.Server behind a NewServer/Start(addr)/Stop()
// lifecycle.
type Server struct {
	db       *bolt.DB
	registry *Registry
	repl     *replicationState
	http     *http.Server
}

// NewServer creates a collection-management/shard-sync REST server backed
// by db and registry.
func NewServer(db *bolt.DB, registry *Registry) *Server {
	s := &Server{db: db, registry: registry, repl: newReplicationState()}
	mux := http.NewServeMux()
	s.registerRoutes(mux)
	s.http = &http.Server{Handler: mux}
	return s
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/_api/collection", s.handleCollectionCollection)
	mux.HandleFunc("/_api/collection/", s.handleCollectionItem)
	mux.HandleFunc("/_api/replication/holdReadLockCollection", s.handleHoldReadLock)
	mux.HandleFunc("/_api/replication/addFollower", s.handleAddFollower)
	mux.HandleFunc("/_api/replication/removeFollower", s.handleRemoveFollower)
	mux.HandleFunc("/_api/replication/barrier/", s.handleReleaseBarrier)
}

// Handler returns the server's http.Handler, for embedding in a test
// server or an external listener the caller manages itself.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start begins serving on addr, blocking until Stop is called or the
// listener fails.
func (s *Server) Start(addr string) error {
	s.http.Addr = addr
	log.WithComponent("api").Info().Str("addr", addr).Msg("REST server starting")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api: serve failed: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down within a bounded timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}
