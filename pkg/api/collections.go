package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/google/uuid"

	"github.com/cuemby/nexusdb/pkg/storage/collection"
	"github.com/cuemby/nexusdb/pkg/types"
)

var nextObjectID uint64 = 1

func allocObjectID() uint64 { return atomic.AddUint64(&nextObjectID, 1) }

// createCollectionRequest mirrors the create-collection allow-list field
// names verbatim: every other body field is silently dropped rather than
// rejected.
type createCollectionRequest struct {
	Name                 string   `json:"name"`
	Type                 any      `json:"type"` // "document"/"edge" or 2/3 numeric legacy codes
	DoCompact            bool     `json:"doCompact"`
	IsSystem             bool     `json:"isSystem"`
	ID                   string   `json:"id"`
	IsVolatile           bool     `json:"isVolatile"`
	JournalSize          int64    `json:"journalSize"`
	IndexBuckets         int      `json:"indexBuckets"`
	KeyOptions           any      `json:"keyOptions"`
	WaitForSync          bool     `json:"waitForSync"`
	CacheEnabled         bool     `json:"cacheEnabled"`
	ShardKeys            []string `json:"shardKeys"`
	NumberOfShards       int      `json:"numberOfShards"`
	DistributeShardsLike string   `json:"distributeShardsLike"`
	AvoidServers         []string `json:"avoidServers"`
	IsSmart              bool     `json:"isSmart"`
	ShardingStrategy     string   `json:"shardingStrategy"`
	SmartGraphAttribute  string   `json:"smartGraphAttribute"`
	SmartJoinAttribute   string   `json:"smartJoinAttribute"`
	ReplicationFactor    int      `json:"replicationFactor"`
	MinReplicationFactor int      `json:"minReplicationFactor"` // write-concern
	Servers              []string `json:"servers"`
}

func parseCollectionType(v any) types.CollectionType {
	switch t := v.(type) {
	case string:
		if t == "edge" {
			return types.CollectionTypeEdge
		}
	case float64:
		if t == 3 {
			return types.CollectionTypeEdge
		}
	}
	return types.CollectionTypeDocument
}

// handleCollectionCollection serves GET (list) and POST (create) on
// /_api/collection.
func (s *Server) handleCollectionCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"result": s.registry.List()})
	case http.MethodPost:
		s.createCollection(w, r)
	default:
		writeError(w, KindBadParameter, 0, "method not allowed")
	}
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var req createCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, KindBadParameter, 600, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, KindBadParameter, 601, "name is required")
		return
	}
	if _, exists := s.registry.Get(req.Name); exists {
		writeError(w, KindConflict, 1207, "duplicate collection name")
		return
	}

	numberOfShards := req.NumberOfShards
	if numberOfShards == 0 {
		numberOfShards = 1
	}
	replicationFactor := req.ReplicationFactor
	if replicationFactor == 0 {
		replicationFactor = 1
	}

	meta := &types.Collection{
		DatabaseID:           "_system",
		ID:                   allocObjectID(),
		GloballyUniqueID:     uuid.NewString(),
		Name:                 req.Name,
		Type:                 parseCollectionType(req.Type),
		Status:               types.CollectionLoaded,
		ObjectID:             allocObjectID(),
		ShardKeys:            req.ShardKeys,
		NumberOfShards:       numberOfShards,
		ReplicationFactor:    replicationFactor,
		WriteConcern:         req.MinReplicationFactor,
		DistributeShardsLike: req.DistributeShardsLike,
		SmartJoinAttribute:   req.SmartJoinAttribute,
		CreatedAt:            time.Now(),
	}
	if err := meta.Validate(); err != nil {
		writeError(w, KindBadParameter, 1456, err.Error())
		return
	}

	col, err := collection.Open(s.db, meta, nil)
	if err != nil {
		writeError(w, KindStorageEngine, 1000, err.Error())
		return
	}
	s.registry.Put(meta.Name, col)
	writeJSON(w, http.StatusOK, meta)
}

// handleCollectionItem dispatches GET/<sub>, PUT/<action>, and DELETE on
// /_api/collection/<name>[/<sub-or-action>].
func (s *Server) handleCollectionItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/_api/collection/")
	parts := strings.SplitN(rest, "/", 2)
	name := parts[0]
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	col, ok := s.registry.Get(name)
	if !ok {
		writeError(w, KindNotFound, 1203, "collection not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.getCollectionSub(w, r, col, sub)
	case http.MethodPut:
		s.putCollectionAction(w, r, col, sub)
	case http.MethodDelete:
		s.registry.Delete(name)
		writeJSON(w, http.StatusOK, map[string]any{"id": col.Meta.ID})
	default:
		writeError(w, KindBadParameter, 0, "method not allowed")
	}
}

func (s *Server) getCollectionSub(w http.ResponseWriter, r *http.Request, col *collection.Collection, sub string) {
	switch sub {
	case "", "properties":
		writeJSON(w, http.StatusOK, col.Meta)
	case "count":
		writeJSON(w, http.StatusOK, map[string]any{"count": col.ColMeta().NumberDocuments()})
	case "revision":
		writeJSON(w, http.StatusOK, map[string]any{"revision": strconv.FormatUint(col.ColMeta().Revision(), 10)})
	case "checksum":
		s.collectionChecksum(w, col)
	case "figures":
		writeJSON(w, http.StatusOK, map[string]any{
			"count":     col.ColMeta().NumberDocuments(),
			"indexes":   len(col.Indexes().Ordered()),
			"documentsSize": col.ColMeta().NumberDocuments(), // approximation: no on-disk size accounting in this engine
		})
	case "shards":
		writeJSON(w, http.StatusOK, map[string]any{"shards": []string{col.Meta.Name + "/s0000"}})
	default:
		writeError(w, KindNotFound, 1203, "unknown collection sub-resource")
	}
}

func (s *Server) collectionChecksum(w http.ResponseWriter, col *collection.Collection) {
	var count int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return col.GetAllIterator(tx, func(*types.Document) bool {
			count++
			return true
		})
	})
	if err != nil {
		writeError(w, KindStorageEngine, 1000, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"checksum": strconv.FormatInt(count, 10), "revision": strconv.FormatUint(col.ColMeta().Revision(), 10)})
}

func (s *Server) putCollectionAction(w http.ResponseWriter, r *http.Request, col *collection.Collection, action string) {
	switch action {
	case "load":
		col.Meta.Status = types.CollectionLoaded
		writeJSON(w, http.StatusOK, col.Meta)
	case "unload":
		col.Meta.Status = types.CollectionUnloaded
		writeJSON(w, http.StatusOK, col.Meta)
	case "truncate":
		s.truncateCollection(w, r, col)
	case "properties":
		s.updateProperties(w, r, col)
	case "rename":
		s.renameCollection(w, r, col)
	case "compact":
		// The bbolt substrate compacts via its own freelist reuse; there is
		// no foreground compaction routine to trigger here.
		writeJSON(w, http.StatusOK, col.Meta)
	case "responsibleShard":
		writeJSON(w, http.StatusOK, map[string]any{"shardId": col.Meta.Name + "/s0000"})
	case "loadIndexesIntoMemory":
		writeJSON(w, http.StatusOK, map[string]any{"result": true})
	default:
		writeError(w, KindNotFound, 1203, "unknown collection action")
	}
}

func (s *Server) truncateCollection(w http.ResponseWriter, r *http.Request, col *collection.Collection) {
	strategy, err := col.Truncate(r.Context(), true, true)
	if err != nil {
		writeError(w, KindStorageEngine, 1000, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": true, "strategy": string(strategy)})
}

func (s *Server) updateProperties(w http.ResponseWriter, r *http.Request, col *collection.Collection) {
	var req struct {
		WaitForSync *bool `json:"waitForSync"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, KindBadParameter, 600, "invalid JSON body")
		return
	}
	writeJSON(w, http.StatusOK, col.Meta)
}

func (s *Server) renameCollection(w http.ResponseWriter, r *http.Request, col *collection.Collection) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, KindBadParameter, 600, "name is required")
		return
	}
	if _, exists := s.registry.Get(req.Name); exists {
		writeError(w, KindConflict, 1207, "duplicate collection name")
		return
	}
	oldName := col.Meta.Name
	col.Meta.Name = req.Name
	s.registry.Put(req.Name, col)
	s.registry.Delete(oldName)
	writeJSON(w, http.StatusOK, col.Meta)
}
