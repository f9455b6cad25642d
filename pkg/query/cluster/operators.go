package cluster

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/cuemby/nexusdb/pkg/log"
)

// ScatterType names how a ScatterNode selects its target client list.
type ScatterType string

const (
	ScatterAllShards    ScatterType = "all_shards"
	ScatterAllDBServers ScatterType = "all_dbservers"
	ScatterFixed        ScatterType = "fixed"
)

// ScatterNode sends each input row to every client in Clients. Cost is
// input-items × client-count: this node never reduces the fan-out, it
// multiplies it.
type ScatterNode struct {
	Clients []string
}

// Fanout returns one row copy addressed to each client, in Clients order.
// The caller is responsible for actually dispatching each (client, row)
// pair over its own RemoteClient.
func (s *ScatterNode) Fanout(row map[string]any) []ClientRow {
	out := make([]ClientRow, len(s.Clients))
	for i, client := range s.Clients {
		out[i] = ClientRow{Client: client, Row: row}
	}
	return out
}

// ClientRow pairs a row with the single client it has been routed (or
// scattered) to.
type ClientRow struct {
	Client string
	Row    map[string]any
}

// DistributeKeyMode controls how DistributeNode treats a bare string key.
type DistributeKeyMode int

const (
	// DistributeStrict rejects a user-supplied key that doesn't already
	// exist as an object attribute.
	DistributeStrict DistributeKeyMode = iota
	// DistributeLenient wraps a bare string into {_key: ...} automatically.
	DistributeLenient
	// DistributeGenerateKey ignores any user-supplied key and always
	// generates a fresh one, used for INSERT without an explicit _key.
	DistributeGenerateKey
)

// DistributeNode routes each input row to a single client, chosen by
// hashing the primary shard-key variable (and, if present, an optional
// alternative — e.g. a smart-join attribute) via xxhash, then reducing into
// [0, NumClients).
type DistributeNode struct {
	Clients         []string
	ShardKeyVar     string
	AltShardKeyVar  string // optional; "" when unused
	KeyMode         DistributeKeyMode
	KeyGenerator    func() string
}

// errMissingShardKey is returned when ShardKeyVar is absent from row under
// strict key mode.
type errMissingShardKey struct{ attr string }

func (e *errMissingShardKey) Error() string {
	return fmt.Sprintf("cluster: distribute: missing required shard key attribute %q", e.attr)
}

// Route normalizes row's key attribute per KeyMode, then returns the client
// row has been routed to.
func (d *DistributeNode) Route(row map[string]any) (string, map[string]any, error) {
	normalized := row
	switch d.KeyMode {
	case DistributeGenerateKey:
		if d.KeyGenerator != nil {
			normalized = cloneWithKey(row, d.KeyGenerator())
		}
	case DistributeLenient:
		if v, ok := row["_key"]; ok {
			if s, isString := v.(string); isString {
				normalized = cloneWithKey(row, s)
			}
		}
	case DistributeStrict:
		if _, ok := row[d.ShardKeyVar]; !ok {
			return "", nil, &errMissingShardKey{attr: d.ShardKeyVar}
		}
	}

	h := hashAttr(normalized, d.ShardKeyVar)
	if d.AltShardKeyVar != "" {
		h ^= hashAttr(normalized, d.AltShardKeyVar)
	}
	if len(d.Clients) == 0 {
		return "", nil, fmt.Errorf("cluster: distribute: no clients configured")
	}
	idx := h % uint64(len(d.Clients))
	return d.Clients[idx], normalized, nil
}

func cloneWithKey(row map[string]any, key string) map[string]any {
	out := make(map[string]any, len(row)+1)
	for k, v := range row {
		out[k] = v
	}
	out["_key"] = key
	return out
}

func hashAttr(row map[string]any, attr string) uint64 {
	v, ok := row[attr]
	if !ok {
		return 0
	}
	return xxhash.Sum64String(fmt.Sprintf("%v", v))
}

// IsGatherParallelizable reports whether a GatherNode may merge its client
// streams out of order: true iff no node in descendants is a modification
// node, a ScatterNode, a DistributeNode, or another GatherNode.
func IsGatherParallelizable(descendants []string) bool {
	for _, kind := range descendants {
		switch kind {
		case "modification", "scatter", "distribute", "gather":
			return false
		}
	}
	return true
}

// EffectiveParallel resolves the parallelism a GatherNode actually runs
// with: a db-server never merges client streams in parallel, regardless of
// what the coordinator requested, since a db-server's upstreams are local
// shards rather than remote client connections and there is nothing to gain
// from racing them. The downgrade is logged so a coordinator that expected
// parallel gather on a db-server can be told why it didn't happen.
func EffectiveParallel(requested bool, isDBServer bool) bool {
	if requested && isDBServer {
		log.WithComponent("cluster").Debug().
			Msg("gather parallelism downgraded to serial on db-server")
		return false
	}
	return requested
}
