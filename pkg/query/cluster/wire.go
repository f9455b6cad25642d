// Package cluster implements the cluster operators: ScatterNode (fan-out to
// every client), DistributeNode (hash-routed single-client delivery),
// GatherNode support (client registration for the coordinator-side merge in
// pkg/query/exec), and the RemoteNode wire protocol client/server pair.
package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/cuemby/nexusdb/pkg/log"
)

// jsonCodecName is registered with grpc's encoding registry in place of the
// generated protobuf codec: no .proto stubs for this wire protocol were
// retrieved, so request/response envelopes are plain JSON-tagged structs
// instead of protoc-generated message types. This keeps the real grpc and
// protobuf modules wired (framing, transport, compression, the
// google.golang.org/protobuf dependency for status/wrapper types) without
// fabricating generated code.
const jsonCodecName = "nexusdb-json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("cluster: marshaling wire envelope: %w", err)
	}
	return buf.Bytes(), nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cluster: unmarshaling wire envelope: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return jsonCodecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// WireNode is the per-cluster-node wire form: serialized alongside the
// plan so a RemoteNode on a db-server knows how to reconstruct its half
// of the execution-block pair.
type WireNode struct {
	Server       string     `json:"server"`
	QueryID      string     `json:"query_id"`
	Database     string     `json:"database"`
	DistributeID string     `json:"distribute_id"`
	ScatterType  string     `json:"scatter_type"` // "all_shards", "all_dbservers", "fixed"
	Clients      []string   `json:"clients"`
	SortSpec     []SortPart `json:"sort_spec,omitempty"`
	SortMode     string     `json:"sort_mode,omitempty"` // "min_element" or "heap"
	Limit        int        `json:"limit,omitempty"`
	Parallel     bool       `json:"parallel"`
}

// wireNodeAlias avoids infinite recursion through UnmarshalJSON while still
// getting the struct-tag-driven decode of every other field.
type wireNodeAlias WireNode

// UnmarshalJSON accepts the legacy "parellelism" spelling of the parallel
// flag alongside the correct "parallel" key, for wire payloads emitted by
// older coordinators. "parallel" wins if both are present; the legacy key
// is logged so stale emitters can be tracked down.
func (w *WireNode) UnmarshalJSON(data []byte) error {
	var alias struct {
		wireNodeAlias
		Parallel     *bool `json:"parallel"`
		Parellelism  *bool `json:"parellelism"`
	}
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*w = WireNode(alias.wireNodeAlias)
	switch {
	case alias.Parallel != nil:
		w.Parallel = *alias.Parallel
	case alias.Parellelism != nil:
		log.WithComponent("cluster").Warn().
			Str("query_id", w.QueryID).
			Msg("wire node used legacy \"parellelism\" key, not \"parallel\"")
		w.Parallel = *alias.Parellelism
	}
	return nil
}

// SortPart names one column of a GatherNode's sort specification.
type SortPart struct {
	Register int  `json:"register"`
	Ascending bool `json:"ascending"`
}

// GetSomeRequest/GetSomeResponse and SkipSomeRequest/SkipSomeResponse are
// the envelopes exchanged across the RemoteNode wire protocol, tagged with
// DistributeID so a single remote endpoint can multiplex many concurrent
// distributed subqueries.
type GetSomeRequest struct {
	DistributeID string `json:"distribute_id"`
	AtMost       int    `json:"at_most"`
}

type GetSomeResponse struct {
	State string  `json:"state"` // "done", "has_more", "waiting", "shutting_down"
	Rows  [][]any `json:"rows"`
}

type SkipSomeRequest struct {
	DistributeID string `json:"distribute_id"`
	AtMost       int    `json:"at_most"`
}

type SkipSomeResponse struct {
	State   string `json:"state"`
	Skipped int    `json:"skipped"`
}

type ShutdownRequest struct {
	DistributeID string `json:"distribute_id"`
}

type ShutdownResponse struct{}

// Blocks is the server-side surface the RemoteNode wire protocol dispatches
// to: one ExecutionBlockServer instance per distributeId, already bound to
// the locally-running subquery the remote side pulls from.
type Blocks interface {
	GetSome(ctx context.Context, distributeID string, atMost int) (state string, rows [][]any, err error)
	SkipSome(ctx context.Context, distributeID string, atMost int) (state string, skipped int, err error)
	Shutdown(ctx context.Context, distributeID string) error
}
