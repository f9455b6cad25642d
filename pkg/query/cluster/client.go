package cluster

import (
	"context"
	"fmt"

	"google.golang.org/grpc"

	"github.com/cuemby/nexusdb/pkg/metrics"
)

// RemoteClient is the client side of one RemoteNode's execution-block pair:
// it sends pull/skip requests tagged with distributeID to a single remote
// server endpoint and receives serialized item blocks back.
type RemoteClient struct {
	cc           *grpc.ClientConn
	distributeID string
	queryID      string
	database     string
}

// NewRemoteClient binds a RemoteNode to its already-established connection
// and wire identifiers (server, distribute id, and remote query id, all
// assigned at plan creation time).
func NewRemoteClient(cc *grpc.ClientConn, distributeID, queryID, database string) *RemoteClient {
	return &RemoteClient{cc: cc, distributeID: distributeID, queryID: queryID, database: database}
}

// GetSome pulls up to atMost rows from the remote block, returning the
// execution state the remote side reports ("done", "has_more", "waiting",
// "shutting_down").
func (c *RemoteClient) GetSome(ctx context.Context, atMost int) (state string, rows [][]any, err error) {
	metrics.RemoteBlockCallsTotal.WithLabelValues("getSome").Inc()
	req := &GetSomeRequest{DistributeID: c.distributeID, AtMost: atMost}
	resp := new(GetSomeResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetSome", req, resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return "", nil, fmt.Errorf("cluster: remote getSome failed: %w", err)
	}
	return resp.State, resp.Rows, nil
}

// SkipSome asks the remote block to skip atMost rows without returning
// them, used when an upstream LimitNode's offset has not yet been
// satisfied.
func (c *RemoteClient) SkipSome(ctx context.Context, atMost int) (state string, skipped int, err error) {
	metrics.RemoteBlockCallsTotal.WithLabelValues("skipSome").Inc()
	req := &SkipSomeRequest{DistributeID: c.distributeID, AtMost: atMost}
	resp := new(SkipSomeResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/SkipSome", req, resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return "", 0, fmt.Errorf("cluster: remote skipSome failed: %w", err)
	}
	return resp.State, resp.Skipped, nil
}

// Shutdown tears down the remote block, releasing any resources it holds
// (cursors, snapshot pins) for this distribute id.
func (c *RemoteClient) Shutdown(ctx context.Context) error {
	metrics.RemoteBlockCallsTotal.WithLabelValues("shutdown").Inc()
	req := &ShutdownRequest{DistributeID: c.distributeID}
	resp := new(ShutdownResponse)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Shutdown", req, resp, grpc.CallContentSubtype(jsonCodecName)); err != nil {
		return fmt.Errorf("cluster: remote shutdown failed: %w", err)
	}
	return nil
}
