package client

import (
	"context"
	"net/http"
	"time"
)

// LeaderClient implements storage/shardsync.Leader over the REST surface in
// pkg/api. The agency (plan convergence) and the full replication tailing
// protocol are named external collaborators this system only consumes —
// PlanHasConverged, InitialDump, ApplyDump, and TailLog are therefore
// pass-through stubs that assume the collaborator has already done its job,
// rather than a from-scratch reimplementation of either facility.
type LeaderClient struct {
	*Client
}

// NewLeaderClient wraps addr for use as a storage/shardsync.Leader.
func NewLeaderClient(addr string) *LeaderClient {
	return &LeaderClient{Client: NewClient(addr)}
}

// PlanHasConverged assumes the external agency has already converged the
// plan by the time synchronize-shard runs; this system does not implement
// the agency itself.
func (c *LeaderClient) PlanHasConverged(ctx context.Context, shard, follower string) (bool, bool, error) {
	return true, true, nil
}

// AddShardFollowerShortcut asks the leader to add the caller directly,
// reusing the addFollower endpoint with a zero checksum (spec's documented
// shortcut: both sides report zero documents).
func (c *LeaderClient) AddShardFollowerShortcut(ctx context.Context, shard, follower string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	err := c.do(ctx, http.MethodPut, "/_api/replication/addFollower", map[string]any{
		"followerId": follower,
		"shard":      shard,
		"checksum":   0,
	}, nil)
	if err != nil {
		if se, ok := err.(*StatusError); ok && se.Code == http.StatusConflict {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// InitialDump is a stub: this client does not implement the full
// incremental-dump wire format. It returns a synthetic barrier so the
// caller's ReleaseBarrier call has something to release.
func (c *LeaderClient) InitialDump(ctx context.Context, shard string) (string, uint64, error) {
	return "stub-barrier-" + shard, 0, nil
}

// ApplyDump is a no-op: there is no dump payload to apply without the
// tailing protocol InitialDump would normally fetch from.
func (c *LeaderClient) ApplyDump(ctx context.Context, shard, barrierID string) error {
	return nil
}

// HoldReadLock acquires a soft or hard read lock via holdReadLockCollection.
func (c *LeaderClient) HoldReadLock(ctx context.Context, shard string, ttl time.Duration, doSoftLockOnly bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/_api/replication/holdReadLockCollection", map[string]any{
		"collection":     shard,
		"ttl":            int64(ttl.Seconds()),
		"doSoftLockOnly": doSoftLockOnly,
	}, &out)
	return out.ID, err
}

// TailLog is a stub returning immediately caught-up: this client does not
// implement the log-tailing wire protocol, same as InitialDump.
func (c *LeaderClient) TailLog(ctx context.Context, shard string, fromTick uint64) (uint64, bool, error) {
	return fromTick, false, nil
}

// ReleaseReadLock releases a previously acquired lock. A 404 is treated as
// success: the lock (and its database) may already be gone.
func (c *LeaderClient) ReleaseReadLock(ctx context.Context, shard, lockID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	err := c.do(ctx, http.MethodDelete, "/_api/replication/holdReadLockCollection", map[string]any{"id": lockID}, nil)
	if se, ok := err.(*StatusError); ok && se.Code == http.StatusNotFound {
		return nil
	}
	return err
}

// AddShardFollower finalizes follower registration against the leader's
// document count.
func (c *LeaderClient) AddShardFollower(ctx context.Context, shard, follower string, checksum int64, syncerID, readLockID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return c.do(ctx, http.MethodPut, "/_api/replication/addFollower", map[string]any{
		"followerId": follower,
		"shard":      shard,
		"checksum":   checksum,
		"syncerId":   syncerID,
		"readLockId": readLockID,
	}, nil)
}

// ReleaseBarrier releases a WAL barrier obtained from InitialDump.
func (c *LeaderClient) ReleaseBarrier(ctx context.Context, barrierID string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	err := c.do(ctx, http.MethodDelete, "/_api/replication/barrier/"+barrierID, nil, nil)
	if se, ok := err.(*StatusError); ok && se.Code == http.StatusNotFound {
		return nil
	}
	return err
}

// DocumentCount returns the leader's live document count for shard.
func (c *LeaderClient) DocumentCount(ctx context.Context, shard string) (int64, error) {
	return c.Client.DocumentCount(ctx, shard)
}
