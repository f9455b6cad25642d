package shardsync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocalShard struct {
	count int64
}

func (f *fakeLocalShard) DocumentCount() int64 { return f.count }
func (f *fakeLocalShard) SyncerID() string     { return "syncer-1" }

type fakeLeader struct {
	leaderCount       int64
	shortcutCalled    bool
	dumpApplied       bool
	tailCalls         int
	timeoutsRemaining int
	addFollowerCalled bool
	checksumSeen      int64
}

func (f *fakeLeader) PlanHasConverged(ctx context.Context, shard, follower string) (bool, bool, error) {
	return true, true, nil
}

func (f *fakeLeader) AddShardFollowerShortcut(ctx context.Context, shard, follower string) (bool, error) {
	f.shortcutCalled = true
	return true, nil
}

func (f *fakeLeader) InitialDump(ctx context.Context, shard string) (string, uint64, error) {
	return "barrier-1", 0, nil
}

func (f *fakeLeader) ApplyDump(ctx context.Context, shard, barrierID string) error {
	f.dumpApplied = true
	return nil
}

func (f *fakeLeader) HoldReadLock(ctx context.Context, shard string, ttl time.Duration, soft bool) (string, error) {
	return "lock-1", nil
}

func (f *fakeLeader) TailLog(ctx context.Context, shard string, fromTick uint64) (uint64, bool, error) {
	f.tailCalls++
	if f.timeoutsRemaining > 0 {
		f.timeoutsRemaining--
		return fromTick + 10, true, nil
	}
	return fromTick + 10, false, nil
}

func (f *fakeLeader) ReleaseReadLock(ctx context.Context, shard, lockID string) error { return nil }

func (f *fakeLeader) AddShardFollower(ctx context.Context, shard, follower string, checksum int64, syncerID, readLockID string) error {
	f.addFollowerCalled = true
	f.checksumSeen = checksum
	return nil
}

func (f *fakeLeader) ReleaseBarrier(ctx context.Context, barrierID string) error { return nil }

func (f *fakeLeader) DocumentCount(ctx context.Context, shard string) (int64, error) {
	return f.leaderCount, nil
}

func TestSynchronizeShortcutWhenBothSidesEmpty(t *testing.T) {
	leader := &fakeLeader{leaderCount: 0}
	local := &fakeLocalShard{count: 0}

	res, err := Synchronize(context.Background(), "orders/s1", "follower-a", leader, local)
	require.NoError(t, err)
	assert.Equal(t, ResultShortcut, res)
	assert.True(t, leader.shortcutCalled)
	assert.False(t, leader.dumpApplied, "shortcut must skip the initial dump")
}

func TestSynchronizeFallsThroughToFullSyncWhenLeaderNonEmpty(t *testing.T) {
	leader := &fakeLeader{leaderCount: 5}
	local := &fakeLocalShard{count: 0}

	res, err := Synchronize(context.Background(), "orders/s1", "follower-a", leader, local)
	require.NoError(t, err)
	assert.Equal(t, ResultSynced, res)
	assert.True(t, leader.dumpApplied)
	assert.True(t, leader.addFollowerCalled)
}

func TestSynchronizeCatchupLoopIteratesUntilNoTimeout(t *testing.T) {
	leader := &fakeLeader{leaderCount: 1000, timeoutsRemaining: 3}
	local := &fakeLocalShard{count: 900}

	res, err := Synchronize(context.Background(), "orders/s1", "follower-a", leader, local)
	require.NoError(t, err)
	assert.Equal(t, ResultSynced, res)
	// 3 timed-out soft-lock iterations + 1 converging iteration + 1 final hard-lock tail.
	assert.Equal(t, 5, leader.tailCalls)
	assert.Equal(t, int64(900), leader.checksumSeen)
}
