package txn

import (
	"context"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddOperationFiresIntermediateCommitAtThreshold(t *testing.T) {
	fired := 0
	tx := New(context.Background(), nil, IntermediateCommits, func() (*bolt.Tx, error) {
		fired++
		return nil, nil
	})

	for i := 0; i < defaultIntermediateCommitCount; i++ {
		require.NoError(t, tx.AddOperation(1))
	}
	assert.Equal(t, 1, fired)
}

func TestHintsHasChecksFlag(t *testing.T) {
	h := SingleOperation | AllowRangeDelete
	assert.True(t, h.Has(SingleOperation))
	assert.True(t, h.Has(AllowRangeDelete))
	assert.False(t, h.Has(GlobalManaged))
}

func TestSavepointPushFinishDiscardsWithoutIntermediateCommit(t *testing.T) {
	tx := New(context.Background(), nil, 0, nil)
	tx.PushSavepoint()
	assert.Equal(t, 1, tx.SavepointDepth())
	tx.Finish(false)
	assert.Equal(t, 0, tx.SavepointDepth())
}

func TestFollowerInfoTracksCurrentFollowers(t *testing.T) {
	f := NewFollowerInfo("leader-1")
	f.Add("follower-a")
	f.Add("follower-b")
	assert.ElementsMatch(t, []string{"follower-a", "follower-b"}, f.Current())

	f.Remove("follower-a")
	assert.ElementsMatch(t, []string{"follower-b"}, f.Current())
	assert.Equal(t, "leader-1", f.LocalLeader())

	f.SetLocalLeader("follower-b")
	assert.Equal(t, "follower-b", f.LocalLeader())
}
