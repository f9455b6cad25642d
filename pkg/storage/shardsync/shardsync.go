// Package shardsync implements the synchronize-shard protocol executed by
// a follower bringing its copy of a shard into agreement with the leader:
// a shortcut for empty shards, an initial dump, a soft-lock catch-up loop,
// and hard-lock finalization.
package shardsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/nexusdb/pkg/log"
	"github.com/cuemby/nexusdb/pkg/metrics"
)

// Result is the outcome of a synchronize-shard run.
type Result string

const (
	ResultShortcut  Result = "shortcut"
	ResultSynced    Result = "synced"
	ResultCancelled Result = "cancelled"
	ResultFailed    Result = "failed"
)

const (
	maxCatchupIterations = 18
	catchupIterationCap  = 300 * time.Second
	holdLockFraction     = 0.6
)

// ErrDatabaseNotFound mirrors the leader's DATABASE_NOT_FOUND response,
// which this protocol treats as success for DELETE-on-hold-lock calls: the
// lock is implicitly gone with its database.
var ErrDatabaseNotFound = errors.New("shardsync: database not found")

// Leader is the client-side surface this package drives against the shard
// leader. Every method corresponds to one of the wire calls in the shard
// synchronization REST surface.
type Leader interface {
	// PlanHasConverged polls the configuration store for this shard's
	// planned server list.
	PlanHasConverged(ctx context.Context, shard, follower string) (converged bool, stillPlanned bool, err error)
	// AddShardFollowerShortcut asks the leader to add us directly when both
	// sides report zero documents.
	AddShardFollowerShortcut(ctx context.Context, shard, follower string) (ok bool, err error)
	// InitialDump requests an incremental dump, returning a barrier id
	// (pins the WAL against pruning) and the last tick covered.
	InitialDump(ctx context.Context, shard string) (barrierID string, lastTick uint64, err error)
	// ApplyDump applies a previously-fetched dump locally.
	ApplyDump(ctx context.Context, shard, barrierID string) error
	// HoldReadLock requests a soft (doSoftLockOnly=true) or hard read lock,
	// returning a lock id.
	HoldReadLock(ctx context.Context, shard string, ttl time.Duration, doSoftLockOnly bool) (lockID string, err error)
	// TailLog streams WAL entries from fromTick to the current end,
	// returning the new tick reached and whether the leader timed out
	// before catching us up.
	TailLog(ctx context.Context, shard string, fromTick uint64) (tickReached uint64, didTimeout bool, err error)
	// ReleaseReadLock releases a previously acquired lock. A
	// DATABASE_NOT_FOUND response must be treated as success.
	ReleaseReadLock(ctx context.Context, shard, lockID string) error
	// AddShardFollower finalizes follower registration, passing a checksum
	// (our current document count) the leader verifies against its own.
	AddShardFollower(ctx context.Context, shard, follower string, checksum int64, syncerID string, readLockID string) error
	// ReleaseBarrier releases a WAL barrier obtained from InitialDump.
	ReleaseBarrier(ctx context.Context, barrierID string) error
	// DocumentCount returns the leader's live document count for the
	// shortcut check.
	DocumentCount(ctx context.Context, shard string) (int64, error)
}

// LocalShard is the follower-side surface: document count and syncer id
// generation.
type LocalShard interface {
	DocumentCount() int64
	SyncerID() string
}

// Synchronize runs the full protocol for shard against leader, using local
// for the follower-side document count and syncer id.
func Synchronize(ctx context.Context, shard, follower string, leader Leader, local LocalShard) (res Result, err error) {
	logger := log.WithShard(shard)
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ShardSyncDuration)
		metrics.ShardSyncResultTotal.WithLabelValues(string(res)).Inc()
	}()

	// 1. Wait for plan convergence.
	converged, stillPlanned, err := leader.PlanHasConverged(ctx, shard, follower)
	if err != nil {
		return ResultFailed, fmt.Errorf("shardsync: plan convergence check failed: %w", err)
	}
	if !stillPlanned {
		return ResultCancelled, nil
	}
	if !converged {
		return ResultCancelled, nil
	}

	// 2. Shortcut.
	if local.DocumentCount() == 0 {
		ok, err := leader.AddShardFollowerShortcut(ctx, shard, follower)
		if err != nil {
			return ResultFailed, fmt.Errorf("shardsync: shortcut request failed: %w", err)
		}
		if ok {
			leaderCount, err := leader.DocumentCount(ctx, shard)
			if err == nil && leaderCount == 0 {
				logger.Info().Msg("shard sync shortcut: both sides empty")
				return ResultShortcut, nil
			}
		}
		// Any non-ok response falls through to full sync.
	}

	// 3. Initial sync.
	barrierID, lastTick, err := leader.InitialDump(ctx, shard)
	if err != nil {
		return ResultFailed, fmt.Errorf("shardsync: initial dump request failed: %w", err)
	}
	defer func() {
		if relErr := releaseBarrier(ctx, leader, barrierID); relErr != nil {
			logger.Warn().Err(relErr).Msg("barrier release failed")
		}
	}()
	if err := leader.ApplyDump(ctx, shard, barrierID); err != nil {
		return ResultFailed, fmt.Errorf("shardsync: applying initial dump failed: %w", err)
	}

	// 4. Soft-lock catch-up loop.
	tick := lastTick
	iterations := 0
	for iterations < maxCatchupIterations {
		iterations++
		lockID, err := leader.HoldReadLock(ctx, shard, catchupIterationCap, true)
		if err != nil {
			return ResultFailed, fmt.Errorf("shardsync: soft lock acquisition failed: %w", err)
		}

		tickReached, didTimeout, tailErr := leader.TailLog(ctx, shard, tick)
		if releaseErr := releaseReadLock(ctx, leader, shard, lockID); releaseErr != nil {
			logger.Warn().Err(releaseErr).Msg("soft lock release failed")
		}
		if tailErr != nil {
			return ResultFailed, fmt.Errorf("shardsync: WAL tail failed: %w", tailErr)
		}
		tick = tickReached

		select {
		case <-ctx.Done():
			return ResultCancelled, nil
		default:
		}

		if !didTimeout {
			break
		}
	}
	metrics.ShardSyncCatchupIterations.Observe(float64(iterations))

	// 5. Hard-lock finalization.
	lockID, err := leader.HoldReadLock(ctx, shard, catchupIterationCap, false)
	if err != nil {
		return ResultFailed, fmt.Errorf("shardsync: hard lock acquisition failed: %w", err)
	}
	defer func() {
		if releaseErr := releaseReadLock(ctx, leader, shard, lockID); releaseErr != nil {
			logger.Warn().Err(releaseErr).Msg("hard lock release failed")
		}
	}()

	tickReached, _, err := leader.TailLog(ctx, shard, tick)
	if err != nil {
		return ResultFailed, fmt.Errorf("shardsync: final WAL tail failed: %w", err)
	}
	_ = tickReached

	if err := leader.AddShardFollower(ctx, shard, follower, local.DocumentCount(), local.SyncerID(), lockID); err != nil {
		return ResultFailed, fmt.Errorf("shardsync: addShardFollower failed: %w", err)
	}

	logger.Info().Int("iterations", iterations).Msg("shard sync completed")
	return ResultSynced, nil
}

// releaseReadLock releases lockID, treating ErrDatabaseNotFound as success
// per the documented error taxonomy.
func releaseReadLock(ctx context.Context, leader Leader, shard, lockID string) error {
	err := leader.ReleaseReadLock(ctx, shard, lockID)
	if errors.Is(err, ErrDatabaseNotFound) {
		return nil
	}
	return err
}

func releaseBarrier(ctx context.Context, leader Leader, barrierID string) error {
	err := leader.ReleaseBarrier(ctx, barrierID)
	if errors.Is(err, ErrDatabaseNotFound) {
		return nil
	}
	return err
}
