package exec

import (
	"github.com/cuemby/nexusdb/pkg/query/plan"
	"github.com/cuemby/nexusdb/pkg/query/row"
)

// LimitExecutor skips Offset rows, forwards up to Limit rows, then reports
// Done — it never pulls from upstream again once the limit is reached,
// which is what makes constrainedSortLimit-style top-N pushdowns effective.
type LimitExecutor struct {
	fetcher    *BlockFetcher
	offset     uint64
	limit      uint64
	skipped    uint64
	emitted    uint64
	regsToKeep []row.RegisterID
}

// NewLimitExecutor builds a limit stage over upstream.
func NewLimitExecutor(upstream Upstream, offset, limit uint64, regsToKeep []row.RegisterID) *LimitExecutor {
	return &LimitExecutor{fetcher: NewBlockFetcher(upstream), offset: offset, limit: limit, regsToKeep: regsToKeep}
}

func (l *LimitExecutor) Properties() plan.Properties { return plan.PropertiesFor(plan.NodeLimit) }

func (l *LimitExecutor) ProduceRows(output *row.OutputRow) (State, Stats, error) {
	var stats Stats
	if l.emitted >= l.limit {
		return Done, stats, nil
	}
	for l.skipped < l.offset {
		r, state, err := l.fetcher.NextDataRow()
		if err != nil || state == Waiting || state == Done {
			return state, stats, err
		}
		_ = r
		l.skipped++
	}
	r, state, err := l.fetcher.NextDataRow()
	if err != nil || state == Waiting || state == Done {
		return state, stats, err
	}
	output.CopyRow(r)
	output.AdvanceRow()
	l.emitted++
	if l.emitted >= l.limit {
		return Done, stats, nil
	}
	return HasMore, stats, nil
}

func (l *LimitExecutor) SkipRows(toSkip uint64) (State, Stats, uint64, error) {
	var stats Stats
	var skipped uint64
	for skipped < toSkip && l.emitted < l.limit {
		_, state, err := l.fetcher.NextDataRow()
		if err != nil || state == Waiting {
			return state, stats, skipped, err
		}
		if state == Done {
			return Done, stats, skipped, nil
		}
		l.emitted++
		skipped++
	}
	return HasMore, stats, skipped, nil
}
