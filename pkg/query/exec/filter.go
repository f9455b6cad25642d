package exec

import (
	"github.com/cuemby/nexusdb/pkg/query/plan"
	"github.com/cuemby/nexusdb/pkg/query/row"
)

// Predicate evaluates a filter condition against an input row, returning
// its truthiness.
type Predicate func(r row.InputRow) (bool, error)

// FilterExecutor drops rows that do not satisfy Predicate, forwarding
// every other register unchanged via CopyRow (it preserves order and
// passes blocks through register-for-register).
type FilterExecutor struct {
	fetcher    *BlockFetcher
	predicate  Predicate
	regsToKeep []row.RegisterID
}

// NewFilterExecutor builds a filter stage over upstream.
func NewFilterExecutor(upstream Upstream, predicate Predicate, regsToKeep []row.RegisterID) *FilterExecutor {
	return &FilterExecutor{
		fetcher:    NewBlockFetcher(upstream),
		predicate:  predicate,
		regsToKeep: regsToKeep,
	}
}

func (f *FilterExecutor) Properties() plan.Properties { return plan.PropertiesFor(plan.NodeFilter) }

func (f *FilterExecutor) ProduceRows(output *row.OutputRow) (State, Stats, error) {
	var stats Stats
	for {
		r, state, err := f.fetcher.NextDataRow()
		if err != nil {
			return Done, stats, err
		}
		if state == Waiting {
			return Waiting, stats, nil
		}
		if state == Done {
			return Done, stats, nil
		}
		stats.Scanned++
		keep, err := f.predicate(r)
		if err != nil {
			return Done, stats, err
		}
		if !keep {
			stats.Filtered++
			continue
		}
		output.CopyRow(r)
		output.AdvanceRow()
		return HasMore, stats, nil
	}
}

func (f *FilterExecutor) SkipRows(toSkip uint64) (State, Stats, uint64, error) {
	var stats Stats
	var skipped uint64
	for skipped < toSkip {
		r, state, err := f.fetcher.NextDataRow()
		if err != nil {
			return Done, stats, skipped, err
		}
		if state == Waiting {
			return Waiting, stats, skipped, nil
		}
		if state == Done {
			return Done, stats, skipped, nil
		}
		stats.Scanned++
		keep, err := f.predicate(r)
		if err != nil {
			return Done, stats, skipped, err
		}
		if keep {
			skipped++
		} else {
			stats.Filtered++
		}
	}
	return HasMore, stats, skipped, nil
}
