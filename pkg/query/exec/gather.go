package exec

import (
	"sync"

	"github.com/cuemby/nexusdb/pkg/query/plan"
	"github.com/cuemby/nexusdb/pkg/query/row"
)

// Less orders two sort-key values for GatherExecutor's merge.
type Less func(a, b any) bool

// GatherExecutor merges rows from one upstream per client shard stream. In
// GatherSorting mode it repeatedly picks the minimum head across streams
// (min-element mode); GatherUnsorted mode emits from the lowest-numbered
// stream that has a row, so each stream is drained before the next and
// streams are not interleaved. A non-zero ConstrainedSortLimit caps total
// emitted rows, enabling
// a top-N pushdown across shards.
type GatherExecutor struct {
	fetchers             []*BlockFetcher
	mode                 plan.GatherMode
	sortReg              row.RegisterID
	less                 Less
	constrainedSortLimit int // 0 means unlimited
	emitted              int
	parallel             bool

	heads []headState
}

type headState struct {
	row   row.InputRow
	valid bool
	done  bool
}

// NewGatherExecutor builds a gather stage over one upstream per client
// stream. For GatherUnsorted, sortReg/less are ignored. parallel selects
// whether fillHeads polls every upstream concurrently (only sound for a
// coordinator pulling from remote client streams) or serially (required on
// a db-server, whose upstreams are local shards, and wherever the caller
// has already downgraded via cluster.EffectiveParallel).
func NewGatherExecutor(upstreams []Upstream, mode plan.GatherMode, sortReg row.RegisterID, less Less, constrainedSortLimit int, parallel bool) *GatherExecutor {
	g := &GatherExecutor{
		mode:                 mode,
		sortReg:              sortReg,
		less:                 less,
		constrainedSortLimit: constrainedSortLimit,
		parallel:             parallel,
		heads:                make([]headState, len(upstreams)),
	}
	for _, u := range upstreams {
		g.fetchers = append(g.fetchers, NewBlockFetcher(u))
	}
	return g
}

func (g *GatherExecutor) Properties() plan.Properties { return plan.PropertiesFor(plan.NodeGather) }

func (g *GatherExecutor) ProduceRows(output *row.OutputRow) (State, Stats, error) {
	var stats Stats

	// A gather over zero client streams is Done immediately.
	if len(g.fetchers) == 0 {
		return Done, stats, nil
	}
	if g.constrainedSortLimit > 0 && g.emitted >= g.constrainedSortLimit {
		return Done, stats, nil
	}

	if err := g.fillHeads(); err != nil {
		return Done, stats, err
	}
	if g.anyWaiting() {
		return Waiting, stats, nil
	}

	winner := -1
	for i := range g.heads {
		if !g.heads[i].valid {
			continue
		}
		if winner == -1 {
			winner = i
			continue
		}
		if g.mode == plan.GatherSorting {
			if g.less(g.heads[i].row.Get(g.sortReg), g.heads[winner].row.Get(g.sortReg)) {
				winner = i
			}
		}
	}
	if winner == -1 {
		return Done, stats, nil
	}

	output.CopyRow(g.heads[winner].row)
	output.AdvanceRow()
	g.heads[winner].valid = false
	g.emitted++

	if g.constrainedSortLimit > 0 && g.emitted >= g.constrainedSortLimit {
		return Done, stats, nil
	}
	return HasMore, stats, nil
}

func (g *GatherExecutor) fillHeads() error {
	if g.parallel {
		return g.fillHeadsParallel()
	}
	return g.fillHeadsSerial()
}

func (g *GatherExecutor) fillHeadsSerial() error {
	for i, f := range g.fetchers {
		if g.heads[i].valid || g.heads[i].done {
			continue
		}
		r, state, err := f.NextDataRow()
		if err != nil {
			return err
		}
		switch state {
		case Waiting:
			continue
		case Done:
			g.heads[i].done = true
		default:
			g.heads[i].row = r
			g.heads[i].valid = true
		}
	}
	return nil
}

// fillHeadsParallel polls every not-yet-filled fetcher concurrently: each
// upstream is an independent client connection, so one slow shard does not
// block the others from refilling their heads in the same round.
func (g *GatherExecutor) fillHeadsParallel() error {
	var wg sync.WaitGroup
	errs := make([]error, len(g.fetchers))
	for i, f := range g.fetchers {
		if g.heads[i].valid || g.heads[i].done {
			continue
		}
		wg.Add(1)
		go func(i int, f *BlockFetcher) {
			defer wg.Done()
			r, state, err := f.NextDataRow()
			if err != nil {
				errs[i] = err
				return
			}
			switch state {
			case Waiting:
			case Done:
				g.heads[i].done = true
			default:
				g.heads[i].row = r
				g.heads[i].valid = true
			}
		}(i, f)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (g *GatherExecutor) anyWaiting() bool {
	for i := range g.heads {
		if !g.heads[i].valid && !g.heads[i].done {
			return true
		}
	}
	return false
}

func (g *GatherExecutor) SkipRows(toSkip uint64) (State, Stats, uint64, error) {
	var stats Stats
	var skipped uint64
	for skipped < toSkip {
		tmp := row.NewItemBlock(1, 1)
		out := row.NewOutputRow(tmp, nil, []row.RegisterID{g.sortReg})
		state, s, err := g.ProduceRows(out)
		stats.Add(s)
		if err != nil || state == Waiting {
			return state, stats, skipped, err
		}
		if state == Done {
			return Done, stats, skipped, nil
		}
		skipped++
	}
	return HasMore, stats, skipped, nil
}
