// Package exec implements the pull-based executor framework: the
// produceRows/skipRows protocol, a single-row fetcher that pulls blocks
// from an upstream executor, and the cooperative WAITING/DONE/HASMORE
// state machine every execution block participates in.
package exec

import (
	"github.com/cuemby/nexusdb/pkg/query/plan"
	"github.com/cuemby/nexusdb/pkg/query/row"
)

// State is the result of a single produceRows/skipRows call.
type State int

const (
	// Done means the executor has no more rows to produce.
	Done State = iota
	// HasMore means the executor produced (zero or more) rows and may
	// produce more on a subsequent call.
	HasMore
	// Waiting means an upstream fetch is in flight; the caller must
	// re-invoke with the same arguments without advancing anything.
	Waiting
	// ShuttingDown is returned once a cooperative cancellation flag has
	// been observed at a loop header.
	ShuttingDown
)

// Stats accumulates the counters the caller surfaces in the wire response.
type Stats struct {
	Filtered uint64
	Scanned  uint64
	Full     uint64
}

// Add accumulates another Stats into the receiver.
func (s *Stats) Add(o Stats) {
	s.Filtered += o.Filtered
	s.Scanned += o.Scanned
	s.Full += o.Full
}

// Upstream is the pull-side interface an executor's fetcher drives: a
// source of ItemBlocks (the row's own block, or the output of the upstream
// executor's own produceRows).
type Upstream interface {
	// Fetch returns the next block of at most atMost rows, or nil with
	// Done/Waiting/ShuttingDown.
	Fetch(atMost int) (*row.ItemBlock, State, error)
}

// Executor is the common pull-protocol surface every execution block
// implements.
type Executor interface {
	// ProduceRows writes zero or more rows into output and returns the
	// resulting state. Waiting may only be returned when an upstream fetch
	// returned Waiting; the caller re-invokes without advancing.
	ProduceRows(output *row.OutputRow) (State, Stats, error)
	// SkipRows behaves like ProduceRows but does not materialize rows.
	SkipRows(toSkip uint64) (State, Stats, uint64, error)
	Properties() plan.Properties
}

// IsStopping is polled cooperatively at loop headers by long-running
// operators (range scans, shard sync); it is swapped out per-query.
type IsStopping func() bool

// BlockFetcher maintains the internal cursor over the current upstream
// block: on exhaustion it pulls a new block. Shadow rows are delivered
// through a separate entry point (FetchShadowRow): a data-row fetch stops
// (returns Done locally) as soon as the next row in the block is a shadow
// row; the caller must then call FetchShadowRow to advance past it.
type BlockFetcher struct {
	upstream Upstream
	block    *row.ItemBlock
	cursor   int
}

// NewBlockFetcher wraps upstream with cursor bookkeeping.
func NewBlockFetcher(upstream Upstream) *BlockFetcher {
	return &BlockFetcher{upstream: upstream}
}

// NextDataRow returns the next data row, refilling from upstream as
// needed. It returns Done (without consuming) the moment the next row
// under the cursor is a shadow row.
func (f *BlockFetcher) NextDataRow() (row.InputRow, State, error) {
	for {
		if f.block == nil || f.cursor >= f.block.NumRows() {
			block, state, err := f.upstream.Fetch(1)
			if err != nil {
				return row.InputRow{}, Done, err
			}
			if state == Waiting {
				return row.InputRow{}, Waiting, nil
			}
			if block == nil {
				return row.InputRow{}, Done, nil
			}
			f.block = block
			f.cursor = 0
		}
		if f.cursor >= f.block.NumRows() {
			if f.block.NumRows() == 0 {
				return row.InputRow{}, Done, nil
			}
			continue
		}
		if f.block.IsShadowRow(f.cursor) {
			return row.InputRow{}, Done, nil
		}
		r := row.InputRow{Block: f.block, Index: f.cursor}
		f.cursor++
		return r, HasMore, nil
	}
}

// FetchShadowRow advances the cursor past exactly one shadow row and
// returns it. Calling this when the row under the cursor is not a shadow
// row is a caller error.
func (f *BlockFetcher) FetchShadowRow() (row.InputRow, State, error) {
	if f.block == nil || f.cursor >= f.block.NumRows() {
		block, state, err := f.upstream.Fetch(1)
		if err != nil {
			return row.InputRow{}, Done, err
		}
		if state == Waiting {
			return row.InputRow{}, Waiting, nil
		}
		if block == nil {
			return row.InputRow{}, Done, nil
		}
		f.block = block
		f.cursor = 0
	}
	if f.cursor >= f.block.NumRows() || !f.block.IsShadowRow(f.cursor) {
		return row.InputRow{}, Done, nil
	}
	r := row.InputRow{Block: f.block, Index: f.cursor}
	f.cursor++
	return r, HasMore, nil
}
