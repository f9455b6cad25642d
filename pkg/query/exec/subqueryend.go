package exec

import (
	"github.com/cuemby/nexusdb/pkg/query/plan"
	"github.com/cuemby/nexusdb/pkg/query/row"
)

// SubqueryEndExecutor is the mechanism by which correlated subqueries are
// spliced back into their outer stream: it consumes data rows at the
// current subquery depth, aggregates the named input register into an
// array, emits one row carrying that array, then forwards the shadow row
// that delimited the subquery's input.
type SubqueryEndExecutor struct {
	fetcher  *BlockFetcher
	inputReg row.RegisterID

	collected   []any
	boundary    row.InputRow
	haveResult  bool
	havePending bool // the aggregate row is ready to emit
}

// NewSubqueryEndExecutor builds a subquery-end stage reading inputReg from
// each data row belonging to the subquery.
func NewSubqueryEndExecutor(upstream Upstream, inputReg row.RegisterID) *SubqueryEndExecutor {
	return &SubqueryEndExecutor{fetcher: NewBlockFetcher(upstream), inputReg: inputReg}
}

func (s *SubqueryEndExecutor) Properties() plan.Properties {
	return plan.PropertiesFor(plan.NodeSubqueryEnd)
}

func (s *SubqueryEndExecutor) ProduceRows(output *row.OutputRow) (State, Stats, error) {
	var stats Stats

	if s.havePending {
		// Forward the shadow row that closed the subquery, then reset.
		output.CreateShadowRow(s.boundary)
		s.havePending = false
		s.collected = nil
		return HasMore, stats, nil
	}

	for {
		r, state, err := s.fetcher.NextDataRow()
		if err != nil {
			return Done, stats, err
		}
		if state == Waiting {
			return Waiting, stats, nil
		}
		if state == Done {
			// No more data rows; the boundary is next via FetchShadowRow.
			shadow, shState, err := s.fetcher.FetchShadowRow()
			if err != nil {
				return Done, stats, err
			}
			if shState == Waiting {
				return Waiting, stats, nil
			}
			if shState == Done {
				if len(s.collected) == 0 {
					return Done, stats, nil
				}
				// Defensive: no boundary row was ever produced (malformed
				// stream); emit what was collected and stop.
				aggregated := s.collected
				s.collected = nil
				output.CloneValueInto(0, row.InputRow{}, aggregated)
				output.AdvanceRow()
				return Done, stats, nil
			}
			aggregated := append([]any(nil), s.collected...)
			s.collected = nil
			s.boundary = shadow
			s.havePending = true
			output.CloneValueInto(0, shadow, aggregated)
			output.AdvanceRow()
			return HasMore, stats, nil
		}
		s.collected = append(s.collected, r.Get(s.inputReg))
	}
}

func (s *SubqueryEndExecutor) SkipRows(toSkip uint64) (State, Stats, uint64, error) {
	var stats Stats
	return Done, stats, 0, nil
}
