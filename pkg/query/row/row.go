// Package row implements the register/block/shadow-row model that rows flow
// through as they pass between execution blocks: a row-major ItemBlock, an
// InputRow/OutputRow pair for reading and writing single rows, and the
// shadow-row markers subqueries use to delimit correlated input.
package row

import "fmt"

// RegisterID names a column (register) within an ItemBlock.
type RegisterID int

// shadowNone marks a row as an ordinary data row rather than a shadow row.
const shadowNone = -1

// ItemBlock is a row-major matrix of values: rows[i][reg] is register reg of
// row i. A non-negative shadowDepth[i] marks row i as a shadow row at that
// nesting depth instead of a data row.
type ItemBlock struct {
	nrRegs       int
	rows         [][]any
	shadowDepths []int
	written      []int // per-row count of distinct registers written so far
}

// NewItemBlock allocates a block with capacity rows and nrRegs registers.
func NewItemBlock(capacity, nrRegs int) *ItemBlock {
	return &ItemBlock{
		nrRegs:       nrRegs,
		rows:         make([][]any, 0, capacity),
		shadowDepths: make([]int, 0, capacity),
		written:      make([]int, 0, capacity),
	}
}

// NumRows returns the number of rows currently materialized in the block.
func (b *ItemBlock) NumRows() int { return len(b.rows) }

// NumRegisters returns the register width of the block.
func (b *ItemBlock) NumRegisters() int { return b.nrRegs }

// appendRow grows the block by one row, all registers nil, marked as a data
// row (shadow depth shadowNone).
func (b *ItemBlock) appendRow() int {
	b.rows = append(b.rows, make([]any, b.nrRegs))
	b.shadowDepths = append(b.shadowDepths, shadowNone)
	b.written = append(b.written, 0)
	return len(b.rows) - 1
}

// IsShadowRow reports whether row i is a shadow row.
func (b *ItemBlock) IsShadowRow(i int) bool { return b.shadowDepths[i] != shadowNone }

// ShadowDepth returns the nesting depth of a shadow row; callers must check
// IsShadowRow first.
func (b *ItemBlock) ShadowDepth(i int) int { return b.shadowDepths[i] }

// Get reads register reg of row i.
func (b *ItemBlock) Get(i int, reg RegisterID) any { return b.rows[i][reg] }

// Shrink truncates the block to n rows, used by stealBlock to drop
// unwritten trailing capacity.
func (b *ItemBlock) Shrink(n int) {
	b.rows = b.rows[:n]
	b.shadowDepths = b.shadowDepths[:n]
	b.written = b.written[:n]
}

// InputRow is a read-only cursor into one row of an upstream block.
type InputRow struct {
	Block *ItemBlock
	Index int
}

// Valid reports whether the cursor names a real row (false for the
// zero-value InputRow, used as a "no source row" sentinel).
func (r InputRow) Valid() bool { return r.Block != nil }

// IsShadowRow reports whether the row under the cursor is a shadow row.
func (r InputRow) IsShadowRow() bool { return r.Block.IsShadowRow(r.Index) }

// ShadowDepth returns the row's shadow nesting depth; valid only when
// IsShadowRow is true.
func (r InputRow) ShadowDepth() int { return r.Block.ShadowDepth(r.Index) }

// Get reads register reg of the row under the cursor.
func (r InputRow) Get(reg RegisterID) any { return r.Block.Get(r.Index, reg) }

// sameSource reports whether two input rows name the identical (block,
// index) pair — the equality-by-identity test that drives same-source
// memoization in OutputRow.copyRow.
func sameSource(a, b InputRow) bool { return a.Block == b.Block && a.Index == b.Index }

// OutputRow writes rows into a destination block one register at a time,
// then advances to the next row once every required register has a value
// or the row has been fully copied from a source row. At most one write
// (clone or move) may land in any given (row, register) cell.
type OutputRow struct {
	block          *ItemBlock
	outputRegs     map[RegisterID]struct{}
	regsToKeep     []RegisterID
	baseIndex      int
	lastSourceRow  InputRow
	haveLastSource bool
	written        map[RegisterID]struct{} // per-current-row bookkeeping
}

// NewOutputRow creates a writer over block, with outputRegs naming the
// registers the current executor is responsible for filling, and
// regsToKeep naming the registers copyRow copies over from a source row.
func NewOutputRow(block *ItemBlock, outputRegs []RegisterID, regsToKeep []RegisterID) *OutputRow {
	set := make(map[RegisterID]struct{}, len(outputRegs))
	for _, r := range outputRegs {
		set[r] = struct{}{}
	}
	return &OutputRow{
		block:      block,
		outputRegs: set,
		regsToKeep: regsToKeep,
		written:    make(map[RegisterID]struct{}),
	}
}

// IsOutputRegister reports whether r is in the declared output set of the
// current executor.
func (o *OutputRow) IsOutputRegister(reg RegisterID) bool {
	_, ok := o.outputRegs[reg]
	return ok
}

func (o *OutputRow) ensureRow() int {
	for o.block.NumRows() <= o.baseIndex {
		o.block.appendRow()
	}
	return o.baseIndex
}

// CloneValueInto writes a value into register reg of the current row,
// attributing its provenance to sourceRow (used by same-source
// memoization). It is a programming error to write the same (row,
// register) cell twice; violating that invariant panics, matching the
// "at most one move into each cell" contract.
func (o *OutputRow) CloneValueInto(reg RegisterID, sourceRow InputRow, value any) {
	idx := o.ensureRow()
	if _, already := o.written[reg]; already {
		panic(fmt.Sprintf("row: register %d written twice into row %d", reg, idx))
	}
	o.block.rows[idx][reg] = value
	o.written[reg] = struct{}{}
	o.block.written[idx]++
	o.lastSourceRow = sourceRow
	o.haveLastSource = true
}

// MoveValueInto is CloneValueInto's move variant: ownership of value passes
// to the output block. guard is invoked (if non-nil) once the value has
// been transferred, giving the caller a chance to release any resource tied
// to the original owner without a silent copy.
func (o *OutputRow) MoveValueInto(reg RegisterID, sourceRow InputRow, value any, guard func()) {
	o.CloneValueInto(reg, sourceRow, value)
	if guard != nil {
		guard()
	}
}

// AllValuesWritten reports whether every declared output register has been
// written for the current row.
func (o *OutputRow) AllValuesWritten() bool {
	return len(o.written) >= len(o.outputRegs)
}

// CopyRow copies every register-to-keep from sourceRow into the current
// row, called once AllValuesWritten fires. When sourceRow is the identical
// (block, index) pair as the previous call's source, it issues a bulk
// copyValuesFromRow between adjacent indices instead of re-cloning values
// one at a time — register-preserving blocks (filter, limit) repeatedly
// derive output rows from the same input row and should not pay a
// per-register clone cost for it.
func (o *OutputRow) CopyRow(sourceRow InputRow) {
	idx := o.ensureRow()
	if o.haveLastSource && sameSource(o.lastSourceRow, sourceRow) && idx > 0 {
		o.copyValuesFromRow(idx, idx-1)
	} else {
		for _, reg := range o.regsToKeep {
			o.block.rows[idx][reg] = sourceRow.Get(reg)
		}
	}
	o.lastSourceRow = sourceRow
	o.haveLastSource = true
}

// copyValuesFromRow bulk-copies every register-to-keep from row `from` to
// row `to` within the destination block.
func (o *OutputRow) copyValuesFromRow(to, from int) {
	for _, reg := range o.regsToKeep {
		o.block.rows[to][reg] = o.block.rows[from][reg]
	}
}

// AdvanceRow requires the current row to have been produced (every output
// register written, or copied via CopyRow) and moves the cursor to the next
// row, resetting per-row bookkeeping.
func (o *OutputRow) AdvanceRow() {
	o.baseIndex++
	o.written = make(map[RegisterID]struct{})
}

// NumRowsWritten returns how many rows have been fully advanced past.
func (o *OutputRow) NumRowsWritten() int { return o.baseIndex }

// CreateShadowRow emits a shadow row at the current index, carrying
// sourceRow's shadow depth unchanged. Same-block shadow-row creation by the
// block that is also writing data rows into this output is the caller's
// responsibility to avoid: a shadow-producing block must target a
// different output block than its own data-row output.
func (o *OutputRow) CreateShadowRow(sourceRow InputRow) {
	idx := o.ensureRow()
	depth := shadowNone
	if sourceRow.Valid() && sourceRow.IsShadowRow() {
		depth = sourceRow.ShadowDepth()
	} else {
		depth = 0
	}
	o.block.shadowDepths[idx] = depth
	o.AdvanceRow()
}

// IncreaseShadowRowDepth writes a shadow row one level deeper than
// sourceRow's current depth — entering a new subquery level.
func (o *OutputRow) IncreaseShadowRowDepth(sourceRow InputRow) {
	idx := o.ensureRow()
	depth := 0
	if sourceRow.Valid() && sourceRow.IsShadowRow() {
		depth = sourceRow.ShadowDepth() + 1
	}
	o.block.shadowDepths[idx] = depth
	o.AdvanceRow()
}

// DecreaseShadowRowDepth writes a shadow row one level shallower than
// sourceRow's depth. Requires sourceRow be an irrelevant shadow row
// (depth > 0); it is undefined behavior otherwise and this implementation
// panics rather than silently producing a relevant row with no data.
func (o *OutputRow) DecreaseShadowRowDepth(sourceRow InputRow) {
	if !sourceRow.Valid() || !sourceRow.IsShadowRow() || sourceRow.ShadowDepth() <= 0 {
		panic("row: DecreaseShadowRowDepth requires an irrelevant (depth > 0) shadow row source")
	}
	idx := o.ensureRow()
	o.block.shadowDepths[idx] = sourceRow.ShadowDepth() - 1
	o.AdvanceRow()
}

// StealBlock transfers ownership of the produced block to the caller,
// shrunk to NumRowsWritten rows. If zero rows were written, it returns nil
// for the block and false, signaling the caller should not forward an
// empty block downstream.
func (o *OutputRow) StealBlock() (*ItemBlock, bool) {
	if o.baseIndex == 0 {
		return nil, false
	}
	o.block.Shrink(o.baseIndex)
	stolen := o.block
	o.block = nil
	return stolen, true
}
