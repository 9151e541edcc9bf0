// Package engine implements the statement execution and row-streaming state
// machine that sits between the boundary surface and the backend: it drives
// the external compiler, owns the statement's single cursor, and streams one
// logical row per fetch through the type marshaler.
package engine

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/translator"
	"docstore-odbc/internal/typemap"
)

const component = "engine"

// State is the cursor lifecycle state.
type State int

const (
	StateUnprepared State = iota
	StatePrepared
	StateExecuting
	StateHasRows
	StateExhausted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnprepared:
		return "unprepared"
	case StatePrepared:
		return "prepared"
	case StateExecuting:
		return "executing"
	case StateHasRows:
		return "has-rows"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// NullData is the length-indicator value signaling a null cell, distinct
// from zero-length data.
const NullData int64 = -1

// BoundColumn is a caller-owned buffer registered for one result column.
// The driver writes into it on every fetch and never takes ownership.
type BoundColumn struct {
	Target    typemap.CDataType
	Buffer    []byte
	Indicator *int64
}

// Cursor is the per-statement execution state machine. At most one result
// set is open per statement; re-executing implicitly closes the prior one.
// A Cursor is not safe for concurrent use, matching the handle threading
// contract.
type Cursor struct {
	state           State
	plan            *translator.Plan
	rows            translator.RowCursor
	cols            []typemap.ColumnDescriptor
	current         bson.Raw
	rowCount        int64
	bound           map[int]BoundColumn
	maxStringLength int
}

// New creates an unprepared cursor. maxStringLength clamps variable-length
// string columns' display size when non-zero.
func New(maxStringLength int) *Cursor {
	return &Cursor{bound: map[int]BoundColumn{}, maxStringLength: maxStringLength}
}

// State returns the current lifecycle state.
func (c *Cursor) State() State { return c.state }

// SetMaxStringLength overrides the string-length clamp. It applies to result
// sets opened after the call; an open result set keeps its descriptors.
func (c *Cursor) SetMaxStringLength(n int) { c.maxStringLength = n }

// MaxStringLength reports the current string-length clamp, zero for
// unlimited.
func (c *Cursor) MaxStringLength() int { return c.maxStringLength }

// RowCount returns the number of rows delivered so far.
func (c *Cursor) RowCount() int64 { return c.rowCount }

// Columns returns the cached descriptors of the active result set, nil when
// no result set is open.
func (c *Cursor) Columns() []typemap.ColumnDescriptor { return c.cols }

// Prepare compiles the statement. On failure the cursor state is unchanged
// so the caller may retry with corrected text.
func (c *Cursor) Prepare(ctx context.Context, compiler translator.Compiler, database, sql string) *diag.Error {
	plan, err := compiler.Compile(ctx, database, sql)
	if err != nil {
		return asDiag(err)
	}
	if c.rows != nil {
		c.closeRows(ctx)
	}
	c.plan = plan
	c.state = StatePrepared
	return nil
}

// Execute opens the result set for the prepared plan. Re-executing a
// statement that already has an open cursor closes the old cursor first, so
// no statement ever holds two.
func (c *Cursor) Execute(ctx context.Context, executor translator.Executor) *diag.Error {
	if c.plan == nil {
		return diag.New(diag.FunctionSequenceError, component, "execute called on an unprepared statement")
	}
	if c.rows != nil {
		c.closeRows(ctx)
		c.state = StatePrepared
	}

	rows, err := executor.Run(ctx, c.plan)
	if err != nil {
		c.state = StateClosed
		return asDiag(err)
	}
	c.rows = rows
	c.cols = typemap.DescribeAll(c.plan.Columns, c.maxStringLength)
	c.current = nil
	c.rowCount = 0
	c.state = StateExecuting
	return nil
}

// SetResultSet installs a pre-materialized result set, used by the catalog
// operations so they share the fetch and get-data path with real queries.
func (c *Cursor) SetResultSet(ctx context.Context, cols []typemap.ColumnDescriptor, rows translator.RowCursor) {
	if c.rows != nil {
		c.closeRows(ctx)
	}
	c.plan = nil
	c.rows = rows
	c.cols = cols
	c.current = nil
	c.rowCount = 0
	c.state = StateExecuting
}

// Fetch advances one logical row. It reports whether a row is available;
// fetching past the end stays on Exhausted without error. A backend failure
// forces the cursor Closed: rows already delivered remain valid, no more are
// retrievable.
func (c *Cursor) Fetch(ctx context.Context) (bool, *diag.Error) {
	switch c.state {
	case StateExecuting, StateHasRows:
	case StateExhausted:
		return false, nil
	default:
		return false, diag.New(diag.InvalidCursorState, component, "fetch called with cursor state %s", c.state)
	}

	row, ok, err := c.rows.Next(ctx)
	if err != nil {
		c.forceClose(ctx)
		derr := asDiag(err)
		derr.Message += " (cursor closed)"
		return false, derr
	}
	if !ok {
		c.current = nil
		c.state = StateExhausted
		return false, nil
	}
	c.current = row
	c.rowCount++
	c.state = StateHasRows

	return true, c.fillBoundColumns()
}

// fillBoundColumns writes the current row into every registered bound
// buffer. Conversion warnings surface; conversion errors on one column do
// not disturb the others.
func (c *Cursor) fillBoundColumns() *diag.Error {
	var first *diag.Error
	for ordinal, bc := range c.bound {
		res, err := c.writeColumn(ordinal, bc.Target, bc.Buffer)
		if bc.Indicator != nil {
			if res.Null {
				*bc.Indicator = NullData
			} else {
				*bc.Indicator = int64(res.BytesAvailable)
			}
		}
		if err != nil && first == nil {
			err.Row = c.rowCount
			err.Column = int32(ordinal)
			first = err
		}
	}
	return first
}

// GetData converts the current row's value for the column into the caller's
// buffer. Valid only while a row is available.
func (c *Cursor) GetData(ordinal int, target typemap.CDataType, buf []byte) (typemap.WriteResult, *diag.Error) {
	if c.state != StateHasRows {
		return typemap.WriteResult{}, diag.New(diag.InvalidCursorState, component, "get-data called with cursor state %s", c.state)
	}
	return c.writeColumn(ordinal, target, buf)
}

func (c *Cursor) writeColumn(ordinal int, target typemap.CDataType, buf []byte) (typemap.WriteResult, *diag.Error) {
	if ordinal < 1 || ordinal > len(c.cols) {
		return typemap.WriteResult{}, diag.New(diag.InvalidDescriptorIndex, component, "column ordinal %d out of range 1..%d", ordinal, len(c.cols))
	}
	res, err := typemap.Write(c.valueAt(ordinal), target, buf)
	if err != nil {
		err.Row = c.rowCount
		err.Column = int32(ordinal)
	}
	return res, err
}

// valueAt resolves the cell for a column on the current row. Result rows
// nest fields under their datasource name; a missing cell is a null.
func (c *Cursor) valueAt(ordinal int) bson.RawValue {
	d := c.cols[ordinal-1]
	if d.Table != "" {
		return c.current.Lookup(d.Table, d.Name)
	}
	return c.current.Lookup(d.Name)
}

// BindColumn registers (or with a nil buffer, removes) a caller-owned buffer
// for the column. The binding survives across fetches until unbound.
func (c *Cursor) BindColumn(ordinal int, bc BoundColumn) *diag.Error {
	if ordinal < 1 {
		return diag.New(diag.InvalidDescriptorIndex, component, "column ordinal %d is not positive", ordinal)
	}
	if bc.Buffer == nil {
		delete(c.bound, ordinal)
		return nil
	}
	c.bound[ordinal] = bc
	return nil
}

// UnbindAll drops all column bindings.
func (c *Cursor) UnbindAll() {
	c.bound = map[int]BoundColumn{}
}

// Close releases the backend cursor and the cached descriptors, returning
// the statement to Prepared (or Unprepared when it never had a plan).
// Closing an already-closed cursor is a no-op.
func (c *Cursor) Close(ctx context.Context) {
	if c.rows != nil {
		c.closeRows(ctx)
	}
	c.cols = nil
	c.current = nil
	if c.plan != nil {
		c.state = StatePrepared
	} else {
		c.state = StateUnprepared
	}
}

// forceClose is the failure path: the cursor lands in Closed, from which
// only re-prepare/re-execute or freeing the statement recover.
func (c *Cursor) forceClose(ctx context.Context) {
	if c.rows != nil {
		c.closeRows(ctx)
	}
	c.cols = nil
	c.current = nil
	c.state = StateClosed
}

func (c *Cursor) closeRows(ctx context.Context) {
	_ = c.rows.Close(ctx)
	c.rows = nil
}

// asDiag coerces any error into a diagnostic, defaulting to the general
// error state for failures that did not originate in this driver.
func asDiag(err error) *diag.Error {
	if de, ok := err.(*diag.Error); ok {
		return de
	}
	return diag.New(diag.GeneralError, component, "%v", err)
}
