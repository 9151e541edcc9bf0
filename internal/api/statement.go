package api

import (
	"context"

	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/engine"
	"docstore-odbc/internal/handles"
	"docstore-odbc/internal/typemap"
	"docstore-odbc/pkg/sqlreturn"
)

// statementOp resolves the statement handle, claims its ledger and runs the
// operation; every statement entry point funnels through it.
func statementOp(entry string, h handles.Handle, fn func(stmt *handles.Statement) sqlreturn.Code) sqlreturn.Code {
	return guard(entry, h, func(handles.Object) sqlreturn.Code {
		stmt, derr := handles.AsStatement(h)
		if derr != nil {
			return sqlreturn.InvalidHandle
		}
		claim(stmt)
		return fn(stmt)
	})
}

func requireConnected(stmt *handles.Statement) *diag.Error {
	if stmt.Conn == nil || !stmt.Conn.Connected || stmt.Conn.Compiler == nil {
		return diag.New(diag.ConnectionNotOpen, "API", "statement's connection is not open")
	}
	return nil
}

func currentDatabase(stmt *handles.Statement) string {
	if stmt.Conn != nil && stmt.Conn.Config != nil {
		return stmt.Conn.Config.Database
	}
	return ""
}

// Prepare compiles the statement text. On compile failure the cursor state
// is unchanged and the call may be retried.
func Prepare(h handles.Handle, sql string) sqlreturn.Code {
	return statementOp("SQLPrepare", h, func(stmt *handles.Statement) sqlreturn.Code {
		if derr := requireConnected(stmt); derr != nil {
			return fail(stmt, derr)
		}
		if derr := stmt.Cursor.Prepare(context.Background(), stmt.Conn.Compiler, currentDatabase(stmt), sql); derr != nil {
			return fail(stmt, derr)
		}
		return sqlreturn.Success
	})
}

// Execute opens the result set for a prepared statement, implicitly closing
// any cursor a prior execution left open.
func Execute(h handles.Handle) sqlreturn.Code {
	return statementOp("SQLExecute", h, func(stmt *handles.Statement) sqlreturn.Code {
		if derr := requireConnected(stmt); derr != nil {
			return fail(stmt, derr)
		}
		if derr := stmt.Cursor.Execute(context.Background(), stmt.Conn.Executor); derr != nil {
			return fail(stmt, derr)
		}
		return sqlreturn.Success
	})
}

// ExecDirect prepares and executes in one call.
func ExecDirect(h handles.Handle, sql string) sqlreturn.Code {
	return statementOp("SQLExecDirect", h, func(stmt *handles.Statement) sqlreturn.Code {
		if derr := requireConnected(stmt); derr != nil {
			return fail(stmt, derr)
		}
		ctx := context.Background()
		if derr := stmt.Cursor.Prepare(ctx, stmt.Conn.Compiler, currentDatabase(stmt), sql); derr != nil {
			return fail(stmt, derr)
		}
		if derr := stmt.Cursor.Execute(ctx, stmt.Conn.Executor); derr != nil {
			return fail(stmt, derr)
		}
		return sqlreturn.Success
	})
}

// Fetch advances one logical row, filling bound column buffers. Returns
// SQL_NO_DATA once the result set is exhausted; fetching again stays on
// SQL_NO_DATA.
func Fetch(h handles.Handle) sqlreturn.Code {
	return statementOp("SQLFetch", h, func(stmt *handles.Statement) sqlreturn.Code {
		ok, derr := stmt.Cursor.Fetch(context.Background())
		if derr != nil {
			return fail(stmt, derr)
		}
		if !ok {
			return sqlreturn.NoData
		}
		return sqlreturn.Success
	})
}

// GetData converts the current row's value for the 1-based column ordinal
// into the caller's buffer. The returned indicator is the untruncated byte
// length of the converted value, or NullData for a null cell, so callers can
// size a retry buffer after truncation.
func GetData(h handles.Handle, column int, target typemap.CDataType, buf []byte) (indicator int64, code sqlreturn.Code) {
	code = statementOp("SQLGetData", h, func(stmt *handles.Statement) sqlreturn.Code {
		res, derr := stmt.Cursor.GetData(column, target, buf)
		if res.Null {
			indicator = engine.NullData
		} else {
			indicator = int64(res.BytesAvailable)
		}
		if derr != nil {
			return fail(stmt, derr)
		}
		return sqlreturn.Success
	})
	return indicator, code
}

// BindCol registers a caller-owned buffer for the column; a nil buffer
// removes the binding. Bound buffers are filled on every Fetch.
func BindCol(h handles.Handle, column int, target typemap.CDataType, buf []byte, indicator *int64) sqlreturn.Code {
	return statementOp("SQLBindCol", h, func(stmt *handles.Statement) sqlreturn.Code {
		derr := stmt.Cursor.BindColumn(column, engine.BoundColumn{
			Target:    target,
			Buffer:    buf,
			Indicator: indicator,
		})
		if derr != nil {
			return fail(stmt, derr)
		}
		return sqlreturn.Success
	})
}

// NumResultCols reports the column count of the active result set, zero when
// no result set is open.
func NumResultCols(h handles.Handle) (int, sqlreturn.Code) {
	var n int
	code := statementOp("SQLNumResultCols", h, func(stmt *handles.Statement) sqlreturn.Code {
		n = len(stmt.Cursor.Columns())
		return sqlreturn.Success
	})
	return n, code
}

// DescribeCol returns the immutable descriptor of the 1-based column.
func DescribeCol(h handles.Handle, column int) (typemap.ColumnDescriptor, sqlreturn.Code) {
	var desc typemap.ColumnDescriptor
	code := statementOp("SQLDescribeCol", h, func(stmt *handles.Statement) sqlreturn.Code {
		cols := stmt.Cursor.Columns()
		if column < 1 || column > len(cols) {
			return fail(stmt, diag.New(diag.InvalidDescriptorIndex, "API", "column ordinal %d out of range 1..%d", column, len(cols)))
		}
		desc = cols[column-1]
		return sqlreturn.Success
	})
	return desc, code
}

// RowCount reports the number of rows fetched so far.
func RowCount(h handles.Handle) (int64, sqlreturn.Code) {
	var n int64
	code := statementOp("SQLRowCount", h, func(stmt *handles.Statement) sqlreturn.Code {
		n = stmt.Cursor.RowCount()
		return sqlreturn.Success
	})
	return n, code
}

// CloseCursor releases the open result set, returning the statement to its
// prepared state. Closing when no cursor is open reports an invalid cursor
// state, per the standard.
func CloseCursor(h handles.Handle) sqlreturn.Code {
	return statementOp("SQLCloseCursor", h, func(stmt *handles.Statement) sqlreturn.Code {
		switch stmt.Cursor.State() {
		case engine.StateExecuting, engine.StateHasRows, engine.StateExhausted:
			stmt.Cursor.Close(context.Background())
			return sqlreturn.Success
		default:
			return fail(stmt, diag.New(diag.InvalidCursorState, "API", "no cursor is open"))
		}
	})
}

// FreeStmt option values, mirroring the standard's SQLFreeStmt options.
const (
	FreeStmtClose       = 0
	FreeStmtDrop        = 1
	FreeStmtUnbind      = 2
	FreeStmtResetParams = 3
)

// FreeStmt applies one of the statement reset options. Drop frees the
// handle entirely.
func FreeStmt(h handles.Handle, option int) sqlreturn.Code {
	if option == FreeStmtDrop {
		return FreeHandle(h)
	}
	return statementOp("SQLFreeStmt", h, func(stmt *handles.Statement) sqlreturn.Code {
		switch option {
		case FreeStmtClose:
			stmt.Cursor.Close(context.Background())
		case FreeStmtUnbind:
			stmt.Cursor.UnbindAll()
		case FreeStmtResetParams:
			// Parameters are not supported; resetting them is a no-op.
		default:
			return fail(stmt, diag.New(diag.InvalidAttrValue, "API", "unknown SQLFreeStmt option %d", option))
		}
		return sqlreturn.Success
	})
}
