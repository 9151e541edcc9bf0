package api

import (
	"context"

	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/handles"
	"docstore-odbc/internal/metadata"
	"docstore-odbc/internal/translator"
	"docstore-odbc/internal/typemap"
	"docstore-odbc/pkg/sqlreturn"
)

// installResultSet places a catalog result set on the statement's cursor so
// the rows are consumed through the normal fetch/get-data path.
func installResultSet(stmt *handles.Statement, cols []typemap.ColumnDescriptor, rows translator.RowCursor, err error) sqlreturn.Code {
	if err != nil {
		return fail(stmt, asDiagError(err))
	}
	stmt.Cursor.SetResultSet(context.Background(), cols, rows)
	return sqlreturn.Success
}

// GetTypeInfo produces the static result set describing the driver's SQL
// types.
func GetTypeInfo(h handles.Handle) sqlreturn.Code {
	return statementOp("SQLGetTypeInfo", h, func(stmt *handles.Statement) sqlreturn.Code {
		cols, rows, err := metadata.TypeInfo()
		return installResultSet(stmt, cols, rows, err)
	})
}

// Tables lists collections as tables. Empty catalog means the connection's
// current database; "%" matches all databases.
func Tables(h handles.Handle, catalog, table string) sqlreturn.Code {
	return statementOp("SQLTables", h, func(stmt *handles.Statement) sqlreturn.Code {
		if derr := requireSession(stmt); derr != nil {
			return fail(stmt, derr)
		}
		cols, rows, err := metadata.Tables(context.Background(), stmt.Conn.Session, catalog, table)
		return installResultSet(stmt, cols, rows, err)
	})
}

// Columns lists the fields of matching collections with their resolved
// tabular types.
func Columns(h handles.Handle, catalog, table, column string) sqlreturn.Code {
	return statementOp("SQLColumns", h, func(stmt *handles.Statement) sqlreturn.Code {
		if derr := requireSession(stmt); derr != nil {
			return fail(stmt, derr)
		}
		cols, rows, err := metadata.Columns(context.Background(), stmt.Conn.Session, catalog, table, column)
		return installResultSet(stmt, cols, rows, err)
	})
}

// requireSession is requireConnected plus a live backend session, which the
// catalog listings need (the mock compiler has no namespace surface).
func requireSession(stmt *handles.Statement) *diag.Error {
	if derr := requireConnected(stmt); derr != nil {
		return derr
	}
	if stmt.Conn.Session == nil {
		return diag.New(diag.ConnectionNotOpen, "API", "catalog operations need a live backend session")
	}
	return nil
}
