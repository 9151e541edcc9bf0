package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/engine"
	"docstore-odbc/internal/handles"
	"docstore-odbc/internal/translator"
	"docstore-odbc/internal/typemap"
	"docstore-odbc/pkg/sqlreturn"
)

func mockCompiler() *translator.MockCompiler {
	mc := translator.NewMockCompiler()
	mc.AddCollection(translator.MockCollection{
		Database: "sales",
		Name:     "orders",
		Fields: []typemap.FieldSchema{
			{Name: "item", Types: []string{"string"}},
			{Name: "qty", Types: []string{"int"}},
		},
		Docs: []bson.D{
			{{Key: "item", Value: "notebook"}, {Key: "qty", Value: int32(3)}},
			{{Key: "item", Value: "pen"}, {Key: "qty", Value: int32(12)}},
		},
	})
	return mc
}

// connect allocates the full handle tree and opens a mock-backed connection.
func connect(t *testing.T, mc *translator.MockCompiler) (env, conn, stmt handles.Handle) {
	t.Helper()
	env, code := AllocHandle(handles.KindEnvironment, handles.NullHandle)
	require.Equal(t, sqlreturn.Success, code)

	conn, code = AllocHandle(handles.KindConnection, env)
	require.Equal(t, sqlreturn.Success, code)

	require.Equal(t, sqlreturn.Success, SetCompiler(conn, mc, mc))
	require.Equal(t, sqlreturn.Success, DriverConnect(conn, "uri=mongodb://mock;database=sales"))

	stmt, code = AllocHandle(handles.KindStatement, conn)
	require.Equal(t, sqlreturn.Success, code)

	t.Cleanup(func() {
		FreeHandle(stmt)
		Disconnect(conn)
		FreeHandle(conn)
		FreeHandle(env)
	})
	return env, conn, stmt
}

func TestFullQueryLifecycle(t *testing.T) {
	_, _, stmt := connect(t, mockCompiler())

	require.Equal(t, sqlreturn.Success, ExecDirect(stmt, "select item, qty from orders"))

	n, code := NumResultCols(stmt)
	require.Equal(t, sqlreturn.Success, code)
	assert.Equal(t, 2, n)

	desc, code := DescribeCol(stmt, 1)
	require.Equal(t, sqlreturn.Success, code)
	assert.Equal(t, "item", desc.Name)
	assert.Equal(t, typemap.SQLVarchar, desc.SQLType)

	var items []string
	buf := make([]byte, 64)
	for {
		code := Fetch(stmt)
		if code == sqlreturn.NoData {
			break
		}
		require.Equal(t, sqlreturn.Success, code)
		ind, code := GetData(stmt, 1, typemap.CChar, buf)
		require.Equal(t, sqlreturn.Success, code)
		items = append(items, string(buf[:ind]))
	}
	assert.Equal(t, []string{"notebook", "pen"}, items)

	rows, code := RowCount(stmt)
	require.Equal(t, sqlreturn.Success, code)
	assert.Equal(t, int64(2), rows)

	// Fetching past the end stays on no-data and records nothing.
	assert.Equal(t, sqlreturn.NoData, Fetch(stmt))
	_, code = GetDiagRec(stmt, 1)
	assert.Equal(t, sqlreturn.NoData, code, "exhaustion is not a diagnosable condition")

	require.Equal(t, sqlreturn.Success, CloseCursor(stmt))
	assert.Equal(t, sqlreturn.Error, CloseCursor(stmt), "second close finds no open cursor")
	rec, code := GetDiagRec(stmt, 1)
	require.Equal(t, sqlreturn.Success, code)
	assert.Equal(t, diag.InvalidCursorState, rec.State)
}

func TestBoundColumnsFilledOnFetch(t *testing.T) {
	_, _, stmt := connect(t, mockCompiler())
	require.Equal(t, sqlreturn.Success, ExecDirect(stmt, "select qty from orders"))

	qty := make([]byte, 4)
	var ind int64
	require.Equal(t, sqlreturn.Success, BindCol(stmt, 1, typemap.CLong, qty, &ind))

	require.Equal(t, sqlreturn.Success, Fetch(stmt))
	assert.Equal(t, int64(4), ind)
	assert.Equal(t, byte(3), qty[0])
}

func TestGetDataBeforeExecute(t *testing.T) {
	_, _, stmt := connect(t, mockCompiler())

	_, code := GetData(stmt, 1, typemap.CChar, make([]byte, 16))
	assert.Equal(t, sqlreturn.Error, code)

	rec, diagCode := GetDiagRec(stmt, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	assert.Equal(t, diag.InvalidCursorState, rec.State)
	_, diagCode = GetDiagRec(stmt, 2)
	assert.Equal(t, sqlreturn.NoData, diagCode, "exactly one record")
}

func TestTruncationReportsSuccessWithInfo(t *testing.T) {
	_, _, stmt := connect(t, mockCompiler())
	require.Equal(t, sqlreturn.Success, ExecDirect(stmt, "select item from orders"))
	require.Equal(t, sqlreturn.Success, Fetch(stmt))

	buf := make([]byte, 4)
	ind, code := GetData(stmt, 1, typemap.CChar, buf)
	assert.Equal(t, sqlreturn.SuccessWithInfo, code)
	assert.Equal(t, int64(8), ind, "indicator reports the full length for a retry")
	assert.Equal(t, "not", string(buf[:3]))

	rec, diagCode := GetDiagRec(stmt, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	assert.Equal(t, diag.RightTruncated, rec.State)
	assert.Equal(t, int64(1), rec.Row)
	assert.Equal(t, int32(1), rec.Column)
}

func TestDiagLedgerClearedPerOperation(t *testing.T) {
	_, _, stmt := connect(t, mockCompiler())

	assert.Equal(t, sqlreturn.Error, ExecDirect(stmt, "select * from missing"))
	rec, code := GetDiagRec(stmt, 1)
	require.Equal(t, sqlreturn.Success, code)
	assert.Equal(t, diag.BaseTableNotFound, rec.State)

	// The next fresh operation clears the prior records.
	require.Equal(t, sqlreturn.Success, ExecDirect(stmt, "select * from orders"))
	_, code = GetDiagRec(stmt, 1)
	assert.Equal(t, sqlreturn.NoData, code)
}

func TestCompileErrorAllowsRetry(t *testing.T) {
	_, _, stmt := connect(t, mockCompiler())

	assert.Equal(t, sqlreturn.Error, Prepare(stmt, "this is not sql"))
	rec, code := GetDiagRec(stmt, 1)
	require.Equal(t, sqlreturn.Success, code)
	assert.Equal(t, diag.SyntaxOrAccessError, rec.State)

	require.Equal(t, sqlreturn.Success, Prepare(stmt, "select * from orders"))
	require.Equal(t, sqlreturn.Success, Execute(stmt))
}

func TestInvalidHandles(t *testing.T) {
	assert.Equal(t, sqlreturn.InvalidHandle, Fetch(handles.NullHandle))
	assert.Equal(t, sqlreturn.InvalidHandle, ExecDirect(handles.Handle(0xdeadbeef), "select 1"))

	_, conn, _ := connect(t, mockCompiler())
	// A connection handle is not a statement handle.
	assert.Equal(t, sqlreturn.InvalidHandle, Fetch(conn))
}

func TestWrongKindHandleLeavesDiagnosticsIntact(t *testing.T) {
	env, code := AllocHandle(handles.KindEnvironment, handles.NullHandle)
	require.Equal(t, sqlreturn.Success, code)
	defer FreeHandle(env)
	conn, code := AllocHandle(handles.KindConnection, env)
	require.Equal(t, sqlreturn.Success, code)
	defer FreeHandle(conn)

	// Put a record on the connection's ledger.
	require.Equal(t, sqlreturn.Error, Disconnect(conn))
	rec, diagCode := GetDiagRec(conn, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	require.Equal(t, diag.ConnectionNotOpen, rec.State)

	// A statement operation handed the connection handle bounces off with
	// invalid-handle and must not have touched the connection's ledger.
	assert.Equal(t, sqlreturn.InvalidHandle, Fetch(conn))
	assert.Equal(t, sqlreturn.InvalidHandle, ExecDirect(conn, "select 1"))

	rec, diagCode = GetDiagRec(conn, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	assert.Equal(t, diag.ConnectionNotOpen, rec.State, "record survives the misdirected calls")

	// Same the other way around: an environment operation on a connection.
	assert.Equal(t, sqlreturn.InvalidHandle, SetEnvAttr(conn, EnvAttrOdbcVersion, OdbcVersion3))
	rec, diagCode = GetDiagRec(conn, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	assert.Equal(t, diag.ConnectionNotOpen, rec.State)
}

func TestStatementOnFreedConnection(t *testing.T) {
	env, code := AllocHandle(handles.KindEnvironment, handles.NullHandle)
	require.Equal(t, sqlreturn.Success, code)
	defer FreeHandle(env)

	mc := mockCompiler()
	conn, code := AllocHandle(handles.KindConnection, env)
	require.Equal(t, sqlreturn.Success, code)
	require.Equal(t, sqlreturn.Success, SetCompiler(conn, mc, mc))
	require.Equal(t, sqlreturn.Success, DriverConnect(conn, "uri=mongodb://mock;database=sales"))

	stmt, code := AllocHandle(handles.KindStatement, conn)
	require.Equal(t, sqlreturn.Success, code)

	require.Equal(t, sqlreturn.Success, FreeHandle(conn))
	assert.Equal(t, sqlreturn.InvalidHandle, ExecDirect(stmt, "select * from orders"),
		"orphaned statement rejects use without faulting")
	assert.Equal(t, sqlreturn.Success, FreeHandle(stmt), "orphan can still be freed")
}

func TestFreeEnvironmentWithOutstandingConnection(t *testing.T) {
	env, code := AllocHandle(handles.KindEnvironment, handles.NullHandle)
	require.Equal(t, sqlreturn.Success, code)
	conn, code := AllocHandle(handles.KindConnection, env)
	require.Equal(t, sqlreturn.Success, code)

	assert.Equal(t, sqlreturn.Error, FreeHandle(env))
	rec, diagCode := GetDiagRec(env, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	assert.Equal(t, diag.FunctionSequenceError, rec.State)

	require.Equal(t, sqlreturn.Success, FreeHandle(conn))
	require.Equal(t, sqlreturn.Success, FreeHandle(env))
}

// panicExecutor simulates an internal driver fault while streaming rows.
type panicExecutor struct{ translator.Compiler }

func (p *panicExecutor) Run(context.Context, *translator.Plan) (translator.RowCursor, error) {
	return &panicCursor{}, nil
}

type panicCursor struct{}

func (*panicCursor) Next(context.Context) (bson.Raw, bool, error) { panic("index out of range") }
func (*panicCursor) Close(context.Context) error                  { return nil }

func TestPanicContainment(t *testing.T) {
	env, code := AllocHandle(handles.KindEnvironment, handles.NullHandle)
	require.Equal(t, sqlreturn.Success, code)
	defer FreeHandle(env)
	conn, code := AllocHandle(handles.KindConnection, env)
	require.Equal(t, sqlreturn.Success, code)
	defer FreeHandle(conn)

	mc := mockCompiler()
	require.Equal(t, sqlreturn.Success, SetCompiler(conn, mc, &panicExecutor{Compiler: mc}))
	require.Equal(t, sqlreturn.Success, DriverConnect(conn, "uri=mongodb://mock;database=sales"))
	defer Disconnect(conn)

	stmt, code := AllocHandle(handles.KindStatement, conn)
	require.Equal(t, sqlreturn.Success, code)
	defer FreeHandle(stmt)

	require.Equal(t, sqlreturn.Success, ExecDirect(stmt, "select * from orders"))

	assert.NotPanics(t, func() {
		assert.Equal(t, sqlreturn.Error, Fetch(stmt))
	}, "the fault never unwinds across the boundary")

	rec, diagCode := GetDiagRec(stmt, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	assert.Equal(t, diag.GeneralError, rec.State)
	assert.Contains(t, rec.Message, "internal driver error")
	_, diagCode = GetDiagRec(stmt, 2)
	assert.Equal(t, sqlreturn.NoData, diagCode, "exactly one internal-error record")

	// The handle tree remains usable after containment.
	n, code := NumResultCols(stmt)
	assert.Equal(t, sqlreturn.Success, code)
	assert.Equal(t, 2, n)
}

func TestConnectionSequenceErrors(t *testing.T) {
	env, code := AllocHandle(handles.KindEnvironment, handles.NullHandle)
	require.Equal(t, sqlreturn.Success, code)
	defer FreeHandle(env)
	conn, code := AllocHandle(handles.KindConnection, env)
	require.Equal(t, sqlreturn.Success, code)
	defer FreeHandle(conn)

	assert.Equal(t, sqlreturn.Error, Disconnect(conn), "disconnect before connect")
	rec, diagCode := GetDiagRec(conn, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	assert.Equal(t, diag.ConnectionNotOpen, rec.State)

	mc := mockCompiler()
	require.Equal(t, sqlreturn.Success, SetCompiler(conn, mc, mc))
	require.Equal(t, sqlreturn.Success, DriverConnect(conn, "uri=mongodb://mock;database=sales"))
	defer Disconnect(conn)

	assert.Equal(t, sqlreturn.Error, DriverConnect(conn, "uri=mongodb://mock"), "double connect")
	rec, diagCode = GetDiagRec(conn, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	assert.Equal(t, diag.FunctionSequenceError, rec.State)
}

func TestConnectionStringRejected(t *testing.T) {
	env, code := AllocHandle(handles.KindEnvironment, handles.NullHandle)
	require.Equal(t, sqlreturn.Success, code)
	defer FreeHandle(env)
	conn, code := AllocHandle(handles.KindConnection, env)
	require.Equal(t, sqlreturn.Success, code)
	defer FreeHandle(conn)

	mc := mockCompiler()
	require.Equal(t, sqlreturn.Success, SetCompiler(conn, mc, mc))

	assert.Equal(t, sqlreturn.Error, DriverConnect(conn, "database=sales"), "no uri or server")
	rec, diagCode := GetDiagRec(conn, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	assert.Equal(t, diag.NoDSNOrDriver, rec.State)
}

func TestEnvironmentAttributes(t *testing.T) {
	env, code := AllocHandle(handles.KindEnvironment, handles.NullHandle)
	require.Equal(t, sqlreturn.Success, code)
	defer FreeHandle(env)

	require.Equal(t, sqlreturn.Success, SetEnvAttr(env, EnvAttrOdbcVersion, OdbcVersion38))
	v, code := GetEnvAttr(env, EnvAttrOdbcVersion)
	require.Equal(t, sqlreturn.Success, code)
	assert.Equal(t, int64(OdbcVersion38), v)

	// Unsupported revisions downgrade with a warning instead of failing.
	assert.Equal(t, sqlreturn.SuccessWithInfo, SetEnvAttr(env, EnvAttrOdbcVersion, 2))
	rec, diagCode := GetDiagRec(env, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	assert.Equal(t, diag.OptionValueChanged, rec.State)
	v, _ = GetEnvAttr(env, EnvAttrOdbcVersion)
	assert.Equal(t, int64(OdbcVersion3), v)
}

func TestStatementAttributes(t *testing.T) {
	_, _, stmt := connect(t, mockCompiler())

	require.Equal(t, sqlreturn.Success, SetStmtAttr(stmt, StmtAttrMaxLength, 256))
	v, code := GetStmtAttr(stmt, StmtAttrMaxLength)
	require.Equal(t, sqlreturn.Success, code)
	assert.Equal(t, int64(256), v)

	require.Equal(t, sqlreturn.Success, ExecDirect(stmt, "select item from orders"))
	desc, code := DescribeCol(stmt, 1)
	require.Equal(t, sqlreturn.Success, code)
	assert.Equal(t, 256, desc.DisplaySize, "clamp applies to result sets opened after the change")

	assert.Equal(t, sqlreturn.Error, SetStmtAttr(stmt, 9999, 1))
	rec, diagCode := GetDiagRec(stmt, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	assert.Equal(t, diag.InvalidAttrIdentifier, rec.State)
}

func TestFreeStmtOptions(t *testing.T) {
	_, _, stmt := connect(t, mockCompiler())
	require.Equal(t, sqlreturn.Success, ExecDirect(stmt, "select item from orders"))

	require.Equal(t, sqlreturn.Success, FreeStmt(stmt, FreeStmtUnbind))
	require.Equal(t, sqlreturn.Success, FreeStmt(stmt, FreeStmtClose))

	s, derr := handles.AsStatement(stmt)
	require.Nil(t, derr)
	assert.Equal(t, engine.StatePrepared, s.Cursor.State(), "close keeps the prepared plan")

	assert.Equal(t, sqlreturn.Error, FreeStmt(stmt, 42))
}

func TestGetFunctionsAndUnimplemented(t *testing.T) {
	_, conn, stmt := connect(t, mockCompiler())

	ok, code := GetFunctions(conn, "SQLFetch")
	require.Equal(t, sqlreturn.Success, code)
	assert.True(t, ok)

	ok, code = GetFunctions(conn, "SQLBulkOperations")
	require.Equal(t, sqlreturn.Success, code)
	assert.False(t, ok)

	assert.Equal(t, sqlreturn.Error, BulkOperations(stmt))
	rec, diagCode := GetDiagRec(stmt, 1)
	require.Equal(t, sqlreturn.Success, diagCode)
	assert.Equal(t, diag.NotImplemented, rec.State)
	assert.Contains(t, rec.Message, "SQLBulkOperations")
}

func TestGetInfo(t *testing.T) {
	_, conn, _ := connect(t, mockCompiler())

	name, code := GetInfo(conn, InfoDBMSName)
	require.Equal(t, sqlreturn.Success, code)
	assert.Equal(t, DBMSName, name)

	_, code = GetInfo(conn, InfoType(999))
	assert.Equal(t, sqlreturn.Error, code)
}
