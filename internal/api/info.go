package api

import (
	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/handles"
	"docstore-odbc/pkg/sqlreturn"
)

// Driver identity reported through GetInfo.
const (
	DriverName    = "docstore-odbc"
	DriverVersion = "1.0.0"
	DBMSName      = "DocstoreDB"
)

// InfoType keys understood by GetInfo.
type InfoType int

const (
	InfoDriverName InfoType = iota + 1
	InfoDriverVersion
	InfoDBMSName
	InfoMaxConcurrentActivities
)

// GetInfo returns driver and data source identity strings.
func GetInfo(h handles.Handle, infoType InfoType) (string, sqlreturn.Code) {
	var value string
	code := connectionOp("SQLGetInfo", h, func(conn *handles.Connection) sqlreturn.Code {
		switch infoType {
		case InfoDriverName:
			value = DriverName
		case InfoDriverVersion:
			value = DriverVersion
		case InfoDBMSName:
			value = DBMSName
		case InfoMaxConcurrentActivities:
			// One active statement per connection worker.
			value = "1"
		default:
			return fail(conn, diag.New(diag.InvalidAttrIdentifier, "API", "unknown info type %d", int(infoType)))
		}
		return sqlreturn.Success
	})
	return value, code
}

// supportedFunctions is the capability-negotiation table: every entry point
// the driver exposes, true when implemented. The false entries return
// SQL_ERROR with SQLSTATE HYC00 when called.
var supportedFunctions = map[string]bool{
	"SQLAllocHandle":     true,
	"SQLFreeHandle":      true,
	"SQLFreeStmt":        true,
	"SQLDriverConnect":   true,
	"SQLDisconnect":      true,
	"SQLPrepare":         true,
	"SQLExecute":         true,
	"SQLExecDirect":      true,
	"SQLFetch":           true,
	"SQLGetData":         true,
	"SQLBindCol":         true,
	"SQLNumResultCols":   true,
	"SQLDescribeCol":     true,
	"SQLRowCount":        true,
	"SQLCloseCursor":     true,
	"SQLGetDiagRec":      true,
	"SQLGetTypeInfo":     true,
	"SQLTables":          true,
	"SQLColumns":         true,
	"SQLGetInfo":         true,
	"SQLGetFunctions":    true,
	"SQLSetEnvAttr":      true,
	"SQLGetEnvAttr":      true,
	"SQLSetConnectAttr":  true,
	"SQLGetConnectAttr":  true,
	"SQLCancel":          false,
	"SQLBrowseConnect":   false,
	"SQLBulkOperations":  false,
	"SQLSetPos":          false,
	"SQLParamData":       false,
	"SQLPutData":         false,
	"SQLMoreResults":     false,
	"SQLNativeSql":       false,
	"SQLNumParams":       false,
	"SQLBindParameter":   false,
	"SQLPrimaryKeys":     false,
	"SQLForeignKeys":     false,
	"SQLProcedures":      false,
	"SQLSpecialColumns":  false,
	"SQLStatistics":      false,
	"SQLTablePrivileges": false,
}

// GetFunctions reports whether the named entry point is implemented, the
// capability-negotiation mechanism for the deliberately unsupported surface.
func GetFunctions(h handles.Handle, function string) (bool, sqlreturn.Code) {
	var supported bool
	code := connectionOp("SQLGetFunctions", h, func(*handles.Connection) sqlreturn.Code {
		supported = supportedFunctions[function]
		return sqlreturn.Success
	})
	return supported, code
}

// The documented unsupported surface. Each returns the not-implemented
// diagnostic rather than being silently absent.

func Cancel(h handles.Handle) sqlreturn.Code         { return unimplemented("SQLCancel", h) }
func BrowseConnect(h handles.Handle) sqlreturn.Code  { return unimplemented("SQLBrowseConnect", h) }
func BulkOperations(h handles.Handle) sqlreturn.Code { return unimplemented("SQLBulkOperations", h) }
func SetPos(h handles.Handle) sqlreturn.Code         { return unimplemented("SQLSetPos", h) }
func ParamData(h handles.Handle) sqlreturn.Code      { return unimplemented("SQLParamData", h) }
func PutData(h handles.Handle) sqlreturn.Code        { return unimplemented("SQLPutData", h) }
func MoreResults(h handles.Handle) sqlreturn.Code    { return unimplemented("SQLMoreResults", h) }
