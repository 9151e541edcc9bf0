package api

import (
	"time"

	"docstore-odbc/internal/config"
	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/handles"
	"docstore-odbc/pkg/sqlreturn"
)

// Environment attributes.
const (
	EnvAttrOdbcVersion = 200
)

// Supported protocol revisions for EnvAttrOdbcVersion.
const (
	OdbcVersion3  = 3
	OdbcVersion38 = 380
)

// Connection attributes.
const (
	ConnAttrCurrentCatalog = 109
	ConnAttrLoginTimeout   = 103
	ConnAttrConnectionDead = 1209
)

// Statement attributes.
const (
	StmtAttrMaxLength = 3
)

// SetEnvAttr sets an environment attribute. Only the protocol version is
// writable; requesting a version other than 3.x downgrades to 3 with an
// option-value-changed warning.
func SetEnvAttr(h handles.Handle, attr int, value int64) sqlreturn.Code {
	return environmentOp("SQLSetEnvAttr", h, func(env *handles.Environment) sqlreturn.Code {
		switch attr {
		case EnvAttrOdbcVersion:
			switch value {
			case OdbcVersion3, OdbcVersion38:
				env.OdbcVersion = int32(value)
				return sqlreturn.Success
			default:
				env.OdbcVersion = OdbcVersion3
				return fail(env, diag.NewWarning(diag.OptionValueChanged, "API",
					"protocol version %d not supported, using 3", value))
			}
		default:
			return fail(env, diag.New(diag.InvalidAttrIdentifier, "API", "unknown environment attribute %d", attr))
		}
	})
}

// GetEnvAttr reads an environment attribute.
func GetEnvAttr(h handles.Handle, attr int) (int64, sqlreturn.Code) {
	var out int64
	code := environmentOp("SQLGetEnvAttr", h, func(env *handles.Environment) sqlreturn.Code {
		switch attr {
		case EnvAttrOdbcVersion:
			out = int64(env.OdbcVersion)
			return sqlreturn.Success
		default:
			return fail(env, diag.New(diag.InvalidAttrIdentifier, "API", "unknown environment attribute %d", attr))
		}
	})
	return out, code
}

// SetConnectAttr sets a connection attribute. Attributes set before connect
// act as defaults that the connection string may override.
func SetConnectAttr(h handles.Handle, attr int, value any) sqlreturn.Code {
	return connectionOp("SQLSetConnectAttr", h, func(conn *handles.Connection) sqlreturn.Code {
		if conn.Config == nil {
			conn.Config = &config.Connection{}
		}
		switch attr {
		case ConnAttrCurrentCatalog:
			name, ok := value.(string)
			if !ok {
				return fail(conn, diag.New(diag.InvalidAttrValue, "API", "current catalog takes a string"))
			}
			conn.Config.Database = name
			return sqlreturn.Success
		case ConnAttrLoginTimeout:
			secs, ok := value.(int64)
			if !ok || secs < 0 {
				return fail(conn, diag.New(diag.InvalidAttrValue, "API", "login timeout takes a non-negative integer"))
			}
			conn.Config.Timeout = time.Duration(secs) * time.Second
			return sqlreturn.Success
		case ConnAttrConnectionDead:
			return fail(conn, diag.New(diag.InvalidAttrValue, "API", "connection-dead is read-only"))
		default:
			return fail(conn, diag.New(diag.InvalidAttrIdentifier, "API", "unknown connection attribute %d", attr))
		}
	})
}

// GetConnectAttr reads a connection attribute.
func GetConnectAttr(h handles.Handle, attr int) (any, sqlreturn.Code) {
	var out any
	code := connectionOp("SQLGetConnectAttr", h, func(conn *handles.Connection) sqlreturn.Code {
		switch attr {
		case ConnAttrCurrentCatalog:
			if conn.Config != nil {
				out = conn.Config.Database
			} else {
				out = ""
			}
			return sqlreturn.Success
		case ConnAttrLoginTimeout:
			if conn.Config != nil {
				out = int64(conn.Config.Timeout / time.Second)
			} else {
				out = int64(0)
			}
			return sqlreturn.Success
		case ConnAttrConnectionDead:
			out = !conn.Connected
			return sqlreturn.Success
		default:
			return fail(conn, diag.New(diag.InvalidAttrIdentifier, "API", "unknown connection attribute %d", attr))
		}
	})
	return out, code
}

// SetStmtAttr sets a statement attribute. Max length clamps variable-length
// string columns for result sets opened afterwards.
func SetStmtAttr(h handles.Handle, attr int, value int64) sqlreturn.Code {
	return statementOp("SQLSetStmtAttr", h, func(stmt *handles.Statement) sqlreturn.Code {
		switch attr {
		case StmtAttrMaxLength:
			if value < 0 {
				return fail(stmt, diag.New(diag.InvalidAttrValue, "API", "max length takes a non-negative integer"))
			}
			stmt.Cursor.SetMaxStringLength(int(value))
			return sqlreturn.Success
		default:
			return fail(stmt, diag.New(diag.InvalidAttrIdentifier, "API", "unknown statement attribute %d", attr))
		}
	})
}

// GetStmtAttr reads a statement attribute.
func GetStmtAttr(h handles.Handle, attr int) (int64, sqlreturn.Code) {
	var out int64
	code := statementOp("SQLGetStmtAttr", h, func(stmt *handles.Statement) sqlreturn.Code {
		switch attr {
		case StmtAttrMaxLength:
			out = int64(stmt.Cursor.MaxStringLength())
			return sqlreturn.Success
		default:
			return fail(stmt, diag.New(diag.InvalidAttrIdentifier, "API", "unknown statement attribute %d", attr))
		}
	})
	return out, code
}
