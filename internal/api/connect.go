package api

import (
	"context"
	"sync"

	"github.com/go-pkgz/lgr"

	"docstore-odbc/internal/backend"
	"docstore-odbc/internal/config"
	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/handles"
	"docstore-odbc/internal/logging"
	"docstore-odbc/internal/translator"
	"docstore-odbc/pkg/sqlreturn"
)

var (
	loadOnce sync.Once
	defaults *config.Config
)

// driverDefaults loads the driver-wide configuration once per driver load.
func driverDefaults() *config.Config {
	loadOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			lgr.Printf("[WARN] driver configuration failed to load, using built-in defaults: %v", err)
			cfg = &config.Config{}
			cfg.Logging.Level = logging.LevelInfo
		}
		defaults = cfg
	})
	return defaults
}

// DriverConnect parses the connection string, resolves it over the driver
// defaults, and establishes the backend session. The connection's log level
// takes effect for the whole process, per the driver logging contract.
func DriverConnect(h handles.Handle, connectionString string) sqlreturn.Code {
	return connectionOp("SQLDriverConnect", h, func(conn *handles.Connection) sqlreturn.Code {
		if conn.Connected {
			return fail(conn, diag.New(diag.FunctionSequenceError, "API", "connection is already open"))
		}

		attrs, err := config.ParseConnectionString(connectionString)
		if err != nil {
			return fail(conn, diag.New(diag.NoDSNOrDriver, "API", "%v", err))
		}
		resolved, err := config.Resolve(driverDefaults(), attrs)
		if err != nil {
			return fail(conn, diag.New(diag.NoDSNOrDriver, "API", "%v", err))
		}
		logging.Init(resolved.LogLevel)

		conn.Config = resolved

		// Tests and offline tooling may have installed an in-process
		// compiler; the live session is only built when they have not.
		if conn.Compiler == nil {
			session := backend.NewSession(driverDefaults().Query.BatchSize)
			if err := session.Connect(context.Background(), resolved); err != nil {
				_ = session.Disconnect(context.Background())
				return fail(conn, asDiagError(err))
			}
			conn.Session = session
			conn.Compiler = session
			conn.Executor = session
		}
		conn.Connected = true
		lgr.Printf("[INFO] connection %s established (database=%q)", conn.ID, resolved.Database)
		return sqlreturn.Success
	})
}

// Disconnect closes the backend session. Statements still allocated on the
// connection keep their handles but lose any open cursors.
func Disconnect(h handles.Handle) sqlreturn.Code {
	return connectionOp("SQLDisconnect", h, func(conn *handles.Connection) sqlreturn.Code {
		if !conn.Connected {
			return fail(conn, diag.New(diag.ConnectionNotOpen, "API", "connection is not open"))
		}
		if conn.Session != nil {
			if err := conn.Session.Disconnect(context.Background()); err != nil {
				return fail(conn, asDiagError(err))
			}
			conn.Session = nil
			conn.Compiler = nil
			conn.Executor = nil
		}
		conn.Connected = false
		return sqlreturn.Success
	})
}

// SetCompiler installs an in-process compiler/executor pair on an unopened
// connection, bypassing the backend session. Used by tests and the shell's
// offline mode; DriverConnect still parses and applies the connection
// string.
func SetCompiler(h handles.Handle, compiler translator.Compiler, executor translator.Executor) sqlreturn.Code {
	return connectionOp("SQLSetCompiler", h, func(conn *handles.Connection) sqlreturn.Code {
		if conn.Connected {
			return fail(conn, diag.New(diag.FunctionSequenceError, "API", "connection is already open"))
		}
		conn.Compiler = compiler
		conn.Executor = executor
		return sqlreturn.Success
	})
}

// asDiagError coerces backend errors, which already carry SQLSTATE and
// native codes, into diagnostics.
func asDiagError(err error) *diag.Error {
	if de, ok := err.(*diag.Error); ok {
		return de
	}
	return diag.New(diag.GeneralError, "API", "%v", err)
}
