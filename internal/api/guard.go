// Package api is the boundary call surface of the driver: the fixed set of
// call-level-interface entry points, each executed inside the
// panic-containment guard so no internal fault ever unwinds into the host
// process.
package api

import (
	"time"

	"github.com/go-pkgz/lgr"

	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/handles"
	"docstore-odbc/pkg/sqlreturn"
)

// guard is the single chokepoint every entry point runs through. It resolves
// the target handle, runs the operation, and converts a panic into one
// internal-error diagnostic plus SQL_ERROR instead of letting it cross the
// boundary. Outcomes are logged and counted.
//
// Clearing the target's ledger is the operation's job, through claim, and
// only once it has verified the handle is the kind it operates on: a call
// that bounces off with SQL_INVALID_HANDLE must leave the handle it never
// legitimately targeted untouched.
func guard(entry string, h handles.Handle, fn func(target handles.Object) sqlreturn.Code) (ret sqlreturn.Code) {
	start := time.Now()
	target, valid := handles.Resolve(h)

	defer func() {
		elapsed := time.Since(start)
		if r := recover(); r != nil {
			ret = sqlreturn.Error
			metrics.PanicsTotal.WithLabelValues(entry).Inc()
			if valid {
				target.Diagnostics().Record(diag.InternalError(entry, r).AsRecord())
			}
			lgr.Printf("[ERROR] %s contained internal fault after %s: %v", entry, elapsed, r)
		} else {
			lgr.Printf("[TRACE] %s elapsed=%s return=%s", entry, elapsed, ret)
		}
		observe(entry, ret, elapsed)
	}()

	if !valid {
		return sqlreturn.InvalidHandle
	}
	return fn(target)
}

// claim starts a fresh top-level operation on a handle the call legitimately
// targets: prior diagnostic records are dropped before the operation can
// append new ones. Entry points that only read diagnostics back never claim.
func claim(target handles.Object) {
	target.Diagnostics().Clear()
}

// connectionOp resolves the connection handle, claims its ledger and runs the
// operation; every connection entry point funnels through it.
func connectionOp(entry string, h handles.Handle, fn func(conn *handles.Connection) sqlreturn.Code) sqlreturn.Code {
	return guard(entry, h, func(handles.Object) sqlreturn.Code {
		conn, derr := handles.AsConnection(h)
		if derr != nil {
			return sqlreturn.InvalidHandle
		}
		claim(conn)
		return fn(conn)
	})
}

// environmentOp is connectionOp for environment handles.
func environmentOp(entry string, h handles.Handle, fn func(env *handles.Environment) sqlreturn.Code) sqlreturn.Code {
	return guard(entry, h, func(handles.Object) sqlreturn.Code {
		env, derr := handles.AsEnvironment(h)
		if derr != nil {
			return sqlreturn.InvalidHandle
		}
		claim(env)
		return fn(env)
	})
}

// fail records the error on the handle's ledger and maps it to the protocol
// return code: warnings complete with info, everything else errors.
func fail(target handles.Object, err *diag.Error) sqlreturn.Code {
	target.Diagnostics().Record(err.AsRecord())
	if err.Warning {
		return sqlreturn.SuccessWithInfo
	}
	return sqlreturn.Error
}

// unimplemented reports a standard entry point this driver deliberately does
// not provide. Callers discover these up front through GetFunctions.
func unimplemented(entry string, h handles.Handle) sqlreturn.Code {
	return guard(entry, h, func(target handles.Object) sqlreturn.Code {
		claim(target)
		return fail(target, diag.Unimplemented(entry))
	})
}
