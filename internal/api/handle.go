package api

import (
	"context"

	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/handles"
	"docstore-odbc/pkg/sqlreturn"
)

// AllocHandle allocates a handle of the requested kind under the parent.
// Environments take a null parent; connections are allocated under an
// environment, statements and descriptors under a connection.
func AllocHandle(kind handles.Kind, parent handles.Handle) (handles.Handle, sqlreturn.Code) {
	if kind == handles.KindEnvironment {
		// No parent ledger exists yet to guard into; allocation itself only
		// fails on resource exhaustion, which panics process-wide anyway.
		h := handles.AllocEnvironment()
		observeAlloc("SQLAllocHandle", sqlreturn.Success)
		return h, sqlreturn.Success
	}

	var out handles.Handle
	code := guard("SQLAllocHandle", parent, func(target handles.Object) sqlreturn.Code {
		claim(target)
		var derr *diag.Error
		switch kind {
		case handles.KindConnection:
			out, derr = handles.AllocConnection(parent)
		case handles.KindStatement:
			out, derr = handles.AllocStatement(parent)
		case handles.KindDescriptor:
			out, derr = handles.AllocDescriptor(parent)
		default:
			derr = diag.New(diag.InvalidAttrValue, "API", "unknown handle kind %d", int(kind))
		}
		if derr != nil {
			return fail(target, derr)
		}
		return sqlreturn.Success
	})
	return out, code
}

func observeAlloc(entry string, code sqlreturn.Code) {
	observe(entry, code, 0)
}

// FreeHandle destroys the handle, releasing any cursor and result-set state
// it still holds. Freeing an environment with outstanding connections is a
// contract violation reported on the environment's ledger.
func FreeHandle(h handles.Handle) sqlreturn.Code {
	return guard("SQLFreeHandle", h, func(target handles.Object) sqlreturn.Code {
		claim(target)
		if derr := handles.Free(context.Background(), h); derr != nil {
			return fail(target, derr)
		}
		return sqlreturn.Success
	})
}

// GetDiagRec retrieves the recNumber-th (1-based) diagnostic record of the
// handle. It never mutates the ledger, so callers can walk all records.
func GetDiagRec(h handles.Handle, recNumber int) (diag.Record, sqlreturn.Code) {
	var rec diag.Record
	code := guard("SQLGetDiagRec", h, func(target handles.Object) sqlreturn.Code {
		r, ok := target.Diagnostics().Get(recNumber)
		if !ok {
			return sqlreturn.NoData
		}
		rec = r
		return sqlreturn.Success
	})
	return rec, code
}
