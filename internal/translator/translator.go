// Package translator defines the driver's view of the external SQL compiler:
// a black box that turns SQL text into an executable plan against the
// document store. The production compiler lives server-side in the query
// federation service (see internal/backend); an in-process mock backed by the
// vitess SQL parser serves tests and offline use.
package translator

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"docstore-odbc/internal/typemap"
)

// Plan is a compiled query: the aggregation pipeline to run plus the
// result-set schema the compiler derived for it. Columns are ordered the way
// the result set will present them.
type Plan struct {
	SQL      string
	Database string
	Pipeline []bson.D
	Columns  []typemap.FieldSchema
}

// Compiler turns SQL text into a Plan. Compilation failures carry the
// service's native error code where one exists.
type Compiler interface {
	Compile(ctx context.Context, database, sql string) (*Plan, error)
}

// Executor opens a row cursor for a compiled plan.
type Executor interface {
	Run(ctx context.Context, plan *Plan) (RowCursor, error)
}

// RowCursor streams result documents one logical row at a time; backend
// batching stays invisible behind Next. Next returns false with a nil error
// once the result set is exhausted.
type RowCursor interface {
	Next(ctx context.Context) (bson.Raw, bool, error)
	Close(ctx context.Context) error
}
