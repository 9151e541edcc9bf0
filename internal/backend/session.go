package backend

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"docstore-odbc/internal/config"
	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/translator"
	"docstore-odbc/internal/typemap"
)

const component = "backend"

// Session is one connection's backend state: the client handle, the current
// database, and the worker that owns both. A Session is used by one
// connection handle at a time; the call-level interface's threading contract
// leaves serialization to the caller.
type Session struct {
	worker    *Worker
	client    *mongo.Client
	database  string
	timeout   time.Duration
	batchSize int32
	connected bool
}

// NewSession creates a disconnected session with its own worker.
func NewSession(batchSize int32) *Session {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Session{worker: NewWorker(), batchSize: batchSize}
}

// Database returns the connection's current database.
func (s *Session) Database() string { return s.database }

// Connected reports whether Connect succeeded and Disconnect has not run.
func (s *Session) Connected() bool { return s.connected }

// opContext applies the configured operation timeout.
func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// Connect establishes and verifies the client connection described by the
// resolved connection configuration.
func (s *Session) Connect(ctx context.Context, cfg *config.Connection) error {
	s.database = cfg.Database
	s.timeout = cfg.Timeout

	var connErr error
	err := s.worker.Do(func() {
		opts := options.Client().ApplyURI(cfg.URI)
		if cfg.AppName != "" {
			opts = opts.SetAppName(cfg.AppName)
		}
		opCtx, cancel := s.opContext(ctx)
		defer cancel()

		client, err := mongo.Connect(opCtx, opts)
		if err != nil {
			connErr = wrapError(err, "cannot create client")
			return
		}
		if err := client.Ping(opCtx, nil); err != nil {
			_ = client.Disconnect(context.Background())
			connErr = wrapConnectError(err)
			return
		}
		s.client = client
		s.connected = true
	})
	if err != nil {
		return wrapError(err, "connect")
	}
	return connErr
}

// Disconnect tears the client down and stops the worker. The session cannot
// be reused afterwards.
func (s *Session) Disconnect(ctx context.Context) error {
	var dErr error
	err := s.worker.Do(func() {
		if s.client != nil {
			opCtx, cancel := s.opContext(ctx)
			defer cancel()
			dErr = s.client.Disconnect(opCtx)
			s.client = nil
		}
		s.connected = false
	})
	s.worker.Close()
	if err != nil && !errors.Is(err, ErrWorkerClosed) {
		return wrapError(err, "disconnect")
	}
	if dErr != nil {
		return wrapError(dErr, "disconnect")
	}
	return nil
}

// Compile asks the query service for the result-set schema of the statement.
// This is the driver's entire view of SQL compilation: a statement either
// yields a schema (and later a cursor) or a compile error with the service's
// native code.
func (s *Session) Compile(ctx context.Context, database, sql string) (*translator.Plan, error) {
	if database == "" {
		database = s.database
	}
	if database == "" {
		return nil, diag.New(diag.ConnectionNotOpen, component, "no current database for statement compilation")
	}

	var plan *translator.Plan
	var cmdErr error
	err := s.worker.Do(func() {
		opCtx, cancel := s.opContext(ctx)
		defer cancel()

		cmd := bson.D{
			{Key: "sqlGetResultSchema", Value: 1},
			{Key: "query", Value: sql},
			{Key: "schemaVersion", Value: 1},
		}
		raw, err := s.client.Database(database).RunCommand(opCtx, cmd).Raw()
		if err != nil {
			cmdErr = wrapError(err, "sqlGetResultSchema")
			return
		}
		columns, err := parseResultSchema(raw)
		if err != nil {
			cmdErr = err
			return
		}
		plan = &translator.Plan{
			SQL:      sql,
			Database: database,
			Pipeline: []bson.D{{{Key: "$sql", Value: bson.D{
				{Key: "format", Value: "odbc"},
				{Key: "formatVersion", Value: 1},
				{Key: "statement", Value: sql},
			}}}},
			Columns: columns,
		}
	})
	if err != nil {
		return nil, wrapError(err, "compile")
	}
	if cmdErr != nil {
		return nil, cmdErr
	}
	return plan, nil
}

// Run opens the backend cursor for a compiled plan.
func (s *Session) Run(ctx context.Context, plan *translator.Plan) (translator.RowCursor, error) {
	var cursor *mongo.Cursor
	var runErr error
	err := s.worker.Do(func() {
		opCtx, cancel := s.opContext(ctx)
		defer cancel()

		opts := options.Aggregate().SetBatchSize(s.batchSize)
		if s.timeout > 0 {
			opts = opts.SetMaxTime(s.timeout)
		}
		pipeline := make([]interface{}, len(plan.Pipeline))
		for i, stage := range plan.Pipeline {
			pipeline[i] = stage
		}
		cursor, runErr = s.client.Database(plan.Database).Aggregate(opCtx, pipeline, opts)
	})
	if err != nil {
		return nil, wrapError(err, "execute")
	}
	if runErr != nil {
		return nil, wrapError(runErr, "execute")
	}
	return &serverCursor{session: s, cursor: cursor}, nil
}

// serverCursor adapts a live backend cursor to the RowCursor interface,
// advancing it on the session worker so getMore round trips never leave the
// dedicated execution context.
type serverCursor struct {
	session *Session
	cursor  *mongo.Cursor
}

func (c *serverCursor) Next(ctx context.Context) (bson.Raw, bool, error) {
	var row bson.Raw
	var ok bool
	var nextErr error
	err := c.session.worker.Do(func() {
		opCtx, cancel := c.session.opContext(ctx)
		defer cancel()
		if c.cursor.Next(opCtx) {
			// Current is only valid until the next advance; keep a copy.
			row = append(bson.Raw(nil), c.cursor.Current...)
			ok = true
			return
		}
		nextErr = c.cursor.Err()
	})
	if err != nil {
		return nil, false, wrapError(err, "fetch")
	}
	if nextErr != nil {
		return nil, false, wrapError(nextErr, "fetch")
	}
	return row, ok, nil
}

func (c *serverCursor) Close(ctx context.Context) error {
	var closeErr error
	err := c.session.worker.Do(func() {
		closeErr = c.cursor.Close(context.Background())
	})
	if err != nil {
		if errors.Is(err, ErrWorkerClosed) {
			return nil
		}
		return wrapError(err, "close")
	}
	if closeErr != nil {
		return wrapError(closeErr, "close")
	}
	return nil
}

// ListDatabases returns the database names visible to the connection.
func (s *Session) ListDatabases(ctx context.Context) ([]string, error) {
	var names []string
	var listErr error
	err := s.worker.Do(func() {
		opCtx, cancel := s.opContext(ctx)
		defer cancel()
		names, listErr = s.client.ListDatabaseNames(opCtx, bson.D{})
	})
	if err != nil {
		return nil, wrapError(err, "list-databases")
	}
	if listErr != nil {
		return nil, wrapError(listErr, "list-databases")
	}
	return names, nil
}

// ListCollections returns the collection names of one database.
func (s *Session) ListCollections(ctx context.Context, database string) ([]string, error) {
	var names []string
	var listErr error
	err := s.worker.Do(func() {
		opCtx, cancel := s.opContext(ctx)
		defer cancel()
		names, listErr = s.client.Database(database).ListCollectionNames(opCtx, bson.D{})
	})
	if err != nil {
		return nil, wrapError(err, "list-collections")
	}
	if listErr != nil {
		return nil, wrapError(listErr, "list-collections")
	}
	return names, nil
}

// CollectionSchema fetches the declared or observed field schema of one
// collection via the query service's sqlGetSchema command.
func (s *Session) CollectionSchema(ctx context.Context, database, collection string) ([]typemap.FieldSchema, error) {
	var fields []typemap.FieldSchema
	var cmdErr error
	err := s.worker.Do(func() {
		opCtx, cancel := s.opContext(ctx)
		defer cancel()
		cmd := bson.D{
			{Key: "sqlGetSchema", Value: collection},
		}
		raw, err := s.client.Database(database).RunCommand(opCtx, cmd).Raw()
		if err != nil {
			cmdErr = wrapError(err, "sqlGetSchema")
			return
		}
		fields, cmdErr = parseCollectionSchema(collection, raw)
	})
	if err != nil {
		return nil, wrapError(err, "collection-schema")
	}
	if cmdErr != nil {
		return nil, cmdErr
	}
	return fields, nil
}

// wrapConnectError maps connection establishment failures to 08001.
func wrapConnectError(err error) error {
	return &diag.Error{
		State:      diag.UnableToConnect,
		NativeCode: nativeCode(err),
		Message:    "[" + diag.VendorIdentifier + "][" + component + "] unable to connect: " + err.Error(),
	}
}

// wrapError maps backend failures onto diagnostics, preserving the service's
// native error code and distinguishing timeouts.
func wrapError(err error, op string) error {
	var de *diag.Error
	if errors.As(err, &de) {
		return de
	}
	state := diag.GeneralError
	if errors.Is(err, context.DeadlineExceeded) || mongo.IsTimeout(err) {
		state = diag.TimeoutExpired
	}
	return &diag.Error{
		State:      state,
		NativeCode: nativeCode(err),
		Message:    "[" + diag.VendorIdentifier + "][" + component + "] " + op + ": " + err.Error(),
	}
}

// nativeCode extracts the server's error code where one exists.
func nativeCode(err error) int32 {
	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code
	}
	var writeErr mongo.WriteException
	if errors.As(err, &writeErr) && writeErr.WriteConcernError != nil {
		return int32(writeErr.WriteConcernError.Code)
	}
	return 0
}
