package handles

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"docstore-odbc/internal/backend"
	"docstore-odbc/internal/config"
	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/engine"
	"docstore-odbc/internal/translator"
)

// Environment is the root handle. It owns connections; freeing it while
// connections are outstanding is a reported contract violation.
type Environment struct {
	ID    string
	diags diag.Ledger

	mu          sync.Mutex
	conns       map[Handle]*Connection
	OdbcVersion int32
}

func (e *Environment) Kind() Kind               { return KindEnvironment }
func (e *Environment) Diagnostics() *diag.Ledger { return &e.diags }

// Connection owns statements and descriptors plus the backend session. The
// Compiler and Executor fields are the connection's view of the external
// query compiler; tests swap in the mock.
type Connection struct {
	ID        string
	EnvHandle Handle
	diags     diag.Ledger

	mu       sync.Mutex
	stmts    map[Handle]*Statement
	descs    map[Handle]*Descriptor
	orphaned bool

	Config    *config.Connection
	Session   *backend.Session
	Compiler  translator.Compiler
	Executor  translator.Executor
	Connected bool
}

func (c *Connection) Kind() Kind                { return KindConnection }
func (c *Connection) Diagnostics() *diag.Ledger { return &c.diags }

// Statement owns at most one cursor at a time.
type Statement struct {
	ID         string
	ConnHandle Handle
	Conn       *Connection
	diags      diag.Ledger
	orphaned   bool

	Cursor *engine.Cursor
}

func (s *Statement) Kind() Kind                { return KindStatement }
func (s *Statement) Diagnostics() *diag.Ledger { return &s.diags }

// Descriptor handles exist for protocol completeness; the driver manages
// descriptor state implicitly through its column descriptors.
type Descriptor struct {
	ID         string
	ConnHandle Handle
	Conn       *Connection
	diags      diag.Ledger
	orphaned   bool
}

func (d *Descriptor) Kind() Kind                { return KindDescriptor }
func (d *Descriptor) Diagnostics() *diag.Ledger { return &d.diags }

// AllocEnvironment creates a root environment handle.
func AllocEnvironment() Handle {
	env := &Environment{ID: uuid.New().String(), conns: map[Handle]*Connection{}}
	return handleArena.alloc(env)
}

// AllocConnection creates a connection owned by the environment.
func AllocConnection(envHandle Handle) (Handle, *diag.Error) {
	env, err := AsEnvironment(envHandle)
	if err != nil {
		return NullHandle, err
	}
	conn := &Connection{
		ID:        uuid.New().String(),
		EnvHandle: envHandle,
		stmts:     map[Handle]*Statement{},
		descs:     map[Handle]*Descriptor{},
	}
	h := handleArena.alloc(conn)
	env.mu.Lock()
	env.conns[h] = conn
	env.mu.Unlock()
	return h, nil
}

// AllocStatement creates a statement owned by the connection.
func AllocStatement(connHandle Handle) (Handle, *diag.Error) {
	conn, err := AsConnection(connHandle)
	if err != nil {
		return NullHandle, err
	}
	maxLen := 0
	if conn.Config != nil {
		maxLen = conn.Config.MaxStringLength
	}
	stmt := &Statement{
		ID:         uuid.New().String(),
		ConnHandle: connHandle,
		Conn:       conn,
		Cursor:     engine.New(maxLen),
	}
	h := handleArena.alloc(stmt)
	conn.mu.Lock()
	conn.stmts[h] = stmt
	conn.mu.Unlock()
	return h, nil
}

// AllocDescriptor creates an explicit descriptor owned by the connection.
func AllocDescriptor(connHandle Handle) (Handle, *diag.Error) {
	conn, err := AsConnection(connHandle)
	if err != nil {
		return NullHandle, err
	}
	desc := &Descriptor{ID: uuid.New().String(), ConnHandle: connHandle, Conn: conn}
	h := handleArena.alloc(desc)
	conn.mu.Lock()
	conn.descs[h] = desc
	conn.mu.Unlock()
	return h, nil
}

// AsEnvironment downcasts, rejecting null, stale, orphaned or wrong-kind
// handles without fault.
func AsEnvironment(h Handle) (*Environment, *diag.Error) {
	obj, ok := handleArena.resolve(h)
	if !ok {
		return nil, invalidHandle(h, KindEnvironment)
	}
	env, ok := obj.(*Environment)
	if !ok {
		return nil, invalidHandle(h, KindEnvironment)
	}
	return env, nil
}

// AsConnection downcasts to a connection.
func AsConnection(h Handle) (*Connection, *diag.Error) {
	obj, ok := handleArena.resolve(h)
	if !ok {
		return nil, invalidHandle(h, KindConnection)
	}
	conn, ok := obj.(*Connection)
	if !ok || conn.orphaned {
		return nil, invalidHandle(h, KindConnection)
	}
	return conn, nil
}

// AsStatement downcasts to a statement.
func AsStatement(h Handle) (*Statement, *diag.Error) {
	obj, ok := handleArena.resolve(h)
	if !ok {
		return nil, invalidHandle(h, KindStatement)
	}
	stmt, ok := obj.(*Statement)
	if !ok || stmt.orphaned {
		return nil, invalidHandle(h, KindStatement)
	}
	return stmt, nil
}

// AsDescriptor downcasts to a descriptor.
func AsDescriptor(h Handle) (*Descriptor, *diag.Error) {
	obj, ok := handleArena.resolve(h)
	if !ok {
		return nil, invalidHandle(h, KindDescriptor)
	}
	desc, ok := obj.(*Descriptor)
	if !ok || desc.orphaned {
		return nil, invalidHandle(h, KindDescriptor)
	}
	return desc, nil
}

// Free destroys a handle. Freeing a connection force-closes its statements'
// cursors, tears down the session, and orphans outstanding children: their
// handles stay allocated but any further use is an invalid-handle error, and
// their own Free still works. Freeing an environment requires all its
// connections freed first.
func Free(ctx context.Context, h Handle) *diag.Error {
	obj, ok := handleArena.resolve(h)
	if !ok {
		return invalidHandle(h, KindEnvironment)
	}
	switch o := obj.(type) {
	case *Environment:
		o.mu.Lock()
		outstanding := len(o.conns)
		o.mu.Unlock()
		if outstanding > 0 {
			return diag.New(diag.FunctionSequenceError, "handles",
				"environment freed with %d connection(s) outstanding", outstanding)
		}
		handleArena.release(h)
	case *Connection:
		freeConnection(ctx, h, o)
	case *Statement:
		o.Cursor.Close(ctx)
		if o.Conn != nil {
			o.Conn.mu.Lock()
			delete(o.Conn.stmts, h)
			o.Conn.mu.Unlock()
		}
		handleArena.release(h)
	case *Descriptor:
		if o.Conn != nil {
			o.Conn.mu.Lock()
			delete(o.Conn.descs, h)
			o.Conn.mu.Unlock()
		}
		handleArena.release(h)
	}
	return nil
}

func freeConnection(ctx context.Context, h Handle, conn *Connection) {
	conn.mu.Lock()
	for _, stmt := range conn.stmts {
		stmt.Cursor.Close(ctx)
		stmt.orphaned = true
		stmt.Conn = nil
	}
	for _, desc := range conn.descs {
		desc.orphaned = true
		desc.Conn = nil
	}
	conn.stmts = map[Handle]*Statement{}
	conn.descs = map[Handle]*Descriptor{}
	conn.orphaned = true
	conn.mu.Unlock()

	if conn.Session != nil {
		_ = conn.Session.Disconnect(ctx)
		conn.Session = nil
	}
	conn.Connected = false

	if env, err := AsEnvironment(conn.EnvHandle); err == nil {
		env.mu.Lock()
		delete(env.conns, h)
		env.mu.Unlock()
	}
	handleArena.release(h)
}
