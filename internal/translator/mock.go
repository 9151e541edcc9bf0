package translator

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"vitess.io/vitess/go/vt/sqlparser"

	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/typemap"
)

const mockComponent = "mock-translator"

// MockCollection is one queryable collection held by the mock compiler:
// its per-field schema and the documents it serves.
type MockCollection struct {
	Database string
	Name     string
	Fields   []typemap.FieldSchema
	Docs     []bson.D
}

// MockCompiler is the in-process stand-in for the query federation service's
// SQL compiler. It parses statements with the vitess SQL parser, resolves the
// referenced collection against registered mock collections, and serves rows
// from memory. Only plain single-table SELECT statements are supported; that
// is all the driver itself ever assumes about the compiler.
type MockCompiler struct {
	mu          sync.RWMutex
	collections map[string]map[string]*MockCollection

	// FailNext, when set, makes the next Compile return this error. Used by
	// tests to simulate compile failures.
	FailNext error
}

// NewMockCompiler creates an empty mock compiler.
func NewMockCompiler() *MockCompiler {
	return &MockCompiler{collections: map[string]map[string]*MockCollection{}}
}

// AddCollection registers a collection with the mock.
func (m *MockCompiler) AddCollection(c MockCollection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	db := m.collections[c.Database]
	if db == nil {
		db = map[string]*MockCollection{}
		m.collections[c.Database] = db
	}
	for i := range c.Fields {
		if c.Fields[i].Table == "" {
			c.Fields[i].Table = c.Name
		}
	}
	db[c.Name] = &c
}

// Compile parses and resolves a SELECT statement against the registered
// collections and produces a plan whose column schema preserves the
// statement's projection order (alphabetical for SELECT *).
func (m *MockCompiler) Compile(_ context.Context, database, sql string) (*Plan, error) {
	m.mu.Lock()
	if m.FailNext != nil {
		err := m.FailNext
		m.FailNext = nil
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	stmt, err := sqlparser.NewTestParser().Parse(sql)
	if err != nil {
		return nil, diag.New(diag.SyntaxOrAccessError, mockComponent, "cannot parse statement: %v", err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok {
		return nil, diag.New(diag.SyntaxOrAccessError, mockComponent, "only SELECT statements are supported, got %T", stmt)
	}

	table, columns := analyzeSelect(sel)
	if table == "" {
		return nil, diag.New(diag.SyntaxOrAccessError, mockComponent, "statement references no table")
	}

	m.mu.RLock()
	coll := m.collections[database][table]
	m.mu.RUnlock()
	if coll == nil {
		return nil, diag.New(diag.BaseTableNotFound, mockComponent, "unknown collection %s.%s", database, table)
	}

	fields, err := projectFields(coll, columns)
	if err != nil {
		return nil, err
	}
	return &Plan{SQL: sql, Database: database, Columns: fields}, nil
}

// Run serves the plan's collection documents from memory, shaped the way the
// query service shapes result rows: one sub-document per datasource.
func (m *MockCompiler) Run(_ context.Context, plan *Plan) (RowCursor, error) {
	if len(plan.Columns) == 0 {
		return NewMemoryCursor(nil), nil
	}
	table := plan.Columns[0].Table
	m.mu.RLock()
	coll := m.collections[plan.Database][table]
	m.mu.RUnlock()
	if coll == nil {
		return nil, diag.New(diag.BaseTableNotFound, mockComponent, "unknown collection %s.%s", plan.Database, table)
	}

	docs := make([]bson.D, 0, len(coll.Docs))
	for _, doc := range coll.Docs {
		docs = append(docs, bson.D{{Key: table, Value: doc}})
	}
	rows, err := MarshalRows(docs)
	if err != nil {
		return nil, fmt.Errorf("marshaling mock rows: %w", err)
	}
	return NewMemoryCursor(rows), nil
}

// analyzeSelect walks the statement collecting the referenced table and the
// projected column names in statement order. Filter, ordering and limit
// subtrees are pruned so their column references never leak into the
// projection. An empty column list means SELECT *.
func analyzeSelect(sel *sqlparser.Select) (table string, columns []string) {
	seen := map[string]bool{}
	_ = sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.Where:
			// Covers both WHERE and HAVING.
			return false, nil
		case sqlparser.OrderBy:
			return false, nil
		case *sqlparser.Limit:
			return false, nil
		case sqlparser.TableName:
			if table == "" {
				table = n.Name.String()
			}
		case *sqlparser.ColName:
			name := n.Name.String()
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
		return true, nil
	}, sel)
	return table, columns
}

func projectFields(coll *MockCollection, columns []string) ([]typemap.FieldSchema, error) {
	if len(columns) == 0 {
		fields := make([]typemap.FieldSchema, len(coll.Fields))
		copy(fields, coll.Fields)
		sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
		return fields, nil
	}
	byName := map[string]typemap.FieldSchema{}
	for _, f := range coll.Fields {
		byName[strings.ToLower(f.Name)] = f
	}
	fields := make([]typemap.FieldSchema, 0, len(columns))
	for _, c := range columns {
		f, ok := byName[strings.ToLower(c)]
		if !ok {
			return nil, diag.New(diag.SyntaxOrAccessError, mockComponent, "unknown column %q in collection %s", c, coll.Name)
		}
		fields = append(fields, f)
	}
	return fields, nil
}
