package translator

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
)

// MemoryCursor is a RowCursor over pre-materialized rows. The mock compiler
// and the catalog result sets (type info, tables, columns) are served from
// it, so they flow through the same fetch path as real query results.
type MemoryCursor struct {
	rows   []bson.Raw
	next   int
	closed bool
}

// NewMemoryCursor builds a cursor over the given rows.
func NewMemoryCursor(rows []bson.Raw) *MemoryCursor {
	return &MemoryCursor{rows: rows}
}

// MarshalRows converts documents to raw rows. It only fails on values that
// cannot be represented in BSON at all.
func MarshalRows(docs []bson.D) ([]bson.Raw, error) {
	rows := make([]bson.Raw, 0, len(docs))
	for _, doc := range docs {
		raw, err := bson.Marshal(doc)
		if err != nil {
			return nil, err
		}
		rows = append(rows, bson.Raw(raw))
	}
	return rows, nil
}

func (m *MemoryCursor) Next(_ context.Context) (bson.Raw, bool, error) {
	if m.closed || m.next >= len(m.rows) {
		return nil, false, nil
	}
	row := m.rows[m.next]
	m.next++
	return row, true, nil
}

func (m *MemoryCursor) Close(_ context.Context) error {
	m.closed = true
	m.rows = nil
	return nil
}
