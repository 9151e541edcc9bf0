// Package metadata implements the catalog surface: type info, table and
// column listings. Catalog results are materialized in memory and installed
// into the statement's cursor, so clients consume them through the same
// fetch and get-data path as query results.
package metadata

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"

	"docstore-odbc/internal/backend"
	"docstore-odbc/internal/translator"
	"docstore-odbc/internal/typemap"
)

func col(ordinal int, name string, tag typemap.TypeTag, nullable bool) typemap.ColumnDescriptor {
	return typemap.NewColumnDescriptor(ordinal, "", name, tag, nullable, 0)
}

// matches implements the catalog pattern arguments: empty and "%" match
// everything, anything else matches exactly.
func matches(pattern, name string) bool {
	return pattern == "" || pattern == "%" || pattern == name
}

// TypeInfo returns the static result set describing every SQL type the
// driver reports, ordered by data type code the way the standard requires.
func TypeInfo() ([]typemap.ColumnDescriptor, translator.RowCursor, error) {
	cols := []typemap.ColumnDescriptor{
		col(1, "TYPE_NAME", typemap.TagString, false),
		col(2, "DATA_TYPE", typemap.TagInt32, false),
		col(3, "COLUMN_SIZE", typemap.TagInt32, true),
		col(4, "NULLABLE", typemap.TagInt32, false),
		col(5, "SEARCHABLE", typemap.TagInt32, false),
	}

	tags := []typemap.TypeTag{
		typemap.TagDecimal,
		typemap.TagInt32,
		typemap.TagDouble,
		typemap.TagString,
		typemap.TagTimestamp,
		typemap.TagBinary,
		typemap.TagInt64,
		typemap.TagBool,
		typemap.TagDocument,
		typemap.TagObjectID,
	}
	docs := make([]bson.D, 0, len(tags))
	for _, tag := range tags {
		d := typemap.NewColumnDescriptor(0, "", "", tag, true, 0)
		docs = append(docs, bson.D{
			{Key: "TYPE_NAME", Value: d.TypeName},
			{Key: "DATA_TYPE", Value: int32(d.SQLType)},
			{Key: "COLUMN_SIZE", Value: int32(d.Precision)},
			{Key: "NULLABLE", Value: int32(1)},
			{Key: "SEARCHABLE", Value: int32(3)},
		})
	}
	rows, err := translator.MarshalRows(docs)
	if err != nil {
		return nil, nil, err
	}
	return cols, translator.NewMemoryCursor(rows), nil
}

// Tables lists collections as tables. The catalog argument filters by
// database; empty means the connection's current database, "%" means all.
func Tables(ctx context.Context, session *backend.Session, catalog, table string) ([]typemap.ColumnDescriptor, translator.RowCursor, error) {
	cols := []typemap.ColumnDescriptor{
		col(1, "TABLE_CAT", typemap.TagString, true),
		col(2, "TABLE_SCHEM", typemap.TagString, true),
		col(3, "TABLE_NAME", typemap.TagString, false),
		col(4, "TABLE_TYPE", typemap.TagString, false),
		col(5, "REMARKS", typemap.TagString, true),
	}

	databases, err := resolveDatabases(ctx, session, catalog)
	if err != nil {
		return nil, nil, err
	}

	var docs []bson.D
	for _, db := range databases {
		names, err := session.ListCollections(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		for _, name := range names {
			if !matches(table, name) {
				continue
			}
			docs = append(docs, bson.D{
				{Key: "TABLE_CAT", Value: db},
				{Key: "TABLE_SCHEM", Value: nil},
				{Key: "TABLE_NAME", Value: name},
				{Key: "TABLE_TYPE", Value: "TABLE"},
				{Key: "REMARKS", Value: nil},
			})
		}
	}
	rows, err := translator.MarshalRows(docs)
	if err != nil {
		return nil, nil, err
	}
	return cols, translator.NewMemoryCursor(rows), nil
}

// Columns lists the fields of matching collections with their resolved
// tabular types.
func Columns(ctx context.Context, session *backend.Session, catalog, table, column string) ([]typemap.ColumnDescriptor, translator.RowCursor, error) {
	cols := []typemap.ColumnDescriptor{
		col(1, "TABLE_CAT", typemap.TagString, true),
		col(2, "TABLE_SCHEM", typemap.TagString, true),
		col(3, "TABLE_NAME", typemap.TagString, false),
		col(4, "COLUMN_NAME", typemap.TagString, false),
		col(5, "DATA_TYPE", typemap.TagInt32, false),
		col(6, "TYPE_NAME", typemap.TagString, false),
		col(7, "COLUMN_SIZE", typemap.TagInt32, true),
		col(8, "NULLABLE", typemap.TagInt32, false),
		col(9, "ORDINAL_POSITION", typemap.TagInt32, false),
	}

	databases, err := resolveDatabases(ctx, session, catalog)
	if err != nil {
		return nil, nil, err
	}

	var docs []bson.D
	for _, db := range databases {
		names, err := session.ListCollections(ctx, db)
		if err != nil {
			return nil, nil, err
		}
		for _, name := range names {
			if !matches(table, name) {
				continue
			}
			fields, err := session.CollectionSchema(ctx, db, name)
			if err != nil {
				return nil, nil, err
			}
			for i, f := range fields {
				if !matches(column, f.Name) {
					continue
				}
				d := typemap.Describe(i+1, f, 0)
				nullable := int32(0)
				if d.Nullable {
					nullable = 1
				}
				docs = append(docs, bson.D{
					{Key: "TABLE_CAT", Value: db},
					{Key: "TABLE_SCHEM", Value: nil},
					{Key: "TABLE_NAME", Value: name},
					{Key: "COLUMN_NAME", Value: f.Name},
					{Key: "DATA_TYPE", Value: int32(d.SQLType)},
					{Key: "TYPE_NAME", Value: d.TypeName},
					{Key: "COLUMN_SIZE", Value: int32(d.Precision)},
					{Key: "NULLABLE", Value: nullable},
					{Key: "ORDINAL_POSITION", Value: int32(i + 1)},
				})
			}
		}
	}
	rows, err := translator.MarshalRows(docs)
	if err != nil {
		return nil, nil, err
	}
	return cols, translator.NewMemoryCursor(rows), nil
}

func resolveDatabases(ctx context.Context, session *backend.Session, catalog string) ([]string, error) {
	if catalog == "%" {
		return session.ListDatabases(ctx)
	}
	if catalog == "" {
		if db := session.Database(); db != "" {
			return []string{db}, nil
		}
		return session.ListDatabases(ctx)
	}
	return []string{catalog}, nil
}
