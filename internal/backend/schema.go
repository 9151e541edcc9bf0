package backend

import (
	"sort"

	"go.mongodb.org/mongo-driver/bson"

	"docstore-odbc/internal/diag"
	"docstore-odbc/internal/typemap"
)

// jsonSchema is the subset of the query service's JSON-schema vocabulary the
// driver interprets. bsonType is either one type name or an array of them;
// anyOf carries alternative schemas whose type sets are unioned.
type jsonSchema struct {
	BsonType   bson.RawValue         `bson:"bsonType"`
	Properties map[string]jsonSchema `bson:"properties"`
	AnyOf      []jsonSchema          `bson:"anyOf"`
}

// typeNames flattens a schema into the set of type names it admits. An empty
// result means "any", which the type marshaler renders as extended JSON.
func (s jsonSchema) typeNames() []string {
	var names []string
	seen := map[string]bool{}
	add := func(n string) {
		if !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	switch s.BsonType.Type {
	case bson.TypeString:
		add(s.BsonType.StringValue())
	case bson.TypeArray:
		elems, err := s.BsonType.Array().Values()
		if err == nil {
			for _, e := range elems {
				if e.Type == bson.TypeString {
					add(e.StringValue())
				}
			}
		}
	}
	for _, alt := range s.AnyOf {
		for _, n := range alt.typeNames() {
			add(n)
		}
	}
	sort.Strings(names)
	return names
}

// resultSchemaResponse is the sqlGetResultSchema command reply: an object
// schema with one property per datasource, each holding the fields the
// statement projects from it.
type resultSchemaResponse struct {
	OK     int32      `bson:"ok"`
	Schema jsonSchema `bson:"schema"`
}

// parseResultSchema flattens the command reply into the column schema list,
// sorted alphabetically by datasource then field name, the order the service
// materializes result rows in.
func parseResultSchema(raw bson.Raw) ([]typemap.FieldSchema, error) {
	var resp resultSchemaResponse
	if err := bson.Unmarshal(raw, &resp); err != nil {
		return nil, diag.New(diag.GeneralError, component, "malformed result schema reply: %v", err)
	}
	if resp.OK != 1 {
		return nil, diag.New(diag.GeneralError, component, "result schema command failed")
	}

	datasources := make([]string, 0, len(resp.Schema.Properties))
	for name := range resp.Schema.Properties {
		datasources = append(datasources, name)
	}
	sort.Strings(datasources)

	var columns []typemap.FieldSchema
	for _, ds := range datasources {
		dsSchema := resp.Schema.Properties[ds]
		fields := make([]string, 0, len(dsSchema.Properties))
		for f := range dsSchema.Properties {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			columns = append(columns, typemap.FieldSchema{
				Table: ds,
				Name:  f,
				Types: dsSchema.Properties[f].typeNames(),
			})
		}
	}
	return columns, nil
}

// collectionSchemaResponse is the sqlGetSchema command reply for one
// collection.
type collectionSchemaResponse struct {
	OK       int32 `bson:"ok"`
	Metadata struct {
		Description string `bson:"description"`
	} `bson:"metadata"`
	Schema struct {
		JSONSchema jsonSchema `bson:"jsonSchema"`
	} `bson:"schema"`
}

// parseCollectionSchema flattens a collection's declared schema into field
// schemas for the catalog surface.
func parseCollectionSchema(collection string, raw bson.Raw) ([]typemap.FieldSchema, error) {
	var resp collectionSchemaResponse
	if err := bson.Unmarshal(raw, &resp); err != nil {
		return nil, diag.New(diag.GeneralError, component, "malformed collection schema reply: %v", err)
	}
	if resp.OK != 1 {
		return nil, diag.New(diag.GeneralError, component, "collection schema command failed")
	}

	names := make([]string, 0, len(resp.Schema.JSONSchema.Properties))
	for f := range resp.Schema.JSONSchema.Properties {
		names = append(names, f)
	}
	sort.Strings(names)

	fields := make([]typemap.FieldSchema, 0, len(names))
	for _, f := range names {
		fields = append(fields, typemap.FieldSchema{
			Table: collection,
			Name:  f,
			Types: resp.Schema.JSONSchema.Properties[f].typeNames(),
		})
	}
	return fields, nil
}
