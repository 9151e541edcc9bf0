package typemap

// FieldSchema is the simplified schema reported for one result column: the
// set of BSON type names observed or declared for the field. It is the
// driver-side form of the result-set schema returned by the query service.
type FieldSchema struct {
	Table string
	Name  string
	Types []string
}

// tagForTypeName maps a single observed BSON type name to its tag. Types
// with no tabular equivalent (regex, javascript, symbol, dbPointer, minKey,
// maxKey, undefined) render as extended JSON text.
var tagForTypeName = map[string]TypeTag{
	"null":      TagNull,
	"bool":      TagBool,
	"int":       TagInt32,
	"long":      TagInt64,
	"double":    TagDouble,
	"decimal":   TagDecimal,
	"string":    TagString,
	"objectId":  TagObjectID,
	"date":      TagTimestamp,
	"timestamp": TagTimestamp,
	"binData":   TagBinary,
	"object":    TagDocument,
	"array":     TagDocument,
	"bson":      TagDocument,
	"any":       TagDocument,
}

// numericRank orders the numeric tags by representational width. When a
// field is observed with several numeric types the widest one wins.
var numericRank = map[TypeTag]int{
	TagInt32:   1,
	TagInt64:   2,
	TagDouble:  3,
	TagDecimal: 4,
}

// ResolveTag applies the widening-precedence rule to the set of observed
// type names and returns the one tag for the column plus its nullability.
//
// The rule is total and deterministic:
//  1. "null" and "undefined" are removed from the set and mark the column
//     nullable.
//  2. An empty remainder (field never observed non-null) is TagNull.
//  3. A single remaining type maps directly; unknown names map to
//     TagDocument.
//  4. A remainder made only of numeric types resolves to the widest member:
//     int < long < double < decimal.
//  5. Any other mixture (for example string and array both observed)
//     resolves to TagDocument, which serializes values as canonical
//     extended JSON.
func ResolveTag(typeNames []string) (TypeTag, bool) {
	nullable := false
	tags := make([]TypeTag, 0, len(typeNames))
	for _, name := range typeNames {
		if name == "null" || name == "undefined" {
			nullable = true
			continue
		}
		tag, ok := tagForTypeName[name]
		if !ok {
			tag = TagDocument
		}
		tags = append(tags, tag)
	}

	if len(tags) == 0 {
		return TagNull, true
	}

	resolved := tags[0]
	for _, tag := range tags[1:] {
		if tag == resolved {
			continue
		}
		ra, aok := numericRank[resolved]
		rb, bok := numericRank[tag]
		if aok && bok {
			if rb > ra {
				resolved = tag
			}
			continue
		}
		// Incompatible mixture.
		return TagDocument, nullable
	}
	return resolved, nullable
}

// Describe produces the immutable descriptor for one column of a result set.
func Describe(ordinal int, schema FieldSchema, maxStringLength int) ColumnDescriptor {
	tag, nullable := ResolveTag(schema.Types)
	return NewColumnDescriptor(ordinal, schema.Table, schema.Name, tag, nullable, maxStringLength)
}

// DescribeAll maps a full result-set schema to its descriptor list,
// preserving the schema's column order. Ordinals are 1-based.
func DescribeAll(schemas []FieldSchema, maxStringLength int) []ColumnDescriptor {
	cols := make([]ColumnDescriptor, len(schemas))
	for i, s := range schemas {
		cols[i] = Describe(i+1, s, maxStringLength)
	}
	return cols
}
