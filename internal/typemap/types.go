// Package typemap is the pure conversion layer between the document model's
// dynamically typed values and the fixed tabular types of the call-level
// interface: it assigns one semantic type tag per result column and writes
// individual values into caller-owned C-type buffers with the protocol's
// truncation and narrowing rules.
package typemap

// TypeTag is the semantic type of a result column, the tabular projection of
// the BSON types observed for the underlying field.
type TypeTag int

const (
	TagNull TypeTag = iota
	TagBool
	TagInt32
	TagInt64
	TagDouble
	TagDecimal
	TagString
	TagObjectID
	TagTimestamp
	TagBinary
	// TagDocument covers documents, arrays and any mix of incompatible types;
	// values are rendered as canonical extended JSON text.
	TagDocument
)

// SQL data type codes reported through the catalog surface.
const (
	SQLUnknown       int16 = 0
	SQLDecimal       int16 = 3
	SQLInteger       int16 = 4
	SQLDouble        int16 = 8
	SQLVarchar       int16 = 12
	SQLTypeTimestamp int16 = 93
	SQLVarbinary     int16 = -3
	SQLBigint        int16 = -5
	SQLBit           int16 = -7
	SQLWVarchar      int16 = -9
)

// CDataType identifies the caller's requested buffer type for get-data and
// bound columns.
type CDataType int

const (
	CChar CDataType = iota + 1 // narrow (UTF-8) string, null terminated
	CWChar                     // wide (UTF-16LE) string, null terminated
	CBit
	CLong   // 32-bit signed integer
	CBigInt // 64-bit signed integer
	CDouble // 64-bit IEEE float
	CTimestamp
	CBinary
)

func (c CDataType) String() string {
	switch c {
	case CChar:
		return "SQL_C_CHAR"
	case CWChar:
		return "SQL_C_WCHAR"
	case CBit:
		return "SQL_C_BIT"
	case CLong:
		return "SQL_C_SLONG"
	case CBigInt:
		return "SQL_C_SBIGINT"
	case CDouble:
		return "SQL_C_DOUBLE"
	case CTimestamp:
		return "SQL_C_TYPE_TIMESTAMP"
	case CBinary:
		return "SQL_C_BINARY"
	default:
		return "SQL_C_UNKNOWN"
	}
}

// ColumnDescriptor describes one output column of a result set. Descriptors
// are computed once when the result set is produced and are immutable
// afterwards; the ordinal is 1-based and part of the identity.
type ColumnDescriptor struct {
	Ordinal     int
	Name        string
	Table       string
	Tag         TypeTag
	TypeName    string
	SQLType     int16
	DisplaySize int // 0 means unbounded
	Precision   int
	Scale       int
	FixedLength int // byte width of fixed-size types, 0 otherwise
	Nullable    bool
}

// typeInfo is the static per-tag metadata table, carried over from the
// document store's published type characteristics.
type typeInfo struct {
	name        string
	sqlType     int16
	displaySize int
	precision   int
	scale       int
	fixedLength int
}

var typeInfoTable = map[TypeTag]typeInfo{
	TagNull:      {name: "null", sqlType: SQLVarchar},
	TagBool:      {name: "bool", sqlType: SQLBit, displaySize: 1, precision: 1, fixedLength: 1},
	TagInt32:     {name: "int", sqlType: SQLInteger, displaySize: 11, precision: 10, fixedLength: 4},
	TagInt64:     {name: "long", sqlType: SQLBigint, displaySize: 20, precision: 19, fixedLength: 8},
	TagDouble:    {name: "double", sqlType: SQLDouble, displaySize: 24, precision: 15, scale: 15, fixedLength: 8},
	TagDecimal:   {name: "decimal", sqlType: SQLDecimal, displaySize: 42, precision: 34, scale: 34, fixedLength: 16},
	TagString:    {name: "string", sqlType: SQLVarchar},
	TagObjectID:  {name: "objectId", sqlType: SQLVarchar, displaySize: 24, precision: 24},
	TagTimestamp: {name: "date", sqlType: SQLTypeTimestamp, displaySize: 24, precision: 24, scale: 3, fixedLength: 8},
	TagBinary:    {name: "binData", sqlType: SQLVarbinary},
	TagDocument:  {name: "bson", sqlType: SQLVarchar},
}

// Info returns the static metadata for a tag.
func Info(tag TypeTag) (name string, sqlType int16) {
	ti := typeInfoTable[tag]
	return ti.name, ti.sqlType
}

// NewColumnDescriptor builds the descriptor for one column. maxStringLength
// clamps the display size of unbounded variable-length columns when the
// simple-types toggle is set; zero leaves them unbounded.
func NewColumnDescriptor(ordinal int, table, name string, tag TypeTag, nullable bool, maxStringLength int) ColumnDescriptor {
	ti := typeInfoTable[tag]
	display := ti.displaySize
	if display == 0 && maxStringLength > 0 {
		display = maxStringLength
	}
	return ColumnDescriptor{
		Ordinal:     ordinal,
		Name:        name,
		Table:       table,
		Tag:         tag,
		TypeName:    ti.name,
		SQLType:     ti.sqlType,
		DisplaySize: display,
		Precision:   ti.precision,
		Scale:       ti.scale,
		FixedLength: ti.fixedLength,
		Nullable:    nullable,
	}
}
