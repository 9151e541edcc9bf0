package typemap

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/text/encoding/unicode"

	"docstore-odbc/internal/diag"
)

const component = "typemap"

// WriteResult reports the outcome of one conversion. BytesAvailable is the
// untruncated size of the converted value regardless of the buffer capacity,
// so callers can size a bigger buffer and fetch again. Null is the dedicated
// null-indicator signal, distinct from zero-length data.
type WriteResult struct {
	BytesWritten   int
	BytesAvailable int
	Null           bool
}

var utf16Encoder = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Write converts one document value into the caller's requested C type,
// writing at most len(buf) bytes. String targets are null terminated when
// capacity allows and never overflow the buffer; a short buffer yields a
// truncated prefix plus a right-truncation warning. Numeric narrowing that
// would lose magnitude is an error with nothing written; losing fractional
// digits is a warning with the truncated value written.
func Write(val bson.RawValue, target CDataType, buf []byte) (WriteResult, *diag.Error) {
	if isNull(val) {
		return WriteResult{Null: true}, nil
	}

	switch target {
	case CChar:
		s, derr := renderString(val)
		if derr != nil {
			return WriteResult{}, derr
		}
		return writeBytes(buf, []byte(s), true, 1)
	case CWChar:
		s, derr := renderString(val)
		if derr != nil {
			return WriteResult{}, derr
		}
		wide, err := utf16Encoder.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return WriteResult{}, diag.New(diag.InvalidCharacterValue, component, "cannot encode value as wide characters: %v", err)
		}
		return writeBytes(buf, wide, true, 2)
	case CBinary:
		data, derr := renderBinary(val)
		if derr != nil {
			return WriteResult{}, derr
		}
		return writeBytes(buf, data, false, 0)
	case CBit:
		return writeBit(val, buf)
	case CLong:
		return writeInt(val, buf, 32)
	case CBigInt:
		return writeInt(val, buf, 64)
	case CDouble:
		return writeDouble(val, buf)
	case CTimestamp:
		return writeTimestamp(val, buf)
	default:
		return WriteResult{}, diag.New(diag.InvalidBufferType, component, "unknown target C type %d", int(target))
	}
}

func isNull(val bson.RawValue) bool {
	return val.Type == 0 || val.Type == bson.TypeNull || val.Type == bson.TypeUndefined
}

// writeBytes copies data into buf, terminating with termWidth zero bytes for
// string targets when capacity allows. BytesAvailable excludes the
// terminator, matching the protocol's length-indicator convention.
func writeBytes(buf, data []byte, terminate bool, termWidth int) (WriteResult, *diag.Error) {
	avail := len(data)
	res := WriteResult{BytesAvailable: avail}

	capacity := len(buf)
	room := capacity
	if terminate {
		room = capacity - termWidth
	}
	if room < 0 {
		room = 0
	}
	n := avail
	if n > room {
		n = room
	}
	if termWidth == 2 {
		// Wide strings truncate on a code-unit boundary.
		n &^= 1
	}
	copy(buf, data[:n])
	if terminate && capacity >= n+termWidth {
		for i := 0; i < termWidth; i++ {
			buf[n+i] = 0
		}
	}
	res.BytesWritten = n
	if n < avail {
		return res, diag.NewWarning(diag.RightTruncated, component, "string data, right truncated: buffer holds %d of %d bytes", n, avail)
	}
	return res, nil
}

// renderString produces the textual form of any document value. Documents,
// arrays and types with no tabular equivalent render as canonical extended
// JSON; temporals render as RFC 3339 UTC with millisecond precision.
func renderString(val bson.RawValue) (string, *diag.Error) {
	switch val.Type {
	case bson.TypeString:
		return val.StringValue(), nil
	case bson.TypeInt32:
		return strconv.FormatInt(int64(val.Int32()), 10), nil
	case bson.TypeInt64:
		return strconv.FormatInt(val.Int64(), 10), nil
	case bson.TypeDouble:
		return strconv.FormatFloat(val.Double(), 'g', -1, 64), nil
	case bson.TypeBoolean:
		return strconv.FormatBool(val.Boolean()), nil
	case bson.TypeDateTime:
		return val.Time().UTC().Format("2006-01-02T15:04:05.000Z"), nil
	case bson.TypeObjectID:
		return val.ObjectID().Hex(), nil
	case bson.TypeDecimal128:
		return val.Decimal128().String(), nil
	case bson.TypeBinary:
		_, data := val.Binary()
		return base64.StdEncoding.EncodeToString(data), nil
	default:
		// Extended JSON for documents, arrays and exotic types.
		return val.String(), nil
	}
}

func renderBinary(val bson.RawValue) ([]byte, *diag.Error) {
	switch val.Type {
	case bson.TypeBinary:
		_, data := val.Binary()
		return data, nil
	case bson.TypeObjectID:
		oid := val.ObjectID()
		return oid[:], nil
	case bson.TypeString:
		return []byte(val.StringValue()), nil
	default:
		s, derr := renderString(val)
		if derr != nil {
			return nil, derr
		}
		return []byte(s), nil
	}
}

func writeBit(val bson.RawValue, buf []byte) (WriteResult, *diag.Error) {
	var b byte
	switch val.Type {
	case bson.TypeBoolean:
		if val.Boolean() {
			b = 1
		}
	case bson.TypeInt32, bson.TypeInt64, bson.TypeDouble:
		f, derr := asFloat(val)
		if derr != nil {
			return WriteResult{}, derr
		}
		if f != 0 && f != 1 {
			return WriteResult{}, diag.New(diag.NumericOutOfRange, component, "value %v out of range for bit target", f)
		}
		b = byte(f)
	default:
		return WriteResult{}, restricted(val, CBit)
	}
	if len(buf) < 1 {
		return WriteResult{BytesAvailable: 1}, shortFixedBuffer(1, len(buf))
	}
	buf[0] = b
	return WriteResult{BytesWritten: 1, BytesAvailable: 1}, nil
}

// writeInt handles the 32- and 64-bit signed integer targets.
func writeInt(val bson.RawValue, buf []byte, bits int) (WriteResult, *diag.Error) {
	v, fractional, derr := asInt64(val)
	if derr != nil {
		return WriteResult{}, derr
	}
	if bits == 32 && (v > math.MaxInt32 || v < math.MinInt32) {
		return WriteResult{}, diag.New(diag.NumericOutOfRange, component, "integral value %d out of range for 32-bit target", v)
	}

	width := bits / 8
	if len(buf) < width {
		return WriteResult{BytesAvailable: width}, shortFixedBuffer(width, len(buf))
	}
	if bits == 32 {
		binary.LittleEndian.PutUint32(buf, uint32(int32(v)))
	} else {
		binary.LittleEndian.PutUint64(buf, uint64(v))
	}
	res := WriteResult{BytesWritten: width, BytesAvailable: width}
	if fractional {
		return res, diag.NewWarning(diag.FractionalTruncation, component, "fractional part of value discarded converting to integer target")
	}
	return res, nil
}

func writeDouble(val bson.RawValue, buf []byte) (WriteResult, *diag.Error) {
	f, derr := asFloat(val)
	if derr != nil {
		return WriteResult{}, derr
	}
	if len(buf) < 8 {
		return WriteResult{BytesAvailable: 8}, shortFixedBuffer(8, len(buf))
	}
	binary.LittleEndian.PutUint64(buf, math.Float64bits(f))
	return WriteResult{BytesWritten: 8, BytesAvailable: 8}, nil
}

// writeTimestamp encodes the 16-byte timestamp structure: six 16-bit calendar
// fields followed by a 32-bit nanosecond fraction, little endian.
func writeTimestamp(val bson.RawValue, buf []byte) (WriteResult, *diag.Error) {
	var t time.Time
	switch val.Type {
	case bson.TypeDateTime:
		t = val.Time().UTC()
	case bson.TypeString:
		parsed, err := parseTimestampString(val.StringValue())
		if err != nil {
			return WriteResult{}, diag.New(diag.InvalidDatetimeFormat, component, "cannot parse %q as a timestamp", val.StringValue())
		}
		t = parsed.UTC()
	default:
		return WriteResult{}, restricted(val, CTimestamp)
	}

	if len(buf) < 16 {
		return WriteResult{BytesAvailable: 16}, shortFixedBuffer(16, len(buf))
	}
	binary.LittleEndian.PutUint16(buf[0:], uint16(t.Year()))
	binary.LittleEndian.PutUint16(buf[2:], uint16(t.Month()))
	binary.LittleEndian.PutUint16(buf[4:], uint16(t.Day()))
	binary.LittleEndian.PutUint16(buf[6:], uint16(t.Hour()))
	binary.LittleEndian.PutUint16(buf[8:], uint16(t.Minute()))
	binary.LittleEndian.PutUint16(buf[10:], uint16(t.Second()))
	binary.LittleEndian.PutUint32(buf[12:], uint32(t.Nanosecond()))
	return WriteResult{BytesWritten: 16, BytesAvailable: 16}, nil
}

// ReadTimestamp decodes the 16-byte timestamp structure back into an
// absolute instant. It is the exact inverse of writeTimestamp.
func ReadTimestamp(buf []byte) time.Time {
	year := int(binary.LittleEndian.Uint16(buf[0:]))
	month := time.Month(binary.LittleEndian.Uint16(buf[2:]))
	day := int(binary.LittleEndian.Uint16(buf[4:]))
	hour := int(binary.LittleEndian.Uint16(buf[6:]))
	minute := int(binary.LittleEndian.Uint16(buf[8:]))
	second := int(binary.LittleEndian.Uint16(buf[10:]))
	nanos := int(binary.LittleEndian.Uint32(buf[12:]))
	return time.Date(year, month, day, hour, minute, second, nanos, time.UTC)
}

func parseTimestampString(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &time.ParseError{Layout: time.RFC3339Nano, Value: s}
}

// int64Limit is 2^63 as a float64. MaxInt64 itself rounds up to 2^63 in
// float64, so the usable upper bound for float sources is exclusive; the
// lower bound -2^63 is exactly representable and inclusive.
const int64Limit = float64(1 << 63)

// asInt64 extracts an integer from a numeric, boolean or textual value.
// fractional reports that digits after the decimal point were discarded.
func asInt64(val bson.RawValue) (v int64, fractional bool, derr *diag.Error) {
	switch val.Type {
	case bson.TypeInt32:
		return int64(val.Int32()), false, nil
	case bson.TypeInt64:
		return val.Int64(), false, nil
	case bson.TypeBoolean:
		if val.Boolean() {
			return 1, false, nil
		}
		return 0, false, nil
	case bson.TypeDouble:
		f := val.Double()
		if math.IsNaN(f) || f >= int64Limit || f < -int64Limit {
			return 0, false, diag.New(diag.NumericOutOfRange, component, "value %v out of range for integer target", f)
		}
		return int64(f), f != math.Trunc(f), nil
	case bson.TypeDecimal128:
		d, err := decimal.NewFromString(val.Decimal128().String())
		if err != nil {
			return 0, false, diag.New(diag.NumericOutOfRange, component, "decimal value %s not representable as integer", val.Decimal128().String())
		}
		trunc := d.Truncate(0)
		if !trunc.BigInt().IsInt64() {
			return 0, false, diag.New(diag.NumericOutOfRange, component, "decimal value %s out of range for integer target", d.String())
		}
		return trunc.BigInt().Int64(), !d.Equal(trunc), nil
	case bson.TypeString:
		s := val.StringValue()
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false, diag.New(diag.InvalidCharacterValue, component, "cannot convert %q to an integer target", s)
		}
		if math.IsNaN(f) || f >= int64Limit || f < -int64Limit {
			return 0, false, diag.New(diag.NumericOutOfRange, component, "value %q out of range for integer target", s)
		}
		return int64(f), f != math.Trunc(f), nil
	default:
		return 0, false, restricted(val, CBigInt)
	}
}

func asFloat(val bson.RawValue) (float64, *diag.Error) {
	switch val.Type {
	case bson.TypeInt32:
		return float64(val.Int32()), nil
	case bson.TypeInt64:
		return float64(val.Int64()), nil
	case bson.TypeDouble:
		return val.Double(), nil
	case bson.TypeBoolean:
		if val.Boolean() {
			return 1, nil
		}
		return 0, nil
	case bson.TypeDecimal128:
		d, err := decimal.NewFromString(val.Decimal128().String())
		if err != nil {
			return 0, diag.New(diag.NumericOutOfRange, component, "decimal value %s not representable as double", val.Decimal128().String())
		}
		f, _ := d.Float64()
		return f, nil
	case bson.TypeString:
		f, err := strconv.ParseFloat(val.StringValue(), 64)
		if err != nil {
			return 0, diag.New(diag.InvalidCharacterValue, component, "cannot convert %q to a double target", val.StringValue())
		}
		return f, nil
	default:
		return 0, restricted(val, CDouble)
	}
}

func restricted(val bson.RawValue, target CDataType) *diag.Error {
	return diag.New(diag.RestrictedDataType, component, "conversion from %s to %s is not supported", val.Type.String(), target.String())
}

func shortFixedBuffer(need, got int) *diag.Error {
	return diag.New(diag.InvalidBufferLength, component, "buffer too small for fixed-size target: need %d bytes, have %d", need, got)
}
