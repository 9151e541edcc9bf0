package typemap

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"docstore-odbc/internal/diag"
)

func rawValue(t *testing.T, v any) bson.RawValue {
	t.Helper()
	doc, err := bson.Marshal(bson.D{{Key: "v", Value: v}})
	require.NoError(t, err)
	return bson.Raw(doc).Lookup("v")
}

func TestWrite_NullIndicator(t *testing.T) {
	res, derr := Write(rawValue(t, nil), CChar, make([]byte, 16))
	require.Nil(t, derr)
	assert.True(t, res.Null)
	assert.Zero(t, res.BytesWritten)

	// A missing field comes back as the zero RawValue.
	res, derr = Write(bson.RawValue{}, CBigInt, make([]byte, 8))
	require.Nil(t, derr)
	assert.True(t, res.Null)
}

func TestWrite_CharExactFit(t *testing.T) {
	buf := make([]byte, 6)
	res, derr := Write(rawValue(t, "hello"), CChar, buf)
	require.Nil(t, derr)
	assert.Equal(t, 5, res.BytesWritten)
	assert.Equal(t, 5, res.BytesAvailable)
	assert.Equal(t, []byte("hello\x00"), buf)
}

func TestWrite_CharTruncation(t *testing.T) {
	testCases := []struct {
		name            string
		capacity        int
		expectedWritten int
	}{
		{name: "room for prefix plus terminator", capacity: 4, expectedWritten: 3},
		{name: "single byte holds only terminator", capacity: 1, expectedWritten: 0},
		{name: "zero capacity writes nothing", capacity: 0, expectedWritten: 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf := make([]byte, tc.capacity)
			res, derr := Write(rawValue(t, "hello"), CChar, buf)
			require.NotNil(t, derr)
			assert.Equal(t, diag.RightTruncated, derr.State)
			assert.True(t, derr.Warning, "truncation completes with info")
			assert.Equal(t, tc.expectedWritten, res.BytesWritten)
			assert.Equal(t, 5, res.BytesAvailable, "available length is capacity independent")
			if tc.capacity > 0 {
				assert.Equal(t, byte(0), buf[tc.expectedWritten], "truncated string is still terminated")
			}
		})
	}
}

func TestWrite_WideCharEvenBoundary(t *testing.T) {
	// "abc" is 6 bytes of UTF-16; a 5-byte buffer leaves room for 3 data
	// bytes after the 2-byte terminator, which must round down to 2.
	buf := make([]byte, 5)
	res, derr := Write(rawValue(t, "abc"), CWChar, buf)
	require.NotNil(t, derr)
	assert.Equal(t, diag.RightTruncated, derr.State)
	assert.Equal(t, 2, res.BytesWritten)
	assert.Equal(t, 6, res.BytesAvailable)
	assert.Equal(t, []byte{'a', 0, 0, 0}, buf[:4], "one code unit plus wide terminator")
}

func TestWrite_WideCharComplete(t *testing.T) {
	buf := make([]byte, 8)
	res, derr := Write(rawValue(t, "abc"), CWChar, buf)
	require.Nil(t, derr)
	assert.Equal(t, 6, res.BytesWritten)
	assert.Equal(t, []byte{'a', 0, 'b', 0, 'c', 0, 0, 0}, buf)
	_ = res
}

func TestWrite_Int64ToLongOverflow(t *testing.T) {
	buf := make([]byte, 4)
	res, derr := Write(rawValue(t, int64(math.MaxInt64)), CLong, buf)
	require.NotNil(t, derr)
	assert.Equal(t, diag.NumericOutOfRange, derr.State)
	assert.False(t, derr.Warning, "magnitude loss is an error, not a warning")
	assert.Zero(t, res.BytesWritten, "nothing written on range error")
}

func TestWrite_Int32FitsLong(t *testing.T) {
	buf := make([]byte, 4)
	res, derr := Write(rawValue(t, int32(-7)), CLong, buf)
	require.Nil(t, derr)
	assert.Equal(t, 4, res.BytesWritten)
	assert.Equal(t, []byte{0xf9, 0xff, 0xff, 0xff}, buf)
}

func TestWrite_DoubleAtInt64Boundary(t *testing.T) {
	buf := make([]byte, 8)

	// 2^63 is the float64 rounding of MaxInt64 and is one past the largest
	// representable int64; it must be rejected, not sign-flipped.
	res, derr := Write(rawValue(t, 9223372036854775808.0), CBigInt, buf)
	require.NotNil(t, derr)
	assert.Equal(t, diag.NumericOutOfRange, derr.State)
	assert.False(t, derr.Warning)
	assert.Zero(t, res.BytesWritten)

	// -2^63 is exactly MinInt64 and in range.
	res, derr = Write(rawValue(t, -9223372036854775808.0), CBigInt, buf)
	require.Nil(t, derr)
	assert.Equal(t, 8, res.BytesWritten)
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 0x80}, buf)

	// The textual path parses oversized integrals through float64 and must
	// apply the same bound.
	_, derr = Write(rawValue(t, "9223372036854775808"), CBigInt, buf)
	require.NotNil(t, derr)
	assert.Equal(t, diag.NumericOutOfRange, derr.State)

	_, derr = Write(rawValue(t, math.Inf(1)), CBigInt, buf)
	require.NotNil(t, derr)
	assert.Equal(t, diag.NumericOutOfRange, derr.State)
}

func TestWrite_FractionalTruncationWarning(t *testing.T) {
	buf := make([]byte, 8)
	res, derr := Write(rawValue(t, 12.75), CBigInt, buf)
	require.NotNil(t, derr)
	assert.Equal(t, diag.FractionalTruncation, derr.State)
	assert.True(t, derr.Warning)
	assert.Equal(t, 8, res.BytesWritten, "truncated value is still delivered")
	assert.Equal(t, uint64(12), uint64(buf[0]))
}

func TestWrite_StringToNumeric(t *testing.T) {
	t.Run("integral string converts", func(t *testing.T) {
		buf := make([]byte, 8)
		_, derr := Write(rawValue(t, "42"), CBigInt, buf)
		require.Nil(t, derr)
		assert.Equal(t, byte(42), buf[0])
	})

	t.Run("non-numeric string rejected", func(t *testing.T) {
		_, derr := Write(rawValue(t, "not a number"), CBigInt, make([]byte, 8))
		require.NotNil(t, derr)
		assert.Equal(t, diag.InvalidCharacterValue, derr.State)
	})
}

func TestWrite_Bit(t *testing.T) {
	t.Run("boolean", func(t *testing.T) {
		buf := make([]byte, 1)
		_, derr := Write(rawValue(t, true), CBit, buf)
		require.Nil(t, derr)
		assert.Equal(t, byte(1), buf[0])
	})

	t.Run("numeric two out of range", func(t *testing.T) {
		_, derr := Write(rawValue(t, int32(2)), CBit, make([]byte, 1))
		require.NotNil(t, derr)
		assert.Equal(t, diag.NumericOutOfRange, derr.State)
	})

	t.Run("document restricted", func(t *testing.T) {
		_, derr := Write(rawValue(t, bson.D{{Key: "x", Value: 1}}), CBit, make([]byte, 1))
		require.NotNil(t, derr)
		assert.Equal(t, diag.RestrictedDataType, derr.State)
	})
}

func TestWrite_TimestampRoundTrip(t *testing.T) {
	instant := time.Date(2024, 3, 15, 10, 30, 45, 123000000, time.UTC)
	buf := make([]byte, 16)
	res, derr := Write(rawValue(t, instant), CTimestamp, buf)
	require.Nil(t, derr)
	assert.Equal(t, 16, res.BytesWritten)

	back := ReadTimestamp(buf)
	assert.True(t, instant.Equal(back), "decoding the structure restores the instant")
}

func TestWrite_TimestampFromString(t *testing.T) {
	buf := make([]byte, 16)
	_, derr := Write(rawValue(t, "2024-03-15T10:30:45Z"), CTimestamp, buf)
	require.Nil(t, derr)
	assert.Equal(t, time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC), ReadTimestamp(buf))

	_, derr = Write(rawValue(t, "yesterday"), CTimestamp, buf)
	require.NotNil(t, derr)
	assert.Equal(t, diag.InvalidDatetimeFormat, derr.State)
}

func TestWrite_FixedTargetShortBuffer(t *testing.T) {
	res, derr := Write(rawValue(t, int64(1)), CBigInt, make([]byte, 3))
	require.NotNil(t, derr)
	assert.Equal(t, diag.InvalidBufferLength, derr.State)
	assert.Equal(t, 8, res.BytesAvailable)
	assert.Zero(t, res.BytesWritten)
}

func TestWrite_DateRendersAsRFC3339Millis(t *testing.T) {
	instant := time.Date(2024, 3, 15, 10, 30, 45, 123000000, time.UTC)
	buf := make([]byte, 64)
	res, derr := Write(rawValue(t, instant), CChar, buf)
	require.Nil(t, derr)
	assert.Equal(t, "2024-03-15T10:30:45.123Z", string(buf[:res.BytesWritten]))
}

func TestWrite_ObjectIDAsHexAndBinary(t *testing.T) {
	var oid primitive.ObjectID
	oid[11] = 0xAB

	buf := make([]byte, 32)
	res, derr := Write(rawValue(t, oid), CChar, buf)
	require.Nil(t, derr)
	assert.Equal(t, oid.Hex(), string(buf[:res.BytesWritten]))

	bin := make([]byte, 12)
	res, derr = Write(rawValue(t, oid), CBinary, bin)
	require.Nil(t, derr)
	assert.Equal(t, 12, res.BytesWritten)
	assert.Equal(t, oid[:], bin)
}

func TestWrite_DocumentAsExtendedJSON(t *testing.T) {
	buf := make([]byte, 256)
	res, derr := Write(rawValue(t, bson.D{{Key: "a", Value: int32(1)}}), CChar, buf)
	require.Nil(t, derr)
	assert.Contains(t, string(buf[:res.BytesWritten]), `"a"`)
}

func TestWrite_DecimalToBigInt(t *testing.T) {
	dec, err := primitive.ParseDecimal128("99.5")
	require.NoError(t, err)
	buf := make([]byte, 8)
	res, derr := Write(rawValue(t, dec), CBigInt, buf)
	require.NotNil(t, derr)
	assert.Equal(t, diag.FractionalTruncation, derr.State)
	assert.True(t, derr.Warning)
	assert.Equal(t, byte(99), buf[0])
	_ = res
}
