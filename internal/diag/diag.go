// Package diag implements the per-handle diagnostics ledger: an ordered list
// of error and warning records retrieved front-to-back by 1-based index
// through the get-diagnostic-record entry point.
package diag

import (
	"fmt"
	"sync"
)

// VendorIdentifier prefixes every diagnostic message so client tooling can
// attribute the record to this driver.
const VendorIdentifier = "DocstoreDB"

// SQLSTATE codes used by the driver.
const (
	GeneralError           = "HY000"
	MemoryAllocation       = "HY001"
	InvalidBufferType      = "HY003"
	InvalidBufferLength    = "HY090"
	FunctionSequenceError  = "HY010"
	InvalidAttrValue       = "HY024"
	InvalidAttrIdentifier  = "HY092"
	NotImplemented         = "HYC00"
	TimeoutExpired         = "HYT00"
	NoDSNOrDriver          = "IM007"
	RightTruncated         = "01004"
	OptionValueChanged     = "01S02"
	FractionalTruncation   = "01S07"
	RestrictedDataType     = "07006"
	InvalidDescriptorIndex = "07009"
	UnableToConnect        = "08001"
	ConnectionNotOpen      = "08003"
	NumericOutOfRange      = "22003"
	InvalidDatetimeFormat  = "22007"
	InvalidCharacterValue  = "22018"
	InvalidCursorState     = "24000"
	SyntaxOrAccessError    = "42000"
	BaseTableNotFound      = "42S02"
)

// Record is one diagnostic entry. Row and Column carry the cursor position
// for records produced while fetching; both are zero when not applicable.
type Record struct {
	State      string
	NativeCode int32
	Message    string
	Row        int64
	Column     int32
}

// Ledger is the ordered diagnostic store owned by exactly one handle.
// It is passive: the caller decides between the clear-then-append policy
// (fresh top-level operation) and append-only (accumulating detail).
type Ledger struct {
	mu      sync.Mutex
	records []Record
}

// Record appends one entry to the ledger.
func (l *Ledger) Record(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

// Clear truncates the ledger to empty. Indices handed out before Clear are
// not valid afterwards.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = l.records[:0]
}

// Get returns the record at the 1-based index. The second return value is
// false once index exceeds the current length, which the boundary surface
// reports as SQL_NO_DATA.
func (l *Ledger) Get(index int) (Record, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 1 || index > len(l.records) {
		return Record{}, false
	}
	return l.records[index-1], true
}

// Len returns the number of records currently held.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Error is a handle-scoped failure carrying its SQLSTATE and the backend's
// native error code when one exists. Warning marks states that complete the
// operation with info instead of failing it (right truncation, fractional
// truncation, option changed).
type Error struct {
	State      string
	NativeCode int32
	Message    string
	Warning    bool
	Row        int64
	Column     int32
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.State, VendorIdentifier, e.Message)
}

// AsRecord converts the error into a ledger record.
func (e *Error) AsRecord() Record {
	return Record{State: e.State, NativeCode: e.NativeCode, Message: e.Message, Row: e.Row, Column: e.Column}
}

// New builds an Error with a vendor/component prefixed message.
func New(state, component, format string, args ...any) *Error {
	return &Error{
		State:   state,
		Message: fmt.Sprintf("[%s][%s] %s", VendorIdentifier, component, fmt.Sprintf(format, args...)),
	}
}

// NewWarning builds a non-fatal Error for success-with-info outcomes.
func NewWarning(state, component, format string, args ...any) *Error {
	e := New(state, component, format, args...)
	e.Warning = true
	return e
}

// Unimplemented reports an entry point that is part of the standard surface
// but deliberately not provided by this driver.
func Unimplemented(fn string) *Error {
	return New(NotImplemented, "API", "the feature %s is not implemented", fn)
}

// InternalError wraps a contained panic value. It is only ever produced by
// the boundary guard.
func InternalError(entry string, cause any) *Error {
	return New(GeneralError, "API", "internal driver error in %s: %v", entry, cause)
}
