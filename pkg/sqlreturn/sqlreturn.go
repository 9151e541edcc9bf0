// Package sqlreturn defines the status-code vocabulary of the call-level
// interface. Every boundary entry point of the driver returns exactly one of
// these codes; callers inspect the code to decide whether to read the target
// handle's diagnostic records.
package sqlreturn

// Code is a call-level-interface return code.
type Code int16

const (
	Success         Code = 0
	SuccessWithInfo Code = 1
	StillExecuting  Code = 2
	Error           Code = -1
	InvalidHandle   Code = -2
	NoData          Code = 100
)

// Succeeded reports whether the call completed, with or without info.
func (c Code) Succeeded() bool {
	return c == Success || c == SuccessWithInfo
}

// String returns the standard name of the code.
func (c Code) String() string {
	switch c {
	case Success:
		return "SQL_SUCCESS"
	case SuccessWithInfo:
		return "SQL_SUCCESS_WITH_INFO"
	case StillExecuting:
		return "SQL_STILL_EXECUTING"
	case Error:
		return "SQL_ERROR"
	case InvalidHandle:
		return "SQL_INVALID_HANDLE"
	case NoData:
		return "SQL_NO_DATA"
	default:
		return "SQL_UNKNOWN"
	}
}
