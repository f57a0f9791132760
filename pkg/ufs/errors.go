package ufs

import "fmt"

// ErrorCode classifies a UFS operation failure the way errno classifies a
// syscall failure.
type ErrorCode int

const (
	// NoErr indicates success. Operations that return a nil error imply
	// this code; it exists so callers can compare against a concrete zero
	// value when an API threads ErrorCode through explicitly.
	NoErr ErrorCode = iota
	// NoFile means the named file, or the descriptor, does not exist.
	NoFile
	// NoMem means an allocation would exceed a capacity limit: the
	// 100 MiB per-file cap, or the host ran out of memory for a new block.
	NoMem
	// NoPermission means the descriptor's mode flags forbid the requested
	// operation (e.g. writing through a read-only descriptor).
	NoPermission
)

func (c ErrorCode) String() string {
	switch c {
	case NoErr:
		return "NO_ERR"
	case NoFile:
		return "NO_FILE"
	case NoMem:
		return "NO_MEM"
	case NoPermission:
		return "NO_PERMISSION"
	default:
		return "UNKNOWN"
	}
}

// Error is the error type returned by every UFS operation that can fail.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("ufs: %s: %s", e.Code, e.Message)
}

func newError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Errno extracts the ErrorCode from err: NoErr for a nil err, the
// wrapped code for a *Error, and NoFile for any other non-nil error.
func Errno(err error) ErrorCode {
	if err == nil {
		return NoErr
	}
	if uerr, ok := err.(*Error); ok {
		return uerr.Code
	}
	return NoFile
}
