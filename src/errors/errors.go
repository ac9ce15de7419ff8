// Package errors defines the error values returned by the log, the page store and recovery.
// Every error carries a code, so callers can match a whole class of failures with
// errors.Is(err, ErrXxx) or the IsXxx helpers, whatever message or cause it was built with.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error is the base interface for all pagewal errors.
type Error interface {
	error
	// Code returns the error code string (e.g., "ErrWALFormat", "ErrUnsupported").
	Code() string
	// Unwrap returns the underlying error, supporting error wrapping chain.
	Unwrap() error
}

// baseError is the base implementation of Error.
type baseError struct {
	code    string
	message string
	cause   error
}

func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *baseError) Code() string {
	return e.code
}

func (e *baseError) Unwrap() error {
	return e.cause
}

// Is matches any Error with the same code.
func (e *baseError) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.Code() == e.code
}

// NewError creates a new error with the given code and message.
func NewError(code, message string) Error {
	return &baseError{
		code:    code,
		message: message,
	}
}

// NewErrorWithCause creates a new error with an underlying cause.
func NewErrorWithCause(code, message string, cause error) Error {
	return &baseError{
		code:    code,
		message: message,
		cause:   cause,
	}
}

const (
	codeWALFormat          = "ErrWALFormat"
	codeUnsupported        = "ErrUnsupported"
	codePageOverflow       = "ErrPageOverflow"
	codeInvalidPageSize    = "ErrInvalidPageSize"
	codeWALCorrupted       = "ErrWALCorrupted"
	codeWALClosed          = "ErrWALClosed"
	codeSegmentNotFound    = "ErrSegmentNotFound"
	codeCutTillLimit       = "ErrCutTillLimitNotFound"
	codeEventScheduled     = "ErrEventAlreadyScheduled"
	codePageNotFound       = "ErrPageNotFound"
	codeFileNotFound       = "ErrFileNotFound"
	codeFileAlreadyExists  = "ErrFileAlreadyExists"
	codeRecoveryFailed     = "ErrRecoveryFailed"
	codeConfig             = "ErrConfigError"
	codeOperationCompleted = "ErrOperationCompleted"
	codePageConflict       = "ErrPageConflict"
)

// ErrWALFormat is returned when log bytes cannot be interpreted: unknown record tag,
// unknown metadata key, corrupt chunk count or truncated payload.
var ErrWALFormat = NewError(codeWALFormat, "malformed WAL record")

// ErrUnsupported is returned by engines that cannot provide a durability-only operation.
var ErrUnsupported = NewError(codeUnsupported, "operation not supported by this WAL kind")

// ErrPageOverflow reports an access past the chunk capacity of a page-change set.
var ErrPageOverflow = NewError(codePageOverflow, "page change outside page bounds")

// ErrInvalidPageSize is returned when the page size is not a positive multiple of 1024
// or exceeds what the change set wire form can address.
var ErrInvalidPageSize = NewError(codeInvalidPageSize, "invalid page size")

// ErrWALCorrupted is returned when a frame checksum fails where a torn tail is impossible.
var ErrWALCorrupted = NewError(codeWALCorrupted, "WAL corrupted")

// ErrWALClosed is returned by operations on a closed log.
var ErrWALClosed = NewError(codeWALClosed, "WAL closed")

// ErrSegmentNotFound is returned when a segment or record position does not exist.
var ErrSegmentNotFound = NewError(codeSegmentNotFound, "segment not found")

// ErrCutTillLimitNotFound is returned when removing a cut-till limit that was never added.
var ErrCutTillLimitNotFound = NewError(codeCutTillLimit, "cut-till limit not registered")

// ErrEventAlreadyScheduled is returned when two events are scheduled at the same LSN.
var ErrEventAlreadyScheduled = NewError(codeEventScheduled, "event already scheduled at LSN")

// ErrPageNotFound is returned by page stores for pages that were never stored.
var ErrPageNotFound = NewError(codePageNotFound, "page not found")

// ErrFileNotFound is returned by page stores for unknown file ids.
var ErrFileNotFound = NewError(codeFileNotFound, "file not found")

// ErrFileAlreadyExists is returned when creating a file id twice.
var ErrFileAlreadyExists = NewError(codeFileAlreadyExists, "file already exists")

// ErrRecoveryFailed is returned when crash recovery fails unrecoverably.
var ErrRecoveryFailed = NewError(codeRecoveryFailed, "crash recovery failed")

// ErrOperationCompleted is returned when using an atomic operation after it was ended.
var ErrOperationCompleted = NewError(codeOperationCompleted, "atomic operation already completed")

// ErrPageConflict is returned when a page changed in the store after an atomic operation loaded it.
var ErrPageConflict = NewError(codePageConflict, "page modified concurrently")

// NewFormatError creates a format error with the given message.
func NewFormatError(format string, args ...any) Error {
	return NewError(codeWALFormat, fmt.Sprintf(format, args...))
}

// NewUnsupported creates a capability error naming the rejected operation.
func NewUnsupported(operation string) Error {
	return NewError(codeUnsupported, fmt.Sprintf("%s is not supported by the in-memory WAL", operation))
}

// NewPageOverflow creates an assertion error for an access at [offset, offset+length).
func NewPageOverflow(offset, length, pageSize int) Error {
	return NewError(codePageOverflow, fmt.Sprintf("range [%d, %d) exceeds page size %d", offset, offset+length, pageSize))
}

// NewInvalidPageSize creates an error for an unsupported page size.
func NewInvalidPageSize(pageSize int) Error {
	return NewError(codeInvalidPageSize, fmt.Sprintf("page size %d must be a positive multiple of 1024 and at most 256 KB", pageSize))
}

// NewWALError creates a corruption error with the given message.
func NewWALError(message string, cause error) Error {
	return NewErrorWithCause(codeWALCorrupted, message, cause)
}

// NewSegmentNotFound creates an error for a missing segment.
func NewSegmentNotFound(segment int64) Error {
	return NewError(codeSegmentNotFound, fmt.Sprintf("segment %d not found", segment))
}

// NewCutTillLimitNotFound creates an error for an unknown cut-till limit.
func NewCutTillLimitNotFound(lsn fmt.Stringer) Error {
	return NewError(codeCutTillLimit, fmt.Sprintf("no cut-till limit registered at %s", lsn))
}

// NewEventAlreadyScheduled creates an error for a duplicate event registration.
func NewEventAlreadyScheduled(lsn fmt.Stringer) Error {
	return NewError(codeEventScheduled, fmt.Sprintf("event already scheduled at %s", lsn))
}

// NewPageNotFound creates an error for a specific missing page.
func NewPageNotFound(fileID, pageIndex int64) Error {
	return NewError(codePageNotFound, fmt.Sprintf("page %d of file %d not found", pageIndex, fileID))
}

// NewFileNotFound creates an error for a specific missing file.
func NewFileNotFound(fileID int64) Error {
	return NewError(codeFileNotFound, fmt.Sprintf("file %d not found", fileID))
}

// NewFileAlreadyExists creates an error for a duplicate file id.
func NewFileAlreadyExists(fileID int64) Error {
	return NewError(codeFileAlreadyExists, fmt.Sprintf("file %d already exists", fileID))
}

// NewRecoveryError creates a recovery error with the given message.
func NewRecoveryError(message string, cause error) Error {
	return NewErrorWithCause(codeRecoveryFailed, message, cause)
}

// NewConfigError creates a configuration error with the given message.
func NewConfigError(message string, cause error) Error {
	return NewErrorWithCause(codeConfig, message, cause)
}

func hasCode(err error, code string) bool {
	var e Error
	for err != nil {
		if stderrors.As(err, &e) {
			if e.Code() == code {
				return true
			}
			err = e.Unwrap()
			continue
		}
		return false
	}
	return false
}

// IsFormat checks if the error is a WAL format error.
func IsFormat(err error) bool {
	return hasCode(err, codeWALFormat)
}

// IsUnsupported checks if the error is a capability error.
func IsUnsupported(err error) bool {
	return hasCode(err, codeUnsupported)
}

// IsPageOverflow checks if the error is a page-change bounds violation.
func IsPageOverflow(err error) bool {
	return hasCode(err, codePageOverflow)
}

// IsWALCorrupted checks if the error is an ErrWALCorrupted.
func IsWALCorrupted(err error) bool {
	return hasCode(err, codeWALCorrupted)
}

// IsPageNotFound checks if the error is an ErrPageNotFound.
func IsPageNotFound(err error) bool {
	return hasCode(err, codePageNotFound)
}

// IsSegmentNotFound checks if the error is an ErrSegmentNotFound.
func IsSegmentNotFound(err error) bool {
	return hasCode(err, codeSegmentNotFound)
}

// IsFileNotFound checks if the error is an ErrFileNotFound.
func IsFileNotFound(err error) bool {
	return hasCode(err, codeFileNotFound)
}

// IsFileAlreadyExists checks if the error is an ErrFileAlreadyExists.
func IsFileAlreadyExists(err error) bool {
	return hasCode(err, codeFileAlreadyExists)
}

// IsRecoveryFailed checks if the error is an ErrRecoveryFailed.
func IsRecoveryFailed(err error) bool {
	return hasCode(err, codeRecoveryFailed)
}

// IsPageConflict checks if the error is a concurrent page modification.
func IsPageConflict(err error) bool {
	return hasCode(err, codePageConflict)
}

// NewPageConflict creates a conflict error for a page whose stored LSN moved from expected to actual.
func NewPageConflict(fileID, pageIndex int64, expected, actual fmt.Stringer) Error {
	return NewError(codePageConflict, fmt.Sprintf("page %d of file %d was loaded at %s but the store holds %s",
		pageIndex, fileID, expected, actual))
}

// IsConfigError checks if the error is a configuration error.
func IsConfigError(err error) bool {
	return hasCode(err, codeConfig)
}
