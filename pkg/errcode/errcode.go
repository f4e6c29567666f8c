// Package errcode translates Go filesystem errors into the negative errno
// taxonomy carried in wire replies.
//
// This is a leaf package with no internal dependencies, imported by the
// request handlers, the event log, and the metrics without causing
// circular imports.
//
// Every operation reply carries an int32 error_code: 0 on success, else the
// negated OS errno. The wire value is the raw errno either way; the
// user/unexpected split below only affects event-log gating.
package errcode

import (
	"errors"
	"syscall"
)

// Code returns the wire error code for err: 0 for nil, the negated errno
// when one can be unwrapped from the chain, and -EIO otherwise.
//
// os.PathError, os.LinkError and os.SyscallError all unwrap to a
// syscall.Errno, so plain filesystem call sites need no special casing.
func Code(err error) int32 {
	if err == nil {
		return 0
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return -int32(errno)
	}
	return -int32(syscall.EIO)
}

// FromErrno returns the wire error code for a raw errno.
func FromErrno(errno syscall.Errno) int32 {
	if errno == 0 {
		return 0
	}
	return -int32(errno)
}

// IsUserCode reports whether code is one of the expected user errors:
// ENOENT, ENOTDIR, EEXIST. Everything else non-zero is unexpected.
func IsUserCode(code int32) bool {
	switch code {
	case -int32(syscall.ENOENT), -int32(syscall.ENOTDIR), -int32(syscall.EEXIST):
		return true
	}
	return false
}

// UserKind returns the event-log kind tag for a user error code
// ("enoent", "enotdir", "eexist") and whether code is a user error.
func UserKind(code int32) (string, bool) {
	switch code {
	case -int32(syscall.ENOENT):
		return "enoent", true
	case -int32(syscall.ENOTDIR):
		return "enotdir", true
	case -int32(syscall.EEXIST):
		return "eexist", true
	}
	return "", false
}

// Error wraps a wire error code as a Go error. The request handlers use it
// for failures that do not come from a syscall (an empty served path), so
// Code recovers the intended errno from it like from any other error.
type Error struct {
	Code int32
}

// Errno wraps a raw errno as an Error.
func Errno(errno syscall.Errno) *Error {
	return &Error{Code: FromErrno(errno)}
}

// Wrap converts any error to an *Error carrying its wire code.
// Returns nil for nil.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded
	}
	return &Error{Code: Code(err)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	return syscall.Errno(-e.Code).Error()
}

// Unwrap exposes the underlying errno for errors.As chains.
func (e *Error) Unwrap() error {
	return syscall.Errno(-e.Code)
}
