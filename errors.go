package xps

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Error is a structured error with operation context and errno mapping
type Error struct {
	Op    string     // Operation that failed (e.g., "listen", "attach")
	Fd    int        // File descriptor (-1 if not applicable)
	Code  ErrorCode  // High-level error category
	Errno unix.Errno // Kernel errno (0 if not applicable)
	Msg   string     // Human-readable message
	Inner error      // Wrapped error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	switch {
	case e.Fd >= 0 && e.Op != "":
		return fmt.Sprintf("xps: %s (op=%s fd=%d)", msg, e.Op, e.Fd)
	case e.Op != "":
		return fmt.Sprintf("xps: %s (op=%s)", msg, e.Op)
	default:
		return fmt.Sprintf("xps: %s", msg)
	}
}

// Unwrap returns the wrapped error for errors.Is/As support
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support by error code
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode represents high-level error categories
type ErrorCode string

const (
	ErrCodeResolve       ErrorCode = "address resolution failed"
	ErrCodeSocket        ErrorCode = "socket setup failed"
	ErrCodeBind          ErrorCode = "bind failed"
	ErrCodeListen        ErrorCode = "listen failed"
	ErrCodeConnect       ErrorCode = "connect failed"
	ErrCodeAttach        ErrorCode = "loop attach failed"
	ErrCodeDetach        ErrorCode = "loop detach failed"
	ErrCodePermission    ErrorCode = "permission denied"
	ErrCodeAddressInUse  ErrorCode = "address in use"
	ErrCodeUnreachable   ErrorCode = "network unreachable"
	ErrCodeInvalidParams ErrorCode = "invalid parameters"
	ErrCodeIO            ErrorCode = "I/O error"
)

// NewError creates a new structured error
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Fd: -1, Code: code, Msg: msg}
}

// NewFdError creates a new structured error tied to a file descriptor
func NewFdError(op string, fd int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Fd: fd, Code: code, Msg: msg}
}

// WrapError wraps an existing error with xps context
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}

	if xe, ok := inner.(*Error); ok {
		return &Error{
			Op:    op,
			Fd:    xe.Fd,
			Code:  xe.Code,
			Errno: xe.Errno,
			Msg:   xe.Msg,
			Inner: xe.Inner,
		}
	}

	var errno unix.Errno
	if errors.As(inner, &errno) {
		return &Error{
			Op:    op,
			Fd:    -1,
			Code:  mapErrnoToCode(errno),
			Errno: errno,
			Msg:   errno.Error(),
			Inner: inner,
		}
	}

	return &Error{Op: op, Fd: -1, Code: ErrCodeIO, Msg: inner.Error(), Inner: inner}
}

// mapErrnoToCode maps a kernel errno to an xps error code
func mapErrnoToCode(errno unix.Errno) ErrorCode {
	switch errno {
	case unix.EACCES, unix.EPERM:
		return ErrCodePermission
	case unix.EADDRINUSE:
		return ErrCodeAddressInUse
	case unix.ENETUNREACH, unix.EHOSTUNREACH, unix.ECONNREFUSED:
		return ErrCodeUnreachable
	case unix.EINVAL, unix.EBADF:
		return ErrCodeInvalidParams
	default:
		return ErrCodeIO
	}
}

// IsCode checks if an error matches a specific error code
func IsCode(err error, code ErrorCode) bool {
	var xpsErr *Error
	if errors.As(err, &xpsErr) {
		return xpsErr.Code == code
	}
	return false
}

// IsErrno checks if an error matches a specific errno
func IsErrno(err error, errno unix.Errno) bool {
	var xpsErr *Error
	if errors.As(err, &xpsErr) {
		return xpsErr.Errno == errno
	}
	return false
}
