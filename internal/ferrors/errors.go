// Package ferrors defines the driver's structured error type. It lives
// under internal/ (rather than the root package) so every internal
// collaborator — transport, orchestrator, presence — can return and
// wrap it without a cycle through the root package, which re-exports
// it via a type alias.
package ferrors

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/alvinjay/fpsensor/internal/protocol"
)

// Code is a high-level error category.
type Code string

const (
	CodeNotImplemented    Code = "not implemented"
	CodeBusy              Code = "busy"
	CodeTimeout           Code = "timeout"
	CodeInvalidParameters Code = "invalid parameters"
	CodeChecksumMismatch  Code = "checksum mismatch"
	CodeNoFinger          Code = "no finger"
	CodeImageFail         Code = "image capture failed"
	CodeFeatureExtractFail Code = "feature extraction failed"
	CodeOccupied          Code = "location occupied"
	CodeDuplicate         Code = "duplicate template"
	CodeNotFound          Code = "template not found"
	CodeDatabaseEmpty     Code = "database empty"
	CodePermissionDenied  Code = "permission denied"
	CodeIOError           Code = "I/O error"
	CodeProtocolError     Code = "protocol error"
	CodeUnavailable       Code = "unavailable"
)

// Error is the structured error every exported Driver method returns,
// mirroring the teacher's op/code/errno/inner shape with the device-
// specific DevID/Queue fields replaced by the sensor domain's
// Opcode/Location.
type Error struct {
	Op       string
	Opcode   protocol.Opcode
	Location int
	Code     Code
	Errno    syscall.Errno
	Msg      string
	Inner    error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if e.Op == "" {
		return fmt.Sprintf("fpsensor: %s", msg)
	}
	return fmt.Sprintf("fpsensor: %s (op=%s)", msg, e.Op)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// New creates a structured error.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// WithLocation attaches a template location to an error.
func WithLocation(op string, code Code, location int, msg string) *Error {
	return &Error{Op: op, Code: code, Location: location, Msg: msg}
}

// WithOpcode attaches the opcode that provoked a protocol-level error.
func WithOpcode(op string, code Code, opcode protocol.Opcode, msg string) *Error {
	return &Error{Op: op, Code: code, Opcode: opcode, Msg: msg}
}

// Wrap wraps an existing error with driver context, mapping a raw
// syscall.Errno the way the teacher's WrapError does.
func Wrap(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if fe, ok := inner.(*Error); ok {
		wrapped := *fe
		wrapped.Op = op
		return &wrapped
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrno(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: CodeIOError, Msg: inner.Error(), Inner: inner}
}

func mapErrno(errno syscall.Errno) Code {
	switch errno {
	case syscall.ETIMEDOUT:
		return CodeTimeout
	case syscall.EBUSY:
		return CodeBusy
	case syscall.EPERM, syscall.EACCES:
		return CodePermissionDenied
	case syscall.EINVAL:
		return CodeInvalidParameters
	default:
		return CodeIOError
	}
}

// Is reports whether err is a *Error with the given code.
func Is(err error, code Code) bool {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}
