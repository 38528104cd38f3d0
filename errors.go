package fpsensor

import "github.com/alvinjay/fpsensor/internal/ferrors"

// Error is the structured error every exported Driver method returns.
// It is a type alias over internal/ferrors.Error so that internal
// collaborators (transport, orchestrator, presence) can construct and
// return it without importing this package and creating a cycle.
type Error = ferrors.Error

// Code categorizes an Error at a level callers can branch on without
// string matching.
type Code = ferrors.Code

// Error codes a Driver method may return.
const (
	CodeNotImplemented     = ferrors.CodeNotImplemented
	CodeBusy               = ferrors.CodeBusy
	CodeTimeout            = ferrors.CodeTimeout
	CodeInvalidParameters  = ferrors.CodeInvalidParameters
	CodeChecksumMismatch   = ferrors.CodeChecksumMismatch
	CodeNoFinger           = ferrors.CodeNoFinger
	CodeImageFail          = ferrors.CodeImageFail
	CodeFeatureExtractFail = ferrors.CodeFeatureExtractFail
	CodeOccupied           = ferrors.CodeOccupied
	CodeDuplicate          = ferrors.CodeDuplicate
	CodeNotFound           = ferrors.CodeNotFound
	CodeDatabaseEmpty      = ferrors.CodeDatabaseEmpty
	CodePermissionDenied   = ferrors.CodePermissionDenied
	CodeIOError            = ferrors.CodeIOError
	CodeProtocolError      = ferrors.CodeProtocolError
	CodeUnavailable        = ferrors.CodeUnavailable
)

// IsCode reports whether err is a *Error carrying code.
func IsCode(err error, code Code) bool {
	return ferrors.Is(err, code)
}

// Wrap attaches driver context to an arbitrary error, the way every
// internal collaborator wraps its own failures.
func Wrap(op string, err error) *Error {
	return ferrors.Wrap(op, err)
}
