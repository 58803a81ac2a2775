package errors

import (
	"errors"
	"fmt"
)

// New creates a new Error with the specified code and message.
// Use this for creating errors without an underlying cause.
//
// Example:
//
//	err := errors.New(errors.CodeValidation, "access token TTL cannot exceed max TTL")
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with the specified code and formatted message.
// Use this for creating errors with dynamic content in the message.
//
// Example:
//
//	err := errors.Newf(errors.CodeNotFoundIdentity, "identity %q not found", identityID)
func Newf(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
// The wrapped error becomes the Cause of the new error.
// If err is nil, Wrap returns nil.
//
// Example:
//
//	row, err := store.FindAccessToken(ctx, id)
//	if err != nil {
//	    return errors.Wrap(err, errors.CodeInternalDatabase, "failed to load access token")
//	}
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with a formatted message.
// The wrapped error becomes the Cause of the new error.
// If err is nil, Wrapf returns nil.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// Validation creates a new validation error.
// This is a convenience function equivalent to New(CodeValidation, message).
//
// Example:
//
//	err := errors.Validation("access token TTL cannot exceed max TTL")
func Validation(message string) *Error {
	return New(CodeValidation, message)
}

// Validationf creates a new validation error with a formatted message.
func Validationf(format string, args ...any) *Error {
	return Newf(CodeValidation, format, args...)
}

// NotFound creates a new not found error.
// This is a convenience function equivalent to New(CodeNotFound, message).
//
// Example:
//
//	err := errors.NotFound("organization not found")
func NotFound(message string) *Error {
	return New(CodeNotFound, message)
}

// NotFoundf creates a new not found error with a formatted message.
func NotFoundf(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

// Authentication creates a new authentication error with a deliberately
// uniform message. Use this whenever a login proof is malformed, unsigned,
// unverifiable, expired, or fails a configured restriction — the caller must
// not be able to tell which.
//
// Example:
//
//	return errors.Authentication()
func Authentication() *Error {
	return New(CodeAuthentication, "authentication failed")
}

// AuthenticationCause creates a uniform authentication error that records
// the underlying failure as its cause for server-side logging. The cause is
// never included in the externally visible Message.
func AuthenticationCause(err error) *Error {
	return Wrap(err, CodeAuthentication, "authentication failed")
}

// Unauthorized creates an access-denied error for the token validation and
// renewal paths. Expired, revoked, use-exhausted, and unknown tokens all
// surface as this same error.
//
// Example:
//
//	err := errors.Unauthorized("access denied")
func Unauthorized(message string) *Error {
	return New(CodeUnauthorized, message)
}

// Forbidden creates a new authorization error.
// Use this when the authenticated identity lacks permission for an action.
//
// Example:
//
//	err := errors.Forbidden("insufficient permissions to revoke auth method")
func Forbidden(message string) *Error {
	return New(CodeAuthorization, message)
}

// PermissionBoundary creates a privilege-boundary violation error carrying
// the specific missing permissions under the "missing_permissions" detail
// key. Unlike authentication errors, boundary errors are deliberately
// specific: the missing set exists for audit and debugging.
//
// Example:
//
//	err := errors.PermissionBoundary("cannot modify a more privileged identity", missing)
func PermissionBoundary(message string, missingPermissions []string) *Error {
	return New(CodePermissionBoundary, message).
		WithDetail("missing_permissions", missingPermissions)
}

// Conflict creates a new conflict error.
// Use this when an operation conflicts with the current state.
//
// Example:
//
//	err := errors.Conflict("auth method already configured for identity")
func Conflict(message string) *Error {
	return New(CodeConflict, message)
}

// Internal creates a new internal error.
// Use this for unexpected system failures that should not expose details to users.
func Internal(message string) *Error {
	return New(CodeInternal, message)
}

// Internalf creates a new internal error with a formatted message.
func Internalf(format string, args ...any) *Error {
	return Newf(CodeInternal, format, args...)
}

// Unavailable creates a new service unavailable error.
// Use this when a dependency (store, counter cache) is temporarily unavailable.
func Unavailable(message string) *Error {
	return New(CodeUnavailable, message)
}

// Timeout creates a new timeout error.
// Use this when an operation exceeds its time limit.
func Timeout(message string) *Error {
	return New(CodeTimeout, message)
}

// FromError converts a standard error to an Error.
// If the error is already an *Error, it is returned as-is.
// Otherwise, it is wrapped as an internal error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}

	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return Wrap(err, CodeInternal, "an unexpected error occurred")
}
