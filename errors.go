package roster

import (
	goerrors "github.com/goliatone/go-errors"
)

// Stable text codes shared with the wire protocol. The gateway identifies
// failures by code, never by matching message text, so human-readable
// copy can change without breaking clients.
const (
	TextCodeEmailRequired     = "EMAIL_REQUIRED"
	TextCodeOTPRequired       = "OTP_REQUIRED"
	TextCodeOTPInvalid        = "OTP_INVALID"
	TextCodeOTPExpired        = "OTP_EXPIRED"
	TextCodeRoleMismatch      = "ROLE_MISMATCH"
	TextCodeAccessDenied      = "ACCESS_DENIED"
	TextCodeUserNotFound      = "USER_NOT_FOUND"
	TextCodeValidation        = "VALIDATION_FAILED"
	TextCodeRateLimited       = "RATE_LIMITED"
	TextCodeConflict          = "ROSTER_CONFLICT"
	TextCodeVerifyInFlight    = "VERIFY_IN_FLIGHT"
	TextCodeLoginAborted      = "LOGIN_ABORTED"
	TextCodeInvalidTransition = "INVALID_LOGIN_TRANSITION"
	TextCodeTokenExpired      = "TOKEN_EXPIRED"
	TextCodeTokenMalformed    = "TOKEN_MALFORMED"
	TextCodeNetwork           = "NETWORK_ERROR"
)

// ErrEmailRequired is returned before any network call when the email
// field is empty.
var ErrEmailRequired = goerrors.New("please enter your email", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmailRequired).
	WithCode(goerrors.CodeBadRequest)

// ErrOTPRequired is returned before any network call when the passcode
// field is empty.
var ErrOTPRequired = goerrors.New("please enter the OTP", goerrors.CategoryValidation).
	WithTextCode(TextCodeOTPRequired).
	WithCode(goerrors.CodeBadRequest)

// ErrNotAuthorized is raised locally when the current role lacks
// permission for an action. The gateway is never contacted.
var ErrNotAuthorized = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeAccessDenied).
	WithCode(goerrors.CodeForbidden)

// ErrVerifyInFlight rejects a second OTP verification while one is still
// pending for the same attempt.
var ErrVerifyInFlight = goerrors.New("verification already in progress", goerrors.CategoryConflict).
	WithTextCode(TextCodeVerifyInFlight).
	WithCode(goerrors.CodeConflict)

// ErrMutationInFlight rejects a second mutation for a record identity
// while the first, including its refetch, has not settled.
var ErrMutationInFlight = goerrors.New("another change for this record is still pending", goerrors.CategoryConflict).
	WithTextCode(TextCodeConflict).
	WithCode(goerrors.CodeConflict)

// ErrLoginAborted reports that a login step settled after its attempt was
// abandoned (change role, logout). The result was discarded.
var ErrLoginAborted = goerrors.New("login attempt was abandoned", goerrors.CategoryConflict).
	WithTextCode(TextCodeLoginAborted).
	WithCode(goerrors.CodeConflict)

// ErrInvalidTransition is returned when an operation is invoked from a
// login step it does not belong to.
var ErrInvalidTransition = goerrors.New("invalid login state transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired marks a persisted session token that is past its
// expiry. Restore treats it as no session at all.
var ErrTokenExpired = goerrors.New("session token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed marks a persisted token that cannot be decoded.
var ErrTokenMalformed = goerrors.New("session token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// IsValidationError reports whether err was caught client-side before any
// network call (empty required field).
func IsValidationError(err error) bool {
	return hasCategory(err, goerrors.CategoryValidation)
}

// IsAuthError reports whether the gateway rejected an OTP request or
// verification.
func IsAuthError(err error) bool {
	return hasCategory(err, goerrors.CategoryAuth)
}

// IsAuthorizationError reports whether a role lacked permission, locally
// or as signalled by the gateway.
func IsAuthorizationError(err error) bool {
	return hasCategory(err, goerrors.CategoryAuthz)
}

// IsConflictError reports a duplicate in-flight operation.
func IsConflictError(err error) bool {
	return hasCategory(err, goerrors.CategoryConflict)
}

// IsNetworkError reports a transport-level failure: gateway unreachable
// or a malformed response.
func IsNetworkError(err error) bool {
	return hasCategory(err, goerrors.CategoryOperation)
}

// IsNotFoundError reports that the gateway knows nothing about the
// referenced record.
func IsNotFoundError(err error) bool {
	return goerrors.IsNotFound(err)
}

func hasCategory(err error, category goerrors.Category) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.Category == category
	}
	return false
}
