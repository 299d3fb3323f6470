package token

import "errors"

// Verification failures.  Each maps to its own HTTP message and code so a
// client can tell "log in again" apart from "refresh and retry".
var (
	ErrMissing   = errors.New("token: authorization header missing")
	ErrMalformed = errors.New("token: malformed")
	ErrLegacy    = errors.New("token: legacy format")
	ErrExpired   = errors.New("token: expired")
	ErrInvalid   = errors.New("token: invalid")
	ErrWrongType = errors.New("token: wrong type")

	// ErrPayload is a malformed token whose claims decode but lack the
	// identity fields.
	ErrPayload = errorf(ErrMalformed, "invalid payload")
)

// Codes sent in the "code" field of 401 responses.
const (
	CodeMissing   = "token_missing"
	CodeMalformed = "token_malformed"
	CodeLegacy    = "token_legacy"
	CodeExpired   = "token_expired"
	CodeInvalid   = "token_invalid"
	CodeWrongType = "token_wrong_type"
)

type wrapped struct {
	base error
	msg  string
}

func (w wrapped) Error() string { return w.base.Error() + ": " + w.msg }
func (w wrapped) Unwrap() error { return w.base }

func errorf(base error, msg string) error { return wrapped{base: base, msg: msg} }

// Code returns the machine readable code for a verification error.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrMissing):
		return CodeMissing
	case errors.Is(err, ErrLegacy):
		return CodeLegacy
	case errors.Is(err, ErrMalformed):
		return CodeMalformed
	case errors.Is(err, ErrExpired):
		return CodeExpired
	case errors.Is(err, ErrWrongType):
		return CodeWrongType
	}
	return CodeInvalid
}

// Message returns the user facing message for a verification error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrMissing):
		return "Authorization token required"
	case errors.Is(err, ErrLegacy):
		return "Legacy token detected. Please login again."
	case errors.Is(err, ErrPayload):
		return "Invalid token payload"
	case errors.Is(err, ErrMalformed):
		return "Invalid token"
	case errors.Is(err, ErrExpired):
		return "Token expired"
	case errors.Is(err, ErrWrongType):
		return "Invalid token type"
	}
	return "Invalid or expired token"
}

// Recoverable reports whether a refresh may fix the failure.  Legacy and
// malformed tokens need a fresh login.
func Recoverable(code string) bool {
	switch code {
	case CodeExpired, CodeInvalid:
		return true
	}
	return false
}
