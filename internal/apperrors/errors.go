// Package apperrors defines the classified error taxonomy every component
// returns. Each failure carries a category, a prefixed code, a
// human-readable message, and an optional details bag; the dispatcher and
// control API rely on the category to decide retries and status codes.
package apperrors

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
)

// Category groups failures by how callers must react to them.
type Category string

const (
	CategoryValidation     Category = "VALIDATION"
	CategoryAuthentication Category = "AUTHENTICATION"
	CategoryAuthorization  Category = "AUTHORIZATION"
	CategoryResource       Category = "RESOURCE"
	CategoryConflict       Category = "CONFLICT"
	CategoryExternal       Category = "EXTERNAL"
	CategoryDatabase       Category = "DATABASE"
	CategoryNetwork        Category = "NETWORK"
	CategoryTimeout        Category = "TIMEOUT"
	CategoryRate           Category = "RATE"
	CategoryServer         Category = "SERVER"
	CategoryUnexpected     Category = "UNEXPECTED"
)

// categoryPrefixes maps each category to its wire code prefix.
var categoryPrefixes = map[Category]string{
	CategoryValidation:     "VAL_",
	CategoryAuthentication: "AUTH_",
	CategoryAuthorization:  "AUTHZ_",
	CategoryResource:       "RES_",
	CategoryConflict:       "CONF_",
	CategoryExternal:       "EXT_",
	CategoryDatabase:       "DB_",
	CategoryNetwork:        "NET_",
	CategoryTimeout:        "TIME_",
	CategoryRate:           "RATE_",
	CategoryServer:         "SRV_",
	CategoryUnexpected:     "UNEX_",
}

// Prefix returns the wire code prefix for the category.
func (c Category) Prefix() string {
	if p, ok := categoryPrefixes[c]; ok {
		return p
	}
	return "UNEX_"
}

// HTTP status bounds for the 5xx classification helper.
const (
	ServerErrorMin = 500
	ServerErrorMax = 599
)

// Error is the one classified error type crossing component boundaries.
type Error struct {
	Code      string         `json:"code"`
	Category  Category       `json:"category"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Retryable bool           `json:"retryable"`
	Stack     string         `json:"-"`
	Err       error          `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches one key/value pair to the details bag and returns
// the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func newError(cat Category, code, msg string, retryable bool, cause error) *Error {
	return &Error{
		Code:      withPrefix(cat.Prefix(), code),
		Category:  cat,
		Message:   msg,
		Retryable: retryable,
		Err:       cause,
	}
}

// withPrefix prepends the category prefix unless the code already has it.
func withPrefix(prefix, code string) string {
	if strings.HasPrefix(code, prefix) {
		return code
	}
	return prefix + code
}

// detailsFromPairs folds a variadic key/value list into a map. A trailing
// unpaired key is stored with a nil value rather than dropped.
func detailsFromPairs(pairs []any) map[string]any {
	if len(pairs) == 0 {
		return nil
	}
	m := make(map[string]any, (len(pairs)+1)/2)
	for i := 0; i < len(pairs); i += 2 {
		key := fmt.Sprint(pairs[i])
		if i+1 < len(pairs) {
			m[key] = pairs[i+1]
		} else {
			m[key] = nil
		}
	}
	return m
}

// Validation builds a VAL_-coded bad-input failure. detailPairs is an
// alternating key/value list.
func Validation(code, msg string, detailPairs ...any) *Error {
	e := newError(CategoryValidation, code, msg, false, nil)
	e.Details = detailsFromPairs(detailPairs)
	return e
}

// NotFound builds a RES_NOT_FOUND failure for a missing entity.
func NotFound(resource, id string) *Error {
	e := newError(CategoryResource, "NOT_FOUND", fmt.Sprintf("%s %q not found", resource, id), false, nil)
	return e.WithDetail("resource", resource).WithDetail("id", id)
}

// Conflict builds a CONF_-coded state or concurrent-modification failure.
func Conflict(code, msg string) *Error {
	return newError(CategoryConflict, code, msg, false, nil)
}

// External builds a retryable EXT_-coded failure for an unavailable
// collaborator (predictor, bus, storage service).
func External(code, msg string, cause error) *Error {
	return newError(CategoryExternal, code, msg, true, cause)
}

// Database builds a DB_-coded failure for query/constraint/transaction
// problems.
func Database(code, msg string, cause error) *Error {
	return newError(CategoryDatabase, code, msg, false, cause)
}

// Network builds a retryable NET_-coded connectivity failure.
func Network(code, msg string, cause error) *Error {
	return newError(CategoryNetwork, code, msg, true, cause)
}

// Timeout builds a retryable TIME_-coded deadline failure.
func Timeout(code, msg string) *Error {
	return newError(CategoryTimeout, code, msg, true, nil)
}

// RateLimited builds a retryable RATE_LIMITED failure.
func RateLimited(msg string) *Error {
	return newError(CategoryRate, "LIMITED", msg, true, nil)
}

// Internal builds a SRV_-coded failure for engine bugs and unimplemented
// paths.
func Internal(code, msg string, cause error) *Error {
	return newError(CategoryServer, code, msg, false, cause)
}

// Unexpected wraps a panic or unclassified error, capturing the stack for
// non-production rendering.
func Unexpected(cause error) *Error {
	e := newError(CategoryUnexpected, "INTERNAL", "unexpected internal error", false, cause)
	e.Stack = string(debug.Stack())
	return e
}

// As extracts an *Error from any error chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether err (anywhere in its chain) is a classified
// retryable failure. Unclassified errors are not retryable.
func IsRetryable(err error) bool {
	if e, ok := As(err); ok {
		return e.Retryable
	}
	return false
}

// CategoryOf returns the classification of err, or CategoryUnexpected for
// unclassified errors.
func CategoryOf(err error) Category {
	if e, ok := As(err); ok {
		return e.Category
	}
	return CategoryUnexpected
}

// CodeOf returns the wire code of err, or UNEX_INTERNAL when unclassified.
func CodeOf(err error) string {
	if e, ok := As(err); ok {
		return e.Code
	}
	return "UNEX_INTERNAL"
}

// HTTPStatus maps an error's category to its HTTP-equivalent status code.
func HTTPStatus(err error) int {
	switch CategoryOf(err) {
	case CategoryValidation:
		return 400
	case CategoryAuthentication:
		return 401
	case CategoryAuthorization:
		return 403
	case CategoryResource:
		return 404
	case CategoryConflict:
		return 409
	case CategoryRate:
		return 429
	case CategoryExternal:
		return 503
	case CategoryTimeout:
		return 504
	default:
		return 500
	}
}

// IsServerStatus reports whether an HTTP-equivalent status code falls in
// the server-error band.
func IsServerStatus(status int) bool {
	return status >= ServerErrorMin && status <= ServerErrorMax
}
