// Package errors provides the structured error system for drivefs with
// error kinds, retryability classification, and mapping of Google API
// failures onto those kinds.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"

	"google.golang.org/api/googleapi"
)

// Kind classifies a failure for propagation and retry decisions.
type Kind string

const (
	// KindNotFound means the object or a path segment does not exist.
	KindNotFound Kind = "NOT_FOUND"
	// KindConflict means a version mismatch or duplicate-name collision.
	KindConflict Kind = "CONFLICT"
	// KindPermissionDenied means the caller lacks access; never retried.
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	// KindTransient covers rate limits, 5xx responses and network hiccups;
	// retryable with backoff.
	KindTransient Kind = "TRANSIENT"
	// KindTimeout means a call deadline expired after bounded retries.
	KindTimeout Kind = "TIMEOUT"
	// KindInvalidArgument means a malformed path or metadata.
	KindInvalidArgument Kind = "INVALID_ARGUMENT"
	// KindFatal covers credential failures and unrecoverable transport
	// errors; never retried.
	KindFatal Kind = "FATAL"
)

// Error is a structured drivefs error.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
	msg  string
}

// E builds an Error. The message is optional; when empty the kind and the
// wrapped cause carry the description.
func E(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

// Errorf builds an Error with a formatted message and no cause.
func Errorf(kind Kind, op, path, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Path: path, msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	s := string(e.Kind)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Path != "" {
		s += " " + e.Path
	}
	if e.msg != "" {
		s += ": " + e.msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Is matches errors by kind, so callers can compare against sentinel
// kind-only errors with stderrors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Op == "" || t.Op == e.Op) && (t.Path == "" || t.Path == e.Path)
}

// Retryable reports whether the error kind may be retried with backoff.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient
}

// KindOf extracts the kind from any error; unknown errors are Fatal.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindFatal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool { return Is(err, KindNotFound) }

// IsConflict reports whether err is a Conflict error.
func IsConflict(err error) bool { return Is(err, KindConflict) }

// IsRetryable reports whether err may be retried with backoff.
func IsRetryable(err error) bool {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Retryable()
	}
	return false
}

// Rate-limit reasons Drive reports inside a 403 that are actually
// transient quota pushback rather than a permission problem.
var transient403Reasons = map[string]bool{
	"userRateLimitExceeded": true,
	"rateLimitExceeded":     true,
	"dailyLimitExceeded":    true,
	"quotaExceeded":         true,
}

// Classify wraps a raw remote-call failure into a kinded Error. It maps
// googleapi status codes onto the taxonomy, treats 403 rate-limit reasons
// as transient, and folds context/network timeouts into Transient so the
// retry layer can take another attempt.
func Classify(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if stderrors.As(err, &e) {
		return err
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return E(KindTransient, op, path, err)
	}
	if stderrors.Is(err, context.Canceled) {
		return E(KindFatal, op, path, err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return E(KindTransient, op, path, err)
	}

	var apiErr *googleapi.Error
	if stderrors.As(err, &apiErr) {
		return E(classifyStatus(apiErr), op, path, err)
	}

	return E(KindFatal, op, path, err)
}

func classifyStatus(apiErr *googleapi.Error) Kind {
	switch {
	case apiErr.Code == 403:
		for _, item := range apiErr.Errors {
			if transient403Reasons[item.Reason] {
				return KindTransient
			}
		}
		return KindPermissionDenied
	case apiErr.Code == 404:
		return KindNotFound
	case apiErr.Code == 409 || apiErr.Code == 412:
		return KindConflict
	case apiErr.Code == 429:
		return KindTransient
	case apiErr.Code == 400:
		return KindInvalidArgument
	case apiErr.Code == 401:
		return KindFatal
	case apiErr.Code >= 500 && apiErr.Code < 600:
		return KindTransient
	default:
		return KindFatal
	}
}
