package reliability

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// Class buckets a failure for user-facing messages and metrics.
type Class string

const (
	ClassNone              Class = ""
	ClassInvalidRequest    Class = "invalid_request"
	ClassUnauthenticated   Class = "unauthenticated"
	ClassBadCredentials    Class = "bad_credentials"
	ClassRateLimited       Class = "rate_limited"
	ClassQuota             Class = "quota"
	ClassUpstream          Class = "upstream"
	ClassTransport         Class = "transport"
	ClassTimeout           Class = "timeout"
	ClassMalformedResponse Class = "malformed_response"
	ClassStorage           Class = "storage"
	ClassInternal          Class = "internal"
)

// Classified is implemented by errors that know their own class.
type Classified interface {
	Class() Class
}

// ClassifyStatus maps a non-success upstream HTTP status to a class.
func ClassifyStatus(code int) Class {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ClassBadCredentials
	case http.StatusPaymentRequired:
		return ClassQuota
	case http.StatusTooManyRequests:
		return ClassRateLimited
	default:
		return ClassUpstream
	}
}

// Classify inspects an error chain. Errors that do not identify themselves
// fall back to transport for network errors and internal otherwise.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	var c Classified
	if errors.As(err, &c) {
		return c.Class()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ClassTimeout
		}
		return ClassTransport
	}
	return ClassInternal
}

// IsRetryable reports whether re-issuing the same command may succeed.
// Nothing retries automatically; the flag is surfaced to the caller.
func IsRetryable(class Class) bool {
	switch class {
	case ClassRateLimited, ClassTransport, ClassTimeout, ClassUpstream:
		return true
	default:
		return false
	}
}

// Error pairs a class with an underlying error.
type Error struct {
	class Class
	err   error
}

func New(class Class, err error) *Error {
	return &Error{class: class, err: err}
}

func (e *Error) Error() string {
	if e.err == nil {
		return string(e.class)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) Class() Class { return e.class }
