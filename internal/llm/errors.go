package llm

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a gateway failure so callers can apply one fallback policy.
type ErrorKind string

const (
	// KindNoCredential means no API key is configured.
	KindNoCredential ErrorKind = "no_credential"

	// KindTransport covers connection failures and timeouts.
	KindTransport ErrorKind = "transport"

	// KindHTTP is a non-2xx reply, or a 2xx reply reporting an unknown endpoint.
	KindHTTP ErrorKind = "http"

	// KindMalformed means the body could not be decoded.
	KindMalformed ErrorKind = "malformed"

	// KindUnexpectedShape means the body decoded but held no usable text.
	KindUnexpectedShape ErrorKind = "unexpected_shape"
)

// Error is the only error type returned by a Provider.
type Error struct {
	Kind   ErrorKind
	Code   int // HTTP status, KindHTTP only
	Detail string
	// Body is the truncated provider reply, when one was received.
	Body string
	Err  error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTP {
		return fmt.Sprintf("llm: http %d: %s", e.Code, e.Detail)
	}
	return fmt.Sprintf("llm: %s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of a gateway error, or false if err is not one.
func KindOf(err error) (ErrorKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// NoCredential is returned by providers constructed without an API key.
func NoCredential() *Error {
	return &Error{Kind: KindNoCredential, Detail: "api key not configured"}
}
