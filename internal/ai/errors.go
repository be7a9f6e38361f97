package ai

import (
	"errors"
	"fmt"
)

// Kind classifies why a completion failed.
type Kind string

const (
	// KindServiceUnavailable means the completion capability is not reachable or configured.
	KindServiceUnavailable Kind = "service_unavailable"
	// KindMisconfiguration means no model (or an unusable schema) is configured for the job.
	KindMisconfiguration Kind = "misconfiguration"
	// KindRequestFailure means the completion call itself failed.
	KindRequestFailure Kind = "request_failure"
	// KindDecodingFailure means the response did not satisfy the schema.
	KindDecodingFailure Kind = "decoding_failure"
	// KindUnknown is reported for errors raised outside this package.
	KindUnknown Kind = "unknown"
)

type kindError Kind

func (k kindError) Error() string { return string(k) }

// Sentinels for errors.Is checks against *Error values.
var (
	ErrServiceUnavailable error = kindError(KindServiceUnavailable)
	ErrMisconfiguration   error = kindError(KindMisconfiguration)
	ErrRequestFailure     error = kindError(KindRequestFailure)
	ErrDecodingFailure    error = kindError(KindDecodingFailure)
)

// Error is a classified completion failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	k, ok := target.(kindError)
	return ok && Kind(k) == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
