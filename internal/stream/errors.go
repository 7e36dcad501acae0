package stream

import (
	"errors"
	"net/http"
)

// ErrorKind classifies gateway failures for logging and metrics. The caller
// only ever sees the generic message and HTTP status; the kind and wrapped
// cause stay in the diagnostics.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindMisconfigured     ErrorKind = "misconfigured"
	KindTransportFailure  ErrorKind = "transport_failure"
	KindUpstreamRejected  ErrorKind = "upstream_rejected"
	KindUpstreamMalformed ErrorKind = "upstream_malformed"
)

// GatewayError is the single error shape the services return. Message is
// pre-translated and safe to show to end users; upstream bodies and raw
// transport errors are never placed in it.
type GatewayError struct {
	Kind       ErrorKind
	Message    string
	HTTPStatus int
	cause      error
}

func (e *GatewayError) Error() string {
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.cause
}

func newGatewayError(kind ErrorKind, message string) *GatewayError {
	return &GatewayError{Kind: kind, Message: message, HTTPStatus: http.StatusUnprocessableEntity}
}

func (e *GatewayError) withCause(err error) *GatewayError {
	e.cause = err
	return e
}

// AsGatewayError unwraps err into a *GatewayError when possible.
func AsGatewayError(err error) (*GatewayError, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// Caller-visible messages. Kept generic on purpose: upstream error bodies go
// to the log, not to the user.
const (
	msgMisconfigured   = "video streaming is not configured"
	msgLengthRequired  = "upload length or deferred upload length is required"
	msgUploadFailed    = "unable to create upload"
	msgLiveInputFailed = "unable to create live input"
)
