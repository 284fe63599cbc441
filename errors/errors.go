// Package errors defines the error vocabulary shared across the driver.
//
// Failures the driver itself detects are returned as a *Error rather than
// an ad-hoc string or sentinel, so callers can inspect Kind and Retryable
// regardless of which subsystem (executor, session, topology) produced
// the failure. Standard-library errors raised while building a request
// (encoding a command body, constructing the HTTP request) are returned
// unwrapped.
package errors

import "fmt"

// Kind classifies an error by the severity levels described for the
// driver: local guards, non-retryable server responses, retryable
// server responses, and transport failures.
type Kind uint8

const (
	KindUnknown Kind = iota

	// Local guards - refused before any network traffic.
	KindNullEntity
	KindNoValidID
	KindMaxURLLength
	KindMaxRequestsExceeded
	KindDocumentAlreadyStored

	// Non-retryable server responses.
	KindDocumentNotFound
	KindUnauthorized
	KindStale
	KindServerError
	KindInvalidResponsePayload

	// Retryable server responses.
	KindConflict
	KindNodeGone
	KindTransientServerError

	// Transport.
	KindConnectFailed
	KindStreamClosed
)

// String returns a lower_snake identifier for the kind (e.g.
// "document_not_found").
func (k Kind) String() string {
	switch k {
	case KindNullEntity:
		return "null_entity"
	case KindNoValidID:
		return "no_valid_id_informed"
	case KindMaxURLLength:
		return "maximum_url_length_reached"
	case KindMaxRequestsExceeded:
		return "max_requests_exceeded"
	case KindDocumentAlreadyStored:
		return "document_already_stored"
	case KindDocumentNotFound:
		return "document_not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindStale:
		return "stale"
	case KindServerError:
		return "server_error"
	case KindInvalidResponsePayload:
		return "invalid_response_payload"
	case KindConflict:
		return "conflict"
	case KindNodeGone:
		return "node_gone"
	case KindTransientServerError:
		return "transient_server_error"
	case KindConnectFailed:
		return "connect_failed"
	case KindStreamClosed:
		return "stream_closed"
	default:
		return "unknown"
	}
}

// Retryable reports whether errors of this kind are retryable whatever the
// node policy. KindStale reports false here; the executor's classification
// marks a stale outcome retryable when the node policy retries stale
// results, and the executor's retry loop follows that classification.
func (k Kind) Retryable() bool {
	switch k {
	case KindConflict, KindNodeGone, KindTransientServerError:
		return true
	default:
		return false
	}
}

// Error is the single error value type returned across subsystem
// boundaries. It is never raised as a panic/exception - it travels as a
// plain value in reply channels and return values.
type Error struct {
	Kind    Kind
	Message string
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is allows errors.Is(err, errors.New(KindX, "")) style matching on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
