package executor

import (
	"encoding/json"
	"net/http"

	"github.com/docdbgo/driver/errors"
)

// NodePolicy carries the node-level policy knobs classification depends
// on beyond the raw status/headers/body triple.
type NodePolicy struct {
	RetryOnStale bool
}

// Response is the assembled {status, headers, body} triple a successful
// classification carries back to the caller.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Outcome is the result of classifying one assembled response. Exactly
// one of Err (non-nil) or a successful Response describes the result.
type Outcome struct {
	Response  *Response
	Err       *errors.Error
	Retryable bool
}

// Classify is a pure function of (status, headers, parsed body, node
// policy): classifying the same triple twice always yields the same
// outcome, since the function has no side effects and no hidden state.
func Classify(status int, headers http.Header, body []byte, policy NodePolicy) Outcome {
	var parsed map[string]interface{}
	// An empty body (e.g. 204/304, or a HEAD-shaped reply) is not a parse
	// failure - only a non-empty, unparseable body is.
	if len(body) > 0 {
		if err := json.Unmarshal(body, &parsed); err != nil {
			return Outcome{Err: errors.New(errors.KindInvalidResponsePayload, err.Error())}
		}
	}

	switch status {
	case http.StatusNotFound:
		return Outcome{Err: errors.New(errors.KindDocumentNotFound, "document not found")}
	case http.StatusForbidden:
		return Outcome{Err: errors.New(errors.KindUnauthorized, "unauthorized")}
	case http.StatusConflict:
		return Outcome{Err: errors.New(errors.KindConflict, "conflict"), Retryable: true}
	case http.StatusGone:
		return Outcome{Err: errors.New(errors.KindNodeGone, "node gone"), Retryable: true}
	}

	if parsed != nil {
		if _, hasError := parsed["Error"]; hasError {
			msg, _ := parsed["Message"].(string)
			return Outcome{Err: errors.New(errors.KindServerError, msg)}
		}
		if stale, _ := parsed["IsStale"].(bool); stale {
			if policy.RetryOnStale {
				return Outcome{Err: errors.New(errors.KindStale, "stale results"), Retryable: true}
			}
			return Outcome{Err: errors.New(errors.KindStale, "stale results")}
		}
	}

	if isTransientStatus(status) {
		msg, _ := messageOf(parsed)
		if headers.Get("Database-Missing") != "" {
			return Outcome{Err: errors.New(errors.KindServerError, msg)}
		}
		return Outcome{Err: errors.New(errors.KindTransientServerError, msg), Retryable: true}
	}

	return Outcome{Response: &Response{Status: status, Headers: headers, Body: body}}
}

func isTransientStatus(status int) bool {
	switch status {
	case http.StatusRequestTimeout, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func messageOf(parsed map[string]interface{}) (string, bool) {
	if parsed == nil {
		return "", false
	}
	msg, ok := parsed["Message"].(string)
	return msg, ok
}
