package executor

import (
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		headers     http.Header
		body        []byte
		policy      NodePolicy
		wantErrKind string
		wantRetry   bool
		wantSuccess bool
	}{
		{
			name:        "200 with plain body is success",
			status:      http.StatusOK,
			body:        []byte(`{"Results":[]}`),
			wantSuccess: true,
		},
		{
			name:        "404 is document not found, not retryable",
			status:      http.StatusNotFound,
			wantErrKind: "document_not_found",
		},
		{
			name:        "403 is unauthorized, not retryable",
			status:      http.StatusForbidden,
			wantErrKind: "unauthorized",
		},
		{
			name:        "409 is conflict, retryable",
			status:      http.StatusConflict,
			wantErrKind: "conflict",
			wantRetry:   true,
		},
		{
			name:        "410 is node gone, retryable",
			status:      http.StatusGone,
			wantErrKind: "node_gone",
			wantRetry:   true,
		},
		{
			name:        "body carrying an Error key is a server error",
			status:      http.StatusOK,
			body:        []byte(`{"Error":"System.Exception","Message":"boom"}`),
			wantErrKind: "server_error",
		},
		{
			name:        "stale result without RetryOnStale is non-retryable",
			status:      http.StatusOK,
			body:        []byte(`{"IsStale":true}`),
			policy:      NodePolicy{RetryOnStale: false},
			wantErrKind: "stale",
		},
		{
			name:        "stale result with RetryOnStale is retryable",
			status:      http.StatusOK,
			body:        []byte(`{"IsStale":true}`),
			policy:      NodePolicy{RetryOnStale: true},
			wantErrKind: "stale",
			wantRetry:   true,
		},
		{
			name:        "503 is transient and retryable",
			status:      http.StatusServiceUnavailable,
			wantErrKind: "transient_server_error",
			wantRetry:   true,
		},
		{
			name:        "503 with Database-Missing header is non-retryable",
			status:      http.StatusServiceUnavailable,
			headers:     http.Header{"Database-Missing": []string{"orders"}},
			wantErrKind: "server_error",
		},
		{
			name:        "unparseable body is invalid_response_payload",
			status:      http.StatusOK,
			body:        []byte(`not json`),
			wantErrKind: "invalid_response_payload",
		},
		{
			name:        "empty body on success is not a parse failure",
			status:      http.StatusNoContent,
			body:        nil,
			wantSuccess: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := tt.headers
			if headers == nil {
				headers = http.Header{}
			}
			outcome := Classify(tt.status, headers, tt.body, tt.policy)

			if tt.wantSuccess {
				if outcome.Err != nil {
					t.Fatalf("expected success, got error: %v", outcome.Err)
				}
				if outcome.Response == nil || outcome.Response.Status != tt.status {
					t.Errorf("Response = %+v, want status %d", outcome.Response, tt.status)
				}
				return
			}

			if outcome.Err == nil {
				t.Fatalf("expected error kind %q, got success", tt.wantErrKind)
			}
			if outcome.Err.Kind.String() != tt.wantErrKind {
				t.Errorf("Kind = %q, want %q", outcome.Err.Kind.String(), tt.wantErrKind)
			}
			if outcome.Retryable != tt.wantRetry {
				t.Errorf("Retryable = %v, want %v", outcome.Retryable, tt.wantRetry)
			}
		})
	}
}
