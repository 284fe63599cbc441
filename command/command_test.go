package command

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/docdbgo/driver/node"
)

func testNode() *node.Node {
	return node.New(node.SchemeHTTP, "localhost", 8080, "orders", "store-1")
}

func TestGetDocumentsBuildsQuery(t *testing.T) {
	cmd := GetDocuments{IDs: []string{"a", "b"}, Includes: []string{"customer"}}
	req, err := cmd.CreateRequest(testNode())
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}

	if req.Method != MethodGet {
		t.Errorf("Method = %v, want GET", req.Method)
	}
	if !req.IsReadRequest {
		t.Error("GetDocuments should be a read request")
	}
	if !strings.HasPrefix(req.URL, "http://localhost:8080/databases/orders/docs?") {
		t.Errorf("URL = %q, unexpected prefix", req.URL)
	}
	if !strings.Contains(req.URL, "id=a") || !strings.Contains(req.URL, "id=b") {
		t.Errorf("URL = %q, expected both ids", req.URL)
	}
	if !strings.Contains(req.URL, "includes=customer") {
		t.Errorf("URL = %q, expected includes", req.URL)
	}
}

func TestBatchBuildsBody(t *testing.T) {
	cmd := Batch{Commands: []BatchCommandEntry{
		{Type: BatchPut, ID: "orders/1", Document: map[string]interface{}{"total": 42}},
		{Type: BatchDelete, ID: "orders/2", ChangeVector: "cv-1"},
	}}
	req, err := cmd.CreateRequest(testNode())
	if err != nil {
		t.Fatalf("CreateRequest() error = %v", err)
	}
	if req.Method != MethodPost {
		t.Errorf("Method = %v, want POST", req.Method)
	}
	if req.IsReadRequest {
		t.Error("Batch should not be a read request")
	}

	var decoded struct {
		Commands []map[string]interface{} `json:"Commands"`
	}
	if err := json.Unmarshal(req.Body, &decoded); err != nil {
		t.Fatalf("body did not decode as JSON: %v", err)
	}
	if len(decoded.Commands) != 2 {
		t.Fatalf("len(Commands) = %d, want 2", len(decoded.Commands))
	}
	if decoded.Commands[0]["Type"] != "PUT" || decoded.Commands[0]["Id"] != "orders/1" {
		t.Errorf("unexpected first command: %+v", decoded.Commands[0])
	}
}

func TestRawDeferCommandPassesThroughVerbatim(t *testing.T) {
	raw := json.RawMessage(`{"Type":"PATCH","Id":"orders/3","Script":"this.total += 1"}`)
	entry := NewRawDeferCommand(raw)

	out, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(out) != string(raw) {
		t.Errorf("MarshalJSON() = %s, want verbatim %s", out, raw)
	}
}

func TestParseBatchResultTypeFallsThroughToNotImplemented(t *testing.T) {
	if got := ParseBatchResultType("PUT"); got != BatchResultPut {
		t.Errorf("ParseBatchResultType(PUT) = %v, want BatchResultPut", got)
	}
	if got := ParseBatchResultType("PATCH"); got != BatchResultNotImplemented {
		t.Errorf("ParseBatchResultType(PATCH) = %v, want BatchResultNotImplemented", got)
	}
}

func TestDecodeBatchResult(t *testing.T) {
	body := []byte(`{"Results":[
		{"Type":"PUT","@id":"orders/1","@change-vector":"cv-2","@collection":"Orders","@last-modified":"2026-01-01"},
		{"Type":"PATCH","@id":"orders/3"}
	]}`)

	result, err := DecodeBatchResult(body)
	if err != nil {
		t.Fatalf("DecodeBatchResult() error = %v", err)
	}
	if len(result.Results) != 2 {
		t.Fatalf("len(Results) = %d, want 2", len(result.Results))
	}
	if result.Results[0].Type != BatchResultPut {
		t.Errorf("Results[0].Type = %v, want BatchResultPut", result.Results[0].Type)
	}
	if result.Results[1].Type != BatchResultNotImplemented {
		t.Errorf("Results[1].Type = %v, want BatchResultNotImplemented", result.Results[1].Type)
	}
}
