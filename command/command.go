// Package command implements the command contract: a uniform shape
// every server-endpoint command honors, plus the two instances the core
// needs (Get Documents, Batch).
//
// Commands are modeled as a sum type with one variant per endpoint,
// each producing a request once bound to a node.
package command

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/docdbgo/driver/node"
)

// Method is the HTTP method a command issues.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

// Command is the value every command variant produces once bound to a
// node: method, URL, body, and whether it is a read.
type Command struct {
	Method        Method
	URL           string
	Body          []byte
	IsReadRequest bool
}

// Builder is implemented by each command variant's create_request step.
type Builder interface {
	CreateRequest(n *node.Node) (Command, error)
}

// --------------------------------------------------------------------------
// Get Documents
// --------------------------------------------------------------------------

// GetDocuments builds GET {node-url}/docs?id=...&start=...&pageSize=...
// &metadataOnly=...&includes=....
type GetDocuments struct {
	IDs          []string
	Start        *int
	PageSize     *int
	MetadataOnly *bool
	Includes     []string
}

func (g GetDocuments) CreateRequest(n *node.Node) (Command, error) {
	q := url.Values{}
	for _, id := range g.IDs {
		q.Add("id", id)
	}
	if g.Start != nil {
		q.Add("start", strconv.Itoa(*g.Start))
	}
	if g.PageSize != nil {
		q.Add("pageSize", strconv.Itoa(*g.PageSize))
	}
	if g.MetadataOnly != nil {
		q.Add("metadataOnly", strconv.FormatBool(*g.MetadataOnly))
	}
	for _, inc := range g.Includes {
		q.Add("includes", inc)
	}

	return Command{
		Method:        MethodGet,
		URL:           fmt.Sprintf("%s/docs?%s", n.DatabaseURL(), q.Encode()),
		IsReadRequest: true,
	}, nil
}

// GetDocumentsResult is the decoded body of a successful Get Documents response.
type GetDocumentsResult struct {
	Results  []map[string]interface{} `json:"Results"`
	Includes map[string]interface{}   `json:"Includes,omitempty"`
}

// --------------------------------------------------------------------------
// Batch
// --------------------------------------------------------------------------

// BatchCommandType discriminates entries within a Batch's "Commands" array.
type BatchCommandType string

const (
	BatchPut    BatchCommandType = "PUT"
	BatchDelete BatchCommandType = "DELETE"
)

// BatchCommandEntry is one entry in a Batch request's Commands array.
type BatchCommandEntry struct {
	Type          BatchCommandType `json:"Type"`
	ID            string           `json:"Id"`
	Document      interface{}      `json:"Document,omitempty"`
	ChangeVector  string           `json:"ChangeVector,omitempty"`
	Raw           json.RawMessage  `json:"-"` // used for defer_commands passed through verbatim
}

// MarshalJSON allows a defer-command's raw payload to be emitted
// unchanged while typed entries marshal through their fields.
func (e BatchCommandEntry) MarshalJSON() ([]byte, error) {
	if e.Raw != nil {
		return e.Raw, nil
	}
	type alias BatchCommandEntry
	return json.Marshal(alias(e))
}

// Batch builds POST {node-url}/bulk_docs with body {"Commands":[...]}.
// Write request.
type Batch struct {
	Commands []BatchCommandEntry
}

func (b Batch) CreateRequest(n *node.Node) (Command, error) {
	payload := struct {
		Commands []BatchCommandEntry `json:"Commands"`
	}{Commands: b.Commands}

	body, err := json.Marshal(payload)
	if err != nil {
		return Command{}, err
	}

	return Command{
		Method:        MethodPost,
		URL:           fmt.Sprintf("%s/bulk_docs", n.DatabaseURL()),
		Body:          body,
		IsReadRequest: false,
	}, nil
}

// BatchResultType discriminates a per-command batch response entry. It is
// a closed enum extended per-endpoint, with an explicit fallthrough for
// unrecognized types.
type BatchResultType string

const (
	BatchResultPut         BatchResultType = "PUT"
	BatchResultDelete      BatchResultType = "DELETE"
	BatchResultNotImplemented BatchResultType = "__not_implemented__"
)

// BatchResultEntry is one entry of a Batch response's "Results" array.
type BatchResultEntry struct {
	Type          BatchResultType `json:"Type"`
	ID            string          `json:"@id"`
	ChangeVector  string          `json:"@change-vector"`
	Collection    string          `json:"@collection"`
	LastModified  string          `json:"@last-modified"`
}

// ParseBatchResultType maps a raw "Type" string to the closed enum,
// falling through to BatchResultNotImplemented for anything unrecognized.
func ParseBatchResultType(raw string) BatchResultType {
	switch strings.ToUpper(raw) {
	case string(BatchResultPut):
		return BatchResultPut
	case string(BatchResultDelete):
		return BatchResultDelete
	default:
		return BatchResultNotImplemented
	}
}

// BatchResult is the decoded body of a successful Batch response.
type BatchResult struct {
	Results []BatchResultEntry `json:"Results"`
}

// DecodeBatchResult decodes a raw JSON body into a BatchResult, tolerating
// unknown "Type" values in individual entries (they still decode - only
// interpretation of them is closed, in ParseBatchResultType).
func DecodeBatchResult(body []byte) (BatchResult, error) {
	var raw struct {
		Results []struct {
			Type         string `json:"Type"`
			ID           string `json:"@id"`
			ChangeVector string `json:"@change-vector"`
			Collection   string `json:"@collection"`
			LastModified string `json:"@last-modified"`
		} `json:"Results"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return BatchResult{}, err
	}
	out := BatchResult{Results: make([]BatchResultEntry, 0, len(raw.Results))}
	for _, r := range raw.Results {
		out.Results = append(out.Results, BatchResultEntry{
			Type:         ParseBatchResultType(r.Type),
			ID:           r.ID,
			ChangeVector: r.ChangeVector,
			Collection:   r.Collection,
			LastModified: r.LastModified,
		})
	}
	return out, nil
}

// NewRawDeferCommand wraps a caller-supplied raw command so it is
// included verbatim in the next batch.
func NewRawDeferCommand(raw json.RawMessage) BatchCommandEntry {
	return BatchCommandEntry{Raw: raw}
}
