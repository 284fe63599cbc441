// Package session implements the session actor: the per-session unit of
// work that stages loads/stores/deletes and commits them as one batch.
//
// A session's inbox is processed strictly serially: rather than a
// goroutine-plus-channel actor, this is realized as a mutex-guarded
// struct - the same observable linearizability, with less machinery,
// wherever a mutex already gives the required ordering.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/docdbgo/driver/command"
	"github.com/docdbgo/driver/conventions"
	"github.com/docdbgo/driver/errors"
	"github.com/docdbgo/driver/executor"
	"github.com/docdbgo/driver/logging"
	"github.com/docdbgo/driver/metrics"
)

var log = logging.Get("session")

// Entity is the opaque, map-like document value the driver works with.
type Entity = map[string]interface{}

// Dispatcher is the surface a Session needs from the rest of the driver:
// route a command to the current node, retrying/failing over as needed.
// Implemented by store.Store; kept as a local interface so this package
// never imports store, topology, or registry (avoiding an import cycle
// back through the Store that owns sessions).
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd command.Builder, headers http.Header) (*executor.Response, error)
}

// Document is one tracked document's staged state.
type Document struct {
	Entity           Entity
	Key              string
	ChangeVector     string
	Metadata         map[string]interface{}
	OriginalMetadata map[string]interface{}
	OriginalValue    Entity
}

type deletedEntity struct {
	ID           string
	ChangeVector string
}

// SaveChangesResult summarizes one save_changes() round trip.
type SaveChangesResult struct {
	Sent            int
	NotImplemented  []string // ids whose batch result carried an unrecognized Type
}

// Session is the per-session actor.
type Session struct {
	id       string
	database string
	conv     conventions.Conventions
	dispatch Dispatcher
	metrics  *metrics.Registry

	mu               sync.Mutex
	documentsByID    map[string]*Document
	deletedEntities  []deletedEntity
	deferCommands    []command.BatchCommandEntry
	numberOfRequests int
}

// New opens a session. Its state is lost on Close - there is no offline
// cache or persistence.
func New(id, database string, conv conventions.Conventions, dispatch Dispatcher, mreg *metrics.Registry) *Session {
	return &Session{
		id:            id,
		database:      database,
		conv:          conv,
		dispatch:      dispatch,
		metrics:       mreg,
		documentsByID: make(map[string]*Document),
	}
}

// ID satisfies registry.SessionHandle.
func (s *Session) ID() string { return s.id }

// Close satisfies registry.SessionHandle. A session carries no resources
// of its own to release (its only owned state is the in-memory map),
// beyond forgetting it - deregistration is the registry's job.
func (s *Session) Close() {}

// NumberOfRequests returns the session's monotone request counter.
func (s *Session) NumberOfRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.numberOfRequests
}

// Load fetches a document by id, tracking it for change detection.
// A document already tracked by this session is returned from cache
// without another round trip.
func (s *Session) Load(ctx context.Context, id string, includes []string) (*Document, error) {
	s.mu.Lock()
	if doc, ok := s.documentsByID[id]; ok {
		s.mu.Unlock()
		return doc, nil // document_already_stored: informational, not an error
	}
	s.mu.Unlock()

	cmd := command.GetDocuments{IDs: []string{id}, Includes: includes}
	resp, err := s.dispatch.Dispatch(ctx, cmd, readHeaders())

	s.mu.Lock()
	s.numberOfRequests++
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}

	var result command.GetDocumentsResult
	if unmarshalErr := json.Unmarshal(resp.Body, &result); unmarshalErr != nil {
		return nil, errors.New(errors.KindInvalidResponsePayload, unmarshalErr.Error())
	}
	if len(result.Results) == 0 {
		return nil, errors.New(errors.KindDocumentNotFound, "document not found")
	}

	raw := result.Results[0]
	meta, _ := raw["@metadata"].(map[string]interface{})
	if meta == nil {
		meta = map[string]interface{}{}
	}
	entity := stripMetadataKey(raw)

	doc := &Document{
		Entity:           entity,
		Key:              id,
		ChangeVector:     stringField(meta, "@change-vector"),
		Metadata:         cloneMap(meta),
		OriginalMetadata: cloneMap(meta),
		OriginalValue:    cloneMap(entity),
	}

	s.mu.Lock()
	s.documentsByID[id] = doc
	s.mu.Unlock()

	return doc, nil
}

// Store stages entity for the next SaveChanges, tracking it under key
// (or entity["id"] when key is empty).
func (s *Session) Store(entity Entity, key string, changeVector string) (*Document, error) {
	if entity == nil {
		return nil, errors.New(errors.KindNullEntity, "null_entity")
	}

	resolvedKey := key
	if resolvedKey == "" {
		if id, ok := entity["id"].(string); ok && id != "" {
			resolvedKey = id
		} else {
			return nil, errors.New(errors.KindNoValidID, "no_valid_id_informed")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, exists := s.documentsByID[resolvedKey]
	if !exists {
		doc = &Document{
			Key:      resolvedKey,
			Metadata: map[string]interface{}{},
		}
		s.documentsByID[resolvedKey] = doc
	}
	doc.Entity = entity
	if s.conv.UseOptimisticConcurrency {
		doc.ChangeVector = changeVector
	}

	// A store after a pending delete for the same id supersedes it.
	s.removeDeletionLocked(resolvedKey)

	return doc, nil
}

// Delete stages a deletion for the next SaveChanges. idOrEntity may be
// a raw id string or a previously loaded/stored Entity carrying "id".
func (s *Session) Delete(idOrEntity interface{}) error {
	var id string
	switch v := idOrEntity.(type) {
	case string:
		id = v
	case Entity:
		key, ok := v["id"].(string)
		if !ok {
			return errors.New(errors.KindNoValidID, "no_valid_id_informed")
		}
		id = key
	default:
		return errors.New(errors.KindNoValidID, "no_valid_id_informed")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cv := ""
	if doc, ok := s.documentsByID[id]; ok {
		cv = doc.ChangeVector
		delete(s.documentsByID, id)
	}
	s.deletedEntities = append(s.deletedEntities, deletedEntity{ID: id, ChangeVector: cv})
	return nil
}

// Defer queues a raw command to be included verbatim in the next batch.
func (s *Session) Defer(raw json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deferCommands = append(s.deferCommands, command.NewRawDeferCommand(raw))
}

func (s *Session) removeDeletionLocked(id string) {
	filtered := s.deletedEntities[:0]
	for _, d := range s.deletedEntities {
		if d.ID != id {
			filtered = append(filtered, d)
		}
	}
	s.deletedEntities = filtered
}

// SaveChanges batches every deferred command, staged deletion, and
// changed document into a single Batch command and dispatches it.
func (s *Session) SaveChanges(ctx context.Context) (*SaveChangesResult, error) {
	s.mu.Lock()

	if s.numberOfRequests >= s.conv.MaxNumberOfRequestsPerSession {
		s.mu.Unlock()
		return nil, errors.New(errors.KindMaxRequestsExceeded, "max_requests_exceeded")
	}

	entries := make([]command.BatchCommandEntry, 0, len(s.deferCommands)+len(s.deletedEntities)+len(s.documentsByID))
	entries = append(entries, s.deferCommands...)

	for _, del := range s.deletedEntities {
		entries = append(entries, command.BatchCommandEntry{
			Type:         command.BatchDelete,
			ID:           del.ID,
			ChangeVector: optimisticChangeVector(s.conv, del.ChangeVector),
		})
	}

	changedIDs := make([]string, 0, len(s.documentsByID))
	for id, doc := range s.documentsByID {
		if documentChanged(doc) {
			entries = append(entries, command.BatchCommandEntry{
				Type:         command.BatchPut,
				ID:           id,
				Document:     doc.Entity,
				ChangeVector: optimisticChangeVector(s.conv, doc.ChangeVector),
			})
			changedIDs = append(changedIDs, id)
		}
	}

	if len(entries) == 0 {
		// An unchanged session is a no-op: nothing to dispatch.
		s.mu.Unlock()
		return &SaveChangesResult{}, nil
	}

	deletedSnapshot := s.deletedEntities
	s.mu.Unlock()

	resp, err := s.dispatch.Dispatch(ctx, command.Batch{Commands: entries}, writeHeaders())
	if err != nil {
		if s.metrics != nil {
			s.metrics.SessionCommitCount("failure")
		}
		return nil, err
	}

	result, decodeErr := command.DecodeBatchResult(resp.Body)
	if decodeErr != nil {
		return nil, errors.New(errors.KindInvalidResponsePayload, decodeErr.Error())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.numberOfRequests++
	s.deferCommands = nil
	// Only clear the deletions we actually sent; anything queued after we
	// released the lock above stays pending for the next commit.
	s.deletedEntities = diffDeleted(s.deletedEntities, deletedSnapshot)

	notImplemented := make([]string, 0)
	for _, res := range result.Results {
		switch res.Type {
		case command.BatchResultPut:
			doc, ok := s.documentsByID[res.ID]
			if !ok {
				continue
			}
			doc.ChangeVector = res.ChangeVector
			previousMetadata := doc.Metadata
			doc.Metadata = map[string]interface{}{
				"@collection":     res.Collection,
				"@id":             res.ID,
				"@change-vector":  res.ChangeVector,
				"@last-modified":  res.LastModified,
			}
			doc.OriginalMetadata = previousMetadata
			doc.OriginalValue = cloneMap(doc.Entity)
		case command.BatchResultDelete:
			// already removed from documentsByID by Delete().
		default:
			notImplemented = append(notImplemented, res.ID)
			log.Warningf("batch result for %s carried an unrecognized Type", res.ID)
		}
	}

	if s.metrics != nil {
		s.metrics.SessionCommitCount("success")
	}

	_ = changedIDs
	return &SaveChangesResult{Sent: len(entries), NotImplemented: notImplemented}, nil
}

func diffDeleted(current, sent []deletedEntity) []deletedEntity {
	sentSet := make(map[string]struct{}, len(sent))
	for _, d := range sent {
		sentSet[d.ID] = struct{}{}
	}
	out := current[:0]
	for _, d := range current {
		if _, wasSent := sentSet[d.ID]; !wasSent {
			out = append(out, d)
		}
	}
	return out
}

func optimisticChangeVector(conv conventions.Conventions, cv string) string {
	if !conv.UseOptimisticConcurrency {
		return ""
	}
	return cv
}

func documentChanged(doc *Document) bool {
	if doc.OriginalValue == nil {
		return true
	}
	return !jsonEqual(doc.Entity, doc.OriginalValue)
}

func jsonEqual(a, b interface{}) bool {
	ab, errA := json.Marshal(a)
	bb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func stripMetadataKey(m map[string]interface{}) map[string]interface{} {
	out := cloneMap(m)
	delete(out, "@metadata")
	return out
}

func stringField(m map[string]interface{}, key string) string {
	v, _ := m[key].(string)
	return v
}

func readHeaders() http.Header {
	return http.Header{}
}

func writeHeaders() http.Header {
	return http.Header{}
}
