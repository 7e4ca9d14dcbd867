// Package casestore maps extraction candidates onto the document store's
// collection layout. Nested sub-records live in per-case sub-collections and
// the parent document holds reference tokens in their place, so a sub-record
// can be updated without rewriting the whole case document.
package casestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/atulwalsh/legal-intake-ai/internal/extraction"
	"github.com/atulwalsh/legal-intake-ai/internal/intake"
	"github.com/atulwalsh/legal-intake-ai/internal/schema"
	"github.com/atulwalsh/legal-intake-ai/internal/store"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

const (
	caseCollection = "case-data"
	userCollection = "users"
	fileCollection = "files"

	refPrefix = "ref:"
)

// StoreError reports a document-store failure during persist or load. The
// stored record is untouched when a commit fails; retrying with the same
// input is safe.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("casestore: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Mapper persists candidates and loads them back with references resolved.
type Mapper struct {
	store  store.Store
	logger *logging.Logger
	newID  func() string
}

type Option func(*Mapper)

func WithLogger(logger *logging.Logger) Option {
	return func(m *Mapper) {
		if logger != nil {
			m.logger = logger
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(m *Mapper) {
		if fn != nil {
			m.newID = fn
		}
	}
}

func NewMapper(st store.Store, opts ...Option) *Mapper {
	if st == nil {
		panic("casestore: store is required")
	}
	m := &Mapper{
		store:  st,
		logger: logging.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Persist merges one candidate over the stored parent document and commits
// parent plus sub-collection writes in one atomic batch. Merge policy is
// last-write-wins per field: fields present in the candidate replace the
// stored value wholesale, absent fields keep theirs.
func (m *Mapper) Persist(ctx context.Context, caseID string, rt schema.RecordType, candidate extraction.Candidate) error {
	return m.PersistAll(ctx, caseID, rt, []extraction.Candidate{candidate})
}

// PersistAll stages every candidate from one extraction call into a single
// batch so the commit is all-or-nothing. Each parent document is written
// exactly once even when several candidates target it.
func (m *Mapper) PersistAll(ctx context.Context, caseID string, rt schema.RecordType, candidates []extraction.Candidate) error {
	if len(candidates) == 0 {
		return nil
	}

	batch := m.store.NewBatch()
	parents := make(map[store.Namespace]map[string]json.RawMessage)
	subDocs := make(map[store.Namespace]json.RawMessage)
	objectFields := objectFieldSet(rt)

	for _, candidate := range candidates {
		if candidate.DocumentID == "" {
			return &StoreError{Op: "persist", Err: fmt.Errorf("candidate has no document id")}
		}
		parentNS, err := parentNamespace(rt, candidate.DocumentID)
		if err != nil {
			return err
		}

		parent, ok := parents[parentNS]
		if !ok {
			parent, err = m.loadRawParent(ctx, parentNS)
			if err != nil {
				return err
			}
			parents[parentNS] = parent
		}

		var incoming map[string]json.RawMessage
		if err := json.Unmarshal(candidate.Data, &incoming); err != nil {
			return &StoreError{Op: "persist", Err: fmt.Errorf("decode candidate: %w", err)}
		}

		for field, value := range incoming {
			if !objectFields[field] || !isJSONObject(value) {
				parent[field] = value
				continue
			}

			subID := m.subDocumentID(parent[field])
			subNS := store.Namespace{
				Collection: fmt.Sprintf("cases/%s/%s", caseID, field),
				DocumentID: subID,
			}
			// Last write wins when two candidates hit the same field, and the
			// batch carries at most one operation per item.
			subDocs[subNS] = value
			token, _ := json.Marshal(refPrefix + subID)
			parent[field] = token
		}

		m.logger.Debug("staged record",
			"case_id", caseID,
			"record_type", string(rt),
			"document_id", candidate.DocumentID,
			"op", string(candidate.Op),
		)
	}

	for ns, value := range subDocs {
		if err := batch.Set(ns, value); err != nil {
			return &StoreError{Op: "persist", Err: err}
		}
	}
	for ns, parent := range parents {
		parentData, err := json.Marshal(parent)
		if err != nil {
			return &StoreError{Op: "persist", Err: err}
		}
		if err := batch.Set(ns, parentData); err != nil {
			return &StoreError{Op: "persist", Err: err}
		}
	}
	if err := batch.Commit(ctx); err != nil {
		return &StoreError{Op: "commit", Err: err}
	}
	return nil
}

// LoadCase reads the parent case document and resolves every reference token
// from its sub-collection. Returns (nil, nil) when nothing is stored yet.
func (m *Mapper) LoadCase(ctx context.Context, caseID, documentID string) (*intake.CaseRecord, error) {
	mem, err := m.store.Get(ctx, store.Namespace{Collection: caseCollection, DocumentID: documentID})
	if err != nil {
		return nil, &StoreError{Op: "load case", Err: err}
	}
	if mem == nil {
		return nil, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(mem.Data, &fields); err != nil {
		return nil, &StoreError{Op: "load case", Err: err}
	}

	for field, value := range fields {
		subID, ok := refTokenID(value)
		if !ok {
			continue
		}
		subNS := store.Namespace{
			Collection: fmt.Sprintf("cases/%s/%s", caseID, field),
			DocumentID: subID,
		}
		subMem, err := m.store.Get(ctx, subNS)
		if err != nil {
			return nil, &StoreError{Op: "resolve " + field, Err: err}
		}
		if subMem == nil {
			return nil, &StoreError{Op: "resolve " + field, Err: fmt.Errorf("dangling reference %s%s", refPrefix, subID)}
		}
		fields[field] = subMem.Data
	}

	resolved, err := json.Marshal(fields)
	if err != nil {
		return nil, &StoreError{Op: "load case", Err: err}
	}
	var record intake.CaseRecord
	if err := json.Unmarshal(resolved, &record); err != nil {
		return nil, &StoreError{Op: "load case", Err: err}
	}
	return &record, nil
}

// LoadUser reads a user document. Returns (nil, nil) when absent.
func (m *Mapper) LoadUser(ctx context.Context, documentID string) (*intake.UserInfo, error) {
	mem, err := m.store.Get(ctx, store.Namespace{Collection: userCollection, DocumentID: documentID})
	if err != nil {
		return nil, &StoreError{Op: "load user", Err: err}
	}
	if mem == nil {
		return nil, nil
	}
	var user intake.UserInfo
	if err := json.Unmarshal(mem.Data, &user); err != nil {
		return nil, &StoreError{Op: "load user", Err: err}
	}
	return &user, nil
}

// SaveFile appends a file record to the files collection and to the case
// document's documents list in one batch.
func (m *Mapper) SaveFile(ctx context.Context, caseID, caseDocumentID string, record intake.FileRecord) error {
	fileData, err := json.Marshal(record)
	if err != nil {
		return &StoreError{Op: "save file", Err: err}
	}

	parentNS := store.Namespace{Collection: caseCollection, DocumentID: caseDocumentID}
	parent, err := m.loadRawParent(ctx, parentNS)
	if err != nil {
		return err
	}

	var documents []json.RawMessage
	if raw, ok := parent["documents"]; ok {
		if err := json.Unmarshal(raw, &documents); err != nil {
			return &StoreError{Op: "save file", Err: err}
		}
	}
	documents = append(documents, fileData)
	docsData, err := json.Marshal(documents)
	if err != nil {
		return &StoreError{Op: "save file", Err: err}
	}
	parent["documents"] = docsData
	if _, ok := parent["case_id"]; !ok {
		caseIDData, _ := json.Marshal(caseID)
		parent["case_id"] = caseIDData
	}
	parentData, err := json.Marshal(parent)
	if err != nil {
		return &StoreError{Op: "save file", Err: err}
	}

	batch := m.store.NewBatch()
	if err := batch.Set(store.Namespace{Collection: fileCollection, DocumentID: record.FileID}, fileData); err != nil {
		return &StoreError{Op: "save file", Err: err}
	}
	if err := batch.Set(parentNS, parentData); err != nil {
		return &StoreError{Op: "save file", Err: err}
	}
	if err := batch.Commit(ctx); err != nil {
		return &StoreError{Op: "commit", Err: err}
	}

	m.logger.Debug("saved file record", "case_id", caseID, "file_id", record.FileID)
	return nil
}

func (m *Mapper) loadRawParent(ctx context.Context, ns store.Namespace) (map[string]json.RawMessage, error) {
	mem, err := m.store.Get(ctx, ns)
	if err != nil {
		return nil, &StoreError{Op: "load " + ns.Collection, Err: err}
	}
	parent := make(map[string]json.RawMessage)
	if mem != nil {
		if err := json.Unmarshal(mem.Data, &parent); err != nil {
			return nil, &StoreError{Op: "load " + ns.Collection, Err: err}
		}
	}
	return parent, nil
}

// subDocumentID reuses the id behind an existing reference token so updates
// overwrite the sub-document instead of leaving orphans.
func (m *Mapper) subDocumentID(existing json.RawMessage) string {
	if id, ok := refTokenID(existing); ok {
		return id
	}
	return m.newID()
}

func parentNamespace(rt schema.RecordType, documentID string) (store.Namespace, error) {
	switch rt {
	case schema.RecordCase:
		return store.Namespace{Collection: caseCollection, DocumentID: documentID}, nil
	case schema.RecordUser:
		return store.Namespace{Collection: userCollection, DocumentID: documentID}, nil
	case schema.RecordFile:
		return store.Namespace{Collection: fileCollection, DocumentID: documentID}, nil
	default:
		return store.Namespace{}, &StoreError{Op: "persist", Err: fmt.Errorf("unknown record type %q", rt)}
	}
}

func objectFieldSet(rt schema.RecordType) map[string]bool {
	// Only registered record types reach PersistAll, so the lookup cannot fail.
	names, _ := schema.ObjectFields(rt)
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{") && trimmed != "{}"
}

func refTokenID(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	if !strings.HasPrefix(s, refPrefix) {
		return "", false
	}
	return strings.TrimPrefix(s, refPrefix), true
}
