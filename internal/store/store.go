package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Namespace addresses a single document as (collection, document id).
type Namespace struct {
	Collection string
	DocumentID string
}

// Memory is the schema-agnostic persistence unit. The payload is an opaque
// JSON document; schema meaning lives with the callers.
type Memory struct {
	Collection string          `json:"collection"`
	DocumentID string          `json:"document_id"`
	Data       json.RawMessage `json:"data"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Filter restricts a Query to documents whose decoded payload matches.
// Op is one of "==" or "!=".
type Filter struct {
	Field string
	Op    string
	Value any
}

// ErrNoBatchInProgress indicates a staged write was attempted against a
// batch that is not open (already committed or never started).
var ErrNoBatchInProgress = errors.New("store: no batch in progress")

// Batch stages writes that are applied atomically on Commit. After Commit
// returns the batch is closed and further Set calls fail with
// ErrNoBatchInProgress.
type Batch interface {
	Set(ns Namespace, data json.RawMessage) error
	Commit(ctx context.Context) error
}

// Store is the sole point of contact with persistent storage. Get returns
// (nil, nil) when the namespace holds no document. Implementations must
// support concurrent namespace-disjoint writers.
type Store interface {
	Get(ctx context.Context, ns Namespace) (*Memory, error)
	Set(ctx context.Context, ns Namespace, data json.RawMessage) error
	Delete(ctx context.Context, ns Namespace) error
	Query(ctx context.Context, collection string, filters []Filter) ([]Memory, error)
	NewBatch() Batch
}

// matchesFilters applies Query filters to a decoded payload. Documents whose
// payload cannot be decoded never match a non-empty filter set.
func matchesFilters(data json.RawMessage, filters []Filter) bool {
	if len(filters) == 0 {
		return true
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false
	}
	for _, f := range filters {
		got, ok := doc[f.Field]
		switch f.Op {
		case "==":
			if !ok || !looseEqual(got, f.Value) {
				return false
			}
		case "!=":
			if ok && looseEqual(got, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// looseEqual compares a decoded JSON value against a filter value, tolerating
// the float64 shape json.Unmarshal gives numbers.
func looseEqual(a, b any) bool {
	if af, ok := a.(float64); ok {
		switch bv := b.(type) {
		case int:
			return af == float64(bv)
		case int64:
			return af == float64(bv)
		case float64:
			return af == bv
		}
	}
	return a == b
}
