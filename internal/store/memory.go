package store

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[Namespace]Memory
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[Namespace]Memory)}
}

func (s *MemoryStore) Get(_ context.Context, ns Namespace) (*Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mem, ok := s.docs[ns]
	if !ok {
		return nil, nil
	}
	cp := mem
	cp.Data = append(json.RawMessage(nil), mem.Data...)
	return &cp, nil
}

func (s *MemoryStore) Set(_ context.Context, ns Namespace, data json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[ns] = Memory{
		Collection: ns.Collection,
		DocumentID: ns.DocumentID,
		Data:       append(json.RawMessage(nil), data...),
		Timestamp:  time.Now().UTC(),
	}
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, ns Namespace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, ns)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, filters []Filter) ([]Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []Memory
	for ns, mem := range s.docs {
		if ns.Collection != collection {
			continue
		}
		if matchesFilters(mem.Data, filters) {
			cp := mem
			cp.Data = append(json.RawMessage(nil), mem.Data...)
			results = append(results, cp)
		}
	}
	return results, nil
}

// NewBatch opens a staged write set applied under a single lock on Commit,
// so readers observe either none or all of the batch.
func (s *MemoryStore) NewBatch() Batch {
	return &memoryBatch{store: s}
}

type memoryBatch struct {
	store  *MemoryStore
	mu     sync.Mutex
	staged []Memory
	closed bool
}

func (b *memoryBatch) Set(ns Namespace, data json.RawMessage) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrNoBatchInProgress
	}
	b.staged = append(b.staged, Memory{
		Collection: ns.Collection,
		DocumentID: ns.DocumentID,
		Data:       append(json.RawMessage(nil), data...),
	})
	return nil
}

func (b *memoryBatch) Commit(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrNoBatchInProgress
	}
	now := time.Now().UTC()

	b.store.mu.Lock()
	for _, mem := range b.staged {
		mem.Timestamp = now
		b.store.docs[Namespace{Collection: mem.Collection, DocumentID: mem.DocumentID}] = mem
	}
	b.store.mu.Unlock()

	b.closed = true
	b.staged = nil
	return nil
}
