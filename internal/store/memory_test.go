package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	ns := Namespace{Collection: "cases", DocumentID: "case-1"}

	got, err := s.Get(ctx, ns)
	require.NoError(t, err)
	assert.Nil(t, got, "absent document should yield nil")

	payload := json.RawMessage(`{"incident_type":"slip and fall"}`)
	require.NoError(t, s.Set(ctx, ns, payload))

	got, err = s.Get(ctx, ns)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.JSONEq(t, string(payload), string(got.Data))
	assert.False(t, got.Timestamp.IsZero())

	require.NoError(t, s.Delete(ctx, ns))
	got, err = s.Get(ctx, ns)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreQueryFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Set(ctx, Namespace{"cases", "a"}, json.RawMessage(`{"status":"open","severity":2}`)))
	require.NoError(t, s.Set(ctx, Namespace{"cases", "b"}, json.RawMessage(`{"status":"closed","severity":2}`)))
	require.NoError(t, s.Set(ctx, Namespace{"users", "c"}, json.RawMessage(`{"status":"open"}`)))

	open, err := s.Query(ctx, "cases", []Filter{{Field: "status", Op: "==", Value: "open"}})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "a", open[0].DocumentID)

	notClosed, err := s.Query(ctx, "cases", []Filter{{Field: "status", Op: "!=", Value: "closed"}})
	require.NoError(t, err)
	require.Len(t, notClosed, 1)
	assert.Equal(t, "a", notClosed[0].DocumentID)

	bySeverity, err := s.Query(ctx, "cases", []Filter{{Field: "severity", Op: "==", Value: 2}})
	require.NoError(t, err)
	assert.Len(t, bySeverity, 2)
}

func TestMemoryStoreBatchAtomicVisibility(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	b := s.NewBatch()
	require.NoError(t, b.Set(Namespace{"cases", "case-1"}, json.RawMessage(`{"a":1}`)))
	require.NoError(t, b.Set(Namespace{"cases/case-1/incident_details", "doc-1"}, json.RawMessage(`{"b":2}`)))

	// Nothing visible before commit.
	got, err := s.Get(ctx, Namespace{"cases", "case-1"})
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, b.Commit(ctx))

	parent, err := s.Get(ctx, Namespace{"cases", "case-1"})
	require.NoError(t, err)
	require.NotNil(t, parent)
	sub, err := s.Get(ctx, Namespace{"cases/case-1/incident_details", "doc-1"})
	require.NoError(t, err)
	require.NotNil(t, sub)
}

func TestMemoryStoreBatchClosedAfterCommit(t *testing.T) {
	s := NewMemoryStore()
	b := s.NewBatch()
	require.NoError(t, b.Set(Namespace{"cases", "x"}, json.RawMessage(`{}`)))
	require.NoError(t, b.Commit(context.Background()))

	err := b.Set(Namespace{"cases", "y"}, json.RawMessage(`{}`))
	assert.ErrorIs(t, err, ErrNoBatchInProgress)
	assert.ErrorIs(t, b.Commit(context.Background()), ErrNoBatchInProgress)
}
