package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atulwalsh/legal-intake-ai/internal/llm"
	"github.com/atulwalsh/legal-intake-ai/internal/schema"
)

type stubClient struct {
	responses []string
	err       error
	requests  []llm.Request
}

func (s *stubClient) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return llm.Response{}, s.err
	}
	idx := len(s.requests) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return llm.Response{Text: s.responses[idx], StopReason: "end_turn"}, nil
}

func historyWithFacts() []llm.ChatMessage {
	return []llm.ChatMessage{
		{Role: llm.ChatRoleAssistant, Content: "Could you describe what happened?"},
		{Role: llm.ChatRoleUser, Content: "I slipped on an unmarked wet floor at the Maple Street grocery store on 2026-03-14."},
	}
}

func TestExtractUpdatesExistingDocument(t *testing.T) {
	stub := &stubClient{responses: []string{
		`{"extractions":[{"operation":"update","record":{"incident_details":{"incident_description":"slipped on an unmarked wet floor","incident_date":"2026-03-14"}}}]}`,
	}}
	engine := NewEngine(stub)

	candidates, err := engine.Extract(context.Background(), schema.RecordCase, historyWithFacts(), Existing{
		DocumentID: "case-doc-1",
		Data:       json.RawMessage(`{"case_id":"case-doc-1"}`),
	})
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	assert.Equal(t, OpUpdate, candidates[0].Op)
	assert.Equal(t, "case-doc-1", candidates[0].DocumentID)
	assert.JSONEq(t,
		`{"incident_details":{"incident_description":"slipped on an unmarked wet floor","incident_date":"2026-03-14"}}`,
		string(candidates[0].Data))
}

func TestExtractInsertGetsFreshID(t *testing.T) {
	stub := &stubClient{responses: []string{
		`{"extractions":[{"operation":"insert","record":{"first_name":"Dana"}}]}`,
	}}
	engine := NewEngine(stub, WithIDGenerator(func() string { return "generated-id" }))

	candidates, err := engine.Extract(context.Background(), schema.RecordUser, []llm.ChatMessage{
		{Role: llm.ChatRoleUser, Content: "My name is Dana."},
	}, Existing{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	assert.Equal(t, OpInsert, candidates[0].Op)
	assert.Equal(t, "generated-id", candidates[0].DocumentID)
}

func TestExtractDefaultsToInsertWhenNothingStored(t *testing.T) {
	stub := &stubClient{responses: []string{
		`{"extractions":[{"record":{"first_name":"Dana"}}]}`,
	}}
	engine := NewEngine(stub, WithIDGenerator(func() string { return "fresh" }))

	candidates, err := engine.Extract(context.Background(), schema.RecordUser, []llm.ChatMessage{
		{Role: llm.ChatRoleUser, Content: "My name is Dana."},
	}, Existing{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, OpInsert, candidates[0].Op)
	assert.Equal(t, "fresh", candidates[0].DocumentID)
}

func TestExtractStripsCodeFence(t *testing.T) {
	stub := &stubClient{responses: []string{
		"```json\n{\"extractions\":[{\"operation\":\"update\",\"record\":{\"first_name\":\"Dana\"}}]}\n```",
	}}
	engine := NewEngine(stub)

	candidates, err := engine.Extract(context.Background(), schema.RecordUser, []llm.ChatMessage{
		{Role: llm.ChatRoleUser, Content: "My name is Dana."},
	}, Existing{DocumentID: "user-1"})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "user-1", candidates[0].DocumentID)
}

func TestExtractEmptyEnvelopeIsNotAnError(t *testing.T) {
	stub := &stubClient{responses: []string{`{"extractions":[]}`}}
	engine := NewEngine(stub)

	candidates, err := engine.Extract(context.Background(), schema.RecordCase, historyWithFacts(), Existing{})
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestExtractSkipsEmptyRecords(t *testing.T) {
	stub := &stubClient{responses: []string{
		`{"extractions":[{"operation":"update","record":{}},{"operation":"update","record":{"first_name":"Dana"}}]}`,
	}}
	engine := NewEngine(stub)

	candidates, err := engine.Extract(context.Background(), schema.RecordUser, []llm.ChatMessage{
		{Role: llm.ChatRoleUser, Content: "My name is Dana."},
	}, Existing{DocumentID: "user-1"})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
}

func TestExtractSchemaInvalidOutputFails(t *testing.T) {
	stub := &stubClient{responses: []string{
		`{"extractions":[{"operation":"update","record":{"favorite_color":"blue"}}]}`,
	}}
	engine := NewEngine(stub)

	_, err := engine.Extract(context.Background(), schema.RecordUser, []llm.ChatMessage{
		{Role: llm.ChatRoleUser, Content: "My favorite color is blue."},
	}, Existing{DocumentID: "user-1"})
	require.Error(t, err)

	var extErr *Error
	require.ErrorAs(t, err, &extErr)
	assert.Equal(t, schema.RecordUser, extErr.RecordType)
	assert.NotEmpty(t, extErr.Raw)
}

func TestExtractCapabilityErrorFails(t *testing.T) {
	stub := &stubClient{err: errors.New("model unavailable")}
	engine := NewEngine(stub)

	_, err := engine.Extract(context.Background(), schema.RecordCase, historyWithFacts(), Existing{})
	var extErr *Error
	require.ErrorAs(t, err, &extErr)
	assert.Contains(t, err.Error(), "capability call failed")
}

func TestExtractUnparseableOutputFails(t *testing.T) {
	stub := &stubClient{responses: []string{"I could not find any structured data, sorry!"}}
	engine := NewEngine(stub)

	_, err := engine.Extract(context.Background(), schema.RecordCase, historyWithFacts(), Existing{})
	var extErr *Error
	require.ErrorAs(t, err, &extErr)
}

func TestExtractExcludesToolTurnsFromTranscript(t *testing.T) {
	stub := &stubClient{responses: []string{`{"extractions":[]}`}}
	engine := NewEngine(stub)

	history := append(historyWithFacts(), llm.ChatMessage{
		Role:    llm.ChatRoleTool,
		Content: "internal routing payload",
	})
	_, err := engine.Extract(context.Background(), schema.RecordCase, history, Existing{})
	require.NoError(t, err)

	require.Len(t, stub.requests, 1)
	transcript := stub.requests[0].Messages[0].Content
	assert.NotContains(t, transcript, "internal routing payload")
	assert.Contains(t, transcript, "client: I slipped")
	assert.Contains(t, transcript, "case_manager: Could you describe")
}

func TestExtractInstructionCarriesSchemaAndExistingData(t *testing.T) {
	stub := &stubClient{responses: []string{`{"extractions":[]}`}}
	engine := NewEngine(stub)

	_, err := engine.Extract(context.Background(), schema.RecordUser, historyWithFacts(), Existing{
		DocumentID: "user-1",
		Data:       json.RawMessage(`{"first_name":"Dana"}`),
	})
	require.NoError(t, err)

	require.Len(t, stub.requests, 1)
	require.Len(t, stub.requests[0].System, 1)
	system := stub.requests[0].System[0]
	assert.Contains(t, system, "<StructuredOutput>")
	assert.Contains(t, system, `"first_name"`)
	assert.Contains(t, system, `{"first_name":"Dana"}`)
	assert.Contains(t, system, "Do not make assumptions")
}

// Every leaf value in a candidate must be traceable to the transcript. The
// stub stands in for a well-behaved model; the assertion is the harness the
// golden-path suites reuse against recorded outputs.
func TestExtractCandidateValuesComeFromTranscript(t *testing.T) {
	stub := &stubClient{responses: []string{
		`{"extractions":[{"operation":"update","record":{"incident_details":{"incident_date":"2026-03-14","incident_location":"Maple Street grocery store"}}}]}`,
	}}
	engine := NewEngine(stub)

	history := historyWithFacts()
	candidates, err := engine.Extract(context.Background(), schema.RecordCase, history, Existing{DocumentID: "case-1"})
	require.NoError(t, err)
	require.Len(t, candidates, 1)

	transcript := renderTranscript(history)
	assertValuesInTranscript(t, transcript, candidates[0].Data)
}

func assertValuesInTranscript(t *testing.T, transcript string, data json.RawMessage) {
	t.Helper()
	var decoded any
	require.NoError(t, json.Unmarshal(data, &decoded))
	walkStrings(decoded, func(s string) {
		assert.True(t, strings.Contains(transcript, s),
			"value %q not present in transcript", s)
	})
}

func walkStrings(v any, fn func(string)) {
	switch val := v.(type) {
	case string:
		fn(val)
	case float64, bool, nil:
		// Numbers and booleans are normalized by extraction; string
		// provenance is the property under test.
	case []any:
		for _, item := range val {
			walkStrings(item, fn)
		}
	case map[string]any:
		for _, item := range val {
			walkStrings(item, fn)
		}
	default:
		panic(fmt.Sprintf("unexpected JSON kind %T", v))
	}
}
