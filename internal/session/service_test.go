package session

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atulwalsh/legal-intake-ai/internal/casestore"
	"github.com/atulwalsh/legal-intake-ai/internal/extraction"
	"github.com/atulwalsh/legal-intake-ai/internal/ingest"
	"github.com/atulwalsh/legal-intake-ai/internal/llm"
	"github.com/atulwalsh/legal-intake-ai/internal/store"
)

// scriptedLLM returns canned responses in order and keeps every request for
// inspection. The last response repeats once the script runs out.
type scriptedLLM struct {
	responses []string
	requests  []llm.Request
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return llm.Response{Text: `{"action":"ask","message":"Tell me more."}`}, nil
	}
	idx := len(s.requests) - 1
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	return llm.Response{Text: s.responses[idx]}, nil
}

type fakeImageReader struct{ text string }

func (f *fakeImageReader) ReadImageText(_ context.Context, _ []byte, _ string) (string, error) {
	return f.text, nil
}

type testHarness struct {
	orch  *Orchestrator
	store store.Store
	llm   *scriptedLLM
}

func newHarness(t *testing.T, responses ...string) *testHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	client := &scriptedLLM{responses: responses}
	memStore := store.NewMemoryStore()
	mapper := casestore.NewMapper(memStore)
	engine := extraction.NewEngine(client)
	pipeline := ingest.NewPipeline(&fakeImageReader{text: "scanned text"})
	analyzer := ingest.NewAnalyzer(client)
	states := NewStateStore(redisClient)

	n := 0
	orch := NewOrchestrator(client, engine, mapper, pipeline, analyzer, states,
		WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("id-%d", n)
		}),
	)
	return &testHarness{orch: orch, store: memStore, llm: client}
}

func startSession(t *testing.T, h *testHarness) string {
	t.Helper()
	resp, err := h.orch.StartSession(context.Background(), StartRequest{})
	require.NoError(t, err)
	return resp.CaseID
}

func TestStartSessionDisclaimerFirst(t *testing.T) {
	h := newHarness(t)

	resp, err := h.orch.StartSession(context.Background(), StartRequest{})
	require.NoError(t, err)

	assert.Contains(t, resp.Message, "LEGAL DISCLAIMER AND DATA CONSENT")
	assert.Equal(t, StateConversing, resp.State)

	state, err := h.orch.SessionState(context.Background(), resp.CaseID)
	require.NoError(t, err)
	require.NotEmpty(t, state.Messages)
	assert.Contains(t, state.Messages[0].Content, "LEGAL DISCLAIMER")
	require.NotNil(t, state.Case, "empty case record is created at session start")
	assert.Equal(t, resp.CaseID, state.Case.CaseID)
	assert.NotEmpty(t, state.Case.IntakeDate)
}

func TestTerminationTokenEndsSession(t *testing.T) {
	// The only capability call on this path is report generation.
	h := newHarness(t, "Case report: nothing collected yet.")
	caseID := startSession(t, h)

	resp, err := h.orch.HandleMessage(context.Background(), MessageRequest{CaseID: caseID, Text: "  QUIT "})
	require.NoError(t, err)

	assert.Equal(t, StateTerminated, resp.State)
	assert.Equal(t, "Thank you for your time. The interview is now complete.", resp.Message)

	state, err := h.orch.SessionState(context.Background(), caseID)
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, state.State)
	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, RoleAssistant, last.Role)
	assert.Equal(t, "Thank you for your time. The interview is now complete.", last.Content)
}

func TestTerminatedIsAbsorbing(t *testing.T) {
	h := newHarness(t, "report")
	caseID := startSession(t, h)

	_, err := h.orch.HandleMessage(context.Background(), MessageRequest{CaseID: caseID, Text: "exit"})
	require.NoError(t, err)
	callsAfterTermination := len(h.llm.requests)

	resp, err := h.orch.HandleMessage(context.Background(), MessageRequest{CaseID: caseID, Text: "my name is Dana"})
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, resp.State)
	assert.Len(t, h.llm.requests, callsAfterTermination, "no extraction or question generation after termination")

	upload, err := h.orch.HandleUpload(context.Background(), UploadRequest{CaseID: caseID, Files: []ingest.Upload{
		{Name: "late.txt", MIME: "text/plain", Data: []byte("x")},
	}})
	require.NoError(t, err)
	assert.Equal(t, StateTerminated, upload.State)
	assert.Empty(t, upload.Files)
}

func TestNonTerminationTurnsNeverTerminate(t *testing.T) {
	h := newHarness(t, `{"action":"ask","message":"What happened next?"}`)
	caseID := startSession(t, h)

	for _, text := range []string{"hello", "quit please", "exits", "I want to terminate my lease", "Quitman county"} {
		resp, err := h.orch.HandleMessage(context.Background(), MessageRequest{CaseID: caseID, Text: text})
		require.NoError(t, err)
		assert.NotEqual(t, StateTerminated, resp.State, "input %q must not terminate", text)
	}
}

func TestAskRouteAppendsQuestion(t *testing.T) {
	h := newHarness(t, `{"action":"ask","message":"When did the incident happen?"}`)
	caseID := startSession(t, h)

	resp, err := h.orch.HandleMessage(context.Background(), MessageRequest{CaseID: caseID, Text: "I was in a car accident."})
	require.NoError(t, err)

	assert.Equal(t, "When did the incident happen?", resp.Message)
	assert.Equal(t, StateConversing, resp.State)

	state, err := h.orch.SessionState(context.Background(), caseID)
	require.NoError(t, err)
	last := state.Messages[len(state.Messages)-1]
	assert.Equal(t, RoleAssistant, last.Role)
	assert.Equal(t, "When did the incident happen?", last.Content)
}

func TestUnclassifiableReplyDegradesToAsk(t *testing.T) {
	h := newHarness(t, "Could you tell me where this happened?")
	caseID := startSession(t, h)

	resp, err := h.orch.HandleMessage(context.Background(), MessageRequest{CaseID: caseID, Text: "something vague"})
	require.NoError(t, err)

	assert.Equal(t, StateConversing, resp.State)
	assert.Equal(t, "Could you tell me where this happened?", resp.Message)
}

func TestExtractCaseRoutePersistsAndRefreshesState(t *testing.T) {
	h := newHarness(t,
		`{"action":"extract_case","message":"Thanks, noted."}`,
		`{"extractions":[{"operation":"update","record":{"incident_details":{"incident_description":"rear-ended at a stop light","incident_date":"2026-03-14"}}}]}`,
		`{"action":"ask","message":"Were there any witnesses?"}`,
	)
	caseID := startSession(t, h)

	resp, err := h.orch.HandleMessage(context.Background(), MessageRequest{
		CaseID: caseID,
		Text:   "I was rear-ended at a stop light on 2026-03-14.",
	})
	require.NoError(t, err)

	assert.Equal(t, "Were there any witnesses?", resp.Message)
	assert.Equal(t, StateConversing, resp.State)

	state, err := h.orch.SessionState(context.Background(), caseID)
	require.NoError(t, err)
	require.NotNil(t, state.Case.IncidentDetails, "working record re-read from the store")
	assert.Equal(t, "rear-ended at a stop light", state.Case.IncidentDetails.IncidentDescription)

	// The sub-record landed in its own sub-collection.
	subs, err := h.store.Query(context.Background(), "cases/"+caseID+"/incident_details", nil)
	require.NoError(t, err)
	require.Len(t, subs, 1)
}

func TestExtractUserRoute(t *testing.T) {
	h := newHarness(t,
		`{"action":"extract_user","message":"Got it."}`,
		`{"extractions":[{"operation":"insert","record":{"first_name":"Dana","email":"dana@example.com"}}]}`,
		`{"action":"ask","message":"What is the best number to reach you?"}`,
	)
	caseID := startSession(t, h)

	resp, err := h.orch.HandleMessage(context.Background(), MessageRequest{
		CaseID: caseID,
		Text:   "My name is Dana, email dana@example.com.",
	})
	require.NoError(t, err)
	assert.Equal(t, "What is the best number to reach you?", resp.Message)

	state, err := h.orch.SessionState(context.Background(), caseID)
	require.NoError(t, err)
	require.NotNil(t, state.User)
	assert.Equal(t, "Dana", state.User.FirstName)
	assert.NotEmpty(t, state.UserDocumentID)
}

func TestExtractionFailureRollsBackTurn(t *testing.T) {
	h := newHarness(t,
		`{"action":"extract_case","message":"Thanks."}`,
		`this is not an extraction envelope at all`,
	)
	caseID := startSession(t, h)

	before, err := h.orch.SessionState(context.Background(), caseID)
	require.NoError(t, err)

	resp, err := h.orch.HandleMessage(context.Background(), MessageRequest{CaseID: caseID, Text: "details details"})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Error, "failure surfaced as a recoverable message")
	assert.Contains(t, resp.Message, "send your last message again")

	after, err := h.orch.SessionState(context.Background(), caseID)
	require.NoError(t, err)
	assert.Equal(t, len(before.Messages), len(after.Messages), "stored state rolled back to the pre-turn snapshot")
	assert.Equal(t, before.State, after.State)
}

func TestUploadBatchRecordsFilesAndIsolatesFailures(t *testing.T) {
	h := newHarness(t,
		"Medical record documenting a wrist fracture.",
		`{"extractions":[{"operation":"update","record":{"injury_details":{"list_injury_details":["wrist fracture"]}}}]}`,
	)
	caseID := startSession(t, h)

	resp, err := h.orch.HandleUpload(context.Background(), UploadRequest{
		CaseID: caseID,
		Files: []ingest.Upload{
			{Name: "er-record.txt", MIME: "text/plain", Data: []byte("Diagnosis: wrist fracture")},
			{Name: "corrupt.txt", MIME: "text/plain", Data: []byte{0xff, 0xfe}},
		},
	})
	require.NoError(t, err)

	require.Len(t, resp.Files, 2)
	assert.NotEmpty(t, resp.Files[0].FileID)
	assert.Empty(t, resp.Files[0].Error)
	assert.Empty(t, resp.Files[1].FileID)
	assert.Contains(t, resp.Files[1].Error, "utf-8")

	state, err := h.orch.SessionState(context.Background(), caseID)
	require.NoError(t, err)

	// Placeholder human turns name each file before ingestion.
	var placeholders []string
	for _, msg := range state.Messages {
		if msg.Role == RoleHuman {
			placeholders = append(placeholders, msg.Content)
		}
	}
	assert.Contains(t, placeholders, `I'm uploading a file named er-record.txt`)
	assert.Contains(t, placeholders, `I'm uploading a file named corrupt.txt`)

	require.Len(t, state.Case.Documents, 1, "only the readable file is recorded")
	doc := state.Case.Documents[0]
	assert.Equal(t, "er-record.txt", doc.FileName)
	assert.Equal(t, "Diagnosis: wrist fracture", doc.FileContents)
	assert.Equal(t, "Medical record documenting a wrist fracture.", doc.FileAnalysis)

	require.NotNil(t, state.Case.InjuryDetails, "case data extracted from the document text")
	assert.Equal(t, []string{"wrist fracture"}, state.Case.InjuryDetails.Injuries)
}

func TestTerminateWritesCaseReport(t *testing.T) {
	h := newHarness(t, "Intake report: client was rear-ended, no injuries reported yet.")
	caseID := startSession(t, h)

	_, err := h.orch.HandleMessage(context.Background(), MessageRequest{CaseID: caseID, Text: "terminate"})
	require.NoError(t, err)

	state, err := h.orch.SessionState(context.Background(), caseID)
	require.NoError(t, err)
	require.NotNil(t, state.Case)
	assert.Equal(t, "Intake report: client was rear-ended, no injuries reported yet.", state.Case.CaseReport)
	assert.Equal(t, "not_sent", string(state.Case.ReportStatus))
}

func TestParseStepResult(t *testing.T) {
	route, reply := parseStepResult(`{"action":"extract_case","message":"ok"}`)
	assert.Equal(t, RouteExtractCase, route)
	assert.Equal(t, "ok", reply)

	route, reply = parseStepResult("```json\n{\"action\":\"end\",\"message\":\"bye\"}\n```")
	assert.Equal(t, RouteTerminate, route)
	assert.Equal(t, "bye", reply)

	route, reply = parseStepResult("just a plain question?")
	assert.Equal(t, RouteAsk, route)
	assert.Equal(t, "just a plain question?", reply)

	route, _ = parseStepResult(`{"action":"something_else","message":"hm"}`)
	assert.Equal(t, RouteAsk, route)
}

func TestIsTerminationToken(t *testing.T) {
	assert.True(t, isTerminationToken("quit"))
	assert.True(t, isTerminationToken("  EXIT  "))
	assert.True(t, isTerminationToken("Terminate"))
	assert.False(t, isTerminationToken("quit the job"))
	assert.False(t, isTerminationToken(""))
}
