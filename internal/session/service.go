package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atulwalsh/legal-intake-ai/internal/casestore"
	"github.com/atulwalsh/legal-intake-ai/internal/extraction"
	"github.com/atulwalsh/legal-intake-ai/internal/ingest"
	"github.com/atulwalsh/legal-intake-ai/internal/intake"
	"github.com/atulwalsh/legal-intake-ai/internal/llm"
	"github.com/atulwalsh/legal-intake-ai/internal/observability/metrics"
	"github.com/atulwalsh/legal-intake-ai/internal/schema"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

const recoverableReply = "I wasn't able to process that just now. Could you please send your last message again?"

var sessionTracer = otel.Tracer("legalintake.internal.session")

// StartRequest opens a new interview session. CaseID is optional; a fresh id
// is generated when empty.
type StartRequest struct {
	CaseID string `json:"case_id,omitempty"`
}

// MessageRequest carries one inbound user turn.
type MessageRequest struct {
	CaseID string `json:"case_id"`
	Text   string `json:"text"`
}

// UploadRequest carries one batch of uploaded files.
type UploadRequest struct {
	CaseID string          `json:"case_id"`
	Files  []ingest.Upload `json:"files"`
}

// FileStatus reports the per-file outcome of an upload batch.
type FileStatus struct {
	FileID   string `json:"file_id,omitempty"`
	FileName string `json:"file_name"`
	Error    string `json:"error,omitempty"`
}

// Response is the orchestrator's reply for one request. Error, when set,
// names a recoverable failure; the state did not advance and the same input
// can be resubmitted.
type Response struct {
	CaseID  string       `json:"case_id"`
	Message string       `json:"message"`
	State   State        `json:"state"`
	Error   string       `json:"error,omitempty"`
	Files   []FileStatus `json:"files,omitempty"`
}

// Service is the surface the dispatcher and HTTP handlers call.
type Service interface {
	StartSession(ctx context.Context, req StartRequest) (*Response, error)
	HandleMessage(ctx context.Context, req MessageRequest) (*Response, error)
	HandleUpload(ctx context.Context, req UploadRequest) (*Response, error)
	SessionState(ctx context.Context, caseID string) (*SessionState, error)
}

// TranscriptArchiver receives the full message sequence after each turn.
type TranscriptArchiver interface {
	Archive(ctx context.Context, caseID string, messages []Message) error
}

// ReportSender delivers the final case report to the client.
type ReportSender interface {
	SendCaseReport(ctx context.Context, record *intake.CaseRecord, email string) error
}

// Orchestrator is the conversation state machine. One user turn runs one
// step, entirely, before the next turn for the same case is accepted.
type Orchestrator struct {
	llm         llm.Client
	engine      *extraction.Engine
	mapper      *casestore.Mapper
	pipeline    *ingest.Pipeline
	analyzer    *ingest.Analyzer
	uploads     *ingest.UploadStore
	states      *StateStore
	transcripts TranscriptArchiver
	reports     ReportSender
	logger      *logging.Logger
	metrics     *metrics.SessionMetrics
	model       string
	turnTimeout time.Duration
	newID       func() string

	locks sync.Map // caseID -> *sync.Mutex
}

var _ Service = (*Orchestrator)(nil)

type OrchestratorOption func(*Orchestrator)

func WithModel(model string) OrchestratorOption {
	return func(o *Orchestrator) { o.model = model }
}

func WithLogger(logger *logging.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithTurnTimeout(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if d > 0 {
			o.turnTimeout = d
		}
	}
}

func WithUploadStore(uploads *ingest.UploadStore) OrchestratorOption {
	return func(o *Orchestrator) { o.uploads = uploads }
}

func WithTranscriptArchiver(a TranscriptArchiver) OrchestratorOption {
	return func(o *Orchestrator) { o.transcripts = a }
}

func WithReportSender(r ReportSender) OrchestratorOption {
	return func(o *Orchestrator) { o.reports = r }
}

func WithMetrics(m *metrics.SessionMetrics) OrchestratorOption {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithIDGenerator(fn func() string) OrchestratorOption {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

func NewOrchestrator(
	client llm.Client,
	engine *extraction.Engine,
	mapper *casestore.Mapper,
	pipeline *ingest.Pipeline,
	analyzer *ingest.Analyzer,
	states *StateStore,
	opts ...OrchestratorOption,
) *Orchestrator {
	if client == nil {
		panic("session: llm client cannot be nil")
	}
	if engine == nil {
		panic("session: extraction engine cannot be nil")
	}
	if mapper == nil {
		panic("session: mapper cannot be nil")
	}
	if pipeline == nil {
		panic("session: ingest pipeline cannot be nil")
	}
	if analyzer == nil {
		panic("session: analyzer cannot be nil")
	}
	if states == nil {
		panic("session: state store cannot be nil")
	}

	o := &Orchestrator{
		llm:         client,
		engine:      engine,
		mapper:      mapper,
		pipeline:    pipeline,
		analyzer:    analyzer,
		states:      states,
		logger:      logging.Default(),
		turnTimeout: 60 * time.Second,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StartSession creates the session and its empty case record. The disclaimer
// is the first message of every session, before any user input.
func (o *Orchestrator) StartSession(ctx context.Context, req StartRequest) (*Response, error) {
	caseID := strings.TrimSpace(req.CaseID)
	if caseID == "" {
		caseID = o.newID()
	}

	unlock := o.lock(caseID)
	defer unlock()
	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()
	ctx, span := sessionTracer.Start(ctx, "session.start")
	defer span.End()
	span.SetAttributes(attribute.String("legalintake.case_id", caseID))

	state := &SessionState{
		CaseID:         caseID,
		CaseDocumentID: caseID,
		State:          StateConversing,
		Messages:       []Message{{Role: RoleAssistant, Content: disclaimer}},
	}

	record := intake.NewCaseRecord(caseID)
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("session: encode case record: %w", err)
	}
	persistErr := o.mapper.Persist(ctx, caseID, schema.RecordCase, extraction.Candidate{
		Data:       data,
		DocumentID: caseID,
		Op:         extraction.OpInsert,
	})
	if persistErr != nil {
		// Store unreachable degrades to a read-only conversation rather
		// than refusing the session.
		o.logger.Error("case record creation failed, session is read-only", "case_id", caseID, "error", persistErr)
		state.ReadOnly = true
		state.Case = record
	} else {
		stored, err := o.mapper.LoadCase(ctx, caseID, caseID)
		if err != nil {
			return nil, err
		}
		state.Case = stored
	}

	if err := o.states.Save(ctx, state); err != nil {
		return nil, err
	}

	o.logger.Info("session started", "case_id", caseID, "read_only", state.ReadOnly)
	return &Response{CaseID: caseID, Message: disclaimer, State: state.State}, nil
}

// HandleMessage runs one full state-machine step for an inbound user turn.
func (o *Orchestrator) HandleMessage(ctx context.Context, req MessageRequest) (*Response, error) {
	unlock := o.lock(req.CaseID)
	defer unlock()
	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()
	ctx, span := sessionTracer.Start(ctx, "session.message")
	defer span.End()
	span.SetAttributes(attribute.String("legalintake.case_id", req.CaseID))

	turnStart := time.Now()
	route := RouteAsk
	status := "ok"
	defer func() {
		o.metrics.ObserveTurn(string(route), status, time.Since(turnStart).Seconds())
	}()

	state, err := o.states.Load(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("session: unknown session %s", req.CaseID)
	}

	// Terminated absorbs every later turn without routing it anywhere.
	if state.State == StateTerminated {
		return &Response{CaseID: state.CaseID, Message: closingMessage, State: StateTerminated}, nil
	}

	state.Messages = append(state.Messages, Message{Role: RoleHuman, Content: req.Text})
	state.State = StateRoutingDecision

	if isTerminationToken(req.Text) {
		route = RouteTerminate
		return o.terminate(ctx, state)
	}

	var reply string
	route, reply, err = o.converse(ctx, state, routingContract)
	if err != nil {
		status = "error"
		o.logger.Warn("conversational step failed, turn not advanced", "case_id", state.CaseID, "error", err)
		return o.recoverable(state, err), nil
	}

	if state.ReadOnly && (route == RouteExtractCase || route == RouteExtractUser) {
		route = RouteAsk
	}

	switch route {
	case RouteTerminate:
		return o.terminate(ctx, state)
	case RouteExtractCase:
		if err := o.extractAndPersist(ctx, state, schema.RecordCase); err != nil {
			status = "error"
			o.logger.Warn("case extraction failed, turn not advanced", "case_id", state.CaseID, "error", err)
			return o.recoverable(state, err), nil
		}
		reply = o.followUpQuestion(ctx, state, reply)
	case RouteExtractUser:
		if err := o.extractAndPersist(ctx, state, schema.RecordUser); err != nil {
			status = "error"
			o.logger.Warn("user extraction failed, turn not advanced", "case_id", state.CaseID, "error", err)
			return o.recoverable(state, err), nil
		}
		reply = o.followUpQuestion(ctx, state, reply)
	}

	state.Messages = append(state.Messages, Message{Role: RoleAssistant, Content: reply})
	state.State = StateConversing

	if err := o.states.Save(ctx, state); err != nil {
		status = "error"
		return o.recoverable(state, err), nil
	}
	o.archiveTranscript(ctx, state)

	return &Response{CaseID: state.CaseID, Message: reply, State: state.State}, nil
}

// HandleUpload ingests a batch of files. Each file is isolated: a failed
// file is reported in its FileStatus and never disturbs its siblings.
func (o *Orchestrator) HandleUpload(ctx context.Context, req UploadRequest) (*Response, error) {
	unlock := o.lock(req.CaseID)
	defer unlock()
	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()
	ctx, span := sessionTracer.Start(ctx, "session.upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("legalintake.case_id", req.CaseID),
		attribute.Int("legalintake.file_count", len(req.Files)),
	)

	state, err := o.states.Load(ctx, req.CaseID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, fmt.Errorf("session: unknown session %s", req.CaseID)
	}
	if state.State == StateTerminated {
		return &Response{CaseID: state.CaseID, Message: closingMessage, State: StateTerminated}, nil
	}

	// A placeholder human turn names each file before ingestion proceeds.
	for _, up := range req.Files {
		state.Messages = append(state.Messages, Message{
			Role:    RoleHuman,
			Content: fmt.Sprintf("I'm uploading a file named %s", up.Name),
		})
	}

	results := o.pipeline.IngestBatch(ctx, req.Files)
	statuses := make([]FileStatus, len(results))
	var ingested []intake.FileRecord

	for i, res := range results {
		statuses[i].FileName = req.Files[i].Name
		if res.Err != nil {
			statuses[i].Error = res.Err.Error()
			o.metrics.ObserveUpload("failed")
			continue
		}

		record := res.Record
		if o.uploads.Enabled() {
			url, err := o.uploads.Save(ctx, state.CaseID, record, req.Files[i].Data)
			if err != nil {
				o.logger.Warn("upload archival failed", "case_id", state.CaseID, "file_name", record.FileName, "error", err)
			} else if strings.HasPrefix(record.FileType, "image/") {
				record.ImageURL = url
			}
		}

		analysis, err := o.analyzer.Analyze(ctx, record)
		if err != nil {
			o.logger.Warn("file analysis failed", "case_id", state.CaseID, "file_id", record.FileID, "error", err)
		} else {
			record.FileAnalysis = analysis
		}

		if !state.ReadOnly {
			if err := o.mapper.SaveFile(ctx, state.CaseID, state.CaseDocumentID, record); err != nil {
				statuses[i].Error = err.Error()
				o.metrics.ObserveUpload("failed")
				continue
			}
		}
		statuses[i].FileID = record.FileID
		ingested = append(ingested, record)
		o.metrics.ObserveUpload("ok")
	}

	reply := o.summarizeUploads(ingested, statuses)

	if len(ingested) > 0 && !state.ReadOnly {
		// The placeholder turns are the extraction trigger; the document
		// text itself is what gets extracted from.
		if err := o.extractFromFiles(ctx, state, ingested); err != nil {
			o.logger.Warn("file extraction failed", "case_id", state.CaseID, "error", err)
			reply += " I could not extract case details from the documents yet; we can revisit them later in the interview."
		}
	}

	if stored, err := o.mapper.LoadCase(ctx, state.CaseID, state.CaseDocumentID); err == nil && stored != nil {
		state.Case = stored
	}

	state.Messages = append(state.Messages, Message{Role: RoleAssistant, Content: reply})
	state.State = StateConversing

	if err := o.states.Save(ctx, state); err != nil {
		resp := o.recoverable(state, err)
		resp.Files = statuses
		return resp, nil
	}
	o.archiveTranscript(ctx, state)

	return &Response{CaseID: state.CaseID, Message: reply, State: state.State, Files: statuses}, nil
}

// SessionState returns the current working state for a case.
func (o *Orchestrator) SessionState(ctx context.Context, caseID string) (*SessionState, error) {
	return o.states.Load(ctx, caseID)
}

func (o *Orchestrator) terminate(ctx context.Context, state *SessionState) (*Response, error) {
	state.State = StateTerminated
	state.Messages = append(state.Messages, Message{Role: RoleAssistant, Content: closingMessage})

	o.finalizeReport(ctx, state)

	if err := o.states.Save(ctx, state); err != nil {
		return o.recoverable(state, err), nil
	}
	o.archiveTranscript(ctx, state)

	o.logger.Info("session terminated", "case_id", state.CaseID)
	return &Response{CaseID: state.CaseID, Message: closingMessage, State: StateTerminated}, nil
}

// extractAndPersist runs the extraction engine and commits its candidates,
// then replaces the working records with the freshly persisted values read
// back from the store.
func (o *Orchestrator) extractAndPersist(ctx context.Context, state *SessionState, rt schema.RecordType) error {
	if rt == schema.RecordUser {
		state.State = StateExtractingUser
	} else {
		state.State = StateExtractingCase
	}
	state.Messages = append(state.Messages, Message{Role: RoleTool, Content: string(rt)})

	existing, err := o.existingFor(state, rt)
	if err != nil {
		return err
	}

	candidates, err := o.engine.Extract(ctx, rt, chatHistory(state.Messages), existing)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	if err := o.mapper.PersistAll(ctx, state.CaseID, rt, candidates); err != nil {
		return err
	}
	return o.reload(ctx, state, rt, candidates)
}

func (o *Orchestrator) extractFromFiles(ctx context.Context, state *SessionState, files []intake.FileRecord) error {
	var sb strings.Builder
	for _, f := range files {
		if strings.TrimSpace(f.FileContents) == "" {
			continue
		}
		fmt.Fprintf(&sb, "Uploaded document %q:\n%s\n\n", f.FileName, f.FileContents)
	}
	if sb.Len() == 0 {
		return nil
	}

	existing, err := o.existingFor(state, schema.RecordCase)
	if err != nil {
		return err
	}
	history := []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: sb.String()}}

	candidates, err := o.engine.Extract(ctx, schema.RecordCase, history, existing)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}
	if err := o.mapper.PersistAll(ctx, state.CaseID, schema.RecordCase, candidates); err != nil {
		return err
	}
	return o.reload(ctx, state, schema.RecordCase, candidates)
}

func (o *Orchestrator) existingFor(state *SessionState, rt schema.RecordType) (extraction.Existing, error) {
	switch rt {
	case schema.RecordUser:
		existing := extraction.Existing{DocumentID: state.UserDocumentID}
		if state.User != nil {
			data, err := json.Marshal(state.User)
			if err != nil {
				return extraction.Existing{}, fmt.Errorf("session: encode user snapshot: %w", err)
			}
			existing.Data = data
		}
		return existing, nil
	default:
		existing := extraction.Existing{DocumentID: state.CaseDocumentID}
		if state.Case != nil {
			data, err := json.Marshal(state.Case)
			if err != nil {
				return extraction.Existing{}, fmt.Errorf("session: encode case snapshot: %w", err)
			}
			existing.Data = data
		}
		return existing, nil
	}
}

func (o *Orchestrator) reload(ctx context.Context, state *SessionState, rt schema.RecordType, candidates []extraction.Candidate) error {
	switch rt {
	case schema.RecordUser:
		if state.UserDocumentID == "" {
			state.UserDocumentID = candidates[0].DocumentID
		}
		user, err := o.mapper.LoadUser(ctx, state.UserDocumentID)
		if err != nil {
			return err
		}
		state.User = user
	default:
		record, err := o.mapper.LoadCase(ctx, state.CaseID, state.CaseDocumentID)
		if err != nil {
			return err
		}
		state.Case = record
	}
	return nil
}

// converse runs one capability call over the interview prompt plus the
// filtered history and parses the typed routing signal out of the reply.
func (o *Orchestrator) converse(ctx context.Context, state *SessionState, contract string) (Route, string, error) {
	system, err := o.buildInterviewerPrompt(state, contract)
	if err != nil {
		return RouteAsk, "", err
	}

	resp, err := o.llm.Complete(ctx, llm.Request{
		Model:       o.model,
		System:      []string{system},
		Messages:    chatHistory(state.Messages),
		MaxTokens:   1024,
		Temperature: 0.6,
	})
	if err != nil {
		return RouteAsk, "", fmt.Errorf("session: conversational step: %w", err)
	}

	route, reply := parseStepResult(resp.Text)
	return route, reply, nil
}

// followUpQuestion asks for the next question after a successful extraction.
// If the call fails the acknowledgement from the routing step stands in, so
// a committed extraction is never rolled back for a follow-up failure.
func (o *Orchestrator) followUpQuestion(ctx context.Context, state *SessionState, fallback string) string {
	_, reply, err := o.converse(ctx, state, askOnlyContract)
	if err != nil || strings.TrimSpace(reply) == "" {
		if strings.TrimSpace(fallback) != "" {
			return fallback
		}
		return "Thank you. Could you tell me more about your case?"
	}
	return reply
}

func (o *Orchestrator) buildInterviewerPrompt(state *SessionState, contract string) (string, error) {
	caseDoc, err := schema.Document(schema.RecordCase)
	if err != nil {
		return "", err
	}
	userDoc, err := schema.Document(schema.RecordUser)
	if err != nil {
		return "", err
	}

	snapshot := []byte("{}")
	if state.Case != nil {
		snapshot, err = json.Marshal(state.Case)
		if err != nil {
			return "", fmt.Errorf("session: encode case snapshot: %w", err)
		}
	}

	schemas := fmt.Sprintf("%s\n%s", caseDoc, userDoc)
	return fmt.Sprintf(interviewerPrompt, schemas, snapshot) + "\n\n" + contract, nil
}

// recoverable reports a failed turn without advancing durable state. The
// caller's input stays eligible for resubmission.
func (o *Orchestrator) recoverable(state *SessionState, err error) *Response {
	return &Response{
		CaseID:  state.CaseID,
		Message: recoverableReply,
		State:   StateConversing,
		Error:   err.Error(),
	}
}

func (o *Orchestrator) summarizeUploads(ingested []intake.FileRecord, statuses []FileStatus) string {
	var parts []string
	for _, f := range ingested {
		if strings.TrimSpace(f.FileAnalysis) != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", f.FileName, f.FileAnalysis))
		} else {
			parts = append(parts, fmt.Sprintf("%s was received.", f.FileName))
		}
	}
	var failed []string
	for _, s := range statuses {
		if s.Error != "" {
			failed = append(failed, s.FileName)
		}
	}

	var sb strings.Builder
	if len(parts) > 0 {
		sb.WriteString("I reviewed the documents you uploaded. ")
		sb.WriteString(strings.Join(parts, " "))
		sb.WriteString(" Please confirm or correct any of these details.")
	}
	if len(failed) > 0 {
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(fmt.Sprintf("I could not read these files: %s. You can try uploading them again.", strings.Join(failed, ", ")))
	}
	if sb.Len() == 0 {
		return "I did not receive any readable files. You can try uploading them again."
	}
	return sb.String()
}

// finalizeReport writes the case report and emails it to the client. Both
// steps are best-effort; a failure never blocks termination.
func (o *Orchestrator) finalizeReport(ctx context.Context, state *SessionState) {
	if state.ReadOnly || state.Case == nil {
		return
	}

	report, err := o.generateReport(ctx, state)
	if err != nil {
		o.logger.Warn("case report generation failed", "case_id", state.CaseID, "error", err)
		return
	}

	status := intake.ReportNotSent
	if o.reports != nil && state.User != nil && state.User.Email != "" {
		state.Case.CaseReport = report
		if err := o.reports.SendCaseReport(ctx, state.Case, state.User.Email); err != nil {
			o.logger.Warn("case report delivery failed", "case_id", state.CaseID, "error", err)
		} else {
			status = intake.ReportSent
		}
	}

	update, err := json.Marshal(map[string]any{
		"case_report":   report,
		"report_status": status,
	})
	if err != nil {
		o.logger.Warn("case report encode failed", "case_id", state.CaseID, "error", err)
		return
	}
	err = o.mapper.Persist(ctx, state.CaseID, schema.RecordCase, extraction.Candidate{
		Data:       update,
		DocumentID: state.CaseDocumentID,
		Op:         extraction.OpUpdate,
	})
	if err != nil {
		o.logger.Warn("case report persist failed", "case_id", state.CaseID, "error", err)
		return
	}
	if stored, err := o.mapper.LoadCase(ctx, state.CaseID, state.CaseDocumentID); err == nil && stored != nil {
		state.Case = stored
	}
}

func (o *Orchestrator) generateReport(ctx context.Context, state *SessionState) (string, error) {
	snapshot, err := json.Marshal(state.Case)
	if err != nil {
		return "", fmt.Errorf("session: encode case snapshot: %w", err)
	}

	resp, err := o.llm.Complete(ctx, llm.Request{
		Model: o.model,
		System: []string{"You write concise intake case reports for attorneys. " +
			"Summarize the collected case data below into a structured narrative covering the client, the incident, injuries and treatment, insurance, employment impact, damages and legal posture. " +
			"Use only the information present in the data."},
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: string(snapshot)}},
		MaxTokens:   2048,
		Temperature: 0.3,
	})
	if err != nil {
		return "", fmt.Errorf("session: report generation: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (o *Orchestrator) archiveTranscript(ctx context.Context, state *SessionState) {
	if o.transcripts == nil {
		return
	}
	if err := o.transcripts.Archive(ctx, state.CaseID, state.Messages); err != nil {
		o.logger.Warn("transcript archive failed", "case_id", state.CaseID, "error", err)
	}
}

func (o *Orchestrator) lock(caseID string) func() {
	v, _ := o.locks.LoadOrStore(caseID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// parseStepResult decodes the typed routing signal. Output that cannot be
// classified degrades to asking, with the raw text as the reply.
func parseStepResult(raw string) (Route, string) {
	text := strings.TrimSpace(raw)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	jsonText := text
	if !strings.HasPrefix(jsonText, "{") {
		start := strings.Index(jsonText, "{")
		end := strings.LastIndex(jsonText, "}")
		if start >= 0 && end > start {
			jsonText = jsonText[start : end+1]
		}
	}

	var step struct {
		Action  string `json:"action"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(jsonText), &step); err != nil {
		return RouteAsk, text
	}

	reply := strings.TrimSpace(step.Message)
	switch strings.ToLower(strings.TrimSpace(step.Action)) {
	case "extract_case":
		return RouteExtractCase, reply
	case "extract_user":
		return RouteExtractUser, reply
	case "end", "terminate":
		return RouteTerminate, reply
	case "ask":
		if reply == "" {
			return RouteAsk, text
		}
		return RouteAsk, reply
	default:
		if reply == "" {
			return RouteAsk, text
		}
		return RouteAsk, reply
	}
}
