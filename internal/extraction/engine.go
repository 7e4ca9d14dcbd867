// Package extraction turns conversation history into schema-validated
// structured records. It never talks to storage; callers decide what to do
// with the candidates it proposes.
package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/atulwalsh/legal-intake-ai/internal/llm"
	"github.com/atulwalsh/legal-intake-ai/internal/schema"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

// Op says how a candidate relates to the existing stored record.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// Candidate is one proposed record plus the document it should land in.
type Candidate struct {
	Data       json.RawMessage
	DocumentID string
	Op         Op
}

// Existing is the caller's snapshot of the record currently stored for the
// target type. A zero Existing means nothing has been stored yet.
type Existing struct {
	DocumentID string
	Data       json.RawMessage
}

// Error reports a failed extraction attempt. The caller must treat the turn
// as not captured and retry on the next user input.
type Error struct {
	RecordType schema.RecordType
	Raw        string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction: %s: %v", e.RecordType, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var tracer = otel.Tracer("legalintake.internal.extraction")

var extractionLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "legalintake",
		Subsystem: "extraction",
		Name:      "latency_seconds",
		Help:      "Latency of structured extraction calls",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"record_type", "status"},
)

var extractionCandidatesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "legalintake",
		Subsystem: "extraction",
		Name:      "candidates_total",
		Help:      "Candidates produced by extraction calls",
	},
	[]string{"record_type", "op"},
)

func init() {
	prometheus.MustRegister(extractionLatency)
	prometheus.MustRegister(extractionCandidatesTotal)
}

// RegisterMetrics registers extraction metrics with a custom registry.
func RegisterMetrics(reg prometheus.Registerer) {
	if reg == nil || reg == prometheus.DefaultRegisterer {
		return
	}
	reg.MustRegister(extractionLatency, extractionCandidatesTotal)
}

const instructionHeader = `You are a highly skilled data analyst proficient in identifying, extracting and organizing complex information from many kinds of data sources.
You have a deep understanding of the legal industry, particularly personal injury and medical malpractice, and of which factors in a case drive settlement valuations and success rates for clients.
You are extracting this information from client interview transcripts and uploaded documents such as medical records.
The data schema is provided as a JSON object whose fields carry a name, a type, a detailed description and examples of the expected data.

Reflect on the conversation history and use the schema to populate field values with the case information the client provided.
Preserve the client's original accounts without changing or altering them. Do not make assumptions and do not fill in information the client did not provide.`

const instructionOutput = `Respond with only a JSON object of the form:
{"extractions": [{"operation": "insert" or "update", "document_id": "optional id of the document being updated", "record": {fields matching the schema}}]}
Emit an update for the existing record when refining already collected information, and an insert only for a genuinely new record. Omit fields you have no information for. If the conversation contains no extractable information, respond with {"extractions": []}.`

// Engine runs the extraction capability for one record type at a time.
type Engine struct {
	client llm.Client
	model  string
	logger *logging.Logger
	newID  func() string
}

type Option func(*Engine)

func WithModel(model string) Option {
	return func(e *Engine) { e.model = model }
}

func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithIDGenerator overrides document id generation. Tests use this for
// deterministic ids.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newID = fn
		}
	}
}

func NewEngine(client llm.Client, opts ...Option) *Engine {
	if client == nil {
		panic("extraction: llm client is required")
	}
	e := &Engine{
		client: client,
		logger: logging.Default(),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract runs one extraction pass. history must already exclude the turn
// that requested the extraction; tool turns are dropped here. A nil, nil
// return means the model found nothing to extract, which is not an error.
func (e *Engine) Extract(ctx context.Context, rt schema.RecordType, history []llm.ChatMessage, existing Existing) ([]Candidate, error) {
	ctx, span := tracer.Start(ctx, "extraction.extract")
	defer span.End()
	span.SetAttributes(attribute.String("legalintake.record_type", string(rt)))

	system, err := e.buildInstruction(rt, existing)
	if err != nil {
		return nil, &Error{RecordType: rt, Err: err}
	}

	transcript := renderTranscript(history)
	if transcript == "" {
		return nil, nil
	}

	status := "ok"
	start := time.Now()
	resp, err := e.client.Complete(ctx, llm.Request{
		Model:       e.model,
		System:      []string{system},
		Messages:    []llm.ChatMessage{{Role: llm.ChatRoleUser, Content: transcript}},
		MaxTokens:   2048,
		Temperature: 0,
	})
	if err != nil {
		status = "error"
		extractionLatency.WithLabelValues(string(rt), status).Observe(time.Since(start).Seconds())
		span.RecordError(err)
		return nil, &Error{RecordType: rt, Err: fmt.Errorf("capability call failed: %w", err)}
	}
	extractionLatency.WithLabelValues(string(rt), status).Observe(time.Since(start).Seconds())

	candidates, err := e.parseCandidates(rt, resp.Text, existing)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	for _, c := range candidates {
		extractionCandidatesTotal.WithLabelValues(string(rt), string(c.Op)).Inc()
	}
	e.logger.Debug("extraction complete",
		"record_type", string(rt),
		"candidates", len(candidates),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)
	return candidates, nil
}

func (e *Engine) buildInstruction(rt schema.RecordType, existing Existing) (string, error) {
	doc, err := schema.Document(rt)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(instructionHeader)
	sb.WriteString("\n\nThe following data schema is the complete schema for the required information:\n\n<StructuredOutput>\n")
	sb.Write(doc)
	sb.WriteString("\n</StructuredOutput>\n")

	if len(existing.Data) > 0 && !bytes.Equal(bytes.TrimSpace(existing.Data), []byte("{}")) {
		sb.WriteString("\nThe existing data below has already been collected. Use it to guide the extraction, aware of what is already known and what is still missing:\n")
		sb.Write(existing.Data)
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(instructionOutput)
	return sb.String(), nil
}

func (e *Engine) parseCandidates(rt schema.RecordType, raw string, existing Existing) ([]Candidate, error) {
	jsonText := extractJSONObject(stripCodeFence(raw))

	var envelope struct {
		Extractions []struct {
			Operation  string          `json:"operation"`
			DocumentID string          `json:"document_id"`
			Record     json.RawMessage `json:"record"`
		} `json:"extractions"`
	}
	if err := json.Unmarshal([]byte(jsonText), &envelope); err != nil {
		return nil, &Error{RecordType: rt, Raw: raw, Err: fmt.Errorf("unparseable output: %w", err)}
	}

	var candidates []Candidate
	for _, ext := range envelope.Extractions {
		record := bytes.TrimSpace(ext.Record)
		if len(record) == 0 || bytes.Equal(record, []byte("{}")) || bytes.Equal(record, []byte("null")) {
			continue
		}
		if err := schema.Validate(rt, record); err != nil {
			return nil, &Error{RecordType: rt, Raw: raw, Err: fmt.Errorf("schema-invalid output: %w", err)}
		}

		c := Candidate{Data: record, DocumentID: ext.DocumentID}
		switch strings.ToLower(strings.TrimSpace(ext.Operation)) {
		case "insert":
			c.Op = OpInsert
			if c.DocumentID == "" {
				c.DocumentID = e.newID()
			}
		default:
			// Absent an explicit signal the single existing document is
			// updated in place.
			c.Op = OpUpdate
			if c.DocumentID == "" {
				c.DocumentID = existing.DocumentID
			}
			if c.DocumentID == "" {
				c.Op = OpInsert
				c.DocumentID = e.newID()
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// renderTranscript flattens human and assistant turns into the transcript
// format the instruction promises. Tool turns never reach the model.
func renderTranscript(history []llm.ChatMessage) string {
	var sb strings.Builder
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case llm.ChatRoleUser:
			sb.WriteString("client: ")
		case llm.ChatRoleAssistant:
			sb.WriteString("case_manager: ")
		default:
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}

func stripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

func extractJSONObject(text string) string {
	if strings.HasPrefix(text, "{") {
		return text
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}
