package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/atulwalsh/legal-intake-ai/internal/intake"
	"github.com/atulwalsh/legal-intake-ai/internal/llm"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

const analyzerPrompt = `You review documents gathered during a legal case intake.
Given the text content of one uploaded file, write a short analysis of what the document is and which details in it are relevant to evaluating the client's case.
Mention dates, parties, amounts and medical findings when present. Do not invent details that are not in the text. Respond with the analysis only.`

// Analyzer fills FileRecord.FileAnalysis in a pass independent of ingestion.
type Analyzer struct {
	client llm.Client
	model  string
	logger *logging.Logger
}

type AnalyzerOption func(*Analyzer)

func WithAnalyzerModel(model string) AnalyzerOption {
	return func(a *Analyzer) { a.model = model }
}

func WithAnalyzerLogger(logger *logging.Logger) AnalyzerOption {
	return func(a *Analyzer) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAnalyzer(client llm.Client, opts ...AnalyzerOption) *Analyzer {
	if client == nil {
		panic("ingest: llm client is required")
	}
	a := &Analyzer{client: client, logger: logging.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze returns the analysis text for one file record. Files with no
// extracted text get a fixed note instead of a capability call.
func (a *Analyzer) Analyze(ctx context.Context, record intake.FileRecord) (string, error) {
	if strings.TrimSpace(record.FileContents) == "" {
		return "No readable text was found in this file.", nil
	}

	resp, err := a.client.Complete(ctx, llm.Request{
		Model:  a.model,
		System: []string{analyzerPrompt},
		Messages: []llm.ChatMessage{{
			Role:    llm.ChatRoleUser,
			Content: fmt.Sprintf("File name: %s\nFile type: %s\n\n%s", record.FileName, record.FileType, record.FileContents),
		}},
		MaxTokens:   1024,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("ingest: analyze %s: %w", record.FileID, err)
	}

	a.logger.Debug("analyzed file", "file_id", record.FileID, "output_tokens", resp.Usage.OutputTokens)
	return strings.TrimSpace(resp.Text), nil
}
