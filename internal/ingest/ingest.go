// Package ingest converts uploaded files into text-bearing file records.
// Persistence and extraction over the text are the caller's concern.
package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"

	"github.com/atulwalsh/legal-intake-ai/internal/intake"
	"github.com/atulwalsh/legal-intake-ai/internal/llm"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

// ErrDecode reports a non-text upload declared as text.
var ErrDecode = errors.New("ingest: bytes are not valid utf-8 text")

// Upload is one raw file handed to the pipeline.
type Upload struct {
	Name string
	MIME string
	Data []byte
}

// Result pairs one upload with its outcome. Err is per-file; a failed file
// never disturbs its siblings.
type Result struct {
	Record intake.FileRecord
	Err    error
}

// Pipeline turns uploads into populated file records. FileAnalysis stays
// empty here; Analyzer fills it in a separate pass.
type Pipeline struct {
	images llm.ImageReader
	logger *logging.Logger
	newID  func() string
	now    func() time.Time
}

type PipelineOption func(*Pipeline)

func WithPipelineLogger(logger *logging.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

func WithIDGenerator(fn func() string) PipelineOption {
	return func(p *Pipeline) {
		if fn != nil {
			p.newID = fn
		}
	}
}

func WithClock(fn func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		if fn != nil {
			p.now = fn
		}
	}
}

func NewPipeline(images llm.ImageReader, opts ...PipelineOption) *Pipeline {
	if images == nil {
		panic("ingest: image reader is required")
	}
	p := &Pipeline{
		images: images,
		logger: logging.Default(),
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Ingest converts one upload into a file record. An image with no legible
// text yields empty contents, not an error.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (intake.FileRecord, error) {
	record := intake.FileRecord{
		FileID:     p.newID(),
		FileType:   up.MIME,
		FileName:   up.Name,
		FileSize:   int64(len(up.Data)),
		FileLabel:  labelFor(up.Name),
		UploadedAt: p.now().UTC(),
	}

	var (
		text string
		err  error
	)
	switch {
	case strings.HasPrefix(up.MIME, "image/"):
		text, err = p.images.ReadImageText(ctx, up.Data, up.MIME)
		if err != nil {
			return intake.FileRecord{}, fmt.Errorf("ingest: read image %s: %w", up.Name, err)
		}
	case up.MIME == "application/pdf":
		text = p.extractPDFText(up)
	default:
		if !utf8.Valid(up.Data) {
			return intake.FileRecord{}, fmt.Errorf("ingest: file %s: %w", up.Name, ErrDecode)
		}
		text = string(up.Data)
	}

	record.FileContents = text
	p.logger.Debug("ingested file",
		"file_id", record.FileID,
		"file_name", record.FileName,
		"file_type", record.FileType,
		"text_len", len(record.FileContents),
	)
	return record, nil
}

// IngestBatch processes uploads concurrently. Results are index-aligned with
// the input so callers can report per-file outcomes in order.
func (p *Pipeline) IngestBatch(ctx context.Context, uploads []Upload) []Result {
	results := make([]Result, len(uploads))
	var wg sync.WaitGroup
	for i, up := range uploads {
		wg.Add(1)
		go func(i int, up Upload) {
			defer wg.Done()
			record, err := p.Ingest(ctx, up)
			results[i] = Result{Record: record, Err: err}
		}(i, up)
	}
	wg.Wait()
	return results
}

// extractPDFText walks pages in order. A page that fails to render degrades
// to whatever text came before it; a document with no text layer yields "".
func (p *Pipeline) extractPDFText(up Upload) string {
	reader, err := pdf.NewReader(bytes.NewReader(up.Data), int64(len(up.Data)))
	if err != nil {
		p.logger.Warn("unreadable pdf, treating as empty", "file_name", up.Name, "error", err)
		return ""
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			p.logger.Warn("pdf page extraction failed, keeping partial text",
				"file_name", up.Name, "page", i, "error", err)
			continue
		}
		sb.WriteString(text)
	}
	return sb.String()
}

func labelFor(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
