// Package archive persists durable interview transcripts to Postgres.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/atulwalsh/legal-intake-ai/internal/session"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

// PgxPool is the subset of pgxpool.Pool the store needs.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// TranscriptStore keeps one row per case with the full message sequence
// as jsonb. Each archive call replaces the previous snapshot, so the row
// always reflects the latest completed turn.
type TranscriptStore struct {
	pool   PgxPool
	logger *logging.Logger
}

var _ session.TranscriptArchiver = (*TranscriptStore)(nil)

func NewTranscriptStore(pool PgxPool, logger *logging.Logger) *TranscriptStore {
	if pool == nil {
		panic("archive: pgx pool cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &TranscriptStore{pool: pool, logger: logger}
}

// Archive upserts the transcript snapshot for a case.
func (s *TranscriptStore) Archive(ctx context.Context, caseID string, messages []session.Message) error {
	if caseID == "" {
		return errors.New("archive: caseID required")
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("archive: marshal transcript: %w", err)
	}

	now := time.Now().UTC()
	if _, execErr := s.pool.Exec(ctx, `
		INSERT INTO intake_transcripts (case_id, messages, message_count, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (case_id) DO UPDATE
		SET messages = EXCLUDED.messages,
		    message_count = EXCLUDED.message_count,
		    updated_at = EXCLUDED.updated_at
	`, caseID, payload, len(messages), now); execErr != nil {
		return fmt.Errorf("archive: failed to persist transcript for case %s: %w", caseID, execErr)
	}

	s.logger.Debug("transcript archived", "case_id", caseID, "messages", len(messages))
	return nil
}

// Load returns the archived transcript for a case, or nil when none exists.
func (s *TranscriptStore) Load(ctx context.Context, caseID string) ([]session.Message, error) {
	if caseID == "" {
		return nil, errors.New("archive: caseID required")
	}

	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT messages FROM intake_transcripts WHERE case_id = $1
	`, caseID).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("archive: failed to load transcript for case %s: %w", caseID, err)
	}

	var messages []session.Message
	if err := json.Unmarshal(payload, &messages); err != nil {
		return nil, fmt.Errorf("archive: decode transcript for case %s: %w", caseID, err)
	}
	return messages, nil
}
