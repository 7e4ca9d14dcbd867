package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const sessionTTL = 24 * time.Hour

// StateStore keeps SessionState in Redis so a session survives process
// restarts within its TTL.
type StateStore struct {
	redis  *redis.Client
	tracer trace.Tracer
}

func NewStateStore(client *redis.Client) *StateStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	return &StateStore{
		redis:  client,
		tracer: otel.Tracer("legalintake.internal.session.state"),
	}
}

func (s *StateStore) Save(ctx context.Context, state *SessionState) error {
	ctx, span := s.tracer.Start(ctx, "session.save_state")
	defer span.End()

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal state: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(state.CaseID), data, sessionTTL).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist state: %w", err)
	}
	return nil
}

// Load returns (nil, nil) for an unknown case id.
func (s *StateStore) Load(ctx context.Context, caseID string) (*SessionState, error) {
	ctx, span := s.tracer.Start(ctx, "session.load_state")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(caseID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load state: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode state: %w", err)
	}
	return &state, nil
}

func sessionKey(caseID string) string {
	return fmt.Sprintf("session:%s", caseID)
}
