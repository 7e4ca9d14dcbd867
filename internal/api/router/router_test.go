package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/atulwalsh/legal-intake-ai/internal/session"
	"github.com/atulwalsh/legal-intake-ai/pkg/logging"
)

type stubService struct{}

func (stubService) StartSession(context.Context, session.StartRequest) (*session.Response, error) {
	return &session.Response{CaseID: "case-1", Message: "welcome", State: session.StateConversing}, nil
}

func (stubService) HandleMessage(_ context.Context, req session.MessageRequest) (*session.Response, error) {
	return &session.Response{CaseID: req.CaseID, Message: "ok", State: session.StateConversing}, nil
}

func (stubService) HandleUpload(_ context.Context, req session.UploadRequest) (*session.Response, error) {
	return &session.Response{CaseID: req.CaseID, State: session.StateConversing}, nil
}

func (stubService) SessionState(_ context.Context, caseID string) (*session.SessionState, error) {
	return &session.SessionState{CaseID: caseID}, nil
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	logger := logging.Default()
	handler := session.NewHandler(stubService{}, 0, logger)
	return New(&Config{
		Logger:         logger,
		SessionHandler: handler,
	})
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterStartSessionRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rr.Code)
	}
}

func TestRouterMessageRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/sessions/case-1/messages", strings.NewReader(`{"text":"hello"}`))
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp session.Response
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.CaseID != "case-1" {
		t.Errorf("expected case-1, got %q", resp.CaseID)
	}
}

func TestRouterStateRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/sessions/case-1", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, rr.Code)
	}
}
