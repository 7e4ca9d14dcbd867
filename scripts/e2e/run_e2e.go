// Package main runs E2E smoke tests of the intake interview flow against a
// running API server.
//
// Scenarios:
//   - Session start returns the legal disclaimer
//   - Conversational turn gets a follow-up question
//   - Document upload is acknowledged per file
//   - Termination token closes the interview
//   - Closed sessions absorb further messages
//
// Usage:
//
//	API_BASE_URL=http://localhost:8080 go run scripts/e2e/run_e2e.go [scenario-name]
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"
	"time"
)

type sessionResponse struct {
	CaseID  string `json:"case_id"`
	Message string `json:"message"`
	State   string `json:"state"`
	Error   string `json:"error,omitempty"`
	Files   []struct {
		FileID   string `json:"file_id,omitempty"`
		FileName string `json:"file_name"`
		Error    string `json:"error,omitempty"`
	} `json:"files,omitempty"`
}

type scenario struct {
	name string
	run  func(c *client) error
}

func main() {
	baseURL := os.Getenv("API_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	c := &client{baseURL: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 90 * time.Second}}

	scenarios := []scenario{
		{"disclaimer-first", runDisclaimerFirst},
		{"conversation-turn", runConversationTurn},
		{"document-upload", runDocumentUpload},
		{"termination", runTermination},
	}

	only := ""
	if len(os.Args) > 1 {
		only = os.Args[1]
	}

	failed := 0
	for _, s := range scenarios {
		if only != "" && s.name != only {
			continue
		}
		fmt.Printf("=== %s\n", s.name)
		if err := s.run(c); err != nil {
			failed++
			fmt.Printf("    FAIL: %v\n", err)
			continue
		}
		fmt.Println("    OK")
	}
	if failed > 0 {
		os.Exit(1)
	}
}

type client struct {
	baseURL string
	http    *http.Client
}

func (c *client) start() (*sessionResponse, error) {
	return c.postJSON("/sessions", map[string]any{})
}

func (c *client) message(caseID, text string) (*sessionResponse, error) {
	return c.postJSON("/sessions/"+caseID+"/messages", map[string]any{"text": text})
}

func (c *client) upload(caseID, name, contentType string, data []byte) (*sessionResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="files"; filename="`+name+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	resp, err := c.http.Post(c.baseURL+"/sessions/"+caseID+"/uploads", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	return decode(resp)
}

func (c *client) postJSON(path string, payload any) (*sessionResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	return decode(resp)
}

func decode(resp *http.Response) (*sessionResponse, error) {
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	var out sessionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

func runDisclaimerFirst(c *client) error {
	resp, err := c.start()
	if err != nil {
		return err
	}
	if resp.CaseID == "" {
		return fmt.Errorf("expected a case id")
	}
	if !strings.Contains(resp.Message, "LEGAL DISCLAIMER") {
		return fmt.Errorf("expected disclaimer, got %q", truncate(resp.Message))
	}
	return nil
}

func runConversationTurn(c *client) error {
	start, err := c.start()
	if err != nil {
		return err
	}
	resp, err := c.message(start.CaseID, "I slipped on an icy sidewalk outside a grocery store last Tuesday.")
	if err != nil {
		return err
	}
	if resp.Message == "" {
		return fmt.Errorf("expected a conversational reply")
	}
	if resp.State == "terminated" {
		return fmt.Errorf("turn must not terminate the interview")
	}
	return nil
}

func runDocumentUpload(c *client) error {
	start, err := c.start()
	if err != nil {
		return err
	}
	note := []byte("Patient seen for wrist pain after a fall. X-ray shows a distal radius fracture.")
	resp, err := c.upload(start.CaseID, "medical_note.txt", "text/plain", note)
	if err != nil {
		return err
	}
	if len(resp.Files) != 1 {
		return fmt.Errorf("expected one file status, got %d", len(resp.Files))
	}
	if resp.Files[0].Error != "" {
		return fmt.Errorf("file rejected: %s", resp.Files[0].Error)
	}
	return nil
}

func runTermination(c *client) error {
	start, err := c.start()
	if err != nil {
		return err
	}
	resp, err := c.message(start.CaseID, "quit")
	if err != nil {
		return err
	}
	if resp.State != "terminated" {
		return fmt.Errorf("expected terminated state, got %q", resp.State)
	}
	// A closed interview absorbs anything that follows.
	after, err := c.message(start.CaseID, "hello again")
	if err != nil {
		return err
	}
	if after.State != "terminated" {
		return fmt.Errorf("expected closed session to stay terminated, got %q", after.State)
	}
	return nil
}

func truncate(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
