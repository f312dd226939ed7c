package toolcall_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/yikzhou/voicebridge/backend/internal/store"
	"github.com/yikzhou/voicebridge/backend/internal/toolcall"
)

// runCalls feeds request lines through a server and returns one decoded
// response per line written.
func runCalls(t *testing.T, s *store.FileStore, lines ...string) []toolcall.Response {
	t.Helper()

	srv, err := toolcall.NewServer(s)
	if err != nil {
		t.Fatalf("NewServer err: %v", err)
	}

	input := strings.NewReader(strings.Join(lines, "\n") + "\n")
	var output bytes.Buffer
	if err := srv.Serve(context.Background(), input, &output); err != nil {
		t.Fatalf("Serve err: %v", err)
	}

	var responses []toolcall.Response
	scanner := bufio.NewScanner(&output)
	for scanner.Scan() {
		var resp toolcall.Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			t.Fatalf("decode response line %q: %v", scanner.Text(), err)
		}
		responses = append(responses, resp)
	}
	return responses
}

func newStore(t *testing.T) *store.FileStore {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}
	return s
}

func TestServerSessionLifecycle(t *testing.T) {
	s := newStore(t)

	responses := runCalls(t, s, `{"id":1,"tool":"start_session"}`)
	if len(responses) != 1 || responses[0].IsError {
		t.Fatalf("start_session failed: %+v", responses)
	}

	var started struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(responses[0].Result, &started); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if started.SessionID == "" {
		t.Fatal("expected a session id")
	}

	id := started.SessionID
	responses = runCalls(t, s,
		fmt.Sprintf(`{"id":2,"tool":"append_message","arguments":{"sessionId":%q,"role":"user","content":"hi"}}`, id),
		fmt.Sprintf(`{"id":3,"tool":"append_message","arguments":{"sessionId":%q,"role":"assistant","content":"hello"}}`, id),
		fmt.Sprintf(`{"id":4,"tool":"read_transcript","arguments":{"sessionId":%q}}`, id),
		fmt.Sprintf(`{"id":5,"tool":"end_session","arguments":{"sessionId":%q}}`, id),
	)
	for _, resp := range responses {
		if resp.IsError {
			t.Fatalf("call %d failed: %s", resp.ID, resp.Error)
		}
	}

	var read struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.Unmarshal(responses[2].Result, &read); err != nil {
		t.Fatalf("decode transcript: %v", err)
	}
	if len(read.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(read.Messages))
	}
	if read.Messages[0].Role != "user" || read.Messages[0].Content != "hi" {
		t.Fatalf("unexpected first message: %+v", read.Messages[0])
	}
	if read.Messages[1].Role != "assistant" || read.Messages[1].Content != "hello" {
		t.Fatalf("unexpected second message: %+v", read.Messages[1])
	}
}

func TestServerAppendUnknownSession(t *testing.T) {
	responses := runCalls(t, newStore(t),
		`{"id":1,"tool":"append_message","arguments":{"sessionId":"nope","role":"user","content":"x"}}`)

	if len(responses) != 1 {
		t.Fatalf("expected 1 response, got %d", len(responses))
	}
	if !responses[0].IsError {
		t.Fatal("expected an error response")
	}
	if !strings.Contains(responses[0].Error, "session not found") {
		t.Fatalf("expected not-found error, got %q", responses[0].Error)
	}
}

func TestServerRejectsInvalidInput(t *testing.T) {
	s := newStore(t)

	cases := []struct {
		name string
		line string
	}{
		{"bad role", `{"id":1,"tool":"append_message","arguments":{"sessionId":"abc","role":"robot","content":"x"}}`},
		{"missing session id", `{"id":2,"tool":"append_message","arguments":{"role":"user","content":"x"}}`},
		{"empty content", `{"id":3,"tool":"append_note","arguments":{"sessionId":"abc","content":"  "}}`},
		{"path-escaping id", `{"id":4,"tool":"read_transcript","arguments":{"sessionId":"../etc"}}`},
		{"unknown tool", `{"id":5,"tool":"drop_tables"}`},
		{"malformed json", `{"id":6,`},
	}

	for _, tc := range cases {
		responses := runCalls(t, s, tc.line)
		if len(responses) != 1 || !responses[0].IsError {
			t.Fatalf("%s: expected error response, got %+v", tc.name, responses)
		}
	}
}

func TestServerListSessions(t *testing.T) {
	s := newStore(t)

	responses := runCalls(t, s,
		`{"id":1,"tool":"start_session"}`,
		`{"id":2,"tool":"start_session"}`,
		`{"id":3,"tool":"list_sessions"}`,
	)
	if len(responses) != 3 {
		t.Fatalf("expected 3 responses, got %d", len(responses))
	}

	var listed struct {
		Sessions []string `json:"sessions"`
	}
	if err := json.Unmarshal(responses[2].Result, &listed); err != nil {
		t.Fatalf("decode list result: %v", err)
	}
	if len(listed.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %v", listed.Sessions)
	}
}
