package transcripts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/yikzhou/voicebridge/backend/internal/model/transcript"
	"github.com/yikzhou/voicebridge/backend/internal/store"
)

func setupRouter(t *testing.T) (*chi.Mux, *store.FileStore) {
	t.Helper()

	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}

	r := chi.NewRouter()
	New(st).RegisterRoutes(r)
	return r, st
}

func TestReadTranscript(t *testing.T) {
	r, st := setupRouter(t)
	ctx := context.Background()

	id, err := st.Create(ctx)
	if err != nil {
		t.Fatalf("Create err: %v", err)
	}
	if err := st.Append(ctx, id, transcript.Message{Role: transcript.RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/transcripts/"+id, nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		SessionID string               `json:"sessionId"`
		Messages  []transcript.Message `json:"messages"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.SessionID != id || len(body.Messages) != 1 || body.Messages[0].Content != "hi" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestReadUnknownTranscript(t *testing.T) {
	r, _ := setupRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/transcripts/missing", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestListTranscripts(t *testing.T) {
	r, st := setupRouter(t)

	if _, err := st.Create(context.Background()); err != nil {
		t.Fatalf("Create err: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/transcripts", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Sessions []string `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %v", body.Sessions)
	}
}
