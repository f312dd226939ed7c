package credential_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/yikzhou/voicebridge/backend/internal/service/credential"
)

func TestMintForwardsConfigAndResponse(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"client_secret":{"value":"ek_test","expires_at":123}}`))
	}))
	defer srv.Close()

	svc, err := credential.NewService(credential.Config{
		APIKey:            "sk-test",
		BaseURL:           srv.URL,
		Model:             "realtime-demo",
		Voice:             "verse",
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
		VADThreshold:      0.5,
		VADSilenceMs:      600,
	})
	if err != nil {
		t.Fatalf("NewService err: %v", err)
	}

	raw, err := svc.Mint(context.Background())
	if err != nil {
		t.Fatalf("Mint err: %v", err)
	}

	if gotPath != "/realtime/sessions" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotAuth != "Bearer sk-test" {
		t.Fatalf("unexpected auth header: %s", gotAuth)
	}
	if gotBody["model"] != "realtime-demo" || gotBody["voice"] != "verse" {
		t.Fatalf("request body missing config: %v", gotBody)
	}
	vad, ok := gotBody["turn_detection"].(map[string]any)
	if !ok || vad["type"] != "server_vad" {
		t.Fatalf("missing turn_detection: %v", gotBody)
	}

	// The provider response comes back verbatim.
	var parsed struct {
		ClientSecret struct {
			Value string `json:"value"`
		} `json:"client_secret"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("response not forwarded verbatim: %v", err)
	}
	if parsed.ClientSecret.Value != "ek_test" {
		t.Fatalf("unexpected credential: %s", parsed.ClientSecret.Value)
	}
}

func TestMintClassifiesProviderErrors(t *testing.T) {
	cases := []struct {
		status int
		fatal  bool
	}{
		{http.StatusUnauthorized, true},
		{http.StatusForbidden, true},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, false},
		{http.StatusBadGateway, false},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "provider says no", tc.status)
		}))

		svc, err := credential.NewService(credential.Config{APIKey: "sk", BaseURL: srv.URL, Model: "m"})
		if err != nil {
			t.Fatalf("NewService err: %v", err)
		}

		_, err = svc.Mint(context.Background())
		srv.Close()

		var terr *credential.TransportError
		if !errors.As(err, &terr) {
			t.Fatalf("status %d: expected TransportError, got %v", tc.status, err)
		}
		if terr.StatusCode != tc.status {
			t.Fatalf("status %d: got %d", tc.status, terr.StatusCode)
		}
		if terr.Fatal() != tc.fatal {
			t.Fatalf("status %d: Fatal()=%v want %v", tc.status, terr.Fatal(), tc.fatal)
		}
	}
}

func TestNewServiceRequiresKeyAndModel(t *testing.T) {
	if _, err := credential.NewService(credential.Config{Model: "m"}); err == nil {
		t.Fatal("expected error without API key")
	}
	if _, err := credential.NewService(credential.Config{APIKey: "sk"}); err == nil {
		t.Fatal("expected error without model")
	}
}
