package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TransportError is a failure talking to the realtime provider. Fatal errors
// (auth, quota) require a fresh connection cycle; everything else is
// recoverable within the session.
type TransportError struct {
	StatusCode int
	Body       string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("realtime provider returned %d: %s", e.StatusCode, e.Body)
}

// Fatal reports whether the failure is auth/quota class.
func (e *TransportError) Fatal() bool {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		return true
	}
	return false
}

// Config carries what the provider needs to scope a short-lived credential.
type Config struct {
	APIKey            string
	BaseURL           string
	Model             string
	Voice             string
	InputAudioFormat  string
	OutputAudioFormat string
	VADThreshold      float64
	VADSilenceMs      int
	Timeout           time.Duration
}

// Enabled reports whether the required provider settings are present.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.APIKey) != "" && strings.TrimSpace(c.Model) != ""
}

// Service mints ephemeral realtime credentials. It is pure forwarding: the
// provider's JSON response goes back to the caller verbatim.
type Service struct {
	config Config
	client *http.Client
}

// NewService returns a credential service over cfg.
func NewService(cfg Config) (*Service, error) {
	if !cfg.Enabled() {
		return nil, errors.New("realtime credential config is missing API key or model")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Service{
		config: cfg,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Mint exchanges the long-lived API key for a short-lived session credential.
func (s *Service) Mint(ctx context.Context) (json.RawMessage, error) {
	payload := map[string]any{
		"model": s.config.Model,
	}
	if s.config.Voice != "" {
		payload["voice"] = s.config.Voice
	}
	if s.config.InputAudioFormat != "" {
		payload["input_audio_format"] = s.config.InputAudioFormat
	}
	if s.config.OutputAudioFormat != "" {
		payload["output_audio_format"] = s.config.OutputAudioFormat
	}
	if s.config.VADThreshold > 0 || s.config.VADSilenceMs > 0 {
		vad := map[string]any{"type": "server_vad"}
		if s.config.VADThreshold > 0 {
			vad["threshold"] = s.config.VADThreshold
		}
		if s.config.VADSilenceMs > 0 {
			vad["silence_duration_ms"] = s.config.VADSilenceMs
		}
		payload["turn_detection"] = vad
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode session request: %w", err)
	}

	url := strings.TrimRight(s.config.BaseURL, "/") + "/realtime/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build session request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request session credential: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read session response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &TransportError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	return json.RawMessage(respBody), nil
}
