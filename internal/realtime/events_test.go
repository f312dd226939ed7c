package realtime_test

import (
	"testing"

	"github.com/yikzhou/voicebridge/backend/internal/realtime"
)

func TestAPIErrorFatalClassification(t *testing.T) {
	cases := []struct {
		code  string
		fatal bool
	}{
		{"invalid_api_key", true},
		{"token_expired", true},
		{"insufficient_quota", true},
		{"rate_limit_exceeded", true},
		{"session_expired", true},
		{"connection_closed", true},
		// A malformed client event is recoverable within the session.
		{"invalid_request_error", false},
		{"server_error", false},
		{"", false},
	}

	for _, tc := range cases {
		err := &realtime.APIError{Code: tc.code, Message: "x"}
		if got := err.Fatal(); got != tc.fatal {
			t.Errorf("code %q: Fatal() = %v, want %v", tc.code, got, tc.fatal)
		}
	}
}
