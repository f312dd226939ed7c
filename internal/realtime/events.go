package realtime

import "encoding/json"

// ServerEvent is one typed event from the realtime provider. Only the fields
// this backend consumes are decoded; everything else stays in Raw.
type ServerEvent struct {
	Type       string          `json:"type"`
	Delta      string          `json:"delta,omitempty"`
	Transcript string          `json:"transcript,omitempty"`
	Error      *APIError       `json:"error,omitempty"`
	Raw        json.RawMessage `json:"-"`
}

// APIError is the provider's error payload.
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Fatal reports whether the error ends the session: auth, quota, or a lost
// connection cannot be recovered without a fresh connection cycle. Request
// errors (a malformed client event) are not fatal; the session survives them.
func (e *APIError) Fatal() bool {
	switch e.Code {
	case "invalid_api_key", "token_expired":
		return true
	case "insufficient_quota", "rate_limit_exceeded":
		return true
	case "session_expired", "connection_closed":
		return true
	}
	return false
}

// Event type values the coordinator cares about.
const (
	EventTypeTranscriptDelta     = "conversation.item.input_audio_transcription.delta"
	EventTypeTranscriptCompleted = "conversation.item.input_audio_transcription.completed"
	EventTypeResponseTextDelta   = "response.audio_transcript.delta"
	EventTypeResponseAudioDelta  = "response.audio.delta"
	EventTypeResponseDone        = "response.done"
	EventTypeSpeechStarted       = "input_audio_buffer.speech_started"
	EventTypeSpeechStopped       = "input_audio_buffer.speech_stopped"
	EventTypeError               = "error"
)
