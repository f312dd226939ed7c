package turn

// State is the coordinator's position in the user-then-assistant cycle.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateProcessingTranscript
	StateAwaitingAssistant
	StatePlayingAudio
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessingTranscript:
		return "processing_transcript"
	case StateAwaitingAssistant:
		return "awaiting_assistant"
	case StatePlayingAudio:
		return "playing_audio"
	}
	return "unknown"
}

// EventType enumerates everything that can move the coordinator.
type EventType int

const (
	// EventCaptureStart begins microphone capture (user initiated).
	EventCaptureStart EventType = iota
	// EventCaptureStop ends capture, user initiated or forced.
	EventCaptureStop
	// EventTranscriptDelta carries a partial speech-to-text fragment.
	EventTranscriptDelta
	// EventTranscriptCompleted is the provider's completion signal for the
	// user's utterance, carrying the final text if the provider has one.
	EventTranscriptCompleted
	// EventAssistantTextDelta carries a fragment of the assistant reply.
	EventAssistantTextDelta
	// EventAssistantAudioDelta carries raw PCM for the assistant reply.
	EventAssistantAudioDelta
	// EventAssistantDone marks the assistant turn complete.
	EventAssistantDone
	// EventPlaybackFinished and EventPlaybackError end playback.
	EventPlaybackFinished
	EventPlaybackError
	// EventTransportFatal is an unrecoverable transport error; everything
	// tears down and a fresh connection cycle is required.
	EventTransportFatal
)

func (e EventType) String() string {
	switch e {
	case EventCaptureStart:
		return "capture_start"
	case EventCaptureStop:
		return "capture_stop"
	case EventTranscriptDelta:
		return "transcript_delta"
	case EventTranscriptCompleted:
		return "transcript_completed"
	case EventAssistantTextDelta:
		return "assistant_text_delta"
	case EventAssistantAudioDelta:
		return "assistant_audio_delta"
	case EventAssistantDone:
		return "assistant_done"
	case EventPlaybackFinished:
		return "playback_finished"
	case EventPlaybackError:
		return "playback_error"
	case EventTransportFatal:
		return "transport_fatal"
	}
	return "unknown"
}

// Event is one occurrence delivered to the coordinator. Text carries
// transcript or assistant fragments, Audio carries raw PCM frames, Err rides
// along on error-class events.
type Event struct {
	Type  EventType
	Text  string
	Audio []byte
	Err   error
}
