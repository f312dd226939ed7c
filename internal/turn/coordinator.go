package turn

import (
	"bytes"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/yikzhou/voicebridge/backend/internal/audio"
)

// DefaultSilenceTimeout is the quiet period after which a non-empty partial
// transcript is treated as final. The provider's own completion signal cannot
// be relied on to arrive, so this heuristic fallback is inherently racy
// against it; the value is tunable, not a correctness guarantee.
const DefaultSilenceTimeout = 900 * time.Millisecond

// Sink receives the coordinator's outputs: finalized transcripts for storage
// and assembled audio for playback. Callbacks are invoked outside the
// coordinator's lock, so a Sink may call Handle synchronously from inside
// them (a PlayAudio that finishes immediately, for example).
type Sink interface {
	SubmitUserTranscript(text string)
	SubmitAssistantTranscript(text string)
	PlayAudio(wav []byte) error
}

// Coordinator serializes one user-utterance-then-assistant-response cycle.
// It owns all turn state; handlers re-check the current state before acting
// because the transport may deliver events out of correspondence with user
// actions (a stale completion after a reset, late audio for a dead turn).
// Events arrive from both the transport goroutine and the silence timer, so a
// mutex guards every transition.
type Coordinator struct {
	mu    sync.Mutex
	state State

	partial       strings.Builder // user speech-to-text deltas
	assistantText strings.Builder
	assistantPCM  bytes.Buffer
	lastSubmitted string // immediately previous finalized transcript, for dedup

	silenceTimeout time.Duration
	silenceTimer   *time.Timer
	timerGen       uint64 // invalidates timers armed for earlier turns

	sampleRate    int
	channels      int
	bitsPerSample int

	sink  Sink
	table map[State]map[EventType]func(Event)

	// Sink calls queued by handlers while the lock is held, flushed by
	// Handle/onSilenceTimeout after it is released.
	pending []func()
}

// Option tunes a Coordinator.
type Option func(*Coordinator)

// WithSilenceTimeout overrides the quiet-period fallback.
func WithSilenceTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.silenceTimeout = d }
}

// WithAudioFormat sets the PCM format assistant audio deltas arrive in.
func WithAudioFormat(sampleRate, channels, bitsPerSample int) Option {
	return func(c *Coordinator) {
		c.sampleRate = sampleRate
		c.channels = channels
		c.bitsPerSample = bitsPerSample
	}
}

// NewCoordinator returns an idle coordinator feeding sink.
func NewCoordinator(sink Sink, opts ...Option) *Coordinator {
	c := &Coordinator{
		state:          StateIdle,
		silenceTimeout: DefaultSilenceTimeout,
		sampleRate:     24000,
		channels:       1,
		bitsPerSample:  16,
		sink:           sink,
	}
	for _, opt := range opts {
		opt(c)
	}

	// Transitions absent from this table are ignored no-ops. That covers the
	// edge cases directly: a second completion while awaiting the assistant,
	// and assistant events arriving after a forced reset.
	c.table = map[State]map[EventType]func(Event){
		StateIdle: {
			EventCaptureStart: c.startRecording,
		},
		StateRecording: {
			EventTranscriptDelta: c.accumulateTranscript,
			EventCaptureStop:     c.stopRecording,
		},
		StateProcessingTranscript: {
			EventTranscriptDelta:     c.accumulateTranscript,
			EventTranscriptCompleted: c.completeTranscript,
		},
		StateAwaitingAssistant: {
			EventAssistantTextDelta:  c.accumulateAssistantText,
			EventAssistantAudioDelta: c.accumulateAssistantAudio,
			EventAssistantDone:       c.finishAssistantTurn,
		},
		StatePlayingAudio: {
			EventPlaybackFinished: c.finishPlayback,
			EventPlaybackError:    c.failPlayback,
		},
	}
	return c
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Handle delivers one event. Illegal (state, event) pairs are discarded.
func (c *Coordinator) Handle(ev Event) {
	c.mu.Lock()

	// A fatal transport error tears everything down from any state.
	if ev.Type == EventTransportFatal {
		log.Printf("[turn] fatal transport error, forcing idle: %v", ev.Err)
		c.resetLocked()
		c.mu.Unlock()
		return
	}

	handler, ok := c.table[c.state][ev.Type]
	if !ok {
		log.Printf("[turn] ignoring %s in state %s", ev.Type, c.state)
		c.mu.Unlock()
		return
	}
	handler(ev)
	c.flushPending()
}

// flushPending releases the lock and runs the sink calls queued by the
// handler that just ran. Sinks may call Handle from inside a callback, so
// nothing here may hold c.mu.
func (c *Coordinator) flushPending() {
	queued := c.pending
	c.pending = nil
	c.mu.Unlock()

	for _, fn := range queued {
		fn()
	}
}

// Reset returns the coordinator to Idle and drops all buffered turn state.
// Called at connect and on teardown.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.lastSubmitted = ""
}

func (c *Coordinator) resetLocked() {
	c.state = StateIdle
	c.partial.Reset()
	c.assistantText.Reset()
	c.assistantPCM.Reset()
	c.stopSilenceTimerLocked()
}

func (c *Coordinator) startRecording(Event) {
	c.partial.Reset()
	c.state = StateRecording
}

func (c *Coordinator) accumulateTranscript(ev Event) {
	c.partial.WriteString(ev.Text)
	if c.state == StateProcessingTranscript {
		c.armSilenceTimerLocked()
	}
}

func (c *Coordinator) stopRecording(Event) {
	c.state = StateProcessingTranscript
	c.armSilenceTimerLocked()
}

func (c *Coordinator) completeTranscript(ev Event) {
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		text = strings.TrimSpace(c.partial.String())
	}
	c.finalizeTranscriptLocked(text)
}

// finalizeTranscriptLocked commits the user's utterance and moves to
// AwaitingAssistant. An empty finalized text means nothing was said; the turn
// is abandoned back to Idle.
func (c *Coordinator) finalizeTranscriptLocked(text string) {
	c.stopSilenceTimerLocked()
	c.partial.Reset()

	if text == "" {
		c.state = StateIdle
		return
	}

	// Exact-match dedup against only the immediately previous submission.
	// The first submission's response is still in flight, so the state
	// advances either way.
	if text != c.lastSubmitted {
		c.lastSubmitted = text
		c.pending = append(c.pending, func() { c.sink.SubmitUserTranscript(text) })
	} else {
		log.Printf("[turn] dropping duplicate transcript submission")
	}

	// New assistant response cycle: accumulators start clean.
	c.assistantText.Reset()
	c.assistantPCM.Reset()
	c.state = StateAwaitingAssistant
}

func (c *Coordinator) accumulateAssistantText(ev Event) {
	c.assistantText.WriteString(ev.Text)
}

func (c *Coordinator) accumulateAssistantAudio(ev Event) {
	c.assistantPCM.Write(ev.Audio)
}

func (c *Coordinator) finishAssistantTurn(Event) {
	if text := c.assistantText.String(); text != "" {
		c.pending = append(c.pending, func() { c.sink.SubmitAssistantTranscript(text) })
	}

	if c.assistantPCM.Len() == 0 {
		// Text-only or failed assistant turn: input unlocks immediately.
		c.state = StateIdle
		return
	}

	wav, err := audio.BuildWAV(c.assistantPCM.Bytes(), c.sampleRate, c.channels, c.bitsPerSample)
	c.assistantPCM.Reset()
	if err != nil {
		log.Printf("[turn] wav assembly failed: %v", err)
		c.state = StateIdle
		return
	}

	// Enter PlayingAudio before handing off; a rejected handoff comes back
	// through the normal playback-error transition.
	c.state = StatePlayingAudio
	c.pending = append(c.pending, func() {
		if err := c.sink.PlayAudio(wav); err != nil {
			c.Handle(Event{Type: EventPlaybackError, Err: err})
		}
	})
}

func (c *Coordinator) finishPlayback(Event) {
	c.state = StateIdle
}

func (c *Coordinator) failPlayback(ev Event) {
	log.Printf("[turn] playback error: %v", ev.Err)
	c.state = StateIdle
}

func (c *Coordinator) armSilenceTimerLocked() {
	c.stopSilenceTimerLocked()
	gen := c.timerGen
	c.silenceTimer = time.AfterFunc(c.silenceTimeout, func() {
		c.onSilenceTimeout(gen)
	})
}

func (c *Coordinator) stopSilenceTimerLocked() {
	c.timerGen++
	if c.silenceTimer != nil {
		c.silenceTimer.Stop()
		c.silenceTimer = nil
	}
}

// onSilenceTimeout fires on the timer goroutine; the generation check drops
// timers that were superseded before the lock was acquired.
func (c *Coordinator) onSilenceTimeout(gen uint64) {
	c.mu.Lock()

	if gen != c.timerGen || c.state != StateProcessingTranscript {
		c.mu.Unlock()
		return
	}

	text := strings.TrimSpace(c.partial.String())
	if text == "" {
		// Nothing heard: keep waiting for deltas or a completion signal.
		c.mu.Unlock()
		return
	}
	log.Printf("[turn] silence timeout, treating partial transcript as final")
	c.finalizeTranscriptLocked(text)
	c.flushPending()
}
