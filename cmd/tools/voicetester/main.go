// Command voicetester drives the turn coordinator against a live realtime
// endpoint from the terminal. It is a manual debugging harness: provider
// events flow through the same state machine the browser client uses, and
// any assistant audio is written out as playable WAV files.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/yikzhou/voicebridge/backend/internal/config"
	"github.com/yikzhou/voicebridge/backend/internal/realtime"
	"github.com/yikzhou/voicebridge/backend/internal/turn"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] no .env file, using system environment: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	if !cfg.Realtime.Enabled() {
		log.Fatal("realtime provider not configured, set OPENAI_API_KEY and REALTIME_MODEL")
	}

	endpoint := flag.String("endpoint", "wss://api.openai.com/v1/realtime", "realtime websocket endpoint")
	outDir := flag.String("out", ".", "directory for assistant audio WAV files")
	timeout := flag.Duration("timeout", 120*time.Second, "total session duration")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sink := &printSink{outDir: *outDir}
	coordinator := turn.NewCoordinator(sink,
		turn.WithSilenceTimeout(cfg.Turn.SilenceTimeout),
		turn.WithAudioFormat(cfg.Turn.SampleRate, 1, 16),
	)
	sink.coordinator = coordinator

	client := realtime.NewClient(*endpoint, cfg.Realtime.APIKey, cfg.Realtime.Model, nil)
	if err := client.Connect(ctx); err != nil {
		log.Fatalf("realtime connect failed: %v", err)
	}
	defer client.Close()

	coordinator.Reset()
	log.Printf("connected, relaying events until timeout or fatal error")

	for event := range client.Events() {
		dispatch(coordinator, event)
	}
	log.Printf("event stream closed, final state=%s", coordinator.State())
}

// dispatch maps provider events onto coordinator events.
func dispatch(c *turn.Coordinator, event realtime.ServerEvent) {
	switch event.Type {
	case realtime.EventTypeSpeechStarted:
		c.Handle(turn.Event{Type: turn.EventCaptureStart})
	case realtime.EventTypeSpeechStopped:
		c.Handle(turn.Event{Type: turn.EventCaptureStop})
	case realtime.EventTypeTranscriptDelta:
		c.Handle(turn.Event{Type: turn.EventTranscriptDelta, Text: event.Delta})
	case realtime.EventTypeTranscriptCompleted:
		c.Handle(turn.Event{Type: turn.EventTranscriptCompleted, Text: event.Transcript})
	case realtime.EventTypeResponseTextDelta:
		c.Handle(turn.Event{Type: turn.EventAssistantTextDelta, Text: event.Delta})
	case realtime.EventTypeResponseAudioDelta:
		pcm, err := base64.StdEncoding.DecodeString(event.Delta)
		if err != nil {
			log.Printf("[voicetester] dropping undecodable audio delta: %v", err)
			return
		}
		c.Handle(turn.Event{Type: turn.EventAssistantAudioDelta, Audio: pcm})
	case realtime.EventTypeResponseDone:
		c.Handle(turn.Event{Type: turn.EventAssistantDone})
	case realtime.EventTypeError:
		if event.Error != nil && event.Error.Fatal() {
			c.Handle(turn.Event{Type: turn.EventTransportFatal, Err: event.Error})
			return
		}
		log.Printf("[voicetester] recoverable provider error: %v", event.Error)
	default:
		log.Printf("[voicetester] unhandled event type: %s", event.Type)
	}
}

// printSink logs transcripts and saves audio; playback "finishes" as soon as
// the file is on disk.
type printSink struct {
	outDir      string
	coordinator *turn.Coordinator
}

func (s *printSink) SubmitUserTranscript(text string) {
	log.Printf("user: %s", text)
}

func (s *printSink) SubmitAssistantTranscript(text string) {
	log.Printf("assistant: %s", text)
}

func (s *printSink) PlayAudio(wav []byte) error {
	path := filepath.Join(s.outDir, fmt.Sprintf("assistant-%d.wav", time.Now().Unix()))
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		return err
	}
	log.Printf("assistant audio written to %s (%d bytes)", path, len(wav))

	s.coordinator.Handle(turn.Event{Type: turn.EventPlaybackFinished})
	return nil
}
