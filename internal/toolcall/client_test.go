package toolcall

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/yikzhou/voicebridge/backend/internal/model/transcript"
	"github.com/yikzhou/voicebridge/backend/internal/store"
)

// pipeClient wires a client to raw in-memory pipes so tests can stand in for
// the tool-server subprocess.
func pipeClient(t *testing.T) (*Client, *io.PipeReader, *io.PipeWriter) {
	t.Helper()

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	c := newClient(reqW, respR)
	t.Cleanup(func() {
		c.Close()
		reqR.Close()
		respW.Close()
	})
	return c, reqR, respW
}

// writeResponse may run on a responder goroutine, so it reports rather than
// aborts.
func writeResponse(t *testing.T, w io.Writer, resp Response) {
	t.Helper()
	line, err := json.Marshal(resp)
	if err != nil {
		t.Errorf("marshal response: %v", err)
		return
	}
	if _, err := w.Write(append(line, '\n')); err != nil {
		t.Errorf("write response: %v", err)
	}
}

func TestClientRoundTrip(t *testing.T) {
	c, reqR, respW := pipeClient(t)

	st, err := store.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore err: %v", err)
	}
	srv, err := NewServer(st)
	if err != nil {
		t.Fatalf("NewServer err: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx, reqR, respW)

	id, err := c.StartSession(ctx)
	if err != nil {
		t.Fatalf("StartSession err: %v", err)
	}
	if err := c.AppendMessage(ctx, id, transcript.RoleUser, "hello"); err != nil {
		t.Fatalf("AppendMessage err: %v", err)
	}

	messages, err := c.ReadTranscript(ctx, id)
	if err != nil {
		t.Fatalf("ReadTranscript err: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "hello" {
		t.Fatalf("unexpected transcript: %+v", messages)
	}
}

// A call abandoned by context cancellation must not poison the response
// stream: its late reply is dropped, and the next call gets its own reply.
func TestAbandonedCallDoesNotDesyncStream(t *testing.T) {
	c, reqR, respW := pipeClient(t)

	// Scripted server: hold the first reply until the second request has
	// arrived, then answer out of order, stale reply first.
	go func() {
		scanner := bufio.NewScanner(reqR)
		var reqs []Request
		for scanner.Scan() {
			var req Request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			reqs = append(reqs, req)
			if len(reqs) == 2 {
				writeResponse(t, respW, Response{ID: reqs[0].ID, Result: json.RawMessage(`{"sessionId":"stale"}`)})
				writeResponse(t, respW, Response{ID: reqs[1].ID, Result: json.RawMessage(`{"sessions":["live"]}`)})
				return
			}
		}
	}()

	ctx1, cancel1 := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel1()
	if _, err := c.StartSession(ctx1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded for abandoned call, got %v", err)
	}

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	sessions, err := c.ListSessions(ctx2)
	if err != nil {
		t.Fatalf("call after abandoned call failed: %v", err)
	}
	if len(sessions) != 1 || sessions[0] != "live" {
		t.Fatalf("call received the wrong reply: %v", sessions)
	}
}

func TestCallFailsWhenStreamCloses(t *testing.T) {
	c, reqR, respW := pipeClient(t)

	// Server goes away mid-call: drain the request, then close the stream.
	go func() {
		bufio.NewScanner(reqR).Scan()
		respW.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Call(ctx, ToolStartSession, struct{}{})
	if err == nil || !strings.Contains(err.Error(), "stream closed") {
		t.Fatalf("expected stream-closed error, got %v", err)
	}
}
