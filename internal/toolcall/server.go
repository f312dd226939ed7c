package toolcall

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/tool"

	"github.com/yikzhou/voicebridge/backend/internal/store"
)

// maxLineBytes bounds a single request/response line. Transcripts are short
// text, so 4MB leaves plenty of headroom.
const maxLineBytes = 4 << 20

// Server dispatches newline-delimited JSON tool calls to the registered
// tools. It is the process boundary for the transcript store: every failure
// is encoded as a typed error response, never a panic or a dropped line.
type Server struct {
	tools map[string]tool.InvokableTool
	mu    sync.Mutex // serializes writes to the response stream
}

// NewServer builds the transcript tool set over st.
func NewServer(st *store.FileStore) (*Server, error) {
	tools, err := NewTools(st)
	if err != nil {
		return nil, err
	}
	return &Server{tools: tools}, nil
}

// Serve reads requests from r until EOF or ctx cancellation and writes one
// response line per request to w.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.respond(w, Response{IsError: true, Error: "malformed request: " + err.Error()})
			continue
		}

		s.respond(w, s.handle(ctx, req))
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read requests: %w", err)
	}
	return nil
}

func (s *Server) handle(ctx context.Context, req Request) Response {
	t, ok := s.tools[req.Tool]
	if !ok {
		return Response{ID: req.ID, IsError: true, Error: "unknown tool: " + req.Tool}
	}

	args := req.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	result, err := t.InvokableRun(ctx, string(args))
	if err != nil {
		return Response{ID: req.ID, IsError: true, Error: err.Error()}
	}

	return Response{ID: req.ID, Result: json.RawMessage(result)}
}

func (s *Server) respond(w io.Writer, resp Response) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(resp)
	if err != nil {
		log.Printf("[toolcall] encode response failed: %v", err)
		return
	}
	if _, err := w.Write(append(data, '\n')); err != nil {
		log.Printf("[toolcall] write response failed: %v", err)
	}
}

// IsNotFound reports whether a bridge error originated from an unknown
// session id. The message is the only thing that crosses the pipe, so this
// matches on the store's sentinel text.
func IsNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), store.ErrSessionNotFound.Error())
}
