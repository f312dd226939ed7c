package toolcall

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/yikzhou/voicebridge/backend/internal/model/transcript"
)

// CallError is a failure reported by the tool server for one call.
type CallError struct {
	Tool    string
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// Client owns one tool-server subprocess and issues calls over its
// stdin/stdout pipe. A single reader goroutine owns the response stream for
// the client's whole lifetime and hands responses to waiting calls by echoed
// id, so a call abandoned by context cancellation leaves the stream intact:
// its late response is simply dropped when it arrives.
type Client struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan Response
	closed  bool

	readErr  error
	readDone chan struct{}
}

// NewClient spawns the tool-server binary and wires its pipes. The
// subprocess inherits stderr so its logs stay visible.
func NewClient(ctx context.Context, command string, args ...string) (*Client, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("tool server stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("tool server stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start tool server: %w", err)
	}

	c := newClient(stdin, stdout)
	c.cmd = cmd
	return c, nil
}

// newClient wires a client over raw pipes and starts the reader goroutine.
func newClient(stdin io.WriteCloser, stdout io.Reader) *Client {
	c := &Client{
		stdin:    stdin,
		pending:  make(map[int64]chan Response),
		readDone: make(chan struct{}),
	}
	go c.readLoop(stdout)
	return c
}

// readLoop is the only reader of the response stream. It runs until the
// server closes its end, delivering each response to the call that is
// waiting on its id and discarding responses nobody waits for anymore.
func (c *Client) readLoop(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		var resp Response
		if err := json.Unmarshal(scanner.Bytes(), &resp); err != nil {
			continue
		}

		c.mu.Lock()
		ch := c.pending[resp.ID]
		delete(c.pending, resp.ID)
		c.mu.Unlock()

		if ch != nil {
			ch <- resp
		}
	}

	c.mu.Lock()
	c.readErr = scanner.Err()
	if c.readErr == nil {
		c.readErr = io.EOF
	}
	c.mu.Unlock()
	close(c.readDone)
}

// Call invokes a named tool and returns its raw JSON result.
func (c *Client) Call(ctx context.Context, toolName string, args any) (json.RawMessage, error) {
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode arguments: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, fmt.Errorf("tool client closed")
	}

	c.nextID++
	req := Request{ID: c.nextID, Tool: toolName, Arguments: payload}
	line, err := json.Marshal(req)
	if err != nil {
		c.mu.Unlock()
		return nil, fmt.Errorf("encode request: %w", err)
	}

	respCh := make(chan Response, 1)
	c.pending[req.ID] = respCh

	if _, err := c.stdin.Write(append(line, '\n')); err != nil {
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, fmt.Errorf("write request: %w", err)
	}
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		// Abandon the call: unregister so the reader drops the late
		// response instead of handing it to the next caller.
		c.mu.Lock()
		delete(c.pending, req.ID)
		c.mu.Unlock()
		return nil, ctx.Err()
	case <-c.readDone:
		return nil, fmt.Errorf("tool server stream closed: %v", c.readErr)
	case resp := <-respCh:
		if resp.IsError {
			return nil, &CallError{Tool: toolName, Message: resp.Error}
		}
		return resp.Result, nil
	}
}

// StartSession creates an empty transcript and returns its id.
func (c *Client) StartSession(ctx context.Context) (string, error) {
	raw, err := c.Call(ctx, ToolStartSession, struct{}{})
	if err != nil {
		return "", err
	}
	var result struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode start_session result: %w", err)
	}
	return result.SessionID, nil
}

// AppendMessage stores a user or assistant message.
func (c *Client) AppendMessage(ctx context.Context, sessionID string, role transcript.Role, content string) error {
	_, err := c.Call(ctx, ToolAppendMessage, map[string]string{
		"sessionId": sessionID,
		"role":      string(role),
		"content":   content,
	})
	return err
}

// AppendNote stores a system note.
func (c *Client) AppendNote(ctx context.Context, sessionID, content string) error {
	_, err := c.Call(ctx, ToolAppendNote, map[string]string{
		"sessionId": sessionID,
		"content":   content,
	})
	return err
}

// ReadTranscript returns the stored messages for a session.
func (c *Client) ReadTranscript(ctx context.Context, sessionID string) ([]transcript.Message, error) {
	raw, err := c.Call(ctx, ToolReadTranscript, map[string]string{"sessionId": sessionID})
	if err != nil {
		return nil, err
	}
	var result struct {
		Messages []transcript.Message `json:"messages"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode read_transcript result: %w", err)
	}
	return result.Messages, nil
}

// ListSessions returns all known session ids.
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	raw, err := c.Call(ctx, ToolListSessions, struct{}{})
	if err != nil {
		return nil, err
	}
	var result struct {
		Sessions []string `json:"sessions"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode list_sessions result: %w", err)
	}
	return result.Sessions, nil
}

// EndSession marks the session finished.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	_, err := c.Call(ctx, ToolEndSession, map[string]string{"sessionId": sessionID})
	return err
}

// Close shuts the subprocess down: closing stdin lets the server drain and
// exit, then Wait reaps it.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	_ = c.stdin.Close()
	if c.cmd != nil {
		return c.cmd.Wait()
	}
	return nil
}
