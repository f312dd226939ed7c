package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ClientOptions tunes the provider websocket connection.
type ClientOptions struct {
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	MaxRetries       int
}

// DefaultClientOptions mirrors the timeouts used elsewhere in the backend.
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		HandshakeTimeout: 30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     30 * time.Second,
		PingInterval:     30 * time.Second,
		MaxRetries:       3,
	}
}

// Client holds one websocket connection to the realtime provider and decodes
// its events onto a channel. One client per session; Close releases the
// socket and stops the loops.
type Client struct {
	url     string
	header  http.Header
	options *ClientOptions

	mu     sync.Mutex
	conn   *websocket.Conn
	events chan ServerEvent
	closed bool
}

// NewClient prepares a client for the given endpoint. The credential goes in
// the Authorization header; model selection rides on the URL query.
func NewClient(endpoint, credential, model string, options *ClientOptions) *Client {
	if options == nil {
		options = DefaultClientOptions()
	}

	url := strings.TrimRight(endpoint, "/")
	if model != "" {
		url += "?model=" + model
	}

	header := http.Header{}
	if credential != "" {
		header.Set("Authorization", "Bearer "+credential)
	}

	return &Client{
		url:     url,
		header:  header,
		options: options,
		events:  make(chan ServerEvent, 32),
	}
}

// Connect dials with linear-backoff retries and starts the read and ping
// loops. Events are delivered on Events() until the connection dies, then the
// channel closes.
func (c *Client) Connect(ctx context.Context) error {
	var lastErr error
	for i := 0; i < c.options.MaxRetries; i++ {
		if err := c.dial(ctx); err == nil {
			go c.readLoop(ctx)
			go c.pingLoop(ctx)
			return nil
		} else {
			lastErr = err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		// No backoff after the final attempt; the caller gets the failure
		// immediately.
		if i == c.options.MaxRetries-1 {
			break
		}
		retryDelay := time.Duration(i+1) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return fmt.Errorf("failed to connect after %d retries, last error: %w", c.options.MaxRetries, lastErr)
}

func (c *Client) dial(ctx context.Context) error {
	dialer := &websocket.Dialer{HandshakeTimeout: c.options.HandshakeTimeout}

	conn, _, err := dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("realtime dial failed: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.options.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.options.ReadTimeout))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	return nil
}

// Events is the stream of decoded provider events.
func (c *Client) Events() <-chan ServerEvent {
	return c.events
}

// Send writes one client event to the provider.
func (c *Client) Send(event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil || c.closed {
		return fmt.Errorf("realtime client not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
	return c.conn.WriteJSON(event)
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.events)

	for {
		if ctx.Err() != nil {
			return
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[realtime] read error: %v", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(c.options.ReadTimeout))

		var event ServerEvent
		if err := json.Unmarshal(data, &event); err != nil {
			log.Printf("[realtime] dropping undecodable event: %v", err)
			continue
		}
		event.Raw = data

		select {
		case c.events <- event:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(c.options.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			conn, closed := c.conn, c.closed
			c.mu.Unlock()
			if conn == nil || closed {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(c.options.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close releases the socket. Pending reads fail and the event channel closes.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
