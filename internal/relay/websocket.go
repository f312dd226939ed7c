package relay

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/yikzhou/voicebridge/backend/internal/model/transcript"
)

// BridgeClient is the per-connection handle on the transcript tool server.
// The relay mints one per browser connection and releases it on disconnect.
type BridgeClient interface {
	StartSession(ctx context.Context) (string, error)
	AppendMessage(ctx context.Context, sessionID string, role transcript.Role, content string) error
	EndSession(ctx context.Context, sessionID string) error
	Close() error
}

// BridgeFactory mints a fresh bridge client for one connection.
type BridgeFactory func(ctx context.Context) (BridgeClient, error)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
)

// Handler relays transcript-storage traffic between a browser websocket and
// the tool-call bridge.
type Handler struct {
	newBridge BridgeFactory
	upgrader  websocket.Upgrader
}

// New creates a relay handler that mints bridge clients from factory.
func New(factory BridgeFactory) *Handler {
	return &Handler{
		newBridge: factory,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes mounts the relay websocket endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/relay/ws", h.handleWebSocket)
}

type inboundMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text"`
}

type outgoingMessage struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// connState is everything one connection owns: its session id and its bridge
// client. It replaces any shared connection registry; the handler goroutine
// holds the only reference and releases it deterministically on disconnect.
type connState struct {
	sessionID string
	bridge    BridgeClient
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	bridge, err := h.newBridge(r.Context())
	if err != nil {
		log.Printf("[relay] bridge spawn failed: %v", err)
		http.Error(w, "transcript bridge unavailable", http.StatusServiceUnavailable)
		return
	}

	sessionID, err := bridge.StartSession(r.Context())
	if err != nil {
		log.Printf("[relay] start session failed: %v", err)
		_ = bridge.Close()
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[relay] upgrade failed: %v", err)
		_ = bridge.Close()
		return
	}

	state := &connState{sessionID: sessionID, bridge: bridge}
	log.Printf("[relay] new connection session=%s", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		conn.Close()
		h.release(state)
	}()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	go h.pingLoop(ctx, conn)

	h.send(conn, outgoingMessage{Type: "sessionId", SessionID: sessionID})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg inboundMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					log.Printf("[relay] read error: %v", err)
				}
				return
			}

			conn.SetReadDeadline(time.Now().Add(readTimeout))

			if msg.SessionID != "" && msg.SessionID != state.sessionID {
				h.sendError(conn, "session mismatch")
				continue
			}

			h.handleMessage(ctx, conn, state, &msg)
		}
	}
}

func (h *Handler) handleMessage(ctx context.Context, conn *websocket.Conn, state *connState, msg *inboundMessage) {
	switch msg.Type {
	case "user_transcript":
		h.storeTranscript(ctx, conn, state, transcript.RoleUser, msg.Text)
	case "store_assistant_transcript":
		h.storeTranscript(ctx, conn, state, transcript.RoleAssistant, msg.Text)
	default:
		h.sendError(conn, "unsupported message type: "+msg.Type)
	}
}

func (h *Handler) storeTranscript(ctx context.Context, conn *websocket.Conn, state *connState, role transcript.Role, text string) {
	if strings.TrimSpace(text) == "" {
		h.sendError(conn, "text is required")
		return
	}

	if err := state.bridge.AppendMessage(ctx, state.sessionID, role, text); err != nil {
		log.Printf("[relay] append %s message failed session=%s: %v", role, state.sessionID, err)
		h.sendError(conn, "failed to store transcript: "+err.Error())
		return
	}

	h.send(conn, outgoingMessage{
		Type:      "status_update",
		SessionID: state.sessionID,
		Message:   "stored " + string(role) + " transcript",
	})
}

// release ends the session and shuts the bridge subprocess down. Failures
// here only get logged; the connection is already gone.
func (h *Handler) release(state *connState) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := state.bridge.EndSession(ctx, state.sessionID); err != nil {
		log.Printf("[relay] end session failed session=%s: %v", state.sessionID, err)
	}
	if err := state.bridge.Close(); err != nil {
		log.Printf("[relay] bridge close failed session=%s: %v", state.sessionID, err)
	}
	log.Printf("[relay] connection released session=%s", state.sessionID)
}

func (h *Handler) send(conn *websocket.Conn, msg outgoingMessage) {
	msg.Timestamp = time.Now().Unix()
	if err := conn.WriteJSON(msg); err != nil {
		log.Printf("[relay] write failed: %v", err)
	}
}

func (h *Handler) sendError(conn *websocket.Conn, message string) {
	h.send(conn, outgoingMessage{Type: "error", Message: message})
}

// pingLoop keeps the connection alive; an unresponsive peer misses pongs,
// the read deadline expires and the read loop tears the connection down.
func (h *Handler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
