package toolcall

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"

	"github.com/yikzhou/voicebridge/backend/internal/model/transcript"
	"github.com/yikzhou/voicebridge/backend/internal/store"
)

// Tool names exposed over the bridge.
const (
	ToolStartSession   = "start_session"
	ToolAppendMessage  = "append_message"
	ToolAppendNote     = "append_note"
	ToolReadTranscript = "read_transcript"
	ToolListSessions   = "list_sessions"
	ToolEndSession     = "end_session"
)

type emptyArgs struct{}

type sessionArgs struct {
	SessionID string `json:"sessionId" jsonschema:"description=opaque session identifier"`
}

type appendMessageArgs struct {
	SessionID string `json:"sessionId" jsonschema:"description=opaque session identifier"`
	Role      string `json:"role" jsonschema:"description=user or assistant"`
	Content   string `json:"content" jsonschema:"description=message text"`
}

type appendNoteArgs struct {
	SessionID string `json:"sessionId" jsonschema:"description=opaque session identifier"`
	Content   string `json:"content" jsonschema:"description=system note text"`
}

type startSessionResult struct {
	SessionID string `json:"sessionId"`
}

type statusResult struct {
	Status string `json:"status"`
}

type readTranscriptResult struct {
	SessionID string               `json:"sessionId"`
	Messages  []transcript.Message `json:"messages"`
}

type listSessionsResult struct {
	Sessions []string `json:"sessions"`
}

// NewTools builds the named tool set wrapping the transcript store. Inputs
// are validated here so malformed calls never reach the store, and store
// failures come back as plain errors for the server to flag.
func NewTools(st *store.FileStore) (map[string]tool.InvokableTool, error) {
	tools := map[string]func() (tool.InvokableTool, error){
		ToolStartSession: func() (tool.InvokableTool, error) {
			return utils.InferTool(ToolStartSession, "create an empty transcript and return its session id",
				func(ctx context.Context, _ emptyArgs) (startSessionResult, error) {
					id, err := st.Create(ctx)
					if err != nil {
						return startSessionResult{}, err
					}
					return startSessionResult{SessionID: id}, nil
				})
		},
		ToolAppendMessage: func() (tool.InvokableTool, error) {
			return utils.InferTool(ToolAppendMessage, "append a user or assistant message to a transcript",
				func(ctx context.Context, args appendMessageArgs) (statusResult, error) {
					if err := validateSessionID(args.SessionID); err != nil {
						return statusResult{}, err
					}
					role := transcript.Role(args.Role)
					if role != transcript.RoleUser && role != transcript.RoleAssistant {
						return statusResult{}, fmt.Errorf("role must be user or assistant, got %q", args.Role)
					}
					if strings.TrimSpace(args.Content) == "" {
						return statusResult{}, fmt.Errorf("content is required")
					}
					if err := st.Append(ctx, args.SessionID, transcript.Message{Role: role, Content: args.Content}); err != nil {
						return statusResult{}, err
					}
					return statusResult{Status: "stored"}, nil
				})
		},
		ToolAppendNote: func() (tool.InvokableTool, error) {
			return utils.InferTool(ToolAppendNote, "append a system note to a transcript",
				func(ctx context.Context, args appendNoteArgs) (statusResult, error) {
					if err := validateSessionID(args.SessionID); err != nil {
						return statusResult{}, err
					}
					if strings.TrimSpace(args.Content) == "" {
						return statusResult{}, fmt.Errorf("content is required")
					}
					if err := st.Append(ctx, args.SessionID, transcript.Message{Role: transcript.RoleSystem, Content: args.Content}); err != nil {
						return statusResult{}, err
					}
					return statusResult{Status: "stored"}, nil
				})
		},
		ToolReadTranscript: func() (tool.InvokableTool, error) {
			return utils.InferTool(ToolReadTranscript, "read a transcript in append order",
				func(ctx context.Context, args sessionArgs) (readTranscriptResult, error) {
					if err := validateSessionID(args.SessionID); err != nil {
						return readTranscriptResult{}, err
					}
					messages, err := st.Read(ctx, args.SessionID)
					if err != nil {
						return readTranscriptResult{}, err
					}
					return readTranscriptResult{SessionID: args.SessionID, Messages: messages}, nil
				})
		},
		ToolListSessions: func() (tool.InvokableTool, error) {
			return utils.InferTool(ToolListSessions, "list all known session ids",
				func(ctx context.Context, _ emptyArgs) (listSessionsResult, error) {
					ids, err := st.List(ctx)
					if err != nil {
						return listSessionsResult{}, err
					}
					return listSessionsResult{Sessions: ids}, nil
				})
		},
		ToolEndSession: func() (tool.InvokableTool, error) {
			return utils.InferTool(ToolEndSession, "mark a session as finished",
				func(ctx context.Context, args sessionArgs) (statusResult, error) {
					if err := validateSessionID(args.SessionID); err != nil {
						return statusResult{}, err
					}
					if err := st.End(ctx, args.SessionID); err != nil {
						return statusResult{}, err
					}
					return statusResult{Status: "ended"}, nil
				})
		},
	}

	built := make(map[string]tool.InvokableTool, len(tools))
	for name, build := range tools {
		t, err := build()
		if err != nil {
			return nil, fmt.Errorf("build tool %s: %w", name, err)
		}
		built[name] = t
	}
	return built, nil
}

func validateSessionID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("sessionId is required")
	}
	if !store.ValidSessionID(id) {
		return fmt.Errorf("sessionId %q is not a valid identifier", id)
	}
	return nil
}
