package transcripts

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/yikzhou/voicebridge/backend/internal/store"
	"github.com/yikzhou/voicebridge/backend/pkg/utils"
)

// Handler serves read-only transcript endpoints for the demo UI.
type Handler struct {
	store *store.FileStore
}

// New creates a transcript read handler.
func New(st *store.FileStore) *Handler {
	return &Handler{store: st}
}

// RegisterRoutes mounts the transcript routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/transcripts", h.handleList)
	r.Get("/transcripts/{sessionID}", h.handleRead)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.store.List(r.Context())
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func (h *Handler) handleRead(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	messages, err := h.store.Read(r.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrSessionNotFound):
			utils.RespondError(w, http.StatusNotFound, "session not found")
		case errors.Is(err, store.ErrInvalidSessionID):
			utils.RespondError(w, http.StatusBadRequest, "invalid session id")
		default:
			utils.RespondError(w, http.StatusInternalServerError, "failed to read transcript")
		}
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"sessionId": sessionID,
		"messages":  messages,
	})
}
