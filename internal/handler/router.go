package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/yikzhou/voicebridge/backend/internal/handler/transcripts"
	middlewarePkg "github.com/yikzhou/voicebridge/backend/internal/middleware"
	"github.com/yikzhou/voicebridge/backend/internal/relay"
	"github.com/yikzhou/voicebridge/backend/internal/service/credential"
	"github.com/yikzhou/voicebridge/backend/internal/store"
	"github.com/yikzhou/voicebridge/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services. credentialSvc may be nil when
// the realtime provider is not configured; the mint endpoint then reports
// unavailable instead of failing at startup.
func NewRouter(st *store.FileStore, credentialSvc *credential.Service, relayHandler *relay.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	transcriptHandler := transcripts.New(st)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})

		transcriptHandler.RegisterRoutes(api)

		// One-shot credential mint: forwards provider config, returns the
		// provider's JSON verbatim.
		api.Post("/realtime/session", func(w http.ResponseWriter, r *http.Request) {
			if credentialSvc == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "realtime credentials unavailable")
				return
			}

			raw, err := credentialSvc.Mint(r.Context())
			if err != nil {
				log.Printf("[router] credential mint failed: %v", err)
				var terr *credential.TransportError
				if errors.As(err, &terr) {
					utils.RespondError(w, terr.StatusCode, "provider rejected credential request")
					return
				}
				utils.RespondError(w, http.StatusBadGateway, "credential mint failed")
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			if _, err := w.Write(raw); err != nil {
				log.Printf("[router] write credential response failed: %v", err)
			}
		})

		relayHandler.RegisterRoutes(api)
	})

	return r
}
