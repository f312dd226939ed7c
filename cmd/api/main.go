package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/yikzhou/voicebridge/backend/internal/config"
	"github.com/yikzhou/voicebridge/backend/internal/handler"
	"github.com/yikzhou/voicebridge/backend/internal/relay"
	"github.com/yikzhou/voicebridge/backend/internal/service/credential"
	"github.com/yikzhou/voicebridge/backend/internal/store"
	"github.com/yikzhou/voicebridge/backend/internal/toolcall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	fileStore, err := store.NewFileStore(cfg.Store.Dir)
	if err != nil {
		log.Fatalf("failed to open transcript store: %v", err)
	}

	// Initialize credential service for the realtime provider
	var credentialSvc *credential.Service
	if cfg.Realtime.Enabled() {
		credentialSvc, err = credential.NewService(cfg.Realtime.CredentialConfig())
		if err != nil {
			log.Printf("warning: failed to initialize credential service: %v", err)
		} else {
			log.Println("realtime credential service initialized")
		}
	} else {
		log.Println("realtime provider not configured, credential minting disabled")
	}

	// Each browser connection gets its own tool-server subprocess.
	relayHandler := relay.New(func(ctx context.Context) (relay.BridgeClient, error) {
		return toolcall.NewClient(ctx, cfg.Bridge.Command)
	})

	router := handler.NewRouter(fileStore, credentialSvc, relayHandler)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("voicebridge backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
