// Command transcript-tools serves the transcript store's tool calls over
// stdin/stdout. The relay spawns one instance per browser connection.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/yikzhou/voicebridge/backend/internal/config"
	"github.com/yikzhou/voicebridge/backend/internal/store"
	"github.com/yikzhou/voicebridge/backend/internal/toolcall"
)

func main() {
	// stdout carries the protocol; all logging goes to stderr.
	log.SetOutput(os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	fileStore, err := store.NewFileStore(cfg.Store.Dir)
	if err != nil {
		log.Fatalf("failed to open transcript store: %v", err)
	}

	srv, err := toolcall.NewServer(fileStore)
	if err != nil {
		log.Fatalf("failed to build tool server: %v", err)
	}

	log.Printf("[transcript-tools] serving on stdio, store dir=%s", cfg.Store.Dir)
	if err := srv.Serve(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		log.Fatalf("tool server error: %v", err)
	}
}
