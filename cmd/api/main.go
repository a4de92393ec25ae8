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
	"github.com/zhouzirui/kb-chat/backend/internal/config"
	"github.com/zhouzirui/kb-chat/backend/internal/handler"
	"github.com/zhouzirui/kb-chat/backend/internal/service/chat"
	"github.com/zhouzirui/kb-chat/backend/internal/service/conversation"
	"github.com/zhouzirui/kb-chat/backend/internal/service/rag"
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

	runtime, err := cfg.KnowledgeBase.NewRuntimeClient(ctx)
	if err != nil {
		log.Fatalf("failed to create bedrock agent runtime client: %v", err)
	}

	answerSvc, err := rag.NewService(rag.Options{
		Runtime:         runtime,
		KnowledgeBaseID: cfg.KnowledgeBase.KnowledgeBaseID,
		ModelARN:        cfg.KnowledgeBase.ModelARN(),
	})
	if err != nil {
		log.Fatalf("failed to initialize answer service: %v", err)
	}
	log.Printf("answer service initialized (%s)", answerSvc)

	chatService := chat.NewService()
	convService := conversation.NewService(chatService, answerSvc)

	if cfg.Limits.AskRate > 0 {
		log.Printf("question rate limit %.2f/s burst %d", cfg.Limits.AskRate, cfg.Limits.AskBurst)
	}

	router := handler.NewRouter(cfg, chatService, convService)

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

	log.Printf("knowledge base chat listening on %s", addr)
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
