package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"practicum.dev/assistant-gateway/internal/api"
	"practicum.dev/assistant-gateway/internal/auth"
	"practicum.dev/assistant-gateway/internal/config"
	"practicum.dev/assistant-gateway/internal/core"
	"practicum.dev/assistant-gateway/internal/observability"
	"practicum.dev/assistant-gateway/internal/store"
)

const reviewerTokenTTL = 24 * time.Hour

func main() {
	ingest := flag.Bool("ingest", false, "Embed the knowledge file into the store and exit")
	knowledgeFile := flag.String("knowledge", "", "Knowledge file to ingest (defaults to KNOWLEDGE_FILE)")
	issueToken := flag.String("issue-token", "", "Print a reviewer token for the given subject and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.Setup(os.Stdout, cfg.SlogLevel(), cfg.LogFormat)

	if *issueToken != "" {
		token, err := auth.GenerateJWT(cfg.JWTSecret, *issueToken, reviewerTokenTTL)
		if err != nil {
			fatal(logger, "failed to issue reviewer token", err)
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg, logger, *ingest, *knowledgeFile); err != nil {
		fatal(logger, "service stopped with error", err)
	}
}

func run(cfg *config.Config, logger *slog.Logger, ingest bool, knowledgeFile string) error {
	ctx := context.Background()

	dbStore, err := store.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbStore.Close()

	backend, err := core.NewModelBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize model provider: %w", err)
	}
	defer backend.Close()

	if ingest {
		if knowledgeFile == "" {
			knowledgeFile = cfg.KnowledgeFile
		}
		logger.Info("starting knowledge ingestion", "path", knowledgeFile)
		n, err := core.IngestKnowledgeFile(ctx, knowledgeFile, backend, dbStore)
		if err != nil {
			return fmt.Errorf("knowledge ingestion failed: %w", err)
		}
		logger.Info("knowledge ingestion complete", "chunks", n)
		return nil
	}

	instruction, err := cfg.SystemInstruction(core.DefaultSystemInstruction)
	if err != nil {
		return err
	}
	composer, err := core.NewComposer(instruction, cfg.MaxHistoryTurns)
	if err != nil {
		return err
	}

	adapter := core.NewModelAdapter(backend, core.AdapterConfig{
		MaxPromptChars: cfg.MaxPromptChars,
		Timeout:        cfg.ModelTimeout,
		RetryDelay:     cfg.ModelRetryDelay,
	})

	opts := []core.Option{core.WithStoreTimeout(cfg.StoreTimeout)}
	if cfg.RetrievalEnabled {
		retriever, err := core.NewRetriever(ctx, dbStore, backend)
		if err != nil {
			return fmt.Errorf("failed to initialize retriever: %w", err)
		}
		if !retriever.Empty() {
			opts = append(opts, core.WithRetriever(retriever), core.WithRetrievalTimeout(cfg.RetrievalTimeout))
		}
	}

	svc := core.NewAssistantService(composer, adapter, dbStore, opts...)
	router := api.NewRouter(api.NewAPIHandler(svc, cfg.JWTSecret), logger)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RetrievalTimeout + 2*cfg.ModelTimeout + cfg.ModelRetryDelay + cfg.StoreTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", serverAddr, "provider", backend.Name(), "store", cfg.DatabaseDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
		}
		return nil
	case <-quit:
	}
	logger.Info("shutting down server")

	// Gives in-flight questions time to finish and be recorded.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server exited gracefully")
	return nil
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
