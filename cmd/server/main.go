package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/prdbuilder/internal/api"
	"github.com/dgallion1/prdbuilder/internal/config"
	"github.com/dgallion1/prdbuilder/internal/llm"
	"github.com/dgallion1/prdbuilder/internal/pipeline"
	"github.com/dgallion1/prdbuilder/internal/render"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	style := render.DefaultStyle()
	if cfg.PDFStyleFile != "" {
		st, err := render.LoadStyle(cfg.PDFStyleFile)
		if err != nil {
			log.Error("invalid pdf style", "path", cfg.PDFStyleFile, "error", err)
			os.Exit(1)
		}
		style = st
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize clients.
	claude := llm.NewClaudeClient(cfg.AnthropicAPIKey, cfg.AnthropicModel, cfg.AnthropicBaseURL, cfg.MaxOutputTokens)
	stats := llm.NewLLMStats(time.Hour)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, claude, stats, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, claude.Model(), style, log, cfg)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		// Generation streams extend their own write deadline.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		claude.Close()
	}()

	log.Info("starting prdbuilder",
		"port", cfg.Port,
		"model", claude.Model(),
		"generation_timeout", cfg.GenerationTimeout,
		"pdf_max_chars", cfg.PDFMaxChars,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
