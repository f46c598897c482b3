package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgallion1/dealmap/internal/answer"
	"github.com/dgallion1/dealmap/internal/api"
	"github.com/dgallion1/dealmap/internal/config"
	"github.com/dgallion1/dealmap/internal/extract"
	"github.com/dgallion1/dealmap/internal/llm"
	"github.com/dgallion1/dealmap/internal/pipeline"
)

func main() {
	cfg := config.Load()
	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Completion service. Everything below works without one.
	stats := llm.NewStats(time.Hour)
	var completer llm.Completer
	if g := llm.New(cfg.LLM(), stats, log); g != nil {
		completer = g
		log.Info("completion service enabled", "model", cfg.ModelLabel())
	} else {
		log.Info("no completion service configured, using templated answers")
	}

	registry := extract.NewRegistry()
	if err := registry.LoadDir(cfg.SchemaDir); err != nil {
		log.Error("invalid schema directory", "dir", cfg.SchemaDir, "error", err)
		os.Exit(1)
	}
	log.Info("extraction schemas loaded", "types", registry.Types())

	builder := pipeline.NewBuilder(pipeline.BuildOptions{
		Strategy:           pipeline.StrategyLegal,
		TOC:                cfg.TOC(),
		VerifyRadius:       cfg.TOCVerifyRadius,
		Completer:          completer,
		MaxConcurrentDeals: cfg.MaxConcurrentDeals,
	}, log)

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, pipeline.NewDealStore(), builder, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(api.Deps{
		Orchestrator: orch,
		Extractor:    extract.NewExtractor(registry, log),
		Answers:      answer.New(completer, cfg.ModelLabel(), log),
		LLMStats:     stats,
		ModelLabel:   cfg.ModelLabel(),
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}

		orch.Stop()
	}()

	log.Info("starting dealmap", "port", cfg.Port)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
	<-done
	log.Info("stopped")
}
