package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/ljoubert/compagnon/internal/archive"
	"github.com/ljoubert/compagnon/internal/config"
	"github.com/ljoubert/compagnon/internal/httpapi"
	"github.com/ljoubert/compagnon/internal/observability"
	"github.com/ljoubert/compagnon/internal/persona"
	"github.com/ljoubert/compagnon/internal/session"
	"github.com/ljoubert/compagnon/internal/voice"
)

func main() {
	// Local development keeps secrets in .env; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	archiveStore, err := archive.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("archive store init failed", zap.Error(err))
	}
	defer archiveStore.Close()

	transcriber, dialogue, synthesizer, providerMode := buildProviders(cfg, logger)
	logger.Info("providers ready", zap.String("mode", providerMode))

	personas := persona.NewRegistry()
	sessions := session.NewStore(cfg.HistoryLimit)
	orchestrator := voice.NewOrchestrator(
		personas,
		sessions,
		transcriber,
		dialogue,
		synthesizer,
		archiveStore,
		metrics,
		logger,
		voice.Options{
			Language:       cfg.Language,
			TimingEnabled:  cfg.TimingEnabled,
			ArchiveTimeout: cfg.ArchiveTimeout,
		},
	)

	api := httpapi.New(cfg, personas, orchestrator, metrics, logger)
	// No server-wide read/write timeouts: the websocket surface holds
	// connections open far longer than one request. Gateway timeouts bound the
	// slow paths instead.
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", zap.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

// buildProviders selects live or mock gateways. Mode auto uses the live stack
// when both provider keys are present and falls back to the mock otherwise, so
// the service always starts.
func buildProviders(cfg config.Config, logger *zap.Logger) (voice.Transcriber, voice.Replier, voice.Synthesizer, string) {
	mode := strings.ToLower(strings.TrimSpace(cfg.ProviderMode))
	haveKeys := cfg.OpenAIAPIKey != "" && cfg.AnthropicAPIKey != ""

	useLive := false
	switch mode {
	case "live":
		if !haveKeys {
			logger.Fatal("PROVIDER_MODE=live requires OPENAI_API_KEY and ANTHROPIC_API_KEY")
		}
		useLive = true
	case "mock":
	case "auto":
		useLive = haveKeys
		if !haveKeys {
			logger.Warn("provider keys missing, using mock providers")
		}
	}

	if !useLive {
		mock := voice.NewMockProvider()
		return mock, mock, mock, "mock"
	}

	transcriber := voice.NewWhisperTranscriber(voice.WhisperConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.WhisperModel,
		Timeout: cfg.RequestTimeout,
	}, logger)
	dialogue := voice.NewClaudeDialogue(voice.ClaudeConfig{
		APIKey:        cfg.AnthropicAPIKey,
		BaseURL:       cfg.AnthropicBaseURL,
		Model:         cfg.DialogueModel,
		MaxTokens:     cfg.ReplyMaxTokens,
		ContextBudget: cfg.ContextBudget,
		Timeout:       cfg.RequestTimeout,
	}, logger)
	synthesizer := voice.NewOpenAITTS(voice.TTSConfig{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.TTSModel,
		Format:  cfg.TTSFormat,
		Timeout: cfg.RequestTimeout,
	}, logger)
	return transcriber, dialogue, synthesizer, "live"
}
