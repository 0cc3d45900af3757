// coachd is the chat-coaching orchestrator server: it serves the HTTP
// analyze API, runs the screenshot analysis and reply pipelines, and
// maintains the session cache.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/chatcoach/coachd/pkg/analyzer"
	"github.com/chatcoach/coachd/pkg/api"
	"github.com/chatcoach/coachd/pkg/cache"
	"github.com/chatcoach/coachd/pkg/config"
	"github.com/chatcoach/coachd/pkg/database"
	"github.com/chatcoach/coachd/pkg/imagefetch"
	"github.com/chatcoach/coachd/pkg/llm"
	"github.com/chatcoach/coachd/pkg/moderation"
	"github.com/chatcoach/coachd/pkg/orchestrator"
	"github.com/chatcoach/coachd/pkg/prompt"
	"github.com/chatcoach/coachd/pkg/reply"
	"github.com/chatcoach/coachd/pkg/strategy"
	"github.com/chatcoach/coachd/pkg/trace"
	"github.com/chatcoach/coachd/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	}

	httpPort := getEnv("HTTP_PORT", "8080")

	slog.Info("Starting coachd",
		"version", version.Full(),
		"http_port", httpPort,
		"config_dir", *configDir)

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx, *configDir)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Session cache backend: PostgreSQL by default, in-memory for
	// single-pod deployments without a database.
	var (
		store    cache.Store
		events   cache.EventLister
		dbClient *database.Client
		recorder trace.Recorder = trace.SlogRecorder{}
	)
	switch backend := getEnv("CACHE_BACKEND", "postgres"); backend {
	case "memory":
		mem := cache.NewMemoryStore(cfg.Cache.TTL)
		store, events = mem, mem
		slog.Info("Using in-memory session cache", "ttl", cfg.Cache.TTL)
	case "postgres":
		dbConfig, err := database.LoadConfigFromEnv()
		if err != nil {
			slog.Error("Failed to load database config", "error", err)
			os.Exit(1)
		}
		dbClient, err = database.NewClient(ctx, dbConfig)
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		pg := cache.NewPostgresStore(dbClient.DB(), cfg.Cache.TTL)
		store, events = pg, pg
		recorder = trace.NewPostgresRecorder(dbClient.DB())
		slog.Info("Connected to PostgreSQL database")
	default:
		slog.Error("Unknown CACHE_BACKEND", "backend", backend)
		os.Exit(1)
	}

	// 3. Prompt templates and strategy pools
	prompts, err := prompt.New(cfg.PromptsDir)
	if err != nil {
		slog.Error("Failed to load prompt templates", "error", err)
		os.Exit(1)
	}
	selector := strategy.NewSelector(cfg.StrategyPools)

	// 4. LLM provider arms
	multimodal, err := newArmClient(cfg, cfg.Arms.Multimodal)
	if err != nil {
		slog.Error("Failed to initialize multimodal arm", "error", err)
		os.Exit(1)
	}
	premium, err := newArmClient(cfg, cfg.Arms.Premium)
	if err != nil {
		slog.Error("Failed to initialize premium arm", "error", err)
		os.Exit(1)
	}
	replyClient, err := newArmClient(cfg, cfg.Arms.Reply)
	if err != nil {
		slog.Error("Failed to initialize reply arm", "error", err)
		os.Exit(1)
	}
	slog.Info("LLM arms initialized",
		"multimodal", multimodal.Model(),
		"premium", premium.Model(),
		"reply", replyClient.Model())

	// 5. Collaborators
	fetcher := imagefetch.NewHTTPFetcher(cfg.Images.FetchTimeout, cfg.Images.MaxBytes)
	checker := moderation.NewHTTPChecker(cfg.Moderation.URL, cfg.Moderation.Timeout)

	// 6. Pipelines and dispatcher
	anl := analyzer.New(store, fetcher, prompts, multimodal, premium,
		selector, recorder, &cfg.Features, cfg.Timeouts.Arm)
	replies := reply.New(store, prompts, replyClient, checker, recorder, &cfg.Features)
	dispatcher := orchestrator.New(anl, replies, selector,
		orchestrator.NopQuota{}, recorder, &cfg.Features)

	// 7. HTTP server
	httpServer := api.NewServer(dispatcher, dbClient, events, cfg)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + httpPort
		slog.Info("HTTP server listening", "addr", addr)
		if err := httpServer.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("coachd started successfully")

	// 8. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 9. Graceful shutdown: drain in-flight requests
	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// newArmClient resolves a provider entry by name and builds its SDK adapter.
func newArmClient(cfg *config.Config, providerName string) (llm.Client, error) {
	providerCfg, err := cfg.LLMProviders.Get(providerName)
	if err != nil {
		return nil, err
	}
	return llm.NewClient(providerCfg)
}
