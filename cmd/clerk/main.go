// Command clerk is the main entry point for the Clerk chat server.
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

	"github.com/emporia-ai/clerk/internal/catalog"
	"github.com/emporia-ai/clerk/internal/chat"
	"github.com/emporia-ai/clerk/internal/config"
	"github.com/emporia-ai/clerk/internal/health"
	"github.com/emporia-ai/clerk/internal/observe"
	"github.com/emporia-ai/clerk/internal/orders"
	"github.com/emporia-ai/clerk/internal/resilience"
	"github.com/emporia-ai/clerk/internal/retrieval"
	"github.com/emporia-ai/clerk/internal/server"
	"github.com/emporia-ai/clerk/internal/tool"
	"github.com/emporia-ai/clerk/internal/tool/ordertools"
	"github.com/emporia-ai/clerk/internal/tool/producttools"
	"github.com/emporia-ai/clerk/pkg/provider/embeddings"
	oaembed "github.com/emporia-ai/clerk/pkg/provider/embeddings/openai"
	"github.com/emporia-ai/clerk/pkg/provider/llm"
	"github.com/emporia-ai/clerk/pkg/provider/llm/anyllm"
	oallm "github.com/emporia-ai/clerk/pkg/provider/llm/openai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "clerk: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "clerk: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("clerk starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "clerk"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	llmProvider, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "name", cfg.Providers.LLM.Name, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	var embedProvider embeddings.Provider
	if cfg.Providers.Embeddings.Name != "" {
		embedProvider, err = reg.CreateEmbeddings(cfg.Providers.Embeddings)
		if err != nil {
			slog.Error("failed to create embeddings provider", "name", cfg.Providers.Embeddings.Name, "err", err)
			return 1
		}
		slog.Info("provider created", "kind", "embeddings", "name", cfg.Providers.Embeddings.Name)
	}

	// Order dataset.
	orderSvc := orders.New(nil)
	if cfg.Orders.DatasetPath != "" {
		orderSvc, err = orders.Load(cfg.Orders.DatasetPath)
		if err != nil {
			slog.Error("failed to load order dataset", "path", cfg.Orders.DatasetPath, "err", err)
			return 1
		}
		slog.Info("order dataset loaded", "path", cfg.Orders.DatasetPath, "rows", orderSvc.Len())
	}

	// Product catalog + vector index.
	var store *catalog.Store
	if cfg.Database.PostgresDSN != "" {
		dims := cfg.Database.EmbeddingDimensions
		if dims <= 0 {
			dims = 1024
		}
		store, err = catalog.NewStore(ctx, cfg.Database.PostgresDSN, dims)
		if err != nil {
			slog.Error("failed to open product catalog", "err", err)
			return 1
		}
		defer store.Close()
		slog.Info("product catalog connected", "embedding_dimensions", dims)
	}

	breaker := resilience.NewBreaker(resilience.Config{
		Name:        "model",
		MaxFailures: cfg.Chat.Breaker.MaxFailures,
		Cooldown:    time.Duration(cfg.Chat.Breaker.CooldownSeconds) * time.Second,
		Logger:      logger,
	})

	engineOpts := func(prompt string) []chat.Option {
		opts := []chat.Option{
			chat.WithSystemPrompt(prompt),
			chat.WithTemperature(cfg.Chat.Temperature),
			chat.WithBreaker(breaker),
			chat.WithMetrics(metrics),
			chat.WithLogger(logger),
		}
		if cfg.Chat.MaxTokens > 0 {
			opts = append(opts, chat.WithMaxTokens(cfg.Chat.MaxTokens))
		}
		if cfg.Chat.MaxToolRounds > 0 {
			opts = append(opts, chat.WithMaxToolRounds(cfg.Chat.MaxToolRounds))
		}
		return opts
	}

	// Order assistant.
	orderRegistry := tool.New()
	if err := ordertools.Register(orderRegistry, orderSvc); err != nil {
		slog.Error("failed to register order tools", "err", err)
		return 1
	}
	orderEngine, err := chat.New("order", llmProvider, orderRegistry, engineOpts(chat.OrderSystemPrompt)...)
	if err != nil {
		slog.Error("failed to create order engine", "err", err)
		return 1
	}

	serverOpts := []server.Option{
		server.WithMetrics(metrics),
		server.WithLogger(logger),
	}

	// Shopping assistant, available when the catalog and an embeddings
	// provider are configured.
	if store != nil && embedProvider != nil {
		retrOpts := []retrieval.Option{
			retrieval.WithLogger(logger),
			retrieval.WithMetrics(metrics),
		}
		if cfg.Retrieval.TopK > 0 {
			retrOpts = append(retrOpts, retrieval.WithTopK(cfg.Retrieval.TopK))
		}
		if cfg.Retrieval.MaxResults > 0 {
			retrOpts = append(retrOpts, retrieval.WithMaxResults(cfg.Retrieval.MaxResults))
		}
		if cfg.Retrieval.ThrottleMS > 0 {
			retrOpts = append(retrOpts, retrieval.WithThrottle(retrieval.FixedDelay{
				Delay: time.Duration(cfg.Retrieval.ThrottleMS) * time.Millisecond,
			}))
		}
		retriever, err := retrieval.New(embedProvider, store.Index(), store, retrOpts...)
		if err != nil {
			slog.Error("failed to create retriever", "err", err)
			return 1
		}

		shoppingRegistry := tool.New()
		if err := ordertools.Register(shoppingRegistry, orderSvc); err != nil {
			slog.Error("failed to register order tools", "err", err)
			return 1
		}
		if err := producttools.Register(shoppingRegistry, store, retriever); err != nil {
			slog.Error("failed to register product tools", "err", err)
			return 1
		}
		shoppingEngine, err := chat.New("shopping", llmProvider, shoppingRegistry, engineOpts(chat.ShoppingSystemPrompt)...)
		if err != nil {
			slog.Error("failed to create shopping engine", "err", err)
			return 1
		}
		serverOpts = append(serverOpts, server.WithShoppingEngine(shoppingEngine))
	} else {
		slog.Info("shopping assistant disabled; configure database and embeddings provider to enable it")
	}

	var checkers []health.Checker
	if store != nil {
		checkers = append(checkers, health.PingChecker("database", store))
	}
	serverOpts = append(serverOpts, server.WithHealth(health.New(checkers...)))

	srv, err := server.New(orderEngine, serverOpts...)
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server ready", "addr", addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "err", err)
			return 1
		}
	}

	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// Provider requests are bounded so a hung endpoint cannot stall a turn
// indefinitely; providers.*.timeout_seconds overrides these.
const (
	defaultLLMTimeout       = 60 * time.Second
	defaultEmbeddingTimeout = 30 * time.Second
)

// entryTimeout resolves a provider entry's per-request timeout.
func entryTimeout(entry config.ProviderEntry, def time.Duration) time.Duration {
	if entry.TimeoutSeconds > 0 {
		return time.Duration(entry.TimeoutSeconds) * time.Second
	}
	return def
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// The native OpenAI client supports organisation scoping and the richest
	// tool-calling surface.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []oallm.Option{
			oallm.WithTimeout(entryTimeout(entry, defaultLLMTimeout)),
		}
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// The remaining backends go through any-llm. They share the same pattern:
	// optional APIKey + optional BaseURL.
	for _, providerName := range []string{
		"anthropic", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			opts := []anyllm.Option{
				anyllm.WithTimeout(entryTimeout(entry, defaultLLMTimeout)),
			}
			if entry.APIKey != "" {
				opts = append(opts, anyllm.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllm.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		opts := []anyllm.Option{
			anyllm.WithTimeout(entryTimeout(entry, defaultLLMTimeout)),
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllm.WithBaseURL(entry.BaseURL))
		}
		return anyllm.New("ollama", entry.Model, opts...)
	})

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		opts := []oaembed.Option{
			oaembed.WithTimeout(entryTimeout(entry, defaultEmbeddingTimeout)),
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if n := optInt(entry.Options, "batch_size"); n > 0 {
			opts = append(opts, oaembed.WithBatchSize(n))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, oaembed.WithDimensions(n))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	// Jina serves an OpenAI-compatible API but needs the asymmetric task
	// parameter on embedding requests.
	reg.RegisterEmbeddings("jina", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = "https://api.jina.ai/v1"
		}
		opts := []oaembed.Option{
			oaembed.WithBaseURL(baseURL),
			oaembed.WithTaskParameter(),
			oaembed.WithTimeout(entryTimeout(entry, defaultEmbeddingTimeout)),
		}
		if n := optInt(entry.Options, "batch_size"); n > 0 {
			opts = append(opts, oaembed.WithBatchSize(n))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, oaembed.WithDimensions(n))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// optString extracts a string value from a provider Options map. Returns ""
// if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// optInt extracts an int value from a provider Options map, tolerating the
// float64 and int forms YAML decoding produces.
func optInt(opts map[string]any, key string) int {
	if opts == nil {
		return 0
	}
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
