package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"embeddings": {"openai", "jina"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.LLM.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("providers.llm.timeout_seconds %d must not be negative", cfg.Providers.LLM.TimeoutSeconds))
	}
	if cfg.Providers.Embeddings.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("providers.embeddings.timeout_seconds %d must not be negative", cfg.Providers.Embeddings.TimeoutSeconds))
	}

	if cfg.Providers.Embeddings.Name != "" && cfg.Database.EmbeddingDimensions <= 0 {
		slog.Warn("providers.embeddings is configured but database.embedding_dimensions is not set; defaulting to 1024")
	}
	if cfg.Database.PostgresDSN == "" {
		slog.Warn("database.postgres_dsn is empty; product tools will not be available")
	}
	if cfg.Orders.DatasetPath == "" {
		slog.Warn("orders.dataset_path is empty; the order dataset will be empty")
	}

	if cfg.Retrieval.TopK < 0 {
		errs = append(errs, fmt.Errorf("retrieval.top_k %d must not be negative", cfg.Retrieval.TopK))
	}
	if cfg.Retrieval.MaxResults < 0 {
		errs = append(errs, fmt.Errorf("retrieval.max_results %d must not be negative", cfg.Retrieval.MaxResults))
	}
	if cfg.Retrieval.ThrottleMS < 0 {
		errs = append(errs, fmt.Errorf("retrieval.throttle_ms %d must not be negative", cfg.Retrieval.ThrottleMS))
	}

	if cfg.Chat.MaxToolRounds < 0 {
		errs = append(errs, fmt.Errorf("chat.max_tool_rounds %d must not be negative", cfg.Chat.MaxToolRounds))
	}
	if cfg.Chat.Temperature < 0 || cfg.Chat.Temperature > 2 {
		errs = append(errs, fmt.Errorf("chat.temperature %.2f is out of range [0.0, 2.0]", cfg.Chat.Temperature))
	}
	if cfg.Chat.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("chat.max_tokens %d must not be negative", cfg.Chat.MaxTokens))
	}
	if cfg.Chat.Breaker.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("chat.breaker.max_failures %d must not be negative", cfg.Chat.Breaker.MaxFailures))
	}
	if cfg.Chat.Breaker.CooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("chat.breaker.cooldown_seconds %d must not be negative", cfg.Chat.Breaker.CooldownSeconds))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
