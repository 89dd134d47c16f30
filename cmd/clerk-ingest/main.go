// Command clerk-ingest populates the product catalog and its embedding index
// from the product information dataset.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/emporia-ai/clerk/internal/catalog"
	"github.com/emporia-ai/clerk/internal/config"
	"github.com/emporia-ai/clerk/pkg/provider/embeddings"
	oaembed "github.com/emporia-ai/clerk/pkg/provider/embeddings/openai"
)

const (
	// embedBatchSize is how many passages go into one embedding request and
	// one index upsert.
	embedBatchSize = 64

	// embedConcurrency bounds in-flight embedding requests.
	embedConcurrency = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	inputPath := flag.String("input", "data/Product_Information_Dataset.csv", "path to the product dataset CSV")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "clerk-ingest: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "clerk-ingest: %v\n", err)
		}
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ingest(ctx, cfg, *inputPath); err != nil {
		slog.Error("ingestion failed", "err", err)
		return 1
	}
	return 0
}

func ingest(ctx context.Context, cfg *config.Config, inputPath string) error {
	if cfg.Database.PostgresDSN == "" {
		return errors.New("database.postgres_dsn is required")
	}
	if cfg.Providers.Embeddings.Name == "" {
		return errors.New("providers.embeddings is required")
	}

	embedder, err := newEmbedder(cfg.Providers.Embeddings)
	if err != nil {
		return fmt.Errorf("create embeddings provider: %w", err)
	}

	dims := cfg.Database.EmbeddingDimensions
	if dims <= 0 {
		dims = 1024
	}
	store, err := catalog.NewStore(ctx, cfg.Database.PostgresDSN, dims)
	if err != nil {
		return err
	}
	defer store.Close()

	index := store.Index()
	if n, err := index.Count(ctx); err != nil {
		return err
	} else if n > 0 {
		slog.Info("index already populated, skipping ingestion", "points", n)
		return nil
	}

	products, err := catalog.LoadProducts(inputPath)
	if err != nil {
		return err
	}
	slog.Info("dataset loaded", "path", inputPath, "products", len(products))

	if err := store.UpsertProducts(ctx, products); err != nil {
		return err
	}
	slog.Info("product table populated", "rows", len(products))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for start := 0; start < len(products); start += embedBatchSize {
		end := min(start+embedBatchSize, len(products))
		batch := products[start:end]
		offset := start

		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, p := range batch {
				texts[i] = p.PassageText()
			}
			vectors, err := embedder.EmbedBatch(gctx, texts, embeddings.TaskPassage)
			if err != nil {
				return fmt.Errorf("embed batch at row %d: %w", offset, err)
			}
			if len(vectors) != len(batch) {
				return fmt.Errorf("embed batch at row %d: got %d vectors for %d texts", offset, len(vectors), len(batch))
			}

			points := make([]catalog.Point, len(batch))
			for i, p := range batch {
				points[i] = catalog.Point{
					ID:         int64(offset + i),
					ParentASIN: p.ParentASIN,
					Title:      p.Title,
					Embedding:  vectors[i],
				}
			}
			if err := index.Upsert(gctx, points); err != nil {
				return fmt.Errorf("upsert batch at row %d: %w", offset, err)
			}
			slog.Info("batch indexed", "offset", offset, "points", len(points))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("ingestion complete", "products", len(products))
	return nil
}

// defaultEmbedTimeout bounds each embedding request; providers.embeddings.
// timeout_seconds overrides it.
const defaultEmbedTimeout = 30 * time.Second

// newEmbedder builds the embeddings provider directly; the ingestion job only
// supports the OpenAI-compatible backends.
func newEmbedder(entry config.ProviderEntry) (embeddings.Provider, error) {
	timeout := defaultEmbedTimeout
	if entry.TimeoutSeconds > 0 {
		timeout = time.Duration(entry.TimeoutSeconds) * time.Second
	}
	opts := []oaembed.Option{oaembed.WithTimeout(timeout)}
	switch entry.Name {
	case "jina":
		baseURL := entry.BaseURL
		if baseURL == "" {
			baseURL = "https://api.jina.ai/v1"
		}
		opts = append(opts, oaembed.WithBaseURL(baseURL), oaembed.WithTaskParameter())
	case "openai":
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
	default:
		return nil, fmt.Errorf("unsupported embeddings provider %q", entry.Name)
	}
	return oaembed.New(entry.APIKey, entry.Model, opts...)
}
