// Package openai provides an embeddings provider for the OpenAI API and
// OpenAI-compatible endpoints such as Jina's embedding service.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/emporia-ai/clerk/pkg/provider/embeddings"
)

// DefaultModel is the default OpenAI embeddings model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

// defaultBatchSize is the number of texts submitted per upstream request when
// no batch size is configured.
const defaultBatchSize = 16

// Ensure Provider implements the embeddings.Provider interface.
var _ embeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider using the OpenAI embeddings API.
type Provider struct {
	client    oai.Client
	model     string
	batchSize int
	taskParam bool
	dims      int
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	timeout    time.Duration
	batchSize  int
	taskParam  bool
	dimensions int
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Use this to point the
// provider at an OpenAI-compatible service (e.g., https://api.jina.ai/v1).
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithBatchSize sets the number of texts submitted per upstream request.
func WithBatchSize(n int) Option {
	return func(c *config) {
		c.batchSize = n
	}
}

// WithTaskParameter enables sending the task mode as a "task" request field.
// Jina-style asymmetric models require this; the OpenAI API rejects unknown
// fields, so it defaults to off.
func WithTaskParameter() Option {
	return func(c *config) {
		c.taskParam = true
	}
}

// WithDimensions overrides the reported embedding dimensionality. Required for
// non-OpenAI models whose dimensions cannot be inferred from the model name.
func WithDimensions(d int) Option {
	return func(c *config) {
		c.dimensions = d
	}
}

// New constructs a new embeddings Provider.
// If model is empty, DefaultModel (text-embedding-3-small) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embeddings: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{batchSize: defaultBatchSize}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = defaultBatchSize
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{
		client:    client,
		model:     model,
		batchSize: cfg.batchSize,
		taskParam: cfg.taskParam,
		dims:      cfg.dimensions,
	}, nil
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string, task embeddings.Task) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text}, task)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements embeddings.Provider. Inputs are split into requests of
// at most the configured batch size.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string, task embeddings.Task) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		vecs, err := p.embedChunk(ctx, texts[start:end], task)
		if err != nil {
			return nil, err
		}
		result = append(result, vecs...)
	}
	return result, nil
}

// embedChunk issues one upstream request for a batch of texts.
func (p *Provider) embedChunk(ctx context.Context, texts []string, task embeddings.Task) ([][]float32, error) {
	params := oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}

	var reqOpts []option.RequestOption
	if p.taskParam && task != "" {
		reqOpts = append(reqOpts, option.WithJSONSet("task", string(task)))
	}

	resp, err := p.client.Embeddings.New(ctx, params, reqOpts...)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: embed batch: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	result := make([][]float32, len(texts))
	for _, e := range resp.Data {
		if int(e.Index) >= len(texts) {
			return nil, fmt.Errorf("openai embeddings: unexpected index %d", e.Index)
		}
		result[e.Index] = float64ToFloat32(e.Embedding)
	}
	return result, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.dims > 0 {
		return p.dims
	}
	return modelDimensions(p.model)
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return p.model
}

// modelDimensions returns the embedding dimensions for known model names.
func modelDimensions(model string) int {
	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "text-embedding-3-large"):
		return 3072
	case strings.Contains(lower, "text-embedding-3-small"):
		return 1536
	case strings.Contains(lower, "text-embedding-ada-002"):
		return 1536
	case strings.Contains(lower, "jina-embeddings-v3"):
		return 1024
	default:
		return 1536 // sensible default for unknown models
	}
}

// float64ToFloat32 converts a []float64 slice to []float32.
func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}
