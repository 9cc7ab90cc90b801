// Package local implements a deterministic offline EmbeddingProvider.
// Embeddings are derived from SHA256 hashes of the input text and
// normalized to unit length, so indexing and search work without any
// external model and results are stable across runs.
package local

import (
	"context"
	"crypto/sha256"
	"math"

	"github.com/knowledgetools/mcp-kb/pkg/provider"
)

// Default values
const (
	DefaultDimensions = 384
	DefaultBatchSize  = 256
)

// Config contains local provider configuration.
type Config struct {
	Dimensions int
	BatchSize  int
}

// Provider implements the EmbeddingProvider interface without a model.
type Provider struct {
	config Config
}

// New creates a new local embedding provider.
func New(cfg Config) *Provider {
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Provider{config: cfg}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "local"
}

// Embed generates deterministic embeddings for the given texts.
func (p *Provider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = p.hashToEmbedding(text)
	}
	return embeddings, nil
}

// hashToEmbedding converts text to a unit-length vector using SHA256.
func (p *Provider) hashToEmbedding(text string) []float32 {
	embedding := make([]float32, p.config.Dimensions)

	hash := sha256.Sum256([]byte(text))
	for i := 0; i < p.config.Dimensions; i++ {
		byteIdx := i % 32

		// Rehash with the block index once the digest is exhausted.
		if i >= 32 && byteIdx == 0 {
			combined := append(hash[:], byte(i/32))
			hash = sha256.Sum256(combined)
		}

		// Map byte to [-1, 1].
		embedding[i] = (float32(hash[byteIdx]) / 127.5) - 1.0
	}

	return normalize(embedding)
}

// normalize normalizes a vector to unit length.
func normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}

	norm := float32(math.Sqrt(sum))
	if norm == 0 {
		return vec
	}

	for i := range vec {
		vec[i] /= norm
	}
	return vec
}

// Dimensions returns the embedding dimensions.
func (p *Provider) Dimensions() int {
	return p.config.Dimensions
}

// MaxBatchSize returns the maximum batch size.
func (p *Provider) MaxBatchSize() int {
	return p.config.BatchSize
}

// Warmup is a no-op for the local provider.
func (p *Provider) Warmup(ctx context.Context) error {
	return nil
}

// Close releases resources (no-op).
func (p *Provider) Close() error {
	return nil
}

// Ensure Provider implements EmbeddingProvider interface
var _ provider.EmbeddingProvider = (*Provider)(nil)
