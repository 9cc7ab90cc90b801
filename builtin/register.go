// Package builtin registers all built-in providers with the default registry.
package builtin

import (
	windowChunker "github.com/knowledgetools/mcp-kb/builtin/chunking/window"
	localEmbed "github.com/knowledgetools/mcp-kb/builtin/embedding/local"
	ollamaEmbed "github.com/knowledgetools/mcp-kb/builtin/embedding/ollama"
	openaiEmbed "github.com/knowledgetools/mcp-kb/builtin/embedding/openai"
	"github.com/knowledgetools/mcp-kb/builtin/vectorstore/sqlitevec"
	"github.com/knowledgetools/mcp-kb/pkg/provider"
)

func init() {
	// Register embedding providers
	provider.RegisterEmbedding("local", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return localEmbed.New(localEmbed.Config{
			BatchSize: cfg.BatchSize,
		}), nil
	})

	provider.RegisterEmbedding("ollama", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return ollamaEmbed.New(ollamaEmbed.Config{
			Endpoint:  cfg.Endpoint,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		}), nil
	})

	provider.RegisterEmbedding("openai", func(cfg provider.EmbeddingConfig) (provider.EmbeddingProvider, error) {
		return openaiEmbed.New(openaiEmbed.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BatchSize: cfg.BatchSize,
		}), nil
	})

	// Register chunking strategies
	provider.RegisterChunking("window", func(cfg provider.ChunkingConfig) (provider.ChunkingStrategy, error) {
		return windowChunker.New(windowChunker.Config{
			Lines: cfg.Lines,
		}), nil
	})

	// Register vector stores
	provider.RegisterVectorStore("sqlitevec", func() (provider.VectorStore, error) {
		return sqlitevec.New(), nil
	})
}
