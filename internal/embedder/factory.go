package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	BaseURL   string // Endpoint override (OpenAI-compatible servers, Ollama)
	Dimension int    // Hash provider width; 0 means the default
	CacheSize int
}

// NewFromEnv creates an embedder based on environment variables
// Priority:
// 1. CODEGRAPH_EMBEDDING_PROVIDER (openai, ollama, hash)
// 2. OPENAI_API_KEY present: openai
// 3. CODEGRAPH_OLLAMA_URL present: ollama
// 4. Default to the hash provider
func NewFromEnv() (Embedder, error) {
	provider := os.Getenv(EnvProvider)
	openaiKey := os.Getenv(EnvOpenAIAPIKey)
	ollamaURL := os.Getenv(EnvOllamaURL)

	cache := NewCache(10000) // Default cache size

	// Explicit provider selection
	if provider != "" {
		provider = strings.ToLower(provider)
		switch provider {
		case ProviderOpenAI:
			return NewOpenAIProvider(openaiKey, "", cache)
		case ProviderOllama:
			return NewOllamaProvider(ollamaURL, cache)
		case ProviderHash:
			return NewHashProvider(0, cache)
		default:
			return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, provider)
		}
	}

	// Auto-detect based on available configuration
	if openaiKey != "" {
		return NewOpenAIProvider(openaiKey, "", cache)
	}
	if ollamaURL != "" {
		return NewOllamaProvider(ollamaURL, cache)
	}

	// Fallback to the deterministic local provider
	return NewHashProvider(0, cache)
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	provider := strings.ToLower(cfg.Provider)
	switch provider {
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cache)
	case ProviderOllama:
		return NewOllamaProvider(cfg.BaseURL, cache)
	case ProviderHash:
		return NewHashProvider(cfg.Dimension, cache)
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}

// DetectProvider returns the provider that would be used based on current environment
func DetectProvider() string {
	provider := os.Getenv(EnvProvider)
	if provider != "" {
		return strings.ToLower(provider)
	}

	if os.Getenv(EnvOpenAIAPIKey) != "" {
		return ProviderOpenAI
	}
	if os.Getenv(EnvOllamaURL) != "" {
		return ProviderOllama
	}

	return ProviderHash
}
