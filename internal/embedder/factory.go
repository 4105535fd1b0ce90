package embedder

import (
	"fmt"
	"strings"
	"time"
)

// Config holds embedder construction parameters. The embedder is an
// explicitly constructed service owned by the caller; there is no
// process-wide instance.
type Config struct {
	Provider  string // "openai", "jina" or "local"
	APIKey    string
	Model     string
	BaseURL   string
	BatchSize int
	Timeout   time.Duration
}

// New creates an embedder from explicit configuration. An unknown provider
// name is a configuration error.
func New(cfg Config) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case ProviderOpenAI:
		return NewOpenAIProvider(OpenAIOptions{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			BatchSize: cfg.BatchSize,
			Timeout:   cfg.Timeout,
		})
	case ProviderJina:
		return NewJinaProvider(OpenAIOptions{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			BatchSize: cfg.BatchSize,
			Timeout:   cfg.Timeout,
		})
	case ProviderLocal, "":
		return NewLocalProvider(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}
}
