package embedder

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider names and defaults.
const (
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"
	ProviderLocal  = "local"

	DefaultOpenAIURL   = "https://api.openai.com/v1/embeddings"
	DefaultOpenAIModel = "text-embedding-3-small"
	OpenAIDimension    = 1536

	DefaultJinaURL   = "https://api.jina.ai/v1/embeddings"
	DefaultJinaModel = "jina-embeddings-v3"
	JinaDimension    = 1024

	LocalDimension = 384

	// DefaultBatchSize is how many texts go to the provider per request.
	DefaultBatchSize = 32

	// DefaultTimeout bounds one provider HTTP call. A slow provider must
	// not stall a whole batch run.
	DefaultTimeout = 30 * time.Second
)

// OpenAIProvider implements Embedder against an OpenAI-compatible
// embeddings endpoint.
type OpenAIProvider struct {
	apiKey     string
	model      string
	baseURL    string
	batchSize  int
	httpClient *http.Client
}

// OpenAIOptions configures an OpenAIProvider. Zero values fall back to
// production defaults; BaseURL override exists for self-hosted compatible
// servers and tests.
type OpenAIOptions struct {
	APIKey    string
	Model     string
	BaseURL   string
	BatchSize int
	Timeout   time.Duration
}

// NewOpenAIProvider creates an embedder for an OpenAI-compatible API.
func NewOpenAIProvider(opts OpenAIOptions) (*OpenAIProvider, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: missing API key", ErrNoProviderEnabled)
	}

	model := opts.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenAIURL
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &OpenAIProvider{
		apiKey:    opts.APIKey,
		model:     model,
		baseURL:   baseURL,
		batchSize: batchSize,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Encode generates a single embedding via the batch endpoint.
func (o *OpenAIProvider) Encode(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vectors, err := o.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: no embeddings returned", ErrProviderFailed)
	}
	return vectors[0], nil
}

// EncodeBatch embeds texts in provider-sized chunks, preserving input order.
func (o *OpenAIProvider) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += o.batchSize {
		end := start + o.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		batch, err := retryWithBackoff(ctx, func() ([][]float32, error) {
			return o.callAPI(ctx, chunk)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]interface{}{
		"input": texts,
		"model": o.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(apiResp.Data))
	}

	// The index field is authoritative; responses may arrive reordered.
	vectors := make([][]float32, len(texts))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(texts) {
			return nil, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		vectors[data.Index] = Normalize(data.Embedding)
	}
	return vectors, nil
}

func (o *OpenAIProvider) Dimension() int {
	return OpenAIDimension
}

func (o *OpenAIProvider) Provider() string {
	return ProviderOpenAI
}

func (o *OpenAIProvider) Close() error {
	o.httpClient.CloseIdleConnections()
	return nil
}

// JinaProvider implements Embedder against the Jina embeddings API, which
// speaks the same request and response schema as the OpenAI endpoint.
type JinaProvider struct {
	*OpenAIProvider
}

// NewJinaProvider creates an embedder for the Jina API.
func NewJinaProvider(opts OpenAIOptions) (*JinaProvider, error) {
	if opts.Model == "" {
		opts.Model = DefaultJinaModel
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultJinaURL
	}

	inner, err := NewOpenAIProvider(opts)
	if err != nil {
		return nil, err
	}
	return &JinaProvider{OpenAIProvider: inner}, nil
}

func (j *JinaProvider) Dimension() int {
	return JinaDimension
}

func (j *JinaProvider) Provider() string {
	return ProviderJina
}

// LocalProvider is an offline embedder producing deterministic unit vectors
// from a text digest. Scores from it carry no semantic meaning; it exists so
// the pipeline runs end to end without API credentials and so tests are
// reproducible.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider creates the offline provider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{dimension: LocalDimension}
}

func (l *LocalProvider) Encode(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stretch the digest across the dimension by rehashing with a counter.
	vector := make([]float32, l.dimension)
	seed := sha256.Sum256([]byte(text))
	block := seed
	for i := 0; i < l.dimension; i++ {
		if i%8 == 0 && i > 0 {
			counter := [4]byte{}
			binary.BigEndian.PutUint32(counter[:], uint32(i/8))
			block = sha256.Sum256(append(seed[:], counter[:]...))
		}
		idx := (i % 8) * 4
		val := binary.BigEndian.Uint32(block[idx : idx+4])
		vector[i] = (float32(val)/float32(1<<32))*2 - 1
	}

	return Normalize(vector), nil
}

func (l *LocalProvider) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ValidateBatch(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := l.Encode(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (l *LocalProvider) Dimension() int {
	return l.dimension
}

func (l *LocalProvider) Provider() string {
	return ProviderLocal
}

func (l *LocalProvider) Close() error {
	return nil
}
