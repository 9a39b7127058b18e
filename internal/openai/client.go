package openai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultEmbeddingModel is the OpenAI model used when the openai provider is selected
	DefaultEmbeddingModel = openai.LargeEmbedding3
	// DefaultEmbeddingDimensions is the vector size stored for every chunk
	DefaultEmbeddingDimensions = 1024
	// MaxBatchSize is the largest number of inputs sent in one provider request
	MaxBatchSize = 128
	// DefaultEmbeddingTimeout bounds a single batch request
	DefaultEmbeddingTimeout = 60 * time.Second
)

// Embedding providers.
const (
	ProviderVoyage = "voyage"
	ProviderOpenAI = "openai"
)

// InputType tells the provider how the texts will be used
type InputType string

const (
	InputTypeDocument InputType = "document"
	InputTypeQuery    InputType = "query"
)

var (
	// ErrEmptyText is returned when a text to embed is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has the wrong dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrCountMismatch is returned when the provider returns a different number of vectors than inputs
	ErrCountMismatch = errors.New("embedding count does not match input count")
	// ErrNoAPIKey is returned when no provider API key is configured
	ErrNoAPIKey = errors.New("embedding provider API key not set")
	// ErrUnknownProvider is returned for an unsupported provider name
	ErrUnknownProvider = errors.New("unknown embedding provider")
)

// IsFatal reports whether err means the provider returned unusable vectors.
// Such errors are never recovered by a fallback.
func IsFatal(err error) bool {
	return errors.Is(err, ErrWrongDimensions) || errors.Is(err, ErrCountMismatch)
}

// StatusError is a non-2xx reply from an embeddings endpoint.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("embeddings request failed: %s: %s", e.Status, e.Body)
}

// IsUnavailable reports whether err means the provider could not serve the
// request at all: no key, a transport failure or timeout, a 5xx reply, or a
// 401, 403, 408 or 429 reply. A provider that answered and rejected the
// input is not unavailable.
func IsUnavailable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	if errors.Is(err, ErrNoAPIKey) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if code, ok := statusCode(err); ok {
		switch code {
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
			return true
		}
		return code >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func statusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

// EmbeddingAPI defines the interface for batched embedding generation.
// Implementations return one vector per input, in input order.
type EmbeddingAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string, inputType InputType) ([][]float32, error)
}

// Client wraps an embedding provider with batching and validation
type Client struct {
	api        EmbeddingAPI
	model      string
	dimensions int
	batchSize  int
	timeout    time.Duration
}

// OpenAIAdapter calls the OpenAI embeddings endpoint through go-openai.
type OpenAIAdapter struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

func NewOpenAIAdapter(apiKey, baseURL string, model openai.EmbeddingModel, dimensions int) *OpenAIAdapter {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIAdapter{
		client:     openai.NewClientWithConfig(cfg),
		model:      model,
		dimensions: dimensions,
	}
}

// CreateEmbeddings calls the OpenAI API to create embeddings. The OpenAI API
// has no input type hint, so inputType is ignored.
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string, _ InputType) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      a.model,
		Dimensions: a.dimensions,
	})
	if err != nil {
		return nil, err
	}

	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, d := range data {
		out[i] = d.Embedding
	}
	return out, nil
}

type Config struct {
	Provider            string
	APIKey              string
	BaseURL             string
	EmbeddingModel      string
	EmbeddingDimensions int
	Timeout             time.Duration
}

// NewClientWithConfig creates an embedding client for the configured provider.
func NewClientWithConfig(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoAPIKey
	}
	dimensions := cfg.EmbeddingDimensions
	if dimensions <= 0 {
		dimensions = DefaultEmbeddingDimensions
	}

	var api EmbeddingAPI
	model := cfg.EmbeddingModel
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderVoyage:
		if model == "" {
			model = DefaultVoyageModel
		}
		api = NewVoyageAdapter(cfg.APIKey, cfg.BaseURL, model, nil)
	case ProviderOpenAI:
		if model == "" {
			model = string(DefaultEmbeddingModel)
		}
		api = NewOpenAIAdapter(cfg.APIKey, cfg.BaseURL, openai.EmbeddingModel(model), dimensions)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Provider)
	}

	return newClient(api, model, dimensions, cfg.Timeout), nil
}

func newClient(api EmbeddingAPI, model string, dimensions int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultEmbeddingTimeout
	}
	return &Client{
		api:        api,
		model:      model,
		dimensions: dimensions,
		batchSize:  MaxBatchSize,
		timeout:    timeout,
	}
}

// Model returns the embedding model name recorded in item metadata.
func (c *Client) Model() string {
	return c.model
}

// Dimensions returns the validated vector size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// EmbedBatch embeds texts in consecutive provider batches of at most
// MaxBatchSize inputs and returns exactly one vector per text, in order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyText
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: input %d", ErrEmptyText, i)
		}
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := c.embed(ctx, texts[start:end], inputType)
		if err != nil {
			return nil, err
		}
		if len(vectors) != end-start {
			return nil, fmt.Errorf("%w: sent %d, received %d", ErrCountMismatch, end-start, len(vectors))
		}
		for i, v := range vectors {
			if len(v) != c.dimensions {
				return nil, fmt.Errorf("%w: input %d has %d dimensions, expected %d", ErrWrongDimensions, start+i, len(v), c.dimensions)
			}
		}
		out = append(out, vectors...)
	}

	return out, nil
}

func (c *Client) embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	vectors, err := c.api.CreateEmbeddings(ctx, texts, inputType)
	if err != nil {
		return nil, fmt.Errorf("failed to create embeddings: %w", err)
	}
	return vectors, nil
}
