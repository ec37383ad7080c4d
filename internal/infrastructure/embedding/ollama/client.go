package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/resilience"
)

// defaultBatchLimit mirrors the provider-side cap on items per embed call.
const defaultBatchLimit = 100

type Client struct {
	baseURL    string
	model      string
	batchLimit int
	dimensions int
	httpClient *http.Client
	executor   *resilience.Executor
	logger     *slog.Logger
}

type Option func(*Client)

func WithBatchLimit(limit int) Option {
	return func(c *Client) {
		if limit > 0 {
			c.batchLimit = limit
		}
	}
}

// WithDimensions enables a width check on returned vectors. Zero disables it.
func WithDimensions(dimensions int) Option {
	return func(c *Client) {
		if dimensions > 0 {
			c.dimensions = dimensions
		}
	}
}

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		batchLimit: defaultBatchLimit,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EmbedBatch returns one vector per input text, in input order. Oversized
// requests are re-batched internally to the provider limit. A sub-batch
// either succeeds whole or fails whole; the result is never shorter than the
// input.
func (c *Client) EmbedBatch(ctx context.Context, tenantID string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	totalChars := 0
	for start := 0; start < len(texts); start += c.batchLimit {
		end := start + c.batchLimit
		if end > len(texts) {
			end = len(texts)
		}
		sub := texts[start:end]

		vectors, err := c.embedOnce(ctx, sub)
		if err != nil {
			return nil, fmt.Errorf("embed batch [%d:%d]: %w", start, end, err)
		}
		if len(vectors) != len(sub) {
			return nil, domain.WrapError(
				domain.ErrInvalidInput,
				"embed batch",
				fmt.Errorf("provider returned %d vectors for %d inputs", len(vectors), len(sub)),
			)
		}
		if c.dimensions > 0 {
			for i, v := range vectors {
				if len(v) != c.dimensions {
					return nil, domain.WrapError(
						domain.ErrInvalidInput,
						"embed batch",
						fmt.Errorf("vector %d has %d dimensions, model configured for %d", start+i, len(v), c.dimensions),
					)
				}
			}
		}
		out = append(out, vectors...)
		for _, t := range sub {
			totalChars += len(t)
		}
	}

	// Usage telemetry per tenant; a logging concern, not a correctness one.
	c.logger.Info("embedding_usage",
		"tenant_id", tenantID,
		"model", c.model,
		"texts", len(texts),
		"chars", totalChars,
	)
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, tenantID, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, tenantID, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

func (c *Client) embedOnce(ctx context.Context, texts []string) ([][]float32, error) {
	request := map[string]any{
		"model": c.model,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}

	call := func(ctx context.Context) error {
		return c.postJSON(ctx, "/api/embed", request, &response, "embed")
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "ollama.embed", call, classifyEmbedError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return nil, wrapTemporaryIfNeeded("embed", err)
	}
	return response.Embeddings, nil
}

func (c *Client) postJSON(ctx context.Context, path string, request, response any, operation string) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
