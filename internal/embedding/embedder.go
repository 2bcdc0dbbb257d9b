// Package embedding implements the Embedding Client: a deterministic
// text-to-vector service with bounded retry, a blocking first-use
// warm-up, and an exact-string result cache over an OpenAI-compatible
// embeddings endpoint.
package embedding

import (
	"context"
	"math/rand"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	sageerrors "github.com/contosowiki/sage/internal/errors"
	"github.com/contosowiki/sage/internal/logger"
)

// Embedder produces fixed-dimension vectors for text.
type Embedder interface {
	// Embed converts a batch of texts to vectors, preserving input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Client is the concrete OpenAI-compatible embedding client.
type Client struct {
	api        *openai.Client
	model      string
	dimensions int
	maxRetries int
	baseDelay  time.Duration

	warmOnce    sync.Once
	warmed      chan struct{}
	warmTimeout time.Duration

	cache *exactCache
}

// NewClient builds an embedding client bound to an OpenAI-compatible
// endpoint.
func NewClient(baseURL, apiKey, model string, dimensions int, warmTimeout time.Duration) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		api:         openai.NewClientWithConfig(cfg),
		model:       model,
		dimensions:  dimensions,
		maxRetries:  3,
		baseDelay:   250 * time.Millisecond,
		warmed:      make(chan struct{}),
		warmTimeout: warmTimeout,
		cache:       newExactCache(),
	}
}

func (c *Client) Dimensions() int { return c.dimensions }

// Warm performs the one-time first-use warm-up call, blocking up to the
// configured warm timeout. Callers that find Warmed() false may surface a "loading
// model" reasoning step while this runs. Warm-up failure is not fatal:
// the model may still come up before the first real Embed call.
func (c *Client) Warm(ctx context.Context) error {
	var err error
	c.warmOnce.Do(func() {
		defer close(c.warmed)
		wctx, cancel := context.WithTimeout(ctx, c.warmTimeout)
		defer cancel()
		_, err = c.embedWithRetry(wctx, []string{"warm-up"})
	})
	return err
}

// Warmed reports whether the first-use warm-up has completed.
func (c *Client) Warmed() bool {
	select {
	case <-c.warmed:
		return true
	default:
		return false
	}
}

// Embed embeds a batch of texts, retrying transient failures up to 3 times
// with jittered exponential backoff starting at 250ms. Results
// for exact-string cache hits are served without a network call, and the
// output order always matches the input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missingIdx := make([]int, 0, len(texts))
	missingTexts := make([]string, 0, len(texts))

	for i, t := range texts {
		if v, ok := c.cache.get(t); ok {
			out[i] = v
			continue
		}
		missingIdx = append(missingIdx, i)
		missingTexts = append(missingTexts, t)
	}

	if len(missingTexts) == 0 {
		return out, nil
	}

	vecs, err := c.embedWithRetry(ctx, missingTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missingIdx {
		out[idx] = vecs[j]
		c.cache.put(missingTexts[j], vecs[j])
	}
	return out, nil
}

func (c *Client) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	delay := c.baseDelay
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warnf(ctx, "embedding: retrying batch of %d texts, attempt %d", len(texts), attempt+1)
			jitter := time.Duration(rand.Int63n(int64(delay) / 2))
			select {
			case <-time.After(delay + jitter):
			case <-ctx.Done():
				return nil, sageerrors.Wrap(sageerrors.EmbeddingError, "context cancelled during backoff", ctx.Err())
			}
			delay *= 2
		}

		resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
			Input: texts,
			Model: openai.EmbeddingModel(c.model),
		})
		if err == nil {
			vecs := make([][]float32, len(resp.Data))
			for _, d := range resp.Data {
				vecs[d.Index] = d.Embedding
			}
			return vecs, nil
		}
		lastErr = err
	}
	return nil, sageerrors.Wrap(sageerrors.EmbeddingError, "embedding model unavailable after retries", lastErr)
}
