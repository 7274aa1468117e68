package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"exampaper-rag/internal/logger"
	"exampaper-rag/internal/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
	"golang.org/x/sync/errgroup"
)

// Embedder turns text into a vector
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float64, error)
}

// OllamaEmbedder generates embeddings using Ollama API
type OllamaEmbedder struct {
	Client        *api.Client
	Model         string
	MaxRetries    int
	Timeout       time.Duration
	MaxConcurrent int
	RetryInterval time.Duration

	log *logger.Logger
}

// NewOllamaEmbedder creates a new Ollama embedder. An empty host falls back
// to OLLAMA_HOST.
func NewOllamaEmbedder(host string, model string, log *logger.Logger) (*OllamaEmbedder, error) {
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = u
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &OllamaEmbedder{
		Client:        api.NewClient(hostURL, http.DefaultClient),
		Model:         model,
		MaxRetries:    3,
		Timeout:       time.Second * 30,
		MaxConcurrent: 3, // Limit concurrent requests based on hardware
		RetryInterval: time.Second,
		log:           log.With("component", "embedding"),
	}, nil
}

// EmbedText generates an embedding for a text, retrying transient failures
func (e *OllamaEmbedder) EmbedText(ctx context.Context, text string) ([]float64, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.RetryInterval

	embedding, err := backoff.Retry(ctx, func() ([]float64, error) {
		return e.createEmbedding(ctx, text)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(e.MaxRetries+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			e.log.Warn("embedding failed, retrying", "err", err, "wait", wait)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding after %d retries: %w", e.MaxRetries, err)
	}
	return embedding, nil
}

// createEmbedding is a helper function to create a single embedding
func (e *OllamaEmbedder) createEmbedding(ctx context.Context, text string) ([]float64, error) {
	req := api.EmbeddingRequest{
		Model:   e.Model,
		Prompt:  text,
		Options: map[string]any{},
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	resp, err := e.Client.Embeddings(ctxWithTimeout, &req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Embedding) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("model %s returned an empty embedding", e.Model))
	}

	return resp.Embedding, nil
}

// EmbedChunks fills in the embedding of every chunk in place, at most
// MaxConcurrent requests at a time. progressFunc may be nil.
func EmbedChunks(ctx context.Context, e Embedder, chunks []models.Chunk, maxConcurrent int,
	progressFunc func(processed, total int)) error {

	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrent)

	var mu sync.Mutex
	processed := 0
	total := len(chunks)

	for i := range chunks {
		g.Go(func() error {
			embedding, err := e.EmbedText(gctx, chunks[i].Text)
			if err != nil {
				return fmt.Errorf("failed to embed chunk %s: %w", chunks[i].ID, err)
			}
			chunks[i].Embedding = embedding

			mu.Lock()
			processed++
			if progressFunc != nil {
				progressFunc(processed, total)
			}
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}
