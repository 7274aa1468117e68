package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"

	"exampaper-rag/internal/apperr"
)

// OllamaLLM handles interactions with the Ollama LLM API
type OllamaLLM struct {
	Client      *api.Client
	Model       string
	Temperature float64
	NumPredict  int
}

// NewOllamaLLM creates a new Ollama LLM client. An empty host falls back to
// OLLAMA_HOST.
func NewOllamaLLM(host string, model string, temperature float64, numPredict int) (*OllamaLLM, error) {
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
		}
		hostURL = u
	}

	return &OllamaLLM{
		Client:      api.NewClient(hostURL, http.DefaultClient),
		Model:       model,
		Temperature: temperature,
		NumPredict:  numPredict,
	}, nil
}

// Generate generates a response from the LLM
func (o *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	req := api.GenerateRequest{
		Model:  o.Model,
		Prompt: prompt,
		Options: map[string]interface{}{
			"temperature": o.Temperature,
			"num_predict": o.NumPredict,
		},
	}

	var responseBuilder strings.Builder

	err := o.Client.Generate(ctx, &req, func(resp api.GenerateResponse) error {
		_, err := responseBuilder.WriteString(resp.Response)
		return err
	})
	if err != nil {
		return "", classify(ctx, fmt.Errorf("failed to generate response: %w", err))
	}

	out := responseBuilder.String()
	if strings.TrimSpace(out) == "" {
		return "", apperr.Errorf(apperr.MalformedRequest, "model %s returned an empty response", o.Model)
	}
	return out, nil
}
