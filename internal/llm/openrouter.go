package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"exampaper-rag/internal/apperr"
)

// OpenRouterClient calls an OpenAI-compatible chat completions endpoint
type OpenRouterClient struct {
	apiKey      string
	httpClient  *http.Client
	url         string
	model       string
	maxTokens   int
	temperature float64
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewOpenRouterClient creates a client; the api key must not be empty
func NewOpenRouterClient(url, apiKey, model string, maxTokens int, temperature float64) (*OpenRouterClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openrouter api key is not set")
	}
	return &OpenRouterClient{
		apiKey:      apiKey,
		httpClient:  &http.Client{},
		url:         url,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}, nil
}

// Generate sends prompt as a single user message
func (c *OpenRouterClient) Generate(ctx context.Context, prompt string) (string, error) {
	jsonData, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", apperr.New(apperr.MalformedRequest, fmt.Errorf("error creating request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Title", "Exam Paper Generator")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classify(ctx, fmt.Errorf("error making request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", classify(ctx, fmt.Errorf("error reading response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return "", apperr.Errorf(kindForStatus(resp.StatusCode),
			"API request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var response chatResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", apperr.Errorf(apperr.MalformedRequest, "error unmarshaling response: %v", err)
	}
	if len(response.Choices) == 0 || strings.TrimSpace(response.Choices[0].Message.Content) == "" {
		return "", apperr.Errorf(apperr.MalformedRequest, "no content in response")
	}

	return response.Choices[0].Message.Content, nil
}
