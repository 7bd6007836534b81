// Package aiclient generates short tree care and impact blurbs through an
// OpenAI-compatible chat completions endpoint (OpenRouter by default).
package aiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	DefaultModel   = "openai/gpt-4o-mini"
)

var ErrEmptyCompletion = errors.New("model returned no content")

// TreeFacts is the context handed to the model.
type TreeFacts struct {
	Name           string
	CommonName     string
	ScientificName string
	Region         string
	CO2PerYearKg   float64
	HealthStatus   string
	HeightCm       int
}

// Client wraps a go-openai client.
type Client struct {
	api   *openai.Client
	model string
}

// NewClient creates a client. Empty baseURL and model fall back to OpenRouter defaults.
func NewClient(apiKey, baseURL, model string) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	if model == "" {
		model = DefaultModel
	}
	return &Client{api: openai.NewClientWithConfig(cfg), model: model}
}

// TreeInsight asks the model for a short care and impact note about a tree.
func (c *Client) TreeInsight(ctx context.Context, facts TreeFacts) (string, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   220,
		Temperature: 0.4,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You write warm, factual notes for people who adopted a tree. Two short paragraphs: care in the coming season, then the climate impact. No lists, no headings.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildPrompt(facts),
			},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("ai provider error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("ai provider request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}

func buildPrompt(f TreeFacts) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tree: %s (%s", f.Name, f.CommonName)
	if f.ScientificName != "" {
		fmt.Fprintf(&b, ", %s", f.ScientificName)
	}
	b.WriteString(")\n")
	if f.Region != "" {
		fmt.Fprintf(&b, "Location: %s\n", f.Region)
	}
	if f.HealthStatus != "" {
		fmt.Fprintf(&b, "Latest health check: %s, height %d cm\n", f.HealthStatus, f.HeightCm)
	}
	fmt.Fprintf(&b, "Estimated CO2 absorbed per year: %.1f kg\n", f.CO2PerYearKg)
	return b.String()
}
