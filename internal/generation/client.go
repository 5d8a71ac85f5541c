package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/schemarag/internal/config"
	"github.com/hyperjump/schemarag/pkg/utils"
)

// Generator turns a Request into raw model text.
type Generator interface {
	Generate(ctx context.Context, req *Request) (string, error)
}

// ChatClient calls an OpenAI-compatible /chat/completions endpoint (Groq by default)
// in JSON mode.
type ChatClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	topP        float64
	client      *http.Client
}

type chatRequest struct {
	Model               string         `json:"model"`
	Messages            []Message      `json:"messages"`
	Temperature         float64        `json:"temperature"`
	MaxCompletionTokens int            `json:"max_completion_tokens,omitempty"`
	TopP                float64        `json:"top_p"`
	ResponseFormat      responseFormat `json:"response_format"`
	Stream              bool           `json:"stream"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewChatClient returns a client for cfg. Timeout bounds every request.
func NewChatClient(cfg config.GenerationConfig) (*ChatClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("generation base_url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("generation model is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ChatClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		topP:        cfg.TopP,
		client:      &http.Client{Timeout: timeout},
	}, nil
}

// Model returns the configured model name.
func (c *ChatClient) Model() string { return c.model }

// Generate sends req and returns the first choice's content. Transport errors,
// timeouts, non-2xx statuses and empty replies wrap ErrGeneration.
func (c *ChatClient) Generate(ctx context.Context, req *Request) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:               c.model,
		Messages:            req.Messages,
		Temperature:         c.temperature,
		MaxCompletionTokens: c.maxTokens,
		TopP:                c.topP,
		ResponseFormat:      responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %w", ErrGeneration, err)
	}
	var parsed chatResponse
	jsonErr := json.Unmarshal(data, &parsed)
	if resp.StatusCode/100 != 2 {
		msg := strings.TrimSpace(string(data))
		if jsonErr == nil && parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrGeneration, resp.StatusCode, utils.Truncate(msg, 512))
	}
	if jsonErr != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrGeneration, jsonErr)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrGeneration)
	}
	return parsed.Choices[0].Message.Content, nil
}
