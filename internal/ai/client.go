// Package ai wraps the hosted chat-completion API (AIML, OpenAI-compatible)
// behind the three operations the marketplace needs: agent chat, submission
// moderation, and listing-text generation.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/somniax/backend/internal/circuitbreaker"
	"github.com/somniax/backend/internal/config"
)

// Message is one turn of a chat-completion conversation.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

type completionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls the chat-completions endpoint with bearer auth.
type Client struct {
	apiKey    string
	baseURL   string
	model     string
	maxTokens int
	http      *http.Client
	breaker   *circuitbreaker.CircuitBreaker
	logger    *log.Logger
}

// NewClient builds a client from config, reading the API key from the
// AIML_API_KEY environment variable.
func NewClient(cfg config.AIConfig) (*Client, error) {
	apiKey := os.Getenv("AIML_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("AIML_API_KEY must be set")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.aimlapi.com"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1000
	}

	return &Client{
		apiKey:    apiKey,
		baseURL:   baseURL,
		model:     model,
		maxTokens: maxTokens,
		http:      &http.Client{Timeout: 60 * time.Second},
		breaker:   circuitbreaker.New(circuitbreaker.DefaultConfig("aiml")),
		logger:    log.New(log.Writer(), "[AIML] ", log.LstdFlags),
	}, nil
}

// Chat runs a completion with the client's default token budget and a 0.7
// temperature, returning the assistant's text.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	return c.complete(ctx, messages, c.maxTokens, 0.7)
}

func (c *Client) complete(ctx context.Context, messages []Message, maxTokens int, temperature float64) (string, error) {
	var content string

	err := c.breaker.Execute(func() error {
		body, err := json.Marshal(completionRequest{
			Model:       c.model,
			Messages:    messages,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		})
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("completion request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return fmt.Errorf("completion API returned HTTP %d: %s", resp.StatusCode, detail)
		}

		var parsed completionResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return fmt.Errorf("decode completion response: %w", err)
		}
		if parsed.Error != nil {
			return fmt.Errorf("completion API error: %s", parsed.Error.Message)
		}
		if len(parsed.Choices) == 0 {
			return fmt.Errorf("completion API returned no choices")
		}

		content = parsed.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	return content, nil
}
