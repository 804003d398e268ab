// Package llm provides a client for OpenAI-compatible chat completion services.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docuchat/rag-server/internal/config"
	"github.com/docuchat/rag-server/internal/pkg/errors"
	"github.com/docuchat/rag-server/internal/pkg/logger"
)

// Client sends chat completion requests.
type Client interface {
	// Complete sends a chat completion request and returns the assistant reply.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest describes a chat completion call.
type CompletionRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// HTTPClient is a Client backed by an OpenAI-compatible HTTP endpoint.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

// NewHTTPClient creates a chat completion client.
func NewHTTPClient(cfg config.LLMConfig, log *logger.Logger) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	return &HTTPClient{
		baseURL: cfg.URL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a chat completion request.
func (c *HTTPClient) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", errors.Wrap(errors.CodeLLMError, "failed to encode completion request", err)
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(errors.CodeLLMError, "failed to build completion request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", errors.Wrap(errors.CodeLLMError, "completion request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(errors.CodeLLMError, "failed to read completion response", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.log.Error("llm request failed", "status", resp.StatusCode, "model", req.Model)
		return "", errors.New(errors.CodeLLMError,
			fmt.Sprintf("llm returned status %d", resp.StatusCode))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", errors.Wrap(errors.CodeLLMError, "failed to decode completion response", err)
	}

	if parsed.Error != nil {
		return "", errors.New(errors.CodeLLMError, parsed.Error.Message)
	}

	if len(parsed.Choices) == 0 {
		return "", errors.New(errors.CodeLLMError, "completion response has no choices")
	}

	return parsed.Choices[0].Message.Content, nil
}
