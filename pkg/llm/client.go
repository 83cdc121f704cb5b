// Package llm provides a client for OpenAI-compatible chat completion and
// embedding backends, plus token usage accounting for both.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// ClientConfig holds connection settings for the LLM backend.
type ClientConfig struct {
	BaseURL        string        `json:"base_url"`
	APIKey         string        `json:"api_key"`
	Model          string        `json:"model"`
	EmbeddingModel string        `json:"embedding_model"`
	Timeout        time.Duration `json:"timeout"`
	// Cooldown is how long the client treats the backend as down after a
	// connection-level failure before probing it again.
	Cooldown time.Duration `json:"cooldown"`
}

// getDefaultClientConfig returns default configuration for the client.
func getDefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        "http://localhost:8001/v1",
		Model:          "gpt-4o-mini",
		EmbeddingModel: "text-embedding-3-small",
		Timeout:        60 * time.Second,
		Cooldown:       30 * time.Second,
	}
}

// Message is one chat turn sent to the backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token consumption for one backend call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the parsed result of a chat completion call.
type ChatResponse struct {
	Content string `json:"content"`
	Usage   Usage  `json:"usage"`
}

// Client talks to an OpenAI-compatible backend. A connection-level failure
// marks the backend unavailable for a cooldown window so callers can switch
// to their fallback paths immediately instead of timing out on every
// request.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	tracker    *TokenUsageTracker

	mu        sync.Mutex
	downUntil time.Time
}

// NewClient creates a backend client. Passing a nil config uses defaults;
// tracker may be nil to disable usage accounting.
func NewClient(config *ClientConfig, tracker *TokenUsageTracker) *Client {
	if config == nil {
		config = getDefaultClientConfig()
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Cooldown == 0 {
		config.Cooldown = 30 * time.Second
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     slog.Default().With("component", "llm-client"),
		tracker:    tracker,
	}
}

// Available reports whether the backend is configured and not inside a
// failure cooldown window.
func (c *Client) Available() bool {
	if c.config.BaseURL == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().After(c.downUntil)
}

// markUnavailable starts the cooldown window after a connection failure.
func (c *Client) markUnavailable() {
	c.mu.Lock()
	c.downUntil = time.Now().Add(c.config.Cooldown)
	c.mu.Unlock()
	c.logger.Warn("LLM backend marked unavailable", "cooldown", c.config.Cooldown)
}

// EmbeddingModel returns the configured embedding model name.
func (c *Client) EmbeddingModel() string {
	return c.config.EmbeddingModel
}

// Model returns the configured chat model name.
func (c *Client) Model() string {
	return c.config.Model
}

// Complete sends a single-prompt completion request and returns the raw
// response text.
func (c *Client) Complete(ctx context.Context, prompt string, temperature float64, maxTokens int) (string, error) {
	resp, err := c.Chat(ctx, []Message{{Role: "user", Content: prompt}}, temperature, maxTokens)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Chat sends a chat completion request.
func (c *Client) Chat(ctx context.Context, messages []Message, temperature float64, maxTokens int) (*ChatResponse, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	resp, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("chat completion returned no choices")
	}

	if c.tracker != nil {
		c.tracker.Record(ServiceChat, OperationCompletion, c.config.Model, parsed.Usage)
	}

	return &ChatResponse{
		Content: parsed.Choices[0].Message.Content,
		Usage:   parsed.Usage,
	}, nil
}

// StreamChat sends a streaming chat completion request and calls onDelta for
// each content fragment as it arrives. The returned usage is taken from the
// stream when the backend reports it and estimated otherwise.
func (c *Client) StreamChat(ctx context.Context, messages []Message, temperature float64, onDelta func(string)) (*Usage, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: temperature,
		Stream:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	resp, err := c.post(ctx, "/chat/completions", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat stream returned status %d: %s", resp.StatusCode, string(data))
	}

	usage := &Usage{}
	completionChars := 0
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}
		if payload == "" {
			continue
		}

		var event chatCompletionResponse
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			c.logger.Debug("Skipping malformed stream event", "error", err)
			continue
		}
		if event.Usage.TotalTokens > 0 {
			*usage = event.Usage
		}
		if len(event.Choices) > 0 && event.Choices[0].Delta.Content != "" {
			completionChars += len(event.Choices[0].Delta.Content)
			onDelta(event.Choices[0].Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return usage, fmt.Errorf("chat stream interrupted: %w", err)
	}

	if usage.TotalTokens == 0 {
		// Rough estimate for backends that omit usage from the stream.
		usage.CompletionTokens = completionChars / 4
		for _, m := range messages {
			usage.PromptTokens += len(m.Content) / 4
		}
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}

	if c.tracker != nil {
		c.tracker.Record(ServiceChat, OperationStreaming, c.config.Model, *usage)
	}

	return usage, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Usage Usage `json:"usage"`
}

// CreateEmbeddings generates embedding vectors for texts, preserving input
// order.
func (c *Client) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Model: c.config.EmbeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	resp, err := c.post(ctx, "/embeddings", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding request returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding response index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}

	if c.tracker != nil {
		c.tracker.Record(ServiceEmbedding, OperationEmbedding, c.config.EmbeddingModel, parsed.Usage)
	}

	return vectors, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	url := strings.TrimSuffix(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.markUnavailable()
		return nil, fmt.Errorf("backend request failed: %w", err)
	}
	return resp, nil
}
