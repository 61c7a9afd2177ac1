package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dgallion1/prdbuilder/internal/stream"
)

const anthropicVersion = "2023-06-01"

// ClaudeClient streams completions from the Anthropic Messages API.
type ClaudeClient struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	httpClient *http.Client
}

func NewClaudeClient(apiKey, model, baseURL string, maxTokens int) *ClaudeClient {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}
	return &ClaudeClient{
		apiKey:    apiKey,
		model:     model,
		baseURL:   strings.TrimRight(baseURL, "/"),
		maxTokens: maxTokens,
		// No overall timeout: a generation is bounded by its context.
		httpClient: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: 120 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
	}
}

func (c *ClaudeClient) Model() string { return c.model }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []anthropicMessage `json:"messages"`
	Stream    bool               `json:"stream"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// anthropicEvent covers the fields used from every streaming event type.
type anthropicEvent struct {
	Type    string `json:"type"`
	Message struct {
		Usage struct {
			InputTokens int `json:"input_tokens"`
		} `json:"usage"`
	} `json:"message"`
	Delta struct {
		Type       string `json:"type"`
		Text       string `json:"text"`
		StopReason string `json:"stop_reason"`
	} `json:"delta"`
	Usage struct {
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *anthropicError `json:"error"`
}

// StreamRequest is one generation call.
type StreamRequest struct {
	System    string
	Prompt    string
	MaxTokens int // 0 uses the client default

	// Bind, if set, receives the response body once the stream is open so
	// the caller can close it to abort the generation.
	Bind func(io.Closer)
}

// Usage summarizes a finished stream.
type Usage struct {
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	StopReason   string `json:"stop_reason"`
}

// Stream sends the request and calls onDelta with each text fragment in
// order. It returns when the model finishes, onDelta returns an error, ctx
// ends, or the stream fails.
func (c *ClaudeClient) Stream(ctx context.Context, req StreamRequest, onDelta func(string) error) (Usage, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	reqBody := anthropicRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages: []anthropicMessage{
			{Role: "user", Content: req.Prompt},
		},
		Stream: true,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return Usage{}, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return Usage{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Usage{}, fmt.Errorf("claude api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		msg := errorMessage(respBody)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return Usage{}, &RetryableError{StatusCode: resp.StatusCode, Message: msg}
		}
		return Usage{}, &APIError{StatusCode: resp.StatusCode, Message: msg}
	}
	if req.Bind != nil {
		req.Bind(resp.Body)
	}

	var usage Usage
	rd := stream.NewReader(resp.Body)
	for {
		_, data, err := rd.Next()
		if err != nil {
			if ctx.Err() != nil {
				return usage, ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return usage, fmt.Errorf("claude stream: %w", io.ErrUnexpectedEOF)
			}
			return usage, fmt.Errorf("claude stream: %w", err)
		}

		var ev anthropicEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			// Provider events are always JSON; skip anything else.
			continue
		}

		switch ev.Type {
		case "message_start":
			usage.InputTokens = ev.Message.Usage.InputTokens
		case "content_block_delta":
			if ev.Delta.Type != "text_delta" || ev.Delta.Text == "" {
				continue
			}
			if err := onDelta(ev.Delta.Text); err != nil {
				return usage, err
			}
		case "message_delta":
			usage.OutputTokens = ev.Usage.OutputTokens
			if ev.Delta.StopReason != "" {
				usage.StopReason = ev.Delta.StopReason
			}
		case "message_stop":
			return usage, nil
		case "error":
			e := anthropicError{Type: "error", Message: "unknown error"}
			if ev.Error != nil {
				e = *ev.Error
			}
			if e.Type == "overloaded_error" || e.Type == "rate_limit_error" || e.Type == "api_error" {
				return usage, &RetryableError{StatusCode: statusOverloaded, Message: e.Message}
			}
			return usage, &APIError{StatusCode: http.StatusOK, Type: e.Type, Message: e.Message}
		}
	}
}

// Close releases resources.
func (c *ClaudeClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func errorMessage(body []byte) string {
	var env struct {
		Error *anthropicError `json:"error"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return strings.TrimSpace(string(body))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
