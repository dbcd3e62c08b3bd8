// Package provider adapts the internal conversation shape to an
// OpenAI-compatible completion API and back. Two generations of the API
// are supported: the structured Responses surface and the legacy chat
// completions surface. Which one the configured endpoint speaks is
// discovered on first use and remembered.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// NoResponsePlaceholder is returned instead of empty text when the
// provider produced no extractable output.
const NoResponsePlaceholder = "(No response.)"

// ErrConversationShape is returned when the caller supplies both a single
// message and a turn list, or neither.
var ErrConversationShape = errors.New("exactly one of Message or Turns must be set")

// ErrMissingAPIKey is returned when no provider credential is configured.
var ErrMissingAPIKey = errors.New("missing OPENAI_API_KEY")

// Error is the single adapter-level failure type: transport errors,
// non-2xx statuses, and malformed response bodies all surface as one of
// these with a readable cause.
type Error struct {
	Cause error
}

func (e *Error) Error() string { return "provider call failed: " + e.Cause.Error() }
func (e *Error) Unwrap() error { return e.Cause }

// Turn is one role-tagged conversation entry.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage carries the normalized token counters. A nil field means the
// provider did not report that counter.
type Usage struct {
	InputTokens  *int64 `json:"input_tokens,omitempty"`
	OutputTokens *int64 `json:"output_tokens,omitempty"`
	TotalTokens  *int64 `json:"total_tokens,omitempty"`
}

// Result is a normalized completion.
type Result struct {
	Text       string
	Model      string
	ResponseID string
	Usage      *Usage
}

// GenerateInput describes one completion request. Exactly one of Message
// (a single trailing user message) or Turns (an ordered conversation)
// must be set.
type GenerateInput struct {
	Message         string
	Turns           []Turn
	Instructions    string
	Model           string
	Temperature     float64
	MaxOutputTokens int
	Metadata        map[string]string
}

type surface int

const (
	surfaceUnknown surface = iota
	surfaceResponses
	surfaceChatCompletions
)

// Client talks to one OpenAI-compatible endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger

	mu      sync.Mutex
	surface surface
}

// NewClient builds a client for the given endpoint. The API key is
// required; the base URL defaults to the public OpenAI endpoint.
func NewClient(apiKey, baseURL string, logger *logrus.Logger) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Client{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logger,
	}, nil
}

// Generate runs one completion. No internal retries: a failed call is
// reported once, as an *Error.
func (c *Client) Generate(ctx context.Context, in GenerateInput) (*Result, error) {
	hasMessage := strings.TrimSpace(in.Message) != ""
	if hasMessage == (len(in.Turns) > 0) {
		return nil, ErrConversationShape
	}

	switch c.currentSurface() {
	case surfaceChatCompletions:
		return c.generateChatCompletions(ctx, in)
	case surfaceResponses:
		return c.generateResponses(ctx, in, false)
	default:
		// Probe: prefer the Responses surface, fall back once if the
		// endpoint does not route it.
		return c.generateResponses(ctx, in, true)
	}
}

func (c *Client) currentSurface() surface {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.surface
}

func (c *Client) setSurface(s surface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.surface = s
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

type responsesRequest struct {
	Model           string            `json:"model"`
	Instructions    string            `json:"instructions,omitempty"`
	Input           any               `json:"input"`
	Temperature     float64           `json:"temperature"`
	MaxOutputTokens int               `json:"max_output_tokens,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

type responsesResponse struct {
	ID         string `json:"id"`
	Model      string `json:"model"`
	OutputText string `json:"output_text"`
	Output     []struct {
		Type    string `json:"type"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	} `json:"output"`
	Usage *struct {
		InputTokens  *int64 `json:"input_tokens"`
		OutputTokens *int64 `json:"output_tokens"`
		TotalTokens  *int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) generateResponses(ctx context.Context, in GenerateInput, probing bool) (*Result, error) {
	var input any
	if len(in.Turns) > 0 {
		input = in.Turns
	} else {
		input = in.Message
	}

	req := responsesRequest{
		Model:           in.Model,
		Instructions:    in.Instructions,
		Input:           input,
		Temperature:     in.Temperature,
		MaxOutputTokens: in.MaxOutputTokens,
		Metadata:        in.Metadata,
	}

	body, status, err := c.post(ctx, "/responses", req)
	if err != nil {
		return nil, err
	}

	if probing && (status == http.StatusNotFound || status == http.StatusMethodNotAllowed) {
		c.logger.WithField("status", status).Info("responses surface not available, falling back to chat completions")
		c.setSurface(surfaceChatCompletions)
		return c.generateChatCompletions(ctx, in)
	}
	if status < 200 || status > 299 {
		return nil, &Error{Cause: statusError(status, body)}
	}
	if probing {
		c.setSurface(surfaceResponses)
	}

	var resp responsesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Cause: fmt.Errorf("malformed responses payload: %w", err)}
	}

	text := resp.OutputText
	if text == "" {
		var b strings.Builder
		for _, item := range resp.Output {
			for _, frag := range item.Content {
				if (frag.Type == "output_text" || frag.Type == "text") && frag.Text != "" {
					b.WriteString(frag.Text)
				}
			}
		}
		text = b.String()
	}

	var usage *Usage
	if resp.Usage != nil {
		usage = &Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}

	model := resp.Model
	if model == "" {
		model = in.Model
	}
	return &Result{
		Text:       orPlaceholder(text),
		Model:      model,
		ResponseID: resp.ID,
		Usage:      usage,
	}, nil
}

type chatCompletionsRequest struct {
	Model       string  `json:"model"`
	Messages    []Turn  `json:"messages"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type chatCompletionsResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     *int64 `json:"prompt_tokens"`
		CompletionTokens *int64 `json:"completion_tokens"`
		TotalTokens      *int64 `json:"total_tokens"`
	} `json:"usage"`
}

func (c *Client) generateChatCompletions(ctx context.Context, in GenerateInput) (*Result, error) {
	messages := make([]Turn, 0, len(in.Turns)+2)
	if in.Instructions != "" {
		messages = append(messages, Turn{Role: "system", Content: in.Instructions})
	}
	if len(in.Turns) > 0 {
		messages = append(messages, in.Turns...)
	} else {
		messages = append(messages, Turn{Role: "user", Content: in.Message})
	}

	req := chatCompletionsRequest{
		Model:       in.Model,
		Messages:    messages,
		Temperature: in.Temperature,
		MaxTokens:   in.MaxOutputTokens,
	}

	body, status, err := c.post(ctx, "/chat/completions", req)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, &Error{Cause: statusError(status, body)}
	}

	var resp chatCompletionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &Error{Cause: fmt.Errorf("malformed chat completions payload: %w", err)}
	}
	if len(resp.Choices) == 0 {
		return nil, &Error{Cause: errors.New("chat completions response had no choices")}
	}

	var usage *Usage
	if resp.Usage != nil {
		usage = &Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		}
	}

	model := resp.Model
	if model == "" {
		model = in.Model
	}
	return &Result{
		Text:       orPlaceholder(resp.Choices[0].Message.Content),
		Model:      model,
		ResponseID: resp.ID,
		Usage:      usage,
	}, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, int, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, &Error{Cause: fmt.Errorf("failed to marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, 0, &Error{Cause: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &Error{Cause: fmt.Errorf("request to %s failed: %w", path, err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, &Error{Cause: fmt.Errorf("failed to read response body: %w", err)}
	}
	return body, resp.StatusCode, nil
}

func statusError(status int, body []byte) error {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return fmt.Errorf("status %d: %s", status, parsed.Error.Message)
	}
	snippet := string(body)
	if len(snippet) > 300 {
		snippet = snippet[:300] + "..."
	}
	return fmt.Errorf("status %d: %s", status, snippet)
}

func orPlaceholder(text string) string {
	if strings.TrimSpace(text) == "" {
		return NoResponsePlaceholder
	}
	return text
}
