// Package llm is the model client behind the agent turn runtime. It speaks
// the Anthropic Messages API through the official SDK and any
// OpenAI-compatible chat/completions endpoint over plain HTTP.
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

	"github.com/anthropics/anthropic-sdk-go"
)

type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

func ParseProvider(raw string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", string(ProviderAnthropic), "anthropics":
		return ProviderAnthropic, nil
	case string(ProviderOpenAI):
		return ProviderOpenAI, nil
	default:
		return "", fmt.Errorf("unsupported model provider %q (supported: %q, %q)", raw, ProviderAnthropic, ProviderOpenAI)
	}
}

type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type ChatRequest struct {
	Messages    []Message
	Tools       []ToolDefinition
	MaxTokens   int
	Temperature float32
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// ChatResponse is the single assistant turn the model produced, flattened
// from whatever wire shape the provider uses.
type ChatResponse struct {
	Message      Message
	FinishReason string
	Usage        Usage
}

type Client struct {
	Provider  Provider
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int

	HTTPClient   *http.Client
	anthropicSDK anthropic.Client
}

type Options struct {
	Provider  string
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
}

func NewClient(opts Options) (*Client, error) {
	provider, err := ParseProvider(opts.Provider)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, errors.New("model api key is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("model name is required")
	}
	c := &Client{
		Provider:  provider,
		BaseURL:   strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		APIKey:    strings.TrimSpace(opts.APIKey),
		Model:     strings.TrimSpace(opts.Model),
		MaxTokens: opts.MaxTokens,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
	if provider == ProviderAnthropic {
		if err := c.initAnthropicSDK(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if c == nil {
		return nil, errors.New("nil client")
	}
	switch c.Provider {
	case ProviderAnthropic:
		return c.chatAnthropic(ctx, req)
	case ProviderOpenAI:
		return c.chatOpenAI(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported provider: %q", c.Provider)
	}
}

// OpenAI-compatible wire types. Only what the turn loop needs.

type openAIRequest struct {
	Model       string           `json:"model"`
	Messages    []openAIMessage  `json:"messages"`
	Tools       []openAITool     `json:"tools,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float32          `json:"temperature,omitempty"`
}

type openAIMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCalls  []openAIToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openAIToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openAITool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
		Parameters  any    `json:"parameters,omitempty"`
	} `json:"function"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

func (c *Client) chatOpenAI(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	base := c.BaseURL
	if base == "" {
		base = "https://api.openai.com"
	}

	wire := openAIRequest{
		Model:       c.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	if wire.MaxTokens <= 0 {
		wire.MaxTokens = c.MaxTokens
	}
	for _, m := range req.Messages {
		om := openAIMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, call := range m.ToolCalls {
			oc := openAIToolCall{ID: call.ID, Type: "function"}
			oc.Function.Name = call.Name
			oc.Function.Arguments = call.Arguments
			om.ToolCalls = append(om.ToolCalls, oc)
		}
		wire.Messages = append(wire.Messages, om)
	}
	for _, t := range req.Tools {
		ot := openAITool{Type: "function"}
		ot.Function.Name = t.Name
		ot.Function.Description = t.Description
		ot.Function.Parameters = t.Parameters
		wire.Tools = append(wire.Tools, ot)
	}

	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("model api error: %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}

	choice := out.Choices[0]
	msg := Message{Role: choice.Message.Role, Content: choice.Message.Content}
	if msg.Role == "" {
		msg.Role = "assistant"
	}
	for _, call := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: call.Function.Arguments,
		})
	}
	return &ChatResponse{
		Message:      msg,
		FinishReason: choice.FinishReason,
		Usage: Usage{
			PromptTokens:     out.Usage.PromptTokens,
			CompletionTokens: out.Usage.CompletionTokens,
		},
	}, nil
}

func (c *Client) httpClient() *http.Client {
	if c == nil || c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}
