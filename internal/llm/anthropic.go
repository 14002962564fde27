package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

const (
	defaultAnthropicBaseURL   = "https://api.anthropic.com"
	defaultAnthropicMaxTokens = 4096
)

func (c *Client) initAnthropicSDK() error {
	base := strings.TrimSpace(c.BaseURL)
	if base == "" {
		base = defaultAnthropicBaseURL
	}
	base = strings.TrimSuffix(strings.TrimRight(base, "/"), "/v1")
	base = strings.TrimRight(base, "/") + "/"

	opts := []anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(c.APIKey),
		anthropicoption.WithBaseURL(base),
	}
	if c.HTTPClient != nil {
		opts = append(opts, anthropicoption.WithHTTPClient(c.HTTPClient))
	}
	c.anthropicSDK = anthropic.NewClient(opts...)
	return nil
}

func (c *Client) chatAnthropic(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	system, messages, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}

	params := anthropic.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Model:     anthropic.Model(c.Model),
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature != 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		tools, err := toAnthropicTools(req.Tools)
		if err != nil {
			return nil, err
		}
		params.Tools = tools
	}

	resp, err := c.anthropicSDK.Messages.New(ctx, params)
	if err != nil {
		return nil, err
	}
	return fromAnthropicMessage(resp), nil
}

// toAnthropicMessages splits leading system messages into the system prompt,
// batches consecutive tool results into single user messages, and maps the
// rest onto Anthropic content blocks.
func toAnthropicMessages(msgs []Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam, error) {
	var (
		systemTexts []string
		cursor      int
	)
	for cursor < len(msgs) && strings.EqualFold(strings.TrimSpace(msgs[cursor].Role), "system") {
		if strings.TrimSpace(msgs[cursor].Content) != "" {
			systemTexts = append(systemTexts, msgs[cursor].Content)
		}
		cursor++
	}
	system := ([]anthropic.TextBlockParam)(nil)
	if len(systemTexts) > 0 {
		system = []anthropic.TextBlockParam{{Text: strings.Join(systemTexts, "\n\n")}}
	}

	out := make([]anthropic.MessageParam, 0, len(msgs)-cursor)
	pendingToolResults := ([]anthropic.ContentBlockParamUnion)(nil)
	flushToolResults := func() {
		if len(pendingToolResults) == 0 {
			return
		}
		out = append(out, anthropic.NewUserMessage(pendingToolResults...))
		pendingToolResults = nil
	}

	for ; cursor < len(msgs); cursor++ {
		m := msgs[cursor]
		switch strings.TrimSpace(strings.ToLower(m.Role)) {
		case "tool":
			id := strings.TrimSpace(m.ToolCallID)
			if id == "" {
				return nil, nil, errors.New("tool message missing tool_call_id")
			}
			isError := strings.HasPrefix(m.Content, "ERROR:")
			pendingToolResults = append(pendingToolResults, anthropic.NewToolResultBlock(id, m.Content, isError))
		case "user":
			flushToolResults()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			flushToolResults()
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
			if strings.TrimSpace(m.Content) != "" || len(m.ToolCalls) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(m.Content))
			}
			for _, call := range m.ToolCalls {
				name := strings.TrimSpace(call.Name)
				if name == "" {
					return nil, nil, errors.New("tool call missing name")
				}
				var input any = map[string]any{}
				if args := strings.TrimSpace(call.Arguments); args != "" {
					if err := json.Unmarshal([]byte(args), &input); err != nil {
						input = map[string]any{"__raw": args}
					}
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, input, name))
			}
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case "system":
			// Mid-conversation system notes: keep ordering as a user message.
			flushToolResults()
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		default:
			return nil, nil, fmt.Errorf("unsupported message role: %q", m.Role)
		}
	}
	flushToolResults()
	return system, out, nil
}

func toAnthropicTools(tools []ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		schema, err := toAnthropicToolInputSchema(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("tool %s: %w", t.Name, err)
		}
		tool := anthropic.ToolParam{
			Name:        t.Name,
			InputSchema: schema,
		}
		if desc := strings.TrimSpace(t.Description); desc != "" {
			tool.Description = anthropic.String(desc)
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out, nil
}

func toAnthropicToolInputSchema(v any) (anthropic.ToolInputSchemaParam, error) {
	m, err := toJSONSchemaMap(v)
	if err != nil {
		return anthropic.ToolInputSchemaParam{}, err
	}
	out := anthropic.ToolInputSchemaParam{}
	out.Type = out.Type.Default()
	extras := make(map[string]any)
	for key, value := range m {
		switch key {
		case "properties":
			out.Properties = value
		case "required":
			out.Required = toStringSlice(value)
		case "type":
			// SDK defaults to "object" when omitted.
		default:
			extras[key] = value
		}
	}
	if len(extras) > 0 {
		out.ExtraFields = extras
	}
	return out, nil
}

func toJSONSchemaMap(v any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	switch p := v.(type) {
	case map[string]any:
		return p, nil
	case json.RawMessage:
		if len(p) == 0 {
			return map[string]any{}, nil
		}
		var out map[string]any
		if err := json.Unmarshal(p, &out); err != nil {
			return nil, fmt.Errorf("parse tool schema: %w", err)
		}
		return out, nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal tool schema: %w", err)
		}
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("parse tool schema: %w", err)
		}
		return out, nil
	}
}

func toStringSlice(v any) []string {
	switch raw := v.(type) {
	case []string:
		return append([]string{}, raw...)
	case []any:
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func fromAnthropicMessage(msg *anthropic.Message) *ChatResponse {
	if msg == nil {
		return &ChatResponse{Message: Message{Role: "assistant"}}
	}
	var (
		content   strings.Builder
		toolCalls []ToolCall
	)
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			if content.Len() > 0 {
				content.WriteString("\n")
			}
			content.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			toolCalls = append(toolCalls, ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: string(variant.Input),
			})
		default:
			// Ignore unknown block variants.
		}
	}

	role := "assistant"
	if msg.Role != "" {
		role = string(msg.Role)
	}
	return &ChatResponse{
		Message: Message{
			Role:      role,
			Content:   content.String(),
			ToolCalls: toolCalls,
		},
		FinishReason: string(msg.StopReason),
		Usage: Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
		},
	}
}
