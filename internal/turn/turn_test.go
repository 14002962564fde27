package turn

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"threadpilot/internal/llm"
	"threadpilot/internal/tools"
)

// scriptedClient replays a fixed sequence of responses and records requests.
type scriptedClient struct {
	responses []*llm.ChatResponse
	requests  []llm.ChatRequest
}

func (c *scriptedClient) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	c.requests = append(c.requests, req)
	if len(c.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := c.responses[0]
	c.responses = c.responses[1:]
	return resp, nil
}

type echoTool struct{ lastArgs string }

func (t *echoTool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: "echo", Parameters: map[string]any{"type": "object"}}
}

func (t *echoTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	t.lastArgs = string(args)
	var in struct {
		Text string `json:"text"`
	}
	_ = json.Unmarshal(args, &in)
	return "echo: " + in.Text, nil
}

func textResponse(text string) *llm.ChatResponse {
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: text}}
}

func toolCallResponse(id, name, args string) *llm.ChatResponse {
	return &llm.ChatResponse{Message: llm.Message{
		Role:      "assistant",
		ToolCalls: []llm.ToolCall{{ID: id, Name: name, Arguments: args}},
	}}
}

func TestRunPlainAnswer(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{textResponse("hi there")}}
	runner := &Runner{Client: client, Tools: tools.NewRegistry(), SystemPrompt: "be brief"}

	var texts []string
	res, err := runner.Run(context.Background(), nil, "hello", Hooks{
		OnAssistantText: func(s string) { texts = append(texts, s) },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "hi there" {
		t.Errorf("Text = %q", res.Text)
	}
	if len(texts) != 1 || texts[0] != "hi there" {
		t.Errorf("OnAssistantText calls = %v", texts)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("Messages = %d, want user + assistant", len(res.Messages))
	}
	if got := client.requests[0].Messages[0]; got.Role != "system" || got.Content != "be brief" {
		t.Errorf("system message = %+v", got)
	}
}

func TestRunDispatchesToolAndFeedsResultBack(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("call_1", "echo", `{"text":"ping"}`),
		textResponse("done"),
	}}
	registry := tools.NewRegistry()
	registry.Register(&echoTool{})
	runner := &Runner{Client: client, Tools: registry}

	var started, finished []string
	res, err := runner.Run(context.Background(), nil, "go", Hooks{
		OnToolStart: func(name string, _ json.RawMessage) { started = append(started, name) },
		OnToolDone: func(name, _ string, _ error, _ time.Duration) {
			finished = append(finished, name)
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "done" {
		t.Errorf("Text = %q", res.Text)
	}
	if len(started) != 1 || started[0] != "echo" {
		t.Errorf("OnToolStart calls = %v", started)
	}
	if len(finished) != 1 || finished[0] != "echo" {
		t.Errorf("OnToolDone calls = %v", finished)
	}
	second := client.requests[1].Messages
	toolMsg := second[len(second)-1]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call_1" || toolMsg.Content != "echo: ping" {
		t.Errorf("tool message = %+v", toolMsg)
	}
}

func TestRunDenialBecomesToolError(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("call_1", "echo", `{"text":"ping"}`),
		textResponse("understood"),
	}}
	registry := tools.NewRegistry()
	echo := &echoTool{}
	registry.Register(echo)
	runner := &Runner{
		Client: client,
		Tools:  registry,
		Permission: func(ctx context.Context, name string, args json.RawMessage) (Decision, error) {
			return Decision{Allow: false, Message: "User declined permission to run echo"}, nil
		},
	}

	res, err := runner.Run(context.Background(), nil, "go", Hooks{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "understood" {
		t.Errorf("Text = %q", res.Text)
	}
	if echo.lastArgs != "" {
		t.Error("denied tool was executed")
	}
	second := client.requests[1].Messages
	toolMsg := second[len(second)-1]
	if !strings.HasPrefix(toolMsg.Content, "ERROR: User declined") {
		t.Errorf("tool message content = %q", toolMsg.Content)
	}
}

func TestRunApprovedArgsReplaceModelArgs(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("call_1", "echo", `{"text":"tampered"}`),
		textResponse("ok"),
	}}
	registry := tools.NewRegistry()
	echo := &echoTool{}
	registry.Register(echo)
	runner := &Runner{
		Client: client,
		Tools:  registry,
		Permission: func(ctx context.Context, name string, args json.RawMessage) (Decision, error) {
			return Decision{Allow: true, Args: json.RawMessage(`{"text":"approved"}`)}, nil
		},
	}

	if _, err := runner.Run(context.Background(), nil, "go", Hooks{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if echo.lastArgs != `{"text":"approved"}` {
		t.Errorf("tool ran with %q", echo.lastArgs)
	}
}

func TestRunPermissionErrorAbortsTurn(t *testing.T) {
	client := &scriptedClient{responses: []*llm.ChatResponse{
		toolCallResponse("call_1", "echo", `{}`),
	}}
	registry := tools.NewRegistry()
	registry.Register(&echoTool{})
	runner := &Runner{
		Client: client,
		Tools:  registry,
		Permission: func(ctx context.Context, name string, args json.RawMessage) (Decision, error) {
			return Decision{}, errors.New("gate unavailable")
		},
	}

	if _, err := runner.Run(context.Background(), nil, "go", Hooks{}); err == nil {
		t.Fatal("expected error from permission failure")
	}
}

func TestRunCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := &scriptedClient{responses: []*llm.ChatResponse{textResponse("x")}}
	runner := &Runner{Client: client, Tools: tools.NewRegistry()}

	if _, err := runner.Run(ctx, nil, "go", Hooks{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestRunMaxTurns(t *testing.T) {
	responses := make([]*llm.ChatResponse, 0, 3)
	for i := 0; i < 3; i++ {
		responses = append(responses, toolCallResponse("c", "echo", `{}`))
	}
	client := &scriptedClient{responses: responses}
	registry := tools.NewRegistry()
	registry.Register(&echoTool{})
	runner := &Runner{Client: client, Tools: registry, MaxTurns: 3}

	if _, err := runner.Run(context.Background(), nil, "go", Hooks{}); !errors.Is(err, ErrMaxTurns) {
		t.Fatalf("err = %v, want ErrMaxTurns", err)
	}
}
