// Package turn runs one agent turn: it loops model calls and tool dispatch
// until the model answers with plain text, reporting progress through hooks.
package turn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"threadpilot/internal/llm"
	"threadpilot/internal/tools"
)

// Chatter is the slice of llm.Client the runner needs. Tests substitute a
// scripted implementation.
type Chatter interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// Decision is the outcome of a permission check for one tool call.
type Decision struct {
	Allow bool
	// Args is the input to actually run with; the checker returns the
	// snapshot it showed the approver so later mutations cannot slip in.
	Args    json.RawMessage
	Message string
}

// PermissionFunc gates a tool call. A returned error aborts the turn;
// a denial is reported to the model as a failed tool result instead.
type PermissionFunc func(ctx context.Context, name string, args json.RawMessage) (Decision, error)

// Hooks observe turn progress. All fields are optional.
type Hooks struct {
	OnAssistantText func(text string)
	OnToolStart     func(name string, args json.RawMessage)
	OnToolDone      func(name string, result string, err error, duration time.Duration)
}

type Runner struct {
	Client       Chatter
	Tools        *tools.Registry
	Logger       *zap.Logger
	SystemPrompt string
	Temperature  float32
	MaxTurns     int
	Permission   PermissionFunc
}

// Result is the outcome of a completed turn. Messages holds everything
// appended to the conversation during the turn, for the history store.
type Result struct {
	Text     string
	Messages []llm.Message
}

var ErrMaxTurns = errors.New("turn limit reached without a final answer")

func (r *Runner) logger() *zap.Logger {
	if r == nil || r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

// Run executes one turn. history is the prior conversation (without system
// prompt); userText is the new inbound message.
func (r *Runner) Run(ctx context.Context, history []llm.Message, userText string, hooks Hooks) (Result, error) {
	if r == nil || r.Client == nil {
		return Result{}, errors.New("llm client is nil")
	}
	userText = strings.TrimSpace(userText)
	if userText == "" {
		return Result{}, errors.New("message text is required")
	}
	maxTurns := r.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 40
	}

	appended := make([]llm.Message, 0, 8)
	appended = append(appended, llm.Message{Role: "user", Content: userText})

	reqMessages := make([]llm.Message, 0, len(history)+8)
	if strings.TrimSpace(r.SystemPrompt) != "" {
		reqMessages = append(reqMessages, llm.Message{Role: "system", Content: r.SystemPrompt})
	}
	reqMessages = append(reqMessages, history...)
	reqMessages = append(reqMessages, appended...)

	for turn := 0; turn < maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return Result{Messages: appended}, err
		}

		resp, err := r.Client.Chat(ctx, llm.ChatRequest{
			Messages:    reqMessages,
			Tools:       r.Tools.Definitions(),
			Temperature: r.Temperature,
		})
		if err != nil {
			return Result{Messages: appended}, err
		}
		if resp == nil {
			return Result{Messages: appended}, errors.New("empty model response")
		}
		msg := resp.Message
		reqMessages = append(reqMessages, msg)
		appended = append(appended, msg)

		if text := strings.TrimSpace(msg.Content); text != "" && hooks.OnAssistantText != nil {
			hooks.OnAssistantText(text)
		}

		if len(msg.ToolCalls) == 0 {
			return Result{Text: msg.Content, Messages: appended}, nil
		}

		for _, call := range msg.ToolCalls {
			toolMsg, err := r.runToolCall(ctx, call, hooks)
			if err != nil {
				return Result{Messages: appended}, err
			}
			reqMessages = append(reqMessages, toolMsg)
			appended = append(appended, toolMsg)
		}
	}

	return Result{Messages: appended}, ErrMaxTurns
}

func (r *Runner) runToolCall(ctx context.Context, call llm.ToolCall, hooks Hooks) (llm.Message, error) {
	args := json.RawMessage(call.Arguments)
	toolMsg := llm.Message{Role: "tool", ToolCallID: call.ID}

	if hooks.OnToolStart != nil {
		hooks.OnToolStart(call.Name, args)
	}

	if r.Permission != nil {
		decision, err := r.Permission(ctx, call.Name, args)
		if err != nil {
			return llm.Message{}, fmt.Errorf("permission check for %s: %w", call.Name, err)
		}
		if !decision.Allow {
			message := strings.TrimSpace(decision.Message)
			if message == "" {
				message = fmt.Sprintf("permission to run %s was not granted", call.Name)
			}
			r.logger().Info("tool call blocked",
				zap.String("tool", call.Name),
				zap.String("reason", message))
			if hooks.OnToolDone != nil {
				hooks.OnToolDone(call.Name, "", errors.New(message), 0)
			}
			toolMsg.Content = "ERROR: " + message
			return toolMsg, nil
		}
		if len(decision.Args) > 0 {
			args = decision.Args
		}
	}

	start := time.Now()
	result, callErr := r.Tools.Call(ctx, call.Name, args)
	duration := time.Since(start)

	if hooks.OnToolDone != nil {
		hooks.OnToolDone(call.Name, result, callErr, duration)
	}

	if callErr != nil {
		// Cancellation aborts the turn; ordinary tool failures go back to
		// the model so it can adjust.
		if ctx.Err() != nil {
			return llm.Message{}, ctx.Err()
		}
		toolMsg.Content = "ERROR: " + callErr.Error()
		return toolMsg, nil
	}
	toolMsg.Content = result
	return toolMsg, nil
}
