// Package bot wires the Slack edge, the window manager, the approval gate
// and the turn runtime together. One Bot serves every session.
package bot

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"threadpilot/internal/approval"
	"threadpilot/internal/chat"
	"threadpilot/internal/llm"
	"threadpilot/internal/reaction"
	"threadpilot/internal/sessions"
	"threadpilot/internal/store"
	"threadpilot/internal/tools"
	"threadpilot/internal/turn"
	"threadpilot/internal/windows"
)

type Options struct {
	Sink       chat.Sink
	Indicators chat.Indicators
	Client     turn.Chatter
	History    store.History
	Logger     *zap.Logger

	SystemPrompt string
	Temperature  float32
	MaxTurns     int

	ApprovalDeadline time.Duration
	AllowedTools     []string
	ReapDelay        time.Duration

	// BaseTools are registered for every turn; todo_write is added per
	// turn so its updates land in the right session's task window.
	BaseTools []tools.Tool
}

type Bot struct {
	sink      chat.Sink
	client    turn.Chatter
	history   store.History
	logger    *zap.Logger
	windows   *windows.Manager
	gate      *approval.Gate
	reactions *reaction.Tracker
	sessions  *sessions.Coordinator

	systemPrompt string
	temperature  float32
	maxTurns     int
	baseTools    []tools.Tool
}

func New(opts Options) (*Bot, error) {
	if opts.Sink == nil {
		return nil, errors.New("sink is required")
	}
	if opts.Client == nil {
		return nil, errors.New("llm client is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	history := opts.History
	if history == nil {
		history = store.NewMemoryHistory(0)
	}

	allowed := make(map[string]bool, len(opts.AllowedTools))
	for _, name := range opts.AllowedTools {
		allowed[strings.TrimSpace(name)] = true
	}
	gate, err := approval.NewGate(opts.Sink, logger.Named("approval"), approval.Options{
		Deadline: opts.ApprovalDeadline,
		AllowRule: func(toolName string, _ json.RawMessage) bool {
			return allowed[toolName]
		},
	})
	if err != nil {
		return nil, err
	}

	b := &Bot{
		sink:         opts.Sink,
		client:       opts.Client,
		history:      history,
		logger:       logger,
		windows:      windows.NewManager(opts.Sink, logger.Named("windows")),
		gate:         gate,
		reactions:    reaction.NewTracker(opts.Indicators, logger.Named("reaction")),
		sessions:     sessions.NewCoordinator(opts.ReapDelay, logger.Named("sessions")),
		systemPrompt: opts.SystemPrompt,
		temperature:  opts.Temperature,
		maxTurns:     opts.MaxTurns,
		baseTools:    opts.BaseTools,
	}
	b.sessions.OnTeardown(b.windows.Teardown)
	b.sessions.OnTeardown(b.reactions.Teardown)
	return b, nil
}

func threadOf(msg chat.Inbound) string {
	if msg.ThreadTS != "" {
		return msg.ThreadTS
	}
	return msg.TS
}

// HandleMessage runs one turn for an inbound message. A second message in the
// same session supersedes the running turn. Blocking; callers dispatch it on
// its own goroutine.
func (b *Bot) HandleMessage(msg chat.Inbound) {
	session := msg.SessionKey()
	channel := msg.Channel
	thread := threadOf(msg)
	userRef := chat.MessageRef{Channel: channel, Timestamp: msg.TS}

	token := b.sessions.Begin(session)
	defer b.sessions.Finish(session, token)
	ctx := token.Context()

	b.reactions.Set(ctx, session, userRef, reaction.IndicatorThinking)

	history, err := b.history.Load(ctx, session)
	if err != nil {
		b.logger.Warn("history load failed", zap.String("session", session), zap.Error(err))
	}

	if err := b.windows.RenderStatus(ctx, session, channel, thread, ":speech_balloon: Working on it…"); err != nil {
		b.logger.Warn("render status failed", zap.String("session", session), zap.Error(err))
	}

	registry := tools.NewRegistry()
	for _, tool := range b.baseTools {
		registry.Register(tool)
	}
	registry.Register(&tools.TodoWriteTool{OnUpdate: func(items []tools.TodoItem) {
		b.renderTasks(ctx, session, channel, thread, userRef, items)
	}})

	runner := &turn.Runner{
		Client:       b.client,
		Tools:        registry,
		Logger:       b.logger.Named("turn"),
		SystemPrompt: b.systemPrompt,
		Temperature:  b.temperature,
		MaxTurns:     b.maxTurns,
		Permission:   b.permission(session, channel, thread),
	}

	hooks := turn.Hooks{
		OnAssistantText: func(text string) {
			if err := b.windows.RenderText(ctx, session, channel, thread, text); err != nil {
				b.logger.Warn("render text failed", zap.String("session", session), zap.Error(err))
			}
		},
		OnToolStart: func(name string, args json.RawMessage) {
			b.reactions.Set(ctx, session, userRef, reaction.IndicatorWorking)
			summary := tools.Summarize(name, args)
			if err := b.windows.AppendToolOutput(ctx, session, channel, thread, summary); err != nil {
				b.logger.Warn("append tool output failed", zap.String("session", session), zap.Error(err))
			}
		},
	}

	res, runErr := runner.Run(ctx, history, msg.Text, hooks)

	if len(res.Messages) > 0 {
		// Persist with a background context: the token may already be
		// cancelled by a superseding message.
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := b.history.Append(saveCtx, session, res.Messages); err != nil {
			b.logger.Warn("history append failed", zap.String("session", session), zap.Error(err))
		}
		cancel()
	}

	b.finish(session, channel, thread, userRef, token, runErr)
}

func (b *Bot) finish(session, channel, thread string, userRef chat.MessageRef, token *sessions.Token, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case runErr == nil:
		b.reactions.Set(ctx, session, userRef, reaction.IndicatorDone)
		_ = b.windows.RenderStatus(ctx, session, channel, thread, ":white_check_mark: Done")
	case token.Cancelled() || errors.Is(runErr, context.Canceled):
		// Superseded or shut down; the newer turn owns the surface now.
		b.reactions.Set(ctx, session, userRef, reaction.IndicatorCancelled)
	default:
		b.logger.Error("turn failed", zap.String("session", session), zap.Error(runErr))
		b.reactions.Set(ctx, session, userRef, reaction.IndicatorError)
		_ = b.windows.RenderStatus(ctx, session, channel, thread, ":x: Turn failed")
		body := "Something went wrong: " + runErr.Error()
		if llm.IsLikelyContextOverflow(runErr) {
			body = "This thread has grown past the model's context limit. Start a new thread to continue."
		}
		if _, err := b.sink.PostMessage(ctx, channel, thread, chat.Text{Body: body}); err != nil {
			b.logger.Warn("error notice failed", zap.String("session", session), zap.Error(err))
		}
	}
}

func (b *Bot) renderTasks(ctx context.Context, session, channel, thread string, userRef chat.MessageRef, items []tools.TodoItem) {
	converted := make([]chat.TaskItem, 0, len(items))
	for _, item := range items {
		converted = append(converted, chat.TaskItem{Text: item.Text, Status: chat.TaskStatus(item.Status)})
	}
	if err := b.windows.RenderTasks(ctx, session, channel, thread, converted); err != nil {
		b.logger.Warn("render tasks failed", zap.String("session", session), zap.Error(err))
	}
	if name := reaction.ProgressIndicator(converted); name != "" {
		b.reactions.Set(ctx, session, userRef, name)
	}
}

func (b *Bot) permission(session, channel, thread string) turn.PermissionFunc {
	return func(ctx context.Context, name string, args json.RawMessage) (turn.Decision, error) {
		outcome := b.gate.Request(ctx, approval.Request{
			SessionKey: session,
			ToolName:   name,
			Input:      args,
			Channel:    channel,
			Thread:     thread,
		})
		return turn.Decision{
			Allow:   outcome.Allow,
			Args:    outcome.Input,
			Message: outcome.Message,
		}, nil
	}
}

// HandleAction routes a button click. Approve and deny resolve at most one
// pending request; repeated clicks are no-ops.
func (b *Bot) HandleAction(ctx context.Context, action chat.Action) {
	switch action.Kind {
	case chat.ActionApprove:
		if !b.gate.Approve(ctx, action.Token) {
			b.logger.Debug("approve ignored, no pending request", zap.String("id", action.Token))
		}
	case chat.ActionDeny:
		if !b.gate.Deny(ctx, action.Token) {
			b.logger.Debug("deny ignored, no pending request", zap.String("id", action.Token))
		}
	case chat.ActionToggleOutput:
		if err := b.windows.ToggleToolLog(ctx, action.Token); err != nil {
			b.logger.Debug("toggle ignored", zap.String("session", action.Token), zap.Error(err))
		}
	}
}

// Inject posts a scheduled or system-originated prompt into a channel and
// runs it like a user message.
func (b *Bot) Inject(channel, prompt string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	ref, err := b.sink.PostMessage(ctx, channel, "", chat.Text{Body: prompt})
	cancel()
	if err != nil {
		b.logger.Warn("inject post failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	b.HandleMessage(chat.Inbound{
		UserID:  "scheduler",
		Channel: channel,
		TS:      ref.Timestamp,
		Text:    prompt,
	})
}
