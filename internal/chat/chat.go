// Package chat defines the boundary between the orchestration core and the
// chat platform. The core only ever talks to a Sink and an Indicators; the
// Slack implementation lives in internal/slackgw.
package chat

import (
	"context"
	"strconv"
	"time"
)

// MessageRef identifies one posted message on the chat surface.
type MessageRef struct {
	Channel   string
	Timestamp string
}

func (r MessageRef) IsZero() bool {
	return r.Channel == "" && r.Timestamp == ""
}

// Sink posts, updates and deletes messages. Every call may fail transiently;
// callers decide whether to retry, fall back to a fresh post, or give up.
type Sink interface {
	PostMessage(ctx context.Context, channel, thread string, content Content) (MessageRef, error)
	UpdateMessage(ctx context.Context, ref MessageRef, content Content) error
	DeleteMessage(ctx context.Context, ref MessageRef) error
}

// Indicators manages glyph-level status markers (reactions) on a message.
// Implementations treat already-applied and already-absent as success.
type Indicators interface {
	AddIndicator(ctx context.Context, ref MessageRef, name string) error
	RemoveIndicator(ctx context.Context, ref MessageRef, name string) error
}

// Content is the closed set of render payloads the core can emit. Sinks
// switch on the concrete type; adding a variant is a compile-visible change.
type Content interface {
	content()

	// Fallback is the plain-text form, used for notification previews and
	// for surfaces that cannot render the structured form.
	Fallback() string
}

// Text is free-form assistant prose, already in the surface's markup.
type Text struct {
	Body string
}

func (Text) content() {}

func (t Text) Fallback() string { return t.Body }

// ToolLog is the accumulated tool-call view: Recent is always shown, Older is
// behind an expand/collapse control when non-empty. SessionKey correlates the
// toggle button back to the owning session.
type ToolLog struct {
	Older      []string
	Recent     []string
	Expanded   bool
	SessionKey string
}

func (ToolLog) content() {}

func (t ToolLog) Fallback() string {
	n := len(t.Older) + len(t.Recent)
	if n == 1 {
		return "1 action"
	}
	return strconv.Itoa(n) + " actions"
}

// TaskItem is one entry of the agent's task list.
type TaskItem struct {
	Text   string
	Status TaskStatus
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

// TaskList is the agent's current plan.
type TaskList struct {
	Items []TaskItem
}

func (TaskList) content() {}

func (t TaskList) Fallback() string {
	done := 0
	for _, item := range t.Items {
		if item.Status == TaskCompleted {
			done++
		}
	}
	return "Tasks: " + strconv.Itoa(done) + "/" + strconv.Itoa(len(t.Items))
}

// ApprovalState is the lifecycle phase an approval prompt renders in.
type ApprovalState string

const (
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalDenied   ApprovalState = "denied"
	ApprovalExpired  ApprovalState = "expired"
)

// ApprovalPrompt asks a human to approve or deny one tool invocation. ID
// correlates button clicks back to the pending record.
type ApprovalPrompt struct {
	ID       string
	ToolName string
	Input    string
	Deadline time.Time
	State    ApprovalState
}

func (ApprovalPrompt) content() {}

func (p ApprovalPrompt) Fallback() string {
	return "Permission needed: " + p.ToolName
}

// Inbound is one user message entering the system.
type Inbound struct {
	UserID   string
	Channel  string
	ThreadTS string
	TS       string
	Text     string
}

// SessionKey is stable for the lifetime of a conversation thread.
func (m Inbound) SessionKey() string {
	thread := m.ThreadTS
	if thread == "" {
		thread = m.TS
	}
	return m.UserID + ":" + m.Channel + ":" + thread
}

// Action is one interactive button click.
type Action struct {
	UserID  string
	Kind    ActionKind
	Token   string // approval id, or session key for toggles
	Channel string
	Message MessageRef
}

type ActionKind string

const (
	ActionApprove      ActionKind = "approve"
	ActionDeny         ActionKind = "deny"
	ActionToggleOutput ActionKind = "toggle_output"
)
