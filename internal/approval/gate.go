// Package approval gates side-effecting tool invocations behind an
// interactive human handshake with a hard deadline. Every pending request
// resolves exactly once: approve, deny, or timeout, whichever comes first.
package approval

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"threadpilot/internal/chat"
)

// Reason distinguishes why a request was not allowed.
type Reason string

const (
	ReasonUserDenied Reason = "user_denied"
	ReasonTimeout    Reason = "timeout"
	ReasonCancelled  Reason = "cancelled"
)

// Outcome is the single terminal result of an approval request. On allow,
// Input carries the original stored tool input, never anything echoed back
// through the UI.
type Outcome struct {
	Allow   bool
	Reason  Reason
	Input   json.RawMessage
	Message string
}

// Request describes one tool invocation awaiting consent.
type Request struct {
	SessionKey string
	ToolName   string
	Input      json.RawMessage
	Channel    string
	Thread     string
}

// AllowRule short-circuits the gate: a matching invocation is allowed without
// a pending record and without any rendered prompt.
type AllowRule func(toolName string, input json.RawMessage) bool

type pending struct {
	id       string
	req      Request
	ref      chat.MessageRef
	deadline time.Time
	timer    *time.Timer
	done     chan Outcome
}

// Gate owns the in-flight permission requests for all sessions.
type Gate struct {
	sink     chat.Sink
	logger   *zap.Logger
	deadline time.Duration
	allow    AllowRule

	mu      sync.Mutex
	records map[string]*pending

	now func() time.Time
}

type Options struct {
	// Deadline is how long a prompt stays actionable. It must be strictly
	// shorter than the agent protocol's own outer limit so the gate always
	// resolves first; config validation enforces that.
	Deadline  time.Duration
	AllowRule AllowRule
}

func NewGate(sink chat.Sink, logger *zap.Logger, opts Options) (*Gate, error) {
	if sink == nil {
		return nil, errors.New("sink is required")
	}
	if opts.Deadline <= 0 {
		return nil, errors.New("approval deadline must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		sink:     sink,
		logger:   logger,
		deadline: opts.Deadline,
		allow:    opts.AllowRule,
		records:  make(map[string]*pending),
		now:      time.Now,
	}, nil
}

// Request suspends the caller until the invocation is approved, denied, timed
// out, or the context is cancelled. It is safe to call from many goroutines.
func (g *Gate) Request(ctx context.Context, req Request) Outcome {
	if g.allow != nil && g.allow(req.ToolName, req.Input) {
		return Outcome{Allow: true, Input: req.Input}
	}

	id := uuid.NewString()
	deadline := g.now().Add(g.deadline)
	prompt := chat.ApprovalPrompt{
		ID:       id,
		ToolName: req.ToolName,
		Input:    string(req.Input),
		Deadline: deadline,
		State:    chat.ApprovalPending,
	}
	// Register before posting so a click racing the post still finds the
	// record. A click can arrive as soon as the prompt is visible, which is
	// before our PostMessage call returns.
	p := &pending{
		id:       id,
		req:      req,
		deadline: deadline,
		done:     make(chan Outcome, 1),
	}
	g.mu.Lock()
	g.records[id] = p
	p.timer = time.AfterFunc(g.deadline, func() { g.expire(id) })
	g.mu.Unlock()

	ref, err := g.sink.PostMessage(ctx, req.Channel, req.Thread, prompt)
	if err != nil {
		if taken := g.take(id); taken == nil {
			// A resolver got there while the post was failing; honor it.
			return <-p.done
		}
		g.logger.Error("approval prompt failed; denying",
			zap.String("session", req.SessionKey),
			zap.String("tool", req.ToolName),
			zap.Error(err))
		return Outcome{
			Allow:   false,
			Reason:  ReasonUserDenied,
			Message: fmt.Sprintf("could not request approval for %s", req.ToolName),
		}
	}
	g.mu.Lock()
	p.ref = ref
	g.mu.Unlock()

	select {
	case out := <-p.done:
		return out
	case <-ctx.Done():
		if taken := g.take(id); taken != nil {
			return Outcome{Allow: false, Reason: ReasonCancelled, Message: "agent turn cancelled"}
		}
		// A terminator beat the cancellation; honor its outcome.
		return <-p.done
	}
}

// take removes the record atomically; the caller that gets a non-nil record
// is the single winner and must resolve it. Losers get nil and do nothing.
func (g *Gate) take(id string) *pending {
	g.mu.Lock()
	p := g.records[id]
	delete(g.records, id)
	if p != nil && p.timer != nil {
		p.timer.Stop()
	}
	g.mu.Unlock()
	return p
}

// Approve resolves the request with the original stored input. Returns false
// when the id is unknown or already resolved.
func (g *Gate) Approve(ctx context.Context, id string) bool {
	p := g.take(id)
	if p == nil {
		return false
	}
	p.done <- Outcome{Allow: true, Input: p.req.Input}
	g.updatePrompt(ctx, p, chat.ApprovalApproved)
	return true
}

// Deny resolves the request as declined by the user.
func (g *Gate) Deny(ctx context.Context, id string) bool {
	p := g.take(id)
	if p == nil {
		return false
	}
	p.done <- Outcome{
		Allow:   false,
		Reason:  ReasonUserDenied,
		Message: fmt.Sprintf("User declined permission to run %s", p.req.ToolName),
	}
	g.updatePrompt(ctx, p, chat.ApprovalDenied)
	return true
}

func (g *Gate) expire(id string) {
	p := g.take(id)
	if p == nil {
		return
	}
	p.done <- Outcome{
		Allow:   false,
		Reason:  ReasonTimeout,
		Message: fmt.Sprintf("Approval request for %s timed out", p.req.ToolName),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g.updatePrompt(ctx, p, chat.ApprovalExpired)
	// The outer agent protocol applies its own, longer timeout; tell the
	// human the turn is paused so the silence is explainable.
	notice := chat.Text{Body: "Approval timed out. The agent is paused and waiting for guidance."}
	if _, err := g.sink.PostMessage(ctx, p.req.Channel, p.req.Thread, notice); err != nil {
		g.logger.Warn("timeout notice failed", zap.String("session", p.req.SessionKey), zap.Error(err))
	}
}

func (g *Gate) updatePrompt(ctx context.Context, p *pending, state chat.ApprovalState) {
	g.mu.Lock()
	ref := p.ref
	g.mu.Unlock()
	if ref == (chat.MessageRef{}) {
		// The prompt was never posted (or the post is still in flight).
		return
	}
	prompt := chat.ApprovalPrompt{
		ID:       p.id,
		ToolName: p.req.ToolName,
		Input:    string(p.req.Input),
		Deadline: p.deadline,
		State:    state,
	}
	if err := g.sink.UpdateMessage(ctx, ref, prompt); err != nil {
		g.logger.Warn("approval prompt update failed",
			zap.String("session", p.req.SessionKey),
			zap.Error(err))
	}
}

// PendingCount reports how many requests are still unresolved.
func (g *Gate) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}
