// Package sessions tracks one cancellation token per conversation session and
// tears session state down a grace period after the last turn finishes.
package sessions

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Token is the cancellation handle for one agent turn. A newer Begin for the
// same session cancels it; the turn loop checks Cancelled at every yield
// point and stops emitting renders once it reports true.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
}

func (t *Token) Context() context.Context {
	if t == nil {
		return context.Background()
	}
	return t.ctx
}

func (t *Token) Cancelled() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Coordinator owns the live tokens and the delayed reap timers. Teardown
// hooks release per-session state held elsewhere (window manager, reaction
// tracker, pending approvals).
type Coordinator struct {
	logger    *zap.Logger
	reapDelay time.Duration

	mu       sync.Mutex
	tokens   map[string]*Token
	reaps    map[string]*time.Timer
	teardown []func(session string)
}

func NewCoordinator(reapDelay time.Duration, logger *zap.Logger) *Coordinator {
	if reapDelay <= 0 {
		reapDelay = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		logger:    logger,
		reapDelay: reapDelay,
		tokens:    make(map[string]*Token),
		reaps:     make(map[string]*time.Timer),
	}
}

// OnTeardown registers a hook invoked when a session is reaped. Register all
// hooks before the coordinator starts receiving traffic.
func (c *Coordinator) OnTeardown(fn func(session string)) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	c.teardown = append(c.teardown, fn)
	c.mu.Unlock()
}

// Begin issues a fresh token for the session, cancelling any prior token
// before returning so two turns never interleave renders into the same slots.
// A pending reap for the session is cancelled: the conversation is live again.
func (c *Coordinator) Begin(session string) *Token {
	ctx, cancel := context.WithCancel(context.Background())
	token := &Token{ctx: ctx, cancel: cancel}

	c.mu.Lock()
	prev := c.tokens[session]
	c.tokens[session] = token
	if timer, ok := c.reaps[session]; ok {
		timer.Stop()
		delete(c.reaps, session)
	}
	c.mu.Unlock()

	if prev != nil {
		prev.cancel()
		c.logger.Info("superseded running turn", zap.String("session", session))
	}
	return token
}

// Finish marks the session's turn as ended and schedules the delayed reap.
// The delay keeps recently finished output visible to anything still
// referencing it; a new Begin within the window cancels the reap.
func (c *Coordinator) Finish(session string, token *Token) {
	c.mu.Lock()
	if c.tokens[session] == token {
		delete(c.tokens, session)
	}
	if timer, ok := c.reaps[session]; ok {
		timer.Stop()
	}
	c.reaps[session] = time.AfterFunc(c.reapDelay, func() { c.reap(session) })
	c.mu.Unlock()

	if token != nil {
		token.cancel()
	}
}

// Cancel cancels the session's live token without scheduling a reap.
func (c *Coordinator) Cancel(session string) {
	c.mu.Lock()
	token := c.tokens[session]
	delete(c.tokens, session)
	c.mu.Unlock()
	if token != nil {
		token.cancel()
	}
}

func (c *Coordinator) reap(session string) {
	c.mu.Lock()
	delete(c.reaps, session)
	hooks := append(([]func(string))(nil), c.teardown...)
	c.mu.Unlock()

	c.logger.Info("reaping session state", zap.String("session", session))
	for _, fn := range hooks {
		fn(session)
	}
}

// Active reports whether the session currently has a live token.
func (c *Coordinator) Active(session string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokens[session] != nil
}
