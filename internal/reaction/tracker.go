// Package reaction derives a single emoji-level indicator per session from
// turn activity and task-list progress, suppressing redundant updates.
package reaction

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"threadpilot/internal/chat"
)

const (
	IndicatorThinking  = "thought_balloon"
	IndicatorWorking   = "hourglass_flowing_sand"
	IndicatorDone      = "white_check_mark"
	IndicatorError     = "x"
	IndicatorCancelled = "octagonal_sign"

	IndicatorTasksDone    = "white_check_mark"
	IndicatorTasksActive  = "hammer_and_wrench"
	IndicatorTasksPending = "clipboard"
)

// Tracker remembers the current indicator per session and only touches the
// chat surface when the indicator actually changes.
type Tracker struct {
	indicators chat.Indicators
	logger     *zap.Logger

	mu      sync.Mutex
	current map[string]string
}

func NewTracker(indicators chat.Indicators, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		indicators: indicators,
		logger:     logger,
		current:    make(map[string]string),
	}
}

// Set replaces the session's indicator on ref. Setting the already-current
// indicator is a no-op. Removal of the previous indicator is best effort;
// the sink treats already-absent and already-applied as success.
func (t *Tracker) Set(ctx context.Context, session string, ref chat.MessageRef, name string) {
	if t == nil || t.indicators == nil {
		return
	}
	t.mu.Lock()
	prev, ok := t.current[session]
	if ok && prev == name {
		t.mu.Unlock()
		return
	}
	t.current[session] = name
	t.mu.Unlock()

	if ok && prev != "" {
		if err := t.indicators.RemoveIndicator(ctx, ref, prev); err != nil {
			t.logger.Debug("remove indicator failed",
				zap.String("session", session),
				zap.String("indicator", prev),
				zap.Error(err))
		}
	}
	if name == "" {
		return
	}
	if err := t.indicators.AddIndicator(ctx, ref, name); err != nil {
		t.logger.Warn("add indicator failed",
			zap.String("session", session),
			zap.String("indicator", name),
			zap.Error(err))
	}
}

// Clear removes the session's indicator from ref.
func (t *Tracker) Clear(ctx context.Context, session string, ref chat.MessageRef) {
	t.Set(ctx, session, ref, "")
}

// Teardown forgets the session's tracked state without touching the surface.
func (t *Tracker) Teardown(session string) {
	t.mu.Lock()
	delete(t.current, session)
	t.mu.Unlock()
}

// ProgressIndicator maps aggregate task-list progress to an indicator. An
// empty list returns "" and the caller should skip the update.
func ProgressIndicator(items []chat.TaskItem) string {
	if len(items) == 0 {
		return ""
	}
	completed := 0
	inProgress := 0
	for _, item := range items {
		switch item.Status {
		case chat.TaskCompleted:
			completed++
		case chat.TaskInProgress:
			inProgress++
		}
	}
	switch {
	case completed == len(items):
		return IndicatorTasksDone
	case completed == 0 && inProgress > 0:
		return IndicatorTasksActive
	default:
		return IndicatorTasksPending
	}
}
