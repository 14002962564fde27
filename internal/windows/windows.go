// Package windows owns the mapping from a conversation session to its live
// output slots on the chat surface, and the rules for updating a slot in
// place, creating a new one, or bumping it to the bottom of the thread.
package windows

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"threadpilot/internal/chat"
)

type SlotKind string

const (
	SlotStatus  SlotKind = "status"
	SlotTasks   SlotKind = "tasks"
	SlotToolLog SlotKind = "toollog"
)

// recentWindow is how many tool-log entries stay visible unconditionally.
// Sequences at or below this length render as a single full block.
const recentWindow = 3

// windowState tracks the tool-output window per session. A text render closes
// an open window; the next tool-output render then bumps instead of updating.
type windowState int

const (
	windowFresh windowState = iota
	windowOpen
	windowInterrupted
)

// Slot is the record of one persistent output message for a session and kind.
type Slot struct {
	Ref       chat.MessageRef
	UpdatedAt time.Time
}

type sessionState struct {
	mu       sync.Mutex
	slots    map[SlotKind]Slot
	entries  []string
	expanded bool
	window   windowState
}

// Manager decides, per render request, whether to update an existing message,
// create a new one, or delete-and-recreate. It is the only writer of slot
// state; all external effects go through the configured sink.
type Manager struct {
	sink   chat.Sink
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState

	now func() time.Time
}

func NewManager(sink chat.Sink, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		sink:     sink,
		logger:   logger,
		sessions: make(map[string]*sessionState),
		now:      time.Now,
	}
}

func (m *Manager) state(session string) *sessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[session]
	if !ok {
		s = &sessionState{slots: make(map[SlotKind]Slot)}
		m.sessions[session] = s
	}
	return s
}

// Slot reports the registered slot for (session, kind), if any.
func (m *Manager) Slot(session string, kind SlotKind) (Slot, bool) {
	m.mu.Lock()
	s, ok := m.sessions[session]
	m.mu.Unlock()
	if !ok {
		return Slot{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slot, ok := s.slots[kind]
	return slot, ok
}

// RenderStatus updates the session's status message in place, creating it on
// first render. A failed update falls back to a fresh post and re-registers
// the slot under the new reference.
func (m *Manager) RenderStatus(ctx context.Context, session, channel, thread, text string) error {
	s := m.state(session)
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.upsertLocked(ctx, session, s, SlotStatus, channel, thread, chat.Text{Body: text})
}

// RenderTasks follows the same update-in-place policy as RenderStatus.
func (m *Manager) RenderTasks(ctx context.Context, session, channel, thread string, items []chat.TaskItem) error {
	s := m.state(session)
	s.mu.Lock()
	defer s.mu.Unlock()
	return m.upsertLocked(ctx, session, s, SlotTasks, channel, thread, chat.TaskList{Items: items})
}

func (m *Manager) upsertLocked(ctx context.Context, session string, s *sessionState, kind SlotKind, channel, thread string, content chat.Content) error {
	if slot, ok := s.slots[kind]; ok {
		if err := m.sink.UpdateMessage(ctx, slot.Ref, content); err == nil {
			slot.UpdatedAt = m.now()
			s.slots[kind] = slot
			return nil
		} else {
			m.logger.Warn("slot update failed; recreating",
				zap.String("session", session),
				zap.String("kind", string(kind)),
				zap.Error(err))
		}
	}
	ref, err := m.sink.PostMessage(ctx, channel, thread, content)
	if err != nil {
		return fmt.Errorf("post %s slot: %w", kind, err)
	}
	s.slots[kind] = Slot{Ref: ref, UpdatedAt: m.now()}
	return nil
}

// RenderText posts free-form assistant text as a brand-new message. Text never
// occupies a slot; it does close any open tool-output window so the next
// tool-output render bumps back to the bottom.
func (m *Manager) RenderText(ctx context.Context, session, channel, thread, body string) error {
	s := m.state(session)
	if _, err := m.sink.PostMessage(ctx, channel, thread, chat.Text{Body: body}); err != nil {
		return fmt.Errorf("post text: %w", err)
	}
	s.mu.Lock()
	if s.window == windowOpen {
		s.window = windowInterrupted
	}
	s.mu.Unlock()
	return nil
}

// AppendToolOutput adds one tool-call summary to the session's window and
// renders the result. If the window was interrupted by text, the old message
// is deleted (best effort), the accumulator restarts from this single entry,
// and a fresh message is posted at the bottom of the thread.
func (m *Manager) AppendToolOutput(ctx context.Context, session, channel, thread, summary string) error {
	s := m.state(session)
	s.mu.Lock()
	defer s.mu.Unlock()

	bump := s.window == windowInterrupted
	if bump {
		s.entries = []string{summary}
		s.expanded = false
	} else {
		s.entries = append(s.entries, summary)
	}
	content := s.toolLogLocked(session)

	slot, exists := s.slots[SlotToolLog]
	if bump && exists {
		if err := m.sink.DeleteMessage(ctx, slot.Ref); err != nil {
			// Orphaned old message is cosmetic, not fatal.
			m.logger.Warn("delete before bump failed",
				zap.String("session", session),
				zap.Error(err))
		}
		delete(s.slots, SlotToolLog)
		exists = false
	}

	if exists {
		if err := m.sink.UpdateMessage(ctx, slot.Ref, content); err == nil {
			slot.UpdatedAt = m.now()
			s.slots[SlotToolLog] = slot
			s.window = windowOpen
			return nil
		} else {
			m.logger.Warn("tool log update failed; recreating",
				zap.String("session", session),
				zap.Error(err))
		}
	}

	ref, err := m.sink.PostMessage(ctx, channel, thread, content)
	if err != nil {
		return fmt.Errorf("post tool log: %w", err)
	}
	s.slots[SlotToolLog] = Slot{Ref: ref, UpdatedAt: m.now()}
	s.window = windowOpen
	return nil
}

// ToggleToolLog flips the expand/collapse state and re-renders into the
// existing message. Toggling never creates a new message; without a live
// tool-log slot it is an error.
func (m *Manager) ToggleToolLog(ctx context.Context, session string) error {
	s := m.state(session)
	s.mu.Lock()
	defer s.mu.Unlock()

	slot, ok := s.slots[SlotToolLog]
	if !ok {
		return errors.New("no tool log to toggle")
	}
	s.expanded = !s.expanded
	if err := m.sink.UpdateMessage(ctx, slot.Ref, s.toolLogLocked(session)); err != nil {
		// Keep state in step with what the user actually sees.
		s.expanded = !s.expanded
		return fmt.Errorf("toggle tool log: %w", err)
	}
	slot.UpdatedAt = m.now()
	s.slots[SlotToolLog] = slot
	return nil
}

// toolLogLocked renders the accumulated entries. At or below the recency
// threshold everything is one block; above it the last recentWindow entries
// are always visible and the rest sit behind the expansion control.
func (s *sessionState) toolLogLocked(session string) chat.ToolLog {
	entries := s.entries
	if len(entries) <= recentWindow {
		return chat.ToolLog{
			Recent:     append([]string(nil), entries...),
			Expanded:   s.expanded,
			SessionKey: session,
		}
	}
	split := len(entries) - recentWindow
	return chat.ToolLog{
		Older:      append([]string(nil), entries[:split]...),
		Recent:     append([]string(nil), entries[split:]...),
		Expanded:   s.expanded,
		SessionKey: session,
	}
}

// Entries reports the current accumulator sequence length.
func (m *Manager) Entries(session string) int {
	m.mu.Lock()
	s, ok := m.sessions[session]
	m.mu.Unlock()
	if !ok {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Teardown drops all slot and window state for the session. Rendered messages
// stay in the thread; only the in-memory mapping goes away.
func (m *Manager) Teardown(session string) {
	m.mu.Lock()
	delete(m.sessions, session)
	m.mu.Unlock()
}
