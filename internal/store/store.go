// Package store persists per-session conversation history so threads survive
// process restarts.
package store

import (
	"context"
	"sync"

	"threadpilot/internal/llm"
)

// History stores the message log of a session, keyed by session key.
type History interface {
	Load(ctx context.Context, session string) ([]llm.Message, error)
	Append(ctx context.Context, session string, messages []llm.Message) error
	Clear(ctx context.Context, session string) error
	Close() error
}

// MemoryHistory keeps history in process memory. Used when no redis_url is
// configured and in tests.
type MemoryHistory struct {
	mu       sync.Mutex
	sessions map[string][]llm.Message
	// MaxMessages caps the retained log per session; oldest entries are
	// dropped first. Zero means unlimited.
	MaxMessages int
}

func NewMemoryHistory(maxMessages int) *MemoryHistory {
	return &MemoryHistory{
		sessions:    make(map[string][]llm.Message),
		MaxMessages: maxMessages,
	}
}

func (s *MemoryHistory) Load(ctx context.Context, session string) ([]llm.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	messages := s.sessions[session]
	out := make([]llm.Message, len(messages))
	copy(out, messages)
	return out, nil
}

func (s *MemoryHistory) Append(ctx context.Context, session string, messages []llm.Message) error {
	if len(messages) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	log := append(s.sessions[session], messages...)
	if s.MaxMessages > 0 && len(log) > s.MaxMessages {
		log = log[len(log)-s.MaxMessages:]
	}
	s.sessions[session] = log
	return nil
}

func (s *MemoryHistory) Clear(ctx context.Context, session string) error {
	s.mu.Lock()
	delete(s.sessions, session)
	s.mu.Unlock()
	return nil
}

func (s *MemoryHistory) Close() error { return nil }
