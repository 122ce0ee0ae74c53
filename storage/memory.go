package storage

import (
	"context"
	"sync"

	"magellan/llm"
)

// InMemoryStorage implements ConversationStorage with a map. Data is lost
// when the process terminates; it exists for tests and one-shot runs.
type InMemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string][]llm.ChatMessage
}

// NewInMemoryStorage creates an empty in-memory store.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		sessions: make(map[string][]llm.ChatMessage),
	}
}

// Save replaces the stored history for a session.
func (s *InMemoryStorage) Save(_ context.Context, sessionID string, history []llm.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy so later caller mutations don't leak into the store.
	copied := make([]llm.ChatMessage, len(history))
	copy(copied, history)
	s.sessions[sessionID] = copied

	return nil
}

// Load returns the stored history, or an empty slice for unknown sessions.
func (s *InMemoryStorage) Load(_ context.Context, sessionID string) ([]llm.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, ok := s.sessions[sessionID]
	if !ok {
		return []llm.ChatMessage{}, nil
	}

	copied := make([]llm.ChatMessage, len(history))
	copy(copied, history)
	return copied, nil
}

// Delete removes a session.
func (s *InMemoryStorage) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// ListSessions lists all session IDs.
func (s *InMemoryStorage) ListSessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]string, 0, len(s.sessions))
	for sessionID := range s.sessions {
		sessions = append(sessions, sessionID)
	}
	return sessions, nil
}

// Exists reports whether a session exists.
func (s *InMemoryStorage) Exists(_ context.Context, sessionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessions[sessionID]
	return ok, nil
}

var _ ConversationStorage = (*InMemoryStorage)(nil)
