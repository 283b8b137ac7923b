package session

import (
	"context"
	"sync"
)

// SourceFactory builds the real-time source pair for one conversation.
type SourceFactory func(conversationID string) (Config, error)

// Manager hands out at most one session per conversation id.
type Manager struct {
	factory SourceFactory

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager builds a Manager around a session config factory.
func NewManager(factory SourceFactory) *Manager {
	return &Manager{factory: factory, sessions: make(map[string]*Session)}
}

// Get returns the open session for the conversation, opening one on first
// use.
func (m *Manager) Get(ctx context.Context, conversationID string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[conversationID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	cfg, err := m.factory(conversationID)
	if err != nil {
		return nil, err
	}
	s, err := Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[conversationID]; ok {
		// Lost the race to another caller; keep theirs.
		go s.Close()
		return existing, nil
	}
	m.sessions[conversationID] = s
	return s, nil
}

// CloseAll tears down every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
