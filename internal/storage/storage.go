package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/jaminalder/tictactoe-web/internal/domain"
)

var ErrNotFound = errors.New("session not found")

// Store persists one domain.Session per browser session ID.
type Store interface {
	Load(ctx context.Context, id string) (domain.Session, error)
	Save(ctx context.Context, id string, s domain.Session) error
	Close() error
}

// Memory keeps sessions in process memory.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]domain.Session)}
}

func (m *Memory) Load(_ context.Context, id string) (domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return domain.Session{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) Save(_ context.Context, id string, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[id] = s
	return nil
}

func (m *Memory) Close() error { return nil }
