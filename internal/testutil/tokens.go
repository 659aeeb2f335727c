package testutil

import (
	"context"
	"sync"
)

// MemoryTokenStore keeps session tokens in memory.
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]string
	Saves  int
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]string)}
}

func (m *MemoryTokenStore) LoadToken(_ context.Context, instance, username string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[instance+"|"+username], nil
}

func (m *MemoryTokenStore) SaveToken(_ context.Context, instance, username, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[instance+"|"+username] = token
	m.Saves++
	return nil
}

// Token returns the stored token for instance and username.
func (m *MemoryTokenStore) Token(instance, username string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[instance+"|"+username]
}
