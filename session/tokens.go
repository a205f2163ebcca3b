package session

import "sync"

// TokenStore caches the opaque auth token across reconnects. The browser
// original used localStorage; library users can plug in any persistence.
type TokenStore interface {
	Token() string
	SetToken(token string)
}

// MemoryTokenStore is the default in-process TokenStore.
type MemoryTokenStore struct {
	mu    sync.Mutex
	token string
}

// NewMemoryTokenStore creates an empty in-memory store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Token returns the cached token, or "" before first authentication.
func (m *MemoryTokenStore) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// SetToken replaces the cached token.
func (m *MemoryTokenStore) SetToken(token string) {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
}
