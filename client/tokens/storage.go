// Package tokens persists the access/refresh token pair on a client device.
package tokens

import "sync"

// Storage is the device-side token store. Implementations are expected to be
// backed by platform secure storage; the gateway only depends on this contract.
type Storage interface {
	GetAccessToken() (string, error)
	GetRefreshToken() (string, error)
	SetTokens(access, refresh string) error
	ClearTokens() error
}

// MemoryStorage is a process-local Storage, used by tests and short-lived tools.
type MemoryStorage struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (m *MemoryStorage) GetAccessToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.access, nil
}

func (m *MemoryStorage) GetRefreshToken() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refresh, nil
}

func (m *MemoryStorage) SetTokens(access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = access
	m.refresh = refresh
	return nil
}

func (m *MemoryStorage) ClearTokens() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.access = ""
	m.refresh = ""
	return nil
}
