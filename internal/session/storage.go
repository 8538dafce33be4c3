package session

import "sync"

// Persisted keys.
const (
	KeyToken     = "token"
	KeyLoggedIn  = "isLoggedIn"
	KeyUserData  = "userData"
	KeyUserEmail = "userEmail"
)

// Keys lists every key the store owns.
var Keys = []string{KeyToken, KeyLoggedIn, KeyUserData, KeyUserEmail}

// Storage is the persisted key-value backend behind a Store.
type Storage interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(keys ...string) error
}

// Replacer is implemented by backends that swap a whole session in one step, so a
// failed login never leaves part of a session behind.
type Replacer interface {
	Replace(clear []string, values map[string]string) error
}

// CompareDeleter is implemented by backends that can clear keys only while key still
// holds expected, atomically across every process sharing the backend. An empty
// expected matches an absent key.
type CompareDeleter interface {
	CompareAndDelete(key, expected string, keys ...string) (bool, error)
}

// MemoryStorage keeps values in process memory.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: map[string]string{}}
}

func (m *MemoryStorage) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStorage) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStorage) Delete(keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *MemoryStorage) Replace(clear []string, values map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range clear {
		delete(m.values, k)
	}
	for k, v := range values {
		m.values[k] = v
	}
	return nil
}

func (m *MemoryStorage) CompareAndDelete(key, expected string, keys ...string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[key] != expected {
		return false, nil
	}
	for _, k := range keys {
		delete(m.values, k)
	}
	return true, nil
}

// Len returns the number of stored keys.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.values)
}
