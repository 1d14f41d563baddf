package store

import "sync"

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu sync.Mutex

	data map[Profile]Entries

	// Saves counts calls to Save.
	Saves int

	// LoadError and SaveError, if set, are returned by Load and Save.
	LoadError error
	SaveError error
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[Profile]Entries)}
}

// Load implements Store.
func (m *MemoryStore) Load(p Profile) (Entries, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.LoadError != nil {
		return Defaults(p), m.LoadError
	}
	e, ok := m.data[p]
	if !ok {
		return Defaults(p), nil
	}
	return e, nil
}

// Save implements Store.
func (m *MemoryStore) Save(p Profile, e Entries) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Saves++
	if m.SaveError != nil {
		return m.SaveError
	}
	m.data[p] = e
	return nil
}
