package store

import (
	"sort"
	"sync"

	"wildwatch/pkg/domain"
)

// MemoryStore keeps identities and records in-process. It backs tests and
// single-instance development runs.
type MemoryStore struct {
	mu      sync.RWMutex
	users   map[string]domain.User // key: user ID
	email   map[string]string      // email -> user ID
	records map[string]domain.Record
	seq     map[string]int // record ID -> insertion sequence
	next    int
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]domain.User),
		email:   make(map[string]string),
		records: make(map[string]domain.Record),
		seq:     make(map[string]int),
	}
}

// SaveUser inserts or replaces a user, keeping the email index unique.
func (m *MemoryStore) SaveUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if owner, ok := m.email[u.Email]; ok && owner != u.ID {
		return ErrDuplicateEmail
	}
	if prev, ok := m.users[u.ID]; ok && prev.Email != u.Email {
		delete(m.email, prev.Email)
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// ListUsers returns all users ordered by creation time.
func (m *MemoryStore) ListUsers() ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		res = append(res, u)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].ID < res[j].ID
		}
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

// DeleteUser removes a user and reports whether it existed.
func (m *MemoryStore) DeleteUser(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return false, nil
	}
	delete(m.users, id)
	delete(m.email, u.Email)
	return true, nil
}

// CreateRecord inserts a record.
func (m *MemoryStore) CreateRecord(r domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = r
	m.next++
	m.seq[r.ID] = m.next
	return nil
}

// ListRecords returns records most recent first; insertion order breaks ties.
func (m *MemoryStore) ListRecords() ([]domain.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Record, 0, len(m.records))
	for _, r := range m.records {
		res = append(res, r)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return m.seq[res[i].ID] > m.seq[res[j].ID]
		}
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

// DeleteRecord removes a record and reports whether it existed.
func (m *MemoryStore) DeleteRecord(id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return false, nil
	}
	delete(m.records, id)
	delete(m.seq, id)
	return true, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error {
	return nil
}
