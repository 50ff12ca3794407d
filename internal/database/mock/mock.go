// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/rouzd/facegate/internal/database"
)

// MockDirectory is an in-memory user directory implementing both
// database.UserReader and database.UserWriter.
type MockDirectory struct {
	mu     sync.RWMutex
	users  map[string]*database.User
	nextID int64

	// Error injection
	GetError    error
	ListError   error
	CreateError error
	UpdateError error
}

// NewMockDirectory creates a new mock user directory.
func NewMockDirectory() *MockDirectory {
	return &MockDirectory{users: make(map[string]*database.User)}
}

// AddUser adds a user directly to the mock store.
func (m *MockDirectory) AddUser(user database.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == 0 {
		m.nextID++
		user.ID = m.nextID
	}
	m.users[user.Username] = &user
}

// GetActiveUser returns the active user with the given username, or nil.
func (m *MockDirectory) GetActiveUser(ctx context.Context, username string) (*database.User, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	user, ok := m.users[database.NormalizeUsername(username)]
	if !ok || !user.Active {
		return nil, nil
	}
	u := *user
	return &u, nil
}

// ListActiveUsers returns all active users ordered by ID.
func (m *MockDirectory) ListActiveUsers(ctx context.Context) ([]database.User, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var users []database.User
	for _, user := range m.users {
		if user.Active {
			users = append(users, *user)
		}
	}
	// Stable order for deterministic candidate iteration in tests.
	slices.SortFunc(users, func(a, b database.User) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return users, nil
}

// CreateUser enrolls a new user in the mock store.
func (m *MockDirectory) CreateUser(ctx context.Context, username, email string, faceImage []byte) (int64, error) {
	if m.CreateError != nil {
		return 0, m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[database.NormalizeUsername(username)]; exists {
		return 0, database.ErrDuplicateUser
	}
	m.nextID++
	m.users[database.NormalizeUsername(username)] = &database.User{
		ID:        m.nextID,
		Username:  database.NormalizeUsername(username),
		Email:     email,
		FaceImage: faceImage,
		Active:    true,
		CreatedAt: time.Now(),
	}
	return m.nextID, nil
}

// SetLastAuthenticated records a successful authentication time.
func (m *MockDirectory) SetLastAuthenticated(ctx context.Context, username string, at time.Time) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if user, ok := m.users[database.NormalizeUsername(username)]; ok {
		user.LastAuthenticatedAt = &at
	}
	return nil
}

// MockAuditLog records audit entries in memory, implementing both
// database.AuditLog and database.AuditReader.
type MockAuditLog struct {
	mu      sync.Mutex
	records []database.AuditRecord

	// Error injection
	AppendError error
	ReadError   error
}

// NewMockAuditLog creates a new mock audit log.
func NewMockAuditLog() *MockAuditLog {
	return &MockAuditLog{}
}

// Append records one attempt entry.
func (m *MockAuditLog) Append(ctx context.Context, record database.AuditRecord) error {
	if m.AppendError != nil {
		return m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	m.records = append(m.records, record)
	return nil
}

// RecentForIdentity returns the latest attempts for one identity, newest first.
func (m *MockAuditLog) RecentForIdentity(ctx context.Context, identity string, limit int) ([]database.AuditRecord, error) {
	if m.ReadError != nil {
		return nil, m.ReadError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []database.AuditRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].Identity == identity {
			out = append(out, m.records[i])
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Records returns a copy of everything appended so far.
func (m *MockAuditLog) Records() []database.AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]database.AuditRecord, len(m.records))
	copy(out, m.records)
	return out
}
