package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/noah-isme/taskflow-api/internal/models"
	"github.com/noah-isme/taskflow-api/internal/repository"
)

// memoryUserRepo behaves like the users table: username is unique and the
// check happens atomically at insert time.
type memoryUserRepo struct {
	mu        sync.Mutex
	users     map[string]*models.User
	nextID    int64
	findErr   error
	createErr error
	creates   int
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{users: make(map[string]*models.User)}
}

func (m *memoryUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	user, ok := m.users[username]
	if !ok {
		return nil, sql.ErrNoRows
	}
	stored := *user
	return &stored, nil
}

func (m *memoryUserRepo) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.createErr != nil {
		return m.createErr
	}
	if _, exists := m.users[user.Username]; exists {
		return repository.ErrDuplicateUsername
	}
	m.nextID++
	user.ID = m.nextID
	stored := *user
	m.users[user.Username] = &stored
	return nil
}

func (m *memoryUserRepo) delete(username string) {
	m.mu.Lock()
	delete(m.users, username)
	m.mu.Unlock()
}

type memorySession struct {
	username  string
	expiresAt time.Time
}

// memorySessionRepo is an expiring key-value store driven by a manual clock.
type memorySessionRepo struct {
	mu       sync.Mutex
	now      time.Time
	sessions map[string]memorySession
	putErr   error
	getErr   error
}

func newMemorySessionRepo() *memorySessionRepo {
	return &memorySessionRepo{now: time.Now(), sessions: make(map[string]memorySession)}
}

func (m *memorySessionRepo) Put(ctx context.Context, token, username string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.sessions[token] = memorySession{username: username, expiresAt: m.now.Add(ttl)}
	return nil
}

func (m *memorySessionRepo) Get(ctx context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return "", m.getErr
	}
	session, ok := m.sessions[token]
	if !ok || !m.now.Before(session.expiresAt) {
		return "", repository.ErrSessionNotFound
	}
	return session.username, nil
}

func (m *memorySessionRepo) advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *memorySessionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
