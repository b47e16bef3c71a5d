package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/taskflow-api/internal/models"
	"github.com/noah-isme/taskflow-api/internal/repository"
	appErrors "github.com/noah-isme/taskflow-api/pkg/errors"
)

const defaultRefreshTTL = 1440 * time.Minute

type sessionRepository interface {
	Put(ctx context.Context, token, username string, ttl time.Duration) error
	Get(ctx context.Context, token string) (string, error)
}

// SessionService issues and resolves refresh sessions. It performs no
// read-modify-write against the store: create is a single put and resolve a
// single get, so concurrent callers cannot race each other.
type SessionService struct {
	repo    sessionRepository
	metrics *MetricsService
	ttl     time.Duration
	now     func() time.Time
}

// NewSessionService constructs a SessionService. A non-positive ttl falls back to 24h.
func NewSessionService(repo sessionRepository, metrics *MetricsService, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = defaultRefreshTTL
	}
	return &SessionService{repo: repo, metrics: metrics, ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Create generates a fresh refresh token for username and stores it with the session TTL.
func (s *SessionService) Create(ctx context.Context, username string) (*models.RefreshSession, error) {
	token := uuid.NewString()

	start := time.Now()
	err := s.repo.Put(ctx, token, username, s.ttl)
	s.metrics.ObserveSessionStore("put", time.Since(start))
	if err != nil {
		return nil, appErrors.StoreUnavailable(err, "failed to store refresh session")
	}

	return &models.RefreshSession{Token: token, Username: username, ExpiresAt: s.now().Add(s.ttl)}, nil
}

// Resolve returns the username owning token. Unknown or expired tokens yield
// ErrInvalidOrExpiredToken; transport failures yield ErrStoreUnavailable.
func (s *SessionService) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
	}

	start := time.Now()
	username, err := s.repo.Get(ctx, token)
	s.metrics.ObserveSessionStore("get", time.Since(start))
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return "", appErrors.Clone(appErrors.ErrInvalidOrExpiredToken, "")
		}
		return "", appErrors.StoreUnavailable(err, "failed to resolve refresh session")
	}
	return username, nil
}

// TTL reports the lifetime given to new sessions.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}
