package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/taskflow-api/internal/models"
	"github.com/noah-isme/taskflow-api/internal/repository"
	appErrors "github.com/noah-isme/taskflow-api/pkg/errors"
	"github.com/noah-isme/taskflow-api/pkg/security"
)

const (
	opRegister     = "register"
	opLogin        = "login"
	opRefresh      = "refresh"
	opAuthenticate = "authenticate"

	bearerScheme = "Bearer"

	// bcrypt ignores input past 72 bytes.
	maxPasswordBytes = 72
)

type authUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type refreshSessionStore interface {
	Create(ctx context.Context, username string) (*models.RefreshSession, error)
	Resolve(ctx context.Context, token string) (string, error)
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

type accessTokenCodec interface {
	Issue(subject string, ttl time.Duration) (string, time.Time, error)
	Verify(token string) (*security.Claims, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenExpiry time.Duration
}

// AuthService provides registration, login, refresh and request authentication.
// It keeps no mutable state of its own; identities live in the user repository
// and refresh sessions in the session store.
type AuthService struct {
	users     authUserRepository
	sessions  refreshSessionStore
	hasher    passwordHasher
	codec     accessTokenCodec
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	config    AuthConfig

	// dummyHash is verified against when the username is unknown so that
	// both login failure paths cost one hash comparison.
	dummyHash string
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, sessions refreshSessionStore, hasher passwordHasher, codec accessTokenCodec, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 30 * time.Minute
	}
	dummy, err := hasher.Hash("taskflow-dummy-password")
	if err != nil {
		logger.Warn("failed to prepare dummy password hash", zap.Error(err))
	}
	return &AuthService{
		users:     users,
		sessions:  sessions,
		hasher:    hasher,
		codec:     codec,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		config:    config,
		dummyHash: dummy,
	}
}

// Register creates a new identity and returns an access token for immediate use.
// No refresh session is created here; clients obtain one by logging in.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.TokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if strings.TrimSpace(req.Username) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "username must not be blank")
	}
	if len(req.Password) > maxPasswordBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "password must be at most 72 bytes")
	}

	_, found, err := s.lookupUser(ctx, req.Username)
	if err != nil {
		s.metrics.RecordAuthOperation(opRegister, OutcomeError)
		return nil, err
	}
	if found {
		s.logger.Warn("registration rejected: username already registered", zap.String("username", req.Username))
		s.metrics.RecordAuthOperation(opRegister, OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrAlreadyExists, "")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.metrics.RecordAuthOperation(opRegister, OutcomeError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{Username: req.Username, PasswordHash: hash}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			// Lost a race with a concurrent registration of the same name.
			s.logger.Warn("registration rejected: username already registered", zap.String("username", req.Username))
			s.metrics.RecordAuthOperation(opRegister, OutcomeRejected)
			return nil, appErrors.Clone(appErrors.ErrAlreadyExists, "")
		}
		s.metrics.RecordAuthOperation(opRegister, OutcomeError)
		return nil, appErrors.StoreUnavailable(err, "failed to persist user")
	}

	accessToken, _, err := s.codec.Issue(user.Username, s.config.AccessTokenExpiry)
	if err != nil {
		s.metrics.RecordAuthOperation(opRegister, OutcomeError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	s.logger.Info("user registered", zap.String("username", user.Username), zap.Int64("user_id", user.ID))
	s.metrics.RecordAuthOperation(opRegister, OutcomeSuccess)
	return s.tokenResponse(accessToken), nil
}

// Login verifies credentials and returns an access token plus a new refresh token.
// Unknown usernames and wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, found, err := s.lookupUser(ctx, req.Username)
	if err != nil {
		s.metrics.RecordAuthOperation(opLogin, OutcomeError)
		return nil, err
	}

	hash := s.dummyHash
	if found {
		hash = user.PasswordHash
	}
	// Anything longer than bcrypt's input limit could never have been registered.
	tooLong := len(req.Password) > maxPasswordBytes
	if !s.hasher.Verify(req.Password, hash) || !found || tooLong {
		s.logger.Warn("login rejected: invalid username or password", zap.String("username", req.Username), zap.String("ip", req.IP))
		s.metrics.RecordAuthOperation(opLogin, OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	accessToken, _, err := s.codec.Issue(user.Username, s.config.AccessTokenExpiry)
	if err != nil {
		s.metrics.RecordAuthOperation(opLogin, OutcomeError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	session, err := s.sessions.Create(ctx, user.Username)
	if err != nil {
		s.metrics.RecordAuthOperation(opLogin, OutcomeError)
		return nil, err
	}

	s.logger.Info("user logged in", zap.String("username", user.Username), zap.String("ip", req.IP))
	s.metrics.RecordAuthOperation(opLogin, OutcomeSuccess)
	return &models.LoginResponse{
		AccessToken:  accessToken,
		RefreshToken: session.Token,
		TokenType:    models.TokenTypeBearer,
		ExpiresIn:    int64(s.config.AccessTokenExpiry.Seconds()),
	}, nil
}

// Refresh exchanges a live refresh token for a new access token. The refresh
// token is neither rotated nor consumed and stays valid until its TTL lapses.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshTokenRequest) (*models.TokenResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid refresh payload")
	}

	username, err := s.sessions.Resolve(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, appErrors.ErrInvalidOrExpiredToken) {
			s.logger.Warn("refresh rejected: invalid or expired refresh token", zap.String("ip", req.IP))
			s.metrics.RecordAuthOperation(opRefresh, OutcomeRejected)
		} else {
			s.metrics.RecordAuthOperation(opRefresh, OutcomeError)
		}
		return nil, err
	}

	accessToken, _, err := s.codec.Issue(username, s.config.AccessTokenExpiry)
	if err != nil {
		s.metrics.RecordAuthOperation(opRefresh, OutcomeError)
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate access token")
	}

	s.logger.Info("access token refreshed", zap.String("username", username))
	s.metrics.RecordAuthOperation(opRefresh, OutcomeSuccess)
	return s.tokenResponse(accessToken), nil
}

// Authenticate resolves the identity behind an Authorization header value of the
// form "Bearer <token>". Every rejection is reported as ErrUnauthenticated.
func (s *AuthService) Authenticate(ctx context.Context, header string) (*models.User, error) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerScheme) || strings.TrimSpace(parts[1]) == "" {
		s.metrics.RecordAuthOperation(opAuthenticate, OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "invalid authorization header")
	}

	claims, err := s.codec.Verify(strings.TrimSpace(parts[1]))
	if err != nil {
		s.logger.Debug("access token rejected", zap.Error(err))
		s.metrics.RecordAuthOperation(opAuthenticate, OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "")
	}
	if claims.Subject == "" {
		s.metrics.RecordAuthOperation(opAuthenticate, OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "")
	}

	user, found, err := s.lookupUser(ctx, claims.Subject)
	if err != nil {
		s.metrics.RecordAuthOperation(opAuthenticate, OutcomeError)
		return nil, err
	}
	if !found {
		s.metrics.RecordAuthOperation(opAuthenticate, OutcomeRejected)
		return nil, appErrors.Clone(appErrors.ErrUnauthenticated, "")
	}

	s.metrics.RecordAuthOperation(opAuthenticate, OutcomeSuccess)
	return user, nil
}

// lookupUser is the single identity read path shared by login and request
// authentication.
func (s *AuthService) lookupUser(ctx context.Context, username string) (*models.User, bool, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, appErrors.StoreUnavailable(err, "failed to fetch user")
	}
	return user, true, nil
}

func (s *AuthService) tokenResponse(accessToken string) *models.TokenResponse {
	return &models.TokenResponse{
		AccessToken: accessToken,
		TokenType:   models.TokenTypeBearer,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
	}
}
