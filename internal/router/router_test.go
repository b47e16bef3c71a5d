package router

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/taskflow-api/internal/handler"
	"github.com/noah-isme/taskflow-api/internal/models"
	"github.com/noah-isme/taskflow-api/internal/repository"
	"github.com/noah-isme/taskflow-api/internal/service"
	"github.com/noah-isme/taskflow-api/pkg/config"
	"github.com/noah-isme/taskflow-api/pkg/security"
)

type userStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func (s *userStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return nil, sql.ErrNoRows
	}
	stored := *user
	return &stored, nil
}

func (s *userStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.Username]; ok {
		return repository.ErrDuplicateUsername
	}
	user.ID = int64(len(s.users) + 1)
	stored := *user
	s.users[user.Username] = &stored
	return nil
}

type sessionStore struct {
	mu       sync.Mutex
	sessions map[string]string
}

func (s *sessionStore) Put(ctx context.Context, token, username string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = username
	return nil
}

func (s *sessionStore) Get(ctx context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	username, ok := s.sessions[token]
	if !ok {
		return "", repository.ErrSessionNotFound
	}
	return username, nil
}

type taskStore struct {
	mu    sync.Mutex
	tasks []models.Task
}

func (s *taskStore) Create(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.ID = int64(len(s.tasks) + 1)
	s.tasks = append(s.tasks, *task)
	return nil
}

func (s *taskStore) ListByOwner(ctx context.Context, userID int64, filter models.TaskFilter) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, 0)
	for _, task := range s.tasks {
		if task.UserID == userID && (filter.Status == "" || filter.Status == task.Status) {
			out = append(out, task)
		}
	}
	return out, nil
}

func (s *taskStore) FindByOwner(ctx context.Context, id, userID int64) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.tasks {
		if task.ID == id && task.UserID == userID {
			found := task
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *taskStore) Update(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.tasks {
		if s.tasks[i].ID == task.ID && s.tasks[i].UserID == task.UserID {
			s.tasks[i] = *task
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *taskStore) Delete(ctx context.Context, id, userID int64) error {
	return sql.ErrNoRows
}

func newTestRouter(t *testing.T, prefix string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Env:       config.EnvDevelopment,
		APIPrefix: prefix,
		Metrics:   config.MetricsConfig{Enabled: true},
		Tasks:     config.TasksConfig{ExportEnabled: true},
	}
	metrics := service.NewMetricsService()
	validate := validator.New()
	sessions := service.NewSessionService(&sessionStore{sessions: map[string]string{}}, metrics, 24*time.Hour)
	auth := service.NewAuthService(
		&userStore{users: map[string]*models.User{}},
		sessions,
		security.NewBcryptHasher(bcrypt.MinCost),
		security.NewTokenCodec("test-secret", "taskflow-test"),
		validate, nil, metrics,
		service.AuthConfig{AccessTokenExpiry: 30 * time.Minute},
	)
	tasks := service.NewTaskService(&taskStore{}, validate, nil)

	return New(Dependencies{
		Config:        cfg,
		Metrics:       metrics,
		Authenticator: auth,
		Auth:          handler.NewAuthHandler(auth),
		Tasks:         handler.NewTaskHandler(tasks),
		Health:        handler.NewMetricsHandler(metrics, nil),
	})
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func call(t *testing.T, r *gin.Engine, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestRouterAuthScenario(t *testing.T) {
	r := newTestRouter(t, "")
	creds := map[string]string{"username": "alice", "password": "s3cret"}

	rec, env := call(t, r, http.MethodPost, "/auth/register", "", creds)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var registered models.TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &registered))
	assert.NotEmpty(t, registered.AccessToken)
	assert.Equal(t, "bearer", registered.TokenType)

	rec, env = call(t, r, http.MethodPost, "/auth/register", "", creds)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", env.Error.Code)

	rec, env = call(t, r, http.MethodPost, "/auth/login", "", creds)
	require.Equal(t, http.StatusOK, rec.Code)
	var login models.LoginResponse
	require.NoError(t, json.Unmarshal(env.Data, &login))
	assert.NotEqual(t, registered.AccessToken, login.AccessToken)
	assert.NotEmpty(t, login.RefreshToken)

	rec, env = call(t, r, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": login.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)
	var refreshed models.TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &refreshed))
	assert.NotEmpty(t, refreshed.AccessToken)

	for _, token := range []string{"unknown", ""} {
		rec, env = call(t, r, http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": token})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_REFRESH_TOKEN", env.Error.Code)
	}

	rec, wrongPassword := call(t, r, http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	rec, unknownUser := call(t, r, http.MethodPost, "/auth/login", "", map[string]string{"username": "mallory", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, wrongPassword.Error, unknownUser.Error)

	rec, env = call(t, r, http.MethodGet, "/auth/me", "Bearer "+login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me models.UserInfo
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "alice", me.Username)

	rec, env = call(t, r, http.MethodGet, "/auth/me", "Bearer garbage", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "UNAUTHENTICATED", env.Error.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestRouterTasksRequireAuth(t *testing.T) {
	r := newTestRouter(t, "/api/v1")

	rec, _ := call(t, r, http.MethodGet, "/api/v1/tasks", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := call(t, r, http.MethodPost, "/api/v1/auth/register", "", map[string]string{"username": "alice", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	var registered models.TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &registered))
	bearer := "Bearer " + registered.AccessToken

	rec, _ = call(t, r, http.MethodPost, "/api/v1/tasks", bearer, map[string]string{"title": "write", "status": "todo"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env = call(t, r, http.MethodGet, "/api/v1/tasks?status=todo", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tasks []models.Task
	require.NoError(t, json.Unmarshal(env.Data, &tasks))
	require.Len(t, tasks, 1)
	assert.Equal(t, "write", tasks[0].Title)

	rec, _ = call(t, r, http.MethodPut, "/api/v1/tasks/99", bearer, map[string]string{"title": "x", "status": "todo"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = call(t, r, http.MethodGet, "/api/v1/tasks/export", bearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "write")
}

func TestRouterProbes(t *testing.T) {
	r := newTestRouter(t, "")

	rec, _ := call(t, r, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, r, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = call(t, r, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}
