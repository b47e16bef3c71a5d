package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/taskflow-api/internal/models"
	appErrors "github.com/noah-isme/taskflow-api/pkg/errors"
	"github.com/noah-isme/taskflow-api/pkg/response"
)

type stubAuthenticator struct {
	user       *models.User
	err        error
	lastHeader string
}

func (s *stubAuthenticator) Authenticate(ctx context.Context, header string) (*models.User, error) {
	s.lastHeader = header
	return s.user, s.err
}

func serveProtected(auth Authenticator, header string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", JWT(auth), func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, user.Info())
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestJWTAttachesUser(t *testing.T) {
	auth := &stubAuthenticator{user: &models.User{ID: 7, Username: "alice"}}

	rec := serveProtected(auth, "Bearer token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bearer token", auth.lastHeader)

	var info models.UserInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, "alice", info.Username)
	assert.Equal(t, int64(7), info.ID)
}

func TestJWTRejects(t *testing.T) {
	auth := &stubAuthenticator{err: appErrors.Clone(appErrors.ErrUnauthenticated, "")}

	rec := serveProtected(auth, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))

	var body response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, appErrors.ErrUnauthenticated.Code, body.Error.Code)
}

func TestJWTStoreUnavailable(t *testing.T) {
	auth := &stubAuthenticator{err: appErrors.StoreUnavailable(assert.AnError, "failed to fetch user")}

	rec := serveProtected(auth, "Bearer token")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCurrentUserMissing(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok := CurrentUser(c)
	assert.False(t, ok)
}
