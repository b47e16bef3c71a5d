package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/taskflow-api/internal/middleware"
	"github.com/noah-isme/taskflow-api/internal/models"
	appErrors "github.com/noah-isme/taskflow-api/pkg/errors"
	"github.com/noah-isme/taskflow-api/pkg/response"
)

// currentUser returns the authenticated identity or writes a 401 when the route
// was reached without the JWT middleware having run.
func currentUser(c *gin.Context) (*models.User, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthenticated, ""))
		return nil, false
	}
	return user, true
}
